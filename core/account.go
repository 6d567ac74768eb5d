package core

import (
	"time"

	"github.com/google/uuid"
)

// PrimaryDeviceID is the id of the first device registered on an account. The
// primary device cannot be removed and is the only device allowed to mint link
// tokens.
const PrimaryDeviceID byte = 1

// Account is an account aggregate as surfaced by the account store. ACI is the
// account-identity UUID, PNI the phone-number-identity UUID; each identity domain
// carries its own identity key.
type Account struct {
	ACI    uuid.UUID
	PNI    uuid.UUID
	Number string

	ACIIdentityKey []byte
	PNIIdentityKey []byte

	Devices []Device
}

// Device is a single device attached to an account.
type Device struct {
	ID   byte
	Name string

	// AuthCredentialHash is the bcrypt hash of the device's basic-auth password.
	AuthCredentialHash []byte

	UserAgent         string
	Capabilities      DeviceCapabilities
	RegistrationID    int
	PNIRegistrationID int
	FetchesMessages   bool

	APNToken string
	GCMToken string

	ACISignedPreKey       SignedPreKey
	PNISignedPreKey       SignedPreKey
	ACIPqLastResortPreKey SignedPreKey
	PNIPqLastResortPreKey SignedPreKey

	Created  time.Time
	LastSeen time.Time
}

// Primary reports whether this is the account's primary device.
func (d *Device) Primary() bool {
	return d.ID == PrimaryDeviceID
}

// GetDevice returns the device with the given id, or nil.
func (a *Account) GetDevice(deviceID byte) *Device {
	for i := range a.Devices {
		if a.Devices[i].ID == deviceID {
			return &a.Devices[i]
		}
	}
	return nil
}

// NextDeviceID returns the lowest unused device id greater than the primary id.
func (a *Account) NextDeviceID() byte {
	for candidate := PrimaryDeviceID + 1; ; candidate++ {
		if a.GetDevice(candidate) == nil {
			return candidate
		}
	}
}

// IdentityKey returns the identity key for the given identity domain.
func (a *Account) IdentityKey(identity IdentityType) []byte {
	if identity == IdentityTypePNI {
		return a.PNIIdentityKey
	}
	return a.ACIIdentityKey
}

// Identifier returns the account's public identifier for the given identity domain.
func (a *Account) Identifier(identity IdentityType) uuid.UUID {
	if identity == IdentityTypePNI {
		return a.PNI
	}
	return a.ACI
}

// IdentityType selects one of the two identity domains on an account.
type IdentityType int

const (
	// IdentityTypeACI is the account-identity domain
	IdentityTypeACI IdentityType = iota

	// IdentityTypePNI is the phone-number-identity domain
	IdentityTypePNI
)

// DeviceInfo is the public listing view of a device.
type DeviceInfo struct {
	ID       byte      `json:"id"`
	Name     string    `json:"name"`
	LastSeen time.Time `json:"lastSeen"`
	Created  time.Time `json:"created"`
}
