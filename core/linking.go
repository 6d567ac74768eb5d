package core

import "github.com/google/uuid"

// SignedPreKey is published pre-key material for one identity domain: a key id,
// the public key, and a signature over the public key by the identity key.
type SignedPreKey struct {
	KeyID     int64  `json:"keyId"`
	PublicKey []byte `json:"publicKey"`
	Signature []byte `json:"signature"`
}

// DeviceActivationRequest carries the key material and push channel tokens a new
// device submits when linking.
type DeviceActivationRequest struct {
	ACISignedPreKey       SignedPreKey `json:"aciSignedPreKey" binding:"required"`
	PNISignedPreKey       SignedPreKey `json:"pniSignedPreKey" binding:"required"`
	ACIPqLastResortPreKey SignedPreKey `json:"aciPqLastResortPreKey" binding:"required"`
	PNIPqLastResortPreKey SignedPreKey `json:"pniPqLastResortPreKey" binding:"required"`

	APNToken string `json:"apnToken"`
	GCMToken string `json:"gcmToken"`
}

// AccountAttributes are the account-level attributes a linking device declares.
// Capabilities is a pointer so a missing set is distinguishable from all-false.
type AccountAttributes struct {
	Name              string              `json:"name"`
	RegistrationID    int                 `json:"registrationId" binding:"required"`
	PNIRegistrationID int                 `json:"pniRegistrationId" binding:"required"`
	FetchesMessages   bool                `json:"fetchesMessages"`
	Capabilities      *DeviceCapabilities `json:"capabilities"`
}

// LinkDeviceRequest is the body of a link call: the token minted by the primary
// device plus the new device's attributes and activation material.
type LinkDeviceRequest struct {
	VerificationCode  string                  `json:"verificationCode" binding:"required"`
	AccountAttributes AccountAttributes       `json:"accountAttributes" binding:"required"`
	ActivationRequest DeviceActivationRequest `json:"deviceActivationRequest" binding:"required"`
}

// DeviceSpec is the assembled specification the account store turns into a new
// device in a single atomic commit.
type DeviceSpec struct {
	Name               string
	AuthCredentialHash []byte
	UserAgent          string
	Capabilities       DeviceCapabilities
	RegistrationID     int
	PNIRegistrationID  int
	FetchesMessages    bool

	APNToken string
	GCMToken string

	ACISignedPreKey       SignedPreKey
	PNISignedPreKey       SignedPreKey
	ACIPqLastResortPreKey SignedPreKey
	PNIPqLastResortPreKey SignedPreKey
}

// DeviceResponse is returned on a successful link: the account's public
// identifiers for both identity domains plus the new device id.
type DeviceResponse struct {
	ACI      uuid.UUID `json:"uuid"`
	PNI      uuid.UUID `json:"pni"`
	DeviceID byte      `json:"deviceId"`
}
