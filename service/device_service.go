package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/quillwire/devlink/adapters/token"
	"github.com/quillwire/devlink/core"
	"github.com/quillwire/devlink/ports"
	"golang.org/x/crypto/bcrypt"
)

// DefaultMaxDevices is the device ceiling for accounts without an override.
const DefaultMaxDevices = 6

// Config carries the construction-time configuration of the device service.
// Nothing here is mutable at runtime.
type Config struct {
	// LinkDeviceSecret is the server-wide signing secret for link tokens.
	LinkDeviceSecret []byte

	// TokenValidity is the link-token validity window; zero selects the default.
	TokenValidity time.Duration

	// DefaultMaxDevices is the device ceiling; zero selects DefaultMaxDevices.
	DefaultMaxDevices int

	// MaxDeviceOverrides maps account numbers to per-account device ceilings.
	MaxDeviceOverrides map[string]int
}

// RateLimiters groups the two shared limiter buckets the device flow uses.
type RateLimiters struct {
	AllocateDevice ports.RateLimiter
	VerifyDevice   ports.RateLimiter
}

// DeviceService coordinates the device-linking lifecycle: issuing link tokens,
// redeeming them into new devices, and managing the linked-device set.
type DeviceService struct {
	codec      *token.Codec
	accounts   ports.AccountStore
	replay     ports.ReplayStore
	limiters   RateLimiters
	preKeys    ports.PreKeyValidator
	publicKeys ports.PublicKeyStore
	events     ports.EventPublisher

	defaultMaxDevices  int
	maxDeviceOverrides map[string]int

	now func() time.Time
}

// NewDeviceService creates a new device service. Fails fast when the signing
// secret is unusable.
func NewDeviceService(
	cfg Config,
	accounts ports.AccountStore,
	replay ports.ReplayStore,
	limiters RateLimiters,
	preKeys ports.PreKeyValidator,
	publicKeys ports.PublicKeyStore,
	events ports.EventPublisher,
) (*DeviceService, error) {
	codec, err := token.NewCodec(cfg.LinkDeviceSecret, cfg.TokenValidity)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	maxDevices := cfg.DefaultMaxDevices
	if maxDevices <= 0 {
		maxDevices = DefaultMaxDevices
	}

	return &DeviceService{
		codec:              codec,
		accounts:           accounts,
		replay:             replay,
		limiters:           limiters,
		preKeys:            preKeys,
		publicKeys:         publicKeys,
		events:             events,
		defaultMaxDevices:  maxDevices,
		maxDeviceOverrides: cfg.MaxDeviceOverrides,
		now:                time.Now,
	}, nil
}

// IssueLinkToken mints a signed link token for the account. Only the primary
// device may call this.
func (s *DeviceService) IssueLinkToken(ctx context.Context, account *core.Account, authDeviceID byte) (string, error) {
	if authDeviceID != core.PrimaryDeviceID {
		return "", core.ErrUnauthorized
	}

	if err := s.limiters.AllocateDevice.Validate(ctx, account.ACI); err != nil {
		return "", err
	}

	maxDevices := s.maxDevicesFor(account)
	if len(account.Devices) >= maxDevices {
		return "", &core.DeviceLimitError{Current: len(account.Devices), Max: maxDevices}
	}

	return s.codec.Encode(account.ACI, s.now()), nil
}

// LinkDevice redeems a link token and attaches a new device to the account it
// resolves to. Steps run sequentially and short-circuit on the first failure;
// password is the new device's basic-auth credential from the request header.
func (s *DeviceService) LinkDevice(ctx context.Context, password string, req core.LinkDeviceRequest) (core.DeviceResponse, error) {
	encodedToken := req.VerificationCode

	// A consumed token is indistinguishable from an invalid one to the caller.
	consumed, err := s.replay.IsConsumed(ctx, encodedToken)
	if err != nil {
		return core.DeviceResponse{}, fmt.Errorf("failed to check token consumption: %w", err)
	}
	if consumed {
		return core.DeviceResponse{}, core.ErrForbidden
	}

	aci, err := s.codec.Decode(encodedToken, s.now())
	if err != nil {
		return core.DeviceResponse{}, core.ErrForbidden
	}

	account, err := s.accounts.GetByAccountIdentifier(ctx, aci)
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			return core.DeviceResponse{}, core.ErrForbidden
		}
		return core.DeviceResponse{}, fmt.Errorf("failed to resolve account: %w", err)
	}

	if err := s.limiters.VerifyDevice.Validate(ctx, account.ACI); err != nil {
		return core.DeviceResponse{}, err
	}

	activation := req.ActivationRequest

	allKeysValid := s.preKeys.ValidatePreKeySignatures(account.IdentityKey(core.IdentityTypeACI),
		[]core.SignedPreKey{activation.ACISignedPreKey, activation.ACIPqLastResortPreKey}) &&
		s.preKeys.ValidatePreKeySignatures(account.IdentityKey(core.IdentityTypePNI),
			[]core.SignedPreKey{activation.PNISignedPreKey, activation.PNIPqLastResortPreKey})

	if !allKeysValid {
		return core.DeviceResponse{}, &core.UnprocessableError{Reason: "invalid prekey signature"}
	}

	maxDevices := s.maxDevicesFor(account)
	if len(account.Devices) >= maxDevices {
		return core.DeviceResponse{}, &core.DeviceLimitError{Current: len(account.Devices), Max: maxDevices}
	}

	capabilities := req.AccountAttributes.Capabilities
	if capabilities == nil {
		return core.DeviceResponse{}, &core.UnprocessableError{Reason: "missing device capabilities"}
	}
	if core.IsCapabilityDowngrade(account, *capabilities) {
		return core.DeviceResponse{}, core.ErrCapabilityDowngrade
	}

	credentialHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.DeviceResponse{}, fmt.Errorf("failed to hash device credential: %w", err)
	}

	spec := core.DeviceSpec{
		Name:               req.AccountAttributes.Name,
		AuthCredentialHash: credentialHash,
		UserAgent:          deriveUserAgent(activation),
		Capabilities:       *capabilities,
		RegistrationID:     req.AccountAttributes.RegistrationID,
		PNIRegistrationID:  req.AccountAttributes.PNIRegistrationID,
		FetchesMessages:    req.AccountAttributes.FetchesMessages,
		APNToken:           activation.APNToken,
		GCMToken:           activation.GCMToken,

		ACISignedPreKey:       activation.ACISignedPreKey,
		PNISignedPreKey:       activation.PNISignedPreKey,
		ACIPqLastResortPreKey: activation.ACIPqLastResortPreKey,
		PNIPqLastResortPreKey: activation.PNIPqLastResortPreKey,
	}

	// Claim the token before committing so at most one concurrent attempt with
	// the same token reaches the account store.
	claimed, err := s.replay.Claim(ctx, encodedToken, s.codec.Validity())
	if err != nil {
		return core.DeviceResponse{}, fmt.Errorf("failed to claim token: %w", err)
	}
	if !claimed {
		return core.DeviceResponse{}, core.ErrForbidden
	}

	updated, device, err := s.accounts.AddDevice(ctx, account.ACI, spec)
	if err != nil {
		return core.DeviceResponse{}, fmt.Errorf("failed to add device: %w", err)
	}

	s.publishDeviceChange(ctx, updated.ACI, device.ID, deviceLinked)

	return core.DeviceResponse{
		ACI:      updated.Identifier(core.IdentityTypeACI),
		PNI:      updated.Identifier(core.IdentityTypePNI),
		DeviceID: device.ID,
	}, nil
}

// RemoveDevice detaches a device. The primary device may remove any linked
// device; a linked device may remove only itself; the primary device itself is
// permanent.
func (s *DeviceService) RemoveDevice(ctx context.Context, account *core.Account, authDeviceID, targetDeviceID byte) error {
	if authDeviceID != core.PrimaryDeviceID && authDeviceID != targetDeviceID {
		return core.ErrUnauthorized
	}

	if targetDeviceID == core.PrimaryDeviceID {
		return core.ErrForbidden
	}

	if err := s.accounts.RemoveDevice(ctx, account.ACI, targetDeviceID); err != nil {
		return fmt.Errorf("failed to remove device: %w", err)
	}

	s.publishDeviceChange(ctx, account.ACI, targetDeviceID, deviceRemoved)

	return nil
}

// ListDevices returns the listing view of the account's devices.
func (s *DeviceService) ListDevices(account *core.Account) []core.DeviceInfo {
	devices := make([]core.DeviceInfo, 0, len(account.Devices))
	for i := range account.Devices {
		device := &account.Devices[i]
		devices = append(devices, core.DeviceInfo{
			ID:       device.ID,
			Name:     device.Name,
			LastSeen: device.LastSeen,
			Created:  device.Created,
		})
	}

	return devices
}

// SetCapabilities updates the capability flags of the authenticated device.
func (s *DeviceService) SetCapabilities(ctx context.Context, account *core.Account, deviceID byte, capabilities core.DeviceCapabilities) error {
	return s.accounts.UpdateDevice(ctx, account.ACI, deviceID, func(device *core.Device) {
		device.Capabilities = capabilities
	})
}

// SetPublicKey stores the authenticated device's authentication public key.
func (s *DeviceService) SetPublicKey(ctx context.Context, account *core.Account, deviceID byte, publicKey []byte) error {
	if len(publicKey) == 0 {
		return &core.UnprocessableError{Reason: "missing public key"}
	}

	return s.publicKeys.SetPublicKey(ctx, account.ACI, deviceID, publicKey)
}

func (s *DeviceService) maxDevicesFor(account *core.Account) int {
	if override, exists := s.maxDeviceOverrides[account.Number]; exists {
		return override
	}
	return s.defaultMaxDevices
}

type deviceChange int

const (
	deviceLinked deviceChange = iota
	deviceRemoved
)

// publishDeviceChange is best-effort: the device-list mutation has already
// committed, so a publish failure is logged and the request still succeeds.
func (s *DeviceService) publishDeviceChange(ctx context.Context, aci uuid.UUID, deviceID byte, change deviceChange) {
	if s.events == nil {
		return
	}

	var err error
	if change == deviceLinked {
		err = s.events.PublishDeviceLinked(ctx, aci, deviceID)
	} else {
		err = s.events.PublishDeviceRemoved(ctx, aci, deviceID)
	}

	if err != nil {
		log.Printf("failed to publish device change for %s device %d: %v", aci, deviceID, err)
	}
}

// deriveUserAgent labels the new device by which push channel it registered:
// APN, GCM, or neither (desktop and unspecified clients).
func deriveUserAgent(activation core.DeviceActivationRequest) string {
	switch {
	case activation.APNToken != "":
		return "OWP"
	case activation.GCMToken != "":
		return "OWA"
	default:
		return "OWD"
	}
}
