package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/quillwire/devlink/core"
)

// AccountStore is the external account/device aggregate. AddDevice and
// RemoveDevice are the only mutation points for the device list and must apply
// atomically; callers never read-modify-write the list themselves.
type AccountStore interface {
	// GetByAccountIdentifier resolves an ACI to an account, or
	// core.ErrAccountNotFound.
	GetByAccountIdentifier(ctx context.Context, aci uuid.UUID) (*core.Account, error)

	// AddDevice atomically attaches a new device built from spec and returns the
	// updated account together with the new device.
	AddDevice(ctx context.Context, aci uuid.UUID, spec core.DeviceSpec) (*core.Account, *core.Device, error)

	// RemoveDevice atomically detaches the device with the given id.
	RemoveDevice(ctx context.Context, aci uuid.UUID, deviceID byte) error

	// UpdateDevice applies update to the device with the given id.
	UpdateDevice(ctx context.Context, aci uuid.UUID, deviceID byte, update func(*core.Device)) error
}
