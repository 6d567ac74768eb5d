package ports

import (
	"context"

	"github.com/google/uuid"
)

// PublicKeyStore records per-device authentication public keys used by devices
// migrating to the newer transport.
type PublicKeyStore interface {
	SetPublicKey(ctx context.Context, aci uuid.UUID, deviceID byte, publicKey []byte) error
}
