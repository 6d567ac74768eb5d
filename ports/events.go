package ports

import (
	"context"

	"github.com/google/uuid"
)

// EventPublisher notifies other instances that an account's linked-device set
// changed. Publish failures are non-fatal to the request that triggered them.
type EventPublisher interface {
	PublishDeviceLinked(ctx context.Context, aci uuid.UUID, deviceID byte) error
	PublishDeviceRemoved(ctx context.Context, aci uuid.UUID, deviceID byte) error
}
