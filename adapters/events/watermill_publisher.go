package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/quillwire/devlink/ports"
)

// DeviceChangeTopic carries linked-device change events. Other instances use
// them to refresh connection state for affected accounts.
const DeviceChangeTopic = "devlink.devices.changed"

// DeviceChangeEvent describes one change to an account's linked-device set.
type DeviceChangeEvent struct {
	ACI      string `json:"aci"`
	DeviceID byte   `json:"device_id"`
	Change   string `json:"change"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     DeviceChangeTopic,
	}
}

// PublishDeviceLinked publishes a device-linked event.
func (p *WatermillPublisher) PublishDeviceLinked(ctx context.Context, aci uuid.UUID, deviceID byte) error {
	return p.publish(aci, deviceID, "linked")
}

// PublishDeviceRemoved publishes a device-removed event.
func (p *WatermillPublisher) PublishDeviceRemoved(ctx context.Context, aci uuid.UUID, deviceID byte) error {
	return p.publish(aci, deviceID, "removed")
}

func (p *WatermillPublisher) publish(aci uuid.UUID, deviceID byte, change string) error {
	event := DeviceChangeEvent{
		ACI:      aci.String(),
		DeviceID: deviceID,
		Change:   change,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
