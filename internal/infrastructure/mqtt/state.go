package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hmccu/homematic-core/internal/entity"
)

// Bus is the client surface the state publisher uses. *Client satisfies
// it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// ValueWriter accepts parameter writes arriving from the command topic.
// *central.Central satisfies it.
type ValueWriter interface {
	SetValue(ctx context.Context, address string, channel entity.ChannelNo, parameter string, value any) error
}

// statePayload is the JSON shape of entity state messages.
type statePayload struct {
	Value     any    `json:"value"`
	Address   string `json:"address"`
	Parameter string `json:"parameter"`
	Kind      string `json:"kind,omitempty"`
	Timestamp string `json:"timestamp"`
}

// eventPayload is the JSON shape of momentary event messages.
type eventPayload struct {
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp"`
}

// StatePublisher maps the device model onto the topic layout: retained
// state per entity, retained availability per device, fire-and-forget
// event messages, and a command subscription for writes.
type StatePublisher struct {
	bus    Bus
	topics Topics
	qos    byte

	// now is swappable for tests.
	now func() time.Time
}

// NewStatePublisher constructs a publisher over a connected bus.
func NewStatePublisher(bus Bus, topics Topics, qos byte) *StatePublisher {
	return &StatePublisher{
		bus:    bus,
		topics: topics,
		qos:    qos,
		now:    time.Now,
	}
}

// PublishState publishes the retained state of one entity.
func (p *StatePublisher) PublishState(record *entity.Record, value any) error {
	payload, err := json.Marshal(statePayload{
		Value:     value,
		Address:   record.ChannelAddress,
		Parameter: record.Parameter,
		Kind:      string(record.Kind),
		Timestamp: p.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("mqtt: encoding state for %s: %w", record.UniqueID, err)
	}
	return p.bus.Publish(p.topics.EntityState(record.UniqueID), payload, p.qos, true)
}

// PublishAvailability publishes the retained availability of one device.
func (p *StatePublisher) PublishAvailability(address string, available bool) error {
	payload := []byte("offline")
	if available {
		payload = []byte("online")
	}
	return p.bus.Publish(p.topics.DeviceAvailability(address), payload, p.qos, true)
}

// PublishEvent publishes one momentary event. Not retained; a key press
// has no meaning after the fact.
func (p *StatePublisher) PublishEvent(record *entity.Record, value any) error {
	payload, err := json.Marshal(eventPayload{
		Value:     value,
		Timestamp: p.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("mqtt: encoding event for %s: %w", record.UniqueID, err)
	}
	topic := p.topics.Event(string(record.EventType), record.ChannelAddress, record.Parameter)
	return p.bus.Publish(topic, payload, p.qos, false)
}

// ListenCommands subscribes to the command hierarchy and routes each
// message to the writer. The payload is the JSON-encoded value to write.
//
// Parameters:
//   - ctx: passed through to writer calls; cancelling it stops accepted
//     writes from reaching the backend but does not unsubscribe.
//   - writer: receives decoded writes.
//
// Returns:
//   - error: if the subscription cannot be established.
func (p *StatePublisher) ListenCommands(ctx context.Context, writer ValueWriter) error {
	return p.bus.Subscribe(p.topics.AllCommands(), p.qos, func(topic string, payload []byte) error {
		channelAddress, parameter, ok := p.topics.ParseCommand(topic)
		if !ok {
			return fmt.Errorf("mqtt: unparseable command topic %q", topic)
		}

		var value any
		if err := json.Unmarshal(payload, &value); err != nil {
			return fmt.Errorf("mqtt: decoding command payload on %q: %w", topic, err)
		}

		address, channel := entity.SplitChannelAddress(channelAddress)
		return writer.SetValue(ctx, address, channel, parameter, value)
	})
}
