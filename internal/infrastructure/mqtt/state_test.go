package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hmccu/homematic-core/internal/entity"
)

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakeBus struct {
	mu        sync.Mutex
	published []publishedMessage
	handlers  map[string]MessageHandler
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]MessageHandler)}
}

func (b *fakeBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (b *fakeBus) Subscribe(topic string, _ byte, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBus) last(t *testing.T) publishedMessage {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.published) == 0 {
		t.Fatal("nothing published")
	}
	return b.published[len(b.published)-1]
}

type recordedWrite struct {
	address   string
	channel   entity.ChannelNo
	parameter string
	value     any
}

type fakeWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
}

func (w *fakeWriter) SetValue(_ context.Context, address string, channel entity.ChannelNo, parameter string, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, recordedWrite{address, channel, parameter, value})
	return nil
}

func newTestPublisher(bus *fakeBus) *StatePublisher {
	p := NewStatePublisher(bus, Topics{}, 1)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	return p
}

func TestStatePublisher_PublishState(t *testing.T) {
	bus := newFakeBus()
	p := newTestPublisher(bus)

	record := &entity.Record{
		UniqueID:       "vcu0000123_1_level",
		ChannelAddress: "VCU0000123:1",
		Parameter:      "LEVEL",
		Kind:           entity.KindCover,
	}
	if err := p.PublishState(record, 0.5); err != nil {
		t.Fatalf("PublishState() error = %v", err)
	}

	msg := bus.last(t)
	if msg.topic != "hmcore/entity/vcu0000123_1_level/state" {
		t.Errorf("topic = %q", msg.topic)
	}
	if !msg.retained {
		t.Error("state messages must be retained")
	}

	var payload statePayload
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload.Value != 0.5 || payload.Parameter != "LEVEL" || payload.Kind != "cover" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestStatePublisher_PublishAvailability(t *testing.T) {
	bus := newFakeBus()
	p := newTestPublisher(bus)

	if err := p.PublishAvailability("VCU0000123", true); err != nil {
		t.Fatal(err)
	}
	msg := bus.last(t)
	if msg.topic != "hmcore/device/VCU0000123/availability" || string(msg.payload) != "online" || !msg.retained {
		t.Errorf("message = %+v", msg)
	}

	if err := p.PublishAvailability("VCU0000123", false); err != nil {
		t.Fatal(err)
	}
	if got := string(bus.last(t).payload); got != "offline" {
		t.Errorf("payload = %q, want offline", got)
	}
}

func TestStatePublisher_PublishEvent(t *testing.T) {
	bus := newFakeBus()
	p := newTestPublisher(bus)

	record := &entity.Record{
		UniqueID:       "vcu0000123_1_press_short",
		ChannelAddress: "VCU0000123:1",
		Parameter:      "PRESS_SHORT",
		EventType:      entity.EventKeypress,
	}
	if err := p.PublishEvent(record, true); err != nil {
		t.Fatalf("PublishEvent() error = %v", err)
	}

	msg := bus.last(t)
	if msg.topic != "hmcore/event/keypress/VCU0000123:1/PRESS_SHORT" {
		t.Errorf("topic = %q", msg.topic)
	}
	if msg.retained {
		t.Error("event messages must not be retained")
	}
}

func TestStatePublisher_ListenCommands(t *testing.T) {
	bus := newFakeBus()
	p := newTestPublisher(bus)
	writer := &fakeWriter{}

	if err := p.ListenCommands(context.Background(), writer); err != nil {
		t.Fatalf("ListenCommands() error = %v", err)
	}

	handler, ok := bus.handlers["hmcore/command/+/+"]
	if !ok {
		t.Fatal("expected command subscription")
	}

	if err := handler("hmcore/command/VCU0000123:1/LEVEL", []byte("0.75")); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(writer.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(writer.writes))
	}
	w := writer.writes[0]
	if w.address != "VCU0000123" || w.channel != 1 || w.parameter != "LEVEL" || w.value != 0.75 {
		t.Errorf("write = %+v", w)
	}

	// Garbage payloads are reported, not written.
	if err := handler("hmcore/command/VCU0000123:1/LEVEL", []byte("{not json")); err == nil {
		t.Error("expected error for invalid payload")
	}
	if len(writer.writes) != 1 {
		t.Error("invalid payload must not reach the writer")
	}
}
