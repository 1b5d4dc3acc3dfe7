package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/hmccu/homematic-core/internal/entity"
)

// Measurement names for recorded history.
const (
	measurementValue        = "entity_value"
	measurementAvailability = "availability"
	measurementEvent        = "event"
)

// valueFields maps a parameter value onto typed fields. Numeric values
// land in "value", booleans in "state" and strings in "text" so that one
// entity never writes conflicting field types into the same series.
//
// Returns nil for types that cannot be recorded.
func valueFields(value any) map[string]interface{} {
	switch v := value.(type) {
	case float64:
		return map[string]interface{}{"value": v}
	case float32:
		return map[string]interface{}{"value": float64(v)}
	case int:
		return map[string]interface{}{"value": float64(v)}
	case int64:
		return map[string]interface{}{"value": float64(v)}
	case bool:
		return map[string]interface{}{"state": v}
	case string:
		return map[string]interface{}{"text": v}
	default:
		return nil
	}
}

// RecordValue records one accepted value update for an entity.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Unrecordable value types and disconnected clients are silently
// skipped.
//
// Parameters:
//   - record: the entity the value belongs to
//   - value: the reported parameter value
func (c *Client) RecordValue(record *entity.Record, value any) {
	if !c.IsConnected() {
		return
	}

	fields := valueFields(value)
	if fields == nil {
		return
	}

	tags := map[string]string{
		"unique_id": record.UniqueID,
		"address":   record.ChannelAddress,
		"parameter": record.Parameter,
	}
	if record.Kind != "" {
		tags["kind"] = string(record.Kind)
	}

	c.writeAPI.WritePoint(write.NewPoint(measurementValue, tags, fields, time.Now()))
}

// RecordAvailability records a device availability transition.
//
// Parameters:
//   - address: device address (e.g. "VCU0000123")
//   - available: whether the device is reachable
func (c *Client) RecordAvailability(address string, available bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementAvailability,
		map[string]string{"device": address},
		map[string]interface{}{"online": available},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordEvent records one momentary event, such as a key press.
//
// Parameters:
//   - record: the event entity
//   - value: the reported event value
func (c *Client) RecordEvent(record *entity.Record, value any) {
	if !c.IsConnected() {
		return
	}

	fields := valueFields(value)
	if fields == nil {
		return
	}

	tags := map[string]string{
		"type":      string(record.EventType),
		"address":   record.ChannelAddress,
		"parameter": record.Parameter,
	}

	c.writeAPI.WritePoint(write.NewPoint(measurementEvent, tags, fields, time.Now()))
}
