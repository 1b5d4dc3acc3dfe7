package mqtt

import (
	"fmt"
	"strings"
)

// defaultPrefix is used when no topic prefix is configured.
const defaultPrefix = "hmcore"

// Topics builds the MQTT topics for one configured prefix. The zero value
// uses the default prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return defaultPrefix
	}
	return t.Prefix
}

// Status returns the retained service status topic.
//
// Example: hmcore/status
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// EntityState returns the retained state topic of one entity.
//
// Example: hmcore/entity/vcu0000123_1_level/state
func (t Topics) EntityState(uniqueID string) string {
	return fmt.Sprintf("%s/entity/%s/state", t.prefix(), uniqueID)
}

// DeviceAvailability returns the retained availability topic of a device.
//
// Example: hmcore/device/VCU0000123/availability
func (t Topics) DeviceAvailability(address string) string {
	return fmt.Sprintf("%s/device/%s/availability", t.prefix(), address)
}

// Event returns the topic for one momentary event.
//
// Example: hmcore/event/keypress/VCU0000123:1/PRESS_SHORT
func (t Topics) Event(eventType, channelAddress, parameter string) string {
	return fmt.Sprintf("%s/event/%s/%s/%s", t.prefix(), eventType, channelAddress, parameter)
}

// Command returns the inbound write topic for one parameter.
//
// Example: hmcore/command/VCU0000123:1/LEVEL
func (t Topics) Command(channelAddress, parameter string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.prefix(), channelAddress, parameter)
}

// AllCommands returns a pattern matching every inbound write topic.
//
// Pattern: hmcore/command/+/+
func (t Topics) AllCommands() string {
	return t.prefix() + "/command/+/+"
}

// ParseCommand extracts channel address and parameter from a command
// topic. Returns false for topics outside the command hierarchy.
func (t Topics) ParseCommand(topic string) (channelAddress, parameter string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/command/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
