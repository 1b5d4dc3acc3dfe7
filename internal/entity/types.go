package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Operations is the capability bitmask of a parameter as reported by the
// backend.
type Operations uint8

// Operation bits.
const (
	OpRead Operations = 1 << iota
	OpWrite
	OpEvent
)

// Readable reports whether the parameter can be read.
func (o Operations) Readable() bool { return o&OpRead != 0 }

// Writable reports whether the parameter can be written.
func (o Operations) Writable() bool { return o&OpWrite != 0 }

// Eventing reports whether the parameter pushes events.
func (o Operations) Eventing() bool { return o&OpEvent != 0 }

// ParameterType is the scalar type the backend declares for a parameter.
type ParameterType string

// ParameterType constants. ACTION is write-only by nature; the backend uses
// it for stateless triggers.
const (
	TypeAction  ParameterType = "ACTION"
	TypeBool    ParameterType = "BOOL"
	TypeEnum    ParameterType = "ENUM"
	TypeFloat   ParameterType = "FLOAT"
	TypeInteger ParameterType = "INTEGER"
	TypeString  ParameterType = "STRING"
)

// Flags carries the backend's parameter flag bits.
type Flags uint8

// Flag bits.
const (
	FlagVisible Flags = 1 << iota
	FlagInternal
	FlagTransform
	FlagService
	FlagSticky
)

// Internal reports whether the backend marks this parameter internal.
func (f Flags) Internal() bool { return f&FlagInternal != 0 }

// ParamsetKey names a parameter group on a channel.
type ParamsetKey string

// ParamsetKey constants. VALUES is live state; MASTER is configuration and
// is not loaded unless a channel is registered as MASTER-relevant.
const (
	ParamsetValues ParamsetKey = "VALUES"
	ParamsetMaster ParamsetKey = "MASTER"
)

// ChannelNo addresses a sub-unit of a device. NoChannel marks parameters
// attached to the device itself rather than a channel.
type ChannelNo int

// NoChannel is the device-level pseudo channel.
const NoChannel ChannelNo = -1

// ParameterDescriptor is the backend's description of one parameter.
// Immutable once read; re-read only on an explicit device reload.
type ParameterDescriptor struct {
	Type       ParameterType
	Operations Operations
	Flags      Flags
	ValueList  []string
	Min        any
	Max        any
	Default    any
	Unit       string
}

// Kind is the concrete entity kind an entity resolves to.
type Kind string

// Generic entity kinds.
const (
	KindAction       Kind = "action"
	KindBinarySensor Kind = "binary_sensor"
	KindButton       Kind = "button"
	KindNumber       Kind = "number"
	KindSelect       Kind = "select"
	KindSensor       Kind = "sensor"
	KindSwitch       Kind = "switch"
	KindText         Kind = "text"
)

// Composite entity kinds produced by templates.
const (
	KindClimate Kind = "climate"
	KindCover   Kind = "cover"
	KindDimmer  Kind = "dimmer"
	KindLight   Kind = "light"
	KindLock    Kind = "lock"
	KindSiren   Kind = "siren"
)

// Usage classifies how an entity is exposed to the consuming platform.
type Usage string

// Usage constants.
const (
	// UsagePlain is a directly exposed standalone entity.
	UsagePlain Usage = "entity"

	// UsageHidden is created and consumed internally but not shown to
	// end users (availability markers and similar technical parameters).
	UsageHidden Usage = "hidden"

	// UsageNoCreate is suppressed entirely; it exists only as the value
	// source of a rebound entity.
	UsageNoCreate Usage = "no_create"

	// UsageCompositePrimary is bound into a composite's primary channel.
	UsageCompositePrimary Usage = "composite_primary"

	// UsageCompositeSecondary is bound into a composite's secondary
	// channel and not separately exposed.
	UsageCompositeSecondary Usage = "composite_secondary"

	// UsageCompositeVisible is bound into a composite but remains
	// individually visible alongside it.
	UsageCompositeVisible Usage = "composite_visible"

	// UsageEvent marks an event record; events never carry state.
	UsageEvent Usage = "event"
)

// EventType classifies event records.
type EventType string

// EventType constants. EventNone marks a non-event classification.
const (
	EventNone        EventType = ""
	EventKeypress    EventType = "keypress"
	EventImpulse     EventType = "impulse"
	EventDeviceError EventType = "device_error"
)

// Record is one materialized entity.
//
// Identity is the UniqueID; a second materialization attempt for the same
// identity is a no-op, never a duplicate.
type Record struct {
	UniqueID       string
	DeviceAddress  string
	DeviceType     string
	Channel        ChannelNo
	ChannelAddress string
	ParamsetKey    ParamsetKey
	Parameter      string
	Kind           Kind
	Usage          Usage
	EventType      EventType
	Descriptor     ParameterDescriptor

	// Wraps holds the UniqueID of the suppressed record this entity
	// re-exposes under a different kind, or "" for ordinary entities.
	Wraps string
}

// IsEvent reports whether the record is an event record.
func (r *Record) IsEvent() bool { return r.Usage == UsageEvent }

// FieldName names a slot in a composite entity.
type FieldName string

// Field names used by the default templates.
const (
	FieldActivityState FieldName = "activity_state"
	FieldChannelLevel  FieldName = "channel_level"
	FieldDirection     FieldName = "direction"
	FieldDutyCycle     FieldName = "duty_cycle"
	FieldHumidity      FieldName = "humidity"
	FieldLevel         FieldName = "level"
	FieldLevel2        FieldName = "level_2"
	FieldLowBat        FieldName = "low_bat"
	FieldSetpoint      FieldName = "setpoint"
	FieldState         FieldName = "state"
	FieldStop          FieldName = "stop"
	FieldTemperature   FieldName = "temperature"
)

// FieldRef addresses one field slot within a composite: the concrete
// channel it binds on plus the field name.
type FieldRef struct {
	Channel ChannelNo
	Field   FieldName
}

// Composite is an entity assembled from several underlying records per a
// template. A field that found no matching record is simply absent from the
// binding map; callers must branch on the second return of Field.
type Composite struct {
	UniqueID       string
	DeviceAddress  string
	DeviceType     string
	Kind           Kind
	PrimaryChannel ChannelNo

	fields map[FieldRef]*Record
}

// Field returns the record bound at (channel, name). The second return is
// false when the field is absent in the source data.
func (c *Composite) Field(channel ChannelNo, name FieldName) (*Record, bool) {
	r, ok := c.fields[FieldRef{Channel: channel, Field: name}]
	return r, ok
}

// FieldCount returns the number of bound fields.
func (c *Composite) FieldCount() int { return len(c.fields) }

// Fields returns a copy of the binding map.
func (c *Composite) Fields() map[FieldRef]*Record {
	out := make(map[FieldRef]*Record, len(c.fields))
	for k, v := range c.fields {
		out[k] = v
	}
	return out
}

// ChannelAddress renders the backend address of a channel. Device-level
// parameters use the bare device address.
func ChannelAddress(deviceAddress string, channel ChannelNo) string {
	if channel == NoChannel {
		return deviceAddress
	}
	return fmt.Sprintf("%s:%d", deviceAddress, channel)
}

// SplitChannelAddress splits a backend address into device address and
// channel number. Addresses without a channel part yield NoChannel.
func SplitChannelAddress(address string) (string, ChannelNo) {
	idx := strings.LastIndex(address, ":")
	if idx < 0 {
		return address, NoChannel
	}
	no, err := strconv.Atoi(address[idx+1:])
	if err != nil {
		return address, NoChannel
	}
	return address[:idx], ChannelNo(no)
}

// Addresses of the backend's virtual remote devices. Entities on these get
// the installation prefix because the addresses repeat across installations.
var virtualRemoteAddresses = map[string]struct{}{
	"BidCoS-RF":  {},
	"BidCoS-Wir": {},
	"HmIP-RCV-1": {},
}

var addressReplacer = strings.NewReplacer(":", "_", "-", "_")

// UniqueID derives the stable entity identity for an address/parameter
// pair. The address has ':' and '-' folded to '_' and everything is
// lower-cased. Synthetic and virtual-remote addresses are additionally
// prefixed with the installation identifier to avoid collisions between
// installations.
func UniqueID(instanceID, address, parameter string) string {
	uid := addressReplacer.Replace(address)
	if parameter != "" {
		uid = uid + "_" + parameter
	}
	if needsInstancePrefix(address) {
		uid = addressReplacer.Replace(instanceID) + "_" + uid
	}
	return strings.ToLower(uid)
}

func needsInstancePrefix(address string) bool {
	device, _ := SplitChannelAddress(address)
	if strings.HasPrefix(device, "INT000") {
		return true
	}
	_, ok := virtualRemoteAddresses[device]
	return ok
}
