package entity

import "strings"

// Click parameter names emitted by remote controls and wall buttons.
var clickParameters = map[string]struct{}{
	"PRESS":              {},
	"PRESS_SHORT":        {},
	"PRESS_LONG":         {},
	"PRESS_CONT":         {},
	"PRESS_LONG_RELEASE": {},
	"PRESS_LONG_START":   {},
}

// Impulse parameter names.
var impulseParameters = map[string]struct{}{
	"SEQUENCE_OK": {},
}

// Parameter name prefixes that carry device error events.
var deviceErrorPrefixes = []string{
	"ERROR",
	"SENSOR_ERROR",
}

// Write-only actions that behave like buttons rather than bare actions.
var buttonActions = map[string]struct{}{
	"RESET_MOTION":   {},
	"RESET_PRESENCE": {},
}

// Device types of the backend's virtual remote controls.
var virtualRemoteTypes = map[string]struct{}{
	"hm-rcv-50":   {},
	"hmw-rcv-50":  {},
	"hmip-rcv-50": {},
}

// Enumerated value lists that really describe a two-state binary reading.
var binaryEnumLists = [][]string{
	{"CLOSED", "OPEN"},
	{"DRY", "RAIN"},
	{"STABLE", "NOT_STABLE"},
}

// KindOverride rebinds a parameter to a different kind on matching device
// types. The original record stays as the value source but is suppressed.
type KindOverride struct {
	DeviceType string
	Parameter  string
	Kind       Kind
}

// DefaultKindOverrides returns the built-in rebind table.
func DefaultKindOverrides() []KindOverride {
	return []KindOverride{
		{DeviceType: "HM-Sec-Win", Parameter: "DIRECTION", Kind: KindSensor},
		{DeviceType: "HM-Sec-Win", Parameter: "ERROR", Kind: KindSensor},
		{DeviceType: "HM-Sec-Win", Parameter: "WORKING", Kind: KindBinarySensor},
		{DeviceType: "HM-Sec-Win", Parameter: "STATUS", Kind: KindSensor},
		{DeviceType: "HM-Sec-Key", Parameter: "DIRECTION", Kind: KindSensor},
		{DeviceType: "HM-Sec-Key", Parameter: "ERROR", Kind: KindSensor},
	}
}

// Classification is the result of kind inference: either an event type or
// exactly one entity kind.
type Classification struct {
	Kind  Kind
	Event EventType
}

// IsEvent reports whether the parameter was classified as an event.
func (c Classification) IsEvent() bool { return c.Event != EventNone }

// Classifier maps a parameter descriptor to an entity kind or event
// classification. It is a pure, total mapping; the same inputs always yield
// the same single tag.
type Classifier struct {
	overrides []KindOverride
}

// NewClassifier constructs a Classifier with the given rebind table.
func NewClassifier(overrides []KindOverride) *Classifier {
	c := &Classifier{}
	for _, o := range overrides {
		c.overrides = append(c.overrides, KindOverride{
			DeviceType: strings.ToLower(o.DeviceType),
			Parameter:  o.Parameter,
			Kind:       o.Kind,
		})
	}
	return c
}

// Classify infers the classification for a parameter already confirmed not
// ignored. Event classification takes precedence over everything: an
// event-classified parameter never also receives a stateful entity.
func (c *Classifier) Classify(deviceType, parameter string, d ParameterDescriptor) Classification {
	if d.Operations.Eventing() {
		if _, ok := clickParameters[parameter]; ok {
			return Classification{Event: EventKeypress}
		}
		if _, ok := impulseParameters[parameter]; ok {
			return Classification{Event: EventImpulse}
		}
		for _, prefix := range deviceErrorPrefixes {
			if strings.HasPrefix(parameter, prefix) {
				return Classification{Event: EventDeviceError}
			}
		}
	}

	return Classification{Kind: c.inferKind(deviceType, parameter, d)}
}

func (c *Classifier) inferKind(deviceType, parameter string, d ParameterDescriptor) Kind {
	ops := d.Operations

	if ops.Writable() && d.Type == TypeAction {
		if !ops.Readable() {
			if _, ok := buttonActions[parameter]; ok {
				return KindButton
			}
			if isVirtualRemote(deviceType) {
				return KindButton
			}
			return KindAction
		}
		if _, ok := clickParameters[parameter]; ok {
			return KindButton
		}
		return KindSwitch
	}

	if ops.Writable() && !ops.Readable() {
		return KindAction
	}

	if ops.Writable() {
		switch d.Type {
		case TypeBool:
			return KindSwitch
		case TypeEnum:
			return KindSelect
		case TypeFloat, TypeInteger:
			return KindNumber
		case TypeString:
			return KindText
		}
		return KindText
	}

	// Read-only path.
	if d.Type == TypeBool {
		return KindBinarySensor
	}
	if d.Type == TypeEnum && isBinaryEnum(d.ValueList) {
		return KindBinarySensor
	}
	return KindSensor
}

// Override returns the rebind kind for a device-type/parameter pair, if
// the table has one. Device types match by case-insensitive prefix.
func (c *Classifier) Override(deviceType, parameter string) (Kind, bool) {
	dt := strings.ToLower(deviceType)
	for _, o := range c.overrides {
		if o.Parameter == parameter && strings.HasPrefix(dt, o.DeviceType) {
			return o.Kind, true
		}
	}
	return "", false
}

func isVirtualRemote(deviceType string) bool {
	_, ok := virtualRemoteTypes[strings.ToLower(deviceType)]
	return ok
}

func isBinaryEnum(valueList []string) bool {
	for _, candidate := range binaryEnumLists {
		if len(valueList) != len(candidate) {
			continue
		}
		match := true
		for i := range candidate {
			if valueList[i] != candidate[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
