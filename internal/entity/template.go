package entity

import (
	"strings"
	"sync"
)

// Template describes how raw parameters across a channel group combine into
// one composite entity. Channel numbers are template-relative; Rebase shifts
// them to a concrete base channel.
//
// Static, loaded once; never mutated at runtime.
type Template struct {
	Kind              Kind
	PrimaryChannel    ChannelNo
	SecondaryChannels []ChannelNo

	// RepFields binds field -> parameter on every member channel.
	RepFields map[FieldName]string

	// VisibleRepFields is RepFields with the bound entity kept
	// individually visible alongside the composite.
	VisibleRepFields map[FieldName]string

	// Fields binds field -> parameter on one explicit channel.
	Fields map[ChannelNo]map[FieldName]string

	// VisibleFields is Fields with the bound entity kept visible.
	VisibleFields map[ChannelNo]map[FieldName]string

	// AdditionalParams exposes bare parameters as plain entities
	// alongside the composite instead of leaving them suppressed.
	AdditionalParams map[ChannelNo][]string
}

// Rebase returns the template shifted to a base channel. Base 0 returns the
// template unchanged; otherwise the primary channel, every secondary channel
// and every explicit channel key gain the base offset.
func (t Template) Rebase(base ChannelNo) Template {
	if base == 0 {
		return t
	}

	out := t
	out.PrimaryChannel = t.PrimaryChannel + base

	if len(t.SecondaryChannels) > 0 {
		out.SecondaryChannels = make([]ChannelNo, len(t.SecondaryChannels))
		for i, ch := range t.SecondaryChannels {
			out.SecondaryChannels[i] = ch + base
		}
	}

	out.Fields = rebaseFieldMap(t.Fields, base)
	out.VisibleFields = rebaseFieldMap(t.VisibleFields, base)

	if len(t.AdditionalParams) > 0 {
		out.AdditionalParams = make(map[ChannelNo][]string, len(t.AdditionalParams))
		for ch, params := range t.AdditionalParams {
			out.AdditionalParams[ch+base] = params
		}
	}

	return out
}

func rebaseFieldMap(fields map[ChannelNo]map[FieldName]string, base ChannelNo) map[ChannelNo]map[FieldName]string {
	if len(fields) == 0 {
		return fields
	}
	out := make(map[ChannelNo]map[FieldName]string, len(fields))
	for ch, m := range fields {
		out[ch+base] = m
	}
	return out
}

// MemberChannels returns the primary channel followed by the secondary
// channels.
func (t Template) MemberChannels() []ChannelNo {
	return append([]ChannelNo{t.PrimaryChannel}, t.SecondaryChannels...)
}

// parameters returns every parameter name the template references.
func (t Template) parameters() []string {
	var out []string
	for _, p := range t.RepFields {
		out = append(out, p)
	}
	for _, p := range t.VisibleRepFields {
		out = append(out, p)
	}
	for _, m := range t.Fields {
		for _, p := range m {
			out = append(out, p)
		}
	}
	for _, m := range t.VisibleFields {
		for _, p := range m {
			out = append(out, p)
		}
	}
	for _, params := range t.AdditionalParams {
		out = append(out, params...)
	}
	return out
}

// DeviceTemplate is one concrete template instance for a device type: the
// template plus the base channels it repeats at.
type DeviceTemplate struct {
	Template     Template
	BaseChannels []ChannelNo
}

type deviceBinding struct {
	deviceType string // lower-cased registration key
	specs      []DeviceTemplate
}

// TemplateRegistry holds composite templates and their device-type
// bindings. Lookup is exact case-insensitive first, then first-registered
// prefix match; blacklisted device types short-circuit to no template before
// any lookup.
//
// Thread Safety:
//   - Register/Bind/AddBlacklist must complete before concurrent lookups.
type TemplateRegistry struct {
	mu        sync.RWMutex
	bindings  []deviceBinding
	blacklist map[string]struct{}
}

// NewTemplateRegistry constructs an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		blacklist: make(map[string]struct{}),
	}
}

// Bind registers template instances for a device-type key. A key matches a
// device type exactly (case-insensitive) or as a prefix of it.
func (r *TemplateRegistry) Bind(deviceType string, specs ...DeviceTemplate) error {
	for _, spec := range specs {
		if spec.Template.PrimaryChannel < 0 {
			return ErrInvalidTemplate
		}
		if len(spec.Template.RepFields) == 0 &&
			len(spec.Template.VisibleRepFields) == 0 &&
			len(spec.Template.Fields) == 0 &&
			len(spec.Template.VisibleFields) == 0 {
			return ErrInvalidTemplate
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = append(r.bindings, deviceBinding{
		deviceType: strings.ToLower(deviceType),
		specs:      specs,
	})
	return nil
}

// AddBlacklist excludes device types from template resolution entirely.
func (r *TemplateRegistry) AddBlacklist(deviceTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dt := range deviceTypes {
		r.blacklist[strings.ToLower(dt)] = struct{}{}
	}
}

// TemplatesFor resolves the template instances for a device type. The
// second return is false when no binding matches or the type is
// blacklisted.
func (r *TemplateRegistry) TemplatesFor(deviceType string) ([]DeviceTemplate, bool) {
	dt := strings.ToLower(deviceType)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.blacklist[dt]; ok {
		return nil, false
	}

	for _, b := range r.bindings {
		if b.deviceType == dt {
			return b.specs, true
		}
	}
	for _, b := range r.bindings {
		if strings.HasPrefix(dt, b.deviceType) {
			return b.specs, true
		}
	}
	return nil, false
}

// Parameters returns every parameter referenced by any registered template.
// The visibility rules treat these as required so the name-based ignore
// rules cannot starve a composite of its fields.
func (r *TemplateRegistry) Parameters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, b := range r.bindings {
		for _, spec := range b.specs {
			for _, p := range spec.Template.parameters() {
				if _, ok := seen[p]; ok {
					continue
				}
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	return out
}

// DefaultTemplates returns a registry pre-loaded with the common device
// families. Installation-specific devices register additional bindings.
func DefaultTemplates() *TemplateRegistry {
	r := NewTemplateRegistry()

	dimmer := Template{
		Kind:              KindDimmer,
		PrimaryChannel:    1,
		SecondaryChannels: []ChannelNo{2, 3},
		RepFields: map[FieldName]string{
			FieldLevel: "LEVEL",
		},
		Fields: map[ChannelNo]map[FieldName]string{
			1: {FieldChannelLevel: "LEVEL"},
		},
	}

	cover := Template{
		Kind:              KindCover,
		PrimaryChannel:    1,
		SecondaryChannels: []ChannelNo{2, 3},
		RepFields: map[FieldName]string{
			FieldLevel:  "LEVEL",
			FieldLevel2: "LEVEL_2",
			FieldStop:   "STOP",
		},
		Fields: map[ChannelNo]map[FieldName]string{
			1: {
				FieldDirection:     "ACTIVITY_STATE",
				FieldActivityState: "ACTIVITY_STATE",
			},
		},
	}

	thermostat := Template{
		Kind:           KindClimate,
		PrimaryChannel: 1,
		RepFields: map[FieldName]string{
			FieldSetpoint: "SET_POINT_TEMPERATURE",
		},
		VisibleRepFields: map[FieldName]string{
			FieldTemperature: "ACTUAL_TEMPERATURE",
			FieldHumidity:    "HUMIDITY",
		},
		AdditionalParams: map[ChannelNo][]string{
			1: {"ACTIVE_PROFILE", "BOOST_MODE"},
		},
	}

	onOff := Template{
		Kind:              KindSwitch,
		PrimaryChannel:    1,
		SecondaryChannels: []ChannelNo{2, 3},
		RepFields: map[FieldName]string{
			FieldState: "STATE",
		},
	}

	// Registration order matters for prefix lookup; more specific keys
	// first.
	mustBind(r, "HmIP-BDT", DeviceTemplate{Template: dimmer, BaseChannels: []ChannelNo{0}})
	mustBind(r, "HmIP-PDT", DeviceTemplate{Template: dimmer, BaseChannels: []ChannelNo{0}})
	mustBind(r, "HmIP-BROLL", DeviceTemplate{Template: cover, BaseChannels: []ChannelNo{0}})
	mustBind(r, "HmIP-FROLL", DeviceTemplate{Template: cover, BaseChannels: []ChannelNo{0}})
	mustBind(r, "HmIPW-DRBL4", DeviceTemplate{Template: cover, BaseChannels: []ChannelNo{0, 4, 8, 12}})
	mustBind(r, "HmIP-DRBLI4", DeviceTemplate{Template: cover, BaseChannels: []ChannelNo{8, 12, 16, 20}})
	mustBind(r, "HmIP-BWTH", DeviceTemplate{Template: thermostat, BaseChannels: []ChannelNo{0}})
	mustBind(r, "HmIP-WTH", DeviceTemplate{Template: thermostat, BaseChannels: []ChannelNo{0}})
	mustBind(r, "HmIP-eTRV", DeviceTemplate{Template: thermostat, BaseChannels: []ChannelNo{0}})
	mustBind(r, "HmIP-BSM", DeviceTemplate{Template: onOff, BaseChannels: []ChannelNo{0}})
	mustBind(r, "HmIP-PS", DeviceTemplate{Template: onOff, BaseChannels: []ChannelNo{0}})

	// Virtual remotes expose buttons only; composites make no sense there.
	r.AddBlacklist("HM-RCV-50", "HMW-RCV-50", "HmIP-RCV-50")

	return r
}

// mustBind registers a built-in binding. The built-in templates are
// structurally valid by construction.
func mustBind(r *TemplateRegistry, deviceType string, specs ...DeviceTemplate) {
	if err := r.Bind(deviceType, specs...); err != nil {
		panic(err)
	}
}
