package entity

import (
	"sort"
	"sync"
)

// DeviceDescription is the backend's description of one device, as supplied
// by the descriptor source. The core only reads it.
type DeviceDescription struct {
	Interface string
	Address   string
	Type      string
	Firmware  string
	Children  []string
}

type paramRef struct {
	channel   ChannelNo
	paramset  ParamsetKey
	parameter string
}

// Device is the per-device record: the raw parameter descriptors plus every
// entity materialized from them.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Materialization itself is a
//     single synchronous pass, but readers may inspect a device while other
//     devices are being processed.
type Device struct {
	Interface string
	Address   string
	Type      string
	Firmware  string

	mu          sync.RWMutex
	descriptors map[ChannelNo]map[ParamsetKey]map[string]ParameterDescriptor
	records     map[string]*Record
	byParam     map[paramRef]*Record
	composites  map[string]*Composite
}

// NewDevice constructs an empty device record from a backend description.
func NewDevice(desc DeviceDescription) *Device {
	return &Device{
		Interface:   desc.Interface,
		Address:     desc.Address,
		Type:        desc.Type,
		Firmware:    desc.Firmware,
		descriptors: make(map[ChannelNo]map[ParamsetKey]map[string]ParameterDescriptor),
		records:     make(map[string]*Record),
		byParam:     make(map[paramRef]*Record),
		composites:  make(map[string]*Composite),
	}
}

// SetParamset stores the descriptors of one channel paramset. Called while
// loading the device; overwrites any previous content for the same key.
func (d *Device) SetParamset(channel ChannelNo, paramset ParamsetKey, descriptors map[string]ParameterDescriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.descriptors[channel] == nil {
		d.descriptors[channel] = make(map[ParamsetKey]map[string]ParameterDescriptor)
	}
	cpy := make(map[string]ParameterDescriptor, len(descriptors))
	for name, pd := range descriptors {
		cpy[name] = pd
	}
	d.descriptors[channel][paramset] = cpy
}

// Channels returns the known channel numbers in ascending order.
func (d *Device) Channels() []ChannelNo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]ChannelNo, 0, len(d.descriptors))
	for ch := range d.descriptors {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Paramsets returns the paramset keys known for a channel.
func (d *Device) Paramsets(channel ChannelNo) []ParamsetKey {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sets := d.descriptors[channel]
	out := make([]ParamsetKey, 0, len(sets))
	for ps := range sets {
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parameters returns the parameter names of one channel paramset in
// ascending order, so materialization is deterministic.
func (d *Device) Parameters(channel ChannelNo, paramset ParamsetKey) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	params := d.descriptors[channel][paramset]
	out := make([]string, 0, len(params))
	for name := range params {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Descriptor returns the descriptor of one parameter.
func (d *Device) Descriptor(channel ChannelNo, paramset ParamsetKey, parameter string) (ParameterDescriptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	pd, ok := d.descriptors[channel][paramset][parameter]
	return pd, ok
}

// addRecord registers a record under its unique identity. A duplicate
// identity is a no-op, never an error; the return reports whether the
// record was added.
func (d *Device) addRecord(r *Record) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.records[r.UniqueID]; exists {
		return false
	}
	d.records[r.UniqueID] = r
	d.byParam[paramRef{r.Channel, r.ParamsetKey, r.Parameter}] = r
	return true
}

// addComposite registers a composite. Duplicate identities are no-ops.
func (d *Device) addComposite(c *Composite) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.composites[c.UniqueID]; exists {
		return false
	}
	d.composites[c.UniqueID] = c
	return true
}

// Record returns the record with the given unique identity.
func (d *Device) Record(uniqueID string) (*Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.records[uniqueID]
	return r, ok
}

// RecordAt returns the record materialized for one channel parameter.
func (d *Device) RecordAt(channel ChannelNo, paramset ParamsetKey, parameter string) (*Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.byParam[paramRef{channel, paramset, parameter}]
	return r, ok
}

// Records returns all records, events included, in unique-identity order.
func (d *Device) Records() []*Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Record, 0, len(d.records))
	for _, r := range d.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// Events returns the event records only.
func (d *Device) Events() []*Record {
	var out []*Record
	for _, r := range d.Records() {
		if r.IsEvent() {
			out = append(out, r)
		}
	}
	return out
}

// Composites returns all composite entities in unique-identity order.
func (d *Device) Composites() []*Composite {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Composite, 0, len(d.composites))
	for _, c := range d.composites {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// setUsage retags a record. Usage changes only during materialization.
func (d *Device) setUsage(r *Record, usage Usage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r.Usage = usage
}
