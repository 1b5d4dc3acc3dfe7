package entity

// Materializer drives the per-device resolution pass: generic entities and
// event records first, then composites from templates with field binding and
// usage retagging.
//
// The pass is pure, synchronous bookkeeping and idempotent: materializing
// the same device twice produces an identical entity set.
type Materializer struct {
	instanceID string
	visibility *Visibility
	templates  *TemplateRegistry
	classifier *Classifier
	log        Logger
}

// NewMaterializer constructs a Materializer.
func NewMaterializer(instanceID string, visibility *Visibility, templates *TemplateRegistry, classifier *Classifier, log Logger) *Materializer {
	if log == nil {
		log = noopLogger{}
	}
	return &Materializer{
		instanceID: instanceID,
		visibility: visibility,
		templates:  templates,
		classifier: classifier,
		log:        log,
	}
}

// Materialize resolves all entities for a device. Resolution gaps degrade
// to "no composite" or an absent field, never to a failure; partial and
// unknown device variants still yield best-effort generic entities.
func (m *Materializer) Materialize(d *Device) {
	m.materializeGeneric(d)
	m.materializeComposites(d)
}

func (m *Materializer) materializeGeneric(d *Device) {
	for _, channel := range d.Channels() {
		for _, paramset := range d.Paramsets(channel) {
			if !m.visibility.IsRelevantParamset(d.Type, paramset, channel) {
				continue
			}
			for _, parameter := range d.Parameters(channel, paramset) {
				pd, ok := d.Descriptor(channel, paramset, parameter)
				if !ok {
					continue
				}
				m.materializeParameter(d, channel, paramset, parameter, pd)
			}
		}
	}
}

func (m *Materializer) materializeParameter(d *Device, channel ChannelNo, paramset ParamsetKey, parameter string, pd ParameterDescriptor) {
	if m.visibility.IsIgnored(d.Type, channel, paramset, parameter) {
		return
	}

	unIgnored := m.visibility.IsUnIgnored(d.Type, channel, paramset, parameter)
	if !pd.Operations.Writable() && !pd.Operations.Eventing() && !unIgnored {
		return
	}
	if pd.Flags.Internal() && !unIgnored {
		if _, allowed := AllowedInternalParameters[parameter]; !allowed {
			return
		}
	}

	channelAddress := ChannelAddress(d.Address, channel)
	uid := UniqueID(m.instanceID, channelAddress, parameter)

	cls := m.classifier.Classify(d.Type, parameter, pd)
	if cls.IsEvent() {
		// Events never fall through to entity creation.
		d.addRecord(&Record{
			UniqueID:       uid,
			DeviceAddress:  d.Address,
			DeviceType:     d.Type,
			Channel:        channel,
			ChannelAddress: channelAddress,
			ParamsetKey:    paramset,
			Parameter:      parameter,
			Usage:          UsageEvent,
			EventType:      cls.Event,
			Descriptor:     pd,
		})
		return
	}

	usage := UsagePlain
	if m.visibility.IsHidden(d.Type, channel, paramset, parameter) {
		usage = UsageHidden
	}

	rec := &Record{
		UniqueID:       uid,
		DeviceAddress:  d.Address,
		DeviceType:     d.Type,
		Channel:        channel,
		ChannelAddress: channelAddress,
		ParamsetKey:    paramset,
		Parameter:      parameter,
		Kind:           cls.Kind,
		Usage:          usage,
		Descriptor:     pd,
	}
	if !d.addRecord(rec) {
		return
	}

	// A rebind override yields a second record sharing the value source;
	// the original stays registered but suppressed.
	if kind, ok := m.classifier.Override(d.Type, parameter); ok && kind != cls.Kind {
		wrapper := &Record{
			UniqueID:       uid + "_" + string(kind),
			DeviceAddress:  d.Address,
			DeviceType:     d.Type,
			Channel:        channel,
			ChannelAddress: channelAddress,
			ParamsetKey:    paramset,
			Parameter:      parameter,
			Kind:           kind,
			Usage:          usage,
			Descriptor:     pd,
			Wraps:          uid,
		}
		if d.addRecord(wrapper) {
			d.setUsage(rec, UsageNoCreate)
		}
	}
}

func (m *Materializer) materializeComposites(d *Device) {
	specs, ok := m.templates.TemplatesFor(d.Type)
	if !ok {
		return
	}

	for _, spec := range specs {
		for _, base := range spec.BaseChannels {
			m.materializeComposite(d, spec.Template.Rebase(base))
		}
	}
}

func (m *Materializer) materializeComposite(d *Device, t Template) {
	fields := make(map[FieldRef]*Record)

	bind := func(channel ChannelNo, field FieldName, parameter string, usage Usage) {
		rec, ok := d.RecordAt(channel, ParamsetValues, parameter)
		if !ok || rec.IsEvent() {
			// Missing match: the field stays absent, never a failure.
			return
		}
		fields[FieldRef{Channel: channel, Field: field}] = rec
		d.setUsage(rec, usage)
	}

	for _, channel := range t.MemberChannels() {
		role := UsageCompositeSecondary
		if channel == t.PrimaryChannel {
			role = UsageCompositePrimary
		}
		for field, parameter := range t.RepFields {
			bind(channel, field, parameter, role)
		}
		for field, parameter := range t.VisibleRepFields {
			bind(channel, field, parameter, UsageCompositeVisible)
		}
	}

	for channel, fieldMap := range t.Fields {
		role := UsageCompositeSecondary
		if channel == t.PrimaryChannel {
			role = UsageCompositePrimary
		}
		for field, parameter := range fieldMap {
			bind(channel, field, parameter, role)
		}
	}
	for channel, fieldMap := range t.VisibleFields {
		for field, parameter := range fieldMap {
			bind(channel, field, parameter, UsageCompositeVisible)
		}
	}

	// Additional parameters surface as plain entities alongside the
	// composite instead of staying suppressed.
	for channel, parameters := range t.AdditionalParams {
		for _, parameter := range parameters {
			if rec, ok := d.RecordAt(channel, ParamsetValues, parameter); ok && !rec.IsEvent() {
				d.setUsage(rec, UsagePlain)
			}
		}
	}

	if len(fields) == 0 {
		m.log.Debug("discarding composite with no bound fields",
			"device", d.Address, "type", d.Type, "kind", t.Kind, "channel", t.PrimaryChannel)
		return
	}

	uid := UniqueID(m.instanceID, ChannelAddress(d.Address, t.PrimaryChannel), string(t.Kind))
	d.addComposite(&Composite{
		UniqueID:       uid,
		DeviceAddress:  d.Address,
		DeviceType:     d.Type,
		Kind:           t.Kind,
		PrimaryChannel: t.PrimaryChannel,
		fields:         fields,
	})
}
