package entity

import "testing"

func newTestMaterializer(overrides []KindOverride) *Materializer {
	templates := DefaultTemplates()
	rules := DefaultRules()
	rules.RequireParameters(templates.Parameters()...)
	if overrides == nil {
		overrides = DefaultKindOverrides()
	}
	return NewMaterializer("test", NewVisibility(rules, nil), templates, NewClassifier(overrides), nil)
}

// newCoverDevice builds a shutter actuator with the usual channel layout:
// availability markers on channel 0, the working channel 1 and two virtual
// channels mirroring LEVEL.
func newCoverDevice() *Device {
	d := NewDevice(DeviceDescription{
		Interface: "BidCos-RF",
		Address:   "VCU0000123",
		Type:      "HmIP-BROLL",
	})

	availability := map[string]ParameterDescriptor{
		ParamUnreach:       {Type: TypeBool, Operations: OpRead | OpEvent},
		ParamConfigPending: {Type: TypeBool, Operations: OpRead | OpEvent},
		ParamLowBat:        {Type: TypeBool, Operations: OpRead | OpEvent},
	}
	d.SetParamset(0, ParamsetValues, availability)

	d.SetParamset(1, ParamsetValues, map[string]ParameterDescriptor{
		"LEVEL":   {Type: TypeFloat, Operations: OpRead | OpWrite | OpEvent},
		"LEVEL_2": {Type: TypeFloat, Operations: OpRead | OpWrite | OpEvent},
		"STOP":    {Type: TypeAction, Operations: OpWrite},
		"ACTIVITY_STATE": {
			Type:       TypeEnum,
			Operations: OpRead | OpEvent,
			ValueList:  []string{"UNKNOWN", "UP", "DOWN", "STABLE"},
		},
	})
	d.SetParamset(2, ParamsetValues, map[string]ParameterDescriptor{
		"LEVEL": {Type: TypeFloat, Operations: OpRead | OpWrite | OpEvent},
	})
	d.SetParamset(3, ParamsetValues, map[string]ParameterDescriptor{
		"LEVEL": {Type: TypeFloat, Operations: OpRead | OpWrite | OpEvent},
	})

	return d
}

func TestMaterializer_GenericEntities(t *testing.T) {
	m := newTestMaterializer(nil)
	d := newCoverDevice()

	m.Materialize(d)

	records := d.Records()
	if len(records) != 9 {
		t.Fatalf("record count = %d, want 9", len(records))
	}

	unreach, ok := d.RecordAt(0, ParamsetValues, ParamUnreach)
	if !ok {
		t.Fatal("expected UNREACH record")
	}
	if unreach.Kind != KindBinarySensor {
		t.Errorf("UNREACH kind = %q, want binary_sensor", unreach.Kind)
	}
	if unreach.Usage != UsageHidden {
		t.Errorf("UNREACH usage = %q, want hidden", unreach.Usage)
	}

	lowbat, ok := d.RecordAt(0, ParamsetValues, ParamLowBat)
	if !ok {
		t.Fatal("expected LOWBAT record on channel 0")
	}
	if lowbat.Usage != UsagePlain {
		t.Errorf("LOWBAT usage = %q, want plain", lowbat.Usage)
	}

	if _, ok := d.Record("test_vcu0000123_1_level"); ok {
		t.Error("physical device identities must not carry the instance prefix")
	}
	if _, ok := d.Record("vcu0000123_1_level"); !ok {
		t.Error("expected vcu0000123_1_level identity")
	}
}

func TestMaterializer_Idempotent(t *testing.T) {
	m := newTestMaterializer(nil)
	d := newCoverDevice()

	m.Materialize(d)

	firstRecords := d.Records()
	firstComposites := d.Composites()

	m.Materialize(d)

	secondRecords := d.Records()
	if len(secondRecords) != len(firstRecords) {
		t.Fatalf("record count changed: %d -> %d", len(firstRecords), len(secondRecords))
	}
	for i := range firstRecords {
		if firstRecords[i].UniqueID != secondRecords[i].UniqueID {
			t.Errorf("identity %d changed: %q -> %q", i, firstRecords[i].UniqueID, secondRecords[i].UniqueID)
		}
		if firstRecords[i] != secondRecords[i] {
			t.Errorf("record %q was replaced, not reused", firstRecords[i].UniqueID)
		}
	}

	secondComposites := d.Composites()
	if len(secondComposites) != len(firstComposites) {
		t.Fatalf("composite count changed: %d -> %d", len(firstComposites), len(secondComposites))
	}
	for i := range firstComposites {
		if firstComposites[i].UniqueID != secondComposites[i].UniqueID {
			t.Errorf("composite identity changed: %q -> %q", firstComposites[i].UniqueID, secondComposites[i].UniqueID)
		}
	}
}

func TestMaterializer_CompositeBinding(t *testing.T) {
	m := newTestMaterializer(nil)
	d := newCoverDevice()

	m.Materialize(d)

	composites := d.Composites()
	if len(composites) != 1 {
		t.Fatalf("composite count = %d, want 1", len(composites))
	}

	c := composites[0]
	if c.Kind != KindCover {
		t.Errorf("kind = %q, want cover", c.Kind)
	}
	if c.PrimaryChannel != 1 {
		t.Errorf("primary channel = %d, want 1", c.PrimaryChannel)
	}
	if c.UniqueID != "vcu0000123_1_cover" {
		t.Errorf("unique id = %q, want vcu0000123_1_cover", c.UniqueID)
	}

	level, ok := c.Field(1, FieldLevel)
	if !ok {
		t.Fatal("expected level field bound on primary channel")
	}
	if level.Usage != UsageCompositePrimary {
		t.Errorf("primary LEVEL usage = %q, want composite_primary", level.Usage)
	}

	mirror, ok := c.Field(2, FieldLevel)
	if !ok {
		t.Fatal("expected level field bound on secondary channel")
	}
	if mirror.Usage != UsageCompositeSecondary {
		t.Errorf("secondary LEVEL usage = %q, want composite_secondary", mirror.Usage)
	}

	if _, ok := c.Field(1, FieldHumidity); ok {
		t.Error("unbound field must be absent, not a stand-in record")
	}

	direction, ok := c.Field(1, FieldDirection)
	if !ok {
		t.Fatal("expected direction field from fixed field map")
	}
	if direction.Parameter != "ACTIVITY_STATE" {
		t.Errorf("direction parameter = %q, want ACTIVITY_STATE", direction.Parameter)
	}
}

func TestMaterializer_EmptyCompositeDiscarded(t *testing.T) {
	m := newTestMaterializer(nil)
	d := NewDevice(DeviceDescription{Address: "VCU0000200", Type: "HmIP-BDT"})
	d.SetParamset(0, ParamsetValues, map[string]ParameterDescriptor{
		ParamUnreach: {Type: TypeBool, Operations: OpRead | OpEvent},
	})

	m.Materialize(d)

	if got := len(d.Composites()); got != 0 {
		t.Errorf("composite count = %d, want 0 (no bound fields)", got)
	}
}

func TestMaterializer_EventNeverStateful(t *testing.T) {
	m := newTestMaterializer(nil)
	d := NewDevice(DeviceDescription{Address: "VCU0000300", Type: "HmIP-WRC2"})
	d.SetParamset(1, ParamsetValues, map[string]ParameterDescriptor{
		"PRESS_SHORT": {Type: TypeAction, Operations: OpWrite | OpEvent},
		"PRESS_LONG":  {Type: TypeAction, Operations: OpWrite | OpEvent},
	})

	m.Materialize(d)

	records := d.Records()
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}
	for _, r := range records {
		if !r.IsEvent() {
			t.Errorf("%q: expected event record, got usage %q kind %q", r.UniqueID, r.Usage, r.Kind)
		}
		if r.EventType != EventKeypress {
			t.Errorf("%q: event type = %q, want keypress", r.UniqueID, r.EventType)
		}
	}

	if events := d.Events(); len(events) != 2 {
		t.Errorf("Events() = %d records, want 2", len(events))
	}
}

func TestMaterializer_MasterParameters(t *testing.T) {
	m := newTestMaterializer(nil)
	d := NewDevice(DeviceDescription{Address: "VCU0000400", Type: "HmIPW-DRBL4"})
	d.SetParamset(1, ParamsetMaster, map[string]ParameterDescriptor{
		ParamChannelOpMode:   {Type: TypeEnum, Operations: OpRead, ValueList: []string{"INPUT", "OUTPUT"}},
		"TEMPERATURE_OFFSET": {Type: TypeFloat, Operations: OpRead},
	})
	d.SetParamset(2, ParamsetMaster, map[string]ParameterDescriptor{
		ParamChannelOpMode: {Type: TypeEnum, Operations: OpRead, ValueList: []string{"INPUT", "OUTPUT"}},
	})

	m.Materialize(d)

	opMode, ok := d.RecordAt(1, ParamsetMaster, ParamChannelOpMode)
	if !ok {
		t.Fatal("expected CHANNEL_OPERATION_MODE on registered MASTER channel")
	}
	if opMode.Kind != KindSensor {
		t.Errorf("kind = %q, want sensor", opMode.Kind)
	}

	if _, ok := d.RecordAt(1, ParamsetMaster, "TEMPERATURE_OFFSET"); ok {
		t.Error("unregistered MASTER parameter must not materialize")
	}
	if _, ok := d.RecordAt(2, ParamsetMaster, ParamChannelOpMode); ok {
		t.Error("unregistered MASTER channel must not materialize")
	}
}

func TestMaterializer_KindOverrideCreatesWrapper(t *testing.T) {
	m := newTestMaterializer([]KindOverride{
		{DeviceType: "HM-Test", Parameter: "LEVEL", Kind: KindSensor},
	})
	d := NewDevice(DeviceDescription{Address: "VCU0000500", Type: "HM-Test"})
	d.SetParamset(1, ParamsetValues, map[string]ParameterDescriptor{
		"LEVEL": {Type: TypeFloat, Operations: OpRead | OpWrite | OpEvent},
	})

	m.Materialize(d)

	original, ok := d.Record("vcu0000500_1_level")
	if !ok {
		t.Fatal("expected original record")
	}
	if original.Usage != UsageNoCreate {
		t.Errorf("original usage = %q, want no_create", original.Usage)
	}

	wrapper, ok := d.Record("vcu0000500_1_level_sensor")
	if !ok {
		t.Fatal("expected wrapper record")
	}
	if wrapper.Kind != KindSensor {
		t.Errorf("wrapper kind = %q, want sensor", wrapper.Kind)
	}
	if wrapper.Wraps != original.UniqueID {
		t.Errorf("wrapper.Wraps = %q, want %q", wrapper.Wraps, original.UniqueID)
	}
}

func TestMaterializer_InternalFlagGate(t *testing.T) {
	m := newTestMaterializer(nil)
	d := NewDevice(DeviceDescription{Address: "VCU0000700", Type: "HmIP-DRBLI4"})
	d.SetParamset(1, ParamsetValues, map[string]ParameterDescriptor{
		"DIRECTION": {
			Type:       TypeEnum,
			Operations: OpRead | OpEvent,
			Flags:      FlagInternal,
			ValueList:  []string{"NONE", "UP", "DOWN"},
		},
		"FREQUENCY": {Type: TypeFloat, Operations: OpRead | OpEvent, Flags: FlagInternal},
	})

	m.Materialize(d)

	if _, ok := d.RecordAt(1, ParamsetValues, "DIRECTION"); !ok {
		t.Error("internal DIRECTION is on the allowed list and must materialize")
	}
	if _, ok := d.RecordAt(1, ParamsetValues, "FREQUENCY"); ok {
		t.Error("internal parameter outside the allowed list must not materialize")
	}
}

func TestMaterializer_IgnoredParameterNeverMaterializes(t *testing.T) {
	m := newTestMaterializer(nil)
	d := NewDevice(DeviceDescription{Address: "VCU0000600", Type: "HM-CC-VD"})
	d.SetParamset(0, ParamsetValues, map[string]ParameterDescriptor{
		ParamLowBat: {Type: TypeBool, Operations: OpRead | OpEvent},
	})

	m.Materialize(d)

	if _, ok := d.RecordAt(0, ParamsetValues, ParamLowBat); ok {
		t.Error("device-scoped ignored parameter must not materialize")
	}
}
