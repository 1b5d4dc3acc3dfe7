package central

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hmccu/homematic-core/internal/cache"
	"github.com/hmccu/homematic-core/internal/entity"
	"github.com/hmccu/homematic-core/internal/store"
)

type mockBackend struct {
	mu               sync.Mutex
	values           map[string]any            // "channelAddress.parameter"
	paramsets        map[string]map[string]any // "channelAddress.paramsetKey"
	scriptResult     any
	scriptErr        error
	failGet          bool
	getValueCalls    int
	getParamsetCalls int
	setValueCalls    int
	putParamsetCalls int
	runScriptCalls   int
}

func (b *mockBackend) GetValue(_ context.Context, _, channelAddress, parameter string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.getValueCalls++
	if b.failGet {
		return nil, errors.New("backend down")
	}
	v, ok := b.values[channelAddress+"."+parameter]
	if !ok {
		return nil, fmt.Errorf("no value for %s.%s", channelAddress, parameter)
	}
	return v, nil
}

func (b *mockBackend) SetValue(_ context.Context, _, channelAddress, parameter string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setValueCalls++
	if b.values == nil {
		b.values = make(map[string]any)
	}
	b.values[channelAddress+"."+parameter] = value
	return nil
}

func (b *mockBackend) GetParamset(_ context.Context, _, channelAddress, paramsetKey string) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.getParamsetCalls++
	ps, ok := b.paramsets[channelAddress+"."+paramsetKey]
	if !ok {
		return nil, fmt.Errorf("no paramset %s for %s", paramsetKey, channelAddress)
	}
	return ps, nil
}

func (b *mockBackend) PutParamset(_ context.Context, _, _, _ string, _ map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putParamsetCalls++
	return nil
}

func (b *mockBackend) RunScript(_ context.Context, _ string, _ map[string]string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runScriptCalls++
	return b.scriptResult, b.scriptErr
}

type mockRepo struct {
	mu      sync.Mutex
	saved   map[string]store.StoredDevice
	deleted []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{saved: make(map[string]store.StoredDevice)}
}

func (r *mockRepo) SaveDevice(_ context.Context, desc entity.DeviceDescription, descriptors store.Descriptors) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[desc.Address] = store.StoredDevice{Description: desc, Descriptors: descriptors}
	return nil
}

func (r *mockRepo) Devices(_ context.Context) ([]store.StoredDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var devices []store.StoredDevice
	for _, sd := range r.saved {
		devices = append(devices, sd)
	}
	return devices, nil
}

func (r *mockRepo) DeleteDevice(_ context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.saved, address)
	r.deleted = append(r.deleted, address)
	return nil
}

func coverDescription() (entity.DeviceDescription, store.Descriptors) {
	desc := entity.DeviceDescription{
		Interface: "HmIP-RF",
		Address:   "VCU0000123",
		Type:      "HmIP-BROLL",
		Firmware:  "1.2.4",
	}
	rwEvent := entity.OpRead | entity.OpWrite | entity.OpEvent
	descriptors := store.Descriptors{
		0: {
			entity.ParamsetValues: {
				entity.ParamUnreach: {
					Type:       entity.TypeBool,
					Operations: entity.OpRead | entity.OpEvent,
					Flags:      entity.FlagVisible | entity.FlagService,
				},
			},
		},
		1: {
			entity.ParamsetValues: {
				"LEVEL": {
					Type:       entity.TypeFloat,
					Operations: rwEvent,
					Flags:      entity.FlagVisible,
					Min:        0.0, Max: 1.0,
				},
				"STOP": {
					Type:       entity.TypeAction,
					Operations: entity.OpWrite,
					Flags:      entity.FlagVisible,
				},
			},
		},
	}
	return desc, descriptors
}

func newTestCentral(t *testing.T, backend Backend, repo Repository) *Central {
	t.Helper()

	c, err := New(Options{InstanceID: "inst-1"}, backend, repo, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestCentral_AddDevice(t *testing.T) {
	backend := &mockBackend{values: map[string]any{
		"VCU0000123:0.UNREACH": false,
	}}
	repo := newMockRepo()
	c := newTestCentral(t, backend, repo)

	desc, descriptors := coverDescription()
	device, err := c.AddDevice(context.Background(), desc, descriptors)
	if err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}

	if len(device.Records()) == 0 {
		t.Fatal("expected materialised records")
	}
	if _, ok := device.RecordAt(1, entity.ParamsetValues, "LEVEL"); !ok {
		t.Error("expected LEVEL record")
	}

	if _, ok := repo.saved["VCU0000123"]; !ok {
		t.Error("expected device persisted")
	}
	if backend.getValueCalls != 1 {
		t.Errorf("warm-up getValue calls = %d, want 1 (UNREACH only)", backend.getValueCalls)
	}

	// Adding the same address again fails.
	if _, err := c.AddDevice(context.Background(), desc, descriptors); !errors.Is(err, entity.ErrDeviceExists) {
		t.Errorf("second AddDevice() error = %v, want ErrDeviceExists", err)
	}
}

func TestCentral_WarmUpCoversMasterRecords(t *testing.T) {
	backend := &mockBackend{
		values: map[string]any{"VCU0000500:0.UNREACH": false},
		paramsets: map[string]map[string]any{
			"VCU0000500:1.MASTER": {"CHANNEL_OPERATION_MODE": float64(1)},
		},
	}
	c := newTestCentral(t, backend, nil)

	desc := entity.DeviceDescription{
		Interface: "HmIP-RF",
		Address:   "VCU0000500",
		Type:      "HmIP-DRSI1",
	}
	descriptors := store.Descriptors{
		0: {
			entity.ParamsetValues: {
				entity.ParamUnreach: {
					Type:       entity.TypeBool,
					Operations: entity.OpRead | entity.OpEvent,
					Flags:      entity.FlagVisible | entity.FlagService,
				},
			},
		},
		1: {
			entity.ParamsetMaster: {
				"CHANNEL_OPERATION_MODE": {
					Type:       entity.TypeEnum,
					Operations: entity.OpRead,
					ValueList:  []string{"DISABLED", "SWITCH_ACTUATOR"},
				},
			},
		},
	}

	if _, err := c.AddDevice(context.Background(), desc, descriptors); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if backend.getParamsetCalls != 1 {
		t.Errorf("warm-up getParamset calls = %d, want 1", backend.getParamsetCalls)
	}
}

func TestCentral_Restore(t *testing.T) {
	backend := &mockBackend{}
	repo := newMockRepo()
	desc, descriptors := coverDescription()
	repo.saved[desc.Address] = store.StoredDevice{Description: desc, Descriptors: descriptors}

	c := newTestCentral(t, backend, repo)
	restored, err := c.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored != 1 {
		t.Errorf("restored = %d, want 1", restored)
	}

	if _, ok := c.Device("VCU0000123"); !ok {
		t.Error("expected restored device present")
	}
	if backend.getValueCalls != 0 {
		t.Errorf("backend calls during restore = %d, want 0", backend.getValueCalls)
	}
}

func TestCentral_ValueReadsThroughCache(t *testing.T) {
	backend := &mockBackend{values: map[string]any{
		"VCU0000123:0.UNREACH": false,
		"VCU0000123:1.LEVEL":   0.75,
	}}
	c := newTestCentral(t, backend, nil)

	desc, descriptors := coverDescription()
	if _, err := c.AddDevice(context.Background(), desc, descriptors); err != nil {
		t.Fatal(err)
	}

	before := backend.getValueCalls
	for i := 0; i < 3; i++ {
		v, err := c.Value(context.Background(), "VCU0000123", 1, entity.ParamsetValues, "LEVEL")
		if err != nil {
			t.Fatalf("Value() error = %v", err)
		}
		if v != 0.75 {
			t.Errorf("Value() = %v, want 0.75", v)
		}
	}
	if got := backend.getValueCalls - before; got != 1 {
		t.Errorf("fetches for 3 reads = %d, want 1", got)
	}

	if _, err := c.Value(context.Background(), "VCU9999999", 1, entity.ParamsetValues, "LEVEL"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Value() error = %v, want ErrUnknownDevice", err)
	}
}

func TestCentral_SetValueWritesThrough(t *testing.T) {
	backend := &mockBackend{values: map[string]any{
		"VCU0000123:0.UNREACH": false,
	}}
	c := newTestCentral(t, backend, nil)

	desc, descriptors := coverDescription()
	if _, err := c.AddDevice(context.Background(), desc, descriptors); err != nil {
		t.Fatal(err)
	}

	if err := c.SetValue(context.Background(), "VCU0000123", 1, "LEVEL", 0.25); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if backend.setValueCalls != 1 {
		t.Errorf("setValue calls = %d, want 1", backend.setValueCalls)
	}

	// The accepted value is visible without a fetch.
	before := backend.getValueCalls
	v, err := c.Value(context.Background(), "VCU0000123", 1, entity.ParamsetValues, "LEVEL")
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != 0.25 {
		t.Errorf("Value() = %v, want 0.25", v)
	}
	if backend.getValueCalls != before {
		t.Error("expected no fetch after write-through")
	}
}

func TestCentral_Available(t *testing.T) {
	backend := &mockBackend{values: map[string]any{
		"VCU0000123:0.UNREACH": true,
	}}
	c := newTestCentral(t, backend, nil)

	desc, descriptors := coverDescription()
	if _, err := c.AddDevice(context.Background(), desc, descriptors); err != nil {
		t.Fatal(err)
	}

	if c.Available(context.Background(), "VCU0000123") {
		t.Error("expected unavailable while UNREACH is set")
	}

	// A reachability event flips it back.
	c.ApplyEvent("VCU0000123:0", entity.ParamUnreach, false)
	if !c.Available(context.Background(), "VCU0000123") {
		t.Error("expected available after UNREACH cleared")
	}

	if c.Available(context.Background(), "VCU9999999") {
		t.Error("unknown devices are not available")
	}
}

func TestCentral_AvailableWhenStateUnknown(t *testing.T) {
	backend := &mockBackend{failGet: true}
	c := newTestCentral(t, backend, nil)

	desc, descriptors := coverDescription()
	if _, err := c.AddDevice(context.Background(), desc, descriptors); err != nil {
		t.Fatal(err)
	}

	if !c.Available(context.Background(), "VCU0000123") {
		t.Error("unknown reachability counts as available")
	}
}

func TestCentral_ApplyEvent(t *testing.T) {
	backend := &mockBackend{values: map[string]any{
		"VCU0000123:0.UNREACH": false,
	}}
	c := newTestCentral(t, backend, nil)

	desc, descriptors := coverDescription()
	if _, err := c.AddDevice(context.Background(), desc, descriptors); err != nil {
		t.Fatal(err)
	}

	record, ok := c.ApplyEvent("VCU0000123:1", "LEVEL", 0.5)
	if !ok {
		t.Fatal("expected event applied")
	}
	if record == nil || record.Parameter != "LEVEL" {
		t.Errorf("record = %+v, want LEVEL record", record)
	}

	before := backend.getValueCalls
	v, err := c.Value(context.Background(), "VCU0000123", 1, entity.ParamsetValues, "LEVEL")
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != 0.5 || backend.getValueCalls != before {
		t.Errorf("Value() = %v (fetches %d), want 0.5 from cache", v, backend.getValueCalls-before)
	}

	if _, ok := c.ApplyEvent("VCU9999999:1", "LEVEL", 0.5); ok {
		t.Error("expected unknown device event rejected")
	}
}

func TestCentral_LoadAllDeviceData(t *testing.T) {
	backend := &mockBackend{
		values:       map[string]any{"VCU0000123:0.UNREACH": false},
		scriptResult: `{"VCU0000123:1.LEVEL": 0.9}`,
	}
	c := newTestCentral(t, backend, nil)

	desc, descriptors := coverDescription()
	if _, err := c.AddDevice(context.Background(), desc, descriptors); err != nil {
		t.Fatal(err)
	}

	loaded, err := c.LoadAllDeviceData(context.Background(), "HmIP-RF")
	if err != nil {
		t.Fatalf("LoadAllDeviceData() error = %v", err)
	}
	if loaded != 1 {
		t.Errorf("loaded = %d, want 1", loaded)
	}

	// The bulk-loaded tier serves the read without a fetch.
	before := backend.getValueCalls
	v, err := c.Value(context.Background(), "VCU0000123", 1, entity.ParamsetValues, "LEVEL")
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != 0.9 || backend.getValueCalls != before {
		t.Errorf("Value() = %v (fetches %d), want 0.9 from shared tier", v, backend.getValueCalls-before)
	}
}

func TestCentral_LoadAllDeviceDataBadResult(t *testing.T) {
	backend := &mockBackend{scriptResult: 42.0}
	c := newTestCentral(t, backend, nil)

	if _, err := c.LoadAllDeviceData(context.Background(), "HmIP-RF"); !errors.Is(err, ErrBadScriptResult) {
		t.Errorf("LoadAllDeviceData() error = %v, want ErrBadScriptResult", err)
	}
}

func TestCentral_RemoveDevice(t *testing.T) {
	backend := &mockBackend{values: map[string]any{
		"VCU0000123:0.UNREACH": false,
	}}
	repo := newMockRepo()
	c := newTestCentral(t, backend, repo)

	desc, descriptors := coverDescription()
	if _, err := c.AddDevice(context.Background(), desc, descriptors); err != nil {
		t.Fatal(err)
	}

	if err := c.RemoveDevice(context.Background(), "VCU0000123"); err != nil {
		t.Fatalf("RemoveDevice() error = %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "VCU0000123" {
		t.Errorf("deleted = %v, want [VCU0000123]", repo.deleted)
	}
	if _, err := c.Value(context.Background(), "VCU0000123", 1, entity.ParamsetValues, "LEVEL"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Value() error = %v after removal, want ErrUnknownDevice", err)
	}

	// Removing an unknown address is a no-op.
	if err := c.RemoveDevice(context.Background(), "VCU9999999"); err != nil {
		t.Errorf("RemoveDevice() error = %v for unknown address", err)
	}
}

func TestCentral_ValueUnavailableSurfacesSentinel(t *testing.T) {
	backend := &mockBackend{values: map[string]any{
		"VCU0000123:0.UNREACH": false,
	}}
	c := newTestCentral(t, backend, nil)

	desc, descriptors := coverDescription()
	if _, err := c.AddDevice(context.Background(), desc, descriptors); err != nil {
		t.Fatal(err)
	}

	backend.failGet = true
	_, err := c.Value(context.Background(), "VCU0000123", 1, entity.ParamsetValues, "LEVEL")
	if !errors.Is(err, cache.ErrUnavailable) {
		t.Errorf("Value() error = %v, want cache.ErrUnavailable", err)
	}
}

func TestCentral_OnUpdateObservesWritesAndEvents(t *testing.T) {
	backend := &mockBackend{values: map[string]any{
		"VCU0000123:0.UNREACH": false,
	}}
	c := newTestCentral(t, backend, nil)

	desc, descriptors := coverDescription()
	if _, err := c.AddDevice(context.Background(), desc, descriptors); err != nil {
		t.Fatal(err)
	}

	type update struct {
		uniqueID string
		value    any
	}
	var updates []update
	c.OnUpdate(func(record *entity.Record, value any) {
		updates = append(updates, update{record.UniqueID, value})
	})

	if err := c.SetValue(context.Background(), "VCU0000123", 1, "LEVEL", 0.5); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if len(updates) != 1 || updates[0].value != 0.5 {
		t.Fatalf("updates after SetValue = %v, want one with 0.5", updates)
	}

	if _, ok := c.ApplyEvent("VCU0000123:1", "LEVEL", 0.75); !ok {
		t.Fatal("ApplyEvent() rejected a managed device")
	}
	if len(updates) != 2 || updates[1].value != 0.75 {
		t.Fatalf("updates after ApplyEvent = %v, want two", updates)
	}
	if updates[0].uniqueID != updates[1].uniqueID {
		t.Errorf("updates target different entities: %q vs %q", updates[0].uniqueID, updates[1].uniqueID)
	}

	// Cached reads do not notify.
	if _, err := c.Value(context.Background(), "VCU0000123", 1, entity.ParamsetValues, "LEVEL"); err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if len(updates) != 2 {
		t.Errorf("updates after read = %d, want 2", len(updates))
	}
}
