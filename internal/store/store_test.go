package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hmccu/homematic-core/internal/entity"
	"github.com/hmccu/homematic-core/internal/infrastructure/database"
	"github.com/hmccu/homematic-core/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "descriptors.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.Files()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return New(db)
}

func coverDevice() (entity.DeviceDescription, Descriptors) {
	desc := entity.DeviceDescription{
		Interface: "HmIP-RF",
		Address:   "VCU0000123",
		Type:      "HmIP-BROLL",
		Firmware:  "1.2.4",
		Children:  []string{"VCU0000123:0", "VCU0000123:1"},
	}
	descriptors := Descriptors{
		0: {
			entity.ParamsetValues: {
				"UNREACH": {
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
					Operations: entity.OpRead | entity.OpWrite | entity.OpEvent,
					Flags:      entity.FlagVisible,
					Min:        0.0,
					Max:        1.0,
					Default:    0.0,
					Unit:       "100%",
				},
				"ACTIVITY_STATE": {
					Type:       entity.TypeEnum,
					Operations: entity.OpRead | entity.OpEvent,
					Flags:      entity.FlagVisible,
					ValueList:  []string{"UNKNOWN", "UP", "DOWN", "STABLE"},
				},
			},
			entity.ParamsetMaster: {
				"CHANNEL_OPERATION_MODE": {
					Type:       entity.TypeEnum,
					Operations: entity.OpRead,
					ValueList:  []string{"DISABLED", "SHUTTER"},
				},
			},
		},
	}
	return desc, descriptors
}

func TestStore_SaveAndLoadDevice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	desc, descriptors := coverDevice()
	if err := s.SaveDevice(ctx, desc, descriptors); err != nil {
		t.Fatalf("SaveDevice() error = %v", err)
	}

	got, err := s.Device(ctx, "VCU0000123")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}

	if got.Description.Type != "HmIP-BROLL" || got.Description.Interface != "HmIP-RF" {
		t.Errorf("description = %+v", got.Description)
	}
	if len(got.Description.Children) != 2 {
		t.Errorf("children = %v, want 2 entries", got.Description.Children)
	}

	level, ok := got.Descriptors[1][entity.ParamsetValues]["LEVEL"]
	if !ok {
		t.Fatal("expected LEVEL descriptor")
	}
	if level.Type != entity.TypeFloat || !level.Operations.Writable() {
		t.Errorf("LEVEL descriptor = %+v", level)
	}
	if level.Unit != "100%" {
		t.Errorf("unit = %q, want 100%%", level.Unit)
	}
	if level.Max != 1.0 {
		t.Errorf("max = %v, want 1.0", level.Max)
	}

	activity := got.Descriptors[1][entity.ParamsetValues]["ACTIVITY_STATE"]
	if len(activity.ValueList) != 4 || activity.ValueList[1] != "UP" {
		t.Errorf("value list = %v", activity.ValueList)
	}

	if _, ok := got.Descriptors[1][entity.ParamsetMaster]["CHANNEL_OPERATION_MODE"]; !ok {
		t.Error("expected MASTER descriptor preserved")
	}
}

func TestStore_SaveReplacesDescriptors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	desc, descriptors := coverDevice()
	if err := s.SaveDevice(ctx, desc, descriptors); err != nil {
		t.Fatalf("SaveDevice() error = %v", err)
	}

	// Second save with a trimmed descriptor set replaces the old rows.
	trimmed := Descriptors{
		1: {
			entity.ParamsetValues: {
				"LEVEL": descriptors[1][entity.ParamsetValues]["LEVEL"],
			},
		},
	}
	desc.Firmware = "1.2.5"
	if err := s.SaveDevice(ctx, desc, trimmed); err != nil {
		t.Fatalf("second SaveDevice() error = %v", err)
	}

	got, err := s.Device(ctx, "VCU0000123")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if got.Description.Firmware != "1.2.5" {
		t.Errorf("firmware = %q, want 1.2.5", got.Description.Firmware)
	}
	if _, ok := got.Descriptors[0]; ok {
		t.Error("expected channel 0 descriptors dropped on replace")
	}
	if _, ok := got.Descriptors[1][entity.ParamsetValues]["ACTIVITY_STATE"]; ok {
		t.Error("expected ACTIVITY_STATE dropped on replace")
	}
}

func TestStore_Devices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	desc, descriptors := coverDevice()
	if err := s.SaveDevice(ctx, desc, descriptors); err != nil {
		t.Fatal(err)
	}

	other := entity.DeviceDescription{
		Interface: "HmIP-RF",
		Address:   "VCU0000045",
		Type:      "HmIP-BSM",
	}
	if err := s.SaveDevice(ctx, other, nil); err != nil {
		t.Fatal(err)
	}

	devices, err := s.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Devices() = %d entries, want 2", len(devices))
	}
	if devices[0].Description.Address != "VCU0000045" {
		t.Errorf("order = %s first, want VCU0000045", devices[0].Description.Address)
	}
	if len(devices[1].Descriptors) == 0 {
		t.Error("expected descriptors loaded for each device")
	}
}

func TestStore_DeleteDevice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	desc, descriptors := coverDevice()
	if err := s.SaveDevice(ctx, desc, descriptors); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteDevice(ctx, "VCU0000123"); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if _, err := s.Device(ctx, "VCU0000123"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Device() error = %v, want ErrNotFound", err)
	}

	// Unknown addresses are a no-op.
	if err := s.DeleteDevice(ctx, "VCU9999999"); err != nil {
		t.Errorf("DeleteDevice() error = %v for unknown address", err)
	}
}

func TestStore_DeviceNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Device(context.Background(), "VCU0000123")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Device() error = %v, want ErrNotFound", err)
	}
}
