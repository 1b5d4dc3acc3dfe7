package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hmccu/homematic-core/internal/entity"
	"github.com/hmccu/homematic-core/internal/infrastructure/database"
)

// Descriptors maps channel to paramset key to parameter name to its
// descriptor, mirroring how the backend reports paramset descriptions.
type Descriptors map[entity.ChannelNo]map[entity.ParamsetKey]map[string]entity.ParameterDescriptor

// StoredDevice is one persisted device with all its descriptors.
type StoredDevice struct {
	Description entity.DeviceDescription
	Descriptors Descriptors
}

// Store is the SQLite-backed descriptor repository.
//
// Thread Safety:
//   - All methods are safe for concurrent use; the underlying connection
//     pool serialises writers.
type Store struct {
	db *database.DB

	// now is swappable for tests.
	now func() time.Time
}

// New constructs a Store over an open database. The schema must already be
// migrated.
func New(db *database.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SaveDevice persists a device description together with its descriptors,
// replacing any previous rows for the same address.
//
// Parameters:
//   - ctx: context for timeout/cancellation.
//   - desc: the device description.
//   - descriptors: all paramset descriptions of the device.
//
// Returns:
//   - error: if the transaction fails; nothing is written in that case.
func (s *Store) SaveDevice(ctx context.Context, desc entity.DeviceDescription, descriptors Descriptors) error {
	children, err := json.Marshal(desc.Children)
	if err != nil {
		return fmt.Errorf("store: encoding children: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO devices (address, interface_id, device_type, firmware, children, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			interface_id = excluded.interface_id,
			device_type  = excluded.device_type,
			firmware     = excluded.firmware,
			children     = excluded.children,
			updated_at   = excluded.updated_at
	`,
		desc.Address, desc.Interface, desc.Type, desc.Firmware,
		string(children), s.now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("store: upserting device %s: %w", desc.Address, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM parameter_descriptors WHERE device_address = ?", desc.Address,
	); err != nil {
		return fmt.Errorf("store: clearing descriptors for %s: %w", desc.Address, err)
	}

	for channel, paramsets := range descriptors {
		for paramsetKey, params := range paramsets {
			for parameter, pd := range params {
				if err := insertDescriptor(ctx, tx, desc.Address, channel, paramsetKey, parameter, pd); err != nil {
					return err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing device %s: %w", desc.Address, err)
	}
	return nil
}

// insertDescriptor writes one parameter descriptor row.
func insertDescriptor(ctx context.Context, tx *sql.Tx, address string, channel entity.ChannelNo, paramsetKey entity.ParamsetKey, parameter string, pd entity.ParameterDescriptor) error {
	valueList, err := encodeNullable(pd.ValueList)
	if err != nil {
		return fmt.Errorf("store: encoding value list for %s/%s: %w", address, parameter, err)
	}
	minValue, err := encodeNullable(pd.Min)
	if err != nil {
		return fmt.Errorf("store: encoding min for %s/%s: %w", address, parameter, err)
	}
	maxValue, err := encodeNullable(pd.Max)
	if err != nil {
		return fmt.Errorf("store: encoding max for %s/%s: %w", address, parameter, err)
	}
	defaultValue, err := encodeNullable(pd.Default)
	if err != nil {
		return fmt.Errorf("store: encoding default for %s/%s: %w", address, parameter, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO parameter_descriptors
			(device_address, channel, paramset_key, parameter,
			 type, operations, flags, value_list, min_value, max_value, default_value, unit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		address, int(channel), string(paramsetKey), parameter,
		string(pd.Type), int(pd.Operations), int(pd.Flags),
		valueList, minValue, maxValue, defaultValue, pd.Unit,
	); err != nil {
		return fmt.Errorf("store: inserting descriptor %s:%d/%s/%s: %w",
			address, channel, paramsetKey, parameter, err)
	}
	return nil
}

// Device loads one persisted device by address.
//
// Returns:
//   - StoredDevice: description plus all descriptors.
//   - error: ErrNotFound when the address is unknown.
func (s *Store) Device(ctx context.Context, address string) (StoredDevice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, interface_id, device_type, firmware, children
		FROM devices WHERE address = ?
	`, address)

	device, err := scanDevice(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredDevice{}, fmt.Errorf("%w: %s", ErrNotFound, address)
		}
		return StoredDevice{}, err
	}

	descriptors, err := s.loadDescriptors(ctx, address)
	if err != nil {
		return StoredDevice{}, err
	}
	device.Descriptors = descriptors
	return device, nil
}

// Devices loads every persisted device with its descriptors, ordered by
// address.
func (s *Store) Devices(ctx context.Context) ([]StoredDevice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, interface_id, device_type, firmware, children
		FROM devices ORDER BY address
	`)
	if err != nil {
		return nil, fmt.Errorf("store: querying devices: %w", err)
	}
	defer rows.Close()

	var devices []StoredDevice
	for rows.Next() {
		device, err := scanDevice(rows.Scan)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating devices: %w", err)
	}

	for i := range devices {
		descriptors, err := s.loadDescriptors(ctx, devices[i].Description.Address)
		if err != nil {
			return nil, err
		}
		devices[i].Descriptors = descriptors
	}
	return devices, nil
}

// DeleteDevice removes a device and, through the foreign key cascade, all
// its descriptor rows. Deleting an unknown address is a no-op.
func (s *Store) DeleteDevice(ctx context.Context, address string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM devices WHERE address = ?", address,
	); err != nil {
		return fmt.Errorf("store: deleting device %s: %w", address, err)
	}
	return nil
}

// scanDevice decodes one devices row via the given scan function.
func scanDevice(scan func(dest ...any) error) (StoredDevice, error) {
	var (
		device   StoredDevice
		children string
	)
	if err := scan(
		&device.Description.Address,
		&device.Description.Interface,
		&device.Description.Type,
		&device.Description.Firmware,
		&children,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredDevice{}, err
		}
		return StoredDevice{}, fmt.Errorf("store: scanning device row: %w", err)
	}
	if err := json.Unmarshal([]byte(children), &device.Description.Children); err != nil {
		return StoredDevice{}, fmt.Errorf("store: decoding children for %s: %w", device.Description.Address, err)
	}
	return device, nil
}

// loadDescriptors reads all descriptor rows of one device.
func (s *Store) loadDescriptors(ctx context.Context, address string) (Descriptors, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, paramset_key, parameter,
		       type, operations, flags, value_list, min_value, max_value, default_value, unit
		FROM parameter_descriptors WHERE device_address = ?
	`, address)
	if err != nil {
		return nil, fmt.Errorf("store: querying descriptors for %s: %w", address, err)
	}
	defer rows.Close()

	descriptors := make(Descriptors)
	for rows.Next() {
		var (
			channel     int
			paramsetKey string
			parameter   string
			pdType      string
			operations  int
			flags       int
			valueList   sql.NullString
			minValue    sql.NullString
			maxValue    sql.NullString
			defValue    sql.NullString
			unit        string
		)
		if err := rows.Scan(&channel, &paramsetKey, &parameter,
			&pdType, &operations, &flags, &valueList, &minValue, &maxValue, &defValue, &unit,
		); err != nil {
			return nil, fmt.Errorf("store: scanning descriptor row: %w", err)
		}

		pd := entity.ParameterDescriptor{
			Type:       entity.ParameterType(pdType),
			Operations: entity.Operations(operations),
			Flags:      entity.Flags(flags),
			Unit:       unit,
		}
		if err := decodeNullable(valueList, &pd.ValueList); err != nil {
			return nil, fmt.Errorf("store: decoding value list for %s/%s: %w", address, parameter, err)
		}
		if err := decodeNullable(minValue, &pd.Min); err != nil {
			return nil, fmt.Errorf("store: decoding min for %s/%s: %w", address, parameter, err)
		}
		if err := decodeNullable(maxValue, &pd.Max); err != nil {
			return nil, fmt.Errorf("store: decoding max for %s/%s: %w", address, parameter, err)
		}
		if err := decodeNullable(defValue, &pd.Default); err != nil {
			return nil, fmt.Errorf("store: decoding default for %s/%s: %w", address, parameter, err)
		}

		ch := entity.ChannelNo(channel)
		key := entity.ParamsetKey(paramsetKey)
		if descriptors[ch] == nil {
			descriptors[ch] = make(map[entity.ParamsetKey]map[string]entity.ParameterDescriptor)
		}
		if descriptors[ch][key] == nil {
			descriptors[ch][key] = make(map[string]entity.ParameterDescriptor)
		}
		descriptors[ch][key][parameter] = pd
	}
	return descriptors, rows.Err()
}

// encodeNullable marshals a value to JSON, mapping nil (and nil slices) to
// SQL NULL.
func encodeNullable(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if list, ok := v.([]string); ok && list == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeNullable unmarshals a JSON column into dest, leaving dest untouched
// for SQL NULL.
func decodeNullable(ns sql.NullString, dest any) error {
	if !ns.Valid {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dest)
}
