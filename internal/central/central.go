package central

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hmccu/homematic-core/internal/cache"
	"github.com/hmccu/homematic-core/internal/entity"
	"github.com/hmccu/homematic-core/internal/store"
)

// fetchAllScript is the backend script that dumps every known value of an
// interface as JSON.
const fetchAllScript = "fetch_all_device_data"

// Backend is the authenticated session surface the central depends on.
// *rpc.SessionManager satisfies it.
type Backend interface {
	GetValue(ctx context.Context, interfaceID, channelAddress, parameter string) (any, error)
	SetValue(ctx context.Context, interfaceID, channelAddress, parameter string, value any) error
	GetParamset(ctx context.Context, interfaceID, channelAddress, paramsetKey string) (map[string]any, error)
	PutParamset(ctx context.Context, interfaceID, channelAddress, paramsetKey string, values map[string]any) error
	RunScript(ctx context.Context, name string, args map[string]string) (any, error)
}

// Repository persists device descriptions and descriptors between runs.
// *store.Store satisfies it. A nil repository disables persistence.
type Repository interface {
	SaveDevice(ctx context.Context, desc entity.DeviceDescription, descriptors store.Descriptors) error
	Devices(ctx context.Context) ([]store.StoredDevice, error)
	DeleteDevice(ctx context.Context, address string) error
}

// Logger is the minimal logging interface this package depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Central.
type Options struct {
	// InstanceID prefixes identities of virtual and internal devices.
	InstanceID string

	// MaxAge is the staleness bound for cached reads. Zero selects 60
	// seconds.
	MaxAge time.Duration

	// OverrideFile is an optional path to a visibility override file.
	OverrideFile string
}

// managedDevice binds one device to its value cache and description.
type managedDevice struct {
	device      *entity.Device
	cache       *cache.DeviceCache
	description entity.DeviceDescription
}

// Central is the device orchestrator.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Central struct {
	instanceID string
	maxAge     time.Duration

	backend Backend
	repo    Repository

	visibility   *entity.Visibility
	templates    *entity.TemplateRegistry
	materializer *entity.Materializer
	values       *cache.CentralCache

	log Logger

	updateMu sync.RWMutex
	onUpdate UpdateFunc

	mu      sync.RWMutex
	devices map[string]*managedDevice
}

// UpdateFunc observes accepted value updates. It is invoked after the
// value landed in the cache, on the caller's goroutine; implementations
// must not block.
type UpdateFunc func(record *entity.Record, value any)

// New constructs a Central with the default rules, templates and kind
// overrides. The repository may be nil.
//
// Returns:
//   - *Central: ready orchestrator.
//   - error: if the override file cannot be parsed.
func New(opts Options, backend Backend, repo Repository, log Logger) (*Central, error) {
	if log == nil {
		log = noopLogger{}
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 60 * time.Second
	}

	templates := entity.DefaultTemplates()
	rules := entity.DefaultRules()
	// Parameters referenced by a template must survive visibility
	// filtering even when a blanket rule would drop them.
	rules.RequireParameters(templates.Parameters()...)

	visibility := entity.NewVisibility(rules, log)
	if opts.OverrideFile != "" {
		if err := visibility.LoadOverrideFile(opts.OverrideFile); err != nil {
			return nil, fmt.Errorf("central: loading override file: %w", err)
		}
	}

	classifier := entity.NewClassifier(entity.DefaultKindOverrides())

	return &Central{
		instanceID:   opts.InstanceID,
		maxAge:       opts.MaxAge,
		backend:      backend,
		repo:         repo,
		visibility:   visibility,
		templates:    templates,
		materializer: entity.NewMaterializer(opts.InstanceID, visibility, templates, classifier, log),
		values:       cache.NewCentralCache(),
		log:          log,
		devices:      make(map[string]*managedDevice),
	}, nil
}

// AddDevice materialises a new device from its description and paramset
// descriptors, persists it and warms the availability parameters.
//
// Parameters:
//   - ctx: context for persistence and warm-up reads.
//   - desc: the backend's device description.
//   - descriptors: all paramset descriptions, keyed by channel and
//     paramset key.
//
// Returns:
//   - *entity.Device: the materialised device.
//   - error: entity.ErrDeviceExists when the address is already managed,
//     or a persistence failure.
func (c *Central) AddDevice(ctx context.Context, desc entity.DeviceDescription, descriptors store.Descriptors) (*entity.Device, error) {
	md, err := c.admit(desc, descriptors)
	if err != nil {
		return nil, err
	}

	if c.repo != nil {
		if err := c.repo.SaveDevice(ctx, desc, descriptors); err != nil {
			return nil, fmt.Errorf("central: persisting device %s: %w", desc.Address, err)
		}
	}

	c.warmUp(ctx, md)

	c.log.Info("device added",
		"address", desc.Address,
		"type", desc.Type,
		"records", len(md.device.Records()),
	)
	return md.device, nil
}

// Restore loads every persisted device from the repository without
// touching the backend. Warm-up is skipped; values arrive via events or
// the next read.
//
// Returns:
//   - int: number of devices restored.
//   - error: if the repository read fails.
func (c *Central) Restore(ctx context.Context) (int, error) {
	if c.repo == nil {
		return 0, nil
	}

	stored, err := c.repo.Devices(ctx)
	if err != nil {
		return 0, fmt.Errorf("central: restoring devices: %w", err)
	}

	restored := 0
	for _, sd := range stored {
		if _, err := c.admit(sd.Description, sd.Descriptors); err != nil {
			c.log.Warn("skipping persisted device",
				"address", sd.Description.Address, "error", err)
			continue
		}
		restored++
	}

	c.log.Info("devices restored from store", "count", restored)
	return restored, nil
}

// admit builds, materialises and registers one device.
func (c *Central) admit(desc entity.DeviceDescription, descriptors store.Descriptors) (*managedDevice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.devices[desc.Address]; ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrDeviceExists, desc.Address)
	}

	device := entity.NewDevice(desc)
	for channel, paramsets := range descriptors {
		for paramsetKey, params := range paramsets {
			device.SetParamset(channel, paramsetKey, params)
		}
	}
	c.materializer.Materialize(device)

	md := &managedDevice{
		device: device,
		cache: cache.NewDeviceCache(desc.Interface, &backendFetcher{
			backend:     c.backend,
			interfaceID: desc.Interface,
		}, c.values),
		description: desc,
	}
	c.devices[desc.Address] = md
	return md, nil
}

// warmUp reads the channel-0 availability parameters and all MASTER
// records once, so availability and configuration state are known before
// the first event arrives. Failures are cached by the device cache and
// only logged here.
func (c *Central) warmUp(ctx context.Context, md *managedDevice) {
	address := md.device.Address
	ch0 := entity.ChannelAddress(address, 0)

	for _, parameter := range entity.RelevantInitParameters {
		if _, ok := md.device.Descriptor(0, entity.ParamsetValues, parameter); !ok {
			continue
		}
		if _, err := md.cache.Get(ctx, ch0, entity.ParamsetValues, parameter, c.maxAge); err != nil {
			c.log.Debug("warm-up read failed",
				"address", address, "parameter", parameter, "error", err)
		}
	}

	for _, r := range md.device.Records() {
		if r.ParamsetKey != entity.ParamsetMaster {
			continue
		}
		if _, err := md.cache.Get(ctx, r.ChannelAddress, r.ParamsetKey, r.Parameter, c.maxAge); err != nil {
			c.log.Debug("warm-up read failed",
				"address", address, "parameter", r.Parameter, "error", err)
		}
	}
}

// RemoveDevice forgets a device and deletes its persisted rows. Removing
// an unknown address is a no-op.
func (c *Central) RemoveDevice(ctx context.Context, address string) error {
	c.mu.Lock()
	md, ok := c.devices[address]
	delete(c.devices, address)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	md.cache.Clear()

	if c.repo != nil {
		if err := c.repo.DeleteDevice(ctx, address); err != nil {
			return fmt.Errorf("central: deleting device %s: %w", address, err)
		}
	}

	c.log.Info("device removed", "address", address)
	return nil
}

// Device returns a managed device by address.
func (c *Central) Device(address string) (*entity.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	md, ok := c.devices[address]
	if !ok {
		return nil, false
	}
	return md.device, true
}

// Devices returns all managed devices in unspecified order.
func (c *Central) Devices() []*entity.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	devices := make([]*entity.Device, 0, len(c.devices))
	for _, md := range c.devices {
		devices = append(devices, md.device)
	}
	return devices
}

// Value reads one parameter through the device's cache, no older than the
// configured staleness bound.
func (c *Central) Value(ctx context.Context, address string, channel entity.ChannelNo, paramset entity.ParamsetKey, parameter string) (any, error) {
	md, ok := c.managed(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, address)
	}
	return md.cache.Get(ctx, entity.ChannelAddress(address, channel), paramset, parameter, c.maxAge)
}

// SetValue writes one parameter and mirrors the accepted value into the
// device cache, so a read between the write and the confirming event sees
// the new state.
func (c *Central) SetValue(ctx context.Context, address string, channel entity.ChannelNo, parameter string, value any) error {
	md, ok := c.managed(address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, address)
	}

	channelAddress := entity.ChannelAddress(address, channel)
	if err := c.backend.SetValue(ctx, md.description.Interface, channelAddress, parameter, value); err != nil {
		return err
	}

	md.cache.Put(channelAddress, entity.ParamsetValues, parameter, value)
	if record, found := md.device.RecordAt(channel, entity.ParamsetValues, parameter); found {
		c.notifyUpdate(record, value)
	}
	return nil
}

// OnUpdate registers the observer for accepted value updates. At most one
// observer is supported; a second call replaces the first.
func (c *Central) OnUpdate(fn UpdateFunc) {
	c.updateMu.Lock()
	c.onUpdate = fn
	c.updateMu.Unlock()
}

func (c *Central) notifyUpdate(record *entity.Record, value any) {
	c.updateMu.RLock()
	fn := c.onUpdate
	c.updateMu.RUnlock()

	if fn != nil {
		fn(record, value)
	}
}

// PutParamset writes multiple parameters of one paramset in a single call
// and mirrors them into the device cache.
func (c *Central) PutParamset(ctx context.Context, address string, channel entity.ChannelNo, paramset entity.ParamsetKey, values map[string]any) error {
	md, ok := c.managed(address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, address)
	}

	channelAddress := entity.ChannelAddress(address, channel)
	if err := c.backend.PutParamset(ctx, md.description.Interface, channelAddress, string(paramset), values); err != nil {
		return err
	}

	for parameter, value := range values {
		md.cache.Put(channelAddress, paramset, parameter, value)
		if record, found := md.device.RecordAt(channel, paramset, parameter); found {
			c.notifyUpdate(record, value)
		}
	}
	return nil
}

// Available reports device reachability from the channel-0 UNREACH
// parameter. Unknown state counts as available; the backend flags
// unreachable devices explicitly.
func (c *Central) Available(ctx context.Context, address string) bool {
	md, ok := c.managed(address)
	if !ok {
		return false
	}

	value, err := md.cache.Get(ctx,
		entity.ChannelAddress(address, 0),
		entity.ParamsetValues, entity.ParamUnreach, c.maxAge)
	if err != nil {
		return true
	}
	return !truthy(value)
}

// ApplyEvent pushes a value received from the backend into the owning
// device's cache.
//
// Returns:
//   - *entity.Record: the record materialised for the parameter, nil when
//     visibility filtering dropped it.
//   - bool: false when the channel address does not belong to a managed
//     device.
func (c *Central) ApplyEvent(channelAddress, parameter string, value any) (*entity.Record, bool) {
	address, channel := entity.SplitChannelAddress(channelAddress)
	md, ok := c.managed(address)
	if !ok {
		return nil, false
	}

	md.cache.Put(channelAddress, entity.ParamsetValues, parameter, value)

	record, found := md.device.RecordAt(channel, entity.ParamsetValues, parameter)
	if found {
		c.notifyUpdate(record, value)
	}
	return record, true
}

// LoadAllDeviceData bulk-loads every value of one interface through the
// backend script engine into the shared cache tier.
//
// Returns:
//   - int: number of values loaded.
//   - error: script or decode failure; the shared tier is left untouched
//     then.
func (c *Central) LoadAllDeviceData(ctx context.Context, interfaceID string) (int, error) {
	result, err := c.backend.RunScript(ctx, fetchAllScript, map[string]string{
		"interface": interfaceID,
	})
	if err != nil {
		return 0, err
	}

	values, err := decodeScriptValues(result)
	if err != nil {
		return 0, err
	}

	c.values.ReplaceAll(interfaceID, values)
	c.log.Debug("bulk value load complete", "interface", interfaceID, "values", len(values))
	return len(values), nil
}

// managed resolves a device entry by address.
func (c *Central) managed(address string) (*managedDevice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	md, ok := c.devices[address]
	return md, ok
}

// decodeScriptValues accepts the script result either as a decoded map or
// as a JSON string, the two shapes the script engine produces.
func decodeScriptValues(result any) (map[string]any, error) {
	switch v := result.(type) {
	case map[string]any:
		return v, nil
	case string:
		values := make(map[string]any)
		if err := json.Unmarshal([]byte(v), &values); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadScriptResult, err)
		}
		return values, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrBadScriptResult, result)
	}
}

// truthy interprets backend boolean shapes; UNREACH arrives as bool from
// the event channel but as a number from the script engine.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v == "true" || v == "1"
	default:
		return false
	}
}
