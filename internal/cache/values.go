package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hmccu/homematic-core/internal/entity"
)

// Fetcher performs the live backend read a cache miss falls through to.
type Fetcher interface {
	FetchValue(ctx context.Context, channelAddress string, paramset entity.ParamsetKey, parameter string) (any, error)
}

type entryKey struct {
	paramset       entity.ParamsetKey
	channelAddress string
	parameter      string
}

type entry struct {
	value     any
	failed    bool
	refreshed time.Time
}

// DeviceCache is the per-device value tier plus the read path over both
// tiers.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Get serializes concurrent
//     callers for the same device through a weight-1 admission gate held
//     across lookup and fetch.
type DeviceCache struct {
	interfaceID string
	fetcher     Fetcher
	central     *CentralCache

	// gate admits one lookup+fetch sequence at a time for this device.
	gate *semaphore.Weighted

	now func() time.Time

	mu      sync.RWMutex
	entries map[entryKey]entry
}

// NewDeviceCache constructs the cache for one device.
func NewDeviceCache(interfaceID string, fetcher Fetcher, central *CentralCache) *DeviceCache {
	return &DeviceCache{
		interfaceID: interfaceID,
		fetcher:     fetcher,
		central:     central,
		gate:        semaphore.NewWeighted(1),
		now:         time.Now,
		entries:     make(map[entryKey]entry),
	}
}

// Get returns the value of one parameter, no older than maxAge.
//
// Lookup order: central tier, per-device tier, live fetch. The fetch result
// is written to the per-device tier regardless of outcome; a backend
// failure returns ErrUnavailable (with the cause wrapped) and is itself
// cached, bounding the retry rate for a failing parameter to once per
// maxAge window.
//
// A caller abandoning the context does not cancel an already admitted
// fetch for another caller; the fetch completes and populates the cache.
func (c *DeviceCache) Get(ctx context.Context, channelAddress string, paramset entity.ParamsetKey, parameter string, maxAge time.Duration) (any, error) {
	if paramset == entity.ParamsetValues && c.central != nil {
		if v, ok := c.central.Get(c.interfaceID, channelAddress, parameter, maxAge); ok {
			return v, nil
		}
	}

	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	key := entryKey{paramset, channelAddress, parameter}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(e.refreshed) <= maxAge {
		if e.failed {
			return nil, ErrUnavailable
		}
		return e.value, nil
	}

	value, err := c.fetcher.FetchValue(ctx, channelAddress, paramset, parameter)
	if err != nil {
		c.store(key, entry{failed: true, refreshed: c.now()})
		return nil, fmt.Errorf("%w: %s/%s/%s: %v", ErrUnavailable, channelAddress, paramset, parameter, err)
	}

	c.store(key, entry{value: value, refreshed: c.now()})
	return value, nil
}

// Put writes a pushed value into the per-device tier, bypassing the fetch
// path. Used for values arriving via backend events.
func (c *DeviceCache) Put(channelAddress string, paramset entity.ParamsetKey, parameter string, value any) {
	c.store(entryKey{paramset, channelAddress, parameter}, entry{value: value, refreshed: c.now()})
}

// store overwrites an entry. Timestamps never move backwards: a stale
// writer loses against a fresher entry.
func (c *DeviceCache) store(key entryKey, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok && existing.refreshed.After(e.refreshed) {
		return
	}
	c.entries[key] = e
}

// Clear drops all per-device entries.
func (c *DeviceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[entryKey]entry)
}

// Len returns the number of cached entries.
func (c *DeviceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
