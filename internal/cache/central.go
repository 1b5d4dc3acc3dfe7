package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type centralEntry struct {
	value     any
	refreshed time.Time
}

// CentralCache is the cross-device value tier, bulk loaded from the backend
// in one script call and keyed by interface, channel address and parameter.
//
// Entries are never mutated in place, only replaced wholesale, so
// concurrent reads are safe alongside a reload.
type CentralCache struct {
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]centralEntry
}

// NewCentralCache constructs an empty central tier.
func NewCentralCache() *CentralCache {
	return &CentralCache{
		now:     time.Now,
		entries: make(map[string]centralEntry),
	}
}

func centralKey(interfaceID, channelAddress, parameter string) string {
	return fmt.Sprintf("%s.%s.%s", interfaceID, channelAddress, parameter)
}

// Get returns a value no older than maxAge. The second return is false on
// a miss or an expired entry.
func (c *CentralCache) Get(interfaceID, channelAddress, parameter string, maxAge time.Duration) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[centralKey(interfaceID, channelAddress, parameter)]
	if !ok || c.now().Sub(e.refreshed) > maxAge {
		return nil, false
	}
	return e.value, true
}

// ReplaceAll swaps in the bulk-loaded values of one interface. The map is
// keyed "channelAddress.parameter" as delivered by the backend script;
// entries of other interfaces are untouched.
func (c *CentralCache) ReplaceAll(interfaceID string, values map[string]any) {
	refreshed := c.now()
	prefix := interfaceID + "."

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	for key, value := range values {
		c.entries[prefix+key] = centralEntry{value: value, refreshed: refreshed}
	}
}

// Clear drops all entries of one interface.
func (c *CentralCache) Clear(interfaceID string) {
	c.ReplaceAll(interfaceID, nil)
}

// Len returns the number of cached entries across all interfaces.
func (c *CentralCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
