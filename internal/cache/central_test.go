package cache

import (
	"testing"
	"time"
)

func TestCentralCache_GetAndExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := NewCentralCache()
	c.now = clock.Now

	c.ReplaceAll("BidCos-RF", map[string]any{
		"VCU0000123:1.LEVEL": 0.5,
	})

	if v, ok := c.Get("BidCos-RF", "VCU0000123:1", "LEVEL", time.Minute); !ok || v != 0.5 {
		t.Errorf("Get() = %v, %v; want 0.5, true", v, ok)
	}

	if _, ok := c.Get("HmIP-RF", "VCU0000123:1", "LEVEL", time.Minute); ok {
		t.Error("expected miss for other interface")
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("BidCos-RF", "VCU0000123:1", "LEVEL", time.Minute); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestCentralCache_ReplaceAllIsScopedToInterface(t *testing.T) {
	c := NewCentralCache()

	c.ReplaceAll("BidCos-RF", map[string]any{"VCU1:1.LEVEL": 1.0})
	c.ReplaceAll("HmIP-RF", map[string]any{"VCU2:1.LEVEL": 2.0})

	// Reloading one interface drops its old entries but keeps the other
	// interface intact.
	c.ReplaceAll("BidCos-RF", map[string]any{"VCU1:1.STATE": true})

	if _, ok := c.Get("BidCos-RF", "VCU1:1", "LEVEL", time.Minute); ok {
		t.Error("expected old entry dropped on reload")
	}
	if v, ok := c.Get("BidCos-RF", "VCU1:1", "STATE", time.Minute); !ok || v != true {
		t.Error("expected reloaded entry present")
	}
	if v, ok := c.Get("HmIP-RF", "VCU2:1", "LEVEL", time.Minute); !ok || v != 2.0 {
		t.Error("expected other interface untouched")
	}

	c.Clear("HmIP-RF")
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after Clear", c.Len())
	}
}
