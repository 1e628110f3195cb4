package report

import (
	"fmt"

	"github.com/lumarchive/chatscope/internal/cache"
)

// Cache persists finished report payloads keyed by (counterparty, year).
// The all-time entry and a year-scoped entry for the same counterparty are
// distinct slots.
type Cache struct {
	kv *cache.Store
}

// NewCache opens the report cache namespace under dataDir.
func NewCache(dataDir string) (*Cache, error) {
	kv, err := cache.New(dataDir, "reports")
	if err != nil {
		return nil, err
	}
	return &Cache{kv: kv}, nil
}

func cacheKey(counterpartyID string, year *int) string {
	if year == nil {
		return counterpartyID + "-all"
	}
	return fmt.Sprintf("%s-%d", counterpartyID, *year)
}

// Load returns the cached payload for the slot, if present and current.
func (c *Cache) Load(counterpartyID string, year *int) (*DualReport, bool, error) {
	var payload DualReport
	ok, err := c.kv.Load(cacheKey(counterpartyID, year), &payload)
	if err != nil || !ok {
		return nil, false, err
	}
	if payload.SchemaVersion != SchemaVersion {
		return nil, false, nil
	}
	return &payload, true, nil
}

// Save persists the payload with inline assets stripped; the caller keeps the
// full object for display.
func (c *Cache) Save(counterpartyID string, year *int, payload *DualReport) error {
	return c.kv.Save(cacheKey(counterpartyID, year), payload.StripAssets())
}

// ListKeys returns every populated slot.
func (c *Cache) ListKeys() ([]string, error) { return c.kv.ListKeys() }

// ClearAll drops every cached report.
func (c *Cache) ClearAll() error { return c.kv.ClearAll() }
