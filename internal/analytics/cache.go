package analytics

import (
	"time"

	"github.com/lumarchive/chatscope/internal/cache"
)

const entrySchemaVersion = 1

// Entry is the persisted form of a computed aggregate, paired with the
// fingerprints that decide whether it is still valid.
type Entry struct {
	SchemaVersion        int              `json:"schemaVersion"`
	Stats                ChatStatistics   `json:"stats"`
	Rankings             []ContactRanking `json:"rankings"`
	Diagnostics          Diagnostics      `json:"diagnostics"`
	StoreFingerprint     int64            `json:"storeFingerprint"`     // primary store mtime, unix nanos
	ExclusionFingerprint string           `json:"exclusionFingerprint"` // hash of the sorted exclusion set
	ComputedAt           time.Time        `json:"computedAt"`
}

// Cache persists one Entry per account.
type Cache struct {
	kv *cache.Store
}

// NewCache opens the analytics cache namespace under dataDir.
func NewCache(dataDir string) (*Cache, error) {
	kv, err := cache.New(dataDir, "analytics")
	if err != nil {
		return nil, err
	}
	return &Cache{kv: kv}, nil
}

// Load returns the cached entry for an account, if any. Entries written by an
// older schema are treated as misses.
func (c *Cache) Load(accountID string) (*Entry, bool, error) {
	var entry Entry
	ok, err := c.kv.Load(accountID, &entry)
	if err != nil || !ok {
		return nil, false, err
	}
	if entry.SchemaVersion != entrySchemaVersion {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Save persists the entry for an account.
func (c *Cache) Save(accountID string, entry *Entry) error {
	entry.SchemaVersion = entrySchemaVersion
	return c.kv.Save(accountID, entry)
}

// ListKeys returns the accounts with cached aggregates.
func (c *Cache) ListKeys() ([]string, error) { return c.kv.ListKeys() }

// ClearAll drops every cached aggregate.
func (c *Cache) ClearAll() error { return c.kv.ClearAll() }
