// Package cache is a small persistent key-value store: one JSON file per
// entry under a namespaced directory in the application data dir. It assumes
// a single local process; there is no cross-process locking.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lumarchive/chatscope/internal/logging"
)

// Store persists values for one namespace.
type Store struct {
	dir string
}

// New returns a store rooted at dataDir/cache/namespace.
func New(dataDir, namespace string) (*Store, error) {
	dir := filepath.Join(dataDir, "cache", namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes value under key, atomically replacing any previous entry.
func (s *Store) Save(key string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry %q: %w", key, err)
	}
	path := s.path(key)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads the entry for key into out. A missing or unreadable entry is a
// miss, never an error: cache corruption always degrades to recomputation.
// Corrupt entries are removed so they cannot go stale-positive later.
func (s *Store) Load(key string, out any) (bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		logging.Log.Warn("dropping corrupt cache entry", "key", key, "err", err)
		os.Remove(s.path(key))
		return false, nil
	}
	return true, nil
}

// Delete removes one entry. Deleting a missing entry is a no-op.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ListKeys returns every stored key, sorted.
func (s *Store) ListKeys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// ClearAll removes every entry in the namespace.
func (s *Store) ClearAll() error {
	keys, err := s.ListKeys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitize(key)+".json")
}

// sanitize maps a key onto a safe file name.
func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.' || r == '@':
			return r
		default:
			return '_'
		}
	}, key)
}
