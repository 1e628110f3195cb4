// Package config loads and persists the application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/lumarchive/chatscope/internal/wxcrypt"
)

const appName = "chatscope"

// FileHelperID is the reserved pseudo-contact the client uses for self file
// transfers. It is excluded from analytics by default because it inflates the
// owner's counts.
const FileHelperID = "filehelper"

// Config is the persisted application configuration. The key is stored hex
// encoded and must never be logged.
type Config struct {
	RootPath    string   `json:"rootPath" mapstructure:"rootPath"`
	AccountID   string   `json:"accountId,omitempty" mapstructure:"accountId"`
	Key         string   `json:"key,omitempty" mapstructure:"key"`
	Mode        string   `json:"mode" mapstructure:"mode"` // "backup" or "realtime"
	ExcludedIDs []string `json:"excludedIds,omitempty" mapstructure:"excludedIds"`

	// FirstRunDone records that the default exclusions were applied once.
	// The default set is a first-run policy, not re-injected every run.
	FirstRunDone bool `json:"firstRunDone" mapstructure:"firstRunDone"`

	paths *PathManager
}

// Load reads the configuration file under the path manager's app dir,
// falling back to defaults, with CHATSCOPE_* environment overrides.
func Load(pm *PathManager) (*Config, error) {
	configPath, err := pm.ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix(strings.ToUpper(appName))
	v.AutomaticEnv()

	v.SetDefault("mode", "backup")
	v.SetDefault("firstRunDone", false)

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{paths: pm}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// The owner id and the file transfer helper are excluded on first run
	// only; the user can remove them afterwards and they stay removed.
	if !cfg.FirstRunDone {
		cfg.ExcludedIDs = appendUnique(cfg.ExcludedIDs, FileHelperID)
		if cfg.AccountID != "" {
			cfg.ExcludedIDs = appendUnique(cfg.ExcludedIDs, cfg.AccountID)
		}
		cfg.FirstRunDone = true
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Save writes the configuration back to disk.
func (c *Config) Save() error {
	configPath, err := c.paths.ConfigPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0o600)
}

// Paths exposes the path manager this config was loaded with.
func (c *Config) Paths() *PathManager { return c.paths }

// Validate checks the operator-supplied inputs. These are configuration
// errors, recoverable by correcting the input, and distinct from a key that
// simply fails to open the store.
func (c *Config) Validate() error {
	if c.RootPath == "" {
		return fmt.Errorf("root path is not set; point chatscope at the client's data directory")
	}
	info, err := os.Stat(c.RootPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("root path %q is not a readable directory", c.RootPath)
	}
	if c.Key == "" {
		return fmt.Errorf("decryption key is not set")
	}
	if _, err := wxcrypt.ParseKey(c.Key); err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	if c.Mode != "backup" && c.Mode != "realtime" {
		return fmt.Errorf("mode must be %q or %q, got %q", "backup", "realtime", c.Mode)
	}
	return nil
}

// StoreMode maps the configured mode string onto the engine mode.
func (c *Config) StoreMode() wxcrypt.Mode {
	if c.Mode == "realtime" {
		return wxcrypt.ModeRealtime
	}
	return wxcrypt.ModeBackup
}

// SetAccount records the owner account id. An id set for the first time joins
// the exclusion set (the owner never competes in their own ranking); setting
// the same id again never re-adds it, so removing the exclusion sticks.
func (c *Config) SetAccount(id string) {
	if id == "" || id == c.AccountID {
		return
	}
	c.AccountID = id
	c.ExcludeID(id)
}

// ExcludeID adds an id to the exclusion set if absent and reports whether
// the set changed.
func (c *Config) ExcludeID(id string) bool {
	before := len(c.ExcludedIDs)
	c.ExcludedIDs = appendUnique(c.ExcludedIDs, id)
	return len(c.ExcludedIDs) != before
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
