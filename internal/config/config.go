package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FeedConfig describes a single ICS discovery feed.
type FeedConfig struct {
	// URL is the ICS endpoint candidates are discovered from.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Category is the agenda category applied to events from this feed.
	Category string `yaml:"category" json:"category"`
}

// PollConfig controls the periodic re-discovery schedule.
type PollConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Minutes is the poll interval; values <= 0 disable polling even
	// when Enabled is true.
	Minutes int `yaml:"minutes" json:"minutes"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the JSON API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for date parsing and reminder
	// arithmetic (e.g. "America/Grand_Turk"). Empty means local time.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of "debug", "info", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Poll configures periodic re-discovery.
	Poll PollConfig `yaml:"poll" json:"poll"`

	// HorizonDays bounds how far ahead discovery expands recurring
	// feed events.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// SnapshotPath, when set, is loaded and merged on startup and used
	// as the default target for snapshot export.
	SnapshotPath string `yaml:"snapshot_path" json:"snapshot_path"`

	// CacheDir is where feed HTTP cache entries are stored.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Feeds is the list of discovery feed sources.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// Categories are extra category labels registered at startup on top
	// of the built-in defaults.
	Categories []string `yaml:"categories" json:"categories"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "",
		LogLevel:    "info",
		Poll:        PollConfig{Enabled: false, Minutes: 30},
		HorizonDays: 60,
		CacheDir:    "./var/feed-cache",
		Feeds:       []FeedConfig{},
		Categories:  []string{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Poll.Minutes <= 0 {
		c.Poll.Minutes = 30
		c.Poll.Enabled = false
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 60
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/feed-cache"
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	if c.Categories == nil {
		c.Categories = []string{}
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (parent
// directory created as needed, 0600 perms) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg with the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with
// 0600 permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".agendad-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
