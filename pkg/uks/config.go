package uks

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config carries store construction settings. The zero value is not usable;
// start from DefaultConfig and override.
//
// Example Usage:
//
//	cfg := uks.DefaultConfig()
//	cfg.EvictionInterval = 5 * time.Second
//	store, err := uks.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
// Environment Variables (applied by ApplyEnv):
//   - UKS_EVICTION_INTERVAL: duration ("2s", "500ms") or plain seconds
//   - UKS_EVICTION_ENABLED: true/false/1/0/yes/no/on
//   - UKS_LOG_LEVEL: debug, info, warn, error
//   - UKS_ARCHIVE_DIR: directory for the project revision archive
type Config struct {
	// EvictionEnabled controls the background sweep that removes expired
	// transient edges. Disable it in tests that manage time themselves and
	// call EvictExpired directly.
	EvictionEnabled bool `yaml:"eviction_enabled"`

	// EvictionInterval is how often the background sweep runs. Must be
	// positive when eviction is enabled. In YAML this is a duration string
	// ("2s", "250ms") or plain seconds.
	EvictionInterval time.Duration `yaml:"eviction_interval"`

	// LogLevel is used by CLI front-ends to build the logger. The store
	// itself only consumes Logger below.
	LogLevel string `yaml:"log_level"`

	// ArchiveDir is where the project revision archive keeps its data.
	ArchiveDir string `yaml:"archive_dir"`

	// Logger receives store lifecycle and eviction logs. Nil means silent.
	Logger *zap.Logger `yaml:"-"`
}

// DefaultConfig returns the settings a store runs with when nothing is
// overridden: eviction every second, info-level logging, archive under
// ./uks-archive.
func DefaultConfig() Config {
	return Config{
		EvictionEnabled:  true,
		EvictionInterval: time.Second,
		LogLevel:         "info",
		ArchiveDir:       "./uks-archive",
	}
}

// LoadConfig reads a YAML config file over the defaults, then applies
// environment overrides. A missing file is not an error: env and defaults
// still apply, so a bare deployment needs no config file at all.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// UnmarshalYAML decodes the config mapping. Durations arrive as strings,
// which the yaml package cannot bind to time.Duration on its own. Absent
// keys keep their current values, so defaults survive partial files.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		EvictionEnabled  *bool   `yaml:"eviction_enabled"`
		EvictionInterval *string `yaml:"eviction_interval"`
		LogLevel         *string `yaml:"log_level"`
		ArchiveDir       *string `yaml:"archive_dir"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.EvictionEnabled != nil {
		c.EvictionEnabled = *raw.EvictionEnabled
	}
	if raw.EvictionInterval != nil {
		d, err := parseDuration(*raw.EvictionInterval)
		if err != nil {
			return err
		}
		c.EvictionInterval = d
	}
	if raw.LogLevel != nil {
		c.LogLevel = *raw.LogLevel
	}
	if raw.ArchiveDir != nil {
		c.ArchiveDir = *raw.ArchiveDir
	}
	return nil
}

// ApplyEnv overrides fields from UKS_* environment variables. Unset or
// unparsable variables leave the current value in place.
func (c *Config) ApplyEnv() {
	c.EvictionEnabled = getEnvBool("UKS_EVICTION_ENABLED", c.EvictionEnabled)
	c.EvictionInterval = getEnvDuration("UKS_EVICTION_INTERVAL", c.EvictionInterval)
	c.LogLevel = getEnv("UKS_LOG_LEVEL", c.LogLevel)
	c.ArchiveDir = getEnv("UKS_ARCHIVE_DIR", c.ArchiveDir)
}

// Validate reports the first problem with the configuration, or nil.
func (c *Config) Validate() error {
	if c.EvictionEnabled && c.EvictionInterval <= 0 {
		return fmt.Errorf("eviction interval must be positive, got %v", c.EvictionInterval)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := parseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// parseDuration accepts a Go duration string or a plain number of seconds.
func parseDuration(val string) (time.Duration, error) {
	if d, err := time.ParseDuration(val); err == nil {
		return d, nil
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid duration %q", val)
}
