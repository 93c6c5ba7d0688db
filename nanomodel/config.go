package nanomodel

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arthur-debert/nanomodel/nanomodel/cache"
)

// Config holds the settings shared by every model of a Pool.
type Config struct {
	// CacheSize is the per-model entry count above which the cache prunes.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size" json:"cache_size"`
	// CacheTTL is how long a cached lookup stays valid.
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl" json:"cache_ttl"`
	// DataPath is the JSON file used by the file driver.
	DataPath string `mapstructure:"data_path" yaml:"data_path" json:"data_path"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	// ResolveTimeout bounds the retries when a collection cannot be opened.
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout" yaml:"resolve_timeout" json:"resolve_timeout"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		CacheSize:      cache.DefaultSize,
		CacheTTL:       cache.DefaultTTL,
		DataPath:       "nanomodel.json",
		LogLevel:       "info",
		ResolveTimeout: 10 * time.Second,
	}
}

// ValidateConfig checks the configuration for consistency.
func ValidateConfig(c Config) error {
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size cannot be negative: %d", c.CacheSize)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl cannot be negative: %s", c.CacheTTL)
	}
	if c.ResolveTimeout < 0 {
		return fmt.Errorf("resolve_timeout cannot be negative: %s", c.ResolveTimeout)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// CacheConfig returns the cache settings for one model.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{Size: c.CacheSize, TTL: c.CacheTTL}
}

// ParseLogLevel maps a level name to a slog level. An empty name is info.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
