// Package config loads transplantcore settings from an optional YAML file and
// TRANSPLANTCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"transplantcore/internal/blob"
	"transplantcore/internal/compat"
	"transplantcore/internal/core"
	"transplantcore/internal/waitlist"
)

// EnvPrefix is prepended to every environment key; "storage.sqlite_path"
// becomes TRANSPLANTCORE_STORAGE_SQLITE_PATH.
const EnvPrefix = "TRANSPLANTCORE"

// DefaultHTTPAddr is where `serve` listens unless configured.
const DefaultHTTPAddr = ":8080"

// Config is the full runtime configuration.
type Config struct {
	Storage  core.StorageConfig `mapstructure:"storage"`
	Blob     blob.Config        `mapstructure:"blob"`
	Matcher  MatcherConfig      `mapstructure:"matcher"`
	Waitlist WaitlistConfig     `mapstructure:"waitlist"`
	Log      LogConfig          `mapstructure:"log"`
	HTTP     HTTPConfig         `mapstructure:"http"`
}

// MatcherConfig tunes compatibility scoring.
type MatcherConfig struct {
	Threshold float64        `mapstructure:"threshold"`
	Weights   compat.Weights `mapstructure:"weights"`
}

// WaitlistConfig controls priority draws. Seed 0 draws from a random seed.
type WaitlistConfig struct {
	Seed uint64 `mapstructure:"seed"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// HTTPConfig configures the HTTP adapter.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

var logLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

func setDefaults(v *viper.Viper) {
	weights := compat.DefaultWeights()
	v.SetDefault("storage.driver", string(core.StorageSQLite))
	v.SetDefault("storage.sqlite_path", "transplantcore.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.fs_root", "./blobdata")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.session_token", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("matcher.threshold", compat.DefaultAcceptanceThreshold)
	v.SetDefault("matcher.weights.blood", weights.Blood)
	v.SetDefault("matcher.weights.size", weights.Size)
	v.SetDefault("matcher.weights.tissue", weights.Tissue)
	v.SetDefault("waitlist.seed", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("http.addr", DefaultHTTPAddr)
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (when non-empty) and the environment, then validates.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		return fmt.Errorf("storage.driver must be memory, sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == core.StorageSQLite && c.Storage.SQLitePath == "" {
		return errors.New("storage.sqlite_path must be set for the sqlite driver")
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if err := c.Blob.S3.Validate(); err != nil {
			return fmt.Errorf("blob.s3: %w", err)
		}
	default:
		return fmt.Errorf("blob.driver must be fs, s3 or memory, got %q", c.Blob.Driver)
	}
	if c.Matcher.Threshold < compat.MinScore || c.Matcher.Threshold > compat.MaxScore {
		return fmt.Errorf("matcher.threshold must be between %.0f and %.0f, got %.2f", compat.MinScore, compat.MaxScore, c.Matcher.Threshold)
	}
	if err := c.Matcher.Weights.Validate(); err != nil {
		return fmt.Errorf("matcher.weights: %w", err)
	}
	if _, ok := logLevels[c.Log.Level]; !ok {
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr must not be empty")
	}
	return nil
}

// NewMatcher builds the matcher described by the matcher section.
func (c Config) NewMatcher() (*compat.Matcher, error) {
	return compat.NewMatcher(compat.WithThreshold(c.Matcher.Threshold), compat.WithWeights(c.Matcher.Weights))
}

// NewDrawer returns the priority source; a zero seed draws a random one.
func (c Config) NewDrawer() waitlist.PriorityDrawer {
	return waitlist.NewRandomDrawer(c.Waitlist.Seed)
}
