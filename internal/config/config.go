// Package config loads the optional application config file and environment
// overrides. Precedence, lowest to highest: built-in defaults, the TOML
// config file, environment variables, CLI flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Default tuning values, in the units the file uses.
const (
	defaultTimeoutSeconds     = 30
	defaultBlobTimeoutSeconds = 300
	defaultTokenTTLMinutes    = 30
	defaultRefreshSkewSeconds = 60
)

// Config is the effective application configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level" env:"RMAPI_LOG_LEVEL"`

	// TokenFile overrides the credential file location. Empty means the
	// standard resolution order (RMAPI_CONFIG, ~/.rmapi, XDG).
	TokenFile string `toml:"token_file" env:"-"`

	// AuthHost overrides the authentication host.
	AuthHost string `toml:"auth_host" env:"RMAPI_AUTH_HOST"`

	// StorageHost pins the storage host, skipping service discovery.
	StorageHost string `toml:"storage_host" env:"RMAPI_STORAGE_HOST"`

	// DeviceDesc is the device description sent during registration.
	DeviceDesc string `toml:"device_desc" env:"RMAPI_DEVICE_DESC"`

	// TimeoutSeconds bounds metadata round trips.
	TimeoutSeconds int `toml:"timeout_seconds" env:"RMAPI_TIMEOUT_SECONDS"`

	// BlobTimeoutSeconds bounds content uploads and downloads.
	BlobTimeoutSeconds int `toml:"blob_timeout_seconds" env:"RMAPI_BLOB_TIMEOUT_SECONDS"`

	// TokenTTLMinutes is the assumed user-token lifetime.
	TokenTTLMinutes int `toml:"token_ttl_minutes" env:"RMAPI_TOKEN_TTL_MINUTES"`

	// RefreshSkewSeconds refreshes the user token this long before assumed expiry.
	RefreshSkewSeconds int `toml:"refresh_skew_seconds" env:"RMAPI_REFRESH_SKEW_SECONDS"`

	// AlwaysRefresh refreshes the user token on every authenticated call
	// instead of tracking expiry.
	AlwaysRefresh bool `toml:"always_refresh" env:"RMAPI_ALWAYS_REFRESH"`
}

// defaults returns the built-in configuration.
func defaults() *Config {
	return &Config{
		LogLevel:           "info",
		TimeoutSeconds:     defaultTimeoutSeconds,
		BlobTimeoutSeconds: defaultBlobTimeoutSeconds,
		TokenTTLMinutes:    defaultTokenTTLMinutes,
		RefreshSkewSeconds: defaultRefreshSkewSeconds,
	}
}

// Load reads the config file at path (the default location when path is
// empty) and applies environment overrides. A missing file is not an error
// (defaults apply); a present but unparseable file is.
func Load(path string) (*Config, error) {
	// Pick up a .env file when present, for development setups.
	_ = godotenv.Load()

	cfg := defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: loading %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}

	return cfg, nil
}

// MetaTimeout returns the metadata operation timeout.
func (c *Config) MetaTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BlobTimeout returns the content transfer timeout.
func (c *Config) BlobTimeout() time.Duration {
	return time.Duration(c.BlobTimeoutSeconds) * time.Second
}

// TokenTTL returns the assumed user-token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// RefreshSkew returns the pre-expiry refresh margin.
func (c *Config) RefreshSkew() time.Duration {
	return time.Duration(c.RefreshSkewSeconds) * time.Second
}
