package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
)

// Defaults for every runtime setting.
const (
	DefaultBackend        = "openpgp"
	DefaultWorkers        = 4
	DefaultLockTimeout    = 10 * time.Second
	DefaultBackendTimeout = 30 * time.Second
	DefaultRetries        = 3
	DefaultRetryInterval  = 250 * time.Millisecond
)

// RuntimeConfig is the effective configuration for one command.
type RuntimeConfig struct {
	Backend        string
	Workers        int
	LockTimeout    time.Duration
	BackendTimeout time.Duration
	Retries        int
	RetryInterval  time.Duration
	KeyringPath    string
}

// envBindings maps viper keys onto their environment variables.
var envBindings = map[string]string{
	"settings.backend":         "LOCKBOX_BACKEND",
	"settings.workers":         "LOCKBOX_WORKERS",
	"settings.lock_timeout":    "LOCKBOX_LOCK_TIMEOUT",
	"settings.backend_timeout": "LOCKBOX_BACKEND_TIMEOUT",
	"settings.retries":         "LOCKBOX_RETRIES",
	"settings.retry_interval":  "LOCKBOX_RETRY_INTERVAL",
	"keyring":                  "LOCKBOX_KEYRING",
}

// LoadRuntimeConfig layers defaults, then the project config file at
// configPath (if it exists), then LOCKBOX_* environment variables.
func LoadRuntimeConfig(configPath string) (*RuntimeConfig, error) {
	v := viper.New()
	v.SetDefault("settings.backend", DefaultBackend)
	v.SetDefault("settings.workers", DefaultWorkers)
	v.SetDefault("settings.lock_timeout", DefaultLockTimeout.String())
	v.SetDefault("settings.backend_timeout", DefaultBackendTimeout.String())
	v.SetDefault("settings.retries", DefaultRetries)
	v.SetDefault("settings.retry_interval", DefaultRetryInterval.String())
	v.SetDefault("keyring", DefaultKeyringPath)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", kerrors.ErrInvalidProjectConfig, configPath, err)
			}
		}
	}

	cfg := &RuntimeConfig{
		Backend: v.GetString("settings.backend"),
		Workers: v.GetInt("settings.workers"),
		Retries: v.GetInt("settings.retries"),
	}

	var err error
	if cfg.LockTimeout, err = parseDuration(v, "settings.lock_timeout"); err != nil {
		return nil, err
	}
	if cfg.BackendTimeout, err = parseDuration(v, "settings.backend_timeout"); err != nil {
		return nil, err
	}
	if cfg.RetryInterval, err = parseDuration(v, "settings.retry_interval"); err != nil {
		return nil, err
	}
	if cfg.KeyringPath, err = ResolveKeyringPath(v.GetString("keyring")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no command can run with.
func (c *RuntimeConfig) Validate() error {
	switch {
	case c.Backend == "":
		return fmt.Errorf("%w: backend must be set", kerrors.ErrInvalidProjectConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", kerrors.ErrInvalidProjectConfig, c.Workers)
	case c.Retries < 0:
		return fmt.Errorf("%w: retries must not be negative, got %d", kerrors.ErrInvalidProjectConfig, c.Retries)
	case c.LockTimeout <= 0, c.BackendTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", kerrors.ErrInvalidProjectConfig)
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", kerrors.ErrInvalidProjectConfig, key, err)
	}
	return d, nil
}
