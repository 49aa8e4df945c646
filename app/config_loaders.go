package simpchat

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type ConfigLoader interface {
	Load() (*Config, error)
}

// EnvConfigLoader loads the configuration from environment variables after
// sourcing a .env file. Only the connection settings are configurable this
// way; timing parameters keep their defaults.
type EnvConfigLoader struct {
}

func (l *EnvConfigLoader) Load() (*Config, error) {
	// Load environment variables from .env file. Without one the environment
	// itself may already carry the settings.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	config, err := (&DefaultConfigLoader{}).Load()
	if err != nil {
		return nil, err
	}
	if v := getEnv("SIMPCHAT_SERVER_URL"); v != "" {
		config.ServerURL = v
	}
	if v := getEnv("SIMPCHAT_HUB_URL"); v != "" {
		config.HubURL = v
	}
	config.Token = getEnv("SIMPCHAT_TOKEN")
	if v := getEnv("SIMPCHAT_RECONNECT_MAX_ATTEMPTS"); v != "" {
		attempts, err := strconv.ParseUint(v, 10, 64)
		if err == nil {
			config.Reconnect.MaxAttempts = attempts
		}
	}
	return config, nil
}

// DefaultConfigLoader returns the built-in defaults. The token is left empty
// and caught by validation.
type DefaultConfigLoader struct {
}

func (l *DefaultConfigLoader) Load() (*Config, error) {
	config := &Config{
		ServerURL:   "http://localhost:8080/api",
		HubURL:      "ws://localhost:8080/hub",
		CallTimeout: 10 * time.Second,
	}
	config.Reconnect.MaxAttempts = 5
	config.Reconnect.BaseDelay = time.Second
	config.Reconnect.MaxDelay = 30 * time.Second
	config.Receipts.Debounce = 500 * time.Millisecond
	config.Receipts.RetryBaseDelay = 500 * time.Millisecond
	config.Receipts.RetryMaxDelay = 5 * time.Second
	config.Receipts.RetryAttempts = 3
	config.Reconcile.Timeout = 10 * time.Second
	config.Reconcile.Poll = time.Second
	return config, nil
}

// Utility function to get an environment variable with a default value
func getEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return ""
	}
	return value
}
