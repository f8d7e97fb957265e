// Package config loads host configuration. Values come from the
// environment first; an optional TOML file overrides them, which is how
// deployments pin settings without rewriting the environment.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all host configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Engine    EngineConfig    `toml:"engine"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig holds the HTTP control-plane configuration.
type ServerConfig struct {
	Port           string `envconfig:"PORT" default:"8800" toml:"port"`
	Host           string `envconfig:"HOST" default:"0.0.0.0" toml:"host"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"*" toml:"allowed_origins"`
}

// EngineConfig holds web content engine configuration.
type EngineConfig struct {
	UserAgent        string  `envconfig:"ENGINE_USER_AGENT" toml:"user_agent"`
	FetchTimeoutSec  int     `envconfig:"ENGINE_FETCH_TIMEOUT" default:"30" toml:"fetch_timeout_sec"`
	ScriptTimeoutSec int     `envconfig:"ENGINE_SCRIPT_TIMEOUT" default:"5" toml:"script_timeout_sec"`
	ScriptPoolSize   int     `envconfig:"ENGINE_SCRIPT_POOL" default:"4" toml:"script_pool_size"`
	FetchRatePerSec  float64 `envconfig:"ENGINE_FETCH_RATE" default:"0" toml:"fetch_rate_per_sec"`
}

// LifecycleConfig holds control-loop timing.
type LifecycleConfig struct {
	// TickMillis is the orphan-sweep interval. A detached session that is
	// not reclaimed within one tick is destroyed.
	TickMillis int `envconfig:"TICK_INTERVAL_MS" default:"250" toml:"tick_ms"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development"`
}

// RateLimitConfig holds HTTP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" toml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" toml:"enabled"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFile reads environment configuration and then applies overrides
// from a TOML file. A missing file is not an error when path is empty.
func LoadWithFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads from the environment or falls back to defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8800",
			Host:           "0.0.0.0",
			AllowedOrigins: "*",
		},
		Engine: EngineConfig{
			FetchTimeoutSec:  30,
			ScriptTimeoutSec: 5,
			ScriptPoolSize:   4,
		},
		Lifecycle: LifecycleConfig{
			TickMillis: 250,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
