// Package config loads parley's deployment configuration from YAML, covering
// store backend selection, session timeouts, enrichment pool sizing, responder
// tuning and logging. Every field has a working default so a zero config file
// (or none at all) yields a runnable in-memory deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML fields written as "90s" or "15m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// StoreConfig selects and parameterizes the durable store backend.
type StoreConfig struct {
	// Backend is one of "memory", "file", "redis".
	Backend string `yaml:"backend"`
	// Dir is the data directory for the file backend.
	Dir string `yaml:"dir,omitempty"`
	// RedisURL is the connection URL for the redis backend.
	RedisURL string `yaml:"redis_url,omitempty"`
}

// SessionConfig tunes lifecycle and sweeping behavior.
type SessionConfig struct {
	IdleTimeout   Duration `yaml:"idle_timeout"`
	SweepInterval Duration `yaml:"sweep_interval"`
	HistoryLimit  int      `yaml:"history_limit"`
}

// EnrichConfig tunes the post-close enrichment pool.
type EnrichConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// ResponderConfig selects and tunes the reply-generating provider.
type ResponderConfig struct {
	// Provider is one of "anthropic", "openai", "mock".
	Provider     string  `yaml:"provider"`
	Model        string  `yaml:"model,omitempty"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int64   `yaml:"max_tokens"`
	SystemPrompt string  `yaml:"system_prompt,omitempty"`
}

// LoggingConfig tunes structured logging output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full deployment configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Responder ResponderConfig `yaml:"responder"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the baseline configuration: in-memory store, mock
// responder, 30 minute idle timeout swept every minute.
func Default() Config {
	return Config{
		Store: StoreConfig{Backend: "memory"},
		Session: SessionConfig{
			IdleTimeout:   Duration(30 * time.Minute),
			SweepInterval: Duration(time.Minute),
			HistoryLimit:  100,
		},
		Enrich:    EnrichConfig{Workers: 2, QueueSize: 32},
		Responder: ResponderConfig{Provider: "mock", Temperature: 0.7, MaxTokens: 4096},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads a YAML file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects inconsistent configurations.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "file":
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the file backend")
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Responder.Provider {
	case "anthropic", "openai", "mock":
	default:
		return fmt.Errorf("unknown responder provider %q", c.Responder.Provider)
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("session.idle_timeout must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session.sweep_interval must be positive")
	}
	return nil
}
