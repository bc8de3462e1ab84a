package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Engine controls the rule engine's async event queue.
	Engine EngineConfig `json:"engine"`

	// Scheduler controls the time-based event dispatcher.
	Scheduler SchedulerConfig `json:"scheduler"`

	// Webhook controls outbound HTTP calls made by webhook actions.
	Webhook WebhookConfig `json:"webhook,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// EngineConfig controls rule evaluation.
//
// Defaults (when fields are omitted/zero):
//   - queue_size: 256
type EngineConfig struct {
	QueueSize int `json:"queue_size,omitempty"`
}

// SchedulerConfig controls the scheduler loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults:
//   - enabled: true when the section is omitted
//   - tick_interval: "1s"
type SchedulerConfig struct {
	Enabled *bool `json:"enabled,omitempty"`

	// TickInterval is how often due events are checked.
	TickInterval string `json:"tick_interval,omitempty"`
}

// WebhookConfig controls the shared outbound HTTP client.
//
// Defaults:
//   - timeout: "10s"
//   - rate_per_sec: 5
//   - burst: 5
type WebhookConfig struct {
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Burst      int    `json:"burst,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./taskflow_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Validate checks field values without mutating cfg. It is also the
// default validator installed by Watch().
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Engine.QueueSize < 0 {
		return errors.New("engine.queue_size must be >= 0")
	}
	if _, err := ParseDurationField("scheduler.tick_interval", c.Scheduler.TickInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("webhook.timeout", c.Webhook.Timeout); err != nil {
		return err
	}
	if c.Webhook.RatePerSec < 0 {
		return errors.New("webhook.rate_per_sec must be >= 0")
	}
	if c.Webhook.Burst < 0 {
		return errors.New("webhook.burst must be >= 0")
	}
	if c.Storage != nil {
		driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
		switch driver {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if (driver == "file" || driver == "sqlite" || driver == "sqlite3") && strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("storage.path is required for driver " + driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// SchedulerEnabled resolves the pointer default.
func (c *Config) SchedulerEnabled() bool {
	if c == nil || c.Scheduler.Enabled == nil {
		return true
	}
	return *c.Scheduler.Enabled
}

// TickInterval returns the effective scheduler tick.
func (c *Config) TickInterval() time.Duration {
	if c == nil {
		return time.Second
	}
	d, err := ParseDurationOrDefault("scheduler.tick_interval", c.Scheduler.TickInterval, time.Second)
	if err != nil {
		return time.Second
	}
	return d
}

// WebhookTimeout returns the effective outbound HTTP timeout.
func (c *Config) WebhookTimeout() time.Duration {
	if c == nil {
		return 10 * time.Second
	}
	d, err := ParseDurationOrDefault("webhook.timeout", c.Webhook.Timeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
