package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// TimeLayout is the textual date-time format used for every persisted
// timestamp. RFC 3339 with nanoseconds round-trips exactly.
const TimeLayout = time.RFC3339Nano

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON files (atomic rename on save)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string        // file: data directory; sqlite: database file
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SpecRecord is the persisted form of one trigger, condition or action:
// a kind tag plus its raw configuration map.
type SpecRecord struct {
	Kind   string         `json:"kind"`
	Config map[string]any `json:"config,omitempty"`
}

// RuleRecord is the persisted form of an automation rule.
type RuleRecord struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Triggers    []SpecRecord   `json:"triggers"`
	Conditions  []SpecRecord   `json:"conditions"`
	Actions     []SpecRecord   `json:"actions"`
	Enabled     bool           `json:"enabled"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// EventRecord is the persisted form of a scheduled event.
type EventRecord struct {
	ID               string         `json:"id"`
	EventType        string         `json:"event_type"`
	ScheduledTime    string         `json:"scheduled_time"`
	Data             map[string]any `json:"data,omitempty"`
	Recurring        bool           `json:"recurring"`
	RecurrenceConfig map[string]any `json:"recurrence_config,omitempty"`
}
