package storage

import (
	"context"
	"errors"
	"strings"

	"taskflow/pkg/logx"
)

// Store is the durable-sink API used by the rule engine and scheduler.
// Saves are full snapshots of a collection.
type Store interface {
	LoadRules(ctx context.Context) ([]RuleRecord, error)
	SaveRules(ctx context.Context, rules []RuleRecord) error
	LoadEvents(ctx context.Context) ([]EventRecord, error)
	SaveEvents(ctx context.Context, events []EventRecord) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
