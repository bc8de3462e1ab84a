//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taskflow/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps each collection as one row per record, with the
// record serialized as a JSON document. Saves replace the whole
// collection inside a transaction, matching the snapshot contract.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadRules(ctx context.Context) ([]RuleRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM rules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RuleRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var r RuleRecord
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveRules(ctx context.Context, rules []RuleRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return s.replaceAll(ctx, "rules", len(rules), func(i int) (string, []byte, error) {
		b, err := json.Marshal(rules[i])
		return rules[i].ID, b, err
	})
}

func (s *sqliteStore) LoadEvents(ctx context.Context) ([]EventRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM sched_events ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var e EventRecord
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveEvents(ctx context.Context, events []EventRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return s.replaceAll(ctx, "sched_events", len(events), func(i int) (string, []byte, error) {
		b, err := json.Marshal(events[i])
		return events[i].ID, b, err
	})
}

// replaceAll swaps a table's contents for the given snapshot atomically.
func (s *sqliteStore) replaceAll(ctx context.Context, table string, n int, row func(i int) (id string, doc []byte, err error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		id, doc, err := row(i)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+`(id, doc) VALUES(?,?)`, id, string(doc)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
