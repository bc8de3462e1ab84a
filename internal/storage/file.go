package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"taskflow/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files (under the configured directory):
//   - rules.json   (full rule snapshot)
//   - events.json  (full scheduled-event snapshot)
//
// Saves write a temp file and rename it into place so a crash mid-save
// never leaves a truncated snapshot behind.
type fileStore struct {
	log logx.Logger

	mu         sync.Mutex
	rulesPath  string
	eventsPath string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Clean(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{
		log:        log,
		rulesPath:  filepath.Join(dir, "rules.json"),
		eventsPath: filepath.Join(dir, "events.json"),
	}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) LoadRules(ctx context.Context) ([]RuleRecord, error) {
	_ = ctx
	var out []RuleRecord
	if err := s.readJSON(s.rulesPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) SaveRules(ctx context.Context, rules []RuleRecord) error {
	_ = ctx
	if rules == nil {
		rules = []RuleRecord{}
	}
	return s.writeJSON(s.rulesPath, rules)
}

func (s *fileStore) LoadEvents(ctx context.Context) ([]EventRecord, error) {
	_ = ctx
	var out []EventRecord
	if err := s.readJSON(s.eventsPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) SaveEvents(ctx context.Context, events []EventRecord) error {
	_ = ctx
	if events == nil {
		events = []EventRecord{}
	}
	return s.writeJSON(s.eventsPath, events)
}

func (s *fileStore) readJSON(path string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// First run; nothing persisted yet.
			return nil
		}
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, out)
}

func (s *fileStore) writeJSON(path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
