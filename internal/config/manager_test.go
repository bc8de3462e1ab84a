package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
  "engine": {"queue_size": 64},
  "scheduler": {"enabled": true, "tick_interval": "500ms"},
  "webhook": {"timeout": "3s", "rate_per_sec": 2, "burst": 4},
  "storage": {"driver": "file", "path": "./data"}
}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.Engine.QueueSize != 64 {
		t.Fatalf("queue_size = %d", cfg.Engine.QueueSize)
	}
	if got := cfg.TickInterval().String(); got != "500ms" {
		t.Fatalf("tick = %s", got)
	}
	if got := cfg.WebhookTimeout().String(); got != "3s" {
		t.Fatalf("webhook timeout = %s", got)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
logging:
  level: info
  console: true
  file:
    enabled: true
    path: ./taskflow.log
scheduler:
  tick_interval: 2s
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Logging.File.Enabled || cfg.Logging.File.Path != "./taskflow.log" {
		t.Fatalf("file logging: %+v", cfg.Logging.File)
	}
	if got := cfg.TickInterval().String(); got != "2s" {
		t.Fatalf("tick = %s", got)
	}
	if !cfg.SchedulerEnabled() {
		t.Fatal("omitted scheduler.enabled should default to true")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"loging": {"level": "info"}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad tick":       `{"scheduler": {"tick_interval": "soon"}}`,
		"bad driver":     `{"storage": {"driver": "redis", "path": "x"}}`,
		"missing path":   `{"storage": {"driver": "file", "path": ""}}`,
		"negative queue": `{"engine": {"queue_size": -1}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			writeFile(t, path, content)
			if _, err := NewManager(path).Load(); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config
	if !cfg.SchedulerEnabled() {
		t.Fatal("scheduler should default enabled")
	}
	if got := cfg.TickInterval().String(); got != "1s" {
		t.Fatalf("default tick = %s", got)
	}
	if got := cfg.WebhookTimeout().String(); got != "10s" {
		t.Fatalf("default webhook timeout = %s", got)
	}
}

func TestWatchPublishesValidatedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"logging": {"level": "info"}}`)

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = m.Watch(ctx)
	}()

	// An invalid rewrite must neither publish nor clobber the committed
	// config.
	writeFile(t, path, `{"storage": {"driver": "redis", "path": "x"}}`)
	select {
	case cfg := <-sub:
		t.Fatalf("invalid config was published: %+v", cfg)
	case <-time.After(700 * time.Millisecond):
	}
	if m.Get().Logging.Level != "info" {
		t.Fatalf("committed config clobbered: %+v", m.Get())
	}

	writeFile(t, path, `{"logging": {"level": "debug"}}`)
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published config = %+v", cfg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("valid config change was not published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatal("published config should also be committed")
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{}
	newCfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
		Engine:  EngineConfig{QueueSize: 512},
		Storage: &StorageConfig{Driver: "file", Path: "./d"},
	}
	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"engine", "logging", "storage"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
}
