package automation

import (
	"context"
	"fmt"

	"taskflow/internal/config"
	"taskflow/internal/eventbus"
	"taskflow/internal/rules"
	"taskflow/internal/storage"
	"taskflow/internal/webhook"
	"taskflow/pkg/logx"
)

// Bootstrap holds the process-level pieces assembled from a config file:
// the config manager (for Watch/Subscribe), the log service, the shared
// store, the bus, and the system itself.
type Bootstrap struct {
	Config *config.Manager
	Logs   *logx.Service
	Log    logx.Logger
	Bus    eventbus.Bus
	Store  storage.Store
	System *System

	watchCancel context.CancelFunc
}

// FromConfigFile loads a YAML or JSON config file and assembles a ready
// System from it. collab supplies the external capabilities (task
// manager, notifier); the webhook client is built here from the config
// and injected when collab does not already carry one.
func FromConfigFile(path string, collab rules.Collaborators) (*Bootstrap, error) {
	mgr := config.NewManager(path)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	svc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("component", "config")))

	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
		if err != nil {
			svc.Close()
			return nil, err
		}
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("component", "storage")))
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	if collab.Webhooks == nil {
		collab.Webhooks = webhook.NewClient(webhook.Config{
			Timeout:    cfg.WebhookTimeout(),
			RatePerSec: cfg.Webhook.RatePerSec,
			Burst:      cfg.Webhook.Burst,
		}, log.With(logx.String("component", "webhook")))
	}

	bus := eventbus.New()
	system := New(Options{
		Log:           log,
		Bus:           bus,
		Store:         store,
		QueueSize:     cfg.Engine.QueueSize,
		Tick:          cfg.TickInterval(),
		Collaborators: collab,
	})

	return &Bootstrap{
		Config: mgr,
		Logs:   svc,
		Log:    log,
		Bus:    bus,
		Store:  store,
		System: system,
	}, nil
}

// Start launches the system workers and the config-file watcher. The
// scheduler is skipped when the config disables it.
func (b *Bootstrap) Start() {
	cfg := b.Config.Get()
	b.System.Engine().Start()
	if cfg.SchedulerEnabled() {
		b.System.Scheduler().Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.watchCancel = cancel
	go func() { _ = b.WatchConfig(ctx) }()
}

// WatchConfig watches the config file until ctx is done, consuming
// validated updates as they are published. The logging section is
// re-applied live; the rest takes effect on restart, so changes there
// are only summarized in the log.
func (b *Bootstrap) WatchConfig(ctx context.Context) error {
	sub := b.Config.Subscribe(1)
	defer b.Config.Unsubscribe(sub)
	go b.applyConfigUpdates(ctx, sub)
	return b.Config.Watch(ctx)
}

func (b *Bootstrap) applyConfigUpdates(ctx context.Context, sub chan *config.Config) {
	prev := b.Config.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			changed, attrs := config.SummarizeConfigChange(prev, cfg)
			prev = cfg
			if len(changed) == 0 {
				continue
			}
			b.Log.Info("config reloaded",
				append([]logx.Field{logx.Any("changed", changed)}, attrs...)...)
			for _, section := range changed {
				if section != "logging" {
					continue
				}
				b.Logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
			}
		}
	}
}

// Close releases everything Bootstrap owns. Call after Shutdown.
func (b *Bootstrap) Close() error {
	if b.watchCancel != nil {
		b.watchCancel()
		b.watchCancel = nil
	}
	var firstErr error
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			firstErr = err
		}
	}
	if b.Logs != nil {
		if err := b.Logs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
