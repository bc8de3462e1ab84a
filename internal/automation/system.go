// Package automation composes the rule engine and the scheduler into one
// system: the scheduler's due events feed the engine's queue, and external
// producers inject task-lifecycle events through HandleTaskEvent.
package automation

import (
	"context"
	"errors"
	"time"

	"taskflow/internal/eventbus"
	"taskflow/internal/rules"
	"taskflow/internal/scheduler"
	"taskflow/internal/storage"
	"taskflow/pkg/logx"
)

type Options struct {
	Log logx.Logger
	Bus eventbus.Bus

	// Store is shared by the engine (rules) and scheduler (events).
	Store storage.Store

	QueueSize int
	Tick      time.Duration

	Collaborators rules.Collaborators
}

// System owns one engine and one scheduler and their wiring.
type System struct {
	log       logx.Logger
	engine    *rules.Engine
	scheduler *scheduler.Scheduler
}

func New(opts Options) *System {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &System{log: log}

	s.engine = rules.NewEngine(rules.Options{
		QueueSize:     opts.QueueSize,
		Log:           log.With(logx.String("component", "engine")),
		Bus:           opts.Bus,
		Store:         opts.Store,
		Collaborators: opts.Collaborators,
	})
	s.scheduler = scheduler.New(scheduler.Options{
		Tick:     opts.Tick,
		Log:      log.With(logx.String("component", "scheduler")),
		Bus:      opts.Bus,
		Store:    opts.Store,
		Callback: s.dispatchScheduled,
	})
	return s
}

// Engine exposes the owned rule engine.
func (s *System) Engine() *rules.Engine { return s.engine }

// Scheduler exposes the owned scheduler.
func (s *System) Scheduler() *scheduler.Scheduler { return s.scheduler }

// Start launches both background workers. Idempotent.
func (s *System) Start() {
	s.engine.Start()
	s.scheduler.Start()
}

// Shutdown stops the scheduler first so no new events enter the engine
// queue, then stops the engine worker.
func (s *System) Shutdown(ctx context.Context) error {
	return errors.Join(
		s.scheduler.Stop(ctx),
		s.engine.Stop(ctx),
	)
}

// dispatchScheduled converts a due schedule payload into an engine event
// and enqueues it.
func (s *System) dispatchScheduled(payload map[string]any) {
	ev := rules.Event{
		Timestamp: time.Now(),
		Payload:   payload,
	}
	if t, ok := payload["type"].(string); ok {
		ev.Type = t
	}
	if id, ok := payload["task_id"].(string); ok {
		ev.TaskID = id
	}
	s.engine.QueueEvent(ev)
}

// HandleTaskEvent injects a task-lifecycle event from an external
// producer. extra is merged into the event payload. Returns false when
// the engine queue is full and the event was dropped.
func (s *System) HandleTaskEvent(eventType string, task *rules.Task, extra map[string]any) bool {
	ev := rules.Event{
		Type:      eventType,
		Task:      task,
		Timestamp: time.Now(),
		Payload:   extra,
	}
	if task != nil {
		ev.TaskID = task.ID
	}
	return s.engine.QueueEvent(ev)
}

// TriggerRule invokes a rule by id through a synthesized manual event,
// processed synchronously. The second return is false when no rule with
// that id exists.
func (s *System) TriggerRule(ctx context.Context, ruleID string, extra map[string]any) ([]rules.Outcome, bool) {
	if _, ok := s.engine.Get(ruleID); !ok {
		return nil, false
	}
	payload := map[string]any{"trigger_id": ruleID}
	for k, v := range extra {
		payload[k] = v
	}
	outcomes := s.engine.ProcessEvent(ctx, rules.Event{
		Type:      rules.EventManual,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	return outcomes, true
}

// CreateRule assembles and registers a rule from spec records. The
// second return lists sub-entries dropped for unsupported kinds.
func (s *System) CreateRule(name, description string, triggers, conditions, actions []storage.SpecRecord, enabled bool) (*rules.Rule, []string) {
	return s.engine.CreateRule(name, description, triggers, conditions, actions, enabled)
}

// UpdateRule applies a partial update to an existing rule.
func (s *System) UpdateRule(ruleID string, upd rules.RuleUpdate) (*rules.Rule, []string, bool) {
	return s.engine.UpdateRule(ruleID, upd)
}

// DeleteRule removes a rule by id.
func (s *System) DeleteRule(ruleID string) bool { return s.engine.Unregister(ruleID) }

// Rule returns a copy of a rule by id.
func (s *System) Rule(ruleID string) (*rules.Rule, bool) { return s.engine.Get(ruleID) }

// Rules returns copies of all registered rules.
func (s *System) Rules() []*rules.Rule { return s.engine.List() }

// ScheduleEvent registers a time-keyed event with the scheduler.
func (s *System) ScheduleEvent(eventType string, at time.Time, data map[string]any, recurring bool, recurrence map[string]any) (string, error) {
	return s.scheduler.Schedule(eventType, at, data, recurring, recurrence)
}

// CancelEvent cancels a pending scheduled event.
func (s *System) CancelEvent(id string) bool { return s.scheduler.Cancel(id) }

// ScheduledEvent returns a pending scheduled event by id.
func (s *System) ScheduledEvent(id string) (*scheduler.Event, bool) { return s.scheduler.Get(id) }

// ScheduledEvents returns all pending scheduled events.
func (s *System) ScheduledEvents() []*scheduler.Event { return s.scheduler.List() }
