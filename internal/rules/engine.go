package rules

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskflow/internal/eventbus"
	"taskflow/internal/storage"
	"taskflow/pkg/logx"
)

const defaultQueueSize = 256

// Outcome is the per-matched-rule result of processing one event.
type Outcome struct {
	RuleID   string         `json:"rule_id"`
	RuleName string         `json:"rule_name"`
	Matched  bool           `json:"matched"`
	Executed bool           `json:"executed"`
	Results  []ActionResult `json:"results,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// Options configures an Engine.
type Options struct {
	QueueSize     int
	Log           logx.Logger
	Bus           eventbus.Bus
	Store         storage.Store // nil means pure in-memory
	Collaborators Collaborators
}

// Engine owns the rule store and the async ingestion queue.
//
// ProcessEvent may be called concurrently with the worker and with
// register/update operations; the rule map is guarded by mu.
type Engine struct {
	log    logx.Logger
	bus    eventbus.Bus
	store  storage.Store
	collab Collaborators

	mu    sync.RWMutex
	rules map[string]*Rule

	queue chan Event

	startMu  sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopDone chan struct{}
}

func NewEngine(opts Options) *Engine {
	qs := opts.QueueSize
	if qs <= 0 {
		qs = defaultQueueSize
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		log:    log,
		bus:    opts.Bus,
		store:  opts.Store,
		collab: opts.Collaborators,
		rules:  map[string]*Rule{},
		queue:  make(chan Event, qs),
	}
	e.loadRules()
	return e
}

// loadRules restores the persisted snapshot. A corrupt or unreadable
// snapshot is logged and treated as an empty store.
func (e *Engine) loadRules() {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	recs, err := e.store.LoadRules(ctx)
	if err != nil {
		e.log.Warn("rule snapshot load failed; starting empty", logx.Err(err))
		return
	}
	for _, rec := range recs {
		rule, dropped := FromRecord(rec)
		if rule.ID == "" {
			e.log.Warn("skipping persisted rule without id", logx.String("name", rec.Name))
			continue
		}
		if len(dropped) > 0 {
			e.log.Warn("persisted rule has unsupported entries",
				logx.String("rule_id", rule.ID),
				logx.Any("dropped", dropped),
			)
		}
		e.rules[rule.ID] = rule
	}
	if len(e.rules) > 0 {
		e.log.Info("rules restored", logx.Int("count", len(e.rules)))
	}
}

// Register adds (or replaces) a rule and persists the snapshot.
func (e *Engine) Register(rule *Rule) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	e.mu.Lock()
	e.rules[rule.ID] = rule
	e.saveLocked()
	e.mu.Unlock()
}

// Unregister removes a rule. It reports whether the rule existed.
func (e *Engine) Unregister(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[ruleID]; !ok {
		return false
	}
	delete(e.rules, ruleID)
	e.saveLocked()
	return true
}

// Get returns a copy of the stored rule.
func (e *Engine) Get(ruleID string) (*Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[ruleID]
	if !ok {
		return nil, false
	}
	return r.snapshot(), true
}

// List returns copies of all rules sorted by creation time, oldest
// first.
func (e *Engine) List() []*Rule {
	e.mu.RLock()
	out := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.snapshot())
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CreateRule composes the catalog factories over configuration records.
// Unsupported entry kinds are skipped with a log line; the partially
// built rule is still registered. The dropped list names the skipped
// entries so callers can detect partial construction.
func (e *Engine) CreateRule(name, description string, triggers, conditions, actions []storage.SpecRecord, enabled bool) (*Rule, []string) {
	now := time.Now()
	rec := storage.RuleRecord{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Triggers:    triggers,
		Conditions:  conditions,
		Actions:     actions,
		Enabled:     enabled,
		CreatedAt:   now.Format(storage.TimeLayout),
		UpdatedAt:   now.Format(storage.TimeLayout),
	}
	rule, dropped := FromRecord(rec)
	for _, d := range dropped {
		e.log.Warn("dropping unsupported rule entry",
			logx.String("rule", name),
			logx.String("entry", d),
		)
	}
	e.Register(rule)
	return rule.snapshot(), dropped
}

// RuleUpdate is a partial update: nil fields are left untouched; a
// non-nil list replaces the whole sub-list.
type RuleUpdate struct {
	Name        *string
	Description *string
	Enabled     *bool
	Triggers    *[]storage.SpecRecord
	Conditions  *[]storage.SpecRecord
	Actions     *[]storage.SpecRecord
}

// UpdateRule applies a partial update and persists. It returns the
// updated rule, the dropped entry labels and whether the rule was found.
func (e *Engine) UpdateRule(ruleID string, upd RuleUpdate) (*Rule, []string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[ruleID]
	if !ok {
		return nil, nil, false
	}

	if upd.Name != nil {
		rule.Name = *upd.Name
	}
	if upd.Description != nil {
		rule.Description = *upd.Description
	}
	if upd.Enabled != nil {
		rule.Enabled = *upd.Enabled
	}

	var dropped []string
	if upd.Triggers != nil {
		rule.Triggers, dropped = buildTriggers(*upd.Triggers, dropped)
	}
	if upd.Conditions != nil {
		rule.Conditions, dropped = buildConditions(*upd.Conditions, dropped)
	}
	if upd.Actions != nil {
		rule.Actions, dropped = buildActions(*upd.Actions, dropped)
	}
	for _, d := range dropped {
		e.log.Warn("dropping unsupported rule entry",
			logx.String("rule_id", ruleID),
			logx.String("entry", d),
		)
	}

	rule.UpdatedAt = time.Now()
	e.saveLocked()
	return rule.snapshot(), dropped, true
}

// ProcessEvent runs the full match/evaluate/execute cycle synchronously
// and returns one outcome per matched rule.
func (e *Engine) ProcessEvent(ctx context.Context, ev Event) []Outcome {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	// Snapshot matched rules while holding the lock: evaluation and
	// execution run unlocked and must not see a concurrent update.
	e.mu.RLock()
	matched := make([]*Rule, 0, 4)
	for _, r := range e.rules {
		if r.MatchesEvent(ev, e.log) {
			matched = append(matched, r.snapshot())
		}
	}
	e.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	outcomes := make([]Outcome, 0, len(matched))
	for _, rule := range matched {
		ec := &EvalContext{
			Event:         ev,
			Rule:          rule.Record(),
			RuleID:        rule.ID,
			RuleName:      rule.Name,
			Timestamp:     time.Now(),
			Task:          ev.Task,
			TaskID:        ev.TaskID,
			Collaborators: e.collab,
		}

		if rule.Evaluate(ec, e.log) {
			results := rule.Execute(ctx, ec)
			outcomes = append(outcomes, Outcome{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Matched:  true,
				Executed: true,
				Results:  results,
			})
		} else {
			outcomes = append(outcomes, Outcome{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Matched:  true,
				Executed: false,
				Reason:   "Conditions not met",
			})
		}
	}

	if e.bus != nil && len(outcomes) > 0 {
		e.bus.Publish(eventbus.Signal{
			Type: eventbus.TypeRuleExecuted,
			Data: map[string]any{"event_type": ev.Type, "outcomes": outcomes},
		})
	}
	return outcomes
}

// QueueEvent enqueues an event for the worker. It never blocks: a full
// queue drops the event with a log line and a bus signal.
func (e *Engine) QueueEvent(ev Event) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case e.queue <- ev:
		return true
	default:
		e.log.Warn("event queue full; dropping event",
			logx.String("type", ev.Type),
			logx.Int("queue_cap", cap(e.queue)),
		)
		if e.bus != nil {
			e.bus.Publish(eventbus.Signal{
				Type: eventbus.TypeEngineDropped,
				Data: map[string]any{"event_type": ev.Type},
			})
		}
		return false
	}
}

// Start launches the ingestion worker. Idempotent.
func (e *Engine) Start() {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.stopCh = make(chan struct{})
	e.stopDone = make(chan struct{})
	go e.run(e.stopCh, e.stopDone)
	e.log.Debug("rule engine worker started")
}

// Stop halts the worker, waiting until it exits or ctx is done. A Stop
// that gave up on ctx may be retried; the retry resumes waiting.
func (e *Engine) Stop(ctx context.Context) error {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if !e.started {
		return nil
	}
	if e.stopCh != nil {
		close(e.stopCh)
		e.stopCh = nil
	}
	select {
	case <-e.stopDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.started = false
	e.log.Debug("rule engine worker stopped")
	return nil
}

// run drains the queue strictly sequentially: one event's full cycle
// completes before the next is taken.
func (e *Engine) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stopCh:
			return
		case ev := <-e.queue:
			e.ProcessEvent(context.Background(), ev)
		}
	}
}

// saveLocked persists the full rule snapshot. Callers hold e.mu. Save
// failures are logged and surfaced on the bus, never returned to the
// mutating caller.
func (e *Engine) saveLocked() {
	if e.store == nil {
		return
	}
	recs := make([]storage.RuleRecord, 0, len(e.rules))
	for _, r := range e.rules {
		recs = append(recs, r.Record())
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.SaveRules(ctx, recs); err != nil {
		e.log.Error("rule snapshot save failed", logx.Err(err))
		if e.bus != nil {
			e.bus.Publish(eventbus.Signal{
				Type: eventbus.TypeStoreSaveError,
				Data: map[string]any{"collection": "rules", "error": err.Error()},
			})
		}
	}
}
