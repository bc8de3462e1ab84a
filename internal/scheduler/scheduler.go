// Package scheduler produces time-based events: one-shot and recurring
// schedules ordered by a min-heap, drained by a fixed-tick timer loop
// that hands due events to a callback (normally the rule engine's queue).
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskflow/internal/eventbus"
	"taskflow/internal/storage"
	"taskflow/pkg/logx"
)

const defaultTick = time.Second

// Callback receives the payload of one due event: {type, schedule_id,
// time, ...event data} plus recurrence fields for recurring fires.
type Callback func(payload map[string]any)

type Options struct {
	Tick     time.Duration
	Log      logx.Logger
	Bus      eventbus.Bus
	Store    storage.Store // nil means pure in-memory
	Callback Callback
}

type Scheduler struct {
	tick     time.Duration
	log      logx.Logger
	bus      eventbus.Bus
	store    storage.Store
	callback Callback

	mu     sync.Mutex
	events map[string]*Event
	heap   eventHeap

	startMu  sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopDone chan struct{}
}

func New(opts Options) *Scheduler {
	tick := opts.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		tick:     tick,
		log:      log,
		bus:      opts.Bus,
		store:    opts.Store,
		callback: opts.Callback,
		events:   map[string]*Event{},
	}
	s.loadEvents()
	return s
}

// SetCallback installs the due-event consumer. Must be called before
// Start.
func (s *Scheduler) SetCallback(cb Callback) { s.callback = cb }

func (s *Scheduler) loadEvents() {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	recs, err := s.store.LoadEvents(ctx)
	if err != nil {
		s.log.Warn("schedule snapshot load failed; starting empty", logx.Err(err))
		return
	}
	for _, rec := range recs {
		ev, err := eventFromRecord(rec)
		if err != nil {
			s.log.Warn("skipping corrupt scheduled event",
				logx.String("id", rec.ID), logx.Err(err))
			continue
		}
		s.events[ev.ID] = ev
		s.heap.push(heapEntry{at: ev.ScheduledTime.UnixNano(), id: ev.ID})
	}
	if len(s.events) > 0 {
		s.log.Info("scheduled events restored", logx.Int("count", len(s.events)))
	}
}

// Schedule registers an event and returns its id. Recurring events need
// a recurrence config with a supported frequency.
func (s *Scheduler) Schedule(eventType string, at time.Time, data map[string]any, recurring bool, recurrence map[string]any) (string, error) {
	if eventType == "" {
		return "", fmt.Errorf("event type is required")
	}
	if recurring {
		// Validate eagerly so a bad config fails at schedule time, not
		// at first fire.
		cfgCopy := map[string]any{}
		for k, v := range recurrence {
			cfgCopy[k] = v
		}
		if _, err := nextOccurrence(at, at, cfgCopy); err != nil {
			return "", err
		}
	}

	ev := &Event{
		ID:               uuid.NewString(),
		EventType:        eventType,
		ScheduledTime:    at,
		Data:             data,
		Recurring:        recurring,
		RecurrenceConfig: recurrence,
	}

	s.mu.Lock()
	s.events[ev.ID] = ev
	s.heap.push(heapEntry{at: at.UnixNano(), id: ev.ID})
	s.saveLocked()
	s.mu.Unlock()

	s.log.Debug("event scheduled",
		logx.String("id", ev.ID),
		logx.String("type", eventType),
		logx.Time("at", at),
		logx.Bool("recurring", recurring),
	)
	return ev.ID, nil
}

// Cancel removes an event. Best-effort against the timer: if the event
// was already popped for firing in the current tick, cancellation has no
// effect on that fire.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return false
	}
	delete(s.events, id)
	// The heap entry stays behind as a tombstone; pop skips it.
	s.saveLocked()
	return true
}

// Get returns a copy of the stored event.
func (s *Scheduler) Get(id string) (*Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, false
	}
	return ev.clone(), true
}

// List returns copies of all pending events ordered by fire time.
func (s *Scheduler) List() []*Event {
	s.mu.Lock()
	out := make([]*Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out
}

// Start launches the timer loop. Idempotent.
func (s *Scheduler) Start() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.stopDone = make(chan struct{})
	go s.run(s.stopCh, s.stopDone)
	s.log.Debug("scheduler started", logx.Duration("tick", s.tick))
}

// Stop halts the timer loop, waiting until it exits or ctx is done. A
// Stop that gave up on ctx may be retried; the retry resumes waiting.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if !s.started {
		return nil
	}
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	select {
	case <-s.stopDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.started = false
	s.log.Debug("scheduler stopped")
	return nil
}

func (s *Scheduler) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

// fireDue pops every due event, advances recurring ones in place under
// the lock, then invokes the callback for each fire outside the lock.
func (s *Scheduler) fireDue(now time.Time) {
	type fire struct {
		ev *Event
		at time.Time
	}

	s.mu.Lock()
	var fires []fire
	mutated := false
	for {
		head, ok := s.heap.peek()
		if !ok || head.at > now.UnixNano() {
			break
		}
		entry, _ := s.heap.pop()

		ev, ok := s.events[entry.id]
		if !ok || ev.ScheduledTime.UnixNano() != entry.at {
			// Cancelled, or superseded by a later recurrence.
			continue
		}

		firedAt := ev.ScheduledTime
		if ev.Recurring {
			next, err := nextOccurrence(firedAt, now, ev.RecurrenceConfig)
			if err != nil {
				s.log.Error("recurrence advance failed; retiring event",
					logx.String("id", ev.ID), logx.Err(err))
				delete(s.events, ev.ID)
			} else {
				ev.ScheduledTime = next
				s.heap.push(heapEntry{at: next.UnixNano(), id: ev.ID})
			}
		} else {
			delete(s.events, ev.ID)
		}
		mutated = true
		fires = append(fires, fire{ev: ev.clone(), at: firedAt})
	}
	if mutated {
		s.saveLocked()
	}
	s.mu.Unlock()

	for _, f := range fires {
		s.dispatch(f.ev, f.at)
	}
}

// dispatch builds the fire payload and hands it to the callback,
// recovering from callback panics so the loop never dies.
func (s *Scheduler) dispatch(ev *Event, at time.Time) {
	payload := map[string]any{
		"type":        ev.EventType,
		"schedule_id": ev.ID,
		"time":        at.Format(storage.TimeLayout),
	}
	for k, v := range ev.Data {
		payload[k] = v
	}
	if ev.Recurring && ev.RecurrenceConfig != nil {
		// Mirror the recurrence dimensions into the payload so
		// recurring triggers can match on them.
		if f, ok := ev.RecurrenceConfig["frequency"]; ok {
			payload["frequency"] = f
		}
		payload["day_of_week"] = int(at.Weekday())
		payload["day_of_month"] = at.Day()
		payload["time_of_day"] = at.Format("15:04")
	}

	s.log.Debug("schedule fired",
		logx.String("id", ev.ID),
		logx.String("type", ev.EventType),
		logx.Time("at", at),
	)
	if s.bus != nil {
		s.bus.Publish(eventbus.Signal{
			Type: eventbus.TypeScheduleFired,
			Data: map[string]any{"schedule_id": ev.ID, "event_type": ev.EventType},
		})
	}

	cb := s.callback
	if cb == nil {
		return
	}
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("schedule callback panicked",
					logx.String("id", ev.ID), logx.Any("panic", rec))
			}
		}()
		cb(payload)
	}()
}

// saveLocked persists the full event snapshot. Callers hold s.mu.
func (s *Scheduler) saveLocked() {
	if s.store == nil {
		return
	}
	recs := make([]storage.EventRecord, 0, len(s.events))
	for _, ev := range s.events {
		recs = append(recs, ev.Record())
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.SaveEvents(ctx, recs); err != nil {
		s.log.Error("schedule snapshot save failed", logx.Err(err))
		if s.bus != nil {
			s.bus.Publish(eventbus.Signal{
				Type: eventbus.TypeStoreSaveError,
				Data: map[string]any{"collection": "events", "error": err.Error()},
			})
		}
	}
}
