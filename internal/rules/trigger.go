package rules

import (
	"time"

	"taskflow/internal/storage"
)

// scheduleTolerance is the window within which a scheduled or recurring
// trigger still matches an event time. Inclusive at the boundary.
const scheduleTolerance = 5 * time.Minute

// Trigger decides rule candidacy for an incoming event. Matches is pure:
// no side effects, no errors. An absent optional config field leaves that
// dimension unconstrained.
type Trigger interface {
	Kind() string
	Config() map[string]any
	Matches(ev Event) bool
}

// spec carries the tagged-variant identity shared by triggers,
// conditions and actions.
type spec struct {
	kind string
	cfg  map[string]any
}

func (s spec) Kind() string           { return s.kind }
func (s spec) Config() map[string]any { return s.cfg }

type triggerCtor func(cfg map[string]any) Trigger

var triggerRegistry = map[string]triggerCtor{
	EventTaskCreated:         func(cfg map[string]any) Trigger { return &taskCreatedTrigger{spec{EventTaskCreated, cfg}} },
	EventTaskUpdated:         func(cfg map[string]any) Trigger { return &taskUpdatedTrigger{spec{EventTaskUpdated, cfg}} },
	EventTaskStatusChanged:   func(cfg map[string]any) Trigger { return &taskStatusChangedTrigger{spec{EventTaskStatusChanged, cfg}} },
	EventTaskAssigned:        func(cfg map[string]any) Trigger { return &taskAssignedTrigger{spec{EventTaskAssigned, cfg}} },
	EventScheduled:           func(cfg map[string]any) Trigger { return &scheduledTrigger{spec{EventScheduled, cfg}} },
	EventRecurring:           func(cfg map[string]any) Trigger { return &recurringTrigger{spec{EventRecurring, cfg}} },
	EventDeadlineApproaching: func(cfg map[string]any) Trigger { return &deadlineApproachingTrigger{spec{EventDeadlineApproaching, cfg}} },
	EventManual:              func(cfg map[string]any) Trigger { return &manualTrigger{spec{EventManual, cfg}} },
}

// NewTrigger builds a trigger from its persisted form. Unknown kinds fail
// with ConfigurationError.
func NewTrigger(rec storage.SpecRecord) (Trigger, error) {
	ctor, ok := triggerRegistry[rec.Kind]
	if !ok {
		return nil, &ConfigurationError{Entry: "trigger", Kind: rec.Kind}
	}
	return ctor(rec.Config), nil
}

type taskCreatedTrigger struct{ spec }

func (t *taskCreatedTrigger) Matches(ev Event) bool {
	if ev.Type != EventTaskCreated {
		return false
	}
	if id := cfgString(t.cfg, "task_id"); id != "" && ev.TaskID != id {
		return false
	}
	if p := cfgString(t.cfg, "priority"); p != "" {
		if ev.Task == nil || ev.Task.Priority != p {
			return false
		}
	}
	return true
}

type taskUpdatedTrigger struct{ spec }

func (t *taskUpdatedTrigger) Matches(ev Event) bool {
	if ev.Type != EventTaskUpdated {
		return false
	}
	if id := cfgString(t.cfg, "task_id"); id != "" && ev.TaskID != id {
		return false
	}
	if fields := cfgStrings(t.cfg, "fields"); len(fields) > 0 {
		updated := map[string]struct{}{}
		if ev.Payload != nil {
			for _, f := range anyStrings(ev.Payload["updated_fields"]) {
				updated[f] = struct{}{}
			}
		}
		hit := false
		for _, f := range fields {
			if _, ok := updated[f]; ok {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

type taskStatusChangedTrigger struct{ spec }

func (t *taskStatusChangedTrigger) Matches(ev Event) bool {
	if ev.Type != EventTaskStatusChanged {
		return false
	}
	if id := cfgString(t.cfg, "task_id"); id != "" && ev.TaskID != id {
		return false
	}
	if from := cfgString(t.cfg, "from_status"); from != "" && ev.payloadString("from_status") != from {
		return false
	}
	if to := cfgString(t.cfg, "to_status"); to != "" && ev.payloadString("to_status") != to {
		return false
	}
	return true
}

type taskAssignedTrigger struct{ spec }

func (t *taskAssignedTrigger) Matches(ev Event) bool {
	if ev.Type != EventTaskAssigned {
		return false
	}
	if id := cfgString(t.cfg, "task_id"); id != "" && ev.TaskID != id {
		return false
	}
	if a := cfgString(t.cfg, "assignee"); a != "" && ev.payloadString("assignee") != a {
		return false
	}
	if p := cfgString(t.cfg, "previous_assignee"); p != "" && ev.payloadString("previous_assignee") != p {
		return false
	}
	return true
}

type scheduledTrigger struct{ spec }

func (t *scheduledTrigger) Matches(ev Event) bool {
	if ev.Type != EventScheduled {
		return false
	}
	if id := cfgString(t.cfg, "schedule_id"); id != "" && ev.payloadString("schedule_id") != id {
		return false
	}
	if want := cfgString(t.cfg, "scheduled_time"); want != "" {
		wantTime, err := parseEventTime(want)
		if err != nil {
			return false
		}
		gotTime, err := parseEventTime(ev.payloadString("time"))
		if err != nil {
			return false
		}
		diff := wantTime.Sub(gotTime)
		if diff < 0 {
			diff = -diff
		}
		if diff > scheduleTolerance {
			return false
		}
	}
	return true
}

type recurringTrigger struct{ spec }

func (t *recurringTrigger) Matches(ev Event) bool {
	if ev.Type != EventRecurring {
		return false
	}
	if id := cfgString(t.cfg, "schedule_id"); id != "" && ev.payloadString("schedule_id") != id {
		return false
	}
	freq := cfgString(t.cfg, "frequency")
	if freq != "" && ev.payloadString("frequency") != freq {
		return false
	}
	if freq == "weekly" {
		if want, ok := cfgInt(t.cfg, "day_of_week"); ok {
			got, gotOK := ev.payloadInt("day_of_week")
			if !gotOK || got != want {
				return false
			}
		}
	}
	if freq == "monthly" {
		if want, ok := cfgInt(t.cfg, "day_of_month"); ok {
			got, gotOK := ev.payloadInt("day_of_month")
			if !gotOK || got != want {
				return false
			}
		}
	}
	if tod := cfgString(t.cfg, "time_of_day"); tod != "" {
		wantMin, err := parseClockMinutes(tod)
		if err != nil {
			return false
		}
		gotStr := ev.payloadString("time_of_day")
		if gotStr == "" {
			gotStr = "00:00"
		}
		gotMin, err := parseClockMinutes(gotStr)
		if err != nil {
			return false
		}
		diff := wantMin - gotMin
		if diff < 0 {
			diff = -diff
		}
		if diff > 5 {
			return false
		}
	}
	return true
}

type deadlineApproachingTrigger struct{ spec }

func (t *deadlineApproachingTrigger) Matches(ev Event) bool {
	if ev.Type != EventDeadlineApproaching {
		return false
	}
	if id := cfgString(t.cfg, "task_id"); id != "" && ev.TaskID != id {
		return false
	}
	if want, ok := cfgInt(t.cfg, "days_before"); ok {
		got, gotOK := ev.payloadInt("days_before")
		if !gotOK || got != want {
			return false
		}
	}
	return true
}

type manualTrigger struct{ spec }

func (t *manualTrigger) Matches(ev Event) bool {
	if ev.Type != EventManual {
		return false
	}
	if id := cfgString(t.cfg, "trigger_id"); id != "" && ev.payloadString("trigger_id") != id {
		return false
	}
	return true
}

func anyStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// parseEventTime accepts the persisted timestamp layout plus common
// RFC 3339 shapes (with or without zone or sub-second precision).
func parseEventTime(s string) (time.Time, error) {
	layouts := []string{
		storage.TimeLayout,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// parseClockMinutes parses "HH:MM" into minutes after midnight.
func parseClockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
