package rules

import (
	"context"
	"time"

	"taskflow/internal/storage"
	"taskflow/pkg/logx"
)

// ActionResult is one entry of a rule execution: one per declared action,
// in declared order, regardless of individual failure.
type ActionResult struct {
	Action  string         `json:"action"`
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Rule is the aggregate of triggers, conditions and actions. It carries
// no state machine beyond the enabled flag.
type Rule struct {
	ID          string
	Name        string
	Description string
	Triggers    []Trigger
	Conditions  []Condition
	Actions     []Action
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Metadata    map[string]any
}

// snapshot returns a shallow copy that is safe to read outside the
// engine lock. Updates replace whole sub-lists instead of mutating
// them, so the copied slice headers stay stable.
func (r *Rule) snapshot() *Rule {
	cp := *r
	return &cp
}

// MatchesEvent reports whether ANY trigger matches. Disabled rules never
// match. A panicking trigger counts as a non-match.
func (r *Rule) MatchesEvent(ev Event, log logx.Logger) bool {
	if !r.Enabled {
		return false
	}
	for _, t := range r.Triggers {
		if safeMatch(t, ev, r.ID, log) {
			return true
		}
	}
	return false
}

// Evaluate reports whether ALL conditions hold. Disabled rules evaluate
// false; an empty condition list is vacuously true. A panicking condition
// counts as false.
func (r *Rule) Evaluate(ec *EvalContext, log logx.Logger) bool {
	if !r.Enabled {
		return false
	}
	for _, c := range r.Conditions {
		if !safeEvaluate(c, ec, r.ID, log) {
			return false
		}
	}
	return true
}

// Execute runs every action in declared order, isolating failures per
// action. Disabled rules return an empty list.
func (r *Rule) Execute(ctx context.Context, ec *EvalContext) []ActionResult {
	if !r.Enabled {
		return []ActionResult{}
	}
	results := make([]ActionResult, 0, len(r.Actions))
	for _, a := range r.Actions {
		res, err := safeExecute(ctx, a, ec)
		if err != nil {
			results = append(results, ActionResult{Action: a.Kind(), Success: false, Error: err.Error()})
			continue
		}
		results = append(results, ActionResult{Action: a.Kind(), Success: true, Result: res})
	}
	return results
}

func safeMatch(t Trigger, ev Event, ruleID string, log logx.Logger) (matched bool) {
	defer func() {
		if rec := recover(); rec != nil {
			matched = false
			if !log.IsZero() {
				log.Error("trigger panicked; treating as non-match",
					logx.String("rule_id", ruleID),
					logx.String("kind", t.Kind()),
					logx.Any("panic", rec),
				)
			}
		}
	}()
	return t.Matches(ev)
}

func safeEvaluate(c Condition, ec *EvalContext, ruleID string, log logx.Logger) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			if !log.IsZero() {
				log.Error("condition panicked; treating as false",
					logx.String("rule_id", ruleID),
					logx.String("kind", c.Kind()),
					logx.Any("panic", rec),
				)
			}
		}
	}()
	return c.Evaluate(ec)
}

func safeExecute(ctx context.Context, a Action, ec *EvalContext) (res map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = &ValidationError{Field: a.Kind(), Reason: "action panicked"}
		}
	}()
	return a.Execute(ctx, ec)
}

// Record converts the rule into its persisted snapshot.
func (r *Rule) Record() storage.RuleRecord {
	rec := storage.RuleRecord{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Triggers:    make([]storage.SpecRecord, 0, len(r.Triggers)),
		Conditions:  make([]storage.SpecRecord, 0, len(r.Conditions)),
		Actions:     make([]storage.SpecRecord, 0, len(r.Actions)),
		Enabled:     r.Enabled,
		CreatedAt:   r.CreatedAt.Format(storage.TimeLayout),
		UpdatedAt:   r.UpdatedAt.Format(storage.TimeLayout),
		Metadata:    r.Metadata,
	}
	for _, t := range r.Triggers {
		rec.Triggers = append(rec.Triggers, storage.SpecRecord{Kind: t.Kind(), Config: t.Config()})
	}
	for _, c := range r.Conditions {
		rec.Conditions = append(rec.Conditions, storage.SpecRecord{Kind: c.Kind(), Config: c.Config()})
	}
	for _, a := range r.Actions {
		rec.Actions = append(rec.Actions, storage.SpecRecord{Kind: a.Kind(), Config: a.Config()})
	}
	return rec
}

// FromRecord rebuilds a rule from its persisted snapshot. Entries with
// unsupported kinds are skipped; their labels ("trigger:kind") come back
// in dropped so callers can detect partial construction.
func FromRecord(rec storage.RuleRecord) (*Rule, []string) {
	r := &Rule{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Enabled:     rec.Enabled,
		Metadata:    rec.Metadata,
	}
	if t, err := time.Parse(storage.TimeLayout, rec.CreatedAt); err == nil {
		r.CreatedAt = t
	} else {
		r.CreatedAt = time.Now()
	}
	if t, err := time.Parse(storage.TimeLayout, rec.UpdatedAt); err == nil {
		r.UpdatedAt = t
	} else {
		r.UpdatedAt = r.CreatedAt
	}

	var dropped []string
	r.Triggers, dropped = buildTriggers(rec.Triggers, dropped)
	r.Conditions, dropped = buildConditions(rec.Conditions, dropped)
	r.Actions, dropped = buildActions(rec.Actions, dropped)
	return r, dropped
}

func buildTriggers(specs []storage.SpecRecord, dropped []string) ([]Trigger, []string) {
	out := make([]Trigger, 0, len(specs))
	for _, s := range specs {
		t, err := NewTrigger(s)
		if err != nil {
			dropped = append(dropped, "trigger:"+s.Kind)
			continue
		}
		out = append(out, t)
	}
	return out, dropped
}

func buildConditions(specs []storage.SpecRecord, dropped []string) ([]Condition, []string) {
	out := make([]Condition, 0, len(specs))
	for _, s := range specs {
		c, err := NewCondition(s)
		if err != nil {
			dropped = append(dropped, "condition:"+s.Kind)
			continue
		}
		out = append(out, c)
	}
	return out, dropped
}

func buildActions(specs []storage.SpecRecord, dropped []string) ([]Action, []string) {
	out := make([]Action, 0, len(specs))
	for _, s := range specs {
		a, err := NewAction(s)
		if err != nil {
			dropped = append(dropped, "action:"+s.Kind)
			continue
		}
		out = append(out, a)
	}
	return out, dropped
}
