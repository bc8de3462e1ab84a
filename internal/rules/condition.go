package rules

import (
	"taskflow/internal/storage"
)

// Condition kinds.
const (
	CondTaskStatus                = "task_status"
	CondTaskPriority              = "task_priority"
	CondTaskAssignee              = "task_assignee"
	CondTaskHasDependencies       = "task_has_dependencies"
	CondTaskDependenciesCompleted = "task_dependencies_completed"
	CondTaskPastDue               = "task_past_due"
	CondTaskHasTags               = "task_has_tags"
	CondTimeOfDay                 = "time_of_day"
	CondDayOfWeek                 = "day_of_week"
)

// Condition gates rule execution. Evaluate returns false, never panics
// outward, when the task is absent or the config is malformed.
type Condition interface {
	Kind() string
	Config() map[string]any
	Evaluate(c *EvalContext) bool
}

type conditionCtor func(cfg map[string]any) Condition

var conditionRegistry = map[string]conditionCtor{
	CondTaskStatus:                func(cfg map[string]any) Condition { return &statusCondition{spec{CondTaskStatus, cfg}} },
	CondTaskPriority:              func(cfg map[string]any) Condition { return &priorityCondition{spec{CondTaskPriority, cfg}} },
	CondTaskAssignee:              func(cfg map[string]any) Condition { return &assigneeCondition{spec{CondTaskAssignee, cfg}} },
	CondTaskHasDependencies:       func(cfg map[string]any) Condition { return &hasDependenciesCondition{spec{CondTaskHasDependencies, cfg}} },
	CondTaskDependenciesCompleted: func(cfg map[string]any) Condition { return &dependenciesCompletedCondition{spec{CondTaskDependenciesCompleted, cfg}} },
	CondTaskPastDue:               func(cfg map[string]any) Condition { return &pastDueCondition{spec{CondTaskPastDue, cfg}} },
	CondTaskHasTags:               func(cfg map[string]any) Condition { return &hasTagsCondition{spec{CondTaskHasTags, cfg}} },
	CondTimeOfDay:                 func(cfg map[string]any) Condition { return &timeOfDayCondition{spec{CondTimeOfDay, cfg}} },
	CondDayOfWeek:                 func(cfg map[string]any) Condition { return &dayOfWeekCondition{spec{CondDayOfWeek, cfg}} },
}

// NewCondition builds a condition from its persisted form. Unknown kinds
// fail with ConfigurationError.
func NewCondition(rec storage.SpecRecord) (Condition, error) {
	ctor, ok := conditionRegistry[rec.Kind]
	if !ok {
		return nil, &ConfigurationError{Entry: "condition", Kind: rec.Kind}
	}
	return ctor(rec.Config), nil
}

type statusCondition struct{ spec }

func (c *statusCondition) Evaluate(ctx *EvalContext) bool {
	if ctx.Task == nil || ctx.Task.Status == "" {
		return false
	}
	want := cfgString(c.cfg, "status")
	if want == "" {
		return false
	}
	switch cfgString(c.cfg, "operator") {
	case "", "eq":
		return ctx.Task.Status == want
	case "ne":
		return ctx.Task.Status != want
	default:
		return false
	}
}

type priorityCondition struct{ spec }

func (c *priorityCondition) Evaluate(ctx *EvalContext) bool {
	if ctx.Task == nil || ctx.Task.Priority == "" {
		return false
	}
	want := cfgString(c.cfg, "priority")
	if want == "" {
		return false
	}
	got := ctx.Task.Priority

	op := cfgString(c.cfg, "operator")
	switch op {
	case "", "eq":
		return got == want
	case "ne":
		return got != want
	}

	// Ordered comparison requires both priorities to have a rank.
	gotRank, ok := priorityOrder(got)
	if !ok {
		return false
	}
	wantRank, ok := priorityOrder(want)
	if !ok {
		return false
	}
	return compareInts(gotRank, wantRank, op)
}

type assigneeCondition struct{ spec }

func (c *assigneeCondition) Evaluate(ctx *EvalContext) bool {
	if ctx.Task == nil {
		return false
	}
	assignee := ctx.Task.Assignee
	if want, ok := cfgBool(c.cfg, "is_assigned"); ok {
		return (assignee != "") == want
	}
	match := cfgString(c.cfg, "assignee")
	if match == "" {
		return false
	}
	return assignee == match
}

type hasDependenciesCondition struct{ spec }

func (c *hasDependenciesCondition) Evaluate(ctx *EvalContext) bool {
	if ctx.Task == nil {
		return false
	}
	deps := ctx.Task.Dependencies
	if want, ok := cfgBool(c.cfg, "has_dependencies"); ok {
		return (len(deps) > 0) == want
	}
	if count, ok := cfgInt(c.cfg, "count"); ok {
		return compareInts(len(deps), count, cfgString(c.cfg, "operator"))
	}
	return len(deps) > 0
}

type dependenciesCompletedCondition struct{ spec }

func (c *dependenciesCompletedCondition) Evaluate(ctx *EvalContext) bool {
	if ctx.Task == nil {
		return false
	}
	deps := ctx.Task.Dependencies
	if len(deps) == 0 {
		// No dependencies, so they're all "completed".
		return true
	}
	depTasks := ctx.dependencySnapshots(deps)
	if len(depTasks) == 0 {
		return false
	}

	completed := 0
	for _, id := range deps {
		if t := depTasks[id]; t != nil && t.Status == "done" {
			completed++
		}
	}

	if want, ok := cfgBool(c.cfg, "all_completed"); ok {
		return (completed == len(deps)) == want
	}
	if pct, ok := cfgFloat(c.cfg, "percentage_completed"); ok {
		return float64(completed)/float64(len(deps))*100 >= pct
	}
	return completed == len(deps)
}

type pastDueCondition struct{ spec }

func (c *pastDueCondition) Evaluate(ctx *EvalContext) bool {
	if ctx.Task == nil || ctx.Task.DueDate == nil {
		return false
	}
	due := *ctx.Task.DueDate
	now := ctx.CurrentTime()
	pastDue := now.After(due)

	if want, ok := cfgBool(c.cfg, "is_past_due"); ok {
		return pastDue == want
	}
	if !pastDue {
		return false
	}
	if days, ok := cfgInt(c.cfg, "days_overdue"); ok {
		overdue := int(now.Sub(due).Hours() / 24)
		return compareInts(overdue, days, cfgString(c.cfg, "operator"))
	}
	return pastDue
}

type hasTagsCondition struct{ spec }

func (c *hasTagsCondition) Evaluate(ctx *EvalContext) bool {
	if ctx.Task == nil {
		return false
	}
	want := cfgStrings(c.cfg, "tags")
	if len(want) == 0 {
		return false
	}
	have := map[string]struct{}{}
	for _, t := range ctx.Task.Tags {
		have[t] = struct{}{}
	}
	matchAll, _ := cfgBool(c.cfg, "match_all")
	if matchAll {
		for _, t := range want {
			if _, ok := have[t]; !ok {
				return false
			}
		}
		return true
	}
	for _, t := range want {
		if _, ok := have[t]; ok {
			return true
		}
	}
	return false
}

type timeOfDayCondition struct{ spec }

func (c *timeOfDayCondition) Evaluate(ctx *EvalContext) bool {
	startStr := cfgString(c.cfg, "start_time")
	endStr := cfgString(c.cfg, "end_time")
	if startStr == "" || endStr == "" {
		return false
	}
	start, err := parseClockMinutes(startStr)
	if err != nil {
		return false
	}
	end, err := parseClockMinutes(endStr)
	if err != nil {
		return false
	}
	now := ctx.CurrentTime()
	cur := now.Hour()*60 + now.Minute()

	if start <= end {
		return start <= cur && cur <= end
	}
	// Range spans midnight.
	return cur >= start || cur <= end
}

type dayOfWeekCondition struct{ spec }

func (c *dayOfWeekCondition) Evaluate(ctx *EvalContext) bool {
	days := cfgInts(c.cfg, "days")
	if len(days) == 0 {
		return false
	}
	cur := int(ctx.CurrentTime().Weekday())
	for _, d := range days {
		if d == cur {
			return true
		}
	}
	return false
}
