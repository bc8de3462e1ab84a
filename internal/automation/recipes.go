package automation

import (
	"time"

	"taskflow/internal/rules"
	"taskflow/internal/storage"
)

// Recipes assemble single-trigger rules for the common automation
// shapes. They all go through CreateRule, so partial construction
// surfaces the same dropped-entry list.

// OnTaskCreated registers a rule firing when a task is created. taskID
// and priority narrow the trigger when non-empty.
func (s *System) OnTaskCreated(name string, actions, conditions []storage.SpecRecord, taskID, priority string) (*rules.Rule, []string) {
	cfg := map[string]any{}
	if taskID != "" {
		cfg["task_id"] = taskID
	}
	if priority != "" {
		cfg["priority"] = priority
	}
	return s.CreateRule(name, "Triggers when a task is created",
		[]storage.SpecRecord{{Kind: rules.EventTaskCreated, Config: cfg}},
		conditions, actions, true)
}

// OnStatusChanged registers a rule firing on a status transition.
// Empty fromStatus/toStatus leave that side of the transition open.
func (s *System) OnStatusChanged(name string, actions, conditions []storage.SpecRecord, taskID, fromStatus, toStatus string) (*rules.Rule, []string) {
	cfg := map[string]any{}
	if taskID != "" {
		cfg["task_id"] = taskID
	}
	if fromStatus != "" {
		cfg["from_status"] = fromStatus
	}
	if toStatus != "" {
		cfg["to_status"] = toStatus
	}
	return s.CreateRule(name, "Triggers when a task's status changes",
		[]storage.SpecRecord{{Kind: rules.EventTaskStatusChanged, Config: cfg}},
		conditions, actions, true)
}

// RecurringTask pairs the scheduled event with the rule that consumes it.
type RecurringTask struct {
	RuleID     string
	ScheduleID string
	Frequency  string
}

// RecurringTaskCreation schedules a recurring event and registers the
// paired rule that creates a task from template on every fire. A zero
// start time means the first occurrence is computed from now.
func (s *System) RecurringTaskCreation(name, frequency string, template map[string]any, start time.Time, recurrence map[string]any) (RecurringTask, error) {
	if start.IsZero() {
		start = time.Now()
	}
	cfg := map[string]any{}
	for k, v := range recurrence {
		cfg[k] = v
	}
	cfg["frequency"] = frequency

	scheduleID, err := s.ScheduleEvent("recurring", start,
		map[string]any{"task_template": template}, true, cfg)
	if err != nil {
		return RecurringTask{}, err
	}

	rule, _ := s.CreateRule(name, "Creates a recurring task ("+frequency+")",
		[]storage.SpecRecord{{
			Kind: rules.EventRecurring,
			Config: map[string]any{
				"schedule_id": scheduleID,
				"frequency":   frequency,
			},
		}},
		nil,
		[]storage.SpecRecord{{Kind: rules.ActionCreateTask, Config: template}},
		true)

	return RecurringTask{
		RuleID:     rule.ID,
		ScheduleID: scheduleID,
		Frequency:  frequency,
	}, nil
}

// DeadlineReminder registers a rule notifying daysBefore days ahead of a
// task's due date.
func (s *System) DeadlineReminder(name string, daysBefore int, message, priority string) (*rules.Rule, []string) {
	if priority == "" {
		priority = "medium"
	}
	return s.CreateRule(name, "Sends a reminder before a task's deadline",
		[]storage.SpecRecord{{
			Kind:   rules.EventDeadlineApproaching,
			Config: map[string]any{"days_before": daysBefore},
		}},
		nil,
		[]storage.SpecRecord{{
			Kind: rules.ActionSendNotification,
			Config: map[string]any{
				"type":     "task_deadline_approaching",
				"title":    "Deadline approaching",
				"message":  message,
				"priority": priority,
			},
		}},
		true)
}

// DependencyCompletedNotification registers a rule notifying when a task
// with dependencies reaches done.
func (s *System) DependencyCompletedNotification(name, message, priority string) (*rules.Rule, []string) {
	if priority == "" {
		priority = "medium"
	}
	return s.CreateRule(name, "Notifies when a task's dependencies complete",
		[]storage.SpecRecord{{
			Kind:   rules.EventTaskStatusChanged,
			Config: map[string]any{"to_status": "done"},
		}},
		[]storage.SpecRecord{{
			Kind:   rules.CondTaskHasDependencies,
			Config: map[string]any{"has_dependencies": true},
		}},
		[]storage.SpecRecord{{
			Kind: rules.ActionSendNotification,
			Config: map[string]any{
				"type":     "task_dependency_completed",
				"title":    "Dependency completed",
				"message":  message,
				"priority": priority,
			},
		}},
		true)
}
