package rules

import "time"

// Event kinds understood by the trigger catalog.
const (
	EventTaskCreated         = "task_created"
	EventTaskUpdated         = "task_updated"
	EventTaskStatusChanged   = "task_status_changed"
	EventTaskAssigned        = "task_assigned"
	EventScheduled           = "scheduled"
	EventRecurring           = "recurring"
	EventDeadlineApproaching = "deadline_approaching"
	EventManual              = "manual"
)

// Event describes something that happened. Events are ephemeral: they are
// produced by collaborators or the scheduler, evaluated, and discarded.
type Event struct {
	Type      string
	TaskID    string
	Task      *Task
	Timestamp time.Time

	// Payload carries type-specific fields (from_status, schedule_id,
	// updated_fields, ...). Keys follow the persisted snake_case names.
	Payload map[string]any
}

// payloadString returns ev.Payload[key] as a string, or "" when absent
// or of another type.
func (ev Event) payloadString(key string) string {
	if ev.Payload == nil {
		return ""
	}
	s, _ := ev.Payload[key].(string)
	return s
}

func (ev Event) payloadInt(key string) (int, bool) {
	if ev.Payload == nil {
		return 0, false
	}
	return anyInt(ev.Payload[key])
}
