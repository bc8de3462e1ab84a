package rules

import (
	"context"
	"time"

	"taskflow/internal/storage"
	"taskflow/internal/webhook"
)

// TaskManager is the capability contract for task mutations. The engine
// never touches task storage directly.
type TaskManager interface {
	AddTask(ctx context.Context, fields map[string]any) (*Task, error)
	UpdateTask(ctx context.Context, id string, fields map[string]any) (*Task, error)
	AddDependency(ctx context.Context, id, depID string) error
	RemoveDependency(ctx context.Context, id, depID string) error
	CreateTaskFromTemplate(ctx context.Context, templateID string, overrides map[string]any) (*Task, error)
}

// Notification is the record handed to the notifier collaborator.
type Notification struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
	UserID   string `json:"user_id,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
}

type Notifier interface {
	CreateNotification(ctx context.Context, n Notification) (Notification, error)
}

// Collaborators are the external capabilities available to conditions and
// actions. Any nil field simply means that capability is unavailable;
// actions needing it fail with MissingCollaboratorError.
type Collaborators struct {
	Tasks    TaskManager
	Notifier Notifier
	Webhooks *webhook.Client

	// Now overrides the current time for past-due/time-of-day evaluation.
	// Nil means time.Now.
	Now func() time.Time

	// DependencyTasks resolves dependency ids to task snapshots for the
	// dependencies-completed condition. Nil means no dependency data.
	DependencyTasks func(ids []string) map[string]*Task
}

// EvalContext is built fresh for every (event, rule) pairing. It merges
// the event, the matched rule's snapshot, a timestamp and the
// collaborator set.
type EvalContext struct {
	Event Event

	// Rule is the matched rule's record as of evaluation time.
	Rule     storage.RuleRecord
	RuleID   string
	RuleName string

	Timestamp time.Time

	Task   *Task
	TaskID string

	Collaborators

	// dependency snapshots resolved once per context
	depTasks map[string]*Task
}

// CurrentTime resolves the injectable clock.
func (c *EvalContext) CurrentTime() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *EvalContext) dependencySnapshots(ids []string) map[string]*Task {
	if c == nil {
		return nil
	}
	if c.depTasks != nil {
		return c.depTasks
	}
	if c.DependencyTasks == nil {
		return nil
	}
	c.depTasks = c.DependencyTasks(ids)
	return c.depTasks
}
