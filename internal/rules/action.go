package rules

import (
	"context"
	"time"

	"taskflow/internal/storage"
	"taskflow/internal/webhook"
)

// Action kinds.
const (
	ActionCreateTask       = "create_task"
	ActionUpdateTask       = "update_task"
	ActionAssignTask       = "assign_task"
	ActionAddDependency    = "add_dependency"
	ActionRemoveDependency = "remove_dependency"
	ActionSendNotification = "send_notification"
	ActionCallWebhook      = "call_webhook"
)

// Action performs one side-effecting step. A failure is returned, never
// panicked; the owning rule captures it as that action's result entry and
// keeps running sibling actions.
type Action interface {
	Kind() string
	Config() map[string]any
	Execute(ctx context.Context, ec *EvalContext) (map[string]any, error)
}

type actionCtor func(cfg map[string]any) Action

var actionRegistry = map[string]actionCtor{
	ActionCreateTask:       func(cfg map[string]any) Action { return &createTaskAction{spec{ActionCreateTask, cfg}} },
	ActionUpdateTask:       func(cfg map[string]any) Action { return &updateTaskAction{spec{ActionUpdateTask, cfg}} },
	ActionAssignTask:       func(cfg map[string]any) Action { return &assignTaskAction{spec{ActionAssignTask, cfg}} },
	ActionAddDependency:    func(cfg map[string]any) Action { return &addDependencyAction{spec{ActionAddDependency, cfg}} },
	ActionRemoveDependency: func(cfg map[string]any) Action { return &removeDependencyAction{spec{ActionRemoveDependency, cfg}} },
	ActionSendNotification: func(cfg map[string]any) Action { return &sendNotificationAction{spec{ActionSendNotification, cfg}} },
	ActionCallWebhook:      func(cfg map[string]any) Action { return &callWebhookAction{spec{ActionCallWebhook, cfg}} },
}

// NewAction builds an action from its persisted form. A create_task
// config carrying template_id becomes the template variant. Unknown kinds
// fail with ConfigurationError.
func NewAction(rec storage.SpecRecord) (Action, error) {
	if rec.Kind == ActionCreateTask && cfgString(rec.Config, "template_id") != "" {
		return &createTaskFromTemplateAction{spec{ActionCreateTask, rec.Config}}, nil
	}
	ctor, ok := actionRegistry[rec.Kind]
	if !ok {
		return nil, &ConfigurationError{Entry: "action", Kind: rec.Kind}
	}
	return ctor(rec.Config), nil
}

// targetTaskID resolves the task an action operates on: explicit config
// first, then the context's task.
func targetTaskID(cfg map[string]any, ec *EvalContext, action string) (string, error) {
	if id := cfgString(cfg, "task_id"); id != "" {
		return id, nil
	}
	if ec.Task != nil && ec.Task.ID != "" {
		return ec.Task.ID, nil
	}
	if ec.TaskID != "" {
		return ec.TaskID, nil
	}
	return "", &MissingTargetError{Action: action}
}

type createTaskAction struct{ spec }

func (a *createTaskAction) Execute(ctx context.Context, ec *EvalContext) (map[string]any, error) {
	if ec.Tasks == nil {
		return nil, &MissingCollaboratorError{Collaborator: "task manager"}
	}
	fields := map[string]any{
		"title":       "New Task",
		"description": "",
		"priority":    "medium",
		"status":      "pending",
		"created_at":  ec.CurrentTime().Format(storage.TimeLayout),
	}
	if v := cfgString(a.cfg, "title"); v != "" {
		fields["title"] = v
	}
	if v := cfgString(a.cfg, "description"); v != "" {
		fields["description"] = v
	}
	if v := cfgString(a.cfg, "priority"); v != "" {
		fields["priority"] = v
	}
	if v := cfgString(a.cfg, "status"); v != "" {
		fields["status"] = v
	}
	for _, key := range []string{"assignee", "dependencies", "due_date", "tags"} {
		if cfgHas(a.cfg, key) {
			fields[key] = a.cfg[key]
		}
	}

	task, err := ec.Tasks.AddTask(ctx, fields)
	if err != nil {
		return nil, err
	}
	return map[string]any{"task_id": task.ID, "task": task}, nil
}

type createTaskFromTemplateAction struct{ spec }

func (a *createTaskFromTemplateAction) Execute(ctx context.Context, ec *EvalContext) (map[string]any, error) {
	if ec.Tasks == nil {
		return nil, &MissingCollaboratorError{Collaborator: "task manager"}
	}
	templateID := cfgString(a.cfg, "template_id")
	if templateID == "" {
		return nil, &ValidationError{Field: "template_id"}
	}
	overrides := cfgMap(a.cfg, "override_values")

	task, err := ec.Tasks.CreateTaskFromTemplate(ctx, templateID, overrides)
	if err != nil {
		return nil, err
	}
	return map[string]any{"task_id": task.ID, "task": task}, nil
}

type updateTaskAction struct{ spec }

func (a *updateTaskAction) Execute(ctx context.Context, ec *EvalContext) (map[string]any, error) {
	if ec.Tasks == nil {
		return nil, &MissingCollaboratorError{Collaborator: "task manager"}
	}
	taskID, err := targetTaskID(a.cfg, ec, ActionUpdateTask)
	if err != nil {
		return nil, err
	}
	updates := cfgMap(a.cfg, "updates")
	if len(updates) == 0 {
		return nil, &ValidationError{Field: "updates", Reason: "no updates provided"}
	}

	task, err := ec.Tasks.UpdateTask(ctx, taskID, updates)
	if err != nil {
		return nil, err
	}
	return map[string]any{"task_id": taskID, "updates": updates, "task": task}, nil
}

type assignTaskAction struct{ spec }

func (a *assignTaskAction) Execute(ctx context.Context, ec *EvalContext) (map[string]any, error) {
	if ec.Tasks == nil {
		return nil, &MissingCollaboratorError{Collaborator: "task manager"}
	}
	taskID, err := targetTaskID(a.cfg, ec, ActionAssignTask)
	if err != nil {
		return nil, err
	}
	assignee := cfgString(a.cfg, "assignee")
	if assignee == "" {
		return nil, &ValidationError{Field: "assignee"}
	}

	task, err := ec.Tasks.UpdateTask(ctx, taskID, map[string]any{"assignee": assignee})
	if err != nil {
		return nil, err
	}
	return map[string]any{"task_id": taskID, "assignee": assignee, "task": task}, nil
}

type addDependencyAction struct{ spec }

func (a *addDependencyAction) Execute(ctx context.Context, ec *EvalContext) (map[string]any, error) {
	if ec.Tasks == nil {
		return nil, &MissingCollaboratorError{Collaborator: "task manager"}
	}
	taskID, err := targetTaskID(a.cfg, ec, ActionAddDependency)
	if err != nil {
		return nil, err
	}
	depID := cfgString(a.cfg, "dependency_id")
	if depID == "" {
		return nil, &ValidationError{Field: "dependency_id"}
	}
	if err := ec.Tasks.AddDependency(ctx, taskID, depID); err != nil {
		return nil, err
	}
	return map[string]any{"task_id": taskID, "dependency_id": depID}, nil
}

type removeDependencyAction struct{ spec }

func (a *removeDependencyAction) Execute(ctx context.Context, ec *EvalContext) (map[string]any, error) {
	if ec.Tasks == nil {
		return nil, &MissingCollaboratorError{Collaborator: "task manager"}
	}
	taskID, err := targetTaskID(a.cfg, ec, ActionRemoveDependency)
	if err != nil {
		return nil, err
	}
	depID := cfgString(a.cfg, "dependency_id")
	if depID == "" {
		return nil, &ValidationError{Field: "dependency_id"}
	}
	if err := ec.Tasks.RemoveDependency(ctx, taskID, depID); err != nil {
		return nil, err
	}
	return map[string]any{"task_id": taskID, "dependency_id": depID}, nil
}

type sendNotificationAction struct{ spec }

func (a *sendNotificationAction) Execute(ctx context.Context, ec *EvalContext) (map[string]any, error) {
	if ec.Notifier == nil {
		return nil, &MissingCollaboratorError{Collaborator: "notification system"}
	}
	n := Notification{
		Type:     "system",
		Title:    "Notification",
		Priority: "medium",
	}
	if v := cfgString(a.cfg, "type"); v != "" {
		n.Type = v
	}
	if v := cfgString(a.cfg, "title"); v != "" {
		n.Title = v
	}
	n.Message = cfgString(a.cfg, "message")
	if v := cfgString(a.cfg, "priority"); v != "" {
		n.Priority = v
	}
	n.UserID = cfgString(a.cfg, "user_id")
	n.TaskID = cfgString(a.cfg, "task_id")
	if n.TaskID == "" {
		if ec.Task != nil {
			n.TaskID = ec.Task.ID
		} else {
			n.TaskID = ec.TaskID
		}
	}

	created, err := ec.Notifier.CreateNotification(ctx, n)
	if err != nil {
		return nil, err
	}
	return map[string]any{"notification_id": created.ID, "notification": created}, nil
}

type callWebhookAction struct{ spec }

func (a *callWebhookAction) Execute(ctx context.Context, ec *EvalContext) (map[string]any, error) {
	if ec.Webhooks == nil {
		return nil, &MissingCollaboratorError{Collaborator: "webhook client"}
	}
	url := cfgString(a.cfg, "url")
	if url == "" {
		return nil, &ValidationError{Field: "url", Reason: "webhook URL not provided"}
	}

	req := webhook.Request{
		Method:  cfgString(a.cfg, "method"),
		URL:     url,
		Headers: stringMap(cfgMap(a.cfg, "headers")),
		Body:    a.cfg["data"],
	}
	if secs, ok := cfgFloat(a.cfg, "timeout"); ok && secs > 0 {
		req.Timeout = time.Duration(secs * float64(time.Second))
	}

	res, err := ec.Webhooks.Do(ctx, req)
	if err != nil {
		status := 0
		if res != nil {
			status = res.Status
		}
		return nil, &ExternalCallError{URL: url, Status: status, Err: err}
	}
	return map[string]any{"status_code": res.Status, "response": res.Body}, nil
}

func stringMap(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
