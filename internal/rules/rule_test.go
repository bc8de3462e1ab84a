package rules

import (
	"context"
	"testing"
	"time"

	"taskflow/internal/storage"
	"taskflow/pkg/logx"
)

func TestDisabledRuleDegrades(t *testing.T) {
	rule := &Rule{
		ID:      "r1",
		Name:    "disabled",
		Enabled: false,
		Triggers: []Trigger{
			mustTrigger(EventTaskCreated, nil),
		},
		Actions: []Action{
			mustAction(ActionSendNotification, map[string]any{"message": "hi"}),
		},
	}

	ev := Event{Type: EventTaskCreated}
	if rule.MatchesEvent(ev, logx.Nop()) {
		t.Fatal("disabled rule must not match")
	}
	if rule.Evaluate(&EvalContext{}, logx.Nop()) {
		t.Fatal("disabled rule must evaluate false")
	}
	if got := rule.Execute(context.Background(), &EvalContext{}); len(got) != 0 {
		t.Fatalf("disabled rule must execute nothing, got %d results", len(got))
	}
}

func TestRuleTriggerOR(t *testing.T) {
	rule := &Rule{
		ID:      "r1",
		Enabled: true,
		Triggers: []Trigger{
			mustTrigger(EventTaskCreated, nil),
			mustTrigger(EventTaskAssigned, nil),
		},
	}
	if !rule.MatchesEvent(Event{Type: EventTaskAssigned}, logx.Nop()) {
		t.Fatal("any matching trigger suffices")
	}
	if rule.MatchesEvent(Event{Type: EventTaskUpdated}, logx.Nop()) {
		t.Fatal("no trigger matches task_updated")
	}
}

func TestRuleConditionAND(t *testing.T) {
	rule := &Rule{
		ID:      "r1",
		Enabled: true,
		Conditions: []Condition{
			mustCondition(CondTaskStatus, map[string]any{"status": "pending"}),
			mustCondition(CondTaskHasTags, map[string]any{"tags": []any{"ops"}}),
		},
	}

	both := ctxWithTask(&Task{Status: "pending", Tags: []string{"ops"}})
	if !rule.Evaluate(both, logx.Nop()) {
		t.Fatal("both conditions hold")
	}
	one := ctxWithTask(&Task{Status: "pending"})
	if rule.Evaluate(one, logx.Nop()) {
		t.Fatal("one failing condition must fail the rule")
	}

	// Empty condition list is vacuously true.
	bare := &Rule{ID: "r2", Enabled: true}
	if !bare.Evaluate(&EvalContext{}, logx.Nop()) {
		t.Fatal("no conditions means always true")
	}
}

func TestActionIsolation(t *testing.T) {
	tasks := newFakeTaskManager()
	notifier := &fakeNotifier{}
	ec := &EvalContext{
		Task: &Task{ID: "t1"},
		Collaborators: Collaborators{
			Tasks:    tasks,
			Notifier: notifier,
		},
	}

	rule := &Rule{
		ID:      "r1",
		Enabled: true,
		Actions: []Action{
			mustAction(ActionSendNotification, map[string]any{"message": "first"}),
			// Fails: no assignee configured.
			mustAction(ActionAssignTask, nil),
			mustAction(ActionSendNotification, map[string]any{"message": "third"}),
		},
	}

	results := rule.Execute(context.Background(), ec)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed != 1 || results[1].Success {
		t.Fatalf("exactly the second action should fail: %+v", results)
	}
	if results[1].Error == "" {
		t.Fatal("failed action must carry an error message")
	}
	if notifier.count() != 2 {
		t.Fatalf("both notifications should have been sent, got %d", notifier.count())
	}
}

func TestMissingCollaborator(t *testing.T) {
	rule := &Rule{
		ID:      "r1",
		Enabled: true,
		Actions: []Action{
			mustAction(ActionCreateTask, map[string]any{"title": "x"}),
		},
	}
	results := rule.Execute(context.Background(), &EvalContext{})
	if len(results) != 1 || results[0].Success {
		t.Fatalf("missing task manager should produce a failed result: %+v", results)
	}
}

func TestFromRecordDropsUnknownKinds(t *testing.T) {
	rec := storage.RuleRecord{
		ID:   "r1",
		Name: "partial",
		Triggers: []storage.SpecRecord{
			{Kind: EventTaskCreated},
			{Kind: "task_teleported"},
		},
		Conditions: []storage.SpecRecord{
			{Kind: "phase_of_moon"},
		},
		Actions: []storage.SpecRecord{
			{Kind: ActionSendNotification, Config: map[string]any{"message": "m"}},
		},
		Enabled:   true,
		CreatedAt: time.Now().Format(storage.TimeLayout),
		UpdatedAt: time.Now().Format(storage.TimeLayout),
	}

	rule, dropped := FromRecord(rec)
	if len(rule.Triggers) != 1 || len(rule.Conditions) != 0 || len(rule.Actions) != 1 {
		t.Fatalf("unexpected shape: %d triggers, %d conditions, %d actions",
			len(rule.Triggers), len(rule.Conditions), len(rule.Actions))
	}
	want := map[string]bool{"trigger:task_teleported": true, "condition:phase_of_moon": true}
	if len(dropped) != 2 {
		t.Fatalf("dropped = %v", dropped)
	}
	for _, d := range dropped {
		if !want[d] {
			t.Fatalf("unexpected dropped entry %q", d)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	created := time.Date(2026, 2, 1, 9, 30, 0, 123456789, time.UTC)
	rule := &Rule{
		ID:          "r1",
		Name:        "round trip",
		Description: "d",
		Triggers: []Trigger{
			mustTrigger(EventTaskStatusChanged, map[string]any{"to_status": "done"}),
		},
		Conditions: []Condition{
			mustCondition(CondTaskHasDependencies, map[string]any{"has_dependencies": true}),
		},
		Actions: []Action{
			mustAction(ActionSendNotification, map[string]any{"message": "done"}),
		},
		Enabled:   true,
		CreatedAt: created,
		UpdatedAt: created,
		Metadata:  map[string]any{"source": "test"},
	}

	rec := rule.Record()
	back, dropped := FromRecord(rec)
	if len(dropped) != 0 {
		t.Fatalf("round trip dropped entries: %v", dropped)
	}
	if back.ID != rule.ID || back.Name != rule.Name || !back.Enabled {
		t.Fatalf("identity lost: %+v", back)
	}
	if !back.CreatedAt.Equal(created) || !back.UpdatedAt.Equal(created) {
		t.Fatalf("timestamps lost: %v / %v", back.CreatedAt, back.UpdatedAt)
	}
	if back.Triggers[0].Kind() != EventTaskStatusChanged ||
		back.Triggers[0].Config()["to_status"] != "done" {
		t.Fatalf("trigger config lost: %+v", back.Triggers[0].Config())
	}
}

func TestCreateTaskFromTemplateSelection(t *testing.T) {
	a := mustAction(ActionCreateTask, map[string]any{"template_id": "tpl-1"})
	if _, ok := a.(*createTaskFromTemplateAction); !ok {
		t.Fatalf("template_id config should select the template variant, got %T", a)
	}
	plain := mustAction(ActionCreateTask, map[string]any{"title": "x"})
	if _, ok := plain.(*createTaskAction); !ok {
		t.Fatalf("plain config should select create_task, got %T", plain)
	}
}
