package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"taskflow/internal/rules"
	"taskflow/internal/storage"
	"taskflow/pkg/logx"
)

type fakeTasks struct {
	mu      sync.Mutex
	created []map[string]any
	nextID  int
}

func (f *fakeTasks) AddTask(_ context.Context, fields map[string]any) (*rules.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.created = append(f.created, fields)
	title, _ := fields["title"].(string)
	return &rules.Task{ID: fmt.Sprintf("task-%d", f.nextID), Title: title}, nil
}

func (f *fakeTasks) UpdateTask(_ context.Context, id string, fields map[string]any) (*rules.Task, error) {
	return &rules.Task{ID: id}, nil
}

func (f *fakeTasks) AddDependency(context.Context, string, string) error    { return nil }
func (f *fakeTasks) RemoveDependency(context.Context, string, string) error { return nil }

func (f *fakeTasks) CreateTaskFromTemplate(_ context.Context, templateID string, _ map[string]any) (*rules.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return &rules.Task{ID: fmt.Sprintf("task-%d", f.nextID), Title: templateID}, nil
}

func (f *fakeTasks) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []rules.Notification
}

func (f *fakeNotifier) CreateNotification(_ context.Context, n rules.Notification) (rules.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = fmt.Sprintf("n-%d", len(f.sent)+1)
	f.sent = append(f.sent, n)
	return n, nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeNotifier) last() rules.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return rules.Notification{}
	}
	return f.sent[len(f.sent)-1]
}

func newTestSystem(t *testing.T, collab rules.Collaborators) *System {
	t.Helper()
	s := New(Options{Log: logx.Nop(), Tick: 10 * time.Millisecond, Collaborators: collab})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleTaskEventReachesRules(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestSystem(t, rules.Collaborators{Notifier: notifier})
	s.Start()

	_, dropped := s.OnTaskCreated("welcome",
		[]storage.SpecRecord{{
			Kind:   rules.ActionSendNotification,
			Config: map[string]any{"message": "task created"},
		}},
		nil, "", "high")
	if len(dropped) != 0 {
		t.Fatalf("dropped = %v", dropped)
	}

	ok := s.HandleTaskEvent(rules.EventTaskCreated,
		&rules.Task{ID: "t1", Priority: "high"},
		map[string]any{"priority": "high"})
	if !ok {
		t.Fatal("enqueue should succeed")
	}

	waitFor(t, "notification", func() bool { return notifier.count() == 1 })
	if got := notifier.last(); got.Message != "task created" || got.TaskID != "t1" {
		t.Fatalf("notification = %+v", got)
	}
}

func TestScheduledEventFlowsIntoEngine(t *testing.T) {
	tasks := &fakeTasks{}
	s := newTestSystem(t, rules.Collaborators{Tasks: tasks})
	s.Start()

	rt, err := s.RecurringTaskCreation("standup", "daily",
		map[string]any{"title": "Daily standup", "priority": "low"},
		time.Now().Add(-time.Second), nil)
	if err != nil {
		t.Fatalf("recurring task creation: %v", err)
	}
	if rt.RuleID == "" || rt.ScheduleID == "" || rt.Frequency != "daily" {
		t.Fatalf("result = %+v", rt)
	}

	waitFor(t, "task creation", func() bool { return tasks.createdCount() >= 1 })

	// The schedule survives its fire and points at the next day.
	ev, ok := s.ScheduledEvent(rt.ScheduleID)
	if !ok {
		t.Fatal("recurring schedule should still be pending")
	}
	if !ev.ScheduledTime.After(time.Now()) {
		t.Fatalf("next occurrence should be in the future, got %v", ev.ScheduledTime)
	}
}

func TestTriggerRule(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestSystem(t, rules.Collaborators{Notifier: notifier})

	rule, _ := s.CreateRule("manual ping", "",
		[]storage.SpecRecord{{Kind: rules.EventManual}},
		nil,
		[]storage.SpecRecord{{
			Kind:   rules.ActionSendNotification,
			Config: map[string]any{"message": "pinged"},
		}},
		true)

	outcomes, found := s.TriggerRule(context.Background(), rule.ID, map[string]any{"reason": "test"})
	if !found {
		t.Fatal("rule should be found")
	}
	matched := 0
	for _, o := range outcomes {
		if o.RuleID == rule.ID {
			matched++
			if !o.Executed {
				t.Fatalf("outcome = %+v", o)
			}
		}
	}
	if matched != 1 {
		t.Fatalf("expected exactly one outcome for the rule, got %d", matched)
	}
	if notifier.count() != 1 {
		t.Fatalf("notifications = %d", notifier.count())
	}

	if _, found := s.TriggerRule(context.Background(), "missing", nil); found {
		t.Fatal("unknown rule id should report not found")
	}
}

func TestDependencyCompletedNotification(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestSystem(t, rules.Collaborators{Notifier: notifier})
	s.Start()

	_, dropped := s.DependencyCompletedNotification("dep done", "unblocked", "")
	if len(dropped) != 0 {
		t.Fatalf("dropped = %v", dropped)
	}

	s.HandleTaskEvent(rules.EventTaskStatusChanged,
		&rules.Task{ID: "t1", Status: "done", Dependencies: []string{"t0"}},
		map[string]any{"from_status": "in_progress", "to_status": "done"})

	waitFor(t, "notification", func() bool { return notifier.count() == 1 })
	got := notifier.last()
	if got.Type != "task_dependency_completed" || got.Priority != "medium" {
		t.Fatalf("notification = %+v", got)
	}
}

func TestDeadlineReminderShape(t *testing.T) {
	s := newTestSystem(t, rules.Collaborators{})
	rule, dropped := s.DeadlineReminder("remind", 3, "due soon", "high")
	if len(dropped) != 0 {
		t.Fatalf("dropped = %v", dropped)
	}
	if len(rule.Triggers) != 1 || rule.Triggers[0].Kind() != rules.EventDeadlineApproaching {
		t.Fatalf("trigger = %+v", rule.Triggers)
	}
	if rule.Triggers[0].Config()["days_before"] != 3 {
		t.Fatalf("trigger config = %v", rule.Triggers[0].Config())
	}
	if len(rule.Actions) != 1 || rule.Actions[0].Config()["priority"] != "high" {
		t.Fatalf("action = %+v", rule.Actions)
	}
}

func TestFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "taskflow.yaml")
	cfgBody := "" +
		"logging:\n" +
		"  level: error\n" +
		"  console: false\n" +
		"engine:\n" +
		"  queue_size: 16\n" +
		"scheduler:\n" +
		"  tick_interval: 50ms\n" +
		"storage:\n" +
		"  driver: file\n" +
		"  path: " + filepath.Join(dir, "data") + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfgBody), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	boot, err := FromConfigFile(cfgPath, rules.Collaborators{})
	if err != nil {
		t.Fatalf("from config file: %v", err)
	}
	defer boot.Close()

	if boot.Store == nil {
		t.Fatal("file storage should be opened")
	}
	if got := boot.Config.Get().Engine.QueueSize; got != 16 {
		t.Fatalf("queue size = %d", got)
	}

	rule, _ := boot.System.CreateRule("persisted", "", nil, nil, nil, true)
	boot2, err := FromConfigFile(cfgPath, rules.Collaborators{})
	if err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	defer boot2.Close()
	if _, ok := boot2.System.Rule(rule.ID); !ok {
		t.Fatal("rule should be restored through the configured store")
	}
}

func TestConfigHotReloadAppliesLogging(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "taskflow.yaml")
	write := func(level string) {
		t.Helper()
		body := "" +
			"logging:\n" +
			"  level: " + level + "\n" +
			"  console: false\n" +
			"scheduler:\n" +
			"  enabled: false\n"
		if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("error")

	boot, err := FromConfigFile(cfgPath, rules.Collaborators{})
	if err != nil {
		t.Fatalf("from config file: %v", err)
	}
	boot.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = boot.System.Shutdown(ctx)
		_ = boot.Close()
	})

	if boot.Log.Enabled(logx.LevelDebug) {
		t.Fatal("debug should be disabled at level error")
	}

	write("debug")
	deadline := time.Now().Add(5 * time.Second)
	for !boot.Log.Enabled(logx.LevelDebug) {
		if time.Now().After(deadline) {
			t.Fatal("logging change was not applied from the watched config")
		}
		time.Sleep(25 * time.Millisecond)
	}
	if got := boot.Config.Get().Logging.Level; got != "debug" {
		t.Fatalf("committed level = %q", got)
	}
}

func TestFromConfigFileRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte("storage:\n  driver: mongo\n  path: x\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := FromConfigFile(cfgPath, rules.Collaborators{}); err == nil {
		t.Fatal("unknown storage driver should fail bootstrap")
	}
}
