package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"taskflow/internal/storage"
)

// fakeTaskManager records mutations in memory.
type fakeTaskManager struct {
	mu      sync.Mutex
	nextID  int
	tasks   map[string]*Task
	failAll bool
}

func newFakeTaskManager() *fakeTaskManager {
	return &fakeTaskManager{tasks: map[string]*Task{}}
}

func (m *fakeTaskManager) AddTask(_ context.Context, fields map[string]any) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errors.New("task store unavailable")
	}
	m.nextID++
	t := &Task{ID: fmt.Sprintf("task-%d", m.nextID)}
	if s, ok := fields["title"].(string); ok {
		t.Title = s
	}
	if s, ok := fields["status"].(string); ok {
		t.Status = s
	}
	if s, ok := fields["priority"].(string); ok {
		t.Priority = s
	}
	if s, ok := fields["assignee"].(string); ok {
		t.Assignee = s
	}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *fakeTaskManager) UpdateTask(_ context.Context, id string, fields map[string]any) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errors.New("task store unavailable")
	}
	t, ok := m.tasks[id]
	if !ok {
		t = &Task{ID: id}
		m.tasks[id] = t
	}
	if s, ok := fields["assignee"].(string); ok {
		t.Assignee = s
	}
	if s, ok := fields["status"].(string); ok {
		t.Status = s
	}
	return t, nil
}

func (m *fakeTaskManager) AddDependency(_ context.Context, id, depID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("task store unavailable")
	}
	t, ok := m.tasks[id]
	if !ok {
		t = &Task{ID: id}
		m.tasks[id] = t
	}
	t.Dependencies = append(t.Dependencies, depID)
	return nil
}

func (m *fakeTaskManager) RemoveDependency(_ context.Context, id, depID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	out := t.Dependencies[:0]
	for _, d := range t.Dependencies {
		if d != depID {
			out = append(out, d)
		}
	}
	t.Dependencies = out
	return nil
}

func (m *fakeTaskManager) CreateTaskFromTemplate(_ context.Context, templateID string, overrides map[string]any) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if templateID == "missing" {
		return nil, errors.New("template not found")
	}
	m.nextID++
	t := &Task{ID: fmt.Sprintf("task-%d", m.nextID), Title: "from " + templateID}
	if s, ok := overrides["title"].(string); ok {
		t.Title = s
	}
	m.tasks[t.ID] = t
	return t, nil
}

// fakeNotifier records every notification it was asked to create.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
	fail bool
}

func (n *fakeNotifier) CreateNotification(_ context.Context, notif Notification) (Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return Notification{}, errors.New("notifier unavailable")
	}
	notif.ID = fmt.Sprintf("n-%d", len(n.sent)+1)
	n.sent = append(n.sent, notif)
	return notif, nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func trig(kind string, cfg map[string]any) storage.SpecRecord {
	return storage.SpecRecord{Kind: kind, Config: cfg}
}

func mustTrigger(kind string, cfg map[string]any) Trigger {
	t, err := NewTrigger(trig(kind, cfg))
	if err != nil {
		panic(err)
	}
	return t
}

func mustCondition(kind string, cfg map[string]any) Condition {
	c, err := NewCondition(trig(kind, cfg))
	if err != nil {
		panic(err)
	}
	return c
}

func mustAction(kind string, cfg map[string]any) Action {
	a, err := NewAction(trig(kind, cfg))
	if err != nil {
		panic(err)
	}
	return a
}
