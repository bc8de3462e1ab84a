package rules

import "time"

// Task is the snapshot of a tracked task as carried by events and
// evaluation contexts. The automation core never owns task records; it
// only reads snapshots and asks the task-manager collaborator for
// mutations.
type Task struct {
	ID           string         `json:"id"`
	Title        string         `json:"title,omitempty"`
	Description  string         `json:"description,omitempty"`
	Status       string         `json:"status,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	Assignee     string         `json:"assignee,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	DueDate      *time.Time     `json:"due_date,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
}

// priorityRank gives priorities a total order for gt/lt/ge/le comparison.
// Unknown priorities have no rank; ordered comparison against them is false.
var priorityRank = map[string]int{
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

func priorityOrder(p string) (int, bool) {
	r, ok := priorityRank[p]
	return r, ok
}
