package task

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mido1300/sm/internal/category"
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// rank orders priorities High first; unknown values sort last.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

func (s Status) flip() Status {
	if s == StatusCompleted {
		return StatusPending
	}
	return StatusCompleted
}

type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	DueDate     *string   `json:"dueDate,omitempty"`
	Subtasks    []Subtask `json:"subtasks,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Timer       int       `json:"timer"` // seconds
	SharedLink  string    `json:"sharedLink,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// CategoryLabel is the display/grouping label; blank categories read as
// "Uncategorized" without changing the stored value.
func (t Task) CategoryLabel() string {
	return category.Label(t.Category)
}

func (t Task) Completed() bool {
	return t.Status == StatusCompleted
}

// dueKey is the sort key for due dates: the raw ISO text, "" when unset.
func (t Task) dueKey() string {
	if t.DueDate == nil {
		return ""
	}
	return *t.DueDate
}

func (t Task) clone() Task {
	out := t
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.Subtasks != nil {
		out.Subtasks = append([]Subtask(nil), t.Subtasks...)
	}
	return out
}

func cloneTasks(in []Task) []Task {
	out := make([]Task, len(in))
	for i, t := range in {
		out[i] = t.clone()
	}
	return out
}

// touch refreshes UpdatedAt without ever moving it backwards or before
// CreatedAt.
func (t *Task) touch(now time.Time) {
	if now.Before(t.UpdatedAt) {
		now = t.UpdatedAt
	}
	if now.Before(t.CreatedAt) {
		now = t.CreatedAt
	}
	t.UpdatedAt = now
}

// Draft is the input to Create.
type Draft struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Priority    Priority  `json:"priority,omitempty"`
	DueDate     *string   `json:"dueDate,omitempty"`
	Subtasks    []Subtask `json:"subtasks,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

// Patch represents a partial update.
// nil pointer => "no change"
// empty string for DueDate => clear
type Patch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	DueDate     *string    `json:"dueDate,omitempty"`
	Subtasks    *[]Subtask `json:"subtasks,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	Timer       *int       `json:"timer,omitempty"`
	SharedLink  *string    `json:"sharedLink,omitempty"`
}

func applyPatch(t *Task, p Patch, newID func() string) error {
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return &ValidationError{Field: "title", Reason: "title is required"}
		}
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			return &ValidationError{Field: "priority", Reason: "must be High, Medium or Low"}
		}
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return &ValidationError{Field: "status", Reason: "must be pending or completed"}
		}
		t.Status = *p.Status
	}

	// pointer string field with "empty clears" semantics
	if p.DueDate != nil {
		due, err := normalizeDueDate(*p.DueDate)
		if err != nil {
			return err
		}
		t.DueDate = due
	}

	if p.Subtasks != nil {
		subs, err := normalizeSubtasks(*p.Subtasks, newID)
		if err != nil {
			return err
		}
		t.Subtasks = subs
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.Timer != nil {
		if *p.Timer < 0 {
			return &ValidationError{Field: "timer", Reason: "must not be negative"}
		}
		t.Timer = *p.Timer
	}
	if p.SharedLink != nil {
		t.SharedLink = *p.SharedLink
	}
	return nil
}

var dueLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

// normalizeDueDate trims the input; blank clears the due date. The stored
// text is kept as given so ISO string ordering is preserved.
func normalizeDueDate(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if _, ok := parseDue(raw); !ok {
		return nil, &ValidationError{Field: "dueDate", Reason: "must be an ISO date or timestamp"}
	}
	return &raw, nil
}

func parseDue(raw string) (time.Time, bool) {
	for _, layout := range dueLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// normalizeSubtasks drops nothing but requires titles; missing or duplicate
// ids are replaced so ids stay unique within the task.
func normalizeSubtasks(in []Subtask, newID func() string) ([]Subtask, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]Subtask, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, st := range in {
		if strings.TrimSpace(st.Title) == "" {
			return nil, &ValidationError{Field: "subtasks", Reason: "subtask title is required"}
		}
		for st.ID == "" || seen[st.ID] {
			st.ID = newID()
		}
		seen[st.ID] = true
		out = append(out, st)
	}
	return out, nil
}
