package task

import "time"

type Due string

const (
	DueNone    Due = "none"
	DueDone    Due = "done"
	DueOverdue Due = "overdue"
	DueSoon    Due = "soon"
	DueLater   Due = "later"
)

// DueState classifies a task for the due-date indicator. Tasks without a due
// date are never overdue; "soon" means due within the next 24 hours.
func DueState(t Task, now time.Time) Due {
	if t.DueDate == nil {
		return DueNone
	}
	if t.Completed() {
		return DueDone
	}
	due, ok := parseDue(*t.DueDate)
	if !ok {
		return DueNone
	}
	left := due.Sub(now)
	switch {
	case left < 0:
		return DueOverdue
	case left < 24*time.Hour:
		return DueSoon
	}
	return DueLater
}
