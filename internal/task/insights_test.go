package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	now := testStart
	due := func(d time.Duration) *string {
		s := now.Add(d).Format(time.RFC3339)
		return &s
	}

	tasks := []Task{
		{ID: "1", Title: "a", Priority: PriorityHigh, Status: StatusCompleted, Category: "Work",
			CreatedAt: now.AddDate(0, 0, -3), UpdatedAt: now.AddDate(0, 0, -1)},
		{ID: "2", Title: "b", Priority: PriorityHigh, Status: StatusPending, Category: "Work",
			DueDate: due(-2 * time.Hour), CreatedAt: now, UpdatedAt: now},
		{ID: "3", Title: "c", Priority: PriorityLow, Status: StatusPending,
			DueDate: due(48 * time.Hour), CreatedAt: now.AddDate(0, 0, -30), UpdatedAt: now},
		{ID: "4", Title: "d", Priority: PriorityMedium, Status: StatusCompleted, Category: " ",
			DueDate: due(-72 * time.Hour), CreatedAt: now, UpdatedAt: now},
	}

	in := Summarize(tasks, now)

	assert.Equal(t, 4, in.Total)
	assert.Equal(t, 2, in.Completed)
	assert.Equal(t, 2, in.Pending)
	assert.Equal(t, 1, in.Overdue, "completed tasks are never overdue")
	assert.Equal(t, 50, in.CompletionRate)
	assert.Equal(t, map[Priority]int{PriorityHigh: 2, PriorityMedium: 1, PriorityLow: 1}, in.ByPriority)
	assert.Equal(t, map[string]int{"Work": 2, "Uncategorized": 2}, in.ByCategory)

	require.Len(t, in.Trend, 14)
	assert.Equal(t, "2026-01-25", in.Trend[0].Date)
	last := in.Trend[13]
	assert.Equal(t, "2026-02-07", last.Date)
	assert.Equal(t, 2, last.Created)
	assert.Equal(t, 1, last.Completed)
	assert.Equal(t, 1, in.Trend[10].Created)
	assert.Equal(t, 1, in.Trend[12].Completed)
}

func TestSummarize_Empty(t *testing.T) {
	in := Summarize(nil, testStart)
	assert.Zero(t, in.Total)
	assert.Zero(t, in.CompletionRate)
	assert.Len(t, in.Trend, 14)
	assert.Equal(t, 0, in.ByPriority[PriorityHigh])
}

func TestDueState(t *testing.T) {
	now := testStart
	at := func(s string) Task { return Task{DueDate: &s, Status: StatusPending} }

	assert.Equal(t, DueNone, DueState(Task{}, now))
	assert.Equal(t, DueOverdue, DueState(at("2026-02-07T08:59:00Z"), now))
	assert.Equal(t, DueSoon, DueState(at("2026-02-08T08:00:00Z"), now))
	assert.Equal(t, DueLater, DueState(at("2026-02-09"), now))
	assert.Equal(t, DueOverdue, DueState(at("2026-02-07"), now), "date-only means midnight UTC")
	assert.Equal(t, DueNone, DueState(at("garbage"), now))

	done := at("2020-01-01")
	done.Status = StatusCompleted
	assert.Equal(t, DueDone, DueState(done, now))
}
