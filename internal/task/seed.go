package task

import "time"

// SeedTasks is the example collection shown on a first run.
func SeedTasks(now time.Time, newID func() string) []Task {
	tomorrow := now.Add(24 * time.Hour).Format(time.RFC3339)
	nextWeek := now.AddDate(0, 0, 7).Format(time.RFC3339)

	return []Task{
		{
			ID:          newID(),
			Title:       "Plan the week",
			Description: "Block out focus time and review open items.",
			Category:    "Work",
			Priority:    PriorityHigh,
			Status:      StatusPending,
			DueDate:     &tomorrow,
			Notes:       "Start with anything overdue.",
			Subtasks: []Subtask{
				{ID: newID(), Title: "Review calendar", Completed: true},
				{ID: newID(), Title: "Pick three priorities"},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:          newID(),
			Title:       "Buy groceries",
			Description: "Milk, eggs, bread, fruit",
			Category:    "Shopping",
			Priority:    PriorityMedium,
			Status:      StatusPending,
			DueDate:     &nextWeek,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:        newID(),
			Title:     "Call the dentist",
			Category:  "Personal",
			Priority:  PriorityLow,
			Status:    StatusCompleted,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
