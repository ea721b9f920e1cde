package task

import (
	"math"
	"time"
)

type DayCount struct {
	Date      string `json:"date"`
	Created   int    `json:"created"`
	Completed int    `json:"completed"`
}

// Insights is the summary behind the statistics view.
type Insights struct {
	Total          int              `json:"total"`
	Completed      int              `json:"completed"`
	Pending        int              `json:"pending"`
	Overdue        int              `json:"overdue"`
	CompletionRate int              `json:"completionRate"` // percent, rounded
	ByPriority     map[Priority]int `json:"byPriority"`
	ByCategory     map[string]int   `json:"byCategory"`
	Trend          []DayCount       `json:"trend"`
}

const trendDays = 14

// Summarize computes counts and a trailing two-week trend. Creation is bucketed
// by CreatedAt; completion by UpdatedAt of tasks that are completed now.
func Summarize(tasks []Task, now time.Time) Insights {
	in := Insights{
		ByPriority: map[Priority]int{PriorityHigh: 0, PriorityMedium: 0, PriorityLow: 0},
		ByCategory: map[string]int{},
		Trend:      make([]DayCount, trendDays),
	}

	index := make(map[string]int, trendDays)
	for i := range trendDays {
		day := now.AddDate(0, 0, i-(trendDays-1)).UTC().Format("2006-01-02")
		in.Trend[i].Date = day
		index[day] = i
	}

	for _, t := range tasks {
		in.Total++
		if t.Completed() {
			in.Completed++
		} else {
			in.Pending++
		}
		if DueState(t, now) == DueOverdue {
			in.Overdue++
		}
		in.ByPriority[t.Priority]++
		in.ByCategory[t.CategoryLabel()]++

		if i, ok := index[t.CreatedAt.UTC().Format("2006-01-02")]; ok {
			in.Trend[i].Created++
		}
		if t.Completed() {
			if i, ok := index[t.UpdatedAt.UTC().Format("2006-01-02")]; ok {
				in.Trend[i].Completed++
			}
		}
	}

	if in.Total > 0 {
		in.CompletionRate = int(math.Round(float64(in.Completed) / float64(in.Total) * 100))
	}
	return in
}
