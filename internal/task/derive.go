package task

import (
	"sort"
	"strings"

	"github.com/Mido1300/sm/internal/category"
)

type SortKey string

const (
	SortDueDate  SortKey = "dueDate"
	SortPriority SortKey = "priority"
	SortTitle    SortKey = "title"
)

func (k SortKey) Valid() bool {
	switch k {
	case "", SortDueDate, SortPriority, SortTitle:
		return true
	}
	return false
}

// Criteria is the ephemeral filter state for the derived view. Zero-valued
// fields do not filter.
type Criteria struct {
	Search   string   `json:"search"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`
	Category string   `json:"category"`
	Sort     SortKey  `json:"sort"`
}

func DefaultCriteria() Criteria {
	return Criteria{Sort: SortDueDate}
}

// Derive filters and sorts tasks for c. It never modifies its input and
// returns copies, so the result is safe to hand to readers.
//
// Filters apply in order: title search (case-insensitive substring), status,
// priority, category label. The sort is stable; an empty or unknown key keeps
// collection order.
func Derive(tasks []Task, c Criteria) []Task {
	search := strings.ToLower(c.Search)

	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if search != "" && !strings.Contains(strings.ToLower(t.Title), search) {
			continue
		}
		if c.Status != "" && t.Status != c.Status {
			continue
		}
		if c.Priority != "" && t.Priority != c.Priority {
			continue
		}
		if c.Category != "" && t.CategoryLabel() != category.Label(c.Category) {
			continue
		}
		out = append(out, t.clone())
	}

	switch c.Sort {
	case SortDueDate:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].dueKey() < out[j].dueKey()
		})
	case SortPriority:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Priority.rank() < out[j].Priority.rank()
		})
	case SortTitle:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Title < out[j].Title
		})
	}
	return out
}
