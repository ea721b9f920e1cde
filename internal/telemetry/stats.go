package telemetry

import (
	"encoding/json"
	"time"
)

type Stats struct {
	Period        string            `json:"period"`
	EventCounts   map[EventType]int `json:"event_counts"`
	TasksTouched  int               `json:"tasks_touched"`
	BatchByOp     map[string]int    `json:"batch_by_op"`
	ImportedTasks int               `json:"imported_tasks"`
	TimerSeconds  int               `json:"timer_seconds"`
}

// CalculateStats summarizes the activity log since the given time.
func CalculateStats(events []Event, since time.Time) (Stats, error) {
	stats := Stats{
		Period:      since.Format("2006-01-02"),
		EventCounts: make(map[EventType]int),
		BatchByOp:   make(map[string]int),
	}

	for _, event := range events {
		stats.EventCounts[event.Type]++

		var metadata EventMetadata
		if err := json.Unmarshal([]byte(event.Metadata), &metadata); err != nil {
			return stats, err
		}
		count := intValue(metadata["count"])
		stats.TasksTouched += count

		switch event.Type {
		case EventBatchApplied:
			if op, ok := metadata["op"].(string); ok {
				stats.BatchByOp[op] += count
			}
		case EventTasksImported:
			stats.ImportedTasks += count
		case EventTimerStopped:
			stats.TimerSeconds += intValue(metadata["elapsed"])
		}
	}

	return stats, nil
}

// intValue reads a JSON number back out of decoded metadata.
func intValue(v any) int {
	f, _ := v.(float64)
	return int(f)
}
