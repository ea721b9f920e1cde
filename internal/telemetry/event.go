package telemetry

import "time"

type EventType string

const (
	EventTaskCreated   EventType = "task_created"
	EventTaskUpdated   EventType = "task_updated"
	EventTaskDeleted   EventType = "task_deleted"
	EventTaskReordered EventType = "task_reordered"
	EventTasksImported EventType = "tasks_imported"
	EventBatchApplied  EventType = "batch_applied"
	EventTimerStopped  EventType = "timer_stopped"
)

type Event struct {
	ID        int       `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  string    `json:"metadata"`
}

type EventMetadata map[string]interface{}
