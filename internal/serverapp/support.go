package serverapp

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Mido1300/sm/internal/logx"
	"github.com/Mido1300/sm/internal/task"
	"github.com/Mido1300/sm/internal/telemetry"
	"github.com/Mido1300/sm/internal/timer"
)

func (s *server) listCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Categories.All())
}

func (s *server) addCategory(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := s.opts.Categories.Add(in.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.opts.Categories.All())
}

func (s *server) renameCategory(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := s.opts.Categories.Rename(index, in.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Categories.All())
}

func (s *server) removeCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Categories.Remove(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Categories.All())
}

type timerView struct {
	ID      string      `json:"id"`
	Elapsed int         `json:"elapsed"`
	Running bool        `json:"running"`
	Phase   timer.Phase `json:"phase"`
	Display string      `json:"display"`
}

func newTimerView(id string, st timer.State) timerView {
	return timerView{
		ID:      id,
		Elapsed: st.Elapsed,
		Running: st.Running,
		Phase:   st.Phase(),
		Display: timer.FormatElapsed(st.Elapsed),
	}
}

func (s *server) getTimer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.opts.Store.Get(id); err != nil {
		writeError(w, err)
		return
	}
	st, err := s.opts.Timers.State(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTimerView(id, st))
}

// POST /api/timers/{id}/{start|pause|toggle|reset}
func (s *server) timerAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.opts.Store.Get(id); err != nil {
		writeError(w, err)
		return
	}

	var action func(string) (timer.State, error)
	switch r.PathValue("action") {
	case "start":
		action = s.opts.Timers.Start
	case "pause":
		action = s.opts.Timers.Pause
	case "toggle":
		action = s.opts.Timers.Toggle
	case "reset":
		action = s.opts.Timers.Reset
	default:
		writeErr(w, http.StatusNotFound, "unknown timer action")
		return
	}

	st, err := action(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTimerView(id, st))
}

// GET /api/activity?since=<RFC3339>&type=a,b
func (s *server) activity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var since time.Time
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		since = ts
	}
	var types []telemetry.EventType
	if raw := strings.TrimSpace(q.Get("type")); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, telemetry.EventType(t))
			}
		}
	}

	events, err := s.opts.Activity.GetEvents(since, types)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := telemetry.CalculateStats(events, since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "stats": stats})
}

// Bind connects store changes to the timer registry and the activity log:
// deleted tasks lose their timer state and every change is recorded.
// The returned function detaches the subscription.
func Bind(store *task.Store, timers *timer.Registry, activity telemetry.Repository, logger *log.Logger) func() {
	return store.Subscribe(func(e task.Event) {
		for _, id := range e.Removed() {
			if err := timers.Forget(id); err != nil {
				logx.Event(logger, "warn", "timer_forget_failed", map[string]any{"id": id, "error": err.Error()})
			}
		}
		if activity == nil {
			return
		}
		typ, ok := activityType(e)
		if !ok {
			return
		}
		meta := telemetry.EventMetadata{"count": len(e.IDs), "ids": e.IDs}
		if e.Op != "" {
			meta["op"] = string(e.Op)
		}
		if err := activity.RecordEvent(typ, meta); err != nil {
			logx.Event(logger, "warn", "activity_record_failed", map[string]any{"error": err.Error()})
		}
	})
}

func activityType(e task.Event) (telemetry.EventType, bool) {
	switch e.Kind {
	case task.EventCreated:
		return telemetry.EventTaskCreated, true
	case task.EventUpdated:
		return telemetry.EventTaskUpdated, true
	case task.EventDeleted:
		return telemetry.EventTaskDeleted, true
	case task.EventReordered:
		return telemetry.EventTaskReordered, true
	case task.EventImported:
		return telemetry.EventTasksImported, true
	case task.EventBatch:
		return telemetry.EventBatchApplied, true
	}
	return "", false
}

// PauseHook writes a stopped timer's elapsed seconds back onto its task.
func PauseHook(store *task.Store, activity telemetry.Repository, logger *log.Logger) timer.PauseHook {
	return func(id string, elapsed int) {
		if _, err := store.Update(id, task.Patch{Timer: &elapsed}); err != nil {
			level := "error"
			if errors.Is(err, task.ErrNotFound) {
				level = "warn"
			}
			logx.Event(logger, level, "timer_writeback_failed", map[string]any{"id": id, "error": err.Error()})
			return
		}
		if activity != nil {
			_ = activity.RecordEvent(telemetry.EventTimerStopped, telemetry.EventMetadata{
				"id":      id,
				"elapsed": elapsed,
				"display": timer.FormatElapsed(elapsed),
			})
		}
	}
}
