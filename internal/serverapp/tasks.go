package serverapp

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Mido1300/sm/internal/logx"
	"github.com/Mido1300/sm/internal/task"
)

// criteriaFromQuery reads filter and sort parameters. A missing sort uses the
// default due-date order.
func criteriaFromQuery(r *http.Request) (task.Criteria, error) {
	q := r.URL.Query()
	c := task.DefaultCriteria()
	c.Search = q.Get("search")
	c.Status = task.Status(strings.TrimSpace(q.Get("status")))
	c.Priority = task.Priority(strings.TrimSpace(q.Get("priority")))
	c.Category = q.Get("category")
	if v := strings.TrimSpace(q.Get("sort")); v != "" {
		c.Sort = task.SortKey(v)
	}
	return c, validateCriteria(c)
}

func validateCriteria(c task.Criteria) error {
	if c.Status != "" && !c.Status.Valid() {
		return &task.ValidationError{Field: "status", Reason: "must be pending or completed"}
	}
	if c.Priority != "" && !c.Priority.Valid() {
		return &task.ValidationError{Field: "priority", Reason: "must be High, Medium or Low"}
	}
	if !c.Sort.Valid() {
		return &task.ValidationError{Field: "sort", Reason: "must be dueDate, priority or title"}
	}
	return nil
}

// GET /api/tasks
func (s *server) listTasks(w http.ResponseWriter, r *http.Request) {
	c, err := criteriaFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Store.View(c))
}

// POST /api/tasks
func (s *server) createTask(w http.ResponseWriter, r *http.Request) {
	var in task.Draft
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	t, err := s.opts.Store.Create(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.opts.Store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) patchTask(w http.ResponseWriter, r *http.Request) {
	var in task.Patch
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	t, err := s.opts.Store.Update(r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Store.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) toggleTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.opts.Store.ToggleStatus(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// PUT /api/tasks/{id}/position  {"index": 2} or {"before": "<id>"}
func (s *server) moveTask(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Index  *int    `json:"index"`
		Before *string `json:"before"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}

	id := r.PathValue("id")
	var err error
	switch {
	case in.Before != nil:
		err = s.opts.Store.MoveBefore(id, *in.Before)
	case in.Index != nil:
		err = s.opts.Store.Reorder(id, *in.Index)
	default:
		writeErr(w, http.StatusBadRequest, "index or before is required")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Store.Tasks())
}

func (s *server) addSubtask(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	t, err := s.opts.Store.AddSubtask(r.PathValue("id"), in.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *server) toggleSubtask(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	t, err := s.opts.Store.ToggleSubtask(r.PathValue("id"), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) removeSubtask(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	t, err := s.opts.Store.RemoveSubtask(r.PathValue("id"), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "index must be an integer")
		return 0, false
	}
	return index, true
}

// GET /api/view returns the held criteria and the view they produce.
func (s *server) getView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"criteria": s.opts.Store.Criteria(),
		"tasks":    s.opts.Store.Filtered(),
	})
}

func (s *server) putView(w http.ResponseWriter, r *http.Request) {
	var c task.Criteria
	if err := decodeJSON(w, r, &c); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := validateCriteria(c); err != nil {
		writeError(w, err)
		return
	}
	s.opts.Store.SetCriteria(c)
	s.getView(w, r)
}

// POST /api/view/search schedules a search update; only the latest query
// within the debounce window is applied.
func (s *server) searchView(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	s.search.Trigger(in.Query)
	writeJSON(w, http.StatusAccepted, map[string]any{"query": in.Query})
}

func (s *server) getSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ids": s.opts.Store.Selected()})
}

func (s *server) putSelection(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	s.opts.Store.SetSelection(in.IDs)
	s.getSelection(w, r)
}

func (s *server) clearSelection(w http.ResponseWriter, r *http.Request) {
	s.opts.Store.ClearSelection()
	s.getSelection(w, r)
}

func (s *server) toggleSelection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.opts.Store.Get(id); err != nil {
		writeError(w, err)
		return
	}
	selected := s.opts.Store.ToggleSelect(id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "selected": selected})
}

// POST /api/batch  {"op": "...", "ids": [...]}; without ids the current
// selection is used.
func (s *server) batch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Op  task.BatchOp `json:"op"`
		IDs *[]string    `json:"ids"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}

	var (
		res task.BatchResult
		err error
	)
	if in.IDs != nil {
		res, err = s.opts.Store.ApplyBatch(*in.IDs, in.Op)
	} else {
		res, err = s.opts.Store.ApplyToSelection(in.Op)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/import  body is a JSON array of task records.
func (s *server) importTasks(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.Store.ImportFrom(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/export?ids=a,b  falls back to the current selection.
func (s *server) exportTasks(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if raw := strings.TrimSpace(r.URL.Query().Get("ids")); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	} else {
		ids = s.opts.Store.Selected()
	}

	tasks := s.opts.Store.Export(ids)
	name := task.ExportFilename(s.opts.Clock.Now())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := task.EncodeExport(w, tasks); err != nil {
		logx.Event(s.opts.Logger, "error", "export_write_failed", map[string]any{"error": err.Error()})
	}
}

func (s *server) exportCalendar(w http.ResponseWriter, r *http.Request) {
	ics, err := task.BuildCalendarICS(s.opts.Store.Tasks(), s.opts.Clock.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tasks.ics"`)
	_, _ = w.Write([]byte(ics))
}

func (s *server) insights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, task.Summarize(s.opts.Store.Tasks(), s.opts.Clock.Now()))
}
