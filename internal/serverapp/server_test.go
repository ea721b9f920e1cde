package serverapp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mido1300/sm/internal/category"
	"github.com/Mido1300/sm/internal/clock"
	"github.com/Mido1300/sm/internal/config"
	"github.com/Mido1300/sm/internal/storage"
	"github.com/Mido1300/sm/internal/task"
	"github.com/Mido1300/sm/internal/telemetry"
	"github.com/Mido1300/sm/internal/timer"
)

var testNow = time.Date(2026, 2, 7, 9, 0, 0, 0, time.UTC)

type testApp struct {
	handler  http.Handler
	kv       *storage.MemoryStore
	store    *task.Store
	timers   *timer.Registry
	activity *telemetry.MemoryRepository
	logs     *bytes.Buffer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	var logs bytes.Buffer
	logger := log.New(&logs, "", 0)
	kv := storage.NewMemoryStore()
	clk := clock.NewFakeClock(testNow)

	n := 0
	store, err := task.NewStore(kv,
		task.WithClock(clk),
		task.WithLogger(logger),
		task.WithSeed(false),
		task.WithIDGenerator(func() string { n++; return fmt.Sprintf("id%d", n) }),
	)
	require.NoError(t, err)

	activity := telemetry.NewMemoryRepository(0, clk.Now)
	timers := timer.NewRegistry(kv,
		timer.WithLogger(logger),
		timer.WithPauseHook(PauseHook(store, activity, logger)),
	)
	t.Cleanup(Bind(store, timers, activity, logger))

	cats, err := category.NewList(kv)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Search.DebounceMS = 10

	h, err := NewHandler(Options{
		Config:     cfg,
		Storage:    kv,
		Store:      store,
		Timers:     timers,
		Categories: cats,
		Activity:   activity,
		Clock:      clk,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	return &testApp{handler: h, kv: kv, store: store, timers: timers, activity: activity, logs: &logs}
}

func (a *testApp) json(method, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	return a.request(method, path, bytes.NewReader(b), "application/json")
}

func (a *testApp) request(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) create(t *testing.T, body map[string]any) task.Task {
	t.Helper()
	res := a.json(http.MethodPost, "/api/tasks", body)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var out task.Task
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	return out
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v body=%s", err, rec.Body.String())
	}
	return out
}

func TestServer_HealthAndReadinessExposeRequestID(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		res := app.request(http.MethodGet, path, nil, "")
		if res.Code != http.StatusOK {
			t.Fatalf("%s expected 200, got %d body=%s", path, res.Code, res.Body.String())
		}
		if rid := strings.TrimSpace(res.Header().Get("X-Request-Id")); rid == "" {
			t.Fatalf("%s missing X-Request-Id header", path)
		}
	}
	assert.Contains(t, app.logs.String(), `"msg":"http_request"`)
}

func TestServer_AccessLogCarriesRequestID(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("X-Request-Id", "abc123")
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", rec.Header().Get("X-Request-Id"))

	var access map[string]any
	for _, line := range strings.Split(strings.TrimSpace(app.logs.String()), "\n") {
		var entry map[string]any
		if json.Unmarshal([]byte(line), &entry) == nil && entry["msg"] == "http_request" {
			access = entry
		}
	}
	require.NotNil(t, access, "no access log line in %s", app.logs.String())
	assert.Equal(t, "abc123", access["request_id"])
	assert.Equal(t, "/api/tasks", access["path"])
	assert.Equal(t, "info", access["level"])
}

func TestServer_TaskCRUD(t *testing.T) {
	app := newTestApp(t)

	created := app.create(t, map[string]any{"title": "Write tests", "priority": "High", "dueDate": "2026-02-10"})
	assert.Equal(t, task.StatusPending, created.Status)
	assert.Equal(t, task.PriorityHigh, created.Priority)

	res := app.request(http.MethodGet, "/api/tasks/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, res.Code)

	res = app.json(http.MethodPatch, "/api/tasks/"+created.ID, map[string]any{"notes": "cover the store", "dueDate": ""})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	patched := decode[task.Task](t, res)
	assert.Equal(t, "cover the store", patched.Notes)
	assert.Nil(t, patched.DueDate)

	res = app.request(http.MethodPost, "/api/tasks/"+created.ID+"/toggle", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, task.StatusCompleted, decode[task.Task](t, res).Status)

	res = app.request(http.MethodDelete, "/api/tasks/"+created.ID, nil, "")
	require.Equal(t, http.StatusNoContent, res.Code)

	res = app.request(http.MethodDelete, "/api/tasks/"+created.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestServer_ErrorMapping(t *testing.T) {
	app := newTestApp(t)
	a := app.create(t, map[string]any{"title": "a"})

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"blank title", http.MethodPost, "/api/tasks", `{"title":"  "}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/tasks", `{`, http.StatusBadRequest},
		{"bad priority", http.MethodPatch, "/api/tasks/" + a.ID, `{"priority":"Urgent"}`, http.StatusBadRequest},
		{"unknown task", http.MethodGet, "/api/tasks/nope", ``, http.StatusNotFound},
		{"subtask out of range", http.MethodPost, "/api/tasks/" + a.ID + "/subtasks/3/toggle", ``, http.StatusNotFound},
		{"subtask index not a number", http.MethodPost, "/api/tasks/" + a.ID + "/subtasks/x/toggle", ``, http.StatusBadRequest},
		{"bad sort", http.MethodGet, "/api/tasks?sort=size", ``, http.StatusBadRequest},
		{"bad batch op", http.MethodPost, "/api/batch", `{"op":"archive","ids":[]}`, http.StatusBadRequest},
		{"import not an array", http.MethodPost, "/api/import", `{"title":"x"}`, http.StatusBadRequest},
		{"no due dates for calendar", http.MethodGet, "/api/export.ics", ``, http.StatusNotFound},
		{"unknown timer action", http.MethodPost, "/api/timers/" + a.ID + "/explode", ``, http.StatusNotFound},
		{"timer for unknown task", http.MethodPost, "/api/timers/nope/start", ``, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := app.request(tc.method, tc.path, strings.NewReader(tc.body), "application/json")
			assert.Equal(t, tc.want, res.Code, res.Body.String())
		})
	}
}

func TestServer_StorageFailureIs500AndRollsBack(t *testing.T) {
	app := newTestApp(t)
	a := app.create(t, map[string]any{"title": "a"})
	app.kv.SetFailPuts(errors.New("quota exceeded"))

	res := app.request(http.MethodPost, "/api/tasks/"+a.ID+"/toggle", nil, "")
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Contains(t, res.Body.String(), "storage unavailable")
	assert.Contains(t, app.logs.String(), `"msg":"tasks_save_failed"`)

	got, err := app.store.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, got.Status)
}

func TestServer_ListFiltersAndSorts(t *testing.T) {
	app := newTestApp(t)
	app.create(t, map[string]any{"title": "Report", "priority": "Low", "dueDate": "2026-03-01"})
	app.create(t, map[string]any{"title": "milk", "priority": "High"})
	app.create(t, map[string]any{"title": "report taxes", "priority": "High", "dueDate": "2026-02-01"})

	res := app.request(http.MethodGet, "/api/tasks", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []string{"milk", "report taxes", "Report"}, titles(decode[[]task.Task](t, res)))

	res = app.request(http.MethodGet, "/api/tasks?search=REPORT&sort=priority", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []string{"report taxes", "Report"}, titles(decode[[]task.Task](t, res)))

	res = app.request(http.MethodGet, "/api/tasks?priority=High&sort=title", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []string{"milk", "report taxes"}, titles(decode[[]task.Task](t, res)))
}

func TestServer_ViewSearchIsDebounced(t *testing.T) {
	app := newTestApp(t)
	app.create(t, map[string]any{"title": "buy milk"})
	app.create(t, map[string]any{"title": "walk dog"})

	res := app.json(http.MethodPut, "/api/view", map[string]any{"sort": "title"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	for _, q := range []string{"d", "do", "dog"} {
		res = app.json(http.MethodPost, "/api/view/search", map[string]any{"query": q})
		require.Equal(t, http.StatusAccepted, res.Code)
	}

	assert.Eventually(t, func() bool { return app.store.Criteria().Search == "dog" }, time.Second, 5*time.Millisecond)

	res = app.request(http.MethodGet, "/api/view", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	view := decode[struct {
		Criteria task.Criteria `json:"criteria"`
		Tasks    []task.Task   `json:"tasks"`
	}](t, res)
	assert.Equal(t, task.SortTitle, view.Criteria.Sort)
	assert.Equal(t, []string{"walk dog"}, titles(view.Tasks))
}

func TestServer_SelectionAndBatch(t *testing.T) {
	app := newTestApp(t)
	a := app.create(t, map[string]any{"title": "a"})
	b := app.create(t, map[string]any{"title": "b"})
	c := app.create(t, map[string]any{"title": "c"})

	res := app.json(http.MethodPut, "/api/selection", map[string]any{"ids": []string{a.ID, c.ID}})
	require.Equal(t, http.StatusOK, res.Code)

	res = app.request(http.MethodPost, "/api/selection/"+b.ID, nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, decode[map[string]any](t, res)["selected"])
	res = app.request(http.MethodPost, "/api/selection/"+b.ID, nil, "")
	assert.Equal(t, false, decode[map[string]any](t, res)["selected"])

	res = app.request(http.MethodGet, "/api/selection", nil, "")
	assert.Equal(t, []string{a.ID, c.ID}, decode[map[string][]string](t, res)["ids"])

	res = app.json(http.MethodPost, "/api/batch", map[string]any{"op": "markComplete"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, 2, decode[task.BatchResult](t, res).Affected)

	for _, got := range app.store.Tasks() {
		want := task.StatusPending
		if got.ID != b.ID {
			want = task.StatusCompleted
		}
		assert.Equal(t, want, got.Status, got.Title)
	}
	assert.Empty(t, app.store.Selected())

	res = app.json(http.MethodPost, "/api/batch", map[string]any{"op": "delete", "ids": []string{b.ID}})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, app.store.Tasks(), 2)
}

func TestServer_ImportExportRoundTrip(t *testing.T) {
	app := newTestApp(t)

	res := app.request(http.MethodPost, "/api/import",
		strings.NewReader(`[{"title":"A","priority":"high"},{"title":"B","dueDate":"2026-02-09"},{"notes":"x"}]`), "application/json")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	result := decode[task.ImportResult](t, res)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)

	all := app.store.Tasks()
	require.Len(t, all, 2)

	res = app.request(http.MethodGet, "/api/export?ids="+all[1].ID+","+all[0].ID, nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, `attachment; filename="tasks-export-2026-02-07.json"`, res.Header().Get("Content-Disposition"))
	exported := decode[[]task.Task](t, res)
	assert.Equal(t, all, exported)

	res = app.request(http.MethodGet, "/api/export.ics", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "SUMMARY:B")
	assert.Contains(t, res.Header().Get("Content-Type"), "text/calendar")
}

func TestServer_ExportDefaultsToSelection(t *testing.T) {
	app := newTestApp(t)
	app.create(t, map[string]any{"title": "a"})
	b := app.create(t, map[string]any{"title": "b"})
	app.store.Select(b.ID)

	res := app.request(http.MethodGet, "/api/export", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []string{"b"}, titles(decode[[]task.Task](t, res)))
}

func TestServer_SubtasksAndPosition(t *testing.T) {
	app := newTestApp(t)
	a := app.create(t, map[string]any{"title": "a"})
	b := app.create(t, map[string]any{"title": "b"})

	res := app.json(http.MethodPost, "/api/tasks/"+a.ID+"/subtasks", map[string]any{"title": "step"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = app.request(http.MethodPost, "/api/tasks/"+a.ID+"/subtasks/0/toggle", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, decode[task.Task](t, res).Subtasks[0].Completed)

	res = app.request(http.MethodDelete, "/api/tasks/"+a.ID+"/subtasks/0", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, decode[task.Task](t, res).Subtasks)

	res = app.json(http.MethodPut, "/api/tasks/"+a.ID+"/position", map[string]any{"index": 1})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []string{"b", "a"}, titles(decode[[]task.Task](t, res)))

	res = app.json(http.MethodPut, "/api/tasks/"+a.ID+"/position", map[string]any{"before": b.ID})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []string{"a", "b"}, titles(decode[[]task.Task](t, res)))

	res = app.json(http.MethodPut, "/api/tasks/"+a.ID+"/position", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestServer_TimerWritesBackAndIsForgottenOnDelete(t *testing.T) {
	app := newTestApp(t)
	a := app.create(t, map[string]any{"title": "focus"})

	res := app.request(http.MethodPost, "/api/timers/"+a.ID+"/start", nil, "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "running", decode[map[string]any](t, res)["phase"])

	app.timers.Tick(75 * time.Second)

	res = app.request(http.MethodPost, "/api/timers/"+a.ID+"/pause", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	view := decode[map[string]any](t, res)
	assert.Equal(t, "paused", view["phase"])
	assert.Equal(t, "1:15", view["display"])

	got, err := app.store.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, got.Timer)

	res = app.request(http.MethodDelete, "/api/tasks/"+a.ID, nil, "")
	require.Equal(t, http.StatusNoContent, res.Code)
	_, ok, err := app.kv.Get(storage.TimerKey(a.ID))
	require.NoError(t, err)
	assert.False(t, ok, "timer state is removed with its task")
}

func TestServer_Categories(t *testing.T) {
	app := newTestApp(t)

	res := app.json(http.MethodPost, "/api/categories", map[string]any{"name": " Work "})
	require.Equal(t, http.StatusCreated, res.Code)
	res = app.json(http.MethodPost, "/api/categories", map[string]any{"name": "Home"})
	require.Equal(t, http.StatusCreated, res.Code)

	res = app.json(http.MethodPost, "/api/categories", map[string]any{"name": "Work"})
	assert.Equal(t, http.StatusConflict, res.Code)
	res = app.json(http.MethodPost, "/api/categories", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = app.json(http.MethodPut, "/api/categories/1", map[string]any{"name": "House"})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []string{"Work", "House"}, decode[[]string](t, res))

	res = app.request(http.MethodDelete, "/api/categories/Work", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []string{"House"}, decode[[]string](t, res))

	res = app.request(http.MethodDelete, "/api/categories/Work", nil, "")
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestServer_InsightsAndActivity(t *testing.T) {
	app := newTestApp(t)
	a := app.create(t, map[string]any{"title": "a", "category": "Work"})
	app.create(t, map[string]any{"title": "b"})
	res := app.request(http.MethodPost, "/api/tasks/"+a.ID+"/toggle", nil, "")
	require.Equal(t, http.StatusOK, res.Code)

	res = app.request(http.MethodGet, "/api/insights", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	in := decode[task.Insights](t, res)
	assert.Equal(t, 2, in.Total)
	assert.Equal(t, 50, in.CompletionRate)
	assert.Equal(t, map[string]int{"Work": 1, "Uncategorized": 1}, in.ByCategory)

	res = app.request(http.MethodGet, "/api/activity?type=task_created", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	body := decode[struct {
		Events []telemetry.Event `json:"events"`
		Stats  telemetry.Stats   `json:"stats"`
	}](t, res)
	assert.Len(t, body.Events, 2)
	assert.Equal(t, 2, body.Stats.EventCounts[telemetry.EventTaskCreated])

	res = app.request(http.MethodGet, "/api/activity?since=yesterday", nil, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func titles(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}
