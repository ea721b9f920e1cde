package serverapp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/Mido1300/sm/internal/category"
	"github.com/Mido1300/sm/internal/clock"
	"github.com/Mido1300/sm/internal/config"
	"github.com/Mido1300/sm/internal/httpmw"
	"github.com/Mido1300/sm/internal/storage"
	"github.com/Mido1300/sm/internal/task"
	"github.com/Mido1300/sm/internal/telemetry"
	"github.com/Mido1300/sm/internal/timer"
)

type Options struct {
	Config     *config.Config
	Storage    storage.Store
	Store      *task.Store
	Timers     *timer.Registry
	Categories *category.List
	Activity   telemetry.Repository
	Clock      clock.Clock
	Logger     *log.Logger
}

type server struct {
	opts   Options
	search *task.Debouncer
}

func NewHandler(opts Options) (http.Handler, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("task store is required")
	}
	if opts.Timers == nil {
		return nil, errors.New("timer registry is required")
	}
	if opts.Categories == nil {
		return nil, errors.New("category list is required")
	}
	if opts.Activity == nil {
		opts.Activity = telemetry.NewMemoryRepository(0, nil)
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &server{
		opts:   opts,
		search: task.NewSearchDebouncer(opts.Store, opts.Config.SearchDebounce()),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "taskd",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /readyz", s.readyz)

	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("POST /api/tasks", s.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", s.getTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", s.patchTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.deleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/toggle", s.toggleTask)
	mux.HandleFunc("PUT /api/tasks/{id}/position", s.moveTask)
	mux.HandleFunc("POST /api/tasks/{id}/subtasks", s.addSubtask)
	mux.HandleFunc("POST /api/tasks/{id}/subtasks/{index}/toggle", s.toggleSubtask)
	mux.HandleFunc("DELETE /api/tasks/{id}/subtasks/{index}", s.removeSubtask)

	mux.HandleFunc("GET /api/view", s.getView)
	mux.HandleFunc("PUT /api/view", s.putView)
	mux.HandleFunc("POST /api/view/search", s.searchView)

	mux.HandleFunc("GET /api/selection", s.getSelection)
	mux.HandleFunc("PUT /api/selection", s.putSelection)
	mux.HandleFunc("DELETE /api/selection", s.clearSelection)
	mux.HandleFunc("POST /api/selection/{id}", s.toggleSelection)

	mux.HandleFunc("POST /api/batch", s.batch)
	mux.HandleFunc("POST /api/import", s.importTasks)
	mux.HandleFunc("GET /api/export", s.exportTasks)
	mux.HandleFunc("GET /api/export.ics", s.exportCalendar)
	mux.HandleFunc("GET /api/insights", s.insights)

	mux.HandleFunc("GET /api/categories", s.listCategories)
	mux.HandleFunc("POST /api/categories", s.addCategory)
	mux.HandleFunc("PUT /api/categories/{index}", s.renameCategory)
	mux.HandleFunc("DELETE /api/categories/{name}", s.removeCategory)

	mux.HandleFunc("GET /api/timers/{id}", s.getTimer)
	mux.HandleFunc("POST /api/timers/{id}/{action}", s.timerAction)

	mux.HandleFunc("GET /api/activity", s.activity)

	c := cors.New(cors.Options{
		AllowedOrigins: opts.Config.CORS.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
		},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Content-Disposition"},
	})

	return httpmw.Wrap(c.Handler(mux), opts.Logger), nil
}

func (s *server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Storage != nil {
		if _, _, err := s.opts.Storage.Get(storage.KeyTasks); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":    false,
				"error": "task storage unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "taskd",
		"tasks":   s.opts.Store.Len(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// writeError maps domain errors onto status codes. Storage failures are
// reported without their detail, which is already in the log.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrValidation),
		errors.Is(err, task.ErrImportFormat),
		errors.Is(err, category.ErrEmpty),
		errors.Is(err, timer.ErrInvalidID):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, task.ErrNotFound),
		errors.Is(err, category.ErrNotFound),
		errors.Is(err, task.ErrNoDueDates):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, category.ErrDuplicate):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrStorage):
		writeErr(w, http.StatusInternalServerError, "storage unavailable")
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

const maxBodyBytes = 4 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(out)
}
