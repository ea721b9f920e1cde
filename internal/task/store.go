package task

import (
	"errors"
	"log"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/Mido1300/sm/internal/clock"
	"github.com/Mido1300/sm/internal/logx"
	"github.com/Mido1300/sm/internal/storage"
)

type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventDeleted   EventKind = "deleted"
	EventReordered EventKind = "reordered"
	EventImported  EventKind = "imported"
	EventBatch     EventKind = "batch"
	EventSelection EventKind = "selection"
)

// Event is delivered to subscribers after a change has been persisted.
type Event struct {
	Kind EventKind `json:"kind"`
	IDs  []string  `json:"ids,omitempty"`
	Op   BatchOp   `json:"op,omitempty"`
}

// Removed lists the ids this event deleted from the collection.
func (e Event) Removed() []string {
	if e.Kind == EventDeleted || (e.Kind == EventBatch && e.Op == BatchDelete) {
		return e.IDs
	}
	return nil
}

// Store owns the ordered task collection and the selection set. It is the
// only writer of the collection; every successful mutation is written
// through to the persistence layer before it becomes visible.
type Store struct {
	mu       sync.Mutex
	kv       storage.Store
	clock    clock.Clock
	newID    func() string
	logger   *log.Logger
	seed     bool
	tasks    []Task
	selected map[string]struct{}
	criteria Criteria

	subs    map[int]func(Event)
	nextSub int
}

type Option func(*Store)

func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithSeed controls whether a first run (no stored collection) is seeded
// with example tasks. Defaults to true.
func WithSeed(seed bool) Option {
	return func(s *Store) { s.seed = seed }
}

// NewStore loads the collection from kv, seeding example tasks when nothing
// is stored yet or the stored payload cannot be read.
func NewStore(kv storage.Store, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, errors.New("storage is required")
	}
	s := &Store{
		kv:       kv,
		clock:    clock.RealClock{},
		newID:    NewID,
		logger:   log.Default(),
		seed:     true,
		selected: map[string]struct{}{},
		criteria: DefaultCriteria(),
		subs:     map[int]func(Event){},
	}
	for _, opt := range opts {
		opt(s)
	}

	loaded, err := storage.Load[[]Task](kv, storage.KeyTasks, nil)
	if err != nil {
		logx.Event(s.logger, "warn", "tasks_load_fallback", map[string]any{
			"key":   storage.KeyTasks,
			"error": err.Error(),
		})
	}
	if loaded != nil {
		s.tasks = s.sanitize(loaded)
		return s, nil
	}

	if s.seed {
		seeded := SeedTasks(s.clock.Now(), s.newID)
		if err := storage.Save(kv, storage.KeyTasks, seeded); err != nil {
			logx.Event(s.logger, "error", "tasks_seed_save_failed", map[string]any{"error": err.Error()})
		}
		s.tasks = seeded
		return s, nil
	}
	s.tasks = []Task{}
	return s, nil
}

// sanitize repairs a loaded collection so the in-memory invariants hold:
// unique ids, known enums, non-negative timers, ordered timestamps.
func (s *Store) sanitize(in []Task) []Task {
	out := make([]Task, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		if strings.TrimSpace(t.Title) == "" {
			logx.Event(s.logger, "warn", "tasks_load_dropped_untitled", map[string]any{"id": t.ID})
			continue
		}
		for t.ID == "" || seen[t.ID] {
			t.ID = s.newID()
		}
		seen[t.ID] = true
		if !t.Priority.Valid() {
			t.Priority = PriorityMedium
		}
		if !t.Status.Valid() {
			t.Status = StatusPending
		}
		if t.Timer < 0 {
			t.Timer = 0
		}
		if t.DueDate != nil {
			if due, err := normalizeDueDate(*t.DueDate); err == nil {
				t.DueDate = due
			} else {
				t.DueDate = nil
			}
		}
		if subs, err := normalizeSubtasks(t.Subtasks, s.newID); err == nil {
			t.Subtasks = subs
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = s.clock.Now()
		}
		if t.UpdatedAt.Before(t.CreatedAt) {
			t.UpdatedAt = t.CreatedAt
		}
		out = append(out, t)
	}
	return out
}

// errUnchanged lets a mutation finish without a write or an event.
var errUnchanged = errors.New("collection unchanged")

// txn is the working copy handed to a mutation.
type txn struct {
	tasks          []Task
	event          Event
	clearSelection bool
}

func (tx *txn) index(id string) int {
	return slices.IndexFunc(tx.tasks, func(t Task) bool { return t.ID == id })
}

// mutate runs fn against a copy of the collection, persists the result and
// only then swaps it in. Subscribers are notified outside the lock.
func (s *Store) mutate(fn func(tx *txn) error) error {
	s.mu.Lock()

	tx := &txn{tasks: slices.Clone(s.tasks)}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	if err := storage.Save(s.kv, storage.KeyTasks, tx.tasks); err != nil {
		s.mu.Unlock()
		logx.Event(s.logger, "error", "tasks_save_failed", map[string]any{
			"key":   storage.KeyTasks,
			"event": string(tx.event.Kind),
			"error": err.Error(),
		})
		return err
	}

	s.tasks = tx.tasks
	if tx.event.Kind == EventDeleted {
		for _, id := range tx.event.IDs {
			delete(s.selected, id)
		}
	}
	if tx.clearSelection {
		s.selected = map[string]struct{}{}
	}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(tx.event)
	}
	return nil
}

func (s *Store) subscribersLocked() []func(Event) {
	keys := make([]int, 0, len(s.subs))
	for k := range s.subs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]func(Event), 0, len(keys))
	for _, k := range keys {
		out = append(out, s.subs[k])
	}
	return out
}

// Subscribe registers fn for change notifications. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notifySelection() {
	s.mu.Lock()
	subs := s.subscribersLocked()
	s.mu.Unlock()
	for _, fn := range subs {
		fn(Event{Kind: EventSelection})
	}
}

// Tasks returns a snapshot of the ordered collection.
func (s *Store) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTasks(s.tasks)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Store) Get(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.ID == id {
			return t.clone(), nil
		}
	}
	return Task{}, taskNotFound(id)
}

func (s *Store) Create(d Draft) (Task, error) {
	if strings.TrimSpace(d.Title) == "" {
		return Task{}, &ValidationError{Field: "title", Reason: "title is required"}
	}
	priority := d.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return Task{}, &ValidationError{Field: "priority", Reason: "must be High, Medium or Low"}
	}
	due, err := normalizeDueDate(derefString(d.DueDate))
	if err != nil {
		return Task{}, err
	}
	subs, err := normalizeSubtasks(d.Subtasks, s.newID)
	if err != nil {
		return Task{}, err
	}

	var created Task
	err = s.mutate(func(tx *txn) error {
		now := s.clock.Now()
		created = Task{
			ID:          s.uniqueIDLocked(tx.tasks),
			Title:       d.Title,
			Description: d.Description,
			Category:    d.Category,
			Priority:    priority,
			Status:      StatusPending,
			DueDate:     due,
			Subtasks:    subs,
			Notes:       d.Notes,
			Timer:       0,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		tx.tasks = append(tx.tasks, created)
		tx.event = Event{Kind: EventCreated, IDs: []string{created.ID}}
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return created.clone(), nil
}

// uniqueIDLocked draws ids until one is unused in tasks.
func (s *Store) uniqueIDLocked(tasks []Task) string {
	for {
		id := s.newID()
		if id != "" && !slices.ContainsFunc(tasks, func(t Task) bool { return t.ID == id }) {
			return id
		}
	}
}

// edit applies fn to the task with id and refreshes UpdatedAt.
func (s *Store) edit(id string, fn func(t *Task) error) (Task, error) {
	var updated Task
	err := s.mutate(func(tx *txn) error {
		i := tx.index(id)
		if i < 0 {
			return taskNotFound(id)
		}
		t := tx.tasks[i].clone()
		if err := fn(&t); err != nil {
			return err
		}
		t.touch(s.clock.Now())
		tx.tasks[i] = t
		updated = t
		tx.event = Event{Kind: EventUpdated, IDs: []string{id}}
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return updated.clone(), nil
}

// Update merges p into the task. ID and CreatedAt are never changed.
func (s *Store) Update(id string, p Patch) (Task, error) {
	return s.edit(id, func(t *Task) error {
		return applyPatch(t, p, s.newID)
	})
}

// Delete removes the task and drops it from the selection. An unknown id
// returns ErrNotFound and changes nothing.
func (s *Store) Delete(id string) error {
	return s.mutate(func(tx *txn) error {
		i := tx.index(id)
		if i < 0 {
			return taskNotFound(id)
		}
		tx.tasks = slices.Delete(tx.tasks, i, i+1)
		tx.event = Event{Kind: EventDeleted, IDs: []string{id}}
		return nil
	})
}

func (s *Store) ToggleStatus(id string) (Task, error) {
	return s.edit(id, func(t *Task) error {
		t.Status = t.Status.flip()
		return nil
	})
}

func (s *Store) ToggleSubtask(taskID string, index int) (Task, error) {
	return s.edit(taskID, func(t *Task) error {
		if index < 0 || index >= len(t.Subtasks) {
			return &NotFoundError{Kind: "subtask", ID: subtaskRef(taskID, index)}
		}
		t.Subtasks[index].Completed = !t.Subtasks[index].Completed
		return nil
	})
}

func (s *Store) AddSubtask(taskID, title string) (Task, error) {
	if strings.TrimSpace(title) == "" {
		return Task{}, &ValidationError{Field: "subtasks", Reason: "subtask title is required"}
	}
	return s.edit(taskID, func(t *Task) error {
		subs := append(t.Subtasks, Subtask{Title: title})
		norm, err := normalizeSubtasks(subs, s.newID)
		if err != nil {
			return err
		}
		t.Subtasks = norm
		return nil
	})
}

func (s *Store) RemoveSubtask(taskID string, index int) (Task, error) {
	return s.edit(taskID, func(t *Task) error {
		if index < 0 || index >= len(t.Subtasks) {
			return &NotFoundError{Kind: "subtask", ID: subtaskRef(taskID, index)}
		}
		t.Subtasks = slices.Delete(t.Subtasks, index, index+1)
		if len(t.Subtasks) == 0 {
			t.Subtasks = nil
		}
		return nil
	})
}

// Reorder moves the task to targetIndex in the ordered sequence. The index
// is clamped to the sequence bounds. No task field changes.
func (s *Store) Reorder(id string, targetIndex int) error {
	return s.mutate(func(tx *txn) error {
		from := tx.index(id)
		if from < 0 {
			return taskNotFound(id)
		}
		moveTask(tx.tasks, from, targetIndex)
		tx.event = Event{Kind: EventReordered, IDs: []string{id}}
		return nil
	})
}

// MoveBefore places the task immediately before beforeID. An empty beforeID
// moves it to the end.
func (s *Store) MoveBefore(id, beforeID string) error {
	return s.mutate(func(tx *txn) error {
		from := tx.index(id)
		if from < 0 {
			return taskNotFound(id)
		}
		tx.event = Event{Kind: EventReordered, IDs: []string{id}}
		if beforeID == id {
			return nil
		}
		to := len(tx.tasks) - 1
		if beforeID != "" {
			target := tx.index(beforeID)
			if target < 0 {
				return taskNotFound(beforeID)
			}
			to = target
			if from < target {
				to--
			}
		}
		moveTask(tx.tasks, from, to)
		return nil
	})
}

func moveTask(tasks []Task, from, to int) {
	if to < 0 {
		to = 0
	}
	if to > len(tasks)-1 {
		to = len(tasks) - 1
	}
	if from == to {
		return
	}
	t := tasks[from]
	if from < to {
		copy(tasks[from:to], tasks[from+1:to+1])
	} else {
		copy(tasks[to+1:from+1], tasks[to:from])
	}
	tasks[to] = t
}

// Select marks id for batch operations. Unknown ids are accepted and simply
// never show up in Selected.
func (s *Store) Select(id string) {
	s.mu.Lock()
	s.selected[id] = struct{}{}
	s.mu.Unlock()
	s.notifySelection()
}

func (s *Store) Deselect(id string) {
	s.mu.Lock()
	delete(s.selected, id)
	s.mu.Unlock()
	s.notifySelection()
}

// ToggleSelect flips membership and reports whether id is now selected.
func (s *Store) ToggleSelect(id string) bool {
	s.mu.Lock()
	_, on := s.selected[id]
	if on {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
	}
	s.mu.Unlock()
	s.notifySelection()
	return !on
}

func (s *Store) SetSelection(ids []string) {
	s.mu.Lock()
	s.selected = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.selected[id] = struct{}{}
	}
	s.mu.Unlock()
	s.notifySelection()
}

func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = map[string]struct{}{}
	s.mu.Unlock()
	s.notifySelection()
}

func (s *Store) IsSelected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selected[id]
	return ok
}

// Selected returns the selected ids that refer to existing tasks, in
// collection order.
func (s *Store) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.selected))
	for _, t := range s.tasks {
		if _, ok := s.selected[t.ID]; ok {
			out = append(out, t.ID)
		}
	}
	return out
}

func (s *Store) SetCriteria(c Criteria) {
	s.mu.Lock()
	s.criteria = c
	s.mu.Unlock()
}

func (s *Store) Criteria() Criteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.criteria
}

// setSearch updates only the search text of the held criteria.
func (s *Store) setSearch(q string) {
	s.mu.Lock()
	s.criteria.Search = q
	s.mu.Unlock()
}

// View derives the filtered, sorted sequence for c.
func (s *Store) View(c Criteria) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Derive(s.tasks, c)
}

// Filtered derives the view for the criteria currently held by the store.
func (s *Store) Filtered() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Derive(s.tasks, s.criteria)
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
