package task

import (
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mido1300/sm/internal/clock"
	"github.com/Mido1300/sm/internal/storage"
)

var testStart = time.Date(2026, 2, 7, 9, 0, 0, 0, time.UTC)

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

type fixture struct {
	store *Store
	kv    *storage.MemoryStore
	clock *clock.Stepping
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	kv := storage.NewMemoryStore()
	c := clock.NewStepping(testStart, time.Second)
	s, err := NewStore(kv,
		WithClock(c),
		WithIDGenerator(seqIDs("t")),
		WithLogger(log.New(io.Discard, "", 0)),
		WithSeed(false),
	)
	require.NoError(t, err)
	return fixture{store: s, kv: kv, clock: c}
}

func (f fixture) create(t *testing.T, title string, mods ...func(*Draft)) Task {
	t.Helper()
	d := Draft{Title: title}
	for _, m := range mods {
		m(&d)
	}
	created, err := f.store.Create(d)
	require.NoError(t, err)
	return created
}

func withPriority(p Priority) func(*Draft) {
	return func(d *Draft) { d.Priority = p }
}

func withDue(s string) func(*Draft) {
	return func(d *Draft) { d.DueDate = &s }
}

func withCategory(c string) func(*Draft) {
	return func(d *Draft) { d.Category = c }
}

func withSubtasks(titles ...string) func(*Draft) {
	return func(d *Draft) {
		for _, title := range titles {
			d.Subtasks = append(d.Subtasks, Subtask{Title: title})
		}
	}
}

func ptr[T any](v T) *T { return &v }

func ids(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func persisted(t *testing.T, kv storage.Store) []Task {
	t.Helper()
	got, err := storage.Load[[]Task](kv, storage.KeyTasks, nil)
	require.NoError(t, err)
	return got
}
