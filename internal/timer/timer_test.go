package timer

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mido1300/sm/internal/storage"
)

func newRegistry(t *testing.T, opts ...Option) (*Registry, *storage.MemoryStore) {
	t.Helper()
	kv := storage.NewMemoryStore()
	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	return NewRegistry(kv, opts...), kv
}

func TestRegistry_Lifecycle(t *testing.T) {
	r, kv := newRegistry(t)

	st, err := r.State("t1")
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase())

	st, err = r.Start("t1")
	require.NoError(t, err)
	assert.Equal(t, PhaseRunning, st.Phase())

	r.Tick(3 * time.Second)

	st, err = r.Pause("t1")
	require.NoError(t, err)
	assert.Equal(t, PhasePaused, st.Phase())
	assert.Equal(t, 3, st.Elapsed)

	r.Tick(10 * time.Second)
	st, _ = r.State("t1")
	assert.Equal(t, 3, st.Elapsed, "paused timers do not advance")

	saved, err := storage.Load(kv, storage.TimerKey("t1"), State{})
	require.NoError(t, err)
	assert.Equal(t, State{Elapsed: 3}, saved)

	st, err = r.Reset("t1")
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase())
	assert.Zero(t, st.Elapsed)
}

func TestRegistry_TickCarriesSubSecondRemainders(t *testing.T) {
	r, _ := newRegistry(t)
	_, err := r.Start("t1")
	require.NoError(t, err)

	for range 5 {
		r.Tick(400 * time.Millisecond)
	}
	st, _ := r.State("t1")
	assert.Equal(t, 2, st.Elapsed)
}

func TestRegistry_TimersAreIndependent(t *testing.T) {
	r, _ := newRegistry(t)
	_, _ = r.Start("a")
	_, _ = r.Start("b")
	r.Tick(time.Second)
	_, _ = r.Pause("a")
	r.Tick(time.Second)

	a, _ := r.State("a")
	b, _ := r.State("b")
	assert.Equal(t, 1, a.Elapsed)
	assert.Equal(t, 2, b.Elapsed)
	assert.Equal(t, []string{"b"}, r.Running())
}

func TestRegistry_Toggle(t *testing.T) {
	r, _ := newRegistry(t)

	st, err := r.Toggle("t1")
	require.NoError(t, err)
	assert.True(t, st.Running)

	st, err = r.Toggle("t1")
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestRegistry_RestoreResumesRunningTimers(t *testing.T) {
	kv := storage.NewMemoryStore()
	require.NoError(t, storage.Save(kv, storage.TimerKey("t1"), State{Elapsed: 65, Running: true}))
	require.NoError(t, storage.Save(kv, storage.TimerKey("t2"), State{Elapsed: 5}))

	r := NewRegistry(kv, WithLogger(log.New(io.Discard, "", 0)))
	r.Restore([]string{"t1", "t2", "t3", ""})
	assert.Equal(t, []string{"t1"}, r.Running())

	r.Tick(time.Second)
	st, _ := r.State("t1")
	assert.Equal(t, 66, st.Elapsed)
	assert.Equal(t, "1:06", FormatElapsed(st.Elapsed))
}

func TestRegistry_CorruptStateStartsIdle(t *testing.T) {
	r, kv := newRegistry(t)
	kv.Raw(storage.TimerKey("t1"), []byte("{"))

	st, err := r.State("t1")
	require.NoError(t, err)
	assert.Equal(t, State{}, st)
}

func TestRegistry_PauseHookReceivesElapsed(t *testing.T) {
	type call struct {
		id      string
		elapsed int
	}
	var calls []call
	r, _ := newRegistry(t, WithPauseHook(func(id string, elapsed int) {
		calls = append(calls, call{id, elapsed})
	}))

	_, _ = r.Start("t1")
	r.Tick(7 * time.Second)
	_, _ = r.Pause("t1")
	_, _ = r.Reset("t1")

	assert.Equal(t, []call{{"t1", 7}, {"t1", 0}}, calls)
}

func TestRegistry_SaveFailureKeepsPreviousState(t *testing.T) {
	r, kv := newRegistry(t)
	kv.SetFailPuts(errors.New("disk full"))

	st, err := r.Start("t1")
	assert.ErrorIs(t, err, storage.ErrStorage)
	assert.False(t, st.Running)
	assert.Empty(t, r.Running())
}

func TestRegistry_ForgetRemovesPersistedState(t *testing.T) {
	r, kv := newRegistry(t)
	_, _ = r.Start("t1")
	r.Tick(2 * time.Second)

	require.NoError(t, r.Forget("t1"))
	_, ok, err := kv.Get(storage.TimerKey("t1"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, r.Running())

	st, _ := r.State("t1")
	assert.Equal(t, State{}, st)
}

func TestRegistry_RejectsBlankID(t *testing.T) {
	r, _ := newRegistry(t)

	_, err := r.Start(" ")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = r.State("")
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.ErrorIs(t, r.Forget(""), ErrInvalidID)
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	r, _ := newRegistry(t)
	_, _ = r.Start("t1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 10*time.Millisecond) }()

	assert.Eventually(t, func() bool {
		st, _ := r.State("t1")
		return st.Elapsed >= 1
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFormatElapsed(t *testing.T) {
	cases := map[int]string{0: "0:00", 9: "0:09", 60: "1:00", 3599: "59:59", 3600: "60:00", -4: "0:00"}
	for in, want := range cases {
		assert.Equal(t, want, FormatElapsed(in), "sec=%d", in)
	}
}
