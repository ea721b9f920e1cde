// Package timer tracks the per-task work timers. Each task has its own
// state, persisted under its own key so a restart resumes where it left off.
package timer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Mido1300/sm/internal/logx"
	"github.com/Mido1300/sm/internal/storage"
)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhasePaused  Phase = "paused"
)

var ErrInvalidID = errors.New("timer id is required")

// State is what gets persisted for one task.
type State struct {
	Elapsed int  `json:"elapsed"` // seconds
	Running bool `json:"running"`
}

func (s State) Phase() Phase {
	switch {
	case s.Running:
		return PhaseRunning
	case s.Elapsed > 0:
		return PhasePaused
	}
	return PhaseIdle
}

// PauseHook is called after a timer stops with its final elapsed seconds.
type PauseHook func(id string, elapsed int)

// Registry owns every timer. Ticks advance all running timers together.
type Registry struct {
	mu      sync.Mutex
	kv      storage.Store
	logger  *log.Logger
	states  map[string]State
	carry   map[string]time.Duration
	onPause PauseHook
}

type Option func(*Registry)

func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithPauseHook registers fn to run after Pause and Reset.
func WithPauseHook(fn PauseHook) Option {
	return func(r *Registry) { r.onPause = fn }
}

func NewRegistry(kv storage.Store, opts ...Option) *Registry {
	r := &Registry{
		kv:     kv,
		logger: log.Default(),
		states: map[string]State{},
		carry:  map[string]time.Duration{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore loads persisted state for ids so running timers keep ticking
// after a restart. Unreadable entries start idle.
func (r *Registry) Restore(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		r.loadLocked(id)
	}
}

func (r *Registry) loadLocked(id string) State {
	if st, ok := r.states[id]; ok {
		return st
	}
	st, err := storage.Load(r.kv, storage.TimerKey(id), State{})
	if err != nil {
		logx.Event(r.logger, "warn", "timer_load_fallback", map[string]any{"id": id, "error": err.Error()})
	}
	if st.Elapsed < 0 {
		st.Elapsed = 0
	}
	r.states[id] = st
	return st
}

// commitLocked persists st before making it current.
func (r *Registry) commitLocked(id string, st State) error {
	if err := storage.Save(r.kv, storage.TimerKey(id), st); err != nil {
		logx.Event(r.logger, "error", "timer_save_failed", map[string]any{"id": id, "error": err.Error()})
		return err
	}
	r.states[id] = st
	return nil
}

func (r *Registry) State(id string) (State, error) {
	if strings.TrimSpace(id) == "" {
		return State{}, ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(id), nil
}

func (r *Registry) Start(id string) (State, error) {
	return r.transition(id, func(st State) State {
		st.Running = true
		return st
	}, false)
}

func (r *Registry) Pause(id string) (State, error) {
	return r.transition(id, func(st State) State {
		st.Running = false
		return st
	}, true)
}

// Toggle starts a stopped timer and pauses a running one.
func (r *Registry) Toggle(id string) (State, error) {
	st, err := r.State(id)
	if err != nil {
		return State{}, err
	}
	if st.Running {
		return r.Pause(id)
	}
	return r.Start(id)
}

// Reset stops the timer and zeroes its elapsed time.
func (r *Registry) Reset(id string) (State, error) {
	return r.transition(id, func(State) State {
		return State{}
	}, true)
}

func (r *Registry) transition(id string, fn func(State) State, notify bool) (State, error) {
	if strings.TrimSpace(id) == "" {
		return State{}, ErrInvalidID
	}

	r.mu.Lock()
	prev := r.loadLocked(id)
	next := fn(prev)
	if next != prev {
		if err := r.commitLocked(id, next); err != nil {
			r.mu.Unlock()
			return prev, err
		}
	}
	if !next.Running {
		delete(r.carry, id)
	}
	hook := r.onPause
	r.mu.Unlock()

	if notify && hook != nil {
		hook(id, next.Elapsed)
	}
	return next, nil
}

// Tick advances every running timer by d. Sub-second remainders carry over
// to the next tick.
func (r *Registry) Tick(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.runningLocked() {
		total := r.carry[id] + d
		secs := int(total / time.Second)
		r.carry[id] = total % time.Second
		if secs == 0 {
			continue
		}
		st := r.states[id]
		st.Elapsed += secs
		if err := r.commitLocked(id, st); err != nil {
			// keep counting in memory; the next successful save catches up
			r.states[id] = st
		}
	}
}

// Running lists the ids of running timers in a stable order.
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runningLocked()
}

func (r *Registry) runningLocked() []string {
	out := make([]string, 0, len(r.states))
	for id, st := range r.states {
		if st.Running {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Forget drops the timer and its persisted state.
func (r *Registry) Forget(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, id)
	delete(r.carry, id)
	return storage.Remove(r.kv, storage.TimerKey(id))
}

// Run ticks every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			r.Tick(now.Sub(last))
			last = now
		}
	}
}

// FormatElapsed renders seconds as m:ss.
func FormatElapsed(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}
