package task

import (
	"sync"
	"time"
)

// Debouncer delivers only the latest value once input has been quiet for the
// delay. Earlier pending values are superseded, not delivered.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func(string)
	timer *time.Timer
	seq   uint64
}

func NewDebouncer(delay time.Duration, fn func(string)) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// NewSearchDebouncer updates the store's search criterion after delay.
func NewSearchDebouncer(s *Store, delay time.Duration) *Debouncer {
	return NewDebouncer(delay, s.setSearch)
}

func (d *Debouncer) Trigger(v string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := seq == d.seq
		d.mu.Unlock()
		if current {
			d.fn(v)
		}
	})
}

// Stop drops any pending value.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
