package recipe

import (
	"sync"
	"time"
	"tinking/backend/internal/models"
)

// DefaultDebounceWindow is the quiet period before a draft is written.
const DefaultDebounceWindow = 750 * time.Millisecond

// debouncer keeps only the latest step list and hands it to saveFn once no
// update arrived for the window.
type debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending []models.Step
	dirty   bool
	timer   *time.Timer
	saveFn  func([]models.Step)
	closed  bool
}

func newDebouncer(window time.Duration, saveFn func([]models.Step)) *debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &debouncer{window: window, saveFn: saveFn}
}

// add replaces the pending snapshot and (re)starts the window.
func (d *debouncer) add(steps []models.Step) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending = steps
	d.dirty = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush writes the pending snapshot, if any.
func (d *debouncer) flush() {
	d.mu.Lock()
	if !d.dirty {
		d.mu.Unlock()
		return
	}
	steps := d.pending
	d.pending = nil
	d.dirty = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.saveFn(steps)
}

// close flushes what is pending and refuses further updates.
func (d *debouncer) close() {
	d.flush()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}
