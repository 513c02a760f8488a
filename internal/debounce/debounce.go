// Package debounce implements C9: a per-path quiescence window so a burst
// of rapid MODIFIED notifications for the same file collapses into a
// single downstream event, fired once the path has been quiet for the
// configured window.
package debounce

import (
	"sync"
	"time"
)

// Window is the fixed quiescence period (§5, §8): a path must see no
// further modification for this long before it is considered settled.
const Window = 2 * time.Second

// Debouncer coalesces repeated notifications for the same path. Each call
// to Notify resets that path's timer; the timer firing is what triggers
// Fire. A path notified again before its timer fires never triggers Fire
// for the earlier burst — only the final quiescent state does.
type Debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	window time.Duration
	Fire   func(path string)
}

// New builds a Debouncer that calls fire(path) window after the last
// Notify(path), once no further Notify(path) calls arrive in that window.
func New(window time.Duration, fire func(path string)) *Debouncer {
	return &Debouncer{
		timers: make(map[string]*time.Timer),
		window: window,
		Fire:   fire,
	}
}

// Notify records an event for path, resetting its quiescence timer.
func (d *Debouncer) Notify(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.timers[path] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
		d.Fire(path)
	})
}

// Cancel stops any pending timer for path without firing it. Used when a
// path is removed before its debounce window elapses.
func (d *Debouncer) Cancel(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[path]; ok {
		t.Stop()
		delete(d.timers, path)
	}
}

// Pending reports whether path currently has an outstanding timer, for
// tests that need to observe debounce state without waiting out the
// window.
func (d *Debouncer) Pending(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[path]
	return ok
}
