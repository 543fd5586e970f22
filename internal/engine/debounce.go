package engine

import (
	"sync"
	"time"
)

// debouncer runs fn(key) once per key after delay has passed without another
// Trigger for that key.
type debouncer struct {
	delay time.Duration
	fn    func(key int64)

	mu     sync.Mutex
	timers map[int64]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

func newDebouncer(delay time.Duration, fn func(key int64)) *debouncer {
	return &debouncer{delay: delay, fn: fn, timers: make(map[int64]*time.Timer)}
}

// Trigger starts or restarts the timer for key.
func (d *debouncer) Trigger(key int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if t, ok := d.timers[key]; ok {
		if t.Stop() {
			d.wg.Done()
		}
	}
	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.timers[key] == t {
			delete(d.timers, key)
		}
		closed := d.closed
		d.mu.Unlock()
		if !closed {
			d.fn(key)
		}
	})
	d.timers[key] = t
}

// Pending reports whether key has a timer waiting to fire.
func (d *debouncer) Pending(key int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// Close stops every pending timer and waits for running callbacks.
// Trigger is a no-op afterwards.
func (d *debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	for key, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
