package payoff

import (
	"sync"
	"time"
)

// Timer is the part of *time.Timer the debouncer needs
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d, like time.AfterFunc
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer is a single shot delayed task that is restarted by every Trigger. Each trigger is issued a
// monotonically increasing token, and only the task holding the latest token ever runs.
type Debouncer struct {
	sync.Mutex
	delay  time.Duration
	after  AfterFunc
	timer  Timer
	token  uint64
	closed bool
}

// NewDebouncer uses time.AfterFunc when after is nil
func NewDebouncer(delay time.Duration, after AfterFunc) *Debouncer {
	if after == nil {
		after = realAfterFunc
	}
	return &Debouncer{delay: delay, after: after}
}

// Trigger cancels any pending task and schedules f to run after the quiescence window.
// It returns the token f will be called with, or 0 if the debouncer is closed.
func (d *Debouncer) Trigger(f func(token uint64)) uint64 {
	d.Lock()
	defer d.Unlock()

	if d.closed {
		return 0
	}
	d.stop()
	d.token++
	token := d.token
	d.timer = d.after(d.delay, func() { d.fire(token, f) })
	return token
}

func (d *Debouncer) fire(token uint64, f func(uint64)) {
	d.Lock()
	if d.closed || token != d.token {
		// superseded, the timer fired while being stopped
		d.Unlock()
		return
	}
	d.timer = nil
	d.Unlock()

	f(token)
}

// IsCurrent reports whether no trigger or cancel happened after the one that issued token
func (d *Debouncer) IsCurrent(token uint64) bool {
	d.Lock()
	defer d.Unlock()
	return !d.closed && token == d.token
}

func (d *Debouncer) Pending() bool {
	d.Lock()
	defer d.Unlock()
	return d.timer != nil
}

// Cancel drops the pending task, if any, and invalidates the outstanding token
func (d *Debouncer) Cancel() {
	d.Lock()
	defer d.Unlock()
	d.stop()
	d.token++
}

func (d *Debouncer) Close() {
	d.Lock()
	defer d.Unlock()
	d.stop()
	d.closed = true
}

func (d *Debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
