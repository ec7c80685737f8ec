// Package debounce delays a call until its input has settled.
//
// Each logical slot (one per debounced field) holds at most one pending call.
// Scheduling into a slot cancels whatever was pending there, and Stop cancels
// everything and refuses further work, so a torn-down owner never receives a
// late invocation.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the settle time used by input fields.
const DefaultDelay = 750 * time.Millisecond

// Timer is the cancellable handle returned by a Scheduler.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules on the runtime timer heap.
type SystemScheduler struct{}

func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Option func(*options)

type options struct {
	scheduler Scheduler
}

// WithScheduler replaces the timer source, typically with a ManualScheduler.
func WithScheduler(s Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

type pending struct {
	timer Timer
	gen   uint64
}

// Debouncer coalesces rapid Schedule calls per slot into a single call with
// the last value.
type Debouncer[V any] struct {
	mu        sync.Mutex
	scheduler Scheduler
	slots     map[string]*pending
	seq       uint64
	stopped   bool
}

func New[V any](opts ...Option) *Debouncer[V] {
	o := options{scheduler: SystemScheduler{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Debouncer[V]{
		scheduler: o.scheduler,
		slots:     make(map[string]*pending),
	}
}

// Schedule arranges for fn(value) to run after delay unless the slot is
// rescheduled, cancelled or the debouncer is stopped first.
func (d *Debouncer[V]) Schedule(slot string, value V, delay time.Duration, fn func(V)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if p, ok := d.slots[slot]; ok {
		p.timer.Stop()
	}

	d.seq++
	gen := d.seq
	p := &pending{gen: gen}
	d.slots[slot] = p
	// fire takes d.mu, so it cannot observe p before timer is assigned.
	p.timer = d.scheduler.AfterFunc(delay, func() {
		d.fire(slot, gen, value, fn)
	})
}

func (d *Debouncer[V]) fire(slot string, gen uint64, value V, fn func(V)) {
	d.mu.Lock()
	p, ok := d.slots[slot]
	if !ok || p.gen != gen || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.slots, slot)
	d.mu.Unlock()

	fn(value)
}

// Cancel drops the pending call for slot, if any.
func (d *Debouncer[V]) Cancel(slot string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.slots[slot]; ok {
		p.timer.Stop()
		delete(d.slots, slot)
	}
}

// Pending reports whether slot has a call waiting to fire.
func (d *Debouncer[V]) Pending(slot string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.slots[slot]
	return ok
}

// Stop cancels every pending call. Later Schedule calls are ignored.
func (d *Debouncer[V]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for slot, p := range d.slots {
		p.timer.Stop()
		delete(d.slots, slot)
	}
}
