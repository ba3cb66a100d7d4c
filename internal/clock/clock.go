// Package clock provides the timer abstraction used by the typing signals,
// with a manually advanced fake for tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is an armed callback that can be disarmed or re-armed.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// New returns a Clock backed by the time package.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Fake is a Clock that only moves when Advance is called. Callbacks run
// synchronously on the goroutine calling Advance.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func NewFake() *Fake {
	return &Fake{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{clock: f, fn: fn, when: f.now.Add(d), armed: true}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that comes due in
// deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		due := f.dueLocked(target)
		if due == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		due.armed = false
		f.now = due.when
		fn := due.fn
		f.mu.Unlock()

		fn()
	}
}

// Pending reports how many timers are armed.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, t := range f.timers {
		if t.armed {
			n++
		}
	}
	return n
}

func (f *Fake) dueLocked(target time.Time) *fakeTimer {
	var armed []*fakeTimer
	for _, t := range f.timers {
		if t.armed {
			armed = append(armed, t)
		}
	}
	f.timers = armed

	sort.SliceStable(armed, func(i, j int) bool { return armed[i].when.Before(armed[j].when) })
	if len(armed) > 0 && !armed[0].when.After(target) {
		return armed[0]
	}
	return nil
}

type fakeTimer struct {
	clock *Fake
	fn    func()
	when  time.Time
	armed bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasArmed := t.armed
	t.armed = false
	return wasArmed
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasArmed := t.armed
	t.armed = true
	t.when = t.clock.now.Add(d)
	for _, other := range t.clock.timers {
		if other == t {
			return wasArmed
		}
	}
	t.clock.timers = append(t.clock.timers, t)
	return wasArmed
}
