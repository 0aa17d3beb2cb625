// Package clock provides an injectable time source for Grimoire components
// that schedule work, so countdown behavior can be tested deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock reads and timer scheduling.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc schedules fn to run in its own goroutine after d elapses.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop cancels the timer. It reports whether the callback was
	// prevented from firing.
	Stop() bool
}

// System returns a Clock backed by the time package.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{t: time.AfterFunc(d, fn)}
}

type systemTimer struct {
	t *time.Timer
}

func (st systemTimer) Stop() bool {
	return st.t.Stop()
}

// Fake is a manually advanced Clock for tests. Timers fire synchronously
// from Advance, in scheduling order, on the calling goroutine.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	nextSeq int
}

// NewFake creates a fake clock starting at a fixed, arbitrary instant.
func NewFake() *Fake {
	return &Fake{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the fake clock's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn to fire once Advance has moved the clock past d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	ft := &fakeTimer{
		clock: f,
		when:  f.now.Add(d),
		seq:   f.nextSeq,
		fn:    fn,
	}
	f.nextSeq++
	f.pending = append(f.pending, ft)
	return ft
}

// Advance moves the clock forward by d, firing every due timer in order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)

	for {
		idx := -1
		for i, ft := range f.pending {
			if ft.when.After(f.now) {
				continue
			}
			if idx == -1 || ft.when.Before(f.pending[idx].when) ||
				(ft.when.Equal(f.pending[idx].when) && ft.seq < f.pending[idx].seq) {
				idx = i
			}
		}
		if idx == -1 {
			break
		}

		ft := f.pending[idx]
		f.pending = append(f.pending[:idx], f.pending[idx+1:]...)

		// Fire without holding the lock so callbacks can reschedule.
		f.mu.Unlock()
		ft.fn()
		f.mu.Lock()
	}

	f.mu.Unlock()
}

// PendingTimers returns the number of timers not yet fired or stopped.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

type fakeTimer struct {
	clock *Fake
	when  time.Time
	seq   int
	fn    func()
}

func (ft *fakeTimer) Stop() bool {
	ft.clock.mu.Lock()
	defer ft.clock.mu.Unlock()

	for i, p := range ft.clock.pending {
		if p == ft {
			ft.clock.pending = append(ft.clock.pending[:i], ft.clock.pending[i+1:]...)
			return true
		}
	}
	return false
}
