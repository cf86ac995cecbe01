package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually-advanced clock for tests.
//
// Advance moves the clock forward and fires every timer whose deadline has
// been reached, synchronously, in deadline order. Callbacks run without the
// clock lock held, so they may call Now() or arm further timers.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clk: f, at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock by d and runs all due timer callbacks before
// returning.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	var due []*fakeTimer
	rest := f.timers[:0]
	for _, t := range f.timers {
		if !t.at.After(now) && !t.stopped {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	f.timers = rest
	f.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fire()
	}
}

type fakeTimer struct {
	clk *Fake
	at  time.Time
	fn  func()

	// guarded by clk.mu
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) fire() {
	t.clk.mu.Lock()
	if t.stopped || t.fired {
		t.clk.mu.Unlock()
		return
	}
	t.fired = true
	fn := t.fn
	t.clk.mu.Unlock()

	if fn != nil {
		fn()
	}
}
