// Package clock abstracts wall-clock reads and one-shot timers so the
// scheduler can be driven deterministically in tests.
package clock

import "time"

// Timer is an armed one-shot timer. Stop is best-effort: it reports false
// when the callback has already fired or started firing.
type Timer interface {
	Stop() bool
}

// Clock supplies the current time and arms one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// System is the real wall clock.
type System struct{}

func NewSystem() System { return System{} }

func (System) Now() time.Time { return time.Now() }

func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
