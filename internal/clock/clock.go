// Package clock abstracts time so that timer-driven continuations can be
// posted onto the control loop in production and driven deterministically in
// tests.
package clock

import "time"

// Timer is a scheduled callback that can be cancelled
type Timer interface {
	Stop() bool
}

// Scheduler provides the current time and one-shot timers
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Poster runs fn on the owner's goroutine
type Poster interface {
	Post(fn func())
}

type loopScheduler struct {
	poster Poster
}

// OnLoop returns a Scheduler whose callbacks are posted to the given loop
// instead of running on the timer goroutine.
func OnLoop(p Poster) Scheduler {
	return &loopScheduler{poster: p}
}

func (s *loopScheduler) Now() time.Time {
	return time.Now()
}

func (s *loopScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		s.poster.Post(fn)
	})
}
