package clock

import (
	"sort"
	"sync"
	"time"
)

// Virtual is a manually advanced Scheduler. Callbacks fire synchronously
// from Advance in deadline order, ties broken by scheduling order.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*virtualTimer
}

type virtualTimer struct {
	v       *Virtual
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) AfterFunc(d time.Duration, fn func()) Timer {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	t := &virtualTimer{v: v, at: v.now.Add(d), seq: v.seq, fn: fn}
	v.timers = append(v.timers, t)
	return t
}

func (t *virtualTimer) Stop() bool {
	t.v.mu.Lock()
	defer t.v.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d, firing every timer that comes due,
// including timers scheduled by callbacks within the window.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	for {
		t := v.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	v.mu.Lock()
	v.now = target
	v.mu.Unlock()
}

// Pending returns the number of timers that are neither stopped nor fired
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := 0
	for _, t := range v.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (v *Virtual) nextDue(target time.Time) *virtualTimer {
	v.mu.Lock()
	defer v.mu.Unlock()

	live := v.timers[:0]
	for _, t := range v.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	v.timers = live

	sort.SliceStable(v.timers, func(i, j int) bool {
		if v.timers[i].at.Equal(v.timers[j].at) {
			return v.timers[i].seq < v.timers[j].seq
		}
		return v.timers[i].at.Before(v.timers[j].at)
	})

	if len(v.timers) == 0 || v.timers[0].at.After(target) {
		return nil
	}

	t := v.timers[0]
	t.fired = true
	if t.at.After(v.now) {
		v.now = t.at
	}
	return t
}
