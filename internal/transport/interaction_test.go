package transport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"chessbot/internal/clock"
	"chessbot/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chanPoster chan func()

func (p chanPoster) Post(fn func()) {
	p <- fn
}

type fakeSurface struct {
	mu        sync.Mutex
	missing   map[string]bool
	failOn    Handle
	triggered []Handle
	times     []time.Time
}

func (s *fakeSurface) ResolveEndpoint(label string) (Handle, bool) {
	if s.missing[label] {
		return "", false
	}
	return Handle("sq-" + label), true
}

func (s *fakeSurface) TriggerInteraction(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == s.failOn {
		return errors.New("element detached")
	}
	s.triggered = append(s.triggered, h)
	s.times = append(s.times, time.Now())
	return nil
}

func (s *fakeSurface) handles() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Handle(nil), s.triggered...)
}

func alwaysLive() bool { return true }

// drain runs posted functions until stop reports true or d elapses
func drain(loop chanPoster, d time.Duration, stop func() bool) {
	deadline := time.After(d)
	for !stop() {
		select {
		case fn := <-loop:
			fn()
		case <-deadline:
			return
		}
	}
}

// deliver runs the loop until done fires
func deliver(t *testing.T, surface Surface, delay time.Duration, move string) error {
	t.Helper()
	loop := make(chanPoster, 16)
	i := NewInteraction(surface, clock.OnLoop(loop), loop.Post, delay, zap.NewNop())

	result := make(chan error, 1)
	i.Deliver(move, alwaysLive, func(err error) { result <- err })

	timeout := time.After(2 * time.Second)
	for {
		select {
		case fn := <-loop:
			fn()
		case err := <-result:
			return err
		case <-timeout:
			t.Fatal("delivery did not complete")
		}
	}
}

func TestInteractionTriggersOriginThenDestination(t *testing.T) {
	s := &fakeSurface{}
	err := deliver(t, s, 20*time.Millisecond, "e2e4")
	require.NoError(t, err)

	assert.Equal(t, []Handle{"sq-e2", "sq-e4"}, s.triggered)
	assert.GreaterOrEqual(t, s.times[1].Sub(s.times[0]), 20*time.Millisecond)
}

func TestInteractionPromotion(t *testing.T) {
	s := &fakeSurface{}
	require.NoError(t, deliver(t, s, time.Millisecond, "e7e8q"))
	assert.Equal(t, []Handle{"sq-e7", "sq-e8", "sq-promote-q"}, s.triggered)
}

func TestInteractionUnresolvedEndpoint(t *testing.T) {
	s := &fakeSurface{missing: map[string]bool{"e4": true}}
	err := deliver(t, s, time.Millisecond, "e2e4")

	assert.ErrorIs(t, err, core.ErrEndpointUnresolved)
	assert.Empty(t, s.triggered)
}

func TestInteractionTriggerFailure(t *testing.T) {
	s := &fakeSurface{failOn: "sq-e4"}
	err := deliver(t, s, time.Millisecond, "e2e4")

	assert.ErrorIs(t, err, core.ErrTransportFailure)
	assert.Equal(t, []Handle{"sq-e2"}, s.triggered)
}

func TestInteractionMalformedMove(t *testing.T) {
	var got error
	i := NewInteraction(&fakeSurface{}, clock.NewVirtual(time.Now()), func(fn func()) { fn() }, 0, zap.NewNop())
	i.Deliver("e2", alwaysLive, func(err error) { got = err })
	assert.ErrorIs(t, got, core.ErrTransportFailure)
}

func TestInteractionStopsAfterAbandonBetweenClicks(t *testing.T) {
	loop := make(chanPoster, 16)
	s := &fakeSurface{}
	i := NewInteraction(s, clock.OnLoop(loop), loop.Post, 20*time.Millisecond, zap.NewNop())

	live, completed := true, false
	i.Deliver("e2e4", func() bool { return live }, func(error) { completed = true })

	drain(loop, 2*time.Second, func() bool { return len(s.handles()) > 0 })
	require.Equal(t, []Handle{"sq-e2"}, s.handles())

	// The entry is discarded while the destination click is pending
	live = false
	drain(loop, 200*time.Millisecond, func() bool { return false })

	assert.Equal(t, []Handle{"sq-e2"}, s.handles())
	assert.False(t, completed)
}

func TestInteractionAbandonedBeforeOrigin(t *testing.T) {
	loop := make(chanPoster, 16)
	s := &fakeSurface{}
	i := NewInteraction(s, clock.OnLoop(loop), loop.Post, time.Millisecond, zap.NewNop())

	completed := false
	i.Deliver("e2e4", func() bool { return false }, func(error) { completed = true })
	drain(loop, 100*time.Millisecond, func() bool { return false })

	assert.Empty(t, s.handles())
	assert.False(t, completed)
}
