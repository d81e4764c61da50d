package processor

import (
	"context"
	"testing"
	"time"

	"chessbot/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoopRunsPostedWorkInOrder(t *testing.T) {
	l := NewLoop(8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}

	var snapshot []int
	require.NoError(t, l.Call(ctx, func() { snapshot = append(snapshot, got...) }))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, snapshot)
}

func TestLoopRecoversPanics(t *testing.T) {
	l := NewLoop(8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.Post(func() { panic("boom") })

	ran := false
	require.NoError(t, l.Call(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopStops(t *testing.T) {
	l := NewLoop(1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	// Posting after stop does not block
	l.Post(func() {})
	l.Post(func() {})
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrLoopStopped)
}

func TestLoopDrivesTimers(t *testing.T) {
	l := NewLoop(8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	fired := make(chan struct{})
	sched := clock.OnLoop(l)
	sched.AfterFunc(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer callback not posted to loop")
	}
}

func TestRemoteMarshalsOntoLoop(t *testing.T) {
	h := newHarness(t, deliveryConfig())
	l := NewLoop(8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	r := NewRemote(l, h.proc)

	_, err := r.Search(ctx)
	assert.ErrorIs(t, err, ErrNotMyTurn)

	l.Post(func() { h.frame(fenStart) })

	gen, err := r.Search(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	st, err := r.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "w", st.MyColor)
	assert.NotEmpty(t, st.GameID)

	require.NoError(t, r.Reset(ctx))
	st, err = r.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.GameID)
}
