package transport

import (
	"errors"
	"testing"

	"chessbot/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPrimary struct {
	err  error
	sent []OutboundMove
}

func (s *stubPrimary) Send(m OutboundMove) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

type stubSecondary struct {
	moves []string
}

func (s *stubSecondary) Deliver(move string, _ func() bool, done func(error)) {
	s.moves = append(s.moves, move)
	done(nil)
}

func TestRegistrySendWithoutPrimary(t *testing.T) {
	r := NewRegistry()
	err := r.Send(OutboundMove{Move: "e2e4"})
	assert.ErrorIs(t, err, core.ErrNotConnected)
}

func TestRegistrySendFallsThroughPrimaries(t *testing.T) {
	down := &stubPrimary{err: core.ErrNotConnected}
	up := &stubPrimary{}

	r := NewRegistry()
	r.RegisterPrimary("ws", down)
	r.RegisterPrimary("console", up)
	assert.Equal(t, []string{"ws", "console"}, r.Primaries())

	require.NoError(t, r.Send(OutboundMove{Move: "e2e4"}))
	require.Len(t, up.sent, 1)
	assert.Equal(t, "e2e4", up.sent[0].Move)
}

func TestRegistrySendReportsLastError(t *testing.T) {
	r := NewRegistry()
	r.RegisterPrimary("ws", &stubPrimary{err: errors.New("buffer full")})

	err := r.Send(OutboundMove{Move: "e2e4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws: buffer full")
}

func TestRegistryDeliver(t *testing.T) {
	r := NewRegistry()

	var got error
	r.Deliver("e2e4", func() bool { return true }, func(err error) { got = err })
	assert.ErrorIs(t, got, core.ErrEndpointUnresolved)

	s := &stubSecondary{}
	r.RegisterSecondary(s)
	got = errors.New("unset")
	r.Deliver("e2e4", func() bool { return true }, func(err error) { got = err })
	assert.NoError(t, got)
	assert.Equal(t, []string{"e2e4"}, s.moves)
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()

	var a, b []string
	r.Subscribe(func(env core.InboundEnvelope) { a = append(a, env.Data.FEN) })
	r.Subscribe(func(env core.InboundEnvelope) { b = append(b, env.Type) })

	ply := 3
	r.Dispatch(core.InboundEnvelope{Type: "fen", Data: core.InboundState{FEN: "x", Ply: &ply}})
	assert.Equal(t, []string{"x"}, a)
	assert.Equal(t, []string{"fen"}, b)
}
