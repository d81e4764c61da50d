package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"chessbot/internal/clock"
	"chessbot/internal/config"
	"chessbot/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeProcess struct {
	mu       sync.Mutex
	onLine   func(string)
	onExit   func(error)
	commands []string
	closed   bool
	silent   bool
}

func (p *fakeProcess) Send(cmd string) error {
	p.mu.Lock()
	p.commands = append(p.commands, cmd)
	silent := p.silent
	p.mu.Unlock()

	if silent {
		return nil
	}
	switch cmd {
	case "uci":
		p.onLine("uciok")
	case "isready":
		p.onLine("readyok")
	}
	return nil
}

func (p *fakeProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakeProcess) emit(lines ...string) {
	for _, l := range lines {
		p.onLine(l)
	}
}

func (p *fakeProcess) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

func (p *fakeProcess) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeEngine struct {
	procs     []*fakeProcess
	silent    map[int]bool
	launchErr error
}

func (f *fakeEngine) launch(onLine func(string), onExit func(error)) (Process, error) {
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	p := &fakeProcess{onLine: onLine, onExit: onExit, silent: f.silent[len(f.procs)]}
	f.procs = append(f.procs, p)
	return p, nil
}

func (f *fakeEngine) last() *fakeProcess {
	return f.procs[len(f.procs)-1]
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		Path:             "stockfish",
		MultiPV:          3,
		Contempt:         20,
		MoveOverhead:     30,
		WatchdogInterval: time.Second,
		StallTimeout:     3 * time.Second,
		InitTimeout:      5 * time.Second,
		InitRetryDelay:   2 * time.Second,
	}
}

type sessionHarness struct {
	engine  *fakeEngine
	clock   *clock.Virtual
	session *Session
	results []Result
	ready   int
	fatal   error
}

func newHarness(t *testing.T, fe *fakeEngine) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		engine: fe,
		clock:  clock.NewVirtual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	post := func(fn func()) { fn() }
	h.session = NewSession(testEngineConfig(), fe.launch, h.clock, post, zaptest.NewLogger(t))
	h.session.OnResult = func(r Result) { h.results = append(h.results, r) }
	h.session.OnReady = func() { h.ready++ }
	h.session.OnFatal = func(err error) { h.fatal = err }
	t.Cleanup(func() { _ = h.session.Close() })
	return h
}

func testPosition(ply int) core.Position {
	return core.Position{
		FEN:        "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		SideToMove: core.ColorWhite,
		Ply:        ply,
	}
}

func TestSessionHandshake(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	h.session.Start()

	assert.Equal(t, StateIdle, h.session.State())
	assert.Equal(t, 1, h.ready)

	assert.Equal(t, []string{
		"uci",
		"setoption name MultiPV value 3",
		"setoption name Contempt value 20",
		"setoption name Move Overhead value 30",
		"ucinewgame",
		"isready",
	}, h.engine.last().sent())
}

func TestSessionSearchResult(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	h.session.Start()

	pos := testPosition(0)
	gen := h.session.RequestSearch(pos, 12)
	assert.Equal(t, StateSearching, h.session.State())

	cmds := h.engine.last().sent()
	assert.Equal(t, "position fen "+pos.Key(), cmds[len(cmds)-2])
	assert.Equal(t, "go depth 12", cmds[len(cmds)-1])

	h.engine.last().emit(
		"info depth 12 multipv 2 score cp 20 pv d2d4 d7d5",
		"info depth 12 multipv 1 score cp 35 pv e2e4 e7e5",
		"info depth 12 multipv 3 score mate 4 pv g1f3",
		"bestmove e2e4 ponder e7e5",
	)

	require.Len(t, h.results, 1)
	r := h.results[0]
	assert.Equal(t, gen, r.Generation)
	assert.Equal(t, "e2e4", r.Primary)
	assert.True(t, pos.Equal(r.Position))
	require.Len(t, r.Alternatives, 3)
	assert.Equal(t, "e2e4", r.Alternatives[0].Move)
	assert.Equal(t, 0, r.Alternatives[0].Rank)
	assert.Equal(t, "d2d4", r.Alternatives[1].Move)
	assert.Equal(t, "g1f3", r.Alternatives[2].Move)
	assert.Equal(t, 2, r.Alternatives[2].Rank)
	assert.Equal(t, StateIdle, h.session.State())
}

func TestSessionStaleGenerationDiscarded(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	h.session.Start()

	first := h.session.RequestSearch(testPosition(0), 12)
	second := h.session.RequestSearch(testPosition(2), 12)
	require.Greater(t, second, first)
	assert.Contains(t, h.engine.last().sent(), "stop")

	// Output of the cancelled search arrives after the new request was issued
	h.engine.last().emit(
		"info depth 8 multipv 1 score cp 10 pv a2a3",
		"bestmove a2a3",
	)
	assert.Empty(t, h.results)
	assert.Equal(t, StateSearching, h.session.State())

	h.engine.last().emit(
		"info depth 12 multipv 1 score cp 40 pv e2e4",
		"bestmove e2e4",
	)
	require.Len(t, h.results, 1)
	assert.Equal(t, second, h.results[0].Generation)
	assert.Equal(t, 2, h.results[0].Position.Ply)
	require.Len(t, h.results[0].Alternatives, 1)
	assert.Equal(t, "e2e4", h.results[0].Alternatives[0].Move)
}

func TestSessionCancel(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	h.session.Start()

	h.session.RequestSearch(testPosition(0), 12)
	h.session.Cancel()
	assert.Equal(t, StateIdle, h.session.State())

	h.engine.last().emit("bestmove e2e4")
	assert.Empty(t, h.results)
}

func TestSessionWatchdogRestart(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	h.session.Start()

	h.session.RequestSearch(testPosition(0), 20)
	old := h.engine.last()

	// Output keeps the session alive
	h.clock.Advance(2 * time.Second)
	old.emit("info depth 5 multipv 1 score cp 10 pv e2e4")
	h.clock.Advance(2 * time.Second)
	require.Len(t, h.engine.procs, 1)

	// Silence past the stall timeout triggers a restart
	h.clock.Advance(4 * time.Second)
	require.Len(t, h.engine.procs, 2)
	assert.Equal(t, StateIdle, h.session.State())
	assert.Equal(t, 2, h.ready)
	assert.Eventually(t, old.isClosed, time.Second, 10*time.Millisecond)

	// Late output from the replaced process is ignored
	old.emit("bestmove e2e4")
	assert.Empty(t, h.results)

	// The fresh process serves new searches
	gen := h.session.RequestSearch(testPosition(0), 20)
	h.engine.last().emit("info depth 20 multipv 1 score cp 30 pv d2d4", "bestmove d2d4")
	require.Len(t, h.results, 1)
	assert.Equal(t, gen, h.results[0].Generation)
	assert.Equal(t, "d2d4", h.results[0].Primary)
}

func TestSessionWatchdogIgnoresIdle(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	h.session.Start()

	h.clock.Advance(30 * time.Second)
	assert.Len(t, h.engine.procs, 1)
	assert.Equal(t, StateIdle, h.session.State())
}

func TestSessionInitRetryThenFatal(t *testing.T) {
	h := newHarness(t, &fakeEngine{silent: map[int]bool{0: true, 1: true}})
	h.session.Start()
	assert.Equal(t, StateRestarting, h.session.State())

	h.clock.Advance(5 * time.Second)
	require.Len(t, h.engine.procs, 1)
	assert.NoError(t, h.fatal)

	h.clock.Advance(2 * time.Second)
	require.Len(t, h.engine.procs, 2)

	h.clock.Advance(5 * time.Second)
	require.Error(t, h.fatal)
	assert.True(t, errors.Is(h.fatal, core.ErrEngineInit))
	assert.Equal(t, StateFailed, h.session.State())
	assert.Equal(t, 0, h.ready)
}

func TestSessionInitRetrySucceeds(t *testing.T) {
	h := newHarness(t, &fakeEngine{silent: map[int]bool{0: true}})
	h.session.Start()

	h.clock.Advance(7 * time.Second)
	require.Len(t, h.engine.procs, 2)
	assert.Equal(t, StateIdle, h.session.State())
	assert.Equal(t, 1, h.ready)
	assert.NoError(t, h.fatal)
}

func TestSessionLaunchFailure(t *testing.T) {
	h := newHarness(t, &fakeEngine{launchErr: errors.New("exec: not found")})
	h.session.Start()
	assert.NoError(t, h.fatal)

	h.clock.Advance(2 * time.Second)
	require.Error(t, h.fatal)
	assert.ErrorIs(t, h.fatal, core.ErrEngineInit)
	assert.Equal(t, StateFailed, h.session.State())
}

func TestSessionPendingReplayedAfterHandshake(t *testing.T) {
	h := newHarness(t, &fakeEngine{silent: map[int]bool{0: true}})
	h.session.Start()

	pos := testPosition(4)
	gen := h.session.RequestSearch(pos, 16)
	assert.NotContains(t, h.engine.last().sent(), "go depth 16")

	h.engine.last().emit("uciok", "readyok")
	assert.Equal(t, StateSearching, h.session.State())
	assert.Contains(t, h.engine.last().sent(), "go depth 16")

	h.engine.last().emit("bestmove e2e4")
	require.Len(t, h.results, 1)
	assert.Equal(t, gen, h.results[0].Generation)
}

func TestSessionProcessExitRestarts(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	h.session.Start()
	h.session.RequestSearch(testPosition(0), 12)

	h.engine.last().onExit(errors.New("signal: killed"))
	require.Len(t, h.engine.procs, 2)
	assert.Equal(t, StateIdle, h.session.State())
	assert.Equal(t, 2, h.ready)
}

func TestSessionRestartGuard(t *testing.T) {
	h := newHarness(t, &fakeEngine{silent: map[int]bool{0: true}})
	h.session.Start()

	assert.False(t, h.session.Restart(core.ErrEngineStall))
	assert.Len(t, h.engine.procs, 1)
}
