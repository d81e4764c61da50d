package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"chessbot/internal/clock"
	"chessbot/internal/config"
	"chessbot/internal/core"

	"go.uber.org/zap"
)

type State int

const (
	StateIdle State = iota
	StateSearching
	StateRestarting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type handshake int

const (
	awaitUCIOK handshake = iota
	awaitReadyOK
	handshakeDone
)

// maxInitAttempts covers the first attempt plus one retry
const maxInitAttempts = 2

// Result is the outcome of a completed search for the current generation
type Result struct {
	Generation   uint64
	Position     core.Position
	Primary      string
	Alternatives []core.MoveCandidate
}

type flight struct {
	generation uint64
	position   core.Position
}

type request struct {
	generation uint64
	position   core.Position
	depth      int
}

// Session owns one engine process at a time. All methods must be called
// from the control loop; process output reaches the session through post.
type Session struct {
	cfg    config.EngineConfig
	launch Launcher
	sched  clock.Scheduler
	post   func(func())
	log    *zap.Logger

	OnResult func(Result)
	OnReady  func()
	OnFatal  func(error)

	proc         Process
	epoch        uint64
	state        State
	handshake    handshake
	attempts     int
	initTimer    clock.Timer
	watchdog     clock.Timer
	lastActivity time.Time
	generation   uint64
	inflight     []flight
	ranked       map[int]core.MoveCandidate
	pending      *request
	closed       bool
}

func NewSession(cfg config.EngineConfig, launch Launcher, sched clock.Scheduler, post func(func()), log *zap.Logger) *Session {
	return &Session{
		cfg:    cfg,
		launch: launch,
		sched:  sched,
		post:   post,
		log:    log,
		state:  StateRestarting,
		ranked: make(map[int]core.MoveCandidate),
	}
}

// Start launches the engine and the watchdog
func (s *Session) Start() {
	s.attempts = 0
	s.state = StateRestarting
	s.start()
	s.scheduleWatchdog()
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Generation() uint64 {
	return s.generation
}

// RequestSearch cancels any in-flight search and starts a new one on pos.
// It returns the generation the result will carry.
func (s *Session) RequestSearch(pos core.Position, depth int) uint64 {
	s.generation++
	gen := s.generation

	switch s.state {
	case StateFailed:
		s.log.Warn("search requested on failed engine", zap.Uint64("generation", gen))
		return gen
	case StateRestarting:
		// Replayed once the handshake completes
		s.pending = &request{generation: gen, position: pos, depth: depth}
		return gen
	case StateSearching:
		s.send("stop")
	}

	s.begin(request{generation: gen, position: pos, depth: depth})
	return gen
}

// Cancel abandons the in-flight search; its output is discarded when it arrives
func (s *Session) Cancel() {
	s.pending = nil
	if s.state != StateSearching {
		return
	}
	s.send("stop")
	s.generation++
	s.state = StateIdle
}

// NewGame clears engine state between games
func (s *Session) NewGame() {
	s.Cancel()
	if s.state == StateIdle {
		s.send("ucinewgame")
	}
}

// Restart tears the process down and replays the handshake. Returns false
// when a reinitialization is already underway.
func (s *Session) Restart(reason error) bool {
	if s.closed || s.state == StateRestarting {
		return false
	}

	s.log.Warn("restarting engine", zap.Error(reason), zap.Stringer("from", s.state))
	s.teardown()
	s.pending = nil
	s.attempts = 0
	s.state = StateRestarting
	s.start()
	return true
}

// Close stops timers and shuts the process down
func (s *Session) Close() error {
	s.closed = true
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	if s.initTimer != nil {
		s.initTimer.Stop()
	}
	s.epoch++
	if s.proc == nil {
		return nil
	}
	proc := s.proc
	s.proc = nil
	return proc.Close()
}

func (s *Session) begin(req request) {
	s.ranked = make(map[int]core.MoveCandidate)
	s.inflight = append(s.inflight, flight{generation: req.generation, position: req.position})
	s.state = StateSearching
	s.lastActivity = s.sched.Now()

	s.send("position fen " + req.position.Key())
	s.send(fmt.Sprintf("go depth %d", req.depth))

	s.log.Debug("search started",
		zap.Uint64("generation", req.generation),
		zap.Int("depth", req.depth),
		zap.Int("ply", req.position.Ply),
	)
}

func (s *Session) start() {
	s.attempts++
	s.epoch++
	epoch := s.epoch
	s.handshake = awaitUCIOK
	s.inflight = nil

	proc, err := s.launch(
		func(line string) { s.post(func() { s.handleLine(epoch, line) }) },
		func(err error) { s.post(func() { s.handleExit(epoch, err) }) },
	)
	if err != nil {
		s.initFailed(epoch, err)
		return
	}
	s.proc = proc

	s.initTimer = s.sched.AfterFunc(s.cfg.InitTimeout, func() {
		if epoch == s.epoch && s.state == StateRestarting {
			s.initFailed(epoch, errors.New("timeout waiting for handshake"))
		}
	})
	s.lastActivity = s.sched.Now()
	s.send("uci")
}

func (s *Session) initFailed(epoch uint64, cause error) {
	if epoch != s.epoch || s.closed {
		return
	}
	s.teardown()

	if s.attempts < maxInitAttempts {
		s.log.Warn("engine init failed, retrying",
			zap.Error(cause),
			zap.Duration("delay", s.cfg.InitRetryDelay),
		)
		retryEpoch := s.epoch
		s.sched.AfterFunc(s.cfg.InitRetryDelay, func() {
			if retryEpoch == s.epoch && s.state == StateRestarting && !s.closed {
				s.start()
			}
		})
		return
	}

	s.state = StateFailed
	s.pending = nil
	err := fmt.Errorf("%w: %v", core.ErrEngineInit, cause)
	s.log.Error("engine init failed", zap.Error(err))
	if s.OnFatal != nil {
		s.OnFatal(err)
	}
}

// teardown invalidates all output of the current process and closes it
// without blocking the loop
func (s *Session) teardown() {
	s.epoch++
	if s.initTimer != nil {
		s.initTimer.Stop()
		s.initTimer = nil
	}
	s.inflight = nil
	s.ranked = make(map[int]core.MoveCandidate)
	if s.proc != nil {
		proc := s.proc
		s.proc = nil
		go proc.Close()
	}
}

func (s *Session) send(cmd string) {
	if s.proc == nil {
		return
	}
	if err := s.proc.Send(cmd); err != nil {
		s.log.Warn("engine write failed", zap.String("cmd", cmd), zap.Error(err))
	}
}

func (s *Session) handleLine(epoch uint64, line string) {
	if epoch != s.epoch || s.closed {
		return
	}
	s.lastActivity = s.sched.Now()

	switch s.handshake {
	case awaitUCIOK:
		if line == "uciok" {
			s.handshake = awaitReadyOK
			s.applyOptions()
			s.send("isready")
		}
		return
	case awaitReadyOK:
		if line == "readyok" {
			s.ready()
		}
		return
	}

	if info, ok := parseInfo(line); ok {
		s.handleInfo(info)
		return
	}
	if move, ok := parseBestMove(line); ok {
		s.handleBestMove(move)
	}
}

func (s *Session) applyOptions() {
	s.send(fmt.Sprintf("setoption name MultiPV value %d", s.cfg.MultiPV))
	s.send(fmt.Sprintf("setoption name Contempt value %d", s.cfg.Contempt))
	s.send(fmt.Sprintf("setoption name Move Overhead value %d", s.cfg.MoveOverhead))
	s.send("ucinewgame")
}

func (s *Session) ready() {
	s.handshake = handshakeDone
	s.attempts = 0
	if s.initTimer != nil {
		s.initTimer.Stop()
		s.initTimer = nil
	}
	s.state = StateIdle
	s.log.Info("engine ready", zap.Uint64("epoch", s.epoch))

	if req := s.pending; req != nil {
		s.pending = nil
		if req.generation == s.generation {
			s.begin(*req)
		}
	}
	if s.OnReady != nil {
		s.OnReady()
	}
}

func (s *Session) handleInfo(info infoLine) {
	if len(s.inflight) == 0 || s.inflight[0].generation != s.generation || s.state != StateSearching {
		return
	}
	s.ranked[info.multiPV] = core.MoveCandidate{
		Move:  info.move,
		Rank:  info.multiPV - 1,
		Score: info.score,
	}
}

func (s *Session) handleBestMove(move string) {
	if len(s.inflight) == 0 {
		return
	}
	f := s.inflight[0]
	s.inflight = s.inflight[1:]

	if f.generation != s.generation || s.state != StateSearching {
		s.log.Debug("discarding stale search output",
			zap.Uint64("generation", f.generation),
			zap.Uint64("current", s.generation),
		)
		return
	}

	alternatives := make([]core.MoveCandidate, 0, len(s.ranked))
	for _, c := range s.ranked {
		alternatives = append(alternatives, c)
	}
	sort.Slice(alternatives, func(i, j int) bool {
		return alternatives[i].Rank < alternatives[j].Rank
	})
	s.ranked = make(map[int]core.MoveCandidate)
	s.state = StateIdle

	s.log.Debug("search finished",
		zap.Uint64("generation", f.generation),
		zap.String("move", move),
		zap.Int("alternatives", len(alternatives)),
	)
	if s.OnResult != nil {
		s.OnResult(Result{
			Generation:   f.generation,
			Position:     f.position,
			Primary:      move,
			Alternatives: alternatives,
		})
	}
}

func (s *Session) handleExit(epoch uint64, err error) {
	if epoch != s.epoch || s.closed {
		return
	}
	if err == nil {
		err = errors.New("engine closed unexpectedly")
	}
	if s.state == StateRestarting {
		s.initFailed(epoch, err)
		return
	}
	s.Restart(fmt.Errorf("engine exited: %w", err))
}

func (s *Session) scheduleWatchdog() {
	s.watchdog = s.sched.AfterFunc(s.cfg.WatchdogInterval, func() {
		if s.closed {
			return
		}
		s.checkLiveness()
		s.scheduleWatchdog()
	})
}

func (s *Session) checkLiveness() {
	if s.state != StateSearching {
		return
	}
	idle := s.sched.Now().Sub(s.lastActivity)
	if idle > s.cfg.StallTimeout {
		s.Restart(fmt.Errorf("%w: no output for %s", core.ErrEngineStall, idle))
	}
}
