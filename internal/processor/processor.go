// Package processor holds the orchestrator context: it routes inbound frames
// through the tracker, search results through the validator and validated
// moves into the delivery queue. Every method runs on the control loop.
package processor

import (
	"errors"
	"fmt"
	"time"

	"chessbot/internal/core"
	"chessbot/internal/delivery"
	"chessbot/internal/engine"
	"chessbot/internal/storage"
	"chessbot/internal/tracker"
	"chessbot/internal/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrHalted          = errors.New("automated play halted")
	ErrNotMyTurn       = errors.New("not my turn")
	ErrDeliveryPending = errors.New("a move for this position is still being delivered")
)

// Engine is the search session as seen by the orchestrator
type Engine interface {
	RequestSearch(pos core.Position, depth int) uint64
	Cancel()
	NewGame()
	Restart(reason error) bool
	State() engine.State
	Generation() uint64
}

// Resolver picks a legal move from search output
type Resolver interface {
	Resolve(pos core.Position, primary string, alternatives []core.MoveCandidate) (string, validator.Source, error)
}

// Journal records games and finished deliveries
type Journal interface {
	RecordNewGame(record storage.GameRecord)
	RecordGameEnd(gameID, reason string, at time.Time)
	RecordDelivery(record storage.DeliveryRecord)
}

type Processor struct {
	tracker  *tracker.Tracker
	engine   Engine
	resolver Resolver
	queue    *delivery.Queue
	journal  Journal
	now      func() time.Time
	log      *zap.Logger

	gameID     string
	halted     bool
	haltReason string
	lastMove   string
}

// New wires the orchestrator. journal may be nil. The queue's observer and
// stuck hooks are taken over by the processor.
func New(t *tracker.Tracker, eng Engine, resolver Resolver, queue *delivery.Queue,
	journal Journal, now func() time.Time, log *zap.Logger) *Processor {
	p := &Processor{
		tracker:  t,
		engine:   eng,
		resolver: resolver,
		queue:    queue,
		journal:  journal,
		now:      now,
		log:      log,
	}
	queue.Observer = p.onDeliveryEvent
	queue.OnStuck = p.onStuck
	return p
}

// HandleEnvelope processes one inbound transport message
func (p *Processor) HandleEnvelope(env core.InboundEnvelope) {
	switch env.Type {
	case "gameStart":
		p.resetGame("gameStart")
		if env.Data.FEN != "" {
			p.handleFrame(env.Data.FEN, env.Data.PlyIndex())
		}
	case "gameEnd":
		p.resetGame("gameEnd")
	case "fen", "move":
		p.handleFrame(env.Data.FEN, env.Data.PlyIndex())
	default:
		p.log.Warn("ignoring envelope", zap.String("type", env.Type))
	}
}

func (p *Processor) handleFrame(fen string, ply int) {
	req, ok, err := p.tracker.OnTransportUpdate(fen, ply)
	if err != nil {
		p.log.Warn("rejecting inbound frame", zap.String("fen", fen), zap.Error(err))
		return
	}

	if p.gameID == "" && !p.tracker.Current().IsZero() {
		p.startGame()
	}
	if ok {
		p.requestCalc(req)
	}
}

func (p *Processor) startGame() {
	p.gameID = uuid.NewString()
	cur := p.tracker.Current()
	p.log.Info("game started",
		zap.String("game_id", p.gameID),
		zap.Stringer("my_color", p.tracker.MyColor()),
		zap.Int("ply", cur.Ply),
	)
	if p.journal != nil {
		p.journal.RecordNewGame(storage.GameRecord{
			GameID:       p.gameID,
			InitialFEN:   cur.Key(),
			MyColor:      p.tracker.MyColor().String(),
			StartTimeUTC: p.now().UTC(),
		})
	}
}

func (p *Processor) requestCalc(req tracker.CalcRequest) {
	if p.halted {
		p.log.Debug("play halted, skipping search", zap.String("reason", p.haltReason))
		return
	}

	p.queue.Purge()
	gen := p.engine.RequestSearch(req.Position, req.Depth)
	p.log.Info("search requested",
		zap.Uint64("generation", gen),
		zap.Int("ply", req.Position.Ply),
		zap.Stringer("phase", req.Phase),
		zap.Int("depth", req.Depth),
	)
}

// OnSearchResult receives completed searches from the engine session
func (p *Processor) OnSearchResult(r engine.Result) {
	if r.Generation != p.engine.Generation() {
		p.log.Debug("dropping superseded result", zap.Uint64("generation", r.Generation))
		return
	}
	if p.halted {
		return
	}
	if !r.Position.Equal(p.tracker.Current()) || !p.tracker.IsMyTurn() {
		p.log.Debug("dropping result for stale position", zap.Int("ply", r.Position.Ply))
		return
	}

	// One move per position: a result arriving while the previous move for
	// this position is in flight is dropped
	p.queue.Purge()
	if !p.queue.Idle() {
		p.log.Debug("dropping result, delivery pending", zap.Uint64("generation", r.Generation))
		return
	}

	move, src, err := p.resolver.Resolve(r.Position, r.Primary, r.Alternatives)
	if err != nil {
		if !errors.Is(err, core.ErrNoLegalMoves) {
			err = fmt.Errorf("move resolution failed: %w", err)
		}
		p.halt(err)
		return
	}

	p.lastMove = move
	entry := p.queue.Enqueue(move, r.Position)
	p.log.Info("move ready",
		zap.String("move", move),
		zap.Stringer("source", src),
		zap.String("engine_move", r.Primary),
		zap.String("entry", entry.ID),
	)
}

// OnEngineReady runs after every successful engine (re)initialisation
func (p *Processor) OnEngineReady() {
	p.reRequest("engine ready")
}

// OnEngineFatal halts play after the engine could not be initialised
func (p *Processor) OnEngineFatal(err error) {
	p.halt(err)
}

func (p *Processor) onDeliveryEvent(ev delivery.Event) {
	e := ev.Entry
	if !e.Status.Terminal() {
		return
	}

	if p.journal != nil && p.gameID != "" {
		rec := storage.DeliveryRecord{
			EntryID:     e.ID,
			GameID:      p.gameID,
			Ply:         e.Position.Ply,
			MoveUCI:     e.Move,
			FEN:         e.Position.Key(),
			Status:      e.Status.String(),
			Via:         e.Via,
			Retries:     e.Retries,
			CreatedUTC:  e.Created.UTC(),
			FinishedUTC: p.now().UTC(),
		}
		if ev.Err != nil {
			rec.Error = ev.Err.Error()
		}
		p.journal.RecordDelivery(rec)
	}

	if e.Status == delivery.StatusFailed {
		p.reRequest("delivery dropped")
	}
}

func (p *Processor) onStuck(consecutive int) {
	p.engine.Restart(fmt.Errorf("%d consecutive delivery failures", consecutive))
}

// reRequest starts a search for the current position when nothing else
// would: it is our turn, nothing is queued and no search is running
func (p *Processor) reRequest(reason string) {
	if p.halted || !p.queue.Idle() || p.engine.State() == engine.StateSearching {
		return
	}
	req, ok := p.tracker.Request()
	if !ok {
		return
	}
	p.log.Info("forcing search", zap.String("reason", reason))
	p.requestCalc(req)
}

// ForceSearch requests a fresh search for the current position
func (p *Processor) ForceSearch() (uint64, error) {
	if p.halted {
		return 0, fmt.Errorf("%w: %s", ErrHalted, p.haltReason)
	}
	req, ok := p.tracker.Request()
	if !ok {
		return 0, ErrNotMyTurn
	}
	p.queue.Purge()
	if !p.queue.Idle() {
		return 0, ErrDeliveryPending
	}
	p.requestCalc(req)
	return p.engine.Generation(), nil
}

// Reset abandons the current game and waits for a new first frame
func (p *Processor) Reset() {
	p.resetGame("reset")
}

func (p *Processor) resetGame(reason string) {
	if p.gameID != "" {
		p.log.Info("game finished", zap.String("game_id", p.gameID), zap.String("reason", reason))
		if p.journal != nil {
			p.journal.RecordGameEnd(p.gameID, reason, p.now().UTC())
		}
	}

	p.queue.Clear()
	p.tracker.Reset()
	p.gameID = ""
	p.halted = false
	p.haltReason = ""
	p.lastMove = ""

	if p.engine.State() == engine.StateFailed {
		p.engine.Restart(errors.New("new game"))
		return
	}
	p.engine.NewGame()
}

func (p *Processor) halt(err error) {
	p.halted = true
	p.haltReason = err.Error()
	p.engine.Cancel()
	p.log.Error("halting automated play", zap.String("game_id", p.gameID), zap.Error(err))
}

func (p *Processor) Halted() bool {
	return p.halted
}

func (p *Processor) GameID() string {
	return p.gameID
}

// Snapshot returns the orchestrator state for the control API
func (p *Processor) Snapshot() core.StateResponse {
	cur := p.tracker.Current()
	resp := core.StateResponse{
		GameID:      p.gameID,
		FEN:         cur.Key(),
		Ply:         cur.Ply,
		MyColor:     p.tracker.MyColor().String(),
		Turn:        cur.SideToMove.String(),
		MyTurn:      p.tracker.IsMyTurn(),
		Phase:       p.tracker.Phase().String(),
		Engine:      p.engine.State().String(),
		Generation:  p.engine.Generation(),
		QueueDepth:  p.queue.Len(),
		Halted:      p.halted,
		HaltReason:  p.haltReason,
		LastMove:    p.lastMove,
		Consecutive: p.queue.ConsecutiveFailures(),
	}
	if head, ok := p.queue.Head(); ok {
		resp.Head = fmt.Sprintf("%s (%s)", head.Move, head.Status)
	}
	return resp
}
