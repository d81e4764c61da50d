package tracker

import (
	"chessbot/internal/board"
	"chessbot/internal/config"
	"chessbot/internal/core"

	"go.uber.org/zap"
)

// CalcRequest asks for a search on a position that just became ours to move
type CalcRequest struct {
	Position core.Position
	Phase    core.Phase
	Depth    int
}

// Tracker derives turn ownership from inbound position updates and
// edge-triggers calculation requests on the transition into our turn.
type Tracker struct {
	cfg     config.SearchConfig
	log     *zap.Logger
	current core.Position
	myColor core.Color
	mine    bool
	phase   core.Phase
}

func New(cfg config.SearchConfig, log *zap.Logger) *Tracker {
	return &Tracker{cfg: cfg, log: log}
}

// OnTransportUpdate ingests one inbound frame. A negative ply derives the
// half-move index from the FEN counters.
func (t *Tracker) OnTransportUpdate(rawFEN string, ply int) (CalcRequest, bool, error) {
	pos, _, err := board.PositionFromFEN(rawFEN, ply)
	if err != nil {
		return CalcRequest{}, false, err
	}

	if !t.current.IsZero() {
		if pos.Equal(t.current) {
			return CalcRequest{}, false, nil
		}
		if pos.Ply < t.current.Ply {
			t.log.Debug("ignoring out-of-order position",
				zap.Int("ply", pos.Ply),
				zap.Int("current_ply", t.current.Ply),
			)
			return CalcRequest{}, false, nil
		}
	}

	if t.myColor == core.ColorNone {
		t.myColor = pos.SideToMove
		t.log.Info("latched color from first frame", zap.Stringer("color", t.myColor))
	}

	wasMine := t.mine
	t.current = pos
	t.mine = pos.SideToMove == t.myColor
	t.phase = t.classify(pos.Ply)

	if wasMine || !t.mine {
		return CalcRequest{}, false, nil
	}

	req := CalcRequest{
		Position: pos,
		Phase:    t.phase,
		Depth:    t.cfg.Depth.DepthFor(t.phase),
	}
	t.log.Debug("turn edge",
		zap.Int("ply", pos.Ply),
		zap.Stringer("phase", req.Phase),
		zap.Int("depth", req.Depth),
	)
	return req, true, nil
}

func (t *Tracker) classify(ply int) core.Phase {
	switch {
	case ply < t.cfg.OpeningPlies:
		return core.PhaseOpening
	case ply < t.cfg.EndgamePly:
		return core.PhaseMiddlegame
	default:
		return core.PhaseEndgame
	}
}

// Request builds a calculation request for the current position without
// requiring a turn edge. Used for forced re-requests.
func (t *Tracker) Request() (CalcRequest, bool) {
	if t.current.IsZero() || !t.mine {
		return CalcRequest{}, false
	}
	return CalcRequest{
		Position: t.current,
		Phase:    t.phase,
		Depth:    t.cfg.Depth.DepthFor(t.phase),
	}, true
}

// Reset forgets the latched color and position for a new game
func (t *Tracker) Reset() {
	t.current = core.Position{}
	t.myColor = core.ColorNone
	t.mine = false
	t.phase = core.PhaseOpening
}

func (t *Tracker) Current() core.Position {
	return t.current
}

func (t *Tracker) MyColor() core.Color {
	return t.myColor
}

func (t *Tracker) IsMyTurn() bool {
	return t.mine
}

func (t *Tracker) Phase() core.Phase {
	return t.phase
}
