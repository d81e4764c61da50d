// Package validator turns engine output into a move that is legal on the
// position it was computed for.
package validator

import (
	"fmt"
	"sort"
	"time"

	"chessbot/internal/config"
	"chessbot/internal/core"
	"chessbot/internal/rules"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

// Source records which step of the chain produced the move
type Source int

const (
	SourceNone Source = iota
	SourcePrimary
	SourceImprecise
	SourceAlternative
	SourceRandom
)

func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourcePrimary:
		return "primary"
	case SourceImprecise:
		return "imprecise"
	case SourceAlternative:
		return "alternative"
	case SourceRandom:
		return "random"
	default:
		return "unknown"
	}
}

type Validator struct {
	oracle      rules.Oracle
	imprecision float64
	rng         *rand.Rand
	log         *zap.Logger
}

// New creates a validator. A zero seed seeds from the wall clock.
func New(oracle rules.Oracle, cfg config.ValidatorConfig, log *zap.Logger) *Validator {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Validator{
		oracle:      oracle,
		imprecision: cfg.Imprecision,
		rng:         rand.New(rand.NewSource(seed)),
		log:         log,
	}
}

// Resolve picks a legal move for pos from the engine's primary move and its
// ranked alternatives, falling back to a random legal move. src reports
// which step chose the move. err wraps core.ErrNoLegalMoves when the
// position has no legal moves.
func (v *Validator) Resolve(pos core.Position, primary string, alternatives []core.MoveCandidate) (string, Source, error) {
	if err := v.oracle.Load(pos.Key()); err != nil {
		return "", SourceNone, err
	}

	ranked := make([]core.MoveCandidate, len(alternatives))
	copy(ranked, alternatives)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Rank < ranked[j].Rank
	})

	legalAlts := make([]string, 0, len(ranked))
	seen := make(map[string]bool, len(ranked))
	for _, c := range ranked {
		move, ok := v.oracle.TryMove(c.Move, true)
		if !ok {
			v.log.Debug("discarding illegal alternative",
				zap.String("move", c.Move),
				zap.Int("rank", c.Rank),
			)
			continue
		}
		if seen[move] {
			continue
		}
		seen[move] = true
		legalAlts = append(legalAlts, move)
	}

	if move, ok := v.oracle.TryMove(primary, true); ok {
		if v.imprecision > 0 && len(legalAlts) >= 2 && v.rng.Float64() < v.imprecision {
			v.log.Debug("substituting second-best move",
				zap.String("primary", move),
				zap.String("move", legalAlts[1]),
			)
			return legalAlts[1], SourceImprecise, nil
		}
		return move, SourcePrimary, nil
	}

	v.log.Warn("engine move rejected",
		zap.Error(fmt.Errorf("%w: %q on %s", core.ErrValidationFailure, primary, pos.Key())),
	)

	if len(legalAlts) > 0 {
		return legalAlts[0], SourceAlternative, nil
	}

	legal := v.oracle.LegalMoves()
	if len(legal) == 0 {
		return "", SourceNone, fmt.Errorf("%w: %s", core.ErrNoLegalMoves, pos.Key())
	}
	return legal[v.rng.Intn(len(legal))].UCI(), SourceRandom, nil
}
