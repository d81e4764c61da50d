// Package rules adapts a chess move generator to the rules oracle capability
// used by the validator.
package rules

import (
	"fmt"
	"strings"

	"chessbot/internal/core"

	"github.com/notnil/chess"
)

// Oracle answers legality questions for a loaded position
type Oracle interface {
	Load(fen string) error
	// TryMove reports whether candidate is legal on the loaded position and
	// returns its canonical coordinate form.
	TryMove(candidate string, lenient bool) (string, bool)
	LegalMoves() []core.Move
}

// ChessOracle implements Oracle on github.com/notnil/chess
type ChessOracle struct {
	pos   *chess.Position
	legal map[string]*chess.Move
	order []core.Move
}

func NewChessOracle() *ChessOracle {
	return &ChessOracle{}
}

func (o *ChessOracle) Load(fen string) error {
	opt, err := chess.FEN(fen)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidFEN, err)
	}
	g := chess.NewGame(opt)
	o.pos = g.Position()

	valid := o.pos.ValidMoves()
	o.legal = make(map[string]*chess.Move, len(valid))
	o.order = make([]core.Move, 0, len(valid))
	for _, m := range valid {
		uci := chess.UCINotation{}.Encode(o.pos, m)
		o.legal[uci] = m
		o.order = append(o.order, core.Move{
			From:      m.S1().String(),
			To:        m.S2().String(),
			Promotion: m.Promo().String(),
		})
	}
	return nil
}

func (o *ChessOracle) TryMove(candidate string, lenient bool) (string, bool) {
	if o.pos == nil {
		return "", false
	}
	if _, ok := o.legal[candidate]; ok {
		return candidate, true
	}
	if !lenient {
		return "", false
	}

	norm := normalize(candidate)
	if _, ok := o.legal[norm]; ok {
		return norm, true
	}
	if alt, ok := castlingAliases[norm]; ok {
		if _, ok := o.legal[alt]; ok {
			return alt, true
		}
	}

	// SAN is case sensitive, decode the trimmed original
	if m, err := (chess.AlgebraicNotation{}).Decode(o.pos, strings.TrimSpace(candidate)); err == nil {
		uci := chess.UCINotation{}.Encode(o.pos, m)
		if _, ok := o.legal[uci]; ok {
			return uci, true
		}
	}
	return "", false
}

// Apply plays move on the loaded position and returns the resulting FEN. The
// oracle is reloaded with the new position.
func (o *ChessOracle) Apply(move string) (string, error) {
	uci, ok := o.TryMove(move, true)
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrValidationFailure, move)
	}
	next := o.pos.Update(o.legal[uci]).String()
	if err := o.Load(next); err != nil {
		return "", err
	}
	return next, nil
}

func (o *ChessOracle) LegalMoves() []core.Move {
	out := make([]core.Move, len(o.order))
	copy(out, o.order)
	return out
}

// king-takes-rook castling encodings used by some engines and sites
var castlingAliases = map[string]string{
	"e1h1": "e1g1",
	"e1a1": "e1c1",
	"e8h8": "e8g8",
	"e8a8": "e8c8",
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', 'x', ' ', '=':
			return -1
		}
		return r
	}, s)
}
