package core

import (
	"fmt"
	"strings"
)

type Color byte

const (
	ColorNone Color = iota
	ColorWhite
	ColorBlack
)

func (c Color) String() string {
	switch c {
	case ColorWhite:
		return "w"
	case ColorBlack:
		return "b"
	default:
		return "-"
	}
}

func OppositeColor(c Color) Color {
	if c == ColorWhite {
		return ColorBlack
	}
	return ColorWhite
}

// Phase is the game-phase classification used to pick search depth
type Phase int

const (
	PhaseOpening Phase = iota
	PhaseMiddlegame
	PhaseEndgame
)

func (p Phase) String() string {
	switch p {
	case PhaseOpening:
		return "opening"
	case PhaseMiddlegame:
		return "middlegame"
	case PhaseEndgame:
		return "endgame"
	default:
		return "unknown"
	}
}

// Position is an immutable snapshot of the observed board
type Position struct {
	FEN        string
	SideToMove Color
	Ply        int
}

// Key returns the canonical FEN used for comparison and dedup
func (p Position) Key() string {
	return strings.Join(strings.Fields(p.FEN), " ")
}

func (p Position) IsZero() bool {
	return p.FEN == ""
}

// Equal compares positions by canonical board state only
func (p Position) Equal(other Position) bool {
	return p.Key() == other.Key()
}

func (p Position) String() string {
	return fmt.Sprintf("%s (ply %d)", p.Key(), p.Ply)
}

// MoveCandidate is one ranked line from a search, rank 0 is the primary
type MoveCandidate struct {
	Move  string
	Rank  int
	Score int
}

// Move is a legal move as enumerated by the rules oracle
type Move struct {
	From      string
	To        string
	Promotion string
}

// UCI returns the coordinate notation, e.g. e7e8q
func (m Move) UCI() string {
	return m.From + m.To + m.Promotion
}
