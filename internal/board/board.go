package board

import (
	"fmt"
	"strings"

	"chessbot/internal/core"
)

const (
	StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
)

type Board struct {
	squares   [8][8]byte
	turn      core.Color
	castling  string
	enPassant string
	halfmove  int
	fullmove  int
}

func ParseFEN(fen string) (*Board, error) {
	parts := strings.Fields(fen)
	if len(parts) != 6 {
		return nil, fmt.Errorf("%w: expected 6 parts, got %d", core.ErrInvalidFEN, len(parts))
	}

	b := &Board{}

	ranks := strings.Split(parts[0], "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("%w: expected 8 ranks", core.ErrInvalidFEN)
	}

	for r := 0; r < 8; r++ {
		file := 0
		for _, ch := range ranks[r] {
			if ch >= '1' && ch <= '8' {
				file += int(ch - '0')
				continue
			}
			if !strings.ContainsRune("pnbrqkPNBRQK", ch) {
				return nil, fmt.Errorf("%w: unknown piece %q in rank %d", core.ErrInvalidFEN, ch, r+1)
			}
			if file >= 8 {
				return nil, fmt.Errorf("%w: too many pieces in rank %d", core.ErrInvalidFEN, r+1)
			}
			b.squares[r][file] = byte(ch)
			file++
		}
		if file != 8 {
			return nil, fmt.Errorf("%w: rank %d has %d files", core.ErrInvalidFEN, r+1, file)
		}
	}

	switch parts[1] {
	case "w":
		b.turn = core.ColorWhite
	case "b":
		b.turn = core.ColorBlack
	default:
		return nil, fmt.Errorf("%w: turn must be 'w' or 'b'", core.ErrInvalidFEN)
	}
	b.castling = parts[2]
	b.enPassant = parts[3]

	if _, err := fmt.Sscanf(parts[4], "%d", &b.halfmove); err != nil {
		return nil, fmt.Errorf("%w: halfmove counter", core.ErrInvalidFEN)
	}
	if _, err := fmt.Sscanf(parts[5], "%d", &b.fullmove); err != nil || b.fullmove < 1 {
		return nil, fmt.Errorf("%w: fullmove counter", core.ErrInvalidFEN)
	}

	return b, nil
}

// ToASCII creates an ASCII representation of the board
func (b *Board) ToASCII() string {
	var sb strings.Builder
	sb.WriteString("  a b c d e f g h\n")

	for r := 0; r < 8; r++ {
		sb.WriteString(fmt.Sprintf("%d ", 8-r))
		for f := 0; f < 8; f++ {
			square := fmt.Sprintf("%c%c", 'a'+f, '8'-r)
			piece := b.GetPieceAt(square)

			if piece == 0 {
				sb.WriteString(". ")
			} else {
				sb.WriteString(fmt.Sprintf("%c ", piece))
			}
		}
		sb.WriteString(fmt.Sprintf(" %d\n", 8-r))
	}
	sb.WriteString("  a b c d e f g h")

	return sb.String()
}

func (b *Board) Turn() core.Color {
	return b.turn
}

// Ply derives the half-move index from the fullmove counter and side to move
func (b *Board) Ply() int {
	ply := (b.fullmove - 1) * 2
	if b.turn == core.ColorBlack {
		ply++
	}
	return ply
}

func (b *Board) GetPieceAt(square string) byte {
	if len(square) != 2 {
		return 0
	}
	if square[0] < 'a' || square[0] > 'h' || square[1] < '1' || square[1] > '8' {
		return 0
	}
	file := square[0] - 'a'
	rank := '8' - square[1]
	return b.squares[rank][file]
}

// PositionFromFEN builds a core.Position, deriving the ply when ply < 0
func PositionFromFEN(fen string, ply int) (core.Position, *Board, error) {
	b, err := ParseFEN(fen)
	if err != nil {
		return core.Position{}, nil, err
	}
	if ply < 0 {
		ply = b.Ply()
	}
	pos := core.Position{
		FEN:        strings.Join(strings.Fields(fen), " "),
		SideToMove: b.Turn(),
		Ply:        ply,
	}
	return pos, b, nil
}
