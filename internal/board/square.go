package board

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// ParseSquare converts coordinate text like "e2" into a square.
func ParseSquare(s string) (nchess.Square, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	if len(t) != 2 || t[0] < 'a' || t[0] > 'h' || t[1] < '1' || t[1] > '8' {
		return 0, fmt.Errorf("%w: %q", ErrBadSquare, s)
	}
	file := nchess.FileA + nchess.File(t[0]-'a')
	rank := nchess.Rank1 + nchess.Rank(t[1]-'1')
	return nchess.NewSquare(file, rank), nil
}

// ColorName returns "White" or "Black".
func ColorName(c nchess.Color) string {
	if c == nchess.White {
		return "White"
	}
	return "Black"
}

// ColorCode returns the single-letter persistence code for a color.
func ColorCode(c nchess.Color) string {
	if c == nchess.White {
		return "w"
	}
	return "b"
}

// ParseColorCode reads a persistence color code ("w" or "b").
func ParseColorCode(code string) (nchess.Color, error) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "w", "white":
		return nchess.White, nil
	case "b", "black":
		return nchess.Black, nil
	default:
		return nchess.White, fmt.Errorf("invalid color code %q", code)
	}
}

// Opponent returns the other color.
func Opponent(c nchess.Color) nchess.Color {
	if c == nchess.White {
		return nchess.Black
	}
	return nchess.White
}

// PromoCode returns the square-pair notation suffix for a promotion piece.
func PromoCode(pt nchess.PieceType) string {
	switch pt {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	default:
		return ""
	}
}
