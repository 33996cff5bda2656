package game

import (
	nchess "github.com/corentings/chess/v2"

	"chessdesk/internal/board"
)

// ClickOutcome says what a board click did to the selection gesture.
type ClickOutcome int

const (
	// ClickIgnored means the click changed nothing: game over, not the
	// human's turn, or no selectable piece on the square.
	ClickIgnored ClickOutcome = iota
	// ClickSelected means a piece was picked up.
	ClickSelected
	// ClickReselected means the selection jumped to another own piece.
	ClickReselected
	// ClickCleared means the selection was dropped without moving.
	ClickCleared
	// ClickMoved means the gesture completed and a move was played.
	ClickMoved
)

func (o ClickOutcome) String() string {
	switch o {
	case ClickSelected:
		return "selected"
	case ClickReselected:
		return "reselected"
	case ClickCleared:
		return "cleared"
	case ClickMoved:
		return "moved"
	default:
		return "ignored"
	}
}

// Selection is the two-click move entry state: empty, or one own piece
// with its legal destinations.
type Selection struct {
	Active  bool
	Square  nchess.Square
	Targets []nchess.Square
}

func (s Selection) hasTarget(sq nchess.Square) bool {
	for _, t := range s.Targets {
		if t == sq {
			return true
		}
	}
	return false
}

// selectable reports whether sq holds a piece the mover may pick up.
func selectable(pos board.Position, sq nchess.Square, mover nchess.Color) bool {
	piece := pos.PieceAt(sq)
	return piece != nchess.NoPiece && piece.Color() == mover
}

// selectionFor builds the Selected state for a square. A piece with no
// legal moves still selects; its empty target set just means the next
// click clears or re-selects.
func selectionFor(pos board.Position, sq nchess.Square) Selection {
	return Selection{Active: true, Square: sq, Targets: pos.LegalTargets(sq)}
}
