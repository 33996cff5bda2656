// Package state persists the single resumable game. A record that fails
// to decode reads as absent: a broken save must never block a fresh
// game from starting.
package state

import "context"

// Record is the saved-game wire format. Key names are part of the
// on-disk contract and must not change.
type Record struct {
	FEN         string   `json:"fen"`
	MoveHistory []string `json:"moveHistory"`
	Difficulty  int      `json:"difficulty"`
	PlayerColor string   `json:"playerColor"`
	IsTwoPlayer bool     `json:"isTwoPlayer"`
}

// Store keeps at most one saved game.
type Store interface {
	Save(ctx context.Context, rec Record) error
	// Load reports ok=false when no usable record exists; malformed
	// records read as absent rather than erroring.
	Load(ctx context.Context) (Record, bool, error)
	Clear(ctx context.Context) error
	Close() error
}
