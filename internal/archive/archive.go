// Package archive keeps a record of finished games and a local player
// profile with an Elo-style rating. Backed by Postgres when a DSN is
// configured, otherwise by an in-memory repository that lasts for the
// process lifetime.
package archive

import (
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
)

// Result tokens stored with each game.
const (
	ResultWhite = "white"
	ResultBlack = "black"
	ResultDraw  = "draw"
)

// Game is one finished game as stored in the archive.
type Game struct {
	ID          int64
	SessionID   string
	Name        string
	Level       string
	PlayerColor string
	TwoPlayer   bool
	Result      string
	Method      string
	MovesSAN    []string
	PGN         string
	StartedAt   time.Time
	EndedAt     time.Time
	MoveCount   int
}

// NewGame returns a Game with a fresh session id and a generated label.
// The caller fills in the outcome fields before saving.
func NewGame() *Game {
	return &Game{
		SessionID: uuid.NewString(),
		Name:      petname.Generate(2, "-"),
	}
}

// Profile is the local player's running record against the engine.
type Profile struct {
	Rating       int
	GamesPlayed  int
	Wins         int
	Losses       int
	Draws        int
	Streak       int
	StreakType   string
	LastLevel    string
	LastPlayedAt time.Time
	UpdatedAt    time.Time
	CreatedAt    time.Time
}
