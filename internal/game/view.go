package game

import (
	nchess "github.com/corentings/chess/v2"
)

// GameView is an immutable snapshot of everything a front end needs to
// draw one frame: position, status line, selection, highlights.
type GameView struct {
	FEN         string
	Turn        nchess.Color
	PlayerColor nchess.Color
	TwoPlayer   bool
	Level       string
	Status      string
	Thinking    bool
	GameOver    bool
	InCheck     bool
	History     []string
	Opening     string
	GameName    string

	MaterialWhite int
	MaterialBlack int

	Selected        bool
	SelectedSquare  nchess.Square
	SelectedTargets []nchess.Square

	HasLastMove  bool
	LastMoveFrom nchess.Square
	LastMoveTo   nchess.Square

	// EngineNote carries the last engine failure, empty while healthy.
	EngineNote string
}

// MoveSummary reports one accepted move.
type MoveSummary struct {
	SAN      string
	UCI      string
	Status   string
	Finished bool
	Thinking bool
}

// ClickResult reports what a board click did.
type ClickResult struct {
	Outcome ClickOutcome
	Square  nchess.Square
	Targets []nchess.Square
	Move    *MoveSummary
}

// UndoSummary reports a completed undo.
type UndoSummary struct {
	Removed int
	Status  string
}

// HintResult is a single-shot move suggestion.
type HintResult struct {
	Move      string
	EvalCP    int
	FromCloud bool
}

// Notification is a one-shot game event for the front end. Terminal
// notifications fire exactly once per game.
type Notification struct {
	Terminal bool
	Result   string
	Method   string
	Text     string
}
