package archive

import (
	"strings"
	"testing"
	"time"
)

var testEnd = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestApplyResultFreshProfileWin(t *testing.T) {
	p, delta := ApplyResult(nil, "level4", ResultWhite, "w", testEnd)
	if p.Rating != 1206 {
		t.Fatalf("rating = %d, want 1206", p.Rating)
	}
	if delta != 6 {
		t.Fatalf("delta = %d, want 6", delta)
	}
	if p.GamesPlayed != 1 || p.Wins != 1 || p.Losses != 0 || p.Draws != 0 {
		t.Fatalf("tallies = %+v", p)
	}
	if p.Streak != 1 || p.StreakType != "win" {
		t.Fatalf("streak = %d %q", p.Streak, p.StreakType)
	}
	if p.LastLevel != "level4" || !p.LastPlayedAt.Equal(testEnd) {
		t.Fatalf("last played = %q %v", p.LastLevel, p.LastPlayedAt)
	}
}

func TestApplyResultFreshProfileLoss(t *testing.T) {
	p, delta := ApplyResult(nil, "level4", ResultBlack, "w", testEnd)
	if p.Rating != 1182 {
		t.Fatalf("rating = %d, want 1182", p.Rating)
	}
	if delta != -18 {
		t.Fatalf("delta = %d, want -18", delta)
	}
	if p.Losses != 1 || p.StreakType != "loss" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestApplyResultDrawAgainstStrongEngine(t *testing.T) {
	p, delta := ApplyResult(nil, "level8", ResultDraw, "w", testEnd)
	if p.Rating != 1212 {
		t.Fatalf("rating = %d, want 1212", p.Rating)
	}
	if delta != 12 {
		t.Fatalf("delta = %d, want 12", delta)
	}
	if p.Draws != 1 || p.StreakType != "draw" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestApplyResultStreaks(t *testing.T) {
	p, _ := ApplyResult(nil, "level1", ResultWhite, "w", testEnd)
	p, _ = ApplyResult(p, "level1", ResultWhite, "w", testEnd.Add(time.Hour))
	if p.Streak != 2 || p.StreakType != "win" {
		t.Fatalf("after two wins: streak = %d %q", p.Streak, p.StreakType)
	}

	p, _ = ApplyResult(p, "level1", ResultBlack, "w", testEnd.Add(2*time.Hour))
	if p.Streak != 1 || p.StreakType != "loss" {
		t.Fatalf("after loss: streak = %d %q", p.Streak, p.StreakType)
	}
	if p.GamesPlayed != 3 || p.Wins != 2 || p.Losses != 1 {
		t.Fatalf("tallies = %+v", p)
	}
}

func TestApplyResultPlayerAsBlack(t *testing.T) {
	p, delta := ApplyResult(nil, "level4", ResultBlack, "b", testEnd)
	if p.Wins != 1 {
		t.Fatalf("black win not counted: %+v", p)
	}
	if delta <= 0 {
		t.Fatalf("delta = %d, want positive", delta)
	}

	p2, delta2 := ApplyResult(nil, "level4", ResultWhite, "b", testEnd)
	if p2.Losses != 1 {
		t.Fatalf("black loss not counted: %+v", p2)
	}
	if delta2 >= 0 {
		t.Fatalf("delta = %d, want negative", delta2)
	}
}

func TestBuildPGNSinglePlayer(t *testing.T) {
	g := &Game{
		Level:       "level3",
		PlayerColor: "w",
		Result:      ResultBlack,
		Method:      "checkmate",
		MovesSAN:    []string{"f3", "e5", "g4", "Qh4#"},
		EndedAt:     testEnd,
	}
	pgn := BuildPGN(g)

	for _, want := range []string{
		`[White "Player"]`,
		`[Black "Engine (level3)"]`,
		`[Termination "checkmate"]`,
		`[Result "0-1"]`,
		`[Date "2025.03.01"]`,
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %s:\n%s", want, pgn)
		}
	}
	if !strings.HasSuffix(pgn, "1. f3 e5 2. g4 Qh4# 0-1") {
		t.Fatalf("unexpected movetext:\n%s", pgn)
	}
}

func TestBuildPGNTwoPlayerDraw(t *testing.T) {
	g := &Game{
		TwoPlayer: true,
		Result:    ResultDraw,
		Method:    "stalemate",
		MovesSAN:  []string{"e4", "e5"},
		EndedAt:   testEnd,
	}
	pgn := BuildPGN(g)

	if !strings.Contains(pgn, `[White "White"]`) || !strings.Contains(pgn, `[Black "Black"]`) {
		t.Fatalf("two-player side names wrong:\n%s", pgn)
	}
	if !strings.Contains(pgn, `[Result "1/2-1/2"]`) {
		t.Fatalf("draw result missing:\n%s", pgn)
	}
	if !strings.HasSuffix(pgn, "1. e4 e5 1/2-1/2") {
		t.Fatalf("unexpected movetext:\n%s", pgn)
	}
}

func TestBuildPGNNil(t *testing.T) {
	if got := BuildPGN(nil); got != "" {
		t.Fatalf("nil pgn = %q", got)
	}
}
