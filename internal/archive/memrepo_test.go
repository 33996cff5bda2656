package archive

import (
	"context"
	"errors"
	"testing"
	"time"
)

func sampleGame(session string, endedAt time.Time) *Game {
	return &Game{
		SessionID:   session,
		Name:        "brave-otter",
		Level:       "level4",
		PlayerColor: "w",
		Result:      ResultWhite,
		Method:      "checkmate",
		MovesSAN:    []string{"e4", "e5", "Qh5", "Nc6", "Bc4", "Nf6", "Qxf7#"},
		StartedAt:   endedAt.Add(-5 * time.Minute),
		EndedAt:     endedAt,
	}
}

func TestMemorySaveAndRecent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, session := range []string{"s1", "s2", "s3"} {
		id, err := repo.SaveGame(ctx, sampleGame(session, base.Add(time.Duration(i)*time.Hour)))
		if err != nil {
			t.Fatalf("save %s: %v", session, err)
		}
		if id != int64(i+1) {
			t.Fatalf("save %s: id = %d, want %d", session, id, i+1)
		}
	}

	games, err := repo.RecentGames(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("got %d games, want 2", len(games))
	}
	if games[0].SessionID != "s3" || games[1].SessionID != "s2" {
		t.Fatalf("wrong order: %s, %s", games[0].SessionID, games[1].SessionID)
	}
}

func TestMemoryDuplicateSession(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	if _, err := repo.SaveGame(ctx, sampleGame("dup", now)); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := repo.SaveGame(ctx, sampleGame("dup", now)); !errors.Is(err, ErrDuplicateGame) {
		t.Fatalf("second save err = %v, want ErrDuplicateGame", err)
	}
}

func TestMemoryGameByID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	id, err := repo.SaveGame(ctx, sampleGame("s1", time.Now()))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	g, err := repo.GameByID(ctx, id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if g == nil || g.SessionID != "s1" {
		t.Fatalf("lookup returned %+v", g)
	}
	if g.MoveCount != 7 {
		t.Fatalf("move count = %d, want 7", g.MoveCount)
	}

	missing, err := repo.GameByID(ctx, 999)
	if err != nil {
		t.Fatalf("missing lookup: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing lookup returned %+v", missing)
	}
}

func TestMemorySaveCopiesGame(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	g := sampleGame("s1", time.Now())
	id, err := repo.SaveGame(ctx, g)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	g.MovesSAN[0] = "d4"
	g.Result = ResultDraw

	stored, err := repo.GameByID(ctx, id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored.MovesSAN[0] != "e4" || stored.Result != ResultWhite {
		t.Fatalf("stored game aliases caller data: %+v", stored)
	}
}

func TestMemoryProfileRoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	p, err := repo.Profile(ctx)
	if err != nil {
		t.Fatalf("initial profile: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil profile before first save, got %+v", p)
	}

	saved := &Profile{Rating: 1206, GamesPlayed: 1, Wins: 1, Streak: 1, StreakType: "win", LastLevel: "level4"}
	if err := repo.SaveProfile(ctx, saved); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	got, err := repo.Profile(ctx)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if got.Rating != 1206 || got.Wins != 1 || got.StreakType != "win" {
		t.Fatalf("profile = %+v", got)
	}

	got.Rating = 9999
	again, err := repo.Profile(ctx)
	if err != nil {
		t.Fatalf("profile reread: %v", err)
	}
	if again.Rating != 1206 {
		t.Fatalf("profile aliases returned copy: rating %d", again.Rating)
	}
}

func TestNewGameFillsIdentity(t *testing.T) {
	g := NewGame()
	if g.SessionID == "" {
		t.Fatal("session id not set")
	}
	if g.Name == "" {
		t.Fatal("name not set")
	}
	other := NewGame()
	if other.SessionID == g.SessionID {
		t.Fatal("session ids collide")
	}
}
