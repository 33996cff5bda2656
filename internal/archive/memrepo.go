package archive

import (
	"context"
	"sync"
)

// MemoryRepository keeps the archive in process memory. Used when no
// database is configured; contents are lost on exit.
type MemoryRepository struct {
	mu      sync.Mutex
	nextID  int64
	games   []*Game
	profile *Profile
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1}
}

func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) SaveGame(_ context.Context, g *Game) (int64, error) {
	if g == nil {
		return 0, errNilGame
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.games {
		if existing.SessionID == g.SessionID {
			return 0, ErrDuplicateGame
		}
	}

	stored := cloneGame(g)
	stored.ID = r.nextID
	if stored.MoveCount == 0 {
		stored.MoveCount = len(stored.MovesSAN)
	}
	r.nextID++
	r.games = append(r.games, stored)
	return stored.ID, nil
}

func (r *MemoryRepository) RecentGames(_ context.Context, limit int) ([]*Game, error) {
	if limit <= 0 {
		limit = 10
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	games := make([]*Game, 0, limit)
	for i := len(r.games) - 1; i >= 0 && len(games) < limit; i-- {
		games = append(games, cloneGame(r.games[i]))
	}
	return games, nil
}

func (r *MemoryRepository) GameByID(_ context.Context, id int64) (*Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.games {
		if g.ID == id {
			return cloneGame(g), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Profile(_ context.Context) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.profile == nil {
		return nil, nil
	}
	p := *r.profile
	return &p, nil
}

func (r *MemoryRepository) SaveProfile(_ context.Context, p *Profile) error {
	if p == nil {
		return errNilProfile
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *p
	r.profile = &stored
	return nil
}

func cloneGame(g *Game) *Game {
	clone := *g
	clone.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &clone
}
