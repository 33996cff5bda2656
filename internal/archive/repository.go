package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// ErrDuplicateGame means a game with the same session id is already archived.
var ErrDuplicateGame = errors.New("game already archived")

var (
	errNilGame    = errors.New("nil game payload")
	errNilProfile = errors.New("nil profile payload")
)

type Repository interface {
	SaveGame(ctx context.Context, g *Game) (int64, error)
	RecentGames(ctx context.Context, limit int) ([]*Game, error)
	GameByID(ctx context.Context, id int64) (*Game, error)
	Profile(ctx context.Context) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error
	Close() error
}

// The profile table holds one row per player key; the desktop build only
// ever writes localPlayer.
const localPlayer = "local"

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	level TEXT NOT NULL DEFAULT '',
	player_color TEXT NOT NULL DEFAULT 'w',
	two_player BOOLEAN NOT NULL DEFAULT FALSE,
	result TEXT NOT NULL DEFAULT '',
	result_method TEXT NOT NULL DEFAULT '',
	moves_san JSONB NOT NULL DEFAULT '[]'::jsonb,
	pgn TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ NOT NULL,
	move_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_games_ended_at ON games(ended_at DESC);

CREATE TABLE IF NOT EXISTS profiles (
	player TEXT PRIMARY KEY,
	rating INTEGER NOT NULL,
	games_played INTEGER NOT NULL DEFAULT 0,
	wins INTEGER NOT NULL DEFAULT 0,
	losses INTEGER NOT NULL DEFAULT 0,
	draws INTEGER NOT NULL DEFAULT 0,
	streak INTEGER NOT NULL DEFAULT 0,
	streak_type TEXT NOT NULL DEFAULT '',
	last_level TEXT NOT NULL DEFAULT '',
	last_played_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) SaveGame(ctx context.Context, g *Game) (int64, error) {
	if g == nil {
		return 0, errNilGame
	}

	movesSAN, err := json.Marshal(g.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}
	moveCount := g.MoveCount
	if moveCount == 0 {
		moveCount = len(g.MovesSAN)
	}

	const query = `
		INSERT INTO games (
			session_id,
			name,
			level,
			player_color,
			two_player,
			result,
			result_method,
			moves_san,
			pgn,
			started_at,
			ended_at,
			move_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		g.SessionID,
		g.Name,
		g.Level,
		g.PlayerColor,
		g.TwoPlayer,
		g.Result,
		g.Method,
		movesSAN,
		g.PGN,
		g.StartedAt,
		g.EndedAt,
		moveCount,
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert game: %w", err)
	}
	return id.Int64, nil
}

const gameColumns = `
	id,
	session_id,
	name,
	level,
	player_color,
	two_player,
	result,
	result_method,
	moves_san,
	pgn,
	started_at,
	ended_at,
	move_count`

func scanGame(row interface{ Scan(...any) error }) (*Game, error) {
	var (
		g            Game
		movesSANJSON []byte
	)
	if err := row.Scan(
		&g.ID,
		&g.SessionID,
		&g.Name,
		&g.Level,
		&g.PlayerColor,
		&g.TwoPlayer,
		&g.Result,
		&g.Method,
		&movesSANJSON,
		&g.PGN,
		&g.StartedAt,
		&g.EndedAt,
		&g.MoveCount,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(movesSANJSON, &g.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &g, nil
}

func (r *PostgresRepository) RecentGames(ctx context.Context, limit int) ([]*Game, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT` + gameColumns + `
		FROM games
		ORDER BY ended_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()

	games := make([]*Game, 0, limit)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (r *PostgresRepository) GameByID(ctx context.Context, id int64) (*Game, error) {
	query := `SELECT` + gameColumns + `
		FROM games
		WHERE id = $1`

	g, err := scanGame(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select game: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) Profile(ctx context.Context) (*Profile, error) {
	const query = `
		SELECT
			rating,
			games_played,
			wins,
			losses,
			draws,
			streak,
			streak_type,
			last_level,
			last_played_at,
			updated_at,
			created_at
		FROM profiles
		WHERE player = $1
		LIMIT 1`

	var (
		p            Profile
		lastPlayedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, localPlayer).Scan(
		&p.Rating,
		&p.GamesPlayed,
		&p.Wins,
		&p.Losses,
		&p.Draws,
		&p.Streak,
		&p.StreakType,
		&p.LastLevel,
		&lastPlayedAt,
		&p.UpdatedAt,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	if lastPlayedAt.Valid {
		p.LastPlayedAt = lastPlayedAt.Time
	}
	return &p, nil
}

func (r *PostgresRepository) SaveProfile(ctx context.Context, p *Profile) error {
	if p == nil {
		return errNilProfile
	}
	const query = `
		INSERT INTO profiles (
			player,
			rating,
			games_played,
			wins,
			losses,
			draws,
			streak,
			streak_type,
			last_level,
			last_played_at,
			updated_at,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (player)
		DO UPDATE SET
			rating = EXCLUDED.rating,
			games_played = EXCLUDED.games_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			streak = EXCLUDED.streak,
			streak_type = EXCLUDED.streak_type,
			last_level = EXCLUDED.last_level,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = NOW()`

	_, err := r.db.ExecContext(
		ctx,
		query,
		localPlayer,
		p.Rating,
		p.GamesPlayed,
		p.Wins,
		p.Losses,
		p.Draws,
		p.Streak,
		p.StreakType,
		p.LastLevel,
		p.LastPlayedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
