// Package clientbuilder assembles the desktop client's dependency graph
// from configuration: engine adapter, saved-game store, archive
// repository, cloud evaluation fallback and the game coordinator.
package clientbuilder

import (
	"fmt"
	"os"
	"path/filepath"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"chessdesk/internal/archive"
	"chessdesk/internal/config"
	"chessdesk/internal/engine"
	"chessdesk/internal/game"
	"chessdesk/internal/lookup"
	"chessdesk/internal/state"
)

// Options carries the launch-time choices that live outside AppConfig.
type Options struct {
	// LevelOverride marks the difficulty as forced by a launch flag, so
	// a saved game's difficulty is replaced instead of restored.
	LevelOverride bool
	OnNotify      func(game.Notification)
}

// Deps bundles the built components. The coordinator is returned
// unstarted; call Coordinator.Start before use and Close on shutdown.
type Deps struct {
	Coordinator *game.Coordinator
	Engine      *engine.Adapter
	Store       state.Store
	Repo        archive.Repository
	Hints       *lookup.Client
}

func New(cfg *config.AppConfig, opts Options, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.EngineBinary == "" && cfg.EngineURL == "" {
		return nil, fmt.Errorf("STOCKFISH_PATH or ENGINE_URL is required for the chess engine")
	}
	adapter, err := engine.NewAdapter(engine.Config{
		BinaryPath: cfg.EngineBinary,
		BridgeURL:  cfg.EngineURL,
		BookPath:   cfg.BookPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}

	deps := &Deps{Engine: adapter}
	ok := false
	defer func() {
		if !ok {
			deps.Close()
		}
	}()

	if cfg.RedisURL != "" {
		store, err := state.NewRedisStore(cfg.RedisURL, "")
		if err != nil {
			return nil, fmt.Errorf("init redis store: %w", err)
		}
		deps.Store = store
	} else {
		path := cfg.SaveFile
		if path == "" {
			path, err = defaultSavePath()
			if err != nil {
				return nil, fmt.Errorf("resolve save path: %w", err)
			}
		}
		store, err := state.NewFileStore(path)
		if err != nil {
			return nil, fmt.Errorf("init file store: %w", err)
		}
		deps.Store = store
	}

	if cfg.DatabaseURL != "" {
		repo, err := archive.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init archive repository: %w", err)
		}
		deps.Repo = repo
	} else {
		deps.Repo = archive.NewMemoryRepository()
	}

	// The coordinator treats a nil interface as "no cloud fallback", so
	// only assign it when a URL is configured.
	var hints game.HintLookup
	if cfg.CloudEvalURL != "" {
		deps.Hints = lookup.NewClient(cfg.CloudEvalURL)
		hints = deps.Hints
	}

	level, err := engine.ParseLevel(cfg.DefaultDifficulty)
	if err != nil {
		return nil, fmt.Errorf("difficulty %d: %w", cfg.DefaultDifficulty, err)
	}
	playerColor := nchess.White
	if cfg.PlayerColor == "b" {
		playerColor = nchess.Black
	}

	coord, err := game.NewCoordinator(adapter, deps.Store, deps.Repo, hints, game.Config{
		Level:         level,
		LevelOverride: opts.LevelOverride,
		PlayerColor:   playerColor,
		TwoPlayer:     cfg.TwoPlayer,
		OnNotify:      opts.OnNotify,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init coordinator: %w", err)
	}
	deps.Coordinator = coord

	ok = true
	return deps, nil
}

// Close shuts the components down in dependency order: the coordinator
// first so no engine turn is mid-flight when the rest goes away.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var first error
	if d.Coordinator != nil {
		if err := d.Coordinator.Close(); err != nil && first == nil {
			first = err
		}
	}
	if d.Engine != nil {
		if err := d.Engine.Close(); err != nil && first == nil {
			first = err
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil && first == nil {
			first = err
		}
	}
	if d.Repo != nil {
		if err := d.Repo.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func defaultSavePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", err
		}
		return filepath.Join(home, ".chessdesk", "saved-game.json"), nil
	}
	return filepath.Join(dir, "chessdesk", "saved-game.json"), nil
}
