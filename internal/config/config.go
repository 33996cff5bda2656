package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AppConfig carries everything the binaries read from the environment.
// Launch flags may still override individual fields after Load.
type AppConfig struct {
	// Engine. Exactly one of the two locators is needed for single-player
	// play; the builder enforces that so two-player setups stay lenient.
	EngineBinary string
	EngineURL    string `validate:"omitempty,url"`
	BookPath     string

	// Saved game and archive backends. Empty values fall back to the
	// file store and the in-memory archive.
	RedisURL    string `validate:"omitempty,url"`
	SaveFile    string
	DatabaseURL string

	// CloudEvalURL enables the remote evaluation fallback for hints.
	CloudEvalURL string `validate:"omitempty,url"`

	DefaultDifficulty int    `validate:"min=1,max=8"`
	PlayerColor       string `validate:"oneof=w b"`
	TwoPlayer         bool

	HistoryLimit int `validate:"min=1,max=100"`
}

var validate = validator.New()

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		DefaultDifficulty: 4,
		PlayerColor:       "w",
		HistoryLimit:      10,
	}

	cfg.EngineBinary = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.EngineURL = strings.TrimSpace(os.Getenv("ENGINE_URL"))
	cfg.BookPath = strings.TrimSpace(os.Getenv("CHESS_BOOK_PATH"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.SaveFile = strings.TrimSpace(os.Getenv("CHESS_SAVE_FILE"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.CloudEvalURL = strings.TrimSpace(os.Getenv("CHESS_CLOUD_EVAL_URL"))

	if v := strings.TrimSpace(os.Getenv("CHESS_DEFAULT_DIFFICULTY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultDifficulty = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_PLAYER_COLOR")); v != "" {
		cfg.PlayerColor = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_TWO_PLAYER")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TwoPlayer = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_HISTORY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryLimit = n
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, describeValidation(err)
	}
	return cfg, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		case "url":
			parts = append(parts, fmt.Sprintf("%s must be a valid URL", fe.Field()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(parts, "; "))
}
