// Package game coordinates one chess game between a human, an optional
// second human, and the engine: turn order, click-to-move selection,
// status text, undo, hints, persistence, and the finished-game archive.
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"chessdesk/internal/archive"
	"chessdesk/internal/board"
	"chessdesk/internal/engine"
	"chessdesk/internal/lookup"
	"chessdesk/internal/msgcat"
	"chessdesk/internal/obslog"
	"chessdesk/internal/state"
)

var (
	// ErrGameOver rejects play input once a result is on the board.
	ErrGameOver = errors.New("game already decided")

	// ErrNotYourTurn rejects play input while the opponent is to move.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrEngineThinking rejects play input while an engine reply is
	// pending.
	ErrEngineThinking = errors.New("engine reply pending")

	// ErrUndoUnavailable means the history is too short for the undo
	// the current mode requires.
	ErrUndoUnavailable = errors.New("not enough history to undo")

	// ErrNoHint means neither the engine nor the cloud lookup produced
	// a suggestion.
	ErrNoHint = errors.New("no hint available")

	// ErrNoArchive means no game archive was configured.
	ErrNoArchive = errors.New("game archive not configured")

	// ErrClosed rejects calls after Close.
	ErrClosed = errors.New("coordinator closed")
)

const (
	// defaultSettleDelay holds the engine back briefly after a human
	// move so the front end can finish drawing it.
	defaultSettleDelay = 400 * time.Millisecond

	defaultHintTimeout = 8 * time.Second

	// hintLevel asks the engine for full-strength analysis regardless
	// of the difficulty the opponent plays at.
	hintLevel   = "level8"
	hintMultiPV = 1

	persistTimeout = 5 * time.Second

	engineEvaluationFallbackTimeout = 8 * time.Second
	engineEvaluationBuffer          = 2 * time.Second
)

// Evaluator produces opponent moves. *engine.Adapter satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, req engine.Request) (engine.Result, error)
	Abort()
}

// HintLookup serves cached cloud evaluations as a hint fallback.
// *lookup.Client satisfies it.
type HintLookup interface {
	Evaluate(ctx context.Context, fen string, multiPV int) (*lookup.Evaluation, error)
}

// Config sets the game mode the coordinator starts in. A saved game
// overrides Level, PlayerColor and TwoPlayer on restore; LevelOverride
// keeps the configured Level even then.
type Config struct {
	Level         string
	LevelOverride bool
	PlayerColor   nchess.Color
	TwoPlayer     bool
	SettleDelay   time.Duration
	HintTimeout   time.Duration

	// OnNotify receives game events. Called from its own goroutine;
	// it may call back into the coordinator.
	OnNotify func(Notification)
}

// Coordinator owns the single active game. All methods are safe for
// concurrent use.
type Coordinator struct {
	engine  Evaluator
	store   state.Store
	repo    archive.Repository
	hints   HintLookup
	catalog *msgcat.Catalog
	logger  *zap.Logger

	mu        sync.Mutex
	cfg       Config
	pos       board.Position
	sel       Selection
	gameGen   uint64
	thinking  bool
	notified  bool
	engineErr string
	record    *archive.Game
	startedAt time.Time
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewCoordinator wires a coordinator. Engine and store are required;
// repo and hints may be nil to disable the archive and the cloud hint
// fallback.
func NewCoordinator(evaluator Evaluator, store state.Store, repo archive.Repository, hints HintLookup, cfg Config, logger *zap.Logger) (*Coordinator, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("engine evaluator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if logger == nil {
		logger = obslog.L()
	}
	if !engine.KnownLevel(cfg.Level) {
		cfg.Level = engine.DefaultLevel
	}
	if cfg.PlayerColor != nchess.White && cfg.PlayerColor != nchess.Black {
		cfg.PlayerColor = nchess.White
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.HintTimeout <= 0 {
		cfg.HintTimeout = defaultHintTimeout
	}
	return &Coordinator{
		engine:  evaluator,
		store:   store,
		repo:    repo,
		hints:   hints,
		catalog: msgcat.Default(),
		logger:  logger,
		cfg:     cfg,
		pos:     board.Start(),
		record:  archive.NewGame(),
		done:    make(chan struct{}),
	}, nil
}

// Start loads the saved game if one exists and passes validation, and
// begins a fresh game otherwise. If the engine is to move it starts
// thinking immediately.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	rec, ok, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("saved game load failed", zap.Error(err))
		ok = false
	}
	if ok && c.restoreLocked(ctx, rec) {
		c.logger.Info("game restored",
			zap.String("level", c.cfg.Level),
			zap.String("color", board.ColorCode(c.cfg.PlayerColor)),
			zap.Bool("two_player", c.cfg.TwoPlayer),
			zap.Int("moves", c.pos.MoveCount()))
		c.maybeStartEngineLocked()
		return nil
	}
	c.freshGameLocked(ctx)
	return nil
}

// restoreLocked rebuilds the position from a saved record. The record
// must replay cleanly and land on its own FEN; anything else is treated
// as no saved game at all.
func (c *Coordinator) restoreLocked(ctx context.Context, rec state.Record) bool {
	level, err := engine.ParseLevel(rec.Difficulty)
	if err != nil {
		return c.discardSavedLocked(ctx, fmt.Errorf("difficulty: %w", err))
	}
	color, err := board.ParseColorCode(rec.PlayerColor)
	if err != nil {
		return c.discardSavedLocked(ctx, fmt.Errorf("player color: %w", err))
	}
	replayed, err := board.Replay(board.Start(), rec.MoveHistory)
	if err != nil {
		return c.discardSavedLocked(ctx, fmt.Errorf("history: %w", err))
	}
	if replayed.FEN() != strings.TrimSpace(rec.FEN) {
		return c.discardSavedLocked(ctx, fmt.Errorf("history does not reach the recorded position"))
	}

	if !c.cfg.LevelOverride {
		c.cfg.Level = level
	}
	c.cfg.PlayerColor = color
	c.cfg.TwoPlayer = rec.IsTwoPlayer
	c.pos = replayed
	c.sel = Selection{}
	c.engineErr = ""
	c.record = archive.NewGame()
	c.startedAt = time.Now()
	// A record saved at a terminal position must not re-announce the
	// result on every launch.
	c.notified = c.gameOverLocked()
	c.persistLocked(ctx)
	return true
}

func (c *Coordinator) discardSavedLocked(ctx context.Context, reason error) bool {
	c.logger.Warn("saved game unusable, starting fresh", zap.Error(reason))
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("saved game clear failed", zap.Error(err))
	}
	return false
}

func (c *Coordinator) freshGameLocked(ctx context.Context) {
	c.pos = board.Start()
	c.sel = Selection{}
	c.notified = false
	c.engineErr = ""
	c.record = archive.NewGame()
	c.startedAt = time.Now()
	c.persistLocked(ctx)
	c.maybeStartEngineLocked()
}

// View snapshots the game for rendering.
func (c *Coordinator) View() GameView {
	c.mu.Lock()
	defer c.mu.Unlock()
	white, black := c.pos.Material()
	v := GameView{
		FEN:           c.pos.FEN(),
		Turn:          c.pos.Turn(),
		PlayerColor:   c.cfg.PlayerColor,
		TwoPlayer:     c.cfg.TwoPlayer,
		Level:         c.cfg.Level,
		Status:        c.statusTextLocked(),
		Thinking:      c.thinking,
		GameOver:      c.gameOverLocked(),
		InCheck:       c.pos.InCheck(),
		History:       c.pos.History(),
		Opening:       c.pos.OpeningName(),
		GameName:      c.record.Name,
		MaterialWhite: white,
		MaterialBlack: black,
		EngineNote:    c.engineErr,
	}
	if c.sel.Active {
		v.Selected = true
		v.SelectedSquare = c.sel.Square
		v.SelectedTargets = append([]nchess.Square(nil), c.sel.Targets...)
	}
	if from, to, ok := c.pos.LastMove(); ok {
		v.HasLastMove = true
		v.LastMoveFrom = from
		v.LastMoveTo = to
	}
	return v
}

// StatusText returns the single status line for the current position.
func (c *Coordinator) StatusText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusTextLocked()
}

// PlayMove applies a typed move, SAN first and square-pair notation as
// a fallback. It is rejected while the game is over or it is not the
// caller's turn.
func (c *Coordinator) PlayMove(ctx context.Context, text string) (*MoveSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.gameOverLocked() {
		return nil, ErrGameOver
	}
	if !c.humanTurnLocked() {
		if c.thinking {
			return nil, ErrEngineThinking
		}
		return nil, ErrNotYourTurn
	}
	res, err := c.resolveMoveLocked(text)
	if err != nil {
		return nil, err
	}
	return c.acceptMoveLocked(ctx, res), nil
}

func (c *Coordinator) resolveMoveLocked(text string) (board.Resolved, error) {
	res, sanErr := c.pos.ApplySAN(text)
	if sanErr == nil {
		return res, nil
	}
	if res, err := c.pos.ApplyUCI(text); err == nil {
		return res, nil
	}
	return board.Resolved{}, sanErr
}

// HandleSquareClick advances the two-click selection gesture. Clicks
// while the game is over or the opponent is to move are ignored rather
// than rejected.
func (c *Coordinator) HandleSquareClick(ctx context.Context, sq nchess.Square) (*ClickResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.gameOverLocked() || !c.humanTurnLocked() {
		return &ClickResult{Outcome: ClickIgnored, Square: sq}, nil
	}

	mover := c.pos.Turn()
	if !c.sel.Active {
		if !selectable(c.pos, sq, mover) {
			return &ClickResult{Outcome: ClickIgnored, Square: sq}, nil
		}
		c.sel = selectionFor(c.pos, sq)
		return &ClickResult{Outcome: ClickSelected, Square: sq, Targets: append([]nchess.Square(nil), c.sel.Targets...)}, nil
	}

	if sq == c.sel.Square {
		c.sel = Selection{}
		return &ClickResult{Outcome: ClickCleared, Square: sq}, nil
	}
	if c.sel.hasTarget(sq) {
		move := board.Move{From: c.sel.Square, To: sq, Promotion: promotionFor(c.pos, c.sel.Square, sq)}
		res, err := c.pos.Apply(move)
		if err != nil {
			c.sel = Selection{}
			return nil, err
		}
		summary := c.acceptMoveLocked(ctx, res)
		return &ClickResult{Outcome: ClickMoved, Square: sq, Move: summary}, nil
	}
	if selectable(c.pos, sq, mover) {
		c.sel = selectionFor(c.pos, sq)
		return &ClickResult{Outcome: ClickReselected, Square: sq, Targets: append([]nchess.Square(nil), c.sel.Targets...)}, nil
	}
	c.sel = Selection{}
	return &ClickResult{Outcome: ClickCleared, Square: sq}, nil
}

// promotionFor fills in the default promotion piece. Pawns reaching the
// last rank always become queens; anything else promotes to nothing.
func promotionFor(pos board.Position, from, to nchess.Square) nchess.PieceType {
	piece := pos.PieceAt(from)
	if piece == nchess.NoPiece || piece.Type() != nchess.Pawn {
		return nchess.NoPieceType
	}
	if piece.Color() == nchess.White && to.Rank() == nchess.Rank8 {
		return nchess.Queen
	}
	if piece.Color() == nchess.Black && to.Rank() == nchess.Rank1 {
		return nchess.Queen
	}
	return nchess.NoPieceType
}

// acceptMoveLocked commits a resolved human move, persists or archives
// the result, and hands the turn to the engine when one is playing.
func (c *Coordinator) acceptMoveLocked(ctx context.Context, res board.Resolved) *MoveSummary {
	c.pos = res.Next
	c.sel = Selection{}
	c.engineErr = ""
	finished := c.gameOverLocked()
	if finished {
		c.finishLocked(ctx)
	} else {
		c.persistLocked(ctx)
		c.maybeStartEngineLocked()
	}
	return &MoveSummary{
		SAN:      res.SAN,
		UCI:      res.UCI,
		Status:   c.statusTextLocked(),
		Finished: finished,
		Thinking: c.thinking,
	}
}

// Undo rewinds the game: one ply in two-player mode, two in
// single-player mode (the engine reply and the player's move). The
// truncated history is replayed from the game's starting position.
func (c *Coordinator) Undo(ctx context.Context) (*UndoSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.thinking {
		// Undoing mid-search would race the reply; the search has to
		// resolve or fail first.
		return nil, ErrEngineThinking
	}
	count := 2
	if c.cfg.TwoPlayer {
		count = 1
	}
	history := c.pos.History()
	if len(history) < count {
		return nil, ErrUndoUnavailable
	}
	start, err := board.FromFEN(c.pos.StartFEN())
	if err != nil {
		return nil, err
	}
	replayed, err := board.Replay(start, history[:len(history)-count])
	if err != nil {
		return nil, err
	}

	c.gameGen++
	c.pos = replayed
	c.sel = Selection{}
	c.notified = false
	c.engineErr = ""
	c.persistLocked(ctx)
	c.maybeStartEngineLocked()
	c.logger.Info("moves undone", zap.Int("count", count), zap.Int("remaining", c.pos.MoveCount()))
	return &UndoSummary{Removed: count, Status: c.statusTextLocked()}, nil
}

// Hint suggests a move for the side to move, asking the engine at full
// strength first and the cloud evaluation service as a fallback.
func (c *Coordinator) Hint(ctx context.Context) (*HintResult, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.gameOverLocked() {
		c.mu.Unlock()
		return nil, ErrGameOver
	}
	if c.thinking || !c.humanTurnLocked() {
		c.mu.Unlock()
		return nil, ErrNotYourTurn
	}
	pos := c.pos
	gen := c.gameGen
	timeout := c.cfg.HintTimeout
	c.mu.Unlock()

	if hint := c.engineHint(ctx, pos, timeout); hint != nil {
		return c.deliverHint(gen, hint)
	}
	if hint := c.cloudHint(ctx, pos, timeout); hint != nil {
		return c.deliverHint(gen, hint)
	}
	return nil, ErrNoHint
}

func (c *Coordinator) engineHint(ctx context.Context, pos board.Position, timeout time.Duration) *HintResult {
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err := c.engine.Evaluate(evalCtx, engine.Request{
		Level: hintLevel,
		FEN:   requestFEN(pos),
		Moves: pos.MovesUCI(),
	})
	if err != nil {
		c.logger.Debug("engine hint failed", zap.Error(err))
		return nil
	}
	move := result.EngineBest
	if move == "" {
		move = result.Move
	}
	if move == "" {
		return nil
	}
	return &HintResult{Move: move, EvalCP: result.EvalCP}
}

func (c *Coordinator) cloudHint(ctx context.Context, pos board.Position, timeout time.Duration) *HintResult {
	if c.hints == nil {
		return nil
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	eval, err := c.hints.Evaluate(evalCtx, pos.FEN(), hintMultiPV)
	if err != nil {
		c.logger.Debug("cloud hint failed", zap.Error(err))
		return nil
	}
	move := eval.BestMove()
	if move == "" {
		return nil
	}
	hint := &HintResult{Move: move, FromCloud: true}
	if len(eval.Lines) > 0 {
		hint.EvalCP = eval.Lines[0].EvalCP
	}
	return hint
}

// deliverHint drops suggestions computed for a game that no longer
// exists.
func (c *Coordinator) deliverHint(gen uint64, hint *HintResult) (*HintResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gameGen {
		return nil, engine.ErrSuperseded
	}
	return hint, nil
}

// Reset abandons the current game and starts a fresh one with the same
// settings.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.resetLocked(ctx)
	return nil
}

func (c *Coordinator) resetLocked(ctx context.Context) {
	c.gameGen++
	if c.thinking {
		c.engine.Abort()
		c.thinking = false
	}
	c.freshGameLocked(ctx)
}

// SetDifficulty switches the engine level and starts a new game at it.
func (c *Coordinator) SetDifficulty(ctx context.Context, level string) error {
	if !engine.KnownLevel(level) {
		return fmt.Errorf("unknown difficulty %q", level)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.cfg.Level = level
	c.resetLocked(ctx)
	return nil
}

// SetPlayerColor switches the human's side and starts a new game.
func (c *Coordinator) SetPlayerColor(ctx context.Context, color nchess.Color) error {
	if color != nchess.White && color != nchess.Black {
		return fmt.Errorf("invalid player color")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.cfg.PlayerColor = color
	c.resetLocked(ctx)
	return nil
}

// SetTwoPlayer toggles hotseat mode in place. The position and history
// are kept; an engine move in flight is abandoned.
func (c *Coordinator) SetTwoPlayer(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.cfg.TwoPlayer == enabled {
		return nil
	}
	c.gameGen++
	if c.thinking {
		c.engine.Abort()
		c.thinking = false
	}
	c.cfg.TwoPlayer = enabled
	c.sel = Selection{}
	c.persistLocked(ctx)
	c.maybeStartEngineLocked()
	return nil
}

// Resign concedes the game: for the human in single-player mode, for
// the side to move in two-player mode.
func (c *Coordinator) Resign(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	if c.gameOverLocked() {
		return "", ErrGameOver
	}
	resigning := c.cfg.PlayerColor
	if c.cfg.TwoPlayer {
		resigning = c.pos.Turn()
	}
	c.gameGen++
	if c.thinking {
		c.engine.Abort()
		c.thinking = false
	}
	c.pos = c.pos.Resign(resigning)
	c.sel = Selection{}
	c.finishLocked(ctx)
	return c.statusTextLocked(), nil
}

// RecentGames lists finished games from the archive, newest first.
func (c *Coordinator) RecentGames(ctx context.Context, limit int) ([]*archive.Game, error) {
	if c.repo == nil {
		return nil, ErrNoArchive
	}
	return c.repo.RecentGames(ctx, limit)
}

// ArchivedGame fetches one finished game, nil when the id is unknown.
func (c *Coordinator) ArchivedGame(ctx context.Context, id int64) (*archive.Game, error) {
	if c.repo == nil {
		return nil, ErrNoArchive
	}
	return c.repo.GameByID(ctx, id)
}

// Profile fetches the local player's rating card, nil before the first
// finished game.
func (c *Coordinator) Profile(ctx context.Context) (*archive.Profile, error) {
	if c.repo == nil {
		return nil, ErrNoArchive
	}
	return c.repo.Profile(ctx)
}

// Close abandons any engine work and waits for background goroutines.
// The engine adapter and stores are owned by the caller and stay open.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gameGen++
	if c.thinking {
		c.engine.Abort()
		c.thinking = false
	}
	close(c.done)
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

// maybeStartEngineLocked schedules an engine turn when one is due: a
// single-player game, no reply pending, game still open, engine side
// to move.
func (c *Coordinator) maybeStartEngineLocked() {
	if c.closed || c.cfg.TwoPlayer || c.thinking {
		return
	}
	if c.gameOverLocked() || c.pos.Turn() == c.cfg.PlayerColor {
		return
	}
	c.thinking = true
	gen := c.gameGen
	pos := c.pos
	level := c.cfg.Level
	delay := c.cfg.SettleDelay
	c.wg.Add(1)
	go c.engineTurn(gen, pos, level, delay)
}

func (c *Coordinator) engineTurn(gen uint64, pos board.Position, level string, delay time.Duration) {
	defer c.wg.Done()
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.done:
			timer.Stop()
			return
		}
	}
	if c.staleGen(gen) {
		return
	}

	evalCtx, cancel := context.WithTimeout(context.Background(), evaluationTimeout(level))
	defer cancel()
	result, err := c.engine.Evaluate(evalCtx, engine.Request{
		Level: level,
		FEN:   requestFEN(pos),
		Moves: pos.MovesUCI(),
	})
	if err != nil {
		c.engineFailed(gen, level, err)
		return
	}
	c.engineMoved(gen, result)
}

func (c *Coordinator) staleGen(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || gen != c.gameGen
}

func (c *Coordinator) engineFailed(gen uint64, level string, err error) {
	if errors.Is(err, engine.ErrSuperseded) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gameGen {
		return
	}
	c.thinking = false
	c.engineErr = mapEngineError(err).Error()
	c.logger.Warn("engine turn failed", zap.String("level", level), zap.Error(err))
	c.notify(Notification{
		Text: c.renderLocked("notify.engine_trouble", nil,
			"The engine did not produce a move. Check the engine configuration."),
	})
}

// engineMoved lands an engine reply. Replies for a superseded game
// generation are dropped without touching any state.
func (c *Coordinator) engineMoved(gen uint64, result engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gameGen {
		return
	}
	c.thinking = false
	res, err := c.pos.ApplyUCI(result.Move)
	if err != nil {
		c.engineErr = mapEngineError(engine.ErrNoMove).Error()
		c.logger.Error("engine move rejected", zap.String("uci", result.Move), zap.Error(err))
		return
	}
	c.pos = res.Next
	c.engineErr = ""
	c.logger.Info("engine moved",
		zap.String("san", res.SAN),
		zap.String("uci", res.UCI),
		zap.Bool("book", result.BookMove),
		zap.Duration("took", result.Duration))

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if c.gameOverLocked() {
		c.finishLocked(ctx)
	} else {
		c.persistLocked(ctx)
	}
}

// finishLocked runs the one-shot end-of-game sequence: archive, rating
// update, saved-game cleanup, notification.
func (c *Coordinator) finishLocked(ctx context.Context) {
	if c.notified {
		return
	}
	c.notified = true
	result := resultFromPosition(c.pos)
	method := methodFromPosition(c.pos)
	c.archiveLocked(ctx, result, method)
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("saved game clear failed", zap.Error(err))
	}
	c.notify(Notification{
		Terminal: true,
		Result:   result,
		Method:   method,
		Text:     c.conclusionTextLocked(result, method),
	})
	c.logger.Info("game finished",
		zap.String("result", result),
		zap.String("method", method),
		zap.Int("moves", c.pos.MoveCount()))
}

func (c *Coordinator) archiveLocked(ctx context.Context, result, method string) {
	if c.repo == nil {
		return
	}
	g := c.record
	g.Level = c.cfg.Level
	g.PlayerColor = board.ColorCode(c.cfg.PlayerColor)
	g.TwoPlayer = c.cfg.TwoPlayer
	g.Result = result
	g.Method = method
	g.MovesSAN = c.pos.History()
	g.StartedAt = c.startedAt
	g.EndedAt = time.Now()
	g.MoveCount = c.pos.MoveCount()
	g.PGN = archive.BuildPGN(g)

	if _, err := c.repo.SaveGame(ctx, g); err != nil {
		if errors.Is(err, archive.ErrDuplicateGame) {
			// The first conclusion of this game was already archived
			// and rated; an undo replayed into a second one.
			c.logger.Debug("game already archived", zap.String("session_id", g.SessionID))
		} else {
			c.logger.Warn("game archive failed", zap.Error(err))
		}
		return
	}
	if c.cfg.TwoPlayer {
		return
	}
	profile, err := c.repo.Profile(ctx)
	if err != nil {
		c.logger.Warn("profile load failed", zap.Error(err))
		return
	}
	updated, delta := archive.ApplyResult(profile, g.Level, result, g.PlayerColor, g.EndedAt)
	if err := c.repo.SaveProfile(ctx, updated); err != nil {
		c.logger.Warn("profile save failed", zap.Error(err))
		return
	}
	c.logger.Info("rating updated", zap.Int("rating", updated.Rating), zap.Int("delta", delta))
}

func (c *Coordinator) persistLocked(ctx context.Context) {
	rec := state.Record{
		FEN:         c.pos.FEN(),
		MoveHistory: c.pos.History(),
		Difficulty:  engine.LevelOrdinal(c.cfg.Level),
		PlayerColor: board.ColorCode(c.cfg.PlayerColor),
		IsTwoPlayer: c.cfg.TwoPlayer,
	}
	if err := c.store.Save(ctx, rec); err != nil {
		c.logger.Warn("game save failed", zap.Error(err))
	}
}

// notify dispatches an event without holding up the caller. The
// callback may re-enter the coordinator.
func (c *Coordinator) notify(n Notification) {
	cb := c.cfg.OnNotify
	if cb == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		cb(n)
	}()
}

func (c *Coordinator) humanTurnLocked() bool {
	if c.cfg.TwoPlayer {
		return true
	}
	return c.pos.Turn() == c.cfg.PlayerColor
}

func (c *Coordinator) gameOverLocked() bool {
	return c.pos.Outcome() != nchess.NoOutcome || c.pos.IsCheckmate() || c.pos.IsDraw()
}

// statusTextLocked derives the status line. Terminal states win over
// check, check wins over whose-turn text.
func (c *Coordinator) statusTextLocked() string {
	pos := c.pos
	switch {
	case pos.IsCheckmate():
		winner := board.ColorName(board.Opponent(pos.Turn()))
		return c.renderLocked("status.checkmate", map[string]any{"Winner": winner},
			fmt.Sprintf("Checkmate! %s wins.", winner))
	case pos.IsDraw():
		return c.renderLocked("status.draw", nil, "Draw!")
	case pos.Outcome() == nchess.WhiteWon || pos.Outcome() == nchess.BlackWon:
		winner := board.ColorName(nchess.White)
		if pos.Outcome() == nchess.BlackWon {
			winner = board.ColorName(nchess.Black)
		}
		return c.renderLocked("status.resigned", map[string]any{"Winner": winner},
			fmt.Sprintf("%s wins by resignation.", winner))
	case pos.InCheck():
		return c.renderLocked("status.check", nil, "Check!")
	case c.cfg.TwoPlayer:
		name := board.ColorName(pos.Turn())
		return c.renderLocked("status.side_to_move", map[string]any{"Color": name},
			fmt.Sprintf("(%s)'s turn", name))
	case pos.Turn() != c.cfg.PlayerColor:
		return c.renderLocked("status.opponent_thinking", nil, "Opponent thinking")
	default:
		name := board.ColorName(c.cfg.PlayerColor)
		return c.renderLocked("status.your_turn", map[string]any{"Color": name},
			fmt.Sprintf("Your turn (%s)", name))
	}
}

func (c *Coordinator) conclusionTextLocked(result, method string) string {
	if result == archive.ResultDraw {
		return c.renderLocked("notify.draw", map[string]any{"Method": method},
			fmt.Sprintf("Game drawn by %s.", method))
	}
	if c.cfg.TwoPlayer {
		winner := board.ColorName(nchess.White)
		if result == archive.ResultBlack {
			winner = board.ColorName(nchess.Black)
		}
		summary := fmt.Sprintf("%s wins by %s", winner, method)
		return c.renderLocked("notify.finished", map[string]any{"Result": summary},
			fmt.Sprintf("Game over: %s.", summary))
	}
	playerWon := result == archive.ResultWhite && c.cfg.PlayerColor == nchess.White ||
		result == archive.ResultBlack && c.cfg.PlayerColor == nchess.Black
	if playerWon {
		return c.renderLocked("notify.win", map[string]any{"Method": method},
			fmt.Sprintf("You won by %s.", method))
	}
	return c.renderLocked("notify.loss", map[string]any{"Method": method},
		fmt.Sprintf("You lost by %s.", method))
}

func (c *Coordinator) renderLocked(key string, data any, fallback string) string {
	text, err := c.catalog.Render(key, data)
	if err != nil {
		c.logger.Warn("message render failed", zap.String("key", key), zap.Error(err))
		return fallback
	}
	return text
}

func resultFromPosition(pos board.Position) string {
	switch pos.Outcome() {
	case nchess.WhiteWon:
		return archive.ResultWhite
	case nchess.BlackWon:
		return archive.ResultBlack
	case nchess.Draw:
		return archive.ResultDraw
	}
	if pos.IsCheckmate() {
		if pos.Turn() == nchess.White {
			return archive.ResultBlack
		}
		return archive.ResultWhite
	}
	return archive.ResultDraw
}

func methodFromPosition(pos board.Position) string {
	switch {
	case pos.IsCheckmate():
		return "checkmate"
	case pos.IsStalemate():
		return "stalemate"
	case pos.IsInsufficientMaterial():
		return "insufficient material"
	case pos.IsThreefoldRepetition():
		return "threefold repetition"
	}
	if m := pos.Method(); m != nchess.NoMethod {
		return strings.ToLower(m.String())
	}
	if pos.IsDraw() {
		return "fifty-move rule"
	}
	return "unknown"
}

// requestFEN phrases the search root the way UCI engines expect:
// "startpos" for the standard initial position.
func requestFEN(pos board.Position) string {
	if pos.StartFEN() == board.StartingFEN {
		return "startpos"
	}
	return pos.StartFEN()
}

func mapEngineError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return engine.ErrSearchTimeout
	case errors.Is(err, engine.ErrNoMove):
		return engine.ErrNoMove
	case strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return engine.ErrSearchTimeout
	default:
		return engine.ErrUnavailable
	}
}

// evaluationTimeout gives the engine room to answer: twice the move
// time at timed levels, scaled by depth otherwise, never tighter than
// the fallback.
func evaluationTimeout(level string) time.Duration {
	preset, err := engine.GetPreset(level)
	if err != nil {
		return engineEvaluationFallbackTimeout
	}
	timeout := evaluationTimeoutFromPreset(preset) + engineEvaluationBuffer
	if timeout < engineEvaluationFallbackTimeout {
		return engineEvaluationFallbackTimeout
	}
	return timeout
}

func evaluationTimeoutFromPreset(p engine.DifficultyPreset) time.Duration {
	if p.MoveTimeMillis > 0 {
		return time.Duration(p.MoveTimeMillis+800) * time.Millisecond * 2
	}
	if p.DepthCap > 0 {
		timeout := time.Duration(p.DepthCap) * 200 * time.Millisecond
		if timeout < 3*time.Second {
			timeout = 3 * time.Second
		}
		if timeout > 15*time.Second {
			timeout = 15 * time.Second
		}
		return timeout
	}
	return 5 * time.Second
}
