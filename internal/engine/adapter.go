// Package engine turns "the opponent should move now" into a concrete
// move. It drives a UCI engine through difficulty presets, softens the
// engine's choices so lower levels feel human, and serves opening-book
// moves when a polyglot book is configured.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"chessdesk/internal/engine/uci"
	"chessdesk/internal/obslog"
)

// Config locates the engine and its opening resources. Exactly one of
// BinaryPath or BridgeURL must be set.
type Config struct {
	BinaryPath string
	BridgeURL  string
	BookPath   string
}

// Request asks for an engine reply to the position reached by playing
// Moves from FEN. FEN may be "startpos" or empty for the standard
// start.
type Request struct {
	Level string
	FEN   string
	Moves []string
}

// Result carries the move the adapter settled on.
type Result struct {
	Move       string // UCI
	EvalCP     int
	BookMove   bool
	EngineBest string
	Duration   time.Duration
}

// Adapter owns at most one engine session and serializes searches
// through it. A new Evaluate cancels and replaces any search still in
// flight; the superseded caller gets ErrSuperseded. Sessions are
// respawned when the engine stops answering.
type Adapter struct {
	cfg  Config
	book *Book
	dial func(ctx context.Context) (uci.Transport, error)

	randMu sync.Mutex
	rand   *rand.Rand

	mu     sync.Mutex // guards gen and cancel
	gen    uint64
	cancel context.CancelFunc

	sessMu  sync.Mutex // serializes engine use
	sess    *uci.Session
	sessOpt uci.Options
	dirty   bool // an abandoned search may still be streaming output
	closed  bool
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.BinaryPath == "" && cfg.BridgeURL == "" {
		return nil, fmt.Errorf("%w: binary path or bridge url required", ErrStartup)
	}
	if cfg.BinaryPath != "" {
		if _, err := os.Stat(cfg.BinaryPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStartup, err)
		}
	}
	book, err := LoadBook(cfg.BookPath)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		cfg:  cfg,
		book: book,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	a.dial = a.defaultDial
	return a, nil
}

func (a *Adapter) defaultDial(ctx context.Context) (uci.Transport, error) {
	if a.cfg.BridgeURL != "" {
		t, err := uci.DialWS(ctx, a.cfg.BridgeURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStartup, err)
		}
		return t, nil
	}
	t, err := uci.StartProcess(a.cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartup, err)
	}
	return t, nil
}

// Evaluate resolves one engine move. It is safe to call from multiple
// goroutines: the newest call wins and every older in-flight call
// returns ErrSuperseded.
func (a *Adapter) Evaluate(ctx context.Context, req Request) (Result, error) {
	preset, err := GetPreset(req.Level)
	if err != nil {
		return Result{}, err
	}

	// Replace whatever search is still in flight.
	a.mu.Lock()
	a.gen++
	myGen := a.gen
	if a.cancel != nil {
		a.cancel()
	}
	searchCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()
	defer cancel()

	randSrc := a.random()

	bookMove, err := a.book.Probe(req.FEN, req.Moves, randSrc)
	if err != nil {
		obslog.L().Warn("opening book probe failed", zap.Error(err))
	} else if bookMove != "" {
		if a.superseded(myGen) {
			return Result{}, ErrSuperseded
		}
		return Result{Move: bookMove, BookMove: true, EngineBest: bookMove}, nil
	}

	a.sessMu.Lock()
	defer a.sessMu.Unlock()

	if a.closed {
		return Result{}, ErrUnavailable
	}
	if a.superseded(myGen) {
		return Result{}, ErrSuperseded
	}

	sess, err := a.ensureSession(searchCtx, optionsFromPreset(preset))
	if err != nil {
		if searchCtx.Err() != nil {
			return Result{}, a.cancelCause(ctx)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := sess.NewGame(searchCtx); err != nil {
		if searchCtx.Err() != nil {
			return Result{}, a.cancelCause(ctx)
		}
		a.discardSession()
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	goTokens, err := BuildGoCommand(preset)
	if err != nil {
		return Result{}, err
	}

	searchStart := time.Now()
	resp, err := sess.Search(searchCtx, uci.SearchRequest{
		FEN:         req.FEN,
		Moves:       req.Moves,
		Limits:      limitsFromPreset(preset),
		GoOverrides: goTokens,
	})
	if err != nil {
		if searchCtx.Err() != nil {
			a.dirty = true
			return Result{}, a.cancelCause(ctx)
		}
		a.discardSession()
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if a.superseded(myGen) {
		return Result{}, ErrSuperseded
	}
	if resp.BestMove == "" || resp.BestMove == "(none)" {
		return Result{}, ErrNoMove
	}

	candidates := convertCandidates(resp.Candidates)
	if len(candidates) == 0 {
		candidates = []Candidate{{Move: resp.BestMove, Principal: []string{resp.BestMove}}}
	}
	chosen, err := SelectCandidate(preset, candidates, randSrc)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Move:       chosen.Move,
		EvalCP:     chosen.EvalCP,
		EngineBest: resp.BestMove,
		Duration:   time.Since(searchStart),
	}, nil
}

// Abort cancels any search in flight without starting a new one. The
// next Evaluate resynchronizes the engine stream before searching.
func (a *Adapter) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// Probe verifies the engine answers and reports its name.
func (a *Adapter) Probe(ctx context.Context) (string, error) {
	preset, err := GetPreset(DefaultLevel)
	if err != nil {
		return "", err
	}

	a.sessMu.Lock()
	defer a.sessMu.Unlock()

	if a.closed {
		return "", ErrUnavailable
	}
	sess, err := a.ensureSession(ctx, optionsFromPreset(preset))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return sess.Name(), nil
}

func (a *Adapter) Close() error {
	a.Abort()

	a.sessMu.Lock()
	defer a.sessMu.Unlock()
	a.closed = true
	if a.sess != nil {
		err := a.sess.Close()
		a.sess = nil
		return err
	}
	return nil
}

// SetRandomSeed pins candidate selection for reproducible games.
func (a *Adapter) SetRandomSeed(seed int64) {
	a.randMu.Lock()
	a.rand = rand.New(rand.NewSource(seed))
	a.randMu.Unlock()
}

func (a *Adapter) random() *rand.Rand {
	a.randMu.Lock()
	seed := a.rand.Int63()
	a.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

func (a *Adapter) superseded(myGen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return myGen != a.gen
}

// cancelCause separates "the caller gave up" from "a newer request took
// over".
func (a *Adapter) cancelCause(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrSuperseded
}

// ensureSession hands back a session that is ready for commands,
// draining or respawning as needed. Callers hold sessMu.
func (a *Adapter) ensureSession(ctx context.Context, opt uci.Options) (*uci.Session, error) {
	if a.sess != nil && a.sessOpt != opt {
		// Engine options are baked in at handshake; a difficulty
		// change needs a fresh session.
		a.discardSession()
	}

	if a.sess != nil && a.dirty {
		if err := a.sess.Interrupt(ctx); err != nil {
			obslog.L().Warn("engine resync failed, respawning", zap.Error(err))
			a.discardSession()
		} else {
			a.dirty = false
		}
	}

	if a.sess != nil {
		if err := a.sess.EnsureReady(ctx); err == nil {
			return a.sess, nil
		}
		a.discardSession()
	}

	t, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := uci.NewSession(ctx, t, opt)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("engine session started", zap.String("engine", sess.Name()))
	a.sess = sess
	a.sessOpt = opt
	a.dirty = false
	return sess, nil
}

// discardSession closes the current session. Callers hold sessMu.
func (a *Adapter) discardSession() {
	if a.sess != nil {
		_ = a.sess.Close()
		a.sess = nil
		a.dirty = false
	}
}

func optionsFromPreset(p DifficultyPreset) uci.Options {
	return uci.Options{
		Threads:    p.Threads,
		SkillLevel: p.SkillLevel,
		HashMB:     p.HashMB,
		MultiPV:    p.MultiPV,
		Elo:        p.Elo,
	}
}

func limitsFromPreset(p DifficultyPreset) uci.Limits {
	return uci.Limits{
		Depth:          p.DepthCap,
		MoveTimeMillis: p.MoveTimeMillis,
		NodeCap:        p.NodeCap,
	}
}

func convertCandidates(in []uci.Candidate) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		out = append(out, Candidate{
			Move:      c.Move,
			EvalCP:    c.EvalCP,
			Principal: append([]string(nil), c.Principal...),
		})
	}
	return out
}
