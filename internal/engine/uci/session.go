// Package uci drives UCI chess engines over pluggable transports: a
// local process via stdio or a remote bridge via websocket.
package uci

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
	interruptTimeout     = 2 * time.Second
)

type Options struct {
	Threads    int
	SkillLevel int
	HashMB     int
	MultiPV    int
	Elo        int
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
}

type SearchRequest struct {
	FEN         string
	Moves       []string
	Limits      Limits
	GoOverrides []string
}

type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
}

// Session drives a single engine over a Transport. Searches are
// serialized. A Search abandoned by context cancellation leaves the
// engine still thinking; call Interrupt before issuing new commands.
type Session struct {
	t      Transport
	name   string
	search sync.Mutex
}

// NewSession performs the uci handshake and applies opt. The transport
// is closed on failure.
func NewSession(ctx context.Context, t Transport, opt Options) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		t.Close()
		return nil, err
	}
	s := &Session{t: t}
	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Name reports the engine identity announced during the handshake.
func (s *Session) Name() string {
	return s.name
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.t.Send("uci"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	for {
		line, err := s.t.Recv(initCtx)
		if err != nil {
			return fmt.Errorf("wait uciok: %w", err)
		}
		if strings.HasPrefix(line, "id name ") {
			s.name = strings.TrimSpace(strings.TrimPrefix(line, "id name "))
			continue
		}
		if strings.Contains(line, "uciok") {
			break
		}
	}

	if err := s.applyOptions(opt); err != nil {
		return err
	}

	if err := s.t.Send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) applyOptions(opt Options) error {
	threadCount := opt.Threads
	if threadCount <= 0 {
		threadCount = 1
	}
	cmds := []string{
		fmt.Sprintf("setoption name Threads value %d", threadCount),
		fmt.Sprintf("setoption name Hash value %d", opt.HashMB),
		fmt.Sprintf("setoption name Skill Level value %d", opt.SkillLevel),
		fmt.Sprintf("setoption name MultiPV value %d", opt.MultiPV),
		"setoption name Minimum Thinking Time value 10",
		"setoption name Move Overhead value 100",
		"setoption name UCI_LimitStrength value true",
		fmt.Sprintf("setoption name UCI_Elo value %d", opt.Elo),
	}
	for _, cmd := range cmds {
		if err := s.t.Send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	positionCmd := buildPositionCommand(req.FEN, req.Moves)
	if err := s.t.Send(positionCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}

	goTokens := req.GoOverrides
	var err error
	if len(goTokens) == 0 {
		goTokens, err = buildGoTokens(req.Limits)
		if err != nil {
			return SearchResponse{}, err
		}
	}
	goCmd := strings.Join(goTokens, " ")
	if err := s.t.Send(goCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, computeSearchTimeout(req.Limits))
	defer cancel()

	candidates := make(map[int]Candidate)
	for {
		line, err := s.t.Recv(searchCtx)
		if err != nil {
			log.Printf("[uci] read error (position=%s, go=%s): %v", positionCmd, goCmd, err)
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "info "):
			if mv, cand, ok := parseInfo(line); ok {
				candidates[mv] = cand
			}
		case strings.HasPrefix(line, "bestmove"):
			var best string
			if parts := strings.Fields(line); len(parts) >= 2 {
				best = parts[1]
			}
			return SearchResponse{Candidates: collapseCandidates(candidates), BestMove: best}, nil
		}
	}
}

// Interrupt winds up an abandoned search: it sends stop and consumes
// engine output through the trailing bestmove so the stream is clean
// for the next command. Call it only after a Search returned on a
// cancelled context.
func (s *Session) Interrupt(ctx context.Context) error {
	s.search.Lock()
	defer s.search.Unlock()

	if err := s.t.Send("stop"); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}

	drainCtx, cancel := context.WithTimeout(ctx, interruptTimeout)
	defer cancel()
	for {
		line, err := s.t.Recv(drainCtx)
		if err != nil {
			return fmt.Errorf("drain search: %w", err)
		}
		if strings.HasPrefix(line, "bestmove") {
			return nil
		}
	}
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.t.Send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) NewGame(ctx context.Context) error {
	if err := s.t.Send("ucinewgame"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}

	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := s.EnsureReady(ctx)
		if err == nil {
			return nil
		}
		if attempt == newGameRetryAttempts {
			return err
		}
		log.Printf("[uci] ensure ready retry %d/%d after ucinewgame: %v", attempt, newGameRetryAttempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

func (s *Session) Close() error {
	_ = s.t.Send("quit")
	return s.t.Close()
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.t.Recv(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}
