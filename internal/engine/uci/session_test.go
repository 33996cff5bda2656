package uci

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedTransport answers Send calls from a canned handler, standing
// in for a live engine process.
type scriptedTransport struct {
	mu     sync.Mutex
	sent   []string
	closed bool

	out    chan string
	onSend func(line string, out chan<- string)
}

func newScriptedTransport(onSend func(line string, out chan<- string)) *scriptedTransport {
	return &scriptedTransport{out: make(chan string, 128), onSend: onSend}
}

func (f *scriptedTransport) Send(line string) error {
	f.mu.Lock()
	f.sent = append(f.sent, line)
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return errors.New("transport closed")
	}
	if f.onSend != nil {
		f.onSend(line, f.out)
	}
	return nil
}

func (f *scriptedTransport) Recv(ctx context.Context) (string, error) {
	select {
	case line := <-f.out:
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *scriptedTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *scriptedTransport) sentLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func stockfishScript(line string, out chan<- string) {
	switch {
	case line == "uci":
		out <- "id name Stockfish 16"
		out <- "id author the Stockfish developers"
		out <- "uciok"
	case line == "isready":
		out <- "readyok"
	case strings.HasPrefix(line, "go"):
		out <- "info depth 10 seldepth 12 multipv 1 score cp 34 nodes 5000 pv e2e4 e7e5"
		out <- "info depth 10 seldepth 12 multipv 2 score cp 21 nodes 5000 pv d2d4 d7d5"
		out <- "bestmove e2e4 ponder e7e5"
	}
}

func testOptions() Options {
	return Options{Threads: 1, SkillLevel: 5, HashMB: 16, MultiPV: 2, Elo: 1200}
}

func newTestSession(t *testing.T, onSend func(string, chan<- string)) (*Session, *scriptedTransport) {
	t.Helper()
	tr := newScriptedTransport(onSend)
	s, err := NewSession(context.Background(), tr, testOptions())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, tr
}

func TestSessionHandshake(t *testing.T) {
	s, tr := newTestSession(t, stockfishScript)
	defer s.Close()

	if s.Name() != "Stockfish 16" {
		t.Fatalf("unexpected engine name %q", s.Name())
	}

	joined := strings.Join(tr.sentLines(), "\n")
	for _, want := range []string{
		"setoption name Skill Level value 5",
		"setoption name MultiPV value 2",
		"setoption name UCI_Elo value 1200",
		"setoption name UCI_LimitStrength value true",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing option command %q in:\n%s", want, joined)
		}
	}
}

func TestSessionRejectsBadOptions(t *testing.T) {
	tr := newScriptedTransport(stockfishScript)
	if _, err := NewSession(context.Background(), tr, Options{SkillLevel: 42, HashMB: 16, MultiPV: 1}); err == nil {
		t.Fatalf("expected option validation error")
	}
	if !tr.closed {
		t.Fatalf("transport should be closed after failed construction")
	}
}

func TestSessionSearch(t *testing.T) {
	s, tr := newTestSession(t, stockfishScript)
	defer s.Close()

	resp, err := s.Search(context.Background(), SearchRequest{
		FEN:    "startpos",
		Moves:  []string{"e2e4", "e7e5"},
		Limits: Limits{MoveTimeMillis: 100},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.BestMove != "e2e4" {
		t.Fatalf("unexpected best move %q", resp.BestMove)
	}
	if len(resp.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(resp.Candidates))
	}
	if resp.Candidates[0].Move != "e2e4" || resp.Candidates[0].EvalCP != 34 {
		t.Fatalf("unexpected first candidate %+v", resp.Candidates[0])
	}
	if resp.Candidates[1].Move != "d2d4" {
		t.Fatalf("unexpected second candidate %+v", resp.Candidates[1])
	}

	joined := strings.Join(tr.sentLines(), "\n")
	if !strings.Contains(joined, "position startpos moves e2e4 e7e5") {
		t.Fatalf("position command missing in:\n%s", joined)
	}
	if !strings.Contains(joined, "go movetime 100") {
		t.Fatalf("go command missing in:\n%s", joined)
	}
}

func TestSessionSearchFromFEN(t *testing.T) {
	s, tr := newTestSession(t, stockfishScript)
	defer s.Close()

	const fen = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	if _, err := s.Search(context.Background(), SearchRequest{FEN: fen, Limits: Limits{Depth: 5}}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	joined := strings.Join(tr.sentLines(), "\n")
	if !strings.Contains(joined, "position fen "+fen) {
		t.Fatalf("fen position command missing in:\n%s", joined)
	}
}

func TestSessionSearchMateScore(t *testing.T) {
	s, _ := newTestSession(t, func(line string, out chan<- string) {
		switch {
		case line == "uci":
			out <- "uciok"
		case line == "isready":
			out <- "readyok"
		case strings.HasPrefix(line, "go"):
			out <- "info depth 12 multipv 1 score mate 3 pv h5f7"
			out <- "bestmove h5f7"
		}
	})
	defer s.Close()

	resp, err := s.Search(context.Background(), SearchRequest{FEN: "startpos", Limits: Limits{Depth: 5}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Candidates[0].EvalCP != 30000 {
		t.Fatalf("mate score should saturate, got %d", resp.Candidates[0].EvalCP)
	}
}

func TestSessionSearchNoMove(t *testing.T) {
	s, _ := newTestSession(t, func(line string, out chan<- string) {
		switch {
		case line == "uci":
			out <- "uciok"
		case line == "isready":
			out <- "readyok"
		case strings.HasPrefix(line, "go"):
			out <- "bestmove (none)"
		}
	})
	defer s.Close()

	resp, err := s.Search(context.Background(), SearchRequest{FEN: "startpos", Limits: Limits{Depth: 5}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.BestMove != "(none)" {
		t.Fatalf("unexpected best move %q", resp.BestMove)
	}
	if len(resp.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %v", resp.Candidates)
	}
}

func TestSessionInterruptAfterCancelledSearch(t *testing.T) {
	s, _ := newTestSession(t, func(line string, out chan<- string) {
		switch {
		case line == "uci":
			out <- "uciok"
		case line == "isready":
			out <- "readyok"
		case strings.HasPrefix(line, "go"):
			// Keep thinking: info lines but no bestmove.
			out <- "info depth 4 multipv 1 score cp 10 pv e2e4"
		case line == "stop":
			out <- "info depth 5 multipv 1 score cp 12 pv e2e4"
			out <- "bestmove e2e4"
		}
	})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Search(ctx, SearchRequest{FEN: "startpos", Limits: Limits{MoveTimeMillis: 30000}}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	if err := s.Interrupt(context.Background()); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}

	// The stream is clean again.
	if err := s.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady after interrupt: %v", err)
	}
}

func TestBuildGoTokens(t *testing.T) {
	tokens, err := buildGoTokens(Limits{Depth: 8, MoveTimeMillis: 200})
	if err != nil {
		t.Fatalf("buildGoTokens: %v", err)
	}
	if strings.Join(tokens, " ") != "go depth 8 movetime 200" {
		t.Fatalf("unexpected tokens %v", tokens)
	}
	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatalf("expected error for empty limits")
	}
}
