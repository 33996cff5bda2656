package engine

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"chessdesk/internal/engine/uci"
)

// fakeTransport plays the engine side of the wire from a canned script.
// goSeen counts go commands on this transport so scripts can behave
// differently across searches.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []string
	goSeen int
	closed bool

	out    chan string
	script func(line string, goSeen int, out chan<- string)
}

func newFakeTransport(script func(string, int, chan<- string)) *fakeTransport {
	return &fakeTransport{out: make(chan string, 128), script: script}
}

func (f *fakeTransport) Send(line string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("transport closed")
	}
	f.sent = append(f.sent, line)
	if line == "go" || strings.HasPrefix(line, "go ") {
		f.goSeen++
	}
	n := f.goSeen
	f.mu.Unlock()

	if f.script != nil {
		f.script(line, n, f.out)
	}
	return nil
}

func (f *fakeTransport) Recv(ctx context.Context) (string, error) {
	select {
	case line := <-f.out:
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type transportFactory struct {
	mu     sync.Mutex
	script func(string, int, chan<- string)
	made   []*fakeTransport
}

func (tf *transportFactory) dial(ctx context.Context) (uci.Transport, error) {
	ft := newFakeTransport(tf.script)
	tf.mu.Lock()
	tf.made = append(tf.made, ft)
	tf.mu.Unlock()
	return ft, nil
}

func (tf *transportFactory) last() *fakeTransport {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	if len(tf.made) == 0 {
		return nil
	}
	return tf.made[len(tf.made)-1]
}

// waitForGo blocks until the engine has received its nth go command.
func (tf *transportFactory) waitForGo(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ft := tf.last(); ft != nil {
			ft.mu.Lock()
			seen := ft.goSeen
			ft.mu.Unlock()
			if seen >= n {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("engine never received go #%d", n)
}

func newTestAdapter(script func(string, int, chan<- string)) (*Adapter, *transportFactory) {
	tf := &transportFactory{script: script}
	a := &Adapter{
		cfg:  Config{BridgeURL: "ws://fake"},
		rand: rand.New(rand.NewSource(1)),
	}
	a.dial = tf.dial
	return a, tf
}

// thinkingScript stalls the first search until it is stopped, then
// answers later searches promptly.
func thinkingScript(line string, goSeen int, out chan<- string) {
	switch {
	case line == "uci":
		out <- "id name FakeFish"
		out <- "uciok"
	case line == "isready":
		out <- "readyok"
	case line == "stop":
		out <- "bestmove e2e4"
	case line == "go" || strings.HasPrefix(line, "go "):
		if goSeen == 1 {
			out <- "info depth 3 multipv 1 score cp 20 pv e2e4"
			return
		}
		out <- "info depth 8 multipv 1 score cp 31 pv d2d4 d7d5"
		out <- "bestmove d2d4"
	}
}

func promptScript(line string, goSeen int, out chan<- string) {
	switch {
	case line == "uci":
		out <- "id name FakeFish"
		out <- "uciok"
	case line == "isready":
		out <- "readyok"
	case line == "go" || strings.HasPrefix(line, "go "):
		out <- "info depth 8 multipv 1 score cp 31 pv d2d4 d7d5"
		out <- "bestmove d2d4"
	}
}

func TestEvaluateReturnsEngineMove(t *testing.T) {
	a, _ := newTestAdapter(promptScript)
	defer a.Close()

	res, err := a.Evaluate(context.Background(), Request{Level: "level8", FEN: "startpos"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Move != "d2d4" || res.EngineBest != "d2d4" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.BookMove {
		t.Fatalf("no book configured, result should not be a book move")
	}
	if res.EvalCP != 31 {
		t.Fatalf("level8 applies no eval noise, got %d", res.EvalCP)
	}
}

func TestEvaluateNewRequestSupersedesInFlight(t *testing.T) {
	a, tf := newTestAdapter(thinkingScript)
	defer a.Close()

	done := make(chan error, 1)
	go func() {
		_, err := a.Evaluate(context.Background(), Request{Level: "level8", FEN: "startpos"})
		done <- err
	}()
	tf.waitForGo(t, 1)

	res, err := a.Evaluate(context.Background(), Request{Level: "level8", FEN: "startpos", Moves: []string{"e2e4"}})
	if err != nil {
		t.Fatalf("replacement Evaluate: %v", err)
	}
	if res.Move != "d2d4" {
		t.Fatalf("replacement got %q", res.Move)
	}

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("first search should be superseded, got %v", err)
	}

	// Exactly one transport: the session survived the takeover.
	tf.mu.Lock()
	made := len(tf.made)
	tf.mu.Unlock()
	if made != 1 {
		t.Fatalf("expected a single session, got %d", made)
	}
}

func TestAbortCancelsInFlightSearch(t *testing.T) {
	a, tf := newTestAdapter(thinkingScript)
	defer a.Close()

	done := make(chan error, 1)
	go func() {
		_, err := a.Evaluate(context.Background(), Request{Level: "level8", FEN: "startpos"})
		done <- err
	}()
	tf.waitForGo(t, 1)

	a.Abort()
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("aborted search should be superseded, got %v", err)
	}

	// The stream resynchronizes before the next search.
	res, err := a.Evaluate(context.Background(), Request{Level: "level8", FEN: "startpos"})
	if err != nil {
		t.Fatalf("Evaluate after abort: %v", err)
	}
	if res.Move != "d2d4" {
		t.Fatalf("unexpected move %q", res.Move)
	}
}

func TestEvaluateCallerCancellation(t *testing.T) {
	a, tf := newTestAdapter(thinkingScript)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.Evaluate(ctx, Request{Level: "level8", FEN: "startpos"})
		done <- err
	}()
	tf.waitForGo(t, 1)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected caller cancellation, got %v", err)
	}
}

func TestEvaluateDialFailure(t *testing.T) {
	a, _ := newTestAdapter(nil)
	a.dial = func(ctx context.Context) (uci.Transport, error) {
		return nil, errors.New("no engine installed")
	}

	_, err := a.Evaluate(context.Background(), Request{Level: "level5", FEN: "startpos"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestEvaluateNoMove(t *testing.T) {
	a, _ := newTestAdapter(func(line string, goSeen int, out chan<- string) {
		switch {
		case line == "uci":
			out <- "uciok"
		case line == "isready":
			out <- "readyok"
		case line == "go" || strings.HasPrefix(line, "go "):
			out <- "bestmove (none)"
		}
	})
	defer a.Close()

	_, err := a.Evaluate(context.Background(), Request{Level: "level5", FEN: "startpos"})
	if !errors.Is(err, ErrNoMove) {
		t.Fatalf("expected ErrNoMove, got %v", err)
	}
}

func TestEvaluateUnknownLevel(t *testing.T) {
	a, _ := newTestAdapter(promptScript)
	if _, err := a.Evaluate(context.Background(), Request{Level: "level99", FEN: "startpos"}); err == nil {
		t.Fatalf("expected preset error")
	}
}

func TestEvaluateAfterClose(t *testing.T) {
	a, _ := newTestAdapter(promptScript)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := a.Evaluate(context.Background(), Request{Level: "level5", FEN: "startpos"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after close, got %v", err)
	}
}

func TestProbeReportsEngineName(t *testing.T) {
	a, _ := newTestAdapter(promptScript)
	defer a.Close()

	name, err := a.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if name != "FakeFish" {
		t.Fatalf("unexpected engine name %q", name)
	}
}

func TestNilBookNeverOffersMoves(t *testing.T) {
	book, err := LoadBook("")
	if err != nil {
		t.Fatalf("LoadBook: %v", err)
	}
	if book != nil {
		t.Fatalf("empty path should mean no book")
	}
	move, err := book.Probe("startpos", nil, rand.New(rand.NewSource(1)))
	if err != nil || move != "" {
		t.Fatalf("nil book probe: move=%q err=%v", move, err)
	}
}
