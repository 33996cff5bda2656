// Package lookup queries a remote evaluation service for positions the
// local engine cannot score, typically as a fallback for hints.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrNotFound means the service has no stored evaluation for the position.
var ErrNotFound = errors.New("position not in evaluation database")

// Line is a single principal variation from the evaluation service.
type Line struct {
	// Moves holds the variation in UCI form, best move first.
	Moves []string
	// EvalCP is the score in centipawns from White's point of view.
	// Mate scores are folded to +/-30000 to match engine output.
	EvalCP int
	// MateIn is the signed distance to mate, zero when not a mate line.
	MateIn int
}

// Evaluation is a cached cloud evaluation of one position.
type Evaluation struct {
	FEN   string
	Depth int
	Lines []Line
}

// BestMove returns the first move of the top line, or "" when empty.
func (e *Evaluation) BestMove() string {
	if e == nil || len(e.Lines) == 0 || len(e.Lines[0].Moves) == 0 {
		return ""
	}
	return e.Lines[0].Moves[0]
}

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// evalResponse mirrors the service wire format: one object per position
// with a "pvs" array whose entries carry either "cp" or "mate".
type evalResponse struct {
	FEN   string `json:"fen"`
	Depth int    `json:"depth"`
	PVs   []struct {
		Moves string `json:"moves"`
		CP    *int   `json:"cp,omitempty"`
		Mate  *int   `json:"mate,omitempty"`
	} `json:"pvs"`
}

// Evaluate fetches the stored evaluation for fen with up to multiPV lines.
// Returns ErrNotFound when the service has never analyzed the position.
func (c *Client) Evaluate(ctx context.Context, fen string, multiPV int) (*Evaluation, error) {
	if strings.TrimSpace(fen) == "" {
		return nil, errors.New("empty fen")
	}
	if multiPV < 1 {
		multiPV = 1
	}

	q := url.Values{}
	q.Set("fen", fen)
	q.Set("multiPv", fmt.Sprintf("%d", multiPV))

	var wire evalResponse
	if err := c.getJSON(ctx, "/eval?"+q.Encode(), &wire); err != nil {
		return nil, err
	}
	return convertEvaluation(&wire), nil
}

func convertEvaluation(wire *evalResponse) *Evaluation {
	const mateValue = 30000
	ev := &Evaluation{FEN: wire.FEN, Depth: wire.Depth}
	for _, pv := range wire.PVs {
		line := Line{Moves: strings.Fields(pv.Moves)}
		switch {
		case pv.Mate != nil:
			line.MateIn = *pv.Mate
			if *pv.Mate >= 0 {
				line.EvalCP = mateValue
			} else {
				line.EvalCP = -mateValue
			}
		case pv.CP != nil:
			line.EvalCP = *pv.CP
		}
		ev.Lines = append(ev.Lines, line)
	}
	return ev
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status == fasthttp.StatusNotFound {
			return ErrNotFound
		}
		if status < 200 || status >= 300 {
			body := string(resp.Body())
			err := fmt.Errorf("eval api error: status=%d body=%s", status, truncate(body, 512))
			if attempt == attempts || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
