package uci

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const (
	wsDialTimeout  = 10 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsReadLimit    = 1 << 20
)

// WSTransport speaks UCI over a websocket bridge, one command per text
// frame. Bridges batch several reply lines into a single frame, so
// received frames are split on newlines before delivery.
type WSTransport struct {
	conn *websocket.Conn

	lines chan string
	errMu sync.Mutex
	err   error

	stop      context.CancelFunc
	closeOnce sync.Once
}

// DialWS connects to a websocket UCI bridge and begins pumping frames.
func DialWS(ctx context.Context, url string) (*WSTransport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("dial engine bridge: %w", err)
	}
	conn.SetReadLimit(wsReadLimit)

	pumpCtx, stop := context.WithCancel(context.Background())
	w := &WSTransport{
		conn:  conn,
		lines: make(chan string, recvBufferLines),
		stop:  stop,
	}
	go w.pump(pumpCtx)
	return w, nil
}

func (w *WSTransport) pump(ctx context.Context) {
	for {
		_, data, err := w.conn.Read(ctx)
		if err != nil {
			w.finish(err)
			return
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			select {
			case w.lines <- line:
			case <-ctx.Done():
				w.finish(ctx.Err())
				return
			}
		}
	}
}

func (w *WSTransport) finish(err error) {
	w.errMu.Lock()
	w.err = err
	w.errMu.Unlock()
	close(w.lines)
}

func (w *WSTransport) Send(line string) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return w.conn.Write(ctx, websocket.MessageText, []byte(line))
}

func (w *WSTransport) Recv(ctx context.Context) (string, error) {
	select {
	case line, ok := <-w.lines:
		if !ok {
			return "", w.readErr()
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (w *WSTransport) readErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err != nil {
		return w.err
	}
	return context.Canceled
}

func (w *WSTransport) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.stop()
		err = w.conn.Close(websocket.StatusNormalClosure, "done")
	})
	return err
}
