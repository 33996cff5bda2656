package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Transport carries newline-delimited UCI text to and from an engine.
// Send ships one command without its trailing newline. Recv yields one
// trimmed line at a time; a context cancelled mid-Recv abandons the wait
// without losing lines that arrive later.
type Transport interface {
	Send(line string) error
	Recv(ctx context.Context) (string, error)
	Close() error
}

const recvBufferLines = 256

// ProcessTransport speaks UCI over the stdio pipes of a local engine
// process.
type ProcessTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex

	lines chan string
	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// StartProcess launches the engine binary and begins pumping its stdout.
func StartProcess(binaryPath string, args ...string) (*ProcessTransport, error) {
	cmd := exec.Command(binaryPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	p := &ProcessTransport{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, recvBufferLines),
	}
	go p.pump(stdout)
	return p, nil
}

func (p *ProcessTransport) pump(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	// Deep MultiPV info lines overflow the default scanner buffer.
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
	for scanner.Scan() {
		p.lines <- strings.TrimSpace(scanner.Text())
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	p.errMu.Lock()
	p.err = err
	p.errMu.Unlock()
	close(p.lines)
}

func (p *ProcessTransport) Send(line string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := io.WriteString(p.stdin, line+"\n")
	return err
}

func (p *ProcessTransport) Recv(ctx context.Context) (string, error) {
	select {
	case line, ok := <-p.lines:
		if !ok {
			return "", p.readErr()
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *ProcessTransport) readErr() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err != nil {
		return p.err
	}
	return io.EOF
}

// Close kills the process without a grace period. Callers wanting a
// clean shutdown send "quit" first.
func (p *ProcessTransport) Close() error {
	p.closeOnce.Do(func() {
		p.stdin.Close()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.cmd.Wait()
	})
	return nil
}
