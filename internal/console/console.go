// Package console is the text front end: it listens on a line-oriented
// reader and speaks by writing to a terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"carevox/internal/session"
)

// ErrClosed is returned once the input reached EOF.
var ErrClosed = errors.New("console input closed")

const (
	userPrompt = "You: "
	botPrefix  = "CareVox: "
)

type Console struct {
	out   io.Writer
	mu    sync.Mutex
	lines chan string
	done  chan struct{}
	stop  chan struct{}
	once  sync.Once
}

// New starts reading in. The reader goroutine exits at EOF, on a read error,
// or after Close once it has no pending line.
func New(in io.Reader, out io.Writer) *Console {
	c := &Console{
		out:   out,
		lines: make(chan string),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
	go c.read(in)
	return c
}

func (c *Console) read(in io.Reader) {
	defer close(c.done)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case c.lines <- sc.Text():
		case <-c.stop:
			return
		}
	}
}

// Close stops delivering lines. A read already blocked on in is not
// interrupted.
func (c *Console) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

// Done is closed when the input is exhausted.
func (c *Console) Done() <-chan struct{} {
	return c.done
}

// Listen waits up to timeout for one line. A blank line counts as silence.
func (c *Console) Listen(ctx context.Context, timeout, _ time.Duration) (string, error) {
	_ = c.write(userPrompt)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrClosed
	case <-timer.C:
		_ = c.write("\n")
		return "", session.ErrNoInput
	case line := <-c.lines:
		if line == "" {
			return "", session.ErrNoInput
		}
		return line, nil
	}
}

// WaitResume blocks until the user presses Enter.
func (c *Console) WaitResume(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case <-c.lines:
		return nil
	}
}

func (c *Console) Speak(_ context.Context, text string) error {
	return c.write(botPrefix + text + "\n")
}

func (c *Console) write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprint(c.out, s); err != nil {
		return fmt.Errorf("write console: %w", err)
	}
	return nil
}
