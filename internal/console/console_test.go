package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"carevox/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestConsole_ListenLines(t *testing.T) {
	out := &syncBuffer{}
	c := New(strings.NewReader("record glucose\n\n145\n"), out)
	ctx := context.Background()

	got, err := c.Listen(ctx, time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "record glucose", got)

	_, err = c.Listen(ctx, time.Second, time.Second)
	assert.ErrorIs(t, err, session.ErrNoInput)

	got, err = c.Listen(ctx, time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "145", got)

	_, err = c.Listen(ctx, time.Second, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
	<-c.Done()

	assert.Equal(t, 4, strings.Count(out.String(), userPrompt))
}

func TestConsole_ListenTimeout(t *testing.T) {
	r, w := io.Pipe()
	c := New(r, io.Discard)
	defer func() {
		_ = w.Close()
		<-c.Done()
	}()

	_, err := c.Listen(context.Background(), 20*time.Millisecond, time.Second)
	assert.ErrorIs(t, err, session.ErrNoInput)
}

func TestConsole_ListenCancelled(t *testing.T) {
	r, w := io.Pipe()
	c := New(r, io.Discard)
	defer func() {
		_ = w.Close()
		<-c.Done()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Listen(ctx, time.Second, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsole_WaitResumeOnEnter(t *testing.T) {
	r, w := io.Pipe()
	c := New(r, io.Discard)

	errc := make(chan error, 1)
	go func() { errc <- c.WaitResume(context.Background()) }()

	_, err := io.WriteString(w, "\n")
	require.NoError(t, err)
	require.NoError(t, <-errc)

	require.NoError(t, w.Close())
	<-c.Done()
}

func TestConsole_Speak(t *testing.T) {
	out := &syncBuffer{}
	c := New(strings.NewReader(""), out)
	<-c.Done()

	require.NoError(t, c.Speak(context.Background(), "Hello User."))
	assert.Equal(t, "CareVox: Hello User.\n", out.String())
}

func TestConsole_CloseReleasesReader(t *testing.T) {
	c := New(strings.NewReader("unread line\n"), io.Discard)
	require.NoError(t, c.Close())
	<-c.Done()
}
