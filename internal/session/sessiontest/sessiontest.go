// Package sessiontest provides scripted listeners and recording speakers for
// driving conversations in tests.
package sessiontest

import (
	"context"
	"strings"
	"sync"
	"time"

	"carevox/internal/session"
)

// Script answers Listen calls from a fixed list. An empty string, or running
// out of answers, yields session.ErrNoInput.
type Script struct {
	mu      sync.Mutex
	answers []string
	calls   int
	resume  chan struct{}
}

func NewScript(answers ...string) *Script {
	return &Script{answers: answers, resume: make(chan struct{}, 1)}
}

func (s *Script) Listen(ctx context.Context, _, _ time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.answers) == 0 {
		return "", session.ErrNoInput
	}
	next := s.answers[0]
	s.answers = s.answers[1:]
	if next == "" {
		return "", session.ErrNoInput
	}
	return next, nil
}

// Push appends more answers.
func (s *Script) Push(answers ...string) {
	s.mu.Lock()
	s.answers = append(s.answers, answers...)
	s.mu.Unlock()
}

func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Resume delivers one manual resume signal.
func (s *Script) Resume() {
	select {
	case s.resume <- struct{}{}:
	default:
	}
}

func (s *Script) WaitResume(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.resume:
		return nil
	}
}

// Recorder is a session.Speaker that keeps everything it was asked to say.
type Recorder struct {
	mu    sync.Mutex
	lines []string
	// OnSpeak, when set, runs after each chunk is recorded.
	OnSpeak func(text string)
}

func (r *Recorder) Speak(_ context.Context, text string) error {
	r.mu.Lock()
	r.lines = append(r.lines, text)
	hook := r.OnSpeak
	r.mu.Unlock()

	if hook != nil {
		hook(text)
	}
	return nil
}

func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *Recorder) Text() string {
	return strings.Join(r.Lines(), " ")
}

// Said reports whether any chunk contains sub.
func (r *Recorder) Said(sub string) bool {
	return strings.Contains(r.Text(), sub)
}

// Count reports how many chunks contain sub.
func (r *Recorder) Count(sub string) int {
	n := 0
	for _, l := range r.Lines() {
		if strings.Contains(l, sub) {
			n++
		}
	}
	return n
}
