// Package session holds the per-run conversation context and the contracts
// for the input and output collaborators.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoInput is returned by a Listener when nothing usable was heard before
// the timeout. It is always recoverable.
var ErrNoInput = errors.New("no input")

// Listener acquires one utterance. Implementations must return within
// timeout (plus phraseLimit once speech has started).
type Listener interface {
	Listen(ctx context.Context, timeout, phraseLimit time.Duration) (string, error)
}

// Speaker renders one chunk of text to the user.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Resumer is implemented by listeners that can deliver a manual "continue"
// signal while the conversation is paused.
type Resumer interface {
	WaitResume(ctx context.Context) error
}

// VoiceTuner is implemented by speakers whose rate (words per minute) and
// volume (0..1) can be changed at runtime.
type VoiceTuner interface {
	Rate() int
	SetRate(rate int)
	Volume() float64
	SetVolume(v float64)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Entry struct {
	Role    Role
	Content string
}

const DefaultHistoryCap = 50

// History is an insertion-ordered log of exchanges that drops the oldest
// entries once it holds more than its cap.
type History struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &History{cap: capacity}
}

func (h *History) Add(role Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, Entry{Role: role, Content: content})
	if over := len(h.entries) - h.cap; over > 0 {
		h.entries = append([]Entry(nil), h.entries[over:]...)
	}
}

// Last returns up to n most recent entries, oldest first.
func (h *History) Last(n int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entries
	if n > 0 && len(e) > n {
		e = e[len(e)-n:]
	}
	return append([]Entry(nil), e...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Knobs are the session-scoped listening parameters.
type Knobs struct {
	ListenTimeout       time.Duration
	PhraseTimeLimit     time.Duration
	ConfidenceThreshold float64
}

func DefaultKnobs() Knobs {
	return Knobs{
		ListenTimeout:       10 * time.Second,
		PhraseTimeLimit:     15 * time.Second,
		ConfidenceThreshold: 0.5,
	}
}

// Context is the state of one run of the conversation loop. It is never
// persisted.
type Context struct {
	ID      string
	Knobs   Knobs
	History *History

	mu              sync.Mutex
	lastInteraction time.Time
}

func NewContext(knobs Knobs, historyCap int) *Context {
	return &Context{
		ID:      uuid.NewString(),
		Knobs:   knobs,
		History: NewHistory(historyCap),
	}
}

func (c *Context) Touch(t time.Time) {
	c.mu.Lock()
	c.lastInteraction = t
	c.mu.Unlock()
}

func (c *Context) LastInteraction() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInteraction
}
