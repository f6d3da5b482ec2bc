package session

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

var sentenceEnd = regexp.MustCompile(`[.!?]+\s+`)

// SplitSentences cuts text after sentence-ending punctuation that is
// followed by whitespace. Empty chunks are dropped.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// Renderer sends text to a Speaker one sentence at a time and records it in
// the history. Calls are serialized.
type Renderer struct {
	mu      sync.Mutex
	speaker Speaker
	history *History
	pause   time.Duration
	logger  *slog.Logger
}

func NewRenderer(speaker Speaker, history *History, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{speaker: speaker, history: history, logger: logger}
}

// SetPause sets the gap between sentences.
func (r *Renderer) SetPause(d time.Duration) {
	r.mu.Lock()
	r.pause = d
	r.mu.Unlock()
}

func (r *Renderer) Speaker() Speaker {
	return r.speaker
}

// Say renders text. A failing Speaker is logged and the remaining chunks are
// still attempted; Say itself never fails.
func (r *Renderer) Say(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, chunk := range SplitSentences(text) {
		if i > 0 && r.pause > 0 {
			time.Sleep(r.pause)
		}
		if err := r.speaker.Speak(ctx, chunk); err != nil {
			r.logger.Error("Failed to render", "text", chunk, "err", err)
		}
	}

	if r.history != nil {
		r.history.Add(RoleAssistant, text)
	}
	r.logger.Info("Assistant spoke", "text", text)
}
