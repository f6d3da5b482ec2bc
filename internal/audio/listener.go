package audio

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"carevox/internal/session"
)

type Capturer interface {
	Record(ctx context.Context, timeout, limit time.Duration) ([]float32, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32) (string, error)
}

// Listener turns one spoken utterance into text. Other applications are
// ducked while it records and Cue, when set, plays before listening.
type Listener struct {
	Capture    Capturer
	Transcribe Transcriber
	Ducker     *Ducker
	Cue        func()
}

func (l *Listener) Listen(ctx context.Context, timeout, limit time.Duration) (string, error) {
	if l.Cue != nil {
		l.Cue()
	}

	if l.Ducker != nil {
		if err := l.Ducker.DuckOthers(ctx, 0.3, 200*time.Millisecond); err != nil {
			log.Debug("Ducking failed", "err", err)
		}
		defer func() {
			if err := l.Ducker.UnduckOthers(context.WithoutCancel(ctx), 200*time.Millisecond); err != nil {
				log.Debug("Unducking failed", "err", err)
			}
		}()
	}

	pcm, err := l.Capture.Record(ctx, timeout, limit)
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}
	if len(pcm) == 0 {
		return "", session.ErrNoInput
	}
	log.Debug("Recorded", "samples", len(pcm))

	text, err := l.Transcribe.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", session.ErrNoInput
	}
	log.Info("Transcribed", "text", text)
	return text, nil
}
