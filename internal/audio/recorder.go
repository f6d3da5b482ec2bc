//go:build voice

package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Recorder reads the default input device through portaudio.
type Recorder struct {
	mu sync.Mutex
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() error {
	return portaudio.Terminate()
}

// Record waits up to timeout for speech and returns the utterance, capped at
// limit. It returns nil samples when nobody spoke.
func (r *Recorder) Record(ctx context.Context, timeout, limit time.Duration) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := make([]float32, FrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input: %w", err)
	}
	defer stream.Stop()

	gate := NewGate(timeout, limit)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}

		switch gate.Feed(buf) {
		case TimedOut:
			return nil, nil
		case Done:
			return gate.Samples(), nil
		}
	}
}
