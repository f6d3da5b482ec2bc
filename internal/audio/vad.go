// Package audio captures speech from the microphone and turns it into text.
package audio

import (
	"math"
	"time"
)

const (
	SampleRate = 16000
	// FrameSize is 20ms at SampleRate.
	FrameSize = 320

	frameDuration = 20 * time.Millisecond
)

// GateState is what the gate decided after a frame.
type GateState int

const (
	Waiting GateState = iota
	Speaking
	Done
	TimedOut
)

// Gate is an energy based endpoint detector. It waits up to Timeout for
// speech to start, then collects frames until Silence of quiet or Limit of
// total speech.
type Gate struct {
	Threshold float64
	Silence   time.Duration
	Timeout   time.Duration
	Limit     time.Duration

	waited  time.Duration
	spoken  time.Duration
	quiet   time.Duration
	started bool
	out     []float32
}

func NewGate(timeout, limit time.Duration) *Gate {
	return &Gate{
		Threshold: 0.015,
		Silence:   600 * time.Millisecond,
		Timeout:   timeout,
		Limit:     limit,
	}
}

// Feed adds one FrameSize frame.
func (g *Gate) Feed(frame []float32) GateState {
	loud := frameRMS(frame) > g.Threshold

	if !g.started {
		if !loud {
			g.waited += frameDuration
			if g.Timeout > 0 && g.waited >= g.Timeout {
				return TimedOut
			}
			return Waiting
		}
		g.started = true
	}

	g.out = append(g.out, frame...)
	g.spoken += frameDuration

	if loud {
		g.quiet = 0
	} else {
		g.quiet += frameDuration
		if g.quiet >= g.Silence {
			return Done
		}
	}
	if g.Limit > 0 && g.spoken >= g.Limit {
		return Done
	}
	return Speaking
}

// Samples returns everything collected since speech started.
func (g *Gate) Samples() []float32 {
	return g.out
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
