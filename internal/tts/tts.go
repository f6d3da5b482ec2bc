// Package tts speaks text aloud.
package tts

import "sync"

const (
	DefaultRate   = 150
	DefaultVolume = 0.9
)

// Settings holds the speech rate in words per minute and the volume in
// [0, 1]. It is safe for concurrent use.
type Settings struct {
	mu     sync.Mutex
	rate   int
	volume float64
}

func NewSettings(rate int, volume float64) *Settings {
	s := &Settings{rate: DefaultRate, volume: DefaultVolume}
	s.SetRate(rate)
	s.SetVolume(volume)
	return s
}

func (s *Settings) Rate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// SetRate ignores non-positive rates.
func (s *Settings) SetRate(rate int) {
	if rate <= 0 {
		return
	}
	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()
}

func (s *Settings) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetVolume clamps to [0, 1].
func (s *Settings) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = min(max(v, 0), 1)
	s.mu.Unlock()
}
