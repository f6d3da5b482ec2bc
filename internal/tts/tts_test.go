package tts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettings(t *testing.T) {
	s := NewSettings(0, 2)
	assert.Equal(t, DefaultRate, s.Rate())
	assert.Equal(t, 1.0, s.Volume())

	s.SetRate(125)
	s.SetVolume(-1)
	assert.Equal(t, 125, s.Rate())
	assert.Equal(t, 0.0, s.Volume())
}
