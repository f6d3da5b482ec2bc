package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"Hello.", []string{"Hello."}},
		{"Hello there. How are you?  Fine!", []string{"Hello there.", "How are you?", "Fine!"}},
		{"Take 2.5 pills... then rest", []string{"Take 2.5 pills...", "then rest"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitSentences(tt.in), tt.in)
	}
}

func TestHistory_DropsOldest(t *testing.T) {
	h := NewHistory(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		h.Add(RoleUser, s)
	}

	require.Equal(t, 3, h.Len())
	last := h.Last(0)
	assert.Equal(t, "c", last[0].Content)
	assert.Equal(t, "e", last[2].Content)

	two := h.Last(2)
	assert.Equal(t, []Entry{{RoleUser, "d"}, {RoleUser, "e"}}, two)
}

type recordingSpeaker struct {
	mu     sync.Mutex
	chunks []string
	fail   bool
}

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, text)
	if s.fail {
		return errors.New("audio device gone")
	}
	return nil
}

func TestRenderer_SplitsAndRecords(t *testing.T) {
	sp := &recordingSpeaker{}
	h := NewHistory(10)
	r := NewRenderer(sp, h, nil)

	r.Say(context.Background(), "First one. Second one!")

	assert.Equal(t, []string{"First one.", "Second one!"}, sp.chunks)
	require.Equal(t, 1, h.Len())
	assert.Equal(t, Entry{RoleAssistant, "First one. Second one!"}, h.Last(1)[0])
}

func TestRenderer_SpeakerFailureIsNotFatal(t *testing.T) {
	sp := &recordingSpeaker{fail: true}
	r := NewRenderer(sp, NewHistory(10), nil)

	r.Say(context.Background(), "One. Two.")
	assert.Len(t, sp.chunks, 2)
}

func TestContext_Touch(t *testing.T) {
	c := NewContext(DefaultKnobs(), 0)
	assert.NotEmpty(t, c.ID)
	assert.True(t, c.LastInteraction().IsZero())

	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.Local)
	c.Touch(now)
	assert.Equal(t, now, c.LastInteraction())
	assert.Equal(t, 10*time.Second, c.Knobs.ListenTimeout)
}
