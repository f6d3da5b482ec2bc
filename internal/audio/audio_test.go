package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carevox/internal/session"
)

func frame(level float32) []float32 {
	f := make([]float32, FrameSize)
	for i := range f {
		f[i] = level
	}
	return f
}

func TestGate_TimesOutWithoutSpeech(t *testing.T) {
	g := NewGate(100*time.Millisecond, time.Second)
	for range 4 {
		assert.Equal(t, Waiting, g.Feed(frame(0)))
	}
	assert.Equal(t, TimedOut, g.Feed(frame(0)))
	assert.Empty(t, g.Samples())
}

func TestGate_EndsAfterSilence(t *testing.T) {
	g := NewGate(time.Second, 10*time.Second)
	g.Silence = 60 * time.Millisecond

	assert.Equal(t, Waiting, g.Feed(frame(0)))
	assert.Equal(t, Speaking, g.Feed(frame(0.5)))
	assert.Equal(t, Speaking, g.Feed(frame(0)))
	assert.Equal(t, Speaking, g.Feed(frame(0.5)))
	assert.Equal(t, Speaking, g.Feed(frame(0)))
	assert.Equal(t, Speaking, g.Feed(frame(0)))
	assert.Equal(t, Done, g.Feed(frame(0)))
	assert.Len(t, g.Samples(), 6*FrameSize)
}

func TestGate_PhraseLimit(t *testing.T) {
	g := NewGate(time.Second, 60*time.Millisecond)
	assert.Equal(t, Speaking, g.Feed(frame(0.5)))
	assert.Equal(t, Speaking, g.Feed(frame(0.5)))
	assert.Equal(t, Done, g.Feed(frame(0.5)))
}

const sinkInputs = `Sink Input #41
	Driver: PipeWire
	Volume: front-left: 52428 /  80% / -5.81 dB,   front-right: 52428 /  80% / -5.81 dB
	Properties:
		application.name = "Firefox"
Sink Input #57
	Volume: front-left: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "carevox"
Sink Input #bogus
	Volume: 10%
`

func TestParseSinkInputs(t *testing.T) {
	assert.Equal(t, []Stream{
		{ID: 41, Volume: 80, AppName: "Firefox"},
		{ID: 57, Volume: 100, AppName: "carevox"},
	}, parseSinkInputs(sinkInputs))
	assert.Nil(t, parseSinkInputs("no streams"))
}

type fakeMixer struct {
	mu      sync.Mutex
	streams map[int]*Stream
	sets    int
}

func (f *fakeMixer) Streams(context.Context) ([]Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Stream
	for _, s := range f.streams {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeMixer) SetVolume(_ context.Context, id, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[id].Volume = percent
	f.sets++
	return nil
}

func (f *fakeMixer) volume(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[id].Volume
}

func TestDucker_DuckAndRestore(t *testing.T) {
	m := &fakeMixer{streams: map[int]*Stream{
		41: {ID: 41, Volume: 80, AppName: "Firefox"},
		42: {ID: 42, Volume: 20, AppName: "TV"},
		57: {ID: 57, Volume: 100, AppName: "carevox"},
	}}
	d := NewDucker(m, []string{"carevox"}, 10)
	ctx := context.Background()

	require.NoError(t, d.DuckOthers(ctx, 0.25, 30*time.Millisecond))
	assert.Equal(t, 20, m.volume(41))
	assert.Equal(t, 10, m.volume(42))
	assert.Equal(t, 100, m.volume(57))

	// A second duck is a no-op.
	sets := m.sets
	require.NoError(t, d.DuckOthers(ctx, 0.25, 0))
	assert.Equal(t, sets, m.sets)

	require.NoError(t, d.UnduckOthers(ctx, 0))
	assert.Equal(t, 80, m.volume(41))
	assert.Equal(t, 20, m.volume(42))
}

type fakeCapture struct {
	pcm []float32
	err error
}

func (f fakeCapture) Record(context.Context, time.Duration, time.Duration) ([]float32, error) {
	return f.pcm, f.err
}

type fakeSTT struct{ text string }

func (f fakeSTT) Transcribe(context.Context, []float32) (string, error) {
	return f.text, nil
}

func TestListener(t *testing.T) {
	ctx := context.Background()
	cued := 0

	l := &Listener{Capture: fakeCapture{pcm: frame(0.5)}, Transcribe: fakeSTT{" record glucose "}, Cue: func() { cued++ }}
	text, err := l.Listen(ctx, time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "record glucose", text)
	assert.Equal(t, 1, cued)

	l = &Listener{Capture: fakeCapture{}, Transcribe: fakeSTT{"ignored"}}
	_, err = l.Listen(ctx, time.Second, time.Second)
	assert.ErrorIs(t, err, session.ErrNoInput)

	l = &Listener{Capture: fakeCapture{pcm: frame(0.5)}, Transcribe: fakeSTT{""}}
	_, err = l.Listen(ctx, time.Second, time.Second)
	assert.ErrorIs(t, err, session.ErrNoInput)

	l = &Listener{Capture: fakeCapture{err: errors.New("device gone")}, Transcribe: fakeSTT{}}
	_, err = l.Listen(ctx, time.Second, time.Second)
	assert.ErrorContains(t, err, "device gone")
}
