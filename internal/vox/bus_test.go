package vox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"carevox/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// peer is the far side of the bus: it sends whatever is put on out and
// collects what the assistant writes.
type peer struct {
	out chan any
	in  chan BusMessage
}

func startPeer(t *testing.T) (*peer, string) {
	t.Helper()
	p := &peer{out: make(chan any, 8), in: make(chan BusMessage, 8)}
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				var m BusMessage
				if err := conn.ReadJSON(&m); err != nil {
					return
				}
				p.in <- m
			}
		}()
		for {
			select {
			case v, ok := <-p.out:
				if !ok {
					return
				}
				if raw, isRaw := v.(string); isRaw {
					_ = conn.WriteMessage(websocket.TextMessage, []byte(raw))
				} else {
					_ = conn.WriteJSON(v)
				}
			case <-gone:
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return p, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func run(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errc)
	})
}

func (p *peer) next(t *testing.T) BusMessage {
	t.Helper()
	select {
	case m := <-p.in:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message from assistant")
		return BusMessage{}
	}
}

func TestBus_TextRoundTrip(t *testing.T) {
	p, url := startPeer(t)
	b, err := NewBus(url, BusOptions{})
	require.NoError(t, err)
	run(t, b)

	p.out <- BusMessage{From: "kitchen", To: Name, Kind: KindText, Content: " record glucose "}
	p.out <- BusMessage{From: "kitchen", To: "other-shard", Kind: KindText, Content: "not for us"}
	p.out <- "{not json"
	p.out <- BusMessage{From: "kitchen", Kind: KindText, Content: "145"}

	ctx := context.Background()
	text, err := b.Listen(ctx, 2*time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "record glucose", text)

	text, err = b.Listen(ctx, 2*time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "145", text)

	require.NoError(t, b.Speak(ctx, "I've recorded your morning glucose as 145."))
	m := p.next(t)
	assert.Equal(t, BusMessage{From: Name, To: "kitchen", Kind: KindReply, Content: "I've recorded your morning glucose as 145."}, m)
}

func TestBus_ListenTimeout(t *testing.T) {
	_, url := startPeer(t)
	b, err := NewBus(url, BusOptions{})
	require.NoError(t, err)
	run(t, b)

	_, err = b.Listen(context.Background(), 20*time.Millisecond, time.Second)
	assert.ErrorIs(t, err, session.ErrNoInput)
}

type fakeTranscriber struct{ samples int }

func (f *fakeTranscriber) Transcribe(_ context.Context, pcm []float32) (string, error) {
	f.samples = len(pcm)
	return "record sleep", nil
}

func wavBytes(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, 1600),
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestBus_AudioIsTranscribed(t *testing.T) {
	p, url := startPeer(t)
	tr := &fakeTranscriber{}
	b, err := NewBus(url, BusOptions{Transcriber: tr})
	require.NoError(t, err)
	run(t, b)

	p.out <- BusMessage{From: "phone", Kind: KindAudio, Audio: wavBytes(t), Format: "audio/wav"}
	text, err := b.Listen(context.Background(), 2*time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "record sleep", text)
	assert.Equal(t, 1600, tr.samples)
}

func TestBus_AudioWithoutTranscriberIsSilence(t *testing.T) {
	p, url := startPeer(t)
	b, err := NewBus(url, BusOptions{})
	require.NoError(t, err)
	run(t, b)

	p.out <- BusMessage{From: "phone", Kind: KindAudio, Audio: []byte("RIFF")}
	_, err = b.Listen(context.Background(), 2*time.Second, time.Second)
	assert.ErrorIs(t, err, session.ErrNoInput)
}

func TestBus_ResumeAndStop(t *testing.T) {
	p, url := startPeer(t)
	var stopped atomic.Bool
	b, err := NewBus(url, BusOptions{OnStop: func() { stopped.Store(true) }})
	require.NoError(t, err)
	run(t, b)

	p.out <- BusMessage{From: "ctl", Kind: KindResume}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.WaitResume(ctx))

	p.out <- BusMessage{From: "ctl", Kind: KindStop}
	assert.Eventually(t, stopped.Load, 2*time.Second, 10*time.Millisecond)
}

func TestBus_PeerGoneClosesListener(t *testing.T) {
	p, url := startPeer(t)
	b, err := NewBus(url, BusOptions{})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- b.Run(context.Background()) }()

	close(p.out)
	assert.Error(t, <-errc)
	_, err = b.Listen(context.Background(), time.Second, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, b.Close())
}

func TestBusMessage_JSON(t *testing.T) {
	data, err := json.Marshal(BusMessage{From: Name, To: "kitchen", Kind: KindReply, Content: "Hi."})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"carevox","to":"kitchen","kind":"reply","content":"Hi."}`, string(data))
}
