// Package vox connects the assistant to a message bus over a websocket. Peers
// send text or recorded audio and receive the assistant's replies.
package vox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"carevox/internal/session"
	"carevox/pkg/audioconv"
)

const Name = "carevox"

const (
	KindText   = "text"
	KindAudio  = "audio"
	KindResume = "resume"
	KindStop   = "stop"
	KindReply  = "reply"
)

var (
	ErrClosed    = errors.New("bus connection closed")
	errMalformed = errors.New("malformed bus message")
)

type BusMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content,omitempty"`
	Audio   []byte `json:"audio,omitempty"`
	// Format is the audio container or MIME type, e.g. "wav".
	Format string `json:"format,omitempty"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32) (string, error)
}

type BusOptions struct {
	// Transcriber handles audio messages; without one they are dropped.
	Transcriber Transcriber
	// OnStop runs when a peer sends a stop message.
	OnStop func()
}

// Bus is a session Listener, Speaker and Resumer backed by one websocket.
// Run must be active for input to arrive.
type Bus struct {
	conn *websocket.Conn
	opts BusOptions

	writeMu sync.Mutex

	peerMu sync.Mutex
	peer   string

	in     chan string
	resume chan struct{}
	done   chan struct{}
}

func NewBus(wsURL string, opts BusOptions) (*Bus, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	log.Info("Connected to bus", "url", wsURL)
	return &Bus{
		conn:   conn,
		opts:   opts,
		in:     make(chan string, 8),
		resume: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

// Run reads messages until the connection fails or ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	defer close(b.done)
	stop := context.AfterFunc(ctx, func() { _ = b.conn.Close() })
	defer stop()

	for {
		m, err := b.read()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, errMalformed) {
				log.Warn("Dropping malformed bus message", "err", err)
				continue
			}
			return fmt.Errorf("bus read: %w", err)
		}
		b.dispatch(ctx, m)
	}
}

// Done is closed when Run returns.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

func (b *Bus) Close() error {
	return b.conn.Close()
}

func (b *Bus) read() (*BusMessage, error) {
	_, data, err := b.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var m BusMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return &m, nil
}

func (b *Bus) dispatch(ctx context.Context, m *BusMessage) {
	if m.To != "" && m.To != Name {
		return
	}
	if m.From != "" {
		b.peerMu.Lock()
		b.peer = m.From
		b.peerMu.Unlock()
	}

	switch m.Kind {
	case KindText, "":
		b.push(ctx, m.Content)

	case KindAudio:
		text, err := b.transcribe(ctx, m)
		if err != nil {
			log.Error("Failed to transcribe bus audio", "from", m.From, "err", err)
			// Counts as a turn with nothing heard.
			text = ""
		}
		b.push(ctx, text)

	case KindResume:
		select {
		case b.resume <- struct{}{}:
		default:
		}

	case KindStop:
		log.Info("Stop requested over bus", "from", m.From)
		if b.opts.OnStop != nil {
			b.opts.OnStop()
		}

	default:
		log.Warn("Unknown bus message kind", "kind", m.Kind, "from", m.From)
	}
}

func (b *Bus) push(ctx context.Context, text string) {
	select {
	case b.in <- text:
	case <-ctx.Done():
	}
}

func (b *Bus) transcribe(ctx context.Context, m *BusMessage) (string, error) {
	if b.opts.Transcriber == nil {
		return "", errors.New("no transcriber configured")
	}
	pcm, err := audioconv.Decode(ctx, m.Audio, m.Format, audioconv.Options{})
	if err != nil {
		return "", err
	}
	return b.opts.Transcriber.Transcribe(ctx, pcm)
}

// Listen returns the next utterance from any peer.
func (b *Bus) Listen(ctx context.Context, timeout, _ time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-b.done:
		return "", ErrClosed
	case <-timer.C:
		return "", session.ErrNoInput
	case text := <-b.in:
		text = strings.TrimSpace(text)
		if text == "" {
			return "", session.ErrNoInput
		}
		return text, nil
	}
}

func (b *Bus) WaitResume(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrClosed
	case <-b.resume:
		return nil
	}
}

// Speak replies to the peer that spoke last.
func (b *Bus) Speak(_ context.Context, text string) error {
	b.peerMu.Lock()
	to := b.peer
	b.peerMu.Unlock()

	return b.Write(&BusMessage{From: Name, To: to, Kind: KindReply, Content: text})
}

func (b *Bus) Write(m *BusMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteMessage(websocket.TextMessage, data)
}
