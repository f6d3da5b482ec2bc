// Package protocol speaks the colon-framed hub protocol over a websocket:
// TO:VERB:NOUN[:ARG...]:FROM, one frame per message, no whitespace.
package protocol

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	VerbOK  = "OK"
	VerbErr = "ERR"
)

var ErrClosed = errors.New("protocol closed")

type PtclConfig struct {
	Shard string
	Url   string
	// Reconn is the delay between reconnect attempts.
	Reconn time.Duration
	// EmitOut receives frames addressed to this shard that nobody is
	// waiting for.
	EmitOut func(*Message)
}

type Protocol struct {
	ws *WebSocket

	shard string

	waiterMu sync.Mutex
	waiter   chan *Message

	emitOut func(*Message)
}

func NewProtocol(cfg PtclConfig) (*Protocol, error) {
	if !isToken(cfg.Shard) {
		return nil, fmt.Errorf("invalid shard name %q", cfg.Shard)
	}
	if cfg.Reconn <= 0 {
		cfg.Reconn = time.Second
	}

	ws, err := NewWebSocket(cfg.Url, cfg.Reconn)
	if err != nil {
		return nil, err
	}

	return &Protocol{
		shard:   cfg.Shard,
		ws:      ws,
		emitOut: cfg.EmitOut,
	}, nil
}

func (ptcl *Protocol) Shard() string {
	return ptcl.shard
}

// Transmit sends m with this shard as the sender.
func (ptcl *Protocol) Transmit(m Message) error {
	m.From = ptcl.shard
	if err := m.Validate(); err != nil {
		return err
	}

	frame := m.String()
	if err := ptcl.ws.Write([]byte(frame)); err != nil {
		log.Error("Failed to transmit", "msg", frame, "err", err)
		return err
	}
	return nil
}

// TransmitReceive sends m and waits for the next frame addressed to this
// shard. Run must be active for the reply to arrive.
func (ptcl *Protocol) TransmitReceive(ctx context.Context, m Message) (*Message, error) {
	// The waiter goes in first so a fast reply is not handed to EmitOut.
	w := ptcl.installWaiter()
	defer ptcl.clearWaiter(w)

	if err := ptcl.Transmit(m); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for reply to %s: %w", m.Verb, ctx.Err())
	case resp := <-w:
		return resp, nil
	}
}

// Run reads frames until ctx is done, reconnecting when the link drops.
func (ptcl *Protocol) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = ptcl.ws.Close() })
	defer stop()

	for {
		in := ptcl.ws.Read()
		if ctx.Err() != nil {
			return
		}

		switch in.kind {
		case CONN_CLOSE, READ_FAILURE:
			log.Warn("Link lost, reconnecting", "url", ptcl.ws.url, "err", in.err)
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				return
			}
			log.Info("Reconnected", "url", ptcl.ws.url)

		case READ_OK:
			if !ptcl.checkRecipient(in.msg) {
				continue
			}

			msg, err := Parse(string(in.msg))
			if err != nil {
				log.Warn("Failed to parse", "msg", string(in.msg), "err", err)
				continue
			}

			if !ptcl.deliver(msg) && ptcl.emitOut != nil {
				ptcl.emitOut(msg)
			}
		}
	}
}

func (ptcl *Protocol) Close() error {
	return ptcl.ws.Close()
}

func (ptcl *Protocol) installWaiter() chan *Message {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	ptcl.waiter = make(chan *Message, 1)
	return ptcl.waiter
}

func (ptcl *Protocol) clearWaiter(w chan *Message) {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	if ptcl.waiter == w {
		ptcl.waiter = nil
	}
}

// deliver hands msg to the current waiter, if any. The waiter takes one
// frame only.
func (ptcl *Protocol) deliver(msg *Message) bool {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	if ptcl.waiter == nil {
		return false
	}
	ptcl.waiter <- msg
	ptcl.waiter = nil
	return true
}

func (ptcl *Protocol) checkRecipient(msg []byte) bool {
	to, _, _ := strings.Cut(string(msg), ":")
	return to == ptcl.shard || to == "ALL"
}

func Parse(line string) (*Message, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, errors.New("empty message")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		// frames are single-line
		return nil, fmt.Errorf("invalid whitespace present")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return nil, fmt.Errorf("too few fields: got %d, want >= 4", len(parts))
	}

	msg := &Message{
		To:   parts[0],
		Verb: strings.ToUpper(parts[1]),
		Noun: strings.ToUpper(parts[2]),
		Args: append([]string(nil), parts[3:len(parts)-1]...),
		From: parts[len(parts)-1],
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

var (
	tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	hexIDRe = regexp.MustCompile(`^[0-9A-F]{2}$`)
)

func isToken(s string) bool {
	return tokenRe.MatchString(s)
}

func isHexID(s string) bool {
	return hexIDRe.MatchString(strings.ToUpper(s))
}

type Message struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

func (m *Message) Validate() error {
	if !isToken(m.To) && !isHexID(m.To) && m.To != "ALL" {
		return fmt.Errorf("invalid TO token: %q", m.To)
	}
	if !isToken(m.From) && !isHexID(m.From) {
		return fmt.Errorf("invalid FROM token: %q", m.From)
	}
	if !isToken(m.Noun) || !isToken(m.Verb) {
		return fmt.Errorf("invalid NOUN/VERB: %q %q", m.Noun, m.Verb)
	}
	for i, a := range m.Args {
		if !isToken(a) {
			return fmt.Errorf("invalid ARG[%d]: %q", i, a)
		}
	}
	return nil
}

func (m *Message) String() string {
	parts := make([]string, 0, 4+len(m.Args))
	parts = append(parts, m.To, m.Verb, m.Noun)
	parts = append(parts, m.Args...)
	parts = append(parts, m.From)
	return strings.Join(parts, ":")
}

func (m *Message) IsOK() bool {
	return m.Verb == VerbOK
}

// Reply builds the answer to m, addressed back to its sender.
func (m *Message) Reply(verb, noun string, args ...string) Message {
	return Message{To: m.From, Verb: verb, Noun: noun, Args: args, From: m.To}
}
