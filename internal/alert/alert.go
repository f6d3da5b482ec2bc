// Package alert notifies the emergency contact.
package alert

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"unicode"

	"carevox/internal/health"
	"carevox/pkg/protocol"
)

const (
	Shard = "CAREVOX"
	Hub   = "HUB"
)

var ErrRejected = errors.New("alert rejected by hub")

// Log only records the alert. It is the notifier used when no hub is
// configured.
type Log struct{}

func (Log) Alert(_ context.Context, c health.Contact) error {
	log.Warn("EMERGENCY: contact must be called", "name", c.Name, "phone", c.Phone)
	return nil
}

// Transceiver is the part of protocol.Protocol the hub notifier needs.
type Transceiver interface {
	TransmitReceive(ctx context.Context, m protocol.Message) (*protocol.Message, error)
}

// HubNotifier asks the hub to place a call and waits for its answer. The
// wait is bounded by the caller's context.
type HubNotifier struct {
	ptcl Transceiver
}

func NewHubNotifier(ptcl Transceiver) *HubNotifier {
	return &HubNotifier{ptcl: ptcl}
}

func (h *HubNotifier) Alert(ctx context.Context, c health.Contact) error {
	_ = Log{}.Alert(ctx, c)

	digits := onlyDigits(c.Phone)
	if digits == "" {
		return fmt.Errorf("contact %q has no dialable number", c.Name)
	}

	resp, err := h.ptcl.TransmitReceive(ctx, CallFrame(digits))
	if err != nil {
		return fmt.Errorf("call contact: %w", err)
	}
	if !resp.IsOK() {
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(append([]string{resp.Noun}, resp.Args...), " "))
	}

	log.Info("Hub acknowledged emergency call", "name", c.Name)
	return nil
}

// CallFrame is HUB:CALL:CONTACT:<digits>:CAREVOX once transmitted.
func CallFrame(digits string) protocol.Message {
	return protocol.Message{To: Hub, Verb: "CALL", Noun: "CONTACT", Args: []string{digits}}
}

func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
