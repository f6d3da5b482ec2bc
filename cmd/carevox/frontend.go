package main

import (
	"context"
	"errors"
	"io"
	log "log/slog"
	"os"
	"time"

	"carevox/internal/config"
	"carevox/internal/console"
	"carevox/internal/session"
	"carevox/internal/vox"
)

// frontEnd is what a mode provides to the conversation.
type frontEnd struct {
	listener session.Listener
	speaker  session.Speaker
	// tuner is nil when the output has no adjustable voice.
	tuner session.VoiceTuner
	// closed fires when input ends for good.
	closed <-chan struct{}
	close  func()

	sentencePause time.Duration
	itemPause     time.Duration
	turnPause     time.Duration
}

// withResume lets a listener without its own resume signal use one from
// elsewhere, such as the terminal.
type withResume struct {
	session.Listener
	session.Resumer
}

func openFrontEnd(ctx context.Context, cfg *config.Config, cancel context.CancelFunc) (*frontEnd, error) {
	switch cfg.Mode {
	case config.ModeText:
		c := console.New(os.Stdin, os.Stdout)
		return &frontEnd{
			listener: c,
			speaker:  c,
			closed:   c.Done(),
			close:    func() { _ = c.Close() },
		}, nil

	case config.ModeBus:
		tr, closeTr, err := newTranscriber(cfg)
		if err != nil {
			log.Warn("Bus audio disabled", "err", err)
		}
		bus, err := vox.NewBus(cfg.BusURL, vox.BusOptions{Transcriber: tr, OnStop: cancel})
		if err != nil {
			closeTr()
			return nil, err
		}
		go func() {
			if err := bus.Run(ctx); err != nil {
				log.Error("Bus connection lost", "err", err)
			}
		}()
		return &frontEnd{
			listener: bus,
			speaker:  bus,
			closed:   bus.Done(),
			close: func() {
				_ = bus.Close()
				closeTr()
			},
		}, nil

	case config.ModeVoice:
		fe, err := openVoice(cfg)
		if err != nil {
			return nil, err
		}
		// Enter on the terminal resumes a paused conversation.
		term := console.New(os.Stdin, io.Discard)
		fe.listener = withResume{Listener: fe.listener, Resumer: term}
		closeVoice := fe.close
		fe.close = func() {
			_ = term.Close()
			closeVoice()
		}
		return fe, nil
	}
	return nil, errors.New("unknown mode")
}
