// Package conversation runs the top-level listen, classify and dispatch loop.
package conversation

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"runtime/debug"
	"strings"
	"time"

	"carevox/internal/dialog"
	"carevox/internal/nlu"
	"carevox/internal/reminder"
	"carevox/internal/session"
	"carevox/internal/storage"
	"carevox/internal/trend"
)

const DefaultStallThreshold = 3

const (
	msgStillThere  = "I'm having trouble understanding you. Let me ask a simple question. Are you still there?"
	msgTryAgain    = "Let's try again. You can say 'help' if you need to know what I can do."
	msgPausing     = "Since I can't hear you clearly, I'll pause our conversation. Press Enter or send the resume command when you want to continue."
	msgWelcomeBack = "Welcome back! Let's try again. How can I help you?"
	msgInterrupted = "I understand you want to end our conversation. Take care of yourself. Goodbye."
	msgFatal       = "I encountered an unexpected error and need to shut down. Your data has been saved."
	msgTrendFailed = "I'm having trouble analyzing your health data right now."
	msgFlowFailed  = "I'm sorry, something went wrong. Let's try that again later."
)

// Replier answers utterances that are not commands.
type Replier interface {
	Complete(ctx context.Context, profileSummary string, history []session.Entry, utterance string) string
}

type Deps struct {
	Session  *session.Context
	Listener session.Listener
	Output   *session.Renderer
	Dialog   *dialog.Controller
	Profiles storage.ProfileStore
	Metrics  storage.MetricStore
	Replier  Replier
	Queue    *reminder.Queue
	// Rules defaults to nlu.DefaultCommands.
	Rules []nlu.Rule
	// Resume delivers manual resume signals from outside the listener,
	// such as the control socket.
	Resume <-chan struct{}

	StallThreshold int
	// TurnPause is the gap after each handled turn.
	TurnPause time.Duration
	Now       func() time.Time
}

// State names the phase the loop is in; it is exposed for logging.
type State string

const (
	StateListening   State = "listening"
	StateClassifying State = "classifying"
	StateFlow        State = "dispatch_flow"
	StateReply       State = "dispatch_reply"
	StateTrend       State = "dispatch_trend"
	StateExit        State = "exit"
	StateStalled     State = "stalled"
)

type Loop struct {
	d     Deps
	state State
}

func New(d Deps) *Loop {
	if d.Rules == nil {
		d.Rules = nlu.DefaultCommands
	}
	if d.StallThreshold <= 0 {
		d.StallThreshold = DefaultStallThreshold
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Queue == nil {
		d.Queue = reminder.NewQueue()
	}
	if d.Session == nil {
		d.Session = session.NewContext(session.DefaultKnobs(), session.DefaultHistoryCap)
	}
	return &Loop{d: d, state: StateListening}
}

func (l *Loop) setState(s State) {
	if l.state != s {
		log.Debug("Loop state", "from", l.state, "to", s)
	}
	l.state = s
}

// Run talks with the user until they say goodbye, ctx is cancelled, or an
// unexpected failure occurs. Every way out persists both stores. Only the
// unexpected failure is returned as an error.
func (l *Loop) Run(ctx context.Context) (err error) {
	log.Info("Conversation started", "session", l.d.Session.ID)
	defer func() {
		l.setState(StateExit)
		l.persist(ctx)
		log.Info("Conversation ended", "session", l.d.Session.ID, "err", err)
	}()

	l.say(ctx, l.greeting(ctx))

	failures := 0
	for {
		if ctx.Err() != nil {
			l.farewell(ctx, msgInterrupted)
			return nil
		}

		l.deliverReminders(ctx)

		l.setState(StateListening)
		utterance := l.listen(ctx)
		if ctx.Err() != nil {
			continue
		}

		if utterance == "" {
			failures++
			if failures >= l.d.StallThreshold {
				failures = l.stalled(ctx)
			}
			continue
		}
		failures = 0

		exit, err := l.safeTurn(ctx, utterance)
		if err != nil {
			log.Error("Unrecoverable error", "err", err)
			l.persist(ctx)
			l.farewell(ctx, msgFatal)
			return err
		}
		if exit {
			l.farewell(ctx, l.goodbye(ctx))
			return nil
		}

		l.pause(ctx)
	}
}

func (l *Loop) say(ctx context.Context, text string) {
	l.d.Output.Say(ctx, text)
}

// farewell is spoken even when ctx is already cancelled.
func (l *Loop) farewell(ctx context.Context, text string) {
	l.say(context.WithoutCancel(ctx), text)
}

func (l *Loop) listen(ctx context.Context) string {
	k := l.d.Session.Knobs
	text, err := l.d.Listener.Listen(ctx, k.ListenTimeout, k.PhraseTimeLimit)
	if err != nil {
		if !errors.Is(err, session.ErrNoInput) && ctx.Err() == nil {
			log.Warn("Listen failed", "err", err)
		}
		return ""
	}
	return strings.TrimSpace(text)
}

func (l *Loop) pause(ctx context.Context) {
	if l.d.TurnPause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(l.d.TurnPause):
	}
}

func (l *Loop) deliverReminders(ctx context.Context) {
	for _, text := range l.d.Queue.Drain() {
		log.Info("Delivering reminder", "text", text)
		l.say(ctx, text)
	}
}

func (l *Loop) profileName(ctx context.Context) string {
	p, err := l.d.Profiles.Profile(context.WithoutCancel(ctx))
	if err != nil || p.Name == "" {
		return "there"
	}
	return p.Name
}

func (l *Loop) greeting(ctx context.Context) string {
	return fmt.Sprintf("Hello %s. I'm your health assistant. I'm here to help you manage your health. How are you feeling today?", l.profileName(ctx))
}

func (l *Loop) goodbye(ctx context.Context) string {
	return fmt.Sprintf("Goodbye, %s. I'll be here when you need me. Have a good day.", l.profileName(ctx))
}

// stalled handles too many silent turns in a row and returns the new
// failure count.
func (l *Loop) stalled(ctx context.Context) int {
	l.setState(StateStalled)
	l.say(ctx, msgStillThere)

	if answer := l.listen(ctx); answer != "" {
		l.d.Session.History.Add(session.RoleUser, answer)
		l.say(ctx, msgTryAgain)
		return 1
	}
	if ctx.Err() != nil {
		return 0
	}

	l.say(ctx, msgPausing)
	log.Info("Conversation paused, waiting for resume")
	if err := l.waitResume(ctx); err != nil {
		return 0
	}
	log.Info("Conversation resumed")
	l.say(ctx, msgWelcomeBack)
	return 0
}

// waitResume blocks until the listener or the Resume channel signals, or ctx
// is done.
func (l *Loop) waitResume(ctx context.Context) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fromListener := make(chan error, 1)
	if r, ok := l.d.Listener.(session.Resumer); ok {
		go func() { fromListener <- r.WaitResume(wctx) }()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.d.Resume:
		return nil
	case err := <-fromListener:
		return err
	}
}

// safeTurn runs one turn and turns a panic into an error.
func (l *Loop) safeTurn(ctx context.Context, utterance string) (exit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in turn", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.turn(ctx, utterance)
}

func (l *Loop) turn(ctx context.Context, utterance string) (bool, error) {
	l.d.Session.Touch(l.d.Now())
	history := l.d.Session.History.Last(nlu.HistoryWindow)
	l.d.Session.History.Add(session.RoleUser, utterance)

	l.setState(StateClassifying)
	cmd := nlu.Classify(l.d.Rules, utterance)
	log.Info("User said", "text", utterance, "command", cmd)

	switch {
	case cmd == nlu.Exit:
		return true, nil

	case cmd == nlu.HealthData:
		l.setState(StateTrend)
		recs, err := l.d.Metrics.Recent(ctx, trend.Window)
		if err != nil {
			log.Error("Failed to load health data", "err", err)
			l.say(ctx, msgTrendFailed)
			return false, nil
		}
		l.say(ctx, trend.Summarize(recs))

	case dialog.Handles(cmd):
		l.setState(StateFlow)
		err := l.d.Dialog.Run(ctx, cmd)
		switch {
		case errors.Is(err, dialog.ErrInterrupted):
			log.Info("Flow interrupted", "command", cmd)
			return false, nil
		case err != nil:
			log.Error("Flow failed", "command", cmd, "err", err)
			l.say(ctx, msgFlowFailed)
		}
		l.flush(ctx)

	default:
		l.setState(StateReply)
		summary := ""
		if p, err := l.d.Profiles.Profile(ctx); err == nil {
			summary = p.Summary()
		} else {
			log.Warn("Reply without profile context", "err", err)
		}
		l.say(ctx, l.d.Replier.Complete(ctx, summary, history, utterance))
	}

	return false, nil
}

// flush retries writes that failed earlier.
func (l *Loop) flush(ctx context.Context) {
	if err := l.d.Profiles.Flush(ctx); err != nil {
		log.Error("Profile still not saved", "err", err)
	}
	if err := l.d.Metrics.Flush(ctx); err != nil {
		log.Error("Health data still not saved", "err", err)
	}
}

func (l *Loop) persist(ctx context.Context) {
	l.flush(context.WithoutCancel(ctx))
}
