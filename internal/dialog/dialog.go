// Package dialog runs the guided multi-turn flows: recording health data,
// editing the profile, voice settings, emergencies and help.
package dialog

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"carevox/internal/health"
	"carevox/internal/nlu"
	"carevox/internal/session"
	"carevox/internal/storage"
)

var (
	// ErrInterrupted is returned when the conversation was cancelled while a
	// flow was running. The flow stops at the next question.
	ErrInterrupted = errors.New("dialog interrupted")

	ErrUnknownFlow = errors.New("no flow for command")
)

// maxAttempts bounds every "is that correct?" loop.
const maxAttempts = 3

const (
	msgSaveFailed   = "I'm sorry, something went wrong while saving that. Let's try again later."
	msgNotPersisted = "I've noted that, but I couldn't save it to your records just now. I'll keep trying."
)

// Alerter notifies the emergency contact.
type Alerter interface {
	Alert(ctx context.Context, contact health.Contact) error
}

type Deps struct {
	Listener session.Listener
	Output   *session.Renderer
	History  *session.History
	Knobs    session.Knobs
	Profiles storage.ProfileStore
	Metrics  storage.MetricStore
	Alerts   Alerter
	// Tuner is optional; when nil voice changes are only stored.
	Tuner session.VoiceTuner
	Now   func() time.Time
	// Pause is the gap between spoken list items.
	Pause time.Duration
	// MedicationsChanged is called with the saved profile after a
	// medication is added or removed.
	MedicationsChanged func(p *health.Profile)
}

// Controller drives one flow at a time. It is not safe for concurrent use.
type Controller struct {
	in       session.Listener
	out      *session.Renderer
	history  *session.History
	knobs    session.Knobs
	profiles storage.ProfileStore
	metrics  storage.MetricStore
	alerts   Alerter
	tuner    session.VoiceTuner
	now      func() time.Time
	pause    time.Duration
	medsHook func(p *health.Profile)
}

func New(d Deps) *Controller {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Knobs == (session.Knobs{}) {
		d.Knobs = session.DefaultKnobs()
	}
	return &Controller{
		in:       d.Listener,
		out:      d.Output,
		history:  d.History,
		knobs:    d.Knobs,
		profiles: d.Profiles,
		metrics:  d.Metrics,
		alerts:   d.Alerts,
		tuner:    d.Tuner,
		now:      d.Now,
		pause:    d.Pause,
		medsHook: d.MedicationsChanged,
	}
}

// Handles reports whether cmd is run by the controller.
func Handles(cmd nlu.Command) bool {
	switch cmd {
	case nlu.RecordGlucose, nlu.RecordSleep, nlu.RecordMedication, nlu.UpdateProfile,
		nlu.AdjustVoice, nlu.Emergency, nlu.ListMedications, nlu.Help:
		return true
	}
	return false
}

// Run executes the flow for cmd. Recoverable problems are handled inside the
// flow by talking to the user; the only errors returned are ErrInterrupted,
// ErrUnknownFlow and failures reading the profile.
func (c *Controller) Run(ctx context.Context, cmd nlu.Command) error {
	log.Info("Flow started", "command", cmd)
	defer log.Debug("Flow finished", "command", cmd)

	switch cmd {
	case nlu.RecordGlucose:
		return c.recordGlucose(ctx)
	case nlu.RecordSleep:
		return c.recordSleep(ctx)
	case nlu.RecordMedication:
		return c.recordMedication(ctx)
	case nlu.UpdateProfile:
		return c.updateProfile(ctx)
	case nlu.AdjustVoice:
		return c.adjustVoice(ctx)
	case nlu.Emergency:
		return c.emergency(ctx)
	case nlu.ListMedications:
		return c.listMedications(ctx)
	case nlu.Help:
		return c.help(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFlow, cmd)
	}
}

func (c *Controller) say(ctx context.Context, text string) {
	c.out.Say(ctx, text)
}

func (c *Controller) sayAll(ctx context.Context, lines ...string) {
	for i, l := range lines {
		if i > 0 {
			c.sleep(ctx)
		}
		c.say(ctx, l)
	}
}

func (c *Controller) sleep(ctx context.Context) {
	if c.pause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(c.pause):
	}
}

// listen acquires one answer. Silence and input failures both come back as
// the empty string.
func (c *Controller) listen(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInterrupted
	}

	text, err := c.in.Listen(ctx, c.knobs.ListenTimeout, c.knobs.PhraseTimeLimit)
	switch {
	case ctx.Err() != nil:
		return "", ErrInterrupted
	case errors.Is(err, session.ErrNoInput):
		return "", nil
	case err != nil:
		log.Warn("Listen failed", "err", err)
		return "", nil
	}

	text = strings.TrimSpace(text)
	if text != "" && c.history != nil {
		c.history.Add(session.RoleUser, text)
	}
	return text, nil
}

// ask says question and listens for the answer.
func (c *Controller) ask(ctx context.Context, question string) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInterrupted
	}
	c.say(ctx, question)
	return c.listen(ctx)
}

// askRetry asks question and, on silence, asks rephrase once more. An empty
// result means both attempts were silent.
func (c *Controller) askRetry(ctx context.Context, question, rephrase string) (string, error) {
	answer, err := c.ask(ctx, question)
	if err != nil || answer != "" || rephrase == "" {
		return answer, err
	}
	return c.ask(ctx, rephrase)
}

// confirm reads a proposal back. Silence counts as acceptance; only an
// explicit negative rejects.
func (c *Controller) confirm(ctx context.Context, readback string) (bool, error) {
	answer, err := c.ask(ctx, readback)
	if err != nil {
		return false, err
	}
	return answer == "" || !IsNegative(answer), nil
}

// propose collects a value and confirms it, restarting collection on a
// rejection up to maxAttempts times. collect returns ok=false when it gave up
// and already told the user why; giveUp is said when every proposal was
// rejected. The bool result is true only for an accepted value.
func propose[T any](ctx context.Context, c *Controller,
	collect func(attempt int) (T, bool, error),
	readback func(v T) string,
	giveUp string,
) (T, bool, error) {
	var zero T
	for attempt := 0; attempt < maxAttempts; attempt++ {
		v, ok, err := collect(attempt)
		if err != nil || !ok {
			return zero, false, err
		}

		yes, err := c.confirm(ctx, readback(v))
		if err != nil {
			return zero, false, err
		}
		if yes {
			return v, true, nil
		}
		log.Debug("Proposal rejected", "attempt", attempt+1)
	}
	c.say(ctx, giveUp)
	return zero, false, nil
}

// commit reports the outcome of a store write. It returns false when the
// change was not applied at all.
func (c *Controller) commit(ctx context.Context, err error, success string) bool {
	if err != nil && !errors.Is(err, storage.ErrNotPersisted) {
		log.Error("Store update failed", "err", err)
		c.say(ctx, msgSaveFailed)
		return false
	}
	c.say(ctx, success)
	if err != nil {
		c.say(ctx, msgNotPersisted)
	}
	return true
}

func (c *Controller) today() string {
	return health.DateOf(c.now())
}

func (c *Controller) profile(ctx context.Context) (*health.Profile, error) {
	p, err := c.profiles.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}
