package dialog

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"time"
)

const alertTimeout = 15 * time.Second

func (c *Controller) emergency(ctx context.Context) error {
	answer, err := c.ask(ctx, "You mentioned an emergency. Are you experiencing an urgent medical situation right now?")
	if err != nil {
		return err
	}

	if answer == "" {
		answer, err = c.ask(ctx, "I couldn't understand your response, but I take any mention of emergency seriously. Do you need me to call your emergency contact?")
		if err != nil {
			return err
		}
		// Still nothing: assume the worst.
		if answer == "" {
			return c.callContact(ctx)
		}
	}

	if hasWord(answer, "yes", "yeah", "help", "please") {
		return c.callContact(ctx)
	}
	c.say(ctx, "I understand it's not an immediate emergency. Would you like to talk about what's concerning you?")
	return nil
}

func (c *Controller) callContact(ctx context.Context) error {
	p, err := c.profile(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	contact := p.EmergencyContact

	c.say(ctx, fmt.Sprintf("I'll call %s at %s for you right away.", contact.Name, contact.Phone))
	log.Warn("EMERGENCY: alerting contact", "name", contact.Name, "phone", contact.Phone)

	if c.alerts == nil {
		return nil
	}

	// An interrupt must not cancel an alert that is already under way.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := c.alerts.Alert(actx, contact); err != nil {
		log.Error("Emergency alert failed", "err", err)
		c.say(ctx, fmt.Sprintf("I wasn't able to reach %s. If you can, please call for help directly.", contact.Name))
	}
	return nil
}

func (c *Controller) listMedications(ctx context.Context) error {
	p, err := c.profile(ctx)
	if err != nil {
		return err
	}
	if len(p.Medications) == 0 {
		c.say(ctx, "You don't have any medications in your profile yet. Would you like to add some?")
		return nil
	}

	lines := []string{"Here are your current medications:"}
	for _, m := range p.Medications {
		spoken := make([]string, 0, len(m.Times))
		for _, t := range m.Times {
			spoken = append(spoken, SpokenClock(t))
		}
		lines = append(lines, fmt.Sprintf("%s, %s, %s, at %s", m.Name, m.Dosage, m.Frequency, strings.Join(spoken, ", ")))
	}
	lines = append(lines, "Is there anything about your medications you'd like to know more about?")

	c.sayAll(ctx, lines...)
	return nil
}

var helpSections = []string{
	"Here are some things you can ask me to do. I'll pause after each option so you can listen carefully.",
	"For health tracking, you can say: record glucose, record sleep, or record medication.",
	"To check your information, you can say: how am I doing, or list medications.",
	"If you need to update information, you can say: update profile.",
	"To change how I speak, you can say: adjust voice.",
	"In an emergency, simply say: help me or emergency.",
	"To end our conversation, just say: goodbye or exit.",
	"Would you like me to repeat any of these options?",
}

func (c *Controller) help(ctx context.Context) error {
	c.sayAll(ctx, helpSections...)
	return nil
}
