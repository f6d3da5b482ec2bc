package dialog

import (
	"context"
	"fmt"
	"strings"

	"carevox/internal/health"
)

const (
	minGlucose = 20
	maxGlucose = 600
)

func (c *Controller) recordGlucose(ctx context.Context) error {
	answer, err := c.askRetry(ctx,
		"Let's record your blood glucose reading. What was your blood glucose number?",
		"I need a number for your blood glucose reading. For example, say one hundred and twenty.")
	if err != nil {
		return err
	}
	if answer == "" {
		c.say(ctx, "I'm having trouble understanding your glucose reading. Let's try again later when the voice recognition is working better.")
		return nil
	}

	value, ok := ParseNumber(answer)
	if !ok {
		c.say(ctx, "I'm sorry, I couldn't understand that reading. Let's try again later.")
		return nil
	}
	if value < minGlucose || value > maxGlucose {
		c.say(ctx, fmt.Sprintf("A reading of %s doesn't seem right. Please check your meter and let's try again later.", formatNumber(value)))
		return nil
	}

	timing, err := c.askRetry(ctx,
		"Was this your morning reading or evening reading?",
		"Please say either 'morning' or 'evening' to tell me when you took this reading.")
	if err != nil {
		return err
	}
	if timing == "" {
		c.say(ctx, "I'll record this as your morning glucose reading.")
		timing = "morning"
	}

	slot := "evening"
	if strings.Contains(strings.ToLower(timing), "morning") {
		slot = "morning"
	}

	_, err = c.metrics.Upsert(ctx, c.today(), func(r *health.Record) {
		if slot == "morning" {
			r.GlucoseMorning = health.Ptr(value)
		} else {
			r.GlucoseEvening = health.Ptr(value)
		}
	})
	c.commit(ctx, err, fmt.Sprintf(
		"I've recorded your %s glucose as %s. Is there anything else about your glucose you'd like to share?",
		slot, formatNumber(value)))
	return nil
}

func (c *Controller) recordSleep(ctx context.Context) error {
	answer, err := c.askRetry(ctx,
		"Let's record your sleep. How many hours did you sleep last night?",
		"Please tell me the number of hours you slept. For example, say 'seven hours' or 'six and a half hours'.")
	if err != nil {
		return err
	}
	if answer == "" {
		c.say(ctx, "I'm having trouble understanding your sleep hours. Let's try again later when the voice recognition is working better.")
		return nil
	}

	hours, ok := ParseNumber(answer)
	if !ok {
		c.say(ctx, "I'm sorry, I couldn't understand that value. Let's try again later.")
		return nil
	}
	if hours <= 0 || hours > 24 {
		c.say(ctx, fmt.Sprintf("%s hours doesn't seem right. Please tell me again how many hours you slept.", formatNumber(hours)))
		return nil
	}

	var feedback string
	switch {
	case hours < 6:
		feedback = "That's a bit low. Did you have trouble sleeping?"
	case hours > 10:
		feedback = "That's quite a lot of sleep. Are you feeling well rested?"
	default:
		feedback = "That's a good amount of sleep. Are you feeling rested today?"
	}

	_, err = c.metrics.Upsert(ctx, c.today(), func(r *health.Record) {
		r.SleepHours = health.Ptr(hours)
	})
	c.commit(ctx, err, fmt.Sprintf("I've recorded %s hours of sleep. %s", formatNumber(hours), feedback))
	return nil
}

func (c *Controller) recordMedication(ctx context.Context) error {
	answer, err := c.askRetry(ctx,
		"Let's record your medication. Did you take all your medications today? Please say yes or no.",
		"I need to know if you took your medications. Please say yes or no.")
	if err != nil {
		return err
	}

	if answer == "" {
		return c.recordNamedMedications(ctx)
	}

	took := IsAffirmative(answer) || strings.Contains(strings.ToLower(answer), "took them")
	if took && !IsNegative(answer) {
		_, err = c.metrics.Upsert(ctx, c.today(), func(r *health.Record) {
			r.SetAdherence(health.AdherenceFull)
		})
		c.commit(ctx, err, "Great job! I've recorded that you took all your medications today. Is there anything else you'd like to tell me about your medications?")
		return nil
	}

	missed, err := c.ask(ctx, "Which medications did you miss today?")
	if err != nil {
		return err
	}

	// Partial adherence is recorded even when the answer is unclear.
	_, err = c.metrics.Upsert(ctx, c.today(), func(r *health.Record) {
		r.SetAdherence(health.AdherencePartial)
		if missed != "" {
			r.AppendNote("Missed medications: " + missed)
		}
	})
	c.commit(ctx, err, "I've recorded your medication information. Is there anything I can do to help you remember to take all your medications?")
	return nil
}

// recordNamedMedications is the fallback when the yes/no question got no
// answer twice.
func (c *Controller) recordNamedMedications(ctx context.Context) error {
	taken, err := c.ask(ctx, "I'm having trouble understanding. Let's try a different approach. Which medications did you take today?")
	if err != nil {
		return err
	}

	p, err := c.profile(ctx)
	if err != nil {
		return err
	}
	if !mentionsMedication(p, taken) {
		c.say(ctx, "Let's try recording your medications again later when voice recognition is working better.")
		return nil
	}

	_, err = c.metrics.Upsert(ctx, c.today(), func(r *health.Record) {
		r.SetAdherence(health.AdherenceNamed)
	})
	c.commit(ctx, err, "Thank you. I've recorded your medication information.")
	return nil
}

func mentionsMedication(p *health.Profile, answer string) bool {
	if answer == "" {
		return false
	}
	lower := strings.ToLower(answer)
	for _, m := range p.Medications {
		if m.Name != "" && strings.Contains(lower, strings.ToLower(m.Name)) {
			return true
		}
	}
	return false
}
