package dialog

import (
	"context"
	"math"
	"strings"

	"carevox/internal/health"
)

const (
	rateStep   = 25
	minRate    = 100
	maxRate    = 220
	volumeStep = 0.1
	minVolume  = 0.5
	maxVolume  = 1.0
	// voice_speed is stored as a fraction of this rate.
	baseRate = 200
)

// RateFromSpeed converts the stored voice_speed preference to a speech rate.
func RateFromSpeed(speed float64) int {
	return int(math.Round(speed * baseRate))
}

type voiceSettings struct {
	rate   int
	volume float64
}

func (c *Controller) currentVoice(p *health.Profile) voiceSettings {
	if c.tuner != nil {
		return voiceSettings{rate: c.tuner.Rate(), volume: c.tuner.Volume()}
	}
	return voiceSettings{rate: RateFromSpeed(p.Preferences.VoiceSpeed), volume: p.Preferences.Volume}
}

func (c *Controller) adjustVoice(ctx context.Context) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		q := "I can change how I speak to you. Would you like me to speak faster, slower, louder, or quieter?"
		if attempt > 0 {
			q = "Let's try a different adjustment. What would work better for you?"
		}
		answer, err := c.askRetry(ctx, q, "Please tell me one of these options: faster, slower, louder, or quieter.")
		if err != nil {
			return err
		}
		if answer == "" {
			c.say(ctx, "I'm having trouble understanding. My voice settings will stay the same for now.")
			return nil
		}

		p, err := c.profile(ctx)
		if err != nil {
			return err
		}
		v := c.currentVoice(p)

		var followUp string
		lower := strings.ToLower(answer)
		switch {
		case strings.Contains(lower, "faster"):
			v.rate = min(v.rate+rateStep, maxRate)
			followUp = "I'm speaking faster now. Is this speed better for you?"
		case strings.Contains(lower, "slower"):
			v.rate = max(v.rate-rateStep, minRate)
			followUp = "I'm speaking more slowly now. Is this speed better for you?"
		case strings.Contains(lower, "louder"):
			v.volume = math.Min(roundTenth(v.volume+volumeStep), maxVolume)
			followUp = "I'm speaking louder now. Can you hear me better?"
		case strings.Contains(lower, "quieter") || strings.Contains(lower, "softer"):
			v.volume = math.Max(roundTenth(v.volume-volumeStep), minVolume)
			followUp = "I'm speaking more quietly now. Is this volume better for you?"
		default:
			c.say(ctx, "I can speak faster, slower, louder, or quieter. My voice settings will stay the same for now.")
			return nil
		}

		if c.tuner != nil {
			c.tuner.SetRate(v.rate)
			c.tuner.SetVolume(v.volume)
		}
		_, err = c.profiles.UpdateProfile(ctx, func(p *health.Profile) error {
			p.Preferences.VoiceSpeed = float64(v.rate) / baseRate
			p.Preferences.Volume = v.volume
			return nil
		})
		if !c.commit(ctx, err, followUp) {
			return nil
		}

		reply, err := c.listen(ctx)
		if err != nil {
			return err
		}
		switch {
		case reply == "":
			return nil
		case IsNegative(reply):
			continue
		case IsAffirmative(reply) || strings.Contains(strings.ToLower(reply), "better"):
			c.say(ctx, "Great! I'll keep talking like this.")
		}
		return nil
	}

	c.say(ctx, "Let's keep these settings for now. You can ask me to adjust my voice anytime.")
	return nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
