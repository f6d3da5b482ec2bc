// Package trend turns recent daily records into plain-language observations.
package trend

import (
	"fmt"
	"math"
	"strings"

	"carevox/internal/health"
)

const (
	// Window is how many of the most recent records are considered.
	Window = 7
	// MinHistory is the fewest records worth summarizing.
	MinHistory = 3

	NotEnoughData   = "I don't have enough health data yet to identify any trends."
	NoRecentInsight = "I don't have enough recent health data to provide meaningful insights."
)

// Summarize renders observations for records ordered oldest first. Only the
// last Window records are used. Sentences appear in the order glucose,
// adherence, sleep; metrics without any value are skipped.
func Summarize(records []health.Record) string {
	if len(records) < MinHistory {
		return NotEnoughData
	}
	if len(records) > Window {
		records = records[len(records)-Window:]
	}

	var out []string

	if avg, ok := mean(records, func(r health.Record) *float64 { return r.GlucoseMorning }); ok {
		out = append(out, glucoseSentence(avg))
	}
	if avg, ok := mean(records, func(r health.Record) *float64 { return r.MedicationAdherence }); ok {
		out = append(out, adherenceSentence(avg*100))
	}
	if avg, ok := mean(records, func(r health.Record) *float64 { return r.SleepHours }); ok {
		out = append(out, sleepSentence(avg))
	}

	if len(out) == 0 {
		return NoRecentInsight
	}
	return strings.Join(out, " ")
}

func glucoseSentence(avg float64) string {
	var band string
	switch {
	case avg > 180:
		band = "been running high"
	case avg < 70:
		band = "been running low"
	default:
		band = "been in a good range"
	}
	return fmt.Sprintf("Your morning blood sugar has %s at around %d on average.", band, roundInt(avg))
}

func adherenceSentence(pct float64) string {
	if pct < 80 {
		return fmt.Sprintf("You've been taking your medications about %d%% of the time. Let's work on improving that.", roundInt(pct))
	}
	return fmt.Sprintf("Great job taking your medications about %d%% of the time.", roundInt(pct))
}

func sleepSentence(avg float64) string {
	verdict := "which is good"
	if avg < 6 {
		verdict = "which is less than recommended"
	}
	return fmt.Sprintf("You've been getting about %.1f hours of sleep on average, %s.", avg, verdict)
}

// mean averages the non-null values of one metric.
func mean(records []health.Record, field func(health.Record) *float64) (float64, bool) {
	var sum float64
	var n int
	for _, r := range records {
		if v := field(r); v != nil && !math.IsNaN(*v) {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// roundInt rounds halves to even, so 182.5 reads as 182.
func roundInt(v float64) int {
	return int(math.RoundToEven(v))
}
