package health

import "time"

const DateLayout = "2006-01-02"

// AdherenceLevel is the enumerated medication adherence score. Only the three
// levels below are ever written by the dialogs.
type AdherenceLevel float64

const (
	AdherenceFull    AdherenceLevel = 1.0
	AdherenceNamed   AdherenceLevel = 0.75
	AdherencePartial AdherenceLevel = 0.5
)

func (l AdherenceLevel) String() string {
	switch l {
	case AdherenceFull:
		return "full"
	case AdherenceNamed:
		return "named"
	case AdherencePartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Record is one day of tracked metrics. Nil pointers are missing values.
// Glucose is unconstrained here; the dialogs check plausibility.
type Record struct {
	Date                string   `validate:"required,datetime=2006-01-02"`
	GlucoseMorning      *float64
	GlucoseEvening      *float64
	MedicationAdherence *float64 `validate:"omitempty,gte=0,lte=1"`
	SleepHours          *float64 `validate:"omitempty,gt=0,lte=24"`
	ActivityMinutes     *float64 `validate:"omitempty,gte=0"`
	Mood                string
	PainLevel           *float64 `validate:"omitempty,gte=0,lte=10"`
	Notes               string
}

func (r *Record) Validate() error {
	return validate.Struct(r)
}

func (r *Record) SetAdherence(l AdherenceLevel) {
	r.MedicationAdherence = Ptr(float64(l))
}

// AppendNote adds text to the day's notes, separated by "; ".
func (r *Record) AppendNote(text string) {
	if text == "" {
		return
	}
	if r.Notes == "" {
		r.Notes = text
		return
	}
	r.Notes += "; " + text
}

func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

func Ptr[T any](v T) *T {
	return &v
}
