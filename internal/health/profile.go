package health

import (
	"fmt"
	"strings"
)

type Medication struct {
	Name      string   `json:"name" validate:"required"`
	Dosage    string   `json:"dosage"`
	Frequency string   `json:"frequency"`
	Times     []string `json:"times" validate:"min=1,dive,hhmm"`
}

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Preferences struct {
	VoiceSpeed        float64 `json:"voice_speed" validate:"gte=0,lte=2"`
	Volume            float64 `json:"volume" validate:"gte=0,lte=1"`
	ReminderFrequency string  `json:"reminder_frequency"`
	SpeakingStyle     string  `json:"speaking_style"`
}

// Profile is the single user's identity and care plan. It is written as one
// JSON document by the profile store.
type Profile struct {
	Name             string       `json:"name" validate:"required"`
	Age              int          `json:"age" validate:"gte=0,lte=120"`
	Conditions       []string     `json:"conditions"`
	Medications      []Medication `json:"medications" validate:"dive"`
	EmergencyContact Contact      `json:"emergency_contact"`
	Preferences      Preferences  `json:"preferences"`
}

func DefaultProfile() *Profile {
	return &Profile{
		Name:       "User",
		Age:        75,
		Conditions: []string{"diabetes", "hypertension"},
		Medications: []Medication{
			{Name: "Metformin", Dosage: "500mg", Frequency: "twice daily", Times: []string{"08:00", "20:00"}},
			{Name: "Lisinopril", Dosage: "10mg", Frequency: "once daily", Times: []string{"08:00"}},
		},
		EmergencyContact: Contact{Name: "Family Member", Phone: "123-456-7890"},
		Preferences: Preferences{
			VoiceSpeed:        0.8,
			Volume:            0.9,
			ReminderFrequency: "high",
			SpeakingStyle:     "gentle",
		},
	}
}

func (p *Profile) Validate() error {
	return validate.Struct(p)
}

// Clone returns a deep copy so callers can mutate without touching the
// store's copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.Conditions = append([]string(nil), p.Conditions...)
	out.Medications = make([]Medication, len(p.Medications))
	for i, m := range p.Medications {
		m.Times = append([]string(nil), m.Times...)
		out.Medications[i] = m
	}
	return &out
}

// Summary renders the profile as the context block handed to the reply
// backend.
func (p *Profile) Summary() string {
	meds := make([]string, 0, len(p.Medications))
	for _, m := range p.Medications {
		meds = append(meds, strings.TrimSpace(m.Name+" "+m.Dosage+" "+m.Frequency))
	}

	var b strings.Builder
	b.WriteString("USER PROFILE INFORMATION:\n")
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	fmt.Fprintf(&b, "Age: %d\n", p.Age)
	fmt.Fprintf(&b, "Health conditions: %s\n", strings.Join(p.Conditions, ", "))
	fmt.Fprintf(&b, "Medications: %s\n", strings.Join(meds, ", "))
	return b.String()
}
