package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfileIsValid(t *testing.T) {
	require.NoError(t, DefaultProfile().Validate())
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Profile)
		wantErr bool
	}{
		{"age too high", func(p *Profile) { p.Age = 121 }, true},
		{"negative age", func(p *Profile) { p.Age = -1 }, true},
		{"empty name", func(p *Profile) { p.Name = "" }, true},
		{"medication without times", func(p *Profile) { p.Medications[0].Times = nil }, true},
		{"bad clock", func(p *Profile) { p.Medications[0].Times = []string{"8:00"} }, true},
		{"late clock", func(p *Profile) { p.Medications[0].Times = []string{"23:59"} }, false},
		{"volume over one", func(p *Profile) { p.Preferences.Volume = 1.2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProfile()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProfileCloneIsDeep(t *testing.T) {
	p := DefaultProfile()
	c := p.Clone()
	c.Medications[0].Times[0] = "09:00"
	c.Conditions[0] = "asthma"

	assert.Equal(t, "08:00", p.Medications[0].Times[0])
	assert.Equal(t, "diabetes", p.Conditions[0])
}

func TestRecordValidateSleepRange(t *testing.T) {
	r := &Record{Date: "2026-10-16"}
	for _, bad := range []float64{0, -1, 24.5} {
		r.SleepHours = Ptr(bad)
		assert.Error(t, r.Validate(), "sleep %v", bad)
	}
	r.SleepHours = Ptr(24.0)
	assert.NoError(t, r.Validate())
}

func TestRecordAcceptsAnyGlucose(t *testing.T) {
	r := &Record{Date: "2026-10-16", GlucoseMorning: Ptr(-5.0), GlucoseEvening: Ptr(9000.0)}
	assert.NoError(t, r.Validate())
}

func TestRecordAppendNote(t *testing.T) {
	r := &Record{}
	r.AppendNote("missed lisinopril")
	r.AppendNote("")
	r.AppendNote("felt dizzy")
	assert.Equal(t, "missed lisinopril; felt dizzy", r.Notes)
}

func TestAdherenceLevels(t *testing.T) {
	r := &Record{Date: "2026-10-16"}
	r.SetAdherence(AdherenceNamed)
	require.NotNil(t, r.MedicationAdherence)
	assert.Equal(t, 0.75, *r.MedicationAdherence)
	assert.Equal(t, "partial", AdherencePartial.String())
}
