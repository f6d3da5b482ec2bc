package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"145", 145, true},
		{"it was 6.5 hours", 6.5, true},
		{"one hundred and twenty", 120, true},
		{"a hundred", 100, true},
		{"six and a half hours", 6.5, true},
		{"seventy-eight", 78, true},
		{"seven point five", 7.5, true},
		{"number two please", 2, true},
		{"two thousand and five", 2005, true},
		{"one forty five", 145, true},
		{"one twenty", 120, true},
		{"two ten", 210, true},
		{"one fifteen", 115, true},
		{"one hundred forty five", 145, true},
		{"-3", -3, true},
		{"about -3 hours", -3, true},
		{"blood-5", 5, true},
		{"minus two", -2, true},
		{"negative three", -3, true},
		{"one two", 0, false},
		{"twenty twenty", 0, false},
		{"forty five six", 0, false},
		{"I don't know", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		if tt.wantOK {
			assert.InDelta(t, tt.want, got, 1e-9, tt.in)
		}
	}
}

func TestExtractDigits(t *testing.T) {
	assert.Equal(t, "3105551234", ExtractDigits("three one zero, five five five, one two three four"))
	assert.Equal(t, "3105551234", ExtractDigits("(310) 555-1234"))
	assert.Equal(t, "5550", ExtractDigits("five five five oh"))
	assert.Equal(t, "", ExtractDigits("call my daughter"))
}

func TestFormatAndSpellPhone(t *testing.T) {
	assert.Equal(t, "310-555-1234", FormatPhone("310555123499"))
	assert.Equal(t, "3, 1, 0, 5, 5, 5, 1, 2, 3, 4", SpellPhone("3105551234"))
}

func TestParseTimes(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"in the morning", []string{"08:00"}},
		{"morning and at bedtime", []string{"08:00", "22:00"}},
		{"after lunch and dinner", []string{"14:00", "18:00"}},
		{"every afternoon", []string{"14:00"}},
		{"at 8 pm", []string{"20:00"}},
		{"at 7:30 a.m. and 20:15", []string{"07:30", "20:15"}},
		{"12 am", []string{"00:00"}},
		{"whenever I remember", nil},
		{"take 2 pills", nil},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTimes(tt.in), tt.in)
	}
}

func TestPartOfDayAndSpokenClock(t *testing.T) {
	assert.Equal(t, "morning", PartOfDay("08:00"))
	assert.Equal(t, "afternoon", PartOfDay("14:00"))
	assert.Equal(t, "evening", PartOfDay("18:00"))
	assert.Equal(t, "bedtime", PartOfDay("22:00"))

	assert.Equal(t, "8 AM", SpokenClock("08:00"))
	assert.Equal(t, "noon", SpokenClock("12:00"))
	assert.Equal(t, "8 PM", SpokenClock("20:00"))
	assert.Equal(t, "12 AM", SpokenClock("00:00"))
	assert.Equal(t, "7:30 PM", SpokenClock("19:30"))
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Mary-Ann O'Neil", CleanName("  mary-ann o'NEIL!! "))
	assert.Equal(t, "Bob Smith", CleanName("bob 2 smith"))
	assert.Equal(t, "", CleanName("1234"))
}

func TestYesNo(t *testing.T) {
	assert.True(t, IsNegative("No"))
	assert.True(t, IsNegative("that's not right"))
	assert.True(t, IsNegative("wrong"))
	assert.False(t, IsNegative("I know"))
	assert.False(t, IsNegative("yes"))

	assert.True(t, IsAffirmative("Yeah, that's it"))
	assert.False(t, IsAffirmative("yesterday"))
}
