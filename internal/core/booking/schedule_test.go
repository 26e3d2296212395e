package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeClampsPreferences(t *testing.T) {
	s := &Settings{SlotDuration: 200, MaxTokensPerDay: 1000}
	s.Normalize()
	assert.Equal(t, 120, s.SlotDuration)
	assert.Equal(t, 500, s.MaxTokensPerDay)
	assert.Equal(t, ModeHourly, s.Mode)

	s = &Settings{SlotDuration: 5, MaxTokensPerDay: 0}
	s.Normalize()
	assert.Equal(t, 15, s.SlotDuration)
	assert.Equal(t, 1, s.MaxTokensPerDay)
}

func TestValidateRejectsInvertedWindow(t *testing.T) {
	s := &Settings{Days: map[string]DaySchedule{
		"monday": {Enabled: true, Start: "17:00", End: "09:00"},
	}}
	assert.Error(t, s.Validate())
}

func TestValidateRejectsInvertedBreak(t *testing.T) {
	s := &Settings{Days: map[string]DaySchedule{
		"monday": {Enabled: true, Start: "09:00", End: "17:00", BreakStart: "14:00", BreakEnd: "12:00"},
	}}
	assert.Error(t, s.Validate())
}

func TestValidateRejectsHalfBreakWindow(t *testing.T) {
	s := &Settings{Days: map[string]DaySchedule{
		"monday": {Enabled: true, Start: "09:00", End: "17:00", BreakStart: "12:00"},
	}}
	assert.Error(t, s.Validate())
}

func TestValidateIgnoresDisabledDays(t *testing.T) {
	s := &Settings{Days: map[string]DaySchedule{
		"sunday": {Enabled: false, Start: "bad", End: "worse"},
		"monday": {Enabled: true, Start: "09:00", End: "17:00"},
	}}
	assert.NoError(t, s.Validate())
}
