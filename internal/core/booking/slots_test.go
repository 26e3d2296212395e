package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSlotsWorkdayWithBreak(t *testing.T) {
	day := DaySchedule{
		Enabled:    true,
		Start:      "09:00",
		End:        "17:00",
		BreakStart: "12:00",
		BreakEnd:   "13:00",
	}

	slots := GenerateSlots(day, 60)
	// 12:00 falls inside the break; 16:00 ends exactly at 17:00 and is kept.
	assert.Equal(t, []string{"09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00"}, slots)
}

func TestGenerateSlotsNoBreak(t *testing.T) {
	day := DaySchedule{Enabled: true, Start: "10:00", End: "12:00"}

	assert.Equal(t, []string{"10:00", "10:30", "11:00", "11:30"}, GenerateSlots(day, 30))
}

func TestGenerateSlotsNeverOverlapsBreak(t *testing.T) {
	day := DaySchedule{
		Enabled:    true,
		Start:      "08:00",
		End:        "18:00",
		BreakStart: "12:30",
		BreakEnd:   "13:15",
	}

	for _, duration := range []int{15, 20, 45, 60, 90} {
		for _, slot := range GenerateSlots(day, duration) {
			start, err := parseHHMM(slot)
			assert.NoError(t, err)
			end := start + duration

			assert.LessOrEqual(t, end, 18*60, "slot %s (%dm) runs past closing", slot, duration)
			overlapsBreak := start < 13*60+15 && end > 12*60+30
			assert.False(t, overlapsBreak, "slot %s (%dm) overlaps the break", slot, duration)
		}
	}
}

func TestGenerateSlotsPartialSlotDropped(t *testing.T) {
	day := DaySchedule{Enabled: true, Start: "09:00", End: "10:30"}

	// A 60-minute slot at 10:00 would end at 11:00, past closing.
	assert.Equal(t, []string{"09:00"}, GenerateSlots(day, 60))
}

func TestGenerateSlotsInvalidTimes(t *testing.T) {
	assert.Nil(t, GenerateSlots(DaySchedule{Start: "late", End: "17:00"}, 60))
	assert.Nil(t, GenerateSlots(DaySchedule{Start: "09:00", End: "17:00"}, 0))
}
