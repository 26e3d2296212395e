package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBookingAction(t *testing.T) {
	assert.True(t, IsBookingAction("date_2026-09-07"))
	assert.True(t, IsBookingAction("slot_10:00"))
	assert.True(t, IsBookingAction("confirm_booking"))
	assert.True(t, IsBookingAction("cancel_booking"))
	assert.True(t, IsBookingAction("more_dates_2"))
	assert.False(t, IsBookingAction("hello there"))
	assert.False(t, IsBookingAction("update_status"))
}

func TestParseAction(t *testing.T) {
	action := ParseAction("date_2026-09-07")
	assert.Equal(t, ActionDate, action.Kind)
	assert.Equal(t, "2026-09-07", action.Value)

	action = ParseAction("slot_10:00")
	assert.Equal(t, ActionSlot, action.Kind)
	assert.Equal(t, "10:00", action.Value)

	assert.Equal(t, ActionConfirm, ParseAction("confirm_booking").Kind)
	assert.Equal(t, ActionCancel, ParseAction("cancel_booking").Kind)

	action = ParseAction("more_dates_3")
	assert.Equal(t, ActionMoreDates, action.Kind)
	assert.Equal(t, 3, action.Page)
}

func TestParseActionUnknown(t *testing.T) {
	assert.Equal(t, ActionUnknown, ParseAction("free text").Kind)
	assert.Equal(t, ActionUnknown, ParseAction("more_dates_x").Kind)
	assert.Equal(t, ActionUnknown, ParseAction("more_dates_0").Kind)
}
