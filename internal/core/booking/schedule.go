package booking

import (
	"fmt"
	"strconv"
	"strings"
)

// Booking modes.
const (
	ModeHourly = "hourly"
	ModeToken  = "token"
)

// Clamp bounds for the free-form numeric settings. These are UX preferences,
// not scheduling invariants, so out-of-range values are clamped instead of
// rejected.
const (
	MinSlotDuration = 15
	MaxSlotDuration = 120
	MinTokensPerDay = 1
	MaxTokensPerDay = 500
)

// DaySchedule is one weekday's working window. Times are 24-hour "HH:MM".
// Break bounds are optional but must come as a pair.
type DaySchedule struct {
	Enabled    bool   `json:"enabled"`
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
	BreakStart string `json:"breakStart,omitempty"`
	BreakEnd   string `json:"breakEnd,omitempty"`
}

// Settings is the per-tenant consultation-booking configuration, stored as
// the singleton document tenant/{id}/consultantSchedule.
type Settings struct {
	Enabled           bool                   `json:"enabled"`
	Mode              string                 `json:"mode"`
	SlotDuration      int                    `json:"slotDuration"`
	MaxTokensPerDay   int                    `json:"maxTokensPerDay"`
	DynamicAllocation bool                   `json:"dynamicAllocation"`
	Timezone          string                 `json:"timezone"`
	Days              map[string]DaySchedule `json:"days"`
}

// Normalize clamps the numeric preferences and fills defaults. Schedule
// times are never corrected here; bad times are a validation error.
func (s *Settings) Normalize() {
	if s.Mode != ModeToken {
		s.Mode = ModeHourly
	}
	if s.SlotDuration < MinSlotDuration {
		s.SlotDuration = MinSlotDuration
	}
	if s.SlotDuration > MaxSlotDuration {
		s.SlotDuration = MaxSlotDuration
	}
	if s.MaxTokensPerDay < MinTokensPerDay {
		s.MaxTokensPerDay = MinTokensPerDay
	}
	if s.MaxTokensPerDay > MaxTokensPerDay {
		s.MaxTokensPerDay = MaxTokensPerDay
	}
	if s.Timezone == "" {
		s.Timezone = "Asia/Jakarta"
	}
	if s.Days == nil {
		s.Days = make(map[string]DaySchedule)
	}
}

// Validate checks every enabled day's time bounds. Violations are reported,
// never silently fixed.
func (s *Settings) Validate() error {
	for day, schedule := range s.Days {
		if !schedule.Enabled {
			continue
		}

		start, err := parseHHMM(schedule.Start)
		if err != nil {
			return fmt.Errorf("%s: invalid start time %q", day, schedule.Start)
		}
		end, err := parseHHMM(schedule.End)
		if err != nil {
			return fmt.Errorf("%s: invalid end time %q", day, schedule.End)
		}
		if start >= end {
			return fmt.Errorf("%s: start %s must be before end %s", day, schedule.Start, schedule.End)
		}

		hasBreakStart := schedule.BreakStart != ""
		hasBreakEnd := schedule.BreakEnd != ""
		if hasBreakStart != hasBreakEnd {
			return fmt.Errorf("%s: break window needs both start and end", day)
		}
		if hasBreakStart {
			bs, err := parseHHMM(schedule.BreakStart)
			if err != nil {
				return fmt.Errorf("%s: invalid break start %q", day, schedule.BreakStart)
			}
			be, err := parseHHMM(schedule.BreakEnd)
			if err != nil {
				return fmt.Errorf("%s: invalid break end %q", day, schedule.BreakEnd)
			}
			if bs >= be {
				return fmt.Errorf("%s: break start %s must be before break end %s", day, schedule.BreakStart, schedule.BreakEnd)
			}
		}
	}
	return nil
}

// parseHHMM converts "HH:MM" into minutes since midnight.
func parseHHMM(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("not an HH:MM time: %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hours*60 + minutes, nil
}

func formatHHMM(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
