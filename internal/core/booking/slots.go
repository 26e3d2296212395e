package booking

// GenerateSlots derives the bookable time slots of one day. Pure function:
// every emitted slot fits fully inside the working window and none overlaps
// the break window [breakStart, breakEnd).
func GenerateSlots(day DaySchedule, slotDuration int) []string {
	start, err := parseHHMM(day.Start)
	if err != nil {
		return nil
	}
	end, err := parseHHMM(day.End)
	if err != nil {
		return nil
	}
	if slotDuration <= 0 {
		return nil
	}

	breakStart, breakEnd := -1, -1
	if day.BreakStart != "" && day.BreakEnd != "" {
		if bs, err := parseHHMM(day.BreakStart); err == nil {
			if be, err := parseHHMM(day.BreakEnd); err == nil {
				breakStart, breakEnd = bs, be
			}
		}
	}

	var slots []string
	for slot := start; slot+slotDuration <= end; slot += slotDuration {
		if breakStart >= 0 && slot < breakEnd && slot+slotDuration > breakStart {
			continue
		}
		slots = append(slots, formatHHMM(slot))
	}
	return slots
}
