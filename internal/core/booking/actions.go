package booking

import (
	"strconv"
	"strings"
)

// ActionKind tags a parsed booking button token.
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionDate
	ActionSlot
	ActionConfirm
	ActionCancel
	ActionMoreDates
)

// Action is the decomposed form of a recognized button token.
type Action struct {
	Kind  ActionKind
	Value string // date or slot payload
	Page  int    // for ActionMoreDates
}

var actionPrefixes = []string{"date_", "slot_", "confirm_", "cancel_", "more_dates_"}

// IsBookingAction reports whether a token uses one of the fixed booking
// button prefixes.
func IsBookingAction(token string) bool {
	for _, prefix := range actionPrefixes {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}
	return false
}

// ParseAction decomposes a button token. A small, total parser: anything
// unrecognized comes back as ActionUnknown, never an error.
func ParseAction(token string) Action {
	switch {
	case strings.HasPrefix(token, "more_dates_"):
		page, err := strconv.Atoi(strings.TrimPrefix(token, "more_dates_"))
		if err != nil || page < 1 {
			return Action{Kind: ActionUnknown}
		}
		return Action{Kind: ActionMoreDates, Page: page}
	case strings.HasPrefix(token, "date_"):
		return Action{Kind: ActionDate, Value: strings.TrimPrefix(token, "date_")}
	case strings.HasPrefix(token, "slot_"):
		return Action{Kind: ActionSlot, Value: strings.TrimPrefix(token, "slot_")}
	case strings.HasPrefix(token, "confirm_"):
		return Action{Kind: ActionConfirm, Value: strings.TrimPrefix(token, "confirm_")}
	case strings.HasPrefix(token, "cancel_"):
		return Action{Kind: ActionCancel, Value: strings.TrimPrefix(token, "cancel_")}
	default:
		return Action{Kind: ActionUnknown}
	}
}
