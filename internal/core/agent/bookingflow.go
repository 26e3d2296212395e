package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/chatlyid/whatsapp-assistant-be/internal/core/booking"
)

const datePageSize = 3

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slotPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// handleBookingTurn answers one turn of the booking dialogue. The model is
// never consulted here: the flow is deterministic, driven by button tokens
// and the current step.
func (e *Engine) handleBookingTurn(ctx context.Context, tenantID, from, text string) string {
	stateKey := tenantID + ":" + from
	trimmed := strings.TrimSpace(text)

	if booking.IsBookingAction(trimmed) {
		return e.handleAction(ctx, tenantID, from, stateKey, booking.ParseAction(trimmed))
	}

	state := e.flow.Get(stateKey)
	switch state.Step {
	case booking.StepAwaitingReason:
		e.flow.SetReason(stateKey, trimmed)
		return "Got it. Which date works for you?\n\n" + e.dateOptions(ctx, tenantID, 1)

	case booking.StepAwaitingDate:
		if datePattern.MatchString(trimmed) {
			return e.handleAction(ctx, tenantID, from, stateKey, booking.Action{Kind: booking.ActionDate, Value: trimmed})
		}
		return "Please pick one of the dates below.\n\n" + e.dateOptions(ctx, tenantID, 1)

	case booking.StepAwaitingSlot:
		if slotPattern.MatchString(trimmed) {
			return e.handleAction(ctx, tenantID, from, stateKey, booking.Action{Kind: booking.ActionSlot, Value: trimmed})
		}
		return "Please pick one of the available times.\n\n" + e.slotOptions(ctx, tenantID, state.Date)

	case booking.StepAwaitingName:
		updated := e.flow.SetName(stateKey, trimmed)
		return bookingSummary(updated)

	case booking.StepAwaitingConfirm:
		lower := strings.ToLower(trimmed)
		if lower == "yes" || lower == "ya" || lower == "ok" {
			return e.confirmBooking(ctx, tenantID, from, stateKey)
		}
		if lower == "no" || lower == "tidak" {
			e.flow.Clear(stateKey)
			return "No problem, the booking was cancelled. Ask me anytime to start again."
		}
		return bookingSummary(e.flow.Get(stateKey))

	default:
		// Stale or missing state with a non-action message: restart.
		return e.startBookingDialogue(ctx, tenantID, from, trimmed)
	}
}

func (e *Engine) handleAction(ctx context.Context, tenantID, from, stateKey string, action booking.Action) string {
	switch action.Kind {
	case booking.ActionCancel:
		e.flow.Clear(stateKey)
		return "No problem, the booking was cancelled. Ask me anytime to start again."

	case booking.ActionMoreDates:
		return e.replyNextDates(ctx, tenantID, action.Page)

	case booking.ActionDate:
		if !e.flow.Active(stateKey) {
			e.flow.Start(stateKey, "", "")
		}
		e.flow.SetDate(stateKey, action.Value)
		return e.slotOptions(ctx, tenantID, action.Value)

	case booking.ActionSlot:
		if !e.flow.Active(stateKey) {
			return "That time slot is no longer on offer. Say \"book\" to start again."
		}
		state := e.flow.SetTimeSlot(stateKey, action.Value)
		if state.Step == booking.StepAwaitingConfirm {
			return bookingSummary(state)
		}
		return "Almost done! What name should the booking be under?"

	case booking.ActionConfirm:
		return e.confirmBooking(ctx, tenantID, from, stateKey)

	default:
		return "Sorry, I did not understand that. Say \"book\" to start a booking or ask me anything else."
	}
}

func (e *Engine) startBookingDialogue(ctx context.Context, tenantID, from, reason string) string {
	stateKey := tenantID + ":" + from
	state := e.flow.Start(stateKey, reason, "")

	if state.Step == booking.StepAwaitingReason {
		return "Happy to set that up! What is the booking for?"
	}
	return "Happy to set that up! Which date works for you?\n\n" + e.dateOptions(ctx, tenantID, 1)
}

func (e *Engine) confirmBooking(ctx context.Context, tenantID, from, stateKey string) string {
	state := e.flow.Get(stateKey)
	if state.Date == "" || state.TimeSlot == "" {
		return "Something is missing from your booking. Say \"book\" to start again."
	}

	result, err := e.bookings.CreateBooking(ctx, tenantID, booking.CreateRequest{
		Phone:    from,
		Name:     state.Name,
		Reason:   state.Reason,
		Date:     state.Date,
		TimeSlot: state.TimeSlot,
	})
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("❌ Booking create failed")
		return fallbackReply
	}
	if !result.Success {
		// Slot was taken between listing and confirming: re-offer.
		e.flow.SetDate(stateKey, state.Date)
		return fmt.Sprintf("Sorry, that time was just booked by someone else. 😔\n\n%s", e.slotOptions(ctx, tenantID, state.Date))
	}

	e.flow.Clear(stateKey)
	return fmt.Sprintf(
		"Your booking request is in! 🎉\n\n📅 Date: %s\n🕐 Time: %s\n🎫 Queue number: %d\n\nYou will get a message once it is confirmed.",
		state.Date, state.TimeSlot, result.TokenNumber,
	)
}

// replySlotsForDate serves the get_available_slots tool call.
func (e *Engine) replySlotsForDate(ctx context.Context, tenantID, date string) string {
	if date == "" {
		return e.replyNextDates(ctx, tenantID, 1)
	}
	return e.slotOptions(ctx, tenantID, date)
}

// replyNextDates lists one page of upcoming dates with open slots.
func (e *Engine) replyNextDates(ctx context.Context, tenantID string, page int) string {
	if page < 1 {
		page = 1
	}

	dates, err := e.bookings.GetNextAvailableDates(ctx, tenantID, page*datePageSize)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("❌ Next dates lookup failed")
		return fallbackReply
	}

	offset := (page - 1) * datePageSize
	if offset >= len(dates) {
		return "There are no further dates with open slots right now. Please check back later."
	}
	pageDates := dates[offset:]

	var sb strings.Builder
	sb.WriteString("Here are the next available dates:\n\n")
	for _, date := range pageDates {
		sb.WriteString(fmt.Sprintf("▫️ %s (reply: date_%s)\n", date, date))
	}
	if len(dates) == page*datePageSize {
		sb.WriteString(fmt.Sprintf("\nFor more dates, reply: more_dates_%d", page+1))
	}
	return sb.String()
}

func (e *Engine) slotOptions(ctx context.Context, tenantID, date string) string {
	availability, err := e.bookings.GetAvailableSlots(ctx, tenantID, date)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Str("date", date).Msg("❌ Slot lookup failed")
		return fallbackReply
	}
	if !availability.Available || len(availability.Slots) == 0 {
		return fmt.Sprintf("No open slots on %s. 😔\n\n%s", date, e.dateOptions(ctx, tenantID, 1))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Available times on %s:\n\n", date))
	for _, slot := range availability.Slots {
		sb.WriteString(fmt.Sprintf("▫️ %s (reply: slot_%s)\n", slot, slot))
	}
	return sb.String()
}

func (e *Engine) dateOptions(ctx context.Context, tenantID string, page int) string {
	reply := e.replyNextDates(ctx, tenantID, page)
	if reply == fallbackReply {
		return "I could not load the schedule just now, please try again shortly."
	}
	return reply
}

func bookingSummary(state booking.DialogueState) string {
	name := state.Name
	if name == "" {
		name = "-"
	}
	reason := state.Reason
	if reason == "" {
		reason = "-"
	}
	return fmt.Sprintf(
		"Please confirm your booking:\n\n👤 Name: %s\n📝 Reason: %s\n📅 Date: %s\n🕐 Time: %s\n\nReply confirm_yes to confirm or cancel_booking to cancel.",
		name, reason, state.Date, state.TimeSlot,
	)
}
