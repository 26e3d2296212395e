package whatsapp

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/chatlyid/whatsapp-assistant-be/internal/core/booking"
)

// Sender is the part of the provider the notifier needs.
type Sender interface {
	SendMessage(ctx context.Context, tenantID, phoneNumber, message string) error
}

// Notifier pushes booking status updates to customers. Delivery failures are
// logged and swallowed: the status change already happened and the customer
// can always ask.
type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

func (n *Notifier) SendBookingConfirmation(ctx context.Context, b booking.Booking) {
	message := fmt.Sprintf(
		"Your booking has been confirmed! ✅\n\n📅 Date: %s\n🕐 Time: %s\n🎫 Queue number: %d\n\nSee you then!",
		b.Date, b.TimeSlot, b.TokenNumber,
	)
	n.send(ctx, b, message, "confirmation")
}

func (n *Notifier) SendBookingRejection(ctx context.Context, b booking.Booking) {
	message := fmt.Sprintf(
		"Sorry, your booking for %s at %s could not be confirmed. ❌",
		b.Date, b.TimeSlot,
	)
	if b.StaffNote != "" {
		message += fmt.Sprintf("\n\nNote: %s", b.StaffNote)
	}
	message += "\n\nFeel free to pick another time."
	n.send(ctx, b, message, "rejection")
}

func (n *Notifier) send(ctx context.Context, b booking.Booking, message, kind string) {
	if b.Phone == "" {
		return
	}
	if err := n.sender.SendMessage(ctx, b.TenantID, b.Phone, message); err != nil {
		log.Warn().Err(err).
			Str("tenant_id", b.TenantID).
			Str("booking_id", b.ID).
			Str("kind", kind).
			Msg("⚠️ Failed to deliver booking notification")
		return
	}
	log.Info().
		Str("tenant_id", b.TenantID).
		Str("booking_id", b.ID).
		Str("kind", kind).
		Msg("📨 Booking notification sent")
}
