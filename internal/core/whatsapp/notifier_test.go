package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlyid/whatsapp-assistant-be/internal/core/booking"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

type fakeSender struct {
	err  error
	sent []string
}

func (f *fakeSender) SendMessage(_ context.Context, _, _, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message)
	return nil
}

func TestSendBookingConfirmationIncludesDetails(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender)

	n.SendBookingConfirmation(context.Background(), booking.Booking{
		ID:          "bk-1",
		TenantID:    "tenant-1",
		Phone:       "628123456789",
		Date:        "2026-03-11",
		TimeSlot:    "09:00",
		TokenNumber: 3,
	})

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "2026-03-11")
	assert.Contains(t, sender.sent[0], "09:00")
	assert.Contains(t, sender.sent[0], "3")
}

func TestSendBookingRejectionIncludesStaffNote(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender)

	n.SendBookingRejection(context.Background(), booking.Booking{
		TenantID:  "tenant-1",
		Phone:     "628123456789",
		Date:      "2026-03-11",
		TimeSlot:  "09:00",
		StaffNote: "Doctor unavailable that day",
	})

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "Doctor unavailable that day")
}

func TestNotifierSwallowsDeliveryErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("session not connected")}
	n := NewNotifier(sender)

	// Must not panic or propagate.
	n.SendBookingConfirmation(context.Background(), booking.Booking{
		TenantID: "tenant-1",
		Phone:    "628123456789",
	})
	assert.Empty(t, sender.sent)
}

func TestNotifierSkipsBookingsWithoutPhone(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender)

	n.SendBookingConfirmation(context.Background(), booking.Booking{TenantID: "tenant-1"})
	assert.Empty(t, sender.sent)
}

type fakeProvider struct {
	connected []string
	errs      map[string]error
}

func (f *fakeProvider) Initialize(context.Context) error { return nil }
func (f *fakeProvider) Connect(_ context.Context, tenantID string) error {
	if err, ok := f.errs[tenantID]; ok {
		return err
	}
	f.connected = append(f.connected, tenantID)
	return nil
}
func (f *fakeProvider) Disconnect(string) {}
func (f *fakeProvider) SendMessage(context.Context, string, string, string) error {
	return nil
}
func (f *fakeProvider) GenerateQR(context.Context, string) ([]byte, error) { return nil, nil }
func (f *fakeProvider) Status(string) SessionStatus                       { return StatusDisconnected }
func (f *fakeProvider) OnMessage(MessageHandler)                          {}
func (f *fakeProvider) StartKeepAlive(context.Context)                    {}
func (f *fakeProvider) GetProviderName() string                           { return "fake" }
func (f *fakeProvider) Close()                                            {}

func TestRestoreSessionsSkipsUnpairedTenants(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemStore()
	require.NoError(t, docs.Set(ctx, "tenant/tenant-1", map[string]interface{}{"name": "One"}, false))
	require.NoError(t, docs.Set(ctx, "tenant/tenant-2", map[string]interface{}{"name": "Two"}, false))
	require.NoError(t, docs.Set(ctx, "tenant/tenant-3", map[string]interface{}{"name": "Three"}, false))

	provider := &fakeProvider{errs: map[string]error{
		"tenant-2": ErrNotPaired,
		"tenant-3": errors.New("server unreachable"),
	}}
	svc := NewService(provider, docs)

	svc.RestoreSessions(ctx, time.Second)

	assert.Equal(t, []string{"tenant-1"}, provider.connected)
}
