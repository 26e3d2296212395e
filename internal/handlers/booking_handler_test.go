package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/booking"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/whatsapp"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) SendMessage(_ context.Context, _, _, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, message)
	return nil
}

func newBookingApp(t *testing.T) (*fiber.App, *booking.Engine, *recordingSender) {
	t.Helper()

	docs := store.NewMemStore()
	engine := booking.NewEngine(docs, cache.New(nil))
	sender := &recordingSender{}
	handler := NewBookingHandler(engine, whatsapp.NewNotifier(sender))

	app := fiber.New()
	app.Get("/tenants/:id/booking/settings", handler.GetSettings)
	app.Put("/tenants/:id/booking/settings", handler.SaveSettings)
	app.Get("/tenants/:id/booking/slots", handler.GetAvailableSlots)
	app.Post("/tenants/:id/bookings", handler.CreateBooking)
	app.Get("/tenants/:id/bookings", handler.ListBookings)
	app.Patch("/tenants/:id/bookings/:bookingId/status", handler.UpdateBookingStatus)

	return app, engine, sender
}

func everydaySettings() *booking.Settings {
	days := make(map[string]booking.DaySchedule)
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"} {
		days[day] = booking.DaySchedule{Enabled: true, Start: "09:00", End: "12:00"}
	}
	return &booking.Settings{Enabled: true, SlotDuration: 60, Timezone: "UTC", Days: days}
}

func jsonRequest(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, payload
}

func TestSettingsRoundTrip(t *testing.T) {
	app, _, _ := newBookingApp(t)

	status, _ := jsonRequest(t, app, "PUT", "/tenants/tenant-1/booking/settings", everydaySettings())
	assert.Equal(t, fiber.StatusOK, status)

	status, payload := jsonRequest(t, app, "GET", "/tenants/tenant-1/booking/settings", nil)
	assert.Equal(t, fiber.StatusOK, status)

	var saved booking.Settings
	require.NoError(t, json.Unmarshal(payload, &saved))
	assert.True(t, saved.Enabled)
	assert.Equal(t, 60, saved.SlotDuration)
}

func TestSaveSettingsRejectsInvalidSchedule(t *testing.T) {
	app, _, _ := newBookingApp(t)

	bad := everydaySettings()
	bad.Days["monday"] = booking.DaySchedule{Enabled: true, Start: "12:00", End: "09:00"}

	status, payload := jsonRequest(t, app, "PUT", "/tenants/tenant-1/booking/settings", bad)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, string(payload), "error")
}

func TestCreateBookingRequiresDateAndSlot(t *testing.T) {
	app, _, _ := newBookingApp(t)

	status, _ := jsonRequest(t, app, "POST", "/tenants/tenant-1/bookings", booking.CreateRequest{Name: "Budi"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCreateAndConfirmBookingNotifiesCustomer(t *testing.T) {
	app, _, sender := newBookingApp(t)
	date := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	status, _ := jsonRequest(t, app, "PUT", "/tenants/tenant-1/booking/settings", everydaySettings())
	require.Equal(t, fiber.StatusOK, status)

	status, payload := jsonRequest(t, app, "POST", "/tenants/tenant-1/bookings", booking.CreateRequest{
		Phone: "628123", Name: "Budi", Date: date, TimeSlot: "09:00",
	})
	require.Equal(t, fiber.StatusCreated, status)

	var created booking.CreateResult
	require.NoError(t, json.Unmarshal(payload, &created))
	require.True(t, created.Success)
	assert.Equal(t, 1, created.TokenNumber)

	status, payload = jsonRequest(t, app, "PATCH",
		fmt.Sprintf("/tenants/tenant-1/bookings/%s/status", created.BookingID),
		UpdateStatusRequest{Status: booking.StatusConfirmed})
	require.Equal(t, fiber.StatusOK, status)

	var updated booking.Booking
	require.NoError(t, json.Unmarshal(payload, &updated))
	assert.Equal(t, booking.StatusConfirmed, updated.Status)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], date)
	assert.Contains(t, sender.sent[0], "09:00")
}

func TestConflictReturnsSuccessFalse(t *testing.T) {
	app, _, _ := newBookingApp(t)
	date := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	status, _ := jsonRequest(t, app, "PUT", "/tenants/tenant-1/booking/settings", everydaySettings())
	require.Equal(t, fiber.StatusOK, status)

	request := booking.CreateRequest{Phone: "628123", Name: "Budi", Date: date, TimeSlot: "09:00"}
	status, _ = jsonRequest(t, app, "POST", "/tenants/tenant-1/bookings", request)
	require.Equal(t, fiber.StatusCreated, status)

	status, payload := jsonRequest(t, app, "POST", "/tenants/tenant-1/bookings", request)
	assert.Equal(t, fiber.StatusOK, status)

	var result booking.CreateResult
	require.NoError(t, json.Unmarshal(payload, &result))
	assert.False(t, result.Success)
}
