package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatlyid/whatsapp-assistant-be/internal/core/booking"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/whatsapp"
)

type BookingHandler struct {
	bookings *booking.Engine
	notifier *whatsapp.Notifier
}

func NewBookingHandler(bookings *booking.Engine, notifier *whatsapp.Notifier) *BookingHandler {
	return &BookingHandler{bookings: bookings, notifier: notifier}
}

// GetSettings godoc
// @Summary Get booking schedule settings
// @Tags Bookings
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} booking.Settings
// @Router /tenants/{id}/booking/settings [get]
func (h *BookingHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.bookings.GetSettings(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch settings",
		})
	}
	if settings == nil {
		return c.JSON(fiber.Map{"enabled": false})
	}
	return c.JSON(settings)
}

// SaveSettings godoc
// @Summary Save booking schedule settings
// @Description Numeric preferences outside their bounds are clamped; inconsistent schedule times are rejected.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param data body booking.Settings true "Schedule settings"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /tenants/{id}/booking/settings [put]
func (h *BookingHandler) SaveSettings(c *fiber.Ctx) error {
	var settings booking.Settings
	if err := c.BodyParser(&settings); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request",
		})
	}

	if err := h.bookings.SaveSettings(c.Context(), c.Params("id"), &settings); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"message": "settings saved"})
}

// GetAvailableSlots godoc
// @Summary Get open slots for a date
// @Tags Bookings
// @Produce json
// @Param id path string true "Tenant ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} booking.Availability
// @Failure 400 {object} map[string]string
// @Router /tenants/{id}/booking/slots [get]
func (h *BookingHandler) GetAvailableSlots(c *fiber.Ctx) error {
	date := c.Query("date")
	if date == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "date is required",
		})
	}

	availability, err := h.bookings.GetAvailableSlots(c.Context(), c.Params("id"), date)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(availability)
}

// GetNextDates godoc
// @Summary Get upcoming dates with open slots
// @Tags Bookings
// @Produce json
// @Param id path string true "Tenant ID"
// @Param count query int false "Max dates" default(3)
// @Success 200 {array} string
// @Router /tenants/{id}/booking/dates [get]
func (h *BookingHandler) GetNextDates(c *fiber.Ctx) error {
	dates, err := h.bookings.GetNextAvailableDates(c.Context(), c.Params("id"), c.QueryInt("count", 3))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch dates",
		})
	}
	if dates == nil {
		dates = []string{}
	}
	return c.JSON(dates)
}

// CreateBooking godoc
// @Summary Create a booking
// @Description Creates a pending booking if the slot is still free. Conflicts return success=false, not an error.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param data body booking.CreateRequest true "Booking request"
// @Success 201 {object} booking.CreateResult
// @Failure 400 {object} map[string]string
// @Router /tenants/{id}/bookings [post]
func (h *BookingHandler) CreateBooking(c *fiber.Ctx) error {
	var req booking.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request",
		})
	}
	if req.Date == "" || req.TimeSlot == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "date and time_slot are required",
		})
	}

	result, err := h.bookings.CreateBooking(c.Context(), c.Params("id"), req)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create booking",
		})
	}
	if !result.Success {
		return c.JSON(result)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// ListBookings godoc
// @Summary List bookings
// @Tags Bookings
// @Produce json
// @Param id path string true "Tenant ID"
// @Param date query string false "Filter by date (YYYY-MM-DD)"
// @Param status query string false "Filter by status"
// @Success 200 {array} booking.Booking
// @Router /tenants/{id}/bookings [get]
func (h *BookingHandler) ListBookings(c *fiber.Ctx) error {
	bookings, err := h.bookings.ListBookings(c.Context(), c.Params("id"), c.Query("date"), c.Query("status"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list bookings",
		})
	}
	if bookings == nil {
		bookings = []booking.Booking{}
	}
	return c.JSON(bookings)
}

// UpdateStatusRequest is the staff-side status transition payload.
type UpdateStatusRequest struct {
	Status string `json:"status" example:"confirmed"`
	Note   string `json:"note,omitempty"`
}

// UpdateBookingStatus godoc
// @Summary Update a booking's status
// @Description Confirmations and rejections are pushed to the customer over WhatsApp.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param bookingId path string true "Booking ID"
// @Param data body UpdateStatusRequest true "New status"
// @Success 200 {object} booking.Booking
// @Failure 400 {object} map[string]string
// @Router /tenants/{id}/bookings/{bookingId}/status [patch]
func (h *BookingHandler) UpdateBookingStatus(c *fiber.Ctx) error {
	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request",
		})
	}

	updated, err := h.bookings.UpdateBookingStatus(c.Context(), c.Params("id"), c.Params("bookingId"), req.Status, req.Note)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	switch updated.Status {
	case booking.StatusConfirmed:
		h.notifier.SendBookingConfirmation(c.Context(), *updated)
	case booking.StatusRejected:
		h.notifier.SendBookingRejection(c.Context(), *updated)
	}

	return c.JSON(updated)
}
