package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/chatlyid/whatsapp-assistant-be/internal/core/whatsapp"
)

type WhatsAppHandler struct {
	wa *whatsapp.Service
}

func NewWhatsAppHandler(wa *whatsapp.Service) *WhatsAppHandler {
	return &WhatsAppHandler{wa: wa}
}

// GetQRCode godoc
// @Summary Get WhatsApp pairing QR code
// @Description Starts pairing for the tenant and returns the QR as a PNG image.
// @Tags WhatsApp
// @Produce png
// @Param id path string true "Tenant ID"
// @Success 200 {file} binary
// @Failure 500 {object} map[string]string
// @Router /tenants/{id}/whatsapp/qr [get]
func (h *WhatsAppHandler) GetQRCode(c *fiber.Ctx) error {
	png, err := h.wa.GenerateQR(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate QR code",
		})
	}

	c.Set("Content-Type", "image/png")
	return c.Send(png)
}

// GetStatus godoc
// @Summary Get WhatsApp session status
// @Tags WhatsApp
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]string
// @Router /tenants/{id}/whatsapp/status [get]
func (h *WhatsAppHandler) GetStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": string(h.wa.Status(c.Params("id"))),
	})
}

// Connect godoc
// @Summary Reconnect a paired WhatsApp session
// @Tags WhatsApp
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /tenants/{id}/whatsapp/connect [post]
func (h *WhatsAppHandler) Connect(c *fiber.Ctx) error {
	err := h.wa.Provider().Connect(c.Context(), c.Params("id"))
	if errors.Is(err, whatsapp.ErrNotPaired) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "session not paired, scan the QR code first",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to connect session",
		})
	}
	return c.JSON(fiber.Map{"message": "session connecting"})
}

// Disconnect godoc
// @Summary Disconnect the WhatsApp session
// @Tags WhatsApp
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]string
// @Router /tenants/{id}/whatsapp/disconnect [post]
func (h *WhatsAppHandler) Disconnect(c *fiber.Ctx) error {
	h.wa.Disconnect(c.Params("id"))
	return c.JSON(fiber.Map{"message": "session disconnected"})
}
