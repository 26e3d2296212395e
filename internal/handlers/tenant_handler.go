package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatlyid/whatsapp-assistant-be/internal/core/tenant"
)

type TenantHandler struct {
	tenants *tenant.Service
}

func NewTenantHandler(tenants *tenant.Service) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

// GetProfile godoc
// @Summary Get tenant assistant profile
// @Tags Tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} tenant.Profile
// @Router /tenants/{id}/profile [get]
func (h *TenantHandler) GetProfile(c *fiber.Ctx) error {
	profile, err := h.tenants.GetProfile(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch profile",
		})
	}
	return c.JSON(profile)
}

// UpdateProfile godoc
// @Summary Update tenant assistant profile
// @Description Merges the given fields into the tenant profile. Unknown fields are ignored.
// @Tags Tenants
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param data body map[string]interface{} true "Profile fields"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /tenants/{id}/profile [put]
func (h *TenantHandler) UpdateProfile(c *fiber.Ctx) error {
	var fields map[string]interface{}
	if err := c.BodyParser(&fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request",
		})
	}

	if err := h.tenants.UpdateProfile(c.Context(), c.Params("id"), fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"message": "profile updated"})
}

// GetStats godoc
// @Summary Get tenant usage statistics
// @Tags Tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} tenant.Stats
// @Router /tenants/{id}/stats [get]
func (h *TenantHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.tenants.GetStats(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch stats",
		})
	}
	return c.JSON(stats)
}
