package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatlyid/whatsapp-assistant-be/internal/core/conversation"
)

type ConversationHandler struct {
	conversations *conversation.Store
}

func NewConversationHandler(store *conversation.Store) *ConversationHandler {
	return &ConversationHandler{conversations: store}
}

// GetHistory godoc
// @Summary Get conversation history
// @Tags Conversations
// @Produce json
// @Param id path string true "Tenant ID"
// @Param key path string true "Conversation key"
// @Param limit query int false "Max messages" default(50)
// @Success 200 {array} conversation.Message
// @Router /tenants/{id}/conversations/{key} [get]
func (h *ConversationHandler) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	messages, err := h.conversations.GetHistory(c.Context(), c.Params("id"), c.Params("key"), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch history",
		})
	}
	if messages == nil {
		messages = []conversation.Message{}
	}
	return c.JSON(messages)
}

// WipeConversations godoc
// @Summary Delete all conversation data for a tenant
// @Description Irreversible. Removes every conversation document and legacy message record.
// @Tags Conversations
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]interface{}
// @Router /tenants/{id}/conversations [delete]
func (h *ConversationHandler) WipeConversations(c *fiber.Ctx) error {
	result, err := h.conversations.WipeAll(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to wipe conversations",
		})
	}
	return c.JSON(fiber.Map{
		"message":       "conversations wiped",
		"conversations": result.Conversations,
		"messages":      result.Messages,
	})
}

// PurgeOldMessages godoc
// @Summary Purge messages older than the retention window
// @Tags Conversations
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]interface{}
// @Router /tenants/{id}/conversations/purge [post]
func (h *ConversationHandler) PurgeOldMessages(c *fiber.Ctx) error {
	removed, err := h.conversations.PurgeOlderThan(c.Context(), c.Params("id"), conversation.RetentionWindow)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to purge messages",
		})
	}
	return c.JSON(fiber.Map{
		"message": "old messages purged",
		"removed": removed,
	})
}
