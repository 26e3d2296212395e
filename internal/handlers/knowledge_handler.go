package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatlyid/whatsapp-assistant-be/internal/core/knowledge"
)

type KnowledgeHandler struct {
	knowledge *knowledge.Service
}

func NewKnowledgeHandler(service *knowledge.Service) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: service}
}

// AddSourceRequest is the ingestion payload. Chunks are stored as-is; the
// caller is responsible for splitting documents into chat-sized pieces.
type AddSourceRequest struct {
	Source   string   `json:"source" example:"faq.txt"`
	Category string   `json:"category" example:"faq"`
	Chunks   []string `json:"chunks"`
}

// AddSource godoc
// @Summary Ingest a knowledge source
// @Description Embeds and indexes the chunks of one source. Re-posting the same source updates it in place.
// @Tags Knowledge
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param data body AddSourceRequest true "Source content"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /tenants/{id}/knowledge [post]
func (h *KnowledgeHandler) AddSource(c *fiber.Ctx) error {
	var req AddSourceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request",
		})
	}
	if req.Source == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "source is required",
		})
	}
	if len(req.Chunks) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chunks is required and cannot be empty",
		})
	}

	count, err := h.knowledge.AddSource(c.Context(), c.Params("id"), req.Source, req.Category, req.Chunks)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to ingest source",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "source ingested",
		"chunks":  count,
	})
}

// ListSources godoc
// @Summary List ingested knowledge sources
// @Tags Knowledge
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {array} knowledge.Source
// @Router /tenants/{id}/knowledge [get]
func (h *KnowledgeHandler) ListSources(c *fiber.Ctx) error {
	sources, err := h.knowledge.ListSources(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list sources",
		})
	}
	return c.JSON(sources)
}

// DeleteSource godoc
// @Summary Delete a knowledge source
// @Tags Knowledge
// @Produce json
// @Param id path string true "Tenant ID"
// @Param source path string true "Source name"
// @Success 200 {object} map[string]interface{}
// @Router /tenants/{id}/knowledge/{source} [delete]
func (h *KnowledgeHandler) DeleteSource(c *fiber.Ctx) error {
	removed, err := h.knowledge.DeleteSource(c.Context(), c.Params("id"), c.Params("source"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete source",
		})
	}
	return c.JSON(fiber.Map{
		"message": "source deleted",
		"chunks":  removed,
	})
}

// SearchKnowledge godoc
// @Summary Preview knowledge retrieval for a query
// @Description Runs the same retrieval the assistant uses, for debugging tenant content.
// @Tags Knowledge
// @Produce json
// @Param id path string true "Tenant ID"
// @Param q query string true "Query text"
// @Param limit query int false "Max chunks"
// @Success 200 {array} knowledge.Chunk
// @Router /tenants/{id}/knowledge/search [get]
func (h *KnowledgeHandler) SearchKnowledge(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "q is required",
		})
	}

	chunks := h.knowledge.Search(c.Context(), c.Params("id"), query, c.QueryInt("limit"))
	if chunks == nil {
		chunks = []knowledge.Chunk{}
	}
	return c.JSON(chunks)
}
