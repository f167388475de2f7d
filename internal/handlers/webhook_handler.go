package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/internal/registry"
)

type WebhookHandler struct {
	registry *registry.Registry
}

func NewWebhookHandler(reg *registry.Registry) *WebhookHandler {
	return &WebhookHandler{registry: reg}
}

// Create adds a webhook destination, as a placeholder when the body is empty.
func (h *WebhookHandler) Create(c *gin.Context) {
	var req models.UpsertWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cfg, err := h.registry.CreateWebhook(c.Request.Context(), req)
	if err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// Update replaces the label, URL, and templates of a webhook.
func (h *WebhookHandler) Update(c *gin.Context) {
	var req models.UpsertWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cfg, err := h.registry.UpdateWebhook(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Delete removes a webhook destination.
func (h *WebhookHandler) Delete(c *gin.Context) {
	if err := h.registry.DeleteWebhook(c.Request.Context(), c.Param("id")); err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// AddTemplate appends a named template to a webhook.
func (h *WebhookHandler) AddTemplate(c *gin.Context) {
	var req models.AddTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cfg, err := h.registry.AddTemplate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// DeleteTemplate removes a named template from a webhook.
func (h *WebhookHandler) DeleteTemplate(c *gin.Context) {
	cfg, err := h.registry.DeleteTemplate(c.Request.Context(), c.Param("id"), c.Param("name"))
	if err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
