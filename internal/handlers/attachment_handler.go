package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/internal/services"
)

type AttachmentHandler struct {
	store *services.AttachmentStore
}

func NewAttachmentHandler(store *services.AttachmentStore) *AttachmentHandler {
	return &AttachmentHandler{store: store}
}

// Add stages one base64-encoded file for the session's next send.
func (h *AttachmentHandler) Add(c *gin.Context) {
	var req models.AddAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	att := models.Attachment{
		Name:     req.Name,
		MimeType: req.MimeType,
		Data:     req.Data,
	}
	if err := h.store.Add(req.SessionID, att); err != nil {
		respondClassified(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attachments": h.store.List(req.SessionID),
		"totalSize":   h.store.TotalSize(req.SessionID),
	})
}

// List returns the pending attachments of a session.
func (h *AttachmentHandler) List(c *gin.Context) {
	sessionID := c.Param("sessionId")
	c.JSON(http.StatusOK, gin.H{
		"attachments": h.store.List(sessionID),
		"totalSize":   h.store.TotalSize(sessionID),
	})
}

// Remove deletes one staged attachment by name.
func (h *AttachmentHandler) Remove(c *gin.Context) {
	if err := h.store.Remove(c.Param("sessionId"), c.Param("name")); err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Clear drops all staged attachments of a session.
func (h *AttachmentHandler) Clear(c *gin.Context) {
	h.store.Clear(c.Param("sessionId"))
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
