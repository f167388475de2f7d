package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webclipper/clipper-api/internal/registry"
)

type ExportHandler struct {
	registry *registry.Registry
}

func NewExportHandler(reg *registry.Registry) *ExportHandler {
	return &ExportHandler{registry: reg}
}

// Export serializes both destination collections as a downloadable file.
func (h *ExportHandler) Export(c *gin.Context) {
	file, err := h.registry.Export(c.Request.Context())
	if err != nil {
		respondClassified(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="clipper-config.json"`)
	c.JSON(http.StatusOK, file)
}

// Import replaces both destination collections with the uploaded file. Both
// the current versioned envelope and the legacy flat webhook array are
// accepted; a file that fails validation changes nothing.
func (h *ExportHandler) Import(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, "failed to read import body", err)
		return
	}

	file, err := h.registry.Import(c.Request.Context(), data)
	if err != nil {
		respondClassified(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"imported": true,
		"webhooks": len(file.WebhookConfigs),
		"bases":    len(file.AirtableConfigs),
	})
}
