package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webclipper/clipper-api/internal/registry"
	"github.com/webclipper/clipper-api/pkg/ratelimit"
)

type DestinationHandler struct {
	registry *registry.Registry
	limiter  *ratelimit.Limiter
}

func NewDestinationHandler(reg *registry.Registry, limiter *ratelimit.Limiter) *DestinationHandler {
	return &DestinationHandler{registry: reg, limiter: limiter}
}

// List returns all destinations, webhooks first, in stored order.
func (h *DestinationHandler) List(c *gin.Context) {
	destinations, err := h.registry.List(c.Request.Context())
	if err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"destinations": destinations})
}

// Get returns one destination by id.
func (h *DestinationHandler) Get(c *gin.Context) {
	dest, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, dest)
}

// Menu returns the flattened context-menu projection.
func (h *DestinationHandler) Menu(c *gin.Context) {
	entries, err := h.registry.MenuEntries(c.Request.Context())
	if err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// LastUsed returns the most recent successful send target, if any.
func (h *DestinationHandler) LastUsed(c *gin.Context) {
	last := h.registry.LastUsed()
	if last == nil {
		c.JSON(http.StatusOK, gin.H{"lastUsed": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lastUsed": last})
}

// LimiterStatus reports the rate limiter window for one Airtable base id.
// Debug surface for diagnosing throttled sends.
func (h *DestinationHandler) LimiterStatus(c *gin.Context) {
	status := h.limiter.Status(c.Param("baseId"))
	c.JSON(http.StatusOK, gin.H{
		"requestsInWindow":   status.RequestsInWindow,
		"remainingCapacity":  status.RemainingCapacity,
		"canSendImmediately": status.CanSendImmediately,
	})
}
