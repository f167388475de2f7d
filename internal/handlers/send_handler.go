package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/internal/services"
)

type SendHandler struct {
	dispatcher *services.Dispatcher
}

func NewSendHandler(dispatcher *services.Dispatcher) *SendHandler {
	return &SendHandler{dispatcher: dispatcher}
}

// Send dispatches one clip to its destination. The response is always the
// classified outcome shape; transport status is 200 even for failed sends so
// the extension can render the outcome instead of a generic HTTP error.
func (h *SendHandler) Send(c *gin.Context) {
	var req models.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp := h.dispatcher.Send(c.Request.Context(), req)
	c.JSON(http.StatusOK, resp)
}
