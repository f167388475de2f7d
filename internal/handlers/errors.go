package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webclipper/clipper-api/pkg/errors"
)

// attachError attaches err to the gin context so the observability middleware
// can include the reason in the request log.
func attachError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err) //nolint:errcheck
	}
}

// respondError sends an error JSON response and attaches the error to the gin
// context so the observability middleware can include the reason in the
// request log.
func respondError(c *gin.Context, status int, message string, err error) {
	attachError(c, err)
	c.JSON(status, gin.H{"error": message})
}

// respondBindError reports a request binding failure, with per-field details
// when the body parsed but failed validation.
func respondBindError(c *gin.Context, err error) {
	attachError(c, err)
	if details := ParseValidationErrors(err); len(details) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": details})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
}

// respondClassified maps a domain error to its HTTP status and sends it.
func respondClassified(c *gin.Context, err error) {
	respondError(c, statusForError(err), err.Error(), err)
}

// statusForError maps the sentinel error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrDuplicateTemplateName),
		errors.Is(err, errors.ErrDuplicateFieldMapping),
		errors.Is(err, errors.ErrDuplicateAttachment):
		return http.StatusConflict
	case errors.Is(err, errors.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errors.ErrConfig),
		errors.Is(err, errors.ErrInvalidCredentialFormat):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNetwork):
		return http.StatusBadGateway
	default:
		if httpErr, ok := errors.AsHTTPError(err); ok && httpErr.Status > 0 {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}
