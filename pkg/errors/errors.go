package errors

import (
	"errors"
	"fmt"
)

// Common application errors with proper types for error handling

var (
	// ErrNotFound indicates a requested destination or resource was not found
	ErrNotFound = errors.New("not found")

	// ErrConfig indicates a destination is missing required configuration
	// (URL, token, base ID, table ID, or field mappings)
	ErrConfig = errors.New("destination not configured")

	// ErrInvalidCredentialFormat indicates a credential failed its literal-prefix check
	ErrInvalidCredentialFormat = errors.New("invalid credential format")

	// ErrNetwork indicates a transport-level failure (DNS, TLS, refused, timeout)
	ErrNetwork = errors.New("network error")

	// ErrDuplicateTemplateName indicates a template name already exists on a webhook
	ErrDuplicateTemplateName = errors.New("duplicate template name")

	// ErrDuplicateFieldMapping indicates two roles were mapped to the same field
	ErrDuplicateFieldMapping = errors.New("duplicate field mapping")

	// ErrAttachmentTooLarge indicates a file or the running total exceeds the cap
	ErrAttachmentTooLarge = errors.New("attachment size limit exceeded")

	// ErrDuplicateAttachment indicates the same file (name and content) was added twice
	ErrDuplicateAttachment = errors.New("attachment already added")
)

// HTTPError is a non-2xx response from an outbound call. The body is kept so the
// user can diagnose what the receiving end rejected.
type HTTPError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.StatusText, e.Body)
	}
	return fmt.Sprintf("HTTP %d %s", e.Status, e.StatusText)
}

// NotFoundError creates a not found error with context
func NotFoundError(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

// ConfigError creates a configuration error with an actionable hint
func ConfigError(what string) error {
	return fmt.Errorf("%s: %w", what, ErrConfig)
}

// CredentialFormatError creates a prefix-check error naming the offending field
func CredentialFormatError(field, requiredPrefix string) error {
	return fmt.Errorf("%s must start with %q: %w", field, requiredPrefix, ErrInvalidCredentialFormat)
}

// NetworkError wraps a transport failure, passing the underlying message through
func NetworkError(err error) error {
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// Is checks if an error matches a target error (works with wrapped errors)
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// AsHTTPError extracts an *HTTPError from an error chain, if present
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	ok := errors.As(err, &httpErr)
	return httpErr, ok
}
