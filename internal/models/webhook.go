package models

import (
	"net/url"

	"github.com/webclipper/clipper-api/pkg/errors"
)

// Template is a named, optional tag attached to a webhook send. The receiving
// automation branches on it, so names must be unique within a webhook.
type Template struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// WebhookConfig is the configuration of one outbound webhook destination.
type WebhookConfig struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	URL       string     `json:"url"`
	Templates []Template `json:"templates"`
}

// Sendable reports whether the webhook can be dispatched to: it needs a
// non-empty absolute HTTP(S) URL. Placeholder entries created by "add" fail
// this check until the user fills them in.
func (w *WebhookConfig) Sendable() error {
	if w.URL == "" {
		return errors.ConfigError("webhook URL is empty")
	}
	u, err := url.Parse(w.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.ConfigError("webhook URL is not an absolute HTTP(S) URL")
	}
	return nil
}

// HasTemplate reports whether a template with the exact name exists
// (case-sensitive).
func (w *WebhookConfig) HasTemplate(name string) bool {
	for _, t := range w.Templates {
		if t.Name == name {
			return true
		}
	}
	return false
}
