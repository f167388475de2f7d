package services

import (
	"fmt"
	"time"

	"github.com/webclipper/clipper-api/internal/models"
)

// germanMonths holds the long month names of the de-DE locale used by the
// display timestamp.
var germanMonths = [...]string{
	"Januar", "Februar", "März", "April", "Mai", "Juni",
	"Juli", "August", "September", "Oktober", "November", "Dezember",
}

// FormatTimestamp renders the German-locale display timestamp carried in
// webhook payloads, e.g. "30. August 2026, 14:05". Receivers that need a
// machine-readable time parse the clip's ISO timestamp instead.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%d. %s %d, %02d:%02d",
		t.Day(), germanMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

// BuildWebhookPayload assembles the exact webhook body. Template is always
// present, empty when unselected, so receiving automations (Make, Zapier) can
// filter on it without existence checks. Attachments is always an array,
// never null.
func BuildWebhookPayload(clip *models.ClipPayload, template string) *models.WebhookPayload {
	attachments := clip.Attachments
	if attachments == nil {
		attachments = []models.Attachment{}
	}
	return &models.WebhookPayload{
		URL:             clip.URL,
		Title:           clip.Title,
		Notes:           clip.Notes,
		Template:        template,
		MetaDescription: clip.MetaDescription,
		Timestamp:       FormatTimestamp(clip.Timestamp),
		Attachments:     attachments,
	}
}

// BuildAirtableFields assembles the field-id keyed map for a record creation.
// Role mappings place the clip's url/title/notes; custom field values are
// coerced by declared type. Blank values are omitted entirely rather than
// sent as empty strings, so unfilled optional fields never clear existing
// cell formatting or trip validation. The attachments role is not populated:
// Airtable attachment cells require public URLs, which transient clips don't
// have.
func BuildAirtableFields(clip *models.ClipPayload, cfg models.TableConfig, custom []models.CustomFieldValue) map[string]interface{} {
	fields := make(map[string]interface{})

	roleValues := map[models.Role]string{
		models.RoleURL:   clip.URL,
		models.RoleTitle: clip.Title,
		models.RoleNotes: clip.Notes,
	}
	for role, value := range roleValues {
		fieldID := cfg.FieldMappings[role]
		if fieldID == "" || value == "" {
			continue
		}
		fields[fieldID] = value
	}

	for _, cv := range custom {
		if cv.FieldID == "" {
			continue
		}
		if value, ok := coerceCustomValue(cv); ok {
			fields[cv.FieldID] = value
		}
	}

	return fields
}

// coerceCustomValue converts one form value into the shape the record body
// needs. Scalars stay strings and rely on typecast for numbers and dates.
func coerceCustomValue(cv models.CustomFieldValue) (interface{}, bool) {
	switch {
	case cv.Type == models.FieldCheckbox:
		b, ok := cv.Value.(bool)
		if !ok {
			return nil, false
		}
		return b, true

	case cv.Type.IsMulti():
		selected := collectStrings(cv.Value)
		if len(selected) == 0 {
			return nil, false
		}
		return selected, true

	default:
		s, ok := cv.Value.(string)
		if !ok || s == "" {
			return nil, false
		}
		return s, true
	}
}

// collectStrings extracts the non-empty string entries of a multi-select
// value, tolerating both []string and the []interface{} JSON decoding
// produces.
func collectStrings(value interface{}) []string {
	var out []string
	switch v := value.(type) {
	case []string:
		for _, s := range v {
			if s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
