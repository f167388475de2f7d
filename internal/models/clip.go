package models

import (
	"time"
)

// Attachment is a file captured client-side, base64-encoded. Attachments are
// transient: held per session in memory and cleared on confirmed success.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"type"`
	Data     string `json:"data"`
}

// Size returns the decoded byte size implied by the base64 payload.
func (a *Attachment) Size() int {
	return len(a.Data) * 3 / 4
}

// ClipPayload is the page capture a send is built from. It is constructed per
// send and never persisted.
type ClipPayload struct {
	URL             string       `json:"url"`
	Title           string       `json:"title"`
	Notes           string       `json:"notes"`
	MetaDescription string       `json:"metaDescription"`
	Timestamp       time.Time    `json:"timestamp"`
	Attachments     []Attachment `json:"attachments"`
}

// WebhookPayload is the exact JSON body of a webhook send. Template is always
// present, empty string when unselected, so receiving automations can filter
// on it reliably. Timestamp is the locale-formatted display copy; the ISO
// timestamp lives on ClipPayload.
type WebhookPayload struct {
	URL             string       `json:"url"`
	Title           string       `json:"title"`
	Notes           string       `json:"notes"`
	Template        string       `json:"template"`
	MetaDescription string       `json:"metaDescription"`
	Timestamp       string       `json:"timestamp"`
	Attachments     []Attachment `json:"attachments"`
}

// CustomFieldValue is one value collected from the dynamic send form for an
// Airtable custom field. Value is a bool for checkboxes, a string for scalar
// and single-select inputs, and a []string for multi selects/collaborators.
type CustomFieldValue struct {
	FieldID string      `json:"fieldId"`
	Type    FieldType   `json:"type"`
	Value   interface{} `json:"value"`
}

// AirtableRecordBody is the request body of a record creation:
// {records: [{fields}], typecast: true}.
type AirtableRecordBody struct {
	Records  []AirtableRecordFields `json:"records"`
	Typecast bool                   `json:"typecast"`
}

// AirtableRecordFields is one record's field-id -> value map.
type AirtableRecordFields struct {
	Fields map[string]interface{} `json:"fields"`
}
