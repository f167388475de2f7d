package models

// DestinationKind discriminates the closed set of destination variants.
// Every consumption site (payload builder, dispatcher, menu projection)
// switches exhaustively on it, so adding a kind is a localized change.
type DestinationKind string

const (
	KindWebhook  DestinationKind = "webhook"
	KindAirtable DestinationKind = "airtable"
)

// Destination is an addressable outbound target a clip can be sent to.
// Exactly one of Webhook/Airtable is non-nil, matching Kind. IDs are unique
// across the merged registry regardless of kind.
type Destination struct {
	ID          string             `json:"id"`
	Kind        DestinationKind    `json:"kind"`
	DisplayName string             `json:"displayName"`
	Webhook     *WebhookConfig     `json:"webhook,omitempty"`
	Airtable    *AirtableBaseConfig `json:"airtable,omitempty"`
}

// MenuEntry is one row of the context-menu projection. Webhook templates and
// Airtable tables are flattened to individually clickable entries; the composite
// ids ("webhookID|template", "baseID|tableID") are the original wire contract
// the extension already understands.
type MenuEntry struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Kind         DestinationKind `json:"kind"`
	WebhookID    string          `json:"webhookId,omitempty"`
	TemplateName string          `json:"templateName,omitempty"`
	BaseID       string          `json:"baseId,omitempty"`
	TableID      string          `json:"tableId,omitempty"`
}

// LastUsedDestination remembers the most recent successful send target so the
// popup can preselect it.
type LastUsedDestination struct {
	Kind DestinationKind `json:"kind"`
	ID   string          `json:"id"`
	Name string          `json:"name"`
}
