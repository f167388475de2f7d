package models

// SendRequest is the popup/context-menu send action. Capture context comes
// from the client; SessionID ties the send to its pending attachments.
type SendRequest struct {
	DestinationID   string             `json:"destinationId" binding:"required"`
	TableID         string             `json:"tableId"`
	Template        string             `json:"template"`
	URL             string             `json:"url" binding:"required,url"`
	Title           string             `json:"title"`
	Notes           string             `json:"notes"`
	MetaDescription string             `json:"metaDescription"`
	SessionID       string             `json:"sessionId"`
	CustomFields    []CustomFieldValue `json:"customFields"`
}

// SendResponse reports a classified dispatch outcome.
type SendResponse struct {
	Success    bool   `json:"success"`
	Kind       string `json:"kind"`
	RecordID   string `json:"recordId,omitempty"`
	Status     int    `json:"status,omitempty"`
	StatusText string `json:"statusText,omitempty"`
	Body       string `json:"body,omitempty"`
	Error      string `json:"error,omitempty"`
}

// UpsertWebhookRequest carries a webhook config mutation from the settings
// surface. URL may be empty for placeholder entries; it is validated for
// sendability at dispatch time instead.
type UpsertWebhookRequest struct {
	Label     string     `json:"label"`
	URL       string     `json:"url" binding:"omitempty,url"`
	Templates []Template `json:"templates"`
}

// AddTemplateRequest adds one named template to a webhook.
type AddTemplateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// UpsertAirtableBaseRequest carries an Airtable base config mutation.
// Token/BaseID prefixes are checked at connect time so placeholders can be
// saved before the user pastes credentials.
type UpsertAirtableBaseRequest struct {
	Name   string `json:"name"`
	Token  string `json:"token"`
	BaseID string `json:"baseId"`
}

// SetTableConfigRequest replaces the send configuration of one table.
type SetTableConfigRequest struct {
	FieldMappings        map[Role]string `json:"fieldMappings" binding:"required"`
	SelectedCustomFields []string        `json:"selectedCustomFields"`
	IsCollapsed          bool            `json:"isCollapsed"`
}

// AddAttachmentRequest adds one base64-encoded file to a send session.
type AddAttachmentRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Name      string `json:"name" binding:"required"`
	MimeType  string `json:"type"`
	Data      string `json:"data" binding:"required,base64"`
}
