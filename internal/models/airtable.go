package models

// FieldType is the Airtable field type enum, covering the scalar, select,
// collaborator, and attachment types the send form can render.
type FieldType string

const (
	FieldSingleLineText        FieldType = "singleLineText"
	FieldMultilineText         FieldType = "multilineText"
	FieldRichText              FieldType = "richText"
	FieldCheckbox              FieldType = "checkbox"
	FieldNumber                FieldType = "number"
	FieldCurrency              FieldType = "currency"
	FieldPercent               FieldType = "percent"
	FieldDate                  FieldType = "date"
	FieldDateTime              FieldType = "dateTime"
	FieldSingleSelect          FieldType = "singleSelect"
	FieldMultipleSelects       FieldType = "multipleSelects"
	FieldSingleCollaborator    FieldType = "singleCollaborator"
	FieldMultipleCollaborators FieldType = "multipleCollaborators"
	FieldMultipleAttachments   FieldType = "multipleAttachments"
)

// IsMulti reports whether the field holds an array of option/record ids.
func (t FieldType) IsMulti() bool {
	return t == FieldMultipleSelects || t == FieldMultipleCollaborators
}

// SelectChoice is one option of a select-type field.
type SelectChoice struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// FieldOptions carries type-dependent field metadata. Select types have
// choices; collaborator types have none here (the metadata API does not expose
// collaborator lists, see Collaborator).
type FieldOptions struct {
	Choices []SelectChoice `json:"choices,omitempty"`
}

// AirtableField is one field of a table schema.
type AirtableField struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Type    FieldType     `json:"type"`
	Options *FieldOptions `json:"options,omitempty"`
}

// Collaborator is a base collaborator identity extracted from sampled records.
type Collaborator struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AirtableTable is one table of a connected base. Fields is present only after
// the second-phase load; FieldsLoaded makes the state explicit instead of
// encoding it as field presence.
type AirtableTable struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	PrimaryFieldID string          `json:"primaryFieldId,omitempty"`
	FieldsLoaded   bool            `json:"fieldsLoaded"`
	Fields         []AirtableField `json:"fields,omitempty"`
}

// TableState is the explicit per-table schema-load state. Transitions are
// one-directional and user-triggered: Unconfigured -> NamesLoaded (connect)
// -> FieldsLoaded (per-table load). There is no background refresh.
type TableState string

const (
	TableUnconfigured TableState = "unconfigured"
	TableNamesLoaded  TableState = "namesLoaded"
	TableFieldsLoaded TableState = "fieldsLoaded"
)

// State derives the schema-load state for the table.
func (t *AirtableTable) State() TableState {
	if t.FieldsLoaded {
		return TableFieldsLoaded
	}
	if t.ID != "" {
		return TableNamesLoaded
	}
	return TableUnconfigured
}

// Role is a logical payload slot that a field mapping binds to a concrete
// Airtable field id.
type Role string

const (
	RoleURL         Role = "url"
	RoleTitle       Role = "title"
	RoleNotes       Role = "notes"
	RoleAttachments Role = "attachments"
)

// Roles lists all mapping roles in a stable order.
var Roles = []Role{RoleURL, RoleTitle, RoleNotes, RoleAttachments}

// TableConfig is the user's send configuration for one table.
type TableConfig struct {
	FieldMappings        map[Role]string `json:"fieldMappings"`
	SelectedCustomFields []string        `json:"selectedCustomFields"`
	IsCollapsed          bool            `json:"isCollapsed"`
}

// AirtableBaseConfig is the configuration of one connected Airtable base.
// Tables is nil until the first successful schema fetch.
type AirtableBaseConfig struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Token            string                 `json:"token"`
	BaseID           string                 `json:"baseId"`
	Tables           []AirtableTable        `json:"tables,omitempty"`
	ConfiguredTables map[string]TableConfig `json:"configuredTables"`
}

// Table returns the table with the given id, or nil.
func (b *AirtableBaseConfig) Table(tableID string) *AirtableTable {
	for i := range b.Tables {
		if b.Tables[i].ID == tableID {
			return &b.Tables[i]
		}
	}
	return nil
}

// AirtableConnection is the minimal credential pair used for API calls.
type AirtableConnection struct {
	Token  string
	BaseID string
}

// Connection extracts the credential pair from the base config.
func (b *AirtableBaseConfig) Connection() AirtableConnection {
	return AirtableConnection{Token: b.Token, BaseID: b.BaseID}
}
