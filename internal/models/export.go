package models

import (
	"encoding/json"
	"fmt"
)

// ExportFormatVersion is the current export envelope version.
const ExportFormatVersion = 2

// ExportFile is the versioned envelope serializing both destination
// collections together.
type ExportFile struct {
	Version         int                  `json:"version"`
	WebhookConfigs  []WebhookConfig      `json:"webhookConfigs"`
	AirtableConfigs []AirtableBaseConfig `json:"airtableConfigs"`
}

// legacyWebhook is the pre-envelope export shape: a flat array of webhook-only
// records. It used "label" for the display name, same as the current model,
// but carried no version tag and no Airtable collection.
type legacyWebhook struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	URL       string     `json:"url"`
	Templates []Template `json:"templates"`
}

// ParseImport decodes an exported configuration file. It accepts the current
// versioned envelope and the legacy flat webhook array, normalizing the latter
// into the current model.
func ParseImport(data []byte) (*ExportFile, error) {
	// Current format first: an object with a version tag
	var envelope ExportFile
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Version > 0 {
		if envelope.Version > ExportFormatVersion {
			return nil, fmt.Errorf("unsupported export format version %d", envelope.Version)
		}
		normalize(&envelope)
		return &envelope, nil
	}

	// Legacy format: bare array of webhook records
	var legacy []legacyWebhook
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("unrecognized import format: %w", err)
	}

	out := &ExportFile{Version: ExportFormatVersion}
	for _, l := range legacy {
		if l.ID == "" || l.URL == "" {
			return nil, fmt.Errorf("legacy import entry missing id or url")
		}
		out.WebhookConfigs = append(out.WebhookConfigs, WebhookConfig{
			ID:        l.ID,
			Label:     l.Label,
			URL:       l.URL,
			Templates: l.Templates,
		})
	}
	normalize(out)
	return out, nil
}

// normalize fills nil sub-collections so downstream code never branches on
// absent maps or slices.
func normalize(f *ExportFile) {
	for i := range f.WebhookConfigs {
		if f.WebhookConfigs[i].Templates == nil {
			f.WebhookConfigs[i].Templates = []Template{}
		}
	}
	for i := range f.AirtableConfigs {
		if f.AirtableConfigs[i].ConfiguredTables == nil {
			f.AirtableConfigs[i].ConfiguredTables = map[string]TableConfig{}
		}
	}
}
