package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/pkg/errors"
	"github.com/webclipper/clipper-api/pkg/logger"
	"go.uber.org/zap"
)

// Store is the persistence surface the registry works against. The Postgres
// client implements it; tests supply an in-memory fake.
type Store interface {
	ListWebhooks(ctx context.Context) ([]models.WebhookConfig, error)
	UpsertWebhook(ctx context.Context, cfg models.WebhookConfig) error
	DeleteWebhook(ctx context.Context, id string) error
	ListAirtableBases(ctx context.Context) ([]models.AirtableBaseConfig, error)
	UpsertAirtableBase(ctx context.Context, cfg models.AirtableBaseConfig) error
	DeleteAirtableBase(ctx context.Context, id string) error
	ReplaceAll(ctx context.Context, webhooks []models.WebhookConfig, bases []models.AirtableBaseConfig) error
}

// Registry merges both destination collections behind one addressable view.
// It holds no cache: every read goes to the store, so external writes are
// visible immediately.
type Registry struct {
	store Store

	mu       sync.RWMutex
	lastUsed *models.LastUsedDestination
}

// New creates a registry over the given store.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// List returns all destinations, webhooks first, each collection in stored
// order.
func (r *Registry) List(ctx context.Context) ([]models.Destination, error) {
	webhooks, err := r.store.ListWebhooks(ctx)
	if err != nil {
		return nil, err
	}
	bases, err := r.store.ListAirtableBases(ctx)
	if err != nil {
		return nil, err
	}

	destinations := make([]models.Destination, 0, len(webhooks)+len(bases))
	for i := range webhooks {
		destinations = append(destinations, models.Destination{
			ID:          webhooks[i].ID,
			Kind:        models.KindWebhook,
			DisplayName: webhooks[i].Label,
			Webhook:     &webhooks[i],
		})
	}
	for i := range bases {
		destinations = append(destinations, models.Destination{
			ID:          bases[i].ID,
			Kind:        models.KindAirtable,
			DisplayName: bases[i].Name,
			Airtable:    &bases[i],
		})
	}
	return destinations, nil
}

// Get resolves one destination by id across both collections.
func (r *Registry) Get(ctx context.Context, id string) (*models.Destination, error) {
	destinations, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range destinations {
		if destinations[i].ID == id {
			return &destinations[i], nil
		}
	}
	return nil, errors.NotFoundError(fmt.Sprintf("destination %s", id))
}

// CreateWebhook adds a webhook destination. Fields may be empty: the entry is
// a placeholder until the user fills in the URL, and only becomes sendable
// then.
func (r *Registry) CreateWebhook(ctx context.Context, req models.UpsertWebhookRequest) (*models.WebhookConfig, error) {
	label := req.Label
	if label == "" {
		label = "New Webhook"
	}
	cfg := models.WebhookConfig{
		ID:        uuid.New().String(),
		Label:     label,
		URL:       req.URL,
		Templates: req.Templates,
	}
	if cfg.Templates == nil {
		cfg.Templates = []models.Template{}
	}
	if err := validateTemplates(cfg.Templates); err != nil {
		return nil, err
	}
	if err := r.store.UpsertWebhook(ctx, cfg); err != nil {
		return nil, err
	}
	logger.Info("Webhook destination created", zap.String("id", cfg.ID))
	return &cfg, nil
}

// UpdateWebhook replaces the label, URL, and templates of an existing webhook.
func (r *Registry) UpdateWebhook(ctx context.Context, id string, req models.UpsertWebhookRequest) (*models.WebhookConfig, error) {
	cfg, err := r.getWebhook(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Label != "" {
		cfg.Label = req.Label
	}
	cfg.URL = req.URL
	if req.Templates != nil {
		if err := validateTemplates(req.Templates); err != nil {
			return nil, err
		}
		cfg.Templates = req.Templates
	}

	if err := r.store.UpsertWebhook(ctx, *cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DeleteWebhook removes a webhook destination.
func (r *Registry) DeleteWebhook(ctx context.Context, id string) error {
	return r.store.DeleteWebhook(ctx, id)
}

// AddTemplate appends a named template to a webhook. Names are unique per
// webhook, case-sensitive; a duplicate is rejected rather than silently
// renamed so the receiving automation's filters stay trustworthy.
func (r *Registry) AddTemplate(ctx context.Context, webhookID string, req models.AddTemplateRequest) (*models.WebhookConfig, error) {
	cfg, err := r.getWebhook(ctx, webhookID)
	if err != nil {
		return nil, err
	}
	if cfg.HasTemplate(req.Name) {
		return nil, fmt.Errorf("template %q: %w", req.Name, errors.ErrDuplicateTemplateName)
	}

	cfg.Templates = append(cfg.Templates, models.Template{
		Name:        req.Name,
		Description: req.Description,
	})
	if err := r.store.UpsertWebhook(ctx, *cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DeleteTemplate removes a named template from a webhook.
func (r *Registry) DeleteTemplate(ctx context.Context, webhookID, name string) (*models.WebhookConfig, error) {
	cfg, err := r.getWebhook(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	kept := make([]models.Template, 0, len(cfg.Templates))
	found := false
	for _, t := range cfg.Templates {
		if t.Name == name {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return nil, errors.NotFoundError(fmt.Sprintf("template %q", name))
	}

	cfg.Templates = kept
	if err := r.store.UpsertWebhook(ctx, *cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateAirtableBase adds an Airtable destination. Credentials may be empty;
// prefix validation happens at connect time, not here, so placeholders can be
// saved first.
func (r *Registry) CreateAirtableBase(ctx context.Context, req models.UpsertAirtableBaseRequest) (*models.AirtableBaseConfig, error) {
	name := req.Name
	if name == "" {
		name = "New Airtable Base"
	}
	cfg := models.AirtableBaseConfig{
		ID:               uuid.New().String(),
		Name:             name,
		Token:            req.Token,
		BaseID:           req.BaseID,
		ConfiguredTables: map[string]models.TableConfig{},
	}
	if err := r.store.UpsertAirtableBase(ctx, cfg); err != nil {
		return nil, err
	}
	logger.Info("Airtable destination created", zap.String("id", cfg.ID))
	return &cfg, nil
}

// UpdateAirtableBase replaces the name and credentials of an existing base.
// Changing credentials invalidates the cached schema: the table list is
// dropped so stale table/field ids from the old base cannot leak into sends.
func (r *Registry) UpdateAirtableBase(ctx context.Context, id string, req models.UpsertAirtableBaseRequest) (*models.AirtableBaseConfig, error) {
	cfg, err := r.getAirtableBase(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		cfg.Name = req.Name
	}
	credentialsChanged := (req.Token != "" && req.Token != cfg.Token) ||
		(req.BaseID != "" && req.BaseID != cfg.BaseID)
	if req.Token != "" {
		cfg.Token = req.Token
	}
	if req.BaseID != "" {
		cfg.BaseID = req.BaseID
	}
	if credentialsChanged {
		cfg.Tables = nil
		cfg.ConfiguredTables = map[string]models.TableConfig{}
	}

	if err := r.store.UpsertAirtableBase(ctx, *cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DeleteAirtableBase removes an Airtable destination.
func (r *Registry) DeleteAirtableBase(ctx context.Context, id string) error {
	return r.store.DeleteAirtableBase(ctx, id)
}

// SetTables stores the fetched table list for a base, keeping field detail and
// send configuration of tables that still exist under the same id.
func (r *Registry) SetTables(ctx context.Context, baseID string, tables []models.AirtableTable) (*models.AirtableBaseConfig, error) {
	cfg, err := r.getAirtableBase(ctx, baseID)
	if err != nil {
		return nil, err
	}

	previous := make(map[string]models.AirtableTable, len(cfg.Tables))
	for _, t := range cfg.Tables {
		previous[t.ID] = t
	}

	merged := make([]models.AirtableTable, 0, len(tables))
	for _, t := range tables {
		if old, ok := previous[t.ID]; ok && old.FieldsLoaded {
			old.Name = t.Name
			merged = append(merged, old)
			continue
		}
		merged = append(merged, t)
	}
	cfg.Tables = merged

	for tableID := range cfg.ConfiguredTables {
		if cfg.Table(tableID) == nil {
			delete(cfg.ConfiguredTables, tableID)
		}
	}

	if err := r.store.UpsertAirtableBase(ctx, *cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetTableFields stores the second-phase field detail for one table.
func (r *Registry) SetTableFields(ctx context.Context, baseID string, table models.AirtableTable) (*models.AirtableBaseConfig, error) {
	cfg, err := r.getAirtableBase(ctx, baseID)
	if err != nil {
		return nil, err
	}

	existing := cfg.Table(table.ID)
	if existing == nil {
		return nil, errors.NotFoundError(fmt.Sprintf("table %s", table.ID))
	}
	*existing = table

	if err := r.store.UpsertAirtableBase(ctx, *cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetTableConfig replaces the send configuration of one table. Two roles
// mapped to the same field id is a misconfiguration the send form cannot
// express intentionally, so it is rejected here.
func (r *Registry) SetTableConfig(ctx context.Context, baseID, tableID string, req models.SetTableConfigRequest) (*models.AirtableBaseConfig, error) {
	cfg, err := r.getAirtableBase(ctx, baseID)
	if err != nil {
		return nil, err
	}
	if cfg.Table(tableID) == nil {
		return nil, errors.NotFoundError(fmt.Sprintf("table %s", tableID))
	}

	seen := make(map[string]models.Role)
	for role, fieldID := range req.FieldMappings {
		if fieldID == "" {
			continue
		}
		if other, dup := seen[fieldID]; dup {
			return nil, fmt.Errorf("roles %s and %s both map to field %s: %w",
				other, role, fieldID, errors.ErrDuplicateFieldMapping)
		}
		seen[fieldID] = role
	}

	if cfg.ConfiguredTables == nil {
		cfg.ConfiguredTables = map[string]models.TableConfig{}
	}
	cfg.ConfiguredTables[tableID] = models.TableConfig{
		FieldMappings:        req.FieldMappings,
		SelectedCustomFields: req.SelectedCustomFields,
		IsCollapsed:          req.IsCollapsed,
	}

	if err := r.store.UpsertAirtableBase(ctx, *cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// roleKeywords drives field auto-mapping: a field whose lowercased name
// contains a keyword is a candidate for that role.
var roleKeywords = map[models.Role][]string{
	models.RoleURL:         {"url", "link", "website"},
	models.RoleTitle:       {"title", "name", "subject"},
	models.RoleNotes:       {"notes", "description", "body"},
	models.RoleAttachments: {"attachments", "files", "media"},
}

// AutoMapFields suggests field mappings by name keyword. Existing mappings are
// never overwritten, a field is claimed by at most one role, and the
// attachments role only accepts attachment-typed fields.
func AutoMapFields(fields []models.AirtableField, existing map[models.Role]string) map[models.Role]string {
	mapped := make(map[models.Role]string, len(models.Roles))
	claimed := make(map[string]bool)
	for role, fieldID := range existing {
		if fieldID != "" {
			mapped[role] = fieldID
			claimed[fieldID] = true
		}
	}

	for _, role := range models.Roles {
		if mapped[role] != "" {
			continue
		}
		for _, field := range fields {
			if claimed[field.ID] {
				continue
			}
			if role == models.RoleAttachments && field.Type != models.FieldMultipleAttachments {
				continue
			}
			if !matchesKeyword(field.Name, roleKeywords[role]) {
				continue
			}
			mapped[role] = field.ID
			claimed[field.ID] = true
			break
		}
	}
	return mapped
}

func matchesKeyword(fieldName string, keywords []string) bool {
	name := strings.ToLower(fieldName)
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// MenuEntries flattens the registry into context-menu rows. Each webhook gets
// one entry per template plus a bare entry; each base gets one entry per
// configured table. The composite id formats are a wire contract.
func (r *Registry) MenuEntries(ctx context.Context) ([]models.MenuEntry, error) {
	webhooks, err := r.store.ListWebhooks(ctx)
	if err != nil {
		return nil, err
	}
	bases, err := r.store.ListAirtableBases(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]models.MenuEntry, 0)
	for _, w := range webhooks {
		entries = append(entries, models.MenuEntry{
			ID:        w.ID,
			Title:     w.Label,
			Kind:      models.KindWebhook,
			WebhookID: w.ID,
		})
		for _, t := range w.Templates {
			entries = append(entries, models.MenuEntry{
				ID:           w.ID + "|" + t.Name,
				Title:        fmt.Sprintf("%s (%s)", w.Label, t.Name),
				Kind:         models.KindWebhook,
				WebhookID:    w.ID,
				TemplateName: t.Name,
			})
		}
	}
	for _, b := range bases {
		for _, t := range b.Tables {
			if _, configured := b.ConfiguredTables[t.ID]; !configured {
				continue
			}
			entries = append(entries, models.MenuEntry{
				ID:      b.ID + "|" + t.ID,
				Title:   fmt.Sprintf("%s: %s", b.Name, t.Name),
				Kind:    models.KindAirtable,
				BaseID:  b.ID,
				TableID: t.ID,
			})
		}
	}
	return entries, nil
}

// Export serializes both collections into the versioned envelope.
func (r *Registry) Export(ctx context.Context) (*models.ExportFile, error) {
	webhooks, err := r.store.ListWebhooks(ctx)
	if err != nil {
		return nil, err
	}
	bases, err := r.store.ListAirtableBases(ctx)
	if err != nil {
		return nil, err
	}
	if webhooks == nil {
		webhooks = []models.WebhookConfig{}
	}
	if bases == nil {
		bases = []models.AirtableBaseConfig{}
	}
	return &models.ExportFile{
		Version:         models.ExportFormatVersion,
		WebhookConfigs:  webhooks,
		AirtableConfigs: bases,
	}, nil
}

// Import replaces both collections with the parsed file contents. The whole
// file is validated before anything is written, so a bad file leaves the
// registry untouched.
func (r *Registry) Import(ctx context.Context, data []byte) (*models.ExportFile, error) {
	file, err := models.ParseImport(data)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, w := range file.WebhookConfigs {
		if seen[w.ID] {
			return nil, fmt.Errorf("duplicate destination id %q in import", w.ID)
		}
		seen[w.ID] = true
		if err := validateTemplates(w.Templates); err != nil {
			return nil, fmt.Errorf("webhook %q: %w", w.ID, err)
		}
	}
	for _, b := range file.AirtableConfigs {
		if seen[b.ID] {
			return nil, fmt.Errorf("duplicate destination id %q in import", b.ID)
		}
		seen[b.ID] = true
	}

	if err := r.store.ReplaceAll(ctx, file.WebhookConfigs, file.AirtableConfigs); err != nil {
		return nil, err
	}

	logger.Info("Configuration imported",
		zap.Int("webhooks", len(file.WebhookConfigs)),
		zap.Int("airtable_bases", len(file.AirtableConfigs)))
	return file, nil
}

// LastUsed returns the most recent successful send target, or nil.
func (r *Registry) LastUsed() *models.LastUsedDestination {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastUsed
}

// SetLastUsed records a successful send target. Kept in memory only; it is a
// convenience preselection, not configuration.
func (r *Registry) SetLastUsed(d models.LastUsedDestination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUsed = &d
}

func (r *Registry) getWebhook(ctx context.Context, id string) (*models.WebhookConfig, error) {
	webhooks, err := r.store.ListWebhooks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range webhooks {
		if webhooks[i].ID == id {
			return &webhooks[i], nil
		}
	}
	return nil, errors.NotFoundError(fmt.Sprintf("webhook %s", id))
}

func (r *Registry) getAirtableBase(ctx context.Context, id string) (*models.AirtableBaseConfig, error) {
	bases, err := r.store.ListAirtableBases(ctx)
	if err != nil {
		return nil, err
	}
	for i := range bases {
		if bases[i].ID == id {
			return &bases[i], nil
		}
	}
	return nil, errors.NotFoundError(fmt.Sprintf("airtable base %s", id))
}

func validateTemplates(templates []models.Template) error {
	seen := make(map[string]bool, len(templates))
	for _, t := range templates {
		if t.Name == "" {
			return fmt.Errorf("template name must not be empty")
		}
		if seen[t.Name] {
			return fmt.Errorf("template %q: %w", t.Name, errors.ErrDuplicateTemplateName)
		}
		seen[t.Name] = true
	}
	return nil
}
