package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/internal/registry"
	"github.com/webclipper/clipper-api/pkg/airtable"
	"github.com/webclipper/clipper-api/pkg/errors"
	"github.com/webclipper/clipper-api/pkg/httpclient"
	"github.com/webclipper/clipper-api/pkg/logger"
	"github.com/webclipper/clipper-api/pkg/metrics"
	"github.com/webclipper/clipper-api/pkg/trigger"
	"go.uber.org/zap"
)

// Dispatcher resolves a send request to its destination and performs the
// outbound call. Outcomes are classified, never raw transport errors: the
// response always says what failed in terms the user can act on.
type Dispatcher struct {
	registry    *registry.Registry
	airtable    *airtable.Client
	attachments *AttachmentStore
	httpClient  httpclient.Client

	// clipSentTriggerURL, when set, receives a fire-and-forget GET after each
	// successful send.
	clipSentTriggerURL string

	now func() time.Time
}

// NewDispatcher creates a dispatcher. triggerURL may be empty.
func NewDispatcher(reg *registry.Registry, airtableClient *airtable.Client, attachments *AttachmentStore, httpClient httpclient.Client, triggerURL string) *Dispatcher {
	return &Dispatcher{
		registry:           reg,
		airtable:           airtableClient,
		attachments:        attachments,
		httpClient:         httpClient,
		clipSentTriggerURL: triggerURL,
		now:                time.Now,
	}
}

// Send dispatches one clip. The destination id may be a plain registry id or
// a composite context-menu id ("webhookID|template", "baseID|tableID"); the
// composite parts fill in template/table when the request leaves them empty.
func (d *Dispatcher) Send(ctx context.Context, req models.SendRequest) *models.SendResponse {
	destinationID, template, tableID := resolveCompositeID(req)

	dest, err := d.registry.Get(ctx, destinationID)
	if err != nil {
		return failResponse("", err)
	}

	clip := &models.ClipPayload{
		URL:             req.URL,
		Title:           req.Title,
		Notes:           req.Notes,
		MetaDescription: req.MetaDescription,
		Timestamp:       d.now(),
	}
	if req.SessionID != "" {
		clip.Attachments = d.attachments.List(req.SessionID)
	}

	var resp *models.SendResponse
	switch dest.Kind {
	case models.KindWebhook:
		resp = d.sendWebhook(dest, clip, template)
	case models.KindAirtable:
		resp = d.sendAirtable(ctx, dest, clip, tableID, req.CustomFields)
	default:
		return failResponse(string(dest.Kind), fmt.Errorf("unknown destination kind %q", dest.Kind))
	}

	metrics.ClipsSent.WithLabelValues(resp.Kind, outcomeLabel(resp.Success)).Inc()

	if resp.Success {
		if req.SessionID != "" {
			d.attachments.Clear(req.SessionID)
		}
		d.recordLastUsed(dest, tableID)
		if d.clipSentTriggerURL != "" {
			trigger.CallAsync(d.clipSentTriggerURL, resp.RecordID, d.httpClient)
		}
	}

	return resp
}

// resolveCompositeID splits a composite context-menu id into its parts.
// Explicit request fields win over the composite suffix.
func resolveCompositeID(req models.SendRequest) (destinationID, template, tableID string) {
	destinationID = req.DestinationID
	template = req.Template
	tableID = req.TableID

	parts := strings.SplitN(req.DestinationID, "|", 2)
	if len(parts) != 2 {
		return
	}
	destinationID = parts[0]

	// The suffix is a table id for Airtable entries and a template name for
	// webhook entries. Table ids carry a fixed literal prefix.
	if strings.HasPrefix(parts[1], "tbl") {
		if tableID == "" {
			tableID = parts[1]
		}
	} else if template == "" {
		template = parts[1]
	}
	return
}

func (d *Dispatcher) sendWebhook(dest *models.Destination, clip *models.ClipPayload, template string) *models.SendResponse {
	cfg := dest.Webhook
	if err := cfg.Sendable(); err != nil {
		return failResponse(string(models.KindWebhook), err)
	}
	if template != "" && !cfg.HasTemplate(template) {
		return failResponse(string(models.KindWebhook),
			errors.ConfigError(fmt.Sprintf("template %q does not exist on webhook %q", template, cfg.Label)))
	}

	payload := BuildWebhookPayload(clip, template)
	body, err := json.Marshal(payload)
	if err != nil {
		return failResponse(string(models.KindWebhook), fmt.Errorf("failed to encode payload: %w", err))
	}

	start := time.Now()
	resp, err := d.httpClient.Post(cfg.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		d.finishWebhookCall(start, "error", zap.Error(err))
		return failResponse(string(models.KindWebhook), errors.NetworkError(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		d.finishWebhookCall(start, "error", zap.Error(err))
		return failResponse(string(models.KindWebhook), errors.NetworkError(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.finishWebhookCall(start, "error", zap.Int("status", resp.StatusCode))
		return failResponse(string(models.KindWebhook), &errors.HTTPError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       string(respBody),
		})
	}

	d.finishWebhookCall(start, "success", zap.Int("status", resp.StatusCode))
	return &models.SendResponse{
		Success:    true,
		Kind:       string(models.KindWebhook),
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Body:       string(respBody),
	}
}

func (d *Dispatcher) finishWebhookCall(start time.Time, status string, fields ...zap.Field) {
	duration := metrics.MeasureDuration(start)
	metrics.WebhookSendDuration.WithLabelValues(status).Observe(duration)
	metrics.WebhookSendTotal.WithLabelValues(status).Inc()
	logger.LogAPICall("webhook", "send", status, duration, fields...)
}

func (d *Dispatcher) sendAirtable(ctx context.Context, dest *models.Destination, clip *models.ClipPayload, tableID string, custom []models.CustomFieldValue) *models.SendResponse {
	cfg := dest.Airtable
	kind := string(models.KindAirtable)

	// Configuration is checked in full before any network traffic
	if cfg.Token == "" || cfg.BaseID == "" {
		return failResponse(kind, errors.ConfigError("Airtable credentials are not configured"))
	}
	if tableID == "" {
		return failResponse(kind, errors.ConfigError("no table selected"))
	}
	if cfg.Table(tableID) == nil {
		return failResponse(kind, errors.ConfigError(fmt.Sprintf("table %s is not part of base %q", tableID, cfg.Name)))
	}
	tableCfg, configured := cfg.ConfiguredTables[tableID]
	if !configured {
		return failResponse(kind, errors.ConfigError("table is not configured for sending"))
	}

	fields := BuildAirtableFields(clip, tableCfg, custom)
	if len(fields) == 0 {
		return failResponse(kind, errors.ConfigError("no fields mapped, record would be empty"))
	}

	recordID, err := d.airtable.CreateRecord(ctx, cfg.Connection(), tableID, fields)
	if err != nil {
		return failResponse(kind, err)
	}

	return &models.SendResponse{
		Success:  true,
		Kind:     kind,
		RecordID: recordID,
	}
}

func (d *Dispatcher) recordLastUsed(dest *models.Destination, tableID string) {
	last := models.LastUsedDestination{
		Kind: dest.Kind,
		ID:   dest.ID,
		Name: dest.DisplayName,
	}
	if dest.Kind == models.KindAirtable && tableID != "" {
		last.ID = dest.ID + "|" + tableID
		if table := dest.Airtable.Table(tableID); table != nil {
			last.Name = dest.DisplayName + " - " + table.Name
		}
	}
	d.registry.SetLastUsed(last)
}

// failResponse classifies an error into the response shape. HTTP failures
// keep status, status text, and body so the user can see what the receiving
// end said.
func failResponse(kind string, err error) *models.SendResponse {
	resp := &models.SendResponse{
		Success: false,
		Kind:    kind,
		Error:   err.Error(),
	}
	if httpErr, ok := errors.AsHTTPError(err); ok {
		resp.Status = httpErr.Status
		resp.StatusText = httpErr.StatusText
		resp.Body = httpErr.Body
	}
	return resp
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
