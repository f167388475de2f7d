package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/pkg/errors"
	"github.com/webclipper/clipper-api/pkg/httpclient"
	"github.com/webclipper/clipper-api/pkg/logger"
	"github.com/webclipper/clipper-api/pkg/metrics"
	"github.com/webclipper/clipper-api/pkg/ratelimit"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the Airtable REST API root. Overridable for tests.
	DefaultBaseURL = "https://api.airtable.com"

	tokenPrefix = "pat"
	basePrefix  = "app"
	tablePrefix = "tbl"

	// collaboratorSampleSize bounds the record sample used to derive
	// collaborator choice lists (see FetchCollaborators).
	collaboratorSampleSize = 100
)

// Client talks to the Airtable REST API. Credentials are per call, not per
// client, because every configured base carries its own personal access token.
// All traffic is admitted through the per-base rate limiter.
type Client struct {
	http    httpclient.Client
	limiter *ratelimit.Limiter
	baseURL string
}

// NewClient creates an Airtable client. An empty baseURL selects the real API.
func NewClient(httpClient httpclient.Client, limiter *ratelimit.Limiter, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpClient, limiter: limiter, baseURL: baseURL}
}

// ValidateConnection fails fast when credentials don't match their required
// literal prefixes, before any network call is made.
func ValidateConnection(conn models.AirtableConnection) error {
	if conn.Token == "" || conn.BaseID == "" {
		return errors.ConfigError("Airtable token and base ID are required")
	}
	if len(conn.Token) < len(tokenPrefix) || conn.Token[:len(tokenPrefix)] != tokenPrefix {
		return errors.CredentialFormatError("token", tokenPrefix)
	}
	if len(conn.BaseID) < len(basePrefix) || conn.BaseID[:len(basePrefix)] != basePrefix {
		return errors.CredentialFormatError("base ID", basePrefix)
	}
	return nil
}

func validateTableID(tableID string) error {
	if tableID == "" {
		return errors.ConfigError("table ID is required")
	}
	if len(tableID) < len(tablePrefix) || tableID[:len(tablePrefix)] != tablePrefix {
		return errors.CredentialFormatError("table ID", tablePrefix)
	}
	return nil
}

// Wire shapes of the metadata and records endpoints.

type metaTablesResponse struct {
	Tables []metaTable `json:"tables"`
}

type metaTable struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	PrimaryFieldID string      `json:"primaryFieldId"`
	Fields         []metaField `json:"fields"`
}

type metaField struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Options *struct {
		Choices []models.SelectChoice `json:"choices"`
	} `json:"options"`
}

type recordsResponse struct {
	Records []struct {
		ID          string                 `json:"id"`
		Fields      map[string]interface{} `json:"fields"`
		CreatedTime string                 `json:"createdTime"`
	} `json:"records"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchTableNames is phase one of schema discovery: table ids and names only,
// FieldsLoaded=false. Field detail is deliberately deferred to a per-table
// fetch so the initial connect stays cheap on large bases.
func (c *Client) FetchTableNames(ctx context.Context, conn models.AirtableConnection) ([]models.AirtableTable, error) {
	if err := ValidateConnection(conn); err != nil {
		return nil, err
	}

	meta, err := c.fetchSchema(ctx, conn, "fetchTableNames")
	if err != nil {
		return nil, err
	}

	tables := make([]models.AirtableTable, 0, len(meta.Tables))
	for _, t := range meta.Tables {
		tables = append(tables, models.AirtableTable{
			ID:           t.ID,
			Name:         t.Name,
			FieldsLoaded: false,
		})
	}
	return tables, nil
}

// FetchTableFields is phase two: full field metadata for one table.
func (c *Client) FetchTableFields(ctx context.Context, conn models.AirtableConnection, tableID string) (*models.AirtableTable, error) {
	if err := ValidateConnection(conn); err != nil {
		return nil, err
	}
	if err := validateTableID(tableID); err != nil {
		return nil, err
	}

	meta, err := c.fetchSchema(ctx, conn, "fetchTableFields")
	if err != nil {
		return nil, err
	}

	for _, t := range meta.Tables {
		if t.ID != tableID {
			continue
		}
		table := &models.AirtableTable{
			ID:             t.ID,
			Name:           t.Name,
			PrimaryFieldID: t.PrimaryFieldID,
			FieldsLoaded:   true,
			Fields:         make([]models.AirtableField, 0, len(t.Fields)),
		}
		for _, f := range t.Fields {
			table.Fields = append(table.Fields, convertField(f))
		}
		return table, nil
	}

	return nil, errors.NotFoundError(fmt.Sprintf("table %s in base %s", tableID, conn.BaseID))
}

// convertField maps a metadata field to the model. Select types keep their
// choice lists; collaborator types get empty options because the metadata
// endpoint does not expose collaborator identities (see FetchCollaborators).
func convertField(f metaField) models.AirtableField {
	field := models.AirtableField{
		ID:   f.ID,
		Name: f.Name,
		Type: models.FieldType(f.Type),
	}
	switch field.Type {
	case models.FieldSingleSelect, models.FieldMultipleSelects:
		field.Options = &models.FieldOptions{}
		if f.Options != nil {
			field.Options.Choices = f.Options.Choices
		}
	case models.FieldSingleCollaborator, models.FieldMultipleCollaborators:
		field.Options = &models.FieldOptions{}
	}
	return field
}

// CreateRecord creates one record with typecast enabled and returns its id.
func (c *Client) CreateRecord(ctx context.Context, conn models.AirtableConnection, tableID string, fields map[string]interface{}) (string, error) {
	if conn.Token == "" || conn.BaseID == "" || tableID == "" {
		return "", errors.ConfigError("Airtable send requires token, base ID, and table ID")
	}

	body, err := json.Marshal(models.AirtableRecordBody{
		Records:  []models.AirtableRecordFields{{Fields: fields}},
		Typecast: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode record body: %w", err)
	}

	url := fmt.Sprintf("%s/v0/%s/%s", c.baseURL, conn.BaseID, tableID)

	var created recordsResponse
	if err := c.call(ctx, conn, "createRecord", http.MethodPost, url, body, &created); err != nil {
		return "", err
	}

	if len(created.Records) == 0 {
		return "", fmt.Errorf("no record returned from Airtable")
	}
	return created.Records[0].ID, nil
}

// FetchCollaborators derives the collaborator choice list for a table by
// sampling up to 100 existing records and collecting the distinct identities
// referenced by any collaborator field.
//
// This is a workaround: the metadata endpoint exposes no collaborator choices.
// It is inherently incomplete: collaborators referenced only outside the
// sampled records will be missing from the list.
func (c *Client) FetchCollaborators(ctx context.Context, conn models.AirtableConnection, tableID string) ([]models.Collaborator, error) {
	if err := ValidateConnection(conn); err != nil {
		return nil, err
	}
	if err := validateTableID(tableID); err != nil {
		return nil, err
	}

	meta, err := c.fetchSchema(ctx, conn, "fetchCollaborators")
	if err != nil {
		return nil, err
	}

	var collaboratorFieldNames []string
	for _, t := range meta.Tables {
		if t.ID != tableID {
			continue
		}
		for _, f := range t.Fields {
			ft := models.FieldType(f.Type)
			if ft == models.FieldSingleCollaborator || ft == models.FieldMultipleCollaborators {
				collaboratorFieldNames = append(collaboratorFieldNames, f.Name)
			}
		}
	}
	if len(collaboratorFieldNames) == 0 {
		return []models.Collaborator{}, nil
	}

	url := fmt.Sprintf("%s/v0/%s/%s?maxRecords=%d", c.baseURL, conn.BaseID, tableID, collaboratorSampleSize)

	var sample recordsResponse
	if err := c.call(ctx, conn, "fetchCollaborators", http.MethodGet, url, nil, &sample); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	collaborators := []models.Collaborator{}
	for _, record := range sample.Records {
		for _, fieldName := range collaboratorFieldNames {
			value, ok := record.Fields[fieldName]
			if !ok {
				continue
			}
			// singleCollaborator holds one object, multipleCollaborators an array
			entries, isMulti := value.([]interface{})
			if !isMulti {
				entries = []interface{}{value}
			}
			for _, entry := range entries {
				obj, ok := entry.(map[string]interface{})
				if !ok {
					continue
				}
				id, _ := obj["id"].(string)
				if id == "" || seen[id] {
					continue
				}
				seen[id] = true
				name, _ := obj["name"].(string)
				if name == "" {
					name = "Unknown"
				}
				email, _ := obj["email"].(string)
				collaborators = append(collaborators, models.Collaborator{ID: id, Name: name, Email: email})
			}
		}
	}

	logger.Info("Collaborators extracted from record sample",
		zap.String("table_id", tableID),
		zap.Int("sampled_records", len(sample.Records)),
		zap.Int("collaborators", len(collaborators)))

	return collaborators, nil
}

// fetchSchema reads the full base schema from the metadata endpoint.
func (c *Client) fetchSchema(ctx context.Context, conn models.AirtableConnection, operation string) (*metaTablesResponse, error) {
	url := fmt.Sprintf("%s/v0/meta/bases/%s/tables", c.baseURL, conn.BaseID)

	var meta metaTablesResponse
	if err := c.call(ctx, conn, operation, http.MethodGet, url, nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// call performs one throttled, instrumented API request and decodes the
// response into out. Non-2xx responses become HTTPError with the curated
// user-facing message; transport failures become ErrNetwork.
func (c *Client) call(ctx context.Context, conn models.AirtableConnection, operation, method, url string, body []byte, out interface{}) error {
	start := time.Now()

	if st := c.limiter.Status(conn.BaseID); !st.CanSendImmediately {
		metrics.RateLimitWaits.Inc()
	}

	var callErr error
	err := c.limiter.Throttle(ctx, conn.BaseID, func() error {
		callErr = c.doRequest(ctx, conn, method, url, body, out)
		return callErr
	})
	if err != nil && callErr == nil {
		// Throttle itself failed (context cancelled while waiting)
		callErr = err
	}

	duration := metrics.MeasureDuration(start)
	status := "success"
	if callErr != nil {
		status = "error"
	}
	metrics.AirtableRequestDuration.WithLabelValues(operation, status).Observe(duration)
	metrics.AirtableRequestTotal.WithLabelValues(operation, status).Inc()
	if callErr != nil {
		logger.LogAPICall("airtable", operation, "error", duration, zap.Error(callErr))
	} else {
		logger.LogAPICall("airtable", operation, "success", duration, zap.String("base_id", conn.BaseID))
	}

	return callErr
}

func (c *Client) doRequest(ctx context.Context, conn models.AirtableConnection, method, url string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+conn.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &errors.HTTPError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       userMessage(resp.StatusCode, respBody),
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode Airtable response: %w", err)
		}
	}
	return nil
}

// userMessage maps an Airtable error status to the message shown to the user.
// The 422 case quotes Airtable's own message verbatim because it names the
// offending field. 429 must still be handled here: the limiter is advisory
// and local-only.
func userMessage(status int, body []byte) string {
	apiMsg := "Unknown error"
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiMsg = parsed.Error.Message
	}

	switch status {
	case http.StatusUnauthorized:
		return "Invalid or expired Personal Access Token."
	case http.StatusForbidden:
		return "Access denied. Check token permissions."
	case http.StatusNotFound:
		return "Base or Table not found. Check IDs."
	case http.StatusUnprocessableEntity:
		return fmt.Sprintf("Invalid field data: %s", apiMsg)
	case http.StatusTooManyRequests:
		return "Rate limit exceeded. Please wait and try again."
	default:
		return fmt.Sprintf("Airtable API Error (%d): %s", status, apiMsg)
	}
}
