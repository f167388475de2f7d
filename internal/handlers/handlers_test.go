package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/internal/registry"
	"github.com/webclipper/clipper-api/internal/services"
	"github.com/webclipper/clipper-api/pkg/errors"
	"github.com/webclipper/clipper-api/pkg/ratelimit"
)

// memStore is an in-memory registry.Store for handler tests.
type memStore struct {
	webhooks []models.WebhookConfig
	bases    []models.AirtableBaseConfig
}

func (s *memStore) ListWebhooks(ctx context.Context) ([]models.WebhookConfig, error) {
	return s.webhooks, nil
}

func (s *memStore) UpsertWebhook(ctx context.Context, cfg models.WebhookConfig) error {
	for i := range s.webhooks {
		if s.webhooks[i].ID == cfg.ID {
			s.webhooks[i] = cfg
			return nil
		}
	}
	s.webhooks = append(s.webhooks, cfg)
	return nil
}

func (s *memStore) DeleteWebhook(ctx context.Context, id string) error {
	for i := range s.webhooks {
		if s.webhooks[i].ID == id {
			s.webhooks = append(s.webhooks[:i], s.webhooks[i+1:]...)
			return nil
		}
	}
	return errors.NotFoundError("webhook " + id)
}

func (s *memStore) ListAirtableBases(ctx context.Context) ([]models.AirtableBaseConfig, error) {
	return s.bases, nil
}

func (s *memStore) UpsertAirtableBase(ctx context.Context, cfg models.AirtableBaseConfig) error {
	s.bases = append(s.bases, cfg)
	return nil
}

func (s *memStore) DeleteAirtableBase(ctx context.Context, id string) error {
	return errors.NotFoundError("airtable base " + id)
}

func (s *memStore) ReplaceAll(ctx context.Context, webhooks []models.WebhookConfig, bases []models.AirtableBaseConfig) error {
	s.webhooks, s.bases = webhooks, bases
	return nil
}

func setupRouter(t *testing.T, store *memStore) (*gin.Engine, *registry.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := ratelimit.New()
	t.Cleanup(limiter.Close)

	reg := registry.New(store)
	webhookHandler := NewWebhookHandler(reg)
	destinationHandler := NewDestinationHandler(reg, limiter)
	attachmentHandler := NewAttachmentHandler(services.NewAttachmentStore(time.Hour, 0))
	exportHandler := NewExportHandler(reg)

	router := gin.New()
	router.GET("/api/v1/destinations", destinationHandler.List)
	router.GET("/api/v1/destinations/menu", destinationHandler.Menu)
	router.POST("/api/v1/webhooks", webhookHandler.Create)
	router.POST("/api/v1/webhooks/:id/templates", webhookHandler.AddTemplate)
	router.DELETE("/api/v1/webhooks/:id", webhookHandler.Delete)
	router.POST("/api/v1/attachments", attachmentHandler.Add)
	router.GET("/api/v1/config/export", exportHandler.Export)
	router.POST("/api/v1/config/import", exportHandler.Import)
	return router, reg
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookLifecycle(t *testing.T) {
	router, _ := setupRouter(t, &memStore{})

	// Create a placeholder
	w := doJSON(router, "POST", "/api/v1/webhooks", models.UpsertWebhookRequest{Label: "Zapier", URL: "https://hooks.example.com/z"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.WebhookConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	// Add a template
	w = doJSON(router, "POST", "/api/v1/webhooks/"+created.ID+"/templates", models.AddTemplateRequest{Name: "Lead"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Duplicate template name conflicts
	w = doJSON(router, "POST", "/api/v1/webhooks/"+created.ID+"/templates", models.AddTemplateRequest{Name: "Lead"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Menu shows the webhook and its template entry
	w = doJSON(router, "GET", "/api/v1/destinations/menu", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var menu struct {
		Entries []models.MenuEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &menu))
	require.Len(t, menu.Entries, 2)
	assert.Equal(t, created.ID+"|Lead", menu.Entries[1].ID)

	// Delete
	w = doJSON(router, "DELETE", "/api/v1/webhooks/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, "DELETE", "/api/v1/webhooks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttachmentEndpointRejectsOversize(t *testing.T) {
	router, _ := setupRouter(t, &memStore{})

	big := make([]byte, 15*1024*1024)
	for i := range big {
		big[i] = 'A'
	}
	w := doJSON(router, "POST", "/api/v1/attachments", models.AddAttachmentRequest{
		SessionID: "s1",
		Name:      "huge.bin",
		Data:      string(big),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestExportImportEndpoints(t *testing.T) {
	store := &memStore{webhooks: []models.WebhookConfig{{
		ID: "wh-1", Label: "Zapier", URL: "https://hooks.example.com/z", Templates: []models.Template{},
	}}}
	router, _ := setupRouter(t, store)

	w := doJSON(router, "GET", "/api/v1/config/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "clipper-config.json")

	var exported models.ExportFile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	assert.Equal(t, models.ExportFormatVersion, exported.Version)

	// Re-import the exported file
	w = doJSON(router, "POST", "/api/v1/config/import", exported)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(router, "GET", "/api/v1/destinations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Destinations []models.Destination `json:"destinations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Destinations, 1)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", errors.NotFoundError("x"), http.StatusNotFound},
		{"config", errors.ConfigError("x"), http.StatusBadRequest},
		{"credential format", errors.CredentialFormatError("token", "pat"), http.StatusBadRequest},
		{"duplicate template", errors.ErrDuplicateTemplateName, http.StatusConflict},
		{"duplicate mapping", errors.ErrDuplicateFieldMapping, http.StatusConflict},
		{"duplicate attachment", errors.ErrDuplicateAttachment, http.StatusConflict},
		{"too large", errors.ErrAttachmentTooLarge, http.StatusRequestEntityTooLarge},
		{"network", errors.NetworkError(assert.AnError), http.StatusBadGateway},
		{"http error", &errors.HTTPError{Status: 500}, http.StatusBadGateway},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}
