package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/internal/registry"
	"github.com/webclipper/clipper-api/pkg/airtable"
	"github.com/webclipper/clipper-api/pkg/errors"
	"github.com/webclipper/clipper-api/pkg/ratelimit"
)

// MockHTTPClient mocks the HTTP client
type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Get(url string) (*http.Response, error) {
	args := m.Called(url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}

func (m *MockHTTPClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	args := m.Called(url, contentType, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}

// memStore is a minimal in-memory registry.Store for dispatcher tests.
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

func (s *memStore) DeleteWebhook(ctx context.Context, id string) error { return nil }

func (s *memStore) ListAirtableBases(ctx context.Context) ([]models.AirtableBaseConfig, error) {
	return s.bases, nil
}

func (s *memStore) UpsertAirtableBase(ctx context.Context, cfg models.AirtableBaseConfig) error {
	for i := range s.bases {
		if s.bases[i].ID == cfg.ID {
			s.bases[i] = cfg
			return nil
		}
	}
	s.bases = append(s.bases, cfg)
	return nil
}

func (s *memStore) DeleteAirtableBase(ctx context.Context, id string) error { return nil }

func (s *memStore) ReplaceAll(ctx context.Context, webhooks []models.WebhookConfig, bases []models.AirtableBaseConfig) error {
	s.webhooks, s.bases = webhooks, bases
	return nil
}

func newDispatcher(t *testing.T, store *memStore, mockClient *MockHTTPClient) (*Dispatcher, *registry.Registry) {
	t.Helper()
	limiter := ratelimit.New()
	t.Cleanup(limiter.Close)

	reg := registry.New(store)
	attachments := NewAttachmentStore(time.Hour, 0)
	airtableClient := airtable.NewClient(mockClient, limiter, "")
	d := NewDispatcher(reg, airtableClient, attachments, mockClient, "")
	d.now = func() time.Time { return time.Date(2026, time.August, 30, 14, 5, 0, 0, time.UTC) }
	return d, reg
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, time.August, 30, 14, 5, 0, 0, time.UTC)
	assert.Equal(t, "30. August 2026, 14:05", FormatTimestamp(ts))

	ts = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "1. März 2025, 09:00", FormatTimestamp(ts))
}

func TestBuildWebhookPayload_ExactShape(t *testing.T) {
	clip := &models.ClipPayload{
		URL:             "https://example.com/article",
		Title:           "Example Article",
		Notes:           "worth reading",
		MetaDescription: "An example",
		Timestamp:       time.Date(2026, time.August, 30, 14, 5, 0, 0, time.UTC),
	}

	payload := BuildWebhookPayload(clip, "Lead")

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "https://example.com/article", decoded["url"])
	assert.Equal(t, "Lead", decoded["template"])
	assert.Equal(t, "30. August 2026, 14:05", decoded["timestamp"])
	attachments, ok := decoded["attachments"].([]interface{})
	require.True(t, ok, "attachments must be an array, never null")
	assert.Empty(t, attachments)

	// Template is present even when unselected
	empty := BuildWebhookPayload(clip, "")
	data, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"template":""`)
}

func TestBuildAirtableFields(t *testing.T) {
	clip := &models.ClipPayload{
		URL:   "https://example.com",
		Title: "Example",
		Notes: "",
	}
	cfg := models.TableConfig{
		FieldMappings: map[models.Role]string{
			models.RoleURL:         "fldA",
			models.RoleTitle:       "fldB",
			models.RoleNotes:       "fldC",
			models.RoleAttachments: "fldD",
		},
	}

	t.Run("maps roles and omits blanks", func(t *testing.T) {
		fields := BuildAirtableFields(clip, cfg, nil)
		assert.Equal(t, "https://example.com", fields["fldA"])
		assert.Equal(t, "Example", fields["fldB"])
		assert.NotContains(t, fields, "fldC", "blank notes are omitted, not sent empty")
		assert.NotContains(t, fields, "fldD", "attachments are never sent to Airtable")
	})

	t.Run("coerces custom values by type", func(t *testing.T) {
		custom := []models.CustomFieldValue{
			{FieldID: "fldCheck", Type: models.FieldCheckbox, Value: true},
			{FieldID: "fldTags", Type: models.FieldMultipleSelects, Value: []interface{}{"go", "", "news"}},
			{FieldID: "fldEmpty", Type: models.FieldMultipleSelects, Value: []interface{}{""}},
			{FieldID: "fldText", Type: models.FieldSingleLineText, Value: "hello"},
			{FieldID: "fldBlank", Type: models.FieldSingleLineText, Value: ""},
			{FieldID: "fldNum", Type: models.FieldNumber, Value: "42"},
		}

		fields := BuildAirtableFields(clip, cfg, custom)
		assert.Equal(t, true, fields["fldCheck"])
		assert.Equal(t, []string{"go", "news"}, fields["fldTags"])
		assert.NotContains(t, fields, "fldEmpty")
		assert.Equal(t, "hello", fields["fldText"])
		assert.NotContains(t, fields, "fldBlank")
		assert.Equal(t, "42", fields["fldNum"], "numbers stay strings, typecast converts them")
	})
}

func TestAttachmentStore(t *testing.T) {
	// base64 payload decoding to ~6 MiB
	bigData := strings.Repeat("A", 8*1024*1024)

	t.Run("rejects single file over limit", func(t *testing.T) {
		store := NewAttachmentStore(time.Hour, 0)
		tooBig := strings.Repeat("A", 16*1024*1024)
		err := store.Add("s1", models.Attachment{Name: "huge.bin", Data: tooBig})
		assert.ErrorIs(t, err, errors.ErrAttachmentTooLarge)
		assert.Empty(t, store.List("s1"))
	})

	t.Run("rejects when total would exceed limit", func(t *testing.T) {
		store := NewAttachmentStore(time.Hour, 0)
		require.NoError(t, store.Add("s1", models.Attachment{Name: "a.bin", Data: bigData}))
		err := store.Add("s1", models.Attachment{Name: "b.bin", Data: bigData})
		assert.ErrorIs(t, err, errors.ErrAttachmentTooLarge)
		assert.Len(t, store.List("s1"), 1)
	})

	t.Run("rejects duplicate without mutating session", func(t *testing.T) {
		store := NewAttachmentStore(time.Hour, 0)
		att := models.Attachment{Name: "shot.png", MimeType: "image/png", Data: "aGVsbG8="}
		require.NoError(t, store.Add("s1", att))
		err := store.Add("s1", att)
		assert.ErrorIs(t, err, errors.ErrDuplicateAttachment)
		assert.Len(t, store.List("s1"), 1)

		// Same name, different content is a new file
		require.NoError(t, store.Add("s1", models.Attachment{Name: "shot.png", Data: "d29ybGQ="}))
		assert.Len(t, store.List("s1"), 2)
	})

	t.Run("sessions are independent and clearable", func(t *testing.T) {
		store := NewAttachmentStore(time.Hour, 0)
		require.NoError(t, store.Add("s1", models.Attachment{Name: "a.txt", Data: "YQ=="}))
		require.NoError(t, store.Add("s2", models.Attachment{Name: "b.txt", Data: "Yg=="}))

		store.Clear("s1")
		assert.Empty(t, store.List("s1"))
		assert.Len(t, store.List("s2"), 1)
	})

	t.Run("remove by name", func(t *testing.T) {
		store := NewAttachmentStore(time.Hour, 0)
		require.NoError(t, store.Add("s1", models.Attachment{Name: "a.txt", Data: "YQ=="}))
		require.NoError(t, store.Remove("s1", "a.txt"))
		assert.Empty(t, store.List("s1"))
		assert.ErrorIs(t, store.Remove("s1", "a.txt"), errors.ErrNotFound)
	})
}

func TestSend_WebhookSuccess(t *testing.T) {
	store := &memStore{webhooks: []models.WebhookConfig{{
		ID:        "wh-1",
		Label:     "Zapier",
		URL:       "https://hooks.example.com/z",
		Templates: []models.Template{{Name: "Lead"}},
	}}}
	mockClient := new(MockHTTPClient)
	d, reg := newDispatcher(t, store, mockClient)

	var sentBody []byte
	mockClient.On("Post", "https://hooks.example.com/z", "application/json", mock.Anything).
		Run(func(args mock.Arguments) {
			sentBody, _ = io.ReadAll(args.Get(2).(io.Reader))
		}).
		Return(jsonResponse(200, `{"ok":true}`), nil).Once()

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "wh-1",
		Template:      "Lead",
		URL:           "https://example.com/article",
		Title:         "Example",
		Notes:         "note",
	})

	require.True(t, resp.Success, "error: %s", resp.Error)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, `{"ok":true}`, resp.Body, "receiver body passes through unchanged")

	var payload models.WebhookPayload
	require.NoError(t, json.Unmarshal(sentBody, &payload))
	assert.Equal(t, "Lead", payload.Template)
	assert.Equal(t, "30. August 2026, 14:05", payload.Timestamp)
	assert.NotNil(t, payload.Attachments)

	last := reg.LastUsed()
	require.NotNil(t, last)
	assert.Equal(t, "wh-1", last.ID)
}

func TestSend_WebhookReceiverError(t *testing.T) {
	store := &memStore{webhooks: []models.WebhookConfig{{
		ID: "wh-1", Label: "Zapier", URL: "https://hooks.example.com/z",
	}}}
	mockClient := new(MockHTTPClient)
	d, _ := newDispatcher(t, store, mockClient)

	mockClient.On("Post", mock.Anything, mock.Anything, mock.Anything).
		Return(jsonResponse(500, "boom"), nil).Once()

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "wh-1",
		URL:           "https://example.com",
	})

	assert.False(t, resp.Success)
	assert.Equal(t, 500, resp.Status)
	assert.Equal(t, "boom", resp.Body)
	assert.Contains(t, resp.Error, "500")
	assert.Contains(t, resp.Error, "boom")
}

func TestSend_WebhookPlaceholderNotSendable(t *testing.T) {
	store := &memStore{webhooks: []models.WebhookConfig{{ID: "wh-1", Label: "New Webhook"}}}
	mockClient := new(MockHTTPClient)
	d, _ := newDispatcher(t, store, mockClient)

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "wh-1",
		URL:           "https://example.com",
	})

	assert.False(t, resp.Success)
	mockClient.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything)
}

func TestSend_WebhookUnknownTemplate(t *testing.T) {
	store := &memStore{webhooks: []models.WebhookConfig{{
		ID: "wh-1", Label: "Zapier", URL: "https://hooks.example.com/z",
	}}}
	mockClient := new(MockHTTPClient)
	d, _ := newDispatcher(t, store, mockClient)

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "wh-1",
		Template:      "Ghost",
		URL:           "https://example.com",
	})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "Ghost")
	mockClient.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything)
}

func airtableStore() *memStore {
	return &memStore{bases: []models.AirtableBaseConfig{{
		ID: "base-1", Name: "Research", Token: "patXXXXXXXXXXXXXX", BaseID: "appXXXXXXXXXXXXXX",
		Tables: []models.AirtableTable{{ID: "tblA", Name: "Bookmarks", FieldsLoaded: true}},
		ConfiguredTables: map[string]models.TableConfig{
			"tblA": {FieldMappings: map[models.Role]string{
				models.RoleURL:   "fldA",
				models.RoleTitle: "fldB",
			}},
		},
	}}}
}

func TestSend_AirtableSuccess(t *testing.T) {
	mockClient := new(MockHTTPClient)
	d, reg := newDispatcher(t, airtableStore(), mockClient)

	var sentBody []byte
	mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		if !strings.HasSuffix(req.URL.Path, "/v0/appXXXXXXXXXXXXXX/tblA") {
			return false
		}
		sentBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(sentBody))
		return true
	})).Return(jsonResponse(200, `{"records":[{"id":"recNEW"}]}`), nil).Once()

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "base-1",
		TableID:       "tblA",
		URL:           "https://example.com",
		Title:         "Example",
	})

	require.True(t, resp.Success, "error: %s", resp.Error)
	assert.Equal(t, "recNEW", resp.RecordID)

	var body models.AirtableRecordBody
	require.NoError(t, json.Unmarshal(sentBody, &body))
	assert.True(t, body.Typecast)
	require.Len(t, body.Records, 1)
	assert.Equal(t, map[string]interface{}{
		"fldA": "https://example.com",
		"fldB": "Example",
	}, body.Records[0].Fields)

	last := reg.LastUsed()
	require.NotNil(t, last)
	assert.Equal(t, "base-1|tblA", last.ID)
	assert.Equal(t, "Research - Bookmarks", last.Name)
}

func TestSend_AirtableCompositeMenuID(t *testing.T) {
	mockClient := new(MockHTTPClient)
	d, _ := newDispatcher(t, airtableStore(), mockClient)

	mockClient.On("Do", mock.Anything).
		Return(jsonResponse(200, `{"records":[{"id":"recNEW"}]}`), nil).Once()

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "base-1|tblA",
		URL:           "https://example.com",
	})

	assert.True(t, resp.Success, "error: %s", resp.Error)
}

func TestSend_AirtableMissingTableConfigMakesNoNetworkCall(t *testing.T) {
	store := airtableStore()
	store.bases[0].ConfiguredTables = map[string]models.TableConfig{}
	mockClient := new(MockHTTPClient)
	d, _ := newDispatcher(t, store, mockClient)

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "base-1",
		TableID:       "tblA",
		URL:           "https://example.com",
	})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "not configured")
	mockClient.AssertNotCalled(t, "Do", mock.Anything)
}

func TestSend_AirtableMissingCredentialsMakesNoNetworkCall(t *testing.T) {
	store := airtableStore()
	store.bases[0].Token = ""
	mockClient := new(MockHTTPClient)
	d, _ := newDispatcher(t, store, mockClient)

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "base-1",
		TableID:       "tblA",
		URL:           "https://example.com",
	})

	assert.False(t, resp.Success)
	mockClient.AssertNotCalled(t, "Do", mock.Anything)
}

func TestSend_AirtableErrorMessagePassesThrough(t *testing.T) {
	mockClient := new(MockHTTPClient)
	d, _ := newDispatcher(t, airtableStore(), mockClient)

	mockClient.On("Do", mock.Anything).
		Return(jsonResponse(422, `{"error":{"type":"INVALID_VALUE_FOR_COLUMN","message":"Field fldB cannot accept the value"}}`), nil).Once()

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "base-1",
		TableID:       "tblA",
		URL:           "https://example.com",
	})

	assert.False(t, resp.Success)
	assert.Equal(t, 422, resp.Status)
	assert.Contains(t, resp.Body, "Invalid field data")
	assert.Contains(t, resp.Body, "fldB cannot accept the value")
}

func TestSend_SuccessClearsSessionAttachments(t *testing.T) {
	store := &memStore{webhooks: []models.WebhookConfig{{
		ID: "wh-1", Label: "Zapier", URL: "https://hooks.example.com/z",
	}}}
	mockClient := new(MockHTTPClient)
	d, _ := newDispatcher(t, store, mockClient)

	require.NoError(t, d.attachments.Add("sess-1", models.Attachment{Name: "shot.png", Data: "aGVsbG8="}))

	mockClient.On("Post", mock.Anything, mock.Anything, mock.Anything).
		Return(jsonResponse(200, "ok"), nil).Once()

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "wh-1",
		SessionID:     "sess-1",
		URL:           "https://example.com",
	})

	require.True(t, resp.Success)
	assert.Empty(t, d.attachments.List("sess-1"), "attachments are cleared after confirmed success")
}

func TestSend_FailureKeepsSessionAttachments(t *testing.T) {
	store := &memStore{webhooks: []models.WebhookConfig{{
		ID: "wh-1", Label: "Zapier", URL: "https://hooks.example.com/z",
	}}}
	mockClient := new(MockHTTPClient)
	d, _ := newDispatcher(t, store, mockClient)

	require.NoError(t, d.attachments.Add("sess-1", models.Attachment{Name: "shot.png", Data: "aGVsbG8="}))

	mockClient.On("Post", mock.Anything, mock.Anything, mock.Anything).
		Return(jsonResponse(502, "bad gateway"), nil).Once()

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "wh-1",
		SessionID:     "sess-1",
		URL:           "https://example.com",
	})

	assert.False(t, resp.Success)
	assert.Len(t, d.attachments.List("sess-1"), 1, "attachments survive a failed send for retry")
}

func TestSend_UnknownDestination(t *testing.T) {
	mockClient := new(MockHTTPClient)
	d, _ := newDispatcher(t, &memStore{}, mockClient)

	resp := d.Send(context.Background(), models.SendRequest{
		DestinationID: "missing",
		URL:           "https://example.com",
	})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "not found")
}
