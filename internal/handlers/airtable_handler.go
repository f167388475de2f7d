package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/webclipper/clipper-api/internal/cache"
	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/internal/registry"
	"github.com/webclipper/clipper-api/pkg/airtable"
	"github.com/webclipper/clipper-api/pkg/errors"
)

type AirtableHandler struct {
	registry      *registry.Registry
	client        *airtable.Client
	collaborators *cache.CollaboratorCache
}

func NewAirtableHandler(reg *registry.Registry, client *airtable.Client, collaborators *cache.CollaboratorCache) *AirtableHandler {
	return &AirtableHandler{
		registry:      reg,
		client:        client,
		collaborators: collaborators,
	}
}

// Create adds an Airtable destination. Credentials may be left empty and
// filled in later; nothing is validated against the API until Connect.
func (h *AirtableHandler) Create(c *gin.Context) {
	var req models.UpsertAirtableBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cfg, err := h.registry.CreateAirtableBase(c.Request.Context(), req)
	if err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// Update replaces name and credentials of a base.
func (h *AirtableHandler) Update(c *gin.Context) {
	var req models.UpsertAirtableBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cfg, err := h.registry.UpdateAirtableBase(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Delete removes an Airtable destination.
func (h *AirtableHandler) Delete(c *gin.Context) {
	if err := h.registry.DeleteAirtableBase(c.Request.Context(), c.Param("id")); err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Connect is phase one of schema discovery: credentials are prefix-checked,
// the table list is fetched (ids and names only), and the result is stored.
// Field detail stays unloaded until LoadTableFields.
func (h *AirtableHandler) Connect(c *gin.Context) {
	ctx := c.Request.Context()

	dest, err := h.registry.Get(ctx, c.Param("id"))
	if err != nil {
		respondClassified(c, err)
		return
	}
	if dest.Kind != models.KindAirtable {
		respondError(c, http.StatusBadRequest, "destination is not an Airtable base", nil)
		return
	}

	tables, err := h.client.FetchTableNames(ctx, dest.Airtable.Connection())
	if err != nil {
		respondClassified(c, err)
		return
	}

	cfg, err := h.registry.SetTables(ctx, dest.ID, tables)
	if err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// LoadTableFields is phase two: full field metadata for one table, plus
// auto-mapping suggestions computed from the fresh schema. Existing mappings
// are never overwritten by the suggestions.
func (h *AirtableHandler) LoadTableFields(c *gin.Context) {
	ctx := c.Request.Context()
	tableID := c.Param("tableId")

	dest, err := h.registry.Get(ctx, c.Param("id"))
	if err != nil {
		respondClassified(c, err)
		return
	}
	if dest.Kind != models.KindAirtable {
		respondError(c, http.StatusBadRequest, "destination is not an Airtable base", nil)
		return
	}

	table, err := h.client.FetchTableFields(ctx, dest.Airtable.Connection(), tableID)
	if err != nil {
		respondClassified(c, err)
		return
	}

	cfg, err := h.registry.SetTableFields(ctx, dest.ID, *table)
	if err != nil {
		respondClassified(c, err)
		return
	}

	existing := cfg.ConfiguredTables[tableID].FieldMappings
	suggested := registry.AutoMapFields(table.Fields, existing)

	c.JSON(http.StatusOK, gin.H{
		"table":             table,
		"suggestedMappings": suggested,
	})
}

// SetTableConfig replaces the send configuration of one table.
func (h *AirtableHandler) SetTableConfig(c *gin.Context) {
	var req models.SetTableConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cfg, err := h.registry.SetTableConfig(c.Request.Context(), c.Param("id"), c.Param("tableId"), req)
	if err != nil {
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Collaborators returns the collaborator choices of a table, derived from
// record sampling and cached for a TTL. Pass refresh=true to force a
// resample.
func (h *AirtableHandler) Collaborators(c *gin.Context) {
	ctx := c.Request.Context()
	tableID := c.Param("tableId")

	dest, err := h.registry.Get(ctx, c.Param("id"))
	if err != nil {
		respondClassified(c, err)
		return
	}
	if dest.Kind != models.KindAirtable {
		respondError(c, http.StatusBadRequest, "destination is not an Airtable base", nil)
		return
	}
	baseID := dest.Airtable.BaseID

	if c.Query("refresh") == "true" {
		h.collaborators.Invalidate(baseID, tableID)
	}

	if cached, found := h.collaborators.Get(baseID, tableID); found {
		c.JSON(http.StatusOK, gin.H{"collaborators": cached, "cached": true})
		return
	}

	collaborators, err := h.client.FetchCollaborators(ctx, dest.Airtable.Connection(), tableID)
	if err != nil {
		respondClassified(c, err)
		return
	}
	h.collaborators.Set(baseID, tableID, collaborators)

	c.JSON(http.StatusOK, gin.H{"collaborators": collaborators, "cached": false})
}

// ValidateCredentials prefix-checks credentials without any network call.
func (h *AirtableHandler) ValidateCredentials(c *gin.Context) {
	var req models.UpsertAirtableBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	err := airtable.ValidateConnection(models.AirtableConnection{Token: req.Token, BaseID: req.BaseID})
	if err != nil {
		if errors.Is(err, errors.ErrInvalidCredentialFormat) || errors.Is(err, errors.ErrConfig) {
			c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
			return
		}
		respondClassified(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}
