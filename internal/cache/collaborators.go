package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/pkg/metrics"
)

const collaboratorCacheName = "collaborators"

// CollaboratorCache caches the per-table collaborator lists derived from
// record sampling. The sampling call is two API requests against the base's
// rate budget, so results are held for a TTL instead of refetched per form
// render.
type CollaboratorCache struct {
	cache *gocache.Cache
}

// NewCollaboratorCache creates a cache with the given TTL.
func NewCollaboratorCache(ttl time.Duration) *CollaboratorCache {
	return &CollaboratorCache{
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Get returns the cached collaborator list for a table, if present.
func (c *CollaboratorCache) Get(baseID, tableID string) ([]models.Collaborator, bool) {
	value, found := c.cache.Get(key(baseID, tableID))
	if !found {
		metrics.CacheMisses.WithLabelValues(collaboratorCacheName).Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues(collaboratorCacheName).Inc()
	return value.([]models.Collaborator), true
}

// Set stores the collaborator list for a table.
func (c *CollaboratorCache) Set(baseID, tableID string, collaborators []models.Collaborator) {
	c.cache.SetDefault(key(baseID, tableID), collaborators)
}

// Invalidate drops the cached list for a table, forcing a resample.
func (c *CollaboratorCache) Invalidate(baseID, tableID string) {
	c.cache.Delete(key(baseID, tableID))
}

func key(baseID, tableID string) string {
	return baseID + "|" + tableID
}
