package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/webclipper/clipper-api/pkg/logger"
	"github.com/webclipper/clipper-api/pkg/metrics"
)

// Client wraps a pgx connection pool with observability. It is the single
// persistence surface of the service: destination configuration stored as
// JSONB documents, ordered by insertion position.
type Client struct {
	pool *pgxpool.Pool
}

// NewClient creates a client over an already-established pool.
func NewClient(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// Close closes the connection pool
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
		logger.Info("PostgreSQL connection pool closed")
	}
}

// Ping checks if the database connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Stats returns connection pool statistics
func (c *Client) Stats() *pgxpool.Stat {
	return c.pool.Stat()
}

// recordMetrics records config store operation metrics
func recordMetrics(operation, status string, duration float64) {
	metrics.ConfigStoreDuration.WithLabelValues(operation, status).Observe(duration)
	metrics.ConfigStoreTotal.WithLabelValues(operation, status).Inc()
}
