package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/pkg/errors"
	"github.com/webclipper/clipper-api/pkg/logger"
	"github.com/webclipper/clipper-api/pkg/metrics"
	"go.uber.org/zap"
)

// Destination configs are stored one JSONB document per destination, in two
// tables of identical shape. The position column preserves insertion order,
// which is also the menu order within each kind.

const (
	webhookTable  = "webhook_configs"
	airtableTable = "airtable_configs"
)

// ListWebhooks fetches all webhook configs in stored order.
func (c *Client) ListWebhooks(ctx context.Context) ([]models.WebhookConfig, error) {
	docs, err := c.listConfigs(ctx, "listWebhooks", webhookTable)
	if err != nil {
		return nil, err
	}

	configs := make([]models.WebhookConfig, 0, len(docs))
	for _, doc := range docs {
		var cfg models.WebhookConfig
		if err := json.Unmarshal(doc, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode webhook config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// UpsertWebhook inserts or updates one webhook config. New configs are
// appended at the end of the stored order; updates keep their position.
func (c *Client) UpsertWebhook(ctx context.Context, cfg models.WebhookConfig) error {
	return c.upsertConfig(ctx, "upsertWebhook", webhookTable, cfg.ID, cfg)
}

// DeleteWebhook removes one webhook config.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	return c.deleteConfig(ctx, "deleteWebhook", webhookTable, id)
}

// ListAirtableBases fetches all Airtable base configs in stored order.
func (c *Client) ListAirtableBases(ctx context.Context) ([]models.AirtableBaseConfig, error) {
	docs, err := c.listConfigs(ctx, "listAirtableBases", airtableTable)
	if err != nil {
		return nil, err
	}

	configs := make([]models.AirtableBaseConfig, 0, len(docs))
	for _, doc := range docs {
		var cfg models.AirtableBaseConfig
		if err := json.Unmarshal(doc, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode airtable config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// UpsertAirtableBase inserts or updates one Airtable base config.
func (c *Client) UpsertAirtableBase(ctx context.Context, cfg models.AirtableBaseConfig) error {
	return c.upsertConfig(ctx, "upsertAirtableBase", airtableTable, cfg.ID, cfg)
}

// DeleteAirtableBase removes one Airtable base config.
func (c *Client) DeleteAirtableBase(ctx context.Context, id string) error {
	return c.deleteConfig(ctx, "deleteAirtableBase", airtableTable, id)
}

// ReplaceAll atomically replaces both destination collections. Used by config
// import, which is whole-collection by contract.
func (c *Client) ReplaceAll(ctx context.Context, webhooks []models.WebhookConfig, bases []models.AirtableBaseConfig) error {
	start := time.Now()
	operation := "replaceAll"

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		c.fail(operation, start, err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{webhookTable, airtableTable} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			c.fail(operation, start, err)
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i, cfg := range webhooks {
		doc, err := json.Marshal(cfg)
		if err != nil {
			c.fail(operation, start, err)
			return fmt.Errorf("failed to encode webhook config: %w", err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO "+webhookTable+" (id, position, config) VALUES ($1, $2, $3)",
			cfg.ID, i+1, doc); err != nil {
			c.fail(operation, start, err)
			return fmt.Errorf("failed to insert webhook config: %w", err)
		}
	}

	for i, cfg := range bases {
		doc, err := json.Marshal(cfg)
		if err != nil {
			c.fail(operation, start, err)
			return fmt.Errorf("failed to encode airtable config: %w", err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO "+airtableTable+" (id, position, config) VALUES ($1, $2, $3)",
			cfg.ID, i+1, doc); err != nil {
			c.fail(operation, start, err)
			return fmt.Errorf("failed to insert airtable config: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		c.fail(operation, start, err)
		return fmt.Errorf("failed to commit import: %w", err)
	}

	duration := metrics.MeasureDuration(start)
	recordMetrics(operation, "success", duration)
	logger.LogAPICall("postgres", operation, "success", duration,
		zap.Int("webhooks", len(webhooks)),
		zap.Int("airtable_bases", len(bases)))
	return nil
}

func (c *Client) listConfigs(ctx context.Context, operation, table string) ([][]byte, error) {
	start := time.Now()

	rows, err := c.pool.Query(ctx, "SELECT config FROM "+table+" ORDER BY position ASC")
	if err != nil {
		c.fail(operation, start, err)
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	docs := make([][]byte, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			c.fail(operation, start, err)
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		c.fail(operation, start, err)
		return nil, fmt.Errorf("error iterating %s rows: %w", table, err)
	}

	duration := metrics.MeasureDuration(start)
	recordMetrics(operation, "success", duration)
	logger.LogAPICall("postgres", operation, "success", duration, zap.Int("count", len(docs)))
	return docs, nil
}

func (c *Client) upsertConfig(ctx context.Context, operation, table, id string, cfg interface{}) error {
	start := time.Now()

	if id == "" {
		return fmt.Errorf("config id is required")
	}

	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, position, config)
		VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM %s), $2)
		ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_at = now()
	`, table, table)

	if _, err := c.pool.Exec(ctx, query, id, doc); err != nil {
		c.fail(operation, start, err)
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}

	duration := metrics.MeasureDuration(start)
	recordMetrics(operation, "success", duration)
	logger.LogAPICall("postgres", operation, "success", duration, zap.String("id", id))
	return nil
}

func (c *Client) deleteConfig(ctx context.Context, operation, table, id string) error {
	start := time.Now()

	tag, err := c.pool.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		c.fail(operation, start, err)
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		duration := metrics.MeasureDuration(start)
		recordMetrics(operation, "not_found", duration)
		return errors.NotFoundError(fmt.Sprintf("destination %s", id))
	}

	duration := metrics.MeasureDuration(start)
	recordMetrics(operation, "success", duration)
	logger.LogAPICall("postgres", operation, "success", duration, zap.String("id", id))
	return nil
}

func (c *Client) fail(operation string, start time.Time, err error) {
	duration := metrics.MeasureDuration(start)
	recordMetrics(operation, "error", duration)
	logger.LogAPICall("postgres", operation, "error", duration, zap.Error(err))
}
