package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
)

// InsertBotEvent appends a telemetry event.
func (r *Repository) InsertBotEvent(ctx context.Context, event *domain.BotEvent) error {
	const query = `INSERT INTO bot_events (bot_id, source, event_type, level, message, duration_ms, metadata, occurred_at, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	return r.pool.QueryRow(ctx, query,
		event.BotID, event.Source, event.EventType, event.Level, event.Message,
		event.DurationMS, event.Metadata, event.OccurredAt, event.IngestedAt,
	).Scan(&event.ID)
}

// ListBotEvents returns recent events for a bot, newest first.
func (r *Repository) ListBotEvents(ctx context.Context, botID, eventType string, limit, offset int) ([]domain.BotEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT id, bot_id, source, event_type, level, message, duration_ms, metadata, occurred_at, ingested_at
		FROM bot_events
		WHERE bot_id = $1 AND ($2 = '' OR event_type = $2)
		ORDER BY occurred_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, botID, eventType, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.BotEvent, 0)
	for rows.Next() {
		var e domain.BotEvent
		if err := rows.Scan(&e.ID, &e.BotID, &e.Source, &e.EventType, &e.Level, &e.Message,
			&e.DurationMS, &e.Metadata, &e.OccurredAt, &e.IngestedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// UpsertMetricRollups merges aggregated buckets into storage. Counts add up
// across flushes; the sampled percentiles from the latest flush win.
func (r *Repository) UpsertMetricRollups(ctx context.Context, rollups []domain.BotMetricRollup) error {
	if len(rollups) == 0 {
		return nil
	}
	const query = `INSERT INTO bot_metric_rollups
			(bot_id, bucket_start, bucket_span_seconds, source, event_type, count, error_count, avg_ms, p50_ms, p95_ms, max_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (bot_id, bucket_start, bucket_span_seconds, source, event_type) DO UPDATE SET
			count = bot_metric_rollups.count + EXCLUDED.count,
			error_count = bot_metric_rollups.error_count + EXCLUDED.error_count,
			avg_ms = COALESCE(EXCLUDED.avg_ms, bot_metric_rollups.avg_ms),
			p50_ms = COALESCE(EXCLUDED.p50_ms, bot_metric_rollups.p50_ms),
			p95_ms = COALESCE(EXCLUDED.p95_ms, bot_metric_rollups.p95_ms),
			max_ms = GREATEST(COALESCE(EXCLUDED.max_ms, 0), COALESCE(bot_metric_rollups.max_ms, 0)),
			updated_at = EXCLUDED.updated_at`
	batch := &pgx.Batch{}
	for _, rollup := range rollups {
		batch.Queue(query,
			rollup.BotID, rollup.BucketStart, int64(rollup.BucketSpan/time.Second),
			rollup.Source, rollup.EventType, rollup.Count, rollup.ErrorCount,
			rollup.AvgMS, rollup.P50MS, rollup.P95MS, rollup.MaxMS, rollup.UpdatedAt)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rollups {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// SummarizeRollups aggregates rollups for a bot across a query window.
func (r *Repository) SummarizeRollups(ctx context.Context, botID string, from, to time.Time) (*domain.TelemetryWindow, error) {
	const query = `SELECT
			COALESCE(SUM(count), 0),
			COALESCE(SUM(error_count), 0),
			SUM(avg_ms * count) / NULLIF(SUM(count) FILTER (WHERE avg_ms IS NOT NULL), 0),
			MAX(max_ms)
		FROM bot_metric_rollups
		WHERE bot_id = $1 AND bucket_start >= $2 AND bucket_start < $3`
	window := domain.TelemetryWindow{BotID: botID, From: from, To: to}
	err := r.pool.QueryRow(ctx, query, botID, from, to).
		Scan(&window.Events, &window.Errors, &window.AvgDurationMS, &window.MaxDurationMS)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return &window, nil
}

// UpsertTriggerSecret stores the encrypted webhook trigger secret for a bot.
func (r *Repository) UpsertTriggerSecret(ctx context.Context, botID string, secret []byte) error {
	const query = `INSERT INTO bot_trigger_secrets (bot_id, secret, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (bot_id) DO UPDATE SET secret = EXCLUDED.secret`
	_, err := r.pool.Exec(ctx, query, botID, secret)
	return err
}

// GetTriggerSecret loads the encrypted webhook trigger secret for a bot.
func (r *Repository) GetTriggerSecret(ctx context.Context, botID string) ([]byte, error) {
	const query = `SELECT secret FROM bot_trigger_secrets WHERE bot_id = $1`
	var secret []byte
	if err := r.pool.QueryRow(ctx, query, botID).Scan(&secret); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return secret, nil
}
