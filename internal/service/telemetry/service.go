package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
	"github.com/botforge/botforge/internal/ws"
)

const (
	defaultBucketSpan    = time.Minute
	defaultFlushInterval = 30 * time.Second
)

// Service ingests bot telemetry events, maintains aggregated rollups, and
// fans events out to live log subscribers.
type Service struct {
	repo          repository.TelemetryRepository
	hub           *ws.Hub
	aggregator    *rollupAggregator
	bucketSpan    time.Duration
	flushInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time
	once          sync.Once
}

// NewService constructs a telemetry service with sane defaults.
func NewService(repo repository.TelemetryRepository, hub *ws.Hub, logger *slog.Logger, bucketSpan, flushInterval time.Duration) *Service {
	if bucketSpan <= 0 {
		bucketSpan = defaultBucketSpan
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	if flushInterval > bucketSpan {
		flushInterval = bucketSpan
	}
	if hub == nil {
		hub = ws.NewHub()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "telemetry")
	now := time.Now
	return &Service{
		repo:          repo,
		hub:           hub,
		aggregator:    newRollupAggregator(bucketSpan, 0, now),
		bucketSpan:    bucketSpan,
		flushInterval: flushInterval,
		logger:        logger,
		now:           now,
	}
}

// Run starts the background rollup flusher. It blocks until the context is
// cancelled, then drains remaining buckets.
func (s *Service) Run(ctx context.Context) {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.logger.Info("telemetry service started", "bucket_span", s.bucketSpan, "flush_interval", s.flushInterval)
	})
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushAll(context.Background())
			s.logger.Info("telemetry service stopped")
			return
		case <-ticker.C:
			s.flushStale(ctx)
		}
	}
}

// Ingest persists an event, updates rollups, and broadcasts to subscribers.
func (s *Service) Ingest(ctx context.Context, event domain.BotEvent) error {
	if s == nil {
		return errors.New("telemetry service not initialised")
	}
	event.BotID = strings.TrimSpace(event.BotID)
	if event.BotID == "" {
		return errors.New("bot_id required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	} else {
		event.OccurredAt = event.OccurredAt.UTC()
	}
	if event.IngestedAt.IsZero() {
		event.IngestedAt = s.now().UTC()
	}
	copyEvent := event
	if err := s.repo.InsertBotEvent(ctx, &copyEvent); err != nil {
		return err
	}
	s.aggregator.add(copyEvent)
	s.broadcast(copyEvent)
	return nil
}

// Record ingests an event on a best-effort basis. The pipeline and the runtime
// call this from their hot paths; a sink failure only produces a log line and
// never blocks or fails the caller's state transition.
func (s *Service) Record(ctx context.Context, event domain.BotEvent) {
	if s == nil {
		return
	}
	if err := s.Ingest(ctx, event); err != nil {
		s.logger.Warn("failed to record telemetry event",
			"bot_id", event.BotID, "event_type", event.EventType, "error", err)
	}
}

// ListEvents returns recent events for a bot, newest first.
func (s *Service) ListEvents(ctx context.Context, botID, eventType string, limit, offset int) ([]domain.BotEvent, error) {
	if s == nil {
		return nil, errors.New("telemetry service not initialised")
	}
	return s.repo.ListBotEvents(ctx, strings.TrimSpace(botID), strings.TrimSpace(eventType), limit, offset)
}

// Window summarizes rollups for a bot over [from, to).
func (s *Service) Window(ctx context.Context, botID string, from, to time.Time) (*domain.TelemetryWindow, error) {
	if s == nil {
		return nil, errors.New("telemetry service not initialised")
	}
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return nil, errors.New("bot_id required")
	}
	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.IsZero() || !from.Before(to) {
		from = to.Add(-24 * time.Hour)
	}
	return s.repo.SummarizeRollups(ctx, botID, from, to)
}

// Hub exposes the SSE/WebSocket hub for live log consumers.
func (s *Service) Hub() *ws.Hub {
	if s == nil {
		return nil
	}
	return s.hub
}

func (s *Service) flushStale(ctx context.Context) {
	cutoff := s.now().Add(-s.bucketSpan)
	rollups := s.aggregator.flushBefore(cutoff)
	s.persistRollups(ctx, rollups)
}

func (s *Service) flushAll(ctx context.Context) {
	rollups := s.aggregator.flushAll()
	s.persistRollups(ctx, rollups)
}

func (s *Service) persistRollups(ctx context.Context, rollups []domain.BotMetricRollup) {
	if len(rollups) == 0 {
		return
	}
	if err := s.repo.UpsertMetricRollups(ctx, rollups); err != nil {
		s.logger.Warn("failed to persist metric rollups", "error", err, "count", len(rollups))
	}
}

func (s *Service) broadcast(event domain.BotEvent) {
	if s.hub == nil {
		return
	}
	payload, err := MarshalBotEvent(event)
	if err != nil {
		s.logger.Warn("failed to marshal bot event", "error", err)
		return
	}
	s.hub.Broadcast(event.BotID, payload)
}

// MarshalBotEvent encodes an event for SSE/WebSocket clients.
func MarshalBotEvent(event domain.BotEvent) ([]byte, error) {
	var metadata any
	if len(event.Metadata) > 0 {
		metadata = json.RawMessage(event.Metadata)
	}
	payload := map[string]any{
		"id":          event.ID,
		"bot_id":      event.BotID,
		"source":      event.Source,
		"event_type":  event.EventType,
		"level":       event.Level,
		"message":     event.Message,
		"duration_ms": event.DurationMS,
		"metadata":    metadata,
		"occurred_at": event.OccurredAt.UTC().Format(time.RFC3339Nano),
		"ingested_at": event.IngestedAt.UTC().Format(time.RFC3339Nano),
	}
	return json.Marshal(payload)
}
