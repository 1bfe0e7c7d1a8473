package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/botforge/botforge/internal/domain"
)

func TestIngestRequiresBotID(t *testing.T) {
	repo := &fakeTelemetryRepo{}
	svc := newTestTelemetry(repo)

	err := svc.Ingest(context.Background(), domain.BotEvent{Message: "orphan"})
	if err == nil {
		t.Fatal("expected error for event without bot_id")
	}
	if repo.insertCalls != 0 {
		t.Fatalf("expected no insert, got %d", repo.insertCalls)
	}
}

func TestIngestDefaultsTimestamps(t *testing.T) {
	repo := &fakeTelemetryRepo{}
	svc := newTestTelemetry(repo)

	err := svc.Ingest(context.Background(), domain.BotEvent{BotID: "bot-a", Message: "hello"})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if repo.insertCalls != 1 {
		t.Fatalf("expected 1 insert, got %d", repo.insertCalls)
	}
	stored := repo.lastEvent
	if stored.OccurredAt.IsZero() || stored.IngestedAt.IsZero() {
		t.Fatal("expected defaulted timestamps")
	}
	if stored.OccurredAt.Location() != time.UTC {
		t.Fatal("expected occurred_at in UTC")
	}
}

func TestRecordSwallowsSinkErrors(t *testing.T) {
	repo := &fakeTelemetryRepo{insertErr: errors.New("sink down")}
	svc := newTestTelemetry(repo)

	svc.Record(context.Background(), domain.BotEvent{BotID: "bot-a", Message: "best effort"})

	if repo.insertCalls != 1 {
		t.Fatalf("expected 1 attempted insert, got %d", repo.insertCalls)
	}
	// The failed event must not leak into the rollups either.
	if rollups := svc.aggregator.flushAll(); len(rollups) != 0 {
		t.Fatalf("expected no rollups for failed ingest, got %d", len(rollups))
	}
}

func TestWindowDefaultsToLastDay(t *testing.T) {
	repo := &fakeTelemetryRepo{}
	svc := newTestTelemetry(repo)

	if _, err := svc.Window(context.Background(), "bot-a", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("Window returned error: %v", err)
	}
	if got := repo.lastTo.Sub(repo.lastFrom); got != 24*time.Hour {
		t.Fatalf("expected 24h default window, got %v", got)
	}
}

func TestIngestFeedsRollups(t *testing.T) {
	repo := &fakeTelemetryRepo{}
	svc := newTestTelemetry(repo)

	dur := 12.5
	event := domain.BotEvent{
		BotID:      "bot-a",
		Source:     "runtime",
		EventType:  "execution_completed",
		Level:      "info",
		DurationMS: &dur,
	}
	if err := svc.Ingest(context.Background(), event); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	rollups := svc.aggregator.flushAll()
	if len(rollups) != 1 {
		t.Fatalf("expected 1 rollup bucket, got %d", len(rollups))
	}
	if rollups[0].Count != 1 || rollups[0].AvgMS == nil || *rollups[0].AvgMS != 12.5 {
		t.Fatalf("unexpected rollup %+v", rollups[0])
	}
}

func TestNilLoggerDefaults(t *testing.T) {
	repo := &fakeTelemetryRepo{insertErr: errors.New("sink down")}
	svc := NewService(repo, nil, nil, time.Minute, 30*time.Second)

	// Record logs the failure; a nil logger must not turn that into a panic.
	svc.Record(context.Background(), domain.BotEvent{BotID: "bot-a", Message: "hello"})

	if repo.insertCalls != 1 {
		t.Fatalf("expected 1 attempted insert, got %d", repo.insertCalls)
	}
}

func newTestTelemetry(repo *fakeTelemetryRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewService(repo, nil, logger, time.Minute, 30*time.Second)
}

type fakeTelemetryRepo struct {
	mu          sync.Mutex
	insertCalls int
	insertErr   error
	lastEvent   domain.BotEvent
	upserted    []domain.BotMetricRollup
	lastFrom    time.Time
	lastTo      time.Time
}

func (f *fakeTelemetryRepo) InsertBotEvent(_ context.Context, event *domain.BotEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.insertErr != nil {
		return f.insertErr
	}
	f.lastEvent = *event
	return nil
}

func (f *fakeTelemetryRepo) ListBotEvents(context.Context, string, string, int, int) ([]domain.BotEvent, error) {
	return nil, nil
}

func (f *fakeTelemetryRepo) UpsertMetricRollups(_ context.Context, rollups []domain.BotMetricRollup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, rollups...)
	return nil
}

func (f *fakeTelemetryRepo) SummarizeRollups(_ context.Context, _ string, from, to time.Time) (*domain.TelemetryWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFrom = from
	f.lastTo = to
	return &domain.TelemetryWindow{}, nil
}
