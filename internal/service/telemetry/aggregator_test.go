package telemetry

import (
	"testing"
	"time"

	"github.com/botforge/botforge/internal/domain"
)

func TestAggregatorBucketsByBotSourceAndType(t *testing.T) {
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	agg := newRollupAggregator(time.Minute, 0, func() time.Time { return base })

	agg.add(domain.BotEvent{BotID: "bot-a", Source: "runtime", EventType: "execution_completed", Level: "info", OccurredAt: base.Add(5 * time.Second)})
	agg.add(domain.BotEvent{BotID: "bot-a", Source: "runtime", EventType: "execution_completed", Level: "error", OccurredAt: base.Add(20 * time.Second)})
	agg.add(domain.BotEvent{BotID: "bot-a", Source: "pipeline", EventType: "deployment_activated", Level: "info", OccurredAt: base.Add(30 * time.Second)})
	agg.add(domain.BotEvent{BotID: "bot-b", Source: "runtime", EventType: "execution_completed", Level: "fatal", OccurredAt: base.Add(40 * time.Second)})

	rollups := agg.flushAll()
	if len(rollups) != 3 {
		t.Fatalf("expected 3 rollup buckets, got %d", len(rollups))
	}
	for _, r := range rollups {
		if !r.BucketStart.Equal(base) {
			t.Fatalf("expected bucket start %v, got %v", base, r.BucketStart)
		}
		switch {
		case r.BotID == "bot-a" && r.EventType == "execution_completed":
			if r.Count != 2 || r.ErrorCount != 1 {
				t.Fatalf("expected count 2 / errors 1, got %d / %d", r.Count, r.ErrorCount)
			}
		case r.BotID == "bot-a" && r.EventType == "deployment_activated":
			if r.Count != 1 || r.ErrorCount != 0 {
				t.Fatalf("expected count 1 / errors 0, got %d / %d", r.Count, r.ErrorCount)
			}
		case r.BotID == "bot-b":
			if r.ErrorCount != 1 {
				t.Fatalf("fatal must count as error, got %d", r.ErrorCount)
			}
		default:
			t.Fatalf("unexpected rollup %+v", r)
		}
	}
}

func TestAggregatorDefaultsSourceAndEventType(t *testing.T) {
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	agg := newRollupAggregator(time.Minute, 0, func() time.Time { return base })

	agg.add(domain.BotEvent{BotID: "bot-a", OccurredAt: base})

	rollups := agg.flushAll()
	if len(rollups) != 1 {
		t.Fatalf("expected 1 rollup, got %d", len(rollups))
	}
	if rollups[0].Source != "runtime" || rollups[0].EventType != "event" {
		t.Fatalf("expected runtime/event defaults, got %s/%s", rollups[0].Source, rollups[0].EventType)
	}
}

func TestAggregatorFlushBeforeKeepsOpenBuckets(t *testing.T) {
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	agg := newRollupAggregator(time.Minute, 0, func() time.Time { return base })

	agg.add(domain.BotEvent{BotID: "bot-a", OccurredAt: base.Add(10 * time.Second)})

	if got := agg.flushBefore(base.Add(30 * time.Second)); len(got) != 0 {
		t.Fatalf("bucket still open, expected no flush, got %d", len(got))
	}
	if got := agg.flushBefore(base.Add(time.Minute)); len(got) != 1 {
		t.Fatalf("bucket closed, expected flush of 1, got %d", len(got))
	}
	if got := agg.flushAll(); len(got) != 0 {
		t.Fatalf("flushed bucket must be gone, got %d", len(got))
	}
}

func TestAggregatorDurationStats(t *testing.T) {
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	agg := newRollupAggregator(time.Minute, 0, func() time.Time { return base })

	for i := 1; i <= 10; i++ {
		dur := float64(i * 10)
		agg.add(domain.BotEvent{BotID: "bot-a", DurationMS: &dur, OccurredAt: base})
	}

	rollups := agg.flushAll()
	if len(rollups) != 1 {
		t.Fatalf("expected 1 rollup, got %d", len(rollups))
	}
	r := rollups[0]
	if r.AvgMS == nil || *r.AvgMS != 55 {
		t.Fatalf("expected avg 55, got %v", r.AvgMS)
	}
	if r.MaxMS == nil || *r.MaxMS != 100 {
		t.Fatalf("expected max 100, got %v", r.MaxMS)
	}
	if r.P50MS == nil || *r.P50MS != 55 {
		t.Fatalf("expected p50 55, got %v", r.P50MS)
	}
	if r.P95MS == nil || *r.P95MS != 95.5 {
		t.Fatalf("expected p95 95.5, got %v", r.P95MS)
	}
}

func TestPercentileInterpolates(t *testing.T) {
	values := []float64{10, 20, 30, 40}
	if got := percentile(values, 0); got != 10 {
		t.Fatalf("p0 expected 10, got %v", got)
	}
	if got := percentile(values, 1); got != 40 {
		t.Fatalf("p100 expected 40, got %v", got)
	}
	if got := percentile(values, 0.5); got != 25 {
		t.Fatalf("p50 expected 25, got %v", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("empty input expected 0, got %v", got)
	}
}
