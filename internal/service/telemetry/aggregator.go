package telemetry

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/botforge/botforge/internal/domain"
)

type bucketKey struct {
	botID     string
	source    string
	eventType string
	start     time.Time
}

type rollupBucket struct {
	count         int64
	errorCount    int64
	durations     []float64
	durationCount int64
	durationSum   float64
	durationMax   float64
	hasDuration   bool
}

// rollupAggregator accumulates events into fixed-span buckets keyed by bot,
// source and event type. Durations are reservoir-sampled so percentile
// estimates stay bounded regardless of traffic.
type rollupAggregator struct {
	mu         sync.Mutex
	span       time.Duration
	maxSamples int
	buckets    map[bucketKey]*rollupBucket
	now        func() time.Time
	random     *rand.Rand
}

const defaultRollupSamples = 512

func newRollupAggregator(span time.Duration, maxSamples int, now func() time.Time) *rollupAggregator {
	if span <= 0 {
		span = time.Minute
	}
	if maxSamples <= 0 {
		maxSamples = defaultRollupSamples
	}
	if now == nil {
		now = time.Now
	}
	return &rollupAggregator{
		span:       span,
		maxSamples: maxSamples,
		buckets:    make(map[bucketKey]*rollupBucket),
		now:        now,
		random:     rand.New(rand.NewSource(now().UnixNano())),
	}
}

func (a *rollupAggregator) add(event domain.BotEvent) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	start := event.OccurredAt.Truncate(a.span)
	key := bucketKey{
		botID:     event.BotID,
		source:    strings.TrimSpace(event.Source),
		eventType: strings.TrimSpace(event.EventType),
		start:     start,
	}
	if key.source == "" {
		key.source = "runtime"
	}
	if key.eventType == "" {
		key.eventType = "event"
	}
	bucket := a.buckets[key]
	if bucket == nil {
		bucket = &rollupBucket{}
		a.buckets[key] = bucket
	}
	bucket.count++
	if isErrorEvent(event) {
		bucket.errorCount++
	}
	if event.DurationMS != nil {
		dur := *event.DurationMS
		bucket.durationCount++
		bucket.durationSum += dur
		if !bucket.hasDuration || dur > bucket.durationMax {
			bucket.durationMax = dur
			bucket.hasDuration = true
		}
		if len(bucket.durations) < a.maxSamples {
			bucket.durations = append(bucket.durations, dur)
		} else if a.maxSamples > 0 {
			idx := a.random.Intn(a.maxSamples)
			bucket.durations[idx] = dur
		}
	}
}

func (a *rollupAggregator) flushBefore(cutoff time.Time) []domain.BotMetricRollup {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.buckets) == 0 {
		return nil
	}
	rollups := make([]domain.BotMetricRollup, 0)
	for key, bucket := range a.buckets {
		if key.start.Add(a.span).After(cutoff) {
			continue
		}
		rollups = append(rollups, bucket.toRollup(key, a.span, a.now()))
		delete(a.buckets, key)
	}
	return rollups
}

func (a *rollupAggregator) flushAll() []domain.BotMetricRollup {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.buckets) == 0 {
		return nil
	}
	now := a.now()
	rollups := make([]domain.BotMetricRollup, 0, len(a.buckets))
	for key, bucket := range a.buckets {
		rollups = append(rollups, bucket.toRollup(key, a.span, now))
		delete(a.buckets, key)
	}
	return rollups
}

func (b *rollupBucket) toRollup(key bucketKey, span time.Duration, now time.Time) domain.BotMetricRollup {
	r := domain.BotMetricRollup{
		BotID:       key.botID,
		BucketStart: key.start,
		BucketSpan:  span,
		Source:      key.source,
		EventType:   key.eventType,
		Count:       b.count,
		ErrorCount:  b.errorCount,
		UpdatedAt:   now,
	}
	if b.durationCount > 0 {
		avg := b.durationSum / float64(b.durationCount)
		r.AvgMS = &avg
	}
	if b.hasDuration {
		max := b.durationMax
		r.MaxMS = &max
	}
	if len(b.durations) > 0 {
		sorted := append([]float64(nil), b.durations...)
		sort.Float64s(sorted)
		p50 := percentile(sorted, 0.50)
		p95 := percentile(sorted, 0.95)
		r.P50MS = &p50
		r.P95MS = &p95
	}
	return r
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	pos := p * float64(len(values)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return values[lower]
	}
	weight := pos - float64(lower)
	return values[lower]*(1-weight) + values[upper]*weight
}

func isErrorEvent(event domain.BotEvent) bool {
	return strings.EqualFold(event.Level, "error") || strings.EqualFold(event.Level, "fatal")
}
