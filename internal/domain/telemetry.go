package domain

import "time"

// BotEvent captures one append-only telemetry event emitted by the deployment
// pipeline or the execution runtime.
type BotEvent struct {
	ID         int64     `json:"id"`
	BotID      string    `json:"bot_id"`
	Source     string    `json:"source"`
	EventType  string    `json:"event_type"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	DurationMS *float64  `json:"duration_ms,omitempty"`
	Metadata   []byte    `json:"metadata,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	IngestedAt time.Time `json:"ingested_at"`
}

// BotMetricRollup stores aggregated duration and throughput statistics for a
// time bucket.
type BotMetricRollup struct {
	BotID       string        `json:"bot_id"`
	BucketStart time.Time     `json:"bucket_start"`
	BucketSpan  time.Duration `json:"bucket_span"`
	Source      string        `json:"source"`
	EventType   string        `json:"event_type"`
	Count       int64         `json:"count"`
	ErrorCount  int64         `json:"error_count"`
	AvgMS       *float64      `json:"avg_ms,omitempty"`
	P50MS       *float64      `json:"p50_ms,omitempty"`
	P95MS       *float64      `json:"p95_ms,omitempty"`
	MaxMS       *float64      `json:"max_ms,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TelemetryWindow summarizes rollups over a query window.
type TelemetryWindow struct {
	BotID         string    `json:"bot_id"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Events        int64     `json:"events"`
	Errors        int64     `json:"errors"`
	AvgDurationMS *float64  `json:"avg_duration_ms,omitempty"`
	MaxDurationMS *float64  `json:"max_duration_ms,omitempty"`
}
