package domain

import (
	"encoding/json"
	"time"
)

// Execution statuses. Transitions are monotone: queued -> running ->
// {completed|failed|timeout}, or queued/running -> cancelled.
const (
	ExecutionStatusQueued    = "queued"
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
	ExecutionStatusCancelled = "cancelled"
	ExecutionStatusTimeout   = "timeout"
)

// Execution trigger provenance.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerWebhook   = "webhook"
	TriggerAPI       = "api"
	TriggerEvent     = "event"
)

// ValidTriggerType reports whether the trigger type is known.
func ValidTriggerType(trigger string) bool {
	switch trigger {
	case TriggerManual, TriggerScheduled, TriggerWebhook, TriggerAPI, TriggerEvent:
		return true
	}
	return false
}

// TerminalExecutionStatus reports whether an execution status is final.
func TerminalExecutionStatus(status string) bool {
	switch status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusTimeout:
		return true
	}
	return false
}

// ExecutionLogEntry is one structured, leveled entry in an execution log.
type ExecutionLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	StepIndex *int      `json:"step_index,omitempty"`
	StepType  string    `json:"step_type,omitempty"`
}

// Execution tracks one run of a deployed bot end to end.
type Execution struct {
	ID           string  `json:"id"`
	BotID        string  `json:"bot_id"`
	DeploymentID *string `json:"deployment_id,omitempty"`
	UserID       string  `json:"user_id"`

	TriggerType   string `json:"trigger_type"`
	TriggerSource string `json:"trigger_source,omitempty"`

	Status     string          `json:"status"`
	InputData  json.RawMessage `json:"input_data,omitempty"`
	OutputData json.RawMessage `json:"output_data,omitempty"`
	ErrorData  json.RawMessage `json:"error_data,omitempty"`

	ExecutionLogs []ExecutionLogEntry `json:"execution_logs"`
	ConsoleLogs   []string            `json:"console_logs"`

	ExecutionTimeMS  *int64   `json:"execution_time_ms,omitempty"`
	MemoryUsedMB     *float64 `json:"memory_used_mb,omitempty"`
	CPUTimeMS        *int64   `json:"cpu_time_ms,omitempty"`
	TokensUsed       int64    `json:"tokens_used"`
	APICallsMade     int64    `json:"api_calls_made"`
	EstimatedCostUSD float64  `json:"estimated_cost_usd"`

	CreatedAt   time.Time  `json:"created_at"`
	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ExecutionStatusUpdate captures a guarded execution status transition; see
// DeploymentStatusUpdate for the FromStatuses contract.
type ExecutionStatusUpdate struct {
	ExecutionID  string
	FromStatuses []string
	Status       string

	OutputData       json.RawMessage
	ErrorData        json.RawMessage
	ExecutionTimeMS  *int64
	MemoryUsedMB     *float64
	CPUTimeMS        *int64
	TokensUsed       *int64
	APICallsMade     *int64
	EstimatedCostUSD *float64
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// ExecutionStats aggregates executions for a bot over a time window.
type ExecutionStats struct {
	Total              int64   `json:"total"`
	Completed          int64   `json:"completed"`
	Failed             int64   `json:"failed"`
	SuccessRate        float64 `json:"success_rate"`
	AvgExecutionTimeMS float64 `json:"avg_execution_time_ms"`
}
