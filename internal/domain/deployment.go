package domain

import (
	"encoding/json"
	"time"
)

// Deployment statuses. A deployment moves queued -> building -> deploying ->
// active; failures and cancellations are terminal, and an active deployment is
// later marked superseded when a newer one activates in the same environment.
const (
	DeploymentStatusPending    = "pending"
	DeploymentStatusQueued     = "queued"
	DeploymentStatusBuilding   = "building"
	DeploymentStatusDeploying  = "deploying"
	DeploymentStatusActive     = "active"
	DeploymentStatusFailed     = "failed"
	DeploymentStatusCancelled  = "cancelled"
	DeploymentStatusSuperseded = "superseded"
)

// Deployment environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
	EnvPreview     = "preview"
)

// ValidEnvironment reports whether env names a known deployment target.
func ValidEnvironment(env string) bool {
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvPreview:
		return true
	}
	return false
}

// TerminalDeploymentStatus reports whether a deployment status admits no
// further transitions (superseded excluded: it follows active).
func TerminalDeploymentStatus(status string) bool {
	switch status {
	case DeploymentStatusActive, DeploymentStatusFailed, DeploymentStatusCancelled, DeploymentStatusSuperseded:
		return true
	}
	return false
}

// LogEntry is one timestamped line in a deployment's build or deploy log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Deployment captures an immutable snapshot of a bot artifact progressing
// through the pipeline into one environment. Only status, timing, URL, logs
// and the execution counters are mutated after creation, and only by the
// pipeline or the execution runtime.
type Deployment struct {
	ID               string `json:"id"`
	BotID            string `json:"bot_id"`
	UserID           string `json:"user_id"`
	DeploymentNumber int    `json:"deployment_number"`

	Version         string          `json:"version"`
	CommitMessage   string          `json:"commit_message,omitempty"`
	SourceCode      string          `json:"source_code,omitempty"`
	CompiledCode    json.RawMessage `json:"compiled_code,omitempty"`
	CompilerVersion string          `json:"compiler_version,omitempty"`
	Config          json.RawMessage `json:"config,omitempty"`
	EnvVars         json.RawMessage `json:"env_vars,omitempty"`

	Environment string `json:"environment"`
	Status      string `json:"status"`
	URL         string `json:"url,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	ErrorStack   string     `json:"error_stack,omitempty"`
	BuildLogs    []LogEntry `json:"build_logs"`
	DeployLogs   []LogEntry `json:"deploy_logs"`

	BuildDurationMS  *int64 `json:"build_duration_ms,omitempty"`
	DeployDurationMS *int64 `json:"deploy_duration_ms,omitempty"`

	TotalExecutions      int64 `json:"total_executions"`
	SuccessfulExecutions int64 `json:"successful_executions"`
	FailedExecutions     int64 `json:"failed_executions"`

	CreatedAt    time.Time  `json:"created_at"`
	QueuedAt     time.Time  `json:"queued_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DeploymentStatusUpdate captures a guarded status transition. When
// FromStatuses is non-empty the update only applies while the deployment is in
// one of those states; a mismatch surfaces as a conflict so terminal states
// are never overwritten.
type DeploymentStatusUpdate struct {
	DeploymentID string
	FromStatuses []string
	Status       string

	URL              string
	ErrorMessage     string
	ErrorStack       string
	BuildDurationMS  *int64
	DeployDurationMS *int64
	StartedAt        *time.Time
	CompletedAt      *time.Time
}
