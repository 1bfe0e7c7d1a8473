package repository

import (
	"context"
	"time"

	"github.com/botforge/botforge/internal/domain"
)

// BotRepository persists bots and their published versions.
type BotRepository interface {
	CreateBot(ctx context.Context, bot *domain.Bot) error
	GetBotByID(ctx context.Context, botID string) (*domain.Bot, error)
	UpdateBotDraft(ctx context.Context, bot *domain.Bot) error
	ListBotsByUser(ctx context.Context, userID string) ([]domain.Bot, error)
	CreateBotVersion(ctx context.Context, version *domain.BotVersion) error
	ListBotVersions(ctx context.Context, botID string, limit int) ([]domain.BotVersion, error)
}

// DeploymentRepository stores deployment history and drives guarded status
// transitions.
type DeploymentRepository interface {
	// CreateDeployment inserts a deployment and assigns DeploymentNumber as
	// 1 + the bot's highest existing number, serialized at the database.
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error)
	ListDeploymentsByBot(ctx context.Context, botID, environment string, limit int) ([]domain.Deployment, error)

	// UpdateDeploymentStatus applies a guarded transition. It returns
	// ErrNotFound for an unknown deployment and ErrStatusConflict when the
	// current status is outside update.FromStatuses.
	UpdateDeploymentStatus(ctx context.Context, update domain.DeploymentStatusUpdate) error

	// ActivateDeployment atomically marks the deployment active and any prior
	// active deployment for the same (bot, environment) superseded, in one
	// transaction.
	ActivateDeployment(ctx context.Context, deploymentID string, completedAt time.Time) error

	GetActiveDeployment(ctx context.Context, botID, environment string) (*domain.Deployment, error)

	AppendBuildLog(ctx context.Context, deploymentID string, entry domain.LogEntry) error
	AppendDeployLog(ctx context.Context, deploymentID string, entry domain.LogEntry) error

	// IncrementExecutionCounters bumps the denormalized rollup counters.
	IncrementExecutionCounters(ctx context.Context, deploymentID string, succeeded bool) error

	// ListDeploymentsInStatusUpdatedBefore returns deployments stuck in the
	// given status since before the cutoff, for watchdog sweeps.
	ListDeploymentsInStatusUpdatedBefore(ctx context.Context, status string, updatedBefore time.Time) ([]domain.Deployment, error)
}

// ExecutionRepository stores executions and their telemetry.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *domain.Execution) error
	GetExecutionByID(ctx context.Context, executionID string) (*domain.Execution, error)
	GetExecutionStatus(ctx context.Context, executionID string) (string, error)
	ListExecutionsByBot(ctx context.Context, botID, status string, limit, offset int) ([]domain.Execution, error)
	ListRecentExecutionsByUser(ctx context.Context, userID string, limit int) ([]domain.Execution, error)

	// UpdateExecutionStatus applies a guarded transition with the same
	// contract as DeploymentRepository.UpdateDeploymentStatus.
	UpdateExecutionStatus(ctx context.Context, update domain.ExecutionStatusUpdate) error

	AppendExecutionLog(ctx context.Context, executionID string, entry domain.ExecutionLogEntry) error
	AppendConsoleLog(ctx context.Context, executionID string, line string) error

	ExecutionStatistics(ctx context.Context, botID string, since time.Time) (*domain.ExecutionStats, error)

	ListExecutionsInStatusSince(ctx context.Context, status string, before time.Time) ([]domain.Execution, error)
}

// TelemetryRepository handles append-only event persistence and rollup access.
type TelemetryRepository interface {
	InsertBotEvent(ctx context.Context, event *domain.BotEvent) error
	ListBotEvents(ctx context.Context, botID, eventType string, limit, offset int) ([]domain.BotEvent, error)
	UpsertMetricRollups(ctx context.Context, rollups []domain.BotMetricRollup) error
	SummarizeRollups(ctx context.Context, botID string, from, to time.Time) (*domain.TelemetryWindow, error)
}

// WebhookRepository stores per-bot trigger secrets.
type WebhookRepository interface {
	UpsertTriggerSecret(ctx context.Context, botID string, secret []byte) error
	GetTriggerSecret(ctx context.Context, botID string) ([]byte, error)
}
