package watchdog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
)

// Config bounds how long records may sit in each non-terminal status before
// the watchdog declares them dead.
type Config struct {
	Interval time.Duration

	DeploymentQueuedTTL  time.Duration
	DeploymentRunningTTL time.Duration
	ExecutionQueuedTTL   time.Duration
	ExecutionRunningTTL  time.Duration
}

// Watchdog periodically sweeps deployments and executions whose worker died
// without recording a terminal status. Every repair goes through the same
// guarded transitions the pipeline uses, so a record that made progress since
// the sweep listed it is left alone.
type Watchdog struct {
	deployments repository.DeploymentRepository
	executions  repository.ExecutionRepository
	cfg         Config
	logger      *slog.Logger
	now         func() time.Time
}

// New constructs a watchdog.
func New(deployments repository.DeploymentRepository, executions repository.ExecutionRepository, cfg Config, logger *slog.Logger) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.DeploymentQueuedTTL <= 0 {
		cfg.DeploymentQueuedTTL = 10 * time.Minute
	}
	if cfg.DeploymentRunningTTL <= 0 {
		cfg.DeploymentRunningTTL = 15 * time.Minute
	}
	if cfg.ExecutionQueuedTTL <= 0 {
		cfg.ExecutionQueuedTTL = 10 * time.Minute
	}
	if cfg.ExecutionRunningTTL <= 0 {
		cfg.ExecutionRunningTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		deployments: deployments,
		executions:  executions,
		cfg:         cfg,
		logger:      logger.With("component", "watchdog"),
		now:         time.Now,
	}
}

// Run blocks until the context is cancelled, sweeping on each tick.
func (w *Watchdog) Run(ctx context.Context) {
	w.logger.Info("watchdog started", "interval", w.cfg.Interval)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watchdog stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs one pass over all stuck records.
func (w *Watchdog) Sweep(ctx context.Context) {
	now := w.now().UTC()
	w.sweepDeployments(ctx, domain.DeploymentStatusQueued, now.Add(-w.cfg.DeploymentQueuedTTL), "deployment stalled in queue")
	w.sweepDeployments(ctx, domain.DeploymentStatusBuilding, now.Add(-w.cfg.DeploymentRunningTTL), "build stalled")
	w.sweepDeployments(ctx, domain.DeploymentStatusDeploying, now.Add(-w.cfg.DeploymentRunningTTL), "deploy stalled")
	w.sweepExecutions(ctx, domain.ExecutionStatusQueued, now.Add(-w.cfg.ExecutionQueuedTTL),
		domain.ExecutionStatusFailed, "execution stalled in queue")
	w.sweepExecutions(ctx, domain.ExecutionStatusRunning, now.Add(-w.cfg.ExecutionRunningTTL),
		domain.ExecutionStatusTimeout, "execution exceeded runtime budget")
}

func (w *Watchdog) sweepDeployments(ctx context.Context, status string, cutoff time.Time, reason string) {
	stuck, err := w.deployments.ListDeploymentsInStatusUpdatedBefore(ctx, status, cutoff)
	if err != nil {
		w.logger.Error("deployment sweep failed", "status", status, "error", err)
		return
	}
	for _, deployment := range stuck {
		completedAt := w.now().UTC()
		err := w.deployments.UpdateDeploymentStatus(ctx, domain.DeploymentStatusUpdate{
			DeploymentID: deployment.ID,
			FromStatuses: []string{status},
			Status:       domain.DeploymentStatusFailed,
			ErrorMessage: reason,
			CompletedAt:  &completedAt,
		})
		if err != nil {
			if !errors.Is(err, repository.ErrStatusConflict) && !errors.Is(err, repository.ErrNotFound) {
				w.logger.Error("could not repair deployment", "deployment_id", deployment.ID, "error", err)
			}
			continue
		}
		w.logger.Warn("repaired stuck deployment",
			"deployment_id", deployment.ID, "bot_id", deployment.BotID,
			"was_status", status, "reason", reason)
	}
}

func (w *Watchdog) sweepExecutions(ctx context.Context, status string, cutoff time.Time, target, reason string) {
	stuck, err := w.executions.ListExecutionsInStatusSince(ctx, status, cutoff)
	if err != nil {
		w.logger.Error("execution sweep failed", "status", status, "error", err)
		return
	}
	for _, execution := range stuck {
		completedAt := w.now().UTC()
		errData, _ := json.Marshal(map[string]string{"message": reason})
		err := w.executions.UpdateExecutionStatus(ctx, domain.ExecutionStatusUpdate{
			ExecutionID:  execution.ID,
			FromStatuses: []string{status},
			Status:       target,
			ErrorData:    errData,
			CompletedAt:  &completedAt,
		})
		if err != nil {
			if !errors.Is(err, repository.ErrStatusConflict) && !errors.Is(err, repository.ErrNotFound) {
				w.logger.Error("could not repair execution", "execution_id", execution.ID, "error", err)
			}
			continue
		}
		w.logger.Warn("repaired stuck execution",
			"execution_id", execution.ID, "bot_id", execution.BotID,
			"was_status", status, "now_status", target, "reason", reason)
	}
}
