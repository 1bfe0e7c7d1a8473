package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
)

// process runs one queued execution to a terminal status. The initial
// transition is guarded on queued, so an execution cancelled while waiting in
// the queue is never started.
func (s *Service) process(ctx context.Context, executionID string) {
	startedAt := s.now().UTC()
	err := s.executions.UpdateExecutionStatus(ctx, domain.ExecutionStatusUpdate{
		ExecutionID:  executionID,
		FromStatuses: []string{domain.ExecutionStatusQueued},
		Status:       domain.ExecutionStatusRunning,
		StartedAt:    &startedAt,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			s.logger.Info("execution no longer queued, skipping", "execution_id", executionID)
		} else {
			s.logger.Error("could not start execution", "execution_id", executionID, "error", err)
		}
		return
	}

	execution, err := s.executions.GetExecutionByID(ctx, executionID)
	if err != nil {
		s.logger.Error("runtime could not load execution", "execution_id", executionID, "error", err)
		return
	}

	artifact, err := s.loadArtifact(ctx, execution)
	if err != nil {
		s.finishFailure(ctx, execution, startedAt, failureData{Message: err.Error()})
		return
	}

	input := execution.InputData
	var tokensUsed, apiCallsMade int64
	for i, step := range artifact.Steps {
		if s.cancelledMeanwhile(ctx, execution, i) {
			return
		}

		stepIndex := i
		s.appendLog(ctx, execution.ID, domain.ExecutionLogEntry{
			Timestamp: s.now().UTC(),
			Level:     "info",
			Message:   "step started",
			StepIndex: &stepIndex,
			StepType:  step.Type,
		})

		result, err := s.executor.ExecuteStep(ctx, step, input)
		if err != nil {
			s.appendLog(ctx, execution.ID, domain.ExecutionLogEntry{
				Timestamp: s.now().UTC(),
				Level:     "error",
				Message:   "step failed: " + err.Error(),
				StepIndex: &stepIndex,
				StepType:  step.Type,
			})
			s.finishFailure(ctx, execution, startedAt, failureData{
				Message:   err.Error(),
				StepIndex: &stepIndex,
				StepType:  step.Type,
			})
			return
		}
		for _, line := range result.Console {
			if err := s.executions.AppendConsoleLog(ctx, execution.ID, line); err != nil {
				s.logger.Warn("append console log failed", "execution_id", execution.ID, "error", err)
			}
		}
		tokensUsed += result.TokensUsed
		apiCallsMade += result.APICallsMade
		if len(result.Output) > 0 {
			input = result.Output
		}
	}

	completedAt := s.now().UTC()
	execTimeMS := completedAt.Sub(startedAt).Milliseconds()
	cost := s.pricer(tokensUsed, apiCallsMade)
	err = s.executions.UpdateExecutionStatus(ctx, domain.ExecutionStatusUpdate{
		ExecutionID:      execution.ID,
		FromStatuses:     []string{domain.ExecutionStatusRunning},
		Status:           domain.ExecutionStatusCompleted,
		OutputData:       input,
		ExecutionTimeMS:  &execTimeMS,
		TokensUsed:       &tokensUsed,
		APICallsMade:     &apiCallsMade,
		EstimatedCostUSD: &cost,
		CompletedAt:      &completedAt,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			s.logger.Info("execution cancelled during final step", "execution_id", execution.ID)
		} else {
			s.logger.Error("could not complete execution", "execution_id", execution.ID, "error", err)
		}
		return
	}

	s.bumpDeploymentCounters(ctx, execution, true)
	durMS := float64(execTimeMS)
	s.telemetry.Record(ctx, domain.BotEvent{
		BotID:      execution.BotID,
		Source:     "runtime",
		EventType:  "execution_completed",
		Level:      "info",
		Message:    fmt.Sprintf("execution completed in %dms", execTimeMS),
		DurationMS: &durMS,
		OccurredAt: completedAt,
	})
	s.logger.Info("execution completed",
		"execution_id", execution.ID, "bot_id", execution.BotID,
		"duration_ms", execTimeMS, "tokens_used", tokensUsed)
	s.notifyFinished(ctx, execution.ID)
}

type failureData struct {
	Message   string `json:"message"`
	StepIndex *int   `json:"step_index,omitempty"`
	StepType  string `json:"step_type,omitempty"`
}

// finishFailure marks a running execution failed. Logs written so far stay in
// place and no output is recorded.
func (s *Service) finishFailure(ctx context.Context, execution *domain.Execution, startedAt time.Time, data failureData) {
	completedAt := s.now().UTC()
	execTimeMS := completedAt.Sub(startedAt).Milliseconds()
	errData, _ := json.Marshal(data)
	err := s.executions.UpdateExecutionStatus(ctx, domain.ExecutionStatusUpdate{
		ExecutionID:     execution.ID,
		FromStatuses:    []string{domain.ExecutionStatusQueued, domain.ExecutionStatusRunning},
		Status:          domain.ExecutionStatusFailed,
		ErrorData:       errData,
		ExecutionTimeMS: &execTimeMS,
		CompletedAt:     &completedAt,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			s.logger.Info("execution cancelled before failure could be recorded", "execution_id", execution.ID)
		} else {
			s.logger.Error("could not mark execution failed", "execution_id", execution.ID, "error", err)
		}
		return
	}

	s.bumpDeploymentCounters(ctx, execution, false)
	durMS := float64(execTimeMS)
	s.telemetry.Record(ctx, domain.BotEvent{
		BotID:      execution.BotID,
		Source:     "runtime",
		EventType:  "execution_failed",
		Level:      "error",
		Message:    data.Message,
		DurationMS: &durMS,
		OccurredAt: completedAt,
	})
	s.logger.Warn("execution failed",
		"execution_id", execution.ID, "bot_id", execution.BotID, "error", data.Message)
	s.notifyFinished(ctx, execution.ID)
}

// cancelledMeanwhile polls the stored status between steps. This is the
// cooperative cancellation point: a cancel request lands as a guarded status
// write and the runtime notices it here.
func (s *Service) cancelledMeanwhile(ctx context.Context, execution *domain.Execution, stepIndex int) bool {
	status, err := s.executions.GetExecutionStatus(ctx, execution.ID)
	if err != nil {
		s.logger.Warn("cancellation check failed", "execution_id", execution.ID, "error", err)
		return false
	}
	if status == domain.ExecutionStatusRunning {
		return false
	}
	s.appendLog(ctx, execution.ID, domain.ExecutionLogEntry{
		Timestamp: s.now().UTC(),
		Level:     "warn",
		Message:   fmt.Sprintf("execution stopped before step %d: status is %s", stepIndex, status),
	})
	s.logger.Info("execution stopped cooperatively",
		"execution_id", execution.ID, "status", status, "step", stepIndex)
	return true
}

func (s *Service) loadArtifact(ctx context.Context, execution *domain.Execution) (*domain.CompiledArtifact, error) {
	if execution.DeploymentID == nil {
		return nil, errors.New("execution has no deployment snapshot")
	}
	deployment, err := s.deployments.GetDeploymentByID(ctx, *execution.DeploymentID)
	if err != nil {
		return nil, fmt.Errorf("load deployment snapshot: %w", err)
	}
	artifact, err := domain.DecodeArtifact(deployment.CompiledCode)
	if err != nil {
		return nil, fmt.Errorf("decode compiled artifact: %w", err)
	}
	return artifact, nil
}

func (s *Service) appendLog(ctx context.Context, executionID string, entry domain.ExecutionLogEntry) {
	if err := s.executions.AppendExecutionLog(ctx, executionID, entry); err != nil {
		s.logger.Warn("append execution log failed", "execution_id", executionID, "error", err)
	}
}

// bumpDeploymentCounters updates the denormalized rollups on the deployment.
// The counters are best-effort: a handful of retries, then a log line. The
// execution outcome itself is already durable at this point.
func (s *Service) bumpDeploymentCounters(ctx context.Context, execution *domain.Execution, succeeded bool) {
	if execution.DeploymentID == nil {
		return
	}
	deploymentID := *execution.DeploymentID
	backoff := retry.WithMaxRetries(3, retry.NewConstant(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.deployments.IncrementExecutionCounters(ctx, deploymentID, succeeded); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("could not update deployment execution counters",
			"deployment_id", deploymentID, "execution_id", execution.ID, "error", err)
	}
}

func (s *Service) notifyFinished(ctx context.Context, executionID string) {
	finished, err := s.executions.GetExecutionByID(ctx, executionID)
	if err != nil {
		s.logger.Warn("could not reload finished execution", "execution_id", executionID, "error", err)
		return
	}
	s.notifier.ExecutionFinished(finished)
}
