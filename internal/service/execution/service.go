package execution

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
	"github.com/botforge/botforge/internal/worker"
)

// Submitter dispatches runtime tasks onto the worker pool.
type Submitter interface {
	Submit(task worker.Task) error
}

// Emitter records telemetry events on a best-effort basis.
type Emitter interface {
	Record(ctx context.Context, event domain.BotEvent)
}

// Notifier delivers fire-and-forget side-effect notifications.
type Notifier interface {
	ExecutionFinished(execution *domain.Execution)
}

type nopEmitter struct{}

func (nopEmitter) Record(context.Context, domain.BotEvent) {}

type nopNotifier struct{}

func (nopNotifier) ExecutionFinished(*domain.Execution) {}

// Service owns the execution runtime: it resolves the active deployment for a
// trigger, records the execution, and runs the compiled artifact step by step
// on the worker pool.
type Service struct {
	executions  repository.ExecutionRepository
	deployments repository.DeploymentRepository
	bots        repository.BotRepository
	pool        Submitter
	executor    StepExecutor
	pricer      Pricer
	telemetry   Emitter
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs an execution service.
func NewService(
	executions repository.ExecutionRepository,
	deployments repository.DeploymentRepository,
	bots repository.BotRepository,
	pool Submitter,
	executor StepExecutor,
	pricer Pricer,
	telemetry Emitter,
	notifier Notifier,
	logger *slog.Logger,
) *Service {
	if executor == nil {
		executor = &LocalExecutor{}
	}
	if pricer == nil {
		pricer = NewLinearPricer(0, 0)
	}
	if telemetry == nil {
		telemetry = nopEmitter{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		executions:  executions,
		deployments: deployments,
		bots:        bots,
		pool:        pool,
		executor:    executor,
		pricer:      pricer,
		telemetry:   telemetry,
		notifier:    notifier,
		logger:      logger.With("component", "execution"),
		now:         time.Now,
	}
}

// ExecuteInput carries the fields of a trigger.
type ExecuteInput struct {
	BotID         string
	Environment   string
	TriggerType   string
	TriggerSource string
	InputData     json.RawMessage
}

// Execute resolves the bot's active deployment for the environment and queues
// an execution against that snapshot. A bot with no active deployment in the
// slot is rejected before any record is written.
func (s *Service) Execute(ctx context.Context, userID string, input ExecuteInput) (*domain.Execution, error) {
	trigger := strings.ToLower(strings.TrimSpace(input.TriggerType))
	if trigger == "" {
		trigger = domain.TriggerManual
	}
	if !domain.ValidTriggerType(trigger) {
		return nil, ErrInvalidTrigger
	}
	environment := strings.ToLower(strings.TrimSpace(input.Environment))
	if environment == "" {
		environment = domain.EnvProduction
	}
	if !domain.ValidEnvironment(environment) {
		return nil, ErrNotDeployed
	}

	bot, err := s.bots.GetBotByID(ctx, input.BotID)
	if err != nil {
		return nil, err
	}
	if bot.UserID != userID {
		return nil, ErrNotOwner
	}

	deployment, err := s.deployments.GetActiveDeployment(ctx, input.BotID, environment)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotDeployed
		}
		return nil, err
	}

	now := s.now().UTC()
	deploymentID := deployment.ID
	execution := &domain.Execution{
		ID:            uuid.NewString(),
		BotID:         bot.ID,
		DeploymentID:  &deploymentID,
		UserID:        userID,
		TriggerType:   trigger,
		TriggerSource: strings.TrimSpace(input.TriggerSource),
		Status:        domain.ExecutionStatusQueued,
		InputData:     input.InputData,
		CreatedAt:     now,
		QueuedAt:      now,
	}
	if err := s.executions.CreateExecution(ctx, execution); err != nil {
		return nil, err
	}
	s.logger.Info("execution queued",
		"execution_id", execution.ID, "bot_id", bot.ID,
		"deployment_id", deploymentID, "trigger", trigger)

	executionID := execution.ID
	if err := s.pool.Submit(func(taskCtx context.Context) {
		s.process(taskCtx, executionID)
	}); err != nil {
		s.rejectUnscheduled(ctx, execution, err)
	}
	return execution, nil
}

// Get returns an execution owned by the user.
func (s *Service) Get(ctx context.Context, userID, executionID string) (*domain.Execution, error) {
	execution, err := s.executions.GetExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if execution.UserID != userID {
		return nil, ErrNotOwner
	}
	return execution, nil
}

// List returns executions for a bot, newest first.
func (s *Service) List(ctx context.Context, userID, botID, status string, limit, offset int) ([]domain.Execution, error) {
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.UserID != userID {
		return nil, ErrNotOwner
	}
	return s.executions.ListExecutionsByBot(ctx, botID, strings.TrimSpace(status), limit, offset)
}

// ListRecent returns the user's most recent executions across all bots.
func (s *Service) ListRecent(ctx context.Context, userID string, limit int) ([]domain.Execution, error) {
	return s.executions.ListRecentExecutionsByUser(ctx, userID, limit)
}

// Cancel requests cooperative cancellation. The guarded transition marks the
// record cancelled; the runtime observes the new status at its next step
// boundary and stops.
func (s *Service) Cancel(ctx context.Context, userID, executionID string) error {
	execution, err := s.Get(ctx, userID, executionID)
	if err != nil {
		return err
	}
	completedAt := s.now().UTC()
	err = s.executions.UpdateExecutionStatus(ctx, domain.ExecutionStatusUpdate{
		ExecutionID:  execution.ID,
		FromStatuses: []string{domain.ExecutionStatusQueued, domain.ExecutionStatusRunning},
		Status:       domain.ExecutionStatusCancelled,
		CompletedAt:  &completedAt,
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		return ErrAlreadyTerminal
	}
	if err != nil {
		return err
	}
	s.logger.Info("execution cancelled", "execution_id", execution.ID, "bot_id", execution.BotID)
	return nil
}

// Statistics aggregates the bot's executions created within the last
// windowDays days. The success rate is a percentage; a bot with no executions
// reports zero, not a division error.
func (s *Service) Statistics(ctx context.Context, userID, botID string, windowDays int) (*domain.ExecutionStats, error) {
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.UserID != userID {
		return nil, ErrNotOwner
	}
	if windowDays <= 0 {
		windowDays = 1
	}
	since := s.now().UTC().AddDate(0, 0, -windowDays)
	stats, err := s.executions.ExecutionStatistics(ctx, botID, since)
	if err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Total) * 100
	} else {
		stats.SuccessRate = 0
	}
	return stats, nil
}

// rejectUnscheduled marks an execution failed when no worker could take it.
func (s *Service) rejectUnscheduled(ctx context.Context, execution *domain.Execution, cause error) {
	message := "execution could not be scheduled: " + cause.Error()
	completedAt := s.now().UTC()
	errData, _ := json.Marshal(map[string]string{"message": message})
	err := s.executions.UpdateExecutionStatus(ctx, domain.ExecutionStatusUpdate{
		ExecutionID:  execution.ID,
		FromStatuses: []string{domain.ExecutionStatusQueued},
		Status:       domain.ExecutionStatusFailed,
		ErrorData:    errData,
		CompletedAt:  &completedAt,
	})
	if err != nil {
		s.logger.Error("could not mark unscheduled execution failed",
			"execution_id", execution.ID, "error", err)
		return
	}
	execution.Status = domain.ExecutionStatusFailed
	execution.ErrorData = errData
	s.logger.Warn("execution rejected", "execution_id", execution.ID, "error", message)
}
