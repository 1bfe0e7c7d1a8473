package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
	"github.com/botforge/botforge/internal/worker"
)

// Submitter dispatches pipeline tasks onto the worker pool.
type Submitter interface {
	Submit(task worker.Task) error
}

// Emitter records telemetry events on a best-effort basis.
type Emitter interface {
	Record(ctx context.Context, event domain.BotEvent)
}

// Notifier delivers fire-and-forget side-effect notifications.
type Notifier interface {
	DeploymentActivated(deployment *domain.Deployment)
}

type nopEmitter struct{}

func (nopEmitter) Record(context.Context, domain.BotEvent) {}

type nopNotifier struct{}

func (nopNotifier) DeploymentActivated(*domain.Deployment) {}

// Service owns the deployment state machine: it creates immutable deployment
// snapshots, drives them through the pipeline, and handles cancellation,
// promotion and rollback.
type Service struct {
	deployments repository.DeploymentRepository
	bots        repository.BotRepository
	pool        Submitter
	telemetry   Emitter
	notifier    Notifier
	logger      *slog.Logger

	domainSuffix string
	now          func() time.Time
}

// NewService constructs a deployment service.
func NewService(
	deployments repository.DeploymentRepository,
	bots repository.BotRepository,
	pool Submitter,
	telemetry Emitter,
	notifier Notifier,
	domainSuffix string,
	logger *slog.Logger,
) *Service {
	if telemetry == nil {
		telemetry = nopEmitter{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if domainSuffix == "" {
		domainSuffix = ".bots.botforge.dev"
	}
	return &Service{
		deployments:  deployments,
		bots:         bots,
		pool:         pool,
		telemetry:    telemetry,
		notifier:     notifier,
		logger:       logger.With("component", "deploy"),
		domainSuffix: domainSuffix,
		now:          time.Now,
	}
}

// CreateInput carries the fields for a new deployment.
type CreateInput struct {
	BotID         string
	Environment   string
	CommitMessage string
}

// Create snapshots the bot's current draft into a new queued deployment and
// dispatches the pipeline. The snapshot is immutable from here on; later draft
// edits never affect it.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*domain.Deployment, error) {
	environment, err := normalizeEnvironment(input.Environment)
	if err != nil {
		return nil, err
	}
	bot, err := s.bots.GetBotByID(ctx, input.BotID)
	if err != nil {
		return nil, err
	}
	if bot.UserID != userID {
		return nil, ErrNotOwner
	}

	version := bot.CurrentVersion
	if version == "" {
		version = "draft"
	}
	now := s.now().UTC()
	deployment := &domain.Deployment{
		ID:              uuid.NewString(),
		BotID:           bot.ID,
		UserID:          userID,
		Version:         version,
		CommitMessage:   strings.TrimSpace(input.CommitMessage),
		SourceCode:      bot.SourceCode,
		CompiledCode:    bot.CompiledCode,
		CompilerVersion: bot.CompilerVersion,
		Config:          bot.Config,
		EnvVars:         bot.EnvVars,
		Environment:     environment,
		Status:          domain.DeploymentStatusQueued,
		CreatedAt:       now,
		QueuedAt:        now,
	}
	return s.enqueue(ctx, deployment)
}

// Get returns a deployment owned by the user.
func (s *Service) Get(ctx context.Context, userID, deploymentID string) (*domain.Deployment, error) {
	deployment, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if deployment.UserID != userID {
		return nil, ErrNotOwner
	}
	return deployment, nil
}

// List returns the bot's deployment history, newest first, optionally scoped
// to one environment.
func (s *Service) List(ctx context.Context, userID, botID, environment string, limit int) ([]domain.Deployment, error) {
	if environment != "" && !domain.ValidEnvironment(environment) {
		return nil, ErrInvalidEnvironment
	}
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.UserID != userID {
		return nil, ErrNotOwner
	}
	return s.deployments.ListDeploymentsByBot(ctx, botID, environment, limit)
}

// Active returns the active deployment for a (bot, environment) slot.
func (s *Service) Active(ctx context.Context, userID, botID, environment string) (*domain.Deployment, error) {
	environment, err := normalizeEnvironment(environment)
	if err != nil {
		return nil, err
	}
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.UserID != userID {
		return nil, ErrNotOwner
	}
	return s.deployments.GetActiveDeployment(ctx, botID, environment)
}

// Cancel requests cancellation of an in-flight deployment. The transition is
// guarded so a deployment that already reached a terminal status is left
// untouched and reported as a conflict.
func (s *Service) Cancel(ctx context.Context, userID, deploymentID string) error {
	deployment, err := s.Get(ctx, userID, deploymentID)
	if err != nil {
		return err
	}
	completedAt := s.now().UTC()
	err = s.deployments.UpdateDeploymentStatus(ctx, domain.DeploymentStatusUpdate{
		DeploymentID: deployment.ID,
		FromStatuses: []string{
			domain.DeploymentStatusPending,
			domain.DeploymentStatusQueued,
			domain.DeploymentStatusBuilding,
			domain.DeploymentStatusDeploying,
		},
		Status:      domain.DeploymentStatusCancelled,
		CompletedAt: &completedAt,
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		return ErrAlreadyTerminal
	}
	if err != nil {
		return err
	}
	s.logger.Info("deployment cancelled", "deployment_id", deployment.ID, "bot_id", deployment.BotID)
	s.telemetry.Record(ctx, s.event(deployment, "deployment_cancelled", "info", "deployment cancelled by user", nil))
	return nil
}

// Promote redeploys a staging deployment's snapshot into production. The
// snapshot is taken from the source deployment, not from the bot's draft, so
// what was verified in staging is what ships. Any source outside staging is
// rejected.
func (s *Service) Promote(ctx context.Context, userID, deploymentID string) (*domain.Deployment, error) {
	source, err := s.Get(ctx, userID, deploymentID)
	if err != nil {
		return nil, err
	}
	if source.Environment != domain.EnvStaging {
		return nil, ErrInvalidPromotionSource
	}

	now := s.now().UTC()
	deployment := &domain.Deployment{
		ID:              uuid.NewString(),
		BotID:           source.BotID,
		UserID:          userID,
		Version:         source.Version,
		CommitMessage:   fmt.Sprintf("Promoted from deployment #%d", source.DeploymentNumber),
		SourceCode:      source.SourceCode,
		CompiledCode:    source.CompiledCode,
		CompilerVersion: source.CompilerVersion,
		Config:          source.Config,
		EnvVars:         source.EnvVars,
		Environment:     domain.EnvProduction,
		Status:          domain.DeploymentStatusQueued,
		CreatedAt:       now,
		QueuedAt:        now,
	}
	return s.enqueue(ctx, deployment)
}

// Rollback creates a fresh deployment carrying the snapshot of a previously
// active deployment, targeting the same environment the source ran in. The
// rollback runs through the full pipeline; history stays append-only and the
// restored artifact gets a new deployment number.
func (s *Service) Rollback(ctx context.Context, userID, deploymentID string) (*domain.Deployment, error) {
	source, err := s.Get(ctx, userID, deploymentID)
	if err != nil {
		return nil, err
	}
	if source.Status != domain.DeploymentStatusSuperseded {
		return nil, ErrInvalidRollbackTarget
	}

	now := s.now().UTC()
	deployment := &domain.Deployment{
		ID:              uuid.NewString(),
		BotID:           source.BotID,
		UserID:          userID,
		Version:         rollbackVersion(source.Version),
		CommitMessage:   fmt.Sprintf("rollback to deployment #%d", source.DeploymentNumber),
		SourceCode:      source.SourceCode,
		CompiledCode:    source.CompiledCode,
		CompilerVersion: source.CompilerVersion,
		Config:          source.Config,
		EnvVars:         source.EnvVars,
		Environment:     source.Environment,
		Status:          domain.DeploymentStatusQueued,
		CreatedAt:       now,
		QueuedAt:        now,
	}
	return s.enqueue(ctx, deployment)
}

// enqueue persists the deployment and hands it to the pipeline. When the
// worker queue is saturated the deployment is marked failed immediately rather
// than left queued with nothing to pick it up.
func (s *Service) enqueue(ctx context.Context, deployment *domain.Deployment) (*domain.Deployment, error) {
	if err := s.deployments.CreateDeployment(ctx, deployment); err != nil {
		return nil, err
	}
	s.logger.Info("deployment queued",
		"deployment_id", deployment.ID, "bot_id", deployment.BotID,
		"environment", deployment.Environment, "number", deployment.DeploymentNumber)
	s.telemetry.Record(ctx, s.event(deployment, "deployment_queued", "info", "deployment queued", nil))

	deploymentID := deployment.ID
	if err := s.pool.Submit(func(taskCtx context.Context) {
		s.drive(taskCtx, deploymentID)
	}); err != nil {
		s.failQuietly(ctx, deployment, "deployment could not be scheduled: "+err.Error())
		deployment.Status = domain.DeploymentStatusFailed
		deployment.ErrorMessage = "deployment could not be scheduled: " + err.Error()
		return deployment, nil
	}
	return deployment, nil
}

func (s *Service) event(deployment *domain.Deployment, eventType, level, message string, durationMS *float64) domain.BotEvent {
	return domain.BotEvent{
		BotID:      deployment.BotID,
		Source:     "pipeline",
		EventType:  eventType,
		Level:      level,
		Message:    message,
		DurationMS: durationMS,
		OccurredAt: s.now().UTC(),
	}
}

func normalizeEnvironment(environment string) (string, error) {
	environment = strings.ToLower(strings.TrimSpace(environment))
	if environment == "" {
		return domain.EnvProduction, nil
	}
	if !domain.ValidEnvironment(environment) {
		return "", ErrInvalidEnvironment
	}
	return environment, nil
}

func rollbackVersion(version string) string {
	if version == "" {
		version = "draft"
	}
	if strings.HasSuffix(version, "-rollback") {
		return version
	}
	return version + "-rollback"
}
