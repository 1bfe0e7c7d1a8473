package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
)

// drive advances one deployment through build, deploy and activation. Every
// transition is guarded on the previous status, so a concurrent cancellation
// simply wins the race and the pipeline stops at its next transition.
func (s *Service) drive(ctx context.Context, deploymentID string) {
	startedAt := s.now().UTC()
	err := s.deployments.UpdateDeploymentStatus(ctx, domain.DeploymentStatusUpdate{
		DeploymentID: deploymentID,
		FromStatuses: []string{domain.DeploymentStatusPending, domain.DeploymentStatusQueued},
		Status:       domain.DeploymentStatusBuilding,
		StartedAt:    &startedAt,
	})
	if err != nil {
		s.transitionLost(deploymentID, "queued", err)
		return
	}

	deployment, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		s.logger.Error("pipeline could not load deployment", "deployment_id", deploymentID, "error", err)
		return
	}

	buildStart := s.now()
	s.appendBuildLog(ctx, deployment, "info", "build started")
	artifact, err := domain.DecodeArtifact(deployment.CompiledCode)
	if err != nil {
		buildDur := msSince(buildStart, s.now())
		s.appendBuildLog(ctx, deployment, "error", "build failed: "+err.Error())
		s.fail(ctx, deployment, "build failed: "+err.Error(), "", &buildDur, nil)
		return
	}
	s.appendBuildLog(ctx, deployment, "info",
		fmt.Sprintf("compiled artifact verified: %d steps", len(artifact.Steps)))
	buildDur := msSince(buildStart, s.now())
	s.appendBuildLog(ctx, deployment, "info", "build completed")

	url := s.deploymentURL(deployment)
	err = s.deployments.UpdateDeploymentStatus(ctx, domain.DeploymentStatusUpdate{
		DeploymentID:    deploymentID,
		FromStatuses:    []string{domain.DeploymentStatusBuilding},
		Status:          domain.DeploymentStatusDeploying,
		URL:             url,
		BuildDurationMS: &buildDur,
	})
	if err != nil {
		s.transitionLost(deploymentID, "building", err)
		return
	}

	deployStart := s.now()
	s.appendDeployLog(ctx, deployment, "info", "deploy started")
	s.appendDeployLog(ctx, deployment, "info", "routing configured: "+url)
	deployDur := msSince(deployStart, s.now())
	err = s.deployments.UpdateDeploymentStatus(ctx, domain.DeploymentStatusUpdate{
		DeploymentID:     deploymentID,
		FromStatuses:     []string{domain.DeploymentStatusDeploying},
		Status:           domain.DeploymentStatusDeploying,
		DeployDurationMS: &deployDur,
	})
	if err != nil {
		s.transitionLost(deploymentID, "deploying", err)
		return
	}

	completedAt := s.now().UTC()
	if err := s.deployments.ActivateDeployment(ctx, deploymentID, completedAt); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) || errors.Is(err, repository.ErrNotFound) {
			s.transitionLost(deploymentID, "deploying", err)
			return
		}
		// A storage or lock failure leaves nothing half-applied: the record
		// goes to failed instead of sitting in deploying until the watchdog.
		s.appendDeployLog(ctx, deployment, "error", "activation failed: "+err.Error())
		s.fail(ctx, deployment, "activation failed: "+err.Error(), "", &buildDur, &deployDur)
		return
	}
	s.appendDeployLog(ctx, deployment, "info", "deployment active")

	totalMS := float64(completedAt.Sub(startedAt).Milliseconds())
	s.telemetry.Record(ctx, s.event(deployment, "deployment_activated", "info",
		fmt.Sprintf("deployment #%d active in %s", deployment.DeploymentNumber, deployment.Environment), &totalMS))
	s.logger.Info("deployment activated",
		"deployment_id", deploymentID, "bot_id", deployment.BotID,
		"environment", deployment.Environment, "url", url)

	activated, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		s.logger.Warn("could not reload activated deployment", "deployment_id", deploymentID, "error", err)
		return
	}
	s.notifier.DeploymentActivated(activated)
}

// fail moves an in-flight deployment to failed, preserving whatever logs were
// written so far. A terminal status set concurrently is left alone.
func (s *Service) fail(ctx context.Context, deployment *domain.Deployment, message, stack string, buildDurMS, deployDurMS *int64) {
	completedAt := s.now().UTC()
	err := s.deployments.UpdateDeploymentStatus(ctx, domain.DeploymentStatusUpdate{
		DeploymentID: deployment.ID,
		FromStatuses: []string{
			domain.DeploymentStatusPending,
			domain.DeploymentStatusQueued,
			domain.DeploymentStatusBuilding,
			domain.DeploymentStatusDeploying,
		},
		Status:           domain.DeploymentStatusFailed,
		ErrorMessage:     message,
		ErrorStack:       stack,
		BuildDurationMS:  buildDurMS,
		DeployDurationMS: deployDurMS,
		CompletedAt:      &completedAt,
	})
	if err != nil {
		s.transitionLost(deployment.ID, "in-flight", err)
		return
	}
	s.logger.Warn("deployment failed",
		"deployment_id", deployment.ID, "bot_id", deployment.BotID, "error", message)
	s.telemetry.Record(ctx, s.event(deployment, "deployment_failed", "error", message, nil))
}

func (s *Service) failQuietly(ctx context.Context, deployment *domain.Deployment, message string) {
	s.fail(ctx, deployment, message, "", nil, nil)
}

func (s *Service) appendBuildLog(ctx context.Context, deployment *domain.Deployment, level, message string) {
	entry := domain.LogEntry{Timestamp: s.now().UTC(), Level: level, Message: message}
	if err := s.deployments.AppendBuildLog(ctx, deployment.ID, entry); err != nil {
		s.logger.Warn("append build log failed", "deployment_id", deployment.ID, "error", err)
	}
}

func (s *Service) appendDeployLog(ctx context.Context, deployment *domain.Deployment, level, message string) {
	entry := domain.LogEntry{Timestamp: s.now().UTC(), Level: level, Message: message}
	if err := s.deployments.AppendDeployLog(ctx, deployment.ID, entry); err != nil {
		s.logger.Warn("append deploy log failed", "deployment_id", deployment.ID, "error", err)
	}
}

// transitionLost records why a pipeline stage did not advance. A status
// conflict is the expected shape of a cancellation racing the pipeline.
func (s *Service) transitionLost(deploymentID, stage string, err error) {
	switch {
	case errors.Is(err, repository.ErrStatusConflict):
		s.logger.Info("pipeline stopped: deployment left "+stage+" state concurrently",
			"deployment_id", deploymentID)
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("pipeline stopped: deployment disappeared", "deployment_id", deploymentID)
	default:
		s.logger.Error("pipeline transition failed", "deployment_id", deploymentID, "stage", stage, "error", err)
	}
}

func (s *Service) deploymentURL(deployment *domain.Deployment) string {
	short := strings.ReplaceAll(deployment.BotID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("https://%s-%d%s", short, deployment.DeploymentNumber, s.domainSuffix)
}

func msSince(start, end time.Time) int64 {
	ms := end.Sub(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
