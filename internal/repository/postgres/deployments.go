package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
)

const deploymentColumns = `id, bot_id, user_id, deployment_number, version, commit_message,
	source_code, compiled_code, compiler_version, config, env_vars, environment, status, url,
	error_message, error_stack, build_logs, deploy_logs, build_duration_ms, deploy_duration_ms,
	total_executions, successful_executions, failed_executions,
	created_at, queued_at, started_at, completed_at, superseded_at, updated_at`

// createDeploymentAttempts bounds retries when two concurrent creates race on
// the same deployment number.
const createDeploymentAttempts = 5

// CreateDeployment inserts a deployment, assigning the next deployment number
// for the bot inside the statement so the counter is serialized at the
// database. The unique (bot_id, deployment_number) index catches races; the
// insert is retried until the numbers settle.
func (r *Repository) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	const query = `INSERT INTO deployments (id, bot_id, user_id, deployment_number, version, commit_message,
			source_code, compiled_code, compiler_version, config, env_vars, environment, status,
			build_logs, deploy_logs, created_at, queued_at, updated_at)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(deployment_number), 0) + 1 FROM deployments WHERE bot_id = $2),
			$4, $5, $6, $7, $8, $9, $10, $11, $12, '[]'::jsonb, '[]'::jsonb, $13, $14, $13)
		RETURNING deployment_number`

	var lastErr error
	for attempt := 0; attempt < createDeploymentAttempts; attempt++ {
		err := r.pool.QueryRow(ctx, query,
			deployment.ID, deployment.BotID, deployment.UserID,
			deployment.Version, deployment.CommitMessage,
			deployment.SourceCode, deployment.CompiledCode, deployment.CompilerVersion,
			deployment.Config, deployment.EnvVars,
			deployment.Environment, deployment.Status,
			deployment.CreatedAt, deployment.QueuedAt,
		).Scan(&deployment.DeploymentNumber)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				lastErr = err
				continue
			case "23503":
				return repository.ErrNotFound
			case "23514", "22P02":
				return repository.ErrInvalidArgument
			}
		}
		return err
	}
	return fmt.Errorf("assign deployment number: %w", lastErr)
}

// GetDeploymentByID retrieves a deployment.
func (r *Repository) GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`
	d, err := scanDeployment(r.pool.QueryRow(ctx, query, deploymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListDeploymentsByBot returns deployments for a bot, newest number first,
// optionally filtered by environment.
func (r *Repository) ListDeploymentsByBot(ctx context.Context, botID, environment string, limit int) ([]domain.Deployment, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + deploymentColumns + ` FROM deployments
		WHERE bot_id = $1 AND ($2 = '' OR environment = $2)
		ORDER BY deployment_number DESC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, botID, environment, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deployments := make([]domain.Deployment, 0)
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

// UpdateDeploymentStatus applies a guarded status transition.
func (r *Repository) UpdateDeploymentStatus(ctx context.Context, update domain.DeploymentStatusUpdate) error {
	const query = `UPDATE deployments SET
			status = $2,
			url = COALESCE(NULLIF($3, ''), url),
			error_message = COALESCE(NULLIF($4, ''), error_message),
			error_stack = COALESCE(NULLIF($5, ''), error_stack),
			build_duration_ms = COALESCE($6, build_duration_ms),
			deploy_duration_ms = COALESCE($7, deploy_duration_ms),
			started_at = COALESCE($8, started_at),
			completed_at = COALESCE($9, completed_at),
			updated_at = NOW()
		WHERE id = $1 AND (cardinality($10::text[]) = 0 OR status = ANY($10::text[]))`
	from := update.FromStatuses
	if from == nil {
		from = []string{}
	}
	tag, err := r.pool.Exec(ctx, query,
		update.DeploymentID, update.Status, update.URL, update.ErrorMessage, update.ErrorStack,
		update.BuildDurationMS, update.DeployDurationMS, update.StartedAt, update.CompletedAt, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.deploymentMissOrConflict(ctx, update.DeploymentID)
	}
	return nil
}

// ActivateDeployment promotes a deployment from deploying to active and marks
// any previously active deployment for the same (bot, environment) superseded,
// all inside one transaction. The partial unique index on active deployments
// backstops the invariant at the storage layer.
func (r *Repository) ActivateDeployment(ctx context.Context, deploymentID string, completedAt time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var botID, environment, status string
	const lockQuery = `SELECT bot_id, environment, status FROM deployments WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, lockQuery, deploymentID).Scan(&botID, &environment, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	if status != domain.DeploymentStatusDeploying {
		return repository.ErrStatusConflict
	}

	const supersedeQuery = `UPDATE deployments
		SET status = $4, superseded_at = $3, updated_at = NOW()
		WHERE bot_id = $1 AND environment = $2 AND status = $5 AND id <> $6`
	if _, err := tx.Exec(ctx, supersedeQuery, botID, environment, completedAt,
		domain.DeploymentStatusSuperseded, domain.DeploymentStatusActive, deploymentID); err != nil {
		return err
	}

	const activateQuery = `UPDATE deployments
		SET status = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $1`
	if _, err := tx.Exec(ctx, activateQuery, deploymentID, domain.DeploymentStatusActive, completedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetActiveDeployment returns the most recently created active deployment for
// a (bot, environment) slot. Activation guarantees at most one exists.
func (r *Repository) GetActiveDeployment(ctx context.Context, botID, environment string) (*domain.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments
		WHERE bot_id = $1 AND environment = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1`
	d, err := scanDeployment(r.pool.QueryRow(ctx, query, botID, environment, domain.DeploymentStatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// AppendBuildLog appends an entry to the deployment's build log.
func (r *Repository) AppendBuildLog(ctx context.Context, deploymentID string, entry domain.LogEntry) error {
	return r.appendDeploymentLog(ctx, deploymentID, "build_logs", entry)
}

// AppendDeployLog appends an entry to the deployment's deploy log.
func (r *Repository) AppendDeployLog(ctx context.Context, deploymentID string, entry domain.LogEntry) error {
	return r.appendDeploymentLog(ctx, deploymentID, "deploy_logs", entry)
}

func (r *Repository) appendDeploymentLog(ctx context.Context, deploymentID, column string, entry domain.LogEntry) error {
	query := fmt.Sprintf(`UPDATE deployments
		SET %s = %s || $2::jsonb, updated_at = NOW()
		WHERE id = $1`, column, column)
	tag, err := r.pool.Exec(ctx, query, deploymentID, mustJSON([]domain.LogEntry{entry}))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// IncrementExecutionCounters bumps the denormalized execution rollups.
func (r *Repository) IncrementExecutionCounters(ctx context.Context, deploymentID string, succeeded bool) error {
	const query = `UPDATE deployments SET
			total_executions = total_executions + 1,
			successful_executions = successful_executions + CASE WHEN $2 THEN 1 ELSE 0 END,
			failed_executions = failed_executions + CASE WHEN $2 THEN 0 ELSE 1 END,
			updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, deploymentID, succeeded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListDeploymentsInStatusUpdatedBefore returns deployments stuck in a status
// since before the cutoff.
func (r *Repository) ListDeploymentsInStatusUpdatedBefore(ctx context.Context, status string, updatedBefore time.Time) ([]domain.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments
		WHERE status = $1 AND updated_at < $2 ORDER BY updated_at ASC`
	rows, err := r.pool.Query(ctx, query, status, updatedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deployments := make([]domain.Deployment, 0)
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

func (r *Repository) deploymentMissOrConflict(ctx context.Context, deploymentID string) error {
	const query = `SELECT 1 FROM deployments WHERE id = $1`
	var one int
	if err := r.pool.QueryRow(ctx, query, deploymentID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	return repository.ErrStatusConflict
}

func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	var d domain.Deployment
	var buildLogs, deployLogs []byte
	if err := row.Scan(
		&d.ID, &d.BotID, &d.UserID, &d.DeploymentNumber, &d.Version, &d.CommitMessage,
		&d.SourceCode, &d.CompiledCode, &d.CompilerVersion, &d.Config, &d.EnvVars,
		&d.Environment, &d.Status, &d.URL,
		&d.ErrorMessage, &d.ErrorStack, &buildLogs, &deployLogs,
		&d.BuildDurationMS, &d.DeployDurationMS,
		&d.TotalExecutions, &d.SuccessfulExecutions, &d.FailedExecutions,
		&d.CreatedAt, &d.QueuedAt, &d.StartedAt, &d.CompletedAt, &d.SupersededAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON(buildLogs, &d.BuildLogs); err != nil {
		return nil, fmt.Errorf("decode build logs: %w", err)
	}
	if err := decodeJSON(deployLogs, &d.DeployLogs); err != nil {
		return nil, fmt.Errorf("decode deploy logs: %w", err)
	}
	return &d, nil
}
