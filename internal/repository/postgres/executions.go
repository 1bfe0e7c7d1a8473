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

const executionColumns = `id, bot_id, deployment_id, user_id, trigger_type, trigger_source,
	status, input_data, output_data, error_data, execution_logs, console_logs,
	execution_time_ms, memory_used_mb, cpu_time_ms, tokens_used, api_calls_made, estimated_cost_usd,
	created_at, queued_at, started_at, completed_at`

// CreateExecution inserts an execution record.
func (r *Repository) CreateExecution(ctx context.Context, execution *domain.Execution) error {
	const query = `INSERT INTO executions (id, bot_id, deployment_id, user_id, trigger_type, trigger_source,
			status, input_data, execution_logs, console_logs, created_at, queued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '[]'::jsonb, '[]'::jsonb, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		execution.ID, execution.BotID, execution.DeploymentID, execution.UserID,
		execution.TriggerType, execution.TriggerSource,
		execution.Status, execution.InputData, execution.CreatedAt, execution.QueuedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23503":
				return repository.ErrNotFound
			case "23514", "22P02":
				return repository.ErrInvalidArgument
			}
		}
	}
	return err
}

// GetExecutionByID retrieves an execution.
func (r *Repository) GetExecutionByID(ctx context.Context, executionID string) (*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`
	e, err := scanExecution(r.pool.QueryRow(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// GetExecutionStatus reads only the current status. The runtime polls this
// between steps as its cooperative cancellation check.
func (r *Repository) GetExecutionStatus(ctx context.Context, executionID string) (string, error) {
	const query = `SELECT status FROM executions WHERE id = $1`
	var status string
	if err := r.pool.QueryRow(ctx, query, executionID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", err
	}
	return status, nil
}

// ListExecutionsByBot returns executions for a bot, newest first, optionally
// filtered by status.
func (r *Repository) ListExecutionsByBot(ctx context.Context, botID, status string, limit, offset int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + executionColumns + ` FROM executions
		WHERE bot_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, botID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExecutions(rows)
}

// ListRecentExecutionsByUser returns the user's most recent executions across
// all bots.
func (r *Repository) ListRecentExecutionsByUser(ctx context.Context, userID string, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + executionColumns + ` FROM executions
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExecutions(rows)
}

// UpdateExecutionStatus applies a guarded status transition.
func (r *Repository) UpdateExecutionStatus(ctx context.Context, update domain.ExecutionStatusUpdate) error {
	const query = `UPDATE executions SET
			status = $2,
			output_data = COALESCE($3, output_data),
			error_data = COALESCE($4, error_data),
			execution_time_ms = COALESCE($5, execution_time_ms),
			memory_used_mb = COALESCE($6, memory_used_mb),
			cpu_time_ms = COALESCE($7, cpu_time_ms),
			tokens_used = COALESCE($8, tokens_used),
			api_calls_made = COALESCE($9, api_calls_made),
			estimated_cost_usd = COALESCE($10, estimated_cost_usd),
			started_at = COALESCE($11, started_at),
			completed_at = COALESCE($12, completed_at)
		WHERE id = $1 AND (cardinality($13::text[]) = 0 OR status = ANY($13::text[]))`
	from := update.FromStatuses
	if from == nil {
		from = []string{}
	}
	tag, err := r.pool.Exec(ctx, query,
		update.ExecutionID, update.Status, update.OutputData, update.ErrorData,
		update.ExecutionTimeMS, update.MemoryUsedMB, update.CPUTimeMS,
		update.TokensUsed, update.APICallsMade, update.EstimatedCostUSD,
		update.StartedAt, update.CompletedAt, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.executionMissOrConflict(ctx, update.ExecutionID)
	}
	return nil
}

// AppendExecutionLog appends a structured entry to the execution log.
func (r *Repository) AppendExecutionLog(ctx context.Context, executionID string, entry domain.ExecutionLogEntry) error {
	const query = `UPDATE executions
		SET execution_logs = execution_logs || $2::jsonb
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, executionID, mustJSON([]domain.ExecutionLogEntry{entry}))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AppendConsoleLog appends a raw console line.
func (r *Repository) AppendConsoleLog(ctx context.Context, executionID string, line string) error {
	const query = `UPDATE executions
		SET console_logs = console_logs || $2::jsonb
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, executionID, mustJSON([]string{line}))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ExecutionStatistics aggregates executions created since the cutoff.
func (r *Repository) ExecutionStatistics(ctx context.Context, botID string, since time.Time) (*domain.ExecutionStats, error) {
	const query = `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4),
			COALESCE(AVG(execution_time_ms) FILTER (WHERE execution_time_ms IS NOT NULL), 0)
		FROM executions WHERE bot_id = $1 AND created_at >= $2`
	var stats domain.ExecutionStats
	err := r.pool.QueryRow(ctx, query, botID, since,
		domain.ExecutionStatusCompleted, domain.ExecutionStatusFailed,
	).Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.AvgExecutionTimeMS)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListExecutionsInStatusSince returns executions stuck in a status whose last
// recorded progress predates the cutoff.
func (r *Repository) ListExecutionsInStatusSince(ctx context.Context, status string, before time.Time) ([]domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions
		WHERE status = $1 AND COALESCE(started_at, queued_at) < $2
		ORDER BY queued_at ASC`
	rows, err := r.pool.Query(ctx, query, status, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExecutions(rows)
}

func (r *Repository) executionMissOrConflict(ctx context.Context, executionID string) error {
	const query = `SELECT 1 FROM executions WHERE id = $1`
	var one int
	if err := r.pool.QueryRow(ctx, query, executionID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	return repository.ErrStatusConflict
}

func collectExecutions(rows pgx.Rows) ([]domain.Execution, error) {
	executions := make([]domain.Execution, 0)
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *e)
	}
	return executions, rows.Err()
}

func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var e domain.Execution
	var executionLogs, consoleLogs []byte
	if err := row.Scan(
		&e.ID, &e.BotID, &e.DeploymentID, &e.UserID, &e.TriggerType, &e.TriggerSource,
		&e.Status, &e.InputData, &e.OutputData, &e.ErrorData, &executionLogs, &consoleLogs,
		&e.ExecutionTimeMS, &e.MemoryUsedMB, &e.CPUTimeMS, &e.TokensUsed, &e.APICallsMade, &e.EstimatedCostUSD,
		&e.CreatedAt, &e.QueuedAt, &e.StartedAt, &e.CompletedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON(executionLogs, &e.ExecutionLogs); err != nil {
		return nil, fmt.Errorf("decode execution logs: %w", err)
	}
	if err := decodeJSON(consoleLogs, &e.ConsoleLogs); err != nil {
		return nil, fmt.Errorf("decode console logs: %w", err)
	}
	return &e, nil
}
