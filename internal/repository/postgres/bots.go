package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
)

const botColumns = `id, user_id, name, status, description, current_version,
	source_code, compiled_code, compiler_version, config, env_vars, created_at, updated_at`

// CreateBot inserts a bot draft.
func (r *Repository) CreateBot(ctx context.Context, bot *domain.Bot) error {
	const query = `INSERT INTO bots (id, user_id, name, status, description, current_version,
			source_code, compiled_code, compiler_version, config, env_vars, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.pool.Exec(ctx, query,
		bot.ID, bot.UserID, bot.Name, bot.Status, bot.Description, bot.CurrentVersion,
		bot.SourceCode, bot.CompiledCode, bot.CompilerVersion, bot.Config, bot.EnvVars,
		bot.CreatedAt, bot.UpdatedAt)
	return err
}

// GetBotByID fetches a bot by identifier.
func (r *Repository) GetBotByID(ctx context.Context, botID string) (*domain.Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, botID)
	var b domain.Bot
	if err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Status, &b.Description, &b.CurrentVersion,
		&b.SourceCode, &b.CompiledCode, &b.CompilerVersion, &b.Config, &b.EnvVars,
		&b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// UpdateBotDraft overwrites the mutable draft fields of a bot.
func (r *Repository) UpdateBotDraft(ctx context.Context, bot *domain.Bot) error {
	const query = `UPDATE bots SET name = $2, status = $3, description = $4, current_version = $5,
			source_code = $6, compiled_code = $7, compiler_version = $8, config = $9, env_vars = $10,
			updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		bot.ID, bot.Name, bot.Status, bot.Description, bot.CurrentVersion,
		bot.SourceCode, bot.CompiledCode, bot.CompilerVersion, bot.Config, bot.EnvVars)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListBotsByUser returns bots owned by a user, newest first.
func (r *Repository) ListBotsByUser(ctx context.Context, userID string) ([]domain.Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bots := make([]domain.Bot, 0)
	for rows.Next() {
		var b domain.Bot
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.Status, &b.Description, &b.CurrentVersion,
			&b.SourceCode, &b.CompiledCode, &b.CompilerVersion, &b.Config, &b.EnvVars,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

// CreateBotVersion records a published snapshot of a bot draft.
func (r *Repository) CreateBotVersion(ctx context.Context, version *domain.BotVersion) error {
	const query = `INSERT INTO bot_versions (id, bot_id, version, changelog, source_code,
			compiled_code, compiler_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		version.ID, version.BotID, version.Version, version.Changelog, version.SourceCode,
		version.CompiledCode, version.CompilerVersion, version.CreatedAt)
	return err
}

// ListBotVersions returns published versions for a bot, newest first.
func (r *Repository) ListBotVersions(ctx context.Context, botID string, limit int) ([]domain.BotVersion, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, bot_id, version, changelog, source_code, compiled_code, compiler_version, created_at
		FROM bot_versions WHERE bot_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, botID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]domain.BotVersion, 0)
	for rows.Next() {
		var v domain.BotVersion
		if err := rows.Scan(&v.ID, &v.BotID, &v.Version, &v.Changelog, &v.SourceCode,
			&v.CompiledCode, &v.CompilerVersion, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
