package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	commandTimeout = time.Minute
	pingTimeout    = 5 * time.Second
)

// Runner drives goose migrations for the schema under db/migrations. Goose
// wants a database/sql handle, so each command opens a short-lived pgx/stdlib
// connection next to the service's pgxpool.
type Runner struct {
	pool   *pgxpool.Pool
	dsn    string
	dir    string
	logger *slog.Logger
}

func New(pool *pgxpool.Pool, dsn, dir string, logger *slog.Logger) (*Runner, error) {
	if pool == nil {
		return nil, errors.New("migrate: nil connection pool")
	}
	if dsn == "" {
		return nil, errors.New("migrate: empty database dsn")
	}
	if dir == "" {
		return nil, errors.New("migrate: empty migrations directory")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrate: locate migrations: %w", err)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("migrate: set dialect: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{pool: pool, dsn: dsn, dir: dir, logger: logger.With("component", "migrate")}, nil
}

// Ensure applies all pending migrations.
func (r *Runner) Ensure(ctx context.Context) error {
	return r.run(ctx, func(ctx context.Context, db *sql.DB) error {
		r.logger.Info("applying migrations", "dir", r.dir)
		if err := goose.UpContext(ctx, db, r.dir); err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
		r.logger.Info("schema up to date")
		return nil
	})
}

// Status prints applied and pending migrations.
func (r *Runner) Status(ctx context.Context) error {
	return r.run(ctx, func(ctx context.Context, db *sql.DB) error {
		if err := goose.StatusContext(ctx, db, r.dir); err != nil {
			return fmt.Errorf("goose status: %w", err)
		}
		return nil
	})
}

// Down rolls back one migration, or down to the given version when target is
// positive.
func (r *Runner) Down(ctx context.Context, target int64) error {
	return r.run(ctx, func(ctx context.Context, db *sql.DB) error {
		if target > 0 {
			r.logger.Info("rolling schema back", "target_version", target)
			if err := goose.DownToContext(ctx, db, r.dir, target); err != nil {
				return fmt.Errorf("goose down-to %d: %w", target, err)
			}
			return nil
		}
		r.logger.Info("rolling back one migration")
		if err := goose.DownContext(ctx, db, r.dir); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		return nil
	})
}

// Ping verifies the service's pool can reach the database.
func (r *Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (r *Runner) Close() {
	r.pool.Close()
}

func (r *Runner) run(ctx context.Context, fn func(context.Context, *sql.DB) error) error {
	db, err := sql.Open("pgx", r.dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migration connection: %w", err)
	}
	return fn(ctx, db)
}
