package main

import (
	"context"
	"flag"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botforge/botforge/internal/app/migrate"
	"github.com/botforge/botforge/pkg/config"
	"github.com/botforge/botforge/pkg/logger"
)

func main() {
	var (
		command = flag.String("command", "up", "migration command: up, status, down")
		target  = flag.Int64("to", 0, "target version for down migrations (0 = one step)")
	)
	flag.Parse()

	cfg := config.LoadAPIConfig()
	log := logger.New("botforge-migrate", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("could not create database pool", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("could not build migration runner", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Ping(ctx); err != nil {
		log.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	switch *command {
	case "up":
		err = runner.Ensure(ctx)
	case "status":
		err = runner.Status(ctx)
	case "down":
		err = runner.Down(ctx, *target)
	default:
		log.Error("unknown command", "command", *command)
		os.Exit(2)
	}
	if err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
}
