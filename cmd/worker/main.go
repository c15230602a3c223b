// Package main implements the janitor worker: an hourly sweep that deletes
// rows no longer needed for replay detection or audit once they've expired.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/vactrail/backend/internal/config"
	"github.com/vactrail/backend/pkg/logger"
)

const sweepInterval = time.Hour

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg := logger.Setup(cfg.Env)
	logg.Info("janitor_worker_starting", "interval", sweepInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	runSweep(ctx, pool, logg)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runSweep(ctx, pool, logg)
		case <-quit:
			logg.Info("janitor_worker_shutdown")
			return
		}
	}
}

func runSweep(ctx context.Context, pool *pgxpool.Pool, logg *slog.Logger) {
	logg.Info("janitor_sweep_started")

	sweepTable(ctx, pool, logg, "refresh_tokens",
		`DELETE FROM refresh_tokens WHERE expires_at < now() OR revoked_at IS NOT NULL AND revoked_at < now() - interval '30 days'`)
	sweepTable(ctx, pool, logg, "invite_tokens",
		`DELETE FROM invite_tokens WHERE expires_at < now() AND used_at IS NULL`)
	sweepTable(ctx, pool, logg, "password_reset_tokens",
		`DELETE FROM password_reset_tokens WHERE expires_at < now()`)
	sweepTable(ctx, pool, logg, "email_outbox",
		`DELETE FROM email_outbox WHERE status = 'sent' AND sent_at < now() - interval '7 days'`)
}

func sweepTable(ctx context.Context, pool *pgxpool.Pool, logg *slog.Logger, table, query string) {
	tag, err := pool.Exec(ctx, query)
	if err != nil {
		logg.Error("janitor_sweep_failed", "table", table, "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		logg.Info("janitor_sweep_cleaned", "table", table, "deleted", n)
	}
}
