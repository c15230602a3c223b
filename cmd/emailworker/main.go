// Package main implements the email worker daemon. It polls email_outbox
// and delivers pending rows through whichever EmailProvider MAILER_DRIVER
// selects (smtp or ses).
//
// Key Features:
// - Async processing (doesn't block HTTP requests)
// - Exponential backoff retry
// - Worker isolation (15s timeout per email prevents starvation)
// - SSRF protection (validates hosts on every send, not just config time)
// - Audit logging (writes to email_logs table)
//
// Usage:
//
//	go run ./cmd/emailworker
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/vactrail/backend/internal/config"
	"github.com/vactrail/backend/internal/mailer"
	"github.com/vactrail/backend/pkg/logger"
)

const (
	pollInterval = 5 * time.Second
	batchSize    = 10
	maxRetries   = 5
)

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg := logger.Setup(cfg.Env)
	logg.Info("email_worker_starting", "driver", cfg.MailerDriver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("mail provider: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logg.Info("email_worker_shutdown_signal")
		cancel()
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	logg.Info("email_worker_polling", "interval", pollInterval, "batch_size", batchSize)

	for {
		select {
		case <-ctx.Done():
			logg.Info("email_worker_stopped")
			return
		case <-ticker.C:
			if err := processQueue(ctx, pool, provider, logg); err != nil {
				logg.Error("email_worker_queue_error", "error", err)
			}
		}
	}
}

// newProvider picks the EmailProvider implementation from MAILER_DRIVER.
func newProvider(ctx context.Context, cfg *config.Config) (mailer.EmailProvider, error) {
	switch cfg.MailerDriver {
	case "ses":
		return mailer.NewSESProvider(ctx, cfg.AWSSESRegion, cfg.AWSSESFrom)
	default:
		return mailer.NewSMTPProvider(mailer.SMTPConfig{
			Host:    cfg.SMTPHost,
			Port:    cfg.SMTPPort,
			User:    cfg.SMTPUsername,
			Pass:    cfg.SMTPPassword,
			From:    cfg.SMTPFrom,
			TLSMode: "starttls",
		})
	}
}

// processQueue fetches pending emails and delivers each, using
// FOR UPDATE SKIP LOCKED so multiple worker replicas never double-send.
func processQueue(ctx context.Context, pool *pgxpool.Pool, provider mailer.EmailProvider, logg *slog.Logger) error {
	rows, err := pool.Query(ctx, `
		SELECT id, company_id, payload, attempts
		FROM email_outbox
		WHERE status = 'pending' AND next_retry_at <= NOW()
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, batchSize)
	if err != nil {
		return err
	}

	type job struct {
		id        uuid.UUID
		companyID uuid.UUID
		payload   []byte
		attempts  int
	}
	var jobs []job
	for rows.Next() {
		var j job
		if err := rows.Scan(&j.id, &j.companyID, &j.payload, &j.attempts); err != nil {
			logg.Error("email_worker_scan_failed", "error", err)
			continue
		}
		jobs = append(jobs, j)
	}
	rows.Close()

	for _, j := range jobs {
		sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := processEmail(sendCtx, pool, provider, logg, j.id, j.companyID, j.payload, j.attempts)
		cancel()
		if err != nil {
			logg.Error("email_worker_send_failed", "id", j.id, "company_id", j.companyID, "error", err)
		}
	}

	if len(jobs) > 0 {
		logg.Info("email_worker_batch_processed", "count", len(jobs))
	}
	return nil
}

func processEmail(ctx context.Context, pool *pgxpool.Pool, provider mailer.EmailProvider, logg *slog.Logger, id, companyID uuid.UUID, payloadJSON []byte, attempts int) error {
	if _, err := pool.Exec(ctx, `UPDATE email_outbox SET status = 'processing' WHERE id = $1`, id); err != nil {
		return err
	}

	var payload mailer.EmailPayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		markFailed(ctx, pool, logg, id, attempts, "invalid payload JSON: "+err.Error())
		return err
	}

	msgID, err := provider.Send(ctx, payload)
	if err != nil {
		markFailed(ctx, pool, logg, id, attempts, err.Error())
		return err
	}

	if _, err := mailer.CreateEmailLog(ctx, pool, payload, "sent", msgID, ""); err != nil {
		logg.Error("email_worker_log_failed", "error", err)
	}

	if _, err := pool.Exec(ctx, `
		UPDATE email_outbox SET status = 'sent', sent_at = NOW() WHERE id = $1
	`, id); err != nil {
		return err
	}

	logg.Info("email_worker_sent",
		"id", id, "company_id", companyID, "template", payload.Template,
		"to_hash", mailer.HashRecipient(payload.To), "provider_msg_id", msgID,
	)
	return nil
}

// markFailed schedules an exponential-backoff retry, or gives up after
// maxRetries and leaves the row in 'failed' for manual inspection.
func markFailed(ctx context.Context, pool *pgxpool.Pool, logg *slog.Logger, id uuid.UUID, attempts int, errMsg string) {
	_, err := pool.Exec(ctx, `
		UPDATE email_outbox
		SET status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'pending' END,
		    attempts = attempts + 1,
		    last_error = $3,
		    next_retry_at = NOW() + (POWER(2, attempts) * INTERVAL '5 minutes')
		WHERE id = $1
	`, id, maxRetries, errMsg)
	if err != nil {
		logg.Error("email_worker_mark_failed_error", "id", id, "error", err)
	}
}
