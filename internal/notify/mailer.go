package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vactrail/backend/internal/config"
)

// EmailSender is company-scoped on every method so a single process can
// serve every tenant without a mailer instance bound to one company id.
type EmailSender interface {
	SendInvitation(ctx context.Context, companyID uuid.UUID, to string, inviteURL string) error
	SendPasswordReset(ctx context.Context, companyID uuid.UUID, to string, token string, appURL string) error
	SendVerification(ctx context.Context, companyID uuid.UUID, to string, token string, appURL string) error
}

// DevMailer prints emails to stdout (safe for development).
type DevMailer struct {
	Logger *slog.Logger
}

func (m *DevMailer) SendInvitation(ctx context.Context, companyID uuid.UUID, to string, inviteURL string) error {
	m.Logger.Info("📧 EMAIL SENT",
		"to", to,
		"type", "invitation",
		"company_id", companyID,
		"url", inviteURL,
	)
	return nil
}

func (m *DevMailer) SendPasswordReset(ctx context.Context, companyID uuid.UUID, to string, token string, appURL string) error {
	link := appURL + "/auth/reset?token=" + token
	m.Logger.Info("📧 EMAIL SENT",
		"to", to,
		"type", "password_reset",
		"company_id", companyID,
		"token", token,
		"link", link,
	)
	return nil
}

func (m *DevMailer) SendVerification(ctx context.Context, companyID uuid.UUID, to string, token string, appURL string) error {
	link := appURL + "/auth/verify?token=" + token
	m.Logger.Info("📧 EMAIL SENT",
		"to", to,
		"type", "verification",
		"company_id", companyID,
		"token", token,
		"link", link,
	)
	return nil
}

// NewMailer picks the EmailSender for the API process: development
// environments print to stdout, everything else enqueues to email_outbox
// for cmd/emailworker to deliver via the driver in MAILER_DRIVER.
func NewMailer(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) EmailSender {
	if !cfg.IsProduction() {
		return &DevMailer{Logger: log}
	}
	return NewProductionMailer(pool, log)
}
