package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vactrail/backend/internal/mailer"
)

// ProductionMailer implements EmailSender using the async outbox pattern:
// emails are enqueued to email_outbox and delivered by cmd/emailworker.
type ProductionMailer struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

func NewProductionMailer(pool *pgxpool.Pool, logger *slog.Logger) *ProductionMailer {
	return &ProductionMailer{Pool: pool, Logger: logger}
}

// SendInvitation enqueues an invitation email to the outbox.
func (m *ProductionMailer) SendInvitation(ctx context.Context, companyID uuid.UUID, to string, inviteURL string) error {
	payload := mailer.EmailPayload{
		To:        to,
		CompanyID: companyID,
		Template:  mailer.TemplateInviteUser,
		Data: map[string]any{
			"link": inviteURL,
		},
		RequestID: requestIDFromContext(ctx),
	}
	return m.enqueue(ctx, payload)
}

// SendPasswordReset enqueues a password reset email.
func (m *ProductionMailer) SendPasswordReset(ctx context.Context, companyID uuid.UUID, to string, token string, appURL string) error {
	payload := mailer.EmailPayload{
		To:        to,
		CompanyID: companyID,
		Template:  mailer.TemplatePasswordReset,
		Data: map[string]any{
			"link": fmt.Sprintf("%s/auth/reset?token=%s", appURL, token),
		},
		RequestID: requestIDFromContext(ctx),
	}
	return m.enqueue(ctx, payload)
}

// SendVerification enqueues an email verification email.
func (m *ProductionMailer) SendVerification(ctx context.Context, companyID uuid.UUID, to string, token string, appURL string) error {
	payload := mailer.EmailPayload{
		To:        to,
		CompanyID: companyID,
		Template:  mailer.TemplateEmailVerification,
		Data: map[string]any{
			"link": fmt.Sprintf("%s/auth/verify?token=%s", appURL, token),
		},
		RequestID: requestIDFromContext(ctx),
	}
	return m.enqueue(ctx, payload)
}

func (m *ProductionMailer) enqueue(ctx context.Context, payload mailer.EmailPayload) error {
	if err := mailer.EnqueueEmail(ctx, m.Pool, payload); err != nil {
		m.Logger.Error("failed to enqueue email",
			"to_hash", mailer.HashRecipient(payload.To),
			"template", payload.Template,
			"error", err,
		)
		return fmt.Errorf("failed to send %s: %w", payload.Template, err)
	}
	m.Logger.Info("email enqueued",
		"to_hash", mailer.HashRecipient(payload.To),
		"company_id", payload.CompanyID,
		"template", payload.Template,
	)
	return nil
}

// requestIDFromContext extracts chi's request id, falling back to a random
// one so every outbox row still carries a correlation key.
func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDContextKey{}).(string); ok && v != "" {
		return v
	}
	return uuid.New().String()
}

type requestIDContextKey struct{}
