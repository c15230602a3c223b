// Package mailer provides email sending functionality with multi-tenant support.
// Implements SSRF protection and async queue processing.
package mailer

import (
	"context"

	"github.com/google/uuid"
)

// EmailProvider defines the contract for transactional email delivery.
// Implementations MUST be thread-safe, idempotent (retry-safe), and return
// tracking metadata for audit logging.
type EmailProvider interface {
	// Send delivers an email and returns the provider's message ID for tracking.
	Send(ctx context.Context, payload EmailPayload) (providerMessageID string, err error)
}

// EmailPayload encapsulates all data required for sending an email. Every
// field is validated by the caller before Send is invoked.
type EmailPayload struct {
	// Recipient email address (MUST be validated via net/mail.ParseAddress)
	To string `json:"to"`

	// Company the email is sent on behalf of — used for rate limiting,
	// audit logging, and scoping email_logs.
	CompanyID uuid.UUID `json:"company_id"`

	// Template name (restricted to ValidTemplates, prevents injection)
	Template EmailTemplate `json:"template"`

	// Template data (MUST be pre-sanitized, no raw user input)
	Data map[string]any `json:"data"`

	// RequestID correlates the send with the originating HTTP request.
	RequestID string `json:"request_id"`
}

// EmailTemplate enumerates the allowed templates. Adding a new one requires
// a code change and a ValidTemplates entry.
type EmailTemplate string

const (
	TemplateInviteUser        EmailTemplate = "invite_user"
	TemplatePasswordReset     EmailTemplate = "password_reset"
	TemplateEmailVerification EmailTemplate = "email_verification"
	TemplatePasswordChanged   EmailTemplate = "password_changed"
)

// ValidTemplates is checked before every Send to reject unlisted templates.
var ValidTemplates = map[EmailTemplate]bool{
	TemplateInviteUser:        true,
	TemplatePasswordReset:     true,
	TemplateEmailVerification: true,
	TemplatePasswordChanged:   true,
}

// SMTPConfig holds the outbound SMTP transport configuration. vactrail runs
// one relay for every company rather than the teacher's per-tenant
// mail_config column, so there is no encrypted per-tenant secret to
// decrypt — see DESIGN.md for why internal/crypto was dropped with it.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string

	// TLSMode is "starttls" or "tls".
	TLSMode string
}
