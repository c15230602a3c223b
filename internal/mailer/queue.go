package mailer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnqueueEmail writes an email to the outbox table for async processing.
// This is fast and non-blocking — the worker picks it up later.
func EnqueueEmail(ctx context.Context, pool *pgxpool.Pool, payload EmailPayload) error {
	if !ValidTemplates[payload.Template] {
		return fmt.Errorf("invalid template: %s", payload.Template)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize email payload: %w", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO email_outbox (company_id, payload, status, next_retry_at)
		VALUES ($1, $2, 'pending', NOW())
	`, payload.CompanyID, payloadJSON)
	if err != nil {
		return fmt.Errorf("failed to enqueue email: %w", err)
	}

	return nil
}

// HashRecipient hashes an email address for GDPR-compliant logging: it lets
// email_logs support dedup and audit without storing the raw address.
func HashRecipient(email string) string {
	hash := sha256.Sum256([]byte(email))
	return hex.EncodeToString(hash[:])
}

// CreateEmailLog records a delivery attempt. Call after a Send (success or
// failure) so email_logs reflects what the provider actually did.
func CreateEmailLog(ctx context.Context, pool *pgxpool.Pool, payload EmailPayload, status string, providerMsgID string, errorMsg string) (uuid.UUID, error) {
	recipientHash := HashRecipient(payload.To)

	var logID uuid.UUID
	err := pool.QueryRow(ctx, `
		INSERT INTO email_logs (
			company_id, recipient_hash, template_type, status,
			provider_msg_id, provider_error, created_at, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), CASE WHEN $4 = 'sent' THEN NOW() ELSE NULL END)
		RETURNING id
	`, payload.CompanyID, recipientHash, payload.Template, status, providerMsgID, errorMsg).Scan(&logID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create email log: %w", err)
	}

	return logID, nil
}
