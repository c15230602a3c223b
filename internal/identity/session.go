package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/password"
	"github.com/vactrail/backend/internal/storage"
	"github.com/vactrail/backend/internal/tokens"
)

// DefaultRefreshTTL and RememberMeRefreshTTL are spec.md's session lifetimes;
// remember-me is the optional flag carried on RefreshTokenRecord (spec.md
// §10 Open Questions).
const (
	DefaultRefreshTTL    = 7 * 24 * time.Hour
	RememberMeRefreshTTL = 30 * 24 * time.Hour
	refreshReplayGrace   = 10 * time.Second
)

// IssuedSession is the raw material returned to a caller exactly once — only
// IssuedSession.TokenHash is ever persisted.
type IssuedSession struct {
	RawToken string
	Record   RefreshTokenRecord
}

// IssueRefreshToken creates a brand-new token family, used at login — every
// rotation descending from this token shares FamilyID (spec.md §3
// [SUPPLEMENT], grounded on the teacher's family-based rotation design in
// session_service.go).
func (s *Store) IssueRefreshToken(ctx context.Context, userID uuid.UUID, ip, userAgent string, rememberMe bool) (*IssuedSession, error) {
	ttl := DefaultRefreshTTL
	if rememberMe {
		ttl = RememberMeRefreshTTL
	}
	return s.issueRefreshToken(ctx, nil, userID, uuid.New(), ip, userAgent, rememberMe, ttl)
}

func (s *Store) issueRefreshToken(ctx context.Context, tx pgx.Tx, userID, familyID uuid.UUID, ip, userAgent string, rememberMe bool, ttl time.Duration) (*IssuedSession, error) {
	raw, err := tokens.GenerateOpaque()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	rec := RefreshTokenRecord{
		UserID:       userID,
		TokenHash:    tokens.Hash(raw),
		FamilyID:     familyID,
		ExpiresAt:    now.Add(ttl),
		UserAgent:    userAgent,
		IP:           ip,
		IsRememberMe: rememberMe,
		CreatedAt:    now,
	}

	row := queryRow(ctx, tx, s.pool, `
		INSERT INTO refresh_tokens (user_id, token_hash, family_id, expires_at, user_agent, ip, is_remember_me, created_at)
		VALUES ($1, $2, $3, $4, $5, nullif($6, '')::inet, $7, $8)
		RETURNING id, user_id, token_hash, family_id, expires_at, revoked_at, last_used_at, user_agent,
			coalesce(host(ip), ''), is_remember_me, created_at
	`, rec.UserID, rec.TokenHash, rec.FamilyID, rec.ExpiresAt, rec.UserAgent, rec.IP, rec.IsRememberMe, rec.CreatedAt)

	if err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.FamilyID, &rec.ExpiresAt, &rec.RevokedAt,
		&rec.LastUsedAt, &rec.UserAgent, &rec.IP, &rec.IsRememberMe, &rec.CreatedAt); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "identity: storing refresh token", err)
	}

	return &IssuedSession{RawToken: raw, Record: rec}, nil
}

// RotateRefreshToken exchanges rawToken for a new one in the same family.
// It is the sole place P4 (presented token revoked exactly when a new one
// is issued) is implemented: revoke-then-issue happens inside one
// transaction, so a crash between the two steps leaves the old token
// revoked and no new one live — never both.
//
// Reuse of an already-revoked token is replay: within refreshReplayGrace of
// its own revocation it is treated as a concurrent-request race (spec.md's
// RefreshReplayDetected is not raised); past that window the entire family
// is revoked and RefreshReplayDetected is returned (grounded on the
// teacher's "nuclear option" in session_service.go.RefreshSession).
func (s *Store) RotateRefreshToken(ctx context.Context, rawToken, ip, userAgent string) (*IssuedSession, error) {
	hash := tokens.Hash(rawToken)

	var issued *IssuedSession
	err := storage.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id, user_id, token_hash, family_id, expires_at, revoked_at, last_used_at, user_agent,
				coalesce(host(ip), ''), is_remember_me, created_at
			FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE
		`, hash)

		var rec RefreshTokenRecord
		if err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.FamilyID, &rec.ExpiresAt, &rec.RevokedAt,
			&rec.LastUsedAt, &rec.UserAgent, &rec.IP, &rec.IsRememberMe, &rec.CreatedAt); err != nil {
			if err == pgx.ErrNoRows {
				return apperr.New(apperr.KindInvalidCredential, "refresh token not found")
			}
			return apperr.Wrap(apperr.KindInternal, "identity: loading refresh token", err)
		}

		now := s.clock.Now()

		if rec.RevokedAt != nil {
			if now.Sub(*rec.RevokedAt) < refreshReplayGrace {
				return apperr.New(apperr.KindInvalidCredential, "concurrent refresh request")
			}
			if _, err := tx.Exec(ctx, `
				UPDATE refresh_tokens SET revoked_at = $2 WHERE family_id = $1 AND revoked_at IS NULL
			`, rec.FamilyID, now); err != nil {
				return apperr.Wrap(apperr.KindInternal, "identity: revoking token family on replay", err)
			}
			return apperr.New(apperr.KindReplayDetected, "refresh token reuse detected; session revoked")
		}

		if now.After(rec.ExpiresAt) {
			return apperr.New(apperr.KindExpired, "refresh token expired")
		}

		if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2, last_used_at = $2 WHERE id = $1`, rec.ID, now); err != nil {
			return apperr.Wrap(apperr.KindInternal, "identity: revoking presented refresh token", err)
		}

		ttl := DefaultRefreshTTL
		if rec.IsRememberMe {
			ttl = RememberMeRefreshTTL
		}
		next, err := s.issueRefreshToken(ctx, tx, rec.UserID, rec.FamilyID, ip, userAgent, rec.IsRememberMe, ttl)
		if err != nil {
			return err
		}
		issued = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// RevokeRefreshTokenFamily revokes every token descending from rawToken's
// family, used for logout (teacher's Logout revokes the presented token's
// whole family rather than a single jti).
func (s *Store) RevokeRefreshTokenFamily(ctx context.Context, rawToken string) error {
	hash := tokens.Hash(rawToken)
	now := s.clock.Now()
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE revoked_at IS NULL AND family_id = (SELECT family_id FROM refresh_tokens WHERE token_hash = $1)
	`, hash, now)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "identity: revoking token family", err)
	}
	return nil
}

// RevokeAllSessions revokes every live refresh token for a user, used by
// ChangePassword and admin-initiated SoftDeleteUser.
func (s *Store) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, s.clock.Now())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "identity: revoking all sessions", err)
	}
	return nil
}

// ListSessions lists a user's live (unrevoked, unexpired) refresh tokens,
// for a "your devices" view.
func (s *Store) ListSessions(ctx context.Context, userID uuid.UUID) ([]RefreshTokenRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, token_hash, family_id, expires_at, revoked_at, last_used_at, user_agent,
			coalesce(host(ip), ''), is_remember_me, created_at
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
	`, userID, s.clock.Now())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "identity: listing sessions", err)
	}
	defer rows.Close()

	var out []RefreshTokenRecord
	for rows.Next() {
		var rec RefreshTokenRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.FamilyID, &rec.ExpiresAt, &rec.RevokedAt,
			&rec.LastUsedAt, &rec.UserAgent, &rec.IP, &rec.IsRememberMe, &rec.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "identity: scanning session", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateInviteToken issues an admin invite tied to a company/function/team
// set and the role to assign on acceptance.
func (s *Store) CreateInviteToken(ctx context.Context, companyID, functionID uuid.UUID, teamIDs []uuid.UUID, email string, role authz.Role, invitedBy uuid.UUID, ttl time.Duration) (string, *InviteToken, error) {
	raw, err := tokens.GenerateOpaque()
	if err != nil {
		return "", nil, err
	}
	now := s.clock.Now()
	if teamIDs == nil {
		teamIDs = []uuid.UUID{}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO invite_tokens (token_hash, company_id, function_id, team_ids, email, role_to_assign, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, token_hash, company_id, function_id, team_ids, email, role_to_assign, invited_by, expires_at, used_at, created_at
	`, tokens.Hash(raw), companyID, functionID, teamIDs, email, role, invitedBy, now.Add(ttl), now)

	var inv InviteToken
	if err := row.Scan(&inv.ID, &inv.TokenHash, &inv.CompanyID, &inv.FunctionID, &inv.TeamIDs, &inv.Email,
		&inv.RoleToAssign, &inv.InvitedBy, &inv.ExpiresAt, &inv.UsedAt, &inv.CreatedAt); err != nil {
		return "", nil, apperr.Wrap(apperr.KindInternal, "identity: creating invite", err)
	}
	return raw, &inv, nil
}

// ListInvites lists a company's outstanding (unused) invites.
func (s *Store) ListInvites(ctx context.Context, companyID uuid.UUID) ([]InviteToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, token_hash, company_id, function_id, team_ids, email, role_to_assign, invited_by, expires_at, used_at, created_at
		FROM invite_tokens WHERE company_id = $1 AND used_at IS NULL ORDER BY created_at DESC
	`, companyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "identity: listing invites", err)
	}
	defer rows.Close()

	var out []InviteToken
	for rows.Next() {
		var inv InviteToken
		if err := rows.Scan(&inv.ID, &inv.TokenHash, &inv.CompanyID, &inv.FunctionID, &inv.TeamIDs, &inv.Email,
			&inv.RoleToAssign, &inv.InvitedBy, &inv.ExpiresAt, &inv.UsedAt, &inv.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "identity: scanning invite", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// RevokeInvite deletes an unused invite, preventing acceptance.
func (s *Store) RevokeInvite(ctx context.Context, companyID, inviteID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM invite_tokens WHERE id = $1 AND company_id = $2 AND used_at IS NULL`, inviteID, companyID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "identity: revoking invite", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "invite not found or already used")
	}
	return nil
}

// CreatePasswordResetToken issues a reset token for an active user, to be
// emailed by the caller via the mailer package.
func (s *Store) CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, ttl time.Duration) (string, error) {
	raw, err := tokens.GenerateOpaque()
	if err != nil {
		return "", err
	}
	now := s.clock.Now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (token_hash, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)
	`, tokens.Hash(raw), userID, now.Add(ttl), now)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "identity: creating password reset token", err)
	}
	return raw, nil
}

// ConfirmPasswordReset validates an unused, unexpired reset token, sets the
// new password, marks the token used, revokes every live session, and
// clears the lockout latch's persisted shadow — matching spec.md's note
// that a successful out-of-band reset clears the lockout early.
func (s *Store) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	if err := password.ValidatePolicy(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	return storage.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id, user_id, expires_at, used_at FROM password_reset_tokens WHERE token_hash = $1 FOR UPDATE
		`, tokens.Hash(rawToken))

		var id, userID uuid.UUID
		var expiresAt time.Time
		var usedAt *time.Time
		if err := row.Scan(&id, &userID, &expiresAt, &usedAt); err != nil {
			if err == pgx.ErrNoRows {
				return apperr.New(apperr.KindInviteInvalid, "reset token not found")
			}
			return apperr.Wrap(apperr.KindInternal, "identity: loading reset token", err)
		}

		now := s.clock.Now()
		if usedAt != nil || now.After(expiresAt) {
			return apperr.New(apperr.KindInviteInvalid, "reset token used or expired")
		}

		if _, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2, failed_login_count = 0, locked_until = NULL, updated_at = $3 WHERE id = $1`,
			userID, hash, now); err != nil {
			return apperr.Wrap(apperr.KindInternal, "identity: updating password", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1`, id, now); err != nil {
			return apperr.Wrap(apperr.KindInternal, "identity: marking reset token used", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, now); err != nil {
			return apperr.Wrap(apperr.KindInternal, "identity: revoking sessions on password reset", err)
		}
		return nil
	})
}

// queryRow runs against tx when non-nil, else against the pool — lets
// issueRefreshToken serve both the standalone-login and
// inside-RotateRefreshToken's-transaction call sites.
func queryRow(ctx context.Context, tx pgx.Tx, pool rowQuerier, sql string, args ...interface{}) pgx.Row {
	if tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return pool.QueryRow(ctx, sql, args...)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
