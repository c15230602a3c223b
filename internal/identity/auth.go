package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/password"
	"github.com/vactrail/backend/internal/storage"
	"github.com/vactrail/backend/internal/tokens"
)

// dummyHash is verified against on an unknown-email login attempt so the
// Argon2id cost is paid identically whether or not the account exists,
// closing the timing side-channel the teacher's registration_service.go
// does not have to consider (single-tenant, no enumeration concern) but
// this domain's login path does.
const dummyHash = "$argon2id$v=19$m=65536,t=2,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CreateUserFromInvite validates invite (unused, unexpired), applies the
// password policy, hashes, and creates a user tied to the invite's
// company/function/teams/role in one transaction, marking the invite used
// (spec.md §4.5). Fails InviteInvalid, WeakPassword.
func (s *Store) CreateUserFromInvite(ctx context.Context, rawInviteToken, plainPassword, firstName, lastName string) (*User, error) {
	if err := password.ValidatePolicy(plainPassword); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return nil, err
	}

	var created *User
	err = storage.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		invite, err := loadInviteForUpdate(ctx, tx, tokens.Hash(rawInviteToken))
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if invite.UsedAt != nil || now.After(invite.ExpiresAt) {
			return apperr.New(apperr.KindInviteInvalid, "invite token used or expired")
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO users (company_id, primary_function_id, email, first_name, last_name, password_hash, role, is_active, email_verified, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true, true, $8, $8)
			RETURNING id, company_id, primary_function_id, email, first_name, last_name, password_hash,
				role, is_active, email_verified, last_login_at, failed_login_count, locked_until,
				created_at, updated_at, deleted_at
		`, invite.CompanyID, invite.FunctionID, invite.Email, firstName, lastName, hash, invite.RoleToAssign, now)

		u, err := scanUser(row)
		if err != nil {
			return err
		}

		for i, teamID := range invite.TeamIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO team_memberships (user_id, team_id, is_primary, joined_at) VALUES ($1, $2, $3, $4)
			`, u.ID, teamID, i == 0, now); err != nil {
				return apperr.Wrap(apperr.KindInternal, "identity: enrolling invited user on team", err)
			}
		}

		if _, err := tx.Exec(ctx, `UPDATE invite_tokens SET used_at = $2 WHERE id = $1`, invite.ID, now); err != nil {
			return apperr.Wrap(apperr.KindInternal, "identity: marking invite used", err)
		}

		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AuthResult is the outcome of a successful Authenticate call: the caller
// still has to issue tokens via tokens.Codec and a refresh token via
// IssueRefreshToken — Authenticate only verifies credentials and the
// lockout latch's persisted shadow (RateGate's Redis latch is the source
// of truth for the in-flight request; see spec.md §4.3).
type AuthResult struct {
	User *User
}

// Authenticate verifies email/password with a constant-time dummy-hash
// compare on an unknown email (teacher's registration_service.go has no
// equivalent since it is single-tenant internal tooling; this is the
// pack's anti-enumeration idiom applied to a public login endpoint).
// Callers are responsible for consulting RateGate's lockout latch before
// calling Authenticate and for calling MarkFailedLogin/ClearFailedLogin
// afterward.
func (s *Store) Authenticate(ctx context.Context, email, plainPassword string) (*AuthResult, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			_, _ = s.hasher.Verify(dummyHash, plainPassword)
			return nil, apperr.New(apperr.KindInvalidCredential, "invalid email or password")
		}
		return nil, err
	}

	if u.LockedUntil != nil && s.clock.Now().Before(*u.LockedUntil) {
		return nil, apperr.LoginLocked(int(u.LockedUntil.Sub(s.clock.Now()).Seconds()))
	}

	result, err := s.hasher.Verify(u.PasswordHash, plainPassword)
	if err != nil {
		return nil, err
	}
	if !result.Match {
		return nil, apperr.New(apperr.KindInvalidCredential, "invalid email or password")
	}

	if result.NeedsRehash {
		rehashed, err := s.hasher.Hash(plainPassword)
		if err == nil {
			_, _ = s.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, u.ID, rehashed)
		}
	}

	now := s.clock.Now()
	_, _ = s.pool.Exec(ctx, `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, u.ID, now)

	return &AuthResult{User: u}, nil
}

// ChangePassword requires current to verify, applies the policy to new,
// and on success revokes all refresh tokens for the user (spec.md §4.5) —
// grounded on the teacher's RevokeTokenFamily idiom, generalized from one
// family to every session the user holds.
func (s *Store) ChangePassword(ctx context.Context, userID uuid.UUID, current, newPassword string) error {
	row := s.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1 AND deleted_at IS NULL`, userID)
	var hash string
	if err := row.Scan(&hash); err != nil {
		if err == pgx.ErrNoRows {
			return apperr.New(apperr.KindNotFound, "user not found")
		}
		return apperr.Wrap(apperr.KindInternal, "identity: loading password hash", err)
	}

	result, err := s.hasher.Verify(hash, current)
	if err != nil {
		return err
	}
	if !result.Match {
		return apperr.New(apperr.KindInvalidCredential, "current password incorrect")
	}

	if err := password.ValidatePolicy(newPassword); err != nil {
		return err
	}
	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	return storage.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		now := s.clock.Now()
		if _, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $2 WHERE id = $1`, userID, now); err != nil {
			return apperr.Wrap(apperr.KindInternal, "identity: updating password", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, now); err != nil {
			return apperr.Wrap(apperr.KindInternal, "identity: revoking sessions on password change", err)
		}
		return nil
	})
}

// CheckScopedOrDeny applies authz.CheckCrossTenant and returns its error
// verbatim — a thin wrapper kept here so call sites in internal/api never
// import internal/storage just to compose a scope.
func CheckScopedOrDeny(principal authz.Principal, resourceCompanyID uuid.UUID) error {
	return authz.CheckCrossTenant(principal, resourceCompanyID)
}

func loadInviteForUpdate(ctx context.Context, tx pgx.Tx, tokenHash string) (*InviteToken, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, token_hash, company_id, function_id, team_ids, email, role_to_assign, invited_by, expires_at, used_at, created_at
		FROM invite_tokens WHERE token_hash = $1 FOR UPDATE
	`, tokenHash)

	var inv InviteToken
	if err := row.Scan(&inv.ID, &inv.TokenHash, &inv.CompanyID, &inv.FunctionID, &inv.TeamIDs, &inv.Email,
		&inv.RoleToAssign, &inv.InvitedBy, &inv.ExpiresAt, &inv.UsedAt, &inv.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindInviteInvalid, "invite token not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "identity: loading invite", err)
	}
	return &inv, nil
}
