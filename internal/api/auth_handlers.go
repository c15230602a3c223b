package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/api/helpers"
	"github.com/vactrail/backend/internal/api/middleware"
	"github.com/vactrail/backend/internal/ratelimit"
)

const refreshCookieName = "refresh_token"

// LoginRequest is the POST /auth/login body.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// AuthResponse is returned on a successful login or refresh: the access
// token travels in the body for the client to attach as a Bearer header;
// the refresh token never appears here, only in the HttpOnly cookie set
// alongside it.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	UserID      string `json:"user_id"`
	CompanyID   string `json:"company_id"`
	Role        string `json:"role"`
}

// Login verifies credentials (spec.md §4.3), consulting RateGate's sliding
// window and the persisted lockout latch before ever touching the password
// hash, then issues an access token and sets a refresh-token cookie.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}

	ctx := r.Context()
	ip := helpers.GetRealIP(r).String()

	result, err := s.Gate.CheckAndRecord(ctx, ratelimit.CategoryLogin, ip)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !result.Allowed {
		writeError(w, r, apperr.RateLimited(result.RetryAfterSeconds))
		return
	}

	locked, err := s.Gate.IsLocked(ctx, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if locked {
		writeError(w, r, apperr.LoginLocked(int(15*time.Minute/time.Second)))
		return
	}

	auth, err := s.Identity.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if apperr.Is(err, apperr.KindInvalidCredential) {
			_ = s.Gate.RecordFailedLogin(ctx, req.Email)
			_ = s.Identity.MarkFailedLogin(ctx, req.Email, 5, 15*time.Minute)
		}
		writeError(w, r, err)
		return
	}

	_ = s.Gate.ClearLockout(ctx, req.Email)
	_ = s.Identity.ClearFailedLogin(ctx, auth.User.ID)

	issued, err := s.Identity.IssueRefreshToken(ctx, auth.User.ID, ip, r.UserAgent(), req.RememberMe)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setRefreshCookie(w, issued.RawToken, issued.Record.ExpiresAt)
	s.respondAccessToken(w, r, auth.User.ID, auth.User.CompanyID, string(auth.User.Role))
}

// Refresh rotates the presented refresh token (spec.md §4.2 P4) and issues
// a new access token. A replayed/expired token clears the cookie so the
// client does not keep retrying with dead material.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := helpers.GetRealIP(r).String()

	result, err := s.Gate.CheckAndRecord(ctx, ratelimit.CategoryRefresh, ip)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !result.Allowed {
		writeError(w, r, apperr.RateLimited(result.RetryAfterSeconds))
		return
	}

	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, r, apperr.New(apperr.KindNotAuthenticated, "no refresh token presented"))
		return
	}

	issued, err := s.Identity.RotateRefreshToken(ctx, cookie.Value, ip, r.UserAgent())
	if err != nil {
		clearRefreshCookie(w)
		writeError(w, r, err)
		return
	}

	companyID, role, err := s.lookupUserCompanyAndRole(ctx, issued.Record.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	setRefreshCookie(w, issued.RawToken, issued.Record.ExpiresAt)
	s.respondAccessToken(w, r, issued.Record.UserID, companyID, role)
}

// Logout revokes the presented refresh token's entire family and clears
// the cookie. It always succeeds from the client's point of view even if
// no cookie was present.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		_ = s.Identity.RevokeRefreshTokenFamily(r.Context(), cookie.Value)
	}
	clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// AcceptInviteRequest is the POST /auth/invite/accept body.
type AcceptInviteRequest struct {
	Token     string `json:"token"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AcceptInvite creates the invited user's account (spec.md §4.5). The
// caller must still log in afterward — acceptance does not itself start a
// session, mirroring the teacher's registration flow requiring a separate
// login step.
func (s *Server) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req AcceptInviteRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}

	user, err := s.Identity.CreateUserFromInvite(r.Context(), req.Token, req.Password, req.FirstName, req.LastName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusCreated, map[string]string{
		"id":    user.ID.String(),
		"email": user.Email,
	})
}

// PasswordResetRequestBody is the POST /auth/password-reset/request body.
type PasswordResetRequestBody struct {
	Email string `json:"email"`
}

// RequestPasswordReset issues a reset token and emails it, always
// responding 202 regardless of whether the email matched a user — the
// same anti-enumeration posture as Authenticate's dummy-hash compare.
func (s *Server) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequestBody
	if err := helpers.DecodeJSON(r, &req); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}

	ctx := r.Context()
	result, err := s.Gate.CheckAndRecord(ctx, ratelimit.CategoryPasswordResetRequest, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !result.Allowed {
		writeError(w, r, apperr.RateLimited(result.RetryAfterSeconds))
		return
	}

	if user, err := s.Identity.GetUserByEmail(ctx, req.Email); err == nil {
		if token, err := s.Identity.CreatePasswordResetToken(ctx, user.ID, time.Hour); err == nil {
			_ = s.Mailer.SendPasswordReset(ctx, user.CompanyID, user.Email, token, s.Config.AppPublicURL)
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

// PasswordResetConfirmBody is the POST /auth/password-reset/confirm body.
type PasswordResetConfirmBody struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ConfirmPasswordReset applies the new password and revokes every session.
func (s *Server) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmBody
	if err := helpers.DecodeJSON(r, &req); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}

	ctx := r.Context()
	result, err := s.Gate.CheckAndRecord(ctx, ratelimit.CategoryPasswordResetConfirm, helpers.GetRealIP(r).String())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !result.Allowed {
		writeError(w, r, apperr.RateLimited(result.RetryAfterSeconds))
		return
	}

	if err := s.Identity.ConfirmPasswordReset(ctx, req.Token, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// ChangePasswordBody is the POST /users/me/password body.
type ChangePasswordBody struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword requires the caller's current password and, on success,
// revokes every session including this one — the "nuclear option" the
// teacher's profile handler applied to a password change.
func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.GetPrincipal(r.Context())
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindNotAuthenticated, "authentication required"))
		return
	}

	var req ChangePasswordBody
	if err := helpers.DecodeJSON(r, &req); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}

	if err := s.Identity.ChangePassword(r.Context(), principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// respondAccessToken signs a fresh access token and writes the AuthResponse
// body. Shared by Login and Refresh so both paths stay in lockstep on
// claim shape.
func (s *Server) respondAccessToken(w http.ResponseWriter, r *http.Request, userID, companyID uuid.UUID, role string) {
	accessToken, err := s.Codec.IssueAccessToken(userID, companyID, role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, AuthResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.Config.AccessTokenTTL.Seconds()),
		UserID:      userID.String(),
		CompanyID:   companyID.String(),
		Role:        role,
	})
}

// lookupUserCompanyAndRole resolves the (company_id, role) pair for a user
// id alone, with no Scope available yet — needed only at the refresh
// boundary, the one place a caller is authenticated by a rotated token
// rather than a Principal already carrying its company.
func (s *Server) lookupUserCompanyAndRole(ctx context.Context, userID uuid.UUID) (uuid.UUID, string, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT company_id, role FROM users WHERE id = $1 AND deleted_at IS NULL AND is_active
	`, userID)

	var companyID uuid.UUID
	var role string
	if err := row.Scan(&companyID, &role); err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, "", apperr.New(apperr.KindNotAuthenticated, "account no longer active")
		}
		return uuid.Nil, "", apperr.Wrap(apperr.KindInternal, "api: resolving refreshed user", err)
	}
	return companyID, role, nil
}

func setRefreshCookie(w http.ResponseWriter, raw string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    raw,
		Path:     "/auth",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
