package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/api/helpers"
	"github.com/vactrail/backend/internal/api/middleware"
	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/identity"
)

// UserView is the wire shape for a user row — deliberately excludes
// PasswordHash, FailedLoginCount, and LockedUntil, none of which a client
// ever needs to see.
type UserView struct {
	ID                string     `json:"id"`
	CompanyID         string     `json:"company_id"`
	PrimaryFunctionID string     `json:"primary_function_id"`
	Email             string     `json:"email"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Role              string     `json:"role"`
	IsActive          bool       `json:"is_active"`
	EmailVerified     bool       `json:"email_verified"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toUserView(u *identity.User) UserView {
	return UserView{
		ID:                u.ID.String(),
		CompanyID:         u.CompanyID.String(),
		PrimaryFunctionID: u.PrimaryFunctionID.String(),
		Email:             u.Email,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Role:              string(u.Role),
		IsActive:          u.IsActive,
		EmailVerified:     u.EmailVerified,
		LastLoginAt:       u.LastLoginAt,
		CreatedAt:         u.CreatedAt,
	}
}

// Me returns the authenticated caller's own user record.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	user, err := s.Identity.GetUser(r.Context(), authz.SelfScope(principal.CompanyID, principal.UserID), principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, toUserView(user))
}

// ListUsers lists users within the caller's authorized scope (spec.md §6
// Identity: Admin sees the company, Manager sees managed teams, User sees
// only themself via AuthzKernel's Scope narrowing).
func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	decision := authz.Check(principal, authz.ResourceUser, authz.VerbList)
	if !decision.Allowed {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, decision.Reason))
		return
	}

	limit, offset := pageParams(r)
	users, err := s.Identity.ActiveUsers(r.Context(), decision.Scope, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]UserView, len(users))
	for i := range users {
		views[i] = toUserView(&users[i])
	}
	helpers.RespondJSON(w, http.StatusOK, views)
}

// GetUser fetches a single user by id, scoped by AuthzKernel.
func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid user id"))
		return
	}

	decision := authz.Check(principal, authz.ResourceUser, authz.VerbRead)
	if !decision.Allowed {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, decision.Reason))
		return
	}

	user, err := s.Identity.GetUser(r.Context(), decision.Scope, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, toUserView(user))
}

// UpdateUserBody is the PUT /users/{id} body. Zero-value fields are left
// untouched by identity.Store.UpdateUser.
type UpdateUserBody struct {
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	PrimaryFunctionID *string `json:"primary_function_id"`
	Role              *string `json:"role"`
	IsActive          *bool   `json:"is_active"`
}

// UpdateUser applies a partial edit, scoped by AuthzKernel — a Manager may
// only touch their own row (role/is_active changes stay Admin-only by
// virtue of the Scope returned for those verbs).
func (s *Server) UpdateUser(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid user id"))
		return
	}

	var body UpdateUserBody
	if err := helpers.DecodeJSON(r, &body); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}

	decision := authz.Check(principal, authz.ResourceUser, authz.VerbUpdate)
	if !decision.Allowed {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, decision.Reason))
		return
	}
	if (body.Role != nil || body.IsActive != nil) && principal.Role != authz.RoleAdmin {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, "only an admin may change role or active status"))
		return
	}

	patch := identity.UserPatch{FirstName: body.FirstName, LastName: body.LastName}
	if body.PrimaryFunctionID != nil {
		fid, err := uuid.Parse(*body.PrimaryFunctionID)
		if err != nil {
			writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid primary_function_id"))
			return
		}
		patch.PrimaryFunctionID = &fid
	}
	if body.Role != nil {
		role := authz.Role(*body.Role)
		patch.Role = &role
	}
	patch.IsActive = body.IsActive

	user, err := s.Identity.UpdateUser(r.Context(), decision.Scope, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, toUserView(user))
}

// DeleteUser soft-deletes a user, admin-only, and revokes every session.
func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid user id"))
		return
	}
	if principal.Role != authz.RoleAdmin {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, "only an admin may deactivate a user"))
		return
	}

	if err := s.Identity.SoftDeleteUser(r.Context(), authz.CompanyScope(principal.CompanyID), id); err != nil {
		writeError(w, r, err)
		return
	}
	_ = s.Identity.RevokeAllSessions(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// CreateInviteBody is the POST /invites body.
type CreateInviteBody struct {
	Email      string   `json:"email"`
	FunctionID string   `json:"function_id"`
	TeamIDs    []string `json:"team_ids"`
	Role       string   `json:"role"`
}

// CreateInvite issues an invite token, admin-only, and emails it.
func (s *Server) CreateInvite(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	decision := authz.Check(principal, authz.ResourceInvite, authz.VerbCreate)
	if !decision.Allowed {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, decision.Reason))
		return
	}

	var body CreateInviteBody
	if err := helpers.DecodeJSON(r, &body); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}
	functionID, err := uuid.Parse(body.FunctionID)
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid function_id"))
		return
	}
	teamIDs := make([]uuid.UUID, 0, len(body.TeamIDs))
	for _, raw := range body.TeamIDs {
		tid, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid team id in team_ids"))
			return
		}
		teamIDs = append(teamIDs, tid)
	}

	rawToken, invite, err := s.Identity.CreateInviteToken(r.Context(), principal.CompanyID, functionID, teamIDs,
		body.Email, authz.Role(body.Role), principal.UserID, 7*24*time.Hour)
	if err != nil {
		writeError(w, r, err)
		return
	}

	inviteURL := s.Config.AppPublicURL + "/invite/accept?token=" + rawToken
	_ = s.Mailer.SendInvitation(r.Context(), principal.CompanyID, body.Email, inviteURL)

	helpers.RespondJSON(w, http.StatusCreated, map[string]string{
		"id":         invite.ID.String(),
		"expires_at": invite.ExpiresAt.Format(time.RFC3339),
	})
}

// ListInvites lists a company's outstanding invites, admin-only.
func (s *Server) ListInvites(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	if principal.Role != authz.RoleAdmin {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, "invite listing is admin-only"))
		return
	}
	invites, err := s.Identity.ListInvites(r.Context(), principal.CompanyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, invites)
}

// RevokeInvite deletes an unused invite, admin-only.
func (s *Server) RevokeInvite(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	if principal.Role != authz.RoleAdmin {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, "invite revocation is admin-only"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid invite id"))
		return
	}
	if err := s.Identity.RevokeInvite(r.Context(), principal.CompanyID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pageParams reads limit/offset query params with spec.md-sane defaults
// and an upper bound, shared across every list endpoint.
func pageParams(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
