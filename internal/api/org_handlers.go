package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/api/helpers"
	"github.com/vactrail/backend/internal/api/middleware"
	"github.com/vactrail/backend/internal/authz"
)

// GetCompany returns the caller's own company — a Principal never has a
// reason to read any other.
func (s *Server) GetCompany(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid company id"))
		return
	}
	if err := authz.CheckCrossTenant(principal, id); err != nil {
		writeError(w, r, err)
		return
	}

	company, err := s.Identity.GetCompany(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, company)
}

// ListFunctions lists the caller's company's functions.
func (s *Server) ListFunctions(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	functions, err := s.Identity.ListFunctions(r.Context(), principal.CompanyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, functions)
}

// CreateFunctionBody is the POST /functions body.
type CreateFunctionBody struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// CreateFunction creates a new function, admin-only.
func (s *Server) CreateFunction(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	if principal.Role != authz.RoleAdmin {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, "creating a function is admin-only"))
		return
	}

	var body CreateFunctionBody
	if err := helpers.DecodeJSON(r, &body); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}
	if body.Name == "" || body.Code == "" {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "name and code are required"))
		return
	}

	fn, err := s.Identity.CreateFunction(r.Context(), principal.CompanyID, body.Name, body.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, fn)
}

// ListTeams lists a function's teams.
func (s *Server) ListTeams(w http.ResponseWriter, r *http.Request) {
	functionID, err := uuid.Parse(chi.URLParam(r, "functionID"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid function id"))
		return
	}
	teams, err := s.Identity.ListTeams(r.Context(), functionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, teams)
}

// CreateTeamBody is the POST /functions/{functionID}/teams body.
type CreateTeamBody struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// CreateTeam creates a new team under a function, admin-only.
func (s *Server) CreateTeam(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	if principal.Role != authz.RoleAdmin {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, "creating a team is admin-only"))
		return
	}
	functionID, err := uuid.Parse(chi.URLParam(r, "functionID"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid function id"))
		return
	}

	var body CreateTeamBody
	if err := helpers.DecodeJSON(r, &body); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}
	if body.Name == "" || body.Code == "" {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "name and code are required"))
		return
	}

	team, err := s.Identity.CreateTeam(r.Context(), principal.CompanyID, functionID, body.Name, body.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, team)
}

// TeamMembershipBody is the POST /teams/{teamID}/members body.
type TeamMembershipBody struct {
	UserID    string `json:"user_id"`
	IsPrimary bool   `json:"is_primary"`
}

// AddTeamMembership enrolls a user on a team, admin-only.
func (s *Server) AddTeamMembership(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	if principal.Role != authz.RoleAdmin {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, "managing team membership is admin-only"))
		return
	}
	teamID, err := uuid.Parse(chi.URLParam(r, "teamID"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid team id"))
		return
	}

	var body TeamMembershipBody
	if err := helpers.DecodeJSON(r, &body); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}
	userID, err := uuid.Parse(body.UserID)
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid user_id"))
		return
	}

	membership, err := s.Identity.AddTeamMembership(r.Context(), userID, teamID, body.IsPrimary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, membership)
}

// RemoveTeamMembership ends a user's membership on a team, admin-only.
func (s *Server) RemoveTeamMembership(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	if principal.Role != authz.RoleAdmin {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, "managing team membership is admin-only"))
		return
	}
	teamID, err := uuid.Parse(chi.URLParam(r, "teamID"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid team id"))
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid user id"))
		return
	}

	if err := s.Identity.RemoveTeamMembership(r.Context(), userID, teamID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignManagerBody is the POST /teams/{teamID}/manager body.
type AssignManagerBody struct {
	ManagerUserID string `json:"manager_user_id"`
}

// AssignManager assigns a manager to a team, admin-only.
func (s *Server) AssignManager(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	if principal.Role != authz.RoleAdmin {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, "assigning a manager is admin-only"))
		return
	}
	teamID, err := uuid.Parse(chi.URLParam(r, "teamID"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid team id"))
		return
	}

	var body AssignManagerBody
	if err := helpers.DecodeJSON(r, &body); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}
	managerUserID, err := uuid.Parse(body.ManagerUserID)
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid manager_user_id"))
		return
	}

	assignment, err := s.Identity.AssignManager(r.Context(), managerUserID, teamID, principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, assignment)
}

// RemoveManagerAssignment revokes a manager's assignment to a team, admin-only.
func (s *Server) RemoveManagerAssignment(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	if principal.Role != authz.RoleAdmin {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, "revoking a manager assignment is admin-only"))
		return
	}
	teamID, err := uuid.Parse(chi.URLParam(r, "teamID"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid team id"))
		return
	}
	managerUserID, err := uuid.Parse(chi.URLParam(r, "managerUserID"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid manager user id"))
		return
	}

	if err := s.Identity.RemoveManagerAssignment(r.Context(), managerUserID, teamID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
