package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/api/helpers"
	"github.com/vactrail/backend/internal/api/middleware"
	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/requests"
)

const dateOnlyLayout = "2006-01-02"

// CreateRequestBody is the POST /vacations body.
type CreateRequestBody struct {
	UserID      string `json:"user_id"`
	TeamID      string `json:"team_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	RequestType string `json:"request_type"`
	Reason      string `json:"reason"`
}

func (b CreateRequestBody) toCreateInput(selfID uuid.UUID) (requests.CreateInput, error) {
	userID := selfID
	if b.UserID != "" {
		parsed, err := uuid.Parse(b.UserID)
		if err != nil {
			return requests.CreateInput{}, apperr.New(apperr.KindInvalidInput, "invalid user_id")
		}
		userID = parsed
	}

	var teamID *uuid.UUID
	if b.TeamID != "" {
		parsed, err := uuid.Parse(b.TeamID)
		if err != nil {
			return requests.CreateInput{}, apperr.New(apperr.KindInvalidInput, "invalid team_id")
		}
		teamID = &parsed
	}

	start, err := time.Parse(dateOnlyLayout, b.StartDate)
	if err != nil {
		return requests.CreateInput{}, apperr.New(apperr.KindInvalidInput, "invalid start_date, expected YYYY-MM-DD")
	}
	end, err := time.Parse(dateOnlyLayout, b.EndDate)
	if err != nil {
		return requests.CreateInput{}, apperr.New(apperr.KindInvalidInput, "invalid end_date, expected YYYY-MM-DD")
	}

	return requests.CreateInput{
		UserID:      userID,
		TeamID:      teamID,
		StartDate:   start,
		EndDate:     end,
		RequestType: requests.Type(b.RequestType),
		Reason:      b.Reason,
	}, nil
}

// CreateRequest creates a new vacation request, pending by default.
func (s *Server) CreateRequest(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	var body CreateRequestBody
	if err := helpers.DecodeJSON(r, &body); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}
	input, err := body.toCreateInput(principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := s.Requests.Create(r.Context(), principal, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, req)
}

// GetRequest fetches one request by id.
func (s *Server) GetRequest(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request id"))
		return
	}
	req, err := s.Requests.Get(r.Context(), principal, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, req)
}

// ListRequests lists requests within the caller's scope, optionally filtered.
func (s *Server) ListRequests(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	q := r.URL.Query()

	var filter requests.Filter
	if v := q.Get("status"); v != "" {
		filter.Status = requests.Status(v)
	}
	if v := q.Get("team_id"); v != "" {
		teamID, err := uuid.Parse(v)
		if err != nil {
			writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid team_id"))
			return
		}
		filter.TeamID = teamID
	}
	if v := q.Get("user_id"); v != "" {
		userID, err := uuid.Parse(v)
		if err != nil {
			writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid user_id"))
			return
		}
		filter.UserID = userID
	}
	if v := q.Get("start_from"); v != "" {
		t, err := time.Parse(dateOnlyLayout, v)
		if err != nil {
			writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid start_from, expected YYYY-MM-DD"))
			return
		}
		filter.StartFrom = t
	}
	if v := q.Get("start_to"); v != "" {
		t, err := time.Parse(dateOnlyLayout, v)
		if err != nil {
			writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid start_to, expected YYYY-MM-DD"))
			return
		}
		filter.StartTo = t
	}

	limit, offset := pageParams(r)
	list, err := s.Requests.List(r.Context(), principal, filter, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, list)
}

// ModifyRequest edits a draft request in place.
func (s *Server) ModifyRequest(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request id"))
		return
	}

	var body CreateRequestBody
	if err := helpers.DecodeJSON(r, &body); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}
	input, err := body.toCreateInput(principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := s.Requests.Modify(r.Context(), principal, id, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, req)
}

// SubmitRequest transitions a draft to pending.
func (s *Server) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	s.idOnlyTransition(w, r, s.Requests.Submit)
}

// ApproveRequest transitions a pending request to approved.
func (s *Server) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	s.idOnlyTransition(w, r, s.Requests.Approve)
}

// CancelRequest cancels a non-terminal request.
func (s *Server) CancelRequest(w http.ResponseWriter, r *http.Request) {
	s.idOnlyTransition(w, r, s.Requests.Cancel)
}

// WithdrawRequest withdraws an approved request before its start date.
func (s *Server) WithdrawRequest(w http.ResponseWriter, r *http.Request) {
	s.idOnlyTransition(w, r, s.Requests.Withdraw)
}

// idOnlyTransition is the shared shape of every state-machine action that
// takes nothing but the request id — submit, approve, cancel, withdraw.
func (s *Server) idOnlyTransition(
	w http.ResponseWriter, r *http.Request,
	action func(ctx context.Context, principal authz.Principal, id uuid.UUID) (*requests.Request, error),
) {
	principal := middleware.MustGetPrincipal(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request id"))
		return
	}

	req, err := action(r.Context(), principal, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, req)
}

// RejectRequestBody is the POST /vacations/{id}/reject body.
type RejectRequestBody struct {
	Reason string `json:"reason"`
}

// RejectRequest transitions a pending request to rejected with a reason.
func (s *Server) RejectRequest(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request id"))
		return
	}
	var body RejectRequestBody
	if err := helpers.DecodeJSON(r, &body); err != nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid request body"))
		return
	}

	req, err := s.Requests.Reject(r.Context(), principal, id, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, req)
}

// Balances returns every balance the caller's own allocations cover.
func (s *Server) Balances(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	userID := principal.UserID
	if v := r.URL.Query().Get("user_id"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid user_id"))
			return
		}
		if parsed != principal.UserID && principal.Role == authz.RoleUser {
			writeError(w, r, apperr.New(apperr.KindNotAuthorized, "cannot view another user's balance"))
			return
		}
		userID = parsed
	}

	balances, err := s.Calendar.Balances(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, balances)
}
