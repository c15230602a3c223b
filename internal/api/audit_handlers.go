package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/api/helpers"
	"github.com/vactrail/backend/internal/api/middleware"
	"github.com/vactrail/backend/internal/audit"
	"github.com/vactrail/backend/internal/authz"
)

// ListAuditEvents lists audit events for the caller's company, admin-only
// (spec.md §4.4/§4.6) — there is no cross-tenant listing, ever.
func (s *Server) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	if principal.Role != authz.RoleAdmin {
		writeError(w, r, apperr.New(apperr.KindNotAuthorized, "audit events are admin-only"))
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{CompanyID: principal.CompanyID}
	if v := q.Get("actor_id"); v != "" {
		actorID, err := uuid.Parse(v)
		if err != nil {
			writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid actor_id"))
			return
		}
		filter.ActorID = actorID
	}
	filter.Action = q.Get("action")
	filter.EntityType = q.Get("entity_type")
	if v := q.Get("entity_id"); v != "" {
		entityID, err := uuid.Parse(v)
		if err != nil {
			writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid entity_id"))
			return
		}
		filter.EntityID = entityID
	}
	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid after, expected RFC3339"))
			return
		}
		filter.After = t
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, apperr.New(apperr.KindInvalidInput, "invalid before, expected RFC3339"))
			return
		}
		filter.Before = t
	}

	limit, offset := pageParams(r)
	events, err := s.Audit.Query(r.Context(), s.Pool, filter, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, events)
}
