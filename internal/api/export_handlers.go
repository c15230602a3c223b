package api

import (
	"encoding/csv"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/api/middleware"
	"github.com/vactrail/backend/internal/export"
)

// ExportVacations streams the caller's scoped vacation requests as CSV
// (spec.md §4.9). The ExportProjector's rate limit check happens before the
// first row is written, so a rejected export never starts a response body.
func (s *Server) ExportVacations(w http.ResponseWriter, r *http.Request) {
	principal := middleware.MustGetPrincipal(r.Context())
	q := r.URL.Query()

	var filter export.Filter
	filter.Status = q.Get("status")
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

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="vacations.csv"`)

	writer := csv.NewWriter(w)
	headerWritten := false

	for row, err := range s.Export.Rows(r.Context(), principal, principal.UserID.String(), filter) {
		if err != nil {
			if !headerWritten {
				writeError(w, r, err)
				return
			}
			// Streaming already started: the header and some rows already
			// reached the client, so the only honest signal left is to stop
			// without a trailing error row malforming the CSV.
			s.Logger.Error("export: stream aborted mid-write", "error", err)
			writer.Flush()
			return
		}
		if !headerWritten {
			if err := writer.Write(export.Header); err != nil {
				s.Logger.Error("export: writing header", "error", err)
				return
			}
			headerWritten = true
		}
		if err := writer.Write(row); err != nil {
			s.Logger.Error("export: writing row", "error", err)
			return
		}
	}

	if !headerWritten {
		_ = writer.Write(export.Header)
	}
	writer.Flush()
}
