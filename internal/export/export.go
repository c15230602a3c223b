// Package export is the ExportProjector: a scoped, rate-limited,
// restartable row sequence over vacation requests, ready for a caller's
// CSV/XLSX encoder (spec.md §4.9). Encoding itself is out of scope — the
// projector's job stops at producing flat string rows.
package export

import (
	"context"
	"iter"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/identity"
	"github.com/vactrail/backend/internal/ratelimit"
	"github.com/vactrail/backend/internal/storage"
)

// Filter narrows the exported row set. Zero-value fields are not applied.
type Filter struct {
	Status    string
	TeamID    uuid.UUID
	UserID    uuid.UUID
	StartFrom time.Time
	StartTo   time.Time
}

// Header is the fixed column list every row is shaped to.
var Header = []string{
	"id", "user_email", "user_first_name", "user_last_name", "team_code",
	"start_date", "end_date", "request_type", "status", "days_count",
	"approver_email", "approved_at", "created_at",
}

// Projector is the ExportProjector component.
type Projector struct {
	pool *pgxpool.Pool
	gate *ratelimit.Gate
}

func NewProjector(pool *pgxpool.Pool, gate *ratelimit.Gate) *Projector {
	return &Projector{pool: pool, gate: gate}
}

// Rows returns a forward-only, restartable iterator over exported rows
// within the principal's scope, checked once against the export RateGate
// category before the query even runs. rateLimitKey is typically the
// principal's user id.
//
// The sequence is a Go 1.23 range-over-func iterator
// (func(yield func([]string, error) bool)) rather than a materialized
// slice: callers stream rows straight to an encoding/csv.Writer without
// holding the whole export in memory, and range's early-break semantics
// make it naturally restartable by re-invoking Rows with the same filter.
func (p *Projector) Rows(ctx context.Context, principal authz.Principal, rateLimitKey string, filter Filter) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		decision := authz.Check(principal, authz.ResourceVacationRequest, authz.VerbList)
		if !decision.Allowed {
			yield(nil, apperr.New(apperr.KindNotAuthorized, decision.Reason))
			return
		}

		result, err := p.gate.CheckAndRecord(ctx, ratelimit.CategoryExport, rateLimitKey)
		if err != nil {
			yield(nil, err)
			return
		}
		if !result.Allowed {
			yield(nil, apperr.RateLimited(result.RetryAfterSeconds))
			return
		}

		where, args := storage.ScopeWhere(decision.Scope, "u.company_id", identity.TeamUsersSubquery, "r.user_id", 0)
		arg := func(v interface{}) string {
			args = append(args, v)
			return "$" + strconv.Itoa(len(args))
		}
		if filter.Status != "" {
			where += " AND r.status = " + arg(filter.Status)
		}
		if filter.TeamID != uuid.Nil {
			where += " AND r.team_id = " + arg(filter.TeamID)
		}
		if filter.UserID != uuid.Nil {
			where += " AND r.user_id = " + arg(filter.UserID)
		}
		if !filter.StartFrom.IsZero() {
			where += " AND r.start_date >= " + arg(filter.StartFrom)
		}
		if !filter.StartTo.IsZero() {
			where += " AND r.start_date <= " + arg(filter.StartTo)
		}

		rows, err := p.pool.Query(ctx, `
			SELECT r.id, u.email, u.first_name, u.last_name, coalesce(t.code, ''),
				r.start_date, r.end_date, r.request_type, r.status, coalesce(r.days_count, 0),
				coalesce(a.email, ''), r.approved_at, r.created_at
			FROM vacation_requests r
			JOIN users u ON u.id = r.user_id
			LEFT JOIN teams t ON t.id = r.team_id
			LEFT JOIN users a ON a.id = r.approver_id
			WHERE `+where+`
			ORDER BY r.created_at ASC, r.id ASC
		`, args...)
		if err != nil {
			yield(nil, apperr.Wrap(apperr.KindInternal, "export: querying rows", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var id uuid.UUID
			var email, first, last, teamCode, requestType, status, approverEmail string
			var start, end time.Time
			var daysCount float64
			var approvedAt, createdAt *time.Time
			if err := rows.Scan(&id, &email, &first, &last, &teamCode, &start, &end, &requestType, &status,
				&daysCount, &approverEmail, &approvedAt, &createdAt); err != nil {
				yield(nil, apperr.Wrap(apperr.KindInternal, "export: scanning row", err))
				return
			}

			row := []string{
				id.String(), email, first, last, teamCode,
				start.Format("2006-01-02"), end.Format("2006-01-02"), requestType, status,
				strconv.FormatFloat(daysCount, 'f', 2, 64),
				approverEmail, formatOptionalTime(approvedAt), formatOptionalTime(createdAt),
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, apperr.Wrap(apperr.KindInternal, "export: iterating rows", err))
		}
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
