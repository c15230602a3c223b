package requests

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/identity"
	"github.com/vactrail/backend/internal/storage"
)

// Filter narrows List results. Zero-value fields are not applied.
type Filter struct {
	Status    Status
	TeamID    uuid.UUID
	UserID    uuid.UUID
	StartFrom time.Time
	StartTo   time.Time
}

// Get fetches one request, scoped via AuthzKernel and cross-tenant checked
// before the caller ever sees it — a foreign-tenant id reports NotFound,
// never NotAuthorized (P5, scenario 6).
func (e *Engine) Get(ctx context.Context, principal authz.Principal, id uuid.UUID) (*Request, error) {
	decision := authz.Check(principal, authz.ResourceVacationRequest, authz.VerbRead)
	if !decision.Allowed {
		return nil, apperr.New(apperr.KindNotAuthorized, decision.Reason)
	}

	r, err := e.getUnscoped(ctx, id)
	if err != nil {
		return nil, err
	}

	var companyID uuid.UUID
	_ = e.pool.QueryRow(ctx, `SELECT company_id FROM users WHERE id = $1`, r.UserID).Scan(&companyID)
	if err := authz.CheckCrossTenant(principal, companyID); err != nil {
		return nil, apperr.New(apperr.KindNotFound, "vacation request not found")
	}
	if decision.Scope.UserID != nil && *decision.Scope.UserID != r.UserID {
		return nil, apperr.New(apperr.KindNotFound, "vacation request not found")
	}
	if len(decision.Scope.TeamIDs) > 0 && !principal.IsManagerOf(teamOf(r)) {
		return nil, apperr.New(apperr.KindNotFound, "vacation request not found")
	}

	return r, nil
}

func (e *Engine) getUnscoped(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := e.pool.QueryRow(ctx, `
		SELECT id, user_id, team_id, start_date, end_date, request_type, status, reason, approver_id,
			approved_at, rejected_reason, period_id, days_count, created_at, updated_at
		FROM vacation_requests WHERE id = $1
	`, id)
	return scanRequest(row)
}

// List returns requests within the principal's scope, optionally narrowed
// by filter, newest first.
func (e *Engine) List(ctx context.Context, principal authz.Principal, filter Filter, limit, offset int) ([]Request, error) {
	decision := authz.Check(principal, authz.ResourceVacationRequest, authz.VerbList)
	if !decision.Allowed {
		return nil, apperr.New(apperr.KindNotAuthorized, decision.Reason)
	}

	where, args := storage.ScopeWhere(decision.Scope, "u.company_id", identity.TeamUsersSubquery, "r.user_id", 0)

	arg := func(v interface{}) string {
		args = append(args, v)
		return placeholderN(len(args))
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

	limitPH := arg(limit)
	offsetPH := arg(offset)

	rows, err := e.pool.Query(ctx, `
		SELECT r.id, r.user_id, r.team_id, r.start_date, r.end_date, r.request_type, r.status, r.reason,
			r.approver_id, r.approved_at, r.rejected_reason, r.period_id, r.days_count, r.created_at, r.updated_at
		FROM vacation_requests r
		JOIN users u ON u.id = r.user_id
		WHERE `+where+`
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT `+limitPH+` OFFSET `+offsetPH, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "requests: listing", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		var r Request
		if err := rows.Scan(&r.ID, &r.UserID, &r.TeamID, &r.StartDate, &r.EndDate, &r.RequestType, &r.Status,
			&r.Reason, &r.ApproverID, &r.ApprovedAt, &r.RejectedReason, &r.PeriodID, &r.DaysCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "requests: scanning listed request", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func placeholderN(n int) string {
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if len(digits) == 0 {
		return "$0"
	}
	return "$" + string(digits)
}
