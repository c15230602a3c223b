package requests

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/audit"
	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/calendar"
	"github.com/vactrail/backend/internal/clock"
	"github.com/vactrail/backend/internal/storage"
)

// Engine is the RequestEngine component.
type Engine struct {
	pool  *pgxpool.Pool
	cal   *calendar.Calendar
	audit *audit.Sink
	clock clock.Clock
	cfg   Config
}

func NewEngine(pool *pgxpool.Pool, cal *calendar.Calendar, sink *audit.Sink, clk clock.Clock, cfg Config) *Engine {
	return &Engine{pool: pool, cal: cal, audit: sink, clock: clk, cfg: cfg}
}

// Create validates and inserts a request, resolving its period and
// days_count, and checking overlap against the target user's non-terminal
// requests (spec.md §4.8 create). Per the open-question resolution,
// draft-first is optional: a direct payload lands in pending.
//
// The target user is input.UserID; principal must be authorized to write
// on that user's behalf — Admin may create for anyone in the company,
// Manager/User may only create their own (authz.Check's Scope already
// narrows this, enforced here by comparing input.UserID against the
// returned Scope.UserID when one is present).
func (e *Engine) Create(ctx context.Context, principal authz.Principal, input CreateInput) (*Request, error) {
	decision := authz.Check(principal, authz.ResourceVacationRequest, authz.VerbCreate)
	if !decision.Allowed {
		return nil, apperr.New(apperr.KindNotAuthorized, decision.Reason)
	}
	if decision.Scope.UserID != nil && *decision.Scope.UserID != input.UserID {
		return nil, apperr.New(apperr.KindNotAuthorized, "cannot create a request on behalf of another user")
	}

	return e.create(ctx, input, StatusPending)
}

// Modify edits a request that is still in draft, revalidating exactly as
// create does (spec.md §4.8 modify).
func (e *Engine) Modify(ctx context.Context, principal authz.Principal, id uuid.UUID, input CreateInput) (*Request, error) {
	decision := authz.Check(principal, authz.ResourceVacationRequest, authz.VerbUpdate)
	if !decision.Allowed {
		return nil, apperr.New(apperr.KindNotAuthorized, decision.Reason)
	}

	var result *Request
	err := storage.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		existing, err := loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authz.CheckCrossTenant(principal, companyOfUser(ctx, tx, existing.UserID)); err != nil {
			return err
		}
		if decision.Scope.UserID != nil && *decision.Scope.UserID != existing.UserID {
			return apperr.New(apperr.KindNotAuthorized, "cannot modify another user's request")
		}
		if existing.Status != StatusDraft {
			return apperr.Conflict(apperr.ConflictNotPending, "only a draft request can be modified")
		}

		if _, err := tx.Exec(ctx, `DELETE FROM vacation_requests WHERE id = $1`, id); err != nil {
			return apperr.Wrap(apperr.KindInternal, "requests: clearing draft before modify", err)
		}

		created, err := e.insert(ctx, tx, input, StatusDraft)
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) create(ctx context.Context, input CreateInput, status Status) (*Request, error) {
	var result *Request
	err := storage.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		created, err := e.insert(ctx, tx, input, status)
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// insert validates and writes one request row inside tx: date order,
// start not in the past, overlap against non-terminal requests, period
// resolution, days_count computation.
func (e *Engine) insert(ctx context.Context, tx pgx.Tx, input CreateInput, status Status) (*Request, error) {
	now := e.clock.Now()
	start := truncateDay(input.StartDate)
	end := truncateDay(input.EndDate)
	today := truncateDay(now)

	if end.Before(start) {
		return nil, apperr.New(apperr.KindInvalidInput, "end_date must not be before start_date")
	}
	if status != StatusDraft && start.Before(today) {
		return nil, apperr.New(apperr.KindDateInPast, "start_date must be today or later")
	}

	if status != StatusDraft {
		overlaps, err := hasOverlap(ctx, tx, input.UserID, uuid.Nil, start, end)
		if err != nil {
			return nil, err
		}
		if overlaps {
			return nil, apperr.Conflict(apperr.ConflictOverlappingRequest, "request overlaps an existing pending or approved request")
		}
	}

	var periodID *uuid.UUID
	var daysCount *float64
	if status != StatusDraft {
		period, err := e.cal.ResolvePeriod(ctx, companyOfUser(ctx, tx, input.UserID), start)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return nil, apperr.New(apperr.KindNoActivePeriod, "no active vacation period covers this date")
			}
			return nil, err
		}
		id := period.ID
		periodID = &id
		count := float64(calendar.BusinessDays(start, end))
		daysCount = &count
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO vacation_requests (user_id, team_id, start_date, end_date, request_type, status, reason, period_id, days_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id, user_id, team_id, start_date, end_date, request_type, status, reason, approver_id,
			approved_at, rejected_reason, period_id, days_count, created_at, updated_at
	`, input.UserID, input.TeamID, start, end, input.RequestType, status, input.Reason, periodID, daysCount, now)

	return scanRequest(row)
}

// Approve requires status=pending, an authorized approver (Manager of the
// owner's team, or Admin, never the owner themself), and transitions the
// row to approved while incrementing the allocation's days_used — all
// under the row's write lock so a concurrent second approver observes
// status != pending (scenario 3).
func (e *Engine) Approve(ctx context.Context, principal authz.Principal, id uuid.UUID) (*Request, error) {
	return e.resolve(ctx, principal, id, StatusApproved, "")
}

// Reject requires the same authorization as Approve but makes no
// allocation change.
func (e *Engine) Reject(ctx context.Context, principal authz.Principal, id uuid.UUID, reason string) (*Request, error) {
	return e.resolve(ctx, principal, id, StatusRejected, reason)
}

func (e *Engine) resolve(ctx context.Context, principal authz.Principal, id uuid.UUID, next Status, reason string) (*Request, error) {
	verb := authz.VerbApprove
	if next == StatusRejected {
		verb = authz.VerbReject
	}
	decision := authz.Check(principal, authz.ResourceVacationRequest, verb)
	if !decision.Allowed {
		return nil, apperr.New(apperr.KindNotAuthorized, decision.Reason)
	}

	var result *Request
	err := storage.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		existing, err := loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing.UserID == principal.UserID {
			return apperr.New(apperr.KindNotAuthorized, "an approver cannot act on their own request")
		}
		if principal.Role == authz.RoleManager && !principal.IsManagerOf(teamOf(existing)) {
			return apperr.New(apperr.KindNotAuthorized, "not a manager of this request's team")
		}
		if existing.Status != StatusPending {
			return apperr.Conflict(apperr.ConflictNotPending, "request is no longer pending")
		}

		now := e.clock.Now()
		var updated *Request
		if next == StatusApproved {
			if existing.PeriodID == nil || existing.DaysCount == nil {
				return apperr.New(apperr.KindNoActivePeriod, "request has no resolved period")
			}
			if !e.cfg.AllowAllocationOverdraw {
				remaining, err := remainingAfterDebit(ctx, tx, existing.UserID, *existing.PeriodID, *existing.DaysCount)
				if err != nil {
					return err
				}
				if remaining < 0 {
					return apperr.Conflict(apperr.ConflictAllocationExceeded, "approving this request would exceed the allocation")
				}
			}
			if _, err := tx.Exec(ctx, `
				UPDATE vacation_allocations SET days_used = days_used + $3, updated_at = $4
				WHERE user_id = $1 AND period_id = $2
			`, existing.UserID, *existing.PeriodID, *existing.DaysCount, now); err != nil {
				return apperr.Wrap(apperr.KindInternal, "requests: debiting allocation", err)
			}

			row := tx.QueryRow(ctx, `
				UPDATE vacation_requests SET status = $2, approver_id = $3, approved_at = $4, updated_at = $4
				WHERE id = $1
				RETURNING id, user_id, team_id, start_date, end_date, request_type, status, reason, approver_id,
					approved_at, rejected_reason, period_id, days_count, created_at, updated_at
			`, id, next, principal.UserID, now)
			updated, err = scanRequest(row)
			if err != nil {
				return err
			}
		} else {
			row := tx.QueryRow(ctx, `
				UPDATE vacation_requests SET status = $2, rejected_reason = $3, approver_id = $4, updated_at = $5
				WHERE id = $1
				RETURNING id, user_id, team_id, start_date, end_date, request_type, status, reason, approver_id,
					approved_at, rejected_reason, period_id, days_count, created_at, updated_at
			`, id, next, reason, principal.UserID, now)
			updated, err = scanRequest(row)
			if err != nil {
				return err
			}
		}

		action := "vacation_request.approved"
		if next == StatusRejected {
			action = "vacation_request.rejected"
		}
		if err := e.audit.Record(ctx, tx, audit.Event{
			CompanyID:  principal.CompanyID,
			ActorID:    principal.UserID,
			Action:     action,
			EntityType: "vacation_request",
			EntityID:   id,
			AfterSnapshot: map[string]interface{}{
				"status": string(next),
			},
		}); err != nil {
			return err
		}

		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel is permitted for the owner on any non-terminal state, or for an
// Admin/Manager-of-team. Cancelling a previously-approved request credits
// the allocation back (R4).
func (e *Engine) Cancel(ctx context.Context, principal authz.Principal, id uuid.UUID) (*Request, error) {
	return e.cancelOrWithdraw(ctx, principal, id, StatusCancelled)
}

// Withdraw is an alias of cancel restricted to an approved request before
// its start date, audited under a distinct action name.
func (e *Engine) Withdraw(ctx context.Context, principal authz.Principal, id uuid.UUID) (*Request, error) {
	return e.cancelOrWithdraw(ctx, principal, id, StatusWithdrawn)
}

func (e *Engine) cancelOrWithdraw(ctx context.Context, principal authz.Principal, id uuid.UUID, next Status) (*Request, error) {
	decision := authz.Check(principal, authz.ResourceVacationRequest, authz.VerbCancel)
	if !decision.Allowed {
		return nil, apperr.New(apperr.KindNotAuthorized, decision.Reason)
	}

	var result *Request
	err := storage.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		existing, err := loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		isOwner := existing.UserID == principal.UserID
		isAdmin := principal.Role == authz.RoleAdmin
		isTeamManager := principal.Role == authz.RoleManager && principal.IsManagerOf(teamOf(existing))
		if !isOwner && !isAdmin && !isTeamManager {
			return apperr.New(apperr.KindNotAuthorized, "not authorized to cancel this request")
		}

		if existing.Status == StatusCancelled || existing.Status == StatusRejected || existing.Status == StatusWithdrawn {
			return apperr.Conflict(apperr.ConflictNotPending, "request is already in a terminal state")
		}

		now := e.clock.Now()
		if next == StatusWithdrawn {
			if existing.Status != StatusApproved {
				return apperr.Conflict(apperr.ConflictNotPending, "only an approved request can be withdrawn")
			}
			if !truncateDay(existing.StartDate).After(truncateDay(now)) {
				return apperr.New(apperr.KindDateInPast, "an approved request can only be withdrawn before it starts")
			}
		}

		wasApproved := existing.Status == StatusApproved
		if wasApproved && existing.PeriodID != nil && existing.DaysCount != nil {
			if _, err := tx.Exec(ctx, `
				UPDATE vacation_allocations SET days_used = days_used - $3, updated_at = $4
				WHERE user_id = $1 AND period_id = $2
			`, existing.UserID, *existing.PeriodID, *existing.DaysCount, now); err != nil {
				return apperr.Wrap(apperr.KindInternal, "requests: crediting allocation", err)
			}
		}

		row := tx.QueryRow(ctx, `
			UPDATE vacation_requests SET status = $2, updated_at = $3 WHERE id = $1
			RETURNING id, user_id, team_id, start_date, end_date, request_type, status, reason, approver_id,
				approved_at, rejected_reason, period_id, days_count, created_at, updated_at
		`, id, next, now)
		updated, err := scanRequest(row)
		if err != nil {
			return err
		}

		action := "vacation_request.cancelled"
		if next == StatusWithdrawn {
			action = "vacation_request.withdrawn"
		}
		if err := e.audit.Record(ctx, tx, audit.Event{
			CompanyID:  principal.CompanyID,
			ActorID:    principal.UserID,
			Action:     action,
			EntityType: "vacation_request",
			EntityID:   id,
		}); err != nil {
			return err
		}

		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Submit transitions a draft request to pending, running the same
// validation create does (overlap, date-in-past, period resolution).
func (e *Engine) Submit(ctx context.Context, principal authz.Principal, id uuid.UUID) (*Request, error) {
	decision := authz.Check(principal, authz.ResourceVacationRequest, authz.VerbUpdate)
	if !decision.Allowed {
		return nil, apperr.New(apperr.KindNotAuthorized, decision.Reason)
	}

	var result *Request
	err := storage.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		existing, err := loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if decision.Scope.UserID != nil && *decision.Scope.UserID != existing.UserID {
			return apperr.New(apperr.KindNotAuthorized, "cannot submit another user's request")
		}
		if existing.Status != StatusDraft {
			return apperr.Conflict(apperr.ConflictNotPending, "only a draft request can be submitted")
		}

		input := CreateInput{
			UserID:      existing.UserID,
			TeamID:      existing.TeamID,
			StartDate:   existing.StartDate,
			EndDate:     existing.EndDate,
			RequestType: existing.RequestType,
			Reason:      existing.Reason,
		}
		if _, err := tx.Exec(ctx, `DELETE FROM vacation_requests WHERE id = $1`, id); err != nil {
			return apperr.Wrap(apperr.KindInternal, "requests: clearing draft before submit", err)
		}
		created, err := e.insert(ctx, tx, input, StatusPending)
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func teamOf(r *Request) uuid.UUID {
	if r.TeamID == nil {
		return uuid.Nil
	}
	return *r.TeamID
}

func loadForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Request, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, user_id, team_id, start_date, end_date, request_type, status, reason, approver_id,
			approved_at, rejected_reason, period_id, days_count, created_at, updated_at
		FROM vacation_requests WHERE id = $1 FOR UPDATE
	`, id)
	return scanRequest(row)
}

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.UserID, &r.TeamID, &r.StartDate, &r.EndDate, &r.RequestType, &r.Status, &r.Reason,
		&r.ApproverID, &r.ApprovedAt, &r.RejectedReason, &r.PeriodID, &r.DaysCount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "vacation request not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "requests: scanning request", err)
	}
	return &r, nil
}

// hasOverlap checks whether [start,end] overlaps any of userID's
// non-terminal (pending or approved) requests, excluding excludeID
// (used when an update replaces a row in place). Implements I4/P2.
func hasOverlap(ctx context.Context, tx pgx.Tx, userID, excludeID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM vacation_requests
			WHERE user_id = $1 AND id <> $2
				AND status IN ('pending', 'approved')
				AND start_date <= $4 AND end_date >= $3
		)
	`, userID, excludeID, start, end).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "requests: checking overlap", err)
	}
	return exists, nil
}

func remainingAfterDebit(ctx context.Context, tx pgx.Tx, userID, periodID uuid.UUID, debit float64) (float64, error) {
	var total, carried, used float64
	err := tx.QueryRow(ctx, `
		SELECT total_days, carried_over_days, days_used FROM vacation_allocations
		WHERE user_id = $1 AND period_id = $2 FOR UPDATE
	`, userID, periodID).Scan(&total, &carried, &used)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, apperr.New(apperr.KindNoActivePeriod, "no allocation exists for this user/period")
		}
		return 0, apperr.Wrap(apperr.KindInternal, "requests: loading allocation for debit check", err)
	}
	return total + carried - used - debit, nil
}

func companyOfUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) uuid.UUID {
	var companyID uuid.UUID
	_ = tx.QueryRow(ctx, `SELECT company_id FROM users WHERE id = $1`, userID).Scan(&companyID)
	return companyID
}
