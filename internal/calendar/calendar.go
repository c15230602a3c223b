// Package calendar is the VacationCalendar: business-day arithmetic,
// period resolution, and balance projection (spec.md §4.7). Every method
// is read-only — allocation mutation happens only through the request
// state machine in internal/requests.
package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/clock"
)

// Period mirrors the vacation_periods row.
type Period struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsDefault bool
	IsActive  bool
}

// Allocation mirrors the vacation_allocations row for one user/period pair.
type Allocation struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	PeriodID        uuid.UUID
	TotalDays       float64
	CarriedOverDays float64
	DaysUsed        float64
	Notes           string
}

// Balance is the derived projection spec.md §4.7 defines: never persisted,
// always recomputed from the current Allocation and a point-in-time read
// of pending requests.
type Balance struct {
	Period         Period
	Allocation     Allocation
	TotalAvailable float64
	Remaining      float64
	Pending        float64
}

// Calendar is the VacationCalendar component.
type Calendar struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

func NewCalendar(pool *pgxpool.Pool, clk clock.Clock) *Calendar {
	return &Calendar{pool: pool, clock: clk}
}

// BusinessDays counts the days in [start, end] inclusive whose weekday is
// Monday through Friday (spec.md §4.7, property P7, boundary B1). Holiday
// calendars are out of scope for the core; Company.Settings may carry a
// holiday list for a future extension, but this function never consumes
// it — days_count is always the naive weekday count.
func BusinessDays(start, end time.Time) int {
	start = start.Truncate(24 * time.Hour)
	end = end.Truncate(24 * time.Hour)
	if end.Before(start) {
		return 0
	}
	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			count++
		}
	}
	return count
}

// ResolvePeriod finds the VacationPeriod containing date within company,
// per spec.md §4.7: the first active period whose range contains date,
// tie-broken deterministically by is_default, then earliest start_date,
// then lexicographically smallest name. Resolution is keyed by start_date,
// not end_date (boundary B2) — the ORDER BY below encodes exactly that.
//
// If no period matches, a default April-1-to-March-31 period covering
// date is materialized on demand and marked is_default=true only if the
// company has no existing default.
func (c *Calendar) ResolvePeriod(ctx context.Context, companyID uuid.UUID, date time.Time) (*Period, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, company_id, name, start_date, end_date, is_default, is_active
		FROM vacation_periods
		WHERE company_id = $1 AND is_active AND start_date <= $2 AND end_date >= $2
		ORDER BY is_default DESC, start_date ASC, name ASC
		LIMIT 1
	`, companyID, date)

	p, err := scanPeriod(row)
	if err == nil {
		return p, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	return c.materializeDefaultPeriod(ctx, companyID, date)
}

func (c *Calendar) materializeDefaultPeriod(ctx context.Context, companyID uuid.UUID, date time.Time) (*Period, error) {
	start, end := fiscalYearBounds(date)

	hasDefault, err := c.hasDefaultPeriod(ctx, companyID)
	if err != nil {
		return nil, err
	}

	row := c.pool.QueryRow(ctx, `
		INSERT INTO vacation_periods (company_id, name, start_date, end_date, is_default, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (company_id, name) DO UPDATE SET name = vacation_periods.name
		RETURNING id, company_id, name, start_date, end_date, is_default, is_active
	`, companyID, defaultPeriodName(start), start, end, !hasDefault)
	return scanPeriod(row)
}

func (c *Calendar) hasDefaultPeriod(ctx context.Context, companyID uuid.UUID) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM vacation_periods WHERE company_id = $1 AND is_default)
	`, companyID).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "calendar: checking default period", err)
	}
	return exists, nil
}

// fiscalYearBounds returns the April 1–March 31 window containing date.
func fiscalYearBounds(date time.Time) (time.Time, time.Time) {
	year := date.Year()
	start := time.Date(year, time.April, 1, 0, 0, 0, 0, time.UTC)
	if date.Before(start) {
		start = time.Date(year-1, time.April, 1, 0, 0, 0, 0, time.UTC)
	}
	end := time.Date(start.Year()+1, time.March, 31, 0, 0, 0, 0, time.UTC)
	return start, end
}

func defaultPeriodName(start time.Time) string {
	return start.Format("2006") + "-" + start.AddDate(1, 0, 0).Format("2006")
}

func scanPeriod(row pgx.Row) (*Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.StartDate, &p.EndDate, &p.IsDefault, &p.IsActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "no matching vacation period")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "calendar: scanning period", err)
	}
	return &p, nil
}

// GetAllocation fetches the user's allocation for a period, if one exists.
func (c *Calendar) GetAllocation(ctx context.Context, userID, periodID uuid.UUID) (*Allocation, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, user_id, period_id, total_days, carried_over_days, days_used, notes
		FROM vacation_allocations WHERE user_id = $1 AND period_id = $2
	`, userID, periodID)
	return scanAllocation(row)
}

func scanAllocation(row pgx.Row) (*Allocation, error) {
	var a Allocation
	err := row.Scan(&a.ID, &a.UserID, &a.PeriodID, &a.TotalDays, &a.CarriedOverDays, &a.DaysUsed, &a.Notes)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "no allocation for this period")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "calendar: scanning allocation", err)
	}
	return &a, nil
}

// Balance computes the current balance for (user, period) per spec.md
// §4.7: total_available = total_days + carried_over_days, remaining =
// total_available - days_used, pending = sum of days_count over the
// user's pending requests in this period. Nothing here mutates state.
func (c *Calendar) Balance(ctx context.Context, userID, periodID uuid.UUID) (*Balance, error) {
	periodRow := c.pool.QueryRow(ctx, `
		SELECT id, company_id, name, start_date, end_date, is_default, is_active
		FROM vacation_periods WHERE id = $1
	`, periodID)
	period, err := scanPeriod(periodRow)
	if err != nil {
		return nil, err
	}

	allocation, err := c.GetAllocation(ctx, userID, periodID)
	if err != nil {
		return nil, err
	}

	var pending float64
	err = c.pool.QueryRow(ctx, `
		SELECT coalesce(sum(days_count), 0) FROM vacation_requests
		WHERE user_id = $1 AND period_id = $2 AND status = 'pending'
	`, userID, periodID).Scan(&pending)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "calendar: summing pending requests", err)
	}

	totalAvailable := allocation.TotalDays + allocation.CarriedOverDays
	return &Balance{
		Period:         *period,
		Allocation:     *allocation,
		TotalAvailable: totalAvailable,
		Remaining:      totalAvailable - allocation.DaysUsed,
		Pending:        pending,
	}, nil
}

// Balances lists balances for every period a user holds an allocation in,
// newest period first, backing GET vacations/balance (spec.md §6).
func (c *Calendar) Balances(ctx context.Context, userID uuid.UUID) ([]Balance, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT period_id FROM vacation_allocations WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "calendar: listing allocation periods", err)
	}
	var periodIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperr.Wrap(apperr.KindInternal, "calendar: scanning period id", err)
		}
		periodIDs = append(periodIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "calendar: iterating allocation periods", err)
	}

	balances := make([]Balance, 0, len(periodIDs))
	for _, pid := range periodIDs {
		b, err := c.Balance(ctx, userID, pid)
		if err != nil {
			return nil, err
		}
		balances = append(balances, *b)
	}
	return balances, nil
}

// CreateAllocation seeds or replaces a user's allocation for a period,
// used by admin onboarding flows (spec.md §4.5 invite-accept path sets up
// no allocation automatically — scenario 1 — an admin grants one
// separately).
func (c *Calendar) CreateAllocation(ctx context.Context, userID, periodID uuid.UUID, totalDays, carriedOverDays float64, notes string) (*Allocation, error) {
	row := c.pool.QueryRow(ctx, `
		INSERT INTO vacation_allocations (user_id, period_id, total_days, carried_over_days, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, period_id) DO UPDATE SET
			total_days = excluded.total_days,
			carried_over_days = excluded.carried_over_days,
			notes = excluded.notes,
			updated_at = now()
		RETURNING id, user_id, period_id, total_days, carried_over_days, days_used, notes
	`, userID, periodID, totalDays, carriedOverDays, notes)
	return scanAllocation(row)
}
