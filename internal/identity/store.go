package identity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/clock"
	"github.com/vactrail/backend/internal/password"
	"github.com/vactrail/backend/internal/storage"
)

// Store is the IdentityStore and SessionStore combined: users, companies,
// functions, teams, memberships, manager assignments, and the
// refresh/invite/reset tokens tied to a user's session lifecycle.
type Store struct {
	pool   *pgxpool.Pool
	hasher *password.Hasher
	clock  clock.Clock
}

func NewStore(pool *pgxpool.Pool, hasher *password.Hasher, clk clock.Clock) *Store {
	return &Store{pool: pool, hasher: hasher, clock: clk}
}

// GetUser fetches a single active user within scope, always ANDing
// deleted_at IS NULL per the soft-delete query-helper convention (spec.md
// §9 Design Notes) — there is no raw "SELECT * FROM users WHERE id=" at
// any call site.
func (s *Store) GetUser(ctx context.Context, scope authz.Scope, id uuid.UUID) (*User, error) {
	where, args := storage.ScopeWhere(scope, "company_id", TeamUsersSubquery, "id", 1)
	args = append([]interface{}{id}, args...)

	row := s.pool.QueryRow(ctx, `
		SELECT id, company_id, primary_function_id, email, first_name, last_name, password_hash,
			role, is_active, email_verified, last_login_at, failed_login_count, locked_until,
			created_at, updated_at, deleted_at
		FROM users
		WHERE id = $1 AND `+where+` AND deleted_at IS NULL
	`, args...)

	return scanUser(row)
}

// ActiveUsers lists non-deleted users within scope. The name and the
// unconditional deleted_at filter are the soft-delete query-helper pattern
// every call site uses instead of inlining the predicate.
func (s *Store) ActiveUsers(ctx context.Context, scope authz.Scope, limit, offset int) ([]User, error) {
	where, args := storage.ScopeWhere(scope, "company_id", TeamUsersSubquery, "id", 0)

	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, primary_function_id, email, first_name, last_name, password_hash,
			role, is_active, email_verified, last_login_at, failed_login_count, locked_until,
			created_at, updated_at, deleted_at
		FROM users
		WHERE `+where+` AND deleted_at IS NULL
		ORDER BY last_name, first_name
		LIMIT $`+placeholderN(len(args)+1)+` OFFSET $`+placeholderN(len(args)+2),
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "identity: listing users", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func placeholderN(n int) string {
	// small helper kept local to this file's hand-built queries; mirrors
	// storage.ScopeWhere's own placeholder numbering convention.
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if len(digits) == 0 {
		return "0"
	}
	return string(digits)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row pgx.Row) (*User, error) {
	return scanUserRow(row)
}

func scanUserRow(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.CompanyID, &u.PrimaryFunctionID, &u.Email, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.Role, &u.IsActive, &u.EmailVerified, &u.LastLoginAt, &u.FailedLoginCount,
		&u.LockedUntil, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "identity: scanning user", err)
	}
	return &u, nil
}

// GetUserByEmail fetches an active user by email without a company scope —
// used only at the login boundary, before a Principal/Scope exists yet.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, company_id, primary_function_id, email, first_name, last_name, password_hash,
			role, is_active, email_verified, last_login_at, failed_login_count, locked_until,
			created_at, updated_at, deleted_at
		FROM users
		WHERE lower(email) = lower($1) AND is_active AND deleted_at IS NULL
	`, email)
	return scanUser(row)
}

// ManagedTeamIDs returns the team ids manager currently manages, used to
// build a Principal's Scope at request time.
func (s *Store) ManagedTeamIDs(ctx context.Context, managerUserID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT team_id FROM manager_assignments WHERE manager_user_id = $1`, managerUserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "identity: listing managed teams", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "identity: scanning managed team id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TeamUsersSubquery is the template ScopeWhere's teamUsersSubqueryTemplate
// parameter expects for VacationRequest-shaped tables: active members of
// the given teams. ScopeWhere fills in the "%s" with the bound team-id
// array placeholder.
const TeamUsersSubquery = `SELECT user_id FROM team_memberships WHERE team_id = ANY(%s) AND left_at IS NULL`

// UpdateUser applies a partial edit to a user within scope. Zero-value
// fields in patch are left untouched except where a caller explicitly
// wants to clear one (callers build patch from already-resolved values,
// never raw request bodies).
type UserPatch struct {
	FirstName         *string
	LastName          *string
	PrimaryFunctionID *uuid.UUID
	Role              *authz.Role
	IsActive          *bool
}

func (s *Store) UpdateUser(ctx context.Context, scope authz.Scope, id uuid.UUID, patch UserPatch) (*User, error) {
	where, args := storage.ScopeWhere(scope, "company_id", "", "id", 1)
	args = append([]interface{}{id}, args...)

	var sets []string
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, col+" = $"+placeholderN(len(args)))
	}
	if patch.FirstName != nil {
		set("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		set("last_name", *patch.LastName)
	}
	if patch.PrimaryFunctionID != nil {
		set("primary_function_id", *patch.PrimaryFunctionID)
	}
	if patch.Role != nil {
		set("role", *patch.Role)
	}
	if patch.IsActive != nil {
		set("is_active", *patch.IsActive)
	}
	if len(sets) == 0 {
		return s.GetUser(ctx, scope, id)
	}
	set("updated_at", s.clock.Now())

	row := s.pool.QueryRow(ctx, `
		UPDATE users SET `+joinComma(sets)+`
		WHERE id = $1 AND `+where+` AND deleted_at IS NULL
		RETURNING id, company_id, primary_function_id, email, first_name, last_name, password_hash,
			role, is_active, email_verified, last_login_at, failed_login_count, locked_until,
			created_at, updated_at, deleted_at
	`, args...)

	return scanUser(row)
}

// SoftDeleteUser sets deleted_at/is_active=false, preserving referential
// integrity for historical vacation requests (spec.md §3 lifecycle). Scope
// must resolve to Admin (checked by the caller via authz.Check).
func (s *Store) SoftDeleteUser(ctx context.Context, scope authz.Scope, id uuid.UUID) error {
	where, args := storage.ScopeWhere(scope, "company_id", "", "id", 2)
	args = append([]interface{}{s.clock.Now(), id}, args...)

	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET deleted_at = $1, is_active = false, updated_at = $1
		WHERE id = $2 AND `+where+` AND deleted_at IS NULL
	`, args...)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "identity: soft-deleting user", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	return nil
}

// MarkFailedLogin increments the persisted failure counter and, once it
// reaches RateGate's lockout threshold, sets locked_until so the lockout
// survives a process restart even though RateGate's Redis latch is the
// source of truth for an in-flight request (spec.md §4.3 [SUPPLEMENT]).
func (s *Store) MarkFailedLogin(ctx context.Context, email string, threshold int, lockDuration time.Duration) error {
	now := s.clock.Now()
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET
			failed_login_count = failed_login_count + 1,
			locked_until = CASE WHEN failed_login_count + 1 >= $2 THEN $3 ELSE locked_until END,
			updated_at = $4
		WHERE lower(email) = lower($1) AND deleted_at IS NULL
	`, email, threshold, now.Add(lockDuration), now)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "identity: recording failed login", err)
	}
	return nil
}

// ClearFailedLogin resets the persisted counters, called on a successful
// login or an out-of-band password reset.
func (s *Store) ClearFailedLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET failed_login_count = 0, locked_until = NULL, updated_at = $2
		WHERE id = $1
	`, userID, s.clock.Now())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "identity: clearing failed login", err)
	}
	return nil
}

// GetCompany fetches a company by id, scoped to itself (a Principal only
// ever reads its own company).
func (s *Store) GetCompany(ctx context.Context, companyID uuid.UUID) (*Company, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, coalesce(domain, ''), settings, created_at, updated_at, deleted_at
		FROM companies WHERE id = $1 AND deleted_at IS NULL
	`, companyID)

	var c Company
	var settings []byte
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Domain, &settings, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "company not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "identity: scanning company", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &c.Settings); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "identity: unmarshaling company settings", err)
		}
	}
	return &c, nil
}

// ListFunctions lists a company's functions.
func (s *Store) ListFunctions(ctx context.Context, companyID uuid.UUID) ([]Function, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, name, code FROM functions WHERE company_id = $1 AND deleted_at IS NULL ORDER BY name
	`, companyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "identity: listing functions", err)
	}
	defer rows.Close()

	var out []Function
	for rows.Next() {
		var f Function
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.Name, &f.Code); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "identity: scanning function", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CreateFunction inserts a new function for a company.
func (s *Store) CreateFunction(ctx context.Context, companyID uuid.UUID, name, code string) (*Function, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO functions (company_id, name, code) VALUES ($1, $2, $3)
		RETURNING id, company_id, name, code
	`, companyID, name, code)

	var f Function
	if err := row.Scan(&f.ID, &f.CompanyID, &f.Name, &f.Code); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "identity: creating function", err)
	}
	return &f, nil
}

// ListTeams lists a function's teams.
func (s *Store) ListTeams(ctx context.Context, functionID uuid.UUID) ([]Team, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, function_id, company_id, name, code FROM teams WHERE function_id = $1 AND deleted_at IS NULL ORDER BY name
	`, functionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "identity: listing teams", err)
	}
	defer rows.Close()

	var out []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.FunctionID, &t.CompanyID, &t.Name, &t.Code); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "identity: scanning team", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTeam inserts a new team under a function.
func (s *Store) CreateTeam(ctx context.Context, companyID, functionID uuid.UUID, name, code string) (*Team, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO teams (function_id, company_id, name, code) VALUES ($1, $2, $3, $4)
		RETURNING id, function_id, company_id, name, code
	`, functionID, companyID, name, code)

	var t Team
	if err := row.Scan(&t.ID, &t.FunctionID, &t.CompanyID, &t.Name, &t.Code); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "identity: creating team", err)
	}
	return &t, nil
}

// AddTeamMembership enrolls a user on a team, optionally as their primary
// team.
func (s *Store) AddTeamMembership(ctx context.Context, userID, teamID uuid.UUID, isPrimary bool) (*TeamMembership, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO team_memberships (user_id, team_id, is_primary, joined_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, team_id, is_primary, joined_at, left_at
	`, userID, teamID, isPrimary, s.clock.Now())

	var m TeamMembership
	if err := row.Scan(&m.ID, &m.UserID, &m.TeamID, &m.IsPrimary, &m.JoinedAt, &m.LeftAt); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "identity: adding team membership", err)
	}
	return &m, nil
}

// RemoveTeamMembership sets left_at on an active membership rather than
// deleting the row, preserving history for requests made while the user
// was on that team.
func (s *Store) RemoveTeamMembership(ctx context.Context, userID, teamID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE team_memberships SET left_at = $3
		WHERE user_id = $1 AND team_id = $2 AND left_at IS NULL
	`, userID, teamID, s.clock.Now())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "identity: removing team membership", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "active membership not found")
	}
	return nil
}

// AssignManager records managerUserID as the manager of teamID.
func (s *Store) AssignManager(ctx context.Context, managerUserID, teamID, assignedBy uuid.UUID) (*ManagerAssignment, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO manager_assignments (manager_user_id, team_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, manager_user_id, team_id, assigned_by, assigned_at
	`, managerUserID, teamID, assignedBy, s.clock.Now())

	var a ManagerAssignment
	if err := row.Scan(&a.ID, &a.ManagerUserID, &a.TeamID, &a.AssignedBy, &a.AssignedAt); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "identity: assigning manager", err)
	}
	return &a, nil
}

// RemoveManagerAssignment revokes a manager's assignment to a team.
func (s *Store) RemoveManagerAssignment(ctx context.Context, managerUserID, teamID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM manager_assignments WHERE manager_user_id = $1 AND team_id = $2`, managerUserID, teamID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "identity: removing manager assignment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "manager assignment not found")
	}
	return nil
}

func joinComma(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
