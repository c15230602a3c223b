package storage_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/storage"
)

func TestScopeWhere_CompanyOnly(t *testing.T) {
	company := uuid.New()
	where, args := storage.ScopeWhere(authz.CompanyScope(company), "company_id", "", "", 0)

	assert.Equal(t, "company_id = $1", where)
	assert.Equal(t, []interface{}{company}, args)
}

func TestScopeWhere_SelfScope(t *testing.T) {
	company, user := uuid.New(), uuid.New()
	where, args := storage.ScopeWhere(authz.SelfScope(company, user), "company_id", "", "user_id", 0)

	assert.Equal(t, "company_id = $1 AND user_id = $2", where)
	assert.Equal(t, []interface{}{company, user}, args)
}

func TestScopeWhere_TeamScope_UsesSubquery(t *testing.T) {
	company := uuid.New()
	teams := []uuid.UUID{uuid.New()}
	template := "SELECT user_id FROM team_memberships WHERE team_id = ANY(%s) AND left_at IS NULL"

	where, args := storage.ScopeWhere(authz.TeamScope(company, teams), "company_id", template, "user_id", 0)

	assert.Contains(t, where, "user_id IN (")
	assert.Contains(t, where, "ANY($2)")
	assert.Equal(t, []interface{}{company, teams}, args)
}

func TestScopeWhere_PanicsOnZeroCompany(t *testing.T) {
	assert.Panics(t, func() {
		storage.ScopeWhere(authz.Scope{}, "company_id", "", "", 0)
	})
}

func TestScopeWhere_ArgOffset_ContinuesPlaceholders(t *testing.T) {
	company, user := uuid.New(), uuid.New()
	where, args := storage.ScopeWhere(authz.SelfScope(company, user), "company_id", "", "user_id", 2)

	assert.Equal(t, "company_id = $3 AND user_id = $4", where)
	assert.Len(t, args, 2)
}
