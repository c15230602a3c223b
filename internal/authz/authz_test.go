package authz_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/vactrail/backend/internal/authz"
)

func TestCheck_Admin_VacationRequest_CompanyScoped(t *testing.T) {
	company := uuid.New()
	p := authz.Principal{UserID: uuid.New(), CompanyID: company, Role: authz.RoleAdmin}

	d := authz.Check(p, authz.ResourceVacationRequest, authz.VerbList)
	assert.True(t, d.Allowed)
	assert.Equal(t, company, d.Scope.CompanyID)
	assert.Nil(t, d.Scope.TeamIDs)
	assert.Nil(t, d.Scope.UserID)
}

func TestCheck_Manager_ApproveScopedToManagedTeams(t *testing.T) {
	company := uuid.New()
	team := uuid.New()
	p := authz.Principal{UserID: uuid.New(), CompanyID: company, Role: authz.RoleManager, ManagedTeamIDs: []uuid.UUID{team}}

	d := authz.Check(p, authz.ResourceVacationRequest, authz.VerbApprove)
	assert.True(t, d.Allowed)
	assert.Equal(t, []uuid.UUID{team}, d.Scope.TeamIDs)
}

func TestCheck_Manager_CreateScopedToSelf(t *testing.T) {
	company, user := uuid.New(), uuid.New()
	p := authz.Principal{UserID: user, CompanyID: company, Role: authz.RoleManager}

	d := authz.Check(p, authz.ResourceVacationRequest, authz.VerbCreate)
	assert.True(t, d.Allowed)
	assert.Equal(t, &user, d.Scope.UserID)
}

func TestCheck_User_CannotApprove(t *testing.T) {
	p := authz.Principal{UserID: uuid.New(), CompanyID: uuid.New(), Role: authz.RoleUser}

	d := authz.Check(p, authz.ResourceVacationRequest, authz.VerbApprove)
	assert.False(t, d.Allowed)
	assert.NotEmpty(t, d.Reason)
}

func TestCheck_AuditEvent_AdminOnlyAndCompanyScoped(t *testing.T) {
	company := uuid.New()
	admin := authz.Principal{UserID: uuid.New(), CompanyID: company, Role: authz.RoleAdmin}
	user := authz.Principal{UserID: uuid.New(), CompanyID: company, Role: authz.RoleUser}

	d := authz.Check(admin, authz.ResourceAuditEvent, authz.VerbList)
	assert.True(t, d.Allowed)
	assert.Equal(t, company, d.Scope.CompanyID)

	d = authz.Check(user, authz.ResourceAuditEvent, authz.VerbList)
	assert.False(t, d.Allowed)
}

func TestCheckCrossTenant(t *testing.T) {
	p := authz.Principal{CompanyID: uuid.New()}

	assert.NoError(t, authz.CheckCrossTenant(p, p.CompanyID))
	assert.Error(t, authz.CheckCrossTenant(p, uuid.New()))
}

func TestRole_AtLeast(t *testing.T) {
	assert.True(t, authz.RoleAdmin.AtLeast(authz.RoleManager))
	assert.True(t, authz.RoleManager.AtLeast(authz.RoleUser))
	assert.False(t, authz.RoleUser.AtLeast(authz.RoleManager))
}
