package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vactrail/backend/internal/authz"
)

// ScopeWhere composes an authz.Scope into a parameterized WHERE fragment
// and its argument list, starting placeholders at argOffset+1 ($N). It
// panics if scope.CompanyID is the zero value — per spec.md §9 Design
// Notes, there is no "scope-less" query in this system, and a missing
// CompanyID here means a call site built its Decision wrong, not that
// unrestricted access was intended.
//
// companyCol/userCol name the columns the fragment should reference.
// teamUsersSubqueryTemplate, when the scope carries TeamIDs, is a query
// fragment returning user ids containing exactly one "%s" verb where the
// team-id array placeholder is substituted — e.g.
//
//	"SELECT user_id FROM team_memberships WHERE team_id = ANY(%s) AND left_at IS NULL"
//
// Pass "" for teamUsersSubqueryTemplate/userCol when the scope's
// corresponding field is never set for this resource.
func ScopeWhere(scope authz.Scope, companyCol string, teamUsersSubqueryTemplate string, userCol string, argOffset int) (string, []interface{}) {
	if scope.CompanyID == uuid.Nil {
		panic("storage: ScopeWhere called with a zero CompanyID — every query is tenant-scoped")
	}

	var clauses []string
	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", argOffset+len(args))
	}

	clauses = append(clauses, fmt.Sprintf("%s = %s", companyCol, next(scope.CompanyID)))

	if len(scope.TeamIDs) > 0 && teamUsersSubqueryTemplate != "" {
		placeholder := next(scope.TeamIDs)
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", userCol, fmt.Sprintf(teamUsersSubqueryTemplate, placeholder)))
	}

	if scope.UserID != nil && userCol != "" {
		clauses = append(clauses, fmt.Sprintf("%s = %s", userCol, next(*scope.UserID)))
	}

	return strings.Join(clauses, " AND "), args
}
