package middleware

import (
	"github.com/getsentry/sentry-go"
)

// SetSentryCompany tags the Sentry scope with the caller's company. It
// replaces the teacher's SetSentryTenant: there is no separate "source"
// argument since company resolution here has exactly one path, the
// verified access token.
func SetSentryCompany(companyID string) {
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("company_id", companyID)
	})
}

// SetSentryUser tags the Sentry scope with the caller's identity. The
// teacher's version took (userID, email, ip) but its one call site passed
// the user's role string into the email slot; AuthMiddleware only has the
// role on hand at this point, so the parameter is renamed to match what is
// actually available instead of carrying the mislabeled field forward.
func SetSentryUser(userID, role, ip string) {
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: userID, IPAddress: ip})
		scope.SetTag("role", role)
	})
}
