package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/api/helpers"
)

// writeError is the one place apperr.Kind is translated to an HTTP status
// and JSON body. No handler below writes its own status code for a domain
// error — they all funnel through here, the generalization of the
// teacher's single AuthService-error-to-HTTP-status switch.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		slog.ErrorContext(r.Context(), "api: unmodeled error reached handler", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status, public := statusFor(e)
	if e.RetryFor > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryFor))
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "api: internal error", "kind", e.Kind, "error", e.Cause)
	}
	helpers.RespondError(w, status, public)
}

func statusFor(e *apperr.Error) (int, string) {
	switch e.Kind {
	case apperr.KindInvalidInput, apperr.KindWeakPassword, apperr.KindDateInPast:
		return http.StatusBadRequest, e.Message
	case apperr.KindInvalidCredential:
		return http.StatusUnauthorized, "invalid email or password"
	case apperr.KindLoginLocked:
		return http.StatusTooManyRequests, e.Message
	case apperr.KindExpired, apperr.KindBadSignature, apperr.KindNotAuthenticated, apperr.KindReplayDetected:
		return http.StatusUnauthorized, "invalid or expired token"
	case apperr.KindWrongType:
		return http.StatusUnauthorized, e.Message
	case apperr.KindNotAuthorized, apperr.KindCrossTenant:
		return http.StatusForbidden, "not authorized"
	case apperr.KindNotFound:
		return http.StatusNotFound, "not found"
	case apperr.KindConflict:
		return http.StatusConflict, e.Message
	case apperr.KindNoActivePeriod:
		return http.StatusUnprocessableEntity, e.Message
	case apperr.KindInviteInvalid:
		return http.StatusBadRequest, "invite or token invalid or expired"
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests, e.Message
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout, "request timed out"
	case apperr.KindStoredHashCorrupt, apperr.KindAuditImmutable, apperr.KindInternal:
		return http.StatusInternalServerError, "internal server error"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
