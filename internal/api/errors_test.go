package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vactrail/backend/internal/apperr"
)

func TestWriteError_UnmodeledErrorReturns500(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil).WithContext(context.Background())

	writeError(w, r, errors.New("boom"))

	assert.Equal(t, 500, w.Code)
}

func TestWriteError_InvalidCredentialReturns401WithGenericMessage(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	writeError(w, r, apperr.Wrap(apperr.KindInvalidCredential, "user not found", nil))

	assert.Equal(t, 401, w.Code)
	assert.Contains(t, w.Body.String(), "invalid email or password")
}

func TestWriteError_NotAuthorizedReturns403(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	writeError(w, r, apperr.Wrap(apperr.KindNotAuthorized, "nope", nil))

	assert.Equal(t, 403, w.Code)
}

func TestWriteError_RateLimitedSetsRetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	e := apperr.Wrap(apperr.KindRateLimited, "slow down", nil)
	e.RetryFor = 30
	writeError(w, r, e)

	assert.Equal(t, 429, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestWriteError_NotFoundReturns404(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	writeError(w, r, apperr.Wrap(apperr.KindNotFound, "missing", nil))

	assert.Equal(t, 404, w.Code)
}

func TestWriteError_ConflictReturns409(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	writeError(w, r, apperr.Wrap(apperr.KindConflict, "already exists", nil))

	assert.Equal(t, 409, w.Code)
}
