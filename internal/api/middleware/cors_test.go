package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func passthrough(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestCors_AllowedOriginGetsHeaders(t *testing.T) {
	h := Cors([]string{"https://app.vactrail.example"})(http.HandlerFunc(passthrough))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Origin", "https://app.vactrail.example")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, r)

	assert.Equal(t, "https://app.vactrail.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCors_DisallowedOriginGetsNoHeaders(t *testing.T) {
	h := Cors([]string{"https://app.vactrail.example"})(http.HandlerFunc(passthrough))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, r)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, w.Code) // request still passes through
}

func TestCors_PreflightAllowedOriginReturns200WithHeaders(t *testing.T) {
	h := Cors([]string{"https://app.vactrail.example"})(http.HandlerFunc(passthrough))

	r := httptest.NewRequest(http.MethodOptions, "/", nil)
	r.Header.Set("Origin", "https://app.vactrail.example")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.vactrail.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCors_PreflightDisallowedOriginGetsNoACAOHeader(t *testing.T) {
	h := Cors([]string{"https://app.vactrail.example"})(http.HandlerFunc(passthrough))

	r := httptest.NewRequest(http.MethodOptions, "/", nil)
	r.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCors_NoOriginHeaderPassesThroughUntouched(t *testing.T) {
	h := Cors([]string{"https://app.vactrail.example"})(http.HandlerFunc(passthrough))

	r := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, r)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, w.Code)
}
