package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, origins []string, method, origin string, preflight bool) *httptest.ResponseRecorder {
	t.Helper()
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(method, "/v1/jobs/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSListedOriginGetsCredentials(t *testing.T) {
	rec := corsRequest(t, []string{"http://app.test"}, http.MethodOptions, "http://app.test", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	rec := corsRequest(t, []string{"*"}, http.MethodGet, "http://other.test", false)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "http://other.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSUnknownOriginPassesThroughWithoutHeaders(t *testing.T) {
	rec := corsRequest(t, []string{"http://app.test"}, http.MethodGet, "http://evil.test", false)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPlainOptionsReachesHandler(t *testing.T) {
	rec := corsRequest(t, nil, http.MethodOptions, "", false)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
