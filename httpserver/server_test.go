package httpserver

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, 0)

	rec := do(t, srv, http.MethodGet, "/livez", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/drain", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"draining"}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/drain", nil, nil)
	assert.JSONEq(t, `{"status":"already draining"}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, srv, http.MethodGet, "/undrain", nil, nil)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
