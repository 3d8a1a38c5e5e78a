package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specPath = "../../api/openapi/openapi.yaml"

func jsonHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func record(h http.Handler, req *http.Request) *http.Response {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func TestNewOpenAPIValidator_LoadsOnce(t *testing.T) {
	first := NewOpenAPIValidator(t, specPath)
	second := NewOpenAPIValidator(t, "./"+specPath)

	assert.Same(t, first, second)
}

func TestCheckRequest(t *testing.T) {
	v := NewOpenAPIValidator(t, specPath)

	valid := httptest.NewRequest(http.MethodPost, "/api/v1/preferences",
		strings.NewReader(`{"categories":["ai"],"frequency":"weekly","email":"x@example.com"}`))
	valid.Header.Set("Content-Type", "application/json")
	require.NoError(t, v.CheckRequest(valid))

	body, err := io.ReadAll(valid.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"frequency":"weekly"`)

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/preferences",
		strings.NewReader(`{"categories":["ai"],"frequency":"monthly","email":"x@example.com"}`))
	bad.Header.Set("Content-Type", "application/json")
	assert.Error(t, v.CheckRequest(bad))

	assert.ErrorContains(t, v.CheckRequest(httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)), "no route")
	assert.NoError(t, v.CheckRequest(httptest.NewRequest(http.MethodGet, "/healthz", nil)))
}

func TestCheckResponse(t *testing.T) {
	v := NewOpenAPIValidator(t, specPath)

	tests := []struct {
		name    string
		method  string
		path    string
		status  int
		body    string
		wantErr bool
	}{
		{"send-now accepted", http.MethodPost, "/api/v1/preferences/send-now", http.StatusAccepted, `{"data":{"scheduled":true}}`, false},
		{"error envelope", http.MethodGet, "/api/v1/preferences", http.StatusNotFound, `{"error":{"message":"not found"}}`, false},
		{"preference missing fields", http.MethodGet, "/api/v1/preferences", http.StatusOK, `{"data":{"email":"x@example.com"}}`, true},
		{"undocumented status", http.MethodPost, "/api/v1/preferences/send-now", http.StatusTeapot, `{"error":{"message":"teapot"}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			resp := record(jsonHandler(tt.status, tt.body), req)

			err := v.CheckResponse(req, resp)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			body, readErr := io.ReadAll(resp.Body)
			require.NoError(t, readErr)
			assert.Equal(t, tt.body, string(body))
		})
	}
}

func TestServe(t *testing.T) {
	v := NewOpenAPIValidator(t, specPath)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/preferences/send-now", nil)

	resp := v.Serve(t, jsonHandler(http.StatusAccepted, `{"data":{"scheduled":true}}`), req)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}
