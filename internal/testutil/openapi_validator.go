// Package testutil provides containers and OpenAPI validation for tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// Paths answered with plain text or the raw document itself.
var unvalidatedPaths = map[string]bool{
	"/healthz":          true,
	"/readyz":           true,
	"/api/openapi.yaml": true,
}

// OpenAPIValidator checks requests and responses against the API document.
type OpenAPIValidator struct {
	doc    *openapi3.T
	router routers.Router
}

var (
	validatorsMu sync.Mutex
	validators   = map[string]*OpenAPIValidator{}
)

// NewOpenAPIValidator returns the validator for specPath, loading the
// document once per test binary.
func NewOpenAPIValidator(t *testing.T, specPath string) *OpenAPIValidator {
	t.Helper()

	key, err := filepath.Abs(specPath)
	if err != nil {
		t.Fatalf("resolve %s: %v", specPath, err)
	}

	validatorsMu.Lock()
	defer validatorsMu.Unlock()

	if v, ok := validators[key]; ok {
		return v
	}
	v, err := loadOpenAPIValidator(key)
	if err != nil {
		t.Fatalf("load OpenAPI validator: %v", err)
	}
	validators[key] = v
	return v
}

func loadOpenAPIValidator(specPath string) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI spec from %s: %w", specPath, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate OpenAPI spec: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create OpenAPI router: %w", err)
	}
	return &OpenAPIValidator{doc: doc, router: router}, nil
}

func (v *OpenAPIValidator) findRoute(req *http.Request) (*routers.Route, map[string]string, error) {
	// The router matches on the path alone, without scheme and host.
	routeReq, err := http.NewRequest(req.Method, req.URL.Path, nil)
	if err != nil {
		return nil, nil, err
	}
	route, params, err := v.router.FindRoute(routeReq)
	if err != nil {
		return nil, nil, fmt.Errorf("no route for %s %s: %w", req.Method, req.URL.Path, err)
	}
	return route, params, nil
}

// CheckRequest validates req. The body stays readable.
func (v *OpenAPIValidator) CheckRequest(req *http.Request) error {
	if unvalidatedPaths[req.URL.Path] {
		return nil
	}

	route, params, err := v.findRoute(req)
	if err != nil {
		return err
	}

	return openapi3filter.ValidateRequest(context.Background(), &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: params,
		Route:      route,
		Options: &openapi3filter.Options{
			MultiError: true,
			// Bearer tokens are checked by the auth middleware.
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	})
}

// CheckResponse validates resp as the answer to req. The body is restored.
func (v *OpenAPIValidator) CheckResponse(req *http.Request, resp *http.Response) error {
	if unvalidatedPaths[req.URL.Path] {
		return nil
	}

	route, params, err := v.findRoute(req)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	err = openapi3filter.ValidateResponse(context.Background(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: params,
			Route:      route,
		},
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	})
	if err != nil {
		return fmt.Errorf("status %d, body %s: %w", resp.StatusCode, truncate(string(body), 200), err)
	}
	return nil
}

// ValidateRequest reports a request that does not match the document.
func (v *OpenAPIValidator) ValidateRequest(t *testing.T, req *http.Request) {
	t.Helper()
	if err := v.CheckRequest(req); err != nil {
		t.Errorf("OpenAPI request %s %s: %s", req.Method, req.URL.Path, truncate(err.Error(), 500))
	}
}

// ValidateResponse reports a response that does not match the document.
func (v *OpenAPIValidator) ValidateResponse(t *testing.T, req *http.Request, resp *http.Response) {
	t.Helper()
	if err := v.CheckResponse(req, resp); err != nil {
		t.Errorf("OpenAPI response %s %s: %s", req.Method, req.URL.Path, truncate(err.Error(), 500))
	}
}

// Serve validates req, runs it through h and validates the recorded response.
func (v *OpenAPIValidator) Serve(t *testing.T, h http.Handler, req *http.Request) *http.Response {
	t.Helper()

	v.ValidateRequest(t, req)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	resp := rec.Result()
	v.ValidateResponse(t, req, resp)
	return resp
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
