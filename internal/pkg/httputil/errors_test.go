package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/sendly/internal/pkg/ctxlog"
)

var (
	errMissing  = errors.New("not found")
	errBadEmail = errors.New("email must contain @")
	errBackend  = errors.New("backend unavailable")
)

var testMappings = []ErrorMapping{
	{Error: errBadEmail, Field: "email"},
	{Error: errMissing, Status: http.StatusNotFound},
	{Error: errBackend, Status: http.StatusServiceUnavailable, Message: "try again later"},
}

type errorBody struct {
	Error struct {
		Message string       `json:"message"`
		Details []FieldError `json:"details"`
	} `json:"error"`
}

func handle(t *testing.T, ctx context.Context, err error) (int, errorBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	HandleError(ctx, rec, err, testMappings)

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func TestHandleError_WrappedSentinelUsesSentinelText(t *testing.T) {
	code, body := handle(t, context.Background(), fmt.Errorf("load user-1: %w", errMissing))

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not found", body.Error.Message)
}

func TestHandleError_FieldMappingAnswersValidationError(t *testing.T) {
	code, body := handle(t, context.Background(), fmt.Errorf("save: %w", errBadEmail))

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation error", body.Error.Message)
	require.Len(t, body.Error.Details, 1)
	assert.Equal(t, FieldError{Field: "email", Message: "email must contain @"}, body.Error.Details[0])
}

func TestHandleError_LogsServerSideFailures(t *testing.T) {
	var logs bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&logs, nil)))

	code, body := handle(t, ctx, errBackend)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "try again later", body.Error.Message)
	assert.Contains(t, logs.String(), "request failed")

	logs.Reset()
	code, body = handle(t, ctx, errors.New("disk full"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal error", body.Error.Message)
	assert.Contains(t, logs.String(), "disk full")

	logs.Reset()
	handle(t, ctx, errMissing)
	assert.Empty(t, logs.String())
}

func TestHandleError_FirstMatchWins(t *testing.T) {
	both := errors.Join(errMissing, errBadEmail)

	code, _ := handle(t, context.Background(), both)

	assert.Equal(t, http.StatusBadRequest, code)
}
