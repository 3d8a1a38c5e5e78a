// Package httputil provides HTTP middleware and JSON response helpers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes a raw JSON response without envelope.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, statusCode int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Success writes {"data": ...}.
func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, map[string]any{"data": data})
}

// Error writes {"error": {"message": ...}}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{
		"error": map[string]string{"message": message},
	})
}

// ValidationError writes a 400 with per-field details. validator.ValidationErrors
// and []FieldError become structured details, anything else a string.
func ValidationError(w http.ResponseWriter, err error) {
	var details any

	var validationErrors validator.ValidationErrors
	var fieldErrors FieldErrors
	switch {
	case errors.As(err, &validationErrors):
		fe := make([]FieldError, 0, len(validationErrors))
		for _, e := range validationErrors {
			fe = append(fe, FieldError{Field: e.Field(), Message: describeTag(e)})
		}
		details = fe
	case errors.As(err, &fieldErrors):
		details = []FieldError(fieldErrors)
	default:
		details = err.Error()
	}

	JSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message": "validation error",
			"details": details,
		},
	})
}

// FieldErrors is an error made of field level problems found outside the validator.
type FieldErrors []FieldError

func (f FieldErrors) Error() string {
	if len(f) == 0 {
		return "validation error"
	}
	return fmt.Sprintf("%s: %s", f[0].Field, f[0].Message)
}

func describeTag(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "contains":
		return fmt.Sprintf("must contain %q", e.Param())
	case "min":
		return "must have at least " + e.Param() + " item(s)"
	case "max":
		return "must have at most " + e.Param() + " item(s)"
	default:
		return e.Tag()
	}
}
