package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/sendly/internal/pkg/ctxlog"
)

// ErrorMapping maps a sentinel error to an HTTP answer. Mappings with Field
// set answer 400 with a field detail; Status and Message are then ignored.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses the sentinel's text
	Field   string
}

func (m ErrorMapping) message() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Error.Error()
}

// HandleError writes the first matching mapping in order. Unmapped errors
// are logged with the request logger and answered with 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		if m.Field != "" {
			ValidationError(w, FieldErrors{{Field: m.Field, Message: m.message()}})
			return
		}
		if m.Status >= http.StatusInternalServerError {
			ctxlog.FromContext(ctx).Error("request failed", "status", m.Status, "error", err)
		}
		Error(w, m.Status, m.message())
		return
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
