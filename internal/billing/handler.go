package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bissquit/sendly/internal/pkg/ctxlog"
	"github.com/bissquit/sendly/internal/pkg/httputil"
)

const maxPayloadBytes = 64 << 10

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrMissingSignature, Status: http.StatusBadRequest},
	{Error: ErrInvalidSignature, Status: http.StatusBadRequest},
	{Error: ErrSignatureExpired, Status: http.StatusBadRequest},
	{Error: ErrInvalidPayload, Status: http.StatusBadRequest, Message: "invalid event payload"},
	{Error: ErrMissingUser, Status: http.StatusBadRequest},
}

// Handler receives payment provider webhooks.
type Handler struct {
	service   *Service
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewHandler creates a webhook handler verifying signatures with secret.
func NewHandler(service *Service, secret string, tolerance time.Duration) *Handler {
	return &Handler{
		service:   service,
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// RegisterRoutes registers the webhook route. It must not require user auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/webhook", h.Webhook)
}

// Webhook handles POST /billing/webhook request.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := VerifySignature(payload, r.Header.Get(SignatureHeader), h.secret, h.tolerance, h.now()); err != nil {
		ctxlog.FromContext(r.Context()).Warn("billing webhook rejected", "error", err)
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		httputil.HandleError(r.Context(), w, errors.Join(ErrInvalidPayload, err), errorMappings)
		return
	}

	result, err := h.service.HandleEvent(r.Context(), event)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}
