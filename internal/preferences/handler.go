package preferences

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNoCategories, Field: "categories"},
	{Error: ErrInvalidFrequency, Field: "frequency"},
	{Error: ErrInvalidEmail, Field: "email"},
	{Error: ErrPreferencesNotFound, Status: http.StatusNotFound},
	{Error: ErrNotActive, Status: http.StatusConflict},
}

// Handler handles HTTP requests for subscriber preferences.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new preferences handler.
func NewHandler(service *Service) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		service:   service,
		validator: v,
	}
}

// RegisterRoutes registers preference routes. They require an authenticated user.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/preferences", func(r chi.Router) {
		r.Get("/", h.GetPreferences)
		r.Post("/", h.SavePreferences)
		r.Patch("/", h.UpdateStatus)
		r.Post("/send-now", h.SendNow)
	})
}

// SavePreferencesRequest represents the request body for saving preferences.
type SavePreferencesRequest struct {
	Categories []string `json:"categories" validate:"required,min=1"`
	Frequency  string   `json:"frequency" validate:"required,oneof=daily weekly biweekly"`
	Email      string   `json:"email" validate:"required,contains=@"`
}

// UpdateStatusRequest represents the request body for pausing or resuming.
type UpdateStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// SendNowResponse is returned when a one-off send was queued.
type SendNowResponse struct {
	Scheduled bool `json:"scheduled"`
}

// SavePreferences handles POST /preferences request.
func (h *Handler) SavePreferences(w http.ResponseWriter, r *http.Request) {
	var req SavePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	pref, created, err := h.service.Save(r.Context(), httputil.GetUserID(r.Context()), SaveInput{
		Categories: req.Categories,
		Frequency:  domain.Frequency(req.Frequency),
		Email:      req.Email,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.Success(w, status, pref)
}

// GetPreferences handles GET /preferences request.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	pref, err := h.service.Get(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, pref)
}

// UpdateStatus handles PATCH /preferences request.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	pref, err := h.service.SetActive(r.Context(), httputil.GetUserID(r.Context()), *req.IsActive)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, pref)
}

// SendNow handles POST /preferences/send-now request.
func (h *Handler) SendNow(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SendNow(r.Context(), httputil.GetUserID(r.Context())); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusAccepted, SendNowResponse{Scheduled: true})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}
