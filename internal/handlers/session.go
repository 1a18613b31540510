package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bimmatch/guard/internal/models"
	pkghttp "github.com/bimmatch/guard/pkg/http"
)

// SessionService defines the interface for the session registry
type SessionService interface {
	Start(ctx context.Context) (models.SessionSnapshot, error)
	Signal(id string, signal models.ActivitySignal) (models.SessionSnapshot, error)
	Renew(id string) (models.SessionSnapshot, error)
	EnterRoute(id, path string) (models.SessionSnapshot, error)
	Snapshot(id string) (models.SessionSnapshot, error)
	Logout(ctx context.Context, id string) error
}

// SessionHandler handles session inactivity requests from the web UI
type SessionHandler struct {
	service SessionService
	logger  *slog.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: service, logger: logger}
}

// ActivityRequest carries one user input event
type ActivityRequest struct {
	Signal string `json:"signal" validate:"required,activity_signal"`
}

// RouteRequest reports the route the user navigated to
type RouteRequest struct {
	Path string `json:"path" validate:"required,startswith=/,max=2048"`
}

// RegisterRoutes registers all session routes with the chi router
func (h *SessionHandler) RegisterRoutes(router chi.Router) {
	router.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Logout)
		r.Post("/{id}/activity", h.Activity)
		r.Post("/{id}/route", h.Route)
		r.Post("/{id}/renew", h.Renew)
	})
}

// Create starts monitoring a new session
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Start(r.Context())
	if err != nil {
		h.logger.Error("failed to start session", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Could not start session")
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, snap)
}

// Get returns the session state, including any pending notice
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, snap)
}

// Activity forwards an input event. Events after the warning are accepted but have no effect.
func (h *SessionHandler) Activity(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	snap, err := h.service.Signal(chi.URLParam(r, "id"), models.ActivitySignal(req.Signal))
	if err != nil {
		h.writeError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, snap)
}

// Route reports navigation
func (h *SessionHandler) Route(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	snap, err := h.service.EnterRoute(chi.URLParam(r, "id"), req.Path)
	if err != nil {
		h.writeError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, snap)
}

// Renew is the "stay signed in" action on the warning dialog
func (h *SessionHandler) Renew(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Renew(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, snap)
}

// Logout ends the session explicitly
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		pkghttp.WriteNotFound(w, "Session not found")
	case errors.Is(err, models.ErrSessionExpired):
		pkghttp.WriteGone(w, "Session has expired, sign in again")
	case errors.Is(err, models.ErrUnknownSignal):
		pkghttp.WriteBadRequest(w, err.Error())
	default:
		h.logger.Error("session request failed", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Session store unavailable")
	}
}
