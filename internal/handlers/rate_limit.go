package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bimmatch/guard/internal/models"
	pkghttp "github.com/bimmatch/guard/pkg/http"
	"github.com/bimmatch/guard/pkg/logger"
)

// RateLimitService defines the interface for the persisted limiter
type RateLimitService interface {
	Check(ctx context.Context, key string, action models.Action, override *models.RateLimitPolicy) (models.RateLimitResult, error)
	Info(ctx context.Context, key string, action models.Action) (models.RateLimitResult, error)
	Reset(ctx context.Context, key string) error
}

// RateLimitHandler exposes the persisted limiter to the web UI and other services
type RateLimitHandler struct {
	service  RateLimitService
	ipConfig *pkghttp.IPConfig
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

// NewRateLimitHandler creates a new RateLimitHandler
func NewRateLimitHandler(service RateLimitService, ipConfig *pkghttp.IPConfig, audit *logger.AuditLogger, logger *slog.Logger) *RateLimitHandler {
	return &RateLimitHandler{
		service:  service,
		ipConfig: ipConfig,
		audit:    audit,
		logger:   logger,
	}
}

// CheckRateLimitRequest asks whether one more attempt is allowed for key
type CheckRateLimitRequest struct {
	Key    string `json:"key" validate:"required,max=512"`
	Action string `json:"action" validate:"required,rate_limit_action"`
}

// RateLimitResponse is the JSON form of a limiter result
type RateLimitResponse struct {
	Allowed           bool       `json:"allowed"`
	RemainingAttempts int        `json:"remaining_attempts"`
	ResetTime         *time.Time `json:"reset_time,omitempty"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
}

func toRateLimitResponse(result models.RateLimitResult) RateLimitResponse {
	return RateLimitResponse{
		Allowed:           result.Allowed,
		RemainingAttempts: result.RemainingAttempts,
		ResetTime:         result.ResetTime,
		RetryAfterSeconds: result.RetryAfterSeconds(),
	}
}

// Check counts an attempt. A denied attempt is answered with 429 and Retry-After.
//
// @Router /rate-limits/check [post]
func (h *RateLimitHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Check(r.Context(), req.Key, models.Action(req.Action), nil)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := toRateLimitResponse(result)
	if !result.Allowed {
		pkghttp.WriteRetryAfter(w, resp.RetryAfterSeconds, resp)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Info reports what the next attempt would get without counting it
//
// @Router /rate-limits/info [get]
func (h *RateLimitHandler) Info(w http.ResponseWriter, r *http.Request) {
	req := CheckRateLimitRequest{
		Key:    r.URL.Query().Get("key"),
		Action: r.URL.Query().Get("action"),
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Info(r.Context(), req.Key, models.Action(req.Action))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toRateLimitResponse(result))
}

// Reset clears a key. Admin only.
//
// @Router /admin/rate-limits/{key} [delete]
func (h *RateLimitHandler) Reset(w http.ResponseWriter, r *http.Request) {
	key, err := urlKeyParam(r, "key")
	if err != nil {
		pkghttp.WriteBadRequest(w, "Key is not a valid escaped path segment")
		return
	}

	if err = h.service.Reset(r.Context(), key); err != nil {
		if errors.Is(err, models.ErrInvalidKey) {
			pkghttp.WriteBadRequest(w, "Key is required")
			return
		}
		h.logger.Error("rate limit reset failed", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Rate limit store unavailable")
		return
	}

	if h.audit != nil {
		h.audit.LogRateLimitReset(key, pkghttp.ExtractClientIP(r, h.ipConfig))
	}
	w.WriteHeader(http.StatusNoContent)
}

// urlKeyParam returns a decoded path parameter. chi matches on RawPath when the
// request carries escapes, so the parameter is still percent-encoded then.
func urlKeyParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return value, nil
	}
	return url.PathUnescape(value)
}

func (h *RateLimitHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidKey),
		errors.Is(err, models.ErrUnknownAction),
		errors.Is(err, models.ErrInvalidPolicy):
		pkghttp.WriteBadRequest(w, err.Error())
	default:
		h.logger.Error("unexpected rate limit error", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
