package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/bimmatch/guard/internal/models"
	pkghttp "github.com/bimmatch/guard/pkg/http"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	IPConfig          *pkghttp.IPConfig
}

// RateLimitByIP is a coarse in-process throttle that sits in front of the
// persisted limiter and sheds floods before they reach the store
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests")
		}),
	)
}

// ActionChecker counts one attempt against a limiter key
type ActionChecker interface {
	Check(ctx context.Context, key string, action models.Action, override *models.RateLimitPolicy) (models.RateLimitResult, error)
}

// GuardAction charges every request to the persisted limiter under
// keyPrefix+":"+clientIP and rejects it with Retry-After once denied
func GuardAction(limiter ActionChecker, action models.Action, keyPrefix string, ipConfig *pkghttp.IPConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyPrefix + ":" + pkghttp.ExtractClientIP(r, ipConfig)

			result, err := limiter.Check(r.Context(), key, action, nil)
			if err != nil {
				// only reachable through misconfiguration
				logger.Error("rate limit guard misconfigured",
					slog.String("action", string(action)),
					slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.RemainingAttempts))
			if !result.Allowed {
				pkghttp.WriteRetryAfter(w, result.RetryAfterSeconds(), pkghttp.ErrorResponse{
					Error:   "rate_limit_exceeded",
					Message: "Too many requests, try again later",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
