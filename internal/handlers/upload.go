package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bimmatch/guard/internal/models"
	pkghttp "github.com/bimmatch/guard/pkg/http"
)

// multipartOverhead is headroom for boundaries and form fields on top of the largest file
const multipartOverhead = 1 << 20

// UploadGate is the in-memory soft gate in front of file validation
type UploadGate interface {
	CheckOnly(key string, policy models.RateLimitPolicy) bool
	RecordAttempt(key string)
}

// FilePolicy decides whether an uploaded file may be accepted
type FilePolicy interface {
	Decide(file models.UploadFile) models.Verdict
	MaxBytes() int64
}

// RateLimitChecker is the subset of the persisted limiter the upload path needs
type RateLimitChecker interface {
	Check(ctx context.Context, key string, action models.Action, override *models.RateLimitPolicy) (models.RateLimitResult, error)
}

// UploadHandler validates CV, portfolio and profile image uploads before they reach storage
type UploadHandler struct {
	gate     UploadGate
	gatePol  models.RateLimitPolicy
	limiter  RateLimitChecker
	policy   FilePolicy
	maxBody  int64
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewUploadHandler creates a new UploadHandler. maxBody caps the whole
// multipart request; zero or less means the policy's largest ceiling plus overhead.
func NewUploadHandler(gate UploadGate, gatePolicy models.RateLimitPolicy, limiter RateLimitChecker, policy FilePolicy, maxBody int64, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *UploadHandler {
	if maxBody <= 0 {
		maxBody = policy.MaxBytes() + multipartOverhead
	}
	return &UploadHandler{
		gate:     gate,
		gatePol:  gatePolicy,
		limiter:  limiter,
		policy:   policy,
		maxBody:  maxBody,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// UploadResponse is returned for an accepted file
type UploadResponse struct {
	models.Verdict
	Name     string `json:"name"`
	Category string `json:"category"`
	Size     int64  `json:"size"`
}

// Validate runs a multipart upload through the throttles and the acceptance policy.
// Form fields: file, category.
//
// @Router /uploads/validate [post]
func (h *UploadHandler) Validate(w http.ResponseWriter, r *http.Request) {
	key := "upload:" + pkghttp.ExtractClientIP(r, h.ipConfig)

	if !h.gate.CheckOnly(key, h.gatePol) {
		h.logger.Warn("upload soft gate tripped", slog.String("key", key))
		pkghttp.WriteTooManyRequests(w, "Too many uploads, slow down")
		return
	}
	// every request past the gate counts, even one that never parses
	defer h.gate.RecordAttempt(key)

	result, err := h.limiter.Check(r.Context(), key, models.ActionFileUpload, nil)
	if err != nil {
		h.logger.Error("upload rate limit check failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if !result.Allowed {
		pkghttp.WriteRetryAfter(w, result.RetryAfterSeconds(), toRateLimitResponse(result))
		return
	}

	maxBytes := h.policy.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pkghttp.WriteJSON(w, http.StatusRequestEntityTooLarge,
				models.Reject(models.RejectTooLarge, "File exceeds the maximum upload size"))
			return
		}
		pkghttp.WriteBadRequest(w, "Invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		pkghttp.WriteBadRequest(w, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Could not read uploaded file")
		return
	}

	upload := models.UploadFile{
		Name:         header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		Category:     models.FileCategory(r.FormValue("category")),
		Size:         header.Size,
		Data:         data,
	}

	verdict := h.policy.Decide(upload)

	if !verdict.Accepted {
		h.logger.Info("upload rejected",
			slog.String("reason", string(verdict.Reason)),
			slog.String("category", string(upload.Category)),
			slog.Int64("size", upload.Size),
		)
		pkghttp.WriteJSON(w, http.StatusUnprocessableEntity, verdict)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UploadResponse{
		Verdict:  verdict,
		Name:     upload.Name,
		Category: string(upload.Category),
		Size:     upload.Size,
	})
}
