package handlers_test

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimmatch/guard/internal/clock/clocktest"
	"github.com/bimmatch/guard/internal/handlers"
	"github.com/bimmatch/guard/internal/models"
	"github.com/bimmatch/guard/internal/ratelimit"
	"github.com/bimmatch/guard/internal/upload"
	pkghttp "github.com/bimmatch/guard/pkg/http"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newMultipartRequest(t *testing.T, filename, contentType, category string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)

	require.NoError(t, mw.WriteField("category", category))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/uploads/validate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "203.0.113.7:51234"
	return req
}

var softGate = models.RateLimitPolicy{MaxAttempts: 3, Window: 10 * time.Second}

func newUploadHandler(gate handlers.UploadGate, limiter handlers.RateLimitChecker, policy handlers.FilePolicy) *handlers.UploadHandler {
	return handlers.NewUploadHandler(gate, softGate, limiter, policy, 0, pkghttp.NewIPConfig(nil), discardLogger())
}

func TestUploadValidate_AcceptsPNG(t *testing.T) {
	gate := &handlers.MockUploadGate{}
	var limitedKey string
	limiter := &handlers.MockRateLimitService{
		CheckFunc: func(ctx context.Context, key string, action models.Action, override *models.RateLimitPolicy) (models.RateLimitResult, error) {
			limitedKey = key
			assert.Equal(t, models.ActionFileUpload, action)
			return models.RateLimitResult{Allowed: true, RemainingAttempts: 9}, nil
		},
	}

	handler := newUploadHandler(gate, limiter, upload.NewPolicy(nil))
	data := append(append([]byte{}, pngHeader...), make([]byte, 64)...)
	w := httptest.NewRecorder()
	handler.Validate(w, newMultipartRequest(t, "avatar.png", "image/png", "image", data))

	var resp handlers.UploadResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Accepted)
	assert.Equal(t, "avatar.png", resp.Name)
	assert.Equal(t, "image", resp.Category)
	assert.Equal(t, int64(len(data)), resp.Size)
	assert.Equal(t, "upload:203.0.113.7", limitedKey)
	assert.Equal(t, []string{"upload:203.0.113.7"}, gate.Recorded)
}

func TestUploadValidate_RejectsDisguisedFile(t *testing.T) {
	gate := &handlers.MockUploadGate{}
	handler := newUploadHandler(gate, &handlers.MockRateLimitService{}, upload.NewPolicy(nil))

	w := httptest.NewRecorder()
	handler.Validate(w, newMultipartRequest(t, "cv.pdf", "application/pdf", "document", pngHeader))

	var verdict models.Verdict
	handlers.AssertJSONResponse(t, w, http.StatusUnprocessableEntity, &verdict)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, models.RejectSignatureMismatch, verdict.Reason)
	assert.Len(t, gate.Recorded, 1, "rejected validations still count against the soft gate")
}

func TestUploadValidate_SoftGateShortCircuits(t *testing.T) {
	gate := &handlers.MockUploadGate{
		CheckOnlyFunc: func(key string, policy models.RateLimitPolicy) bool {
			assert.Equal(t, softGate, policy)
			return false
		},
	}
	limiterCalled := false
	limiter := &handlers.MockRateLimitService{
		CheckFunc: func(ctx context.Context, key string, action models.Action, override *models.RateLimitPolicy) (models.RateLimitResult, error) {
			limiterCalled = true
			return models.RateLimitResult{Allowed: true}, nil
		},
	}
	policy := &handlers.MockFilePolicy{}

	handler := newUploadHandler(gate, limiter, policy)
	w := httptest.NewRecorder()
	handler.Validate(w, newMultipartRequest(t, "a.png", "image/png", "image", pngHeader))

	handlers.AssertErrorResponse(t, w, http.StatusTooManyRequests, "rate_limit_exceeded")
	assert.False(t, limiterCalled)
	assert.Empty(t, policy.Decided)
	assert.Empty(t, gate.Recorded)
}

func TestUploadValidate_PersistedLimitDenies(t *testing.T) {
	limiter := &handlers.MockRateLimitService{
		CheckFunc: func(ctx context.Context, key string, action models.Action, override *models.RateLimitPolicy) (models.RateLimitResult, error) {
			return models.RateLimitResult{Allowed: false, RetryAfter: 59 * time.Minute}, nil
		},
	}
	policy := &handlers.MockFilePolicy{}

	handler := newUploadHandler(&handlers.MockUploadGate{}, limiter, policy)
	w := httptest.NewRecorder()
	handler.Validate(w, newMultipartRequest(t, "a.png", "image/png", "image", pngHeader))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3540", w.Header().Get("Retry-After"))
	assert.Empty(t, policy.Decided)
}

func TestUploadValidate_MissingFile(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("category", "image"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", "/uploads/validate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	gate := &handlers.MockUploadGate{}
	handler := newUploadHandler(gate, &handlers.MockRateLimitService{}, &handlers.MockFilePolicy{})
	w := httptest.NewRecorder()
	handler.Validate(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	assert.Len(t, gate.Recorded, 1)
}

func TestUploadValidate_NotMultipart(t *testing.T) {
	gate := &handlers.MockUploadGate{}
	policy := &handlers.MockFilePolicy{}
	handler := newUploadHandler(gate, &handlers.MockRateLimitService{}, policy)
	w := httptest.NewRecorder()
	handler.Validate(w, handlers.NewTestRequest(t, "POST", "/uploads/validate", map[string]string{"file": "x"}))

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	assert.Empty(t, policy.Decided)
	assert.Equal(t, []string{"upload:192.0.2.1"}, gate.Recorded, "malformed uploads still count against the soft gate")
}

func TestUploadValidate_PassesDeclaredMetadataToPolicy(t *testing.T) {
	policy := &handlers.MockFilePolicy{
		DecideFunc: func(file models.UploadFile) models.Verdict {
			return models.Reject(models.RejectTooLarge, "too big")
		},
	}

	handler := newUploadHandler(&handlers.MockUploadGate{}, &handlers.MockRateLimitService{}, policy)
	w := httptest.NewRecorder()
	handler.Validate(w, newMultipartRequest(t, "board.pdf", "application/pdf", "portfolio", []byte("%PDF-1.7")))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Len(t, policy.Decided, 1)
	got := policy.Decided[0]
	assert.Equal(t, "board.pdf", got.Name)
	assert.Equal(t, "application/pdf", got.DeclaredType)
	assert.Equal(t, models.CategoryPortfolio, got.Category)
	assert.Equal(t, []byte("%PDF-1.7"), got.Data)
}

func TestUploadValidate_SoftGateWithRealLimiter(t *testing.T) {
	gate := ratelimit.NewEphemeralLimiter(clocktest.NewFake(t0))
	handler := newUploadHandler(gate, &handlers.MockRateLimitService{}, upload.NewPolicy(nil))

	for i := 0; i < softGate.MaxAttempts; i++ {
		w := httptest.NewRecorder()
		handler.Validate(w, newMultipartRequest(t, "a.png", "image/png", "image", pngHeader))
		require.Equal(t, http.StatusOK, w.Code, "upload %d", i+1)
	}

	w := httptest.NewRecorder()
	handler.Validate(w, newMultipartRequest(t, "a.png", "image/png", "image", pngHeader))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestUploadValidate_MalformedRequestsTripSoftGate(t *testing.T) {
	gate := ratelimit.NewEphemeralLimiter(clocktest.NewFake(t0))
	handler := newUploadHandler(gate, &handlers.MockRateLimitService{}, upload.NewPolicy(nil))

	for i := 0; i < softGate.MaxAttempts; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/uploads/validate", stringsReader("not a form"))
		req.RemoteAddr = "203.0.113.7:51234"
		handler.Validate(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code, "request %d", i+1)
	}

	w := httptest.NewRecorder()
	handler.Validate(w, newMultipartRequest(t, "a.png", "image/png", "image", pngHeader))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestUploadValidate_BodyCapFromConfig(t *testing.T) {
	policy := &handlers.MockFilePolicy{}
	gate := &handlers.MockUploadGate{}
	handler := handlers.NewUploadHandler(gate, softGate, &handlers.MockRateLimitService{}, policy, 512, pkghttp.NewIPConfig(nil), discardLogger())

	w := httptest.NewRecorder()
	handler.Validate(w, newMultipartRequest(t, "a.png", "image/png", "image", append(bytes.Clone(pngHeader), make([]byte, 4096)...)))

	var verdict models.Verdict
	handlers.AssertJSONResponse(t, w, http.StatusRequestEntityTooLarge, &verdict)
	assert.Equal(t, models.RejectTooLarge, verdict.Reason)
	assert.Empty(t, policy.Decided)
	assert.Len(t, gate.Recorded, 1)
}
