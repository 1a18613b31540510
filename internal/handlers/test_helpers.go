package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/bimmatch/guard/internal/models"
	pkghttp "github.com/bimmatch/guard/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithURLParams attaches chi URL parameters to a request for calling handlers directly
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockRateLimitService implements RateLimitService for testing
type MockRateLimitService struct {
	CheckFunc func(ctx context.Context, key string, action models.Action, override *models.RateLimitPolicy) (models.RateLimitResult, error)
	InfoFunc  func(ctx context.Context, key string, action models.Action) (models.RateLimitResult, error)
	ResetFunc func(ctx context.Context, key string) error
}

func (m *MockRateLimitService) Check(ctx context.Context, key string, action models.Action, override *models.RateLimitPolicy) (models.RateLimitResult, error) {
	if m.CheckFunc == nil {
		return models.RateLimitResult{Allowed: true}, nil
	}
	return m.CheckFunc(ctx, key, action, override)
}

func (m *MockRateLimitService) Info(ctx context.Context, key string, action models.Action) (models.RateLimitResult, error) {
	if m.InfoFunc == nil {
		return models.RateLimitResult{Allowed: true}, nil
	}
	return m.InfoFunc(ctx, key, action)
}

func (m *MockRateLimitService) Reset(ctx context.Context, key string) error {
	if m.ResetFunc == nil {
		return nil
	}
	return m.ResetFunc(ctx, key)
}

// MockSessionService implements SessionService for testing
type MockSessionService struct {
	StartFunc      func(ctx context.Context) (models.SessionSnapshot, error)
	SignalFunc     func(id string, signal models.ActivitySignal) (models.SessionSnapshot, error)
	RenewFunc      func(id string) (models.SessionSnapshot, error)
	EnterRouteFunc func(id, path string) (models.SessionSnapshot, error)
	SnapshotFunc   func(id string) (models.SessionSnapshot, error)
	LogoutFunc     func(ctx context.Context, id string) error
}

func (m *MockSessionService) Start(ctx context.Context) (models.SessionSnapshot, error) {
	if m.StartFunc == nil {
		return models.SessionSnapshot{}, models.ErrStoreUnavailable
	}
	return m.StartFunc(ctx)
}

func (m *MockSessionService) Signal(id string, signal models.ActivitySignal) (models.SessionSnapshot, error) {
	if m.SignalFunc == nil {
		return models.SessionSnapshot{}, models.ErrSessionNotFound
	}
	return m.SignalFunc(id, signal)
}

func (m *MockSessionService) Renew(id string) (models.SessionSnapshot, error) {
	if m.RenewFunc == nil {
		return models.SessionSnapshot{}, models.ErrSessionNotFound
	}
	return m.RenewFunc(id)
}

func (m *MockSessionService) EnterRoute(id, path string) (models.SessionSnapshot, error) {
	if m.EnterRouteFunc == nil {
		return models.SessionSnapshot{}, models.ErrSessionNotFound
	}
	return m.EnterRouteFunc(id, path)
}

func (m *MockSessionService) Snapshot(id string) (models.SessionSnapshot, error) {
	if m.SnapshotFunc == nil {
		return models.SessionSnapshot{}, models.ErrSessionNotFound
	}
	return m.SnapshotFunc(id)
}

func (m *MockSessionService) Logout(ctx context.Context, id string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, id)
}

// MockUploadGate implements UploadGate for testing
type MockUploadGate struct {
	CheckOnlyFunc func(key string, policy models.RateLimitPolicy) bool
	Recorded      []string
}

func (m *MockUploadGate) CheckOnly(key string, policy models.RateLimitPolicy) bool {
	if m.CheckOnlyFunc == nil {
		return true
	}
	return m.CheckOnlyFunc(key, policy)
}

func (m *MockUploadGate) RecordAttempt(key string) {
	m.Recorded = append(m.Recorded, key)
}

// MockFilePolicy implements FilePolicy for testing
type MockFilePolicy struct {
	DecideFunc func(file models.UploadFile) models.Verdict
	Max        int64
	Decided    []models.UploadFile
}

func (m *MockFilePolicy) Decide(file models.UploadFile) models.Verdict {
	m.Decided = append(m.Decided, file)
	if m.DecideFunc == nil {
		return models.Accept()
	}
	return m.DecideFunc(file)
}

func (m *MockFilePolicy) MaxBytes() int64 {
	if m.Max == 0 {
		return 1 << 20
	}
	return m.Max
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
