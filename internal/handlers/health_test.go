package handlers_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bimmatch/guard/internal/handlers"
)

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{"store ok", nil, http.StatusOK, "ok"},
		{"store down", errors.New("connection refused"), http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handlers.NewHealthHandler(&handlers.MockHealthChecker{Err: tt.err}, discardLogger())
			w := httptest.NewRecorder()
			handler.Health(w, httptest.NewRequest("GET", "/health", nil))

			var resp handlers.HealthResponse
			handlers.AssertJSONResponse(t, w, tt.status, &resp)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}
