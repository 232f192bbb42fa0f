package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/stockroom/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHealthRouter(hs *HealthServer) http.Handler {
	r := chi.NewRouter()
	hs.Mount(r)
	return r
}

// TestReadyHandler tests readiness against probe results
func TestReadyHandler(t *testing.T) {
	tests := []struct {
		name       string
		storeErr   error
		wantStatus int
		wantState  string
	}{
		{
			name:       "all probes pass",
			wantStatus: http.StatusOK,
			wantState:  "ready",
		},
		{
			name:       "global store down",
			storeErr:   errors.New("connection refused"),
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics.SetCriticalComponents("test_store", "test_router")

			hs := NewHealthServer()
			hs.AddCheck("test_store", func(ctx context.Context) error { return tt.storeErr })
			hs.AddCheck("test_router", func(ctx context.Context) error { return nil })

			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			w := httptest.NewRecorder()
			newHealthRouter(hs).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var status metrics.HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.wantState, status.Status)
			assert.Contains(t, status.Components, "test_store")
		})
	}
}

// TestReadyHandler_CheckTimeout tests that a hanging probe is cut off
func TestReadyHandler_CheckTimeout(t *testing.T) {
	metrics.SetCriticalComponents("slow_store")

	hs := NewHealthServer()
	hs.timeout = 0
	hs.AddCheck("slow_store", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	newHealthRouter(hs).ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestHealthHandler_Routes tests the endpoints mounted by the health server
func TestHealthHandler_Routes(t *testing.T) {
	metrics.SetCriticalComponents()
	h := newHealthRouter(NewHealthServer())

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{method: http.MethodGet, path: "/ready", wantStatus: http.StatusOK},
		{method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{method: http.MethodPost, path: "/health", wantStatus: http.StatusMethodNotAllowed},
		{method: http.MethodPut, path: "/ready", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

// TestHealthHandler_JSONFormat tests the liveness response format
func TestHealthHandler_JSONFormat(t *testing.T) {
	metrics.RegisterComponent("json_probe", true, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	newHealthRouter(NewHealthServer()).ServeHTTP(w, req)

	var status metrics.HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.False(t, status.Timestamp.IsZero())
	assert.Equal(t, "healthy", status.Components["json_probe"])
}

func BenchmarkReadyHandler(b *testing.B) {
	hs := NewHealthServer()
	hs.AddCheck("bench", func(ctx context.Context) error { return nil })
	h := newHealthRouter(hs)
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
	}
}
