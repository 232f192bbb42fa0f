package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/stockroom/pkg/metrics"
	"github.com/go-chi/chi/v5"
)

// CheckFunc probes one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// HealthServer serves the liveness, readiness and metrics endpoints
type HealthServer struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewHealthServer creates a health server with no checks
func NewHealthServer() *HealthServer {
	return &HealthServer{
		checks:  make(map[string]CheckFunc),
		timeout: 2 * time.Second,
	}
}

// AddCheck registers a readiness probe reported under component
func (hs *HealthServer) AddCheck(component string, fn CheckFunc) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.checks[component] = fn
}

// Mount registers /health, /ready and /metrics on r
func (hs *HealthServer) Mount(r chi.Router) {
	r.Get("/health", hs.healthHandler)
	r.Get("/ready", hs.readyHandler)
	r.Handle("/metrics", metrics.Handler())
}

// runChecks probes every registered dependency and records the result in
// the component registry
func (hs *HealthServer) runChecks(ctx context.Context) {
	hs.mu.RLock()
	names := make([]string, 0, len(hs.checks))
	for name := range hs.checks {
		names = append(names, name)
	}
	hs.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		hs.mu.RLock()
		fn := hs.checks[name]
		hs.mu.RUnlock()

		cctx, cancel := context.WithTimeout(ctx, hs.timeout)
		err := fn(cctx)
		cancel()

		if err != nil {
			metrics.UpdateComponent(name, false, err.Error())
		} else {
			metrics.UpdateComponent(name, true, "")
		}
	}
}

// healthHandler implements the /health endpoint.
// It reports the last known state of each component without probing.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	metrics.HealthHandler()(w, r)
}

// readyHandler implements the /ready endpoint
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	hs.runChecks(r.Context())
	metrics.ReadyHandler()(w, r)
}
