package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/stockroom/pkg/log"
	"github.com/cuemby/stockroom/pkg/metrics"
	"github.com/cuemby/stockroom/pkg/storage"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

// ErrRouterClosed is returned by Get after Shutdown
var ErrRouterClosed = errors.New("router is shut down")

// ConnectionUnavailableError is returned when every open attempt for a tenant
// failed
type ConnectionUnavailableError struct {
	Tenant   string
	Attempts int
	Err      error
}

func (e *ConnectionUnavailableError) Error() string {
	return fmt.Sprintf("tenant %s: store unavailable after %d attempt(s): %v", e.Tenant, e.Attempts, e.Err)
}

func (e *ConnectionUnavailableError) Unwrap() error {
	return e.Err
}

// Config tunes handle lifetime and open retries
type Config struct {
	// IdleTimeout is how long a handle may go unused before the sweep closes it
	IdleTimeout time.Duration
	// SweepInterval is the period of the background idle sweep
	SweepInterval time.Duration
	// MaxAttempts bounds open attempts per Get, first try included
	MaxAttempts int
	// RetryInterval is the fixed pause between open attempts
	RetryInterval time.Duration
	// MaxOpen caps live handles; 0 means unbounded
	MaxOpen int
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   10 * time.Minute,
		SweepInterval: 5 * time.Minute,
		MaxAttempts:   3,
		RetryInterval: time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.MaxOpen < 0 {
		c.MaxOpen = 0
	}
	return c
}

type handle struct {
	tenant   string
	store    storage.TenantStore
	lastUsed time.Time
}

// Router hands out one cached store handle per tenant
type Router struct {
	dialer storage.Dialer
	cfg    Config
	clock  clock.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
	group   singleflight.Group

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a router. A nil clock uses the wall clock.
func New(dialer storage.Dialer, cfg Config, clk clock.Clock) *Router {
	if clk == nil {
		clk = clock.New()
	}
	return &Router{
		dialer:  dialer,
		cfg:     cfg.withDefaults(),
		clock:   clk,
		logger:  log.WithComponent("router"),
		handles: make(map[string]*handle),
		stopCh:  make(chan struct{}),
	}
}

// Get returns the tenant's handle, opening it on first use. Concurrent calls
// for the same tenant share a single open.
func (r *Router) Get(ctx context.Context, tenant string) (storage.TenantStore, error) {
	if err := storage.ValidateTenantName(tenant); err != nil {
		return nil, err
	}

	if store, err := r.lookup(tenant); store != nil || err != nil {
		return store, err
	}

	v, err, shared := r.group.Do(tenant, func() (interface{}, error) {
		// Another caller may have finished opening while we queued
		if store, err := r.lookup(tenant); store != nil || err != nil {
			return store, err
		}
		return r.open(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug().Str("tenant", tenant).Msg("Shared in-flight tenant open")
	}
	return v.(storage.TenantStore), nil
}

// lookup returns a live cached handle and refreshes its lastUsed. An expired
// handle is dropped so the caller opens a fresh one.
func (r *Router) lookup(tenant string) (storage.TenantStore, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRouterClosed
	}
	h, ok := r.handles[tenant]
	if !ok {
		r.mu.Unlock()
		return nil, nil
	}
	now := r.clock.Now()
	if now.Sub(h.lastUsed) <= r.cfg.IdleTimeout {
		h.lastUsed = now
		r.mu.Unlock()
		return h.store, nil
	}
	delete(r.handles, tenant)
	metrics.TenantHandlesOpen.Set(float64(len(r.handles)))
	r.mu.Unlock()

	r.closeHandle(h, "idle")
	return nil, nil
}

func (r *Router) open(ctx context.Context, tenant string) (storage.TenantStore, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TenantHandleOpenDuration)

	logger := log.WithTenant(r.logger, tenant)
	database := storage.TenantDatabase(tenant)

	var store storage.TenantStore
	attempts := 0
	op := func() error {
		attempts++
		s, err := r.dialer.Open(ctx, database)
		if err != nil {
			return err
		}
		store = s
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.RetryInterval), uint64(r.cfg.MaxAttempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", wait).Msg("Tenant store open failed, retrying")
	})
	if err != nil {
		metrics.TenantHandleOpens.WithLabelValues("failure").Inc()
		logger.Error().Err(err).Int("attempts", attempts).Msg("Tenant store unavailable")
		return nil, &ConnectionUnavailableError{Tenant: tenant, Attempts: attempts, Err: err}
	}
	metrics.TenantHandleOpens.WithLabelValues("success").Inc()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = store.Close()
		return nil, ErrRouterClosed
	}
	var victim *handle
	if r.cfg.MaxOpen > 0 && len(r.handles) >= r.cfg.MaxOpen {
		victim = r.leastRecentlyUsed()
		delete(r.handles, victim.tenant)
	}
	r.handles[tenant] = &handle{tenant: tenant, store: store, lastUsed: r.clock.Now()}
	metrics.TenantHandlesOpen.Set(float64(len(r.handles)))
	r.mu.Unlock()

	if victim != nil {
		r.closeHandle(victim, "capacity")
	}

	logger.Info().Str("database", database).Int("attempts", attempts).Msg("Opened tenant store")
	return store, nil
}

// leastRecentlyUsed must be called with mu held and a non-empty map
func (r *Router) leastRecentlyUsed() *handle {
	var oldest *handle
	for _, h := range r.handles {
		if oldest == nil || h.lastUsed.Before(oldest.lastUsed) {
			oldest = h
		}
	}
	return oldest
}

func (r *Router) closeHandle(h *handle, reason string) error {
	metrics.TenantHandleEvictions.WithLabelValues(reason).Inc()
	if err := h.store.Close(); err != nil {
		r.logger.Error().Err(err).Str("tenant", h.tenant).Str("reason", reason).Msg("Failed to close tenant store")
		return fmt.Errorf("failed to close store for tenant %s: %w", h.tenant, err)
	}
	r.logger.Debug().Str("tenant", h.tenant).Str("reason", reason).Msg("Closed tenant store")
	return nil
}

// Close closes and forgets the tenant's handle. Closing an absent tenant is a
// no-op.
func (r *Router) Close(tenant string) error {
	r.mu.Lock()
	h, ok := r.handles[tenant]
	if ok {
		delete(r.handles, tenant)
		metrics.TenantHandlesOpen.Set(float64(len(r.handles)))
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug().Str("tenant", tenant).Msg("No open store to close")
		return nil
	}
	return r.closeHandle(h, "explicit")
}

// Sweep closes every handle idle for longer than IdleTimeout and returns how
// many were closed. A failing close is logged and the sweep goes on.
func (r *Router) Sweep() int {
	now := r.clock.Now()

	r.mu.Lock()
	var stale []*handle
	for tenant, h := range r.handles {
		if now.Sub(h.lastUsed) > r.cfg.IdleTimeout {
			stale = append(stale, h)
			delete(r.handles, tenant)
		}
	}
	metrics.TenantHandlesOpen.Set(float64(len(r.handles)))
	r.mu.Unlock()

	for _, h := range stale {
		_ = r.closeHandle(h, "idle")
	}
	if len(stale) > 0 {
		r.logger.Info().Int("closed", len(stale)).Msg("Idle sweep closed tenant stores")
	}
	return len(stale)
}

// Start runs Sweep every SweepInterval until Shutdown
func (r *Router) Start() {
	ticker := r.clock.Ticker(r.cfg.SweepInterval)
	r.wg.Add(1)
	go r.run(ticker)
}

func (r *Router) run(ticker *clock.Ticker) {
	defer r.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stopCh:
			return
		}
	}
}

// Shutdown stops the sweep and closes every handle. Later Gets fail with
// ErrRouterClosed.
func (r *Router) Shutdown() error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()

	r.mu.Lock()
	r.closed = true
	handles := r.handles
	r.handles = make(map[string]*handle)
	metrics.TenantHandlesOpen.Set(0)
	r.mu.Unlock()

	var err error
	for _, h := range handles {
		err = multierr.Append(err, r.closeHandle(h, "shutdown"))
	}
	return err
}

// Len returns the number of live handles
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Tenants returns the tenants with a live handle, sorted
func (r *Router) Tenants() []string {
	r.mu.Lock()
	tenants := make([]string, 0, len(r.handles))
	for t := range r.handles {
		tenants = append(tenants, t)
	}
	r.mu.Unlock()

	sort.Strings(tenants)
	return tenants
}

// Closed reports whether Shutdown has run
func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
