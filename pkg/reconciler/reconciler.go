package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/stockroom/pkg/index"
	"github.com/cuemby/stockroom/pkg/log"
	"github.com/cuemby/stockroom/pkg/metrics"
	"github.com/cuemby/stockroom/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultInterval is the period between reconciliation cycles
const DefaultInterval = 10 * time.Minute

// Index is the part of the global index the reconciler drives
type Index interface {
	ResyncTenant(ctx context.Context, tenant string) (index.ResyncReport, error)
	RefreshWarehouseMetrics(ctx context.Context) (int, error)
}

// TenantLister lists the tenants to reconcile
type TenantLister interface {
	ListTenants(ctx context.Context) ([]*types.Tenant, error)
}

// CycleReport summarizes one reconciliation cycle
type CycleReport struct {
	Tenants          int
	TenantsFailed    int
	Resynced         []index.ResyncReport
	WarehousesStored int
}

// Reconciler periodically replays every tenant into the global index
type Reconciler struct {
	index    Index
	tenants  TenantLister
	interval time.Duration
	clock    clock.Clock
	logger   zerolog.Logger

	mu       sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewReconciler creates a reconciler. A zero interval uses DefaultInterval.
func NewReconciler(ix Index, tenants TenantLister, interval time.Duration, clk clock.Clock) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Reconciler{
		index:    ix,
		tenants:  tenants,
		interval: interval,
		clock:    clk,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	ticker := r.clock.Ticker(r.interval)
	r.wg.Add(1)
	go r.run(ticker)
}

// Stop stops the reconciler and waits for a running cycle to finish
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Reconciler) run(ticker *clock.Ticker) {
	defer r.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-r.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()
			if _, err := r.Reconcile(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Reconciliation cycle failed")
			}
			cancel()
		case <-r.stopCh:
			return
		}
	}
}

// Reconcile runs one cycle: resync every tenant, then refresh the warehouse
// metrics snapshots. A failing tenant is logged and the cycle goes on.
func (r *Reconciler) Reconcile(ctx context.Context) (CycleReport, error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	var report CycleReport
	tenants, err := r.tenants.ListTenants(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list tenants: %w", err)
	}
	report.Tenants = len(tenants)

	for _, t := range tenants {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		res, err := r.index.ResyncTenant(ctx, t.Name)
		report.Resynced = append(report.Resynced, res)
		if err != nil {
			report.TenantsFailed++
			logger := log.WithTenant(r.logger, t.Name)
			logger.Error().Err(err).Msg("Failed to resync tenant")
		}
	}

	n, err := r.index.RefreshWarehouseMetrics(ctx)
	report.WarehousesStored = n
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to refresh warehouse metrics")
	}

	r.logger.Info().
		Int("tenants", report.Tenants).
		Int("failed", report.TenantsFailed).
		Int("warehouses", report.WarehousesStored).
		Dur("took", timer.Duration()).
		Msg("Reconciliation cycle complete")
	return report, nil
}
