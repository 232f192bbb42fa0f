package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
	"github.com/cuemby/stockroom/pkg/log"
	"github.com/cuemby/stockroom/pkg/metrics"
	"github.com/cuemby/stockroom/pkg/storage"
	"github.com/cuemby/stockroom/pkg/types"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

const lockStripes = 64

// Outcome describes what a sync did to the index
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeStale     Outcome = "stale"
	OutcomeRemoved   Outcome = "removed"
)

// Tenants resolves a tenant name to an open store. *router.Router satisfies it.
type Tenants interface {
	Get(ctx context.Context, tenant string) (storage.TenantStore, error)
}

// Index keeps products_index and global_products eventually consistent with
// the tenant stores
type Index struct {
	global  storage.GlobalStore
	tenants Tenants
	clock   clock.Clock
	logger  zerolog.Logger

	locks [lockStripes]sync.Mutex
}

// New creates an index over the global store. tenants may be nil when only
// SyncProduct, RemoveFromIndex and the metric reads are used.
func New(global storage.GlobalStore, tenants Tenants, clk clock.Clock) *Index {
	if clk == nil {
		clk = clock.New()
	}
	return &Index{
		global:  global,
		tenants: tenants,
		clock:   clk,
		logger:  log.WithComponent("index"),
	}
}

func (ix *Index) lockFor(tenant, productID string) *sync.Mutex {
	h := xxhash.Sum64String(tenant + "\x00" + productID)
	return &ix.locks[h%lockStripes]
}

// SyncProduct upserts the entry for (tenant, productID). Repeating a sync with
// identical fields writes nothing; fields older than the stored entry are
// ignored.
func (ix *Index) SyncProduct(ctx context.Context, tenant, productID string, fields types.ProductFields) (Outcome, error) {
	if tenant == "" || productID == "" {
		return "", fmt.Errorf("tenant and product id are required")
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.IndexSyncDuration)

	mu := ix.lockFor(tenant, productID)
	mu.Lock()
	defer mu.Unlock()

	entry := types.NewIndexEntry(tenant, productID, fields)

	existing, err := ix.global.GetIndexEntry(ctx, tenant, productID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("failed to read index entry %s/%s: %w", tenant, productID, err)
	}

	now := ix.clock.Now()
	outcome := OutcomeCreated
	entry.CreatedAt = now
	if existing != nil {
		if entry.SameContent(existing) {
			metrics.IndexSyncs.WithLabelValues(string(OutcomeUnchanged)).Inc()
			return OutcomeUnchanged, nil
		}
		if !fields.UpdatedAt.IsZero() && fields.UpdatedAt.Before(existing.SourceUpdatedAt) {
			ix.logger.Debug().
				Str("tenant", tenant).
				Str("product_id", productID).
				Time("incoming", fields.UpdatedAt).
				Time("stored", existing.SourceUpdatedAt).
				Msg("Ignoring stale product sync")
			metrics.IndexSyncs.WithLabelValues(string(OutcomeStale)).Inc()
			return OutcomeStale, nil
		}
		outcome = OutcomeUpdated
		entry.CreatedAt = existing.CreatedAt
	}
	entry.UpdatedAt = now

	if err := ix.global.PutIndexEntry(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to write index entry %s/%s: %w", tenant, productID, err)
	}
	metrics.IndexSyncs.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}

// SyncFromProduct mirrors a full product into global_products and the index.
// Deleted products are removed from both.
func (ix *Index) SyncFromProduct(ctx context.Context, tenant string, product *types.Product, memberEmail string) (Outcome, error) {
	if product == nil {
		return "", fmt.Errorf("product is required")
	}
	if product.IsDeleted {
		if err := ix.RemoveFromIndex(ctx, tenant, product.ID); err != nil {
			return "", err
		}
		return OutcomeRemoved, nil
	}

	outcome, err := ix.SyncProduct(ctx, tenant, product.ID, types.FieldsOf(product))
	if err != nil || outcome == OutcomeStale {
		return outcome, err
	}

	gp := &types.GlobalProduct{
		Tenant:      tenant,
		MemberEmail: memberEmail,
		Product:     product.Clone(),
		SyncedAt:    ix.clock.Now(),
	}
	if err := ix.global.PutGlobalProduct(ctx, gp); err != nil {
		return outcome, fmt.Errorf("failed to write global product %s/%s: %w", tenant, product.ID, err)
	}
	return outcome, nil
}

// RemoveFromIndex deletes the entry and its global product. Removing an
// absent entry is a no-op.
func (ix *Index) RemoveFromIndex(ctx context.Context, tenant, productID string) error {
	mu := ix.lockFor(tenant, productID)
	mu.Lock()
	defer mu.Unlock()

	existed, err := ix.global.DeleteIndexEntry(ctx, tenant, productID)
	if err != nil {
		return fmt.Errorf("failed to delete index entry %s/%s: %w", tenant, productID, err)
	}
	if err := ix.global.DeleteGlobalProduct(ctx, tenant, productID); err != nil {
		return fmt.Errorf("failed to delete global product %s/%s: %w", tenant, productID, err)
	}
	if existed {
		metrics.IndexSyncs.WithLabelValues(string(OutcomeRemoved)).Inc()
		ix.logger.Debug().Str("tenant", tenant).Str("product_id", productID).Msg("Removed product from index")
	}
	return nil
}

// MigrateWarehouse points every stored product of a country at a new
// warehouse and returns the number of index entries changed. Tenant product
// records are updated too so a later resync keeps the new warehouse; those
// updates are best effort.
func (ix *Index) MigrateWarehouse(ctx context.Context, countryCode, warehouseID, warehouseName string) (int, error) {
	if countryCode == "" || warehouseID == "" {
		return 0, fmt.Errorf("country code and warehouse id are required")
	}

	stored := true
	entries, err := ix.global.ListIndexEntries(ctx, types.IndexFilter{CountryCode: countryCode, InFPWarehouse: &stored})
	if err != nil {
		return 0, fmt.Errorf("failed to list entries for country %s: %w", countryCode, err)
	}

	n, err := ix.global.RewriteWarehouse(ctx, countryCode, warehouseID, warehouseName, ix.clock.Now())
	if err != nil {
		return n, fmt.Errorf("failed to migrate warehouse for country %s: %w", countryCode, err)
	}
	metrics.WarehouseMigrations.Add(float64(n))

	ix.logger.Info().
		Str("country", countryCode).
		Str("warehouse_id", warehouseID).
		Int("updated", n).
		Msg("Migrated warehouse")

	if ix.tenants == nil {
		return n, nil
	}
	for _, e := range entries {
		if e.WarehouseID == warehouseID && e.WarehouseName == warehouseName {
			continue
		}
		if err := ix.repointTenantProduct(ctx, e.Tenant, e.ProductID, warehouseID, warehouseName); err != nil {
			ix.logger.Warn().Err(err).
				Str("tenant", e.Tenant).
				Str("product_id", e.ProductID).
				Msg("Index migrated but tenant product kept old warehouse")
		}
	}
	return n, nil
}

func (ix *Index) repointTenantProduct(ctx context.Context, tenant, productID, warehouseID, warehouseName string) error {
	store, err := ix.tenants.Get(ctx, tenant)
	if err != nil {
		return err
	}

	repoint := func(p *types.Product) bool {
		if p.FPWarehouse == nil {
			return false
		}
		p.FPWarehouse.WarehouseID = warehouseID
		p.FPWarehouse.WarehouseName = warehouseName
		return true
	}

	p, err := store.GetProduct(ctx, productID)
	if err == nil {
		if repoint(p) {
			return store.PutProduct(ctx, p)
		}
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	m, err := store.FindMemberByProduct(ctx, productID)
	if err != nil {
		return err
	}
	if embedded, _ := m.Product(productID); embedded != nil && repoint(embedded) {
		return store.PutMember(ctx, m)
	}
	return nil
}

// GetWarehouseMetrics aggregates products stored in one warehouse. A
// warehouse with no stored products yields all zeros.
func (ix *Index) GetWarehouseMetrics(ctx context.Context, warehouseID string) (types.PlacementMetrics, error) {
	stored := true
	entries, err := ix.global.ListIndexEntries(ctx, types.IndexFilter{WarehouseID: warehouseID, InFPWarehouse: &stored})
	if err != nil {
		return types.PlacementMetrics{}, fmt.Errorf("failed to list entries for warehouse %s: %w", warehouseID, err)
	}
	m, _ := aggregate(entries)
	return m, nil
}

// GetCountryMetrics aggregates products stored in any warehouse of a country
func (ix *Index) GetCountryMetrics(ctx context.Context, countryCode string) (types.PlacementMetrics, error) {
	stored := true
	entries, err := ix.global.ListIndexEntries(ctx, types.IndexFilter{CountryCode: countryCode, InFPWarehouse: &stored})
	if err != nil {
		return types.PlacementMetrics{}, fmt.Errorf("failed to list entries for country %s: %w", countryCode, err)
	}
	m, _ := aggregate(entries)
	return m, nil
}

// aggregate counts entries overall and per tenant. Tenants are sorted by name.
func aggregate(entries []*types.IndexEntry) (types.PlacementMetrics, []types.TenantMetrics) {
	var m types.PlacementMetrics
	perTenant := make(map[string]*types.TenantMetrics)

	for _, e := range entries {
		tm, ok := perTenant[e.Tenant]
		if !ok {
			tm = &types.TenantMetrics{Tenant: e.Tenant}
			perTenant[e.Tenant] = tm
		}
		m.Total++
		tm.Total++
		if e.IsComputer {
			m.Computers++
			tm.Computers++
		} else {
			m.NonComputers++
			tm.NonComputers++
		}
	}
	m.DistinctTenants = len(perTenant)

	tenants := make([]types.TenantMetrics, 0, len(perTenant))
	for _, tm := range perTenant {
		tenants = append(tenants, *tm)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Tenant < tenants[j].Tenant })
	return m, tenants
}

// CountEntries returns the size of products_index
func (ix *Index) CountEntries(ctx context.Context) (int, error) {
	return ix.global.CountEntries(ctx)
}

// ResyncReport summarizes one tenant resync
type ResyncReport struct {
	Tenant    string `json:"tenant"`
	Scanned   int    `json:"scanned"`
	Changed   int    `json:"changed"`
	Unchanged int    `json:"unchanged"`
	Stale     int    `json:"stale"`
	Removed   int    `json:"removed"`
	Failed    int    `json:"failed"`
}

// ResyncTenant re-reads every product of a tenant, standalone and member
// embedded, syncs each one and removes index entries whose product is gone
func (ix *Index) ResyncTenant(ctx context.Context, tenant string) (ResyncReport, error) {
	report := ResyncReport{Tenant: tenant}
	if ix.tenants == nil {
		return report, fmt.Errorf("index has no tenant source")
	}
	logger := log.WithTenant(ix.logger, tenant)

	store, err := ix.tenants.Get(ctx, tenant)
	if err != nil {
		return report, err
	}

	products, err := store.ListProducts(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list products: %w", err)
	}
	members, err := store.ListMembers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list members: %w", err)
	}

	var errs error
	live := make(map[string]bool)
	syncOne := func(p *types.Product, memberEmail string) {
		report.Scanned++
		outcome, err := ix.SyncFromProduct(ctx, tenant, p, memberEmail)
		if err != nil {
			report.Failed++
			errs = multierr.Append(errs, err)
			return
		}
		switch outcome {
		case OutcomeCreated, OutcomeUpdated:
			report.Changed++
		case OutcomeUnchanged:
			report.Unchanged++
		case OutcomeStale:
			report.Stale++
		case OutcomeRemoved:
			report.Removed++
			return
		}
		live[p.ID] = true
	}

	for _, p := range products {
		syncOne(p, "")
	}
	for _, m := range members {
		if m.IsDeleted {
			continue
		}
		for _, p := range m.Products {
			if p != nil {
				syncOne(p, m.Email)
			}
		}
	}

	entries, err := ix.global.ListIndexEntries(ctx, types.IndexFilter{Tenant: tenant})
	if err != nil {
		return report, multierr.Append(errs, fmt.Errorf("failed to list index entries: %w", err))
	}
	for _, e := range entries {
		if live[e.ProductID] {
			continue
		}
		if err := ix.RemoveFromIndex(ctx, tenant, e.ProductID); err != nil {
			report.Failed++
			errs = multierr.Append(errs, err)
			continue
		}
		report.Removed++
	}

	logger.Info().
		Int("scanned", report.Scanned).
		Int("changed", report.Changed).
		Int("removed", report.Removed).
		Int("failed", report.Failed).
		Msg("Resynced tenant")
	return report, errs
}

// RefreshWarehouseMetrics recomputes the warehouse_metrics snapshot of every
// warehouse holding stored products, and zeroes the snapshot of any known
// warehouse that no longer holds any. It returns how many were written.
func (ix *Index) RefreshWarehouseMetrics(ctx context.Context) (int, error) {
	stored := true
	entries, err := ix.global.ListIndexEntries(ctx, types.IndexFilter{InFPWarehouse: &stored})
	if err != nil {
		return 0, fmt.Errorf("failed to list stored entries: %w", err)
	}

	snapshots := make(map[string]*types.WarehouseMetricsSnapshot)
	byWarehouse := make(map[string][]*types.IndexEntry)
	for _, e := range entries {
		byWarehouse[e.WarehouseID] = append(byWarehouse[e.WarehouseID], e)
	}

	now := ix.clock.Now()
	for id, group := range byWarehouse {
		m, tenants := aggregate(group)
		snapshots[id] = &types.WarehouseMetricsSnapshot{
			WarehouseID:   id,
			WarehouseName: group[0].WarehouseName,
			CountryCode:   group[0].WarehouseCountryCode,
			Metrics:       m,
			Tenants:       tenants,
			ComputedAt:    now,
		}
	}

	empty := func(id, name, country string) {
		if _, ok := snapshots[id]; ok || id == "" {
			return
		}
		snapshots[id] = &types.WarehouseMetricsSnapshot{
			WarehouseID:   id,
			WarehouseName: name,
			CountryCode:   country,
			Tenants:       []types.TenantMetrics{},
			ComputedAt:    now,
		}
	}

	previous, err := ix.global.ListWarehouseMetrics(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list warehouse metrics: %w", err)
	}
	for _, snap := range previous {
		empty(snap.WarehouseID, snap.WarehouseName, snap.CountryCode)
	}
	warehouses, err := ix.global.ListWarehouses(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list warehouses: %w", err)
	}
	for _, w := range warehouses {
		empty(w.ID, w.Name, w.CountryCode)
	}

	written := 0
	var errs error
	for id, snapshot := range snapshots {
		if err := ix.global.PutWarehouseMetrics(ctx, snapshot); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to write metrics for warehouse %s: %w", id, err))
			continue
		}
		written++
	}
	return written, errs
}
