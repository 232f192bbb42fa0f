package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/cuemby/stockroom/pkg/types"
)

// ErrNotFound is returned (wrapped) when a record does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidTenant is returned (wrapped) for tenant names that cannot name a
// database
var ErrInvalidTenant = errors.New("invalid tenant name")

var tenantNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateTenantName checks that name is non-empty and made only of letters,
// digits, '_' and '-'
func ValidateTenantName(name string) error {
	if !tenantNamePattern.MatchString(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidTenant)
	}
	return nil
}

// GlobalDatabase is the logical name of the shared database
const GlobalDatabase = "global"

// TenantDatabase returns the logical database name of a tenant
func TenantDatabase(tenant string) string {
	return "tenant_" + tenant
}

// TenantStore is an open handle to one tenant's database
type TenantStore interface {
	// Database returns the logical database name this handle is bound to
	Database() string

	// Products
	GetProduct(ctx context.Context, id string) (*types.Product, error)
	ListProducts(ctx context.Context) ([]*types.Product, error)
	PutProduct(ctx context.Context, product *types.Product) error
	DeleteProduct(ctx context.Context, id string) error

	// Members
	GetMember(ctx context.Context, id string) (*types.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (*types.Member, error)
	FindMemberByProduct(ctx context.Context, productID string) (*types.Member, error)
	ListMembers(ctx context.Context) ([]*types.Member, error)
	PutMember(ctx context.Context, member *types.Member) error

	// Offices
	GetOffice(ctx context.Context, id string) (*types.Office, error)
	ListOffices(ctx context.Context) ([]*types.Office, error)
	PutOffice(ctx context.Context, office *types.Office) error

	// Shipments
	GetShipment(ctx context.Context, id string) (*types.Shipment, error)
	// ListShipments returns shipments in any of the given statuses, or all
	// shipments when none are given
	ListShipments(ctx context.Context, statuses ...types.ShipmentStatus) ([]*types.Shipment, error)
	PutShipment(ctx context.Context, shipment *types.Shipment) error

	Close() error
}

// GlobalStore is the shared cross-tenant database
type GlobalStore interface {
	// products_index
	GetIndexEntry(ctx context.Context, tenant, productID string) (*types.IndexEntry, error)
	PutIndexEntry(ctx context.Context, entry *types.IndexEntry) error
	DeleteIndexEntry(ctx context.Context, tenant, productID string) (bool, error)
	ListIndexEntries(ctx context.Context, filter types.IndexFilter) ([]*types.IndexEntry, error)
	CountEntries(ctx context.Context) (int, error)
	// RewriteWarehouse points every stored entry of a country at a new
	// warehouse and returns the number of entries changed
	RewriteWarehouse(ctx context.Context, countryCode, warehouseID, warehouseName string, at time.Time) (int, error)

	// global_products
	GetGlobalProduct(ctx context.Context, tenant, productID string) (*types.GlobalProduct, error)
	PutGlobalProduct(ctx context.Context, product *types.GlobalProduct) error
	DeleteGlobalProduct(ctx context.Context, tenant, productID string) error

	// warehouse_metrics
	GetWarehouseMetrics(ctx context.Context, warehouseID string) (*types.WarehouseMetricsSnapshot, error)
	PutWarehouseMetrics(ctx context.Context, snapshot *types.WarehouseMetricsSnapshot) error
	ListWarehouseMetrics(ctx context.Context) ([]*types.WarehouseMetricsSnapshot, error)

	// tenants
	GetTenant(ctx context.Context, name string) (*types.Tenant, error)
	ListTenants(ctx context.Context) ([]*types.Tenant, error)
	PutTenant(ctx context.Context, tenant *types.Tenant) error

	// warehouses
	GetWarehouse(ctx context.Context, id string) (*types.Warehouse, error)
	ListWarehouses(ctx context.Context) ([]*types.Warehouse, error)
	PutWarehouse(ctx context.Context, warehouse *types.Warehouse) error

	Close() error
}

// Dialer opens tenant handles by logical database name
type Dialer interface {
	Open(ctx context.Context, database string) (TenantStore, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, database string) (TenantStore, error)

// Open calls f(ctx, database)
func (f DialerFunc) Open(ctx context.Context, database string) (TenantStore, error) {
	return f(ctx, database)
}
