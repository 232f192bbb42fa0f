package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/stockroom/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Global bucket names
	bucketGlobalProducts   = []byte("global_products")
	bucketProductsIndex    = []byte("products_index")
	bucketWarehouseMetrics = []byte("warehouse_metrics")
	bucketTenants          = []byte("tenants")
	bucketWarehouses       = []byte("warehouses")
)

// indexKey builds the unique composite key (tenant, productID)
func indexKey(tenant, productID string) string {
	return tenant + "\x00" + productID
}

// BoltGlobalStore implements GlobalStore using BoltDB
type BoltGlobalStore struct {
	db *bolt.DB
}

// NewBoltGlobalStore opens <dataDir>/global.db
func NewBoltGlobalStore(dataDir string, timeout time.Duration) (*BoltGlobalStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := openBolt(filepath.Join(dataDir, GlobalDatabase+".db"), timeout,
		bucketGlobalProducts,
		bucketProductsIndex,
		bucketWarehouseMetrics,
		bucketTenants,
		bucketWarehouses,
	)
	if err != nil {
		return nil, err
	}
	return &BoltGlobalStore{db: db}, nil
}

// Close closes the database
func (s *BoltGlobalStore) Close() error {
	return s.db.Close()
}

// --- products_index ---

func (s *BoltGlobalStore) GetIndexEntry(ctx context.Context, tenant, productID string) (*types.IndexEntry, error) {
	var entry *types.IndexEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		entry, err = getJSON[types.IndexEntry](tx.Bucket(bucketProductsIndex), indexKey(tenant, productID), "index entry")
		return err
	})
	return entry, err
}

// PutIndexEntry inserts or replaces the entry for (Tenant, ProductID)
func (s *BoltGlobalStore) PutIndexEntry(ctx context.Context, entry *types.IndexEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketProductsIndex), indexKey(entry.Tenant, entry.ProductID), entry)
	})
}

func (s *BoltGlobalStore) DeleteIndexEntry(ctx context.Context, tenant, productID string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProductsIndex)
		key := []byte(indexKey(tenant, productID))
		existed = b.Get(key) != nil
		if !existed {
			return nil
		}
		return b.Delete(key)
	})
	return existed, err
}

func (s *BoltGlobalStore) ListIndexEntries(ctx context.Context, filter types.IndexFilter) ([]*types.IndexEntry, error) {
	var entries []*types.IndexEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProductsIndex)
		if filter.Tenant == "" {
			var err error
			entries, err = listJSON(b, filter.Matches)
			return err
		}

		// Keys are tenant-prefixed, so a tenant filter is a range scan
		prefix := []byte(filter.Tenant + "\x00")
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var entry types.IndexEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if filter.Matches(&entry) {
				entries = append(entries, &entry)
			}
		}
		return nil
	})
	return entries, err
}

func (s *BoltGlobalStore) CountEntries(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketProductsIndex).Stats().KeyN
		return nil
	})
	return n, err
}

// RewriteWarehouse updates index entries and their global product mirrors in
// one transaction
func (s *BoltGlobalStore) RewriteWarehouse(ctx context.Context, countryCode, warehouseID, warehouseName string, at time.Time) (int, error) {
	var changed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketProductsIndex)
		products := tx.Bucket(bucketGlobalProducts)

		entries, err := listJSON(index, func(e *types.IndexEntry) bool {
			return e.InFPWarehouse && e.WarehouseCountryCode == countryCode &&
				(e.WarehouseID != warehouseID || e.WarehouseName != warehouseName)
		})
		if err != nil {
			return err
		}

		for _, e := range entries {
			key := indexKey(e.Tenant, e.ProductID)
			e.WarehouseID = warehouseID
			e.WarehouseName = warehouseName
			e.UpdatedAt = at
			if err := putJSON(index, key, e); err != nil {
				return err
			}

			gp, err := getJSON[types.GlobalProduct](products, key, "global product")
			if err != nil {
				continue
			}
			if gp.Product != nil && gp.Product.FPWarehouse != nil {
				gp.Product.FPWarehouse.WarehouseID = warehouseID
				gp.Product.FPWarehouse.WarehouseName = warehouseName
				gp.SyncedAt = at
				if err := putJSON(products, key, gp); err != nil {
					return err
				}
			}
		}
		changed = len(entries)
		return nil
	})
	return changed, err
}

// --- global_products ---

func (s *BoltGlobalStore) GetGlobalProduct(ctx context.Context, tenant, productID string) (*types.GlobalProduct, error) {
	var gp *types.GlobalProduct
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		gp, err = getJSON[types.GlobalProduct](tx.Bucket(bucketGlobalProducts), indexKey(tenant, productID), "global product")
		return err
	})
	return gp, err
}

func (s *BoltGlobalStore) PutGlobalProduct(ctx context.Context, product *types.GlobalProduct) error {
	if product.Product == nil {
		return fmt.Errorf("global product for tenant %s has no product", product.Tenant)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketGlobalProducts), indexKey(product.Tenant, product.Product.ID), product)
	})
}

func (s *BoltGlobalStore) DeleteGlobalProduct(ctx context.Context, tenant, productID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGlobalProducts).Delete([]byte(indexKey(tenant, productID)))
	})
}

// --- warehouse_metrics ---

func (s *BoltGlobalStore) GetWarehouseMetrics(ctx context.Context, warehouseID string) (*types.WarehouseMetricsSnapshot, error) {
	var snap *types.WarehouseMetricsSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		snap, err = getJSON[types.WarehouseMetricsSnapshot](tx.Bucket(bucketWarehouseMetrics), warehouseID, "warehouse metrics")
		return err
	})
	return snap, err
}

func (s *BoltGlobalStore) PutWarehouseMetrics(ctx context.Context, snapshot *types.WarehouseMetricsSnapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketWarehouseMetrics), snapshot.WarehouseID, snapshot)
	})
}

func (s *BoltGlobalStore) ListWarehouseMetrics(ctx context.Context) ([]*types.WarehouseMetricsSnapshot, error) {
	var snapshots []*types.WarehouseMetricsSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		snapshots, err = listJSON[types.WarehouseMetricsSnapshot](tx.Bucket(bucketWarehouseMetrics), nil)
		return err
	})
	return snapshots, err
}

// --- tenants ---

func (s *BoltGlobalStore) GetTenant(ctx context.Context, name string) (*types.Tenant, error) {
	var tenant *types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		tenant, err = getJSON[types.Tenant](tx.Bucket(bucketTenants), name, "tenant")
		return err
	})
	return tenant, err
}

func (s *BoltGlobalStore) ListTenants(ctx context.Context) ([]*types.Tenant, error) {
	var tenants []*types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		tenants, err = listJSON[types.Tenant](tx.Bucket(bucketTenants), nil)
		return err
	})
	return tenants, err
}

func (s *BoltGlobalStore) PutTenant(ctx context.Context, tenant *types.Tenant) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketTenants), tenant.Name, tenant)
	})
}

// --- warehouses ---

func (s *BoltGlobalStore) GetWarehouse(ctx context.Context, id string) (*types.Warehouse, error) {
	var wh *types.Warehouse
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		wh, err = getJSON[types.Warehouse](tx.Bucket(bucketWarehouses), id, "warehouse")
		return err
	})
	return wh, err
}

func (s *BoltGlobalStore) ListWarehouses(ctx context.Context) ([]*types.Warehouse, error) {
	var warehouses []*types.Warehouse
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		warehouses, err = listJSON[types.Warehouse](tx.Bucket(bucketWarehouses), nil)
		return err
	})
	return warehouses, err
}

func (s *BoltGlobalStore) PutWarehouse(ctx context.Context, warehouse *types.Warehouse) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketWarehouses), warehouse.ID, warehouse)
	})
}
