package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/stockroom/pkg/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoGlobalStore implements GlobalStore on the shared MongoDB database
type MongoGlobalStore struct {
	db *mongo.Database
}

// NewMongoGlobalStore binds to the global database and creates the unique
// (tenantId, productId) indexes
func NewMongoGlobalStore(ctx context.Context, client *mongo.Client, database string) (*MongoGlobalStore, error) {
	s := &MongoGlobalStore{db: client.Database(database)}

	_, err := s.index().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "productId", Value: 1}},
		Options: options.Index().SetName("uniq_tenant_product").SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create products_index index: %w", err)
	}

	_, err = s.index().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "warehouseId", Value: 1}, {Key: "inFpWarehouse", Value: 1}},
		Options: options.Index().SetName("idx_warehouse_in_fp"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create products_index index: %w", err)
	}

	_, err = s.globalProducts().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "product._id", Value: 1}},
		Options: options.Index().SetName("uniq_tenant_product").SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create global_products index: %w", err)
	}

	return s, nil
}

// Close is a no-op: the client is owned by the dialer
func (s *MongoGlobalStore) Close() error {
	return nil
}

func (s *MongoGlobalStore) index() *mongo.Collection          { return s.db.Collection("products_index") }
func (s *MongoGlobalStore) globalProducts() *mongo.Collection { return s.db.Collection("global_products") }
func (s *MongoGlobalStore) metrics() *mongo.Collection        { return s.db.Collection("warehouse_metrics") }
func (s *MongoGlobalStore) tenants() *mongo.Collection        { return s.db.Collection("tenants") }
func (s *MongoGlobalStore) warehouses() *mongo.Collection     { return s.db.Collection("warehouses") }

func indexKeyFilter(tenant, productID string) bson.M {
	return bson.M{"tenantId": tenant, "productId": productID}
}

// indexFilterDoc translates an IndexFilter into a query document
func indexFilterDoc(f types.IndexFilter) bson.M {
	doc := bson.M{}
	if f.Tenant != "" {
		doc["tenantId"] = f.Tenant
	}
	if f.WarehouseID != "" {
		doc["warehouseId"] = f.WarehouseID
	}
	if f.CountryCode != "" {
		doc["warehouseCountryCode"] = f.CountryCode
	}
	if f.InFPWarehouse != nil {
		doc["inFpWarehouse"] = *f.InFPWarehouse
	}
	return doc
}

// rewriteWarehouseFilter selects stored entries of a country not yet pointing
// at the target warehouse
func rewriteWarehouseFilter(countryCode, warehouseID, warehouseName string) bson.M {
	return bson.M{
		"inFpWarehouse":        true,
		"warehouseCountryCode": countryCode,
		"$or": bson.A{
			bson.M{"warehouseId": bson.M{"$ne": warehouseID}},
			bson.M{"warehouseName": bson.M{"$ne": warehouseName}},
		},
	}
}

func (s *MongoGlobalStore) GetIndexEntry(ctx context.Context, tenant, productID string) (*types.IndexEntry, error) {
	return findOne[types.IndexEntry](ctx, s.index(), indexKeyFilter(tenant, productID), "index entry", tenant+"/"+productID)
}

func (s *MongoGlobalStore) PutIndexEntry(ctx context.Context, entry *types.IndexEntry) error {
	_, err := s.index().ReplaceOne(ctx, indexKeyFilter(entry.Tenant, entry.ProductID), entry,
		options.Replace().SetUpsert(true))
	return err
}

func (s *MongoGlobalStore) DeleteIndexEntry(ctx context.Context, tenant, productID string) (bool, error) {
	res, err := s.index().DeleteOne(ctx, indexKeyFilter(tenant, productID))
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoGlobalStore) ListIndexEntries(ctx context.Context, filter types.IndexFilter) ([]*types.IndexEntry, error) {
	return findAll[types.IndexEntry](ctx, s.index(), indexFilterDoc(filter))
}

func (s *MongoGlobalStore) CountEntries(ctx context.Context) (int, error) {
	n, err := s.index().EstimatedDocumentCount(ctx)
	return int(n), err
}

func (s *MongoGlobalStore) RewriteWarehouse(ctx context.Context, countryCode, warehouseID, warehouseName string, at time.Time) (int, error) {
	res, err := s.index().UpdateMany(ctx,
		rewriteWarehouseFilter(countryCode, warehouseID, warehouseName),
		bson.M{"$set": bson.M{
			"warehouseId":   warehouseID,
			"warehouseName": warehouseName,
			"updatedAt":     at,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite index entries: %w", err)
	}

	_, err = s.globalProducts().UpdateMany(ctx,
		bson.M{
			"product.location":                         types.LocationFPWarehouse,
			"product.fpWarehouse.status":               types.WarehouseStatusStored,
			"product.fpWarehouse.warehouseCountryCode": countryCode,
		},
		bson.M{"$set": bson.M{
			"product.fpWarehouse.warehouseId":   warehouseID,
			"product.fpWarehouse.warehouseName": warehouseName,
			"syncedAt":                          at,
		}},
	)
	if err != nil {
		return int(res.ModifiedCount), fmt.Errorf("failed to rewrite global products: %w", err)
	}
	return int(res.ModifiedCount), nil
}

func (s *MongoGlobalStore) GetGlobalProduct(ctx context.Context, tenant, productID string) (*types.GlobalProduct, error) {
	return findOne[types.GlobalProduct](ctx, s.globalProducts(),
		bson.M{"tenantId": tenant, "product._id": productID}, "global product", tenant+"/"+productID)
}

func (s *MongoGlobalStore) PutGlobalProduct(ctx context.Context, product *types.GlobalProduct) error {
	if product.Product == nil {
		return fmt.Errorf("global product for tenant %s has no product", product.Tenant)
	}
	_, err := s.globalProducts().ReplaceOne(ctx,
		bson.M{"tenantId": product.Tenant, "product._id": product.Product.ID}, product,
		options.Replace().SetUpsert(true))
	return err
}

func (s *MongoGlobalStore) DeleteGlobalProduct(ctx context.Context, tenant, productID string) error {
	_, err := s.globalProducts().DeleteOne(ctx, bson.M{"tenantId": tenant, "product._id": productID})
	return err
}

func (s *MongoGlobalStore) GetWarehouseMetrics(ctx context.Context, warehouseID string) (*types.WarehouseMetricsSnapshot, error) {
	return findOne[types.WarehouseMetricsSnapshot](ctx, s.metrics(), bson.M{"_id": warehouseID}, "warehouse metrics", warehouseID)
}

func (s *MongoGlobalStore) PutWarehouseMetrics(ctx context.Context, snapshot *types.WarehouseMetricsSnapshot) error {
	return upsertByID(ctx, s.metrics(), snapshot.WarehouseID, snapshot)
}

func (s *MongoGlobalStore) ListWarehouseMetrics(ctx context.Context) ([]*types.WarehouseMetricsSnapshot, error) {
	return findAll[types.WarehouseMetricsSnapshot](ctx, s.metrics(), bson.M{})
}

func (s *MongoGlobalStore) GetTenant(ctx context.Context, name string) (*types.Tenant, error) {
	return findOne[types.Tenant](ctx, s.tenants(), bson.M{"_id": name}, "tenant", name)
}

func (s *MongoGlobalStore) ListTenants(ctx context.Context) ([]*types.Tenant, error) {
	return findAll[types.Tenant](ctx, s.tenants(), bson.M{})
}

func (s *MongoGlobalStore) PutTenant(ctx context.Context, tenant *types.Tenant) error {
	return upsertByID(ctx, s.tenants(), tenant.Name, tenant)
}

func (s *MongoGlobalStore) GetWarehouse(ctx context.Context, id string) (*types.Warehouse, error) {
	return findOne[types.Warehouse](ctx, s.warehouses(), bson.M{"_id": id}, "warehouse", id)
}

func (s *MongoGlobalStore) ListWarehouses(ctx context.Context) ([]*types.Warehouse, error) {
	return findAll[types.Warehouse](ctx, s.warehouses(), bson.M{})
}

func (s *MongoGlobalStore) PutWarehouse(ctx context.Context, warehouse *types.Warehouse) error {
	return upsertByID(ctx, s.warehouses(), warehouse.ID, warehouse)
}
