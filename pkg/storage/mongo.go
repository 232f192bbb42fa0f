package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/stockroom/pkg/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDialer hands out tenant handles backed by one shared MongoDB client.
// Each logical database maps to a MongoDB database of the same name.
type MongoDialer struct {
	client *mongo.Client
}

// NewMongoDialer connects to uri and verifies the server is reachable
func NewMongoDialer(ctx context.Context, uri string) (*MongoDialer, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return &MongoDialer{client: client}, nil
}

// Client returns the underlying client
func (d *MongoDialer) Client() *mongo.Client {
	return d.client
}

// Open binds a handle to database, checking that it answers a ping
func (d *MongoDialer) Open(ctx context.Context, database string) (TenantStore, error) {
	db := d.client.Database(database)
	if err := db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", database, err)
	}
	return &MongoTenantStore{db: db}, nil
}

// Close disconnects the shared client
func (d *MongoDialer) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// findOne decodes the single document matching filter into a new T
func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any, kind, key string) (*T, error) {
	var v T
	err := coll.FindOne(ctx, filter).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", kind, key, err)
	}
	return &v, nil
}

// findAll decodes every document matching filter
func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any) ([]*T, error) {
	cur, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []*T
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// upsertByID replaces the document with the given _id, inserting it if absent
func upsertByID(ctx context.Context, coll *mongo.Collection, id string, doc any) error {
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

// shipmentStatusFilter selects shipments in any of statuses
func shipmentStatusFilter(statuses []types.ShipmentStatus) bson.M {
	if len(statuses) == 0 {
		return bson.M{}
	}
	in := make(bson.A, 0, len(statuses))
	for _, st := range statuses {
		in = append(in, string(st))
	}
	return bson.M{"status": bson.M{"$in": in}}
}

// MongoTenantStore implements TenantStore on a MongoDB database
type MongoTenantStore struct {
	db *mongo.Database
}

// Database returns the logical database name
func (s *MongoTenantStore) Database() string {
	return s.db.Name()
}

// Close is a no-op: the client is shared by every tenant handle
func (s *MongoTenantStore) Close() error {
	return nil
}

func (s *MongoTenantStore) products() *mongo.Collection  { return s.db.Collection("products") }
func (s *MongoTenantStore) members() *mongo.Collection   { return s.db.Collection("members") }
func (s *MongoTenantStore) offices() *mongo.Collection   { return s.db.Collection("offices") }
func (s *MongoTenantStore) shipments() *mongo.Collection { return s.db.Collection("shipments") }

func (s *MongoTenantStore) GetProduct(ctx context.Context, id string) (*types.Product, error) {
	return findOne[types.Product](ctx, s.products(), bson.M{"_id": id}, "product", id)
}

func (s *MongoTenantStore) ListProducts(ctx context.Context) ([]*types.Product, error) {
	return findAll[types.Product](ctx, s.products(), bson.M{})
}

func (s *MongoTenantStore) PutProduct(ctx context.Context, product *types.Product) error {
	return upsertByID(ctx, s.products(), product.ID, product)
}

func (s *MongoTenantStore) DeleteProduct(ctx context.Context, id string) error {
	_, err := s.products().DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoTenantStore) GetMember(ctx context.Context, id string) (*types.Member, error) {
	return findOne[types.Member](ctx, s.members(), bson.M{"_id": id}, "member", id)
}

func (s *MongoTenantStore) GetMemberByEmail(ctx context.Context, email string) (*types.Member, error) {
	return findOne[types.Member](ctx, s.members(), bson.M{"email": email}, "member", email)
}

func (s *MongoTenantStore) FindMemberByProduct(ctx context.Context, productID string) (*types.Member, error) {
	return findOne[types.Member](ctx, s.members(), bson.M{"products._id": productID}, "member", "holding product "+productID)
}

func (s *MongoTenantStore) ListMembers(ctx context.Context) ([]*types.Member, error) {
	return findAll[types.Member](ctx, s.members(), bson.M{})
}

func (s *MongoTenantStore) PutMember(ctx context.Context, member *types.Member) error {
	return upsertByID(ctx, s.members(), member.ID, member)
}

func (s *MongoTenantStore) GetOffice(ctx context.Context, id string) (*types.Office, error) {
	return findOne[types.Office](ctx, s.offices(), bson.M{"_id": id}, "office", id)
}

func (s *MongoTenantStore) ListOffices(ctx context.Context) ([]*types.Office, error) {
	return findAll[types.Office](ctx, s.offices(), bson.M{})
}

func (s *MongoTenantStore) PutOffice(ctx context.Context, office *types.Office) error {
	return upsertByID(ctx, s.offices(), office.ID, office)
}

func (s *MongoTenantStore) GetShipment(ctx context.Context, id string) (*types.Shipment, error) {
	return findOne[types.Shipment](ctx, s.shipments(), bson.M{"_id": id}, "shipment", id)
}

func (s *MongoTenantStore) ListShipments(ctx context.Context, statuses ...types.ShipmentStatus) ([]*types.Shipment, error) {
	return findAll[types.Shipment](ctx, s.shipments(), shipmentStatusFilter(statuses))
}

func (s *MongoTenantStore) PutShipment(ctx context.Context, shipment *types.Shipment) error {
	return upsertByID(ctx, s.shipments(), shipment.ID, shipment)
}
