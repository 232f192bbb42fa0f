package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/stockroom/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Tenant bucket names
	bucketProducts  = []byte("products")
	bucketMembers   = []byte("members")
	bucketShipments = []byte("shipments")
	bucketOffices   = []byte("offices")
)

// BoltDialer opens one BoltDB file per logical database under Dir
type BoltDialer struct {
	Dir string
	// Timeout bounds how long Open waits for the file lock
	Timeout time.Duration
}

// NewBoltDialer creates the data directory and returns a dialer for it
func NewBoltDialer(dir string, timeout time.Duration) (*BoltDialer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &BoltDialer{Dir: dir, Timeout: timeout}, nil
}

// ErrPathOutsideDir is returned when a database name would place its file
// outside the data directory
var ErrPathOutsideDir = errors.New("database path escapes data directory")

// Open opens (creating if needed) the database file for database
func (d *BoltDialer) Open(ctx context.Context, database string) (TenantStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.path(database)
	if err != nil {
		return nil, err
	}
	return OpenBoltTenantStore(path, database, d.Timeout)
}

// path returns the file for database, which must sit directly in Dir
func (d *BoltDialer) path(database string) (string, error) {
	dir := filepath.Clean(d.Dir)
	path := filepath.Join(dir, database+".db")
	if filepath.Dir(path) != dir {
		return "", fmt.Errorf("database %q: %w", database, ErrPathOutsideDir)
	}
	return path, nil
}

// openBolt opens a BoltDB file and makes sure the given buckets exist
func openBolt(path string, timeout time.Duration, buckets ...[]byte) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// getJSON decodes the value at key into a new T, or returns ErrNotFound
func getJSON[T any](b *bolt.Bucket, key, kind string) (*T, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return nil, fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", kind, key, err)
	}
	return &v, nil
}

// listJSON decodes every value of a bucket that passes keep
func listJSON[T any](b *bolt.Bucket, keep func(*T) bool) ([]*T, error) {
	var out []*T
	err := b.ForEach(func(k, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		if keep == nil || keep(&item) {
			out = append(out, &item)
		}
		return nil
	})
	return out, err
}

// BoltTenantStore implements TenantStore on a single BoltDB file
type BoltTenantStore struct {
	db       *bolt.DB
	database string
}

// OpenBoltTenantStore opens the tenant database file at path
func OpenBoltTenantStore(path, database string, timeout time.Duration) (*BoltTenantStore, error) {
	db, err := openBolt(path, timeout, bucketProducts, bucketMembers, bucketShipments, bucketOffices)
	if err != nil {
		return nil, err
	}
	return &BoltTenantStore{db: db, database: database}, nil
}

// Database returns the logical database name
func (s *BoltTenantStore) Database() string {
	return s.database
}

// Close closes the database
func (s *BoltTenantStore) Close() error {
	return s.db.Close()
}

// Product operations
func (s *BoltTenantStore) GetProduct(ctx context.Context, id string) (*types.Product, error) {
	var product *types.Product
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		product, err = getJSON[types.Product](tx.Bucket(bucketProducts), id, "product")
		return err
	})
	return product, err
}

func (s *BoltTenantStore) ListProducts(ctx context.Context) ([]*types.Product, error) {
	var products []*types.Product
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		products, err = listJSON[types.Product](tx.Bucket(bucketProducts), nil)
		return err
	})
	return products, err
}

func (s *BoltTenantStore) PutProduct(ctx context.Context, product *types.Product) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketProducts), product.ID, product)
	})
}

func (s *BoltTenantStore) DeleteProduct(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProducts).Delete([]byte(id))
	})
}

// Member operations
func (s *BoltTenantStore) GetMember(ctx context.Context, id string) (*types.Member, error) {
	var member *types.Member
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		member, err = getJSON[types.Member](tx.Bucket(bucketMembers), id, "member")
		return err
	})
	return member, err
}

func (s *BoltTenantStore) GetMemberByEmail(ctx context.Context, email string) (*types.Member, error) {
	return s.findMember(func(m *types.Member) bool { return m.Email == email }, email)
}

func (s *BoltTenantStore) FindMemberByProduct(ctx context.Context, productID string) (*types.Member, error) {
	return s.findMember(func(m *types.Member) bool {
		p, _ := m.Product(productID)
		return p != nil
	}, "holding product "+productID)
}

func (s *BoltTenantStore) findMember(match func(*types.Member) bool, what string) (*types.Member, error) {
	var found []*types.Member
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = listJSON[types.Member](tx.Bucket(bucketMembers), match)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("member %s: %w", what, ErrNotFound)
	}
	return found[0], nil
}

func (s *BoltTenantStore) ListMembers(ctx context.Context) ([]*types.Member, error) {
	var members []*types.Member
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		members, err = listJSON[types.Member](tx.Bucket(bucketMembers), nil)
		return err
	})
	return members, err
}

func (s *BoltTenantStore) PutMember(ctx context.Context, member *types.Member) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketMembers), member.ID, member)
	})
}

// Office operations
func (s *BoltTenantStore) GetOffice(ctx context.Context, id string) (*types.Office, error) {
	var office *types.Office
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		office, err = getJSON[types.Office](tx.Bucket(bucketOffices), id, "office")
		return err
	})
	return office, err
}

func (s *BoltTenantStore) ListOffices(ctx context.Context) ([]*types.Office, error) {
	var offices []*types.Office
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		offices, err = listJSON[types.Office](tx.Bucket(bucketOffices), nil)
		return err
	})
	return offices, err
}

func (s *BoltTenantStore) PutOffice(ctx context.Context, office *types.Office) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketOffices), office.ID, office)
	})
}

// Shipment operations
func (s *BoltTenantStore) GetShipment(ctx context.Context, id string) (*types.Shipment, error) {
	var shipment *types.Shipment
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		shipment, err = getJSON[types.Shipment](tx.Bucket(bucketShipments), id, "shipment")
		return err
	})
	return shipment, err
}

func (s *BoltTenantStore) ListShipments(ctx context.Context, statuses ...types.ShipmentStatus) ([]*types.Shipment, error) {
	keep := func(sh *types.Shipment) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, st := range statuses {
			if sh.Status == st {
				return true
			}
		}
		return false
	}

	var shipments []*types.Shipment
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		shipments, err = listJSON(tx.Bucket(bucketShipments), keep)
		return err
	})
	return shipments, err
}

func (s *BoltTenantStore) PutShipment(ctx context.Context, shipment *types.Shipment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketShipments), shipment.ID, shipment)
	})
}
