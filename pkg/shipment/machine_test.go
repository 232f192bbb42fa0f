package shipment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/stockroom/pkg/index"
	"github.com/cuemby/stockroom/pkg/storage"
	"github.com/cuemby/stockroom/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenant = "acme"

type singleTenant struct {
	store storage.TenantStore
	err   error
}

func (s *singleTenant) Get(ctx context.Context, name string) (storage.TenantStore, error) {
	if s.err != nil {
		return nil, s.err
	}
	if name != tenant {
		return nil, fmt.Errorf("tenant %s: %w", name, storage.ErrNotFound)
	}
	return s.store, nil
}

// countingStore records reads so tests can assert none happened
type countingStore struct {
	storage.TenantStore
	reads int
}

func (s *countingStore) GetShipment(ctx context.Context, id string) (*types.Shipment, error) {
	s.reads++
	return s.TenantStore.GetShipment(ctx, id)
}

type failingIndexer struct{}

func (failingIndexer) SyncFromProduct(ctx context.Context, tenant string, p *types.Product, email string) (index.Outcome, error) {
	return "", errors.New("global store unavailable")
}

type fixture struct {
	m      *Machine
	store  *countingStore
	global *storage.BoltGlobalStore
	clock  *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	ts, err := storage.OpenBoltTenantStore(filepath.Join(dir, "tenant_acme.db"), "tenant_acme", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { ts.Close() })

	global, err := storage.NewBoltGlobalStore(dir, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { global.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	store := &countingStore{TenantStore: ts}
	tenants := &singleTenant{store: store}
	ix := index.New(global, tenants, mock)

	return &fixture{m: New(tenants, ix, mock), store: store, global: global, clock: mock}
}

func (f *fixture) putShipment(t *testing.T, sh *types.Shipment) {
	t.Helper()
	require.NoError(t, f.store.PutShipment(context.Background(), sh))
}

func (f *fixture) update(t *testing.T, id string, to types.ShipmentStatus) (*Result, error) {
	t.Helper()
	return f.m.UpdateStatus(context.Background(), Request{Tenant: tenant, ShipmentID: id, Status: to, UserID: "u-1"})
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to types.ShipmentStatus
		want     bool
	}{
		{types.ShipmentInPreparation, types.ShipmentOnTheWay, true},
		{types.ShipmentInPreparation, types.ShipmentReceived, true},
		{types.ShipmentInPreparation, types.ShipmentCancelled, true},
		{types.ShipmentInPreparation, types.ShipmentOnHold, true},
		{types.ShipmentOnHold, types.ShipmentCancelled, true},
		{types.ShipmentOnHold, types.ShipmentInPreparation, false},
		{types.ShipmentOnHold, types.ShipmentOnTheWay, false},
		{types.ShipmentOnTheWay, types.ShipmentReceived, true},
		{types.ShipmentOnTheWay, types.ShipmentCancelled, true},
		{types.ShipmentOnTheWay, types.ShipmentInPreparation, false},
		{types.ShipmentReceived, types.ShipmentCancelled, false},
		{types.ShipmentCancelled, types.ShipmentInPreparation, false},
		{types.ShipmentInPreparation, types.ShipmentInPreparation, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s to %s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}

	for _, s := range types.ShipmentStatuses {
		if s.Terminal() {
			assert.Empty(t, Allowed(s), "terminal status %s", s)
		}
	}
}

func TestUpdateStatus_UnknownStatusBeforeRead(t *testing.T) {
	f := newFixture(t)

	_, err := f.update(t, "s1", "Lost at sea")
	assert.ErrorIs(t, err, ErrUnknownStatus)
	assert.Zero(t, f.store.reads)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	f := newFixture(t)
	f.putShipment(t, &types.Shipment{ID: "deleted", Status: types.ShipmentInPreparation, IsDeleted: true})

	for _, id := range []string{"missing", "deleted"} {
		_, err := f.update(t, id, types.ShipmentCancelled)
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf), "shipment %s", id)
		assert.Equal(t, id, nf.ShipmentID)
	}
}

func TestUpdateStatus_TenantUnavailable(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("store down")
	f.m.tenants = &singleTenant{err: boom}

	_, err := f.update(t, "s1", types.ShipmentCancelled)
	assert.ErrorIs(t, err, boom)
}

func TestUpdateStatus_RejectedTransitions(t *testing.T) {
	tests := []struct {
		name string
		from types.ShipmentStatus
		to   types.ShipmentStatus
	}{
		{"received to cancelled", types.ShipmentReceived, types.ShipmentCancelled},
		{"on hold to in preparation", types.ShipmentOnHold, types.ShipmentInPreparation},
		{"same status", types.ShipmentOnTheWay, types.ShipmentOnTheWay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.putShipment(t, &types.Shipment{ID: "s1", Status: tt.from})

			_, err := f.update(t, "s1", tt.to)
			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.from, te.From)
			assert.Equal(t, tt.to, te.To)

			sh, err := f.store.GetShipment(context.Background(), "s1")
			require.NoError(t, err)
			assert.Equal(t, tt.from, sh.Status)
			assert.Empty(t, sh.History)
		})
	}
}

func TestUpdateStatus_OnHoldToCancelled(t *testing.T) {
	f := newFixture(t)
	f.putShipment(t, &types.Shipment{ID: "s1", Status: types.ShipmentOnHold})

	res, err := f.update(t, "s1", types.ShipmentCancelled)
	require.NoError(t, err)
	assert.Equal(t, types.ShipmentCancelled, res.Shipment.Status)
	require.Len(t, res.Shipment.History, 1)
	assert.Equal(t, types.StatusChange{
		From:   types.ShipmentOnHold,
		To:     types.ShipmentCancelled,
		UserID: "u-1",
		At:     f.clock.Now(),
	}, res.Shipment.History[0])
}

func TestUpdateStatus_OnTheWaySnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutProduct(ctx, &types.Product{
		ID: "p1", Name: "Laptop", Category: types.CategoryComputer, Location: types.LocationOurOffice,
		Status: types.ProductStatusAvailable, Attributes: []types.Attribute{{Key: "brand", Value: "Acme"}},
	}))
	require.NoError(t, f.store.PutProduct(ctx, &types.Product{
		ID: "p2", Name: "Dock", Category: "Peripherals", Location: types.LocationFPWarehouse,
		Status: types.ProductStatusAvailable,
		FPWarehouse: &types.FPWarehouseRef{
			WarehouseID: "wh-1", WarehouseCountryCode: "AR", Status: types.WarehouseStatusStored,
		},
	}))
	require.NoError(t, f.store.PutMember(ctx, &types.Member{
		ID: "m1", Email: "ada@acme.io",
		Products: []*types.Product{{ID: "p3", Name: "Phone", Location: types.LocationEmployee, Status: types.ProductStatusDelivered}},
	}))
	f.putShipment(t, &types.Shipment{ID: "s1", Status: types.ShipmentInPreparation, Products: []string{"p1", "p2", "p3"}})

	res, err := f.update(t, "s1", types.ShipmentOnTheWay)
	require.NoError(t, err)
	require.Len(t, res.Shipment.Snapshots, 3)
	assert.Equal(t, 3, res.Cascade.Succeeded)

	// Mutate the live product; the stored snapshot must not follow
	live, err := f.store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	live.Name = "Renamed"
	live.Attributes[0].Value = "Other"
	require.NoError(t, f.store.PutProduct(ctx, live))

	stored, err := f.store.GetShipment(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, stored.Snapshots, 3)
	assert.Equal(t, "Laptop", stored.Snapshots[0].Name)
	assert.Equal(t, "Acme", stored.Snapshots[0].Attributes[0].Value)
	assert.Equal(t, types.ProductStatusAvailable, stored.Snapshots[0].Status)
	assert.Equal(t, "Phone", stored.Snapshots[2].Name)

	// The warehouse product left the warehouse
	dock, err := f.store.GetProduct(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, types.WarehouseStatusInTransit, dock.FPWarehouse.Status)
	assert.Equal(t, types.ProductStatusInTransit, dock.Status)
	e, err := f.global.GetIndexEntry(ctx, tenant, "p2")
	require.NoError(t, err)
	assert.False(t, e.InFPWarehouse)
}

func TestUpdateStatus_SnapshotsNeverOverwritten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutProduct(ctx, &types.Product{ID: "p1", Name: "Current"}))
	f.putShipment(t, &types.Shipment{
		ID:        "s1",
		Status:    types.ShipmentInPreparation,
		Products:  []string{"p1"},
		Snapshots: []types.ProductSnapshot{{ID: "p1", Name: "Original"}},
	})

	res, err := f.update(t, "s1", types.ShipmentOnTheWay)
	require.NoError(t, err)
	require.Len(t, res.Shipment.Snapshots, 1)
	assert.Equal(t, "Original", res.Shipment.Snapshots[0].Name)
}

func TestUpdateStatus_MissingProductSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutProduct(ctx, &types.Product{ID: "p1", Name: "Laptop", Location: types.LocationOurOffice}))
	f.putShipment(t, &types.Shipment{
		ID:          "s1",
		Status:      types.ShipmentOnTheWay,
		Products:    []string{"p1", "ghost"},
		Destination: &types.Endpoint{Kind: types.EndpointOurOffice, OfficeID: "o1"},
	})

	res, err := f.update(t, "s1", types.ShipmentReceived)
	require.NoError(t, err)
	assert.Equal(t, CascadeReport{Attempted: 2, Succeeded: 1, Skipped: 1}, res.Cascade)
	assert.NoError(t, res.Cascade.Err())
	assert.Contains(t, res.Message, "1 of 1 product updates succeeded")
}

func TestUpdateStatus_ReceivedByEmployee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutProduct(ctx, &types.Product{
		ID: "p1", Name: "Laptop", Category: types.CategoryComputer,
		Location: types.LocationFPWarehouse, Status: types.ProductStatusInTransit,
		FPWarehouse: &types.FPWarehouseRef{WarehouseID: "wh-1", WarehouseCountryCode: "AR", Status: types.WarehouseStatusInTransit},
	}))
	require.NoError(t, f.store.PutMember(ctx, &types.Member{ID: "m1", Email: "ada@acme.io", FirstName: "Ada", LastName: "Lovelace"}))
	f.putShipment(t, &types.Shipment{
		ID:          "s1",
		Status:      types.ShipmentOnTheWay,
		Products:    []string{"p1"},
		Destination: &types.Endpoint{Kind: types.EndpointEmployee, MemberEmail: "ada@acme.io"},
	})

	res, err := f.update(t, "s1", types.ShipmentReceived)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cascade.Succeeded)

	_, err = f.store.GetProduct(ctx, "p1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	m, err := f.store.GetMemberByEmail(ctx, "ada@acme.io")
	require.NoError(t, err)
	p, _ := m.Product("p1")
	require.NotNil(t, p)
	assert.Equal(t, types.LocationEmployee, p.Location)
	assert.Equal(t, types.ProductStatusDelivered, p.Status)
	assert.Equal(t, "Ada Lovelace", p.AssignedMember)
	assert.Nil(t, p.FPWarehouse)

	e, err := f.global.GetIndexEntry(ctx, tenant, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.LocationEmployee, e.Location)
	gp, err := f.global.GetGlobalProduct(ctx, tenant, "p1")
	require.NoError(t, err)
	assert.Equal(t, "ada@acme.io", gp.MemberEmail)
}

func TestUpdateStatus_ReceivedInWarehouse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutMember(ctx, &types.Member{
		ID: "m1", Email: "bob@acme.io",
		Products: []*types.Product{{
			ID: "p1", Name: "Laptop", Category: types.CategoryComputer,
			Location: types.LocationEmployee, Status: types.ProductStatusInTransit, AssignedEmail: "bob@acme.io",
		}},
	}))
	f.putShipment(t, &types.Shipment{
		ID:       "s1",
		Status:   types.ShipmentOnTheWay,
		Products: []string{"p1"},
		Destination: &types.Endpoint{
			Kind: types.EndpointFPWarehouse, Name: "BA Depot", WarehouseID: "wh-ba", CountryCode: "AR",
		},
	})

	res, err := f.update(t, "s1", types.ShipmentReceived)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cascade.Succeeded)

	m, err := f.store.GetMemberByEmail(ctx, "bob@acme.io")
	require.NoError(t, err)
	assert.Empty(t, m.Products)

	p, err := f.store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.LocationFPWarehouse, p.Location)
	assert.Equal(t, types.ProductStatusAvailable, p.Status)
	assert.Empty(t, p.AssignedEmail)
	require.NotNil(t, p.FPWarehouse)
	assert.Equal(t, types.WarehouseStatusStored, p.FPWarehouse.Status)

	ix := index.New(f.global, nil, f.clock)
	metrics, err := ix.GetWarehouseMetrics(ctx, "wh-ba")
	require.NoError(t, err)
	assert.Equal(t, types.PlacementMetrics{Total: 1, Computers: 1, DistinctTenants: 1}, metrics)
}

func TestUpdateStatus_ReceivedAtOffice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutProduct(ctx, &types.Product{ID: "p1", Name: "Chair", Location: types.LocationOurOffice, OfficeID: "o-old"}))
	f.putShipment(t, &types.Shipment{
		ID:          "s1",
		Status:      types.ShipmentInPreparation,
		Products:    []string{"p1"},
		Destination: &types.Endpoint{Kind: types.EndpointOurOffice, OfficeID: "o-new"},
	})

	_, err := f.update(t, "s1", types.ShipmentReceived)
	require.NoError(t, err)

	p, err := f.store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "o-new", p.OfficeID)
	assert.Equal(t, types.ProductStatusAvailable, p.Status)
}

func TestUpdateStatus_CancelledReverts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.PutProduct(ctx, &types.Product{
		ID: "p1", Name: "Laptop", Category: types.CategoryComputer,
		Location: types.LocationFPWarehouse, Status: types.ProductStatusInTransit,
		FPWarehouse: &types.FPWarehouseRef{WarehouseID: "wh-1", WarehouseCountryCode: "AR", Status: types.WarehouseStatusInTransit},
	}))
	require.NoError(t, f.store.PutMember(ctx, &types.Member{
		ID: "m1", Email: "ada@acme.io",
		Products: []*types.Product{{ID: "p2", Name: "Phone", Location: types.LocationEmployee, Status: types.ProductStatusInTransit}},
	}))
	f.putShipment(t, &types.Shipment{ID: "s1", Status: types.ShipmentOnTheWay, Products: []string{"p1", "p2"}})

	res, err := f.update(t, "s1", types.ShipmentCancelled)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cascade.Succeeded)

	p1, err := f.store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.ProductStatusAvailable, p1.Status)
	assert.Equal(t, types.WarehouseStatusStored, p1.FPWarehouse.Status)

	m, err := f.store.GetMemberByEmail(ctx, "ada@acme.io")
	require.NoError(t, err)
	p2, _ := m.Product("p2")
	require.NotNil(t, p2)
	assert.Equal(t, types.ProductStatusDelivered, p2.Status)

	e, err := f.global.GetIndexEntry(ctx, tenant, "p1")
	require.NoError(t, err)
	assert.True(t, e.InFPWarehouse)
}

func TestUpdateStatus_CascadeFailureKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.m.indexer = failingIndexer{}

	require.NoError(t, f.store.PutProduct(ctx, &types.Product{ID: "p1", Name: "Chair", Location: types.LocationOurOffice}))
	f.putShipment(t, &types.Shipment{
		ID:          "s1",
		Status:      types.ShipmentOnTheWay,
		Products:    []string{"p1"},
		Destination: &types.Endpoint{Kind: types.EndpointOurOffice, OfficeID: "o1"},
	})

	res, err := f.update(t, "s1", types.ShipmentReceived)
	require.NoError(t, err)
	require.Len(t, res.Cascade.Failures, 1)
	assert.Equal(t, "p1", res.Cascade.Failures[0].ProductID)
	assert.Error(t, res.Cascade.Err())
	assert.Contains(t, res.Message, "0 of 1 product updates succeeded")

	sh, err := f.store.GetShipment(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.ShipmentReceived, sh.Status)
}
