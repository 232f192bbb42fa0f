package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/stockroom/pkg/index"
	"github.com/cuemby/stockroom/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	mu        sync.Mutex
	resynced  []string
	failFor   string
	refreshes int
}

func (f *fakeIndex) ResyncTenant(ctx context.Context, tenant string) (index.ResyncReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resynced = append(f.resynced, tenant)
	if tenant == f.failFor {
		return index.ResyncReport{Tenant: tenant}, errors.New("store unavailable")
	}
	return index.ResyncReport{Tenant: tenant, Scanned: 1}, nil
}

func (f *fakeIndex) RefreshWarehouseMetrics(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return 2, nil
}

func (f *fakeIndex) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

type staticTenants []*types.Tenant

func (s staticTenants) ListTenants(ctx context.Context) ([]*types.Tenant, error) {
	return s, nil
}

type failingTenants struct{}

func (failingTenants) ListTenants(ctx context.Context) ([]*types.Tenant, error) {
	return nil, errors.New("global store down")
}

func TestReconcile_ContinuesPastFailingTenant(t *testing.T) {
	ix := &fakeIndex{failFor: "globex"}
	tenants := staticTenants{{Name: "acme"}, {Name: "globex"}, {Name: "initech"}}
	r := NewReconciler(ix, tenants, 0, clock.NewMock())

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"acme", "globex", "initech"}, ix.resynced)
	assert.Equal(t, 3, report.Tenants)
	assert.Equal(t, 1, report.TenantsFailed)
	assert.Equal(t, 2, report.WarehousesStored)
	assert.Equal(t, 1, ix.refreshes)
}

func TestReconcile_TenantListFailure(t *testing.T) {
	ix := &fakeIndex{}
	r := NewReconciler(ix, failingTenants{}, 0, clock.NewMock())

	_, err := r.Reconcile(context.Background())
	assert.Error(t, err)
	assert.Zero(t, ix.refreshes)
}

func TestStart_RunsOnInterval(t *testing.T) {
	mock := clock.NewMock()
	ix := &fakeIndex{}
	r := NewReconciler(ix, staticTenants{{Name: "acme"}}, time.Minute, mock)

	r.Start()
	defer r.Stop()

	mock.Add(time.Minute)
	assert.Eventually(t, func() bool { return ix.refreshCount() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestStop_Idempotent(t *testing.T) {
	r := NewReconciler(&fakeIndex{}, staticTenants{}, 0, clock.NewMock())
	r.Start()
	r.Stop()
	r.Stop()
}
