package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		ev      Event
		wantErr bool
	}{
		{"member ok", Event{Kind: KindMemberAddressUpdated, Tenant: "acme", MemberEmail: "a@acme.io"}, false},
		{"member without email", Event{Kind: KindMemberAddressUpdated, Tenant: "acme"}, true},
		{"office without id", Event{Kind: KindOfficeAddressUpdated, Tenant: "acme"}, true},
		{"tenant ok", Event{Kind: KindTenantAddressUpdated, Tenant: "acme"}, false},
		{"product without id", Event{Kind: KindProductAddressUpdated, Tenant: "acme"}, true},
		{"no tenant", Event{Kind: KindTenantAddressUpdated}, true},
		{"tenant with path", Event{Kind: KindTenantAddressUpdated, Tenant: "../global"}, true},
		{"unknown kind", Event{Kind: "member.deleted", Tenant: "acme"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBus_DeliversByKind(t *testing.T) {
	bus := NewBus(10, clock.NewMock())

	var mu sync.Mutex
	got := map[Kind][]string{}
	record := func(ctx context.Context, ev *Event) error {
		mu.Lock()
		defer mu.Unlock()
		got[ev.Kind] = append(got[ev.Kind], ev.ID)
		return nil
	}
	bus.Subscribe(KindTenantAddressUpdated, record)
	bus.Subscribe(KindProductAddressUpdated, record)

	bus.Start()
	defer bus.Stop()

	ctx := context.Background()
	tenantEv := &Event{Kind: KindTenantAddressUpdated, Tenant: "acme"}
	require.NoError(t, bus.Publish(ctx, tenantEv))
	require.NoError(t, bus.Publish(ctx, &Event{Kind: KindProductAddressUpdated, Tenant: "acme", ProductID: "p1"}))
	require.NoError(t, bus.Publish(ctx, &Event{Kind: KindOfficeAddressUpdated, Tenant: "acme", OfficeID: "o1"}))

	assert.NotEmpty(t, tenantEv.ID)
	assert.False(t, tenantEv.Timestamp.IsZero())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got[KindTenantAddressUpdated]) == 1 && len(got[KindProductAddressUpdated]) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, tenantEv.ID, got[KindTenantAddressUpdated][0])
	assert.Empty(t, got[KindOfficeAddressUpdated])
}

func TestBus_HandlerErrorDoesNotStopDispatch(t *testing.T) {
	bus := NewBus(10, nil)

	done := make(chan string, 2)
	bus.Subscribe(KindTenantAddressUpdated, func(ctx context.Context, ev *Event) error {
		done <- ev.UserID
		return errors.New("handler failed")
	})
	bus.Start()
	defer bus.Stop()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, &Event{Kind: KindTenantAddressUpdated, Tenant: "acme", UserID: "first"}))
	require.NoError(t, bus.Publish(ctx, &Event{Kind: KindTenantAddressUpdated, Tenant: "acme", UserID: "second"}))

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-done:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("event %s not delivered", want)
		}
	}
}

func TestBus_PublishRejectsInvalid(t *testing.T) {
	bus := NewBus(1, nil)
	err := bus.Publish(context.Background(), &Event{Kind: KindMemberAddressUpdated, Tenant: "acme"})
	assert.Error(t, err)
	assert.Zero(t, bus.Pending(KindMemberAddressUpdated))
}

func TestBus_PublishBlocksUntilContextDone(t *testing.T) {
	bus := NewBus(1, nil)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, &Event{Kind: KindTenantAddressUpdated, Tenant: "acme"}))
	assert.Equal(t, 1, bus.Pending(KindTenantAddressUpdated))

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := bus.Publish(timeout, &Event{Kind: KindTenantAddressUpdated, Tenant: "acme"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_PublishAfterStop(t *testing.T) {
	bus := NewBus(1, nil)
	bus.Start()
	bus.Stop()
	bus.Stop()

	err := bus.Publish(context.Background(), &Event{Kind: KindTenantAddressUpdated, Tenant: "acme"})
	assert.ErrorIs(t, err, ErrBusStopped)
}

func TestBus_StopCancelsRunningHandler(t *testing.T) {
	bus := NewBus(10, clock.NewMock())

	started := make(chan struct{})
	result := make(chan error, 1)
	bus.Subscribe(KindTenantAddressUpdated, func(ctx context.Context, ev *Event) error {
		close(started)
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	})
	bus.Start()

	require.NoError(t, bus.Publish(context.Background(), &Event{Kind: KindTenantAddressUpdated, Tenant: "acme"}))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	stopped := make(chan struct{})
	go func() {
		bus.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a running handler")
	}
	assert.ErrorIs(t, <-result, context.Canceled)
}

func TestDeduper(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	d := NewDeduper(0, 0, mock)

	at := mock.Now()
	assert.False(t, d.Seen("acme", "p1", at))
	assert.False(t, d.Seen("acme", "p1", at), "checking does not record")

	d.Mark("acme", "p1", at)
	assert.True(t, d.Seen("acme", "p1", at.Add(500*time.Millisecond)), "same 2s bucket")
	assert.False(t, d.Seen("acme", "p2", at), "different product")
	assert.False(t, d.Seen("globex", "p1", at), "different tenant")
	assert.False(t, d.Seen("acme", "p1", at.Add(2*time.Second)), "next bucket")

	mock.Add(10 * time.Second)
	assert.False(t, d.Seen("acme", "p1", at), "expired after ttl")
	assert.Equal(t, 0, d.Len())
}

func TestDeduper_MarkKeepsFirstTime(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	d := NewDeduper(0, 0, mock)

	at := mock.Now()
	d.Mark("acme", "p1", at)
	mock.Add(6 * time.Second)
	d.Mark("acme", "p1", at)
	mock.Add(5 * time.Second)

	assert.False(t, d.Seen("acme", "p1", at), "ttl counts from the first mark")
}
