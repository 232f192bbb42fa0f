package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/stockroom/pkg/events"
	"github.com/cuemby/stockroom/pkg/index"
	"github.com/cuemby/stockroom/pkg/log"
	"github.com/cuemby/stockroom/pkg/metrics"
	"github.com/cuemby/stockroom/pkg/storage"
	"github.com/cuemby/stockroom/pkg/types"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// ErrMissingAddress is returned for events without an old or new address
var ErrMissingAddress = errors.New("event is missing the old or new address")

// Tenants resolves a tenant name to an open store
type Tenants interface {
	Get(ctx context.Context, tenant string) (storage.TenantStore, error)
}

// Indexer is the part of the global index product events drive
type Indexer interface {
	SyncFromProduct(ctx context.Context, tenant string, product *types.Product, memberEmail string) (index.Outcome, error)
	RemoveFromIndex(ctx context.Context, tenant, productID string) error
}

// Result describes what handling one event changed
type Result struct {
	Kind             events.Kind   `json:"kind"`
	Tenant           string        `json:"tenantName"`
	ShipmentsUpdated []string      `json:"shipmentsUpdated,omitempty"`
	ReadyForReview   []string      `json:"readyForReview,omitempty"`
	Deduplicated     bool          `json:"deduplicated,omitempty"`
	IndexOutcome     index.Outcome `json:"indexOutcome,omitempty"`
}

// Listener turns change events into shipment and index updates
type Listener struct {
	tenants Tenants
	indexer Indexer
	dedup   *events.Deduper
	clock   clock.Clock
	logger  zerolog.Logger
}

// New creates a listener. A nil dedup handles every product event.
func New(tenants Tenants, indexer Indexer, dedup *events.Deduper, clk clock.Clock) *Listener {
	if clk == nil {
		clk = clock.New()
	}
	return &Listener{
		tenants: tenants,
		indexer: indexer,
		dedup:   dedup,
		clock:   clk,
		logger:  log.WithComponent("listener"),
	}
}

// Register subscribes the listener to every kind on bus
func (l *Listener) Register(bus *events.Bus) {
	for _, kind := range events.Kinds {
		bus.Subscribe(kind, func(ctx context.Context, ev *events.Event) error {
			res, err := l.Handle(ctx, ev)
			if err != nil {
				return err
			}
			l.logger.Debug().
				Str("event_id", ev.ID).
				Str("kind", string(ev.Kind)).
				Str("tenant", ev.Tenant).
				Strs("shipments_updated", res.ShipmentsUpdated).
				Strs("ready_for_review", res.ReadyForReview).
				Bool("deduplicated", res.Deduplicated).
				Msg("Handled event")
			return nil
		})
	}
}

// Handle routes ev to the handler of its kind
func (l *Listener) Handle(ctx context.Context, ev *events.Event) (Result, error) {
	switch ev.Kind {
	case events.KindMemberAddressUpdated:
		return l.HandleMemberAddress(ctx, ev)
	case events.KindOfficeAddressUpdated:
		return l.HandleOfficeAddress(ctx, ev)
	case events.KindTenantAddressUpdated:
		return l.HandleTenantAddress(ctx, ev)
	case events.KindProductAddressUpdated:
		return l.HandleProductAddress(ctx, ev)
	}
	return Result{}, fmt.Errorf("unknown event kind %q", ev.Kind)
}

func checkAddresses(ev *events.Event) error {
	if ev.OldAddress == nil || ev.NewAddress == nil {
		return fmt.Errorf("%s event %s: %w", ev.Kind, ev.ID, ErrMissingAddress)
	}
	return nil
}

// HandleMemberAddress rewrites Employee endpoints addressed to the member
func (l *Listener) HandleMemberAddress(ctx context.Context, ev *events.Event) (Result, error) {
	return l.rewriteEndpoints(ctx, ev, func(ep *types.Endpoint) bool {
		return ep.Kind == types.EndpointEmployee && strings.EqualFold(ep.MemberEmail, ev.MemberEmail)
	})
}

// HandleOfficeAddress rewrites Our office endpoints pointing at the office
func (l *Listener) HandleOfficeAddress(ctx context.Context, ev *events.Event) (Result, error) {
	return l.rewriteEndpoints(ctx, ev, func(ep *types.Endpoint) bool {
		return ep.Kind == types.EndpointOurOffice && ep.OfficeID == ev.OfficeID
	})
}

// HandleTenantAddress rewrites Our office endpoints that use the tenant's own
// address rather than a specific office
func (l *Listener) HandleTenantAddress(ctx context.Context, ev *events.Event) (Result, error) {
	return l.rewriteEndpoints(ctx, ev, func(ep *types.Endpoint) bool {
		return ep.Kind == types.EndpointOurOffice && ep.OfficeID == ""
	})
}

func (l *Listener) rewriteEndpoints(ctx context.Context, ev *events.Event, match func(*types.Endpoint) bool) (Result, error) {
	res := Result{Kind: ev.Kind, Tenant: ev.Tenant}
	if err := checkAddresses(ev); err != nil {
		return res, err
	}

	store, err := l.tenants.Get(ctx, ev.Tenant)
	if err != nil {
		return res, err
	}

	shipments, err := store.ListShipments(ctx, types.ShipmentInPreparation, types.ShipmentOnHold, types.ShipmentOnTheWay)
	if err != nil {
		return res, fmt.Errorf("failed to list shipments: %w", err)
	}

	now := l.clock.Now()
	var errs error
	for _, sh := range shipments {
		if sh.IsDeleted {
			continue
		}
		changed := false
		for _, ep := range sh.Endpoints() {
			if match(ep) {
				addr := *ev.NewAddress
				ep.Address = &addr
				changed = true
			}
		}
		if !changed {
			continue
		}

		sh.UpdatedAt = now
		if err := store.PutShipment(ctx, sh); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to save shipment %s: %w", sh.ID, err))
			continue
		}
		res.ShipmentsUpdated = append(res.ShipmentsUpdated, sh.ID)

		if sh.Status == types.ShipmentOnHold && endpointsComplete(sh) {
			res.ReadyForReview = append(res.ReadyForReview, sh.ID)
		}
	}

	if len(res.ShipmentsUpdated) > 0 {
		logger := log.WithTenant(l.logger, ev.Tenant)
		logger.Info().
			Str("kind", string(ev.Kind)).
			Int("updated", len(res.ShipmentsUpdated)).
			Strs("ready_for_review", res.ReadyForReview).
			Msg("Updated shipment addresses")
	}
	return res, errs
}

func endpointsComplete(sh *types.Shipment) bool {
	if sh.Origin == nil || sh.Destination == nil {
		return false
	}
	return sh.Origin.Address.IsComplete() && sh.Destination.Address.IsComplete()
}

// HandleProductAddress re-syncs the product into the index, or removes it
// when it no longer exists. Repeats of a handled event inside the dedup
// window are dropped.
func (l *Listener) HandleProductAddress(ctx context.Context, ev *events.Event) (Result, error) {
	res := Result{Kind: ev.Kind, Tenant: ev.Tenant}
	if err := checkAddresses(ev); err != nil {
		return res, err
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = l.clock.Now()
	}
	if l.dedup != nil && l.dedup.Seen(ev.Tenant, ev.ProductID, at) {
		metrics.EventsDeduplicated.Inc()
		res.Deduplicated = true
		return res, nil
	}

	outcome, err := l.syncProduct(ctx, ev.Tenant, ev.ProductID)
	if err != nil {
		return res, err
	}
	res.IndexOutcome = outcome
	if l.dedup != nil {
		l.dedup.Mark(ev.Tenant, ev.ProductID, at)
	}
	return res, nil
}

func (l *Listener) syncProduct(ctx context.Context, tenant, productID string) (index.Outcome, error) {
	store, err := l.tenants.Get(ctx, tenant)
	if err != nil {
		return "", err
	}

	p, err := store.GetProduct(ctx, productID)
	if err == nil {
		return l.indexer.SyncFromProduct(ctx, tenant, p, "")
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	m, err := store.FindMemberByProduct(ctx, productID)
	if err == nil {
		embedded, _ := m.Product(productID)
		return l.indexer.SyncFromProduct(ctx, tenant, embedded, m.Email)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	if err := l.indexer.RemoveFromIndex(ctx, tenant, productID); err != nil {
		return "", err
	}
	return index.OutcomeRemoved, nil
}
