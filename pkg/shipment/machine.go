package shipment

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/stockroom/pkg/index"
	"github.com/cuemby/stockroom/pkg/log"
	"github.com/cuemby/stockroom/pkg/metrics"
	"github.com/cuemby/stockroom/pkg/storage"
	"github.com/cuemby/stockroom/pkg/types"
	"github.com/rs/zerolog"
)

// Tenants resolves a tenant name to an open store
type Tenants interface {
	Get(ctx context.Context, tenant string) (storage.TenantStore, error)
}

// Indexer receives every product the machine changes
type Indexer interface {
	SyncFromProduct(ctx context.Context, tenant string, product *types.Product, memberEmail string) (index.Outcome, error)
}

// Request asks for a status change
type Request struct {
	Tenant     string               `json:"tenantName"`
	ShipmentID string               `json:"shipmentId"`
	Status     types.ShipmentStatus `json:"newStatus"`
	UserID     string               `json:"userId,omitempty"`
}

// Result of an applied transition
type Result struct {
	Message  string          `json:"message"`
	Shipment *types.Shipment `json:"shipment"`
	Cascade  CascadeReport   `json:"cascade"`
}

// Machine applies shipment status transitions and their product side effects
type Machine struct {
	tenants Tenants
	indexer Indexer
	clock   clock.Clock
	logger  zerolog.Logger
}

// New creates a state machine. A nil clock uses the wall clock.
func New(tenants Tenants, indexer Indexer, clk clock.Clock) *Machine {
	if clk == nil {
		clk = clock.New()
	}
	return &Machine{
		tenants: tenants,
		indexer: indexer,
		clock:   clk,
		logger:  log.WithComponent("shipment"),
	}
}

// UpdateStatus validates and applies a transition. The new status, its
// history entry and any snapshots are persisted before product cascades run;
// cascade failures are reported in the result and do not fail the call.
func (m *Machine) UpdateStatus(ctx context.Context, req Request) (*Result, error) {
	if !req.Status.Valid() {
		metrics.ShipmentTransitions.WithLabelValues("unknown", "rejected").Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, req.Status)
	}

	store, err := m.tenants.Get(ctx, req.Tenant)
	if err != nil {
		metrics.ShipmentTransitions.WithLabelValues(string(req.Status), "error").Inc()
		return nil, err
	}

	sh, err := store.GetShipment(ctx, req.ShipmentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.ShipmentTransitions.WithLabelValues(string(req.Status), "rejected").Inc()
			return nil, &NotFoundError{Tenant: req.Tenant, ShipmentID: req.ShipmentID}
		}
		return nil, fmt.Errorf("failed to load shipment %s: %w", req.ShipmentID, err)
	}
	if sh.IsDeleted {
		metrics.ShipmentTransitions.WithLabelValues(string(req.Status), "rejected").Inc()
		return nil, &NotFoundError{Tenant: req.Tenant, ShipmentID: req.ShipmentID}
	}

	from := sh.Status
	if !CanTransition(from, req.Status) {
		metrics.ShipmentTransitions.WithLabelValues(string(req.Status), "rejected").Inc()
		return nil, &TransitionError{ShipmentID: sh.ID, From: from, To: req.Status}
	}

	logger := log.WithShipment(m.logger, req.Tenant, sh.ID)
	now := m.clock.Now()

	if req.Status == types.ShipmentOnTheWay {
		m.takeSnapshots(ctx, store, sh, logger)
	}

	sh.Status = req.Status
	sh.UpdatedAt = now
	sh.History = append(sh.History, types.StatusChange{From: from, To: req.Status, UserID: req.UserID, At: now})
	if err := store.PutShipment(ctx, sh); err != nil {
		metrics.ShipmentTransitions.WithLabelValues(string(req.Status), "error").Inc()
		return nil, fmt.Errorf("failed to save shipment %s: %w", sh.ID, err)
	}
	metrics.ShipmentTransitions.WithLabelValues(string(req.Status), "applied").Inc()

	c := &cascade{
		machine: m,
		store:   store,
		tenant:  req.Tenant,
		sh:      sh,
		now:     now,
		logger:  logger,
		ctx:     ctx,
	}
	switch req.Status {
	case types.ShipmentOnTheWay:
		c.run(c.dispatch)
	case types.ShipmentReceived:
		c.run(c.receive)
	case types.ShipmentCancelled:
		c.run(c.cancel)
	}

	message := fmt.Sprintf("Shipment %s updated from %q to %q", sh.ID, from, req.Status)
	if c.report.Attempted > 0 {
		message += "; " + c.report.Summary()
	}
	if n := len(c.report.Failures); n > 0 {
		metrics.CascadeFailures.WithLabelValues(string(req.Status)).Add(float64(n))
		logger.Warn().Err(c.report.Err()).Int("failed", n).Msg("Shipment cascade partially failed")
	}

	logger.Info().
		Str("from", string(from)).
		Str("to", string(req.Status)).
		Str("user_id", req.UserID).
		Msg("Shipment status updated")

	return &Result{Message: message, Shipment: sh, Cascade: c.report}, nil
}

// takeSnapshots captures every referenced product not snapshotted yet.
// Products that cannot be found are skipped.
func (m *Machine) takeSnapshots(ctx context.Context, store storage.TenantStore, sh *types.Shipment, logger zerolog.Logger) {
	have := make(map[string]bool, len(sh.Snapshots))
	for _, s := range sh.Snapshots {
		have[s.ID] = true
	}

	now := m.clock.Now()
	for _, id := range sh.Products {
		if have[id] {
			continue
		}
		loc, err := locate(ctx, store, id)
		if err != nil {
			logger.Warn().Err(err).Str("product_id", id).Msg("No snapshot taken for product")
			continue
		}
		sh.Snapshots = append(sh.Snapshots, types.SnapshotOf(loc.product, now))
		have[id] = true
	}
}
