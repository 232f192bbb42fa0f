package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/stockroom/pkg/log"
	"github.com/cuemby/stockroom/pkg/metrics"
	"github.com/cuemby/stockroom/pkg/storage"
	"github.com/cuemby/stockroom/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind is the type of an inbound change event
type Kind string

const (
	KindMemberAddressUpdated  Kind = "member.address.updated"
	KindOfficeAddressUpdated  Kind = "office.address.updated"
	KindTenantAddressUpdated  Kind = "tenant.address.updated"
	KindProductAddressUpdated Kind = "product.address.updated"
)

// Kinds lists every kind the bus carries
var Kinds = []Kind{
	KindMemberAddressUpdated,
	KindOfficeAddressUpdated,
	KindTenantAddressUpdated,
	KindProductAddressUpdated,
}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ErrBusStopped is returned by Publish after Stop
var ErrBusStopped = errors.New("event bus stopped")

// Event is a change notification from the tenant-facing services
type Event struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	Tenant      string         `json:"tenantName"`
	UserID      string         `json:"userId,omitempty"`
	OldAddress  *types.Address `json:"oldAddress,omitempty"`
	NewAddress  *types.Address `json:"newAddress,omitempty"`
	MemberEmail string         `json:"memberEmail,omitempty"`
	OfficeID    string         `json:"officeId,omitempty"`
	ProductID   string         `json:"productId,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Validate checks the kind, the tenant and the subject the kind refers to
func (e *Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if err := storage.ValidateTenantName(e.Tenant); err != nil {
		return fmt.Errorf("event %s: tenant %w", e.Kind, err)
	}
	switch e.Kind {
	case KindMemberAddressUpdated:
		if e.MemberEmail == "" {
			return fmt.Errorf("event %s: memberEmail is required", e.Kind)
		}
	case KindOfficeAddressUpdated:
		if e.OfficeID == "" {
			return fmt.Errorf("event %s: officeId is required", e.Kind)
		}
	case KindProductAddressUpdated:
		if e.ProductID == "" {
			return fmt.Errorf("event %s: productId is required", e.Kind)
		}
	}
	return nil
}

// Handler consumes one event
type Handler func(ctx context.Context, ev *Event) error

// Bus carries events through one buffered queue per kind. Each kind has its
// own dispatcher goroutine, so a slow handler only delays its own kind.
type Bus struct {
	clock  clock.Clock
	logger zerolog.Logger

	mu       sync.RWMutex
	handlers map[Kind][]Handler
	queues   map[Kind]chan *Event

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewBus creates a bus whose queues hold up to buffer events each
func NewBus(buffer int, clk clock.Clock) *Bus {
	if buffer <= 0 {
		buffer = 100
	}
	if clk == nil {
		clk = clock.New()
	}
	b := &Bus{
		clock:    clk,
		logger:   log.WithComponent("events"),
		handlers: make(map[Kind][]Handler),
		queues:   make(map[Kind]chan *Event, len(Kinds)),
		stopCh:   make(chan struct{}),
	}
	for _, k := range Kinds {
		b.queues[k] = make(chan *Event, buffer)
	}
	return b
}

// Subscribe registers h for every event of kind
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish validates ev, stamps its id and timestamp when missing, and queues
// it. It blocks while the kind's queue is full.
func (b *Bus) Publish(ctx context.Context, ev *Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.clock.Now()
	}

	select {
	case <-b.stopCh:
		return ErrBusStopped
	default:
	}

	select {
	case b.queues[ev.Kind] <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stopCh:
		return ErrBusStopped
	}
}

// Start launches one dispatcher per kind
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		for _, k := range Kinds {
			b.wg.Add(1)
			go b.dispatch(k)
		}
	})
}

// Stop stops the dispatchers. Events still queued are dropped; the periodic
// resync picks up what they would have changed.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()

	dropped := 0
	for _, q := range b.queues {
		dropped += len(q)
	}
	if dropped > 0 {
		b.logger.Warn().Int("dropped", dropped).Msg("Event bus stopped with queued events")
	}
}

// Pending returns the number of queued events of kind
func (b *Bus) Pending(kind Kind) int {
	return len(b.queues[kind])
}

func (b *Bus) dispatch(kind Kind) {
	defer b.wg.Done()

	// Handlers still running when Stop is called see ctx cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	q := b.queues[kind]
	for {
		select {
		case ev := <-q:
			b.deliver(ctx, ev)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, ev *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.Kind]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			metrics.EventsHandled.WithLabelValues(string(ev.Kind), "error").Inc()
			b.logger.Error().Err(err).
				Str("event_id", ev.ID).
				Str("kind", string(ev.Kind)).
				Str("tenant", ev.Tenant).
				Msg("Event handler failed")
			continue
		}
		metrics.EventsHandled.WithLabelValues(string(ev.Kind), "ok").Inc()
	}
}
