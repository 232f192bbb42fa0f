package events

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Default deduplication parameters for product events
const (
	DefaultDedupWindow = 2 * time.Second
	DefaultDedupTTL    = 10 * time.Second
)

type dedupKey struct {
	tenant    string
	productID string
	bucket    int64
}

// Deduper drops repeats of the same product event. Events are grouped into
// fixed time buckets of Window; a (tenant, productId, bucket) key is
// remembered for TTL after it was marked. Only handled events are marked, so
// a replay of a failed event is never dropped.
type Deduper struct {
	window time.Duration
	ttl    time.Duration
	clock  clock.Clock

	mu   sync.Mutex
	seen map[dedupKey]time.Time
}

// NewDeduper creates a deduper. Zero durations take the defaults.
func NewDeduper(window, ttl time.Duration, clk clock.Clock) *Deduper {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Deduper{
		window: window,
		ttl:    ttl,
		clock:  clk,
		seen:   make(map[dedupKey]time.Time),
	}
}

func (d *Deduper) key(tenant, productID string, at time.Time) dedupKey {
	return dedupKey{tenant: tenant, productID: productID, bucket: at.UnixNano() / int64(d.window)}
}

// expire drops keys older than the TTL. Callers hold mu.
func (d *Deduper) expire(now time.Time) {
	for k, first := range d.seen {
		if now.Sub(first) >= d.ttl {
			delete(d.seen, k)
		}
	}
}

// Seen reports whether the event for (tenant, productID) in the bucket of at
// was already marked and has not expired
func (d *Deduper) Seen(tenant, productID string, at time.Time) bool {
	key := d.key(tenant, productID, at)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.expire(d.clock.Now())
	_, ok := d.seen[key]
	return ok
}

// Mark records the event for (tenant, productID) in the bucket of at as handled
func (d *Deduper) Mark(tenant, productID string, at time.Time) {
	key := d.key(tenant, productID, at)
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.expire(now)
	if _, ok := d.seen[key]; !ok {
		d.seen[key] = now
	}
}

// Len returns the number of remembered keys, expired ones included
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
