package metrics

import (
	"context"
	"time"
)

// HandleCounter reports how many tenant handles are cached
type HandleCounter interface {
	Len() int
}

// EntryCounter reports the size of the global index
type EntryCounter interface {
	CountEntries(ctx context.Context) (int, error)
}

// Collector periodically samples gauges that are cheaper to poll than to
// maintain on every write
type Collector struct {
	handles  HandleCounter
	entries  EntryCounter
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(handles HandleCounter, entries EntryCounter, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		handles:  handles,
		entries:  entries,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.handles != nil {
		TenantHandlesOpen.Set(float64(c.handles.Len()))
	}

	if c.entries != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.interval)
		defer cancel()
		n, err := c.entries.CountEntries(ctx)
		if err != nil {
			return
		}
		IndexEntries.Set(float64(n))
	}
}
