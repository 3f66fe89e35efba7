package metrics

import (
	"context"
	"time"
)

// StatsProvider is implemented by pkg/instance.Instance; kept as a small
// interface here (rather than importing pkg/instance directly) so this
// package has no dependency on the rest of the module.
type StatsProvider interface {
	BackendStats(ctx context.Context) (entries int, roots int, err error)
	PeerStats() (connected int, disconnected int)
}

// Collector periodically samples a StatsProvider into the package-level
// gauges.
type Collector struct {
	provider StatsProvider
	stopCh   chan struct{}
}

// NewCollector returns a Collector sampling provider every interval once
// Start is called.
func NewCollector(provider StatsProvider) *Collector {
	return &Collector{provider: provider, stopCh: make(chan struct{})}
}

// Start begins periodic collection in a background goroutine.
func (c *Collector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
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

// Stop halts collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if entries, roots, err := c.provider.BackendStats(context.Background()); err == nil {
		BackendEntriesTotal.Set(float64(entries))
		BackendRootsTotal.Set(float64(roots))
	}

	connected, disconnected := c.provider.PeerStats()
	SyncPeersTotal.WithLabelValues("connected").Set(float64(connected))
	SyncPeersTotal.WithLabelValues("disconnected").Set(float64(disconnected))
}
