// Package metrics defines and registers the Prometheus metrics exposed by a
// warren-ledger instance: commit throughput and latency, auth rejection
// reasons, backend entry/root counts, and sync peer/flush activity.
// Metrics are exposed via Handler() for scraping; Collector periodically
// samples an instance's StatsProvider into the gauges.
package metrics
