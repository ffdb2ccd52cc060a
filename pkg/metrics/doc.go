// Package metrics defines the Prometheus metric objects the node updates
// internally: operation ingest outcomes and latency, cache hit/miss
// counts, broadcast and anti-entropy outcomes, and per-peer circuit
// breaker state and reputation gauges.
//
// Metrics are registered once at package init via prometheus.MustRegister.
// No HTTP handler is exposed here: wiring the registry to a /metrics
// endpoint is left to whatever external process embeds this package.
package metrics
