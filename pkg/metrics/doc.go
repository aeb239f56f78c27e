/*
Package metrics exposes Prometheus instrumentation for the simulator
process: jobs and actions counted as they move through compute services,
scheduling-pass wall-clock latency, and the advancing virtual clock. The
CLI serves them on /metrics when --metrics-addr is set, which is useful for
watching long-running simulations from the outside.

Metrics are process-level observability; deterministic per-run results
belong to the trace recorder, not here.
*/
package metrics
