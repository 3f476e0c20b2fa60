// Package metrics provides lock-free counters and a latency histogram for
// zenauth observability.
//
// # Design
//
// Counters are stored in cache-line-padded uint64 slots and incremented with
// [sync/atomic.AddUint64]. The histogram uses 8 fixed buckets (≤5ms … +Inf)
// plus a running sum in nanoseconds. The write path never allocates.
//
// # Architecture boundaries
//
// This package owns metric storage and snapshots. Exporters (Prometheus,
// OpenTelemetry) live in metrics/export/ and read [Snapshot] values.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import zenauth or any sibling package.
//   - Expose global registries.
package metrics
