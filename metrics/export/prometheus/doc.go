// Package prometheus exports zenauth metrics through client_golang.
//
// [NewCollector] wraps a [zenauth.Engine] in a prometheus.Collector. Counter
// names are zenauth_*_total; the single histogram is
// zenauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with the global registry; callers pass a Registerer.
//   - Mutate engine state.
package prometheus
