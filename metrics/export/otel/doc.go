// Package otel exports zenauth metrics through OpenTelemetry.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one gauge per cumulative histogram bucket. A single callback reads
// [zenauth.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
