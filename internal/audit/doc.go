// Package audit dispatches security events to pluggable sinks.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, slog, no-op).
//   - [Dispatcher]: buffered asynchronous relay with drop-if-full or
//     block-if-full semantics.
//   - [Event]: one outcome with timestamp, type, account, client and metadata.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. Which events exist is decided by
// the Engine.
//
// # What this package must NOT do
//
//   - Filter events on business rules.
//   - Import zenauth or any sibling internal package.
//   - Carry secrets: OTP codes, reset tokens and bearer tokens never appear in
//     an Event.
package audit
