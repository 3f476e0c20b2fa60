// Package internal groups the helpers private to zenauth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - challenge: OTP and reset-token generation and checking
//   - limiters: account lockout over the credential store
//   - metrics: lock-free counters and the latency histogram
//   - rate: fixed-window throttles on Redis or x/time/rate
//
// # What this package must NOT do
//
//   - Export types that appear in the public zenauth API.
package internal
