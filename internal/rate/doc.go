// Package rate throttles request volume per scope and key.
//
// # Backends
//
// [Redis] keeps fixed-window counters (INCR + EXPIRE on the first hit) shared
// by every process. [Local] keeps one token bucket per key in memory, built on
// golang.org/x/time/rate, with capacity Max refilled evenly over Window.
//
// # Scopes
//
// Callers pass a scope (for example "signin") and a key (an IP address or an
// email digest). Keys are namespaced as <prefix>:<scope>:<key>.
//
// # What this package must NOT do
//
//   - Decide what is throttled; the Engine picks scopes and rules.
//   - Count authentication failures; lockout lives in internal/limiters.
package rate
