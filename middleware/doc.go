// Package middleware adapts zenauth.Engine to net/http.
//
// # Handlers
//
//   - [Guard] authenticates the bearer token and stores the [zenauth.Identity]
//     in the request context.
//   - [RequireRole] and [RequireVerified] gate on that identity.
//   - [ClientInfo] forwards the caller's IP and User-Agent to the Engine.
//
// Guard answers 401 with an RFC 6750 WWW-Authenticate challenge for missing,
// expired, revoked or invalid tokens, 403 for deactivated accounts and 503
// when the Engine cannot reach its stores.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every
// authentication decision is delegated to Engine.Authenticate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis or the credential store.
package middleware
