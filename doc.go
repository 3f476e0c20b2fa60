// Package zenauth manages the authentication and session lifecycle of an
// account: signup with OTP email verification, password sign-in with
// brute-force lockout, signed access and refresh tokens with single-use
// refresh rotation, access-token revocation, and password recovery.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// zenauth is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy and value types ([Session], [Identity], [AccountInfo]).
// Persistence sits behind account.Store (store/redisstore, store/pgstore),
// token revocation behind revocation.Registry, and outbound email behind
// mail.Sender. Challenge generation, lockout rules, throttles, audit
// dispatch and counters live under internal/.
//
// # What this package must NOT do
//
//   - Read-modify-write lockout counters or OTP attempts; every counter
//     change is a single atomic store call.
//   - Return challenge codes, reset tokens or digests to callers other than
//     through the mailer.
//   - Reveal through ForgotPassword whether an email is registered.
//   - Import any sub-package that re-imports zenauth (no import cycles).
//
// # Outcomes
//
// Expected outcomes are returned as the sentinel errors in errors.go and are
// matched with errors.Is; *LockedError and *OTPError carry the retry time and
// the remaining OTP attempts. Store, mailer and registry faults are wrapped in
// [ErrInfrastructure] and logged with the operation and account id.
package zenauth
