// Package password implements one-way secret hashing and verification.
//
// # Algorithms
//
// bcrypt is the default, with cost 12. Argon2id is available for deployments
// that prefer a memory-hard function; its digests use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Service.Verify] dispatches on the digest prefix, so stored digests keep
// verifying after the configured algorithm changes. [Service.NeedsUpgrade]
// reports digests produced by another algorithm or weaker parameters so the
// caller can re-hash on the next successful sign-in.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive digests.
//   - Import any other zenauth package.
//   - Log plaintext passwords or digests.
package password
