// Package revocation records access tokens that were invalidated before their
// natural expiry.
//
// A revocation lives exactly as long as the token it names: entries are
// stored with a TTL equal to the token's remaining lifetime and are forgotten
// once the token would have expired anyway. Tokens are keyed by the SHA-256
// fingerprint of their compact form, so raw bearer strings are never kept.
//
// Two registries are provided. [Redis] shares revocations between every
// process that uses the same Redis deployment. [Memory] keeps them in an
// expiring LRU and suits single-process deployments and tests.
package revocation
