// Package account defines the persisted account record and the Store contract
// the Engine depends on.
//
// # Atomicity
//
// Every Store mutation is a single atomic operation on one account. Counters
// (login failures, OTP attempts) are incremented by the store itself, never by
// a fetch-then-save round trip in the caller, and refresh-token rotation removes
// the presented token in the same operation that inserts its replacement.
//
// # Implementations
//
// store/redisstore keeps records in Redis hashes and uses Lua scripts for the
// compound updates. store/pgstore keeps them in Postgres and uses single
// statement updates or short transactions.
package account
