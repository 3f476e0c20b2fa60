// Package limiters implements the account lockout policy.
//
// [Apply] states the rule on plain values; [Lockout] applies it through the
// account store so concurrent failures on one account never lose updates.
//
// # What this package must NOT do
//
//   - Read-modify-write lockout fields outside the store's atomic operations.
//   - Import zenauth or any sibling internal package.
//   - Decide the sign-in outcome; the Engine maps states to errors.
package limiters
