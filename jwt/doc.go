// Package jwt mints and verifies the access/refresh token pair.
//
// Access and refresh tokens are signed with distinct keys, so a leaked refresh
// secret cannot forge access tokens and the reverse. Each token also carries a
// "type" claim that verification enforces.
//
// Verification reports expiry separately ([ErrExpired]) from every other
// failure ([ErrInvalid], [ErrMalformed]) so callers can tell "refresh and
// retry" apart from "reject outright".
package jwt
