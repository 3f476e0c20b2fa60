package redisstore

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mk070/zenauth/account"
)

func encodeRecord(rec *account.Record) []interface{} {
	fields := []interface{}{
		"id", rec.ID,
		"email", rec.Email,
		"pw", rec.PasswordHash,
		"verified", boolField(rec.EmailVerified),
		"active", boolField(rec.Active),
		"role", string(rec.Role),
		"failed", strconv.Itoa(rec.Lockout.FailedAttempts),
		"locked_until", msField(rec.Lockout.LockedUntil),
		"created_at", msField(rec.CreatedAt),
		"updated_at", msField(rec.UpdatedAt),
	}
	if rec.OTP != nil {
		fields = append(fields,
			"otp_digest", rec.OTP.Digest,
			"otp_exp", msField(rec.OTP.ExpiresAt),
			"otp_attempts", strconv.Itoa(rec.OTP.Attempts),
		)
	}
	if !rec.LastLoginAt.IsZero() {
		fields = append(fields, "last_login_at", msField(rec.LastLoginAt), "last_login_ip", rec.LastLoginIP)
	}
	return fields
}

func decodeRecord(f map[string]string, tokens map[string]string) (*account.Record, error) {
	rec := &account.Record{
		ID:            f["id"],
		Email:         f["email"],
		PasswordHash:  f["pw"],
		EmailVerified: f["verified"] == "1",
		Active:        f["active"] == "1",
		Role:          account.Role(f["role"]),
		Lockout: account.LockoutState{
			FailedAttempts: atoi(f["failed"]),
			LockedUntil:    parseMs(f["locked_until"]),
		},
		LastLoginAt: parseMs(f["last_login_at"]),
		LastLoginIP: f["last_login_ip"],
		CreatedAt:   parseMs(f["created_at"]),
		UpdatedAt:   parseMs(f["updated_at"]),
	}

	if digest := f["otp_digest"]; digest != "" {
		rec.OTP = &account.OTPChallenge{
			Digest:    digest,
			ExpiresAt: parseMs(f["otp_exp"]),
			Attempts:  atoi(f["otp_attempts"]),
		}
	}
	if resetID := f["reset_id"]; resetID != "" {
		rec.Reset = &account.ResetChallenge{
			ID:        resetID,
			Digest:    f["reset_digest"],
			ExpiresAt: parseMs(f["reset_exp"]),
		}
	}

	type member struct {
		seq int
		tok account.RefreshToken
	}
	members := make([]member, 0, len(tokens))
	for hash, value := range tokens {
		parts := strings.SplitN(value, ":", 3)
		if len(parts) != 3 {
			continue
		}
		members = append(members, member{
			seq: atoi(parts[0]),
			tok: account.RefreshToken{
				Hash:      hash,
				IssuedAt:  parseMs(parts[1]),
				ExpiresAt: parseMs(parts[2]),
			},
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })
	for _, m := range members {
		rec.RefreshTokens = append(rec.RefreshTokens, m.tok)
	}

	return rec, nil
}

func refreshValue(tok account.RefreshToken) string {
	return msField(tok.IssuedAt) + ":" + msField(tok.ExpiresAt)
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func msField(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMs(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func atoi(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}
