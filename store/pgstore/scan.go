package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mk070/zenauth/account"
)

const accountColumns = `id, email, password_hash, email_verified, active, role,
	failed_attempts, locked_until, otp_digest, otp_expires_at, otp_attempts,
	reset_id, reset_digest, reset_expires_at, last_login_at, last_login_ip,
	created_at, updated_at`

// load reads one account by a unique column. column is always a literal from
// this package.
func (s *Store) load(ctx context.Context, column, value string) (*account.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+column+` = $1`, value)
	rec, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, wrap(err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT token_hash, issued_at, expires_at
		FROM refresh_tokens WHERE account_id = $1 ORDER BY seq`, rec.ID)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()
	for rows.Next() {
		var tok account.RefreshToken
		if err := rows.Scan(&tok.Hash, &tok.IssuedAt, &tok.ExpiresAt); err != nil {
			return nil, wrap(err)
		}
		rec.RefreshTokens = append(rec.RefreshTokens, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return rec, nil
}

func scanAccount(row *sql.Row) (*account.Record, error) {
	var (
		rec                                     account.Record
		role                                    string
		lockedUntil, otpExpires, resetExpires   sql.NullTime
		lastLoginAt                             sql.NullTime
		otpDigest, resetID, resetDigest, lastIP sql.NullString
		otpAttempts                             int
	)
	err := row.Scan(
		&rec.ID, &rec.Email, &rec.PasswordHash, &rec.EmailVerified, &rec.Active, &role,
		&rec.Lockout.FailedAttempts, &lockedUntil, &otpDigest, &otpExpires, &otpAttempts,
		&resetID, &resetDigest, &resetExpires, &lastLoginAt, &lastIP,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Role = account.Role(role)
	rec.Lockout.LockedUntil = timeOrZero(lockedUntil)
	if otpDigest.Valid {
		rec.OTP = &account.OTPChallenge{
			Digest:    otpDigest.String,
			ExpiresAt: timeOrZero(otpExpires),
			Attempts:  otpAttempts,
		}
	}
	if resetID.Valid {
		rec.Reset = &account.ResetChallenge{
			ID:        resetID.String,
			Digest:    resetDigest.String,
			ExpiresAt: timeOrZero(resetExpires),
		}
	}
	rec.LastLoginAt = timeOrZero(lastLoginAt)
	rec.LastLoginIP = lastIP.String
	return &rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
