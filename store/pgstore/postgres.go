// Package pgstore implements account.Store on PostgreSQL through database/sql
// and the pgx driver.
//
// Conditional transitions (OTP completion, reset consumption, lockout) are
// single UPDATE statements guarded by WHERE clauses. Refresh-set changes lock
// the account row first so capacity trimming is serialized per account.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mk070/zenauth/account"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Store is a PostgreSQL-backed account.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ account.Store = (*Store)(nil)

// New returns a Store over db. now defaults to time.Now.
func New(db *sql.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) withTx(ctx context.Context, fn func(tx dbtx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

func (s *Store) Create(ctx context.Context, rec *account.Record) error {
	if rec == nil || rec.ID == "" || rec.Email == "" {
		return errors.New("pgstore: id and email required")
	}
	var otpDigest sql.NullString
	var otpExpires sql.NullTime
	otpAttempts := 0
	if rec.OTP != nil {
		otpDigest = sql.NullString{String: rec.OTP.Digest, Valid: true}
		otpExpires = nullTime(rec.OTP.ExpiresAt)
		otpAttempts = rec.OTP.Attempts
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, email_verified, active, role,
			otp_digest, otp_expires_at, otp_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.Email, rec.PasswordHash, rec.EmailVerified, rec.Active, string(rec.Role),
		otpDigest, otpExpires, otpAttempts, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return account.ErrDuplicate
		}
		return wrap(err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*account.Record, error) {
	return s.load(ctx, "id", id)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*account.Record, error) {
	return s.load(ctx, "email", account.NormalizeEmail(email))
}

func (s *Store) GetByResetID(ctx context.Context, resetID string) (*account.Record, error) {
	if resetID == "" {
		return nil, account.ErrNotFound
	}
	return s.load(ctx, "reset_id", resetID)
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.execOne(ctx, `UPDATE accounts SET active = $2, updated_at = $3 WHERE id = $1`,
		id, active, s.now())
}

func (s *Store) SetRole(ctx context.Context, id string, role account.Role) error {
	if !role.Valid() {
		return fmt.Errorf("pgstore: unknown role %q", role)
	}
	return s.execOne(ctx, `UPDATE accounts SET role = $2, updated_at = $3 WHERE id = $1`,
		id, string(role), s.now())
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if hash == "" {
		return errors.New("pgstore: empty password hash")
	}
	return s.execOne(ctx, `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, s.now())
}

func (s *Store) RecordLogin(ctx context.Context, id string, at time.Time, ip string) error {
	return s.execOne(ctx, `UPDATE accounts SET last_login_at = $2, last_login_ip = $3, updated_at = $4 WHERE id = $1`,
		id, at, ip, s.now())
}

func (s *Store) SaveOTP(ctx context.Context, id string, ch account.OTPChallenge) error {
	return s.execOne(ctx, `
		UPDATE accounts
		SET otp_digest = $2, otp_expires_at = $3, otp_attempts = $4, updated_at = $5
		WHERE id = $1`,
		id, ch.Digest, ch.ExpiresAt, ch.Attempts, s.now())
}

// VerifyOTP holds the row lock from the read until the write, so concurrent
// attempts on one account are judged one at a time.
func (s *Store) VerifyOTP(ctx context.Context, id string, a account.OTPAttempt) (account.OTPResult, error) {
	var res account.OTPResult
	err := s.withTx(ctx, func(tx dbtx) error {
		var (
			digest   sql.NullString
			expires  sql.NullTime
			attempts int
		)
		err := tx.QueryRowContext(ctx, `
			SELECT otp_digest, otp_expires_at, otp_attempts
			FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&digest, &expires, &attempts)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return account.ErrNotFound
			}
			return wrap(err)
		}
		var ch *account.OTPChallenge
		if digest.Valid {
			ch = &account.OTPChallenge{Digest: digest.String, Attempts: attempts}
			if expires.Valid {
				ch.ExpiresAt = expires.Time
			}
		}
		res = account.OTPResult{Verdict: a.Judge(ch), Attempts: attempts}
		switch res.Verdict {
		case account.OTPMissing:
			res.Attempts = 0
		case account.OTPMismatch:
			if err := tx.QueryRowContext(ctx, `
				UPDATE accounts SET otp_attempts = otp_attempts + 1
				WHERE id = $1 RETURNING otp_attempts`, id).Scan(&res.Attempts); err != nil {
				return wrap(err)
			}
		case account.OTPVerified:
			if _, err := tx.ExecContext(ctx, `
				UPDATE accounts
				SET email_verified = TRUE, otp_digest = NULL, otp_expires_at = NULL, otp_attempts = 0, updated_at = $2
				WHERE id = $1`, id, a.Now); err != nil {
				return wrap(err)
			}
		}
		return nil
	})
	if err != nil {
		return account.OTPResult{}, err
	}
	return res, nil
}

func (s *Store) SaveReset(ctx context.Context, id string, ch account.ResetChallenge) error {
	return s.execOne(ctx, `
		UPDATE accounts
		SET reset_id = $2, reset_digest = $3, reset_expires_at = $4, updated_at = $5
		WHERE id = $1`,
		id, ch.ID, ch.Digest, ch.ExpiresAt, s.now())
}

func (s *Store) ConsumeReset(ctx context.Context, id, resetID, passwordHash string) (bool, error) {
	if passwordHash == "" {
		return false, errors.New("pgstore: empty password hash")
	}
	consumed := false
	err := s.withTx(ctx, func(tx dbtx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET password_hash = $3, reset_id = NULL, reset_digest = NULL, reset_expires_at = NULL, updated_at = $4
			WHERE id = $1 AND reset_id = $2`,
			id, resetID, passwordHash, s.now())
		if err != nil {
			return wrap(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrap(err)
		}
		if n != 1 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE account_id = $1`, id); err != nil {
			return wrap(err)
		}
		consumed = true
		return nil
	})
	return consumed, err
}

// RecordLoginFailure evaluates every CASE against the pre-update row, which
// makes the statement equivalent to limiters.Apply.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, p account.LockoutParams) (account.LockoutState, error) {
	var (
		failed int
		locked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		UPDATE accounts SET
			failed_attempts = CASE
				WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
				ELSE failed_attempts + 1
			END,
			locked_until = CASE
				WHEN locked_until IS NOT NULL AND locked_until > $2 THEN locked_until
				WHEN (CASE
					WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
					ELSE failed_attempts + 1
				END) >= $3 THEN $4::timestamptz
				ELSE NULL
			END,
			updated_at = $2
		WHERE id = $1
		RETURNING failed_attempts, locked_until`,
		id, p.Now, p.Threshold, p.Now.Add(p.Window),
	).Scan(&failed, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.LockoutState{}, account.ErrNotFound
		}
		return account.LockoutState{}, wrap(err)
	}
	state := account.LockoutState{FailedAttempts: failed}
	if locked.Valid {
		state.LockedUntil = locked.Time
	}
	return state, nil
}

func (s *Store) ResetLoginFailures(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE accounts SET failed_attempts = 0, locked_until = NULL, updated_at = $2 WHERE id = $1`,
		id, s.now())
}

func (s *Store) AddRefreshToken(ctx context.Context, id string, tok account.RefreshToken, limit int) error {
	return s.withTx(ctx, func(tx dbtx) error {
		if err := lockAccount(ctx, tx, id); err != nil {
			return err
		}
		if err := insertRefresh(ctx, tx, id, tok); err != nil {
			return err
		}
		return trimRefresh(ctx, tx, id, limit)
	})
}

func (s *Store) RotateRefreshToken(ctx context.Context, id, oldHash string, next account.RefreshToken, limit int) error {
	return s.withTx(ctx, func(tx dbtx) error {
		if err := lockAccount(ctx, tx, id); err != nil {
			if errors.Is(err, account.ErrNotFound) {
				return account.ErrRefreshNotFound
			}
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM refresh_tokens WHERE account_id = $1 AND token_hash = $2`, id, oldHash)
		if err != nil {
			return wrap(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return wrap(err)
		} else if n == 0 {
			return account.ErrRefreshNotFound
		}
		if err := insertRefresh(ctx, tx, id, next); err != nil {
			return err
		}
		return trimRefresh(ctx, tx, id, limit)
	})
}

func (s *Store) RemoveRefreshToken(ctx context.Context, id, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE account_id = $1 AND token_hash = $2`, id, hash)
	if err != nil {
		return false, wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap(err)
	}
	return n > 0, nil
}

func (s *Store) ClearRefreshTokens(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE account_id = $1`, id); err != nil {
		return wrap(err)
	}
	return nil
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(err)
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func lockAccount(ctx context.Context, tx dbtx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.ErrNotFound
		}
		return wrap(err)
	}
	return nil
}

func insertRefresh(ctx context.Context, tx dbtx, id string, tok account.RefreshToken) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (account_id, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)`,
		id, tok.Hash, tok.IssuedAt, tok.ExpiresAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return account.ErrNotFound
		}
		return wrap(err)
	}
	return nil
}

func trimRefresh(ctx context.Context, tx dbtx, id string, limit int) error {
	if limit <= 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE account_id = $1 AND seq NOT IN (
			SELECT seq FROM refresh_tokens WHERE account_id = $1 ORDER BY seq DESC LIMIT $2
		)`, id, limit)
	if err != nil {
		return wrap(err)
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func wrap(err error) error {
	return fmt.Errorf("pgstore: %w", err)
}
