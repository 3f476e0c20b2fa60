// Package redisstore implements account.Store on Redis.
//
// Each account is one hash; an email index key enforces uniqueness with SETNX
// and a reset index key with a TTL maps live reset ids to accounts. Refresh
// tokens live in a second hash per account. Every compound update runs as a
// Lua script so it is atomic with respect to concurrent requests.
//
// Scripts touch the account hash together with its index keys, so a Redis
// Cluster deployment must keep them in one slot (for example with a hash-tag
// prefix such as "{za}").
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mk070/zenauth/account"
)

// DefaultPrefix is the key namespace used when none is configured.
const DefaultPrefix = "za"

// Store is a Redis-backed account.Store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ account.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock sets the time source used for updated_at stamps and index TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store over client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{redis: client, prefix: DefaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) accountKey(id string) string { return s.prefix + ":acct:" + id }
func (s *Store) emailKey(email string) string { return s.prefix + ":email:" + email }
func (s *Store) resetPrefix() string { return s.prefix + ":reset:" }
func (s *Store) resetKey(resetID string) string { return s.resetPrefix() + resetID }
func (s *Store) refreshKey(id string) string { return s.prefix + ":rt:" + id }

// Create inserts rec and claims its email atomically.
func (s *Store) Create(ctx context.Context, rec *account.Record) error {
	if rec == nil || rec.ID == "" || rec.Email == "" {
		return errors.New("redisstore: id and email required")
	}
	args := append([]interface{}{rec.ID}, encodeRecord(rec)...)
	created, err := createAccountLua.Run(ctx, s.redis,
		[]string{s.emailKey(rec.Email), s.accountKey(rec.ID)}, args...).Int64()
	if err != nil {
		return wrap(err)
	}
	if created == 0 {
		return account.ErrDuplicate
	}
	return nil
}

// GetByID loads the account hash and its refresh set in one round trip.
func (s *Store) GetByID(ctx context.Context, id string) (*account.Record, error) {
	pipe := s.redis.Pipeline()
	fields := pipe.HGetAll(ctx, s.accountKey(id))
	tokens := pipe.HGetAll(ctx, s.refreshKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, wrap(err)
	}
	if len(fields.Val()) == 0 {
		return nil, account.ErrNotFound
	}
	return decodeRecord(fields.Val(), tokens.Val())
}

// GetByEmail resolves the email index, then loads the account.
func (s *Store) GetByEmail(ctx context.Context, email string) (*account.Record, error) {
	id, err := s.redis.Get(ctx, s.emailKey(account.NormalizeEmail(email))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, account.ErrNotFound
		}
		return nil, wrap(err)
	}
	return s.GetByID(ctx, id)
}

// GetByResetID resolves a live reset id. Superseded ids are not found.
func (s *Store) GetByResetID(ctx context.Context, resetID string) (*account.Record, error) {
	id, err := s.redis.Get(ctx, s.resetKey(resetID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, account.ErrNotFound
		}
		return nil, wrap(err)
	}
	rec, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Reset == nil || rec.Reset.ID != resetID {
		return nil, account.ErrNotFound
	}
	return rec, nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.update(ctx, id, "active", boolField(active))
}

func (s *Store) SetRole(ctx context.Context, id string, role account.Role) error {
	if !role.Valid() {
		return fmt.Errorf("redisstore: unknown role %q", role)
	}
	return s.update(ctx, id, "role", string(role))
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if hash == "" {
		return errors.New("redisstore: empty password hash")
	}
	return s.update(ctx, id, "pw", hash)
}

func (s *Store) RecordLogin(ctx context.Context, id string, at time.Time, ip string) error {
	return s.update(ctx, id, "last_login_at", msField(at), "last_login_ip", ip)
}

func (s *Store) SaveOTP(ctx context.Context, id string, ch account.OTPChallenge) error {
	return s.update(ctx, id,
		"otp_digest", ch.Digest,
		"otp_exp", msField(ch.ExpiresAt),
		"otp_attempts", fmt.Sprint(ch.Attempts),
	)
}

func (s *Store) VerifyOTP(ctx context.Context, id string, a account.OTPAttempt) (account.OTPResult, error) {
	res, err := verifyOTPLua.Run(ctx, s.redis, []string{s.accountKey(id)},
		a.Expected, a.Candidate, a.MaxAttempts, msField(a.Now),
	).Int64Slice()
	if err != nil {
		return account.OTPResult{}, wrap(err)
	}
	if len(res) != 2 {
		return account.OTPResult{}, errors.New("redisstore: unexpected verify script reply")
	}
	return account.OTPResult{Verdict: account.OTPVerdict(res[0]), Attempts: int(res[1])}, nil
}

func (s *Store) SaveReset(ctx context.Context, id string, ch account.ResetChallenge) error {
	now := s.now()
	ttl := ch.ExpiresAt.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	ok, err := saveResetLua.Run(ctx, s.redis,
		[]string{s.accountKey(id), s.resetKey(ch.ID)},
		id, ch.ID, ch.Digest, msField(ch.ExpiresAt), ttl.Milliseconds(), s.resetPrefix(), msField(now),
	).Int64()
	if err != nil {
		return wrap(err)
	}
	if ok == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (s *Store) ConsumeReset(ctx context.Context, id, resetID, passwordHash string) (bool, error) {
	if passwordHash == "" {
		return false, errors.New("redisstore: empty password hash")
	}
	ok, err := consumeResetLua.Run(ctx, s.redis,
		[]string{s.accountKey(id), s.resetKey(resetID), s.refreshKey(id)},
		resetID, passwordHash, msField(s.now()),
	).Int64()
	if err != nil {
		return false, wrap(err)
	}
	return ok == 1, nil
}

func (s *Store) RecordLoginFailure(ctx context.Context, id string, p account.LockoutParams) (account.LockoutState, error) {
	res, err := loginFailureLua.Run(ctx, s.redis, []string{s.accountKey(id)},
		msField(p.Now), p.Threshold, msField(p.Now.Add(p.Window)),
	).Slice()
	if err != nil {
		return account.LockoutState{}, wrap(err)
	}
	if len(res) != 3 {
		return account.LockoutState{}, errors.New("redisstore: unexpected lockout script reply")
	}
	if status, _ := res[0].(int64); status == 0 {
		return account.LockoutState{}, account.ErrNotFound
	}
	failed, _ := res[1].(int64)
	lockedRaw, _ := res[2].(string)
	return account.LockoutState{
		FailedAttempts: int(failed),
		LockedUntil:    parseMs(lockedRaw),
	}, nil
}

func (s *Store) ResetLoginFailures(ctx context.Context, id string) error {
	return s.update(ctx, id, "failed", "0", "locked_until", "0")
}

func (s *Store) AddRefreshToken(ctx context.Context, id string, tok account.RefreshToken, limit int) error {
	n, err := addRefreshLua.Run(ctx, s.redis,
		[]string{s.accountKey(id), s.refreshKey(id)},
		tok.Hash, refreshValue(tok), limit,
	).Int64()
	if err != nil {
		return wrap(err)
	}
	if n < 0 {
		return account.ErrNotFound
	}
	return nil
}

func (s *Store) RotateRefreshToken(ctx context.Context, id, oldHash string, next account.RefreshToken, limit int) error {
	n, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.accountKey(id), s.refreshKey(id)},
		oldHash, next.Hash, refreshValue(next), limit,
	).Int64()
	if err != nil {
		return wrap(err)
	}
	if n == 0 {
		return account.ErrRefreshNotFound
	}
	return nil
}

func (s *Store) RemoveRefreshToken(ctx context.Context, id, hash string) (bool, error) {
	n, err := s.redis.HDel(ctx, s.refreshKey(id), hash).Result()
	if err != nil {
		return false, wrap(err)
	}
	return n > 0, nil
}

func (s *Store) ClearRefreshTokens(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.refreshKey(id)).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, id string, fields ...interface{}) error {
	fields = append(fields, "updated_at", msField(s.now()))
	ok, err := updateAccountLua.Run(ctx, s.redis, []string{s.accountKey(id)}, fields...).Int64()
	if err != nil {
		return wrap(err)
	}
	if ok == 0 {
		return account.ErrNotFound
	}
	return nil
}

func wrap(err error) error {
	return fmt.Errorf("redisstore: %w", err)
}
