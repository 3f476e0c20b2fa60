package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/mk070/zenauth/account"
	"github.com/mk070/zenauth/internal/limiters"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, *clockwork.FakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := clockwork.NewFakeClockAt(testEpoch)
	return New(rdb, WithPrefix("t"), WithClock(clock.Now)), mr, clock
}

func newTestRecord(id, email string) *account.Record {
	return &account.Record{
		ID:           id,
		Email:        email,
		PasswordHash: "$2a$04$placeholder",
		Active:       true,
		Role:         account.RoleUser,
		OTP: &account.OTPChallenge{
			Digest:    "salt:digest",
			ExpiresAt: testEpoch.Add(10 * time.Minute),
		},
		CreatedAt: testEpoch,
		UpdatedAt: testEpoch,
	}
}

func TestCreateAndLoad(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec, err := s.GetByEmail(ctx, "  Alice@Example.com ")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if rec.ID != "a1" || rec.Email != "alice@example.com" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.EmailVerified || !rec.Active || rec.Role != account.RoleUser {
		t.Fatalf("unexpected flags: %+v", rec)
	}
	if rec.OTP == nil || rec.OTP.Digest != "salt:digest" || !rec.OTP.ExpiresAt.Equal(testEpoch.Add(10*time.Minute)) {
		t.Fatalf("expected OTP challenge to round-trip, got %+v", rec.OTP)
	}
	if !rec.CreatedAt.Equal(testEpoch) {
		t.Fatalf("expected created_at %v, got %v", testEpoch, rec.CreatedAt)
	}
	if rec.Reset != nil || len(rec.RefreshTokens) != 0 {
		t.Fatalf("expected no reset challenge or refresh tokens")
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := s.Create(ctx, newTestRecord("a2", "alice@example.com"))
	if !errors.Is(err, account.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := s.GetByID(ctx, "a2"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("duplicate must not leave a record behind, got %v", err)
	}
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := newTestRecord(string(rune('a'+i)), "race@example.com")
			results <- s.Create(ctx, rec)
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, account.ErrDuplicate):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestMissingAccount(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetByID(ctx, "nope"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetByEmail(ctx, "nope@example.com"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetActive(ctx, "nope", false); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.RecordLoginFailure(ctx, "nope", account.LockoutParams{Threshold: 5, Window: time.Minute, Now: testEpoch}); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.AddRefreshToken(ctx, "nope", account.RefreshToken{Hash: "h"}, 5); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func verifyAttempt(candidate string) account.OTPAttempt {
	return account.OTPAttempt{Expected: "salt:digest", Candidate: candidate, MaxAttempts: 3, Now: testEpoch}
}

func TestVerifyOTPLifecycle(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	res, err := s.VerifyOTP(ctx, "a1", verifyAttempt("salt:wrong"))
	if err != nil || res.Verdict != account.OTPMismatch || res.Attempts != 1 {
		t.Fatalf("expected mismatch with attempts=1, got %+v err=%v", res, err)
	}

	stale := verifyAttempt("other:digest")
	stale.Expected = "other:digest"
	res, err = s.VerifyOTP(ctx, "a1", stale)
	if err != nil || res.Verdict != account.OTPMissing {
		t.Fatalf("expected replaced challenge to read as missing, got %+v err=%v", res, err)
	}

	res, err = s.VerifyOTP(ctx, "a1", verifyAttempt("salt:digest"))
	if err != nil || res.Verdict != account.OTPVerified {
		t.Fatalf("expected verification to complete, got %+v err=%v", res, err)
	}

	rec, err := s.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !rec.EmailVerified || rec.OTP != nil {
		t.Fatalf("expected verified account without challenge, got verified=%v otp=%+v", rec.EmailVerified, rec.OTP)
	}

	res, err = s.VerifyOTP(ctx, "a1", verifyAttempt("salt:digest"))
	if err != nil || res.Verdict != account.OTPMissing {
		t.Fatalf("expected cleared challenge to read as missing, got %+v err=%v", res, err)
	}
}

func TestVerifyOTPExpired(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	a := verifyAttempt("salt:digest")
	a.Now = testEpoch.Add(10 * time.Minute)
	res, err := s.VerifyOTP(ctx, "a1", a)
	if err != nil || res.Verdict != account.OTPExpired {
		t.Fatalf("expected expired, got %+v err=%v", res, err)
	}
	rec, _ := s.GetByID(ctx, "a1")
	if rec.EmailVerified || rec.OTP == nil || rec.OTP.Attempts != 0 {
		t.Fatalf("expected untouched challenge, got verified=%v otp=%+v", rec.EmailVerified, rec.OTP)
	}
}

func TestVerifyOTPRespectsAttemptCap(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.VerifyOTP(ctx, "a1", verifyAttempt("salt:wrong")); err != nil {
			t.Fatalf("VerifyOTP failed: %v", err)
		}
	}

	res, err := s.VerifyOTP(ctx, "a1", verifyAttempt("salt:digest"))
	if err != nil || res.Verdict != account.OTPExhausted || res.Attempts != 3 {
		t.Fatalf("expected exhausted challenge to reject the right code, got %+v err=%v", res, err)
	}

	if err := s.SaveOTP(ctx, "a1", account.OTPChallenge{Digest: "new:digest", ExpiresAt: testEpoch.Add(time.Hour)}); err != nil {
		t.Fatalf("SaveOTP failed: %v", err)
	}
	rec, _ := s.GetByID(ctx, "a1")
	if rec.OTP == nil || rec.OTP.Attempts != 0 || rec.OTP.Digest != "new:digest" {
		t.Fatalf("expected fresh challenge, got %+v", rec.OTP)
	}
}

func TestVerifyOTPConcurrentGuessesStopAtCap(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const guesses = 10
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		mismatches int
	)
	for i := 0; i < guesses; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.VerifyOTP(ctx, "a1", verifyAttempt("salt:wrong"))
			if err != nil {
				t.Errorf("VerifyOTP failed: %v", err)
				return
			}
			if res.Verdict == account.OTPMismatch {
				mu.Lock()
				mismatches++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if mismatches != 3 {
		t.Fatalf("expected exactly 3 compared guesses, got %d", mismatches)
	}
	rec, _ := s.GetByID(ctx, "a1")
	if rec.OTP == nil || rec.OTP.Attempts != 3 {
		t.Fatalf("expected attempts to stop at 3, got %+v", rec.OTP)
	}
	res, err := s.VerifyOTP(ctx, "a1", verifyAttempt("salt:digest"))
	if err != nil || res.Verdict != account.OTPExhausted {
		t.Fatalf("expected the right code to be refused after the cap, got %+v err=%v", res, err)
	}
}

func TestSetRole(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.SetRole(ctx, "a1", account.RoleAdmin); err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	rec, _ := s.GetByID(ctx, "a1")
	if rec.Role != account.RoleAdmin {
		t.Fatalf("expected admin role, got %q", rec.Role)
	}
	if err := s.SetRole(ctx, "a1", account.Role("root")); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
	if err := s.SetRole(ctx, "nope", account.RoleAdmin); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResetLifecycle(t *testing.T) {
	s, mr, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.AddRefreshToken(ctx, "a1", account.RefreshToken{Hash: "r1", IssuedAt: testEpoch, ExpiresAt: testEpoch.Add(time.Hour)}, 5); err != nil {
		t.Fatalf("AddRefreshToken failed: %v", err)
	}

	first := account.ResetChallenge{ID: "rid1", Digest: "s:d1", ExpiresAt: testEpoch.Add(30 * time.Minute)}
	if err := s.SaveReset(ctx, "a1", first); err != nil {
		t.Fatalf("SaveReset failed: %v", err)
	}
	if ttl := mr.TTL("t:reset:rid1"); ttl != 30*time.Minute {
		t.Fatalf("expected reset index ttl 30m, got %v", ttl)
	}

	second := account.ResetChallenge{ID: "rid2", Digest: "s:d2", ExpiresAt: testEpoch.Add(30 * time.Minute)}
	if err := s.SaveReset(ctx, "a1", second); err != nil {
		t.Fatalf("SaveReset failed: %v", err)
	}
	if _, err := s.GetByResetID(ctx, "rid1"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("superseded reset id must not resolve, got %v", err)
	}

	rec, err := s.GetByResetID(ctx, "rid2")
	if err != nil {
		t.Fatalf("GetByResetID failed: %v", err)
	}
	if rec.Reset == nil || rec.Reset.Digest != "s:d2" {
		t.Fatalf("unexpected reset challenge: %+v", rec.Reset)
	}

	ok, err := s.ConsumeReset(ctx, "a1", "rid1", "newhash")
	if err != nil || ok {
		t.Fatalf("expected stale reset id to be rejected, ok=%v err=%v", ok, err)
	}
	ok, err = s.ConsumeReset(ctx, "a1", "rid2", "newhash")
	if err != nil || !ok {
		t.Fatalf("expected reset to be consumed, ok=%v err=%v", ok, err)
	}
	ok, err = s.ConsumeReset(ctx, "a1", "rid2", "otherhash")
	if err != nil || ok {
		t.Fatalf("expected replayed reset to be rejected, ok=%v err=%v", ok, err)
	}

	rec, _ = s.GetByID(ctx, "a1")
	if rec.PasswordHash != "newhash" || rec.Reset != nil || len(rec.RefreshTokens) != 0 {
		t.Fatalf("expected new hash, no reset and no refresh tokens, got %+v", rec)
	}
}

func TestLoginFailureMatchesApply(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var want account.LockoutState
	steps := []time.Duration{0, time.Second, time.Second, time.Second, time.Second, time.Minute, 31 * time.Minute, time.Second}
	for i, step := range steps {
		clock.Advance(step)
		p := account.LockoutParams{Threshold: 5, Window: 30 * time.Minute, Now: clock.Now()}
		want = limiters.Apply(want, p)

		got, err := s.RecordLoginFailure(ctx, "a1", p)
		if err != nil {
			t.Fatalf("step %d: RecordLoginFailure failed: %v", i, err)
		}
		if got.FailedAttempts != want.FailedAttempts || !got.LockedUntil.Equal(want.LockedUntil) {
			t.Fatalf("step %d: expected %+v, got %+v", i, want, got)
		}
	}

	if err := s.ResetLoginFailures(ctx, "a1"); err != nil {
		t.Fatalf("ResetLoginFailures failed: %v", err)
	}
	rec, _ := s.GetByID(ctx, "a1")
	if rec.Lockout.FailedAttempts != 0 || !rec.Lockout.LockedUntil.IsZero() {
		t.Fatalf("expected cleared lockout, got %+v", rec.Lockout)
	}
}

func TestRefreshSetCapEvictsOldest(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	hashes := []string{"h1", "h2", "h3", "h4"}
	for _, h := range hashes {
		tok := account.RefreshToken{Hash: h, IssuedAt: testEpoch, ExpiresAt: testEpoch.Add(time.Hour)}
		if err := s.AddRefreshToken(ctx, "a1", tok, 3); err != nil {
			t.Fatalf("AddRefreshToken %s failed: %v", h, err)
		}
	}

	rec, _ := s.GetByID(ctx, "a1")
	if len(rec.RefreshTokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(rec.RefreshTokens))
	}
	for i, want := range []string{"h2", "h3", "h4"} {
		if rec.RefreshTokens[i].Hash != want {
			t.Fatalf("expected %s at %d, got %s", want, i, rec.RefreshTokens[i].Hash)
		}
	}
}

func TestRotateRefreshToken(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	tok := account.RefreshToken{Hash: "old", IssuedAt: testEpoch, ExpiresAt: testEpoch.Add(time.Hour)}
	if err := s.AddRefreshToken(ctx, "a1", tok, 5); err != nil {
		t.Fatalf("AddRefreshToken failed: %v", err)
	}

	next := account.RefreshToken{Hash: "new", IssuedAt: testEpoch.Add(time.Minute), ExpiresAt: testEpoch.Add(time.Hour)}
	if err := s.RotateRefreshToken(ctx, "a1", "old", next, 5); err != nil {
		t.Fatalf("RotateRefreshToken failed: %v", err)
	}
	if err := s.RotateRefreshToken(ctx, "a1", "old", next, 5); !errors.Is(err, account.ErrRefreshNotFound) {
		t.Fatalf("expected replay to fail with ErrRefreshNotFound, got %v", err)
	}

	rec, _ := s.GetByID(ctx, "a1")
	if len(rec.RefreshTokens) != 1 || rec.RefreshTokens[0].Hash != "new" {
		t.Fatalf("expected only rotated token, got %+v", rec.RefreshTokens)
	}
	if !rec.RefreshTokens[0].IssuedAt.Equal(next.IssuedAt) {
		t.Fatalf("expected issued_at to round-trip, got %v", rec.RefreshTokens[0].IssuedAt)
	}

	removed, err := s.RemoveRefreshToken(ctx, "a1", "new")
	if err != nil || !removed {
		t.Fatalf("expected removal, removed=%v err=%v", removed, err)
	}
	removed, err = s.RemoveRefreshToken(ctx, "a1", "new")
	if err != nil || removed {
		t.Fatalf("expected second removal to be a no-op, removed=%v err=%v", removed, err)
	}
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.AddRefreshToken(ctx, "a1", account.RefreshToken{Hash: "old", IssuedAt: testEpoch, ExpiresAt: testEpoch.Add(time.Hour)}, 5); err != nil {
		t.Fatalf("AddRefreshToken failed: %v", err)
	}

	const workers = 6
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := account.RefreshToken{Hash: "n" + string(rune('0'+i)), IssuedAt: testEpoch, ExpiresAt: testEpoch.Add(time.Hour)}
			results <- s.RotateRefreshToken(ctx, "a1", "old", next, 5)
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, account.ErrRefreshNotFound) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one rotation to win, got %d", wins)
	}
}

func TestSetActiveAndRecordLogin(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newTestRecord("a1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.SetActive(ctx, "a1", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	clock.Advance(time.Minute)
	if err := s.RecordLogin(ctx, "a1", clock.Now(), "10.0.0.1"); err != nil {
		t.Fatalf("RecordLogin failed: %v", err)
	}
	if err := s.ClearRefreshTokens(ctx, "a1"); err != nil {
		t.Fatalf("ClearRefreshTokens failed: %v", err)
	}

	rec, _ := s.GetByID(ctx, "a1")
	if rec.Active {
		t.Fatalf("expected inactive account")
	}
	if !rec.LastLoginAt.Equal(clock.Now()) || rec.LastLoginIP != "10.0.0.1" {
		t.Fatalf("unexpected last login: %v %q", rec.LastLoginAt, rec.LastLoginIP)
	}
	if !rec.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updated_at bump, got %v", rec.UpdatedAt)
	}
}
