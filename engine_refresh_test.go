package zenauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	e, env := newTestEngine(t, testConfig())
	session := signupVerified(t, e, env, "erin@x.com")
	ctx := context.Background()

	env.clock.Advance(time.Minute)
	pair, err := e.RefreshToken(ctx, session.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	if pair.RefreshToken == session.Tokens.RefreshToken || pair.AccessToken == session.Tokens.AccessToken {
		t.Fatal("expected a brand-new pair")
	}

	if _, err := e.RefreshToken(ctx, session.Tokens.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("replay: expected ErrTokenRevoked, got %v", err)
	}
	if _, err := e.RefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("rotated token should refresh: %v", err)
	}
}

func TestRefreshConcurrentReplaySucceedsOnce(t *testing.T) {
	e, env := newTestEngine(t, testConfig())
	session := signupVerified(t, e, env, "erin@x.com")
	ctx := context.Background()

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		revoked   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.RefreshToken(ctx, session.Tokens.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrTokenRevoked):
				revoked++
			}
		}()
	}
	wg.Wait()

	if successes != 1 || revoked != workers-1 {
		t.Fatalf("expected 1 success and %d revoked, got %d and %d", workers-1, successes, revoked)
	}
}

func TestRefreshSetIsCapped(t *testing.T) {
	cfg := testConfig()
	cfg.Refresh.MaxTokensPerAccount = 3
	e, env := newTestEngine(t, cfg)
	first := signupVerified(t, e, env, "erin@x.com")
	ctx := context.Background()

	var latest *Session
	for i := 0; i < 3; i++ {
		s, err := e.SignIn(ctx, "erin@x.com", testPassword)
		if err != nil {
			t.Fatalf("SignIn %d failed: %v", i+1, err)
		}
		latest = s
	}

	rec, err := e.store.GetByID(ctx, first.Account.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if len(rec.RefreshTokens) != 3 {
		t.Fatalf("expected 3 refresh tokens, got %d", len(rec.RefreshTokens))
	}

	if _, err := e.RefreshToken(ctx, first.Tokens.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("oldest token should be evicted, got %v", err)
	}
	if _, err := e.RefreshToken(ctx, latest.Tokens.RefreshToken); err != nil {
		t.Fatalf("latest token should refresh: %v", err)
	}
}

func TestRefreshRejectsBadTokens(t *testing.T) {
	e, env := newTestEngine(t, testConfig())
	session := signupVerified(t, e, env, "erin@x.com")
	ctx := context.Background()

	if _, err := e.RefreshToken(ctx, ""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if _, err := e.RefreshToken(ctx, "not-a-jwt"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
	if _, err := e.RefreshToken(ctx, session.Tokens.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token as refresh: expected ErrTokenInvalid, got %v", err)
	}

	env.clock.Advance(7*24*time.Hour + time.Second)
	if _, err := e.RefreshToken(ctx, session.Tokens.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefreshDeactivatedAccount(t *testing.T) {
	e, env := newTestEngine(t, testConfig())
	session := signupVerified(t, e, env, "erin@x.com")
	ctx := context.Background()

	if err := e.DeactivateAccount(ctx, session.Account.ID); err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}
	if _, err := e.RefreshToken(ctx, session.Tokens.RefreshToken); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}
}
