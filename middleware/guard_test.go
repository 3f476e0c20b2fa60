package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/mk070/zenauth"
	"github.com/mk070/zenauth/account"
	"github.com/mk070/zenauth/mail"
	"github.com/mk070/zenauth/middleware"
	"github.com/redis/go-redis/v9"
)

type fixture struct {
	engine *zenauth.Engine
	clock  *clockwork.FakeClock

	mu    sync.Mutex
	codes map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		clock: clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		codes: map[string]string{},
	}

	cfg := zenauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-access-secret-0001")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-refresh-secret-01")
	cfg.Password.BcryptCost = 4

	engine, err := zenauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithClock(f.clock).
		WithMailer(mail.SenderFunc(func(_ context.Context, to string, kind mail.Kind, payload mail.Payload) (string, error) {
			if kind == mail.KindVerification {
				f.mu.Lock()
				f.codes[to] = payload[mail.FieldCode]
				f.mu.Unlock()
			}
			return "msg", nil
		})).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	f.engine = engine
	return f
}

func (f *fixture) session(t *testing.T, email string) *zenauth.Session {
	t.Helper()
	ctx := context.Background()
	if _, err := f.engine.Signup(ctx, email, "correct-horse-battery"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	f.mu.Lock()
	code := f.codes[email]
	f.mu.Unlock()
	sess, err := f.engine.VerifyOTP(ctx, email, code)
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	return sess
}

func serve(handler http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGuardStoresIdentity(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, "ana@example.com")

	var seen *zenauth.Identity
	h := middleware.Guard(f.engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("identity missing from context")
		}
		seen = id
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := serve(h, "Bearer "+sess.Tokens.AccessToken)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen == nil || seen.AccountID != sess.Account.ID || seen.Email != "ana@example.com" {
		t.Fatalf("unexpected identity %+v", seen)
	}
}

func TestGuardRejections(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, "ana@example.com")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next must not run")
	})
	h := middleware.Guard(f.engine)(next)

	rec := serve(h, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer realm="zenauth"` {
		t.Fatalf("missing token: unexpected challenge %q", got)
	}

	rec = serve(h, "Bearer not-a-jwt")
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`) {
		t.Fatalf("malformed token: got %d %q", rec.Code, rec.Header().Get("WWW-Authenticate"))
	}

	if err := f.engine.Logout(context.Background(), sess.Tokens.AccessToken, ""); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	rec = serve(h, "Bearer "+sess.Tokens.AccessToken)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Header().Get("WWW-Authenticate"), "token revoked") {
		t.Fatalf("revoked token: got %d %q", rec.Code, rec.Header().Get("WWW-Authenticate"))
	}

	other := f.session(t, "ben@example.com")
	f.clock.Advance(15*time.Minute + time.Second)
	rec = serve(h, "Bearer "+other.Tokens.AccessToken)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Header().Get("WWW-Authenticate"), "token expired") {
		t.Fatalf("expired token: got %d %q", rec.Code, rec.Header().Get("WWW-Authenticate"))
	}
}

func TestGuardDeactivatedAccount(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, "ana@example.com")
	if err := f.engine.DeactivateAccount(context.Background(), sess.Account.ID); err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}

	h := middleware.Guard(f.engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next must not run")
	}))
	if rec := serve(h, "Bearer "+sess.Tokens.AccessToken); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestGuardNilEngine(t *testing.T) {
	h := middleware.Guard(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next must not run")
	}))
	if rec := serve(h, "Bearer x"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, "ana@example.com")
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	admin := middleware.Guard(f.engine)(middleware.RequireRole(account.RoleAdmin)(ok))
	if rec := serve(admin, "Bearer "+sess.Tokens.AccessToken); rec.Code != http.StatusForbidden {
		t.Fatalf("user on admin route: expected 403, got %d", rec.Code)
	}

	users := middleware.Guard(f.engine)(middleware.RequireRole(account.RoleUser, account.RoleAdmin)(middleware.RequireVerified(ok)))
	if rec := serve(users, "Bearer "+sess.Tokens.AccessToken); rec.Code != http.StatusNoContent {
		t.Fatalf("user route: expected 204, got %d", rec.Code)
	}

	unguarded := middleware.RequireRole(account.RoleUser)(ok)
	if rec := serve(unguarded, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("without Guard: expected 401, got %d", rec.Code)
	}
}
