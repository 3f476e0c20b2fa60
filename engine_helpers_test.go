package zenauth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/mk070/zenauth/mail"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testPassword = "correct-horse-battery"

type sentMail struct {
	To      string
	Kind    mail.Kind
	Payload mail.Payload
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[mail.Kind]error
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{fail: map[mail.Kind]error{}}
}

func (m *recordingMailer) Send(_ context.Context, to string, kind mail.Kind, payload mail.Payload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[kind]; err != nil {
		return "", err
	}
	m.sent = append(m.sent, sentMail{To: to, Kind: kind, Payload: payload})
	return mail.NewMessageID(testEpoch), nil
}

func (m *recordingMailer) setFailure(kind mail.Kind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, kind)
		return
	}
	m.fail[kind] = err
}

func (m *recordingMailer) last(t *testing.T, to string, kind mail.Kind) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to && m.sent[i].Kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail sent to %s", kind, to)
	return sentMail{}
}

func (m *recordingMailer) count(kind mail.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

type testEnv struct {
	redis  *miniredis.Miniredis
	clock  *clockwork.FakeClock
	mailer *recordingMailer
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-access-secret-0001")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-refresh-secret-01")
	cfg.Password.BcryptCost = 4
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, configure ...func(*Builder)) (*Engine, *testEnv) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		redis:  mr,
		clock:  clockwork.NewFakeClockAt(testEpoch),
		mailer: newRecordingMailer(),
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMailer(env.mailer).
		WithClock(env.clock).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, env
}

// signupVerified creates an account and completes OTP verification.
func signupVerified(t *testing.T, e *Engine, env *testEnv, email string) *Session {
	t.Helper()
	ctx := context.Background()

	if _, err := e.Signup(ctx, email, testPassword); err != nil {
		t.Fatalf("Signup(%s) failed: %v", email, err)
	}
	code := env.mailer.last(t, email, mail.KindVerification).Payload[mail.FieldCode]
	session, err := e.VerifyOTP(ctx, email, code)
	if err != nil {
		t.Fatalf("VerifyOTP(%s) failed: %v", email, err)
	}
	return session
}

func redisClient(t *testing.T, env *testEnv) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: env.redis.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
