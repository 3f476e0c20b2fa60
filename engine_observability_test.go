package zenauth

import (
	"context"
	"testing"
	"time"
)

func TestMetricsCountOutcomes(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	e, env := newTestEngine(t, cfg)
	session := signupVerified(t, e, env, "lee@x.com")
	ctx := context.Background()

	_, _ = e.SignIn(ctx, "lee@x.com", "wrong-password")
	_, _ = e.SignIn(ctx, "lee@x.com", testPassword)
	_, _ = e.Authenticate(ctx, session.Tokens.AccessToken)
	_, _ = e.RefreshToken(ctx, session.Tokens.RefreshToken)
	_, _ = e.RefreshToken(ctx, session.Tokens.RefreshToken)

	snap := e.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricSignupSuccess:    1,
		MetricOTPVerifySuccess: 1,
		MetricSignInFailure:    1,
		MetricSignInSuccess:    1,
		MetricRefreshSuccess:   1,
		MetricRefreshReplay:    1,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("metric %d: expected %d, got %d", id, want, got)
		}
	}
	if got := snap.Histograms[MetricAuthenticateLatency].Count(); got != 1 {
		t.Fatalf("expected 1 latency observation, got %d", got)
	}
}

func TestMetricsDisabledSnapshotIsEmpty(t *testing.T) {
	e, env := newTestEngine(t, testConfig())
	signupVerified(t, e, env, "lee@x.com")

	snap := e.MetricsSnapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestAuditEventsReachSink(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	sink := NewChannelSink(64)
	e, env := newTestEngine(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })
	session := signupVerified(t, e, env, "lee@x.com")

	ctx := WithUserAgent(WithClientIP(context.Background(), "192.0.2.9"), "test-agent")
	_, _ = e.SignIn(ctx, "lee@x.com", "wrong-password")

	want := []string{auditEventSignup, auditEventOTPVerifySuccess, auditEventLoginFailure}
	for i, typ := range want {
		select {
		case ev := <-sink.Events():
			if ev.Type != typ {
				t.Fatalf("event %d: expected %s, got %s", i, typ, ev.Type)
			}
			if typ == auditEventLoginFailure {
				if ev.AccountID != session.Account.ID || ev.IP != "192.0.2.9" || ev.UserAgent != "test-agent" {
					t.Fatalf("unexpected event %+v", ev)
				}
				if ev.Error != string(auditErrInvalidCredentials) || ev.Metadata["failed_attempts"] != "1" {
					t.Fatalf("unexpected failure details %+v", ev)
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestBuilderRequiresStore(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without redis or store")
	}

	b := New().WithConfig(Config{})
	if _, err := b.Build(); err == nil {
		t.Fatal("expected invalid config error")
	}
}

func TestEngineNotReady(t *testing.T) {
	var e Engine
	if _, err := e.SignIn(context.Background(), "a@x.com", testPassword); err != ErrEngineNotReady {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
