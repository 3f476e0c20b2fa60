package internaldefs

import (
	"github.com/mk070/zenauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   zenauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   zenauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "zenauth_audit_dropped_total"

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: zenauth.MetricSignupSuccess, Name: "zenauth_signup_success_total", Help: "Accounts created."},
	{ID: zenauth.MetricSignupDuplicate, Name: "zenauth_signup_duplicate_total", Help: "Signups rejected for an existing email."},
	{ID: zenauth.MetricSignupFailure, Name: "zenauth_signup_failure_total", Help: "Signups rejected by validation or infrastructure."},
	{ID: zenauth.MetricOTPVerifySuccess, Name: "zenauth_otp_verify_success_total", Help: "Successful email verifications."},
	{ID: zenauth.MetricOTPVerifyFailure, Name: "zenauth_otp_verify_failure_total", Help: "Rejected verification codes."},
	{ID: zenauth.MetricOTPAttemptsExhausted, Name: "zenauth_otp_attempts_exhausted_total", Help: "Verification codes invalidated by the attempt cap."},
	{ID: zenauth.MetricOTPResent, Name: "zenauth_otp_resent_total", Help: "Verification codes reissued."},
	{ID: zenauth.MetricSignInSuccess, Name: "zenauth_signin_success_total", Help: "Successful sign-ins."},
	{ID: zenauth.MetricSignInFailure, Name: "zenauth_signin_failure_total", Help: "Sign-ins rejected for bad credentials."},
	{ID: zenauth.MetricSignInLocked, Name: "zenauth_signin_locked_total", Help: "Sign-ins rejected for a locked account."},
	{ID: zenauth.MetricSignInUnverified, Name: "zenauth_signin_unverified_total", Help: "Sign-ins rejected for an unverified email."},
	{ID: zenauth.MetricSignInDeactivated, Name: "zenauth_signin_deactivated_total", Help: "Sign-ins rejected for a deactivated account."},
	{ID: zenauth.MetricRateLimited, Name: "zenauth_rate_limited_total", Help: "Requests denied by a throttle."},
	{ID: zenauth.MetricAccountLocked, Name: "zenauth_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: zenauth.MetricRefreshSuccess, Name: "zenauth_refresh_success_total", Help: "Refresh tokens rotated."},
	{ID: zenauth.MetricRefreshFailure, Name: "zenauth_refresh_failure_total", Help: "Refresh attempts rejected."},
	{ID: zenauth.MetricRefreshReplay, Name: "zenauth_refresh_replay_total", Help: "Refresh tokens presented after rotation or logout."},
	{ID: zenauth.MetricLogout, Name: "zenauth_logout_total", Help: "Single-session logouts."},
	{ID: zenauth.MetricLogoutAll, Name: "zenauth_logout_all_total", Help: "Logout-all operations."},
	{ID: zenauth.MetricTokenRevokedRejected, Name: "zenauth_token_revoked_rejected_total", Help: "Access tokens rejected as revoked."},
	{ID: zenauth.MetricPasswordResetRequest, Name: "zenauth_password_reset_request_total", Help: "Reset tokens issued."},
	{ID: zenauth.MetricPasswordResetSuccess, Name: "zenauth_password_reset_success_total", Help: "Passwords reset."},
	{ID: zenauth.MetricPasswordResetFailure, Name: "zenauth_password_reset_failure_total", Help: "Reset attempts rejected."},
	{ID: zenauth.MetricPasswordChanged, Name: "zenauth_password_changed_total", Help: "Passwords changed by their owner."},
	{ID: zenauth.MetricAccountDeactivated, Name: "zenauth_account_deactivated_total", Help: "Accounts deactivated."},
	{ID: zenauth.MetricAccountReactivated, Name: "zenauth_account_reactivated_total", Help: "Accounts reactivated."},
	{ID: zenauth.MetricAccountUnlocked, Name: "zenauth_account_unlocked_total", Help: "Accounts unlocked by an operator."},
	{ID: zenauth.MetricEmailDispatchFailure, Name: "zenauth_email_dispatch_failure_total", Help: "Emails the mailer failed to send."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: zenauth.MetricAuthenticateLatency, Name: "zenauth_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// Cumulative converts per-bucket counts into running totals, as both
// Prometheus and OTel expect.
func Cumulative(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
