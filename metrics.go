package zenauth

import (
	internalmetrics "github.com/mk070/zenauth/internal/metrics"
)

// MetricID names one engine counter or histogram.
type MetricID = internalmetrics.ID

// MetricsSnapshot is a point-in-time copy of the engine metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// HistogramSnapshot is one latency histogram at snapshot time.
type HistogramSnapshot = internalmetrics.HistogramSnapshot

const (
	MetricSignupSuccess        = internalmetrics.SignupSuccess
	MetricSignupDuplicate      = internalmetrics.SignupDuplicate
	MetricSignupFailure        = internalmetrics.SignupFailure
	MetricOTPVerifySuccess     = internalmetrics.OTPVerifySuccess
	MetricOTPVerifyFailure     = internalmetrics.OTPVerifyFailure
	MetricOTPAttemptsExhausted = internalmetrics.OTPAttemptsExhausted
	MetricOTPResent            = internalmetrics.OTPResent
	MetricSignInSuccess        = internalmetrics.SignInSuccess
	MetricSignInFailure        = internalmetrics.SignInFailure
	MetricSignInLocked         = internalmetrics.SignInLocked
	MetricSignInUnverified     = internalmetrics.SignInUnverified
	MetricSignInDeactivated    = internalmetrics.SignInDeactivated
	MetricRateLimited          = internalmetrics.RateLimited
	MetricAccountLocked        = internalmetrics.AccountLocked
	MetricRefreshSuccess       = internalmetrics.RefreshSuccess
	MetricRefreshFailure       = internalmetrics.RefreshFailure
	MetricRefreshReplay        = internalmetrics.RefreshReplay
	MetricLogout               = internalmetrics.Logout
	MetricLogoutAll            = internalmetrics.LogoutAll
	MetricTokenRevokedRejected = internalmetrics.TokenRevokedRejected
	MetricPasswordResetRequest = internalmetrics.PasswordResetRequest
	MetricPasswordResetSuccess = internalmetrics.PasswordResetSuccess
	MetricPasswordResetFailure = internalmetrics.PasswordResetFailure
	MetricPasswordChanged      = internalmetrics.PasswordChanged
	MetricAccountDeactivated   = internalmetrics.AccountDeactivated
	MetricAccountReactivated   = internalmetrics.AccountReactivated
	MetricAccountUnlocked      = internalmetrics.AccountUnlocked
	MetricEmailDispatchFailure = internalmetrics.EmailDispatchFailure
	MetricAuthenticateLatency  = internalmetrics.AuthenticateLatency
)

// MetricBucketBounds are the upper bounds, in seconds, of the finite latency
// buckets. The last bucket is +Inf.
func MetricBucketBounds() []float64 {
	out := make([]float64, 0, len(internalmetrics.BucketBounds))
	for _, b := range internalmetrics.BucketBounds {
		out = append(out, b.Seconds())
	}
	return out
}
