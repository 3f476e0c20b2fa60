package zenauth

import (
	"context"
	"errors"
)

const (
	auditEventSignup             = "signup"
	auditEventSignupDuplicate    = "signup_duplicate"
	auditEventOTPVerifySuccess   = "otp_verify_success"
	auditEventOTPVerifyFailure   = "otp_verify_failure"
	auditEventOTPResent          = "otp_resent"
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventAccountLocked      = "account_locked"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshReplay      = "refresh_replay"
	auditEventLogout             = "logout"
	auditEventLogoutAll          = "logout_all"
	auditEventResetRequest       = "password_reset_request"
	auditEventResetConfirm       = "password_reset_confirm"
	auditEventPasswordChange     = "password_change"
	auditEventAccountStatus      = "account_status_change"
	auditEventAccountUnlocked    = "account_unlocked"
	auditEventRoleChange         = "role_change"
	auditEventRateLimited        = "rate_limited"
	auditEventRevokedTokenDenied = "revoked_token_denied"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrDeactivated        AuditErrorCode = "account_deactivated"
	auditErrLocked             AuditErrorCode = "account_locked"
	auditErrUnverified         AuditErrorCode = "verification_required"
	auditErrAlreadyVerified    AuditErrorCode = "already_verified"
	auditErrInvalidOTP         AuditErrorCode = "invalid_otp"
	auditErrOTPExhausted       AuditErrorCode = "otp_attempts_exhausted"
	auditErrInvalidResetToken  AuditErrorCode = "invalid_reset_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrTokenInvalid       AuditErrorCode = "token_invalid"
	auditErrTokenMalformed     AuditErrorCode = "token_malformed"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInfrastructure     AuditErrorCode = "infrastructure"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now(),
		Type:      eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrDuplicateAccount):
		return auditErrDuplicate
	case errors.Is(err, ErrAccountNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrAccountDeactivated):
		return auditErrDeactivated
	case errors.Is(err, ErrAccountLocked):
		return auditErrLocked
	case errors.Is(err, ErrVerificationRequired):
		return auditErrUnverified
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrInvalidOrExpiredOTP):
		return auditErrInvalidOTP
	case errors.Is(err, ErrOTPAttemptsExhausted):
		return auditErrOTPExhausted
	case errors.Is(err, ErrInvalidOrExpiredResetToken):
		return auditErrInvalidResetToken
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrTokenMalformed):
		return auditErrTokenMalformed
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInfrastructure):
		return auditErrInfrastructure
	default:
		return auditErrInternal
	}
}
