package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mk070/zenauth"
	"github.com/mk070/zenauth/account"
	"github.com/mk070/zenauth/middleware"
)

const maxBodyBytes = 1 << 16

type server struct {
	engine *zenauth.Engine
	logger *slog.Logger
}

// routes mounts every engine operation. metrics may be nil.
func (s *server) routes(metrics http.Handler, trustForwarded bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.ClientInfo(trustForwarded))
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/signup", s.signup)
		r.Post("/verify", s.verify)
		r.Post("/verify/resend", s.resend)
		r.Post("/signin", s.signIn)
		r.Post("/token/refresh", s.refresh)
		r.Post("/logout", s.logout)
		r.Post("/logout/all", s.logoutAll)
		r.Post("/password/forgot", s.forgot)
		r.Post("/password/reset", s.reset)
		r.Post("/password/change", s.changePassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.engine))
			r.Get("/me", s.me)

			r.Route("/admin/accounts/{id}", func(r chi.Router) {
				r.Use(middleware.RequireRole(account.RoleAdmin))
				r.Get("/", s.getAccount)
				r.Post("/deactivate", s.deactivate)
				r.Post("/reactivate", s.reactivate)
				r.Post("/unlock", s.unlock)
				r.Post("/role", s.setRole)
			})
		})
	})
	return r
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.code),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

/*
====================================
REQUEST / RESPONSE BODIES
====================================
*/

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type tokensResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type accountResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Role           string     `json:"role"`
	EmailVerified  bool       `json:"email_verified"`
	Active         bool       `json:"active"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type sessionResponse struct {
	Account accountResponse `json:"account"`
	Tokens  tokensResponse  `json:"tokens"`
}

type signupResponse struct {
	AccountID    string    `json:"account_id"`
	Email        string    `json:"email"`
	OTPExpiresAt time.Time `json:"otp_expires_at"`
}

type identityResponse struct {
	AccountID     string    `json:"account_id"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type errorResponse struct {
	Error             string `json:"error"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

func newTokensResponse(p zenauth.TokenPair) tokensResponse {
	return tokensResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func newAccountResponse(a zenauth.AccountInfo) accountResponse {
	out := accountResponse{
		ID:             a.ID,
		Email:          a.Email,
		Role:           string(a.Role),
		EmailVerified:  a.EmailVerified,
		Active:         a.Active,
		FailedAttempts: a.FailedAttempts,
		CreatedAt:      a.CreatedAt,
	}
	if !a.LockedUntil.IsZero() {
		t := a.LockedUntil
		out.LockedUntil = &t
	}
	if !a.LastLoginAt.IsZero() {
		t := a.LastLoginAt
		out.LastLoginAt = &t
	}
	return out
}

func newSessionResponse(s *zenauth.Session) sessionResponse {
	return sessionResponse{
		Account: newAccountResponse(s.Account),
		Tokens:  newTokensResponse(s.Tokens),
	}
}

/*
====================================
HANDLERS
====================================
*/

func (s *server) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, signupResponse{
		AccountID:    res.AccountID,
		Email:        res.Email,
		OTPExpiresAt: res.OTPExpiresAt,
	})
}

func (s *server) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.engine.VerifyOTP(r.Context(), req.Email, req.Code)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *server) resend(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ResendOTP(r.Context(), req.Email); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.engine.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	pair, err := s.engine.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokensResponse(*pair))
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.Logout(r.Context(), r.Header.Get("Authorization"), req.RefreshToken); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) logoutAll(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.LogoutAll(r.Context(), r.Header.Get("Authorization")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) forgot(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ForgotPassword(r.Context(), req.Email); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.engine.ChangePassword(r.Context(), r.Header.Get("Authorization"), req.OldPassword, req.NewPassword)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		s.fail(w, zenauth.ErrNoToken)
		return
	}
	writeJSON(w, http.StatusOK, identityResponse{
		AccountID:     id.AccountID,
		Email:         id.Email,
		Role:          string(id.Role),
		EmailVerified: id.EmailVerified,
		ExpiresAt:     id.ExpiresAt,
	})
}

func (s *server) getAccount(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(*info))
}

func (s *server) deactivate(w http.ResponseWriter, r *http.Request) {
	s.accountAction(w, r, s.engine.DeactivateAccount)
}

func (s *server) reactivate(w http.ResponseWriter, r *http.Request) {
	s.accountAction(w, r, s.engine.ReactivateAccount)
}

func (s *server) unlock(w http.ResponseWriter, r *http.Request) {
	s.accountAction(w, r, s.engine.UnlockAccount)
}

func (s *server) setRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.SetRole(r.Context(), chi.URLParam(r, "id"), account.Role(req.Role)); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) accountAction(w http.ResponseWriter, r *http.Request, action func(context.Context, string) error) {
	if err := action(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/*
====================================
ENCODING
====================================
*/

func (s *server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request"})
		return false
	}
	return true
}

// fail maps an engine outcome to a status code and a stable error string.
func (s *server) fail(w http.ResponseWriter, err error) {
	var (
		locked *zenauth.LockedError
		otp    *zenauth.OTPError
	)
	switch {
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(int(locked.RetryAfter().Seconds())))
		writeJSON(w, http.StatusLocked, errorResponse{Error: "account_locked"})
	case errors.As(err, &otp):
		remaining := otp.Remaining
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid_otp", RemainingAttempts: &remaining})
	case errors.Is(err, zenauth.ErrInvalidEmail), errors.Is(err, zenauth.ErrPasswordPolicy),
		errors.Is(err, zenauth.ErrInvalidRole):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: code(err)})
	case errors.Is(err, zenauth.ErrDuplicateAccount), errors.Is(err, zenauth.ErrAlreadyVerified):
		writeJSON(w, http.StatusConflict, errorResponse{Error: code(err)})
	case errors.Is(err, zenauth.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: code(err)})
	case errors.Is(err, zenauth.ErrAccountDeactivated), errors.Is(err, zenauth.ErrVerificationRequired):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: code(err)})
	case errors.Is(err, zenauth.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: code(err)})
	case errors.Is(err, zenauth.ErrInvalidCredentials),
		errors.Is(err, zenauth.ErrInvalidOrExpiredOTP),
		errors.Is(err, zenauth.ErrOTPAttemptsExhausted),
		errors.Is(err, zenauth.ErrInvalidOrExpiredResetToken),
		errors.Is(err, zenauth.ErrNoToken),
		errors.Is(err, zenauth.ErrTokenExpired),
		errors.Is(err, zenauth.ErrTokenRevoked),
		errors.Is(err, zenauth.ErrTokenInvalid),
		errors.Is(err, zenauth.ErrTokenMalformed):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: code(err)})
	default:
		s.logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable"})
	}
}

var codes = []struct {
	err  error
	code string
}{
	{zenauth.ErrInvalidEmail, "invalid_email"},
	{zenauth.ErrPasswordPolicy, "password_policy"},
	{zenauth.ErrInvalidRole, "invalid_role"},
	{zenauth.ErrDuplicateAccount, "duplicate_account"},
	{zenauth.ErrAlreadyVerified, "already_verified"},
	{zenauth.ErrAccountNotFound, "account_not_found"},
	{zenauth.ErrAccountDeactivated, "account_deactivated"},
	{zenauth.ErrVerificationRequired, "verification_required"},
	{zenauth.ErrRateLimited, "rate_limited"},
	{zenauth.ErrInvalidCredentials, "invalid_credentials"},
	{zenauth.ErrInvalidOrExpiredOTP, "invalid_otp"},
	{zenauth.ErrOTPAttemptsExhausted, "otp_attempts_exhausted"},
	{zenauth.ErrInvalidOrExpiredResetToken, "invalid_reset_token"},
	{zenauth.ErrNoToken, "no_token"},
	{zenauth.ErrTokenExpired, "token_expired"},
	{zenauth.ErrTokenRevoked, "token_revoked"},
	{zenauth.ErrTokenInvalid, "token_invalid"},
	{zenauth.ErrTokenMalformed, "token_malformed"},
}

func code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "unavailable"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
