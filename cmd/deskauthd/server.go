package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/deskops/deskauth"
	"github.com/deskops/deskauth/middleware"
	"github.com/google/uuid"
)

type server struct {
	auth    deskauth.Authenticator
	parser  middleware.AccessParser
	metrics http.Handler
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	mux.HandleFunc("POST /v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /v1/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /v1/auth/confirm-email", s.handleConfirmEmail)
	mux.HandleFunc("POST /v1/auth/resend-confirmation", s.handleResendConfirmation)
	mux.HandleFunc("POST /v1/auth/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("POST /v1/auth/reset-password", s.handleResetPassword)

	guard := middleware.Guard(s.parser)
	admin := func(h http.HandlerFunc) http.Handler {
		return guard(middleware.RequireRole(deskauth.RoleAdmin.String())(h))
	}

	mux.Handle("PUT /v1/accounts/me/email", guard(http.HandlerFunc(s.handleChangeEmail)))
	mux.Handle("POST /v1/admin/accounts", admin(s.handleCreateAccount))
	mux.Handle("POST /v1/admin/accounts/{id}/deactivate", admin(s.handleDeactivate))
	mux.Handle("POST /v1/admin/accounts/{id}/activate", admin(s.handleActivate))

	return mux
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Role      string `json:"role"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Age       int    `json:"age"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := s.auth.Register(withRequestContext(r), deskauth.RegisterRequest{
		Username:  body.Username,
		Email:     body.Email,
		Password:  body.Password,
		Role:      body.Role,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Age:       body.Age,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeResult(w, http.StatusCreated, res.Code, map[string]any{
		"account":      accountView(res.Account),
		"confirmation": otpView(res.Confirmation),
	})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}

	payload, err := s.auth.Login(withRequestContext(r), body.Email, body.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, deskauth.ResultOK, payloadView(payload))
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &body) {
		return
	}

	payload, err := s.auth.RefreshAccessToken(withRequestContext(r), body.RefreshToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, deskauth.ResultOK, payloadView(payload))
}

func (s *server) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccountID string `json:"account_id"`
		Code      string `json:"code"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := s.auth.ValidateOtp(withRequestContext(r), body.AccountID, body.Code, deskauth.OtpEmailConfirmation); err != nil {
		s.writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, deskauth.ResultOK, nil)
}

func (s *server) handleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := s.auth.ResendConfirmation(withRequestContext(r), body.Email)
	s.writeIssued(w, res, err, deskauth.ErrAccountStateUnchanged)
}

func (s *server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := s.auth.ForgotPassword(withRequestContext(r), body.Email)
	s.writeIssued(w, res, err)
}

// writeIssued answers the unauthenticated code requests. Unknown emails and
// the errors in masked get the same 202 as a real issue, so the response never
// tells which accounts exist. The raw code is only present when exposure is
// enabled outside production.
func (s *server) writeIssued(w http.ResponseWriter, res deskauth.IssueOtpResult, err error, masked ...error) {
	if err != nil {
		hidden := errors.Is(err, deskauth.ErrAccountNotFound)
		for _, m := range masked {
			hidden = hidden || errors.Is(err, m)
		}
		if !hidden {
			s.writeError(w, err)
			return
		}
		res = deskauth.IssueOtpResult{}
	}
	var data any
	if res.RawCode != "" {
		data = map[string]any{"code": res.RawCode}
	}
	writeResult(w, http.StatusAccepted, deskauth.ResultOK, data)
}

func (s *server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := s.auth.ResetPassword(withRequestContext(r), body.Email, body.Code, body.NewPassword); err != nil {
		s.writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, deskauth.ResultOK, nil)
}

func (s *server) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}

	account, err := s.auth.ChangeEmail(withRequestContext(r), claims.UID, body.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, deskauth.ResultOK, accountView(account))
}

func (s *server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Role      string `json:"role"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Age       int    `json:"age"`
	}
	if !decode(w, r, &body) {
		return
	}
	role, ok := deskauth.ParseRole(body.Role)
	if !ok {
		s.writeError(w, deskauth.ErrInvalidRole)
		return
	}

	account, err := s.auth.CreateAccount(withRequestContext(r), deskauth.CreateAccountRequest{
		Username:  body.Username,
		Email:     body.Email,
		Password:  body.Password,
		Role:      role,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Age:       body.Age,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeResult(w, http.StatusCreated, deskauth.ResultOK, accountView(account))
}

func (s *server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	account, err := s.auth.DeactivateAccount(withRequestContext(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, deskauth.ResultOK, accountView(account))
}

func (s *server) handleActivate(w http.ResponseWriter, r *http.Request) {
	account, err := s.auth.ActivateAccount(withRequestContext(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, deskauth.ResultOK, accountView(account))
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

type envelope struct {
	Code    deskauth.ResultCode `json:"code"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	// RetryAfterMinutes is set for temporary lockouts.
	RetryAfterMinutes int `json:"retry_after_minutes,omitempty"`
}

func statusFor(kind deskauth.ErrorKind) int {
	switch kind {
	case deskauth.KindValidation:
		return http.StatusBadRequest
	case deskauth.KindInvalidCredentials:
		return http.StatusUnauthorized
	case deskauth.KindUnconfirmedEmail:
		return http.StatusForbidden
	case deskauth.KindNotFound:
		return http.StatusNotFound
	case deskauth.KindConflict:
		return http.StatusConflict
	case deskauth.KindLocked:
		return http.StatusLocked
	case deskauth.KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	env := envelope{Code: deskauth.CodeOf(err), Message: deskauth.Message(err)}
	var locked *deskauth.LockedError
	if errors.As(err, &locked) && !locked.Permanent {
		env.RetryAfterMinutes = locked.Minutes()
	}
	writeJSON(w, statusFor(deskauth.KindOf(err)), env)
}

func writeResult(w http.ResponseWriter, status int, code deskauth.ResultCode, data any) {
	writeJSON(w, status, envelope{Code: code, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func accountView(a deskauth.Account) map[string]any {
	return map[string]any{
		"id":              a.ID,
		"username":        a.Username,
		"email":           a.Email,
		"first_name":      a.FirstName,
		"last_name":       a.LastName,
		"role":            a.Role.String(),
		"email_confirmed": a.EmailConfirmed,
		"disabled":        a.Lockout.Kind == deskauth.LockoutPermanent,
	}
}

func payloadView(p deskauth.AuthPayload) map[string]any {
	return map[string]any{
		"access_token":    p.AccessToken,
		"refresh_token":   p.RefreshToken,
		"expires_at":      p.ExpiresAt.UTC().Format(time.RFC3339),
		"account_id":      p.AccountID,
		"username":        p.Username,
		"email":           p.Email,
		"role":            p.Role.String(),
		"email_confirmed": p.EmailConfirmed,
	}
}

func otpView(res deskauth.IssueOtpResult) map[string]any {
	view := map[string]any{
		"delivered":  res.Delivered,
		"expires_at": res.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if res.RawCode != "" {
		view["code"] = res.RawCode
	}
	return view
}

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

const maxBodyBytes = 1 << 16

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{
			Code:    deskauth.ResultValidation,
			Message: "malformed request body",
		})
		return false
	}
	return true
}

func withRequestContext(r *http.Request) context.Context {
	ctx := r.Context()

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx = deskauth.WithClientIP(ctx, host)

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return deskauth.WithRequestID(ctx, requestID)
}
