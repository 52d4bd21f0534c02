package deskauth

import (
	"errors"
	"fmt"
	"time"

	internalflows "github.com/deskops/deskauth/internal/flows"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("email or password incorrect")
	// ErrAccountNotFound is returned when an account lookup by id or email misses.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when the email or username is already taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountLocked is the sentinel behind a temporary lockout.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAccountDisabled is the sentinel behind an administrative (permanent) lockout.
	ErrAccountDisabled = errors.New("account disabled by administrator")
	// ErrAccountStateUnchanged is returned when activate/deactivate would not change anything.
	ErrAccountStateUnchanged = errors.New("account already in requested state")
	// ErrEmailUnconfirmed is returned by Login when the password is correct but the email is not confirmed.
	ErrEmailUnconfirmed = errors.New("confirm your email before logging in")
	// ErrInvalidRole is returned when the requested role does not exist.
	ErrInvalidRole = errors.New("invalid role")
	// ErrAdminRegistration is returned when self-registration asks for the Admin role.
	ErrAdminRegistration = errors.New("registration cannot create administrators")
	// ErrValidation is returned for malformed or missing request fields.
	ErrValidation = errors.New("invalid request")
	// ErrPasswordPolicy is the sentinel behind [PolicyError].
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrOtpInvalid covers a code that never existed, belongs to someone else, or has another purpose.
	ErrOtpInvalid = errors.New("code invalid, expired or already used")
	// ErrOtpExpired is returned when the matching code is past its expiry.
	ErrOtpExpired = errors.New("code expired")
	// ErrOtpAlreadyUsed is returned when the matching code was already consumed.
	ErrOtpAlreadyUsed = errors.New("code already used")
	// ErrOtpNotFound is returned by OtpStore implementations when no row matches.
	ErrOtpNotFound = errors.New("otp not found")
	// ErrOtpPurposeInvalid is returned for purposes outside the closed set.
	ErrOtpPurposeInvalid = errors.New("invalid otp purpose")
	// ErrOtpUnavailable wraps OTP store failures.
	ErrOtpUnavailable = errors.New("otp backend unavailable")
	// ErrUserStoreUnavailable wraps user store failures.
	ErrUserStoreUnavailable = errors.New("user store unavailable")
	// ErrTokenIssuer wraps token issuer failures during login or refresh.
	ErrTokenIssuer = errors.New("token issuance failed")
	// ErrRefreshInvalid is returned for a malformed, expired or foreign refresh token.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshUnsupported is returned when the token issuer cannot parse refresh tokens.
	ErrRefreshUnsupported = errors.New("refresh exchange not supported by token issuer")
	// ErrPasswordResetFailed is returned when the new password could not be stored.
	ErrPasswordResetFailed = errors.New("password reset failed")
	// ErrEngineNotReady is returned when a required collaborator was not configured.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError reports a login refused because of a lockout.
//
// Permanent locks unwrap to [ErrAccountDisabled], temporary ones to [ErrAccountLocked].
// Newly is set on the attempt that crossed the failure threshold.
type LockedError struct {
	Until      time.Time
	RetryAfter time.Duration
	Permanent  bool
	Newly      bool
}

func (e *LockedError) Error() string {
	if e.Permanent {
		return ErrAccountDisabled.Error()
	}
	if e.Newly {
		return fmt.Sprintf("too many failed attempts, account locked for %d minutes", e.Minutes())
	}
	return fmt.Sprintf("account temporarily locked, retry in %d minutes", e.Minutes())
}

// Minutes returns the retry hint rounded up, never below one.
func (e *LockedError) Minutes() int {
	return internalflows.RetryMinutes(e.RetryAfter)
}

func (e *LockedError) Unwrap() error {
	if e.Permanent {
		return ErrAccountDisabled
	}
	return ErrAccountLocked
}

// CredentialsError is a wrong-password failure that still leaves attempts before lockout.
type CredentialsError struct {
	Remaining int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("%s, %d attempts remaining", ErrInvalidCredentials.Error(), e.Remaining)
}

func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }

// PolicyError lists every password rule the candidate broke.
type PolicyError struct {
	Reasons []string
}

func (e *PolicyError) Error() string {
	if len(e.Reasons) == 0 {
		return ErrPasswordPolicy.Error()
	}
	msg := ErrPasswordPolicy.Error() + ":"
	for i, r := range e.Reasons {
		if i > 0 {
			msg += ";"
		}
		msg += " " + r
	}
	return msg
}

func (e *PolicyError) Unwrap() error { return ErrPasswordPolicy }
