package deskauth

import "errors"

// ErrorKind classifies an engine error for callers that branch on failure class
// rather than on individual sentinels.
type ErrorKind uint8

const (
	// KindNone is returned for a nil error.
	KindNone ErrorKind = iota
	// KindValidation covers malformed input, bad roles and password policy failures.
	KindValidation
	// KindInvalidCredentials covers unknown email and wrong password.
	KindInvalidCredentials
	// KindNotFound covers unknown accounts and OTP codes that match nothing.
	KindNotFound
	// KindConflict covers duplicates, codes already used and no-op state changes.
	KindConflict
	// KindLocked covers temporary and administrative lockouts.
	KindLocked
	// KindUnconfirmedEmail is returned when login is blocked on email confirmation.
	KindUnconfirmedEmail
	// KindDependency covers store, token issuer and delivery backends.
	KindDependency
	// KindInternal is everything else.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindLocked:
		return "locked"
	case KindUnconfirmedEmail:
		return "unconfirmed_email"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

// KindOf maps err onto the error taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrAdminRegistration),
		errors.Is(err, ErrOtpPurposeInvalid):
		return KindValidation
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrRefreshInvalid):
		return KindInvalidCredentials
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrOtpInvalid), errors.Is(err, ErrOtpExpired):
		return KindNotFound
	case errors.Is(err, ErrAccountExists), errors.Is(err, ErrOtpAlreadyUsed), errors.Is(err, ErrAccountStateUnchanged):
		return KindConflict
	case errors.Is(err, ErrAccountLocked), errors.Is(err, ErrAccountDisabled):
		return KindLocked
	case errors.Is(err, ErrEmailUnconfirmed):
		return KindUnconfirmedEmail
	case errors.Is(err, ErrTokenIssuer),
		errors.Is(err, ErrOtpUnavailable),
		errors.Is(err, ErrUserStoreUnavailable),
		errors.Is(err, ErrPasswordResetFailed):
		return KindDependency
	default:
		return KindInternal
	}
}

// ResultCode is the stable numeric outcome code handed to API clients.
type ResultCode int

const (
	ResultOK                         ResultCode = 0
	ResultOtpNotDelivered            ResultCode = 1
	ResultConfirmationNotGenerated   ResultCode = 2
	ResultInvalidCredentials         ResultCode = 10
	ResultEmailUnconfirmed           ResultCode = 11
	ResultLocked                     ResultCode = 12
	ResultDisabled                   ResultCode = 13
	ResultNewlyLocked                ResultCode = 14
	ResultTokenIssuerFailed          ResultCode = 15
	ResultAccountNotFound            ResultCode = 20
	ResultInvalidRole                ResultCode = 21
	ResultAdminRegistrationForbidden ResultCode = 22
	ResultValidation                 ResultCode = 23
	ResultAccountExists              ResultCode = 24
	ResultPasswordPolicy             ResultCode = 25
	ResultStateUnchanged             ResultCode = 26
	ResultOtpInvalid                 ResultCode = 30
	ResultOtpExpired                 ResultCode = 31
	ResultOtpAlreadyUsed             ResultCode = 32
	ResultRefreshInvalid             ResultCode = 40
	ResultPasswordResetFailed        ResultCode = 41
	ResultInternal                   ResultCode = 99
)

// CodeOf returns the result code for err. A nil error is ResultOK.
func CodeOf(err error) ResultCode {
	if err == nil {
		return ResultOK
	}
	var locked *LockedError
	if errors.As(err, &locked) {
		switch {
		case locked.Permanent:
			return ResultDisabled
		case locked.Newly:
			return ResultNewlyLocked
		default:
			return ResultLocked
		}
	}
	switch {
	case errors.Is(err, ErrAccountDisabled):
		return ResultDisabled
	case errors.Is(err, ErrAccountLocked):
		return ResultLocked
	case errors.Is(err, ErrInvalidCredentials):
		return ResultInvalidCredentials
	case errors.Is(err, ErrEmailUnconfirmed):
		return ResultEmailUnconfirmed
	case errors.Is(err, ErrTokenIssuer):
		return ResultTokenIssuerFailed
	case errors.Is(err, ErrAccountNotFound):
		return ResultAccountNotFound
	case errors.Is(err, ErrInvalidRole):
		return ResultInvalidRole
	case errors.Is(err, ErrAdminRegistration):
		return ResultAdminRegistrationForbidden
	case errors.Is(err, ErrValidation), errors.Is(err, ErrOtpPurposeInvalid):
		return ResultValidation
	case errors.Is(err, ErrAccountExists):
		return ResultAccountExists
	case errors.Is(err, ErrPasswordPolicy):
		return ResultPasswordPolicy
	case errors.Is(err, ErrAccountStateUnchanged):
		return ResultStateUnchanged
	case errors.Is(err, ErrOtpInvalid):
		return ResultOtpInvalid
	case errors.Is(err, ErrOtpExpired):
		return ResultOtpExpired
	case errors.Is(err, ErrOtpAlreadyUsed):
		return ResultOtpAlreadyUsed
	case errors.Is(err, ErrRefreshInvalid):
		return ResultRefreshInvalid
	case errors.Is(err, ErrPasswordResetFailed):
		return ResultPasswordResetFailed
	default:
		return ResultInternal
	}
}

// Message renders err for an API response. Internal and dependency failures
// collapse to a generic text so backend details never reach the client.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindInternal:
		return "internal error"
	case KindDependency:
		switch {
		case errors.Is(err, ErrTokenIssuer):
			return ErrTokenIssuer.Error()
		case errors.Is(err, ErrPasswordResetFailed):
			return ErrPasswordResetFailed.Error()
		default:
			return "service temporarily unavailable"
		}
	default:
		return err.Error()
	}
}
