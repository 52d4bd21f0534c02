package deskauth

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLockoutTriggered     = "lockout_triggered"
	auditEventLockoutCleared       = "lockout_cleared"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventAccountCreated       = "account_created"
	auditEventAccountCreateFailure = "account_create_failure"
	auditEventOtpIssued            = "otp_issued"
	auditEventOtpValidated         = "otp_validated"
	auditEventOtpRejected          = "otp_rejected"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventAccountDisabled      = "account_disabled"
	auditEventAccountEnabled       = "account_enabled"
	auditEventAccountEmailChanged  = "account_email_changed"
)

// AuditErrorCode is the stable, secret-free error label written to audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrEmailUnconfirmed   AuditErrorCode = "email_unconfirmed"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrInvalidRole        AuditErrorCode = "invalid_role"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrStateUnchanged     AuditErrorCode = "state_unchanged"
	auditErrOtpInvalid         AuditErrorCode = "otp_invalid"
	auditErrOtpExpired         AuditErrorCode = "otp_expired"
	auditErrOtpAlreadyUsed     AuditErrorCode = "otp_already_used"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenIssuer        AuditErrorCode = "token_issuer"
	auditErrResetFailed        AuditErrorCode = "password_reset_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit matches the flow audit callback signature.
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
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		RequestID: requestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
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
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrEmailUnconfirmed):
		return auditErrEmailUnconfirmed
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrAdminRegistration):
		return auditErrInvalidRole
	case errors.Is(err, ErrValidation), errors.Is(err, ErrOtpPurposeInvalid):
		return auditErrValidation
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrAccountStateUnchanged):
		return auditErrStateUnchanged
	case errors.Is(err, ErrOtpInvalid):
		return auditErrOtpInvalid
	case errors.Is(err, ErrOtpExpired):
		return auditErrOtpExpired
	case errors.Is(err, ErrOtpAlreadyUsed):
		return auditErrOtpAlreadyUsed
	case errors.Is(err, ErrRefreshInvalid), errors.Is(err, ErrRefreshUnsupported):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenIssuer):
		return auditErrTokenIssuer
	case errors.Is(err, ErrPasswordResetFailed):
		return auditErrResetFailed
	case errors.Is(err, ErrUserStoreUnavailable), errors.Is(err, ErrOtpUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
