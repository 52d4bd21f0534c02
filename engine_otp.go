package deskauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deskops/deskauth/internal"
	internalflows "github.com/deskops/deskauth/internal/flows"
	"go.uber.org/zap"
)

var defaultOtpSubjects = map[OtpPurpose]string{
	OtpEmailConfirmation: "Confirm your email address",
	OtpPhoneConfirmation: "Your phone confirmation code",
	OtpResetPassword:     "Your password reset code",
	OtpTwoFactor:         "Your sign-in code",
}

// IssueOtp creates a new code for account and purpose and emails it.
//
// A store failure is returned as an error wrapping [ErrOtpUnavailable]. A
// delivery failure is not an error: the result has Delivered=false and
// Code=[ResultOtpNotDelivered]. Older codes stay valid unless
// Config.Otp.InvalidatePrior is set.
func (e *Engine) IssueOtp(ctx context.Context, account Account, purpose OtpPurpose) (IssueOtpResult, error) {
	if !purpose.Valid() {
		return IssueOtpResult{}, ErrOtpPurposeInvalid
	}
	if account.ID == "" {
		return IssueOtpResult{}, ErrValidation
	}

	deps := e.otpFlowDeps()
	deps.Deliver = func(ctx context.Context, rec internalflows.OtpRecord) error {
		if e.email == nil {
			return errors.New("no email sender configured")
		}
		subject, body := e.renderOtpEmail(account, purpose, rec.Code)
		return e.email.Send(ctx, account.Email, subject, body)
	}

	issued, err := internalflows.RunIssueOtp(ctx, account.ID, uint8(purpose), deps)
	if err != nil {
		return IssueOtpResult{}, err
	}

	out := IssueOtpResult{
		Code:      ResultOK,
		Delivered: issued.Delivered,
		ExpiresAt: issued.Record.ExpiresAt,
	}
	if !issued.Delivered {
		out.Code = ResultOtpNotDelivered
		e.logger.Warn("otp delivery failed",
			zap.String("account_id", account.ID),
			zap.Stringer("purpose", purpose),
			zap.Error(issued.DeliveryErr),
		)
	}
	if e.config.Otp.ExposeCodes {
		out.RawCode = issued.Record.Code
	}
	return out, nil
}

// ValidateOtp consumes code for accountID and purpose.
//
// Unknown codes give [ErrOtpInvalid], expired ones [ErrOtpExpired] (consumed
// or not), consumed ones [ErrOtpAlreadyUsed]. For [OtpEmailConfirmation] the
// account is marked confirmed in the same transaction when the user store is
// a [Transactor].
func (e *Engine) ValidateOtp(ctx context.Context, accountID, code string, purpose OtpPurpose) error {
	if !purpose.Valid() {
		return ErrOtpPurposeInvalid
	}

	var after func(context.Context, internalflows.OtpRecord) error
	if purpose == OtpEmailConfirmation {
		after = func(ctx context.Context, rec internalflows.OtpRecord) error {
			return e.confirmEmail(ctx, rec.AccountID)
		}
	}

	_, err := internalflows.RunValidateOtp(ctx, accountID, code, uint8(purpose), e.otpFlowDeps(), after)
	return err
}

// ResendConfirmation issues a fresh [OtpEmailConfirmation] code to the
// account owning email. Unknown emails give [ErrAccountNotFound] and already
// confirmed accounts [ErrAccountStateUnchanged].
func (e *Engine) ResendConfirmation(ctx context.Context, email string) (IssueOtpResult, error) {
	email = internalflows.NormalizeEmail(email)
	if email == "" {
		return IssueOtpResult{}, ErrValidation
	}
	acct, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if isAccountNotFound(err) {
			return IssueOtpResult{}, ErrAccountNotFound
		}
		return IssueOtpResult{}, userStoreError(err)
	}
	if acct.EmailConfirmed {
		return IssueOtpResult{}, ErrAccountStateUnchanged
	}
	return e.IssueOtp(ctx, acct, OtpEmailConfirmation)
}

func (e *Engine) confirmEmail(ctx context.Context, accountID string) error {
	acct, err := e.users.FindByID(ctx, accountID)
	if err != nil {
		if isAccountNotFound(err) {
			return ErrAccountNotFound
		}
		return userStoreError(err)
	}
	if acct.EmailConfirmed {
		return nil
	}
	acct.EmailConfirmed = true
	if err := e.users.Update(ctx, acct); err != nil {
		return mapAccountWriteError(err)
	}
	return nil
}

func (e *Engine) otpFlowDeps() internalflows.OtpDeps {
	deps := internalflows.OtpDeps{
		TTL:             e.config.Otp.TTL,
		Digits:          e.config.Otp.Length,
		InvalidatePrior: e.config.Otp.InvalidatePrior,
		Now:             e.now,
		NewID:           newID,
		GenerateCode:    internal.NewOTPCode,
		ValidCode:       internal.ValidOTPCode,
		InTx:            e.inTx(),
		IsNotFound: func(err error) bool {
			return errors.Is(err, ErrOtpNotFound)
		},
		IsAlreadyUsed: func(err error) bool {
			return errors.Is(err, ErrOtpAlreadyUsed)
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Metrics: internalflows.OtpMetrics{
			OtpIssued:      int(MetricOtpIssued),
			OtpUndelivered: int(MetricOtpUndelivered),
			OtpValidated:   int(MetricOtpValidated),
			OtpRejected:    int(MetricOtpRejected),
		},
		Events: internalflows.OtpEvents{
			OtpIssued:    auditEventOtpIssued,
			OtpValidated: auditEventOtpValidated,
			OtpRejected:  auditEventOtpRejected,
		},
		Errors: internalflows.OtpErrors{
			EngineNotReady: ErrEngineNotReady,
			OtpInvalid:     ErrOtpInvalid,
			OtpExpired:     ErrOtpExpired,
			OtpAlreadyUsed: ErrOtpAlreadyUsed,
			Unavailable:    otpStoreError,
		},
	}

	if e.otps != nil {
		deps.Add = func(ctx context.Context, rec internalflows.OtpRecord) error {
			return e.otps.Add(ctx, fromFlowOtp(rec))
		}
		deps.FindValid = func(ctx context.Context, accountID, code string, purpose uint8) (internalflows.OtpRecord, error) {
			otp, err := e.otps.FindValid(ctx, accountID, code, OtpPurpose(purpose))
			if err != nil {
				return internalflows.OtpRecord{}, err
			}
			return toFlowOtp(otp), nil
		}
		deps.Consume = func(ctx context.Context, rec internalflows.OtpRecord) error {
			otp := fromFlowOtp(rec)
			otp.Status = OtpConsumed
			return e.otps.Update(ctx, otp)
		}
		if inv, ok := e.otps.(OtpInvalidator); ok {
			deps.InvalidateGenerated = func(ctx context.Context, accountID string, purpose uint8) (int, error) {
				return inv.InvalidateGenerated(ctx, accountID, OtpPurpose(purpose))
			}
		}
	}
	return deps
}

func (e *Engine) renderOtpEmail(account Account, purpose OtpPurpose, code string) (string, string) {
	subject := defaultOtpSubjects[purpose]
	if s, ok := e.config.Otp.EmailSubjects[purpose]; ok && s != "" {
		subject = s
	}

	name := strings.TrimSpace(account.FirstName)
	if name == "" {
		name = account.Username
	}
	minutes := internalflows.RetryMinutes(e.config.Otp.TTL)

	var intro string
	switch purpose {
	case OtpEmailConfirmation:
		intro = "Use this code to confirm your email address."
	case OtpResetPassword:
		intro = "Use this code to reset your password. If you did not ask for a reset, ignore this message."
	case OtpPhoneConfirmation:
		intro = "Use this code to confirm your phone number."
	default:
		intro = "Use this code to finish signing in."
	}

	body := fmt.Sprintf("Hello %s,\n\n%s\n\n    %s\n\nThe code expires in %d minutes.\n", name, intro, code, minutes)
	return subject, body
}
