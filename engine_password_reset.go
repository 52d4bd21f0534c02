package deskauth

import (
	"context"

	internalflows "github.com/deskops/deskauth/internal/flows"
)

// ForgotPassword issues a [OtpResetPassword] code to the account owning email.
//
// Unknown emails return [ErrAccountNotFound]. Callers exposing this over HTTP
// decide whether to mask that from clients.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (IssueOtpResult, error) {
	var issued IssueOtpResult

	deps := e.passwordResetFlowDeps()
	deps.IssueResetCode = func(ctx context.Context, acct internalflows.AccountRecord) error {
		res, err := e.IssueOtp(ctx, fromFlowAccount(acct), OtpResetPassword)
		if err != nil {
			return err
		}
		issued = res
		return nil
	}

	if _, err := internalflows.RunForgotPassword(ctx, email, deps); err != nil {
		return IssueOtpResult{}, err
	}
	return issued, nil
}

// ResetPassword sets a new password after validating a reset code.
//
// The password policy is checked first so a weak password never burns the
// code. On success a temporary lockout and the failure counter are cleared;
// an administrative lock stays in place.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	deps := e.passwordResetFlowDeps()
	deps.ConsumeResetCode = func(ctx context.Context, acct internalflows.AccountRecord, code string, after func(context.Context) error) error {
		_, err := internalflows.RunValidateOtp(ctx, acct.ID, code, uint8(OtpResetPassword), e.otpFlowDeps(),
			func(ctx context.Context, _ internalflows.OtpRecord) error {
				return after(ctx)
			})
		return err
	}
	return internalflows.RunResetPassword(ctx, email, code, newPassword, deps)
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	return internalflows.PasswordResetDeps{
		FindByEmail: e.findByEmail,
		IsNotFound:  isAccountNotFound,
		CheckPolicy: e.checkPolicy,
		SetPassword: func(ctx context.Context, acct internalflows.AccountRecord, pw string) error {
			return e.users.SetPassword(ctx, fromFlowAccount(acct), pw)
		},
		SetLockout:  e.setLockout,
		ResetFailed: e.resetFailed,
		MetricInc:   e.flowMetricInc,
		EmitAudit:   e.emitAudit,
		Metrics: internalflows.PasswordResetMetrics{
			PasswordResetRequest: int(MetricPasswordResetRequest),
			PasswordResetSuccess: int(MetricPasswordResetSuccess),
			PasswordResetFailure: int(MetricPasswordResetFailure),
		},
		Events: internalflows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady:      ErrEngineNotReady,
			Validation:          ErrValidation,
			AccountNotFound:     ErrAccountNotFound,
			PasswordResetFailed: passwordResetError,
			PasswordPolicy:      policyError,
			StoreUnavailable:    userStoreError,
		},
	}
}
