package flows

import (
	"context"
	"strings"
)

type PasswordResetMetrics struct {
	PasswordResetRequest int
	PasswordResetSuccess int
	PasswordResetFailure int
}

type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
}

type PasswordResetErrors struct {
	EngineNotReady      error
	Validation          error
	AccountNotFound     error
	PasswordResetFailed func(error) error
	PasswordPolicy      func(reasons []string) error
	StoreUnavailable    func(error) error
}

// PasswordResetDeps captures forgot/reset password dependencies.
type PasswordResetDeps struct {
	FindByEmail func(context.Context, string) (AccountRecord, error)
	IsNotFound  func(error) bool
	CheckPolicy func(password string) []string

	// IssueResetCode issues a ResetPassword OTP for the account.
	IssueResetCode func(context.Context, AccountRecord) error
	// ConsumeResetCode validates and consumes a ResetPassword OTP, then runs
	// after in the same unit of work.
	ConsumeResetCode func(ctx context.Context, account AccountRecord, code string, after func(context.Context) error) error

	SetPassword func(context.Context, AccountRecord, string) error
	SetLockout  func(context.Context, AccountRecord, Lockout) error
	ResetFailed func(context.Context, AccountRecord) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.CheckPolicy == nil {
		deps.CheckPolicy = func(string) []string { return nil }
	}
}

func lookupResetAccount(ctx context.Context, email string, deps PasswordResetDeps) (AccountRecord, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return AccountRecord{}, deps.Errors.Validation
	}
	acct, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound(err) {
			return AccountRecord{}, deps.Errors.AccountNotFound
		}
		return AccountRecord{}, deps.Errors.StoreUnavailable(err)
	}
	return acct, nil
}

// RunForgotPassword issues a reset code to a known account.
func RunForgotPassword(ctx context.Context, email string, deps PasswordResetDeps) (AccountRecord, error) {
	normalizePasswordResetDeps(&deps)
	if deps.FindByEmail == nil || deps.IssueResetCode == nil {
		return AccountRecord{}, deps.Errors.EngineNotReady
	}

	acct, err := lookupResetAccount(ctx, email, deps)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", err, func() map[string]string {
			return map[string]string{
				"identifier": NormalizeEmail(email),
			}
		})
		return AccountRecord{}, err
	}

	if err := deps.IssueResetCode(ctx, acct); err != nil {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, acct.ID, err, nil)
		return AccountRecord{}, err
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)
	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, acct.ID, nil, nil)
	return acct, nil
}

// RunResetPassword checks the new password against the policy before the
// code is touched, consumes the code, stores the password, and clears a
// temporary lockout with its failure counter. Permanent locks are kept.
func RunResetPassword(ctx context.Context, email, code, newPassword string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)
	if deps.FindByEmail == nil || deps.ConsumeResetCode == nil || deps.SetPassword == nil || deps.SetLockout == nil || deps.ResetFailed == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(accountID string, err error, reason string) error {
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, accountID, err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return err
	}

	if strings.TrimSpace(code) == "" || newPassword == "" {
		return fail("", deps.Errors.Validation, "invalid_request")
	}

	acct, err := lookupResetAccount(ctx, email, deps)
	if err != nil {
		return fail("", err, "lookup")
	}

	if reasons := deps.CheckPolicy(newPassword); len(reasons) > 0 {
		return fail(acct.ID, deps.Errors.PasswordPolicy(reasons), "password_policy")
	}

	after := func(ctx context.Context) error {
		if err := deps.SetPassword(ctx, acct, newPassword); err != nil {
			return deps.Errors.PasswordResetFailed(err)
		}
		if acct.Lockout.Kind == LockoutTemporary {
			if err := deps.SetLockout(ctx, acct, Lockout{Kind: LockoutActive}); err != nil {
				return deps.Errors.PasswordResetFailed(err)
			}
		}
		if acct.FailedAccessCount > 0 {
			if err := deps.ResetFailed(ctx, acct); err != nil {
				return deps.Errors.PasswordResetFailed(err)
			}
		}
		return nil
	}

	if err := deps.ConsumeResetCode(ctx, acct, code, after); err != nil {
		return fail(acct.ID, err, "consume")
	}

	deps.MetricInc(deps.Metrics.PasswordResetSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, acct.ID, nil, nil)
	return nil
}
