package deskauth

import (
	"context"

	internalflows "github.com/deskops/deskauth/internal/flows"
)

// DeactivateAccount disables an account with a permanent lockout. Login and
// refresh are refused until [Engine.ActivateAccount] is called.
func (e *Engine) DeactivateAccount(ctx context.Context, accountID string) (Account, error) {
	acct, err := internalflows.RunDisableAccount(ctx, accountID, e.accountStatusFlowDeps())
	if err != nil {
		return Account{}, err
	}
	return fromFlowAccount(acct), nil
}

// ActivateAccount clears any lockout and the failure counter.
func (e *Engine) ActivateAccount(ctx context.Context, accountID string) (Account, error) {
	acct, err := internalflows.RunEnableAccount(ctx, accountID, e.accountStatusFlowDeps())
	if err != nil {
		return Account{}, err
	}
	return fromFlowAccount(acct), nil
}

// ChangeEmail moves the account to newEmail and marks it unconfirmed. No
// confirmation code is sent; call [Engine.IssueOtp] for that.
func (e *Engine) ChangeEmail(ctx context.Context, accountID, newEmail string) (Account, error) {
	acct, err := internalflows.RunChangeEmail(ctx, accountID, newEmail, e.accountStatusFlowDeps())
	if err != nil {
		return Account{}, err
	}
	return fromFlowAccount(acct), nil
}

func (e *Engine) accountStatusFlowDeps() internalflows.AccountStatusDeps {
	return internalflows.AccountStatusDeps{
		FindByID:       e.findByID,
		FindByEmail:    e.findByEmail,
		IsNotFound:     isAccountNotFound,
		MapUpdateError: mapAccountWriteError,
		Update: func(ctx context.Context, acct internalflows.AccountRecord) error {
			return e.users.Update(ctx, fromFlowAccount(acct))
		},
		SetLockout:  e.setLockout,
		ResetFailed: e.resetFailed,
		MetricInc:   e.flowMetricInc,
		EmitAudit:   e.emitAudit,
		Metrics: internalflows.AccountStatusMetrics{
			AccountStatusChange: int(MetricAccountStatusChange),
		},
		Events: internalflows.AccountStatusEvents{
			AccountDisabled: auditEventAccountDisabled,
			AccountEnabled:  auditEventAccountEnabled,
			EmailChanged:    auditEventAccountEmailChanged,
		},
		Errors: internalflows.AccountStatusErrors{
			EngineNotReady:   ErrEngineNotReady,
			Validation:       ErrValidation,
			AccountNotFound:  ErrAccountNotFound,
			AccountExists:    ErrAccountExists,
			StateUnchanged:   ErrAccountStateUnchanged,
			StoreUnavailable: userStoreError,
		},
	}
}
