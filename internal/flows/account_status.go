package flows

import (
	"context"
	"strings"
)

type AccountStatusMetrics struct {
	AccountStatusChange int
}

type AccountStatusEvents struct {
	AccountDisabled string
	AccountEnabled  string
	EmailChanged    string
}

type AccountStatusErrors struct {
	EngineNotReady   error
	Validation       error
	AccountNotFound  error
	AccountExists    error
	StateUnchanged   error
	StoreUnavailable func(error) error
}

// AccountStatusDeps captures administrative account-state dependencies.
type AccountStatusDeps struct {
	FindByID    func(context.Context, string) (AccountRecord, error)
	FindByEmail func(context.Context, string) (AccountRecord, error)
	IsNotFound  func(error) bool
	// MapUpdateError maps store errors from Update, e.g. unique violations.
	MapUpdateError func(error) error

	Update      func(context.Context, AccountRecord) error
	SetLockout  func(context.Context, AccountRecord, Lockout) error
	ResetFailed func(context.Context, AccountRecord) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics AccountStatusMetrics
	Events  AccountStatusEvents
	Errors  AccountStatusErrors
}

func normalizeAccountStatusDeps(deps *AccountStatusDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.MapUpdateError == nil {
		deps.MapUpdateError = deps.Errors.StoreUnavailable
	}
}

func loadAccount(ctx context.Context, accountID string, deps AccountStatusDeps) (AccountRecord, error) {
	if strings.TrimSpace(accountID) == "" {
		return AccountRecord{}, deps.Errors.Validation
	}
	acct, err := deps.FindByID(ctx, accountID)
	if err != nil {
		if deps.IsNotFound(err) {
			return AccountRecord{}, deps.Errors.AccountNotFound
		}
		return AccountRecord{}, deps.Errors.StoreUnavailable(err)
	}
	return acct, nil
}

// RunDisableAccount sets a permanent lockout.
func RunDisableAccount(ctx context.Context, accountID string, deps AccountStatusDeps) (AccountRecord, error) {
	normalizeAccountStatusDeps(&deps)
	if deps.FindByID == nil || deps.SetLockout == nil {
		return AccountRecord{}, deps.Errors.EngineNotReady
	}

	acct, err := loadAccount(ctx, accountID, deps)
	if err != nil {
		return AccountRecord{}, err
	}
	if acct.Lockout.Kind == LockoutPermanent {
		return AccountRecord{}, deps.Errors.StateUnchanged
	}

	state := Lockout{Kind: LockoutPermanent}
	if err := deps.SetLockout(ctx, acct, state); err != nil {
		mapped := deps.Errors.StoreUnavailable(err)
		deps.EmitAudit(ctx, deps.Events.AccountDisabled, false, acct.ID, mapped, nil)
		return AccountRecord{}, mapped
	}
	acct.Lockout = state

	deps.MetricInc(deps.Metrics.AccountStatusChange)
	deps.EmitAudit(ctx, deps.Events.AccountDisabled, true, acct.ID, nil, nil)
	return acct, nil
}

// RunEnableAccount clears any lockout, temporary or permanent, and resets
// the failure counter. An account whose lockout is already Active is left
// untouched.
func RunEnableAccount(ctx context.Context, accountID string, deps AccountStatusDeps) (AccountRecord, error) {
	normalizeAccountStatusDeps(&deps)
	if deps.FindByID == nil || deps.SetLockout == nil || deps.ResetFailed == nil {
		return AccountRecord{}, deps.Errors.EngineNotReady
	}

	acct, err := loadAccount(ctx, accountID, deps)
	if err != nil {
		return AccountRecord{}, err
	}
	if acct.Lockout.Kind == LockoutActive {
		return AccountRecord{}, deps.Errors.StateUnchanged
	}

	if err := deps.SetLockout(ctx, acct, Lockout{Kind: LockoutActive}); err != nil {
		mapped := deps.Errors.StoreUnavailable(err)
		deps.EmitAudit(ctx, deps.Events.AccountEnabled, false, acct.ID, mapped, nil)
		return AccountRecord{}, mapped
	}
	if err := deps.ResetFailed(ctx, acct); err != nil {
		mapped := deps.Errors.StoreUnavailable(err)
		deps.EmitAudit(ctx, deps.Events.AccountEnabled, false, acct.ID, mapped, nil)
		return AccountRecord{}, mapped
	}
	prev := acct.Lockout.Kind
	acct.Lockout = Lockout{Kind: LockoutActive}
	acct.FailedAccessCount = 0

	deps.MetricInc(deps.Metrics.AccountStatusChange)
	deps.EmitAudit(ctx, deps.Events.AccountEnabled, true, acct.ID, nil, func() map[string]string {
		if prev == LockoutPermanent {
			return map[string]string{"previous": "disabled"}
		}
		return map[string]string{"previous": "locked"}
	})
	return acct, nil
}

// RunChangeEmail replaces the account email and clears its confirmation.
// The same address (case-insensitive) is a no-op.
func RunChangeEmail(ctx context.Context, accountID, newEmail string, deps AccountStatusDeps) (AccountRecord, error) {
	normalizeAccountStatusDeps(&deps)
	if deps.FindByID == nil || deps.FindByEmail == nil || deps.Update == nil {
		return AccountRecord{}, deps.Errors.EngineNotReady
	}

	email := NormalizeEmail(newEmail)
	if !ValidEmail(email) {
		return AccountRecord{}, deps.Errors.Validation
	}

	acct, err := loadAccount(ctx, accountID, deps)
	if err != nil {
		return AccountRecord{}, err
	}
	if NormalizeEmail(acct.Email) == email {
		return acct, nil
	}

	other, err := deps.FindByEmail(ctx, email)
	switch {
	case err == nil && other.ID != acct.ID:
		return AccountRecord{}, deps.Errors.AccountExists
	case err != nil && !deps.IsNotFound(err):
		return AccountRecord{}, deps.Errors.StoreUnavailable(err)
	}

	previous := acct.Email
	acct.Email = email
	acct.EmailConfirmed = false
	if err := deps.Update(ctx, acct); err != nil {
		mapped := deps.MapUpdateError(err)
		deps.EmitAudit(ctx, deps.Events.EmailChanged, false, acct.ID, mapped, nil)
		return AccountRecord{}, mapped
	}

	deps.MetricInc(deps.Metrics.AccountStatusChange)
	deps.EmitAudit(ctx, deps.Events.EmailChanged, true, acct.ID, nil, func() map[string]string {
		return map[string]string{
			"previous": previous,
		}
	})
	return acct, nil
}
