package deskauth

import (
	"context"
	"time"

	internalflows "github.com/deskops/deskauth/internal/flows"
)

// Login verifies credentials and returns tokens.
//
// Failures, in evaluation order: unknown email ([ErrInvalidCredentials]),
// lockout ([*LockedError], not counted as an attempt), wrong password
// ([*CredentialsError] with remaining attempts, or a new [*LockedError] when
// the threshold is reached), unconfirmed email for non-admins
// ([ErrEmailUnconfirmed]), token issuance ([ErrTokenIssuer]).
func (e *Engine) Login(ctx context.Context, email, password string) (AuthPayload, error) {
	acct, tokens, err := internalflows.RunLogin(ctx, email, password, e.loginFlowDeps())
	if err != nil {
		return AuthPayload{}, err
	}
	return authPayload(fromFlowAccount(acct), tokens), nil
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	return internalflows.LoginDeps{
		Policy:          e.lockoutPolicy(),
		Now:             e.now,
		FindByEmail:     e.findByEmail,
		IsNotFound:      isAccountNotFound,
		CheckPassword:   e.checkPassword,
		IncrementFailed: e.incrementFailed,
		ResetFailed:     e.resetFailed,
		SetLockout:      e.setLockout,
		IssueTokens:     e.issueTokens,
		MetricInc:       e.flowMetricInc,
		EmitAudit:       e.emitAudit,
		Metrics: internalflows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginLocked:      int(MetricLoginLocked),
			LoginDisabled:    int(MetricLoginDisabled),
			LoginUnconfirmed: int(MetricLoginUnconfirmed),
			LockoutTriggered: int(MetricLockoutTriggered),
			LockoutCleared:   int(MetricLockoutCleared),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess:     auditEventLoginSuccess,
			LoginFailure:     auditEventLoginFailure,
			LockoutTriggered: auditEventLockoutTriggered,
			LockoutCleared:   auditEventLockoutCleared,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			EmailUnconfirmed:   ErrEmailUnconfirmed,
			Disabled:           &LockedError{Permanent: true},
			Remaining: func(remaining int) error {
				return &CredentialsError{Remaining: remaining}
			},
			Locked: func(until time.Time, retryAfter time.Duration, newly bool) error {
				return &LockedError{Until: until, RetryAfter: retryAfter, Newly: newly}
			},
			StoreUnavailable: userStoreError,
			TokenIssuer:      tokenIssuerError,
		},
	}
}

func (e *Engine) checkPassword(ctx context.Context, acct internalflows.AccountRecord, pw string) (bool, error) {
	return e.users.CheckPassword(ctx, fromFlowAccount(acct), pw)
}

func (e *Engine) incrementFailed(ctx context.Context, acct internalflows.AccountRecord) (int, error) {
	return e.users.IncrementFailedAccessCount(ctx, fromFlowAccount(acct))
}

func (e *Engine) issueTokens(ctx context.Context, acct internalflows.AccountRecord) (internalflows.TokenSet, error) {
	account := fromFlowAccount(acct)
	access, expiresAt, err := e.tokens.IssueAccess(ctx, account, []Role{account.Role})
	if err != nil {
		return internalflows.TokenSet{}, err
	}
	refresh, err := e.tokens.IssueRefresh(ctx, account)
	if err != nil {
		return internalflows.TokenSet{}, err
	}
	return internalflows.TokenSet{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

func authPayload(acct Account, tokens internalflows.TokenSet) AuthPayload {
	return AuthPayload{
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		ExpiresAt:      tokens.ExpiresAt,
		AccountID:      acct.ID,
		Username:       acct.Username,
		Email:          acct.Email,
		Role:           acct.Role,
		EmailConfirmed: acct.EmailConfirmed,
	}
}
