package flows

import (
	"context"
	"strings"
	"time"
)

type RefreshMetrics struct {
	RefreshSuccess int
	RefreshFailure int
}

type RefreshEvents struct {
	RefreshSuccess string
	RefreshFailure string
}

type RefreshErrors struct {
	EngineNotReady   error
	RefreshInvalid   error
	EmailUnconfirmed error
	Disabled         error
	Locked           func(until time.Time, retryAfter time.Duration) error
	StoreUnavailable func(error) error
	TokenIssuer      func(error) error
}

// RefreshDeps captures refresh-token exchange dependencies.
type RefreshDeps struct {
	Now func() time.Time

	ParseRefresh func(ctx context.Context, token string) (accountID string, err error)
	FindByID     func(context.Context, string) (AccountRecord, error)
	IsNotFound   func(error) bool
	IssueAccess  func(context.Context, AccountRecord) (string, time.Time, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  RefreshErrors
}

// RunRefresh exchanges a refresh token for a new access token. The account
// must still exist, be unlocked, and pass the email-confirmation gate.
// The refresh token itself is returned unchanged.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (AccountRecord, TokenSet, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.ParseRefresh == nil || deps.FindByID == nil || deps.IssueAccess == nil {
		return AccountRecord{}, TokenSet{}, deps.Errors.EngineNotReady
	}

	fail := func(accountID string, err error, reason string) (AccountRecord, TokenSet, error) {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, accountID, err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return AccountRecord{}, TokenSet{}, err
	}

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return fail("", deps.Errors.RefreshInvalid, "empty_token")
	}

	accountID, err := deps.ParseRefresh(ctx, refreshToken)
	if err != nil || accountID == "" {
		return fail("", deps.Errors.RefreshInvalid, "parse")
	}

	acct, err := deps.FindByID(ctx, accountID)
	if err != nil {
		if deps.IsNotFound(err) {
			return fail(accountID, deps.Errors.RefreshInvalid, "account_not_found")
		}
		return AccountRecord{}, TokenSet{}, deps.Errors.StoreUnavailable(err)
	}

	verdict := EvaluateLockout(acct.Lockout, deps.Now())
	if verdict.Locked {
		if verdict.Permanent {
			return fail(acct.ID, deps.Errors.Disabled, "disabled")
		}
		return fail(acct.ID, deps.Errors.Locked(verdict.Until, verdict.RetryAfter), "locked")
	}
	if !acct.EmailConfirmed && !acct.Admin {
		return fail(acct.ID, deps.Errors.EmailUnconfirmed, "email_unconfirmed")
	}

	access, expiresAt, err := deps.IssueAccess(ctx, acct)
	if err != nil {
		return fail(acct.ID, deps.Errors.TokenIssuer(err), "token_issuer")
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	deps.EmitAudit(ctx, deps.Events.RefreshSuccess, true, acct.ID, nil, nil)
	return acct, TokenSet{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
