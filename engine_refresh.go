package deskauth

import (
	"context"
	"time"

	internalflows "github.com/deskops/deskauth/internal/flows"
)

// RefreshAccessToken exchanges a refresh token for a new access token. The
// token issuer must implement [RefreshTokenParser]; otherwise
// [ErrRefreshUnsupported] is returned. The account is re-checked against
// lockout and the email-confirmation gate on every exchange.
func (e *Engine) RefreshAccessToken(ctx context.Context, refreshToken string) (AuthPayload, error) {
	parser, ok := e.tokens.(RefreshTokenParser)
	if !ok {
		return AuthPayload{}, ErrRefreshUnsupported
	}

	deps := e.refreshFlowDeps()
	deps.ParseRefresh = parser.ParseRefresh

	acct, tokens, err := internalflows.RunRefresh(ctx, refreshToken, deps)
	if err != nil {
		return AuthPayload{}, err
	}
	return authPayload(fromFlowAccount(acct), tokens), nil
}

func (e *Engine) refreshFlowDeps() internalflows.RefreshDeps {
	return internalflows.RefreshDeps{
		Now:        e.now,
		FindByID:   e.findByID,
		IsNotFound: isAccountNotFound,
		IssueAccess: func(ctx context.Context, acct internalflows.AccountRecord) (string, time.Time, error) {
			account := fromFlowAccount(acct)
			return e.tokens.IssueAccess(ctx, account, []Role{account.Role})
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Metrics: internalflows.RefreshMetrics{
			RefreshSuccess: int(MetricRefreshSuccess),
			RefreshFailure: int(MetricRefreshFailure),
		},
		Events: internalflows.RefreshEvents{
			RefreshSuccess: auditEventRefreshSuccess,
			RefreshFailure: auditEventRefreshFailure,
		},
		Errors: internalflows.RefreshErrors{
			EngineNotReady:   ErrEngineNotReady,
			RefreshInvalid:   ErrRefreshInvalid,
			EmailUnconfirmed: ErrEmailUnconfirmed,
			Disabled:         &LockedError{Permanent: true},
			Locked: func(until time.Time, retryAfter time.Duration) error {
				return &LockedError{Until: until, RetryAfter: retryAfter}
			},
			StoreUnavailable: userStoreError,
			TokenIssuer:      tokenIssuerError,
		},
	}
}
