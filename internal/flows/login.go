package flows

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginLocked      int
	LoginDisabled    int
	LoginUnconfirmed int
	LockoutTriggered int
	LockoutCleared   int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LockoutTriggered string
	LockoutCleared   string
}

// LoginErrors carries host-level errors. The func fields build structured
// errors that only the host package can construct.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	EmailUnconfirmed   error
	Disabled           error
	Remaining          func(remaining int) error
	Locked             func(until time.Time, retryAfter time.Duration, newly bool) error
	StoreUnavailable   func(error) error
	TokenIssuer        func(error) error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Policy LockoutPolicy
	Now    func() time.Time

	FindByEmail     func(context.Context, string) (AccountRecord, error)
	IsNotFound      func(error) bool
	CheckPassword   func(context.Context, AccountRecord, string) (bool, error)
	IncrementFailed func(context.Context, AccountRecord) (int, error)
	ResetFailed     func(context.Context, AccountRecord) error
	SetLockout      func(context.Context, AccountRecord, Lockout) error
	IssueTokens     func(context.Context, AccountRecord) (TokenSet, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin executes the login state machine:
// lookup, lazy lockout cleanup, lockout gate, credential check with failure
// counting, counter reset, email-confirmation gate, token issuance.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (AccountRecord, TokenSet, error) {
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
	if deps.FindByEmail == nil ||
		deps.CheckPassword == nil ||
		deps.IncrementFailed == nil ||
		deps.ResetFailed == nil ||
		deps.SetLockout == nil ||
		deps.IssueTokens == nil {
		return AccountRecord{}, TokenSet{}, deps.Errors.EngineNotReady
	}

	email = strings.TrimSpace(email)
	if email == "" {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "empty_email",
			}
		})
		return AccountRecord{}, TokenSet{}, deps.Errors.InvalidCredentials
	}

	acct, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", deps.Errors.InvalidCredentials, func() map[string]string {
				return map[string]string{
					"identifier": email,
					"reason":     "account_not_found",
				}
			})
			return AccountRecord{}, TokenSet{}, deps.Errors.InvalidCredentials
		}
		return AccountRecord{}, TokenSet{}, deps.Errors.StoreUnavailable(err)
	}

	now := deps.Now()
	verdict := EvaluateLockout(acct.Lockout, now)

	if verdict.Expired {
		if err := deps.SetLockout(ctx, acct, Lockout{Kind: LockoutActive}); err != nil {
			return AccountRecord{}, TokenSet{}, deps.Errors.StoreUnavailable(err)
		}
		if err := deps.ResetFailed(ctx, acct); err != nil {
			return AccountRecord{}, TokenSet{}, deps.Errors.StoreUnavailable(err)
		}
		acct.Lockout = Lockout{Kind: LockoutActive}
		acct.FailedAccessCount = 0
		deps.MetricInc(deps.Metrics.LockoutCleared)
		deps.EmitAudit(ctx, deps.Events.LockoutCleared, true, acct.ID, nil, func() map[string]string {
			return map[string]string{
				"reason": "expired",
			}
		})
	}

	if verdict.Locked {
		if verdict.Permanent {
			deps.MetricInc(deps.Metrics.LoginDisabled)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, acct.ID, deps.Errors.Disabled, func() map[string]string {
				return map[string]string{
					"reason": "disabled",
				}
			})
			return AccountRecord{}, TokenSet{}, deps.Errors.Disabled
		}
		lockedErr := deps.Errors.Locked(verdict.Until, verdict.RetryAfter, false)
		deps.MetricInc(deps.Metrics.LoginLocked)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, acct.ID, lockedErr, func() map[string]string {
			return map[string]string{
				"reason":        "locked",
				"retry_minutes": strconv.Itoa(RetryMinutes(verdict.RetryAfter)),
			}
		})
		return AccountRecord{}, TokenSet{}, lockedErr
	}

	ok, err := deps.CheckPassword(ctx, acct, password)
	password = ""
	if err != nil {
		return AccountRecord{}, TokenSet{}, deps.Errors.StoreUnavailable(err)
	}

	if !ok {
		failed, err := deps.IncrementFailed(ctx, acct)
		if err != nil {
			return AccountRecord{}, TokenSet{}, deps.Errors.StoreUnavailable(err)
		}
		deps.MetricInc(deps.Metrics.LoginFailure)

		if deps.Policy.CrossesThreshold(failed) {
			until := now.Add(deps.Policy.Duration)
			if err := deps.SetLockout(ctx, acct, Lockout{Kind: LockoutTemporary, Until: until}); err != nil {
				return AccountRecord{}, TokenSet{}, deps.Errors.StoreUnavailable(err)
			}
			lockedErr := deps.Errors.Locked(until, deps.Policy.Duration, true)
			deps.MetricInc(deps.Metrics.LockoutTriggered)
			deps.EmitAudit(ctx, deps.Events.LockoutTriggered, false, acct.ID, lockedErr, func() map[string]string {
				return map[string]string{
					"failed_attempts": strconv.Itoa(failed),
					"until":           until.UTC().Format(time.RFC3339),
				}
			})
			return AccountRecord{}, TokenSet{}, lockedErr
		}

		remaining := RemainingAttempts(deps.Policy.Threshold, failed)
		remErr := deps.Errors.Remaining(remaining)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, acct.ID, remErr, func() map[string]string {
			return map[string]string{
				"reason":    "password_mismatch",
				"remaining": strconv.Itoa(remaining),
			}
		})
		return AccountRecord{}, TokenSet{}, remErr
	}

	if acct.FailedAccessCount > 0 {
		if err := deps.ResetFailed(ctx, acct); err != nil {
			return AccountRecord{}, TokenSet{}, deps.Errors.StoreUnavailable(err)
		}
		acct.FailedAccessCount = 0
	}

	if !acct.EmailConfirmed && !acct.Admin {
		deps.MetricInc(deps.Metrics.LoginUnconfirmed)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, acct.ID, deps.Errors.EmailUnconfirmed, func() map[string]string {
			return map[string]string{
				"reason": "email_unconfirmed",
			}
		})
		return AccountRecord{}, TokenSet{}, deps.Errors.EmailUnconfirmed
	}

	tokens, err := deps.IssueTokens(ctx, acct)
	if err != nil {
		mapped := deps.Errors.TokenIssuer(err)
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, acct.ID, mapped, func() map[string]string {
			return map[string]string{
				"reason": "token_issuer",
			}
		})
		return AccountRecord{}, TokenSet{}, mapped
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, acct.ID, nil, nil)
	return acct, tokens, nil
}
