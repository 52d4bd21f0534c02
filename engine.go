package deskauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deskops/deskauth/internal"
	internalaudit "github.com/deskops/deskauth/internal/audit"
	internalflows "github.com/deskops/deskauth/internal/flows"
	"github.com/deskops/deskauth/password"
	"go.uber.org/zap"
)

// Engine is the authentication core. Build one with [New]; it is safe for
// concurrent use once built.
type Engine struct {
	config  Config
	users   UserStore
	otps    OtpStore
	tokens  TokenIssuer
	email   EmailSender
	policy  password.Policy
	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *zap.Logger
	clock   func() time.Time
}

// Close drains the audit dispatcher. It is idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Metrics returns the engine's metrics instance, for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot returns a point-in-time copy of all counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the validated configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}

func (e *Engine) lockoutPolicy() internalflows.LockoutPolicy {
	return internalflows.LockoutPolicy{
		Threshold: e.config.Lockout.Threshold,
		Duration:  e.config.Lockout.Duration,
	}
}

func (e *Engine) checkPolicy(pw string) []string {
	return e.policy.Check(pw)
}

/*
====================================
ERROR MAPPING
====================================
*/

func userStoreError(err error) error {
	return fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
}

func otpStoreError(err error) error {
	return fmt.Errorf("%w: %v", ErrOtpUnavailable, err)
}

func tokenIssuerError(err error) error {
	return fmt.Errorf("%w: %v", ErrTokenIssuer, err)
}

func passwordResetError(err error) error {
	return fmt.Errorf("%w: %v", ErrPasswordResetFailed, err)
}

func policyError(reasons []string) error {
	return &PolicyError{Reasons: reasons}
}

// mapAccountWriteError keeps conflict errors and wraps the rest as store failures.
func mapAccountWriteError(err error) error {
	switch {
	case errors.Is(err, ErrAccountExists), errors.Is(err, ErrAccountNotFound):
		return err
	default:
		return userStoreError(err)
	}
}

func isAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

/*
====================================
FLOW CONVERSIONS
====================================
*/

func toFlowLockout(s LockoutState) internalflows.Lockout {
	return internalflows.Lockout{
		Kind:  internalflows.LockoutKind(s.Kind),
		Until: s.Until,
	}
}

func fromFlowLockout(l internalflows.Lockout) LockoutState {
	return LockoutState{
		Kind:  LockoutKind(l.Kind),
		Until: l.Until,
	}
}

func toFlowAccount(a Account) internalflows.AccountRecord {
	return internalflows.AccountRecord{
		ID:                a.ID,
		Username:          a.Username,
		Email:             a.Email,
		FirstName:         a.FirstName,
		LastName:          a.LastName,
		Age:               a.Age,
		Role:              uint8(a.Role),
		Admin:             a.Role.IsAdmin(),
		EmailConfirmed:    a.EmailConfirmed,
		FailedAccessCount: a.FailedAccessCount,
		Lockout:           toFlowLockout(a.Lockout),
		CreatedAt:         a.CreatedAt,
	}
}

func fromFlowAccount(a internalflows.AccountRecord) Account {
	return Account{
		ID:                a.ID,
		Username:          a.Username,
		Email:             a.Email,
		FirstName:         a.FirstName,
		LastName:          a.LastName,
		Age:               a.Age,
		Role:              Role(a.Role),
		EmailConfirmed:    a.EmailConfirmed,
		FailedAccessCount: a.FailedAccessCount,
		Lockout:           fromFlowLockout(a.Lockout),
		CreatedAt:         a.CreatedAt,
	}
}

func toFlowOtp(o OtpCode) internalflows.OtpRecord {
	return internalflows.OtpRecord{
		ID:        o.ID,
		AccountID: o.AccountID,
		Code:      o.Code,
		CreatedAt: o.CreatedAt,
		ExpiresAt: o.ExpiresAt,
		Consumed:  o.Status == OtpConsumed,
		Purpose:   uint8(o.Purpose),
	}
}

func fromFlowOtp(o internalflows.OtpRecord) OtpCode {
	status := OtpGenerated
	if o.Consumed {
		status = OtpConsumed
	}
	return OtpCode{
		ID:        o.ID,
		AccountID: o.AccountID,
		Code:      o.Code,
		CreatedAt: o.CreatedAt,
		ExpiresAt: o.ExpiresAt,
		Status:    status,
		Purpose:   OtpPurpose(o.Purpose),
	}
}

/*
====================================
STORE ADAPTERS
====================================
*/

func (e *Engine) findByEmail(ctx context.Context, email string) (internalflows.AccountRecord, error) {
	acct, err := e.users.FindByEmail(ctx, internalflows.NormalizeEmail(email))
	if err != nil {
		return internalflows.AccountRecord{}, err
	}
	return toFlowAccount(acct), nil
}

func (e *Engine) findByID(ctx context.Context, id string) (internalflows.AccountRecord, error) {
	acct, err := e.users.FindByID(ctx, id)
	if err != nil {
		return internalflows.AccountRecord{}, err
	}
	return toFlowAccount(acct), nil
}

func (e *Engine) setLockout(ctx context.Context, acct internalflows.AccountRecord, state internalflows.Lockout) error {
	return e.users.SetLockout(ctx, fromFlowAccount(acct), fromFlowLockout(state))
}

func (e *Engine) resetFailed(ctx context.Context, acct internalflows.AccountRecord) error {
	return e.users.ResetFailedAccessCount(ctx, fromFlowAccount(acct))
}

func (e *Engine) inTx() func(context.Context, func(context.Context) error) error {
	if tx, ok := e.users.(Transactor); ok {
		return tx.InTx
	}
	return nil
}

func newID() string {
	return internal.NewID()
}
