package deskauth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Authenticator is the operation surface of [Engine]. HTTP handlers depend
// on it so they can be handed an instrumented engine.
type Authenticator interface {
	Register(ctx context.Context, req RegisterRequest) (RegisterResult, error)
	CreateAccount(ctx context.Context, req CreateAccountRequest) (Account, error)
	Login(ctx context.Context, email, password string) (AuthPayload, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (AuthPayload, error)
	IssueOtp(ctx context.Context, account Account, purpose OtpPurpose) (IssueOtpResult, error)
	ValidateOtp(ctx context.Context, accountID, code string, purpose OtpPurpose) error
	ResendConfirmation(ctx context.Context, email string) (IssueOtpResult, error)
	ForgotPassword(ctx context.Context, email string) (IssueOtpResult, error)
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	DeactivateAccount(ctx context.Context, accountID string) (Account, error)
	ActivateAccount(ctx context.Context, accountID string) (Account, error)
	ChangeEmail(ctx context.Context, accountID, newEmail string) (Account, error)
}

var _ Authenticator = (*Engine)(nil)

// Instrument wraps a with START/DONE/ERROR log lines, per-operation latency
// histograms and error reporting. Only internal and dependency failures are
// reported; expected outcomes such as a wrong password are logged at debug.
// Any of logger, metrics and reporter may be nil.
func Instrument(a Authenticator, logger *zap.Logger, metrics *Metrics, reporter ErrorReporter) Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumented{
		next:     a,
		logger:   logger,
		metrics:  metrics,
		reporter: reporter,
	}
}

type instrumented struct {
	next     Authenticator
	logger   *zap.Logger
	metrics  *Metrics
	reporter ErrorReporter
}

// measure runs fn and records the outcome. fields must not carry secrets.
func (i *instrumented) measure(ctx context.Context, op string, latency MetricID, fn func() error, fields ...zap.Field) error {
	log := i.logger.With(zap.String("operation", op))
	if id := requestIDFromContext(ctx); id != "" {
		log = log.With(zap.String("request_id", id))
	}
	log.Debug("START", fields...)

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	i.metrics.Observe(latency, elapsed)

	if err == nil {
		log.Info("DONE", append(fields, zap.Duration("elapsed", elapsed))...)
		return nil
	}

	kind := KindOf(err)
	out := append(fields,
		zap.Duration("elapsed", elapsed),
		zap.Stringer("kind", kind),
		zap.Int("code", int(CodeOf(err))),
		zap.Error(err),
	)
	switch kind {
	case KindInternal, KindDependency:
		log.Error("ERROR", out...)
		if i.reporter != nil {
			i.reporter.Report(ctx, err, map[string]string{
				"operation": op,
				"kind":      kind.String(),
			})
		}
	default:
		log.Debug("ERROR", out...)
	}
	return err
}

func (i *instrumented) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	var out RegisterResult
	err := i.measure(ctx, "Register", MetricRegisterLatency, func() error {
		var err error
		out, err = i.next.Register(ctx, req)
		return err
	}, zap.String("username", req.Username))
	return out, err
}

func (i *instrumented) CreateAccount(ctx context.Context, req CreateAccountRequest) (Account, error) {
	var out Account
	err := i.measure(ctx, "CreateAccount", MetricRegisterLatency, func() error {
		var err error
		out, err = i.next.CreateAccount(ctx, req)
		return err
	}, zap.String("username", req.Username), zap.Stringer("role", req.Role))
	return out, err
}

func (i *instrumented) Login(ctx context.Context, email, password string) (AuthPayload, error) {
	var out AuthPayload
	err := i.measure(ctx, "Login", MetricLoginLatency, func() error {
		var err error
		out, err = i.next.Login(ctx, email, password)
		return err
	})
	return out, err
}

func (i *instrumented) RefreshAccessToken(ctx context.Context, refreshToken string) (AuthPayload, error) {
	var out AuthPayload
	err := i.measure(ctx, "RefreshAccessToken", MetricAccountOperationsLatency, func() error {
		var err error
		out, err = i.next.RefreshAccessToken(ctx, refreshToken)
		return err
	})
	return out, err
}

func (i *instrumented) IssueOtp(ctx context.Context, account Account, purpose OtpPurpose) (IssueOtpResult, error) {
	var out IssueOtpResult
	err := i.measure(ctx, "IssueOtp", MetricOtpIssueLatency, func() error {
		var err error
		out, err = i.next.IssueOtp(ctx, account, purpose)
		return err
	}, zap.String("account_id", account.ID), zap.Stringer("purpose", purpose))
	return out, err
}

func (i *instrumented) ValidateOtp(ctx context.Context, accountID, code string, purpose OtpPurpose) error {
	return i.measure(ctx, "ValidateOtp", MetricOtpValidateLatency, func() error {
		return i.next.ValidateOtp(ctx, accountID, code, purpose)
	}, zap.String("account_id", accountID), zap.Stringer("purpose", purpose))
}

func (i *instrumented) ResendConfirmation(ctx context.Context, email string) (IssueOtpResult, error) {
	var out IssueOtpResult
	err := i.measure(ctx, "ResendConfirmation", MetricOtpIssueLatency, func() error {
		var err error
		out, err = i.next.ResendConfirmation(ctx, email)
		return err
	})
	return out, err
}

func (i *instrumented) ForgotPassword(ctx context.Context, email string) (IssueOtpResult, error) {
	var out IssueOtpResult
	err := i.measure(ctx, "ForgotPassword", MetricOtpIssueLatency, func() error {
		var err error
		out, err = i.next.ForgotPassword(ctx, email)
		return err
	})
	return out, err
}

func (i *instrumented) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return i.measure(ctx, "ResetPassword", MetricPasswordResetLatency, func() error {
		return i.next.ResetPassword(ctx, email, code, newPassword)
	})
}

func (i *instrumented) DeactivateAccount(ctx context.Context, accountID string) (Account, error) {
	var out Account
	err := i.measure(ctx, "DeactivateAccount", MetricAccountOperationsLatency, func() error {
		var err error
		out, err = i.next.DeactivateAccount(ctx, accountID)
		return err
	}, zap.String("account_id", accountID))
	return out, err
}

func (i *instrumented) ActivateAccount(ctx context.Context, accountID string) (Account, error) {
	var out Account
	err := i.measure(ctx, "ActivateAccount", MetricAccountOperationsLatency, func() error {
		var err error
		out, err = i.next.ActivateAccount(ctx, accountID)
		return err
	}, zap.String("account_id", accountID))
	return out, err
}

func (i *instrumented) ChangeEmail(ctx context.Context, accountID, newEmail string) (Account, error) {
	var out Account
	err := i.measure(ctx, "ChangeEmail", MetricAccountOperationsLatency, func() error {
		var err error
		out, err = i.next.ChangeEmail(ctx, accountID, newEmail)
		return err
	}, zap.String("account_id", accountID))
	return out, err
}
