package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// OtpRecord is the flow-local OTP model.
type OtpRecord struct {
	ID        string
	AccountID string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Consumed  bool
	Purpose   uint8
}

// IssuedOtp is the outcome of a successful issuance. DeliveryErr is kept for
// logging only; it never fails the issuance.
type IssuedOtp struct {
	Record      OtpRecord
	Delivered   bool
	DeliveryErr error
	Invalidated int
}

type OtpMetrics struct {
	OtpIssued      int
	OtpUndelivered int
	OtpValidated   int
	OtpRejected    int
}

type OtpEvents struct {
	OtpIssued    string
	OtpValidated string
	OtpRejected  string
}

type OtpErrors struct {
	EngineNotReady error
	OtpInvalid     error
	OtpExpired     error
	OtpAlreadyUsed error
	Unavailable    func(error) error
}

// OtpDeps captures OTP issuance and validation dependencies.
type OtpDeps struct {
	TTL             time.Duration
	Digits          int
	InvalidatePrior bool

	Now          func() time.Time
	NewID        func() string
	GenerateCode func(digits int) (string, error)
	ValidCode    func(code string, digits int) bool

	Add       func(context.Context, OtpRecord) error
	FindValid func(ctx context.Context, accountID, code string, purpose uint8) (OtpRecord, error)
	// Consume is a compare-and-set from Generated to Consumed.
	Consume func(context.Context, OtpRecord) error
	// InvalidateGenerated is optional; only used with InvalidatePrior.
	InvalidateGenerated func(ctx context.Context, accountID string, purpose uint8) (int, error)
	Deliver             func(context.Context, OtpRecord) error
	// InTx is optional. When set, consumption and the follow-up write share it.
	InTx func(ctx context.Context, fn func(context.Context) error) error

	IsNotFound    func(error) bool
	IsAlreadyUsed func(error) bool

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics OtpMetrics
	Events  OtpEvents
	Errors  OtpErrors
}

func normalizeOtpDeps(deps *OtpDeps) {
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
	if deps.IsAlreadyUsed == nil {
		deps.IsAlreadyUsed = func(error) bool { return false }
	}
	if deps.ValidCode == nil {
		deps.ValidCode = func(code string, digits int) bool { return code != "" }
	}
}

// RunIssueOtp generates and persists a new Generated code, then tries to
// deliver it. Persistence failure is fatal; delivery failure is not.
func RunIssueOtp(ctx context.Context, accountID string, purpose uint8, deps OtpDeps) (IssuedOtp, error) {
	normalizeOtpDeps(&deps)
	if deps.Add == nil || deps.NewID == nil || deps.GenerateCode == nil || deps.Deliver == nil {
		return IssuedOtp{}, deps.Errors.EngineNotReady
	}

	var out IssuedOtp
	if deps.InvalidatePrior && deps.InvalidateGenerated != nil {
		n, err := deps.InvalidateGenerated(ctx, accountID, purpose)
		if err != nil {
			return IssuedOtp{}, deps.Errors.Unavailable(err)
		}
		out.Invalidated = n
	}

	code, err := deps.GenerateCode(deps.Digits)
	if err != nil {
		return IssuedOtp{}, deps.Errors.Unavailable(err)
	}

	now := deps.Now()
	rec := OtpRecord{
		ID:        deps.NewID(),
		AccountID: accountID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(deps.TTL),
		Purpose:   purpose,
	}
	if err := deps.Add(ctx, rec); err != nil {
		mapped := deps.Errors.Unavailable(err)
		deps.EmitAudit(ctx, deps.Events.OtpIssued, false, accountID, mapped, func() map[string]string {
			return map[string]string{
				"purpose": strconv.Itoa(int(purpose)),
			}
		})
		return IssuedOtp{}, mapped
	}
	out.Record = rec
	deps.MetricInc(deps.Metrics.OtpIssued)

	if err := deps.Deliver(ctx, rec); err != nil {
		out.DeliveryErr = err
		deps.MetricInc(deps.Metrics.OtpUndelivered)
	} else {
		out.Delivered = true
	}

	deps.EmitAudit(ctx, deps.Events.OtpIssued, true, accountID, nil, func() map[string]string {
		return map[string]string{
			"otp_id":      rec.ID,
			"purpose":     strconv.Itoa(int(purpose)),
			"delivered":   strconv.FormatBool(out.Delivered),
			"invalidated": strconv.Itoa(out.Invalidated),
		}
	})
	return out, nil
}

// RunValidateOtp resolves code for the account and purpose and consumes it.
// afterConsume, when non-nil, runs after the consume inside the same
// transaction when InTx is configured. Its error is returned unchanged.
func RunValidateOtp(ctx context.Context, accountID, code string, purpose uint8, deps OtpDeps, afterConsume func(context.Context, OtpRecord) error) (OtpRecord, error) {
	normalizeOtpDeps(&deps)
	if deps.FindValid == nil || deps.Consume == nil {
		return OtpRecord{}, deps.Errors.EngineNotReady
	}

	reject := func(err error, reason string) (OtpRecord, error) {
		deps.MetricInc(deps.Metrics.OtpRejected)
		deps.EmitAudit(ctx, deps.Events.OtpRejected, false, accountID, err, func() map[string]string {
			return map[string]string{
				"purpose": strconv.Itoa(int(purpose)),
				"reason":  reason,
			}
		})
		return OtpRecord{}, err
	}

	code = strings.TrimSpace(code)
	if accountID == "" || !deps.ValidCode(code, deps.Digits) {
		return reject(deps.Errors.OtpInvalid, "malformed")
	}

	rec, err := deps.FindValid(ctx, accountID, code, purpose)
	if err != nil {
		if deps.IsNotFound(err) {
			return reject(deps.Errors.OtpInvalid, "not_found")
		}
		return OtpRecord{}, deps.Errors.Unavailable(err)
	}
	// Expiry wins over consumption: a spent code past its TTL reports expired.
	if !deps.Now().Before(rec.ExpiresAt) {
		return reject(deps.Errors.OtpExpired, "expired")
	}
	if rec.Consumed {
		return reject(deps.Errors.OtpAlreadyUsed, "already_used")
	}

	consume := func(ctx context.Context) error {
		if err := deps.Consume(ctx, rec); err != nil {
			if deps.IsAlreadyUsed(err) {
				return deps.Errors.OtpAlreadyUsed
			}
			return deps.Errors.Unavailable(err)
		}
		if afterConsume != nil {
			return afterConsume(ctx, rec)
		}
		return nil
	}

	if deps.InTx != nil {
		err = deps.InTx(ctx, consume)
	} else {
		err = consume(ctx)
	}
	if err != nil {
		if errors.Is(err, deps.Errors.OtpAlreadyUsed) {
			return reject(err, "race_lost")
		}
		deps.EmitAudit(ctx, deps.Events.OtpValidated, false, accountID, err, nil)
		return OtpRecord{}, err
	}

	rec.Consumed = true
	deps.MetricInc(deps.Metrics.OtpValidated)
	deps.EmitAudit(ctx, deps.Events.OtpValidated, true, accountID, nil, func() map[string]string {
		return map[string]string{
			"otp_id":  rec.ID,
			"purpose": strconv.Itoa(int(purpose)),
		}
	})
	return rec, nil
}
