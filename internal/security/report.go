package security

import "time"

// PolicyReport summarizes the password composition policy.
type PolicyReport struct {
	MinLength              int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

type Report struct {
	Environment      string
	ProductionMode   bool
	LockoutThreshold int
	LockoutDuration  time.Duration
	OtpTTL           time.Duration
	OtpLength        int
	OtpCodesExposed  bool
	OtpPriorRevoked  bool
	OtpRetention     time.Duration
	Password         PolicyReport
	EmailDelivery    bool
	RefreshExchange  bool
	Transactional    bool
	AuditEnabled     bool
	Warnings         []string
}

type ReportInput struct {
	Environment      string
	ProductionMode   bool
	LockoutThreshold int
	LockoutDuration  time.Duration
	OtpTTL           time.Duration
	OtpLength        int
	ExposeCodes      bool
	InvalidatePrior  bool
	RetentionTTL     time.Duration
	Password         PolicyReport
	HasEmailSender   bool
	HasRefreshParser bool
	HasTransactor    bool
	AuditEnabled     bool
}

// Weak settings below these values produce a warning.
const (
	minRecommendedPasswordLength = 8
	maxRecommendedLockoutAttempt = 10
	minRecommendedOtpLength      = 6
)

// BuildReport derives the report and its warnings. Warnings are advisory;
// none of them makes a configuration invalid.
func BuildReport(input ReportInput) Report {
	r := Report{
		Environment:      input.Environment,
		ProductionMode:   input.ProductionMode,
		LockoutThreshold: input.LockoutThreshold,
		LockoutDuration:  input.LockoutDuration,
		OtpTTL:           input.OtpTTL,
		OtpLength:        input.OtpLength,
		OtpCodesExposed:  input.ExposeCodes,
		OtpPriorRevoked:  input.InvalidatePrior,
		OtpRetention:     input.RetentionTTL,
		Password:         input.Password,
		EmailDelivery:    input.HasEmailSender,
		RefreshExchange:  input.HasRefreshParser,
		Transactional:    input.HasTransactor,
		AuditEnabled:     input.AuditEnabled,
	}

	if input.ExposeCodes {
		r.Warnings = append(r.Warnings, "raw otp codes are returned to callers")
	}
	if !input.HasEmailSender {
		r.Warnings = append(r.Warnings, "no email sender: every otp is undelivered")
	}
	if !input.HasTransactor {
		r.Warnings = append(r.Warnings, "user store is not transactional: otp consumption and account writes are not atomic")
	}
	if input.Password.MinLength < minRecommendedPasswordLength {
		r.Warnings = append(r.Warnings, "password minimum length below 8")
	}
	if input.LockoutThreshold > maxRecommendedLockoutAttempt {
		r.Warnings = append(r.Warnings, "lockout threshold above 10 attempts")
	}
	if input.OtpLength < minRecommendedOtpLength {
		r.Warnings = append(r.Warnings, "otp length below 6 digits")
	}
	if input.ProductionMode && !input.AuditEnabled {
		r.Warnings = append(r.Warnings, "audit disabled in production")
	}
	return r
}
