package deskauth

import (
	"strings"

	internalsecurity "github.com/deskops/deskauth/internal/security"
)

// SecurityReport is a read-only summary of the engine's security posture,
// with advisory warnings for weak settings.
type SecurityReport = internalsecurity.Report

// PasswordPolicyReport summarizes the password policy inside a [SecurityReport].
type PasswordPolicyReport = internalsecurity.PolicyReport

// SecurityReport describes the effective configuration and collaborators.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	_, refresh := e.tokens.(RefreshTokenParser)
	_, tx := e.users.(Transactor)

	return internalsecurity.BuildReport(internalsecurity.ReportInput{
		Environment:      e.config.Environment,
		ProductionMode:   strings.EqualFold(e.config.Environment, EnvironmentProduction),
		LockoutThreshold: e.config.Lockout.Threshold,
		LockoutDuration:  e.config.Lockout.Duration,
		OtpTTL:           e.config.Otp.TTL,
		OtpLength:        e.config.Otp.Length,
		ExposeCodes:      e.config.Otp.ExposeCodes,
		InvalidatePrior:  e.config.Otp.InvalidatePrior,
		RetentionTTL:     e.config.Otp.RetentionTTL,
		Password: PasswordPolicyReport{
			MinLength:              e.config.Password.MinLength,
			RequireDigit:           e.config.Password.RequireDigit,
			RequireLowercase:       e.config.Password.RequireLowercase,
			RequireUppercase:       e.config.Password.RequireUppercase,
			RequireNonAlphanumeric: e.config.Password.RequireNonAlphanumeric,
		},
		HasEmailSender:   e.email != nil,
		HasRefreshParser: refresh,
		HasTransactor:    tx,
		AuditEnabled:     e.audit != nil,
	})
}
