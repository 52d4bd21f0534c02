package deskauth

import (
	"errors"
	"strings"
	"time"
)

// EnvironmentProduction is the Config.Environment value that forbids exposing raw OTP codes.
const EnvironmentProduction = "production"

// Config holds every engine tunable. Obtain defaults from [DefaultConfig],
// adjust, then pass to [Builder.WithConfig]. Build validates it.
type Config struct {
	Environment  string
	Lockout      LockoutConfig
	Otp          OtpConfig
	Password     PasswordConfig
	Registration RegistrationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the per-account failed-attempt lockout.
type LockoutConfig struct {
	// Threshold is the number of consecutive wrong passwords that locks the account.
	Threshold int
	// Duration is how long a threshold lockout lasts.
	Duration time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

// OtpConfig controls one-time password issuance.
type OtpConfig struct {
	TTL    time.Duration
	Length int
	// ExposeCodes returns raw codes in IssueOtpResult. Rejected in production.
	ExposeCodes bool
	// InvalidatePrior consumes older Generated codes of the same purpose on issue.
	InvalidatePrior bool
	// RetentionTTL bounds how long the Redis store keeps code records. Zero keeps them.
	RetentionTTL time.Duration
	RedisPrefix  string
	// EmailSubjects overrides the subject line per purpose.
	EmailSubjects map[OtpPurpose]string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig is the password policy applied on registration and reset.
type PasswordConfig struct {
	MinLength              int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig controls self-registration.
type RegistrationConfig struct {
	// DefaultRole is assigned when a registration request names no role.
	DefaultRole Role
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: lockout after 3 failures for
// 15 minutes, 6-digit codes valid for 5 minutes, minimum password length 6.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Environment: EnvironmentProduction,
		Lockout: LockoutConfig{
			Threshold: 3,
			Duration:  15 * time.Minute,
		},
		Otp: OtpConfig{
			TTL:             5 * time.Minute,
			Length:          6,
			ExposeCodes:     false,
			InvalidatePrior: false,
			RetentionTTL:    0,
			RedisPrefix:     "dotp",
		},
		Password: PasswordConfig{
			MinLength: 6,
		},
		Registration: RegistrationConfig{
			DefaultRole: RoleUser,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Otp.EmailSubjects != nil {
		out.Otp.EmailSubjects = make(map[OtpPurpose]string, len(cfg.Otp.EmailSubjects))
		for k, v := range cfg.Otp.EmailSubjects {
			out.Otp.EmailSubjects[k] = v
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// OTP
	if c.Otp.TTL <= 0 {
		return errors.New("Otp TTL must be > 0")
	}
	if c.Otp.Length < 4 || c.Otp.Length > 10 {
		return errors.New("Otp Length must be between 4 and 10")
	}
	if c.Otp.RetentionTTL < 0 {
		return errors.New("Otp RetentionTTL must be >= 0")
	}
	if c.Otp.RetentionTTL > 0 && c.Otp.RetentionTTL <= c.Otp.TTL {
		return errors.New("Otp RetentionTTL must exceed Otp TTL")
	}
	if strings.EqualFold(c.Environment, EnvironmentProduction) && c.Otp.ExposeCodes {
		return errors.New("Otp ExposeCodes is not allowed in production")
	}
	for p := range c.Otp.EmailSubjects {
		if !p.Valid() {
			return errors.New("Otp EmailSubjects has an invalid purpose")
		}
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Registration
	if !c.Registration.DefaultRole.Valid() {
		return errors.New("Registration DefaultRole is invalid")
	}
	if c.Registration.DefaultRole.IsAdmin() {
		return errors.New("Registration DefaultRole cannot be Admin")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
