package deskauth

import (
	"context"
	"io"
	"strings"
	"time"

	internalaudit "github.com/deskops/deskauth/internal/audit"
	internalmetrics "github.com/deskops/deskauth/internal/metrics"
	"go.uber.org/zap"
)

// Role is the single primary role of an account. The set is closed.
type Role uint8

const (
	// RoleUnknown is the zero value and never assigned to an account.
	RoleUnknown Role = iota
	// RoleAdmin bypasses the email-confirmation gate and cannot be self-registered.
	RoleAdmin
	// RoleTechnician handles incident tickets.
	RoleTechnician
	// RoleMerchant reports incidents for a shop.
	RoleMerchant
	// RoleUser is the default role for self-registration.
	RoleUser
)

// IsAdmin reports whether r is the administrator role.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool { return r >= RoleAdmin && r <= RoleUser }

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleTechnician:
		return "Technician"
	case RoleMerchant:
		return "Merchant"
	case RoleUser:
		return "User"
	default:
		return "Unknown"
	}
}

// ParseRole resolves a role identifier case-insensitively. The legacy
// identifiers "Technicien" and "Commercant" are accepted as aliases.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, true
	case "technician", "technicien":
		return RoleTechnician, true
	case "merchant", "commercant":
		return RoleMerchant, true
	case "user":
		return RoleUser, true
	default:
		return RoleUnknown, false
	}
}

// LockoutKind tags a [LockoutState].
type LockoutKind uint8

const (
	// LockoutActive means the account is not locked.
	LockoutActive LockoutKind = iota
	// LockoutTemporary means the account is locked until LockoutState.Until.
	LockoutTemporary
	// LockoutPermanent means the account was disabled by an administrator.
	LockoutPermanent
)

// LockoutState is the lockout variant of an account: Active, TemporaryUntil(t)
// or Permanent. Until is only meaningful for LockoutTemporary.
type LockoutState struct {
	Kind  LockoutKind
	Until time.Time
}

// Unlocked returns the Active variant.
func Unlocked() LockoutState { return LockoutState{Kind: LockoutActive} }

// LockedUntil returns the TemporaryUntil variant.
func LockedUntil(t time.Time) LockoutState { return LockoutState{Kind: LockoutTemporary, Until: t} }

// Disabled returns the Permanent variant.
func Disabled() LockoutState { return LockoutState{Kind: LockoutPermanent} }

// IsLockedOut reports whether the state blocks a login at now.
func (s LockoutState) IsLockedOut(now time.Time) bool {
	switch s.Kind {
	case LockoutPermanent:
		return true
	case LockoutTemporary:
		return now.Before(s.Until)
	default:
		return false
	}
}

// EndDate returns the temporary lockout end, or ok=false for Active and Permanent.
func (s LockoutState) EndDate() (time.Time, bool) {
	if s.Kind != LockoutTemporary {
		return time.Time{}, false
	}
	return s.Until, true
}

// Account is the snapshot of an account returned by a [UserStore].
type Account struct {
	ID       string
	Username string
	Email    string

	FirstName string
	LastName  string
	Age       int

	Role              Role
	EmailConfirmed    bool
	FailedAccessCount int
	Lockout           LockoutState
	CreatedAt         time.Time
}

// OtpPurpose scopes an OTP code to one flow.
type OtpPurpose uint8

const (
	OtpEmailConfirmation OtpPurpose = iota
	OtpPhoneConfirmation
	OtpResetPassword
	OtpTwoFactor
)

// Valid reports whether p is one of the defined purposes.
func (p OtpPurpose) Valid() bool { return p <= OtpTwoFactor }

func (p OtpPurpose) String() string {
	switch p {
	case OtpEmailConfirmation:
		return "email_confirmation"
	case OtpPhoneConfirmation:
		return "phone_confirmation"
	case OtpResetPassword:
		return "reset_password"
	case OtpTwoFactor:
		return "two_factor"
	default:
		return "unknown"
	}
}

// OtpStatus is Generated until the first successful validation.
type OtpStatus uint8

const (
	OtpGenerated OtpStatus = iota
	OtpConsumed
)

// OtpCode is one issued one-time password.
type OtpCode struct {
	ID        string
	AccountID string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    OtpStatus
	Purpose   OtpPurpose
}

// UserStore persists accounts and verifies credentials.
//
// Finders return [ErrAccountNotFound] on a miss. Create returns [ErrAccountExists]
// for a duplicate email or username. IncrementFailedAccessCount must be atomic
// and return the count after the increment.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	Create(ctx context.Context, account Account, password string) (Account, error)
	Update(ctx context.Context, account Account) error
	CheckPassword(ctx context.Context, account Account, password string) (bool, error)
	SetPassword(ctx context.Context, account Account, password string) error
	IncrementFailedAccessCount(ctx context.Context, account Account) (int, error)
	ResetFailedAccessCount(ctx context.Context, account Account) error
	SetLockout(ctx context.Context, account Account, state LockoutState) error
}

// OtpStore persists OTP codes.
//
// FindValid matches owner, code and purpose and returns the most relevant row:
// the newest Generated one, else the newest Consumed one, else [ErrOtpNotFound].
// Expiry is not filtered so callers can tell expired from unknown codes.
//
// Update persists otp. A Generated to Consumed transition is a compare-and-set:
// when the stored row is already Consumed it returns [ErrOtpAlreadyUsed].
type OtpStore interface {
	Add(ctx context.Context, otp OtpCode) error
	FindValid(ctx context.Context, accountID, code string, purpose OtpPurpose) (OtpCode, error)
	Update(ctx context.Context, otp OtpCode) error
}

// OtpInvalidator is implemented by OTP stores able to consume every
// Generated code of an account and purpose at once.
type OtpInvalidator interface {
	InvalidateGenerated(ctx context.Context, accountID string, purpose OtpPurpose) (int, error)
}

// TokenIssuer mints bearer credentials for an authenticated account.
type TokenIssuer interface {
	IssueAccess(ctx context.Context, account Account, roles []Role) (string, time.Time, error)
	IssueRefresh(ctx context.Context, account Account) (string, error)
}

// RefreshTokenParser is implemented by token issuers that can validate their
// own refresh tokens and return the subject account id.
type RefreshTokenParser interface {
	ParseRefresh(ctx context.Context, token string) (string, error)
}

// EmailSender delivers a plain message. Failures never fail OTP issuance.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Transactor runs fn so that every store call made with the ctx it receives
// commits or rolls back together.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ErrorReporter receives unexpected failures for out-of-band reporting.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// AuthPayload is returned by a successful login or refresh exchange.
type AuthPayload struct {
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
	AccountID      string
	Username       string
	Email          string
	Role           Role
	EmailConfirmed bool
}

// IssueOtpResult is the outcome of an OTP issuance. RawCode is only filled
// when Config.Otp.ExposeCodes is set.
type IssueOtpResult struct {
	Code      ResultCode
	Delivered bool
	ExpiresAt time.Time
	RawCode   string
}

// RegisterRequest carries self-registration input. An empty Role means User.
type RegisterRequest struct {
	Username  string
	Email     string
	Password  string
	Role      string
	FirstName string
	LastName  string
	Age       int
}

// CreateAccountRequest carries administrative account creation input.
type CreateAccountRequest struct {
	Username  string
	Email     string
	Password  string
	Role      Role
	FirstName string
	LastName  string
	Age       int
}

// RegisterResult is a successful registration, possibly with a caveat:
// Code is ResultConfirmationNotGenerated when the account exists but no
// confirmation code could be issued.
type RegisterResult struct {
	Account      Account
	Code         ResultCode
	Confirmation IssueOtpResult
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink logs events through a zap logger.
type ZapSink = internalaudit.ZapSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink creates a [ZapSink] logging at info level.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}

// MetricID identifies a counter or latency histogram.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess             = MetricID(internalmetrics.MetricLoginSuccess)
	MetricLoginFailure             = MetricID(internalmetrics.MetricLoginFailure)
	MetricLoginLocked              = MetricID(internalmetrics.MetricLoginLocked)
	MetricLoginDisabled            = MetricID(internalmetrics.MetricLoginDisabled)
	MetricLoginUnconfirmed         = MetricID(internalmetrics.MetricLoginUnconfirmed)
	MetricLockoutTriggered         = MetricID(internalmetrics.MetricLockoutTriggered)
	MetricLockoutCleared           = MetricID(internalmetrics.MetricLockoutCleared)
	MetricRegisterSuccess          = MetricID(internalmetrics.MetricRegisterSuccess)
	MetricRegisterFailure          = MetricID(internalmetrics.MetricRegisterFailure)
	MetricOtpIssued                = MetricID(internalmetrics.MetricOtpIssued)
	MetricOtpUndelivered           = MetricID(internalmetrics.MetricOtpUndelivered)
	MetricOtpValidated             = MetricID(internalmetrics.MetricOtpValidated)
	MetricOtpRejected              = MetricID(internalmetrics.MetricOtpRejected)
	MetricPasswordResetRequest     = MetricID(internalmetrics.MetricPasswordResetRequest)
	MetricPasswordResetSuccess     = MetricID(internalmetrics.MetricPasswordResetSuccess)
	MetricPasswordResetFailure     = MetricID(internalmetrics.MetricPasswordResetFailure)
	MetricAccountStatusChange      = MetricID(internalmetrics.MetricAccountStatusChange)
	MetricRefreshSuccess           = MetricID(internalmetrics.MetricRefreshSuccess)
	MetricRefreshFailure           = MetricID(internalmetrics.MetricRefreshFailure)
	MetricLoginLatency             = MetricID(internalmetrics.MetricLoginLatency)
	MetricRegisterLatency          = MetricID(internalmetrics.MetricRegisterLatency)
	MetricOtpIssueLatency          = MetricID(internalmetrics.MetricOtpIssueLatency)
	MetricOtpValidateLatency       = MetricID(internalmetrics.MetricOtpValidateLatency)
	MetricPasswordResetLatency     = MetricID(internalmetrics.MetricPasswordResetLatency)
	MetricAccountOperationsLatency = MetricID(internalmetrics.MetricAccountOperationsLatency)
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
