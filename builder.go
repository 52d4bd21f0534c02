package deskauth

import (
	"errors"
	"time"

	internalaudit "github.com/deskops/deskauth/internal/audit"
	"github.com/deskops/deskauth/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. Configure it once during initialization;
// Build may only be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users  UserStore
	otps   OtpStore
	tokens TokenIssuer
	email  EmailSender

	auditSinks []AuditSink
	logger     *zap.Logger
	clock      func() time.Time

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. It is validated by Build.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithUserStore sets the account store. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithOtpStore sets the OTP store. It takes precedence over WithRedis.
func (b *Builder) WithOtpStore(store OtpStore) *Builder {
	b.otps = store
	return b
}

// WithRedis makes Build create a [RedisOtpStore] when no OTP store was set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithTokenIssuer sets the token backend. Required.
func (b *Builder) WithTokenIssuer(issuer TokenIssuer) *Builder {
	b.tokens = issuer
	return b
}

// WithEmailSender sets the OTP delivery backend. Without one every issued
// code is reported as undelivered.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.email = sender
	return b
}

// WithAuditSink adds an audit sink. It may be called more than once.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if sink != nil {
		b.auditSinks = append(b.auditSinks, sink)
	}
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and collaborators and returns the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.tokens == nil {
		return nil, errors.New("token issuer required")
	}

	otps := b.otps
	if otps == nil {
		if b.redis == nil {
			return nil, errors.New("otp store or redis client required")
		}
		otps = NewRedisOtpStore(b.redis, cfg.Otp.RedisPrefix, cfg.Otp.RetentionTTL)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config: cloneConfig(cfg),
		users:  b.users,
		otps:   otps,
		tokens: b.tokens,
		email:  b.email,
		policy: password.Policy{
			MinLength:              cfg.Password.MinLength,
			RequireDigit:           cfg.Password.RequireDigit,
			RequireLowercase:       cfg.Password.RequireLowercase,
			RequireUppercase:       cfg.Password.RequireUppercase,
			RequireNonAlphanumeric: cfg.Password.RequireNonAlphanumeric,
		},
		logger: logger,
		clock:  b.clock,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSinks...)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
