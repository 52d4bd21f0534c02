// Package appconfig loads the deskauthd daemon configuration from a YAML or
// TOML file, an optional .env file and DESKAUTH_* environment variables.
package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/deskops/deskauth"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	JWT      JWTConfig      `yaml:"jwt" toml:"jwt"`
	SMTP     SMTPConfig     `yaml:"smtp" toml:"smtp"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	Sentry   SentryConfig   `yaml:"sentry" toml:"sentry"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" toml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url" toml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" toml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate" toml:"migrate"`
}

// RedisConfig selects the Redis OTP store. An empty Addr keeps codes in Postgres.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret" toml:"secret"`
	Issuer     string        `yaml:"issuer" toml:"issuer"`
	Audience   string        `yaml:"audience" toml:"audience"`
	AccessTTL  time.Duration `yaml:"access_ttl" toml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" toml:"refresh_ttl"`
}

// SMTPConfig configures code delivery. An empty Host disables email.
type SMTPConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
	From     string `yaml:"from" toml:"from"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type SentryConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// AuthConfig carries the engine tunables exposed to operators.
type AuthConfig struct {
	Environment       string        `yaml:"environment" toml:"environment"`
	LockoutThreshold  int           `yaml:"lockout_threshold" toml:"lockout_threshold"`
	LockoutDuration   time.Duration `yaml:"lockout_duration" toml:"lockout_duration"`
	OtpTTL            time.Duration `yaml:"otp_ttl" toml:"otp_ttl"`
	OtpLength         int           `yaml:"otp_length" toml:"otp_length"`
	OtpRetention      time.Duration `yaml:"otp_retention" toml:"otp_retention"`
	InvalidatePrior   bool          `yaml:"invalidate_prior_codes" toml:"invalidate_prior_codes"`
	ExposeCodes       bool          `yaml:"expose_codes" toml:"expose_codes"`
	MinPasswordLength int           `yaml:"min_password_length" toml:"min_password_length"`
	AuditEnabled      bool          `yaml:"audit_enabled" toml:"audit_enabled"`
	MetricsEnabled    bool          `yaml:"metrics_enabled" toml:"metrics_enabled"`
}

// Default mirrors deskauth.DefaultConfig for the auth section.
func Default() Config {
	engine := deskauth.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			Migrate:         true,
		},
		JWT: JWTConfig{
			Issuer:     "deskauth",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		SMTP: SMTPConfig{Port: 587},
		Log:  LogConfig{Level: "info", Format: "json"},
		Auth: AuthConfig{
			Environment:       engine.Environment,
			LockoutThreshold:  engine.Lockout.Threshold,
			LockoutDuration:   engine.Lockout.Duration,
			OtpTTL:            engine.Otp.TTL,
			OtpLength:         engine.Otp.Length,
			MinPasswordLength: engine.Password.MinLength,
			MetricsEnabled:    true,
		},
	}
}

// LoadDotEnv loads the given .env files (".env" when none) without
// overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load starts from Default, decodes path when non-empty, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("failed to decode YAML file: %w", err)
		}
		return nil
	case ".toml":
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("failed to decode TOML file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown TOML keys: %v", undecoded)
		}
		return nil
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("DESKAUTH_LISTEN_ADDR"); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := os.LookupEnv("DESKAUTH_DATABASE_URL"); ok && v != "" {
		c.Database.URL = v
	}
	if v, ok := os.LookupEnv("DESKAUTH_REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("DESKAUTH_REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := os.LookupEnv("DESKAUTH_JWT_SECRET"); ok && v != "" {
		c.JWT.Secret = v
	}
	if v, ok := os.LookupEnv("DESKAUTH_SMTP_PASSWORD"); ok && v != "" {
		c.SMTP.Password = v
	}
	if v, ok := os.LookupEnv("DESKAUTH_SENTRY_DSN"); ok {
		c.Sentry.DSN = v
	}
	if v, ok := os.LookupEnv("DESKAUTH_ENV"); ok && v != "" {
		c.Auth.Environment = v
	}
	if v, ok := os.LookupEnv("DESKAUTH_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("DESKAUTH_EXPOSE_CODES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DESKAUTH_EXPOSE_CODES: %w", err)
		}
		c.Auth.ExposeCodes = b
	}
	return nil
}

// Validate checks the daemon-level settings and the derived engine config.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server addr is required")
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("database url is required (DESKAUTH_DATABASE_URL)")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("jwt secret must be at least 32 bytes (DESKAUTH_JWT_SECRET)")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("jwt access_ttl must be > 0")
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return errors.New("smtp from is required when smtp host is set")
	}
	engine := c.EngineConfig()
	if err := engine.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

// EngineConfig maps the auth section onto deskauth.Config.
func (c Config) EngineConfig() deskauth.Config {
	cfg := deskauth.DefaultConfig()
	cfg.Environment = c.Auth.Environment
	cfg.Lockout.Threshold = c.Auth.LockoutThreshold
	cfg.Lockout.Duration = c.Auth.LockoutDuration
	cfg.Otp.TTL = c.Auth.OtpTTL
	cfg.Otp.Length = c.Auth.OtpLength
	cfg.Otp.RetentionTTL = c.Auth.OtpRetention
	cfg.Otp.InvalidatePrior = c.Auth.InvalidatePrior
	cfg.Otp.ExposeCodes = c.Auth.ExposeCodes
	cfg.Password.MinLength = c.Auth.MinPasswordLength
	cfg.Audit.Enabled = c.Auth.AuditEnabled
	cfg.Metrics.Enabled = c.Auth.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.Auth.MetricsEnabled
	return cfg
}
