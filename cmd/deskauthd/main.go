// Command deskauthd serves the deskauth engine over HTTP.
//
// Accounts and, unless redis.addr is set, one-time codes live in Postgres.
// Configuration comes from an optional YAML or TOML file, a .env file and
// DESKAUTH_* environment variables.
//
// Run:
//
//	DESKAUTH_DATABASE_URL=postgres://desk@localhost/desk \
//	DESKAUTH_JWT_SECRET=$(openssl rand -hex 32) \
//	go run ./cmd/deskauthd -config deskauthd.yaml
//
// Then:
//
//	curl -i -X POST localhost:8080/v1/auth/login \
//	  -H 'Content-Type: application/json' \
//	  -d '{"email":"alice@example.com","password":"correct-horse"}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/deskops/deskauth"
	"github.com/deskops/deskauth/internal/appconfig"
	"github.com/deskops/deskauth/jwt"
	"github.com/deskops/deskauth/metrics/export/prometheus"
	"github.com/deskops/deskauth/notify"
	"github.com/deskops/deskauth/observability"
	"github.com/deskops/deskauth/pgstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a .yaml/.yml/.toml config file")
	dotenv := flag.String("dotenv", ".env", "path to a .env file; missing files are ignored")
	flag.Parse()

	if err := run(*configPath, *dotenv); err != nil {
		fmt.Fprintln(os.Stderr, "deskauthd:", err)
		os.Exit(1)
	}
}

func run(configPath, dotenv string) error {
	if err := appconfig.LoadDotEnv(dotenv); err != nil {
		return err
	}
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := observability.InitSentry(cfg.Sentry.DSN, cfg.Auth.Environment); err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------- storage ----------
	db, err := pgstore.Open(ctx, cfg.Database.URL, pgstore.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: pgstore.DefaultPoolConfig().ConnMaxIdleTime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := pgstore.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	store, err := pgstore.New(db, nil)
	if err != nil {
		return err
	}

	// ---------- engine ----------
	issuer, err := jwt.NewIssuer(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.JWT.Secret),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		RequireIAT:    true,
	})
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}

	builder := deskauth.New().
		WithConfig(cfg.EngineConfig()).
		WithUserStore(store).
		WithTokenIssuer(issuer).
		WithLogger(logger).
		WithAuditSink(deskauth.NewZapSink(logger))

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		builder = builder.WithRedis(rdb)
	} else {
		builder = builder.WithOtpStore(store.Otps())
	}

	if cfg.SMTP.Host != "" {
		sender, err := notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return fmt.Errorf("smtp: %w", err)
		}
		builder = builder.WithEmailSender(sender)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("engine build: %w", err)
	}
	defer engine.Close()

	for _, warning := range engine.SecurityReport().Warnings {
		logger.Warn("security report", zap.String("warning", warning))
	}

	var reporter deskauth.ErrorReporter
	if cfg.Sentry.DSN != "" {
		reporter = observability.NewSentryReporter(nil)
	}

	// ---------- http ----------
	srv := &server{
		auth:    deskauth.Instrument(engine, logger, engine.Metrics(), reporter),
		parser:  issuer.Manager(),
		metrics: prometheus.NewExporter(engine).Handler(),
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
