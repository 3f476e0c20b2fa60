// Command authd serves the zenauth engine over HTTP.
//
// Configuration comes from ZENAUTH_* variables (see zenauth.LoadConfig), an
// optional .env file and the flags below. With -database-url accounts live in
// Postgres; otherwise in Redis.
//
// Signup always assigns the configured default role. The admin routes under
// /v1/admin need a first administrator: sign up and verify an account, then
// restart with -bootstrap-admin <account id>. Further roles are granted
// through POST /v1/admin/accounts/{id}/role.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mk070/zenauth"
	"github.com/mk070/zenauth/account"
	"github.com/mk070/zenauth/mail"
	promexport "github.com/mk070/zenauth/metrics/export/prometheus"
	"github.com/mk070/zenauth/store/pgstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type options struct {
	addr           string
	envFile        string
	redisAddr      string
	databaseURL    string
	smtpHost       string
	smtpPort       int
	smtpUser       string
	smtpFrom       string
	trustForwarded bool
	auditLog       bool
	revealMail     bool
	bootstrapAdmin string
}

func main() {
	var opts options
	flag.StringVar(&opts.addr, "addr", envOr("AUTHD_ADDR", ":8080"), "listen address")
	flag.StringVar(&opts.envFile, "env-file", ".env", "dotenv file; missing files are ignored")
	flag.StringVar(&opts.redisAddr, "redis-addr", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")
	flag.StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres DSN; empty keeps accounts in redis")
	flag.StringVar(&opts.smtpHost, "smtp-host", os.Getenv("SMTP_HOST"), "smtp relay; empty logs emails instead")
	flag.IntVar(&opts.smtpPort, "smtp-port", 587, "smtp port")
	flag.StringVar(&opts.smtpUser, "smtp-user", os.Getenv("SMTP_USER"), "smtp username")
	flag.StringVar(&opts.smtpFrom, "smtp-from", os.Getenv("SMTP_FROM"), "sender address")
	flag.BoolVar(&opts.trustForwarded, "trust-forwarded", false, "take the client ip from X-Forwarded-For")
	flag.BoolVar(&opts.auditLog, "audit-log", true, "write audit events to the log")
	flag.BoolVar(&opts.revealMail, "reveal-mail-secrets", false, "log codes and reset links when no smtp relay is set")
	flag.StringVar(&opts.bootstrapAdmin, "bootstrap-admin", "", "account id promoted to admin at startup")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(opts, logger); err != nil {
		logger.Error("authd stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := zenauth.ConfigFromEnv(opts.envFile)
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Audit.Enabled = opts.auditLog

	rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	b := zenauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(logger)

	if opts.auditLog {
		b.WithAuditSink(zenauth.NewSlogSink(logger.With(slog.String("component", "audit"))))
	}

	if opts.databaseURL != "" {
		db, err := openPostgres(ctx, opts.databaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		b.WithStore(pgstore.New(db, nil))
	}

	mailer, err := newMailer(opts, logger)
	if err != nil {
		return err
	}
	b.WithMailer(mailer)

	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if opts.bootstrapAdmin != "" {
		if err := bootstrapAdmin(ctx, engine, opts.bootstrapAdmin, logger); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if _, err := promexport.Register(reg, engine); err != nil {
		return err
	}

	srv := &server{engine: engine, logger: logger}
	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           srv.routes(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), opts.trustForwarded),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", opts.addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// bootstrapAdmin promotes an existing account. It is idempotent.
func bootstrapAdmin(ctx context.Context, engine *zenauth.Engine, accountID string, logger *slog.Logger) error {
	if err := engine.SetRole(ctx, accountID, account.RoleAdmin); err != nil {
		return fmt.Errorf("bootstrap admin %s: %w", accountID, err)
	}
	logger.Info("admin role granted", slog.String("account_id", accountID))
	return nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := pgstore.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pgstore.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newMailer(opts options, logger *slog.Logger) (mail.Sender, error) {
	if opts.smtpHost == "" {
		return &mail.LogSender{
			Logger:        logger.With(slog.String("component", "mail")),
			RevealSecrets: opts.revealMail,
		}, nil
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     opts.smtpHost,
		Port:     opts.smtpPort,
		Username: opts.smtpUser,
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     opts.smtpFrom,
	})
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
