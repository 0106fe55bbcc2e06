package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dangtnh/coworkhub-platform/internal/api/router"
	appconfig "github.com/dangtnh/coworkhub-platform/internal/config"
	"github.com/dangtnh/coworkhub-platform/internal/notify"
	"github.com/dangtnh/coworkhub-platform/internal/observability/metrics"
	"github.com/dangtnh/coworkhub-platform/internal/payments"
	"github.com/dangtnh/coworkhub-platform/internal/reservations"
	"github.com/dangtnh/coworkhub-platform/internal/vietqr"
	"github.com/dangtnh/coworkhub-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting coworkhub payment reconciliation service",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb = redis.NewClient(opts)
	}

	emailSender := buildEmailSender(ctx, cfg, logger)

	reconMetrics := metrics.NewReconciliationMetrics(nil)

	reservationStore := reservations.NewStore(pool)
	paymentStore := payments.NewStore(pool)
	notifier := notify.NewService(emailSender, reservationStore, logger)
	stateMachine := reservations.NewService(reservationStore, notifier, cfg.CancellationWindow, cfg.PendingTimeout, logger)
	sweeper := reservations.NewSweeper(reservationStore, stateMachine, logger)

	tokenService := vietqr.NewTokenService(cfg.VietQRUsername, cfg.VietQRPassword, cfg.WebhookTokenSecret, cfg.WebhookTokenTTL, logger)
	matcher := vietqr.NewMatcher(cfg.ReservationCodePrefix)
	deduper := vietqr.NewDeduper(rdb, vietqr.NewProcessedStore(pool), cfg.DedupeTTL, logger)
	vietqrHandler := vietqr.NewHandler(tokenService, matcher, stateMachine, paymentStore, deduper, reconMetrics, logger)

	reservationsHandler := reservations.NewHandler(stateMachine, sweeper, paymentStore, reconMetrics, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		VietQRHandler:       vietqrHandler,
		ReservationsHandler: reservationsHandler,
		MetricsHandler:      promhttp.Handler(),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		SweepSecret:         cfg.SweepSecret,
		TokenRateLimit:      cfg.TokenRateLimit,
		TokenRateBurst:      cfg.TokenRateBurst,
	})

	// In-process sweep alongside the externally scheduled trigger.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweeper.Run(sweepCtx, cfg.SweepInterval)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected but not configured, falling back to stub sender")
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config, falling back to stub sender", "error", err)
			break
		}
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	return notify.NewStubEmailSender(logger)
}
