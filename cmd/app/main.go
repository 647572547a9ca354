package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"persian-connect/internal/auth"
	"persian-connect/internal/cache"
	"persian-connect/internal/config"
	"persian-connect/internal/handlers"
	"persian-connect/internal/httpserver"
	"persian-connect/internal/logging"
	"persian-connect/internal/market"
	"persian-connect/internal/metrics"
	"persian-connect/internal/moderation"
	"persian-connect/internal/notify"
	"persian-connect/internal/payment"
	"persian-connect/internal/repo"
	"persian-connect/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting persian-connect", "env", cfg.AppEnv, "storage", cfg.StorageDriver)

	if cfg.PublicBaseURL != "" {
		webhookURL := strings.TrimRight(cfg.PublicBaseURL, "/") + "/webhook/payments"
		logger.Info("public base url configured", "base_url", cfg.PublicBaseURL, "webhook_url", webhookURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var redisClient *cache.Redis
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
	}

	dsn := cfg.SQLitePath
	if cfg.StorageDriver == repo.DriverPostgres {
		dsn = cfg.DatabaseURL
	}
	repository, err := repo.Open(ctx, repo.OpenConfig{
		Driver:      cfg.StorageDriver,
		DSN:         dsn,
		Schema:      cfg.DBSchema,
		RedisPrefix: cfg.RedisPrefix,
	}, redisClient, logger)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("storage migrated")

	var moderator moderation.Moderator = moderation.NewRules()
	if cfg.ModerationURL != "" {
		moderator = moderation.NewClient(moderation.Config{
			BaseURL: cfg.ModerationURL,
			APIKey:  cfg.ModerationAPIKey,
			Timeout: cfg.ModerationTimeout,
		}, logger, metricRegistry)
	} else {
		logger.Info("no moderation service configured, using local rules")
	}

	store, err := market.New(ctx, repository,
		market.WithLogger(logger),
		market.WithMetrics(metricRegistry),
		market.WithModerator(moderator),
		market.WithFees(market.Fees{AdPosting: cfg.FeeAdPosting, AdBoost: cfg.FeeAdBoost, Currency: cfg.FeeCurrency}),
		market.WithSeedAdmin(market.SeedAccount{
			Email:       cfg.AdminEmail,
			Username:    "admin",
			DisplayName: "Persian Connect Admin",
			Password:    cfg.AdminPassword,
		}),
	)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return fmt.Errorf("init tokens: %w", err)
	}

	paymentClient := payment.New(payment.Config{
		BaseURL:    cfg.PaymentBaseURL,
		APIKey:     cfg.PaymentAPIKey,
		Timeout:    cfg.PaymentTimeout,
		SuccessURL: cfg.PaymentSuccessURL,
		CancelURL:  cfg.PaymentCancelURL,
	}, logger, metricRegistry, redisClient)
	payments := handlers.NewPayments(store, paymentClient, metricRegistry, logger)

	var serverHandlers httpserver.Handlers
	if paymentClient.Enabled() {
		serverHandlers.PaymentWebhook = payment.NewWebhookHandler(logger, metricRegistry, cfg.PaymentWebhookUsernameMD5, cfg.PaymentWebhookPasswordMD5, payments)
	} else {
		logger.Info("payment gateway disabled")
	}

	if cfg.WhatsAppEnabled {
		waClient, err := notify.NewWhatsApp(ctx, notify.WhatsAppConfig{
			StorePath: cfg.WhatsAppStorePath,
			LogLevel:  cfg.WhatsAppLogLevel,
		}, logger, metricRegistry)
		if err != nil {
			return fmt.Errorf("init whatsapp client: %w", err)
		}
		defer waClient.Close()

		go func() {
			if err := waClient.Start(ctx); err != nil {
				logger.Error("whatsapp client stopped", "error", err)
			}
		}()
		notifier := notify.New(store, waClient, logger, metricRegistry)
		go notifier.Run(ctx)
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		store.RunSweeper(ctx, cfg.SweepInterval)
	}()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, serverHandlers, cfg.PublicBasePath)
	httpSrv.SetDependencies(httpserver.Dependencies{
		Store:      store,
		Tokens:     tokens,
		Payments:   payments,
		Repository: repository,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	<-sweepDone
	if err := store.Flush(shutdownCtx); err != nil {
		logger.Error("final save failed", "error", err)
	}

	return runErr
}
