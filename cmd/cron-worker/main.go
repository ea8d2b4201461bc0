package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/faisalrasbihan/algosaham-4-sub001/internal/billing"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/cron"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/entitlements"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/subscriptions"
	midtranswebhook "github.com/faisalrasbihan/algosaham-4-sub001/internal/webhooks/midtrans"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/config"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/instance"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/metrics"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/midtrans"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/migrate"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	loc, err := cfg.Billing.Location()
	if err != nil {
		logg.Error(context.Background(), "failed to load billing timezone", err)
		os.Exit(1)
	}

	service, provisioner, err := buildService(cfg, logg, dbClient, redisClient, loc)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}
	// replayed settlements may have scheduled provisioning
	defer provisioner.Wait()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	if *once {
		logg.Info(ctx, "running cron jobs once")
		if err := service.RunOnce(ctx); err != nil {
			provisioner.Wait()
			logg.Error(ctx, "cron run failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		provisioner.Wait()
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, loc *time.Location) (*cron.Service, *subscriptions.Provisioner, error) {
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	entitlementRepo := entitlements.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())
	inbox := midtranswebhook.NewInboxRepository(dbClient.DB())

	prices, err := billing.PricesWithOverrides(cfg.Billing.PriceOverrides)
	if err != nil {
		return nil, nil, fmt.Errorf("price overrides: %w", err)
	}
	gateway, err := midtrans.NewFromConfig(cfg.Midtrans)
	if err != nil {
		return nil, nil, fmt.Errorf("midtrans client: %w", err)
	}
	provisioner, err := subscriptions.NewProvisioner(subscriptions.ProvisionerParams{
		Gateway:           gateway,
		Repo:              billingRepo,
		Logger:            logg,
		Prices:            prices,
		Currency:          cfg.Billing.Currency,
		Location:          loc,
		Timeout:           cfg.Billing.ProvisioningTimeout,
		Attempts:          cfg.Billing.ProvisioningAttempts,
		MonthlyMaxCharges: cfg.Billing.MonthlyMaxCharges,
		AnnualMaxCharges:  cfg.Billing.AnnualMaxCharges,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("provisioner: %w", err)
	}

	usageReset, err := cron.NewUsageResetJob(cron.UsageResetJobParams{
		Logger:   logg,
		Repo:     entitlementRepo,
		Metrics:  cronMetrics,
		Location: loc,
	})
	if err != nil {
		return nil, nil, err
	}
	expiry, err := cron.NewEntitlementExpiryJob(cron.EntitlementExpiryJobParams{
		Logger:    logg,
		Repo:      entitlementRepo,
		Metrics:   cronMetrics,
		BatchSize: cfg.Cron.SweepBatchSize,
	})
	if err != nil {
		return nil, nil, err
	}
	reconcile, err := cron.NewSubscriptionReconcileJob(cron.SubscriptionReconcileJobParams{
		Logger:    logg,
		Repo:      billingRepo,
		Syncer:    provisioner,
		Metrics:   cronMetrics,
		BatchSize: cfg.Cron.SweepBatchSize,
	})
	if err != nil {
		return nil, nil, err
	}

	entitlementService, err := entitlements.NewService(entitlements.ServiceParams{
		Repo:     entitlementRepo,
		DB:       dbClient,
		Logger:   logg,
		Location: loc,
		Canceler: provisioner,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("entitlement service: %w", err)
	}
	webhookService, err := midtranswebhook.NewService(midtranswebhook.ServiceParams{
		Entitlements:      entitlementService,
		BillingRepo:       billingRepo,
		TransactionRunner: dbClient,
		Provisioner:       provisioner,
		Logger:            logg,
		Prices:            prices,
		ServerKey:         cfg.Midtrans.ServerKey,
		Inbox:             inbox,
		StatusChecker:     gateway,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("webhook service: %w", err)
	}
	replay, err := cron.NewWebhookReplayJob(cron.WebhookReplayJobParams{
		Logger:      logg,
		Inbox:       inbox,
		Replayer:    webhookService,
		Metrics:     cronMetrics,
		BatchSize:   cfg.Cron.SweepBatchSize,
		Grace:       cfg.Cron.ReplayGrace,
		MaxAttempts: cfg.Cron.ReplayMaxAttempts,
	})
	if err != nil {
		return nil, nil, err
	}

	registry, err := cron.NewRegistry(usageReset, expiry, reconcile, replay)
	if err != nil {
		return nil, nil, err
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+envOrLocal(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return nil, nil, err
	}
	return service, provisioner, nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
