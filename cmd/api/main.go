package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/faisalrasbihan/algosaham-4-sub001/api/routes"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/billing"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/entitlements"
	"github.com/faisalrasbihan/algosaham-4-sub001/internal/subscriptions"
	midtranswebhook "github.com/faisalrasbihan/algosaham-4-sub001/internal/webhooks/midtrans"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/config"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/logger"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/metrics"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/midtrans"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/migrate"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/redis"
)

const (
	shutdownTimeout = 15 * time.Second
	webhookScope    = "midtrans-webhook"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	prices, err := billing.PricesWithOverrides(cfg.Billing.PriceOverrides)
	if err != nil {
		logg.Error(context.Background(), "invalid price overrides", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	gateway, err := midtrans.NewFromConfig(cfg.Midtrans)
	if err != nil {
		logg.Error(context.Background(), "failed to create midtrans client", err)
		os.Exit(1)
	}

	billingRepo := billing.NewRepository(dbClient.DB())
	provisioner, err := subscriptions.NewProvisioner(subscriptions.ProvisionerParams{
		Gateway:           gateway,
		Repo:              billingRepo,
		Logger:            logg,
		Metrics:           webhookMetrics,
		Prices:            prices,
		Currency:          cfg.Billing.Currency,
		Location:          loc,
		Timeout:           cfg.Billing.ProvisioningTimeout,
		Attempts:          cfg.Billing.ProvisioningAttempts,
		MonthlyMaxCharges: cfg.Billing.MonthlyMaxCharges,
		AnnualMaxCharges:  cfg.Billing.AnnualMaxCharges,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create provisioner", err)
		os.Exit(1)
	}

	entitlementService, err := entitlements.NewService(entitlements.ServiceParams{
		Repo:     entitlements.NewRepository(dbClient.DB()),
		DB:       dbClient,
		Logger:   logg,
		Location: loc,
		Canceler: provisioner,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement service", err)
		os.Exit(1)
	}

	webhookService, err := midtranswebhook.NewService(midtranswebhook.ServiceParams{
		Entitlements:      entitlementService,
		BillingRepo:       billingRepo,
		TransactionRunner: dbClient,
		Provisioner:       provisioner,
		Logger:            logg,
		Metrics:           webhookMetrics,
		Prices:            prices,
		ServerKey:         cfg.Midtrans.ServerKey,
		Inbox:             midtranswebhook.NewInboxRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := midtranswebhook.NewIdempotencyGuard(redisClient, cfg.Billing.WebhookDedupeTTL, webhookScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"midtransEnv": cfg.Midtrans.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			entitlementService,
			webhookService,
			webhookGuard,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		// in-flight provisioning has its own bounded timeout
		provisioner.Wait()
		return err
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
