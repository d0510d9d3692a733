package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/lukaskovac/motormarkt-backend/api/routes"
	"github.com/lukaskovac/motormarkt-backend/internal/listings"
	"github.com/lukaskovac/motormarkt-backend/internal/notifications"
	"github.com/lukaskovac/motormarkt-backend/internal/subscriptions"
	"github.com/lukaskovac/motormarkt-backend/internal/webhooks"
	"github.com/lukaskovac/motormarkt-backend/internal/webhooks/guard"
	"github.com/lukaskovac/motormarkt-backend/internal/webhooks/ledger"
	listingproc "github.com/lukaskovac/motormarkt-backend/internal/webhooks/listing"
	subscriptionproc "github.com/lukaskovac/motormarkt-backend/internal/webhooks/subscription"
	"github.com/lukaskovac/motormarkt-backend/pkg/config"
	"github.com/lukaskovac/motormarkt-backend/pkg/db"
	"github.com/lukaskovac/motormarkt-backend/pkg/logger"
	"github.com/lukaskovac/motormarkt-backend/pkg/metrics"
	"github.com/lukaskovac/motormarkt-backend/pkg/migrate"
	"github.com/lukaskovac/motormarkt-backend/pkg/pubsub"
	"github.com/lukaskovac/motormarkt-backend/pkg/redis"
	"github.com/lukaskovac/motormarkt-backend/pkg/stripe"
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

	var cleanup []func() error
	defer func() {
		var errs error
		for i := len(cleanup) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, cleanup[i]())
		}
		if errs != nil {
			logg.Error(context.Background(), "shutdown cleanup", errs)
		}
	}()

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	cleanup = append(cleanup, dbClient.Close)

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	cleanup = append(cleanup, redisClient.Close)

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	// The activation notification hook is optional: without a GCP project
	// the webhook core still runs, it just skips the side channel.
	var notifier subscriptionproc.ActivationNotifier
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pubsubClient.Close)

		notifier, err = notifications.NewPublisher(pubsubClient.NotificationPublisher(), logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create notification publisher", err)
			os.Exit(1)
		}
	}

	listingService, err := listings.NewService(listings.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create listing service", err)
		os.Exit(1)
	}
	subscriptionService, err := subscriptions.NewService(subscriptions.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	listingProcessor, err := listingproc.NewProcessor(listingService)
	if err != nil {
		logg.Error(context.Background(), "failed to create listing processor", err)
		os.Exit(1)
	}
	subscriptionProcessor, err := subscriptionproc.NewProcessor(subscriptionService, notifier, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription processor", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:        ledger.NewRepository(dbClient.DB()),
		Logger:      logg,
		MaxAttempts: cfg.Webhook.MaxAttempts,
		StaleAfter:  cfg.Webhook.StaleClaimAfter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	metricsRegistry := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(metricsRegistry)

	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Ledger:            ledgerService,
		Listing:           listingProcessor,
		Subscription:      subscriptionProcessor,
		Logger:            logg,
		Metrics:           webhookMetrics,
		ProcessingTimeout: cfg.Webhook.ProcessingTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := guard.New(redisClient, cfg.Webhook.GuardTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting webhook api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			stripeClient,
			webhookService,
			webhookGuard,
			metricsRegistry,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
