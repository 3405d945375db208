package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/rubberops/tapping-backend/internal/analytics"
	"github.com/rubberops/tapping-backend/internal/analytics/writer"
	"github.com/rubberops/tapping-backend/internal/applications"
	"github.com/rubberops/tapping-backend/internal/consumers"
	"github.com/rubberops/tapping-backend/internal/notifications"
	"github.com/rubberops/tapping-backend/pkg/bigquery"
	"github.com/rubberops/tapping-backend/pkg/config"
	"github.com/rubberops/tapping-backend/pkg/db"
	"github.com/rubberops/tapping-backend/pkg/instance"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/migrate"
	"github.com/rubberops/tapping-backend/pkg/outbox/idempotency"
	"github.com/rubberops/tapping-backend/pkg/pubsub"
	"github.com/rubberops/tapping-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(logg, "database", err)

	requireResource(logg, "dev migrations", migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient))

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(logg, "pubsub", err)

	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	requireResource(logg, "bigquery", err)

	defer func() {
		closeErr := multierr.Combine(
			bqClient.Close(),
			pubsubClient.Close(),
			redisClient.Close(),
			dbClient.Close(),
		)
		if closeErr != nil {
			logg.Error(context.Background(), "error closing clients", closeErr)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(logg, "idempotency manager", err)

	agreementHandler, err := applications.NewAgreementHandler(applications.NewRepository(dbClient.DB()), logg)
	requireResource(logg, "agreement handler", err)

	notificationHandler, err := notifications.NewHandler(notifications.NewRepository(dbClient.DB()), logg)
	requireResource(logg, "notification handler", err)

	eventWriter, err := writer.New(bqClient, writer.RetryPolicy{})
	requireResource(logg, "analytics writer", err)
	analyticsHandler, err := analytics.NewHandler(eventWriter, logg)
	requireResource(logg, "analytics handler", err)

	agreementConsumer, err := consumers.NewService(consumers.Params{
		Name:         applications.ConsumerName,
		Subscription: pubsubClient.DomainSubscription(),
		Handler:      agreementHandler,
		Idempotency:  manager,
		Logger:       logg,
		EventTypes:   agreementHandler.EventTypes(),
	})
	requireResource(logg, "agreement consumer", err)

	notificationConsumer, err := consumers.NewService(consumers.Params{
		Name:         notifications.ConsumerName,
		Subscription: pubsubClient.NotificationSubscription(),
		Handler:      notificationHandler,
		Idempotency:  manager,
		Logger:       logg,
		EventTypes:   notificationHandler.EventTypes(),
	})
	requireResource(logg, "notification consumer", err)

	analyticsConsumer, err := consumers.NewService(consumers.Params{
		Name:         analytics.ConsumerName,
		Subscription: pubsubClient.AnalyticsSubscription(),
		Handler:      analyticsHandler,
		Idempotency:  manager,
		Logger:       logg,
		EventTypes:   analyticsHandler.EventTypes(),
	})
	requireResource(logg, "analytics consumer", err)

	service, err := NewService(ServiceParams{
		Logger:    logg,
		Consumers: []consumer{agreementConsumer, notificationConsumer, analyticsConsumer},
		Dependencies: map[string]pinger{
			"database": dbClient.Ping,
			"redis":    redisClient.Ping,
			"pubsub":   pubsubClient.Ping,
			"bigquery": bqClient.Ping,
		},
	})
	requireResource(logg, "worker service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"instance":    instance.GetID("worker"),
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

func requireResource(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to initialize "+name, err)
	os.Exit(1)
}
