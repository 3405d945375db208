package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/rubberops/tapping-backend/internal/applications"
	"github.com/rubberops/tapping-backend/internal/cron"
	"github.com/rubberops/tapping-backend/internal/negotiations"
	"github.com/rubberops/tapping-backend/internal/notifications"
	"github.com/rubberops/tapping-backend/pkg/config"
	"github.com/rubberops/tapping-backend/pkg/db"
	"github.com/rubberops/tapping-backend/pkg/instance"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/metrics"
	"github.com/rubberops/tapping-backend/pkg/migrate"
	"github.com/rubberops/tapping-backend/pkg/outbox"
	"github.com/rubberops/tapping-backend/pkg/redis"
)

const staleReminderBatch = 100

func main() {
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
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

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
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing clients", err)
		}
	}()

	outboxRepo := outbox.NewRepository(dbClient.DB())
	negotiationService, err := negotiations.NewService(negotiations.ServiceParams{
		Repo:         negotiations.NewRepository(dbClient.DB()),
		Applications: applications.NewRepository(dbClient.DB()),
		Tx:           dbClient,
		Outbox:       outbox.NewService(outboxRepo, logg),
		Logger:       logg,
		MaxNotes:     cfg.Negotiation.MaxNotesSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create negotiation service", err)
		os.Exit(1)
	}

	jobs, err := buildJobs(cfg, logg, negotiationService, outboxRepo, notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	instanceID := instance.GetID("cron-worker")
	lease, err := cron.NewLeaderLease(redisClient, cfg.App.Env, instanceID, 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron leader lease", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lease,
		Metrics:  metrics.NewCronMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"instance":    instanceID,
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(jobs),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(
	cfg *config.Config,
	logg *logger.Logger,
	reminders negotiations.Service,
	outboxRepo *outbox.Repository,
	notificationRepo notifications.Repository,
) ([]cron.Job, error) {
	stale, staleErr := cron.NewStaleNegotiationsJob(cron.StaleNegotiationsJobParams{
		Logger:     logg,
		Reminders:  reminders,
		StaleAfter: cfg.Negotiation.StaleAfter,
		BatchSize:  staleReminderBatch,
	})
	retention, retentionErr := cron.NewOutboxRetentionJob(logg, outboxRepo, cfg.Cron.OutboxRetentionDays)
	cleanup, cleanupErr := cron.NewNotificationCleanupJob(logg, notificationRepo, cfg.Cron.NotificationRetentionDays)
	if err := multierr.Combine(staleErr, retentionErr, cleanupErr); err != nil {
		return nil, err
	}
	return []cron.Job{stale, retention, cleanup}, nil
}
