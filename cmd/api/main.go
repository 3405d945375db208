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
	"go.uber.org/multierr"

	"github.com/rubberops/tapping-backend/api/controllers"
	"github.com/rubberops/tapping-backend/api/routes"
	"github.com/rubberops/tapping-backend/internal/analytics/query"
	"github.com/rubberops/tapping-backend/internal/applications"
	"github.com/rubberops/tapping-backend/internal/negotiations"
	"github.com/rubberops/tapping-backend/internal/notifications"
	"github.com/rubberops/tapping-backend/pkg/bigquery"
	"github.com/rubberops/tapping-backend/pkg/config"
	"github.com/rubberops/tapping-backend/pkg/db"
	"github.com/rubberops/tapping-backend/pkg/instance"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/metrics"
	"github.com/rubberops/tapping-backend/pkg/migrate"
	"github.com/rubberops/tapping-backend/pkg/outbox"
	"github.com/rubberops/tapping-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap bigquery", err)
		os.Exit(1)
	}
	defer func() {
		if err := multierr.Combine(bqClient.Close(), redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing clients", err)
		}
	}()

	locker, err := newLocker(cfg, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create negotiation locker", err)
		os.Exit(1)
	}

	negotiationService, err := negotiations.NewService(negotiations.ServiceParams{
		Repo:         negotiations.NewRepository(dbClient.DB()),
		Applications: applications.NewRepository(dbClient.DB()),
		Tx:           dbClient,
		Outbox:       outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Locker:       locker,
		Metrics:      metrics.NewNegotiationMetrics(prometheus.DefaultRegisterer),
		Logger:       logg,
		MaxNotes:     cfg.Negotiation.MaxNotesSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create negotiation service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	analyticsService, err := query.NewNegotiationService(query.NewClientQuerier(bqClient), bqClient.EventsTableRef())
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics service", err)
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
		"env":      cfg.App.Env,
		"instance": instance.GetID("api"),
		"addr":     addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			Negotiations:  negotiationService,
			Notifications: notificationService,
			Analytics:     analyticsService,
			Idempotency:   redisClient,
			Readiness: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
			Gatherer:    prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server stopped")
	}
}

// newLocker picks the Redis lock for multi-instance deployments and the
// in-process mutex otherwise.
func newLocker(cfg *config.Config, redisClient *redis.Client) (negotiations.Locker, error) {
	if !cfg.FeatureFlags.UseRedisLocks {
		return negotiations.NewKeyedMutex(cfg.Negotiation.LockWait), nil
	}
	return negotiations.NewRedisLocker(redisClient, negotiations.RedisLockerParams{
		TTL:  cfg.Negotiation.LockTTL,
		Wait: cfg.Negotiation.LockWait,
		Poll: cfg.Negotiation.LockPoll,
	})
}
