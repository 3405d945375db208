package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rubberops/tapping-backend/pkg/config"
	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/outbox/registry"
)

const (
	outcomePublished    = "published"
	outcomeRetry        = "retry"
	outcomeDeadLettered = "dead_lettered"

	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type publishObserver interface {
	ObserveRow(eventType, outcome string)
	ObservePublish(topic string, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveRow(string, string)            {}
func (noopObserver) ObservePublish(string, time.Duration) {}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type dlqRepository interface {
	DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          publishObserver
}

// Service relays negotiation events from outbox_events to Pub/Sub.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	metrics          publishObserver
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	var err error
	for _, dep := range []struct {
		missing bool
		name    string
	}{
		{params.Config == nil, "config"},
		{params.Logger == nil, "logger"},
		{params.DB == nil, "database client"},
		{params.PubSub == nil, "pubsub client"},
		{params.Repository == nil, "outbox repository"},
		{params.Registry == nil, "event registry"},
		{params.DLQRepository == nil, "dlq repository"},
	} {
		if dep.missing {
			err = multierr.Append(err, fmt.Errorf("%s is required", dep.name))
		}
	}
	if err != nil {
		return nil, err
	}

	svc := &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: params.PublisherFactory,
		metrics:          params.Metrics,
		batchSize:        orDefault(params.Config.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:      orDefault(params.Config.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval:     time.Duration(orDefault(params.Config.Outbox.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}
	if svc.metrics == nil {
		svc.metrics = noopObserver{}
	}
	if svc.publisherFactory == nil {
		svc.publisherFactory = func(topic string) publisher {
			return newGCPPubPublisher(params.PubSub.Publisher(topic))
		}
	}
	return svc, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Run pings both backends, then drains the outbox until ctx ends. A batch
// that found rows is followed by another at once; an empty one waits a poll
// interval; a failed one waits an exponentially growing delay.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := multierr.Combine(
		wrapPing("database", s.db.Ping(ctx)),
		wrapPing("pubsub", s.pubsub.Ping(ctx)),
	); err != nil {
		s.logg.Error(ctx, "outbox publisher not ready", err)
		return err
	}

	var wait time.Duration
	failures := 0
	for {
		if err := sleepCtx(ctx, wait); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}
		found, err := s.processBatch(ctx)
		switch {
		case err != nil:
			failures++
			wait = retryDelay(s.pollInterval, failures)
			s.logg.Error(s.logg.WithField(ctx, "consecutive_failures", failures), "outbox batch failed", err)
		case found:
			failures, wait = 0, 0
		default:
			failures, wait = 0, s.pollInterval+jitter()
		}
	}
}

func wrapPing(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s ping failed: %w", name, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryDelay doubles base per consecutive failure, capped at maxBackoff.
func retryDelay(base time.Duration, failures int) time.Duration {
	d := base
	for i := 0; i < failures && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff) + jitter()
}

func jitter() time.Duration {
	return rand.N(jitterWindow)
}

func newGCPPubPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
