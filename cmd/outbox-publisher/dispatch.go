package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/outbox/registry"
)

// verdict is what one delivery attempt decided for a row.
type verdict struct {
	outcome string
	reason  enums.OutboxDLQErrorReason
	err     error
}

// processBatch locks a batch of due rows and settles each one in the same
// transaction. It reports whether any rows were due.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	found := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		found = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, event, s.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return found, err
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) verdict {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return verdict{outcome: outcomeDeadLettered, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	err = s.fanOut(ctx, event, resolved)
	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		return verdict{outcome: outcomePublished}
	case errors.As(err, &permanent):
		return verdict{outcome: outcomeDeadLettered, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	case event.AttemptCount+1 >= s.maxAttempts:
		return verdict{
			outcome: outcomeDeadLettered,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			err:     fmt.Errorf("max publish attempts reached: %w", err),
		}
	default:
		return verdict{outcome: outcomeRetry, err: err}
	}
}

// fanOut publishes the row to every topic at once. The row counts as
// delivered only when all topics ack; topics that acked before a sibling
// failed get the row again on retry and consumers drop it by event_id.
func (s *Service) fanOut(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topics := resolved.Descriptor.Topics
	if len(topics) == 0 {
		return registry.NewNonRetryableError(fmt.Errorf("no topics registered for %s", event.EventType))
	}
	pubs := make([]publisher, len(topics))
	for i, topic := range topics {
		if pubs[i] = s.publisherFactory(topic); pubs[i] == nil {
			return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
		}
	}

	elapsed := make([]time.Duration, len(topics))
	acked := make([]bool, len(topics))
	g, gctx := errgroup.WithContext(ctx)
	for i, topic := range topics {
		g.Go(func() error {
			started := time.Now()
			if err := publishOne(gctx, pubs[i], topic, resolved.Envelope.EventID, event); err != nil {
				return fmt.Errorf("topic %s: %w", topic, err)
			}
			elapsed[i], acked[i] = time.Since(started), true
			return nil
		})
	}
	err := g.Wait()
	for i, topic := range topics {
		if acked[i] {
			s.metrics.ObservePublish(topic, elapsed[i])
		}
	}
	return err
}

func publishOne(ctx context.Context, pub publisher, topic, eventID string, event models.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       eventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

// settle records the verdict on the row inside tx.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, v verdict) error {
	ctx = s.logg.WithFields(ctx, eventFields(event))
	switch v.outcome {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(ctx, "negotiation event published")
	case outcomeRetry:
		if err := s.repo.MarkFailedTx(tx, event.ID, v.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", v.err.Error()), "negotiation event publish failed, will retry")
	case outcomeDeadLettered:
		if err := s.dlq.DeadLetterTx(tx, event, v.reason, v.err); err != nil {
			return fmt.Errorf("dead-letter %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, v.err); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"error":        v.err.Error(),
			"error_reason": v.reason,
		}), "negotiation event dead-lettered")
	}
	s.metrics.ObserveRow(string(event.EventType), v.outcome)
	return nil
}

// eventFields tags the row with the aggregate under its domain name.
func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"attempt_count": event.AttemptCount,
	}
	switch event.AggregateType {
	case enums.AggregateNegotiation:
		fields["ledger_id"] = event.AggregateID.String()
	case enums.AggregateServiceApplication:
		fields["application_id"] = event.AggregateID.String()
	default:
		fields["aggregate_id"] = event.AggregateID.String()
	}
	return fields
}
