package consumers

import (
	"context"
	"errors"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/logger"
)

// Handler processes one decoded negotiation event.
type Handler interface {
	Handle(ctx context.Context, envelope Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope Envelope) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, envelope Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type eventClaims interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Params wires one subscription to one handler.
type Params struct {
	Name         string
	Subscription receiver
	Handler      Handler
	Idempotency  eventClaims
	Logger       *logger.Logger
	// EventTypes limits the handler to these events; others are acked untouched.
	EventTypes []enums.OutboxEventType
}

// Service drains a Pub/Sub subscription. Every event id is handled at most
// once per consumer name; handler failures release the mark and nack.
type Service struct {
	name         string
	subscription receiver
	handler      Handler
	claims       eventClaims
	logg         *logger.Logger
	eventFilter  map[enums.OutboxEventType]struct{}
}

// NewService validates the wiring of a consumer.
func NewService(params Params) (*Service, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, errors.New("consumer name is required")
	}
	if params.Subscription == nil {
		return nil, errors.New("subscription is required")
	}
	if params.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if params.Idempotency == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	var filter map[enums.OutboxEventType]struct{}
	if len(params.EventTypes) > 0 {
		filter = make(map[enums.OutboxEventType]struct{}, len(params.EventTypes))
		for _, eventType := range params.EventTypes {
			filter[eventType] = struct{}{}
		}
	}

	return &Service{
		name:         name,
		subscription: params.Subscription,
		handler:      params.Handler,
		claims:       params.Idempotency,
		logg:         params.Logger,
		eventFilter:  filter,
	}, nil
}

// Name identifies the consumer in logs and idempotency keys.
func (s *Service) Name() string {
	return s.name
}

type processResult struct {
	nack bool
}

// Run consumes messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{
		"consumer":   s.name,
		"message_id": msg.ID,
	}
	logCtx := s.logg.WithFields(ctx, fields)

	envelope, err := DecodeMessage(msg)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "invalid event envelope")
		return processResult{}
	}

	fields["event_id"] = envelope.EventID.String()
	fields["event_type"] = envelope.EventType
	fields["aggregate_id"] = envelope.AggregateID.String()
	fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	logCtx = s.logg.WithFields(ctx, fields)

	if s.eventFilter != nil {
		if _, ok := s.eventFilter[envelope.EventType]; !ok {
			s.logg.Debug(logCtx, "event not handled by consumer")
			return processResult{}
		}
	}

	claimed, err := s.claims.Claim(logCtx, s.name, envelope.EventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !claimed {
		s.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if err := s.handler.Handle(logCtx, *envelope); err != nil {
		var permanent PermanentError
		if errors.As(err, &permanent) {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "event dropped")
			return processResult{}
		}
		s.logg.Error(logCtx, "handler error", err)
		if delErr := s.claims.Release(logCtx, s.name, envelope.EventID); delErr != nil {
			s.logg.Error(logCtx, "failed to release idempotency mark", delErr)
		}
		return processResult{nack: true}
	}

	s.logg.Info(logCtx, "event handled")
	return processResult{}
}

// PermanentError marks a handler failure that redelivery cannot fix.
// The message is acked and the idempotency mark is kept.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent consumer error"
	}
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the consumer acks instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Err: err}
}
