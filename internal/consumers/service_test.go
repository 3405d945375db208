package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/outbox"
)

func TestDecodeMessage(t *testing.T) {
	eventID := uuid.New()
	aggregateID := uuid.New()
	actorID := uuid.New()
	occurredAt := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	msg := buildMessage(t, outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: occurredAt,
		Actor:      &outbox.ActorRef{UserID: actorID, Role: "farmer"},
		Data:       json.RawMessage(`{"sequence":2}`),
	}, enums.EventProposalSubmitted, aggregateID)

	env, err := DecodeMessage(msg)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if env.EventID != eventID {
		t.Fatalf("unexpected event id %s", env.EventID)
	}
	if env.EventType != enums.EventProposalSubmitted {
		t.Fatalf("unexpected event type %s", env.EventType)
	}
	if env.AggregateType != enums.AggregateNegotiation {
		t.Fatalf("unexpected aggregate type %s", env.AggregateType)
	}
	if env.AggregateID != aggregateID {
		t.Fatalf("unexpected aggregate id %s", env.AggregateID)
	}
	if !env.OccurredAt.Equal(occurredAt) {
		t.Fatalf("unexpected occurred at %v", env.OccurredAt)
	}
	if env.Actor == nil || env.Actor.UserID != actorID {
		t.Fatalf("actor not carried through: %+v", env.Actor)
	}

	var data struct {
		Sequence int `json:"sequence"`
	}
	if err := env.Decode(&data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Sequence != 2 {
		t.Fatalf("unexpected sequence %d", data.Sequence)
	}
}

func TestDecodeMessageFallsBackToAttributes(t *testing.T) {
	eventID := uuid.New()
	created := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	msg := buildMessage(t, outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}, enums.EventNegotiationStale, uuid.New())
	msg.Attributes["event_id"] = eventID.String()
	msg.Attributes["created_at"] = created.Format(time.RFC3339Nano)

	env, err := DecodeMessage(msg)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if env.EventID != eventID {
		t.Fatalf("expected event id from attributes, got %s", env.EventID)
	}
	if !env.OccurredAt.Equal(created) {
		t.Fatalf("expected occurred at from created_at, got %v", env.OccurredAt)
	}
}

func TestDecodeMessageRejectsMalformedInput(t *testing.T) {
	valid := func() *gcppubsub.Message {
		return buildMessage(t, outbox.PayloadEnvelope{EventID: uuid.NewString(), Data: json.RawMessage(`{}`)}, enums.EventProposalRejected, uuid.New())
	}

	cases := map[string]func(msg *gcppubsub.Message){
		"bad json":           func(msg *gcppubsub.Message) { msg.Data = []byte("{") },
		"unknown event type": func(msg *gcppubsub.Message) { msg.Attributes["event_type"] = "order_created" },
		"unknown aggregate":  func(msg *gcppubsub.Message) { msg.Attributes["aggregate_type"] = "harvest_batch" },
		"missing aggregate":  func(msg *gcppubsub.Message) { delete(msg.Attributes, "aggregate_id") },
		"bad event id": func(msg *gcppubsub.Message) {
			msg.Data = []byte(`{"eventId":"evt-1","data":{}}`)
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			msg := valid()
			mutate(msg)
			if _, err := DecodeMessage(msg); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func TestProcessHandlesEventOnce(t *testing.T) {
	manager := newStubManager()
	handler := &stubHandler{}
	svc := newTestService(t, handler, manager, nil)
	msg := validMessage(t, enums.EventNegotiationAgreed)

	if res := svc.process(context.Background(), msg); res.nack {
		t.Fatal("expected ack")
	}
	if res := svc.process(context.Background(), msg); res.nack {
		t.Fatal("expected ack for duplicate")
	}
	if handler.calls != 1 {
		t.Fatalf("expected handler once, got %d", handler.calls)
	}
	if handler.last.EventType != enums.EventNegotiationAgreed {
		t.Fatalf("unexpected event type %s", handler.last.EventType)
	}
}

func TestProcessHandlerErrorReleasesMarkAndNacks(t *testing.T) {
	manager := newStubManager()
	handler := &stubHandler{err: errors.New("database unavailable")}
	svc := newTestService(t, handler, manager, nil)
	msg := validMessage(t, enums.EventProposalSubmitted)

	if res := svc.process(context.Background(), msg); !res.nack {
		t.Fatal("expected nack on handler error")
	}
	if manager.deleted != 1 {
		t.Fatalf("expected idempotency mark released, got %d deletes", manager.deleted)
	}

	handler.err = nil
	if res := svc.process(context.Background(), msg); res.nack {
		t.Fatal("expected redelivery to succeed")
	}
	if handler.calls != 2 {
		t.Fatalf("expected handler retried, got %d calls", handler.calls)
	}
}

func TestProcessPermanentErrorAcks(t *testing.T) {
	manager := newStubManager()
	handler := &stubHandler{err: Permanent(errors.New("application missing"))}
	svc := newTestService(t, handler, manager, nil)

	if res := svc.process(context.Background(), validMessage(t, enums.EventNegotiationAgreed)); res.nack {
		t.Fatal("permanent errors must ack")
	}
	if manager.deleted != 0 {
		t.Fatal("permanent errors keep the idempotency mark")
	}
}

func TestProcessIdempotencyFailureNacks(t *testing.T) {
	manager := newStubManager()
	manager.checkErr = errors.New("redis down")
	handler := &stubHandler{}
	svc := newTestService(t, handler, manager, nil)

	if res := svc.process(context.Background(), validMessage(t, enums.EventProposalSubmitted)); !res.nack {
		t.Fatal("expected nack when idempotency check fails")
	}
	if handler.calls != 0 {
		t.Fatal("handler must not run without an idempotency mark")
	}
}

func TestProcessSkipsFilteredAndInvalidMessages(t *testing.T) {
	manager := newStubManager()
	handler := &stubHandler{}
	svc := newTestService(t, handler, manager, []enums.OutboxEventType{enums.EventNegotiationAgreed})

	if res := svc.process(context.Background(), validMessage(t, enums.EventProposalSubmitted)); res.nack {
		t.Fatal("filtered events are acked")
	}
	invalid := &gcppubsub.Message{ID: "m-1", Data: []byte("not-json")}
	if res := svc.process(context.Background(), invalid); res.nack {
		t.Fatal("invalid envelopes are acked")
	}
	if handler.calls != 0 {
		t.Fatalf("expected no handler calls, got %d", handler.calls)
	}
	if len(manager.marked) != 0 {
		t.Fatal("skipped messages must not be marked processed")
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "consumers-test", Output: io.Discard})
	base := Params{
		Name:         "applications-sync",
		Subscription: stubReceiver{},
		Handler:      &stubHandler{},
		Idempotency:  newStubManager(),
		Logger:       logg,
	}
	if _, err := NewService(base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missing := []func(p *Params){
		func(p *Params) { p.Name = " " },
		func(p *Params) { p.Subscription = nil },
		func(p *Params) { p.Handler = nil },
		func(p *Params) { p.Idempotency = nil },
		func(p *Params) { p.Logger = nil },
	}
	for i, mutate := range missing {
		params := base
		mutate(&params)
		if _, err := NewService(params); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func newTestService(t *testing.T, handler Handler, manager eventClaims, filter []enums.OutboxEventType) *Service {
	t.Helper()
	svc, err := NewService(Params{
		Name:         "test-consumer",
		Subscription: stubReceiver{},
		Handler:      handler,
		Idempotency:  manager,
		Logger:       logger.New(logger.Options{ServiceName: "consumers-test", Output: io.Discard}),
		EventTypes:   filter,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func validMessage(t *testing.T, eventType enums.OutboxEventType) *gcppubsub.Message {
	return buildMessage(t, outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	}, eventType, uuid.New())
}

func buildMessage(t *testing.T, env outbox.PayloadEnvelope, eventType enums.OutboxEventType, aggregateID uuid.UUID) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &gcppubsub.Message{
		ID:   "msg-" + aggregateID.String(),
		Data: data,
		Attributes: map[string]string{
			"event_type":     string(eventType),
			"aggregate_type": string(enums.AggregateNegotiation),
			"aggregate_id":   aggregateID.String(),
		},
	}
}

type stubReceiver struct{}

func (stubReceiver) Receive(context.Context, func(context.Context, *gcppubsub.Message)) error {
	return nil
}

type stubHandler struct {
	err   error
	calls int
	last  Envelope
}

func (s *stubHandler) Handle(_ context.Context, env Envelope) error {
	s.calls++
	s.last = env
	return s.err
}

type stubManager struct {
	marked   map[uuid.UUID]struct{}
	checkErr error
	deleted  int
}

func newStubManager() *stubManager {
	return &stubManager{marked: map[uuid.UUID]struct{}{}}
}

func (s *stubManager) Claim(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if s.checkErr != nil {
		return false, s.checkErr
	}
	if _, ok := s.marked[eventID]; ok {
		return false, nil
	}
	s.marked[eventID] = struct{}{}
	return true, nil
}

func (s *stubManager) Release(_ context.Context, _ string, eventID uuid.UUID) error {
	delete(s.marked, eventID)
	s.deleted++
	return nil
}
