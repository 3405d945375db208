package negotiations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
	pkgerrors "github.com/rubberops/tapping-backend/pkg/errors"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/outbox"
	"github.com/rubberops/tapping-backend/pkg/outbox/payloads"
)

const (
	outcomeOK                = "ok"
	outcomeInvalidInput      = "invalid_input"
	outcomeInvalidTransition = "invalid_transition"
	outcomeNotFound          = "not_found"
	outcomeForbidden         = "forbidden"
	outcomeConflict          = "conflict"
	outcomeError             = "error"

	operationGet = "get"

	defaultMaxNotes = 2000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type applicationReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceApplication, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type operationObserver interface {
	ObserveOperation(operation, outcome string, elapsed time.Duration)
	ObserveLockWait(elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, string, time.Duration) {}
func (noopObserver) ObserveLockWait(time.Duration)                  {}

// Service is the only mutation entry point for negotiation ledgers.
type Service interface {
	GetNegotiation(ctx context.Context, applicationID uuid.UUID) (*LedgerView, error)
	SubmitCounterProposal(ctx context.Context, input SubmitInput) (*LedgerView, error)
	Accept(ctx context.Context, input DecisionInput) (*LedgerView, error)
	Reject(ctx context.Context, input DecisionInput) (*LedgerView, error)
	// EmitStaleReminders queues reminders for proposals left unanswered too long.
	EmitStaleReminders(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// SubmitInput carries a new or counter proposal. ActorUserID, when set, must
// belong to the application's party for Actor.
type SubmitInput struct {
	ApplicationID uuid.UUID
	Actor         enums.NegotiationActor
	ActorUserID   *uuid.UUID
	Terms         Terms
}

// DecisionInput carries an accept or reject of the current proposal.
type DecisionInput struct {
	ApplicationID uuid.UUID
	Actor         enums.NegotiationActor
	ActorUserID   *uuid.UUID
}

// ServiceParams wires the negotiation service.
type ServiceParams struct {
	Repo         Repository
	Applications applicationReader
	Tx           txRunner
	Outbox       outboxPublisher
	Locker       Locker
	Metrics      operationObserver
	Logger       *logger.Logger
	Clock        func() time.Time
	MaxNotes     int
}

type service struct {
	repo         Repository
	applications applicationReader
	tx           txRunner
	outbox       outboxPublisher
	locker       Locker
	metrics      operationObserver
	logg         *logger.Logger
	now          func() time.Time
	maxNotes     int
}

// NewService builds the negotiation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("negotiation repository required")
	}
	if params.Applications == nil {
		return nil, fmt.Errorf("application reader required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Locker == nil {
		params.Locker = NewKeyedMutex(defaultLockWait)
	}
	if params.Metrics == nil {
		params.Metrics = noopObserver{}
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	if params.MaxNotes <= 0 {
		params.MaxNotes = defaultMaxNotes
	}
	return &service{
		repo:         params.Repo,
		applications: params.Applications,
		tx:           params.Tx,
		outbox:       params.Outbox,
		locker:       params.Locker,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          params.Clock,
		maxNotes:     params.MaxNotes,
	}, nil
}

func (s *service) GetNegotiation(ctx context.Context, applicationID uuid.UUID) (view *LedgerView, err error) {
	started := time.Now()
	defer func() { s.observe(operationGet, started, err) }()

	if applicationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application id required")
	}
	ledger, err := s.repo.FindByApplicationID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "negotiation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load negotiation")
	}
	return NewLedgerView(ledger), nil
}

func (s *service) SubmitCounterProposal(ctx context.Context, input SubmitInput) (*LedgerView, error) {
	verr := &ValidationError{}
	if input.ApplicationID == uuid.Nil {
		verr.add("applicationId", "required")
	}
	if !input.Actor.IsValid() {
		verr.add("actor", "must be farmer or staff")
	}
	if err := input.Terms.validate(s.maxNotes); err != nil {
		var terms *ValidationError
		if errors.As(err, &terms) {
			for field, message := range terms.Fields {
				verr.add(field, message)
			}
		}
	}
	cmd := Command{
		Operation:   OperationSubmit,
		Actor:       input.Actor,
		ActorUserID: input.ActorUserID,
		Terms:       input.Terms.normalized(),
	}
	return s.mutate(ctx, input.ApplicationID, cmd, verr.orNil())
}

func (s *service) Accept(ctx context.Context, input DecisionInput) (*LedgerView, error) {
	return s.decide(ctx, OperationAccept, input)
}

func (s *service) Reject(ctx context.Context, input DecisionInput) (*LedgerView, error) {
	return s.decide(ctx, OperationReject, input)
}

func (s *service) decide(ctx context.Context, op Operation, input DecisionInput) (*LedgerView, error) {
	verr := &ValidationError{}
	if input.ApplicationID == uuid.Nil {
		verr.add("applicationId", "required")
	}
	if !input.Actor.IsValid() {
		verr.add("actor", "must be farmer or staff")
	}
	cmd := Command{
		Operation:   op,
		Actor:       input.Actor,
		ActorUserID: input.ActorUserID,
	}
	return s.mutate(ctx, input.ApplicationID, cmd, verr.orNil())
}

// mutate serializes one command against the application's ledger: lock,
// load under row lock, evaluate, save with a version guard, queue the event.
func (s *service) mutate(ctx context.Context, applicationID uuid.UUID, cmd Command, inputErr error) (view *LedgerView, err error) {
	started := time.Now()
	defer func() { s.observe(string(cmd.Operation), started, err) }()

	if inputErr != nil {
		return nil, toAPIError(inputErr)
	}
	if s.logg != nil {
		ctx = s.logg.WithNegotiation(ctx, applicationID.String(), string(cmd.Actor))
	}

	app, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load application")
	}
	parties := payloads.Parties{FarmerUserID: app.FarmerUserID, StaffUserID: app.StaffUserID}
	if cmd.ActorUserID != nil && parties.UserFor(cmd.Actor) != *cmd.ActorUserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "user is not the "+string(cmd.Actor)+" on this application")
	}
	if app.Status == enums.ApplicationStatusWithdrawn {
		return nil, toAPIError(ErrApplicationWithdrawn)
	}

	waitStarted := time.Now()
	release, err := s.locker.Acquire(ctx, applicationID)
	s.metrics.ObserveLockWait(time.Since(waitStarted))
	if err != nil {
		return nil, toAPIError(err)
	}
	defer func() {
		if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", releaseErr.Error()), "negotiation lock release failed")
		}
	}()

	var result *Ledger
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ledger, err := repo.LockByApplicationID(ctx, applicationID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if cmd.Operation != OperationSubmit {
				return pkgerrors.New(pkgerrors.CodeNotFound, "negotiation not found")
			}
			ledger = newLedger(applicationID, s.now().UTC().Truncate(proposedAtStep))
		case err != nil:
			return err
		}

		transition, err := Evaluate(ledger, cmd, s.now())
		if err != nil {
			return err
		}
		if err := repo.Save(ctx, transition); err != nil {
			return err
		}
		event, err := transitionEvent(transition, parties, cmd.ActorUserID)
		if err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		result = transition.Ledger
		return nil
	})
	if err != nil {
		return nil, toAPIError(err)
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"ledger_id": result.ID().String(),
			"status":    string(result.Status()),
			"version":   result.Version(),
		})
		s.logg.Info(logCtx, "negotiation."+string(cmd.Operation))
	}
	return NewLedgerView(result), nil
}

// EmitStaleReminders stamps each proposal's reminded_at in the same transaction
// as its reminder event, so a proposal is reminded once however long it waits.
func (s *service) EmitStaleReminders(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	candidates, err := s.repo.ListStale(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}
	emitted := 0
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()
		for _, candidate := range candidates {
			marked, err := repo.MarkReminded(ctx, candidate.ProposalID, now)
			if err != nil {
				return fmt.Errorf("mark proposal %s reminded: %w", candidate.ProposalID, err)
			}
			if !marked {
				continue
			}
			if err := s.outbox.EmitIfNotExists(ctx, tx, staleEvent(candidate)); err != nil {
				return fmt.Errorf("queue stale reminder for ledger %s: %w", candidate.LedgerID, err)
			}
			emitted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return emitted, nil
}

func (s *service) observe(operation string, started time.Time, err error) {
	s.metrics.ObserveOperation(operation, outcomeFor(err), time.Since(started))
	if err == nil || s.logg == nil {
		return
	}
	if pkgerrors.HTTPStatus(err) >= 500 {
		s.logg.Error(context.Background(), "negotiation."+operation+" failed", err)
	}
}

// toAPIError maps negotiation failures onto the shared API error codes.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}
	if apiErr := pkgerrors.As(err); apiErr != nil {
		return apiErr
	}

	var transitionErr *TransitionError
	if errors.As(err, &transitionErr) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, transitionErr.Reason).
			WithDetails(map[string]string{"reason": transitionErr.Reason})
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid negotiation input").
			WithDetails(validationErr.Fields)
	}
	switch {
	case errors.Is(err, ErrVersionConflict):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "negotiation changed concurrently, refetch and retry")
	case errors.Is(err, ErrLockTimeout):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "negotiation is busy, retry shortly")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "negotiation not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "negotiation storage failure")
}

func outcomeFor(err error) string {
	if err == nil {
		return outcomeOK
	}
	apiErr := pkgerrors.As(err)
	if apiErr == nil {
		return outcomeError
	}
	switch apiErr.Code() {
	case pkgerrors.CodeValidation:
		return outcomeInvalidInput
	case pkgerrors.CodeStateConflict:
		return outcomeInvalidTransition
	case pkgerrors.CodeNotFound:
		return outcomeNotFound
	case pkgerrors.CodeForbidden:
		return outcomeForbidden
	case pkgerrors.CodeConflict:
		return outcomeConflict
	}
	return outcomeError
}
