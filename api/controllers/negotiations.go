package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rubberops/tapping-backend/api/middleware"
	"github.com/rubberops/tapping-backend/api/responses"
	"github.com/rubberops/tapping-backend/api/validators"
	"github.com/rubberops/tapping-backend/internal/negotiations"
	"github.com/rubberops/tapping-backend/pkg/enums"
	pkgerrors "github.com/rubberops/tapping-backend/pkg/errors"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/types"
)

const maxNotesLength = 2000

type submitProposalRequest struct {
	ProposedRate      decimal.Decimal `json:"proposedRate" validate:"gt=0,cents"`
	ProposedTreeCount int             `json:"proposedTreeCount" validate:"required,min=1"`
	ProposedTiming    *types.Timing   `json:"proposedTiming"`
	Notes             *string         `json:"notes" validate:"omitempty,max=2000"`
}

// GetNegotiation returns the ledger view for an application.
func GetNegotiation(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applicationID, err := validators.ParseUUIDParam(r, "applicationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetNegotiation(r.Context(), applicationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteLedger(w, http.StatusOK, view)
	}
}

// SubmitProposal opens a negotiation or counters the pending proposal.
func SubmitProposal(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := negotiatingCaller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body submitProposalRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := withApplication(r.Context(), logg, caller.applicationID)
		view, err := svc.SubmitCounterProposal(ctx, negotiations.SubmitInput{
			ApplicationID: caller.applicationID,
			Actor:         caller.actor,
			ActorUserID:   &caller.userID,
			Terms: negotiations.Terms{
				Rate:      body.ProposedRate,
				TreeCount: body.ProposedTreeCount,
				Timing:    body.ProposedTiming,
				Notes:     validators.SanitizeOptional(body.Notes, maxNotesLength),
			},
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteLedger(w, http.StatusCreated, view)
	}
}

// AcceptProposal accepts the pending proposal on behalf of the caller.
func AcceptProposal(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return decision(logg, svc.Accept)
}

// RejectProposal rejects the pending proposal on behalf of the caller.
func RejectProposal(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return decision(logg, svc.Reject)
}

func decision(logg *logger.Logger, op func(context.Context, negotiations.DecisionInput) (*negotiations.LedgerView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := negotiatingCaller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := withApplication(r.Context(), logg, caller.applicationID)
		view, err := op(ctx, negotiations.DecisionInput{
			ApplicationID: caller.applicationID,
			Actor:         caller.actor,
			ActorUserID:   &caller.userID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteLedger(w, http.StatusOK, view)
	}
}

type caller struct {
	applicationID uuid.UUID
	userID        uuid.UUID
	actor         enums.NegotiationActor
}

// negotiatingCaller derives the acting side from the token, never from the body.
func negotiatingCaller(r *http.Request) (caller, error) {
	applicationID, err := validators.ParseUUIDParam(r, "applicationId")
	if err != nil {
		return caller{}, err
	}
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return caller{}, pkgerrors.New(pkgerrors.CodeForbidden, "only farmers and staff can negotiate")
	}
	return caller{applicationID: applicationID, userID: userID, actor: actor}, nil
}

func withApplication(ctx context.Context, logg *logger.Logger, applicationID uuid.UUID) context.Context {
	if logg == nil {
		return ctx
	}
	return logg.WithApplicationID(ctx, applicationID.String())
}
