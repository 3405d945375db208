package negotiations

import (
	"errors"
	"fmt"
)

// TransitionError reports which state machine precondition an operation broke.
// Reason is shown to callers verbatim.
type TransitionError struct {
	Reason string
}

func (e *TransitionError) Error() string {
	return "invalid transition: " + e.Reason
}

func invalidTransition(reason string) *TransitionError {
	return &TransitionError{Reason: reason}
}

var (
	ErrCannotAcceptOwnProposal  = invalidTransition("cannot accept own proposal")
	ErrCannotRejectOwnProposal  = invalidTransition("cannot reject own proposal")
	ErrCannotCounterOwnProposal = invalidTransition("cannot counter own proposal")
	ErrNoPendingProposal        = invalidTransition("no pending proposal")
	ErrAlreadyAgreed            = invalidTransition("negotiation already agreed")
	ErrFirstProposalFromStaff   = invalidTransition("first proposal must come from staff")
	ErrOnlyRejectingPartyReopen = invalidTransition("only the rejecting party may reopen the negotiation")
	ErrApplicationWithdrawn     = invalidTransition("application withdrawn")
)

var (
	// ErrVersionConflict means another writer committed to the ledger first.
	ErrVersionConflict = errors.New("negotiation ledger changed concurrently")
	// ErrLockTimeout means the per-application lock could not be taken in time.
	ErrLockTimeout = errors.New("negotiation lock wait timed out")
)

// ValidationError lists every rejected input field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid negotiation input: %v", e.Fields)
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
