package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rubberops/tapping-backend/internal/negotiations"
	pkgerrors "github.com/rubberops/tapping-backend/pkg/errors"
	"github.com/rubberops/tapping-backend/pkg/logger"
)

// Envelope wraps every successful payload. Meta is only set for ledger reads
// and writes.
type Envelope struct {
	Data any         `json:"data"`
	Meta *LedgerMeta `json:"meta,omitempty"`
}

// LedgerMeta summarises a ledger so clients can tell whose turn it is
// without walking the history.
type LedgerMeta struct {
	Status        string `json:"status"`
	Version       int    `json:"version"`
	AwaitingActor string `json:"awaitingActor,omitempty"`
	Proposals     int    `json:"proposals"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// WriteLedger writes a ledger view with its meta block and tags the response
// with the ledger version, so a client can tell whether its copy is stale.
func WriteLedger(w http.ResponseWriter, status int, view *negotiations.LedgerView) {
	if view == nil {
		writeJSON(w, status, Envelope{Data: nil})
		return
	}
	meta := &LedgerMeta{
		Status:    string(view.Status),
		Version:   view.Version,
		Proposals: len(view.History),
	}
	if view.AwaitingActor != nil {
		meta.AwaitingActor = string(*view.AwaitingActor)
	}
	w.Header().Set("ETag", `W/"`+strconv.Itoa(view.Version)+`"`)
	writeJSON(w, status, Envelope{Data: view, Meta: meta})
}

// WriteError maps err onto its HTTP status and public error body. Untyped
// errors are reported as internal and their text never reaches the client.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := APIError{Code: string(typed.Code()), Message: typed.PublicMessage()}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, pkgerrors.LogFields(err))
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(logCtx, "request.error", err)
		} else {
			logg.Warn(logg.WithField(logCtx, "error", err.Error()), "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
