package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryPolicy bounds retries of a failed insert. Zero fields take defaults.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = 2 * time.Second
	}
	p.MaximumBackoff = max(p.MaximumBackoff, p.InitialBackoff)
	return p
}

type eventSink interface {
	InsertNegotiationEvents(ctx context.Context, rows []any) error
}

// EventWriter streams negotiation event rows into the warehouse. An insert
// returns only once its rows landed, so the caller can ack the message.
type EventWriter struct {
	sink  eventSink
	retry RetryPolicy
}

func New(sink eventSink, retry RetryPolicy) (*EventWriter, error) {
	if sink == nil {
		return nil, errors.New("negotiation events sink required")
	}
	return &EventWriter{sink: sink, retry: retry.withDefaults()}, nil
}

// Insert writes rows, retrying transient failures with capped doubling backoff.
func (w *EventWriter) Insert(ctx context.Context, rows ...any) error {
	if len(rows) == 0 {
		return nil
	}
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := w.sink.InsertNegotiationEvents(ctx, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !IsRetryable(err) {
			return fmt.Errorf("insert %d negotiation event rows (attempt %d): %w", len(rows), attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

// IsRetryable reports whether every cause inside err is transient. Streaming
// inserts fail per row, so one schema error among timeouts is permanent.
func IsRetryable(err error) bool {
	causes := leafErrors(err)
	if len(causes) == 0 {
		return false
	}
	for _, cause := range causes {
		if !transient(cause) {
			return false
		}
	}
	return true
}

// leafErrors flattens the row and multi errors Inserter.Put returns.
func leafErrors(err error) []error {
	if err == nil {
		return nil
	}
	var (
		rows     cbigquery.PutMultiError
		rowsRef  *cbigquery.PutMultiError
		multi    cbigquery.MultiError
		multiRef *cbigquery.MultiError
	)
	switch {
	case errors.As(err, &rows):
	case errors.As(err, &rowsRef) && rowsRef != nil:
		rows = *rowsRef
	case errors.As(err, &multi):
	case errors.As(err, &multiRef) && multiRef != nil:
		multi = *multiRef
	default:
		return []error{err}
	}
	var out []error
	for _, row := range rows {
		out = append(out, leafErrors(row.Errors)...)
	}
	for _, inner := range multi {
		out = append(out, leafErrors(inner)...)
	}
	return out
}

func transient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

// EncodeJSON turns an event body into a BigQuery JSON column value.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		marshaled, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = marshaled
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
