package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/rubberops/tapping-backend/api/responses"
	pkgerrors "github.com/rubberops/tapping-backend/pkg/errors"
	"github.com/rubberops/tapping-backend/pkg/logger"
)

const (
	replayTTL = 24 * time.Hour
	// inFlightTTL bounds how long a crashed request keeps its key reserved.
	inFlightTTL = time.Minute
)

// replayableCommands maps negotiation command routes to the action recorded in the key.
var replayableCommands = map[string]string{
	http.MethodPost + " /api/v1/applications/{applicationId}/negotiation/proposals": "submit",
	http.MethodPost + " /api/v1/applications/{applicationId}/negotiation/accept":    "accept",
	http.MethodPost + " /api/v1/applications/{applicationId}/negotiation/reject":    "reject",
}

// replayedHeaders survive into a replayed response. ETag carries the ledger version.
var replayedHeaders = []string{"Content-Type", "ETag"}

// ReplayStore is the Redis surface the middleware needs.
type ReplayStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type storedResponse struct {
	InFlight    bool              `json:"in_flight,omitempty"`
	RequestHash string            `json:"request_hash"`
	Status      int               `json:"status,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body,omitempty"`
}

// Idempotency lets a client resend a negotiation command under the same
// Idempotency-Key and get the first outcome back instead of a second
// proposal or decision. It must run after routing so the route pattern is known.
func Idempotency(store ReplayStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			action, ok := commandFor(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			cmd := replayedCommand{
				store: store,
				logg:  logg,
				key:   store.IdempotencyKey(commandScope(r, action), clientKey),
				hash:  hashBody(body),
			}
			reserved, err := cmd.reserve(ctx)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				cmd.replay(ctx, w)
				return
			}
			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			cmd.settle(context.WithoutCancel(ctx), capture)
		})
	}
}

func commandFor(method, pattern string) (string, bool) {
	action, ok := replayableCommands[method+" "+pattern]
	return action, ok
}

// commandScope keeps keys apart per application, action and caller.
func commandScope(r *http.Request, action string) string {
	application := chi.URLParam(r, "applicationId")
	if application == "" {
		application = r.URL.Path
	}
	return strings.Join([]string{"negotiation", application, action, UserIDFromContext(r.Context())}, "|")
}

type replayedCommand struct {
	store ReplayStore
	logg  *logger.Logger
	key   string
	hash  string
}

func (c replayedCommand) reserve(ctx context.Context) (bool, error) {
	marker, err := json.Marshal(storedResponse{InFlight: true, RequestHash: c.hash})
	if err != nil {
		return false, err
	}
	return c.store.SetNX(ctx, c.key, string(marker), inFlightTTL)
}

func (c replayedCommand) replay(ctx context.Context, w http.ResponseWriter) {
	raw, err := c.store.Get(ctx, c.key)
	if errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, c.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, c.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, c.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.RequestHash != c.hash:
		responses.WriteError(ctx, c.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.InFlight:
		responses.WriteError(ctx, c.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is in progress"))
	default:
		for name, value := range stored.Headers {
			w.Header().Set(name, value)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

// settle stores the outcome for replay. Server errors free the key so the
// client can retry the command.
func (c replayedCommand) settle(ctx context.Context, capture *responseCapture) {
	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		if err := c.store.Del(ctx, c.key); err != nil && c.logg != nil {
			c.logg.Error(ctx, "release idempotency key", err)
		}
		return
	}
	stored := storedResponse{RequestHash: c.hash, Status: status, Body: capture.body.Bytes()}
	for _, name := range replayedHeaders {
		if value := capture.Header().Get(name); value != "" {
			if stored.Headers == nil {
				stored.Headers = map[string]string{}
			}
			stored.Headers[name] = value
		}
	}
	payload, err := json.Marshal(stored)
	if err == nil {
		err = c.store.Set(ctx, c.key, string(payload), replayTTL)
	}
	if err != nil && c.logg != nil {
		c.logg.Error(ctx, "persist idempotency record", err)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
