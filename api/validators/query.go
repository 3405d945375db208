package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/rubberops/tapping-backend/pkg/errors"
)

func invalidParam(message, field string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{"field": field})
}

// queryParam parses the named query parameter, or returns fallback when it
// is absent or blank.
func queryParam[T any](r *http.Request, key string, fallback T, parse func(string) (T, error), message string) (T, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := parse(raw)
	if err != nil {
		var zero T
		return zero, invalidParam(message, key)
	}
	return value, nil
}

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	value, err := queryParam(r, key, defaultVal, strconv.Atoi, "query parameter must be numeric")
	if err != nil {
		return 0, err
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

func ParseQueryBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	return queryParam(r, key, defaultVal, strconv.ParseBool, "query parameter must be a boolean")
}

// ParseQueryUUID reads an optional id filter such as ?applicationId=.
func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	return queryParam(r, key, (*uuid.UUID)(nil), func(raw string) (*uuid.UUID, error) {
		id, err := parseID(raw)
		return &id, err
	}, "query parameter must be a uuid")
}

// ParseUUIDParam reads a chi URL parameter as a UUID.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := parseID(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil {
		return uuid.Nil, invalidParam("invalid path parameter", name)
	}
	return id, nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err == nil && id == uuid.Nil {
		err = pkgerrors.New(pkgerrors.CodeValidation, "nil uuid")
	}
	return id, err
}
