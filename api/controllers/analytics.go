package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/rubberops/tapping-backend/api/responses"
	"github.com/rubberops/tapping-backend/internal/analytics/query"
	pkgerrors "github.com/rubberops/tapping-backend/pkg/errors"
	"github.com/rubberops/tapping-backend/pkg/logger"
)

var timeNowUTC = func() time.Time {
	return time.Now().UTC()
}

// NegotiationAnalytics reports negotiation activity over a window given as
// from/to (RFC3339) or a preset of 7d, 30d or 90d.
func NegotiationAnalytics(svc query.NegotiationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "negotiation analytics unavailable"))
			return
		}

		start, end, err := resolveAnalyticsRange(r, timeNowUTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Report(r.Context(), start, end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func resolveAnalyticsRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))

	if from != "" || to != "" {
		if from == "" || to == "" {
			return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "from and to must be provided together")
		}
		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid from timestamp")
		}
		end, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid to timestamp")
		}
		if end.Before(start) {
			return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
		}
		return start.UTC(), end.UTC(), nil
	}

	var window time.Duration
	switch strings.ToLower(strings.TrimSpace(q.Get("preset"))) {
	case "7d":
		window = 7 * 24 * time.Hour
	case "", "30d":
		window = 30 * 24 * time.Hour
	case "90d":
		window = 90 * 24 * time.Hour
	default:
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid preset")
	}
	return now.Add(-window), now, nil
}
