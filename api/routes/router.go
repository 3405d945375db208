package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rubberops/tapping-backend/api/controllers"
	"github.com/rubberops/tapping-backend/api/middleware"
	"github.com/rubberops/tapping-backend/internal/analytics/query"
	"github.com/rubberops/tapping-backend/internal/negotiations"
	"github.com/rubberops/tapping-backend/internal/notifications"
	"github.com/rubberops/tapping-backend/pkg/config"
	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/metrics"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Negotiations  negotiations.Service
	Notifications notifications.Service
	Analytics     query.NegotiationService
	Idempotency   middleware.ReplayStore
	Readiness     map[string]controllers.Pinger
	HTTPMetrics   *metrics.HTTPMetrics
	Gatherer      prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Metrics(deps.HTTPMetrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/applications/{applicationId}/negotiation", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.UserRoleFarmer, enums.UserRoleStaff, enums.UserRoleAdmin)).
				Get("/", controllers.GetNegotiation(deps.Negotiations, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleFarmer, enums.UserRoleStaff))
				idem := middleware.Idempotency(deps.Idempotency, logg)
				r.With(idem).Post("/proposals", controllers.SubmitProposal(deps.Negotiations, logg))
				r.With(idem).Post("/accept", controllers.AcceptProposal(deps.Negotiations, logg))
				r.With(idem).Post("/reject", controllers.RejectProposal(deps.Negotiations, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Get("/analytics/negotiations", controllers.NegotiationAnalytics(deps.Analytics, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	return r
}
