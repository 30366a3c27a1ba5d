package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/vitalwatch/internal/api/middleware"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.Prometheus)
	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))

		r.Route("/vitals", func(r chi.Router) {
			r.Get("/", s.getVitals)
			r.Group(func(r chi.Router) {
				if s.config.IngestRateLimit > 0 {
					r.Use(middleware.RateLimitByClient(middleware.NewClientLimiter(s.config.IngestRateLimit, 0)))
				}
				r.Post("/", s.postVitals)
			})
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.listAlerts)
			r.Put("/{alertID}/acknowledge", s.acknowledgeAlert)

			r.Route("/config", func(r chi.Router) {
				r.Post("/", s.createConfig)
				r.Put("/{configID}", s.updateConfig)
				r.Delete("/{configID}", s.deleteConfig)
			})
		})

		r.Route("/patients", func(r chi.Router) {
			r.Post("/", s.admitPatient)
			r.Get("/{patientID}", s.getPatient)
			r.Get("/{patientID}/configs", s.patientConfigs)
		})
	})

	r.Get("/health", s.health.Health)
	r.Get("/health/live", s.health.Live)
	r.Get("/health/ready", s.health.Ready)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, &Error{Code: ErrCodeBadRequest, Message: "Method not allowed", Status: http.StatusMethodNotAllowed})
	})

	return r
}
