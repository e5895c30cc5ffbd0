package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/medigo/appointment-service/internal/appointment"
)

type RouterConfig struct {
	Service *appointment.Service
	Logger  logrus.FieldLogger
	// PgPool and Redis are optional; readiness only checks what is configured.
	PgPool  *pgxpool.Pool
	Redis   redis.UniversalClient
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Provider directory
	r.Get("/providers", listProvidersHandler(cfg.Service))
	r.Get("/providers/{id}", getProviderHandler(cfg.Service))
	r.Get("/providers/{id}/slots", availableSlotsHandler(cfg.Service))

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Service))
		r.Get("/", listAppointmentsHandler(cfg.Service))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getAppointmentHandler(cfg.Service))
			r.Patch("/", updateDetailsHandler(cfg.Service))

			r.Post("/confirm", transitionHandler(cfg.Service.Confirm))
			r.Post("/start", transitionHandler(cfg.Service.Start))
			r.Post("/complete", transitionHandler(cfg.Service.Complete))
			r.Post("/cancel", transitionHandler(cfg.Service.Cancel))
			r.Post("/no-show", transitionHandler(cfg.Service.MarkNoShow))
			r.Post("/pay", transitionHandler(cfg.Service.Pay))
			r.Post("/refund", transitionHandler(cfg.Service.Refund))
			r.Post("/rate", rateAppointmentHandler(cfg.Service))
		})
	})

	return r
}
