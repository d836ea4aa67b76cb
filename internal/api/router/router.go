package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/realty-inbox/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/realty-inbox/internal/http/middleware"
	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	Webhook         *messaging.WebhookHandler
	Operator        *handlers.OperatorHandler
	OperatorSecret  string
	MetricsHandler  http.Handler
	HealthCheckFunc http.HandlerFunc
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	health := cfg.HealthCheckFunc
	if health == nil {
		health = messaging.HealthCheck
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhook != nil {
			public.Get("/webhooks/whatsapp", cfg.Webhook.Verify)
			public.Post("/webhooks/whatsapp", cfg.Webhook.Receive)
		}
	})

	// Operator API, tenant scoped by the bearer token.
	if cfg.Operator != nil {
		r.Route("/api", func(api chi.Router) {
			api.Use(httpmiddleware.OperatorJWT(cfg.OperatorSecret))
			api.Post("/conversations/{id}/messages", cfg.Operator.SendMessage)
			api.Post("/conversations/{id}/read", cfg.Operator.MarkRead)
			api.Post("/projects/{id}/documents", cfg.Operator.AddDocuments)
		})
	}

	return r
}
