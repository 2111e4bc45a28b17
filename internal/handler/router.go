package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimbus-tasks/assistant/internal/middleware"
	"github.com/nimbus-tasks/assistant/pkg/logger"
)

// RouterConfig carries the handlers and HTTP policy for NewRouter.
type RouterConfig struct {
	Health        *HealthHandler
	Chat          *ChatHandler
	Stream        *StreamHandler
	Conversations *ConversationHandler
	Tasks         *TaskHandler

	JWTSecret       string
	AllowedOrigins  []string
	RateLimit       int
	RateLimitWindow time.Duration
	Logger          *logger.Logger
}

// NewRouter builds the HTTP API. Everything under /api/v1 requires a bearer
// token; health and metrics endpoints do not.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.TrackOwner)
		if cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateLimitWindow))
		}

		r.Post("/chat", cfg.Chat.Chat)
		r.Post("/chat/stream", cfg.Stream.Chat)
		r.Get("/chat/history/{id}", cfg.Chat.History)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", cfg.Conversations.Create)
			r.Get("/", cfg.Conversations.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Conversations.Get)
				r.Put("/", cfg.Conversations.Update)
				r.Delete("/", cfg.Conversations.Delete)
				r.Get("/messages", cfg.Chat.History)
			})
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", cfg.Tasks.List)
			r.Post("/", cfg.Tasks.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", cfg.Tasks.Update)
				r.Patch("/toggle", cfg.Tasks.Toggle)
				r.Delete("/", cfg.Tasks.Delete)
			})
		})
	})

	return r
}
