package api

import (
	"net/http"

	"github.com/Rrens/thread-router/internal/api/handler"
	customMiddleware "github.com/Rrens/thread-router/internal/api/middleware"
	"github.com/Rrens/thread-router/internal/config"
	"github.com/Rrens/thread-router/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// Dependencies are the services the router serves
type Dependencies struct {
	Conversation handler.Conversation
	Registry     handler.Registry
	JWT          *security.JWTManager

	// RateLimiter guards /ask when set
	RateLimiter customMiddleware.Limiter
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	askHandler := handler.NewAskHandler(deps.Conversation)
	sessionHandler := handler.NewSessionHandler(deps.Registry)
	authMiddleware := customMiddleware.NewAuthMiddleware(deps.JWT)

	if !deps.JWT.Enabled() {
		log.Warn().Msg("JWT secret is empty, admin routes are disabled")
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Registry))

		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(customMiddleware.NewRateLimitMiddleware(deps.RateLimiter).Limit)
			}
			r.Post("/ask", askHandler.Ask)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAdmin)

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessionHandler.List)
				r.Delete("/", sessionHandler.Clear)

				r.Route("/{user}", func(r chi.Router) {
					r.Get("/", sessionHandler.Get)
					r.Put("/", sessionHandler.Put)
					r.Delete("/", sessionHandler.Delete)
				})
			})

			r.Get("/threads/{threadID}/user", sessionHandler.ThreadOwner)
		})
	})

	return r
}
