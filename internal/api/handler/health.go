package handler

import (
	"context"
	"net/http"

	"github.com/Rrens/thread-router/internal/api/response"
	"github.com/rs/zerolog/log"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including registry connectivity
func ReadyCheck(registry Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := registry.Ping(r.Context()); err != nil {
			log.Warn().Err(err).Msg("Readiness check failed")
			response.ServiceUnavailable(w, "session registry not ready")
			return
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}
