package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/Rrens/thread-router/internal/api/response"
	"github.com/Rrens/thread-router/internal/domain"
	"github.com/Rrens/thread-router/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// Conversation routes questions to the remote assistant
type Conversation interface {
	RouteQuestion(ctx context.Context, req service.AskRequest) (*service.AskResponse, error)
}

// Registry administers the user to thread mapping
type Registry interface {
	List(ctx context.Context) ([]domain.Session, error)
	ThreadForUser(ctx context.Context, user string) (string, error)
	UserForThread(ctx context.Context, threadID string) (string, error)
	Assign(ctx context.Context, user string, req domain.SessionUpsert) error
	Remove(ctx context.Context, user string) (bool, error)
	Clear(ctx context.Context, confirm bool) (int64, error)
	Ping(ctx context.Context) error
}

// writeError maps error kinds onto HTTP status codes
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		runFailed  *domain.RunFailedError
		runTimeout *domain.RunTimeoutError
		remote     *domain.RemoteServiceError
		storage    *domain.StorageError
	)

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		response.Fail(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrThreadClaimed):
		response.Fail(w, http.StatusConflict, "thread_claimed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		response.Fail(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &runFailed):
		response.Fail(w, http.StatusBadGateway, "run_failed", err.Error())
	case errors.As(err, &runTimeout):
		response.Fail(w, http.StatusGatewayTimeout, "run_timeout", err.Error())
	case errors.As(err, &remote):
		response.Fail(w, http.StatusBadGateway, "remote_error", err.Error())
	case errors.As(err, &storage):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Registry storage failure")
		response.Fail(w, http.StatusInternalServerError, "storage_error", "session registry unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		response.Fail(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled error")
		response.Fail(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// pathParam returns a decoded chi URL parameter
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
