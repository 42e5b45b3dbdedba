package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Rrens/thread-router/internal/api"
	"github.com/Rrens/thread-router/internal/assistant/openai"
	"github.com/Rrens/thread-router/internal/config"
	"github.com/Rrens/thread-router/internal/domain"
	"github.com/Rrens/thread-router/internal/repository/postgres"
	"github.com/Rrens/thread-router/internal/repository/redis"
	"github.com/Rrens/thread-router/internal/repository/sqlite"
	"github.com/Rrens/thread-router/internal/security"
	"github.com/Rrens/thread-router/internal/service"
	"github.com/rs/zerolog/log"
)

// App holds the components shared by the binaries
type App struct {
	Config       *config.Config
	Sessions     domain.SessionRepository
	Conversation *service.ConversationService
	Registry     *service.RegistryService
	JWT          *security.JWTManager
	RateLimiter  *redis.RateLimiter

	closers []func()
}

// New wires the registry backend, the remote client and the services
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	sessions, err := a.openRegistry(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sessions = sessions

	client := openai.NewClient(cfg.Assistant.APIKey, cfg.Assistant.BaseURL, cfg.Assistant.RequestTimeout)
	if !client.IsConfigured() {
		log.Warn().Msg("OpenAI API key is empty, remote calls will fail authentication")
	}
	if cfg.Assistant.AssistantID == "" {
		log.Warn().Msg("No default assistant id configured, requests must name one")
	}

	a.Conversation = service.NewConversationService(sessions, client, service.Defaults{
		AssistantID:  cfg.Assistant.AssistantID,
		ThreadID:     cfg.Assistant.ThreadID,
		PollInterval: cfg.Assistant.PollInterval,
		RunTimeout:   cfg.Assistant.RunTimeout,
	})
	a.Registry = service.NewRegistryService(sessions)
	a.JWT = security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AdminTokenTTL)

	return a, nil
}

// NewRegistryOnly wires just the session registry, for admin tooling that
// never talks to the remote service
func NewRegistryOnly(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	sessions, err := a.openRegistry(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sessions = sessions
	a.Registry = service.NewRegistryService(sessions)
	a.JWT = security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AdminTokenTTL)

	return a, nil
}

func (a *App) openRegistry(ctx context.Context) (domain.SessionRepository, error) {
	cfg := a.Config
	var redisClient *redis.Client

	if cfg.Registry.Driver == "redis" || (cfg.Security.RateLimit.Enabled && cfg.Registry.Redis.Enabled()) {
		client, err := redis.NewClient(cfg.Registry.Redis)
		if err != nil {
			return nil, err
		}
		redisClient = client
		a.closers = append(a.closers, func() { client.Close() })

		if cfg.Security.RateLimit.Enabled {
			a.RateLimiter = redis.NewRateLimiter(client, cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst)
		}
	} else if cfg.Security.RateLimit.Enabled {
		log.Warn().Msg("Rate limiting enabled but no redis host configured, skipping")
	}

	log.Info().Str("driver", cfg.Registry.Driver).Msg("Opening session registry")

	switch cfg.Registry.Driver {
	case "sqlite":
		return sqlite.NewSessionRepository(cfg.Registry.SQLite.Path, cfg.Registry.SQLite.BusyTimeout)
	case "redis":
		return redis.NewSessionRepository(redisClient), nil
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Registry.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return postgres.NewSessionRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown registry driver %q", cfg.Registry.Driver)
	}
}

// Handler builds the HTTP API
func (a *App) Handler() (http.Handler, error) {
	if a.Conversation == nil {
		return nil, errors.New("conversation service not wired")
	}

	deps := api.Dependencies{
		Conversation: a.Conversation,
		Registry:     a.Registry,
		JWT:          a.JWT,
	}
	if a.RateLimiter != nil {
		deps.RateLimiter = a.RateLimiter
	}
	return api.NewRouter(a.Config, deps), nil
}

// Close releases every opened backend
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
