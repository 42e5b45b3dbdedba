package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Rrens/thread-router/internal/assistant"
	"github.com/Rrens/thread-router/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultRunTimeout   = 2 * time.Minute

	cancelTimeout = 10 * time.Second
)

var errEmptyReply = errors.New("newest message has no text content")

// Defaults are used when a request does not override them
type Defaults struct {
	AssistantID  string
	ThreadID     string
	PollInterval time.Duration
	RunTimeout   time.Duration
}

// AskRequest is a single question routed to the remote assistant
type AskRequest struct {
	User        string `json:"user" validate:"max=255"`
	Question    string `json:"question" validate:"required,max=32768"`
	AssistantID string `json:"assistant_id,omitempty" validate:"max=255"`
	ThreadID    string `json:"thread_id,omitempty" validate:"max=255"`

	// Zero falls back to the service defaults
	PollInterval time.Duration `json:"-"`
	RunTimeout   time.Duration `json:"-"`
}

// AskResponse carries the assistant's reply and where it came from
type AskResponse struct {
	Reply         string `json:"reply"`
	ThreadID      string `json:"thread_id"`
	RunID         string `json:"run_id"`
	RequestID     string `json:"request_id"`
	CreatedThread bool   `json:"created_thread"`
}

// ConversationService routes questions from named users to their own
// remote thread, creating and registering the thread on first contact
type ConversationService struct {
	sessions domain.SessionRepository
	api      assistant.API
	defaults Defaults
	locks    userLocks
}

// NewConversationService creates a new conversation service
func NewConversationService(sessions domain.SessionRepository, api assistant.API, defaults Defaults) *ConversationService {
	if defaults.PollInterval <= 0 {
		defaults.PollInterval = DefaultPollInterval
	}
	if defaults.RunTimeout <= 0 {
		defaults.RunTimeout = DefaultRunTimeout
	}
	return &ConversationService{
		sessions: sessions,
		api:      api,
		defaults: defaults,
	}
}

// Defaults returns the effective defaults
func (s *ConversationService) Defaults() Defaults {
	return s.defaults
}

// GetOrCreateThread returns the user's registered thread, creating and
// registering a new remote thread on a miss
func (s *ConversationService) GetOrCreateThread(ctx context.Context, user string) (string, error) {
	threadID, _, err := s.getOrCreateThread(ctx, user)
	return threadID, err
}

func (s *ConversationService) getOrCreateThread(ctx context.Context, user string) (string, bool, error) {
	if user == "" {
		return "", false, fmt.Errorf("%w: user identity is required", domain.ErrInvalidInput)
	}

	unlock := s.locks.lock(user)
	defer unlock()

	threadID, ok, err := s.sessions.GetThreadForUser(ctx, user)
	if err != nil {
		return "", false, err
	}
	if ok {
		return threadID, false, nil
	}

	thread, err := s.api.CreateThread(ctx)
	if err != nil {
		return "", false, &domain.RemoteServiceError{Op: "create thread", Err: err}
	}

	if err := s.sessions.Upsert(ctx, user, thread.ID); err != nil {
		log.Warn().
			Err(err).
			Str("user", user).
			Str("thread_id", thread.ID).
			Msg("Remote thread created but not registered")
		return "", false, err
	}

	log.Info().
		Str("user", user).
		Str("thread_id", thread.ID).
		Msg("Registered new thread")

	return thread.ID, true, nil
}

// RouteQuestion posts the question on the user's thread, runs the assistant
// and waits for its reply
func (s *ConversationService) RouteQuestion(ctx context.Context, req AskRequest) (*AskResponse, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: question must not be empty", domain.ErrInvalidInput)
	}

	assistantID := req.AssistantID
	if assistantID == "" {
		assistantID = s.defaults.AssistantID
	}
	if assistantID == "" {
		return nil, fmt.Errorf("%w: no assistant id given and no default configured", domain.ErrInvalidInput)
	}

	resp := &AskResponse{RequestID: uuid.New().String()}
	logger := log.With().
		Str("request_id", resp.RequestID).
		Str("user", req.User).
		Logger()

	threadID, created, err := s.resolveThread(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.ThreadID = threadID
	resp.CreatedThread = created
	logger = logger.With().Str("thread_id", threadID).Logger()

	if _, err := s.api.CreateMessage(ctx, threadID, domain.RoleUser, FormatQuestion(req.User, req.Question)); err != nil {
		return nil, &domain.RemoteServiceError{Op: "create message", ThreadID: threadID, Err: err}
	}
	logger.Debug().Msg("Question posted")

	run, err := s.api.CreateRun(ctx, threadID, assistantID)
	if err != nil {
		return nil, &domain.RemoteServiceError{Op: "create run", ThreadID: threadID, Err: err}
	}
	resp.RunID = run.ID
	logger.Debug().
		Str("run_id", run.ID).
		Str("assistant_id", assistantID).
		Str("status", string(run.Status)).
		Msg("Run started")

	wait := waitOptions{pollInterval: req.PollInterval, runTimeout: req.RunTimeout}
	if wait.pollInterval <= 0 {
		wait.pollInterval = s.defaults.PollInterval
	}
	if wait.runTimeout <= 0 {
		wait.runTimeout = s.defaults.RunTimeout
	}

	if _, err := s.waitForRun(ctx, threadID, run, wait); err != nil {
		return nil, err
	}

	messages, err := s.api.ListMessages(ctx, threadID, 1)
	if err != nil {
		return nil, &domain.RemoteServiceError{Op: "list messages", ThreadID: threadID, Err: err}
	}
	if len(messages) == 0 || messages[0].Text() == "" {
		return nil, &domain.RemoteServiceError{Op: "list messages", ThreadID: threadID, Err: errEmptyReply}
	}
	resp.Reply = messages[0].Text()

	logger.Debug().Str("run_id", run.ID).Msg("Reply received")
	return resp, nil
}

// resolveThread picks the thread for a request. Named users always use their
// registered thread; anonymous requests use the requested thread, then the
// default one, then a fresh unregistered thread.
func (s *ConversationService) resolveThread(ctx context.Context, req AskRequest) (string, bool, error) {
	if req.User != "" {
		return s.getOrCreateThread(ctx, req.User)
	}
	if req.ThreadID != "" {
		return req.ThreadID, false, nil
	}
	if s.defaults.ThreadID != "" {
		return s.defaults.ThreadID, false, nil
	}

	thread, err := s.api.CreateThread(ctx)
	if err != nil {
		return "", false, &domain.RemoteServiceError{Op: "create thread", Err: err}
	}
	return thread.ID, true, nil
}

type waitOptions struct {
	pollInterval time.Duration
	runTimeout   time.Duration
}

// waitForRun polls the run until it reaches a terminal status or the run
// timeout elapses
func (s *ConversationService) waitForRun(ctx context.Context, threadID string, run *assistant.Run, opts waitOptions) (*assistant.Run, error) {
	pollCtx, cancel := context.WithTimeout(ctx, opts.runTimeout)
	defer cancel()

	ticker := time.NewTicker(opts.pollInterval)
	defer ticker.Stop()

	current := run
	for {
		switch current.Status.Classify() {
		case domain.RunSucceeded:
			return current, nil
		case domain.RunFailed:
			// requires_action is not terminal remotely and keeps the thread busy
			if current.Status == domain.RunStatusRequiresAction {
				s.cancelRun(ctx, threadID, current.ID)
			}
			failed := &domain.RunFailedError{
				ThreadID: threadID,
				RunID:    current.ID,
				Status:   current.Status,
			}
			if current.LastError != nil {
				failed.Code = current.LastError.Code
				failed.Message = current.LastError.Message
			}
			return nil, failed
		case domain.RunUnknown:
			log.Warn().
				Str("thread_id", threadID).
				Str("run_id", current.ID).
				Str("status", string(current.Status)).
				Msg("Unrecognized run status, still polling")
		}

		select {
		case <-pollCtx.Done():
			return nil, s.stopWaiting(ctx, threadID, current, opts.runTimeout)
		case <-ticker.C:
		}

		next, err := s.api.RetrieveRun(pollCtx, threadID, current.ID)
		if err != nil {
			if pollCtx.Err() != nil {
				return nil, s.stopWaiting(ctx, threadID, current, opts.runTimeout)
			}
			return nil, &domain.RemoteServiceError{Op: "retrieve run", ThreadID: threadID, Err: err}
		}

		if next.Status != current.Status {
			log.Debug().
				Str("thread_id", threadID).
				Str("run_id", current.ID).
				Str("from", string(current.Status)).
				Str("to", string(next.Status)).
				Msg("Run status changed")
		}
		current = next
	}
}

// stopWaiting cancels the remote run so the thread can take new messages and
// reports why polling ended. A caller cancellation is returned as is.
func (s *ConversationService) stopWaiting(ctx context.Context, threadID string, run *assistant.Run, timeout time.Duration) error {
	s.cancelRun(ctx, threadID, run.ID)

	if err := ctx.Err(); err != nil {
		return err
	}
	return &domain.RunTimeoutError{
		ThreadID:   threadID,
		RunID:      run.ID,
		LastStatus: run.Status,
		Timeout:    timeout,
	}
}

// cancelRun is best effort and outlives ctx
func (s *ConversationService) cancelRun(ctx context.Context, threadID, runID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if _, err := s.api.CancelRun(cancelCtx, threadID, runID); err != nil {
		log.Warn().
			Err(err).
			Str("thread_id", threadID).
			Str("run_id", runID).
			Msg("Failed to cancel run")
	}
}

// userLocks serializes thread creation per user identity. An entry lives
// only while someone holds or waits for it.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) lock(user string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*userLock)
	}
	ul, ok := l.locks[user]
	if !ok {
		ul = &userLock{}
		l.locks[user] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, user)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
