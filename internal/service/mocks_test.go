package service

import (
	"context"
	"sort"
	"sync"

	"github.com/Rrens/thread-router/internal/assistant"
	"github.com/Rrens/thread-router/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockSessionRepository mocks the SessionRepository interface
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) GetThreadForUser(ctx context.Context, user string) (string, bool, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockSessionRepository) GetUserForThread(ctx context.Context, threadID string) (string, bool, error) {
	args := m.Called(ctx, threadID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockSessionRepository) Upsert(ctx context.Context, user, threadID string) error {
	args := m.Called(ctx, user, threadID)
	return args.Error(0)
}

func (m *MockSessionRepository) Delete(ctx context.Context, user string) (bool, error) {
	args := m.Called(ctx, user)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) ClearAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionRepository) ListAll(ctx context.Context) ([]domain.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

// MockAssistantAPI mocks the assistant.API interface
type MockAssistantAPI struct {
	mock.Mock
}

func (m *MockAssistantAPI) CreateThread(ctx context.Context) (*assistant.Thread, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assistant.Thread), args.Error(1)
}

func (m *MockAssistantAPI) CreateMessage(ctx context.Context, threadID string, role domain.MessageRole, content string) (*assistant.Message, error) {
	args := m.Called(ctx, threadID, role, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assistant.Message), args.Error(1)
}

func (m *MockAssistantAPI) CreateRun(ctx context.Context, threadID, assistantID string) (*assistant.Run, error) {
	args := m.Called(ctx, threadID, assistantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assistant.Run), args.Error(1)
}

func (m *MockAssistantAPI) RetrieveRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	args := m.Called(ctx, threadID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assistant.Run), args.Error(1)
}

func (m *MockAssistantAPI) CancelRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	args := m.Called(ctx, threadID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assistant.Run), args.Error(1)
}

func (m *MockAssistantAPI) ListMessages(ctx context.Context, threadID string, limit int) ([]assistant.Message, error) {
	args := m.Called(ctx, threadID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]assistant.Message), args.Error(1)
}

// memoryRepository is an in-memory registry for multi-step scenarios
type memoryRepository struct {
	mu       sync.Mutex
	sessions map[string]string
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{sessions: make(map[string]string)}
}

func (r *memoryRepository) GetThreadForUser(_ context.Context, user string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	threadID, ok := r.sessions[user]
	return threadID, ok, nil
}

func (r *memoryRepository) GetUserForThread(_ context.Context, threadID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for user, t := range r.sessions {
		if t == threadID {
			return user, true, nil
		}
	}
	return "", false, nil
}

func (r *memoryRepository) Upsert(_ context.Context, user, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for u, t := range r.sessions {
		if t == threadID && u != user {
			return domain.ErrThreadClaimed
		}
	}
	r.sessions[user] = threadID
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, user string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[user]
	delete(r.sessions, user)
	return ok, nil
}

func (r *memoryRepository) ClearAll(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.sessions))
	r.sessions = make(map[string]string)
	return n, nil
}

func (r *memoryRepository) ListAll(_ context.Context) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Session, 0, len(r.sessions))
	for user, threadID := range r.sessions {
		out = append(out, domain.Session{UserIdentity: user, ThreadID: threadID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserIdentity < out[j].UserIdentity })
	return out, nil
}

func textMessage(text string) assistant.Message {
	return assistant.Message{
		ID:      "msg_reply",
		Role:    domain.RoleAssistant,
		Content: []assistant.MessageContent{{Type: "text", Text: &assistant.MessageText{Value: text}}},
	}
}
