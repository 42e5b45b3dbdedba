package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rrens/thread-router/internal/config"
	"github.com/Rrens/thread-router/internal/domain"
	"github.com/Rrens/thread-router/internal/repository/sqlite"
	"github.com/Rrens/thread-router/internal/security"
	"github.com/Rrens/thread-router/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockConversation struct {
	mock.Mock
}

func (m *mockConversation) RouteQuestion(ctx context.Context, req service.AskRequest) (*service.AskResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AskResponse), args.Error(1)
}

type testServer struct {
	handler      http.Handler
	conversation *mockConversation
	jwt          *security.JWTManager
	token        string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo, err := sqlite.NewSessionRepository(filepath.Join(t.TempDir(), "threads.db"), time.Second)
	require.NoError(t, err)

	cfg := &config.Config{Server: config.ServerConfig{MiddlewareTimeout: 5 * time.Second}}
	jwtManager := security.NewJWTManager("router-test-secret-32-chars!!!!", time.Hour)
	token, err := jwtManager.GenerateAdminToken("tests")
	require.NoError(t, err)

	conversation := new(mockConversation)
	h := NewRouter(cfg, Dependencies{
		Conversation: conversation,
		Registry:     service.NewRegistryService(repo),
		JWT:          jwtManager,
	})

	return &testServer{handler: h, conversation: conversation, jwt: jwtManager, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, admin bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected structured error, got %v", body["error"])
	return errBody["code"].(string)
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t)

	rec, body := srv.do(t, http.MethodGet, "/api/v1/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, body = srv.do(t, http.MethodGet, "/api/v1/ready", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["data"].(map[string]any)["status"])
}

func TestRouter_Ask(t *testing.T) {
	srv := newTestServer(t)

	t.Run("success", func(t *testing.T) {
		req := service.AskRequest{User: "Ana", Question: "What is 2+2?"}
		srv.conversation.On("RouteQuestion", mock.Anything, req).
			Return(&service.AskResponse{Reply: "4", ThreadID: "thread_abc", RunID: "run_1", RequestID: "req"}, nil).Once()

		rec, body := srv.do(t, http.MethodPost, "/api/v1/ask", req, false)
		require.Equal(t, http.StatusOK, rec.Code)

		data := body["data"].(map[string]any)
		assert.Equal(t, "4", data["reply"])
		assert.Equal(t, "thread_abc", data["thread_id"])
	})

	t.Run("missing question fails validation", func(t *testing.T) {
		rec, body := srv.do(t, http.MethodPost, "/api/v1/ask", map[string]string{"user": "Ana"}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_input", errorCode(t, body))
	})

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid input", domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{"run failed", &domain.RunFailedError{RunID: "run_1", Status: domain.RunStatusFailed}, http.StatusBadGateway, "run_failed"},
		{"run timeout", &domain.RunTimeoutError{RunID: "run_1", Timeout: time.Second}, http.StatusGatewayTimeout, "run_timeout"},
		{"remote", &domain.RemoteServiceError{Op: "create run", Err: assert.AnError}, http.StatusBadGateway, "remote_error"},
		{"storage", domain.NewStorageError("upsert", assert.AnError), http.StatusInternalServerError, "storage_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := service.AskRequest{User: "Bruno", Question: tc.name}
			srv.conversation.On("RouteQuestion", mock.Anything, req).Return(nil, tc.err).Once()

			rec, body := srv.do(t, http.MethodPost, "/api/v1/ask", req, false)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, errorCode(t, body))
		})
	}
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodGet, "/api/v1/sessions", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	srv.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_SessionLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodPut, "/api/v1/sessions/Ana", map[string]string{"thread_id": "thread_1"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := srv.do(t, http.MethodGet, "/api/v1/sessions/Ana", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "thread_1", body["data"].(map[string]any)["thread_id"])

	rec, body = srv.do(t, http.MethodGet, "/api/v1/threads/thread_1/user", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ana", body["data"].(map[string]any)["user_identity"])

	rec, body = srv.do(t, http.MethodPut, "/api/v1/sessions/Bruno", map[string]string{"thread_id": "thread_1"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "thread_claimed", errorCode(t, body))

	rec, body = srv.do(t, http.MethodPut, "/api/v1/sessions/Bruno", map[string]string{}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errorCode(t, body))

	rec, body = srv.do(t, http.MethodGet, "/api/v1/sessions", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["data"].(map[string]any)["count"])

	rec, body = srv.do(t, http.MethodDelete, "/api/v1/sessions/Ana", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["data"].(map[string]any)["deleted"])

	rec, body = srv.do(t, http.MethodGet, "/api/v1/sessions/Ana", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, body))
}

func TestRouter_ClearRequiresConfirm(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodPut, "/api/v1/sessions/Ana", map[string]string{"thread_id": "thread_1"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := srv.do(t, http.MethodDelete, "/api/v1/sessions", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errorCode(t, body))

	rec, body = srv.do(t, http.MethodDelete, "/api/v1/sessions?confirm=true", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["data"].(map[string]any)["removed"])
}

func TestRouter_AdminDisabledWithoutSecret(t *testing.T) {
	repo, err := sqlite.NewSessionRepository(filepath.Join(t.TempDir(), "threads.db"), time.Second)
	require.NoError(t, err)

	cfg := &config.Config{Server: config.ServerConfig{MiddlewareTimeout: 5 * time.Second}}
	h := NewRouter(cfg, Dependencies{
		Conversation: new(mockConversation),
		Registry:     service.NewRegistryService(repo),
		JWT:          security.NewJWTManager("", time.Hour),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
