package assistant

import (
	"context"
	"fmt"

	"github.com/Rrens/thread-router/internal/domain"
)

// Thread is a remote conversation container
type Thread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// Message is one entry of a thread's message log
type Message struct {
	ID        string             `json:"id"`
	ThreadID  string             `json:"thread_id"`
	Role      domain.MessageRole `json:"role"`
	Content   []MessageContent   `json:"content"`
	RunID     string             `json:"run_id,omitempty"`
	CreatedAt int64              `json:"created_at"`
}

// MessageContent is a typed content part of a message
type MessageContent struct {
	Type string       `json:"type"`
	Text *MessageText `json:"text,omitempty"`
}

type MessageText struct {
	Value string `json:"value"`
}

// Text returns the value of the first content part, or "" when it has none
func (m Message) Text() string {
	if len(m.Content) == 0 || m.Content[0].Text == nil {
		return ""
	}
	return m.Content[0].Text.Value
}

// Run is one execution of an assistant against a thread
type Run struct {
	ID          string           `json:"id"`
	ThreadID    string           `json:"thread_id"`
	AssistantID string           `json:"assistant_id"`
	Status      domain.RunStatus `json:"status"`
	LastError   *RunError        `json:"last_error,omitempty"`
}

type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// API is the subset of the remote conversation service the orchestrator uses
type API interface {
	// CreateThread creates an empty thread
	CreateThread(ctx context.Context) (*Thread, error)

	// CreateMessage appends a message to a thread
	CreateMessage(ctx context.Context, threadID string, role domain.MessageRole, content string) (*Message, error)

	// CreateRun starts an assistant run against a thread
	CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error)

	// RetrieveRun returns the current state of a run
	RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error)

	// CancelRun asks the service to stop a run
	CancelRun(ctx context.Context, threadID, runID string) (*Run, error)

	// ListMessages returns up to limit messages, newest first
	ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
}

// APIError is an error response returned by the remote service
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	if e.Type == "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("status %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

// Retryable reports whether the failure was likely transient
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
