package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Rrens/thread-router/internal/assistant"
	"github.com/Rrens/thread-router/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	betaHeader     = "assistants=v2"
)

// Client implements assistant.API for the OpenAI Assistants v2 API
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient creates a new OpenAI threads client
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// IsConfigured checks if the client has credentials
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

type createMessageRequest struct {
	Role    domain.MessageRole `json:"role"`
	Content string             `json:"content"`
}

type createRunRequest struct {
	AssistantID string `json:"assistant_id"`
}

type listMessagesResponse struct {
	Data    []assistant.Message `json:"data"`
	HasMore bool                `json:"has_more"`
}

type errorResponse struct {
	Error *assistant.APIError `json:"error"`
}

// CreateThread creates an empty thread
func (c *Client) CreateThread(ctx context.Context) (*assistant.Thread, error) {
	var thread assistant.Thread
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &thread); err != nil {
		return nil, err
	}
	if thread.ID == "" {
		return nil, fmt.Errorf("thread response has no id")
	}
	return &thread, nil
}

// CreateMessage appends a message to a thread
func (c *Client) CreateMessage(ctx context.Context, threadID string, role domain.MessageRole, content string) (*assistant.Message, error) {
	req := createMessageRequest{Role: role, Content: content}

	var msg assistant.Message
	if err := c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// CreateRun starts an assistant run against a thread
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*assistant.Run, error) {
	req := createRunRequest{AssistantID: assistantID}

	var run assistant.Run
	if err := c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", req, &run); err != nil {
		return nil, err
	}
	if run.ID == "" {
		return nil, fmt.Errorf("run response has no id")
	}
	return &run, nil
}

// RetrieveRun returns the current state of a run
func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)

	var run assistant.Run
	if err := c.do(ctx, http.MethodGet, path, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CancelRun asks the service to stop a run
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/cancel"

	var run assistant.Run
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListMessages returns up to limit messages, newest first
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int) ([]assistant.Message, error) {
	q := url.Values{}
	q.Set("order", "desc")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages?" + q.Encode()

	var list listMessagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("OpenAI-Beta", betaHeader)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope errorResponse
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = resp.StatusCode
		return envelope.Error
	}
	return &assistant.APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
}
