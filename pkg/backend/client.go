// Package backend is the HTTP client for the conversation persistence
// service. The service owns durable storage of conversations and messages;
// this client treats it as a remote list/key-value service and normalizes
// its loosely shaped responses at the boundary, so nothing downstream ever
// branches on wire quirks.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saiaslabs/saias/pkg/chat"
)

// ErrNotFound marks a collaborator endpoint that is absent (HTTP 404).
// Callers treat it as a soft condition, not a failure.
var ErrNotFound = fmt.Errorf("backend: not found")

// Client talks to the persistence backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a backend client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Health reports whether the backend answers its health check with a
// healthy status.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", "", &body); err != nil {
		return err
	}
	if body.Status != "healthy" && body.Status != "ok" {
		return fmt.Errorf("backend unhealthy: status %q", body.Status)
	}
	return nil
}

// Conversations lists the caller's conversation summaries. A 404 means the
// feature is absent on this backend and degrades to an empty list.
func (c *Client) Conversations(ctx context.Context, token string) ([]chat.ConversationSummary, error) {
	var list []chat.ConversationSummary
	err := c.get(ctx, "/conversations", token, &list)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ConversationMessages fetches the full message list of one conversation.
func (c *Client) ConversationMessages(ctx context.Context, token, id string) ([]*chat.Message, error) {
	var wire []wireMessage
	if err := c.get(ctx, "/conversations/"+id, token, &wire); err != nil {
		return nil, err
	}
	return ingestMessages(wire), nil
}

// History fetches the most recent transcript outside any conversation.
func (c *Client) History(ctx context.Context, token string) ([]*chat.Message, error) {
	var wire []wireMessage
	if err := c.get(ctx, "/history", token, &wire); err != nil {
		return nil, err
	}
	return ingestMessages(wire), nil
}

// ChatResult is the normalized outcome of a send. The backend's duck-typed
// reply field union is resolved here and only here.
type ChatResult struct {
	Reply          string
	ServerID       string
	CreatedAt      time.Time
	ConversationID string
}

// Send posts a user message, optionally into an existing conversation, and
// returns the normalized result.
func (c *Client) Send(ctx context.Context, token, message, conversationID string) (*ChatResult, error) {
	payload := map[string]string{"message": message}
	if conversationID != "" {
		payload["conversation_id"] = conversationID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("send message: %s", errorDetail(resp.StatusCode, raw))
	}

	var wire wireChatResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return wire.normalize(), nil
}

// get performs an authorized GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request %s: %w", path, err)
	}
	setAuth(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: %s", path, errorDetail(resp.StatusCode, raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// errorDetail extracts a human-readable error from a failure body.
func errorDetail(status int, raw []byte) string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return fmt.Sprintf("status %d", status)
}

// wireMessage is the backend's message shape.
type wireMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ingestMessages converts wire messages into client messages, assigning
// fresh client identities and keeping the server ids as backfill.
func ingestMessages(wire []wireMessage) []*chat.Message {
	messages := make([]*chat.Message, 0, len(wire))
	for _, w := range wire {
		messages = append(messages, &chat.Message{
			ID:        uuid.NewString(),
			Role:      chat.Role(w.Role),
			Content:   w.Content,
			CreatedAt: w.CreatedAt,
			ServerID:  w.ID,
		})
	}
	return messages
}

// wireChatResponse is the backend's send response. Older deployments call
// the reply field "response", newer ones "ai_response".
type wireChatResponse struct {
	AIResponse     string    `json:"ai_response"`
	Response       string    `json:"response"`
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id"`
}

func (w wireChatResponse) normalize() *ChatResult {
	reply := w.AIResponse
	if reply == "" {
		reply = w.Response
	}
	return &ChatResult{
		Reply:          reply,
		ServerID:       w.ID,
		CreatedAt:      w.CreatedAt,
		ConversationID: w.ConversationID,
	}
}
