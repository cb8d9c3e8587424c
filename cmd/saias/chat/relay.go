package chatcmder

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
	"github.com/saiaslabs/saias/relay"
)

// relaySession drives the relay's /chat endpoint directly, the way the
// browser client does: every send carries the running transcript as
// history, and the reply streams back as plain text.
type relaySession struct {
	url    string
	model  string
	apiKey string
	http   *http.Client

	transcript []*chat.Message
}

func newRelaySession(url, model, apiKey string) *relaySession {
	return &relaySession{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		apiKey: apiKey,
		http: &http.Client{
			// Streaming replies can run long.
			Timeout: 5 * time.Minute,
		},
	}
}

// send posts a message with the accumulated history, copies the streamed
// reply to out as it arrives, and appends both turns to the transcript.
// A failed send leaves the transcript untouched.
func (s *relaySession) send(ctx context.Context, message string, out io.Writer) (string, error) {
	payload, err := json.Marshal(relay.ChatRequest{
		Message: message,
		History: chat.Turns(s.transcript),
		Model:   s.model,
		APIKey:  s.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			return "", fmt.Errorf("relay: %s", body.Error)
		}
		return "", fmt.Errorf("relay returned %d", resp.StatusCode)
	}

	var reply bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(&reply, out), resp.Body); err != nil {
		return "", fmt.Errorf("read reply stream: %w", err)
	}

	s.transcript = append(s.transcript,
		chat.NewUserMessage(message),
		&chat.Message{
			ID:        uuid.NewString(),
			Role:      chat.RoleAssistant,
			Content:   reply.String(),
			CreatedAt: time.Now(),
		},
	)
	return reply.String(), nil
}
