package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeUpstream mimics the provider's OpenAI-compatible API: a streaming
// chat completion endpoint and a model listing endpoint.
type fakeUpstream struct {
	mu           sync.Mutex
	chatCalls    int
	modelCalls   int
	lastAuth     string
	lastChatBody []byte

	deltas       []string
	completeText string
	modelIDs     []string
	failChat     bool
	dropAfter    int

	server *httptest.Server
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()

	f := &fakeUpstream{
		deltas:       []string{"Hello", ", ", "world", "!"},
		completeText: "Hello, world!",
		modelIDs:     []string{"llama-3.3-70b", "whisper-large-v3", "gpt-oss-20b"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", f.handleChat)
	mux.HandleFunc("GET /models", f.handleModels)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) handleChat(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.chatCalls++
	f.lastAuth = r.Header.Get("Authorization")
	f.lastChatBody = body
	fail := f.failChat
	deltas := f.deltas
	complete := f.completeText
	drop := f.dropAfter
	f.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
		return
	}

	var req struct {
		Stream bool `json:"stream"`
	}
	_ = json.Unmarshal(body, &req)

	if !req.Stream {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, complete)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)

	// Role-only opening frame: carries no text delta.
	fmt.Fprint(w, `data: {"id":"cmpl-1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`+"\n\n")
	flusher.Flush()

	for i, d := range deltas {
		if drop > 0 && i == drop {
			// Drop the connection mid-stream without a final chunk.
			panic(http.ErrAbortHandler)
		}
		chunk, _ := json.Marshal(d)
		fmt.Fprintf(w, `data: {"id":"cmpl-1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":%s},"finish_reason":null}]}`+"\n\n", chunk)
		flusher.Flush()
	}

	// Finish frame, also without a delta.
	fmt.Fprint(w, `data: {"id":"cmpl-1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`+"\n\n")
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (f *fakeUpstream) handleModels(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.modelCalls++
	f.lastAuth = r.Header.Get("Authorization")
	ids := f.modelIDs
	f.mu.Unlock()

	entries := make([]string, len(ids))
	for i, id := range ids {
		entries[i] = fmt.Sprintf(`{"id":%q,"object":"model","owned_by":"test"}`, id)
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"object":"list","data":[%s]}`, strings.Join(entries, ","))
}

func (f *fakeUpstream) calls() (chat, models int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls, f.modelCalls
}

func testRelay(t *testing.T, upstream *fakeUpstream, mutate func(*Config)) *Relay {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	cfg := Config{
		ListenAddr:      ":0",
		ProviderBaseURL: upstream.server.URL,
		FallbackAPIKey:  "server-key",
		Stream:          true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, logger)
}

func postChat(t *testing.T, r *Relay, body string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.App().Test(req, 10000)
	require.NoError(t, err)
	return resp
}

func TestChatStreamsDeltasInOrder(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	resp := postChat(t, r, `{"message":"hi","history":[]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", string(body))
}

func TestChatCORSHeadersOnEveryResponse(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	resp := postChat(t, r, `{"message":"hi"}`)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, corsAllowMethods, resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, corsAllowHeaders, resp.Header.Get("Access-Control-Allow-Headers"))
}

func TestChatNoKeyFailsFastWithoutProviderCall(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, func(cfg *Config) {
		cfg.FallbackAPIKey = ""
	})

	resp := postChat(t, r, `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var errBody map[string]string
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &errBody))
	assert.Equal(t, "no API key found", errBody["error"])

	chatCalls, _ := upstream.calls()
	assert.Equal(t, 0, chatCalls)
}

func TestChatCallerKeyWinsOverFallback(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	resp := postChat(t, r, `{"message":"hi","apiKey":"caller-key"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	io.Copy(io.Discard, resp.Body)

	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	assert.Equal(t, "Bearer caller-key", upstream.lastAuth)
}

func TestChatForwardsReasoningEffortForReasoningModels(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	resp := postChat(t, r, `{"message":"hi","model":"gpt-oss-20b"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	io.Copy(io.Discard, resp.Body)

	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	assert.Contains(t, string(upstream.lastChatBody), `"reasoning_effort":"medium"`)
	assert.Contains(t, string(upstream.lastChatBody), `"model":"gpt-oss-20b"`)
}

func TestChatOmitsReasoningEffortForStandardModels(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	resp := postChat(t, r, `{"message":"hi","model":"llama-3.3-70b-versatile"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	io.Copy(io.Discard, resp.Body)

	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	assert.NotContains(t, string(upstream.lastChatBody), "reasoning_effort")
}

func TestChatFixedSamplingModelStreams(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	resp := postChat(t, r, `{"message":"hi","model":"o1-preview"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", string(body))

	chatCalls, _ := upstream.calls()
	assert.Equal(t, 1, chatCalls)

	// The budget travels as max_completion_tokens for this family.
	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	assert.Contains(t, string(upstream.lastChatBody), `"max_completion_tokens":8192`)
	assert.NotContains(t, string(upstream.lastChatBody), `"max_tokens"`)
	assert.Contains(t, string(upstream.lastChatBody), `"reasoning_effort":"medium"`)
}

func TestChatMidStreamFailureTerminatesWithoutErrorBody(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.dropAfter = 2
	r := testRelay(t, upstream, nil)

	resp := postChat(t, r, `{"message":"hi"}`)

	// Headers were committed before the failure; the body holds exactly
	// the deltas relayed up to that point and nothing else.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello, ", string(body))
}

func TestChatProviderFailureBeforeStreamReturnsStructuredError(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.failChat = true
	r := testRelay(t, upstream, nil)

	resp := postChat(t, r, `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var errBody map[string]string
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &errBody))
	assert.NotEmpty(t, errBody["error"])
}

func TestChatNonStreamingMode(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, func(cfg *Config) {
		cfg.Stream = false
	})

	resp := postChat(t, r, `{"message":"hi"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Hello, world!", string(body))

	// The non-streaming mode carries its own generation defaults.
	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	assert.Contains(t, string(upstream.lastChatBody), `"max_tokens":1024`)
}

func TestChatPreflight(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, func(cfg *Config) {
		cfg.FallbackAPIKey = "" // pre-flight must work regardless of auth state
	})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	resp, err := r.App().Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Empty(t, body)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, corsAllowMethods, resp.Header.Get("Access-Control-Allow-Methods"))

	chatCalls, _ := upstream.calls()
	assert.Equal(t, 0, chatCalls)
}

func TestChatRejectsOtherMethods(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	resp, err := r.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestModelsFiltersAudioModelsPreservingOrder(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	resp, err := r.App().Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload ModelsResponse
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &payload))

	require.Len(t, payload.Data, 2)
	assert.Equal(t, "llama-3.3-70b", payload.Data[0].ID)
	assert.Equal(t, "gpt-oss-20b", payload.Data[1].ID)
}

func TestModelsBearerNullUsesFallbackKey(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Authorization", "Bearer null")
	resp, err := r.App().Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	assert.Equal(t, "Bearer server-key", upstream.lastAuth)
}

func TestModelsCallerKeyForwarded(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Authorization", "Bearer user-key")
	resp, err := r.App().Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	assert.Equal(t, "Bearer user-key", upstream.lastAuth)
}

func TestModelsPreflight(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	req := httptest.NewRequest(http.MethodOptions, "/models", nil)
	resp, err := r.App().Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Empty(t, body)

	_, modelCalls := upstream.calls()
	assert.Equal(t, 0, modelCalls)
}

func TestHealthEndpoint(t *testing.T) {
	upstream := newFakeUpstream(t)
	r := testRelay(t, upstream, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := r.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "ok", result["status"])
}
