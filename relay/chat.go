package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiaslabs/saias/pkg/chat"
	"github.com/saiaslabs/saias/pkg/provider"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string      `json:"message"`
	History []chat.Turn `json:"history"`
	APIKey  string      `json:"apiKey,omitempty"`
	Model   string      `json:"model,omitempty"`
}

// handleChat relays a conversation to the provider. In streaming mode the
// response is a raw text/plain concatenation of the provider's deltas in
// emission order; headers are committed before the first delta is known so
// the client can render immediately.
func (r *Relay) handleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		r.logger.Error("failed to parse chat request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(provider.ErrorResponse{Error: "invalid request body"})
	}

	cfg := r.config()

	// Caller-supplied key wins over the server-side fallback. Without
	// either there is nothing to call the provider with: fail fast,
	// before any upstream traffic.
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = cfg.FallbackAPIKey
	}
	if apiKey == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(provider.ErrorResponse{Error: "no API key found"})
	}

	preq := provider.BuildRequest(req.History, req.Message, req.Model, cfg.mode(), cfg.defaults())

	r.logger.Debug("relaying chat request",
		zap.String("model", preq.Model),
		zap.Int("history_len", len(req.History)),
		zap.Bool("stream", preq.Stream),
		zap.Bool("caller_key", req.APIKey != ""),
	)

	client := r.newProvider(apiKey)

	if !preq.Stream {
		return r.completeChat(c, client, preq)
	}
	return r.streamChat(c, client, preq)
}

// completeChat serves the non-streaming mode: one provider call, one body.
func (r *Relay) completeChat(c *fiber.Ctx, client *provider.Client, preq provider.Request) error {
	ctx, cancel := context.WithTimeout(c.Context(), upstreamTimeout)
	defer cancel()

	text, err := client.Complete(ctx, preq)
	if err != nil {
		r.logger.Error("provider completion failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(provider.ErrorResponse{Error: err.Error()})
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.SendString(text)
}

// streamChat opens the provider stream first, so setup failures still get a
// structured error body, then commits the headers and relays deltas as they
// arrive. Once the headers are out there is no way to report an error in
// band: a mid-stream failure simply terminates the connection and the
// client detects the truncation by the close.
func (r *Relay) streamChat(c *fiber.Ctx, client *provider.Client, preq provider.Request) error {
	// Deliberately not derived from the request context: the stream
	// writer below runs after this handler returns. Client disconnects
	// are caught on flush and cancel the upstream call there.
	ctx, cancel := context.WithTimeout(context.Background(), upstreamTimeout)

	stream, err := client.Stream(ctx, preq)
	if err != nil {
		cancel()
		r.logger.Error("provider stream setup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(provider.ErrorResponse{Error: err.Error()})
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Set(fiber.HeaderTransferEncoding, "chunked")

	logger := r.logger
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				// Graceful end: connection close is the only
				// sentinel the client needs.
				return
			}
			if err != nil {
				logger.Error("provider stream failed mid-flight", zap.Error(err))
				return
			}

			if len(resp.Choices) == 0 {
				continue
			}

			// Role-only and finish-reason-only frames carry no
			// text delta and are not relayed.
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			if _, err := w.WriteString(delta); err != nil {
				logger.Warn("client write failed, cancelling upstream", zap.Error(err))
				return
			}
			if err := w.Flush(); err != nil {
				logger.Warn("client disconnected, cancelling upstream", zap.Error(err))
				return
			}
		}
	}))

	return nil
}
