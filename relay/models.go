package relay

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/saiaslabs/saias/pkg/provider"
)

// ModelsResponse is the body of GET /models.
type ModelsResponse struct {
	Data []provider.Model `json:"data"`
}

// handleModels returns the caller's chat-capable models. The caller's key
// arrives as a bearer token; a missing header or the literal string "null"
// (a client serializing an absent key) falls back to the server-side key.
func (r *Relay) handleModels(c *fiber.Ctx) error {
	cfg := r.config()

	apiKey := cfg.FallbackAPIKey
	if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		userKey := strings.TrimPrefix(auth, "Bearer ")
		if userKey != "" && userKey != "null" {
			apiKey = userKey
		}
	}
	if apiKey == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(provider.ErrorResponse{Error: "no API key found"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	models, err := r.newProvider(apiKey).ListChatModels(ctx)
	if err != nil {
		r.logger.Error("failed to fetch models", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(provider.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(ModelsResponse{Data: models})
}
