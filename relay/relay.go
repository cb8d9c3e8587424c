// Package relay provides the HTTP endpoints that bridge the browser client
// and the upstream LLM provider: a streaming chat relay and a chat-model
// catalog. The relay holds no cross-request state; each request gets its own
// provider client and its own isolated stream.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/saiaslabs/saias/pkg/provider"
)

// upstreamTimeout bounds a single provider call, streaming included.
const upstreamTimeout = 5 * time.Minute

// Relay is the HTTP server fronting the LLM provider.
type Relay struct {
	logger *zap.Logger
	server *fiber.App

	mu  sync.RWMutex
	cfg Config
}

// New creates a Relay with the given configuration.
func New(cfg Config, logger *zap.Logger) *Relay {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	r := &Relay{
		logger: logger,
		server: app,
		cfg:    cfg,
	}

	app.Use(corsMiddleware())

	app.Post("/chat", r.handleChat)
	app.Get("/models", r.handleModels)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	return r
}

// Run starts the relay server on the configured listen address.
func (r *Relay) Run() error {
	cfg := r.config()
	r.logger.Info("starting relay server",
		zap.String("listen", cfg.ListenAddr),
		zap.Bool("stream", cfg.Stream),
		zap.Bool("fallback_key", cfg.FallbackAPIKey != ""),
	)
	return r.server.Listen(cfg.ListenAddr)
}

// Shutdown stops the server gracefully.
func (r *Relay) Shutdown(ctx context.Context) error {
	return r.server.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests.
func (r *Relay) App() *fiber.App {
	return r.server
}

// SetConfig swaps the active configuration. Streams already in flight keep
// the settings they started with.
func (r *Relay) SetConfig(cfg Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	r.logger.Info("relay config updated",
		zap.Bool("stream", cfg.Stream),
		zap.Bool("fallback_key", cfg.FallbackAPIKey != ""),
	)
}

func (r *Relay) config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// newProvider builds a provider client bound to the given key and the
// configured upstream endpoint.
func (r *Relay) newProvider(apiKey string) *provider.Client {
	return provider.NewClient(apiKey, r.config().ProviderBaseURL)
}
