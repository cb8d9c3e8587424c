package relay

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/saiaslabs/saias/pkg/provider"
)

// DefaultAPIKeyEnv names the environment variable holding the server-side
// fallback provider key.
const DefaultAPIKeyEnv = "GROQ_API_KEY"

// Config is the relay server configuration.
type Config struct {
	// Address to listen on (e.g. ":8080").
	ListenAddr string `toml:"listen"`

	// ProviderBaseURL is the upstream provider endpoint. Empty means the
	// provider package default.
	ProviderBaseURL string `toml:"provider_base_url"`

	// APIKeyEnv names the environment variable read for the fallback
	// key. Callers may still supply their own key per request.
	APIKeyEnv string `toml:"api_key_env"`

	// FallbackAPIKey is the resolved server-side key. Populated from
	// APIKeyEnv on load; a value set directly wins.
	FallbackAPIKey string `toml:"-"`

	// Stream selects live token relay. When false the handler runs the
	// provider in one shot and writes the whole reply at once, with the
	// non-streaming generation defaults.
	Stream bool `toml:"stream"`

	// Generation overrides the stock per-mode defaults when non-zero.
	Generation GenerationConfig `toml:"generation"`
}

// GenerationConfig optionally overrides temperature and output budget.
type GenerationConfig struct {
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// DefaultConfig returns a streaming config listening on :8080 with the key
// taken from the default environment variable.
func DefaultConfig() Config {
	cfg := Config{
		ListenAddr: ":8080",
		APIKeyEnv:  DefaultAPIKeyEnv,
		Stream:     true,
	}
	cfg.FallbackAPIKey = os.Getenv(cfg.APIKeyEnv)
	return cfg
}

// LoadConfig reads a TOML config file and resolves the fallback key.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultAPIKeyEnv
	}
	cfg.FallbackAPIKey = os.Getenv(cfg.APIKeyEnv)
	return cfg, nil
}

// mode returns the generation mode selected by the config.
func (c Config) mode() provider.Mode {
	if c.Stream {
		return provider.ModeStream
	}
	return provider.ModeComplete
}

// defaults returns the effective generation defaults for the config's mode.
func (c Config) defaults() provider.Defaults {
	d := provider.ModeDefaults(c.mode())
	if c.Generation.Temperature > 0 {
		d.Temperature = c.Generation.Temperature
	}
	if c.Generation.MaxTokens > 0 {
		d.MaxTokens = c.Generation.MaxTokens
	}
	return d
}
