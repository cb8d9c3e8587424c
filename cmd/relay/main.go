package main

import (
	"context"
	"flag"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/saiaslabs/saias/pkg/logger"
	"github.com/saiaslabs/saias/relay"
)

func main() {
	// Optional .env for the fallback provider key; missing file is fine.
	_ = godotenv.Load()

	listenAddr := flag.String("listen", "", "Address to listen on (overrides config)")
	configPath := flag.String("config", "", "Path to TOML config file")
	providerURL := flag.String("provider-url", "", "Upstream provider base URL (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log := logger.New(*debug)
	defer log.Sync()

	cfg := relay.DefaultConfig()
	if *configPath != "" {
		loaded, err := relay.LoadConfig(*configPath)
		if err != nil {
			log.Fatal("failed to load config", zap.Error(err))
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *providerURL != "" {
		cfg.ProviderBaseURL = *providerURL
	}

	log.Info("saias relay starting",
		zap.String("listen", cfg.ListenAddr),
		zap.Bool("stream", cfg.Stream),
		zap.Bool("debug", *debug),
	)

	r := relay.New(cfg, log)

	if *configPath != "" {
		if err := r.WatchConfig(context.Background(), *configPath); err != nil {
			log.Warn("config watching disabled", zap.Error(err))
		}
	}

	if err := r.Run(); err != nil {
		log.Fatal("relay server failed", zap.Error(err))
	}
}
