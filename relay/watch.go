package relay

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchConfig reloads the relay configuration whenever the TOML file
// changes, until the context is cancelled. Reload failures keep the current
// config and log the problem; key rotation therefore never needs a restart.
func (r *Relay) WatchConfig(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := LoadConfig(path)
				if err != nil {
					r.logger.Error("config reload failed", zap.String("path", path), zap.Error(err))
					continue
				}
				r.SetConfig(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Error("config watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
