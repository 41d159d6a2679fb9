package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file whenever it is written or replaced and
// passes each valid result to fn. Invalid edits are logged and skipped.
// The parent directory is watched so editors that replace the file by
// rename are seen. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(target)
			if err != nil {
				slog.Warn("[config] reload failed", "path", target, "error", err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				slog.Warn("[config] reloaded config is invalid", "path", target, "error", err)
				continue
			}
			slog.Debug("[config] reloaded", "path", target)
			fn(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[config] watcher error", "error", err)
		}
	}
}
