package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"tmatic/internal/logger"
)

// Watch re-reads the config file whenever it changes on disk and hands the
// fresh copy to apply. Only additive runtime settings (position limits,
// tracked strategies) are expected to change; a reload that fails to parse is
// logged and skipped.
func Watch(ctx context.Context, path string, apply func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logger.Warnf("config reload skipped: %v", err)
				continue
			}
			logger.Infof("config reloaded from %s", path)
			apply(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("config watcher: %v", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
