package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration file when it changes on disk.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewWatcher starts watching the directory that holds path. Watching the directory
// rather than the file keeps working when editors replace the file on save.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch config: empty path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch config %s: %w", path, err)
	}
	return &Watcher{path: filepath.Clean(path), watcher: fw, logger: logger}, nil
}

// Run blocks until ctx is cancelled. Every write to the file triggers a full Load;
// when it validates, apply receives the new analysis section. Invalid edits are
// logged and the running configuration is kept.
func (w *Watcher) Run(ctx context.Context, apply func(AnalysisConfig)) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config reload rejected", slog.String("path", w.path), slog.Any("error", err))
				continue
			}
			w.logger.Info("analysis config reloaded", slog.String("path", w.path))
			apply(cfg.Analysis)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", slog.Any("error", err))
		}
	}
}
