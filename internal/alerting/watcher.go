package alerting

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// PolicyWatcher reloads the engine policy when the config file changes.
// A file that fails to load leaves the current policy in place.
type PolicyWatcher struct {
	path   string
	engine *Engine
	logger *zap.Logger
}

// NewPolicyWatcher creates a watcher for the config file at path.
func NewPolicyWatcher(path string, engine *Engine, logger *zap.Logger) (*PolicyWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve policy path: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyWatcher{path: abs, engine: engine, logger: logger.Named("policy-watcher")}, nil
}

// Reload reads the file and applies it to the engine.
func (w *PolicyWatcher) Reload() error {
	p, err := LoadPolicyFile(w.path)
	if err != nil {
		return err
	}
	return w.engine.SetPolicy(p)
}

// Run watches the file until ctx is cancelled.
func (w *PolicyWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.Warn("policy reload failed, keeping current policy",
					zap.String("path", w.path), zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}
