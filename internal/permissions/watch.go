package permissions

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the engine whenever the override file changes on disk.
// It blocks until ctx is cancelled. The parent directory is watched because
// atomic writers replace the file by rename.
func (e *Engine) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(e.path)); err != nil {
		return err
	}

	target := filepath.Clean(e.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := e.Reload(); err != nil {
				e.logger.Warn("permission reload failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("permission watcher error", "error", err)
		}
	}
}
