package history

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchSettle = 200 * time.Millisecond

// Watch calls fn with an OpChanged event whenever path is written, renamed
// over or removed, by this process or another one. Bursts are coalesced.
// It blocks until ctx is done.
func Watch(ctx context.Context, path string, fn func(Event), logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// The directory is watched because rewrites replace the file.
	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	timer := time.NewTimer(watchSettle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(watchSettle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("history watch error", zap.String("path", path), zap.Error(err))
		case <-timer.C:
			fn(Event{Op: OpChanged, At: time.Now().UTC()})
		}
	}
}
