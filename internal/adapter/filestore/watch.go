package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Strob0t/sddflow/internal/logger"
)

// recheckInterval bounds how long a missed filesystem event can delay Watch.
const recheckInterval = 5 * time.Second

// Watch calls check whenever the file at path changes and returns once check
// reports done. The parent directory is watched because saves replace the
// file by rename.
func Watch(ctx context.Context, path string, check func() (bool, error)) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	// The file may have changed before the watch was armed.
	if done, err := check(); err != nil || done {
		return err
	}

	log := logger.FromContext(ctx)
	ticker := time.NewTicker(recheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("watch %s: watcher closed", path)
			}
			if filepath.Clean(ev.Name) != path || !ev.Op.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("watch %s: watcher closed", path)
			}
			log.Warn("queue watch error", "path", path, "error", err)
			continue
		case <-ticker.C:
		}
		if done, err := check(); err != nil || done {
			return err
		}
	}
}
