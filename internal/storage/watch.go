package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchCatalog reloads the dataset catalog when the file changes on disk
// outside the process, typically a hand edit or a git checkout. Events
// are debounced since editors fire several per save. Blocks until ctx is
// done; errors are logged, never fatal.
func (s *FileStore) WatchCatalog(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: rename-over saves would drop a
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(s.CatalogPath())); err != nil {
		return err
	}

	const debounce = 200 * time.Millisecond
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.CatalogPath()) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			pending = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.ErrorContext(ctx, "Catalog watcher error", "err", err)
		case <-pending:
			pending = nil
			if err := s.ReloadCatalog(); err != nil {
				slog.ErrorContext(ctx, "Failed to reload dataset catalog", "err", err)
			} else {
				slog.InfoContext(ctx, "Reloaded dataset catalog after external change")
			}
		}
	}
}
