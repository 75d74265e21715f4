package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"openhowl/logger"

	"github.com/fsnotify/fsnotify"
)

// CatalogChange is reported after the catalog file was replaced or edited.
type CatalogChange struct {
	Revision int64
}

// CatalogWatcher reports changes to the catalog file, including edits made
// outside this process. Bursts of events within Debounce collapse into one.
type CatalogWatcher struct {
	Path     string
	Repo     SoundRepository
	Debounce time.Duration
	OnChange func(CatalogChange)
}

// Run watches until ctx is done. The parent directory is watched because
// saves replace the file by rename.
func (w *CatalogWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	defer watcher.Close()

	// 目录可能在第一次保存前还不存在
	dir := filepath.Dir(w.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	target := filepath.Clean(w.Path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
			pending = true
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("[CatalogWatcher] watcher error", logger.ErrorField(err))
		case <-timer.C:
			pending = false
			rev, err := w.Repo.Revision(ctx)
			if err != nil {
				logger.Warn("[CatalogWatcher] failed to read revision", logger.ErrorField(err))
				continue
			}
			if w.OnChange != nil {
				w.OnChange(CatalogChange{Revision: rev})
			}
		}
	}
}
