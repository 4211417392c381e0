package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/vibe/internal/log"
)

// DefaultDebounce collapses bursts of editor writes into one reload.
const DefaultDebounce = 250 * time.Millisecond

// ErrNoUserDir is returned by Watch when the registry has no user directory.
var ErrNoUserDir = errors.New("workflow: no user directory to watch")

// Watch reloads the registry whenever a definition file in the user directory
// is created, written, renamed or removed. It blocks until ctx is done. The
// directory is created if it does not exist.
func (r *Registry) Watch(ctx context.Context, debounce time.Duration) error {
	if r.userDir == "" {
		return ErrNoUserDir
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if err := os.MkdirAll(r.userDir, 0o750); err != nil {
		return fmt.Errorf("creating workflow directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(r.userDir); err != nil {
		return fmt.Errorf("watching %s: %w", r.userDir, err)
	}
	log.Info(log.CatWorkflow, "Watching user workflows", "dir", r.userDir)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isDefinitionFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			log.Debug(log.CatWorkflow, "Workflow file changed", "file", event.Name, "op", event.Op.String())
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.ErrorErr(log.CatWorkflow, "Workflow watcher error", err)
		case <-timer.C:
			if err := r.Reload(); err != nil {
				log.ErrorErr(log.CatWorkflow, "Failed to reload workflows", err)
			}
		}
	}
}
