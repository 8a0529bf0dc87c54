package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"gavault/pkg/logging"
)

// DefaultDebounceInterval is the time to wait after the last change to the
// config file before reloading it.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watch reloads the plans section of the file at path whenever it changes
// and passes valid results to onChange. Invalid files are logged and
// ignored. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file, so editors and
// config-map updates that replace the file are seen.
func Watch(ctx context.Context, path string, onChange func(PlansConfig)) error {
	return watch(ctx, path, DefaultDebounceInterval, onChange)
}

func watch(ctx context.Context, path string, debounce time.Duration, onChange func(PlansConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Info("Config", "Watching %s for plan changes", path)

	name := filepath.Clean(path)
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
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logging.Debug("Config", "Config file changed: %s", event.Name)
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("Config", err, "File watcher error")

		case <-timer.C:
			plans, err := LoadPlans(path)
			if err != nil {
				logging.Warn("Config", "Ignoring invalid plan change in %s: %v", path, err)
				continue
			}
			logging.Info("Config", "Reloaded %d plan tiers from %s", len(plans.Tiers), path)
			onChange(plans)
		}
	}
}
