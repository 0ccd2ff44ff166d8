package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wegman-software/geojson2mvt-go/internal/logger"
)

// RequestWatcher reports changes to load request files.
type RequestWatcher struct {
	w     *fsnotify.Watcher
	paths map[string]struct{}
}

// NewRequestWatcher watches the directories holding paths. Editors that
// save through a rename are covered because the directory is watched
// rather than the file.
func NewRequestWatcher(paths []string) (*RequestWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	rw := &RequestWatcher{w: w, paths: make(map[string]struct{})}
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		rw.paths[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return rw, nil
}

// Run calls changed with the absolute path of every watched file that is
// written or created, until ctx is cancelled.
func (rw *RequestWatcher) Run(ctx context.Context, changed func(path string)) error {
	defer rw.w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-rw.w.Events:
			if !ok {
				return nil
			}
			if _, watched := rw.paths[event.Name]; !watched {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				changed(event.Name)
			}
		case err, ok := <-rw.w.Errors:
			if !ok {
				return nil
			}
			logger.Get().Warn("Watcher error", zap.Error(err))
		}
	}
}
