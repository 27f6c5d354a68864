package blocksql

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/blocksql/internal/loader"
)

// WatchDebounce is how long Watch waits for a file to settle before reporting it.
const WatchDebounce = 100 * time.Millisecond

// Watch starts watching Dir for template changes. Changed files are evicted
// from the cache at once; onChange, if not nil, is called with the template
// name once the file has settled. Watching stops when ctx is done.
func (s *Snaql) Watch(ctx context.Context, onChange func(name string)) error {
	if s.fs == nil {
		return errors.New("watch requires the file system loader")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, dir := range s.fs.SearchPaths() {
		if err := watchDir(watcher, dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	go s.watchLoop(ctx, watcher, onChange)
	return nil
}

// watchDir recursively adds a directory to the watcher, skipping hidden ones.
func watchDir(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func (s *Snaql) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, onChange func(string)) {
	defer func() { _ = watcher.Close() }()

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchDir(watcher, event.Name); err != nil {
						s.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}

			if filepath.Ext(event.Name) != loader.Ext {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			name, ok := s.templateName(event.Name)
			if !ok {
				continue
			}
			s.Invalidate(name)
			s.logger.Debug("template changed", "template", name, "op", event.Op.String())

			if onChange == nil {
				continue
			}
			mu.Lock()
			if t, ok := timers[name]; ok {
				t.Stop()
			}
			timers[name] = time.AfterFunc(WatchDebounce, func() {
				mu.Lock()
				delete(timers, name)
				mu.Unlock()
				if ctx.Err() == nil {
					onChange(name)
				}
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

// templateName maps a file path to the template name it is loaded by.
func (s *Snaql) templateName(path string) (string, bool) {
	for _, dir := range s.fs.SearchPaths() {
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.ToSlash(rel), true
	}
	return "", false
}
