// Package watcher turns filesystem notifications under a repository root into
// events on the event bus, so clients see changes made outside the service.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/events"
)

// Watcher recursively watches one repository root.
type Watcher struct {
	repository string
	root       string
	skip       func(name string) bool
	pub        events.Publisher
	fsw        *fsnotify.Watcher
}

// Config configures a Watcher.
type Config struct {
	Repository string
	Root       string

	// Skip reports whether a base name is reserved (not watched, not reported).
	// Nil skips nothing.
	Skip func(name string) bool
}

// New creates a watcher and registers every directory under cfg.Root.
func New(cfg Config, pub events.Publisher) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	skip := cfg.Skip
	if skip == nil {
		skip = func(string) bool { return false }
	}

	w := &Watcher{
		repository: cfg.Repository,
		root:       filepath.Clean(cfg.Root),
		skip:       skip,
		pub:        pub,
		fsw:        fsw,
	}

	if err := w.addTree(w.root, false); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes notifications until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	logger.Info("Watching repository %s at %s", w.repository, w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error on repository %s: %v", w.repository, err)
		}
	}
}

// WatchList returns the directories currently watched.
func (w *Watcher) WatchList() []string {
	return w.fsw.WatchList()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, ok := w.relative(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			// Files created before the directory was added are reported by the walk
			if err := w.addTree(ev.Name, true); err != nil {
				logger.Warn("Failed to watch new directory %s: %v", ev.Name, err)
			}
		}
		w.publish(events.Changed, rel)

	case ev.Has(fsnotify.Write):
		w.publish(events.Changed, rel)

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// fsnotify drops watches on removed directories itself
		w.publish(events.Removed, rel)
	}
}

func (w *Watcher) publish(t events.Type, rel string) {
	logger.Debug("Watcher: %s %s in %s", t, rel, w.repository)
	w.pub.Publish(events.Event{Type: t, Repository: w.repository, Path: rel})
}

// relative maps an absolute path to its root-relative form, rejecting
// reserved names anywhere along the way.
func (w *Watcher) relative(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.skip(part) {
			return "", false
		}
	}
	return "/" + filepath.ToSlash(rel), true
}

func (w *Watcher) addTree(dir string, report bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path != dir && w.skip(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		if report && path != dir {
			if rel, ok := w.relative(path); ok {
				w.publish(events.Changed, rel)
			}
		}
		return nil
	})
}
