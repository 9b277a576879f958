package presence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Watcher loads indicator states from a YAML file of entity: state pairs
// into a Store and reloads it whenever the file changes.
type Watcher struct {
	path    string
	store   *Store
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads path into store and starts watching its directory.
// A missing file yields an empty store; it is picked up once created.
func NewWatcher(path string, store *Store) (*Watcher, error) {
	w := &Watcher{path: filepath.Clean(path), store: store, done: make(chan struct{})}
	if err := w.Reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("presence: could not create fsnotify watcher", "err", err)
		close(w.done)
		return w, nil
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		slog.Warn("presence: could not watch directory", "path", w.path, "err", err)
	}
	w.watcher = fw
	go w.watchLoop()
	return w, nil
}

// Reload re-reads the presence file.
func (w *Watcher) Reload() error {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		w.store.Replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("presence: read %s: %w", w.path, err)
	}
	states := make(map[string]string)
	if err := yaml.Unmarshal(data, &states); err != nil {
		return fmt.Errorf("presence: parse %s: %w", w.path, err)
	}
	w.store.Replace(states)
	slog.Debug("presence: reloaded", "entities", len(states))
	return nil
}

// Close stops the file watcher.
func (w *Watcher) Close() {
	if w.watcher != nil {
		w.watcher.Close()
		<-w.done
	}
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := w.Reload(); err != nil {
					slog.Warn("presence: failed to reload", "err", err)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("presence: watcher error", "err", err)
		}
	}
}
