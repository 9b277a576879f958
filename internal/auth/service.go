// Package auth implements API-key authentication for the HTTP API. Keys are
// read from a YAML file that is reloaded whenever it changes.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// keysFile is the on-disk format: a map of client name to access key.
type keysFile struct {
	Keys map[string]string `yaml:"keys"`
}

// Service verifies API keys.
type Service struct {
	mu      sync.RWMutex
	path    string
	keys    map[string]string
	watcher *fsnotify.Watcher
}

// NewService loads the key file at path and watches it for changes. An
// empty path or a missing file leaves the API open.
func NewService(path string) (*Service, error) {
	s := &Service{keys: make(map[string]string)}
	if path == "" {
		return s, nil
	}
	s.path = filepath.Clean(path)

	if err := s.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("auth: could not create fsnotify watcher", "err", err)
		return s, nil
	}
	s.watcher = watcher
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		slog.Warn("auth: could not watch key file dir", "err", err)
	}
	go s.watchLoop()
	return s, nil
}

// Reload re-reads the key file.
func (s *Service) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.keys = make(map[string]string)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: read %s: %w", s.path, err)
	}

	var f keysFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("auth: parse %s: %w", s.path, err)
	}
	keys := make(map[string]string, len(f.Keys))
	for name, key := range f.Keys {
		if key != "" {
			keys[name] = key
		}
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	slog.Debug("auth: reloaded keys", "count", len(keys))
	return nil
}

// IsOpenMode reports whether no keys are configured, in which case every
// request is allowed.
func (s *Service) IsOpenMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys) == 0
}

// VerifyKey returns the client name owning key. Comparison is constant
// time per key.
func (s *Service) VerifyKey(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, k := range s.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
			return name, true
		}
	}
	return "", false
}

// Close stops the file watcher.
func (s *Service) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *Service) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				if err := s.Reload(); err != nil {
					slog.Warn("auth: failed to reload keys", "err", err)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("auth: watcher error", "err", err)
		}
	}
}
