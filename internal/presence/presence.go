// Package presence tracks the state of presence indicators (for example a
// household "home"/"away" entity) that gate announcements.
package presence

import (
	"maps"
	"sync"
)

// DefaultPresentValue is the indicator state that allows playback.
const DefaultPresentValue = "home"

// Source reports the current state of a presence indicator.
type Source interface {
	State(entity string) (string, bool)
}

// Store is an in-memory Source fed by the file watcher or the MQTT listener.
type Store struct {
	mu     sync.RWMutex
	states map[string]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{states: make(map[string]string)}
}

// State returns the last known state of entity.
func (s *Store) State(entity string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.states[entity]
	return v, ok
}

// Set records the state of entity.
func (s *Store) Set(entity, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[entity] = state
}

// Replace swaps the full set of states.
func (s *Store) Replace(states map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = maps.Clone(states)
	if s.states == nil {
		s.states = make(map[string]string)
	}
}

// All returns a copy of every known state.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.states)
}

// Allowed reports whether an announcement gated on indicator may play.
// A missing indicator, an entity nobody has reported, or force skip the
// check. present defaults to DefaultPresentValue.
func Allowed(src Source, indicator *string, present string, force bool) bool {
	if force || indicator == nil || *indicator == "" || src == nil {
		return true
	}
	if present == "" {
		present = DefaultPresentValue
	}
	state, ok := src.State(*indicator)
	if !ok {
		return true
	}
	return state == present
}
