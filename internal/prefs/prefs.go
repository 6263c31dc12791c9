// Package prefs persists the admin page's client state (theme, auto refresh)
// in a small JSON file.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrInvalidPreference is returned for unknown keys or disallowed values.
var ErrInvalidPreference = errors.New("invalid preference")

const (
	KeyTheme       = "theme"
	KeyAutoRefresh = "autoRefresh"
)

// allowed lists each key's permitted values; the first one is the default.
var allowed = map[string][]string{
	KeyTheme:       {"light", "dark"},
	KeyAutoRefresh: {"false", "true"},
}

// Defaults returns every key with its default value.
func Defaults() map[string]string {
	out := make(map[string]string, len(allowed))
	for k, vals := range allowed {
		out[k] = vals[0]
	}
	return out
}

// Validate checks a single key/value pair.
func Validate(key, value string) error {
	vals, ok := allowed[key]
	if !ok {
		return fmt.Errorf("%w: unknown key %q", ErrInvalidPreference, key)
	}
	for _, v := range vals {
		if v == value {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %v", ErrInvalidPreference, key, vals)
}

type Store struct {
	mu     sync.RWMutex
	Path   string
	values map[string]string
}

// Open loads the store at path. A missing file yields the defaults.
func Open(path string) (*Store, error) {
	s := &Store{Path: path}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Path == "" {
		return errors.New("preferences path empty")
	}
	values := Defaults()
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			s.values = values
			return nil
		}
		return fmt.Errorf("read preferences: %w", err)
	}
	var stored map[string]string
	if err := json.Unmarshal(b, &stored); err != nil {
		return fmt.Errorf("parse preferences: %w", err)
	}
	// Values that no longer validate fall back to the default.
	for k, v := range stored {
		if Validate(k, v) == nil {
			values[k] = v
		}
	}
	s.values = values
	return nil
}

// All returns a copy of every preference.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Get returns the value of key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set validates and persists one preference.
func (s *Store) Set(key, value string) error {
	return s.Update(map[string]string{key: value})
}

// Update validates every pair before applying any, then persists.
func (s *Store) Update(changes map[string]string) error {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := Validate(k, changes[k]); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]string, len(s.values))
	for k, v := range s.values {
		next[k] = v
	}
	for k, v := range changes {
		next[k] = v
	}
	if err := s.save(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *Store) save(values map[string]string) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preferences dir: %w", err)
		}
	}
	tmp := s.Path + ".tmp"
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return os.Rename(tmp, s.Path)
}
