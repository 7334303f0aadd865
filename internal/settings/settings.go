// Package settings owns the user-editable options of the feed: where posts
// live and who is posting.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/starford/echochamber/internal/apperr"
)

// Field keys, as persisted.
const (
	FieldPostsFolder = "postsFolder"
	FieldUsername    = "username"
	FieldDisplayName = "displayName"
)

// Settings is the persisted settings record.
type Settings struct {
	PostsFolder string `json:"postsFolder"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// Defaults returns the documented default settings.
func Defaults() Settings {
	return Settings{
		PostsFolder: "posts",
		Username:    "local",
		DisplayName: "You",
	}
}

// Store holds the current settings and writes them back on every edit.
type Store struct {
	mu      sync.RWMutex
	fs      afero.Fs
	path    string
	current Settings
}

// Open loads the settings at path on fs, merged over Defaults.
func Open(fs afero.Fs, path string) (*Store, error) {
	s := &Store{fs: fs, path: path}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory value with defaults overlaid by whatever is
// persisted. A missing file is not an error.
func (s *Store) Load() error {
	merged := Defaults()
	data, err := afero.ReadFile(s.fs, s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("settings: read %s: %w", s.path, err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &merged); err != nil {
			return fmt.Errorf("settings: parse %s: %w", s.path, err)
		}
	}

	s.mu.Lock()
	s.current = merged
	s.mu.Unlock()
	return nil
}

// Save persists the current value.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.current, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("settings: create dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.path, err)
	}
	return nil
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set updates one field and saves immediately. The value is stored as given.
func (s *Store) Set(field, value string) error {
	s.mu.Lock()
	switch field {
	case FieldPostsFolder:
		s.current.PostsFolder = value
	case FieldUsername:
		s.current.Username = value
	case FieldDisplayName:
		s.current.DisplayName = value
	default:
		s.mu.Unlock()
		return fmt.Errorf("settings: %q: %w", field, apperr.ErrUnknownField)
	}
	s.mu.Unlock()
	return s.Save()
}

// Value returns the current value of one field.
func (s Settings) Value(field string) string {
	switch field {
	case FieldPostsFolder:
		return s.PostsFolder
	case FieldUsername:
		return s.Username
	case FieldDisplayName:
		return s.DisplayName
	}
	return ""
}
