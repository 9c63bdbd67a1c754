// Package session holds the identity of the current actor.
//
// A Session is loaded once at startup and treated as read-only afterwards.
// Without a valid Session no task cache may be populated or mutated.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSession is returned when no usable session is available.
var ErrNoSession = errors.New("not logged in")

// Session is the current actor's identity and credential.
type Session struct {
	ActorID string `json:"user_id"`
	Token   string `json:"token"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Valid reports whether the session carries both an actor and a credential.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.ActorID) != "" && strings.TrimSpace(s.Token) != ""
}

// Provider supplies the persisted session at startup.
type Provider interface {
	// Load returns the stored session, or ErrNoSession if there is none.
	Load() (Session, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() (Session, error)

// Load implements Provider.
func (f ProviderFunc) Load() (Session, error) { return f() }

// Static returns a Provider that always yields s.
func Static(s Session) Provider {
	return ProviderFunc(func() (Session, error) {
		if !s.Valid() {
			return Session{}, ErrNoSession
		}
		return s, nil
	})
}

// FileProvider stores the session as JSON in a single file.
type FileProvider struct {
	Path string
}

// Load reads the session file.
func (p FileProvider) Load() (Session, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("invalid session file %s: %w", p.Path, err)
	}
	if !s.Valid() {
		return Session{}, ErrNoSession
	}
	return s, nil
}

// Save writes the session file with mode 0600, creating the directory if needed.
func (p FileProvider) Save(s Session) error {
	if !s.Valid() {
		return errors.New("refusing to save a session without actor or token")
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.Path, data, 0600)
}

// Remove deletes the session file. A missing file is not an error.
func (p FileProvider) Remove() error {
	if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether the session file is present.
func (p FileProvider) Exists() bool {
	_, err := os.Stat(p.Path)
	return err == nil
}
