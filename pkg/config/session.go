package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// Session is what survives between commands after login.
type Session struct {
	Email        string `yaml:"email"`
	RefreshToken string `yaml:"refresh_token"`
}

// LoadSession returns the saved session, or nil when nobody is logged in.
func (c *Config) LoadSession() (*Session, error) {
	path := filepath.Join(c.Dir, sessionFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.RefreshToken == "" {
		return nil, nil
	}
	return &s, nil
}

// SaveSession stores s readable by the current user only.
func (c *Config) SaveSession(s Session) error {
	if err := os.MkdirAll(c.Dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	path := filepath.Join(c.Dir, sessionFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ClearSession forgets the saved session.
func (c *Config) ClearSession() error {
	err := os.Remove(filepath.Join(c.Dir, sessionFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
