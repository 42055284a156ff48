package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const configFile = "config.yaml"

// Sentinel errors
var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoDefaultSession is returned when no default is set.
	ErrNoDefaultSession = errors.New("no default session set")

	// ErrSessionExpired is returned when a stored token is past its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// Session is a stored login for one admin on one server.
type Session struct {
	Name             string    `yaml:"name"`
	ServerURL        string    `yaml:"server_url"`
	Email            string    `yaml:"email"`
	OrganizationName string    `yaml:"organization_name"`
	AdminID          string    `yaml:"admin_id"`
	AccessToken      string    `yaml:"access_token"`
	ExpiresAt        time.Time `yaml:"expires_at"`
	CreatedAt        time.Time `yaml:"created_at"`
}

// Expired reports whether the token is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Config represents the credentials configuration file.
type Config struct {
	Version        int                `yaml:"version"`
	DefaultSession string             `yaml:"default_session,omitempty"`
	Sessions       map[string]Session `yaml:"sessions"`
}

// Store manages session storage on the local filesystem.
type Store struct {
	baseDir string
}

// NewStore creates a new session store.
// If baseDir is empty, uses ~/.orgd/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".orgd")
	}

	// Tokens are bearer secrets, keep the directory private
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	store := &Store{baseDir: baseDir}

	if err := store.ensureConfig(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Msg("credential store initialized")

	return store, nil
}

// Save stores a session, replacing any session with the same name. The first
// session saved becomes the default.
func (s *Store) Save(session Session) error {
	if session.Name == "" {
		return errors.New("session name is required")
	}

	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	cfg.Sessions[session.Name] = session

	if cfg.DefaultSession == "" {
		cfg.DefaultSession = session.Name
	}

	if err := s.saveConfig(cfg); err != nil {
		return err
	}

	log.Debug().Str("name", session.Name).Str("email", session.Email).Msg("session saved")

	return nil
}

// Get retrieves a session by name.
func (s *Store) Get(name string) (*Session, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	session, ok := cfg.Sessions[name]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return &session, nil
}

// GetDefault returns the default session.
func (s *Store) GetDefault() (*Session, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.DefaultSession == "" {
		return nil, ErrNoDefaultSession
	}

	session, ok := cfg.Sessions[cfg.DefaultSession]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return &session, nil
}

// Resolve returns the named session, or the default when name is empty, and
// fails with ErrSessionExpired when its token has expired.
func (s *Store) Resolve(name string, now time.Time) (*Session, error) {
	var (
		session *Session
		err     error
	)
	if name == "" {
		session, err = s.GetDefault()
	} else {
		session, err = s.Get(name)
	}
	if err != nil {
		return nil, err
	}

	if session.Expired(now) {
		return nil, fmt.Errorf("%w: %s logged in as %s, run login again", ErrSessionExpired, session.Name, session.Email)
	}

	return session, nil
}

// List returns every session sorted by name.
func (s *Store) List() ([]Session, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(cfg.Sessions))
	for _, session := range cfg.Sessions {
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Name < sessions[j].Name
	})

	return sessions, nil
}

// DefaultName returns the name of the default session, or "" if none is set.
func (s *Store) DefaultName() (string, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.DefaultSession, nil
}

// Delete removes a session.
func (s *Store) Delete(name string) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	if _, ok := cfg.Sessions[name]; !ok {
		return ErrSessionNotFound
	}

	delete(cfg.Sessions, name)

	// Clear default if this was the default session
	if cfg.DefaultSession == name {
		cfg.DefaultSession = ""
	}

	if err := s.saveConfig(cfg); err != nil {
		return err
	}

	log.Info().Str("name", name).Msg("session deleted")

	return nil
}

// SetDefault sets the default session.
func (s *Store) SetDefault(name string) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	if _, ok := cfg.Sessions[name]; !ok {
		return ErrSessionNotFound
	}

	cfg.DefaultSession = name

	if err := s.saveConfig(cfg); err != nil {
		return err
	}

	log.Info().Str("name", name).Msg("default session set")

	return nil
}

// ensureConfig creates an empty config if it doesn't exist.
func (s *Store) ensureConfig() error {
	configPath := filepath.Join(s.baseDir, configFile)

	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	cfg := &Config{
		Version:  1,
		Sessions: make(map[string]Session),
	}

	return s.saveConfig(cfg)
}

// loadConfig reads the config file.
func (s *Store) loadConfig() (*Config, error) {
	configPath := filepath.Join(s.baseDir, configFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Sessions == nil {
		cfg.Sessions = make(map[string]Session)
	}

	return &cfg, nil
}

// saveConfig writes the config file atomically.
func (s *Store) saveConfig(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := filepath.Join(s.baseDir, configFile)
	tempPath := configPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, configPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}
