// Package credential implements an on-disk auth.json mapping provider ->
// credential, API-key/env/fallback resolution, and OAuth refresh
// coordinated across processes by an advisory file lock.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type discriminates the two credential shapes auth.json allows.
type Type string

const (
	TypeAPIKey Type = "api_key"
	TypeOAuth  Type = "oauth"
)

// Credential is one entry of auth.json. Only the fields relevant to Type
// are meaningful, mirroring message.ContentBlock's tagged-union shape.
type Credential struct {
	Type Type `json:"type"`

	// api_key
	Key string `json:"key,omitempty"`

	// oauth
	Refresh string            `json:"refresh,omitempty"`
	Access  string            `json:"access,omitempty"`
	Expires int64             `json:"expires,omitempty"` // unix millis
	Extra   map[string]string `json:"extra,omitempty"`
}

// ExpiresAt returns Expires as a time.Time.
func (c Credential) ExpiresAt() time.Time {
	return time.UnixMilli(c.Expires)
}

// Store persists auth.json at Path, mode 0600, one JSON object keyed by
// provider name.
type Store struct {
	Path   string
	Logger *zap.Logger // nil is valid; resolved to a no-op logger by log()

	mu        sync.Mutex
	overrides map[string]string // runtime override, unset on process exit
}

// NewStore builds a Store over the given auth.json path. logger may be nil;
// it is injected through the constructor rather than read from a
// package-level global.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{Path: path, Logger: logger}
}

func (s *Store) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Load reads and parses the credential file. A missing file is not an
// error; it yields an empty map so first-run resolution falls through to
// environment variables.
func (s *Store) Load() (map[string]Credential, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Credential{}, nil
		}
		return nil, fmt.Errorf("credential: read %s: %w", s.Path, err)
	}
	var creds map[string]Credential
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("credential: parse %s: %w", s.Path, err)
	}
	if creds == nil {
		creds = map[string]Credential{}
	}
	return creds, nil
}

// Save writes the credential map atomically (temp file + rename) with mode
// 0600, since auth.json holds secrets.
func (s *Store) Save(creds map[string]Credential) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("credential: create dir: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("credential: marshal: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("credential: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("credential: rename temp file: %w", err)
	}
	return nil
}

// SetOverride installs a runtime override for a provider, taking priority
// over every other resolution step until UnsetOverride is called.
func (s *Store) SetOverride(provider, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overrides == nil {
		s.overrides = map[string]string{}
	}
	s.overrides[provider] = key
}

// UnsetOverride removes a runtime override, if any.
func (s *Store) UnsetOverride(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, provider)
}

func (s *Store) override(provider string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.overrides[provider]
	return key, ok
}

// FallbackResolver is consulted last in the resolution chain.
type FallbackResolver func(provider string) (string, error)

// RefreshFunc performs a provider-specific OAuth refresh, returning the new
// credential to persist. It is supplied by the caller since each provider's
// refresh endpoint has a bespoke request/response shape.
type RefreshFunc func(provider string, cred Credential) (Credential, error)

// ErrNoCredential is returned when every resolution step is exhausted.
var ErrNoCredential = errors.New("credential: no api key available for provider")

// Resolve walks the resolution order: runtime override -> stored api key
// (with !cmd / $ENV expansion) -> stored OAuth (refreshed if expired) ->
// environment variable -> fallback resolver.
func (s *Store) Resolve(provider string, envVars []string, fallback FallbackResolver, refresh RefreshFunc) (string, error) {
	if key, ok := s.override(provider); ok {
		s.log().Debug("credential resolved from override", zap.String("provider", provider))
		return key, nil
	}

	creds, err := s.Load()
	if err != nil {
		return "", err
	}

	if cred, ok := creds[provider]; ok {
		switch cred.Type {
		case TypeAPIKey:
			s.log().Debug("credential resolved from stored api key", zap.String("provider", provider))
			return expand(cred.Key)
		case TypeOAuth:
			cred, err = s.ensureFresh(provider, cred, refresh)
			if err != nil {
				return "", err
			}
			s.log().Debug("credential resolved from stored oauth token", zap.String("provider", provider))
			return cred.Access, nil
		}
	}

	for _, name := range envVars {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			s.log().Debug("credential resolved from environment", zap.String("provider", provider), zap.String("var", name))
			return expand(v)
		}
	}

	if fallback != nil {
		return fallback(provider)
	}

	return "", fmt.Errorf("%w: %s", ErrNoCredential, provider)
}

// ensureFresh refreshes an OAuth credential under the cross-process lock if
// it has expired.
func (s *Store) ensureFresh(provider string, cred Credential, refresh RefreshFunc) (Credential, error) {
	if oauthValid(cred) {
		return cred, nil
	}
	if refresh == nil {
		return cred, fmt.Errorf("credential: %s token expired and no refresh function configured", provider)
	}
	return RefreshOAuth(s, provider, refresh)
}

// expand implements "!cmd" / "$ENV" value expansion: a value starting with
// "!" is run as a shell command whose trimmed stdout
// is the resolved value (cached for the process lifetime by the caller, if
// desired); a value of the form "$NAME" is replaced by the named
// environment variable.
func expand(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, "!"):
		out, err := exec.Command("sh", "-c", strings.TrimPrefix(value, "!")).Output()
		if err != nil {
			return "", fmt.Errorf("credential: expand command: %w", err)
		}
		return strings.TrimSpace(string(out)), nil
	case strings.HasPrefix(value, "$"):
		return os.Getenv(strings.TrimPrefix(value, "$")), nil
	default:
		return value, nil
	}
}
