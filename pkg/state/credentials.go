// Package state provides persisted application state for datasettool: the
// editing-session file and backend credential lookup.
package state

// credentials.go
//
// Credential storage for backend bearer tokens. Keys name backends; the
// configuration selects one with backend.credentialKey (BackendCredentialKey
// by default). Avoid logging raw tokens; use RedactToken before emitting
// values.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// TokenEnvVar overrides every other token source.
const TokenEnvVar = "DATASET_TOOL_TOKEN"

// BackendCredentialKey is the default store key of the backend token.
const BackendCredentialKey = "backend"

// CredentialStore defines the contract for token persistence.
type CredentialStore interface {
	// SetToken stores or updates a token for a given key.
	SetToken(key string, token string) error
	// GetToken retrieves a token. Returns ErrCredentialNotFound if missing.
	GetToken(key string) (string, error)
	// DeleteToken removes a stored token (idempotent).
	DeleteToken(key string) error
	// ListKeys returns the keys that have tokens stored, sorted.
	ListKeys() ([]string, error)
}

// ErrCredentialNotFound is returned when a token for a key does not exist.
var ErrCredentialNotFound = errors.New("credential not found")

// FileCredentialStore keeps tokens in a 0600 YAML file under the user config
// directory. Every call reads or rewrites the whole file.
type FileCredentialStore struct {
	mu   sync.Mutex
	path string
}

type credentialsFile struct {
	Tokens map[string]string `yaml:"tokens"`
}

// DefaultCredentialsPath returns the OS-specific default path of the
// credentials file.
func DefaultCredentialsPath() string {
	return filepath.Join(userConfigDir(), "datasettool", "credentials.yaml")
}

// NewFileCredentialStore creates a store backed by path. An empty path means
// DefaultCredentialsPath. The file is created on the first SetToken.
func NewFileCredentialStore(path string) (*FileCredentialStore, error) {
	if path == "" {
		path = DefaultCredentialsPath()
	}
	if err := confined(path); err != nil {
		return nil, err
	}
	return &FileCredentialStore{path: path}, nil
}

func (s *FileCredentialStore) load() (map[string]string, error) {
	// #nosec G304 path confined to user config directory in the constructor
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("credentials: read failed: %w", err)
	}
	var f credentialsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credentials: parse failed: %w", err)
	}
	if f.Tokens == nil {
		f.Tokens = map[string]string{}
	}
	return f.Tokens, nil
}

func (s *FileCredentialStore) save(tokens map[string]string) error {
	out, err := yaml.Marshal(credentialsFile{Tokens: tokens})
	if err != nil {
		return fmt.Errorf("credentials: marshal failed: %w", err)
	}
	return writeFileAtomic(s.path, out, ".credentials.tmp-*")
}

// SetToken stores or updates the token for key.
func (s *FileCredentialStore) SetToken(key string, token string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return err
	}
	tokens[key] = token
	return s.save(tokens)
}

// GetToken returns the token for key or ErrCredentialNotFound.
func (s *FileCredentialStore) GetToken(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := tokens[key]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return v, nil
}

// DeleteToken removes the token for key; missing keys are ignored.
func (s *FileCredentialStore) DeleteToken(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := tokens[key]; !ok {
		return nil
	}
	delete(tokens, key)
	return s.save(tokens)
}

// ListKeys returns all keys that currently have tokens.
func (s *FileCredentialStore) ListKeys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tokens))
	for k := range tokens {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// ResolveBackendToken returns the backend bearer token.
// Lookup order:
//  1. Environment variable DATASET_TOOL_TOKEN
//  2. The token from the configuration file
//  3. CredentialStore (if provided) under key, BackendCredentialKey if empty
//
// It returns an empty string if none is found.
func ResolveBackendToken(configToken string, cs CredentialStore, key string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(TokenEnvVar)); v != "" {
		return v, nil
	}
	if tok := strings.TrimSpace(configToken); tok != "" {
		return tok, nil
	}
	if cs != nil {
		if key == "" {
			key = BackendCredentialKey
		}
		tok, err := cs.GetToken(key)
		if err == nil {
			return strings.TrimSpace(tok), nil
		}
		if !errors.Is(err, ErrCredentialNotFound) {
			return "", fmt.Errorf("credential store failure: %w", err)
		}
	}
	return "", nil
}

// RedactToken safely redacts a token for logging purposes.
func RedactToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 4 {
		return "***"
	}
	return tok[:4] + "***"
}
