// Package config loads the datasettool configuration file. YAML (.yaml,
// .yml) and TOML (.toml) files are supported; both use the same field names.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/greg-hellings/datasettool/pkg/backend"
)

// DefaultTimeout bounds a single backend request when the file sets none.
const DefaultTimeout = 30 * time.Second

// DefaultCredentialKey is the stored-token key used when the file sets none.
const DefaultCredentialKey = "backend"

// Config represents the top-level configuration file structure
type Config struct {
	Backend BackendConfig `yaml:"backend" toml:"backend"`
	Project ProjectConfig `yaml:"project" toml:"project"`
	Session SessionConfig `yaml:"session" toml:"session"`
}

// BackendConfig describes the panel-dataset REST service.
type BackendConfig struct {
	BaseURL string `yaml:"baseURL" toml:"baseURL"`
	Token   string `yaml:"token" toml:"token"`
	// Timeout is a Go duration string such as "30s".
	Timeout      string `yaml:"timeout" toml:"timeout"`
	RandomResult *bool  `yaml:"randomResult" toml:"randomResult"`
	// CredentialKey names the stored token used when Token is empty.
	CredentialKey string `yaml:"credentialKey" toml:"credentialKey"`
}

// ProjectConfig selects the project and export to work on. Both may be left
// empty and supplied on the command line instead.
type ProjectConfig struct {
	ProjectUUID string `yaml:"projectUUID" toml:"projectUUID"`
	ExportUUID  string `yaml:"exportUUID" toml:"exportUUID"`
}

// SessionConfig controls the persisted session state.
type SessionConfig struct {
	StatePath string `yaml:"statePath" toml:"statePath"`
}

// LoadFromFile reads a configuration file and returns the parsed Config. The
// format is chosen by file extension; unknown extensions are parsed as YAML.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills unset values and validates the backend section.
func (c *Config) ApplyDefaults() error {
	c.Backend.BaseURL = strings.TrimSpace(c.Backend.BaseURL)
	if c.Backend.Timeout == "" {
		c.Backend.Timeout = DefaultTimeout.String()
	}
	if c.Backend.RandomResult == nil {
		random := true
		c.Backend.RandomResult = &random
	}
	if c.Backend.CredentialKey == "" {
		c.Backend.CredentialKey = DefaultCredentialKey
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend: missing required field 'baseURL'")
	}
	if _, err := c.timeout(); err != nil {
		return err
	}
	return nil
}

func (c *Config) timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Backend.Timeout)
	if err != nil {
		return 0, fmt.Errorf("backend: invalid timeout %q: %w", c.Backend.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("backend: timeout must not be negative: %s", c.Backend.Timeout)
	}
	return d, nil
}

// BackendConfig converts the file settings into a backend client
// configuration. token overrides the file token when non-empty.
func (c *Config) BackendConfig(token string) (backend.Config, error) {
	d, err := c.timeout()
	if err != nil {
		return backend.Config{}, err
	}
	if token == "" {
		token = c.Backend.Token
	}
	random := true
	if c.Backend.RandomResult != nil {
		random = *c.Backend.RandomResult
	}
	return backend.Config{
		BaseURL:      c.Backend.BaseURL,
		Token:        token,
		Timeout:      d,
		RandomResult: random,
	}, nil
}
