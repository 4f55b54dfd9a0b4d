package authorizers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigType names a registered authorizer backend, e.g. "cedarv1".
type ConfigType string

// Config is the backend-agnostic envelope every authorizer
// configuration file or inline block carries: a version, the
// registered backend type, and that backend's own options, kept as
// raw JSON until ExtractConfig (backend-specific) parses them.
type Config struct {
	Version string     `json:"version"`
	Type    ConfigType `json:"type"`

	rawConfig json.RawMessage
}

// RawConfig returns the full JSON this Config was built from, for a
// backend's ExtractConfig helper to unmarshal into its own options type.
func (c *Config) RawConfig() json.RawMessage { return c.rawConfig }

// UnmarshalJSON decodes the envelope fields and retains the full
// document as rawConfig.
func (c *Config) UnmarshalJSON(data []byte) error {
	type envelope Config
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	*c = Config(e)
	c.rawConfig = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits rawConfig when present, falling back to the
// envelope fields alone.
func (c *Config) MarshalJSON() ([]byte, error) {
	if len(c.rawConfig) > 0 {
		return c.rawConfig, nil
	}
	type envelope Config
	return json.Marshal(envelope(*c))
}

// Validate checks the envelope is well formed and names a registered
// backend type.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Type == "" {
		return fmt.Errorf("type is required")
	}
	if !IsRegistered(c.Type) {
		return fmt.Errorf("unsupported configuration type %q", c.Type)
	}
	if len(c.rawConfig) == 0 {
		return fmt.Errorf("configuration data is required")
	}
	return nil
}

// NewConfig marshals full (a map or struct carrying version/type/the
// backend's own fields) to JSON and parses it as a Config.
func NewConfig(full interface{}) (*Config, error) {
	data, err := json.Marshal(full)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal configuration: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &cfg, nil
}

// LoadConfig reads a JSON or YAML authorization configuration file
// from path and parses it as a Config.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("directory traversal is not allowed in configuration path %q", path)
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is cleaned and traversal-checked above
	if err != nil {
		return nil, fmt.Errorf("failed to read authorization configuration file: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(cleanPath)); ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON authorization configuration: %w", err)
		}
	case ".yaml", ".yml":
		var generic map[string]interface{}
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("failed to parse YAML authorization configuration: %w", err)
		}
		normalized, err := json.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize YAML authorization configuration: %w", err)
		}
		if err := json.Unmarshal(normalized, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML authorization configuration: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported file format %q", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
