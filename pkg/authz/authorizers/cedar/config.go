package cedar

import (
	"encoding/json"
	"fmt"

	"github.com/mcpruntime/core/pkg/authz/authorizers"
)

// ConfigType is the registered name for this backend.
const ConfigType authorizers.ConfigType = "cedarv1"

// Config is the Cedar backend's configuration document: the envelope
// fields plus the cedar-specific options block.
type Config struct {
	Version string                `json:"version"`
	Type    authorizers.ConfigType `json:"type"`
	Options *ConfigOptions         `json:"cedar"`
}

// ExtractConfig parses cfg's raw configuration as a Cedar Config.
func ExtractConfig(cfg *authorizers.Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cedar: config is nil")
	}
	raw := cfg.RawConfig()
	if len(raw) == 0 {
		return nil, fmt.Errorf("cedar: config has no raw data")
	}
	var parsed Config
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("cedar: failed to parse configuration: %w", err)
	}
	if parsed.Options == nil {
		return nil, fmt.Errorf("cedar: cedar config is nil")
	}
	return &parsed, nil
}

// Factory implements authorizers.AuthorizerFactory for the Cedar
// backend, parsing raw JSON into ConfigOptions and handing it to
// NewCedarAuthorizer.
type Factory struct{}

func init() {
	authorizers.Register(ConfigType, &Factory{})
}

// ValidateConfig reports whether rawConfig parses as a valid Cedar
// configuration with at least one policy.
func (*Factory) ValidateConfig(rawConfig json.RawMessage) error {
	opts, err := parseFactoryConfig(rawConfig)
	if err != nil {
		return err
	}
	if len(opts.Policies) == 0 {
		return fmt.Errorf("cedar: at least one policy is required")
	}
	return nil
}

// CreateAuthorizer builds a Cedar authorizer from rawConfig.
// serverName is accepted to satisfy authorizers.AuthorizerFactory; the
// Cedar backend's policies are not scoped per server.
func (*Factory) CreateAuthorizer(rawConfig json.RawMessage, _ string) (authorizers.Authorizer, error) {
	opts, err := parseFactoryConfig(rawConfig)
	if err != nil {
		return nil, err
	}
	return NewCedarAuthorizer(*opts)
}

func parseFactoryConfig(rawConfig json.RawMessage) (*ConfigOptions, error) {
	var doc struct {
		Version string         `json:"version"`
		Type    string         `json:"type"`
		Cedar   *ConfigOptions `json:"cedar"`
	}
	if err := json.Unmarshal(rawConfig, &doc); err != nil {
		return nil, fmt.Errorf("cedar: failed to parse configuration: %w", err)
	}
	if doc.Cedar == nil {
		return nil, fmt.Errorf("cedar: cedar configuration is required")
	}
	return doc.Cedar, nil
}
