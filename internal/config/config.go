package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models colabora.yml.
type Config struct {
	API struct {
		BasePath string `yaml:"base_path"`
	} `yaml:"api"`
	Auth struct {
		AccessTTLMinutes int `yaml:"access_ttl_minutes"`
		RefreshTTLHours  int `yaml:"refresh_ttl_hours"`
	} `yaml:"auth"`
	RequestTypes struct {
		Catalog map[string]struct {
			Label string `yaml:"label"`
		} `yaml:"catalog"`
	} `yaml:"request_types"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one event-delivery target. An empty Events list means
// every event type is delivered.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run colab init or create it by hand", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Auth.AccessTTLMinutes <= 0 {
		return fmt.Errorf("config.auth.access_ttl_minutes must be positive")
	}
	if c.Auth.RefreshTTLHours <= 0 {
		return fmt.Errorf("config.auth.refresh_ttl_hours must be positive")
	}
	if len(c.RequestTypes.Catalog) == 0 {
		return fmt.Errorf("config.request_types.catalog is required")
	}
	for code, entry := range c.RequestTypes.Catalog {
		if code == "" {
			return fmt.Errorf("config.request_types.catalog contains empty code")
		}
		if entry.Label == "" {
			return fmt.Errorf("request type %s has empty label", code)
		}
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "colabora.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `api:
  base_path: /v1

auth:
  access_ttl_minutes: 30
  refresh_ttl_hours: 168

request_types:
  catalog:
    ECON:
      label: "Monetary contribution"
    MAT:
      label: "Materials"
    MO:
      label: "Labor"
    OTRO:
      label: "Other"

webhooks: []
`
