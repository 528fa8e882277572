package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models gigline.yml.
type Config struct {
	SLA struct {
		CriticalHours   int `yaml:"critical_hours"`
		MinHoursOverdue int `yaml:"min_hours_overdue"`
	} `yaml:"sla"`
	Cache struct {
		DashboardTTLSeconds  int `yaml:"dashboard_ttl_seconds"`
		EscalationTTLSeconds int `yaml:"escalation_ttl_seconds"`
	} `yaml:"cache"`
	Audit struct {
		MaxEntriesPerEntity int `yaml:"max_entries_per_entity"`
	} `yaml:"audit"`
	Workspace struct {
		DefaultIntegrations []string `yaml:"default_integrations"`
	} `yaml:"workspace"`
}

func (c *Config) DashboardTTL() time.Duration {
	return time.Duration(c.Cache.DashboardTTLSeconds) * time.Second
}

func (c *Config) EscalationTTL() time.Duration {
	return time.Duration(c.Cache.EscalationTTLSeconds) * time.Second
}

// Load reads and validates config from workspace, falling back to defaults
// when the file does not exist.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
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
	if c.SLA.CriticalHours <= 0 {
		return fmt.Errorf("config.sla.critical_hours must be positive")
	}
	if c.SLA.MinHoursOverdue <= 0 {
		return fmt.Errorf("config.sla.min_hours_overdue must be positive")
	}
	if c.Cache.DashboardTTLSeconds <= 0 {
		return fmt.Errorf("config.cache.dashboard_ttl_seconds must be positive")
	}
	if c.Cache.EscalationTTLSeconds <= 0 {
		return fmt.Errorf("config.cache.escalation_ttl_seconds must be positive")
	}
	if c.Audit.MaxEntriesPerEntity <= 0 {
		return fmt.Errorf("config.audit.max_entries_per_entity must be positive")
	}
	if len(c.Workspace.DefaultIntegrations) == 0 {
		return fmt.Errorf("config.workspace.default_integrations is required")
	}
	for _, p := range c.Workspace.DefaultIntegrations {
		if p == "" {
			return fmt.Errorf("config.workspace.default_integrations contains empty provider")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "gigline.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	cfg.SLA.CriticalHours = 24
	cfg.SLA.MinHoursOverdue = 1
	cfg.Cache.DashboardTTLSeconds = 30
	cfg.Cache.EscalationTTLSeconds = 3600
	cfg.Audit.MaxEntriesPerEntity = 50
	cfg.Workspace.DefaultIntegrations = []string{"slack", "github", "google_drive"}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted sections
// fall back to defaults before validation.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
