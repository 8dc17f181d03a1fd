package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads, substitutes, defaults, and validates the configuration file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration path is required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	return LoadFromString(string(data))
}

// LoadFromString parses a YAML configuration document.
func LoadFromString(yamlContent string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(yamlContent), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	substituteEnvVars(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} placeholders with environment
// variable values in the fields that carry secrets and endpoints.
func substituteEnvVars(cfg *Config) {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.APIKey != "" {
			p.APIKey = os.ExpandEnv(p.APIKey)
		}
		if p.BaseURL != "" {
			p.BaseURL = os.ExpandEnv(p.BaseURL)
		}
	}
	if cfg.Storage.DSN != "" {
		cfg.Storage.DSN = os.ExpandEnv(cfg.Storage.DSN)
	}
	if cfg.Storage.Path != "" {
		cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)
	}
}

// applyDefaults fills unset values with the documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Engine.MaxRounds == 0 {
		cfg.Engine.MaxRounds = 3
	}
	if cfg.Engine.Challengers == 0 {
		cfg.Engine.Challengers = 2
	}
	if cfg.Engine.Protocol == "" {
		cfg.Engine.Protocol = "consensus"
	}
	if cfg.Engine.MaxTokens == 0 {
		cfg.Engine.MaxTokens = 4096
	}
	if cfg.Engine.Temperature == 0 {
		cfg.Engine.Temperature = 0.7
	}
	if cfg.Engine.Voting.Aggregation == "" {
		cfg.Engine.Voting.Aggregation = "majority"
	}
	if cfg.Engine.Decompose.MaxSubtasks == 0 {
		cfg.Engine.Decompose.MaxSubtasks = 7
	}
	if cfg.Engine.Decompose.Parallel == nil {
		parallel := true
		cfg.Engine.Decompose.Parallel = &parallel
	}
	if cfg.Engine.Decompose.Rounds == 0 {
		cfg.Engine.Decompose.Rounds = 1
	}
	if cfg.Engine.Decompose.Synthesis == "" {
		cfg.Engine.Decompose.Synthesis = "merge"
	}
	for i := range cfg.Providers {
		if cfg.Providers[i].ID == "" {
			cfg.Providers[i].ID = cfg.Providers[i].Type
		}
	}
}
