// Package config loads the deliberation configuration from YAML with
// environment-variable substitution, defaulting, and validation.
package config

import (
	"fmt"
)

// Config is the root configuration.
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
	Engine    EngineConfig     `yaml:"engine"`
	Storage   StorageConfig    `yaml:"storage"`
}

// ProviderConfig describes one provider and the models it serves.
type ProviderConfig struct {
	// Type selects the implementation: anthropic, openai, or mock.
	Type string `yaml:"type"`
	// ID overrides the provider id; defaults to Type.
	ID     string `yaml:"id,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
	// BaseURL overrides the API endpoint; used for OpenAI-compatible servers.
	BaseURL string `yaml:"base_url,omitempty"`
	// RateLimit caps registry lookups per 60-second window. 0 = unlimited.
	RateLimit int           `yaml:"rate_limit,omitempty"`
	Models    []ModelConfig `yaml:"models"`
}

// ModelConfig describes one model's pricing and capabilities.
type ModelConfig struct {
	ID               string  `yaml:"id"`
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
	SupportsJSON     bool    `yaml:"supports_json"`
	SupportsTools    bool    `yaml:"supports_tools"`
	ProposerEligible bool    `yaml:"proposer_eligible"`
}

// EngineConfig tunes the deliberation engine.
type EngineConfig struct {
	MaxRounds   int     `yaml:"max_rounds"`
	Challengers int     `yaml:"challengers"`
	Protocol    string  `yaml:"protocol"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Classify    bool    `yaml:"classify"`
	// CostHardLimit is the registry's cumulative cost ceiling. 0 = unlimited.
	CostHardLimit float64 `yaml:"cost_hard_limit"`

	Voting    VotingConfig    `yaml:"voting"`
	Decompose DecomposeConfig `yaml:"decompose"`
}

// VotingConfig tunes the voting protocol.
type VotingConfig struct {
	Aggregation string `yaml:"aggregation"`
}

// DecomposeConfig tunes the decomposition protocol.
type DecomposeConfig struct {
	MaxSubtasks int `yaml:"max_subtasks"`
	// Parallel is a pointer so an explicit false survives defaulting.
	Parallel *bool `yaml:"parallel"`
	Rounds   int   `yaml:"rounds"`
	// Synthesis is "merge" or "prioritize".
	Synthesis string `yaml:"synthesis"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "", "memory", "sqlite", or "postgres". Empty disables
	// persistence.
	Backend string `yaml:"backend"`
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn,omitempty"`
	// Path is the SQLite database file.
	Path string `yaml:"path,omitempty"`
	// OwnerID scopes stored deliberations.
	OwnerID string `yaml:"owner_id,omitempty"`
}

// ConfigurationError reports a malformed configuration.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Msg)
}

// Validate checks the configuration for contradictions a deliberation
// would trip over at runtime.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return &ConfigurationError{Field: "providers", Msg: "at least one provider is required"}
	}

	seen := make(map[string]bool)
	for i, p := range c.Providers {
		field := fmt.Sprintf("providers[%d]", i)
		switch p.Type {
		case "anthropic", "openai", "mock":
		case "":
			return &ConfigurationError{Field: field + ".type", Msg: "provider type is required"}
		default:
			return &ConfigurationError{Field: field + ".type", Msg: fmt.Sprintf("unknown provider type %q", p.Type)}
		}
		id := p.ID
		if id == "" {
			id = p.Type
		}
		if seen[id] {
			return &ConfigurationError{Field: field + ".id", Msg: fmt.Sprintf("duplicate provider id %q", id)}
		}
		seen[id] = true

		if p.Type != "mock" && p.APIKey == "" {
			return &ConfigurationError{Field: field + ".api_key", Msg: "api key is required"}
		}
		if p.RateLimit < 0 {
			return &ConfigurationError{Field: field + ".rate_limit", Msg: "rate limit cannot be negative"}
		}
		if len(p.Models) == 0 {
			return &ConfigurationError{Field: field + ".models", Msg: "at least one model is required"}
		}
		for j, m := range p.Models {
			mfield := fmt.Sprintf("%s.models[%d]", field, j)
			if m.ID == "" {
				return &ConfigurationError{Field: mfield + ".id", Msg: "model id is required"}
			}
			if m.InputPerMillion < 0 || m.OutputPerMillion < 0 {
				return &ConfigurationError{Field: mfield, Msg: "model cost cannot be negative"}
			}
		}
	}

	switch c.Engine.Protocol {
	case "consensus", "voting", "decompose", "auto":
	default:
		return &ConfigurationError{Field: "engine.protocol", Msg: fmt.Sprintf("unknown protocol %q", c.Engine.Protocol)}
	}
	switch c.Engine.Voting.Aggregation {
	case "majority", "weighted":
	default:
		return &ConfigurationError{Field: "engine.voting.aggregation", Msg: fmt.Sprintf("unknown aggregation %q", c.Engine.Voting.Aggregation)}
	}
	if c.Engine.MaxRounds < 1 {
		return &ConfigurationError{Field: "engine.max_rounds", Msg: "must be at least 1"}
	}
	if c.Engine.CostHardLimit < 0 {
		return &ConfigurationError{Field: "engine.cost_hard_limit", Msg: "cannot be negative"}
	}
	if c.Engine.Decompose.MaxSubtasks < 2 {
		return &ConfigurationError{Field: "engine.decompose.max_subtasks", Msg: "must be at least 2"}
	}
	switch c.Engine.Decompose.Synthesis {
	case "merge", "prioritize":
	default:
		return &ConfigurationError{Field: "engine.decompose.synthesis", Msg: fmt.Sprintf("unknown synthesis strategy %q", c.Engine.Decompose.Synthesis)}
	}

	switch c.Storage.Backend {
	case "", "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return &ConfigurationError{Field: "storage.path", Msg: "sqlite backend requires a path"}
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return &ConfigurationError{Field: "storage.dsn", Msg: "postgres backend requires a dsn"}
		}
	default:
		return &ConfigurationError{Field: "storage.backend", Msg: fmt.Sprintf("unknown backend %q", c.Storage.Backend)}
	}
	return nil
}
