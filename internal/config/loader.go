package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	for i := range cfg.Models {
		cfg.Models[i].APIKey = os.ExpandEnv(cfg.Models[i].APIKey)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Models
	modelNamesSeen := make(map[string]int, len(cfg.Models))
	for i, model := range cfg.Models {
		prefix := fmt.Sprintf("models[%d]", i)
		if model.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := modelNamesSeen[model.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of models[%d]", prefix, model.Name, prev))
		} else {
			modelNamesSeen[model.Name] = i
		}
		if model.ProviderURL == "" {
			errs = append(errs, fmt.Errorf("%s.provider_url is required", prefix))
		} else if !strings.Contains(model.ProviderURL, "://") {
			errs = append(errs, fmt.Errorf("%s.provider_url %q must be of the form scheme://model", prefix, model.ProviderURL))
		}
		if model.Tier != "" && !model.Tier.IsValid() {
			errs = append(errs, fmt.Errorf("%s.tier %q is invalid; valid values: fast, standard, deep", prefix, model.Tier))
		}
	}
	if len(cfg.Models) == 0 {
		slog.Warn("no models configured; the gateway will not be able to serve completions")
	}

	// Object store
	if cfg.ObjectStore.Bucket == "" {
		slog.Warn("object_store.bucket is empty; file upload/download endpoints will fail")
	}

	// RAG
	if cfg.RAG.BaseURL != "" && cfg.RAG.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("rag.timeout_seconds must be non-negative"))
	}

	// MCP servers (inline form; the external JSON table loaded via
	// LoadMCPServers is validated the same way by validateMCPServers).
	errs = append(errs, validateMCPServers("mcp.servers", cfg.MCP.Servers)...)

	// Rate limit
	if cfg.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_minute must be non-negative"))
	}
	if cfg.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.burst must be non-negative"))
	}

	// Capability token
	if cfg.CapabilityToken.SigningKey == "" {
		slog.Warn("capability_token.signing_key is empty; file capability tokens will not be verifiable")
	}

	// Agent loop
	if cfg.AgentLoop.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("agent_loop.max_steps must be non-negative"))
	}

	return errors.Join(errs...)
}
