// Package config provides the configuration schema, loader, hot-reload
// watcher, and LLM provider registry for the chat gateway.
package config

import "github.com/MrWong99/chatgw/internal/mcp"

// Config is the root configuration structure for the gateway.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Models      []ModelConfig     `yaml:"models"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	RAG         RAGConfig         `yaml:"rag"`

	// MCP holds inline server entries, useful for tests and single-file
	// setups. In production the server table is normally an external JSON
	// file referenced by MCPConfigPath; see [LoadMCPServers]. When both are
	// present, the caller (internal/app) merges them, JSON file entries last.
	MCP MCPConfig `yaml:"mcp"`

	// MCPConfigPath points at a JSON file holding the MCP server table, per
	// the three-input loading model (process env, YAML LLM catalog, JSON MCP
	// table). Empty means no external file is consulted.
	MCPConfigPath string `yaml:"mcp_config_path"`

	RateLimit       RateLimitConfig       `yaml:"rate_limit"`
	CapabilityToken CapabilityTokenConfig `yaml:"capability_token"`
	AgentLoop       AgentLoopConfig       `yaml:"agent_loop"`
}

// ServerConfig holds network and logging settings for the gateway process.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP/WebSocket server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is the set of valid structured-logging verbosity levels.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the known log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// ModelConfig declares a single callable LLM model entry. Name is the
// logical identifier referenced by the router and agent loop when
// dispatching a completion request; ProviderURL selects the backend and
// model per [internal/llmcaller]'s dispatch table, e.g.
// "openai://gpt-4o" (direct OpenAI provider) or
// "anyllm://anthropic/claude-3-5-sonnet-latest" (any-llm-go backend).
type ModelConfig struct {
	// Name is the logical model identifier used elsewhere in configuration
	// and by callers (e.g. "fast", "deep-reasoner").
	Name string `yaml:"name"`

	// ProviderURL selects the backend and underlying model.
	ProviderURL string `yaml:"provider_url"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Leave empty
	// to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Tier is the default budget tier assumed for this model's tool
	// exposure before [mcphost.Host.Calibrate] has run.
	// Valid values: "fast", "standard", "deep".
	Tier TierName `yaml:"tier"`

	// FallbackProviderURLs lists additional provider URLs tried, in order,
	// when the primary ProviderURL's circuit breaker opens or a call fails.
	// Each entry is resolved through the same registry scheme dispatch as
	// ProviderURL, reusing this entry's APIKey and BaseURL.
	FallbackProviderURLs []string `yaml:"fallback_provider_urls"`
}

// TierName is the YAML-facing string form of [mcp.BudgetTier].
type TierName string

const (
	TierFast     TierName = "fast"
	TierStandard TierName = "standard"
	TierDeep     TierName = "deep"
)

// IsValid reports whether t is a recognised tier name.
func (t TierName) IsValid() bool {
	switch t {
	case "", TierFast, TierStandard, TierDeep:
		return true
	default:
		return false
	}
}

// ToBudgetTier converts t to the corresponding [mcp.BudgetTier], defaulting
// to [mcp.BudgetStandard] for an empty or unrecognised value.
func (t TierName) ToBudgetTier() mcp.BudgetTier {
	switch t {
	case TierFast:
		return mcp.BudgetFast
	case TierDeep:
		return mcp.BudgetDeep
	default:
		return mcp.BudgetStandard
	}
}

// ObjectStoreConfig configures the object store client backing file
// uploads and agent-generated artifacts.
type ObjectStoreConfig struct {
	// Bucket is the target S3 (or S3-compatible) bucket name.
	Bucket string `yaml:"bucket"`

	// Region is the AWS region passed to the SDK client config.
	Region string `yaml:"region"`

	// Endpoint overrides the default AWS endpoint, for S3-compatible
	// services (e.g. MinIO). Leave empty to use AWS's default resolver.
	Endpoint string `yaml:"endpoint"`
}

// RAGConfig configures the retrieval-augmented-generation HTTP client.
type RAGConfig struct {
	// BaseURL is the root address of the RAG query service.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates requests to the RAG service, if required.
	APIKey string `yaml:"api_key"`

	// TimeoutSeconds bounds a single RAG query. Defaults to 10 if unset.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// MCPConfig holds the list of Model Context Protocol servers to connect to.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers" json:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server and
// what authorization rules apply to its tools and prompts. Field-for-field
// compatible with [mcp.ServerConfig]; see [MCPServerConfig.ToHostConfig].
// Carries both yaml and json tags: the inline [Config.MCP] form decodes from
// YAML, the external server table ([LoadMCPServers]) decodes from JSON.
type MCPServerConfig struct {
	// Name is a unique human-readable identifier for this server (used in logs).
	Name string `yaml:"name" json:"name"`

	// Transport specifies the connection mechanism.
	// Valid values: "stdio", "streamable-http", "sse".
	Transport mcp.Transport `yaml:"transport" json:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for http/sse transports.
	Command string `yaml:"command" json:"command"`

	// Cwd is the working directory for the stdio subprocess. A relative
	// path is resolved against the configured project root.
	Cwd string `yaml:"cwd" json:"cwd"`

	// URL is the endpoint address used when Transport is "streamable-http"
	// or "sse". Ignored for stdio transport.
	URL string `yaml:"url" json:"url"`

	// Env holds additional environment variables injected into the subprocess
	// when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env" json:"env"`

	// Groups restricts which caller groups may see this server's tools and
	// prompts. Empty means public.
	Groups []string `yaml:"groups" json:"groups"`

	// IsExclusive marks a server whose tools, once explicitly selected,
	// suppress every other non-exclusive server's tools for that request.
	IsExclusive bool `yaml:"is_exclusive" json:"is_exclusive"`

	// Description is a short human-readable summary shown in tool pickers.
	Description string `yaml:"description" json:"description"`
}

// ToHostConfig converts c to the [mcp.ServerConfig] expected by [mcp.Host.RegisterServer].
func (c MCPServerConfig) ToHostConfig() mcp.ServerConfig {
	return mcp.ServerConfig{
		Name:        c.Name,
		Transport:   c.Transport,
		Command:     c.Command,
		Cwd:         c.Cwd,
		URL:         c.URL,
		Env:         c.Env,
		Groups:      c.Groups,
		IsExclusive: c.IsExclusive,
		Description: c.Description,
	}
}

// RateLimitConfig configures the per-identity token-bucket rate limiter
// applied to chat and file-upload requests.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate allowed per client identity.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// Burst is the maximum number of requests admitted instantaneously
	// above the sustained rate.
	Burst int `yaml:"burst"`
}

// CapabilityTokenConfig configures the capability token signer/verifier.
type CapabilityTokenConfig struct {
	// SigningKey is the HMAC-SHA256 key used to sign and verify tokens.
	SigningKey string `yaml:"signing_key"`

	// DefaultTTLSeconds is the token lifetime applied when a caller does
	// not request a specific expiry. Defaults to 3600 if unset.
	DefaultTTLSeconds int `yaml:"default_ttl_seconds"`
}

// AgentLoopConfig configures the step-bounded agent loop.
type AgentLoopConfig struct {
	// MaxSteps bounds the number of tool-calling iterations before the
	// loop force-terminates. Defaults to 10 if unset.
	MaxSteps int `yaml:"max_steps"`
}
