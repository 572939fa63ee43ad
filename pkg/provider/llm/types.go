package llm

// ToolDefinition describes a tool that can be offered to an LLM.
//
// This is a separate type from [types.ToolDefinition] even though the two
// shapes overlap: this one is the catalogue entry the MCP host publishes to
// the mode router and tool executor for budget-tier gating, while
// [types.ToolDefinition] is what actually travels inside a
// [CompletionRequest] on the wire to a model provider.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any

	// EstimatedDurationMs is the declared p50 latency for budget tier assignment.
	EstimatedDurationMs int

	// MaxDurationMs is the declared p99 upper bound, used as a hard timeout.
	MaxDurationMs int

	// Idempotent indicates whether the tool can be safely retried.
	Idempotent bool

	// CacheableSeconds is how long results can be cached (0 = never).
	CacheableSeconds int
}
