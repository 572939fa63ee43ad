// Package llmcaller is the orchestration layer between the gateway's mode
// router and the raw [llm.Provider] backends: it resolves a logical model
// name to a provider instance, applies the streaming and tool-choice retry
// rules, and composes retrieval-augmented generation in front of a
// completion when a data source is requested.
package llmcaller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/chatgw/internal/config"
	"github.com/MrWong99/chatgw/internal/rag"
	"github.com/MrWong99/chatgw/internal/resilience"
	"github.com/MrWong99/chatgw/pkg/provider/llm"
	"github.com/MrWong99/chatgw/pkg/types"
)

// ToolCallResult is the result of [Caller.CallWithTools].
type ToolCallResult struct {
	Content   string
	ToolCalls []types.ToolCall
}

// Caller resolves logical model names to providers and performs completions
// on their behalf. It is safe for concurrent use.
type Caller struct {
	registry *config.Registry
	models   map[string]config.ModelConfig
	rag      *rag.Client

	mu        sync.Mutex
	providers map[string]llm.Provider
}

// New builds a Caller over the given model catalog (name -> entry) and
// provider registry. ragClient may be nil; RAG-composing calls will then
// always degrade to their non-RAG counterpart.
func New(registry *config.Registry, models []config.ModelConfig, ragClient *rag.Client) *Caller {
	byName := make(map[string]config.ModelConfig, len(models))
	for _, m := range models {
		byName[m.Name] = m
	}
	return &Caller{
		registry:  registry,
		models:    byName,
		rag:       ragClient,
		providers: make(map[string]llm.Provider),
	}
}

// provider resolves model to its wrapped [llm.Provider], building it on
// first use. Every model goes through a [resilience.LLMFallback] so the
// primary backend is protected by its own circuit breaker even when no
// fallback URLs are configured; additional entries in
// [config.ModelConfig.FallbackProviderURLs] are tried in order once the
// primary's breaker opens or a call fails outright.
func (c *Caller) provider(model string) (llm.Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.providers[model]; ok {
		return p, nil
	}
	entry, ok := c.models[model]
	if !ok {
		return nil, fmt.Errorf("llmcaller: unknown model %q", model)
	}
	p, err := c.registry.Create(entry)
	if err != nil {
		return nil, fmt.Errorf("llmcaller: create provider for %q: %w", model, err)
	}

	fb := resilience.NewLLMFallback(p, model, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: model},
	})
	for _, fallbackURL := range entry.FallbackProviderURLs {
		fallbackEntry := entry
		fallbackEntry.ProviderURL = fallbackURL
		fp, err := c.registry.Create(fallbackEntry)
		if err != nil {
			return nil, fmt.Errorf("llmcaller: create fallback provider %q for %q: %w", fallbackURL, model, err)
		}
		fb.AddFallback(fallbackURL, fp)
	}

	c.providers[model] = fb
	return fb, nil
}

// CallPlain sends messages to model and returns its full text response.
func (c *Caller) CallPlain(ctx context.Context, model string, messages []types.Message) (string, error) {
	p, err := c.provider(model)
	if err != nil {
		return "", err
	}
	resp, err := p.Complete(ctx, llm.CompletionRequest{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("llmcaller: call_plain: %w", err)
	}
	return resp.Content, nil
}

// CallPlainStreaming sends messages to model, invoking onDelta for each text
// fragment as it arrives, and returns the accumulated full text. If
// streaming fails before any chunk is delivered, it falls back to a single
// non-streaming call.
func (c *Caller) CallPlainStreaming(ctx context.Context, model string, messages []types.Message, onDelta func(string)) (string, error) {
	p, err := c.provider(model)
	if err != nil {
		return "", err
	}

	chunks, err := p.StreamCompletion(ctx, llm.CompletionRequest{Messages: messages})
	if err != nil {
		return c.CallPlain(ctx, model, messages)
	}

	var sb strings.Builder
	received := false
	for chunk := range chunks {
		if chunk.FinishReason == "error" {
			if received {
				return sb.String(), fmt.Errorf("llmcaller: call_plain_streaming: stream error after partial output: %s", chunk.Text)
			}
			return c.CallPlain(ctx, model, messages)
		}
		if chunk.Text != "" {
			received = true
			sb.WriteString(chunk.Text)
			if onDelta != nil {
				onDelta(chunk.Text)
			}
		}
	}
	if !received {
		return c.CallPlain(ctx, model, messages)
	}
	return sb.String(), nil
}

// CallWithTools sends messages and tools to model with the given tool
// choice ("auto", "required", or "none"). If toolChoice is "required" and
// the provider rejects it, the call is retried once with "auto".
func (c *Caller) CallWithTools(ctx context.Context, model string, messages []types.Message, tools []types.ToolDefinition, toolChoice string) (*ToolCallResult, error) {
	p, err := c.provider(model)
	if err != nil {
		return nil, err
	}

	req := llm.CompletionRequest{Messages: messages, Tools: tools, ToolChoice: toolChoice}
	resp, err := p.Complete(ctx, req)
	if err != nil && toolChoice == "required" {
		req.ToolChoice = "auto"
		resp, err = p.Complete(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("llmcaller: call_with_tools: %w", err)
	}
	return &ToolCallResult{Content: resp.Content, ToolCalls: resp.ToolCalls}, nil
}

// CallWithRAG retrieves context from dataSource via the RAG client, prepends
// it as a system message, and performs a plain completion. If retrieval
// fails, it degrades to [Caller.CallPlain] without the retrieved context.
func (c *Caller) CallWithRAG(ctx context.Context, model, user, dataSource string, messages []types.Message) (string, *rag.QueryResult, error) {
	augmented, result, err := c.augmentWithRAG(ctx, user, dataSource, messages)
	if err != nil {
		text, plainErr := c.CallPlain(ctx, model, messages)
		return text, nil, plainErr
	}
	text, err := c.CallPlain(ctx, model, augmented)
	return text, result, err
}

// CallWithRAGAndTools is [Caller.CallWithRAG] composed with tool calling: it
// retrieves context, then performs a tool-enabled completion. Retrieval
// failures degrade to [Caller.CallWithTools] without the retrieved context.
func (c *Caller) CallWithRAGAndTools(ctx context.Context, model, user, dataSource string, messages []types.Message, tools []types.ToolDefinition, toolChoice string) (*ToolCallResult, *rag.QueryResult, error) {
	augmented, result, err := c.augmentWithRAG(ctx, user, dataSource, messages)
	if err != nil {
		res, toolErr := c.CallWithTools(ctx, model, messages, tools, toolChoice)
		return res, nil, toolErr
	}
	res, err := c.CallWithTools(ctx, model, augmented, tools, toolChoice)
	return res, result, err
}

var errNoRAGClient = errors.New("llmcaller: no rag client configured")

// augmentWithRAG queries the RAG backend and returns messages with the
// retrieved content prepended as a system message.
func (c *Caller) augmentWithRAG(ctx context.Context, user, dataSource string, messages []types.Message) ([]types.Message, *rag.QueryResult, error) {
	if c.rag == nil {
		return nil, nil, errNoRAGClient
	}
	result, err := c.rag.Query(ctx, user, dataSource, messages)
	if err != nil {
		return nil, nil, fmt.Errorf("llmcaller: rag query: %w", err)
	}

	augmented := make([]types.Message, 0, len(messages)+1)
	augmented = append(augmented, types.Message{
		Role:    "system",
		Content: "Relevant retrieved context:\n" + result.Content,
	})
	augmented = append(augmented, messages...)
	return augmented, result, nil
}
