// Package mock provides a test double for [mcp.Host].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chatgw/internal/mcp"
	"github.com/MrWong99/chatgw/pkg/provider/llm"
)

// ExecuteToolCall records a single invocation of ExecuteTool.
type ExecuteToolCall struct {
	Name string
	Args string
}

// Host is a mock implementation of [mcp.Host].
type Host struct {
	mu sync.Mutex

	// Tools is returned by AvailableTools/AuthorizedTools.
	Tools []llm.ToolDefinition

	// Servers is returned by ListServers.
	Servers []mcp.ServerInfo

	// Prompts is returned by ListPrompts.
	Prompts []mcp.Prompt

	// GetPromptResult/GetPromptErr are returned by GetPrompt.
	GetPromptResult string
	GetPromptErr    error

	// Results maps a tool name to the [mcp.ToolResult] ExecuteTool returns
	// for it. A name absent from this map causes ExecuteTool to return an
	// error, matching a real host's behaviour for an unknown tool.
	Results map[string]*mcp.ToolResult

	// Errs maps a tool name to an error ExecuteTool should return instead of
	// consulting Results.
	Errs map[string]error

	// RegisterErr, if non-nil, is returned by RegisterServer.
	RegisterErr error

	// CalibrateErr, if non-nil, is returned by Calibrate.
	CalibrateErr error

	// ExecuteCalls records every invocation of ExecuteTool in order.
	ExecuteCalls []ExecuteToolCall

	closed bool
}

// NewHost returns a ready-to-use mock [mcp.Host] with no tools registered.
func NewHost() *Host {
	return &Host{Results: make(map[string]*mcp.ToolResult)}
}

func (h *Host) RegisterServer(context.Context, mcp.ServerConfig) error { return h.RegisterErr }

func (h *Host) AvailableTools(mcp.BudgetTier) []llm.ToolDefinition { return h.Tools }

func (h *Host) AuthorizedTools(mcp.BudgetTier, []string, []string) []llm.ToolDefinition {
	return h.Tools
}

func (h *Host) ListServers() []mcp.ServerInfo { return h.Servers }

func (h *Host) ListPrompts([]string) []mcp.Prompt { return h.Prompts }

func (h *Host) GetPrompt(context.Context, string, map[string]string) (string, error) {
	return h.GetPromptResult, h.GetPromptErr
}

// ExecuteTool records the call and returns the configured Result or error
// for name. An unregistered name returns an error.
func (h *Host) ExecuteTool(_ context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ExecuteCalls = append(h.ExecuteCalls, ExecuteToolCall{Name: name, Args: args})

	if err, ok := h.Errs[name]; ok {
		return nil, err
	}
	if result, ok := h.Results[name]; ok {
		return result, nil
	}
	return nil, errUnknownTool(name)
}

func (h *Host) Calibrate(context.Context) error { return h.CalibrateErr }

func (h *Host) Close() error {
	h.closed = true
	return nil
}

type errUnknownTool string

func (e errUnknownTool) Error() string { return "mock: unknown tool " + string(e) }

var _ mcp.Host = (*Host)(nil)
