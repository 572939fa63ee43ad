// Package router implements the mode classification and dispatch that turns
// one incoming chat turn into the appropriate combination of RAG retrieval,
// tool execution, and LLM calls.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/chatgw/internal/agentloop"
	"github.com/MrWong99/chatgw/internal/llmcaller"
	"github.com/MrWong99/chatgw/internal/rag"
	"github.com/MrWong99/chatgw/internal/toolexec"
	"github.com/MrWong99/chatgw/pkg/types"
)

// Request describes one turn to classify and execute. Messages is the full
// conversation including the new user message as its last entry.
type Request struct {
	UserEmail string
	Model     string
	Messages  []types.Message

	Tools []types.ToolDefinition

	// DataSources are the RAG data sources the user selected, if any.
	DataSources []string

	// OnlyRAG, when true and DataSources is non-empty, skips the LLM
	// entirely and returns the retrieved passages directly.
	OnlyRAG bool

	// ToolChoiceRequired sets ToolChoice "required" on the tool-enabled
	// completion request (set e.g. when an exclusive MCP server is selected);
	// whether the model is held to it depends on the provider.
	ToolChoiceRequired bool

	AgentMode bool
	MaxSteps  int

	ToolExec      toolexec.Context
	AgentOnUpdate agentloop.UpdateFunc
}

// Response is the result of routing and executing one turn.
type Response struct {
	Content     string
	ToolCalls   []types.ToolCall
	ToolResults []toolexec.Result
	RAG         *rag.QueryResult
	Agent       *agentloop.Result
}

// Router classifies and dispatches one chat turn per the mode table: plain,
// RAG-only, RAG+LLM, tools, RAG+tools, or agent.
type Router struct {
	caller   *llmcaller.Caller
	rag      *rag.Client
	executor *toolexec.Executor
	agent    *agentloop.Loop
}

// New builds a Router. rag may be nil if only_rag turns are never expected;
// such a turn then returns an error.
func New(caller *llmcaller.Caller, ragClient *rag.Client, executor *toolexec.Executor, agent *agentloop.Loop) *Router {
	return &Router{caller: caller, rag: ragClient, executor: executor, agent: agent}
}

// Route classifies req and executes the resulting flow.
func (r *Router) Route(ctx context.Context, req Request) (*Response, error) {
	if req.AgentMode {
		return r.routeAgent(ctx, req)
	}

	if req.OnlyRAG && len(req.DataSources) > 0 {
		return r.routeOnlyRAG(ctx, req)
	}

	hasTools := len(req.Tools) > 0
	hasData := len(req.DataSources) > 0
	toolChoice := "auto"
	if req.ToolChoiceRequired {
		toolChoice = "required"
	}

	switch {
	case !hasTools && !hasData:
		text, err := r.caller.CallPlain(ctx, req.Model, req.Messages)
		if err != nil {
			return nil, fmt.Errorf("router: plain: %w", err)
		}
		return &Response{Content: text}, nil

	case !hasTools && hasData:
		text, ragResult, err := r.caller.CallWithRAG(ctx, req.Model, req.UserEmail, joinDataSources(req.DataSources), req.Messages)
		if err != nil {
			return nil, fmt.Errorf("router: call_with_rag: %w", err)
		}
		return &Response{Content: text, RAG: ragResult}, nil

	case hasTools && !hasData:
		toolResp, err := r.caller.CallWithTools(ctx, req.Model, req.Messages, req.Tools, toolChoice)
		if err != nil {
			return nil, fmt.Errorf("router: call_with_tools: %w", err)
		}
		return r.executeAndSynthesize(ctx, req, toolResp, nil)

	default: // hasTools && hasData
		toolResp, ragResult, err := r.caller.CallWithRAGAndTools(ctx, req.Model, req.UserEmail, joinDataSources(req.DataSources), req.Messages, req.Tools, toolChoice)
		if err != nil {
			return nil, fmt.Errorf("router: call_with_rag_and_tools: %w", err)
		}
		return r.executeAndSynthesize(ctx, req, toolResp, ragResult)
	}
}

func (r *Router) routeOnlyRAG(ctx context.Context, req Request) (*Response, error) {
	if r.rag == nil {
		return nil, fmt.Errorf("router: only_rag requested but no rag client configured")
	}
	result, err := r.rag.Query(ctx, req.UserEmail, joinDataSources(req.DataSources), req.Messages)
	if err != nil {
		return nil, fmt.Errorf("router: only_rag: %w", err)
	}
	return &Response{Content: result.Content, RAG: result}, nil
}

func (r *Router) routeAgent(ctx context.Context, req Request) (*Response, error) {
	history, initialContent := splitLastUser(req.Messages)
	result := r.agent.Run(ctx, initialContent, agentloop.Context{
		UserEmail: req.UserEmail,
		Model:     req.Model,
		MaxSteps:  req.MaxSteps,
		History:   history,
		Tools:     req.Tools,
		ToolExec:  req.ToolExec,
		OnUpdate:  req.AgentOnUpdate,
	})
	return &Response{Content: result.Response, Agent: &result}, nil
}

// executeAndSynthesize runs any tool calls the model requested and, unless
// only the canvas pseudo-tool was called, makes a follow-up plain call to
// synthesize a natural-language answer over the tool results.
func (r *Router) executeAndSynthesize(ctx context.Context, req Request, toolResp *llmcaller.ToolCallResult, ragResult *rag.QueryResult) (*Response, error) {
	if len(toolResp.ToolCalls) == 0 {
		return &Response{Content: toolResp.Content, RAG: ragResult}, nil
	}

	results, err := r.executor.ExecuteAll(ctx, toolResp.ToolCalls, req.ToolExec)
	if err != nil {
		return nil, fmt.Errorf("router: execute tools: %w", err)
	}

	if canvasOnly(toolResp.ToolCalls) {
		return &Response{Content: "Content displayed in canvas successfully.", ToolCalls: toolResp.ToolCalls, ToolResults: results, RAG: ragResult}, nil
	}

	synthMessages := append(append([]types.Message{}, req.Messages...), types.Message{
		Role: "assistant", Content: toolResp.Content, ToolCalls: toolResp.ToolCalls,
	})
	for _, res := range results {
		synthMessages = append(synthMessages, types.Message{Role: "tool", ToolCallID: res.ToolCallID, Content: res.Content})
	}

	text, err := r.caller.CallPlain(ctx, req.Model, synthMessages)
	if err != nil {
		return nil, fmt.Errorf("router: synthesis: %w", err)
	}
	return &Response{Content: text, ToolCalls: toolResp.ToolCalls, ToolResults: results, RAG: ragResult}, nil
}

func canvasOnly(calls []types.ToolCall) bool {
	for _, c := range calls {
		if c.Name != toolexec.ToolCanvas {
			return false
		}
	}
	return len(calls) > 0
}

// splitLastUser separates the conversation into everything before the
// newest message and that message's content, for the agent loop's
// history/initial-content split.
func splitLastUser(messages []types.Message) ([]types.Message, string) {
	if len(messages) == 0 {
		return nil, ""
	}
	last := messages[len(messages)-1]
	return messages[:len(messages)-1], last.Content
}

// joinDataSources reconciles the client's list of selected data sources with
// the RAG client's single data_source parameter by joining them into one
// comma-separated scope string; see the design ledger for why.
func joinDataSources(sources []string) string {
	return strings.Join(sources, ",")
}
