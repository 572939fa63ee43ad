package agentloop_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/chatgw/internal/agentloop"
	"github.com/MrWong99/chatgw/internal/config"
	"github.com/MrWong99/chatgw/internal/llmcaller"
	"github.com/MrWong99/chatgw/internal/mcp"
	mcpmock "github.com/MrWong99/chatgw/internal/mcp/mock"
	"github.com/MrWong99/chatgw/internal/toolexec"
	"github.com/MrWong99/chatgw/pkg/objectstore/mock"
	"github.com/MrWong99/chatgw/pkg/provider/llm"
	"github.com/MrWong99/chatgw/pkg/types"
)

// scriptedProvider returns one CompletionResponse per call, in order, cycling
// to the last entry once exhausted. Each call is recorded for assertions.
type scriptedProvider struct {
	responses []*llm.CompletionResponse
	calls     []llm.CompletionRequest
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.calls = append(p.calls, req)
	idx := len(p.calls) - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

func (p *scriptedProvider) StreamCompletion(context.Context, llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return nil, errors.New("not implemented")
}
func (p *scriptedProvider) CountTokens([]types.Message) (int, error) { return 0, nil }
func (p *scriptedProvider) Capabilities() types.ModelCapabilities    { return types.ModelCapabilities{} }

func newLoop(t *testing.T, p llm.Provider, host *mcpmock.Host) *agentloop.Loop {
	t.Helper()
	reg := config.NewRegistry()
	reg.Register("mock", func(config.ModelConfig) (llm.Provider, error) { return p, nil })
	caller := llmcaller.New(reg, []config.ModelConfig{{Name: "fast", ProviderURL: "mock://m"}}, nil)
	store := mock.NewStore()
	executor := toolexec.New(host, store, nil)
	return agentloop.New(caller, executor)
}

func TestRun_CompletesViaAllWorkDone(t *testing.T) {
	t.Parallel()
	host := mcpmock.NewHost()
	host.Results["srv_a"] = &mcp.ToolResult{Content: `{"ok":true}`}

	p := &scriptedProvider{responses: []*llm.CompletionResponse{
		{ToolCalls: []types.ToolCall{{ID: "1", Name: "srv_a", Arguments: "{}"}}},
		{ToolCalls: []types.ToolCall{{ID: "2", Name: toolexec.ToolAllWorkDone, Arguments: "{}"}}},
		{Content: "All done, here is the summary."},
	}}

	var events []string
	result := newLoop(t, p, host).Run(context.Background(), "please do the thing", agentloop.Context{
		UserEmail: "alice@example.com",
		Model:     "fast",
		MaxSteps:  3,
		OnUpdate:  func(event string, _ map[string]any) { events = append(events, event) },
	})

	if result.Reason != agentloop.ReasonCompletionToolUsed {
		t.Fatalf("reason = %v", result.Reason)
	}
	if result.Steps != 2 {
		t.Fatalf("steps = %d, want 2", result.Steps)
	}
	if result.Response != "All done, here is the summary." {
		t.Fatalf("response = %q", result.Response)
	}
	if len(p.calls) != 3 {
		t.Fatalf("expected 3 LLM calls (2 tool-enabled + 1 follow-up), got %d", len(p.calls))
	}
	if p.calls[2].ToolChoice != "none" {
		t.Fatalf("follow-up call tool_choice = %q, want none", p.calls[2].ToolChoice)
	}
	wantEvents := map[string]bool{"agent_start": true, "agent_turn_start": true, "agent_tool_call": true, "agent_completion": true, "agent_final_response": true}
	for e := range wantEvents {
		found := false
		for _, got := range events {
			if got == e {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected event %q to fire, got %v", e, events)
		}
	}
}

func TestRun_MaxStepsZeroSkipsAllCalls(t *testing.T) {
	t.Parallel()
	host := mcpmock.NewHost()
	p := &scriptedProvider{responses: []*llm.CompletionResponse{{Content: "summary"}}}

	result := newLoop(t, p, host).Run(context.Background(), "go", agentloop.Context{
		UserEmail: "alice@example.com", Model: "fast", MaxSteps: 0,
	})

	if result.Reason != agentloop.ReasonMaxStepsReached {
		t.Fatalf("reason = %v", result.Reason)
	}
	if result.Steps != 0 {
		t.Fatalf("steps = %d, want 0", result.Steps)
	}
	if len(host.ExecuteCalls) != 0 {
		t.Fatalf("expected no tool calls executed, got %d", len(host.ExecuteCalls))
	}
}

func TestRun_MaxStepsReachedAnnotatesResponse(t *testing.T) {
	t.Parallel()
	host := mcpmock.NewHost()
	host.Results["srv_a"] = &mcp.ToolResult{Content: `{"note":"partial"}`}

	p := &scriptedProvider{responses: []*llm.CompletionResponse{
		{ToolCalls: []types.ToolCall{{ID: "1", Name: "srv_a", Arguments: "{}"}}},
		{ToolCalls: []types.ToolCall{{ID: "2", Name: "srv_a", Arguments: "{}"}}},
		{Content: "final summary text"},
	}}

	result := newLoop(t, p, host).Run(context.Background(), "go", agentloop.Context{
		UserEmail: "alice@example.com", Model: "fast", MaxSteps: 2,
	})

	if result.Reason != agentloop.ReasonMaxStepsReached {
		t.Fatalf("reason = %v", result.Reason)
	}
	if result.Steps != 2 {
		t.Fatalf("steps = %d, want 2", result.Steps)
	}
	if len(p.calls) != 3 {
		t.Fatalf("expected 3 LLM calls (2 steps + 1 summary), got %d", len(p.calls))
	}
	if !strings.Contains(result.Response, "maximum 2 steps") {
		t.Fatalf("response missing max-steps notice: %q", result.Response)
	}
}

func TestRun_EmptyResponseTerminatesEarly(t *testing.T) {
	t.Parallel()
	host := mcpmock.NewHost()
	p := &scriptedProvider{responses: []*llm.CompletionResponse{{}}}

	result := newLoop(t, p, host).Run(context.Background(), "go", agentloop.Context{
		UserEmail: "alice@example.com", Model: "fast", MaxSteps: 3,
	})

	if result.Reason != agentloop.ReasonEmptyResponse {
		t.Fatalf("reason = %v", result.Reason)
	}
	if len(p.calls) != 1 {
		t.Fatalf("expected exactly 1 LLM call, got %d", len(p.calls))
	}
}

func TestRun_FirstStepUsesAgentSystemPrompt(t *testing.T) {
	t.Parallel()
	host := mcpmock.NewHost()
	p := &scriptedProvider{responses: []*llm.CompletionResponse{{Content: "done"}}}

	newLoop(t, p, host).Run(context.Background(), "go", agentloop.Context{
		UserEmail: "alice@example.com",
		Model:     "fast",
		MaxSteps:  1,
		History:   []types.Message{{Role: "system", Content: "generic assistant prompt"}},
	})

	if len(p.calls) != 2 {
		t.Fatalf("expected 2 calls (1 step + 1 summary), got %d", len(p.calls))
	}
	msgs := p.calls[0].Messages
	if len(msgs) < 1 || msgs[0].Role != "system" {
		t.Fatalf("expected first message to remain system, got %+v", msgs)
	}
	if msgs[0].Content == "generic assistant prompt" {
		t.Fatal("expected agent-specific system prompt to replace the original")
	}
}
