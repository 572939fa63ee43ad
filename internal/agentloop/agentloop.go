// Package agentloop implements the step-bounded, tool-driven agent mode: the
// model is handed a synthetic completion tool and required to pick a tool
// every turn until it signals it is done or the step budget runs out.
package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/chatgw/internal/llmcaller"
	"github.com/MrWong99/chatgw/internal/observe"
	"github.com/MrWong99/chatgw/internal/toolexec"
	"github.com/MrWong99/chatgw/pkg/types"
)

// agentSystemPromptTemplate replaces the first system message of the conversation for
// every agent turn; %s is the acting user's identity.
const agentSystemPromptTemplate = `You are operating in agent mode on behalf of %s.
Work through the user's request step by step, calling tools as needed.
When the task is completely finished, call the all_work_done tool instead of
replying with text. Do not call all_work_done while further steps remain.`

// Reason names why an agent run stopped.
type Reason string

const (
	ReasonCompletionToolUsed Reason = "completion_tool_used"
	ReasonMaxStepsReached    Reason = "max_steps_reached"
	ReasonEmptyResponse      Reason = "empty_response"
	ReasonErrorOccurred      Reason = "error_occurred"
)

// Result is the outcome of a full agent run.
type Result struct {
	Response string
	Steps    int
	Reason   Reason
	Err      error
}

// UpdateFunc receives the agent-specific streaming events: agent_start,
// agent_turn_start, agent_llm_call, agent_tool_call, agent_tool_results,
// agent_completion_detected, agent_completion, agent_max_steps,
// agent_warning, agent_error and agent_final_response.
type UpdateFunc func(event string, payload map[string]any)

func (f UpdateFunc) send(event string, payload map[string]any) {
	if f != nil {
		f(event, payload)
	}
}

// Context carries everything a single agent run needs.
type Context struct {
	UserEmail string
	Model     string
	MaxSteps  int

	// History is the conversation so far; its first message, if a system
	// message, is replaced by the agent system prompt for every step.
	History []types.Message

	Tools []types.ToolDefinition

	// ToolExec is reused across steps; its OnUpdate/KnownFiles/AgentMode are
	// honoured for every tool execution within the run.
	ToolExec toolexec.Context

	OnUpdate UpdateFunc
}

// Loop executes the agent algorithm over a [Caller] and [toolexec.Executor].
type Loop struct {
	caller   *llmcaller.Caller
	executor *toolexec.Executor
}

// New builds a Loop.
func New(caller *llmcaller.Caller, executor *toolexec.Executor) *Loop {
	return &Loop{caller: caller, executor: executor}
}

// Run drives the agent loop starting from initialContent (typically the
// user's latest message) until completion, max steps, an empty response, or
// an error. It performs at most actx.MaxSteps+1 LLM calls.
func (l *Loop) Run(ctx context.Context, initialContent string, actx Context) Result {
	actx.OnUpdate.send("agent_start", map[string]any{
		"max_steps": actx.MaxSteps,
		"user":      actx.UserEmail,
	})

	tools := append(append([]types.ToolDefinition{}, actx.Tools...), completionToolSchema())

	currentContent := initialContent
	for step := 0; step < actx.MaxSteps; step++ {
		turn := step + 1
		actx.OnUpdate.send("agent_turn_start", map[string]any{
			"turn": turn, "max_steps": actx.MaxSteps, "user": actx.UserEmail,
		})

		messages := buildStepMessages(actx.History, actx.UserEmail, currentContent)

		actx.OnUpdate.send("agent_llm_call", map[string]any{
			"step": turn, "message_count": len(messages), "tool_count": len(tools), "user": actx.UserEmail,
		})

		resp, err := l.caller.CallWithTools(ctx, actx.Model, messages, tools, "required")
		if err != nil {
			actx.OnUpdate.send("agent_error", map[string]any{
				"turn": turn, "error": err.Error(), "user": actx.UserEmail,
			})
			return l.finish(ctx, actx, Result{Response: fmt.Sprintf("Agent encountered an error: %v", err), Steps: turn, Reason: ReasonErrorOccurred, Err: err})
		}

		if resp.Content == "" && len(resp.ToolCalls) == 0 {
			actx.OnUpdate.send("agent_warning", map[string]any{
				"turn": turn, "message": "step returned empty response", "user": actx.UserEmail,
			})
			return l.finish(ctx, actx, Result{Response: "Agent returned empty response", Steps: turn, Reason: ReasonEmptyResponse})
		}

		if len(resp.ToolCalls) == 0 {
			currentContent = resp.Content
			continue
		}

		for i, tc := range resp.ToolCalls {
			actx.OnUpdate.send("agent_tool_call", map[string]any{
				"step": turn, "tool_index": i + 1, "total_tools": len(resp.ToolCalls),
				"function_name": tc.Name, "arguments": tc.Arguments, "user": actx.UserEmail,
			})
		}

		toolResults, err := l.executor.ExecuteAll(ctx, resp.ToolCalls, actx.ToolExec)
		if err != nil {
			actx.OnUpdate.send("agent_error", map[string]any{
				"turn": turn, "error": err.Error(), "user": actx.UserEmail,
			})
			return l.finish(ctx, actx, Result{Response: fmt.Sprintf("Agent encountered an error: %v", err), Steps: turn, Reason: ReasonErrorOccurred, Err: err})
		}

		actx.OnUpdate.send("agent_tool_results", map[string]any{
			"step": turn, "results_count": len(toolResults), "user": actx.UserEmail,
		})

		if completed, ok := findCompletion(resp.ToolCalls, toolResults); ok {
			actx.OnUpdate.send("agent_completion_detected", map[string]any{
				"step": turn, "user": actx.UserEmail,
			})

			finalResponse, err := l.finalizeCompletion(ctx, actx.Model, messages, resp, toolResults, completed)
			if err != nil {
				finalResponse = completed.Content
			}

			actx.OnUpdate.send("agent_completion", map[string]any{
				"turn": turn, "final_response": finalResponse, "total_steps": turn, "user": actx.UserEmail,
			})
			return l.finish(ctx, actx, Result{Response: finalResponse, Steps: turn, Reason: ReasonCompletionToolUsed})
		}

		currentContent = joinToolResults(toolResults)
	}

	actx.OnUpdate.send("agent_max_steps", map[string]any{
		"max_steps": actx.MaxSteps, "final_content": currentContent, "user": actx.UserEmail,
	})

	summary, err := l.caller.CallPlain(ctx, actx.Model, []types.Message{{Role: "user", Content: summaryPrompt(initialContent, currentContent)}})
	if err != nil || summary == "" {
		summary = currentContent
	}
	final := fmt.Sprintf("%s\n\n[Agent completed after reaching maximum %d steps]", summary, actx.MaxSteps)
	return l.finish(ctx, actx, Result{Response: final, Steps: actx.MaxSteps, Reason: ReasonMaxStepsReached})
}

// finish emits the terminal agent_final_response event common to every
// completion path and returns res unchanged.
func (l *Loop) finish(ctx context.Context, actx Context, res Result) Result {
	actx.OnUpdate.send("agent_final_response", map[string]any{
		"response": res.Response, "steps": res.Steps, "reason": string(res.Reason), "user": actx.UserEmail,
	})
	observe.DefaultMetrics().RecordAgentSteps(ctx, res.Steps, string(res.Reason))
	return res
}

// finalizeCompletion makes the follow-up tool_choice=none call that turns the
// completion tool call into a natural-language answer.
func (l *Loop) finalizeCompletion(ctx context.Context, model string, stepMessages []types.Message, resp *llmcaller.ToolCallResult, toolResults []toolexec.Result, completed toolexec.Result) (string, error) {
	followUp := append(append([]types.Message{}, stepMessages...), types.Message{
		Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls,
	})
	for _, r := range toolResults {
		followUp = append(followUp, types.Message{Role: "tool", ToolCallID: r.ToolCallID, Content: r.Content})
	}

	final, err := l.caller.CallWithTools(ctx, model, followUp, nil, "none")
	if err != nil {
		return completed.Content, err
	}
	if final.Content == "" {
		return completed.Content, nil
	}
	return final.Content, nil
}

func buildStepMessages(history []types.Message, userEmail, content string) []types.Message {
	step := make([]types.Message, len(history))
	copy(step, history)
	if len(step) > 0 && step[0].Role == "system" {
		step[0] = types.Message{Role: "system", Content: fmt.Sprintf(agentSystemPromptTemplate, userEmail)}
	}
	return append(step, types.Message{Role: "user", Content: content})
}

func joinToolResults(results []toolexec.Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, "Tool result: "+r.Content)
	}
	return strings.Join(parts, "\n")
}

func findCompletion(calls []types.ToolCall, results []toolexec.Result) (toolexec.Result, bool) {
	for i, tc := range calls {
		if tc.Name == toolexec.ToolAllWorkDone && i < len(results) {
			return results[i], true
		}
	}
	return toolexec.Result{}, false
}

func completionToolSchema() types.ToolDefinition {
	return types.ToolDefinition{
		Name: toolexec.ToolAllWorkDone,
		Description: "Call this function when you have completely finished all the work requested " +
			"by the user: every necessary step has been taken and a comprehensive final answer is ready. " +
			"Do not call it while further steps remain.",
		Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func summaryPrompt(originalPrompt, finalContent string) string {
	return fmt.Sprintf(`The user requested: %q

The agent's last recorded output was: %q

Provide a comprehensive summary for the user covering what was accomplished,
key results, and the overall outcome.`, originalPrompt, finalContent)
}
