// Package toolexec executes tool calls requested by an LLM: ordinary MCP
// tools routed through the MCP host, plus two synthetic tools handled
// in-process (the agent-loop completion signal and the canvas display
// pseudo-tool).
package toolexec

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chatgw/internal/captoken"
	"github.com/MrWong99/chatgw/internal/mcp"
	"github.com/MrWong99/chatgw/pkg/objectstore"
	"github.com/MrWong99/chatgw/pkg/types"
)

// ToolAllWorkDone is the synthetic tool name the agent loop appends to every
// tool schema it offers the model; calling it signals the agent is done.
const ToolAllWorkDone = "all_work_done"

// ToolCanvas is the pseudo-tool that displays content directly in the UI
// canvas instead of routing through an MCP server.
const ToolCanvas = "canvas"

// Result is the outcome of executing a single tool call.
type Result struct {
	ToolCallID string
	Content    string
	Success    bool
	Error      string

	// FilesGenerated maps the filename of every artifact this call produced
	// to its object-store key, for both newly uploaded content and
	// references to files the tool stored itself.
	FilesGenerated map[string]string
}

// UpdateFunc receives named UI update events as a tool call executes.
type UpdateFunc func(event string, payload map[string]any)

// Context carries per-turn information needed while executing tool calls.
type Context struct {
	// UserEmail identifies whose object-store namespace files are read from
	// and written to.
	UserEmail string

	// AgentMode, when true, causes the UI-facing copy of a tool result to
	// have large base64 payloads filtered out (the agent loop runs
	// unattended turns where that noise serves no one).
	AgentMode bool

	// OnUpdate, if non-nil, receives UI update events as execution proceeds.
	// A nil OnUpdate means no session is attached (e.g. non-interactive
	// agent runs) and updates are simply dropped.
	OnUpdate UpdateFunc

	// KnownFiles maps a filename already present in the session (uploaded or
	// previously tool-generated) to its object-store key, used to inject
	// file content into a tool call that declares a "filename" argument.
	KnownFiles map[string]string
}

func (c Context) sendUpdate(event string, payload map[string]any) {
	if c.OnUpdate != nil {
		c.OnUpdate(event, payload)
	}
}

// Executor routes tool calls to the MCP host and handles the synthetic
// tools, file injection, and generated-file persistence around them.
type Executor struct {
	host   mcp.Host
	store  objectstore.Store
	tokens *captoken.Issuer
}

// New constructs an Executor. tokens may be nil, in which case generated
// canvas files carry no download token.
func New(host mcp.Host, store objectstore.Store, tokens *captoken.Issuer) *Executor {
	return &Executor{host: host, store: store, tokens: tokens}
}

// ExecuteAll runs every call concurrently and returns one [Result] per call,
// in the same order as calls. Individual tool failures are captured in
// their Result rather than returned as a Go error, so the returned error is
// always nil; a cancelled ctx reaches each call and shows up in its Result.
func (e *Executor) ExecuteAll(ctx context.Context, calls []types.ToolCall, execCtx Context) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]Result, len(calls))
	var completed int32

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = e.executeSingle(gctx, call, execCtx)
			if len(calls) > 1 {
				n := atomic.AddInt32(&completed, 1)
				execCtx.sendUpdate("tool_progress", map[string]any{
					"current":        int(n),
					"total":          len(calls),
					"completed_tool": call.Name,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (e *Executor) executeSingle(ctx context.Context, call types.ToolCall, execCtx Context) Result {
	switch call.Name {
	case ToolAllWorkDone:
		return e.handleCompletion(call, execCtx)
	case ToolCanvas:
		return e.handleCanvas(call, execCtx)
	default:
		return e.handleMCPTool(ctx, call, execCtx)
	}
}

func (e *Executor) handleCompletion(call types.ToolCall, execCtx Context) Result {
	execCtx.sendUpdate("tool_call", map[string]any{
		"tool_name": ToolAllWorkDone, "server_name": "agent_completion",
		"tool_call_id": call.ID, "agent_mode": execCtx.AgentMode,
	})
	execCtx.sendUpdate("tool_result", map[string]any{
		"tool_name": ToolAllWorkDone, "server_name": "agent_completion",
		"tool_call_id": call.ID, "result": "Agent completion acknowledged: Work completed",
		"success": true, "agent_mode": execCtx.AgentMode,
	})
	return Result{ToolCallID: call.ID, Content: "Agent completion acknowledged: Work completed", Success: true}
}

func (e *Executor) handleCanvas(call types.ToolCall, execCtx Context) Result {
	var args struct {
		Content string `json:"content"`
	}
	_ = json.Unmarshal([]byte(call.Arguments), &args)

	execCtx.sendUpdate("canvas_content", map[string]any{"content": args.Content, "tool_call_id": call.ID})
	return Result{ToolCallID: call.ID, Content: "Content displayed in canvas successfully.", Success: true}
}

func (e *Executor) handleMCPTool(ctx context.Context, call types.ToolCall, execCtx Context) Result {
	enhancedArgs, err := e.injectFileData(ctx, call.Arguments, execCtx)
	if err != nil {
		enhancedArgs = call.Arguments
	}

	execCtx.sendUpdate("tool_call", map[string]any{
		"tool_name": call.Name, "server_name": call.Name,
		"tool_call_id": call.ID, "agent_mode": execCtx.AgentMode,
	})

	toolResult, err := e.host.ExecuteTool(ctx, call.Name, enhancedArgs)
	if err != nil {
		errMsg := fmt.Sprintf("Tool execution failed: %v", err)
		execCtx.sendUpdate("tool_result", map[string]any{
			"tool_name": call.Name, "server_name": call.Name, "tool_call_id": call.ID,
			"result": errMsg, "success": false, "error": err.Error(), "agent_mode": execCtx.AgentMode,
		})
		body, _ := json.Marshal(map[string]string{"error": errMsg})
		return Result{ToolCallID: call.ID, Content: string(body), Success: false, Error: err.Error()}
	}
	if toolResult.IsError {
		execCtx.sendUpdate("tool_result", map[string]any{
			"tool_name": call.Name, "server_name": call.Name, "tool_call_id": call.ID,
			"result": toolResult.Content, "success": false, "error": toolResult.Content, "agent_mode": execCtx.AgentMode,
		})
		return Result{ToolCallID: call.ID, Content: toolResult.Content, Success: false, Error: toolResult.Content}
	}

	return e.processToolResult(ctx, toolResult.Content, call, execCtx)
}

// injectFileData rewrites a "filename" or "file_names" argument naming files
// already known to the session into a download URL carrying a capability
// token scoped to the calling user, preserving the original name alongside
// it so a tool can still report back which file it acted on.
func (e *Executor) injectFileData(ctx context.Context, argsJSON string, execCtx Context) (string, error) {
	if len(execCtx.KnownFiles) == 0 {
		return argsJSON, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return argsJSON, err
	}

	rewrote := false

	if filename, ok := args["filename"].(string); ok && filename != "" {
		if url, ok := e.downloadURLFor(execCtx.UserEmail, filename, execCtx.KnownFiles); ok {
			args["filename"] = url
			args["original_filename"] = filename
			args["file_url"] = url
			rewrote = true
		}
	}

	if rawNames, ok := args["file_names"].([]any); ok {
		urls := make([]any, len(rawNames))
		originals := make([]any, len(rawNames))
		for i, raw := range rawNames {
			name, _ := raw.(string)
			if url, ok := e.downloadURLFor(execCtx.UserEmail, name, execCtx.KnownFiles); ok {
				urls[i] = url
				originals[i] = name
				rewrote = true
			} else {
				urls[i] = raw
				originals[i] = raw
			}
		}
		args["file_names"] = urls
		args["original_file_names"] = originals
		args["file_urls"] = urls
	}

	if !rewrote {
		return argsJSON, nil
	}

	out, err := json.Marshal(args)
	if err != nil {
		return argsJSON, err
	}
	return string(out), nil
}

// downloadURLFor resolves filename to a capability-token-gated download URL
// if it names a file already known to the session.
func (e *Executor) downloadURLFor(userEmail, filename string, known map[string]string) (string, bool) {
	key, ok := known[filename]
	if !ok || key == "" {
		return "", false
	}
	url := "/api/files/download/" + key
	if e.tokens != nil {
		if token, err := e.tokens.Issue(userEmail, key); err == nil {
			url += "?token=" + token
		}
	}
	return url, true
}

func (e *Executor) processToolResult(ctx context.Context, contentText string, call types.ToolCall, execCtx Context) Result {
	var parsed map[string]any
	_ = json.Unmarshal([]byte(contentText), &parsed)

	var generated map[string]string
	var canvasFiles []map[string]any
	if parsed != nil {
		generated, canvasFiles = e.saveAndCollectCanvasFiles(ctx, parsed, call.Name, execCtx)
	}

	// files_update goes out before canvas_files: a canvas entry referencing a
	// filename the client hasn't heard about yet would be unresolvable.
	if len(generated) > 0 {
		execCtx.sendUpdate("files_update", map[string]any{"files": generated})
	}
	if len(canvasFiles) > 0 {
		execCtx.sendUpdate("canvas_files", map[string]any{
			"files": canvasFiles, "tool_name": call.Name, "tool_call_id": call.ID,
		})
	}

	uiContent := contentText
	if execCtx.AgentMode {
		uiContent = filterLargeBase64FromToolResult(contentText)
	}
	execCtx.sendUpdate("tool_result", map[string]any{
		"tool_name": call.Name, "server_name": call.Name, "tool_call_id": call.ID,
		"result": uiContent, "success": true, "agent_mode": execCtx.AgentMode,
	})

	return Result{
		ToolCallID:     call.ID,
		Content:        filterLargeBase64FromToolResult(contentText),
		Success:        true,
		FilesGenerated: generated,
	}
}

// dataFileExt are extensions kept as-is (no tool-name prefix) so later tool
// calls can find and reuse them by their original name.
var dataFileExt = map[string]bool{".csv": true, ".json": true, ".txt": true, ".xlsx": true}

// downloadURLKeyPrefix is the path segment a backend download URL is rewritten
// into (see [Executor.downloadURLFor]); an artifact referencing one of these
// instead of carrying base64 content is read back out here.
const downloadURLKeyPrefix = "/api/files/download/"

// saveAndCollectCanvasFiles walks a tool result's artifact fields and, for
// each one, either uploads its base64 content or records a reference to a
// file the tool already stored itself behind a backend download URL. It
// returns every processed artifact's filename -> object-store key, plus the
// subset eligible for canvas display.
func (e *Executor) saveAndCollectCanvasFiles(ctx context.Context, parsed map[string]any, toolName string, execCtx Context) (map[string]string, []map[string]any) {
	generated := make(map[string]string)
	var canvasFiles []map[string]any

	addUpload := func(filename, b64 string) {
		obj, ok := e.storeGeneratedFile(ctx, execCtx.UserEmail, filename, b64, toolName)
		if !ok {
			return
		}
		generated[filename] = obj.Key
		if isCanvasExtension(fileExtension(filename)) {
			canvasFiles = append(canvasFiles, e.canvasEntry(obj, filename))
		}
	}

	addReference := func(filename, downloadURL string) {
		key, ok := e.referencedKey(execCtx.UserEmail, downloadURL)
		if !ok {
			return
		}
		generated[filename] = key
		if isCanvasExtension(fileExtension(filename)) {
			canvasFiles = append(canvasFiles, e.canvasEntry(objectstore.Object{Key: key, UserEmail: execCtx.UserEmail}, filename))
		}
	}

	if files, ok := parsed["returned_files"].([]any); ok {
		for _, item := range files {
			fi, ok := item.(map[string]any)
			if !ok {
				continue
			}
			filename, _ := fi["filename"].(string)
			if filename == "" {
				continue
			}
			if url, ok := fi["url"].(string); ok && url != "" {
				addReference(filename, url)
				continue
			}
			if b64, ok := fi["content_base64"].(string); ok && b64 != "" {
				addUpload(filename, b64)
			}
		}
	} else if filename, ok := parsed["returned_file_name"].(string); ok && filename != "" {
		if b64, ok := parsed["returned_file_base64"].(string); ok && b64 != "" {
			addUpload(filename, b64)
		} else if url, ok := parsed["returned_file_url"].(string); ok && url != "" {
			addReference(filename, url)
		}
	}

	return generated, canvasFiles
}

// referencedKey extracts the object-store key from a backend download URL
// and confirms userEmail actually owns it, without re-fetching or
// re-uploading the object.
func (e *Executor) referencedKey(userEmail, downloadURL string) (string, bool) {
	idx := strings.Index(downloadURL, downloadURLKeyPrefix)
	if idx == -1 {
		return "", false
	}
	key := downloadURL[idx+len(downloadURLKeyPrefix):]
	if q := strings.IndexByte(key, '?'); q != -1 {
		key = key[:q]
	}
	if key == "" {
		return "", false
	}
	if err := objectstore.ValidateKey(userEmail, key); err != nil {
		return "", false
	}
	return key, true
}

func (e *Executor) storeGeneratedFile(ctx context.Context, userEmail, filename, b64, toolName string) (objectstore.Object, bool) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return objectstore.Object{}, false
	}

	storedName := filename
	if !dataFileExt[fileExtension(filename)] {
		storedName = toolName + "_" + filename
	}

	contentType := mime.TypeByExtension(fileExtension(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	obj, err := e.store.Upload(ctx, userEmail, storedName, data, contentType, objectstore.SourceTool, map[string]string{"tool": toolName})
	if err != nil {
		return objectstore.Object{}, false
	}
	return obj, true
}

func (e *Executor) canvasEntry(obj objectstore.Object, filename string) map[string]any {
	entry := map[string]any{
		"filename": filename,
		"type":     string(canvasFileType(fileExtension(filename))),
		"key":      obj.Key,
		"size":     obj.Size,
		"source":   "tool_generated",
	}
	if e.tokens != nil {
		if token, err := e.tokens.Issue(obj.UserEmail, obj.Key); err == nil {
			entry["download_token"] = token
		}
	}
	return entry
}
