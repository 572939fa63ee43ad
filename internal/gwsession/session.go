// Package gwsession implements the per-connection chat pipeline: the
// connected/idle/processing/closed state machine, the named lifecycle
// events listeners can subscribe to, and the translation between inbound
// WebSocket frames and turns routed through internal/router.
package gwsession

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/chatgw/internal/agentloop"
	"github.com/MrWong99/chatgw/internal/captoken"
	"github.com/MrWong99/chatgw/internal/mcp"
	"github.com/MrWong99/chatgw/internal/router"
	"github.com/MrWong99/chatgw/internal/toolexec"
	"github.com/MrWong99/chatgw/pkg/objectstore"
	"github.com/MrWong99/chatgw/pkg/types"
)

// StatusNormalClosure is the WebSocket close code used when a session ends
// cleanly, matching RFC 6455's 1000.
const StatusNormalClosure = 1000

// State is one position in the session's connected/idle/processing/closed
// state machine.
type State string

const (
	StateConnected  State = "connected"
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateClosed     State = "closed"
)

// Config bundles everything a Session needs beyond the identity of its
// caller and the accepted connection.
type Config struct {
	Router     *router.Router
	Store      objectstore.Store
	Tokens     *captoken.Issuer
	Dispatcher *Dispatcher

	// Host resolves the authorized tool catalogue for a turn. May be nil,
	// in which case chat turns never carry tools.
	Host mcp.Host

	// Tier bounds which tools AuthorizedTools may return for this session.
	Tier mcp.BudgetTier

	// DownloadTTL overrides the capability token TTL minted for
	// download_file responses. Zero uses the issuer's default.
	DownloadTTL time.Duration

	// DefaultAgentMaxSteps bounds an agent-mode turn when the client's chat
	// frame omits agent_max_steps (or sends zero).
	DefaultAgentMaxSteps int
}

// Session drives one accepted WebSocket connection through the
// connected/idle/processing/closed lifecycle, translating chat frames into
// router turns and relaying every named event to the attached Dispatcher.
type Session struct {
	ID        string
	UserEmail string
	Groups    []string

	conn Conn
	cfg  Config

	mu      sync.Mutex
	state   State
	history []types.Message
	files   map[string]string // filename -> object-store key

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Session bound to an already-accepted conn. It does not
// start the receive loop; call Run for that.
func New(conn Conn, userEmail string, groups []string, cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        uuid.NewString(),
		UserEmail: userEmail,
		Groups:    groups,
		conn:      conn,
		cfg:       cfg,
		state:     StateConnected,
		files:     make(map[string]string),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// State reports the session's current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run reads frames until the connection closes or ctx is cancelled. It is
// the analogue of a per-connection accept loop and is meant to be invoked in
// its own goroutine by the HTTP handler that performed the upgrade.
func (s *Session) Run(ctx context.Context) {
	s.setState(StateIdle)
	s.trigger(EventSessionStarted, nil)
	defer func() {
		s.setState(StateClosed)
		s.trigger(EventSessionEnded, nil)
	}()

	for {
		var frame InboundFrame
		if err := s.conn.ReadJSON(ctx, &frame); err != nil {
			return
		}

		switch frame.Type {
		case "chat":
			s.handleChat(ctx, frame)
		case "reset_session":
			s.handleReset(ctx)
		case "download_file":
			s.handleDownload(ctx, frame)
		default:
			s.sendError(ctx, fmt.Sprintf("unrecognized frame type %q", frame.Type))
		}
	}
}

func (s *Session) trigger(event Event, args map[string]any) {
	if s.cfg.Dispatcher != nil {
		s.cfg.Dispatcher.Trigger(s, event, args)
	}
}

// handleChat runs the full pipeline for one chat frame: file ingestion,
// history append, mode-routed execution, response append, terminal frame.
func (s *Session) handleChat(ctx context.Context, frame InboundFrame) {
	s.setState(StateProcessing)
	defer s.setState(StateIdle)

	s.trigger(EventBeforeMessageProcessing, map[string]any{"content": frame.Content})

	if len(frame.Files) > 0 {
		if err := s.ingestFiles(ctx, frame.Files); err != nil {
			s.sendError(ctx, fmt.Sprintf("failed to store uploaded files: %v", err))
			s.trigger(EventMessageError, map[string]any{"error": err.Error()})
			return
		}
	}

	s.trigger(EventBeforeUserMessageAdded, map[string]any{"content": frame.Content})
	s.appendMessage(types.Message{Role: "user", Content: frame.Content})
	s.trigger(EventAfterUserMessageAdded, map[string]any{"content": frame.Content})

	req := s.buildRequest(frame)

	s.trigger(EventBeforeLLMCall, map[string]any{"model": frame.Model, "agent_mode": frame.AgentMode})
	resp, err := s.cfg.Router.Route(ctx, req)
	if err != nil {
		s.sendError(ctx, fmt.Sprintf("processing failed: %v", err))
		s.trigger(EventMessageError, map[string]any{"error": err.Error()})
		return
	}
	s.trigger(EventAfterLLMCall, map[string]any{"model": frame.Model})

	assistantMsg := types.Message{Role: "assistant", Content: resp.Content}
	if resp.RAG != nil {
		assistantMsg.Metadata = map[string]any{"data_sources": req.DataSources}
	}
	s.appendMessage(assistantMsg)
	s.trigger(EventAfterAssistantMessageAdded, map[string]any{"content": resp.Content})

	s.trigger(EventBeforeResponseSend, map[string]any{"content": resp.Content})
	if resp.Agent != nil {
		s.sendFrame(ctx, intermediateUpdateFrame{
			Type: frameIntermediateUpdate, UpdateType: "agent_final_response",
			Data: map[string]any{"response": resp.Agent.Response, "steps": resp.Agent.Steps, "reason": string(resp.Agent.Reason)},
		})
	}
	s.sendFrame(ctx, chatResponseFrame{Type: frameChatResponse, Message: resp.Content, Model: frame.Model, SessionID: s.ID})
	s.trigger(EventAfterResponseSend, map[string]any{"content": resp.Content})
}

// buildRequest translates one chat frame plus the session's accumulated
// state into a router.Request.
func (s *Session) buildRequest(frame InboundFrame) router.Request {
	s.mu.Lock()
	history := append([]types.Message(nil), s.history...)
	known := make(map[string]string, len(s.files))
	for k, v := range s.files {
		known[k] = v
	}
	s.mu.Unlock()

	tools := s.resolveTools(frame.SelectedTools)

	maxSteps := frame.AgentMaxSteps
	if maxSteps <= 0 {
		maxSteps = s.cfg.DefaultAgentMaxSteps
	}

	return router.Request{
		UserEmail:          s.UserEmail,
		Model:              frame.Model,
		Messages:           history,
		Tools:              tools,
		DataSources:        frame.SelectedDataSources,
		OnlyRAG:            frame.OnlyRAG,
		ToolChoiceRequired: frame.ToolChoiceRequired,
		AgentMode:          frame.AgentMode,
		MaxSteps:           maxSteps,
		ToolExec: toolexec.Context{
			UserEmail:  s.UserEmail,
			AgentMode:  frame.AgentMode,
			KnownFiles: known,
			OnUpdate:   s.toolUpdate(),
		},
		AgentOnUpdate: s.agentUpdate(),
	}
}

// resolveTools turns a list of client-selected tool names into the schema
// definitions the LLM call actually needs: the catalogue authorized for this
// session's groups and budget tier (which also applies exclusive-server
// suppression when an exclusive server's tools are among selected), narrowed
// down to just the names the caller picked. An empty selection offers no
// tools, matching the client's default unselected state.
func (s *Session) resolveTools(selected []string) []types.ToolDefinition {
	if s.cfg.Host == nil || len(selected) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(selected))
	for _, n := range selected {
		wanted[n] = true
	}

	authorized := s.cfg.Host.AuthorizedTools(s.cfg.Tier, s.Groups, selected)
	defs := make([]types.ToolDefinition, 0, len(authorized))
	for _, t := range authorized {
		if !wanted[t.Name] {
			continue
		}
		defs = append(defs, types.ToolDefinition{
			Name:                t.Name,
			Description:         t.Description,
			Parameters:          t.Parameters,
			EstimatedDurationMs: t.EstimatedDurationMs,
			MaxDurationMs:       t.MaxDurationMs,
			Idempotent:          t.Idempotent,
			CacheableSeconds:    t.CacheableSeconds,
		})
	}
	return defs
}

func (s *Session) toolUpdate() toolexec.UpdateFunc {
	return func(event string, payload map[string]any) {
		s.relayUpdate(event, payload)
	}
}

func (s *Session) agentUpdate() agentloop.UpdateFunc {
	return func(event string, payload map[string]any) {
		s.relayUpdate(event, payload)
	}
}

// relayUpdate forwards a tool/agent callback event to the client, using a
// background context since these fire from inside Route and must not be
// cancelled by per-frame deadlines. toolexec names its own events "tool_call"
// and "tool_result"; those two translate to the dedicated tool_start/
// tool_complete/tool_error wire frames. "files_update" additionally folds the
// tool-generated filename -> object-store key map into s.files before being
// relayed, the same way ingestFiles does for user uploads, so a later
// download_file frame or injectFileData lookup can resolve a generated
// filename regardless of whether the turn ran in agent mode. Everything else
// (tool_progress, canvas_content, canvas_files, every agent_* event) rides
// the generic intermediate_update envelope unchanged.
func (s *Session) relayUpdate(event string, payload map[string]any) {
	ctx := context.Background()
	switch event {
	case "tool_call":
		s.sendFrame(ctx, toolFrame{
			Type:         frameToolStart,
			FunctionName: stringField(payload, "tool_name"),
			ToolCallID:   stringField(payload, "tool_call_id"),
		})
		return
	case "tool_result":
		if boolField(payload, "success") {
			s.sendFrame(ctx, toolFrame{
				Type:         frameToolComplete,
				FunctionName: stringField(payload, "tool_name"),
				ToolCallID:   stringField(payload, "tool_call_id"),
				Content:      stringField(payload, "result"),
			})
		} else {
			s.sendFrame(ctx, toolFrame{
				Type:         frameToolError,
				FunctionName: stringField(payload, "tool_name"),
				ToolCallID:   stringField(payload, "tool_call_id"),
				Error:        stringField(payload, "error"),
			})
		}
		return
	case "files_update":
		s.mergeGeneratedFiles(payload)
	}
	s.sendFrame(ctx, intermediateUpdateFrame{
		Type: frameIntermediateUpdate, UpdateType: event, Data: payload,
	})
}

// mergeGeneratedFiles folds a files_update event's filename -> key map into
// s.files. The map travels in-process (toolexec.UpdateFunc is called
// directly, not over the wire), so the value is still the concrete
// map[string]string toolexec built rather than a JSON-decoded any.
func (s *Session) mergeGeneratedFiles(payload map[string]any) {
	files, ok := payload["files"].(map[string]string)
	if !ok {
		return
	}
	s.mu.Lock()
	for filename, key := range files {
		s.files[filename] = key
	}
	s.mu.Unlock()
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func boolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func (s *Session) ingestFiles(ctx context.Context, files map[string]string) error {
	uploaded := make(map[string]string, len(files))
	for filename, encoded := range files {
		body, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("decode %q: %w", filename, err)
		}
		obj, err := s.cfg.Store.Upload(ctx, s.UserEmail, filename, body, "", objectstore.SourceUser, nil)
		if err != nil {
			return fmt.Errorf("upload %q: %w", filename, err)
		}
		uploaded[filename] = obj.Key
	}

	s.mu.Lock()
	for filename, key := range uploaded {
		s.files[filename] = key
	}
	s.mu.Unlock()

	s.sendFrame(ctx, intermediateUpdateFrame{
		Type: frameIntermediateUpdate, UpdateType: "files_update",
		Data: map[string]any{"files": uploaded},
	})

	s.appendMessage(types.Message{Role: "system", Content: filesManifest(uploaded)})
	return nil
}

func filesManifest(uploaded map[string]string) string {
	msg := "The user attached the following files to this message:"
	for filename := range uploaded {
		msg += "\n- " + filename
	}
	return msg
}

func (s *Session) handleReset(ctx context.Context) {
	s.mu.Lock()
	s.history = nil
	s.files = make(map[string]string)
	s.mu.Unlock()
	s.sendFrame(ctx, sessionResetFrame{Type: frameSessionReset, SessionID: s.ID})
}

func (s *Session) handleDownload(ctx context.Context, frame InboundFrame) {
	s.mu.Lock()
	key, ok := s.files[frame.Filename]
	s.mu.Unlock()
	if !ok {
		s.sendError(ctx, fmt.Sprintf("unknown file %q", frame.Filename))
		return
	}
	if s.cfg.Tokens == nil {
		s.sendError(ctx, "downloads are not configured")
		return
	}

	var token string
	var err error
	if s.cfg.DownloadTTL > 0 {
		token, err = s.cfg.Tokens.IssueWithTTL(s.UserEmail, key, s.cfg.DownloadTTL)
	} else {
		token, err = s.cfg.Tokens.Issue(s.UserEmail, key)
	}
	if err != nil {
		s.sendError(ctx, fmt.Sprintf("failed to mint download token: %v", err))
		return
	}
	s.sendFrame(ctx, fileDownloadFrame{Type: frameFileDownload, Token: token, Key: key})
}

func (s *Session) appendMessage(m types.Message) {
	s.mu.Lock()
	s.history = append(s.history, m)
	s.mu.Unlock()
}

func (s *Session) sendFrame(ctx context.Context, v any) {
	if err := s.conn.WriteJSON(ctx, v); err != nil {
		slog.Error("gwsession: write failed", "session_id", s.ID, "err", err)
	}
}

func (s *Session) sendError(ctx context.Context, message string) {
	s.sendFrame(ctx, errorFrame{Type: frameError, Message: message})
	s.trigger(EventSessionError, map[string]any{"error": message})
}

// Close idempotently tears the session down, cancelling its context and
// closing the underlying connection.
func (s *Session) Close() error {
	s.cancel()
	return s.conn.Close(StatusNormalClosure, "session closed")
}
