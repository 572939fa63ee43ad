package gwsession

// InboundFrame is the envelope every client message is decoded into before
// routing on Type. Type-specific fields are simply ignored for the types
// that don't use them.
type InboundFrame struct {
	Type string `json:"type"`

	// chat fields
	Content             string            `json:"content"`
	Model               string            `json:"model"`
	SelectedTools       []string          `json:"selected_tools"`
	SelectedPrompts     []string          `json:"selected_prompts"`
	SelectedDataSources []string          `json:"selected_data_sources"`
	OnlyRAG             bool              `json:"only_rag"`
	ToolChoiceRequired  bool              `json:"tool_choice_required"`
	AgentMode           bool              `json:"agent_mode"`
	AgentMaxSteps       int               `json:"agent_max_steps"`
	Temperature         float64           `json:"temperature"`
	Files               map[string]string `json:"files"`

	// download_file fields
	Filename string `json:"filename"`
}

// outbound frame types, written verbatim as JSON "type" discriminators.
const (
	frameChatResponse       = "chat_response"
	frameIntermediateUpdate = "intermediate_update"
	frameToolStart          = "tool_start"
	frameToolComplete       = "tool_complete"
	frameToolError          = "tool_error"
	frameError              = "error"
	frameSessionReset       = "session_reset"
	frameFileDownload       = "file_download"
)

// chatResponseFrame terminates a non-agent turn.
type chatResponseFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Model     string `json:"model"`
	SessionID string `json:"session_id"`
}

// intermediateUpdateFrame carries a named in-flight update (files_update,
// canvas_files, tool_synthesis, or any agent_* event relayed verbatim).
type intermediateUpdateFrame struct {
	Type       string         `json:"type"`
	UpdateType string         `json:"update_type"`
	Data       map[string]any `json:"data"`
}

type toolFrame struct {
	Type         string `json:"type"`
	FunctionName string `json:"function_name,omitempty"`
	ToolCallID   string `json:"tool_call_id,omitempty"`
	Content      string `json:"content,omitempty"`
	Error        string `json:"error,omitempty"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type sessionResetFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type fileDownloadFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Key   string `json:"key"`
}
