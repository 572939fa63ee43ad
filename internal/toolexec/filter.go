package toolexec

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// largeBase64Fields are JSON object keys known to carry large base64 payloads
// that would otherwise blow up an LLM's context window if echoed back.
var largeBase64Fields = []string{
	"returned_file_contents", "returned_file_base64",
	"content_base64", "file_data_base64",
}

// largeHTMLFields are JSON object keys carrying rendered HTML that is useful
// to the UI but wasteful to replay into the model.
var largeHTMLFields = []string{"custom_html", "plot_html"}

const (
	base64TruncateThreshold = 10000
	htmlTruncateThreshold   = 5000
)

var base64Pattern = regexp.MustCompile(`[A-Za-z0-9+/]{1000,}={0,2}`)

// filterLargeBase64FromToolResult strips or truncates large base64/HTML
// payloads from a tool's textual result before it is replayed to the model,
// while leaving the original content untouched for the UI. If content isn't
// parseable JSON, it falls back to a regex scrub of base64-looking runs.
func filterLargeBase64FromToolResult(content string) string {
	if len(content) == 0 {
		return content
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(content), &data); err == nil {
		filtered := filterJSONFields(data)
		out, err := json.MarshalIndent(filtered, "", "  ")
		if err == nil {
			return string(out)
		}
	}

	return base64Pattern.ReplaceAllStringFunc(content, func(match string) string {
		return fmt.Sprintf("<large_base64_content_removed_size_%d_bytes>", len(match))
	})
}

func filterJSONFields(data map[string]any) map[string]any {
	for _, field := range largeBase64Fields {
		switch v := data[field].(type) {
		case string:
			if len(v) > base64TruncateThreshold {
				data[field] = fmt.Sprintf("<file_content_removed_size_%d_bytes>", len(v))
			}
		case []any:
			for i, item := range v {
				if s, ok := item.(string); ok && len(s) > base64TruncateThreshold {
					v[i] = fmt.Sprintf("<file_content_removed_%d_size_%d_bytes>", i, len(s))
				}
			}
		}
	}

	for _, field := range largeHTMLFields {
		if s, ok := data[field].(string); ok && len(s) > htmlTruncateThreshold {
			data[field] = fmt.Sprintf("<html_content_removed_size_%d_bytes>", len(s))
		}
	}

	if files, ok := data["returned_files"].([]any); ok {
		for _, f := range files {
			fileMap, ok := f.(map[string]any)
			if !ok {
				continue
			}
			if b64, ok := fileMap["content_base64"].(string); ok && len(b64) > base64TruncateThreshold {
				fileMap["content_base64"] = fmt.Sprintf("<file_content_removed_size_%d_bytes>", len(b64))
			}
		}
	}

	return data
}
