package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/MrWong99/chatgw/internal/mcp"
)

// LoadMCPServers reads the JSON MCP server table at path, per the three-input
// loading model described in [Config.MCPConfigPath]'s doc comment. A missing
// or malformed file is logged and an empty, valid server list is returned
// rather than an error — only entries that fail [validateMCPServers] are
// rejected via a returned error, since those indicate an operator mistake
// worth surfacing rather than a transient missing file.
func LoadMCPServers(path string) ([]MCPServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("mcp server table not loaded; continuing with no MCP servers", "path", path, "error", err)
		return nil, nil
	}

	var table struct {
		Servers []MCPServerConfig `json:"servers"`
	}
	if err := json.Unmarshal(data, &table); err != nil {
		slog.Warn("mcp server table malformed; continuing with no MCP servers", "path", path, "error", err)
		return nil, nil
	}

	if errs := validateMCPServers("mcp.servers", table.Servers); len(errs) > 0 {
		return nil, fmt.Errorf("config: invalid mcp server table %q: %w", path, errors.Join(errs...))
	}
	return table.Servers, nil
}

// validateMCPServers checks a list of server entries for the invariants
// [Validate] also applies to the inline Config.MCP.Servers form.
func validateMCPServers(fieldPrefix string, servers []MCPServerConfig) []error {
	var errs []error
	seen := make(map[string]int, len(servers))
	for i, srv := range servers {
		prefix := fmt.Sprintf("%s[%d]", fieldPrefix, i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := seen[srv.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s[%d]", prefix, srv.Name, fieldPrefix, prev))
		} else {
			seen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http, sse", prefix, srv.Transport))
		}
		if srv.Transport == "" && srv.Command == "" && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s: one of command or url is required", prefix))
		}
		if mcp.InferTransport(srv.ToHostConfig()) == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
	}
	return errs
}
