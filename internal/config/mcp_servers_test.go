package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/chatgw/internal/config"
)

func TestLoadMCPServers_Valid(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	body := `{"servers": [{"name": "files", "command": "/usr/local/bin/mcp-files", "groups": ["engineering"]}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	servers, err := config.LoadMCPServers(path)
	if err != nil {
		t.Fatalf("LoadMCPServers: %v", err)
	}
	if len(servers) != 1 || servers[0].Name != "files" {
		t.Fatalf("servers = %+v, want one entry named files", servers)
	}
}

func TestLoadMCPServers_MissingFileDegradesToEmpty(t *testing.T) {
	t.Parallel()
	servers, err := config.LoadMCPServers("/nonexistent/mcp.json")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("expected empty server list, got %+v", servers)
	}
}

func TestLoadMCPServers_MalformedJSONDegradesToEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	servers, err := config.LoadMCPServers(path)
	if err != nil {
		t.Fatalf("expected no error for malformed file, got %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("expected empty server list, got %+v", servers)
	}
}

func TestLoadMCPServers_InvalidEntryIsError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	body := `{"servers": [{"name": "", "transport": "stdio"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := config.LoadMCPServers(path); err == nil {
		t.Fatal("expected error for invalid server entry")
	}
}
