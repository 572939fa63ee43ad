package config_test

import (
	"testing"

	"github.com/MrWong99/chatgw/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Models: []config.ModelConfig{
			{Name: "fast", ProviderURL: "openai://gpt-4o-mini", Tier: config.TierFast},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.ModelsChanged {
		t.Error("expected ModelsChanged=false for identical configs")
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if len(d.ModelChanges) != 0 {
		t.Errorf("expected 0 model changes, got %d", len(d.ModelChanges))
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_ModelProviderChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Models: []config.ModelConfig{
			{Name: "fast", ProviderURL: "openai://gpt-4o-mini"},
		},
	}
	new := &config.Config{
		Models: []config.ModelConfig{
			{Name: "fast", ProviderURL: "openai://gpt-4o"},
		},
	}

	d := config.Diff(old, new)
	if !d.ModelsChanged {
		t.Error("expected ModelsChanged=true")
	}
	if len(d.ModelChanges) != 1 {
		t.Fatalf("expected 1 model change, got %d", len(d.ModelChanges))
	}
	if !d.ModelChanges[0].ProviderChanged {
		t.Error("expected ProviderChanged=true")
	}
	if d.ModelChanges[0].TierChanged {
		t.Error("expected TierChanged=false")
	}
}

func TestDiff_ModelTierChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Models: []config.ModelConfig{
			{Name: "deep", Tier: config.TierStandard},
		},
	}
	new := &config.Config{
		Models: []config.ModelConfig{
			{Name: "deep", Tier: config.TierDeep},
		},
	}

	d := config.Diff(old, new)
	if !d.ModelsChanged {
		t.Error("expected ModelsChanged=true")
	}
	found := false
	for _, mc := range d.ModelChanges {
		if mc.Name == "deep" && mc.TierChanged {
			found = true
		}
	}
	if !found {
		t.Error("expected deep's TierChanged=true")
	}
}

func TestDiff_ModelAdded(t *testing.T) {
	t.Parallel()
	old := &config.Config{Models: []config.ModelConfig{{Name: "fast"}}}
	new := &config.Config{Models: []config.ModelConfig{{Name: "fast"}, {Name: "deep"}}}

	d := config.Diff(old, new)
	if !d.ModelsChanged {
		t.Error("expected ModelsChanged=true")
	}
	found := false
	for _, mc := range d.ModelChanges {
		if mc.Name == "deep" && mc.Added {
			found = true
		}
	}
	if !found {
		t.Error("expected deep Added=true")
	}
}

func TestDiff_ModelRemoved(t *testing.T) {
	t.Parallel()
	old := &config.Config{Models: []config.ModelConfig{{Name: "fast"}, {Name: "deep"}}}
	new := &config.Config{Models: []config.ModelConfig{{Name: "fast"}}}

	d := config.Diff(old, new)
	if !d.ModelsChanged {
		t.Error("expected ModelsChanged=true")
	}
	found := false
	for _, mc := range d.ModelChanges {
		if mc.Name == "deep" && mc.Removed {
			found = true
		}
	}
	if !found {
		t.Error("expected deep Removed=true")
	}
}

func TestDiff_MCPServersChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
			{Name: "tools", Command: "/bin/a"},
		}},
	}
	new := &config.Config{
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
			{Name: "tools", Command: "/bin/b"},
		}},
	}

	d := config.Diff(old, new)
	if !d.MCPServersChanged {
		t.Error("expected MCPServersChanged=true")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Models: []config.ModelConfig{
			{Name: "A", ProviderURL: "openai://v1"},
			{Name: "B", Tier: config.TierFast},
		},
	}
	new := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogWarn},
		Models: []config.ModelConfig{
			{Name: "A", ProviderURL: "openai://v2"},
			{Name: "C"},
		},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.ModelsChanged {
		t.Error("expected ModelsChanged=true")
	}
	changes := make(map[string]config.ModelDiff)
	for _, mc := range d.ModelChanges {
		changes[mc.Name] = mc
	}
	if !changes["A"].ProviderChanged {
		t.Error("expected A ProviderChanged=true")
	}
	if !changes["B"].Removed {
		t.Error("expected B Removed=true")
	}
	if !changes["C"].Added {
		t.Error("expected C Added=true")
	}
}
