package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ModelsChanged bool
	ModelChanges  []ModelDiff

	MCPServersChanged bool
}

// ModelDiff describes what changed for a single model between two configs.
type ModelDiff struct {
	Name            string
	ProviderChanged bool
	TierChanged     bool
	Added           bool
	Removed         bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Build model lookup maps keyed by name.
	oldModels := make(map[string]*ModelConfig, len(old.Models))
	for i := range old.Models {
		oldModels[old.Models[i].Name] = &old.Models[i]
	}
	newModels := make(map[string]*ModelConfig, len(new.Models))
	for i := range new.Models {
		newModels[new.Models[i].Name] = &new.Models[i]
	}

	// Detect modified and removed models.
	for name, oldModel := range oldModels {
		newModel, exists := newModels[name]
		if !exists {
			d.ModelChanges = append(d.ModelChanges, ModelDiff{Name: name, Removed: true})
			d.ModelsChanged = true
			continue
		}
		md := diffModel(name, oldModel, newModel)
		if md.ProviderChanged || md.TierChanged {
			d.ModelChanges = append(d.ModelChanges, md)
			d.ModelsChanged = true
		}
	}

	// Detect added models.
	for name := range newModels {
		if _, exists := oldModels[name]; !exists {
			d.ModelChanges = append(d.ModelChanges, ModelDiff{Name: name, Added: true})
			d.ModelsChanged = true
		}
	}

	// MCP servers — count, then position-by-position name, transport,
	// command, cwd, URL, exclusivity and description; connection-level
	// reconciliation is the caller's responsibility (RegisterServer is
	// idempotent per name).
	if len(old.MCP.Servers) != len(new.MCP.Servers) {
		d.MCPServersChanged = true
	} else {
		for i := range old.MCP.Servers {
			a, b := old.MCP.Servers[i], new.MCP.Servers[i]
			if a.Name != b.Name || a.Transport != b.Transport || a.Command != b.Command ||
				a.Cwd != b.Cwd || a.URL != b.URL || a.IsExclusive != b.IsExclusive ||
				a.Description != b.Description {
				d.MCPServersChanged = true
				break
			}
		}
	}

	return d
}

// diffModel compares two model configs with the same name.
func diffModel(name string, old, new *ModelConfig) ModelDiff {
	md := ModelDiff{Name: name}

	if old.ProviderURL != new.ProviderURL || old.APIKey != new.APIKey || old.BaseURL != new.BaseURL {
		md.ProviderChanged = true
	}
	if old.Tier != new.Tier {
		md.TierChanged = true
	}

	return md
}
