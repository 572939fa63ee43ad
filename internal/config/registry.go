package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/chatgw/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested scheme.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory constructs an [llm.Provider] from a resolved [ModelConfig].
type Factory func(ModelConfig) (llm.Provider, error)

// Registry maps provider URL schemes (the part of [ModelConfig.ProviderURL]
// before "://", e.g. "openai" or "anyllm") to constructor functions. It is
// safe for concurrent use.
//
// internal/llmcaller populates a Registry at startup with one factory per
// supported scheme, then uses [Registry.Create] to instantiate providers
// lazily as models are referenced.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{llm: make(map[string]Factory)}
}

// Register registers factory under scheme. Subsequent calls with the same
// scheme overwrite the previous registration.
func (r *Registry) Register(scheme string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[scheme] = factory
}

// Create instantiates an [llm.Provider] for entry using the factory
// registered under entry's ProviderURL scheme.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that scheme.
func (r *Registry) Create(entry ModelConfig) (llm.Provider, error) {
	scheme, _, ok := splitScheme(entry.ProviderURL)
	if !ok {
		return nil, fmt.Errorf("config: provider_url %q has no scheme", entry.ProviderURL)
	}

	r.mu.RLock()
	factory, ok := r.llm[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, scheme)
	}
	return factory(entry)
}

// splitScheme splits a "scheme://rest" string into its two parts.
func splitScheme(providerURL string) (scheme, rest string, ok bool) {
	for i := 0; i+2 < len(providerURL); i++ {
		if providerURL[i] == ':' && providerURL[i+1] == '/' && providerURL[i+2] == '/' {
			return providerURL[:i], providerURL[i+3:], true
		}
	}
	return "", "", false
}
