package llmcaller

import (
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/chatgw/internal/config"
	"github.com/MrWong99/chatgw/pkg/provider/llm"
	"github.com/MrWong99/chatgw/pkg/provider/llm/anyllm"
	"github.com/MrWong99/chatgw/pkg/provider/llm/openai"
)

// NewCatalog builds a [config.Registry] with one factory per supported
// provider URL scheme: "openai" dials the OpenAI API directly, every other
// scheme ("anyllm", "anthropic", "gemini", "ollama", ...) is routed through
// any-llm-go, using the scheme itself as any-llm-go's provider name when it
// isn't literally "anyllm".
//
// ModelConfig.ProviderURL takes the form "scheme://rest". For "anyllm" rest
// is "provider/model" (e.g. "anyllm://anthropic/claude-3-5-sonnet-latest")
// — the part before the first "/" selects the any-llm-go backend, the
// remainder is the model name. For "openai" and the other registered
// schemes rest is the model name directly (e.g. "openai://gpt-4o",
// "anthropic://claude-3-5-sonnet-latest"). Unregistered schemes are rejected.
func NewCatalog() *config.Registry {
	reg := config.NewRegistry()
	reg.Register("openai", openaiFactory)

	anyllmFactory := func(providerName string) config.Factory {
		return func(entry config.ModelConfig) (llm.Provider, error) {
			model, opts, err := anyllmModelAndOpts(entry, providerName)
			if err != nil {
				return nil, err
			}
			return anyllm.New(providerName, model, opts...)
		}
	}
	for _, name := range []string{"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.Register(name, anyllmFactory(name))
	}
	// "anyllm://provider/model" lets a single scheme address any backend
	// any-llm-go supports without a dedicated scheme per provider.
	reg.Register("anyllm", anyllmGenericFactory)

	return reg
}

func openaiFactory(entry config.ModelConfig) (llm.Provider, error) {
	_, model, ok := splitScheme(entry.ProviderURL)
	if !ok || model == "" {
		return nil, fmt.Errorf("llmcaller: openai provider_url %q missing model", entry.ProviderURL)
	}
	var opts []openai.Option
	if entry.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(entry.BaseURL))
	}
	return openai.New(entry.APIKey, model, opts...)
}

func anyllmGenericFactory(entry config.ModelConfig) (llm.Provider, error) {
	_, rest, ok := splitScheme(entry.ProviderURL)
	if !ok {
		return nil, fmt.Errorf("llmcaller: provider_url %q has no scheme", entry.ProviderURL)
	}
	providerName, model, ok := strings.Cut(rest, "/")
	if !ok || providerName == "" || model == "" {
		return nil, fmt.Errorf("llmcaller: anyllm provider_url %q must be anyllm://provider/model", entry.ProviderURL)
	}
	opts := anyllmOpts(entry)
	return anyllm.New(providerName, model, opts...)
}

func anyllmModelAndOpts(entry config.ModelConfig, providerName string) (string, []anyllmlib.Option, error) {
	_, model, ok := splitScheme(entry.ProviderURL)
	if !ok || model == "" {
		return "", nil, fmt.Errorf("llmcaller: %s provider_url %q missing model", providerName, entry.ProviderURL)
	}
	return model, anyllmOpts(entry), nil
}

func anyllmOpts(entry config.ModelConfig) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// splitScheme splits a "scheme://rest" string into its two parts. Duplicated
// from config's unexported splitScheme since that one isn't part of the
// package's public surface.
func splitScheme(providerURL string) (scheme, rest string, ok bool) {
	for i := 0; i+2 < len(providerURL); i++ {
		if providerURL[i] == ':' && providerURL[i+1] == '/' && providerURL[i+2] == '/' {
			return providerURL[:i], providerURL[i+3:], true
		}
	}
	return "", "", false
}
