package llm

import (
	"fmt"
	"sort"
	"time"
)

// ProviderInfo describes a registered provider for API responses.
type ProviderInfo struct {
	Name           string       `json:"name"`
	DisplayName    string       `json:"display_name"`
	Description    string       `json:"description"`
	RequiresKey    bool         `json:"requires_key"`
	KeyPlaceholder string       `json:"key_placeholder,omitempty"`
	RequiresURL    bool         `json:"requires_url,omitempty"`
	BaseURLHint    string       `json:"base_url_hint,omitempty"`
	DocsURL        string       `json:"docs_url,omitempty"`
	JSONStrategy   JSONStrategy `json:"json_strategy"`
}

// BuildOptions carries the per-project credential material a provider is
// constructed with.
type BuildOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ProviderFactory builds a provider instance from credential material.
type ProviderFactory func(opts BuildOptions) (Provider, error)

// registration pairs provider metadata with its factory.
type registration struct {
	Info    ProviderInfo
	Factory ProviderFactory
}

// Registry holds the supported providers. Constructed once at startup;
// read-only afterwards.
type Registry struct {
	providers map[string]registration
	slow      map[string]bool

	defaultTimeout time.Duration
	slowTimeout    time.Duration
}

// NewRegistry creates an empty registry with the given call timeouts.
func NewRegistry(defaultTimeout, slowTimeout time.Duration) *Registry {
	return &Registry{
		providers:      make(map[string]registration),
		slow:           make(map[string]bool),
		defaultTimeout: defaultTimeout,
		slowTimeout:    slowTimeout,
	}
}

// Register adds a provider. slow marks backends that need the long timeout.
func (r *Registry) Register(info ProviderInfo, factory ProviderFactory, slow bool) {
	r.providers[info.Name] = registration{Info: info, Factory: factory}
	r.slow[info.Name] = slow
}

// Build constructs a provider instance for one request, wiring in credential
// material and the right timeout.
func (r *Registry) Build(name string, opts BuildOptions) (Provider, error) {
	reg, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	if opts.Timeout == 0 {
		opts.Timeout = r.defaultTimeout
		if r.slow[name] {
			opts.Timeout = r.slowTimeout
		}
	}
	if reg.Info.RequiresKey && opts.APIKey == "" {
		return nil, fmt.Errorf("provider %q requires an api key", name)
	}
	if reg.Info.RequiresURL && opts.BaseURL == "" {
		return nil, fmt.Errorf("provider %q requires a base url", name)
	}
	return reg.Factory(opts)
}

// List returns provider metadata sorted by name.
func (r *Registry) List() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(r.providers))
	for _, reg := range r.providers {
		infos = append(infos, reg.Info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Has reports whether a provider name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.providers[name]
	return ok
}

// InitRegistry registers all supported providers.
func InitRegistry(defaultTimeout, slowTimeout time.Duration) *Registry {
	r := NewRegistry(defaultTimeout, slowTimeout)

	r.Register(ProviderInfo{
		Name:           "openrouter",
		DisplayName:    "OpenRouter",
		Description:    "Access multiple LLM providers through one API",
		RequiresKey:    true,
		KeyPlaceholder: "sk-or-...",
		DocsURL:        "https://openrouter.ai/docs",
		JSONStrategy:   JSONStrategyNative,
	}, func(opts BuildOptions) (Provider, error) {
		return NewOpenRouter(opts.APIKey, opts.Timeout), nil
	}, false)

	r.Register(ProviderInfo{
		Name:           "gemini",
		DisplayName:    "Google Gemini",
		Description:    "Gemini 2.x models via the generateContent API",
		RequiresKey:    true,
		KeyPlaceholder: "AIza...",
		DocsURL:        "https://ai.google.dev/gemini-api/docs",
		JSONStrategy:   JSONStrategyNative,
	}, func(opts BuildOptions) (Provider, error) {
		return NewGemini(opts.APIKey, opts.Timeout), nil
	}, false)

	r.Register(ProviderInfo{
		Name:           "deepseek",
		DisplayName:    "DeepSeek",
		Description:    "DeepSeek chat and coder models",
		RequiresKey:    true,
		KeyPlaceholder: "sk-...",
		DocsURL:        "https://api-docs.deepseek.com",
		JSONStrategy:   JSONStrategyPrompt,
	}, func(opts BuildOptions) (Provider, error) {
		return NewDeepSeek(opts.APIKey, opts.Timeout), nil
	}, true)

	r.Register(ProviderInfo{
		Name:         "openai_compatible",
		DisplayName:  "OpenAI-compatible endpoint",
		Description:  "Any endpoint speaking the OpenAI chat-completions format",
		RequiresKey:  false,
		RequiresURL:  true,
		BaseURLHint:  "http://localhost:11434/v1",
		JSONStrategy: JSONStrategyNative,
	}, func(opts BuildOptions) (Provider, error) {
		return NewOpenAICompatible(opts.BaseURL, opts.APIKey, opts.Timeout), nil
	}, true)

	return r
}
