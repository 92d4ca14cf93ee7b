package llm

import "time"

// OpenRouterAPIBase is the base URL for the OpenRouter API.
const OpenRouterAPIBase = "https://openrouter.ai/api/v1"

// openRouterPricing is USD per million tokens, keyed by model-id prefix.
var openRouterPricing = pricingTable{
	"openai/gpt-4o":               {{PromptPer1M: 2.50, CompletionPer1M: 10.0}},
	"openai/gpt-4o-mini":          {{PromptPer1M: 0.15, CompletionPer1M: 0.60}},
	"anthropic/claude-3.5-sonnet": {{PromptPer1M: 3.00, CompletionPer1M: 15.0}},
	"anthropic/claude-3-haiku":    {{PromptPer1M: 0.25, CompletionPer1M: 1.25}},
	"google/gemini-2.0-flash":     {{PromptPer1M: 0.10, CompletionPer1M: 0.40}},
	"deepseek/deepseek-chat":      {{PromptPer1M: 0.14, CompletionPer1M: 0.28}},
	"meta-llama/llama-3.3-70b":    {{PromptPer1M: 0.35, CompletionPer1M: 0.40}},
	"mistralai/mistral-nemo":      {{PromptPer1M: 0.13, CompletionPer1M: 0.13}},
	"google/gemini-2.5-pro": {
		{MaxPromptTokens: 200000, PromptPer1M: 1.25, CompletionPer1M: 10.0},
		{PromptPer1M: 2.50, CompletionPer1M: 15.0},
	},
}

var openRouterStaticModels = []ModelInfo{
	{ID: "openai/gpt-4o", Name: "GPT-4o", Provider: "openrouter", ContextWindow: 128000},
	{ID: "openai/gpt-4o-mini", Name: "GPT-4o Mini", Provider: "openrouter", ContextWindow: 128000},
	{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Provider: "openrouter", ContextWindow: 200000},
	{ID: "google/gemini-2.0-flash-001", Name: "Gemini 2.0 Flash", Provider: "openrouter", ContextWindow: 1000000},
	{ID: "deepseek/deepseek-chat", Name: "DeepSeek Chat", Provider: "openrouter", ContextWindow: 64000},
	{ID: "meta-llama/llama-3.3-70b-instruct", Name: "Llama 3.3 70B", Provider: "openrouter", ContextWindow: 131072},
}

// NewOpenRouter creates the OpenRouter provider. OpenRouter speaks the
// OpenAI wire format and supports native structured output.
func NewOpenRouter(apiKey string, timeout time.Duration) Provider {
	return NewChatClient(ChatClientConfig{
		Name:         "openrouter",
		BaseURL:      OpenRouterAPIBase,
		APIKey:       apiKey,
		Strategy:     JSONStrategyNative,
		Pricing:      openRouterPricing,
		StaticModels: openRouterStaticModels,
		ExtraHeaders: map[string]string{
			"HTTP-Referer": "https://github.com/loreforge/loreforge",
			"X-Title":      "Loreforge",
		},
		Timeout: timeout,
	})
}

// NewOpenAICompatible creates a provider for a user-supplied OpenAI-style
// endpoint. No pricing table; cost is reported unknown.
func NewOpenAICompatible(baseURL, apiKey string, timeout time.Duration) Provider {
	return NewChatClient(ChatClientConfig{
		Name:     "openai_compatible",
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Strategy: JSONStrategyNative,
		Timeout:  timeout,
	})
}
