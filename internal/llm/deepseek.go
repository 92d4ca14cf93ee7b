package llm

import "time"

// DeepSeekAPIBase is the base URL for the DeepSeek API.
const DeepSeekAPIBase = "https://api.deepseek.com/v1"

// deepSeekPricing is USD per million tokens.
var deepSeekPricing = pricingTable{
	"deepseek-chat":  {{PromptPer1M: 0.14, CompletionPer1M: 0.28}},
	"deepseek-coder": {{PromptPer1M: 0.14, CompletionPer1M: 0.14}},
}

var deepSeekStaticModels = []ModelInfo{
	{ID: "deepseek-chat", Name: "DeepSeek Chat", Provider: "deepseek", ContextWindow: 64000},
	{ID: "deepseek-coder", Name: "DeepSeek Coder", Provider: "deepseek", ContextWindow: 64000},
}

// NewDeepSeek creates the DeepSeek provider. DeepSeek has no structured
// output parameter, so the schema is prompt-engineered and the reply parsed
// out of the text.
func NewDeepSeek(apiKey string, timeout time.Duration) Provider {
	return NewChatClient(ChatClientConfig{
		Name:         "deepseek",
		BaseURL:      DeepSeekAPIBase,
		APIKey:       apiKey,
		Strategy:     JSONStrategyPrompt,
		Pricing:      deepSeekPricing,
		StaticModels: deepSeekStaticModels,
		Timeout:      timeout,
	})
}
