package llm

import "strings"

// CostUnknown is the sentinel returned when a model has no pricing entry.
const CostUnknown = -1.0

// priceTier is USD per million tokens. MaxPromptTokens of zero means the
// tier applies regardless of prompt size; tiers are ordered ascending.
type priceTier struct {
	MaxPromptTokens int
	PromptPer1M     float64
	CompletionPer1M float64
}

// pricingTable maps model-id prefixes to tiered pricing. Lookup picks the
// longest matching prefix so a specific entry beats a family entry.
type pricingTable map[string][]priceTier

func (t pricingTable) cost(model string, promptTokens, completionTokens int) float64 {
	var bestKey string
	for prefix := range t {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestKey) {
			bestKey = prefix
		}
	}
	if bestKey == "" {
		return CostUnknown
	}

	tiers := t[bestKey]
	tier := tiers[len(tiers)-1]
	for _, candidate := range tiers {
		if candidate.MaxPromptTokens == 0 || promptTokens <= candidate.MaxPromptTokens {
			tier = candidate
			break
		}
	}

	return float64(promptTokens)*tier.PromptPer1M/1_000_000 +
		float64(completionTokens)*tier.CompletionPer1M/1_000_000
}
