package llm

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPricingLongestPrefixWins(t *testing.T) {
	table := pricingTable{
		"deepseek":      {{PromptPer1M: 1.0, CompletionPer1M: 1.0}},
		"deepseek-chat": {{PromptPer1M: 0.14, CompletionPer1M: 0.28}},
	}
	got := table.cost("deepseek-chat", 1_000_000, 1_000_000)
	if !almostEqual(got, 0.14+0.28) {
		t.Fatalf("expected specific entry to win, got %v", got)
	}
}

func TestPricingUnknownModel(t *testing.T) {
	if got := deepSeekPricing.cost("gpt-4o", 1000, 1000); got != CostUnknown {
		t.Fatalf("expected %v for unknown model, got %v", CostUnknown, got)
	}
}

func TestPricingTieredByPromptSize(t *testing.T) {
	small := geminiPricing.cost("gemini-2.5-pro", 100_000, 1_000_000)
	wantSmall := 100_000*1.25/1_000_000 + 10.0
	if !almostEqual(small, wantSmall) {
		t.Fatalf("small prompt tier: got %v want %v", small, wantSmall)
	}

	large := geminiPricing.cost("gemini-2.5-pro", 300_000, 1_000_000)
	wantLarge := 300_000*2.50/1_000_000 + 15.0
	if !almostEqual(large, wantLarge) {
		t.Fatalf("large prompt tier: got %v want %v", large, wantLarge)
	}
}

func TestPricingDeepSeekCoder(t *testing.T) {
	got := deepSeekPricing.cost("deepseek-coder", 2_000_000, 1_000_000)
	if !almostEqual(got, 2*0.14+0.14) {
		t.Fatalf("unexpected cost %v", got)
	}
}
