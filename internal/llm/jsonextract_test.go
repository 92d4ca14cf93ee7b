package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONFencedBlock(t *testing.T) {
	text := "Here is the result:\n```json\n{\"title\": \"Aria\"}\n```\nHope that helps."
	raw, ok := ExtractJSON(text)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["title"] != "Aria" {
		t.Fatalf("unexpected value: %v", out)
	}
}

func TestExtractJSONFencedBlockNoLanguageTag(t *testing.T) {
	text := "```\n{\"valid\": true}\n```"
	raw, ok := ExtractJSON(text)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if string(raw) != `{"valid": true}` {
		t.Fatalf("unexpected raw: %s", raw)
	}
}

func TestExtractJSONBraceScanFallback(t *testing.T) {
	text := `The answer is {"valid": false, "reason": "navigation page"} as requested.`
	raw, ok := ExtractJSON(text)
	if !ok {
		t.Fatal("expected brace scan to succeed")
	}
	var out struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Valid || out.Reason != "navigation page" {
		t.Fatalf("unexpected values: %+v", out)
	}
}

func TestExtractJSONBracesInsideStrings(t *testing.T) {
	text := `prefix {"note": "uses { and } inside", "n": 1} suffix`
	raw, ok := ExtractJSON(text)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["note"] != "uses { and } inside" {
		t.Fatalf("unexpected note: %v", out["note"])
	}
}

func TestExtractJSONArray(t *testing.T) {
	text := `["a", "b"]`
	raw, ok := ExtractJSON(text)
	if !ok {
		t.Fatal("expected bare array to parse")
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil || len(out) != 2 {
		t.Fatalf("unexpected: %v %v", out, err)
	}
}

func TestExtractJSONNothingParseable(t *testing.T) {
	if _, ok := ExtractJSON("no json here at all"); ok {
		t.Fatal("expected failure on plain prose")
	}
	if _, ok := ExtractJSON("broken {\"a\": } object"); ok {
		t.Fatal("expected failure on invalid json")
	}
}
