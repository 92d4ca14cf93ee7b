package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func chatServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chatReply(w http.ResponseWriter, content string, promptTokens, completionTokens int) {
	resp := map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}},
		},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func testSchema() *ResponseSchema {
	return &ResponseSchema{
		Name: "entry",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{"type": "string"},
			},
		},
	}
}

func TestNativeStrategySendsResponseFormat(t *testing.T) {
	var gotFormat map[string]any
	srv := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		gotFormat, _ = body["response_format"].(map[string]any)
		chatReply(w, `{"title": "Aria"}`, 100, 20)
	})

	p := NewChatClient(ChatClientConfig{
		Name: "test", BaseURL: srv.URL, Strategy: JSONStrategyNative,
		Pricing: pricingTable{"m": {{PromptPer1M: 1.0, CompletionPer1M: 2.0}}},
	})

	resp, err := p.Generate(context.Background(), Request{
		Model:    "m",
		Messages: []Message{{Role: RoleUser, Content: "go"}},
		Schema:   testSchema(),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if gotFormat == nil || gotFormat["type"] != "json_schema" {
		t.Fatalf("expected json_schema response_format, got %v", gotFormat)
	}
	js := gotFormat["json_schema"].(map[string]any)
	schema := js["schema"].(map[string]any)
	if ap, ok := schema["additionalProperties"].(bool); !ok || ap {
		t.Fatal("schema sent to backend must be normalized")
	}

	if resp.PromptTokens != 100 || resp.CompletionTokens != 20 {
		t.Fatalf("usage not captured: %+v", resp)
	}
	if resp.Cost <= 0 {
		t.Fatalf("expected positive cost, got %v", resp.Cost)
	}
	if string(resp.Parsed) != `{"title": "Aria"}` {
		t.Fatalf("unexpected parsed payload: %s", resp.Parsed)
	}
	if resp.RequestBody == "" || resp.ResponseBody == "" {
		t.Fatal("wire payloads must be captured for the audit log")
	}
}

func TestPromptStrategyAppendsFormatter(t *testing.T) {
	var gotMessages []map[string]any
	srv := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		if _, ok := body["response_format"]; ok {
			t.Error("prompt-engineered provider must not send response_format")
		}
		for _, m := range body["messages"].([]any) {
			gotMessages = append(gotMessages, m.(map[string]any))
		}
		chatReply(w, "Sure:\n```json\n{\"title\": \"Aria\"}\n```", 10, 5)
	})

	p := NewChatClient(ChatClientConfig{
		Name: "test", BaseURL: srv.URL, Strategy: JSONStrategyPrompt,
	})

	resp, err := p.Generate(context.Background(), Request{
		Model:    "m",
		Messages: []Message{{Role: RoleUser, Content: "go"}},
		Schema:   testSchema(),
		FormatterMessages: []Message{
			{Role: RoleSystem, Content: "respond with json"},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(gotMessages) != 2 {
		t.Fatalf("expected formatter message appended, got %d messages", len(gotMessages))
	}
	last := gotMessages[len(gotMessages)-1]
	if last["content"] != "respond with json" {
		t.Fatalf("unexpected trailing message: %v", last)
	}

	var out map[string]string
	if err := json.Unmarshal(resp.Parsed, &out); err != nil || out["title"] != "Aria" {
		t.Fatalf("parsed payload: %s err %v", resp.Parsed, err)
	}
}

func TestPromptStrategyUnparseableIs422(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		chatReply(w, "I cannot produce JSON today.", 10, 5)
	})

	p := NewChatClient(ChatClientConfig{
		Name: "test", BaseURL: srv.URL, Strategy: JSONStrategyPrompt,
	})

	_, err := p.Generate(context.Background(), Request{
		Model:    "m",
		Messages: []Message{{Role: RoleUser, Content: "go"}},
		Schema:   testSchema(),
	})
	var er *ErrorResponse
	if !errors.As(err, &er) {
		t.Fatalf("expected *ErrorResponse, got %v", err)
	}
	if er.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", er.Status)
	}
	if er.RawText != "I cannot produce JSON today." {
		t.Fatalf("raw text must be preserved: %q", er.RawText)
	}
}

func TestBackendErrorCaptured(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited"},
		})
	})

	p := NewChatClient(ChatClientConfig{Name: "test", BaseURL: srv.URL, Strategy: JSONStrategyNative})

	_, err := p.Generate(context.Background(), Request{
		Model:    "m",
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	var er *ErrorResponse
	if !errors.As(err, &er) {
		t.Fatalf("expected *ErrorResponse, got %v", err)
	}
	if er.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", er.Status)
	}
	if er.Message != "rate limited" {
		t.Fatalf("expected backend message, got %q", er.Message)
	}
	if er.RequestBody == "" {
		t.Fatal("request body must be captured for the audit log")
	}
}

func TestUnknownModelCostSentinel(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		chatReply(w, "ok", 10, 5)
	})

	p := NewChatClient(ChatClientConfig{Name: "test", BaseURL: srv.URL, Strategy: JSONStrategyNative})

	resp, err := p.Generate(context.Background(), Request{
		Model:    "mystery-model",
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Cost != CostUnknown {
		t.Fatalf("expected cost sentinel, got %v", resp.Cost)
	}
}

func TestRegistryBuild(t *testing.T) {
	r := InitRegistry(60*time.Second, 300*time.Second)

	if !r.Has("openrouter") || !r.Has("gemini") || !r.Has("deepseek") || !r.Has("openai_compatible") {
		t.Fatal("expected all four providers registered")
	}

	p, err := r.Build("deepseek", BuildOptions{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("Build deepseek: %v", err)
	}
	if p.JSONStrategy() != JSONStrategyPrompt {
		t.Fatal("deepseek must be prompt-engineered")
	}

	if _, err := r.Build("openrouter", BuildOptions{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := r.Build("openai_compatible", BuildOptions{}); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := r.Build("nope", BuildOptions{APIKey: "x"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	infos := r.List()
	if len(infos) != 4 {
		t.Fatalf("expected 4 provider infos, got %d", len(infos))
	}
}
