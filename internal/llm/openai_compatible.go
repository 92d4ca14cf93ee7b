package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChatClient talks to any OpenAI-compatible chat-completions endpoint. It
// backs the OpenRouter, DeepSeek and custom-endpoint providers, which differ
// only in base URL, headers, pricing and JSON strategy.
type ChatClient struct {
	name         string
	baseURL      string
	apiKey       string
	strategy     JSONStrategy
	pricing      pricingTable
	staticModels []ModelInfo
	extraHeaders map[string]string
	httpClient   *http.Client
}

// ChatClientConfig configures a ChatClient.
type ChatClientConfig struct {
	Name         string
	BaseURL      string
	APIKey       string
	Strategy     JSONStrategy
	Pricing      pricingTable
	StaticModels []ModelInfo
	ExtraHeaders map[string]string
	Timeout      time.Duration
}

// NewChatClient creates a provider over an OpenAI-compatible endpoint.
func NewChatClient(cfg ChatClientConfig) *ChatClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ChatClient{
		name:         cfg.Name,
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		strategy:     cfg.Strategy,
		pricing:      cfg.Pricing,
		staticModels: cfg.StaticModels,
		extraHeaders: cfg.ExtraHeaders,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *ChatClient) Name() string               { return c.name }
func (c *ChatClient) JSONStrategy() JSONStrategy { return c.strategy }

// Wire types for the chat-completions endpoint.

type chatCompletionRequest struct {
	Model           string              `json:"model"`
	Messages        []Message           `json:"messages"`
	Temperature     *float64            `json:"temperature,omitempty"`
	MaxTokens       int                 `json:"max_tokens,omitempty"`
	ReasoningEffort string              `json:"reasoning_effort,omitempty"`
	ResponseFormat  *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *chatJSONSchema `json:"json_schema,omitempty"`
}

type chatJSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate runs one chat completion against the endpoint.
func (c *ChatClient) Generate(ctx context.Context, req Request) (*Response, error) {
	wire := chatCompletionRequest{
		Model:           req.Model,
		Messages:        req.Messages,
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		ReasoningEffort: req.ReasoningEffort,
	}

	if req.Schema != nil {
		normalized := NormalizeSchema(req.Schema.Schema)
		switch c.strategy {
		case JSONStrategyNative:
			wire.ResponseFormat = &chatResponseFormat{
				Type: "json_schema",
				JSONSchema: &chatJSONSchema{
					Name:   req.Schema.Name,
					Strict: true,
					Schema: normalized,
				},
			}
		case JSONStrategyPrompt:
			wire.Messages = append(wire.Messages, formatterMessages(req, normalized)...)
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &ErrorResponse{Status: http.StatusInternalServerError, Message: fmt.Sprintf("failed to encode request: %v", err)}
	}

	start := time.Now()
	respBody, status, err := c.post(ctx, "/chat/completions", body)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, &ErrorResponse{
			Status:       http.StatusBadGateway,
			Message:      err.Error(),
			RequestBody:  string(body),
			ResponseBody: string(respBody),
			LatencyMs:    latency,
		}
	}

	var parsed chatCompletionResponse
	if uerr := json.Unmarshal(respBody, &parsed); uerr != nil || status != http.StatusOK {
		msg := fmt.Sprintf("backend returned status %d", status)
		if uerr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, &ErrorResponse{
			Status:       status,
			Message:      msg,
			RequestBody:  string(body),
			ResponseBody: string(respBody),
			LatencyMs:    latency,
		}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ErrorResponse{
			Status:       http.StatusBadGateway,
			Message:      "backend returned no choices",
			RequestBody:  string(body),
			ResponseBody: string(respBody),
			LatencyMs:    latency,
		}
	}

	text := parsed.Choices[0].Message.Content
	resp := &Response{
		Text:             text,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		Cost:             c.pricing.cost(req.Model, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens),
		LatencyMs:        latency,
		RequestBody:      string(body),
		ResponseBody:     string(respBody),
	}

	if req.Schema != nil {
		raw, ok := ExtractJSON(text)
		if !ok {
			return nil, &ErrorResponse{
				Status:       http.StatusUnprocessableEntity,
				Message:      "response contained no parseable JSON",
				RawText:      text,
				RequestBody:  string(body),
				ResponseBody: string(respBody),
				LatencyMs:    latency,
			}
		}
		resp.Parsed = raw
	}
	return resp, nil
}

func (c *ChatClient) post(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, httpResp.StatusCode, nil
}

// ListModels queries GET /models; endpoints without it fall back to the
// static list.
func (c *ChatClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return c.staticModels, nil
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.staticModels, nil
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return c.staticModels, nil
	}

	var result struct {
		Data []struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			ContextLength int    `json:"context_length"`
		} `json:"data"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&result); err != nil || len(result.Data) == 0 {
		return c.staticModels, nil
	}

	models := make([]ModelInfo, 0, len(result.Data))
	for _, m := range result.Data {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		models = append(models, ModelInfo{
			ID:            m.ID,
			Name:          name,
			Provider:      c.name,
			ContextWindow: m.ContextLength,
		})
	}
	return models, nil
}

// formatterMessages returns the messages that carry the schema into the
// prompt. Caller-rendered formatter messages win; otherwise a built-in
// fallback is synthesized.
func formatterMessages(req Request, normalized map[string]any) []Message {
	if len(req.FormatterMessages) > 0 {
		return req.FormatterMessages
	}
	schemaJSON, _ := json.MarshalIndent(normalized, "", "  ")
	exampleJSON, _ := json.MarshalIndent(ExampleFromSchema(normalized), "", "  ")
	content := fmt.Sprintf(
		"Respond with a single JSON object inside a fenced code block. It must conform to this JSON schema:\n```json\n%s\n```\nExample of the expected shape:\n```json\n%s\n```",
		schemaJSON, exampleJSON,
	)
	return []Message{{Role: RoleSystem, Content: content}}
}
