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

// GeminiAPIBase is the base URL for the Gemini generateContent API.
const GeminiAPIBase = "https://generativelanguage.googleapis.com/v1beta"

// geminiPricing is USD per million tokens. The 2.5-pro family is tiered by
// prompt size.
var geminiPricing = pricingTable{
	"gemini-2.5-pro": {
		{MaxPromptTokens: 200000, PromptPer1M: 1.25, CompletionPer1M: 10.0},
		{PromptPer1M: 2.50, CompletionPer1M: 15.0},
	},
	"gemini-2.5-flash": {{PromptPer1M: 0.30, CompletionPer1M: 2.50}},
	"gemini-2.0-flash": {{PromptPer1M: 0.10, CompletionPer1M: 0.40}},
}

var geminiStaticModels = []ModelInfo{
	{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: "gemini", ContextWindow: 1048576},
	{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: "gemini", ContextWindow: 1048576},
	{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: "gemini", ContextWindow: 1048576},
}

// Gemini calls the generateContent API. Structured output is requested with
// response_mime_type and the schema restated in the system instruction,
// which in practice constrains better than the schema parameter alone.
type Gemini struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGemini creates the Gemini provider.
func NewGemini(apiKey string, timeout time.Duration) *Gemini {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Gemini{
		baseURL:    GeminiAPIBase,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *Gemini) Name() string               { return "gemini" }
func (g *Gemini) JSONStrategy() JSONStrategy { return JSONStrategyNative }

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiGenConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	wire := geminiRequest{
		GenerationConfig: geminiGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}

	var systemParts []geminiPart
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, geminiPart{Text: m.Content})
		case RoleAssistant:
			wire.Contents = append(wire.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			wire.Contents = append(wire.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	if req.Schema != nil {
		normalized := NormalizeSchema(req.Schema.Schema)
		schemaJSON, _ := json.MarshalIndent(normalized, "", "  ")
		systemParts = append(systemParts, geminiPart{
			Text: fmt.Sprintf("Respond with JSON conforming to this schema:\n%s", schemaJSON),
		})
		wire.GenerationConfig.ResponseMimeType = "application/json"
	}
	if len(systemParts) > 0 {
		wire.SystemInstruction = &geminiContent{Parts: systemParts}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &ErrorResponse{Status: http.StatusInternalServerError, Message: fmt.Sprintf("failed to encode request: %v", err)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ErrorResponse{Status: http.StatusInternalServerError, Message: err.Error(), RequestBody: string(body)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	httpResp, err := g.httpClient.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, &ErrorResponse{
			Status:      http.StatusBadGateway,
			Message:     fmt.Sprintf("request failed: %v", err),
			RequestBody: string(body),
			LatencyMs:   latency,
		}
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ErrorResponse{
			Status:      http.StatusBadGateway,
			Message:     fmt.Sprintf("failed to read response: %v", err),
			RequestBody: string(body),
			LatencyMs:   latency,
		}
	}

	var parsed geminiResponse
	if uerr := json.Unmarshal(respBody, &parsed); uerr != nil || httpResp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("backend returned status %d", httpResp.StatusCode)
		if uerr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, &ErrorResponse{
			Status:       httpResp.StatusCode,
			Message:      msg,
			RequestBody:  string(body),
			ResponseBody: string(respBody),
			LatencyMs:    latency,
		}
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, &ErrorResponse{
			Status:       http.StatusBadGateway,
			Message:      "backend returned no candidates",
			RequestBody:  string(body),
			ResponseBody: string(respBody),
			LatencyMs:    latency,
		}
	}

	var text string
	for _, part := range parsed.Candidates[0].Content.Parts {
		text += part.Text
	}

	resp := &Response{
		Text:             text,
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
		Cost:             geminiPricing.cost(req.Model, parsed.UsageMetadata.PromptTokenCount, parsed.UsageMetadata.CandidatesTokenCount),
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

func (g *Gemini) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return geminiStaticModels, nil
}
