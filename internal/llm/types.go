// Package llm provides a unified interface over the supported LLM backends.
// Providers either accept a JSON schema natively or have it prompt-engineered
// into the conversation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Role values for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// JSONStrategy describes how a provider enforces structured output.
type JSONStrategy string

const (
	// JSONStrategyNative passes the schema in the backend's structured-output
	// parameter.
	JSONStrategyNative JSONStrategy = "native"

	// JSONStrategyPrompt embeds the schema and an example instance into the
	// prompt and extracts JSON from the reply.
	JSONStrategyPrompt JSONStrategy = "prompt_engineered"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseSchema names a JSON schema the response must conform to.
type ResponseSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// Request is a provider-agnostic generation request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int

	// ReasoningEffort is passed through to backends that accept it.
	ReasoningEffort string

	// Schema, when set, constrains the response to a JSON document.
	Schema *ResponseSchema

	// FormatterMessages are appended by prompt-engineered providers when a
	// schema is present. Rendered by the caller from the json-formatter
	// template with the normalized schema and a synthesized example bound in.
	FormatterMessages []Message
}

// Response is a successful generation. It carries everything the caller
// needs to write the audit record.
type Response struct {
	Text   string
	Parsed json.RawMessage

	PromptTokens     int
	CompletionTokens int
	Cost             float64
	LatencyMs        int64

	RequestBody  string
	ResponseBody string
}

// ErrorResponse is a failed generation. It satisfies error so callers can
// propagate it while still logging the wire-level detail.
type ErrorResponse struct {
	Status  int
	Message string

	// RawText holds the model output when JSON extraction or parsing failed.
	RawText string

	RequestBody  string
	ResponseBody string
	LatencyMs    int64
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("llm: %s (status %d)", e.Message, e.Status)
}

// ModelInfo describes a model a provider can serve.
type ModelInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	ContextWindow int    `json:"context_window,omitempty"`
}

// Provider is the unified backend interface.
type Provider interface {
	Name() string
	JSONStrategy() JSONStrategy

	// Generate runs one completion. On failure the returned error is an
	// *ErrorResponse carrying the wire payloads for the audit log.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ListModels enumerates the models this provider can serve.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}
