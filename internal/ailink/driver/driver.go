package driver

import (
	"context"
)

// Driver defines the interface for chat completion providers.
type Driver interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the driver identifier (e.g., "openrouter").
	Name() string
}

// Role names accepted in messages.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single text chat message.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
	PromptSlug  string
}

// Response is a provider-agnostic completion response.
type Response struct {
	Model        string
	Text         string
	FinishReason string
	Usage        *Usage
}
