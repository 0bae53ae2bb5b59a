// Package openrouter implements the chat completion driver against an
// OpenAI-compatible endpoint, OpenRouter by default.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/waypointhq/waypoint/internal/ailink/driver"
	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/core"
	"github.com/waypointhq/waypoint/internal/upstream"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Client implements driver.Driver on top of openai-go.
type Client struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	client openai.Client
}

// NewClient returns a client with defaults applied. httpClient may be nil.
func NewClient(cfg config.OpenRouterConfig, httpClient *http.Client) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiKey := strings.TrimSpace(cfg.APIKey)

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		// The fallback pipeline moves to the next model instead.
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if referer := strings.TrimSpace(cfg.Referer); referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", referer))
	}
	if title := strings.TrimSpace(cfg.Title); title != "" {
		opts = append(opts, option.WithHeader("X-Title", title))
	}

	return &Client{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Timeout: cfg.Timeout,
		client:  openai.NewClient(opts...),
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return "openrouter"
}

// Complete sends a chat completion request.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("openrouter client not configured")
	}
	if c.APIKey == "" {
		return nil, core.SoftBlock("openrouter api key is not configured")
	}
	if req == nil || strings.TrimSpace(req.Model) == "" {
		return nil, core.InvalidInput("model is required")
	}

	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	return toDriverResponse(completion)
}

func buildParams(req *driver.Request) (openai.ChatCompletionNewParams, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case driver.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Text))
		case driver.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Text))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	if len(messages) == 0 {
		return openai.ChatCompletionNewParams{}, core.InvalidInput("at least one message is required")
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	return params, nil
}

func toDriverResponse(completion *openai.ChatCompletion) (*driver.Response, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return nil, core.SoftBlock("openrouter returned no choices")
	}
	choice := completion.Choices[0]
	return &driver.Response{
		Model:        completion.Model,
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: &driver.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		perr := &driver.ProviderError{
			Provider:   "openrouter",
			StatusCode: apiErr.StatusCode,
			Message:    strings.TrimSpace(apiErr.Message),
		}
		if apiErr.Response != nil {
			perr.RetryAfter, _ = upstream.RetryAfter(apiErr.Response)
		}
		return perr.Classify()
	}
	return core.TransportFailure(err)
}
