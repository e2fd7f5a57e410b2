package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultAnthropicMaxTokens is sent when a request leaves MaxTokens unset; the Messages API requires it.
const defaultAnthropicMaxTokens = 1024

// AnthropicClient adapts the Anthropic Messages API to Runtime.
type AnthropicClient struct {
	client anthropic.Client
	apiKey string
}

// NewAnthropicClient builds a client. baseURL is optional and mostly used in tests.
func NewAnthropicClient(apiKey, baseURL string, httpTimeout time.Duration, retryMax int) *AnthropicClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax < 0 {
		retryMax = 0
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: httpTimeout}),
		option.WithMaxRetries(retryMax),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...), apiKey: apiKey}
}

// params lifts system messages into the System field; the rest become conversation turns.
func (c *AnthropicClient) params(req GenerateRequest) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	p := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature > 0 {
		p.Temperature = anthropic.Float(req.Temperature)
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			p.System = append(p.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			p.Messages = append(p.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			p.Messages = append(p.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return p
}

func (c *AnthropicClient) check(req GenerateRequest) error {
	if c.apiKey == "" {
		return fmt.Errorf("anthropic: %w (set ANTHROPIC_API_KEY or anthropic_api_key)", ErrMissingAPIKey)
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	for _, m := range req.Messages {
		if m.Role != RoleSystem {
			return nil
		}
	}
	return errors.New("messages must include at least one user turn")
}

// Generate sends a single Messages API request.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	msg, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return nil, anthropicError(err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &GenerateResponse{
		ID:      msg.ID,
		Choices: []Choice{{Message: Message{Role: RoleAssistant, Content: text.String()}}},
		Usage:   Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

// GenerateStream forwards text deltas from the streaming Messages API.
func (c *AnthropicClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	if err := c.check(req); err != nil {
		return err
	}
	stream := c.client.Messages.NewStreaming(ctx, c.params(req))
	defer stream.Close()
	for stream.Next() {
		ev := stream.Current()
		if ev.Type == "content_block_delta" && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
			onDelta(ev.Delta.Text)
		}
	}
	if err := stream.Err(); err != nil {
		return anthropicError(err)
	}
	return nil
}

// anthropicError maps SDK errors onto the package's typed errors.
func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic request: %w", err)
	}
	var header http.Header
	if apiErr.Response != nil {
		header = apiErr.Response.Header
	}
	return classifyAPIError(&APIError{
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Error(),
		RequestID:  extractRequestID(apiErr.Response),
	}, header)
}
