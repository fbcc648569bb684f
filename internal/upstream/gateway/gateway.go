// Package gateway implements upstream.Completer for an OpenAI-compatible chat
// completions gateway (the Lovable AI gateway by default).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/nulpointcorp/ai-relay/internal/upstream"
)

const (
	DefaultBaseURL = "https://ai.gateway.lovable.dev/v1"
	DefaultModel   = "google/gemini-2.5-flash"
	providerName   = "gateway"
)

type Provider struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	client  openaiSDK.Client
}

type Option func(*Provider)

func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

func WithModel(m string) Option {
	return func(p *Provider) {
		if m != "" {
			p.model = m
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		timeout: upstream.DefaultTimeout,
	}

	for _, o := range opts {
		o(p)
	}

	p.client = openaiSDK.NewClient(
		option.WithAPIKey(p.apiKey),
		option.WithBaseURL(p.baseURL),
		option.WithHTTPClient(&http.Client{Timeout: p.timeout}),
		option.WithMaxRetries(0),
	)

	return p
}

func (p *Provider) Name() string { return providerName }

// Complete sends one non-streaming chat completion request.
func (p *Provider) Complete(ctx context.Context, msgs []upstream.Message) (*upstream.Completion, error) {
	if p.apiKey == "" {
		return nil, upstream.ErrNotConfigured
	}

	params := openaiSDK.ChatCompletionNewParams{
		Messages: toSDKMessages(msgs),
		Model:    p.model,
	}

	resp, err := p.client.Chat.Completions.New(ctx, params, option.WithJSONSet("stream", false))
	if err != nil {
		return nil, toProviderError(err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &upstream.Completion{
		Content:     content,
		TotalTokens: int(resp.Usage.TotalTokens),
	}, nil
}

type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("gateway: %s (status=%d)", e.Message, e.StatusCode)
}

func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &ProviderError{
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
		}
	}
	return fmt.Errorf("gateway: %w", err)
}

func toSDKMessages(msgs []upstream.Message) []openaiSDK.ChatCompletionMessageParamUnion {
	out := make([]openaiSDK.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toSDKMessage(m.Role, m.Content))
	}
	return out
}

// toSDKMessage keeps the caller's role verbatim. Roles the SDK has no
// plain-text constructor for are sent as a raw {role, content} object.
func toSDKMessage(role, content string) openaiSDK.ChatCompletionMessageParamUnion {
	switch role {
	case "developer":
		return openaiSDK.DeveloperMessage(content)
	case "system":
		return openaiSDK.SystemMessage(content)
	case "assistant":
		return openaiSDK.AssistantMessage(content)
	case "user":
		return openaiSDK.UserMessage(content)
	default:
		return param.Override[openaiSDK.ChatCompletionMessageParamUnion](rawMessage{Role: role, Content: content})
	}
}

type rawMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
