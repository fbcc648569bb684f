// Package anthropic implements upstream.Completer on the Anthropic Messages
// API (official SDK).
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nulpointcorp/ai-relay/internal/upstream"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com/"
	DefaultModel     = "claude-3-5-haiku-latest"
	providerName     = "anthropic"
	defaultMaxTokens = 1024
)

// Provider implements upstream.Completer for Anthropic.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	client  anthropic.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL (useful for testing).
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

// New creates a new Anthropic Provider.
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

	p.client = anthropic.NewClient(
		option.WithAPIKey(p.apiKey),
		option.WithBaseURL(p.baseURL),
		option.WithHTTPClient(&http.Client{Timeout: p.timeout}),
		option.WithMaxRetries(0),
	)

	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Complete(ctx context.Context, msgs []upstream.Message) (*upstream.Completion, error) {
	if p.apiKey == "" {
		return nil, upstream.ErrNotConfigured
	}

	msg, err := p.client.Messages.New(ctx, p.buildParams(msgs))
	if err != nil {
		return nil, toProviderError(err)
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		if tb, ok := b.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}

	return &upstream.Completion{
		Content:     sb.String(),
		TotalTokens: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}, nil
}

// buildParams folds system and developer turns into the system prompt. The
// Messages API only knows user and assistant: any other role is sent as a
// user turn, and ordering rules (first turn must be user, roles alternate)
// are left to the API, whose rejection surfaces as an upstream error.
func (p *Provider) buildParams(in []upstream.Message) anthropic.MessageNewParams {
	var system strings.Builder
	msgs := make([]anthropic.MessageParam, 0, len(in))

	for _, m := range in {
		switch strings.ToLower(m.Role) {
		case "system", "developer":
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
		default:
			msgs = append(msgs, toSDKMessage(m.Role, m.Content))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: defaultMaxTokens,
		Messages:  msgs,
	}
	if system.Len() > 0 {
		params.System = []anthropic.TextBlockParam{{Text: system.String()}}
	}
	return params
}

func toSDKMessage(role, content string) anthropic.MessageParam {
	r := anthropic.MessageParamRoleUser
	if strings.EqualFold(role, "assistant") {
		r = anthropic.MessageParamRoleAssistant
	}
	return anthropic.MessageParam{
		Role: r,
		Content: []anthropic.ContentBlockParamUnion{
			{OfText: &anthropic.TextBlockParam{Text: content}},
		},
	}
}

// ProviderError is a non-2xx answer from the Anthropic API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("anthropic: %s (status=%d)", e.Message, e.StatusCode)
}

// HTTPStatus implements upstream.StatusCoder.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func toProviderError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &ProviderError{
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}
