// Package gemini implements upstream.Completer on Google Gemini (official
// GenAI SDK).
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/nulpointcorp/ai-relay/internal/upstream"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash"
	providerName   = "gemini"
)

// Provider implements upstream.Completer for Gemini.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	client  *genai.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL. A trailing version segment
// ("/v1beta") is split off into the SDK's APIVersion.
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

// New creates a new Gemini Provider. With an empty key no SDK client is built
// and Complete reports upstream.ErrNotConfigured.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		timeout: upstream.DefaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}

	if p.apiKey == "" {
		return p, nil
	}

	base, ver := splitBaseURLAndVersion(p.baseURL)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      p.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: p.timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: base, APIVersion: ver},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	p.client = client

	return p, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Complete(ctx context.Context, msgs []upstream.Message) (*upstream.Completion, error) {
	if p.client == nil {
		return nil, upstream.ErrNotConfigured
	}

	contents, cfg := buildContentsAndConfig(msgs)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, toProviderError(err)
	}

	out := &upstream.Completion{}
	if resp == nil {
		return out, nil
	}
	if len(resp.Candidates) > 0 {
		out.Content = candidateText(resp.Candidates[0])
	}
	if resp.UsageMetadata != nil {
		out.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func buildContentsAndConfig(msgs []upstream.Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system strings.Builder
	contents := make([]*genai.Content, 0, len(msgs))

	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system", "developer":
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
		case "assistant", "model":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if system.Len() == 0 {
		return contents, nil
	}
	return contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system.String()}},
		},
	}
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range c.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func splitBaseURLAndVersion(raw string) (baseURL string, apiVersion string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		base := u.String()
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		return base, ""
	}

	parts := strings.Split(path, "/")
	if last := parts[len(parts)-1]; looksLikeAPIVersion(last) {
		apiVersion = last
		parts = parts[:len(parts)-1]
	}

	u.Path = "/" + strings.Join(parts, "/")
	if u.Path == "/" {
		u.Path = ""
	}

	baseURL = u.String()
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL, apiVersion
}

func looksLikeAPIVersion(s string) bool {
	return len(s) >= 2 && s[0] == 'v' && s[1] >= '0' && s[1] <= '9'
}

// ProviderError is a non-2xx answer from the Gemini API.
type ProviderError struct {
	StatusCode int
	Message    string
	Status     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("gemini: %s (status=%d, %s)", e.Message, e.StatusCode, e.Status)
}

// HTTPStatus implements upstream.StatusCoder.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Status:     apiErr.Status,
		}
	}
	return fmt.Errorf("gemini: %w", err)
}
