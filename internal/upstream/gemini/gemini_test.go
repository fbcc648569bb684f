package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nulpointcorp/ai-relay/internal/upstream"
)

func newTestProvider(t *testing.T, srv *httptest.Server) *Provider {
	t.Helper()
	p, err := New(context.Background(), "mock-api-key", WithBaseURL(srv.URL+"/v1beta"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

func TestProvider_Name(t *testing.T) {
	p, err := New(context.Background(), "key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "gemini" {
		t.Fatalf("expected 'gemini', got %q", p.Name())
	}
}

func TestProvider_Complete_Success(t *testing.T) {
	var captured generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey := r.URL.Query().Get("key")
		if gotKey == "" {
			gotKey = r.Header.Get("X-Goog-Api-Key")
		}
		if gotKey != "mock-api-key" {
			t.Errorf("expected api key 'mock-api-key', got %q", gotKey)
		}
		if !strings.Contains(r.URL.Path, DefaultModel) || !strings.Contains(r.URL.Path, "generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates":[{"content":{"role":"model","parts":[{"text":"4"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":3,"totalTokenCount":12}
		}`)
	}))
	defer srv.Close()

	resp, err := newTestProvider(t, srv).Complete(context.Background(), []upstream.Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "What is 2+2?"},
		{Role: "assistant", Content: "Thinking"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "4" {
		t.Errorf("expected content '4', got %q", resp.Content)
	}
	if resp.TotalTokens != 12 {
		t.Errorf("expected 12 tokens, got %d", resp.TotalTokens)
	}

	if captured.SystemInstruction == nil || len(captured.SystemInstruction.Parts) == 0 ||
		captured.SystemInstruction.Parts[0].Text != "You are helpful." {
		t.Errorf("expected system prompt in systemInstruction, got %+v", captured.SystemInstruction)
	}
	if len(captured.Contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(captured.Contents))
	}
	if captured.Contents[1].Role != "model" {
		t.Errorf("expected assistant mapped to 'model', got %q", captured.Contents[1].Role)
	}
}

func TestProvider_Complete_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	resp, err := newTestProvider(t, srv).Complete(context.Background(), []upstream.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "" || resp.TotalTokens != 0 {
		t.Errorf("expected empty completion, got %+v", resp)
	}
}

func TestProvider_Complete_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprintln(w, `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	_, err := newTestProvider(t, srv).Complete(context.Background(), []upstream.Message{{Role: "user", Content: "hi"}})

	var sc upstream.StatusCoder
	if !errors.As(err, &sc) {
		t.Fatalf("expected StatusCoder, got %T: %v", err, err)
	}
	if sc.HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", sc.HTTPStatus())
	}
}

func TestProvider_Complete_NoKey(t *testing.T) {
	p, err := New(context.Background(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Complete(context.Background(), nil); !errors.Is(err, upstream.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSplitBaseURLAndVersion(t *testing.T) {
	cases := []struct {
		in, base, ver string
	}{
		{"https://generativelanguage.googleapis.com/v1beta", "https://generativelanguage.googleapis.com/", "v1beta"},
		{"http://127.0.0.1:9000/proxy/v1", "http://127.0.0.1:9000/proxy/", "v1"},
		{"http://127.0.0.1:9000", "http://127.0.0.1:9000/", ""},
		{"http://127.0.0.1:9000/proxy", "http://127.0.0.1:9000/proxy/", ""},
	}
	for _, tc := range cases {
		base, ver := splitBaseURLAndVersion(tc.in)
		if base != tc.base || ver != tc.ver {
			t.Errorf("%s: want (%q, %q), got (%q, %q)", tc.in, tc.base, tc.ver, base, ver)
		}
	}
}
