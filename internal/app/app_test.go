package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/nulpointcorp/ai-relay/internal/config"
	"github.com/nulpointcorp/ai-relay/internal/mock"
)

const anonKey = "anon"

type harness struct {
	gateway  *httptest.Server
	supabase *mock.Supabase
	sbServer *httptest.Server
}

func newHarness(t *testing.T, mcfg mock.Config) *harness {
	t.Helper()
	h := &harness{supabase: mock.NewSupabase(anonKey, mcfg)}
	h.gateway = httptest.NewServer(mock.NewGatewayHandler(mcfg))
	h.sbServer = httptest.NewServer(h.supabase.Handler())
	t.Cleanup(func() {
		h.gateway.Close()
		h.sbServer.Close()
	})
	return h
}

func (h *harness) config() *config.Config {
	return &config.Config{
		Port:     8080,
		LogLevel: "info",
		AI: config.AIConfig{
			Provider: config.ProviderGateway,
			APIKey:   "test-key",
			BaseURL:  h.gateway.URL + "/v1",
			Timeout:  5 * time.Second,
		},
		Store: config.StoreConfig{
			Mode:    config.StorePostgREST,
			Table:   "ai_chat_messages",
			Timeout: 5 * time.Second,
		},
		Supabase: config.SupabaseConfig{URL: h.sbServer.URL, AnonKey: anonKey},
		Redis:    config.RedisConfig{Stream: "ai_chat_messages"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, quietLogger(), "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

// serveApp runs the app's handler on an in-memory listener.
func serveApp(t *testing.T, a *App) *http.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = fasthttp.Serve(ln, a.Handler())
	}()
	t.Cleanup(func() { ln.Close() })

	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}
}

func postJSON(t *testing.T, c *http.Client, path, body, auth string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://relay"+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestApp_ChatThroughGateway(t *testing.T) {
	h := newHarness(t, mock.Config{})
	c := serveApp(t, newApp(t, h.config()))

	status, body := postJSON(t, c, "/ai-chat", `{"message":"What is 2+2?"}`, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if body["response"] != "echo: What is 2+2?" {
		t.Errorf("unexpected response %v", body)
	}
}

func TestApp_AssistantStored(t *testing.T) {
	h := newHarness(t, mock.Config{})
	c := serveApp(t, newApp(t, h.config()))

	status, body := postJSON(t, c, "/ai-assistant", `{"message":"hi","project_id":"p-1"}`, "Bearer user-jwt")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}

	rows := h.supabase.Rows("ai_chat_messages")
	if len(rows) != 1 {
		t.Fatalf("expected one stored row, got %d", len(rows))
	}
	if body["id"] != rows[0]["id"] {
		t.Errorf("response id %v does not match stored row %v", body["id"], rows[0]["id"])
	}
	if rows[0]["user_id"] != mock.UserID("user-jwt") {
		t.Errorf("unexpected owner %v", rows[0]["user_id"])
	}
	if rows[0]["project_id"] != "p-1" || rows[0]["message"] != "hi" || rows[0]["response"] != "echo: hi" {
		t.Errorf("unexpected row %v", rows[0])
	}
	if tokens, _ := body["tokens_used"].(float64); tokens <= 0 {
		t.Errorf("expected token usage, got %v", body["tokens_used"])
	}
}

func TestApp_AssistantStorageDown(t *testing.T) {
	for _, tc := range []struct {
		name string
		mcfg mock.Config
		auth string
	}{
		{"anonymous caller", mock.Config{}, ""},
		{"store failing", mock.Config{StoreFail: true}, "Bearer user-jwt"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.mcfg)
			c := serveApp(t, newApp(t, h.config()))

			status, body := postJSON(t, c, "/ai-assistant", `{"message":"hi"}`, tc.auth)
			if status != http.StatusOK {
				t.Fatalf("storage failure must not surface, got %d: %v", status, body)
			}
			if body["response"] != "echo: hi" {
				t.Errorf("unexpected response %v", body["response"])
			}
			id, _ := body["id"].(string)
			if _, err := uuid.Parse(id); err != nil {
				t.Errorf("expected a generated id, got %q", id)
			}
			if n := len(h.supabase.Rows("ai_chat_messages")); n != 0 {
				t.Errorf("nothing must be stored, got %d rows", n)
			}
		})
	}
}

func TestApp_UpstreamRateLimited(t *testing.T) {
	h := newHarness(t, mock.Config{Status: http.StatusTooManyRequests})
	c := serveApp(t, newApp(t, h.config()))

	status, body := postJSON(t, c, "/ai-assistant", `{"message":"hi"}`, "Bearer user-jwt")
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
	if body["error"] != "Rate limits exceeded, please try again later." {
		t.Errorf("unexpected error %v", body["error"])
	}
	if n := len(h.supabase.Rows("ai_chat_messages")); n != 0 {
		t.Errorf("nothing must be stored on upstream failure, got %d rows", n)
	}
}

func TestApp_OmittedChoicesFallback(t *testing.T) {
	h := newHarness(t, mock.Config{OmitChoices: true})
	c := serveApp(t, newApp(t, h.config()))

	status, body := postJSON(t, c, "/ai-chat", `{"message":"hi"}`, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["response"] != "Sorry, I couldn't generate a response." {
		t.Errorf("unexpected response %v", body["response"])
	}
}

func TestApp_NotConfigured(t *testing.T) {
	h := newHarness(t, mock.Config{})
	cfg := h.config()
	cfg.AI.APIKey = ""
	cfg.Store.Mode = config.StoreDisabled

	c := serveApp(t, newApp(t, cfg))

	status, body := postJSON(t, c, "/ai-chat", `{"message":"hi"}`, "")
	if status != http.StatusInternalServerError || body["error"] != "AI not configured" {
		t.Errorf("expected 500 AI not configured, got %d %v", status, body)
	}
}

func TestApp_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	h := newHarness(t, mock.Config{})
	cfg := h.config()
	cfg.Store.Mode = config.StoreRedis
	cfg.Redis.URL = "redis://" + mr.Addr()

	c := serveApp(t, newApp(t, cfg))

	status, body := postJSON(t, c, "/ai-assistant", `{"message":"hi"}`, "Bearer user-jwt")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	entries, err := rdb.XRange(context.Background(), "ai_chat_messages", "-", "+").Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one stream entry, got %d", len(entries))
	}
	if entries[0].Values["id"] != body["id"] {
		t.Errorf("stream id %v does not match response %v", entries[0].Values["id"], body["id"])
	}
	if entries[0].Values["user_id"] != mock.UserID("user-jwt") {
		t.Errorf("unexpected owner %v", entries[0].Values["user_id"])
	}
}

func TestApp_RedisUnreachable(t *testing.T) {
	h := newHarness(t, mock.Config{})
	cfg := h.config()
	cfg.Store.Mode = config.StoreRedis
	cfg.Redis.URL = "redis://127.0.0.1:1"

	if _, err := New(context.Background(), cfg, quietLogger(), "test"); err == nil {
		t.Fatal("expected startup to fail without redis")
	}
}

func TestApp_CloseIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	h := newHarness(t, mock.Config{})
	cfg := h.config()
	cfg.Store.Mode = config.StoreRedis
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg, quietLogger(), "test")
	if err != nil {
		t.Fatal(err)
	}
	a.Close()
	a.Close()
}

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"redis://:secret@localhost:6379":       "redis://***@localhost:6379",
		"clickhouse://user:pw@ch:9000/default": "clickhouse://***@ch:9000/default",
		"redis://localhost:6379":               "redis://localhost:6379",
		"user:pw@host":                         "***@host",
		"":                                     "",
	}
	for in, want := range cases {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q): want %q, got %q", in, want, got)
		}
	}
}
