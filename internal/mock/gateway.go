package mock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewGatewayHandler returns an http.Handler that simulates the OpenAI-shaped
// chat-completion gateway. The reply echoes the last user message.
func NewGatewayHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeGatewayError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if bearer(r) == "" {
			writeGatewayError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		applyLatency(cfg)

		if cfg.Status != 0 && cfg.Status != http.StatusOK {
			writeGatewayError(w, cfg.Status, fmt.Sprintf("mock forced status %d", cfg.Status))
			return
		}

		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeGatewayError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Stream {
			writeGatewayError(w, http.StatusBadRequest, "streaming is not supported by the mock")
			return
		}

		var last string
		promptTokens := 0
		for _, m := range req.Messages {
			promptTokens += len(strings.Fields(m.Content))
			if m.Role == "user" {
				last = m.Content
			}
		}
		content := "echo: " + last
		completionTokens := len(strings.Fields(content))

		body := map[string]any{
			"id":      "chatcmpl-mock-" + uuid.NewString(),
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req.Model,
			"usage": map[string]int{
				"prompt_tokens":     promptTokens,
				"completion_tokens": completionTokens,
				"total_tokens":      promptTokens + completionTokens,
			},
		}
		if !cfg.OmitChoices {
			body["choices"] = []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}}
		}

		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeGatewayError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", r.URL.Path))
	})

	return mux
}

func writeGatewayError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"message": msg,
			"type":    strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		},
	})
}
