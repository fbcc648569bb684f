// Package mock provides lightweight HTTP stand-ins for the relay's two
// collaborators: the chat-completion gateway and Supabase (auth + PostgREST).
// They are used by cmd/mock-upstream for local E2E runs and by tests.
//
// Behaviour flags (via env, see LoadConfig):
//
//	MOCK_LATENCY_MS    artificial latency added to every gateway response (default 0)
//	MOCK_STATUS        force the gateway to answer with this HTTP status (e.g. 429, 402, 500)
//	MOCK_OMIT_CHOICES  answer 200 without a "choices" field
//	MOCK_STORE_FAIL    make every PostgREST insert fail with 401
package mock

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Config holds runtime behaviour shared by the mock servers.
type Config struct {
	LatencyMS   int
	Status      int
	OmitChoices bool
	StoreFail   bool
}

// LoadConfig reads the MOCK_* environment variables. Unparseable values are
// ignored.
func LoadConfig() Config {
	var c Config

	if v := os.Getenv("MOCK_LATENCY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.LatencyMS = n
		}
	}
	if v := os.Getenv("MOCK_STATUS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 100 && n <= 599 {
			c.Status = n
		}
	}
	c.OmitChoices = envBool("MOCK_OMIT_CHOICES")
	c.StoreFail = envBool("MOCK_STORE_FAIL")
	return c
}

func envBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}

// applyLatency sleeps for the configured latency.
func applyLatency(cfg Config) {
	if cfg.LatencyMS > 0 {
		time.Sleep(time.Duration(cfg.LatencyMS) * time.Millisecond)
	}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// bearer extracts the token from an "Authorization: Bearer <token>" header.
func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
