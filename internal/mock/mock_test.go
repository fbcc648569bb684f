package mock

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func post(t *testing.T, url, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

const chatBody = `{"model":"m","stream":false,"messages":[
	{"role":"system","content":"be brief"},
	{"role":"user","content":"What is 2+2?"}
]}`

// --- gateway ----------------------------------------------------------------

func TestGateway_Echo(t *testing.T) {
	srv := httptest.NewServer(NewGatewayHandler(Config{}))
	defer srv.Close()

	resp, body := post(t, srv.URL+"/v1/chat/completions", chatBody, map[string]string{"Authorization": "Bearer k"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Choices) != 1 || out.Choices[0].Message.Content != "echo: What is 2+2?" {
		t.Errorf("unexpected choices %+v", out.Choices)
	}
	// prompt: "be brief" (2) + "What is 2+2?" (3); completion: 4 words.
	if out.Usage.TotalTokens != 9 {
		t.Errorf("expected 9 total tokens, got %d", out.Usage.TotalTokens)
	}
}

func TestGateway_Flags(t *testing.T) {
	cases := []struct {
		name       string
		cfg        Config
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{"forced 429", Config{Status: 429}, 429, nil},
		{"forced 402", Config{Status: 402}, 402, nil},
		{"omit choices", Config{OmitChoices: true}, 200, func(t *testing.T, body map[string]any) {
			if _, ok := body["choices"]; ok {
				t.Error("choices must be omitted")
			}
			if _, ok := body["usage"]; !ok {
				t.Error("usage must still be present")
			}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(NewGatewayHandler(tc.cfg))
			defer srv.Close()

			resp, raw := post(t, srv.URL+"/v1/chat/completions", chatBody, map[string]string{"Authorization": "Bearer k"})
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, resp.StatusCode)
			}
			if tc.check != nil {
				var body map[string]any
				if err := json.Unmarshal(raw, &body); err != nil {
					t.Fatal(err)
				}
				tc.check(t, body)
			}
		})
	}
}

func TestGateway_RequiresBearer(t *testing.T) {
	srv := httptest.NewServer(NewGatewayHandler(Config{}))
	defer srv.Close()

	resp, _ := post(t, srv.URL+"/v1/chat/completions", chatBody, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

// --- supabase ---------------------------------------------------------------

func TestSupabase_User(t *testing.T) {
	sb := NewSupabase("anon", Config{})
	srv := httptest.NewServer(sb.Handler())
	defer srv.Close()

	get := func(auth string) (int, map[string]any) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/auth/v1/user", nil)
		req.Header.Set("apikey", "anon")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, body
	}

	status, body := get("Bearer user-jwt")
	if status != http.StatusOK || body["id"] != UserID("user-jwt") {
		t.Errorf("expected user id, got %d %v", status, body)
	}
	if status, _ := get("Bearer anon"); status != http.StatusUnauthorized {
		t.Errorf("anon key must not resolve to a user, got %d", status)
	}
	if status, _ := get(""); status != http.StatusUnauthorized {
		t.Errorf("missing bearer must be rejected, got %d", status)
	}
}

func TestSupabase_Insert(t *testing.T) {
	sb := NewSupabase("anon", Config{})
	srv := httptest.NewServer(sb.Handler())
	defer srv.Close()

	owner := UserID("user-jwt")
	body := `{"user_id":"` + owner + `","project_id":null,"message":"hi","response":"Done","tokens_used":12}`
	resp, raw := post(t, srv.URL+"/rest/v1/ai_chat_messages", body, map[string]string{
		"apikey":        "anon",
		"Authorization": "Bearer user-jwt",
		"Prefer":        "return=representation",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, raw)
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["id"] == "" || rows[0]["created_at"] == "" || rows[0]["response"] != "Done" {
		t.Errorf("unexpected representation %v", rows)
	}
	if got := sb.Rows("ai_chat_messages"); len(got) != 1 {
		t.Errorf("expected 1 stored row, got %d", len(got))
	}
}

func TestSupabase_InsertRejected(t *testing.T) {
	cases := []struct {
		name  string
		cfg   Config
		auth  string
		owner string
	}{
		{"anon bearer", Config{}, "Bearer anon", ""},
		{"owner mismatch", Config{}, "Bearer user-jwt", "someone-else"},
		{"store fail flag", Config{StoreFail: true}, "Bearer user-jwt", UserID("user-jwt")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sb := NewSupabase("anon", tc.cfg)
			srv := httptest.NewServer(sb.Handler())
			defer srv.Close()

			body := `{"user_id":"` + tc.owner + `","message":"hi","response":"r","tokens_used":1}`
			resp, _ := post(t, srv.URL+"/rest/v1/ai_chat_messages", body, map[string]string{
				"apikey":        "anon",
				"Authorization": tc.auth,
			})
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", resp.StatusCode)
			}
			if n := len(sb.Rows("ai_chat_messages")); n != 0 {
				t.Errorf("nothing must be stored, got %d rows", n)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("MOCK_LATENCY_MS", "25")
	t.Setenv("MOCK_STATUS", "429")
	t.Setenv("MOCK_OMIT_CHOICES", "true")
	t.Setenv("MOCK_STORE_FAIL", "1")

	got := LoadConfig()
	want := Config{LatencyMS: 25, Status: 429, OmitChoices: true, StoreFail: true}
	if got != want {
		t.Errorf("want %+v, got %+v", want, got)
	}

	t.Setenv("MOCK_STATUS", "nope")
	t.Setenv("MOCK_STORE_FAIL", "")
	if got := LoadConfig(); got.Status != 0 || got.StoreFail {
		t.Errorf("invalid values must be ignored, got %+v", got)
	}
}
