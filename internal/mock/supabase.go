package mock

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Supabase simulates the two Supabase surfaces the relay uses:
//
//	GET  /auth/v1/user      : any bearer other than the anon key is a user
//	POST /rest/v1/{table}   : appends the row in memory and returns it
//
// Inserts made with the anon key alone are rejected the way a row-level
// security policy would reject them.
type Supabase struct {
	anonKey string
	cfg     Config

	mu   sync.Mutex
	rows map[string][]map[string]any
}

func NewSupabase(anonKey string, cfg Config) *Supabase {
	return &Supabase{anonKey: anonKey, cfg: cfg, rows: make(map[string][]map[string]any)}
}

// UserID is the deterministic id the mock assigns to a bearer token.
func UserID(token string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mock-user:"+token)).String()
}

// Rows returns a copy of everything inserted into table.
func (s *Supabase) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.rows[table]...)
}

func (s *Supabase) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/v1/user", s.handleUser)
	mux.HandleFunc("POST /rest/v1/{table}", s.handleInsert)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
	})
	return mux
}

func (s *Supabase) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != s.anonKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
		return
	}
	token := bearer(r)
	if token == "" || token == s.anonKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":   UserID(token),
		"aud":  "authenticated",
		"role": "authenticated",
	})
}

func (s *Supabase) handleInsert(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != s.anonKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
		return
	}
	if s.cfg.StoreFail {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "PGRST301", "message": "JWT expired"})
		return
	}

	token := bearer(r)
	var row map[string]any
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil || row == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "PGRST102", "message": "Invalid body"})
		return
	}

	owner, _ := row["user_id"].(string)
	if token == "" || token == s.anonKey || owner != UserID(token) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"code":    "42501",
			"message": `new row violates row-level security policy for table "` + r.PathValue("table") + `"`,
		})
		return
	}

	row["id"] = uuid.NewString()
	row["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	table := r.PathValue("table")
	s.rows[table] = append(s.rows[table], row)
	s.mu.Unlock()

	if r.Header.Get("Prefer") == "return=representation" {
		writeJSON(w, http.StatusCreated, []map[string]any{row})
		return
	}
	w.WriteHeader(http.StatusCreated)
}
