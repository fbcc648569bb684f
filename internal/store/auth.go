package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// SupabaseAuth resolves callers through GET /auth/v1/user.
type SupabaseAuth struct {
	client  *resty.Client
	anonKey string
	log     *slog.Logger
}

func NewSupabaseAuth(baseURL, anonKey string, timeout time.Duration, log *slog.Logger) *SupabaseAuth {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &SupabaseAuth{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout),
		anonKey: anonKey,
		log:     log,
	}
}

type supabaseUser struct {
	ID string `json:"id"`
}

// Resolve returns the caller's user id, or nil when the header is absent,
// the token is rejected, or the lookup fails.
func (a *SupabaseAuth) Resolve(ctx context.Context, authorization string) *string {
	if authorization == "" {
		return nil
	}

	res, err := a.client.R().
		SetContext(ctx).
		SetHeader("apikey", a.anonKey).
		SetHeader("Authorization", authorization).
		Get("/auth/v1/user")
	if err != nil {
		a.log.WarnContext(ctx, "identity_lookup_failed", slog.String("error", err.Error()))
		return nil
	}
	if !res.IsSuccess() {
		a.log.DebugContext(ctx, "identity_rejected", slog.Int("status", res.StatusCode()))
		return nil
	}

	var u supabaseUser
	if err := json.Unmarshal(res.Body(), &u); err != nil || u.ID == "" {
		return nil
	}
	return &u.ID
}
