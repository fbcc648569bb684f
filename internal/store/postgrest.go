package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultTable = "ai_chat_messages"

	returnColumns = "id,response,tokens_used,created_at"
)

// PostgREST writes exchanges through a Supabase-style PostgREST endpoint.
// Row-level security is enforced by the database using the forwarded
// Authorization header.
type PostgREST struct {
	client  *resty.Client
	anonKey string
	table   string
}

// PostgRESTOption configures a PostgREST store.
type PostgRESTOption func(*PostgREST)

func WithTable(name string) PostgRESTOption {
	return func(p *PostgREST) {
		if name != "" {
			p.table = name
		}
	}
}

func WithTimeout(d time.Duration) PostgRESTOption {
	return func(p *PostgREST) {
		if d > 0 {
			p.client.SetTimeout(d)
		}
	}
}

// NewPostgREST returns a store rooted at baseURL (the Supabase project URL).
func NewPostgREST(baseURL, anonKey string, opts ...PostgRESTOption) *PostgREST {
	p := &PostgREST{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(DefaultTimeout),
		anonKey: anonKey,
		table:   DefaultTable,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *PostgREST) Name() string { return "postgrest" }

// Scope binds the caller's Authorization header. Callers without one are
// sent with the anon key as bearer, which RLS typically rejects.
func (p *PostgREST) Scope(authorization string) Scope {
	if authorization == "" {
		authorization = "Bearer " + p.anonKey
	}
	return &postgrestScope{store: p, authorization: authorization}
}

type postgrestScope struct {
	store         *PostgREST
	authorization string
}

type postgrestRow struct {
	UserID     *string `json:"user_id"`
	ProjectID  *string `json:"project_id"`
	Message    string  `json:"message"`
	Response   string  `json:"response"`
	TokensUsed int     `json:"tokens_used"`
}

func (s *postgrestScope) Insert(ctx context.Context, ex *Exchange) (*Record, error) {
	res, err := s.store.client.R().
		SetContext(ctx).
		SetHeader("apikey", s.store.anonKey).
		SetHeader("Authorization", s.authorization).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "return=representation").
		SetQueryParam("select", returnColumns).
		SetBody(postgrestRow{
			UserID:     ex.UserID,
			ProjectID:  ex.ProjectID,
			Message:    ex.Message,
			Response:   ex.Response,
			TokensUsed: ex.TokensUsed,
		}).
		Post("/rest/v1/" + s.store.table)
	if err != nil {
		return nil, fmt.Errorf("store: postgrest insert: %w", err)
	}

	if !res.IsSuccess() {
		return nil, &HTTPError{StatusCode: res.StatusCode(), Body: res.String()}
	}

	var rows []Record
	if err := json.Unmarshal(res.Body(), &rows); err != nil {
		return nil, fmt.Errorf("store: postgrest decode: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("store: postgrest insert returned no rows")
	}

	return &rows[0], nil
}
