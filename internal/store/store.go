// Package store records chat exchanges produced by the persisting relay.
//
// A Store hands out a caller-scoped Scope per request; the scope carries the
// caller's own Authorization header so that access policy is enforced by the
// backend. Each Insert is a single write attempt.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single store or identity round-trip.
const DefaultTimeout = 10 * time.Second

// ErrUnauthenticated is returned by backends that require a resolved owner.
var ErrUnauthenticated = errors.New("store: caller is not authenticated")

type (
	// Exchange is one question/answer pair to be written.
	Exchange struct {
		UserID     *string
		ProjectID  *string
		Message    string
		Response   string
		TokensUsed int
	}

	// Record is the written row as returned to the caller.
	Record struct {
		ID         string `json:"id"`
		Response   string `json:"response"`
		TokensUsed int    `json:"tokens_used"`
		CreatedAt  string `json:"created_at"`
	}
)

// Store builds caller-scoped clients.
type Store interface {
	Name() string
	Scope(authorization string) Scope
}

// Scope writes on behalf of a single caller.
type Scope interface {
	Insert(ctx context.Context, ex *Exchange) (*Record, error)
}

// IdentityResolver maps a forwarded Authorization header to the caller's id.
// A failed or anonymous lookup yields nil, never an error.
type IdentityResolver interface {
	Resolve(ctx context.Context, authorization string) *string
}

// HTTPError is a non-2xx answer from an HTTP-fronted store.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("store: status %d: %s", e.StatusCode, e.Body)
}

// Timestamp formats t the way records carry created_at.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
