// Package upstream defines the contract between the relays and the language
// model backend that generates answers.
//
// Each backend lives in its own sub-package and implements Completer. Every
// implementation makes exactly one attempt per call: SDK-level retries are
// disabled so the caller sees the upstream's own signal (429, 402, ...).
package upstream

import (
	"context"
	"errors"
	"time"
)

// FallbackText is returned to the caller when the upstream answered 2xx but
// carried no usable content.
const FallbackText = "Sorry, I couldn't generate a response."

// DefaultTimeout is the transport-level timeout applied to upstream calls.
const DefaultTimeout = 60 * time.Second

// ErrNotConfigured is returned when no upstream credential is available.
var ErrNotConfigured = errors.New("upstream: no API key configured")

type (
	// Message is one role-tagged turn sent upstream.
	Message struct {
		Role    string
		Content string
	}

	// Completion is the parsed upstream result. Content may be empty when the
	// upstream response carried no choices; TotalTokens is 0 when absent.
	Completion struct {
		Content     string
		TotalTokens int
	}
)

// Completer generates a completion for an ordered conversation.
type Completer interface {
	Name() string
	Complete(ctx context.Context, msgs []Message) (*Completion, error)
}

// StatusCoder is implemented by errors carrying the upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}
