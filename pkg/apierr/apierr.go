// Package apierr provides the relay's error taxonomy, the user-facing messages
// for each kind, and the JSON error envelope written to clients.
//
// The envelope is intentionally flat:
//
//	{"error": "Rate limits exceeded, please try again later."}
package apierr

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindConfiguration   Kind = "configuration_error"
	KindRateLimited     Kind = "rate_limited"
	KindPaymentRequired Kind = "payment_required"
	KindUpstream        Kind = "upstream_error"
	KindStorage         Kind = "storage_error"
)

// User-facing messages.
const (
	MsgMissingMessage   = "Missing 'message'"
	MsgNotConfigured    = "AI not configured"
	MsgRateLimited      = "Rate limits exceeded, please try again later."
	MsgPaymentRequired  = "Payment required. Please add funds to your Lovable AI workspace."
	MsgUpstream         = "AI gateway error"
	MsgUnknown          = "Unknown error"
	MsgNotFound         = "Not found"
	MsgMethodNotAllowed = "Method not allowed"
)

// Error is a classified failure. Message is what the client sees; Err keeps
// the underlying cause for logs.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

type envelope struct {
	Error string `json:"error"`
}

// Validation returns a 400 error with the given client message.
func Validation(message string, cause error) *Error {
	return &Error{Kind: KindValidation, Status: fasthttp.StatusBadRequest, Message: message, Err: cause}
}

// NotConfigured is returned when the upstream credential is absent.
func NotConfigured(cause error) *Error {
	return &Error{Kind: KindConfiguration, Status: fasthttp.StatusInternalServerError, Message: MsgNotConfigured, Err: cause}
}

// Storage wraps a persistence failure. It is logged, never written to clients.
func Storage(cause error) *Error {
	return &Error{Kind: KindStorage, Status: fasthttp.StatusInternalServerError, Message: "storage write failed", Err: cause}
}

// FromUpstream maps a non-success upstream status to the surfaced error.
//
//	429           → 429 rate_limited
//	402           → 402 payment_required
//	anything else → 500 upstream_error (detail stays in Err)
func FromUpstream(upstreamStatus int, cause error) *Error {
	switch upstreamStatus {
	case fasthttp.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Status: fasthttp.StatusTooManyRequests, Message: MsgRateLimited, Err: cause}
	case fasthttp.StatusPaymentRequired:
		return &Error{Kind: KindPaymentRequired, Status: fasthttp.StatusPaymentRequired, Message: MsgPaymentRequired, Err: cause}
	default:
		return &Error{Kind: KindUpstream, Status: fasthttp.StatusInternalServerError, Message: MsgUpstream, Err: cause}
	}
}

// Resolve returns the status and client message for any error. Classified
// errors keep their own; everything else is a 500 carrying the error text.
func Resolve(err error) (int, string) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status, ae.Message
	}
	if err == nil || err.Error() == "" {
		return fasthttp.StatusInternalServerError, MsgUnknown
	}
	return fasthttp.StatusInternalServerError, err.Error()
}

// Write writes {"error": message} with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: message})
	ctx.SetBody(body)
}

// WriteError resolves err and writes it.
func WriteError(ctx *fasthttp.RequestCtx, err error) {
	status, msg := Resolve(err)
	Write(ctx, status, msg)
}
