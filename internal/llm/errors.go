// In file: internal/llm/errors.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUpstreamUnavailable matches every *UpstreamError via errors.Is.
var ErrUpstreamUnavailable = errors.New("enhancement service degraded: upstream unavailable")

// ErrNoModel is returned when no registered model can serve a task.
var ErrNoModel = errors.New("no model available for task")

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindCanceled    ErrorKind = "canceled"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"
	KindCircuitOpen ErrorKind = "circuit_open"
	KindBadResponse ErrorKind = "bad_response"
	KindRejected    ErrorKind = "rejected"
)

// UpstreamError is the typed error every provider call surfaces to callers.
type UpstreamError struct {
	Provider   string
	Model      string
	Kind       ErrorKind
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "upstream %s", e.Kind)
	if e.Provider != "" {
		fmt.Fprintf(&b, " (provider=%s", e.Provider)
		if e.Model != "" {
			fmt.Fprintf(&b, " model=%s", e.Model)
		}
		b.WriteString(")")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// AsUpstreamError unwraps err into an *UpstreamError when possible.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// statusError maps a non-2xx provider response onto an UpstreamError.
func statusError(provider, model string, status int, body []byte) *UpstreamError {
	ue := &UpstreamError{
		Provider:   provider,
		Model:      model,
		StatusCode: status,
		Err:        fmt.Errorf("%s API error: body: %s", provider, truncate(string(body), 512)),
	}
	switch {
	case status == http.StatusTooManyRequests:
		ue.Kind, ue.Retryable = KindRateLimited, true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		ue.Kind, ue.Retryable = KindTimeout, true
	case status >= 500:
		ue.Kind, ue.Retryable = KindUnavailable, true
	default:
		ue.Kind = KindRejected
	}
	return ue
}

// transportError classifies a failure that happened before a response arrived.
func transportError(ctx context.Context, provider, model string, err error) *UpstreamError {
	ue := &UpstreamError{Provider: provider, Model: model, Err: err, Retryable: true}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		ue.Kind = KindTimeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		ue.Kind = KindCanceled
	default:
		ue.Kind = KindUnavailable
	}
	return ue
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
