package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies a backend failure for the failure tracker and the
// recovery sweep. Unknown errors are treated as transient.
type FailureKind string

const (
	// FailureTransient covers timeouts, connection failures and rate limits.
	// Retried via the fallback sequence.
	FailureTransient FailureKind = "transient"

	// FailurePermanent covers auth failures, exhausted quotas and malformed
	// model names. The backend is disabled for the remainder of the run.
	FailurePermanent FailureKind = "permanent"

	// FailureContentPolicy is a provider content-policy rejection. Permanent,
	// and by default exempt from the recovery sweep.
	FailureContentPolicy FailureKind = "content_policy"

	// FailureParse marks a response that could not be parsed. Counted like a
	// transient failure so another backend gets a chance to answer well-formed.
	FailureParse FailureKind = "parse"
)

// ErrExhausted signals that every candidate backend failed for a call.
// Distinct from "no content for this item"; callers must not conflate the two.
var ErrExhausted = errors.New("all analysis backends failed")

// BackendError wraps a provider error with the backend name and failure kind
type BackendError struct {
	Backend string
	Kind    FailureKind
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s (%s): %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether the failure disables the backend immediately
func (e *BackendError) IsPermanent() bool {
	return e.Kind == FailurePermanent || e.Kind == FailureContentPolicy
}

// KindOf extracts the failure kind from an error chain. Unknown errors are
// transient so an unexpected provider error never bricks a backend.
func KindOf(err error) FailureKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return FailureTransient
}

// classify maps a raw provider error to a failure kind by inspecting the
// error text. Providers do not share a structured error surface, so string
// matching mirrors what each API is known to emit.
func classify(err error) FailureKind {
	if err == nil {
		return FailureTransient
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "safety"),
		strings.Contains(msg, "prohibited_content"),
		strings.Contains(msg, "content policy"),
		strings.Contains(msg, "content_policy"):
		return FailureContentPolicy
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "api key not valid"):
		return FailurePermanent
	case strings.Contains(msg, "model not found"),
		strings.Contains(msg, "404"),
		strings.Contains(msg, "unknown model"),
		strings.Contains(msg, "does not exist"):
		return FailurePermanent
	default:
		return FailureTransient
	}
}

// wrapErr builds a classified BackendError for a provider failure. Errors
// already classified deeper in the call (e.g. a safety rejection detected in
// the response body) pass through unchanged.
func wrapErr(backend string, err error) error {
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Backend: backend, Kind: classify(err), Err: err}
}
