package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailureKind classifies adapter and orchestrator failures. Cancellation is
// deliberately absent: a cancelled generation is a normal terminal state and
// travels as context.Canceled, never as an *Error.
type FailureKind string

const (
	// FailValidation marks caller misuse (empty prompt, missing user). Fatal,
	// surfaced before any adapter runs.
	FailValidation FailureKind = "validation"
	// FailNotConfigured marks an adapter with no usable configuration.
	FailNotConfigured FailureKind = "not_configured"
	// FailCredential marks an auth failure that survived the single
	// acquisition-and-retry cycle.
	FailCredential FailureKind = "credential_invalid"
	// FailContentPolicy marks a provider-side safety block, carrying the
	// provider's stated reason verbatim.
	FailContentPolicy FailureKind = "content_policy"
	// FailRetrieval marks a generation that completed upstream but whose
	// artifact could not be fetched or stored.
	FailRetrieval FailureKind = "retrieval_failed"
	// FailProvider is the generic bucket for everything else.
	FailProvider FailureKind = "provider"
)

// Error is the typed failure produced by adapters and the orchestrator.
type Error struct {
	Kind     FailureKind
	Provider string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a typed failure with a formatted reason.
func NewError(kind FailureKind, provider, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: provider, Reason: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and provider to an underlying error.
func WrapError(kind FailureKind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the failure kind, defaulting unclassified errors to
// FailProvider. Cancellation has no kind.
func KindOf(err error) FailureKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return FailProvider
}

// IsCancelled reports whether err represents caller-initiated cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// specificity ranks kinds by how actionable they are for the user. Safety and
// credential problems beat generic network noise when only one error can be
// surfaced.
var specificity = map[FailureKind]int{
	FailValidation:    6,
	FailContentPolicy: 5,
	FailCredential:    4,
	FailRetrieval:     3,
	FailNotConfigured: 2,
	FailProvider:      1,
}

// MostSpecific selects the single most actionable error from a failed round.
// Raw cancellation errors are skipped; a typed *Error keeps its rank even
// when it wraps a context error, because an adapter-internal deadline is a
// provider failure, not a caller cancellation.
func MostSpecific(errs []error) error {
	var best error
	bestRank := -1
	for _, err := range errs {
		if err == nil {
			continue
		}
		var typed *Error
		if !errors.As(err, &typed) && IsCancelled(err) {
			continue
		}
		rank := specificity[KindOf(err)]
		if rank > bestRank {
			best = err
			bestRank = rank
		}
	}
	return best
}

// CredentialSignature reports whether an HTTP status plus provider message
// looks like an invalid or expired credential. Generic 400s keep their
// specific message and must not match.
func CredentialSignature(status int, message string) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	msg := strings.ToLower(message)
	return strings.Contains(msg, "api key") ||
		strings.Contains(msg, "api_key") ||
		strings.Contains(msg, "requested entity was not found")
}
