// Package keygate answers the question every adapter asks before touching a
// provider: is there a usable API key, and if not, can one be acquired?
package keygate

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrCredentialUnavailable is returned when no key exists and no acquisition
// flow can run in the current context.
var ErrCredentialUnavailable = errors.New("keygate: no usable credential available")

// TokenSource looks up an ambient credential for a provider. The DB-backed
// credentials.Store satisfies it.
type TokenSource interface {
	Token(ctx context.Context, provider string) (string, error)
}

// Selector drives an interactive key-acquisition flow, blocking until the
// user completes or cancels it. Absent in non-interactive deployments.
type Selector interface {
	SelectKey(ctx context.Context, provider string) (string, error)
}

// Gate checks for and acquires the credential of one provider. Safe to call
// before every invocation; lookups are cheap and acquisition results are
// remembered.
type Gate struct {
	provider string
	envKey   string
	source   TokenSource
	selector Selector

	mu       sync.Mutex
	acquired string
}

// New builds a gate. Any of envKey, source, and selector may be zero; the
// gate fails fast only when all are.
func New(provider, envKey string, source TokenSource, selector Selector) *Gate {
	return &Gate{
		provider: provider,
		envKey:   strings.TrimSpace(envKey),
		source:   source,
		selector: selector,
	}
}

// Configured reports whether an invocation could plausibly find a key. Used
// by Adapter.Configured.
func (g *Gate) Configured() bool {
	if g == nil {
		return false
	}
	return g.envKey != "" || g.source != nil || g.selector != nil
}

// CanReacquire reports whether an interactive acquisition flow is wired.
func (g *Gate) CanReacquire() bool {
	return g != nil && g.selector != nil
}

// EnsureAvailable returns a usable key, triggering the acquisition flow when
// nothing ambient exists. Idempotent.
func (g *Gate) EnsureAvailable(ctx context.Context) (string, error) {
	if g == nil {
		return "", ErrCredentialUnavailable
	}
	if g.envKey != "" {
		return g.envKey, nil
	}

	g.mu.Lock()
	acquired := g.acquired
	g.mu.Unlock()
	if acquired != "" {
		return acquired, nil
	}

	if g.source != nil {
		token, err := g.source.Token(ctx, g.provider)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}

	return g.Reacquire(ctx)
}

// Reacquire forces one round of the interactive acquisition flow, discarding
// any previously acquired key. Callers use it for the single retry after a
// credential rejection.
func (g *Gate) Reacquire(ctx context.Context) (string, error) {
	if g == nil || g.selector == nil {
		return "", ErrCredentialUnavailable
	}
	key, err := g.selector.SelectKey(ctx, g.provider)
	if err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrCredentialUnavailable
	}
	g.mu.Lock()
	g.acquired = key
	g.mu.Unlock()
	return key, nil
}
