package keygate

import (
	"context"
	"errors"
	"testing"
)

type stubSource struct {
	token string
	err   error
	calls int
}

func (s *stubSource) Token(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.token, s.err
}

type stubSelector struct {
	keys  []string
	err   error
	calls int
}

func (s *stubSelector) SelectKey(_ context.Context, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.keys) == 0 {
		return "", nil
	}
	key := s.keys[0]
	s.keys = s.keys[1:]
	return key, nil
}

func TestEnsureAvailablePrefersEnvKey(t *testing.T) {
	src := &stubSource{token: "db-key"}
	g := New("gemini", "env-key", src, nil)

	key, err := g.EnsureAvailable(context.Background())
	if err != nil {
		t.Fatalf("EnsureAvailable: %v", err)
	}
	if key != "env-key" {
		t.Fatalf("got %q, want env-key", key)
	}
	if src.calls != 0 {
		t.Fatalf("token source consulted %d times, want 0", src.calls)
	}
}

func TestEnsureAvailableFallsBackToSource(t *testing.T) {
	src := &stubSource{token: "db-key"}
	g := New("gemini", "", src, nil)

	key, err := g.EnsureAvailable(context.Background())
	if err != nil {
		t.Fatalf("EnsureAvailable: %v", err)
	}
	if key != "db-key" {
		t.Fatalf("got %q, want db-key", key)
	}
}

func TestEnsureAvailableRunsSelectorWhenNothingAmbient(t *testing.T) {
	sel := &stubSelector{keys: []string{"picked"}}
	g := New("openai", "", &stubSource{}, sel)

	key, err := g.EnsureAvailable(context.Background())
	if err != nil {
		t.Fatalf("EnsureAvailable: %v", err)
	}
	if key != "picked" {
		t.Fatalf("got %q, want picked", key)
	}

	// Acquired key is remembered; the selector is not re-run.
	key, err = g.EnsureAvailable(context.Background())
	if err != nil {
		t.Fatalf("second EnsureAvailable: %v", err)
	}
	if key != "picked" || sel.calls != 1 {
		t.Fatalf("got %q after %d selector calls, want picked after 1", key, sel.calls)
	}
}

func TestEnsureAvailableNoKeyNoSelector(t *testing.T) {
	g := New("sora", "", &stubSource{}, nil)
	if _, err := g.EnsureAvailable(context.Background()); !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("err = %v, want ErrCredentialUnavailable", err)
	}
}

func TestReacquireReplacesKey(t *testing.T) {
	sel := &stubSelector{keys: []string{"first", "second"}}
	g := New("veo", "", nil, sel)

	if _, err := g.EnsureAvailable(context.Background()); err != nil {
		t.Fatalf("EnsureAvailable: %v", err)
	}
	key, err := g.Reacquire(context.Background())
	if err != nil {
		t.Fatalf("Reacquire: %v", err)
	}
	if key != "second" {
		t.Fatalf("got %q, want second", key)
	}
	key, _ = g.EnsureAvailable(context.Background())
	if key != "second" {
		t.Fatalf("EnsureAvailable after Reacquire = %q, want second", key)
	}
}

func TestReacquireWithoutSelector(t *testing.T) {
	g := New("veo", "env", nil, nil)
	if _, err := g.Reacquire(context.Background()); !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("err = %v, want ErrCredentialUnavailable", err)
	}
	if g.CanReacquire() {
		t.Fatal("CanReacquire = true, want false")
	}
}

func TestConfigured(t *testing.T) {
	if New("x", "", nil, nil).Configured() {
		t.Fatal("empty gate reports configured")
	}
	if !New("x", "k", nil, nil).Configured() {
		t.Fatal("env-key gate reports unconfigured")
	}
	if !New("x", "", &stubSource{}, nil).Configured() {
		t.Fatal("source-backed gate reports unconfigured")
	}
}
