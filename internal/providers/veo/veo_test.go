package veo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrchevyceleb/vibecanvas/internal/providers"
	"github.com/mrchevyceleb/vibecanvas/internal/providers/keygate"
)

func newTestAdapter(t *testing.T, mux *http.ServeMux) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(Options{
		Gate:         keygate.New(ProviderID, "k-test", nil, nil),
		BaseURL:      srv.URL,
		HTTPClient:   srv.Client(),
		PollInterval: time.Millisecond,
	}), srv
}

func TestNormalizeRatioAndDefaults(t *testing.T) {
	a := New(Options{})
	for _, portrait := range []string{"9:16", "2:3", "4:5"} {
		got := a.Normalize(providers.GenerateRequest{AspectRatio: portrait})
		if got.AspectRatio != "9:16" {
			t.Errorf("ratio %q normalized to %q, want 9:16", portrait, got.AspectRatio)
		}
	}
	got := a.Normalize(providers.GenerateRequest{AspectRatio: "3:2"})
	if got.AspectRatio != "16:9" {
		t.Fatalf("landscape ratio = %q, want 16:9", got.AspectRatio)
	}
	if got.DurationSeconds != "8" || got.Resolution != "720p" {
		t.Fatalf("defaults = %q / %q, want 8 / 720p", got.DurationSeconds, got.Resolution)
	}
}

func TestGenerateOperationLifecycle(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("POST /models/veo-3.1-generate-preview:predictLongRunning", func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode submit: %v", err)
		}
		if len(req.Instances) != 1 || req.Parameters.AspectRatio != "16:9" {
			t.Errorf("unexpected submit payload: %+v", req)
		}
		if req.Parameters.NegativePrompt != "blurry" {
			t.Errorf("negative prompt not forwarded: %+v", req.Parameters)
		}
		json.NewEncoder(w).Encode(operation{Name: "operations/op1"})
	})
	mux.HandleFunc("GET /operations/op1", func(w http.ResponseWriter, _ *http.Request) {
		if polls.Add(1) < 2 {
			json.NewEncoder(w).Encode(operation{Name: "operations/op1"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name": "operations/op1",
			"done": true,
			"response": map[string]any{
				"generateVideoResponse": map[string]any{
					"generatedSamples": []map[string]any{{"video": map[string]string{"uri": srv.URL + "/files/clip.mp4"}}},
				},
			},
		})
	})
	mux.HandleFunc("GET /files/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "k-test" {
			t.Errorf("download missing api key header")
		}
		w.Write([]byte("veo-mp4"))
	})

	a, server := newTestAdapter(t, mux)
	srv = server
	items, err := a.Generate(context.Background(), providers.GenerateRequest{
		Prompt:         "a storm",
		AspectRatio:    "21:9",
		NegativePrompt: "blurry",
	}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(items) != 1 || string(items[0].Data) != "veo-mp4" || items[0].MIME != "video/mp4" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestGenerateRaiFilteredIsContentPolicy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /models/veo-3.1-generate-preview:predictLongRunning", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name": "operations/op2",
			"done": true,
			"response": map[string]any{
				"generateVideoResponse": map[string]any{
					"raiMediaFilteredReasons": []string{"Violence detected in generated content"},
				},
			},
		})
	})

	a, _ := newTestAdapter(t, mux)
	_, err := a.Generate(context.Background(), providers.GenerateRequest{Prompt: "p"}, nil)
	if providers.KindOf(err) != providers.FailContentPolicy {
		t.Fatalf("kind = %v (%v), want content_policy", providers.KindOf(err), err)
	}
	var perr *providers.Error
	if !errors.As(err, &perr) || !strings.Contains(perr.Reason, "Violence detected") {
		t.Fatalf("filter reason not carried: %v", err)
	}
}

func TestGenerateOperationError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /models/veo-3.1-generate-preview:predictLongRunning", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name":  "operations/op3",
			"done":  true,
			"error": map[string]any{"code": 13, "message": "internal rendering error"},
		})
	})

	a, _ := newTestAdapter(t, mux)
	_, err := a.Generate(context.Background(), providers.GenerateRequest{Prompt: "p"}, nil)
	if providers.KindOf(err) != providers.FailProvider {
		t.Fatalf("kind = %v (%v), want provider", providers.KindOf(err), err)
	}
}

func TestGenerateRetrievalFailureOnDownload(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("POST /models/veo-3.1-generate-preview:predictLongRunning", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name": "operations/op4",
			"done": true,
			"response": map[string]any{
				"generateVideoResponse": map[string]any{
					"generatedSamples": []map[string]any{{"video": map[string]string{"uri": srv.URL + "/files/missing.mp4"}}},
				},
			},
		})
	})
	mux.HandleFunc("GET /files/missing.mp4", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	a, server := newTestAdapter(t, mux)
	srv = server
	_, err := a.Generate(context.Background(), providers.GenerateRequest{Prompt: "p"}, nil)
	if providers.KindOf(err) != providers.FailRetrieval {
		t.Fatalf("kind = %v (%v), want retrieval_failed", providers.KindOf(err), err)
	}
}
