package sora

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrchevyceleb/vibecanvas/internal/providers"
	"github.com/mrchevyceleb/vibecanvas/internal/providers/keygate"
)

func newTestAdapter(t *testing.T, mux *http.ServeMux) *Adapter {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(Options{
		Gate:         keygate.New(ProviderID, "sk-test", nil, nil),
		BaseURL:      srv.URL,
		HTTPClient:   srv.Client(),
		PollInterval: time.Millisecond,
	})
}

func TestNormalizeSizeAndDuration(t *testing.T) {
	a := New(Options{})
	got := a.Normalize(providers.GenerateRequest{Prompt: "p", AspectRatio: "9:16"})
	if got.Size != "720x1280" {
		t.Fatalf("portrait size = %q", got.Size)
	}
	if got.DurationSeconds != "4" {
		t.Fatalf("default seconds = %q, want 4", got.DurationSeconds)
	}
	got = a.Normalize(providers.GenerateRequest{Prompt: "p", AspectRatio: "16:9", DurationSeconds: "8"})
	if got.Size != "1280x720" || got.DurationSeconds != "8" {
		t.Fatalf("landscape normalize = %+v", got)
	}
}

func TestGeneratePollsToCompletion(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /videos", func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode create: %v", err)
		}
		if req.Size != "1280x720" || req.Seconds != "4" {
			t.Errorf("unexpected create payload: %+v", req)
		}
		json.NewEncoder(w).Encode(videoJob{ID: "vid_1", Status: "queued"})
	})
	mux.HandleFunc("GET /videos/vid_1", func(w http.ResponseWriter, _ *http.Request) {
		status := "in_progress"
		if polls.Add(1) >= 3 {
			status = "completed"
		}
		json.NewEncoder(w).Encode(videoJob{ID: "vid_1", Status: status})
	})
	mux.HandleFunc("GET /videos/vid_1/content", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("mp4-bytes"))
	})

	var stages []providers.Stage
	a := newTestAdapter(t, mux)
	items, err := a.Generate(context.Background(), providers.GenerateRequest{Prompt: "waves"}, func(stage providers.Stage, _ string) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(items) != 1 || items[0].Kind != providers.MediaKindVideo || string(items[0].Data) != "mp4-bytes" {
		t.Fatalf("unexpected items: %+v", items)
	}
	want := []providers.Stage{providers.StageSubmitting, providers.StageRendering, providers.StageDownloading}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stages = %v, want %v", stages, want)
		}
	}
}

func TestGenerateModerationFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /videos", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(videoJob{ID: "vid_2", Status: "queued"})
	})
	mux.HandleFunc("GET /videos/vid_2", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "vid_2",
			"status": "failed",
			"error":  map[string]string{"code": "moderation_blocked", "message": "This prompt violates our usage policies"},
		})
	})

	a := newTestAdapter(t, mux)
	_, err := a.Generate(context.Background(), providers.GenerateRequest{Prompt: "p"}, nil)
	if providers.KindOf(err) != providers.FailContentPolicy {
		t.Fatalf("kind = %v (%v), want content_policy", providers.KindOf(err), err)
	}
	var perr *providers.Error
	if !errors.As(err, &perr) || perr.Reason != "This prompt violates our usage policies" {
		t.Fatalf("moderation message not verbatim: %v", err)
	}
}

func TestGenerateRetrievalFailureAfterCompletion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /videos", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(videoJob{ID: "vid_3", Status: "completed"})
	})
	mux.HandleFunc("GET /videos/vid_3/content", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	a := newTestAdapter(t, mux)
	_, err := a.Generate(context.Background(), providers.GenerateRequest{Prompt: "p"}, nil)
	if providers.KindOf(err) != providers.FailRetrieval {
		t.Fatalf("kind = %v (%v), want retrieval_failed", providers.KindOf(err), err)
	}
}

func TestGenerateCancelledDuringPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /videos", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(videoJob{ID: "vid_4", Status: "queued"})
	})
	mux.HandleFunc("GET /videos/vid_4", func(w http.ResponseWriter, _ *http.Request) {
		cancel()
		json.NewEncoder(w).Encode(videoJob{ID: "vid_4", Status: "in_progress"})
	})

	a := newTestAdapter(t, mux)
	_, err := a.Generate(ctx, providers.GenerateRequest{Prompt: "p"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	var perr *providers.Error
	if errors.As(err, &perr) {
		t.Fatalf("cancellation was wrapped as a failure: %v", err)
	}
}
