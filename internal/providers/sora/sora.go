// Package sora implements the Sora video adapter on top of the OpenAI videos
// API: a job is created, polled until it settles, and its content downloaded.
package sora

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrchevyceleb/vibecanvas/internal/infra"
	"github.com/mrchevyceleb/vibecanvas/internal/providers"
	"github.com/mrchevyceleb/vibecanvas/internal/providers/keygate"
)

const (
	// ProviderID is the registry identifier for this adapter.
	ProviderID = "sora-2-video"

	// CredentialName is the key-gate namespace this adapter's API key
	// lives under.
	CredentialName = "sora"

	providerName   = "Sora 2"
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "sora-2"

	defaultSeconds      = "4"
	defaultPollInterval = 5 * time.Second
	maxPollAttempts     = 120
)

// Options configures the adapter. PollInterval shortens polling in tests.
type Options struct {
	Gate         *keygate.Gate
	BaseURL      string
	Model        string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	PollInterval time.Duration
}

// Adapter generates video clips via Sora. Safe for concurrent use.
type Adapter struct {
	gate         *keygate.Gate
	baseURL      string
	model        string
	httpClient   *http.Client
	logger       *infra.Logger
	pollInterval time.Duration
}

func New(opts Options) *Adapter {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Adapter{
		gate:         opts.Gate,
		baseURL:      baseURL,
		model:        model,
		httpClient:   client,
		logger:       logger,
		pollInterval: interval,
	}
}

func (a *Adapter) Descriptor() providers.Descriptor {
	return providers.Descriptor{
		ID:           ProviderID,
		Name:         providerName,
		Credential:   CredentialName,
		Kind:         providers.MediaKindVideo,
		Capabilities: providers.Capabilities{},
	}
}

func (a *Adapter) Configured() bool {
	return a.gate.Configured()
}

// Normalize maps the aspect ratio onto the two supported pixel sizes and
// defaults the clip length.
func (a *Adapter) Normalize(req providers.GenerateRequest) providers.GenerateRequest {
	out := req.Clone()
	if strings.TrimSpace(req.AspectRatio) == "9:16" {
		out.Size = "720x1280"
	} else {
		out.Size = "1280x720"
	}
	if strings.TrimSpace(out.DurationSeconds) == "" {
		out.DurationSeconds = defaultSeconds
	}
	out.AspectRatio = ""
	out.Resolution = ""
	out.NegativePrompt = ""
	out.SourceImage = nil
	return out
}

type createRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Seconds string `json:"seconds,omitempty"`
}

type videoJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message,omitempty"`
		Type    string `json:"type,omitempty"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

type apiError struct {
	statusCode int
	code       string
	message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("sora status %d: %s", e.statusCode, e.message)
}

// Generate creates a video job, polls it to completion, and downloads the
// rendered clip. The key is reacquired and the whole flow retried exactly
// once when job creation rejects the credential.
func (a *Adapter) Generate(ctx context.Context, req providers.GenerateRequest, progress providers.ProgressFunc) ([]providers.MediaItem, error) {
	eff := a.Normalize(req)
	if strings.TrimSpace(eff.Prompt) == "" {
		return nil, providers.NewError(providers.FailValidation, ProviderID, "prompt is required")
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		key, err := a.gate.EnsureAvailable(ctx)
		if err != nil {
			if providers.IsCancelled(err) {
				return nil, err
			}
			return nil, providers.WrapError(providers.FailNotConfigured, ProviderID, err)
		}

		items, err := a.run(ctx, key, eff, progress)
		if err == nil {
			return items, nil
		}
		if providers.IsCancelled(err) {
			return nil, err
		}

		var apiErr *apiError
		if errors.As(err, &apiErr) && providers.CredentialSignature(apiErr.statusCode, apiErr.message) {
			lastErr = providers.NewError(providers.FailCredential, ProviderID, "%s", apiErr.message)
			if attempt == 0 && a.gate.CanReacquire() {
				a.logger.Warn().Str("provider", ProviderID).Msg("sora: key rejected, acquiring a new one")
				if _, rerr := a.gate.Reacquire(ctx); rerr == nil {
					continue
				}
			}
			return nil, lastErr
		}
		return nil, a.classify(err)
	}
	return nil, lastErr
}

func (a *Adapter) run(ctx context.Context, key string, req providers.GenerateRequest, progress providers.ProgressFunc) ([]providers.MediaItem, error) {
	progress.Report(providers.StageSubmitting, "creating video job")
	job, err := a.createJob(ctx, key, req)
	if err != nil {
		return nil, err
	}

	progress.Report(providers.StageRendering, "rendering")
	job, err = a.pollJob(ctx, key, job)
	if err != nil {
		return nil, err
	}

	progress.Report(providers.StageDownloading, "downloading clip")
	data, err := a.downloadContent(ctx, key, job.ID)
	if err != nil {
		// The clip finished rendering upstream; only retrieval failed.
		return nil, providers.WrapError(providers.FailRetrieval, ProviderID, err)
	}
	return []providers.MediaItem{{
		Data: data,
		MIME: "video/mp4",
		Kind: providers.MediaKindVideo,
		Meta: map[string]any{
			"model":   a.model,
			"size":    req.Size,
			"seconds": req.DurationSeconds,
		},
	}}, nil
}

func (a *Adapter) createJob(ctx context.Context, key string, req providers.GenerateRequest) (*videoJob, error) {
	payload := createRequest{
		Model:   a.model,
		Prompt:  req.Prompt,
		Size:    req.Size,
		Seconds: req.DurationSeconds,
	}
	var job videoJob
	if err := a.call(ctx, http.MethodPost, "/videos", key, payload, &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, providers.NewError(providers.FailProvider, ProviderID, "job created without an id")
	}
	return &job, nil
}

func (a *Adapter) pollJob(ctx context.Context, key string, job *videoJob) (*videoJob, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		switch job.Status {
		case "completed":
			return job, nil
		case "failed":
			if job.Error != nil {
				if isModerationCode(job.Error.Code) {
					return nil, providers.NewError(providers.FailContentPolicy, ProviderID, "%s", job.Error.Message)
				}
				return nil, providers.NewError(providers.FailProvider, ProviderID, "%s", job.Error.Message)
			}
			return nil, providers.NewError(providers.FailProvider, ProviderID, "video job failed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var next videoJob
		if err := a.call(ctx, http.MethodGet, "/videos/"+job.ID, key, nil, &next); err != nil {
			return nil, err
		}
		job = &next
	}
	return nil, providers.NewError(providers.FailProvider, ProviderID, "video job did not settle in time")
}

func isModerationCode(code string) bool {
	switch code {
	case "moderation_blocked", "content_policy_violation", "input_moderation":
		return true
	}
	return false
}

func (a *Adapter) downloadContent(ctx context.Context, key, jobID string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/videos/"+jobID+"/content", nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("content download returned an empty body")
	}
	return data, nil
}

func (a *Adapter) call(ctx context.Context, method, path, key string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if jsonErr := json.Unmarshal(data, &errResp); jsonErr == nil && errResp.Error.Message != "" {
			return &apiError{statusCode: resp.StatusCode, code: errResp.Error.Code, message: errResp.Error.Message}
		}
		return &apiError{statusCode: resp.StatusCode, message: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode sora response: %w", err)
	}
	return nil
}

func (a *Adapter) classify(err error) error {
	var perr *providers.Error
	if errors.As(err, &perr) {
		return err
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		if isModerationCode(apiErr.code) {
			return providers.NewError(providers.FailContentPolicy, ProviderID, "%s", apiErr.message)
		}
		return providers.NewError(providers.FailProvider, ProviderID, "%s", apiErr.message)
	}
	return providers.WrapError(providers.FailProvider, ProviderID, err)
}
