// Package veo implements the Veo video adapter on top of the Gemini
// predictLongRunning API: a generate operation is started, polled until done,
// and the produced video URI downloaded.
package veo

import (
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
	"github.com/mrchevyceleb/vibecanvas/internal/mediacodec"
	"github.com/mrchevyceleb/vibecanvas/internal/providers"
	"github.com/mrchevyceleb/vibecanvas/internal/providers/keygate"
)

const (
	// ProviderID is the registry identifier for this adapter.
	ProviderID = "veo-3.1-generate-preview"

	// CredentialName is the key-gate namespace this adapter's API key
	// lives under.
	CredentialName = "veo"

	providerName   = "Veo 3.1"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "veo-3.1-generate-preview"

	defaultDuration   = "8"
	defaultResolution = "720p"

	defaultPollInterval = 10 * time.Second
	maxPollAttempts     = 60
)

// portraitRatios are the requested ratios rendered as 9:16; everything else
// becomes 16:9.
var portraitRatios = map[string]struct{}{
	"9:16": {},
	"2:3":  {},
	"4:5":  {},
}

// Options configures the adapter. PollInterval shortens polling in tests.
type Options struct {
	Gate         *keygate.Gate
	BaseURL      string
	Model        string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	PollInterval time.Duration
}

// Adapter generates video clips via Veo. Safe for concurrent use.
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
		ID:         ProviderID,
		Name:       providerName,
		Credential: CredentialName,
		Kind:       providers.MediaKindVideo,
		Capabilities: providers.Capabilities{
			SourceImage:    true,
			NegativePrompt: true,
		},
	}
}

func (a *Adapter) Configured() bool {
	return a.gate.Configured()
}

// Normalize collapses the aspect ratio to the two rendered orientations and
// fills the model's fixed duration and resolution.
func (a *Adapter) Normalize(req providers.GenerateRequest) providers.GenerateRequest {
	out := req.Clone()
	if _, ok := portraitRatios[strings.TrimSpace(req.AspectRatio)]; ok {
		out.AspectRatio = "9:16"
	} else {
		out.AspectRatio = "16:9"
	}
	out.DurationSeconds = defaultDuration
	out.Resolution = defaultResolution
	out.Size = ""
	return out
}

type predictRequest struct {
	Instances  []instance `json:"instances"`
	Parameters parameters `json:"parameters"`
}

type instance struct {
	Prompt string         `json:"prompt"`
	Image  *instanceImage `json:"image,omitempty"`
}

type instanceImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
}

type parameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	NegativePrompt  string `json:"negativePrompt,omitempty"`
	DurationSeconds string `json:"durationSeconds,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
}

type operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *operationError    `json:"error,omitempty"`
	Response *operationResponse `json:"response,omitempty"`
}

type operationError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type operationResponse struct {
	GenerateVideoResponse *generateVideoResponse `json:"generateVideoResponse,omitempty"`
}

type generateVideoResponse struct {
	GeneratedSamples        []generatedSample `json:"generatedSamples,omitempty"`
	RaiMediaFilteredReasons []string          `json:"raiMediaFilteredReasons,omitempty"`
}

type generatedSample struct {
	Video struct {
		URI string `json:"uri,omitempty"`
	} `json:"video"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

type apiError struct {
	statusCode int
	message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("veo status %d: %s", e.statusCode, e.message)
}

// Generate starts a long-running video operation, polls it to completion, and
// downloads the produced clip. The key is reacquired and the flow retried
// exactly once when submission rejects the credential.
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
				a.logger.Warn().Str("provider", ProviderID).Msg("veo: key rejected, acquiring a new one")
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
	progress.Report(providers.StageSubmitting, "starting video operation")
	op, err := a.submit(ctx, key, req)
	if err != nil {
		return nil, err
	}

	progress.Report(providers.StageRendering, "rendering")
	op, err = a.poll(ctx, key, op)
	if err != nil {
		return nil, err
	}

	uri, err := sampleURI(op)
	if err != nil {
		return nil, err
	}

	progress.Report(providers.StageDownloading, "downloading clip")
	data, err := a.download(ctx, key, uri)
	if err != nil {
		// Rendering finished upstream; only the fetch failed.
		return nil, providers.WrapError(providers.FailRetrieval, ProviderID, err)
	}
	return []providers.MediaItem{{
		Data: data,
		MIME: "video/mp4",
		Kind: providers.MediaKindVideo,
		Meta: map[string]any{
			"model":           a.model,
			"aspectRatio":     req.AspectRatio,
			"durationSeconds": req.DurationSeconds,
			"resolution":      req.Resolution,
		},
	}}, nil
}

func (a *Adapter) submit(ctx context.Context, key string, req providers.GenerateRequest) (*operation, error) {
	inst := instance{Prompt: req.Prompt}
	if req.SourceImage != nil && len(req.SourceImage.Data) > 0 {
		inst.Image = &instanceImage{
			BytesBase64Encoded: mediacodec.Encode(req.SourceImage.Data),
			MimeType:           req.SourceImage.MIME,
		}
	}
	payload := predictRequest{
		Instances: []instance{inst},
		Parameters: parameters{
			AspectRatio:     req.AspectRatio,
			NegativePrompt:  req.NegativePrompt,
			DurationSeconds: req.DurationSeconds,
			Resolution:      req.Resolution,
		},
	}
	var op operation
	path := fmt.Sprintf("/models/%s:predictLongRunning", a.model)
	if err := a.call(ctx, http.MethodPost, path, key, payload, &op); err != nil {
		return nil, err
	}
	if op.Name == "" && !op.Done {
		return nil, providers.NewError(providers.FailProvider, ProviderID, "operation started without a name")
	}
	return &op, nil
}

func (a *Adapter) poll(ctx context.Context, key string, op *operation) (*operation, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		if op.Done {
			if op.Error != nil {
				return nil, providers.NewError(providers.FailProvider, ProviderID, "%s", op.Error.Message)
			}
			return op, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var next operation
		if err := a.call(ctx, http.MethodGet, "/"+strings.TrimPrefix(op.Name, "/"), key, nil, &next); err != nil {
			return nil, err
		}
		op = &next
	}
	return nil, providers.NewError(providers.FailProvider, ProviderID, "video operation did not settle in time")
}

// sampleURI extracts the produced video URI, surfacing responsible-AI filter
// reasons as a content policy failure.
func sampleURI(op *operation) (string, error) {
	if op.Response == nil || op.Response.GenerateVideoResponse == nil {
		return "", providers.NewError(providers.FailProvider, ProviderID, "operation finished without a response")
	}
	gvr := op.Response.GenerateVideoResponse
	if len(gvr.GeneratedSamples) == 0 {
		if len(gvr.RaiMediaFilteredReasons) > 0 {
			return "", providers.NewError(providers.FailContentPolicy, ProviderID, "%s", strings.Join(gvr.RaiMediaFilteredReasons, "; "))
		}
		return "", providers.NewError(providers.FailProvider, ProviderID, "operation produced no samples")
	}
	uri := gvr.GeneratedSamples[0].Video.URI
	if uri == "" {
		return "", providers.NewError(providers.FailProvider, ProviderID, "operation sample has no video uri")
	}
	return uri, nil
}

func (a *Adapter) download(ctx context.Context, key, uri string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-goog-api-key", key)
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("video download returned an empty body")
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
		body = strings.NewReader(string(data))
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("x-goog-api-key", key)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if jsonErr := json.Unmarshal(data, &errResp); jsonErr == nil && errResp.Error.Message != "" {
			return &apiError{statusCode: resp.StatusCode, message: errResp.Error.Message}
		}
		return &apiError{statusCode: resp.StatusCode, message: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode veo response: %w", err)
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
		return providers.NewError(providers.FailProvider, ProviderID, "%s", apiErr.message)
	}
	return providers.WrapError(providers.FailProvider, ProviderID, err)
}
