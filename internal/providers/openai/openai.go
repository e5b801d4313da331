// Package openai implements the GPT Image adapter on top of the OpenAI
// images API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
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
	ProviderID = "openai-latest-image"

	// CredentialName is the key-gate namespace this adapter's API key
	// lives under.
	CredentialName = "openai"

	providerName   = "GPT-Image-1.5"
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-image-1"
)

// Options configures the adapter.
type Options struct {
	Gate       *keygate.Gate
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Adapter generates images via the OpenAI images endpoint. Safe for
// concurrent use.
type Adapter struct {
	gate       *keygate.Gate
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
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
	return &Adapter{
		gate:       opts.Gate,
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}
}

func (a *Adapter) Descriptor() providers.Descriptor {
	return providers.Descriptor{
		ID:           ProviderID,
		Name:         providerName,
		Credential:   CredentialName,
		Kind:         providers.MediaKindImage,
		Capabilities: providers.Capabilities{},
	}
}

func (a *Adapter) Configured() bool {
	return a.gate.Configured()
}

// Normalize maps the aspect ratio onto one of the three pixel sizes the
// endpoint accepts and clears fields the endpoint ignores.
func (a *Adapter) Normalize(req providers.GenerateRequest) providers.GenerateRequest {
	out := req.Clone()
	out.Size = sizeForRatio(req.AspectRatio)
	out.AspectRatio = ""
	out.Resolution = ""
	out.NegativePrompt = ""
	out.DurationSeconds = ""
	out.SourceImage = nil
	return out
}

// sizeForRatio picks landscape, portrait, or square from the requested ratio.
func sizeForRatio(ratio string) string {
	w, h, ok := parseRatio(ratio)
	switch {
	case ok && w > h:
		return "1536x1024"
	case ok && h > w:
		return "1024x1536"
	default:
		return "1024x1024"
	}
}

func parseRatio(ratio string) (int, int, bool) {
	parts := strings.SplitN(strings.TrimSpace(ratio), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

type imagesRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imagesResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json,omitempty"`
		URL     string `json:"url,omitempty"`
	} `json:"data"`
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
	return fmt.Sprintf("openai status %d: %s", e.statusCode, e.message)
}

// Generate runs one images call, retrying exactly once with a fresh key when
// the failure looks like a rejected credential.
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

		progress.Report(providers.StageSubmitting, "submitting prompt")
		items, err := a.invoke(ctx, key, eff)
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
				a.logger.Warn().Str("provider", ProviderID).Msg("openai: key rejected, acquiring a new one")
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

func (a *Adapter) invoke(ctx context.Context, key string, req providers.GenerateRequest) ([]providers.MediaItem, error) {
	payload := imagesRequest{
		Model:  a.model,
		Prompt: req.Prompt,
		N:      1,
		Size:   req.Size,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if jsonErr := json.Unmarshal(data, &errResp); jsonErr == nil && errResp.Error.Message != "" {
			return nil, &apiError{statusCode: resp.StatusCode, code: errResp.Error.Code, message: errResp.Error.Message}
		}
		return nil, &apiError{statusCode: resp.StatusCode, message: strings.TrimSpace(string(data))}
	}

	var response imagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}

	var items []providers.MediaItem
	for _, d := range response.Data {
		var data []byte
		switch {
		case d.B64JSON != "":
			data, err = mediacodec.Decode(d.B64JSON)
			if err != nil {
				continue
			}
		case d.URL != "":
			data, err = a.download(ctx, d.URL)
			if err != nil {
				// The image exists upstream but we could not fetch it.
				return nil, providers.WrapError(providers.FailRetrieval, ProviderID, err)
			}
		}
		if len(data) == 0 {
			continue
		}
		items = append(items, providers.MediaItem{
			Data: data,
			MIME: "image/png",
			Kind: providers.MediaKindImage,
			Meta: map[string]any{
				"model": a.model,
				"size":  req.Size,
			},
		})
	}
	if len(items) == 0 {
		return nil, providers.NewError(providers.FailProvider, ProviderID, "response contained no image data")
	}
	return items, nil
}

func (a *Adapter) download(ctx context.Context, rawURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (a *Adapter) classify(err error) error {
	var perr *providers.Error
	if errors.As(err, &perr) {
		return err
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		if apiErr.code == "content_policy_violation" || apiErr.code == "moderation_blocked" {
			return providers.NewError(providers.FailContentPolicy, ProviderID, "%s", apiErr.message)
		}
		return providers.NewError(providers.FailProvider, ProviderID, "%s", apiErr.message)
	}
	return providers.WrapError(providers.FailProvider, ProviderID, err)
}
