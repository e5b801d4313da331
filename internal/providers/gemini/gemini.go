// Package gemini implements the Nano Banana Pro image adapter on top of the
// Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
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
	ProviderID = "gemini-3-pro-image-preview"

	// CredentialName is the key-gate namespace this adapter's API key
	// lives under.
	CredentialName = "gemini"

	providerName   = "Nano Banana Pro"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-3-pro-image-preview"
)

// ratioSubstitutions collapses ratios the model rejects onto the nearest
// supported ones.
var ratioSubstitutions = map[string]string{
	"3:2":  "4:3",
	"2:3":  "3:4",
	"4:5":  "3:4",
	"21:9": "16:9",
}

var allowedRatios = map[string]struct{}{
	"1:1":  {},
	"3:4":  {},
	"4:3":  {},
	"9:16": {},
	"16:9": {},
}

// Options configures the adapter.
type Options struct {
	Gate       *keygate.Gate
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Adapter generates images via Gemini. Safe for concurrent use.
type Adapter struct {
	gate       *keygate.Gate
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// New constructs the adapter with sane defaults. A nil HTTP client gets a
// reusable one with a generous timeout.
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
		ID:         ProviderID,
		Name:       providerName,
		Credential: CredentialName,
		Kind:       providers.MediaKindImage,
		Capabilities: providers.Capabilities{
			SourceImage: true,
		},
	}
}

func (a *Adapter) Configured() bool {
	return a.gate.Configured()
}

// Normalize collapses the aspect ratio onto the supported set and derives the
// effective image size tier. Fields the model ignores are cleared so the
// persisted parameters reflect what was actually sent.
func (a *Adapter) Normalize(req providers.GenerateRequest) providers.GenerateRequest {
	out := req.Clone()
	out.AspectRatio = collapseRatio(req.AspectRatio)
	out.Size = imageSizeTier(req.Resolution)
	out.Resolution = ""
	out.NegativePrompt = ""
	out.DurationSeconds = ""
	return out
}

func collapseRatio(ratio string) string {
	ratio = strings.TrimSpace(ratio)
	if sub, ok := ratioSubstitutions[ratio]; ok {
		ratio = sub
	}
	if _, ok := allowedRatios[ratio]; ok {
		return ratio
	}
	return "1:1"
}

func imageSizeTier(resolution string) string {
	if strings.Contains(resolution, "1536") || strings.Contains(resolution, "2048") {
		return "2K"
	}
	return "1K"
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type generateContentResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
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
	return fmt.Sprintf("gemini status %d: %s", e.statusCode, e.message)
}

// Generate runs one generateContent call, retrying exactly once with a fresh
// key when the failure looks like a rejected credential.
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
				a.logger.Warn().Str("provider", ProviderID).Msg("gemini: key rejected, acquiring a new one")
				if _, rerr := a.gate.Reacquire(ctx); rerr == nil {
					continue
				}
			}
			return nil, lastErr
		}
		return nil, classify(err)
	}
	return nil, lastErr
}

func (a *Adapter) invoke(ctx context.Context, key string, req providers.GenerateRequest) ([]providers.MediaItem, error) {
	parts := []part{{Text: req.Prompt}}
	if req.SourceImage != nil && len(req.SourceImage.Data) > 0 {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: req.SourceImage.MIME,
			Data:     mediacodec.Encode(req.SourceImage.Data),
		}})
	}
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig: &imageConfig{
				AspectRatio: req.AspectRatio,
				ImageSize:   req.Size,
			},
		},
	}

	var response generateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(a.model))
	if err := a.post(ctx, path, key, payload, &response); err != nil {
		return nil, err
	}

	if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
		return nil, providers.NewError(providers.FailContentPolicy, ProviderID, "%s", response.PromptFeedback.BlockReason)
	}

	var items []providers.MediaItem
	for _, cand := range response.Candidates {
		if blockedFinish(cand.FinishReason) {
			return nil, providers.NewError(providers.FailContentPolicy, ProviderID, "%s", cand.FinishReason)
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := mediacodec.Decode(p.InlineData.Data)
			if err != nil || len(data) == 0 {
				continue
			}
			mimeType := p.InlineData.MimeType
			if mimeType == "" {
				mimeType = "image/png"
			}
			items = append(items, providers.MediaItem{
				Data: data,
				MIME: mimeType,
				Kind: providers.MediaKindImage,
				Meta: map[string]any{
					"model":       a.model,
					"aspectRatio": req.AspectRatio,
					"imageSize":   req.Size,
				},
			})
		}
	}
	if len(items) == 0 {
		return nil, providers.NewError(providers.FailProvider, ProviderID, "response contained no image data")
	}
	return items, nil
}

func blockedFinish(reason string) bool {
	switch strings.ToUpper(reason) {
	case "SAFETY", "IMAGE_SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		return true
	}
	return false
}

func classify(err error) error {
	var perr *providers.Error
	if errors.As(err, &perr) {
		return err
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		if apiErr.statusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.message), "safety") {
			return providers.NewError(providers.FailContentPolicy, ProviderID, "%s", apiErr.message)
		}
		return providers.NewError(providers.FailProvider, ProviderID, "%s", apiErr.message)
	}
	return providers.WrapError(providers.FailProvider, ProviderID, err)
}

func (a *Adapter) post(ctx context.Context, path, key string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", key)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var errResp errorResponse
		data, _ := io.ReadAll(resp.Body)
		if jsonErr := json.Unmarshal(data, &errResp); jsonErr == nil && errResp.Error.Message != "" {
			return &apiError{statusCode: resp.StatusCode, message: errResp.Error.Message}
		}
		return &apiError{statusCode: resp.StatusCode, message: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}
