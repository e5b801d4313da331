package promptenhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrchevyceleb/vibecanvas/internal/providers/keygate"
)

const (
	geminiDefaultTimeout = 15 * time.Second
	geminiProviderName   = "gemini"
	geminiDefaultModel   = "gemini-2.5-flash"
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// GeminiOptions configures the model-backed enhancer.
type GeminiOptions struct {
	Gate       *keygate.Gate
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Fallback   Enhancer
}

// GeminiEnhancer rewrites prompts with a text model, falling back to the
// static enhancer on any failure.
type GeminiEnhancer struct {
	gate     *keygate.Gate
	model    string
	baseURL  string
	client   *http.Client
	fallback Enhancer
}

func NewGeminiEnhancer(opts GeminiOptions) *GeminiEnhancer {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiDefaultTimeout}
	}
	model := opts.Model
	if model == "" {
		model = geminiDefaultModel
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = NewStaticEnhancer()
	}
	return &GeminiEnhancer{
		gate:     opts.Gate,
		model:    model,
		baseURL:  baseURL,
		client:   client,
		fallback: fallback,
	}
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type enhancePayload struct {
	Prompt     string   `json:"prompt"`
	Alternates []string `json:"alternates"`
}

func (g *GeminiEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("promptenhance: prompt is required")
	}
	if g.gate == nil || !g.gate.Configured() {
		return g.fallback.Enhance(ctx, req)
	}
	key, err := g.gate.EnsureAvailable(ctx)
	if err != nil {
		return g.fallback.Enhance(ctx, req)
	}

	resp, err := g.invoke(ctx, key, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return g.fallback.Enhance(ctx, req)
	}
	return resp, nil
}

func (g *GeminiEnhancer) invoke(ctx context.Context, key string, req EnhanceRequest) (*EnhanceResponse, error) {
	instruction := fmt.Sprintf(
		"Rewrite the following %s generation prompt to be more detailed and visually specific, keeping the user's intent. "+
			"Respond in JSON with fields prompt (string) and alternates (array of up to 2 strings). Prompt language: %s.\n\n%s",
		mediaKindOrDefault(req.MediaKind), localeOrDefault(req.Locale), req.Prompt)

	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: instruction}}}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.8,
			ResponseMimeType: "application/json",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", key)

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("promptenhance: gemini status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(data)))
	}

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			var parsed enhancePayload
			if err := json.Unmarshal([]byte(part.Text), &parsed); err != nil {
				continue
			}
			if strings.TrimSpace(parsed.Prompt) == "" {
				continue
			}
			return &EnhanceResponse{
				Prompt:     parsed.Prompt,
				Alternates: parsed.Alternates,
				Provider:   geminiProviderName,
			}, nil
		}
	}
	return nil, fmt.Errorf("promptenhance: no usable candidate in response")
}

func mediaKindOrDefault(kind string) string {
	if kind == "video" {
		return "video"
	}
	return "image"
}

func localeOrDefault(locale string) string {
	if locale == "" {
		return "en"
	}
	return locale
}

var _ Enhancer = (*GeminiEnhancer)(nil)
