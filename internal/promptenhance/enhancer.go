// Package promptenhance rewrites terse user prompts into richer generation
// prompts. A model-backed enhancer is used when a Gemini key is available,
// with a deterministic static fallback so the endpoint never hard-fails.
package promptenhance

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EnhanceRequest carries the prompt to rewrite and hints about the target.
type EnhanceRequest struct {
	Prompt    string
	MediaKind string
	Locale    string
}

// EnhanceResponse is the rewritten prompt plus alternates.
type EnhanceResponse struct {
	Prompt     string   `json:"prompt"`
	Alternates []string `json:"alternates,omitempty"`
	Provider   string   `json:"-"`
}

// Enhancer rewrites prompts.
type Enhancer interface {
	Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error)
}

const staticProviderName = "static"

// StaticEnhancer composes a deterministic rewrite. It backs the model-based
// enhancer so prompt enhancement works without any configured provider.
type StaticEnhancer struct{}

func NewStaticEnhancer() *StaticEnhancer {
	return &StaticEnhancer{}
}

func (s *StaticEnhancer) Enhance(_ context.Context, req EnhanceRequest) (*EnhanceResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("promptenhance: prompt is required")
	}
	c := cases.Title(language.Und)
	subject := c.String(prompt)
	var enhanced string
	if req.MediaKind == "video" {
		enhanced = fmt.Sprintf("%s. Cinematic camera movement, natural motion, detailed lighting, high production value.", subject)
	} else {
		enhanced = fmt.Sprintf("%s. Highly detailed, dramatic lighting, sharp focus, professional composition.", subject)
	}
	return &EnhanceResponse{
		Prompt: enhanced,
		Alternates: []string{
			fmt.Sprintf("%s, soft ambient light, shallow depth of field", prompt),
			fmt.Sprintf("%s, vibrant colors, wide angle", prompt),
		},
		Provider: staticProviderName,
	}, nil
}

var _ Enhancer = (*StaticEnhancer)(nil)
