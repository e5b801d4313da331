package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mrchevyceleb/vibecanvas/internal/middleware"
	"github.com/mrchevyceleb/vibecanvas/internal/promptenhance"
)

type promptEnhanceRequest struct {
	Prompt    string `json:"prompt"`
	MediaKind string `json:"mediaKind"`
}

// PromptEnhance rewrites a terse prompt into a richer one. The locale from
// request detection steers the rewrite language.
func (a *App) PromptEnhance(w http.ResponseWriter, r *http.Request) {
	var req promptEnhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_body", "could not parse request body")
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		a.error(w, http.StatusBadRequest, "validation", "prompt is required")
		return
	}
	if req.MediaKind == "" {
		req.MediaKind = "image"
	}

	resp, err := a.Enhancer.Enhance(r.Context(), promptenhance.EnhanceRequest{
		Prompt:    req.Prompt,
		MediaKind: req.MediaKind,
		Locale:    middleware.LocaleFromContext(r.Context()),
	})
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	a.json(w, http.StatusOK, resp)
}
