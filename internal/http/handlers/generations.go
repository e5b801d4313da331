package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mrchevyceleb/vibecanvas/internal/mediacodec"
	"github.com/mrchevyceleb/vibecanvas/internal/orchestrator"
	"github.com/mrchevyceleb/vibecanvas/internal/providers"
)

type sourceImageRequest struct {
	// DataURL carries inline image bytes as a base64 data URL.
	DataURL string `json:"dataUrl,omitempty"`
	// MediaID references an asset already in the caller's library.
	MediaID string `json:"mediaId,omitempty"`
}

type generateRequest struct {
	Mode            string              `json:"mode"`
	ProviderID      string              `json:"providerId,omitempty"`
	MediaKind       string              `json:"mediaKind,omitempty"`
	Prompt          string              `json:"prompt"`
	NegativePrompt  string              `json:"negativePrompt,omitempty"`
	AspectRatio     string              `json:"aspectRatio,omitempty"`
	Resolution      string              `json:"resolution,omitempty"`
	DurationSeconds string              `json:"durationSeconds,omitempty"`
	FolderID        string              `json:"folderId,omitempty"`
	RemixOfID       string              `json:"remixOfId,omitempty"`
	SourceImage     *sourceImageRequest `json:"sourceImage,omitempty"`
}

// Generate runs one generation round and blocks until every selected provider
// settled. Disconnecting cancels the round through the request context.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	source, err := a.resolveSourceImage(r, userID, req.SourceImage)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	mode := orchestrator.Mode(req.Mode)
	if req.Mode == "" {
		mode = orchestrator.ModeSingle
	}
	result, err := a.Generator.Generate(r.Context(), orchestrator.Request{
		UserID:     userID,
		Mode:       mode,
		ProviderID: req.ProviderID,
		MediaKind:  providers.MediaKind(req.MediaKind),
		FolderID:   req.FolderID,
		Generate: providers.GenerateRequest{
			Prompt:          strings.TrimSpace(req.Prompt),
			NegativePrompt:  req.NegativePrompt,
			AspectRatio:     req.AspectRatio,
			Resolution:      req.Resolution,
			DurationSeconds: req.DurationSeconds,
			SourceImage:     source,
			RemixOfID:       req.RemixOfID,
		},
	})
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	a.json(w, http.StatusOK, result)
}

// resolveSourceImage turns the request's source-image reference into inline
// bytes, either by decoding a data URL or by loading a library record.
func (a *App) resolveSourceImage(r *http.Request, userID string, src *sourceImageRequest) (*providers.SourceImage, error) {
	if src == nil {
		return nil, nil
	}
	if src.DataURL != "" {
		data, mimeType, err := mediacodec.DecodeDataURL(src.DataURL)
		if err != nil {
			return nil, providers.NewError(providers.FailValidation, "", "invalid source image: %v", err)
		}
		return &providers.SourceImage{MIME: mimeType, Data: data}, nil
	}
	if src.MediaID != "" {
		rec, obj, err := a.Library.Blob(r.Context(), userID, src.MediaID)
		if err != nil {
			return nil, err
		}
		return &providers.SourceImage{
			StorageKey: rec.StorageKey,
			MIME:       obj.ContentType,
			Data:       obj.Data,
		}, nil
	}
	return nil, nil
}

type providerView struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Kind         providers.MediaKind    `json:"kind"`
	Configured   bool                   `json:"configured"`
	Capabilities providers.Capabilities `json:"capabilities"`
}

// Providers lists the registered adapters with their availability. Unconfigured
// adapters stay listed so clients can render them disabled.
func (a *App) Providers(w http.ResponseWriter, r *http.Request) {
	kind := providers.MediaKind(r.URL.Query().Get("kind"))
	var views []providerView
	for _, adapter := range a.Registry.All() {
		desc := adapter.Descriptor()
		if kind != "" && desc.Kind != kind {
			continue
		}
		views = append(views, providerView{
			ID:           desc.ID,
			Name:         desc.Name,
			Kind:         desc.Kind,
			Configured:   adapter.Configured(),
			Capabilities: desc.Capabilities,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"providers": views})
}
