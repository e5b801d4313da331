// Package providers defines the contract shared by all media-generation
// backends: the normalized request shape, the produced media items, the
// failure taxonomy, and the adapter registry the orchestrator routes through.
package providers

import "context"

// MediaKind enumerates the kinds of media an adapter can produce.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Capabilities declares which optional request fields a provider honors.
type Capabilities struct {
	SourceImage    bool
	NegativePrompt bool
	Guidance       bool
	StepCount      bool
	Seed           bool
}

// Descriptor is the static identity and capability metadata for one backend.
// Descriptors are defined once at startup and form the orchestrator's routing
// table.
type Descriptor struct {
	ID   string
	Name string
	Kind MediaKind
	// Credential names the key-gate namespace this backend draws its API key
	// from. Stored integration tokens are keyed by it, not by ID.
	Credential   string
	Capabilities Capabilities
}

// SourceImage is a conditioning input for image-to-image or image-to-video
// generation. Data is loaded from storage before the request reaches an
// adapter.
type SourceImage struct {
	StorageKey string
	MIME       string
	Data       []byte
}

// GenerateRequest is the normalized request passed to any adapter. One value
// is shared across all adapters in an orchestration round; adapters derive an
// effective copy via Normalize and never mutate the original.
type GenerateRequest struct {
	Prompt          string
	NegativePrompt  string
	AspectRatio     string
	Resolution      string
	SourceImage     *SourceImage
	DurationSeconds string
	Size            string
	RemixOfID       string
}

// Clone returns a deep copy so per-adapter coercion cannot leak into the
// shared request.
func (r GenerateRequest) Clone() GenerateRequest {
	out := r
	if r.SourceImage != nil {
		src := *r.SourceImage
		out.SourceImage = &src
	}
	return out
}

// MediaItem is one produced asset: raw bytes plus provenance metadata.
type MediaItem struct {
	Data []byte
	MIME string
	Kind MediaKind
	Meta map[string]any
}

// Stage identifies a coarse phase of a long-running generation.
type Stage string

const (
	StageSubmitting  Stage = "submitting"
	StageRendering   Stage = "rendering"
	StageDownloading Stage = "downloading"
)

// ProgressFunc receives advisory status updates at phase transitions. It is
// never required for correctness and may be nil.
type ProgressFunc func(stage Stage, detail string)

// Report invokes the callback when one is set.
func (f ProgressFunc) Report(stage Stage, detail string) {
	if f != nil {
		f(stage, detail)
	}
}

// Adapter is the contract implemented by every provider backend.
//
// Normalize clamps request fields the provider does not support to the
// nearest supported value and returns the effective request; it must be pure.
// Generate may suspend for seconds to minutes for video providers and must
// honor ctx cancellation at every poll iteration.
type Adapter interface {
	Descriptor() Descriptor
	Configured() bool
	Normalize(req GenerateRequest) GenerateRequest
	Generate(ctx context.Context, req GenerateRequest, progress ProgressFunc) ([]MediaItem, error)
}
