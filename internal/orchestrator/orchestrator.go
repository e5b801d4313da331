// Package orchestrator routes generation requests to provider adapters, runs
// them concurrently, and persists whatever succeeded.
package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/mrchevyceleb/vibecanvas/internal/infra"
	"github.com/mrchevyceleb/vibecanvas/internal/library"
	"github.com/mrchevyceleb/vibecanvas/internal/providers"
)

// Mode selects how adapters are chosen for a request.
type Mode string

const (
	// ModeSingle targets one adapter by provider id.
	ModeSingle Mode = "single"
	// ModeCompareAll fans the request out to every adapter of a media kind.
	ModeCompareAll Mode = "compareAll"
)

// Request is one orchestrated generation round.
type Request struct {
	UserID     string
	Mode       Mode
	ProviderID string              // required for ModeSingle
	MediaKind  providers.MediaKind // required for ModeCompareAll
	FolderID   string
	Generate   providers.GenerateRequest

	// Progress receives advisory per-provider stage updates; may be nil.
	Progress func(providerID string, stage providers.Stage, detail string)
}

// AdapterFailure is one adapter's failure inside an otherwise successful
// round.
type AdapterFailure struct {
	ProviderID string                `json:"providerId"`
	Kind       providers.FailureKind `json:"kind"`
	Message    string                `json:"message"`
}

// Result carries everything a round produced: the persisted records and the
// adapters that failed. Partial success is a success.
type Result struct {
	Records  []library.Record `json:"records"`
	Failures []AdapterFailure `json:"failures,omitempty"`
}

// mediaStore is the slice of the library the orchestrator writes through.
type mediaStore interface {
	AddMedia(ctx context.Context, in library.AddMediaInput) (library.Record, error)
}

// Orchestrator coordinates one generation round across adapters.
type Orchestrator struct {
	registry *providers.Registry
	media    mediaStore
	logger   *infra.Logger
}

func New(registry *providers.Registry, media mediaStore, logger *infra.Logger) *Orchestrator {
	return &Orchestrator{registry: registry, media: media, logger: logger}
}

type outcome struct {
	providerID string
	effective  providers.GenerateRequest
	items      []providers.MediaItem
	err        error
}

// Generate validates the request, runs the selected adapters concurrently,
// waits for every one of them, and persists each produced item. A cancelled
// context discards all outcomes and returns the context error unchanged. When
// nothing succeeded, the most specific adapter failure is returned.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	adapters, err := o.resolve(req)
	if err != nil {
		return Result{}, err
	}

	outcomes := make([]outcome, len(adapters))
	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter providers.Adapter) {
			defer wg.Done()
			outcomes[i] = o.runAdapter(ctx, adapter, req)
		}(i, adapter)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var (
		result Result
		errs   []error
	)
	for _, oc := range outcomes {
		if oc.err != nil {
			// The caller's ctx is still live here, so a deadline error came
			// from inside the adapter (an HTTP client timeout wraps
			// context.DeadlineExceeded). That is a provider failure, not a
			// cancellation.
			if providers.IsCancelled(oc.err) {
				oc.err = providers.WrapError(providers.FailProvider, oc.providerID, oc.err)
			}
			o.logger.Warn().Err(oc.err).Str("provider", oc.providerID).Msg("orchestrator: adapter failed")
			result.Failures = append(result.Failures, failureOf(oc.providerID, oc.err))
			errs = append(errs, oc.err)
			continue
		}
		for _, item := range oc.items {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			rec, err := o.persist(ctx, req, oc, item)
			if err != nil {
				o.logger.Error().Err(err).Str("provider", oc.providerID).Msg("orchestrator: persist failed")
				result.Failures = append(result.Failures, failureOf(oc.providerID, err))
				errs = append(errs, err)
				continue
			}
			result.Records = append(result.Records, rec)
		}
	}

	if len(result.Records) == 0 && len(errs) > 0 {
		if err := providers.MostSpecific(errs); err != nil {
			return Result{}, err
		}
		return Result{}, providers.NewError(providers.FailProvider, "", "all providers failed")
	}
	return result, nil
}

func (o *Orchestrator) resolve(req Request) ([]providers.Adapter, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, providers.NewError(providers.FailValidation, "", "user id is required")
	}
	if strings.TrimSpace(req.Generate.Prompt) == "" {
		return nil, providers.NewError(providers.FailValidation, "", "prompt is required")
	}
	switch req.Mode {
	case ModeSingle:
		adapter, ok := o.registry.Get(req.ProviderID)
		if !ok {
			return nil, providers.NewError(providers.FailValidation, req.ProviderID, "unknown provider %q", req.ProviderID)
		}
		return []providers.Adapter{adapter}, nil
	case ModeCompareAll:
		adapters := o.registry.ByKind(req.MediaKind)
		if len(adapters) == 0 {
			return nil, providers.NewError(providers.FailValidation, "", "no providers registered for kind %q", req.MediaKind)
		}
		return adapters, nil
	default:
		return nil, providers.NewError(providers.FailValidation, "", "unknown mode %q", req.Mode)
	}
}

func (o *Orchestrator) runAdapter(ctx context.Context, adapter providers.Adapter, req Request) outcome {
	desc := adapter.Descriptor()
	oc := outcome{providerID: desc.ID}
	if !adapter.Configured() {
		oc.err = providers.NewError(providers.FailNotConfigured, desc.ID, "provider is not configured")
		return oc
	}

	// Each adapter derives its own effective request; the shared one is never
	// mutated. The effective copy is what gets persisted as params.
	oc.effective = adapter.Normalize(req.Generate)

	var progress providers.ProgressFunc
	if req.Progress != nil {
		progress = func(stage providers.Stage, detail string) {
			req.Progress(desc.ID, stage, detail)
		}
	}

	items, err := adapter.Generate(ctx, req.Generate, progress)
	if err != nil {
		oc.err = err
		return oc
	}
	if len(items) == 0 {
		oc.err = providers.NewError(providers.FailProvider, desc.ID, "provider returned no media")
		return oc
	}
	oc.items = items
	return oc
}

func (o *Orchestrator) persist(ctx context.Context, req Request, oc outcome, item providers.MediaItem) (library.Record, error) {
	sourceType := "generate"
	if req.Generate.SourceImage != nil {
		sourceType = "edit"
	}
	return o.media.AddMedia(ctx, library.AddMediaInput{
		UserID:     req.UserID,
		Provider:   oc.providerID,
		MediaKind:  string(item.Kind),
		PromptText: req.Generate.Prompt,
		SourceType: sourceType,
		Params:     paramsDoc(oc.effective, item),
		FolderID:   req.FolderID,
		Data:       item.Data,
		MIME:       item.MIME,
	})
}

// paramsDoc records the effective parameters the adapter actually used, not
// the raw caller input.
func paramsDoc(eff providers.GenerateRequest, item providers.MediaItem) map[string]any {
	doc := map[string]any{}
	if eff.AspectRatio != "" {
		doc["aspectRatio"] = eff.AspectRatio
	}
	if eff.Size != "" {
		doc["size"] = eff.Size
	}
	if eff.Resolution != "" {
		doc["resolution"] = eff.Resolution
	}
	if eff.DurationSeconds != "" {
		doc["durationSeconds"] = eff.DurationSeconds
	}
	if eff.NegativePrompt != "" {
		doc["negativePrompt"] = eff.NegativePrompt
	}
	if eff.RemixOfID != "" {
		doc["remixOfId"] = eff.RemixOfID
	}
	if eff.SourceImage != nil && eff.SourceImage.StorageKey != "" {
		doc["sourceImageKey"] = eff.SourceImage.StorageKey
	}
	for k, v := range item.Meta {
		doc[k] = v
	}
	return doc
}

func failureOf(providerID string, err error) AdapterFailure {
	return AdapterFailure{
		ProviderID: providerID,
		Kind:       providers.KindOf(err),
		Message:    err.Error(),
	}
}
