// Package handlers implements the JSON API surface. App methods are thin:
// decode, delegate to a service, map the failure taxonomy onto status codes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mrchevyceleb/vibecanvas/internal/infra"
	"github.com/mrchevyceleb/vibecanvas/internal/library"
	"github.com/mrchevyceleb/vibecanvas/internal/middleware"
	"github.com/mrchevyceleb/vibecanvas/internal/orchestrator"
	"github.com/mrchevyceleb/vibecanvas/internal/promptenhance"
	"github.com/mrchevyceleb/vibecanvas/internal/providers"
	"github.com/mrchevyceleb/vibecanvas/internal/signedurl"
	"github.com/mrchevyceleb/vibecanvas/internal/storage"
)

// Generator runs one orchestrated generation round.
type Generator interface {
	Generate(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// MediaLibrary is the slice of library.Service the handlers use.
type MediaLibrary interface {
	List(ctx context.Context, userID string, f library.Filter) ([]library.Record, error)
	Get(ctx context.Context, userID, id string) (library.Record, error)
	Blob(ctx context.Context, userID, id string) (library.Record, storage.Object, error)
	Upload(ctx context.Context, userID, folderID, mediaKind, mimeType string, data []byte) (library.Record, error)
	Duplicate(ctx context.Context, userID, id string) (library.Record, error)
	Move(ctx context.Context, userID, id, folderID string) error
	ToggleFavorite(ctx context.Context, userID, id string) (bool, error)
	Delete(ctx context.Context, userID string, ids []string) error
	CreateFolder(ctx context.Context, userID, name string) (library.Folder, error)
	ListFolders(ctx context.Context, userID string) ([]library.Folder, error)
}

// URLResolver resolves cached signed URLs for stored blobs.
type URLResolver interface {
	Resolve(ctx context.Context, key, authContext string) (string, error)
	Invalidate(key string)
}

// CredentialStore persists per-provider API keys.
type CredentialStore interface {
	Token(ctx context.Context, provider string) (string, error)
	SetToken(ctx context.Context, provider, token string) error
}

// App aggregates the services behind the HTTP surface.
type App struct {
	Registry    *providers.Registry
	Generator   Generator
	Library     MediaLibrary
	URLs        URLResolver
	Credentials CredentialStore
	Enhancer    promptenhance.Enhancer
	Logger      *infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// failureStatus maps the provider failure taxonomy onto HTTP status codes.
func failureStatus(kind providers.FailureKind) int {
	switch kind {
	case providers.FailValidation, providers.FailNotConfigured:
		return http.StatusBadRequest
	case providers.FailCredential:
		return http.StatusUnauthorized
	case providers.FailContentPolicy:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// writeFailure renders any service error. Cancellation writes nothing: the
// client that would read the response is gone.
func (a *App) writeFailure(w http.ResponseWriter, err error) {
	if providers.IsCancelled(err) {
		return
	}
	if errors.Is(err, library.ErrNotFound) || errors.Is(err, storage.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "media not found")
		return
	}
	if errors.Is(err, signedurl.ErrNoAsset) {
		a.error(w, http.StatusNotFound, "no_asset", "record has no stored asset")
		return
	}
	var perr *providers.Error
	if errors.As(err, &perr) {
		message := perr.Reason
		if message == "" {
			message = perr.Error()
		}
		a.error(w, failureStatus(perr.Kind), string(perr.Kind), message)
		return
	}
	a.error(w, http.StatusInternalServerError, "internal", "internal error")
}

func (a *App) Health(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}
