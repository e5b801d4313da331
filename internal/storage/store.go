// Package storage persists generated media blobs and resolves time-limited
// URLs for them. Two backends are supported: S3-compatible object storage for
// production and the local filesystem for development.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mrchevyceleb/vibecanvas/internal/infra"
)

// ErrNotFound is returned when no object exists at the requested key.
var ErrNotFound = errors.New("storage: object not found")

// Object is a stored blob together with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// Store is the blob backend the media library writes to.
type Store interface {
	// Put persists data at key and returns the canonicalized key.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get retrieves the object at key, or ErrNotFound.
	Get(ctx context.Context, key string) (Object, error)
	// Delete removes the object at key. Deleting a missing key is not an
	// error; callers use Delete to compensate partially failed writes.
	Delete(ctx context.Context, key string) error
	// SignedURL returns a URL for key usable without further auth until ttl
	// elapses, or ErrNotFound when nothing is stored there.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// New builds the store named by cfg.StorageBackend.
func New(ctx context.Context, cfg infra.Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "", "filesystem":
		return NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	default:
		return nil, errors.New("storage: unknown backend " + cfg.StorageBackend)
	}
}
