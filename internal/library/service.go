package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mrchevyceleb/vibecanvas/internal/infra"
	"github.com/mrchevyceleb/vibecanvas/internal/storage"
)

// metaKeyStarred marks a record as a favorite inside its metadata document.
const metaKeyStarred = "isStarred"

// Service coordinates blob storage and the record index. Writes go blob
// first, index second; a failed index write deletes the orphaned blob so the
// two stores cannot drift apart silently.
type Service struct {
	repo  *Repo
	blobs storage.Store
	log   *infra.Logger
}

func NewService(repo *Repo, blobs storage.Store, log *infra.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, log: log}
}

// AddMediaInput carries everything needed to persist one media asset.
type AddMediaInput struct {
	UserID     string
	Provider   string
	MediaKind  string
	PromptText string
	SourceType string
	Params     map[string]any
	Metadata   map[string]any
	FolderID   string
	Data       []byte
	MIME       string
}

// AddMedia stores the blob, then indexes it. When the index write fails the
// stored blob is deleted so no unindexed data survives the call.
func (s *Service) AddMedia(ctx context.Context, in AddMediaInput) (Record, error) {
	if in.UserID == "" {
		return Record{}, fmt.Errorf("library: user id is required")
	}
	if len(in.Data) == 0 {
		return Record{}, fmt.Errorf("library: media data is empty")
	}

	id := uuid.NewString()
	key := mediaKey(in.UserID, id, in.MIME)
	storedKey, err := s.blobs.Put(ctx, key, in.Data, in.MIME)
	if err != nil {
		return Record{}, fmt.Errorf("library: store blob: %w", err)
	}

	rec := Record{
		ID:         id,
		UserID:     in.UserID,
		Provider:   in.Provider,
		Params:     in.Params,
		PromptText: in.PromptText,
		SourceType: in.SourceType,
		Metadata:   in.Metadata,
		FolderID:   in.FolderID,
		MediaKind:  in.MediaKind,
		StorageKey: storedKey,
	}
	createdAt, err := s.repo.Insert(ctx, rec)
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), storedKey); delErr != nil {
			s.log.Error().Err(delErr).Str("storage_key", storedKey).Msg("library: orphaned blob could not be deleted")
		}
		return Record{}, err
	}
	rec.CreatedAt = createdAt
	return rec, nil
}

// Upload persists a user-provided asset.
func (s *Service) Upload(ctx context.Context, userID, folderID, mediaKind, mimeType string, data []byte) (Record, error) {
	return s.AddMedia(ctx, AddMediaInput{
		UserID:     userID,
		Provider:   "upload",
		MediaKind:  mediaKind,
		SourceType: "upload",
		FolderID:   folderID,
		Data:       data,
		MIME:       mimeType,
	})
}

// Duplicate copies a record's blob and index entry into a fresh record owned
// by the same user. Favorites do not carry over.
func (s *Service) Duplicate(ctx context.Context, userID, id string) (Record, error) {
	src, err := s.Get(ctx, userID, id)
	if err != nil {
		return Record{}, err
	}
	obj, err := s.blobs.Get(ctx, src.StorageKey)
	if err != nil {
		return Record{}, fmt.Errorf("library: read source blob: %w", err)
	}
	metadata := cloneMeta(src.Metadata)
	delete(metadata, metaKeyStarred)
	metadata["duplicatedFrom"] = src.ID
	return s.AddMedia(ctx, AddMediaInput{
		UserID:     userID,
		Provider:   src.Provider,
		MediaKind:  src.MediaKind,
		PromptText: src.PromptText,
		SourceType: src.SourceType,
		Params:     src.Params,
		Metadata:   metadata,
		FolderID:   src.FolderID,
		Data:       obj.Data,
		MIME:       obj.ContentType,
	})
}

// Get fetches one record, hiding other users' records behind ErrNotFound.
func (s *Service) Get(ctx context.Context, userID, id string) (Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec.UserID != userID {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// List returns the user's records, newest first.
func (s *Service) List(ctx context.Context, userID string, f Filter) ([]Record, error) {
	return s.repo.ListByUser(ctx, userID, f)
}

// Blob returns a record together with its stored bytes. Used when a record
// serves as conditioning input for a new generation.
func (s *Service) Blob(ctx context.Context, userID, id string) (Record, storage.Object, error) {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return Record{}, storage.Object{}, err
	}
	obj, err := s.blobs.Get(ctx, rec.StorageKey)
	if err != nil {
		return Record{}, storage.Object{}, fmt.Errorf("library: read blob: %w", err)
	}
	return rec, obj, nil
}

// Move places a record in a folder, or back at the root when folderID is
// empty.
func (s *Service) Move(ctx context.Context, userID, id, folderID string) error {
	return s.repo.UpdateFolder(ctx, userID, id, folderID)
}

// ToggleFavorite flips the record's starred flag and returns the new value.
func (s *Service) ToggleFavorite(ctx context.Context, userID, id string) (bool, error) {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return false, err
	}
	metadata := cloneMeta(rec.Metadata)
	starred, _ := metadata[metaKeyStarred].(bool)
	metadata[metaKeyStarred] = !starred
	if err := s.repo.UpdateMetadata(ctx, userID, id, metadata); err != nil {
		return false, err
	}
	return !starred, nil
}

// Delete removes records and their blobs. Index rows go first; a blob that
// cannot be removed afterwards is logged, not surfaced, since the records are
// already gone.
func (s *Service) Delete(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var keys []string
	for _, id := range ids {
		rec, err := s.Get(ctx, userID, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return err
		}
		keys = append(keys, rec.StorageKey)
	}
	if err := s.repo.Delete(ctx, userID, ids); err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.log.Error().Err(err).Str("storage_key", key).Msg("library: blob delete failed after index delete")
		}
	}
	return nil
}

// CreateFolder makes a new folder for the user.
func (s *Service) CreateFolder(ctx context.Context, userID, name string) (Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Folder{}, fmt.Errorf("library: folder name is required")
	}
	return s.repo.InsertFolder(ctx, Folder{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   name,
	})
}

// ListFolders returns the user's folders.
func (s *Service) ListFolders(ctx context.Context, userID string) ([]Folder, error) {
	return s.repo.ListFolders(ctx, userID)
}

// SignedURL resolves a short-lived URL for a record's blob after an ownership
// check.
func (s *Service) SignedURL(ctx context.Context, userID, id string, ttl time.Duration) (string, error) {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return s.blobs.SignedURL(ctx, rec.StorageKey, ttl)
}

func mediaKey(userID, id, mimeType string) string {
	return fmt.Sprintf("users/%s/media/%s.%s", userID, id, extForMIME(mimeType))
}

func extForMIME(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	default:
		return "bin"
	}
}

func cloneMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	return out
}
