// Package library owns the persisted media catalog: blob storage plus the
// indexed records that make generated and uploaded media browsable.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mrchevyceleb/vibecanvas/internal/infra"
	"github.com/mrchevyceleb/vibecanvas/internal/sqlinline"
)

// ErrNotFound is returned when a record does not exist or belongs to another
// user.
var ErrNotFound = errors.New("library: record not found")

// Record is one indexed media asset.
type Record struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Provider   string         `json:"provider"`
	Params     map[string]any `json:"params,omitempty"`
	PromptText string         `json:"promptText,omitempty"`
	SourceType string         `json:"sourceType"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	FolderID   string         `json:"folderId,omitempty"`
	MediaKind  string         `json:"mediaKind"`
	StorageKey string         `json:"storageKey"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Folder groups records for one user.
type Folder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Filter narrows a List call.
type Filter struct {
	Kind     string
	FolderID string
	Limit    int
	Offset   int
}

// Repo persists records and folders through the marker-tagged SQL runner.
type Repo struct {
	sql infra.SQLExecutor
}

func NewRepo(sql infra.SQLExecutor) *Repo {
	return &Repo{sql: sql}
}

// Insert indexes a record and returns its server-side creation time.
func (r *Repo) Insert(ctx context.Context, rec Record) (time.Time, error) {
	params, err := marshalJSONB(rec.Params)
	if err != nil {
		return time.Time{}, fmt.Errorf("library: encode params: %w", err)
	}
	metadata, err := marshalJSONB(rec.Metadata)
	if err != nil {
		return time.Time{}, fmt.Errorf("library: encode metadata: %w", err)
	}
	var createdAt time.Time
	err = r.sql.QueryRow(ctx, sqlinline.QInsertMediaRecord,
		rec.ID, rec.UserID, rec.Provider, params, rec.PromptText, rec.SourceType,
		metadata, rec.FolderID, rec.MediaKind, rec.StorageKey,
	).Scan(&createdAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("library: insert record: %w", err)
	}
	return createdAt, nil
}

// GetByID fetches one record regardless of owner; callers enforce ownership.
func (r *Repo) GetByID(ctx context.Context, id string) (Record, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectMediaByID, id)
	rec, err := scanRecord(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("library: select record: %w", err)
	}
	return rec, nil
}

// ListByUser returns the user's records, newest first.
func (r *Repo) ListByUser(ctx context.Context, userID string, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListMediaByUser, userID, f.Kind, f.FolderID, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("library: list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("library: scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("library: iterate records: %w", err)
	}
	return records, nil
}

// UpdateFolder moves a record; an empty folderID moves it to the root.
func (r *Repo) UpdateFolder(ctx context.Context, userID, id, folderID string) error {
	var updated string
	err := r.sql.QueryRow(ctx, sqlinline.QUpdateMediaFolder, id, userID, folderID).Scan(&updated)
	if err != nil {
		if infra.IsNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("library: update folder: %w", err)
	}
	return nil
}

// UpdateMetadata replaces a record's metadata document.
func (r *Repo) UpdateMetadata(ctx context.Context, userID, id string, metadata map[string]any) error {
	doc, err := marshalJSONB(metadata)
	if err != nil {
		return fmt.Errorf("library: encode metadata: %w", err)
	}
	var updated string
	err = r.sql.QueryRow(ctx, sqlinline.QUpdateMediaMetadata, id, userID, doc).Scan(&updated)
	if err != nil {
		if infra.IsNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("library: update metadata: %w", err)
	}
	return nil
}

// Delete removes the user's records with the given ids.
func (r *Repo) Delete(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteMediaRecords, userID, ids); err != nil {
		return fmt.Errorf("library: delete records: %w", err)
	}
	return nil
}

// InsertFolder creates a folder and returns it with its creation time filled.
func (r *Repo) InsertFolder(ctx context.Context, folder Folder) (Folder, error) {
	err := r.sql.QueryRow(ctx, sqlinline.QInsertFolder, folder.ID, folder.UserID, folder.Name).Scan(&folder.CreatedAt)
	if err != nil {
		return Folder{}, fmt.Errorf("library: insert folder: %w", err)
	}
	return folder, nil
}

// ListFolders returns the user's folders, newest first.
func (r *Repo) ListFolders(ctx context.Context, userID string) ([]Folder, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListFoldersByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("library: list folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("library: scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("library: iterate folders: %w", err)
	}
	return folders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec      Record
		params   []byte
		metadata []byte
		folderID *string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Provider, &params, &rec.PromptText,
		&rec.SourceType, &metadata, &folderID, &rec.MediaKind, &rec.StorageKey, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	if folderID != nil {
		rec.FolderID = *folderID
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &rec.Params); err != nil {
			return Record{}, fmt.Errorf("decode params: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return Record{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return rec, nil
}

func marshalJSONB(doc map[string]any) ([]byte, error) {
	if doc == nil {
		doc = map[string]any{}
	}
	return json.Marshal(doc)
}
