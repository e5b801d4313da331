package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mrchevyceleb/vibecanvas/internal/library"
	"github.com/mrchevyceleb/vibecanvas/internal/mediacodec"
	"github.com/mrchevyceleb/vibecanvas/internal/middleware"
)

// MediaList returns the caller's records, filterable by kind and folder.
func (a *App) MediaList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	records, err := a.Library.List(r.Context(), userID, library.Filter{
		Kind:     q.Get("kind"),
		FolderID: q.Get("folderId"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	if records == nil {
		records = []library.Record{}
	}
	a.json(w, http.StatusOK, map[string]any{"media": records})
}

func (a *App) MediaGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	rec, err := a.Library.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	a.json(w, http.StatusOK, rec)
}

// MediaURL resolves a short-lived display URL for a record's blob, scoped to
// the caller's session.
func (a *App) MediaURL(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	rec, err := a.Library.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	url, err := a.URLs.Resolve(r.Context(), rec.StorageKey, middleware.SessionFromContext(r.Context()))
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"url": url})
}

type uploadRequest struct {
	DataURL   string `json:"dataUrl"`
	FolderID  string `json:"folderId,omitempty"`
	MediaKind string `json:"mediaKind,omitempty"`
}

// MediaUpload stores a caller-provided asset delivered as a data URL.
func (a *App) MediaUpload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	data, mimeType, err := mediacodec.DecodeDataURL(req.DataURL)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid data url")
		return
	}
	kind := req.MediaKind
	if kind == "" {
		kind = "image"
		if strings.HasPrefix(mimeType, "video/") {
			kind = "video"
		}
	}
	rec, err := a.Library.Upload(r.Context(), userID, req.FolderID, kind, mimeType, data)
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	a.json(w, http.StatusCreated, rec)
}

func (a *App) MediaDuplicate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	rec, err := a.Library.Duplicate(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	a.json(w, http.StatusCreated, rec)
}

type moveRequest struct {
	FolderID string `json:"folderId"`
}

// MediaMove places a record in a folder; an empty folderId moves it to the
// root.
func (a *App) MediaMove(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Library.Move(r.Context(), userID, chi.URLParam(r, "id"), req.FolderID); err != nil {
		a.writeFailure(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "moved"})
}

func (a *App) MediaFavorite(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	starred, err := a.Library.ToggleFavorite(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"isStarred": starred})
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

// MediaDelete removes records, their blobs, and any cached URLs for them.
func (a *App) MediaDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.IDs) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "ids required")
		return
	}
	var keys []string
	for _, id := range req.IDs {
		if rec, err := a.Library.Get(r.Context(), userID, id); err == nil {
			keys = append(keys, rec.StorageKey)
		}
	}
	if err := a.Library.Delete(r.Context(), userID, req.IDs); err != nil {
		a.writeFailure(w, err)
		return
	}
	for _, key := range keys {
		a.URLs.Invalidate(key)
	}
	a.json(w, http.StatusOK, map[string]string{"status": "deleted"})
}
