package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strconv"

	"github.com/mrchevyceleb/vibecanvas/pkg/zip"
)

type mediaExportRequest struct {
	IDs []string `json:"ids"`
}

const maxExportItems = 50

// MediaExport bundles the requested records' blobs into a zip download.
func (a *App) MediaExport(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var req mediaExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_body", "could not parse request body")
		return
	}
	if len(req.IDs) == 0 {
		a.error(w, http.StatusBadRequest, "validation", "ids is required")
		return
	}
	if len(req.IDs) > maxExportItems {
		a.error(w, http.StatusBadRequest, "validation", fmt.Sprintf("at most %d items per export", maxExportItems))
		return
	}

	entries := make([]zip.Entry, 0, len(req.IDs))
	for _, id := range req.IDs {
		rec, obj, err := a.Library.Blob(r.Context(), userID, id)
		if err != nil {
			a.writeFailure(w, err)
			return
		}
		name := rec.ID + path.Ext(rec.StorageKey)
		entries = append(entries, zip.Entry{Name: name, MIME: obj.ContentType, Data: obj.Data})
	}

	archive, err := zip.Archive(entries)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "could not build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="media-export.zip"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
