package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mrchevyceleb/vibecanvas/internal/library"
)

type createFolderRequest struct {
	Name string `json:"name"`
}

func (a *App) FolderCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	folder, err := a.Library.CreateFolder(r.Context(), userID, req.Name)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	a.json(w, http.StatusCreated, folder)
}

func (a *App) FolderList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	folders, err := a.Library.ListFolders(r.Context(), userID)
	if err != nil {
		a.writeFailure(w, err)
		return
	}
	if folders == nil {
		folders = []library.Folder{}
	}
	a.json(w, http.StatusOK, map[string]any{"folders": folders})
}
