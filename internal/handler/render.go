package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CKsangiacomo/clickeen-sub004/internal/api"
)

// SnapshotInstance handles POST /renders/instances/{publicId}/snapshot --
// regenerate the requested locales and swap the published pointer.
func (h *Handler) SnapshotInstance(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action  string   `json:"action"`
		Locales []string `json:"locales"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			api.Validation(w, "errors.render.invalidBody", err.Error())
			return
		}
	}
	if payload.Action != "" && payload.Action != "snapshot" {
		api.Validation(w, "errors.render.unknownAction", payload.Action)
		return
	}

	pointer, err := h.Pipeline.Snapshot(r.Context(), chi.URLParam(r, "publicId"), payload.Locales)
	if err != nil {
		api.Internal(w, "errors.render.snapshotFailed", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, pointer)
}
