package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CKsangiacomo/clickeen-sub004/internal/api"
	"github.com/CKsangiacomo/clickeen-sub004/internal/database"
	"github.com/CKsangiacomo/clickeen-sub004/internal/l10n"
	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
)

type overlayPayload struct {
	WorkspaceID   string         `json:"workspaceId"`
	Ops           []model.SetOp  `json:"ops"`
	UserOps       []model.SetOp  `json:"userOps"`
	GeoTargets    []string       `json:"geoTargets"`
	Base          map[string]any `json:"base"`
	BaseUpdatedAt *time.Time     `json:"baseUpdatedAt"`
}

// SaveOverlay handles PUT /l10n/instances/{publicId}/{layer}/{layerKey}.
func (h *Handler) SaveOverlay(w http.ResponseWriter, r *http.Request) {
	publicID := chi.URLParam(r, "publicId")
	rawLayer := chi.URLParam(r, "layer")
	rawKey := chi.URLParam(r, "layerKey")

	layer := l10n.NormalizeLayer(rawLayer)
	if layer == "" {
		api.Validation(w, "errors.l10n.unknownLayer", rawLayer)
		return
	}
	layerKey := l10n.NormalizeLayerKey(layer, rawKey)
	if layerKey == "" {
		api.Validation(w, "errors.l10n.invalidLayerKey", rawKey)
		return
	}

	var payload overlayPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Validation(w, "errors.l10n.invalidBody", err.Error())
		return
	}
	if payload.Base == nil {
		api.Validation(w, "errors.l10n.missingBase")
		return
	}
	for _, op := range append(append([]model.SetOp{}, payload.Ops...), payload.UserOps...) {
		if err := l10n.ValidateOp(op); err != nil {
			api.Validation(w, "errors.l10n.invalidOp", err.Error())
			return
		}
	}
	if len(payload.GeoTargets) > 0 && layer != model.LayerLocale {
		api.Validation(w, "errors.l10n.geoTargetsLocaleOnly")
		return
	}

	state, err := h.Publisher.Save(r.Context(), l10n.SaveRequest{
		PublicID:      publicID,
		Layer:         layer,
		LayerKey:      layerKey,
		WorkspaceID:   payload.WorkspaceID,
		Ops:           payload.Ops,
		UserOps:       payload.UserOps,
		GeoTargets:    payload.GeoTargets,
		Base:          payload.Base,
		BaseUpdatedAt: payload.BaseUpdatedAt,
	})
	if err != nil {
		api.Internal(w, "errors.l10n.saveFailed", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, state)
}

// DeleteOverlay handles DELETE /l10n/instances/{publicId}/{layer}/{layerKey}.
func (h *Handler) DeleteOverlay(w http.ResponseWriter, r *http.Request) {
	err := h.Publisher.Delete(r.Context(),
		chi.URLParam(r, "publicId"), chi.URLParam(r, "layer"), chi.URLParam(r, "layerKey"))
	if errors.Is(err, database.ErrNotFound) {
		api.NotFound(w, "errors.l10n.overlayNotFound")
		return
	}
	if err != nil {
		api.Internal(w, "errors.l10n.deleteFailed", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// PublishOverlay handles POST /l10n/publish -- republish or delete one key,
// used by tooling and the retry path.
func (h *Handler) PublishOverlay(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PublicID string `json:"publicId"`
		Layer    string `json:"layer"`
		LayerKey string `json:"layerKey"`
		Action   string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Validation(w, "errors.l10n.invalidBody", err.Error())
		return
	}

	var err error
	switch payload.Action {
	case "", "publish":
		err = h.Publisher.PublishKey(r.Context(), payload.PublicID, payload.Layer, payload.LayerKey)
	case "delete":
		err = h.Publisher.Delete(r.Context(), payload.PublicID, payload.Layer, payload.LayerKey)
	default:
		api.Validation(w, "errors.l10n.unknownAction", payload.Action)
		return
	}
	if errors.Is(err, database.ErrNotFound) {
		api.NotFound(w, "errors.l10n.overlayNotFound")
		return
	}
	if err != nil {
		api.Internal(w, "errors.l10n.publishFailed", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"published": true})
}

// RebuildOverlayIndex handles PUT /l10n/instances/{publicId}/index --
// regenerate the published index from the overlay rows.
func (h *Handler) RebuildOverlayIndex(w http.ResponseWriter, r *http.Request) {
	publicID := chi.URLParam(r, "publicId")
	if err := h.Publisher.RebuildIndex(r.Context(), publicID); err != nil {
		api.Internal(w, "errors.l10n.indexRebuildFailed", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"rebuilt": true})
}

// DropOverlayIndex handles DELETE /l10n/instances/{publicId}/index.
func (h *Handler) DropOverlayIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.Publisher.DropIndex(r.Context(), chi.URLParam(r, "publicId")); err != nil {
		api.Internal(w, "errors.l10n.indexDeleteFailed", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// PutBaseSnapshot handles PUT /l10n/instances/{publicId}/bases/{fingerprint}
// -- record base values for a fingerprint so stale-overlay salvage has a
// snapshot to compare against.
func (h *Handler) PutBaseSnapshot(w http.ResponseWriter, r *http.Request) {
	fingerprint := l10n.NormalizeSHA256Hex(chi.URLParam(r, "fingerprint"))
	if fingerprint == "" {
		api.Validation(w, "errors.l10n.invalidFingerprint", chi.URLParam(r, "fingerprint"))
		return
	}
	var payload struct {
		Snapshot map[string]string `json:"snapshot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Validation(w, "errors.l10n.invalidBody", err.Error())
		return
	}
	if len(payload.Snapshot) == 0 {
		api.Validation(w, "errors.l10n.emptySnapshot")
		return
	}
	for path := range payload.Snapshot {
		if l10n.HasProhibitedSegment(path) {
			api.Validation(w, "errors.l10n.invalidOp", path)
			return
		}
	}

	err := h.Publisher.PublishBaseSnapshot(r.Context(),
		chi.URLParam(r, "publicId"), fingerprint, payload.Snapshot)
	if err != nil {
		api.Internal(w, "errors.l10n.snapshotFailed", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"published": true})
}

// ResolveInstance handles POST /l10n/instances/{publicId}/resolve -- the
// renderer-facing localization call.
func (h *Handler) ResolveInstance(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Locale          string            `json:"locale"`
		Country         string            `json:"country"`
		Config          map[string]any    `json:"config"`
		BaseFingerprint string            `json:"baseFingerprint"`
		Context         l10n.LayerContext `json:"layerContext"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Validation(w, "errors.l10n.invalidBody", err.Error())
		return
	}
	if payload.Config == nil {
		api.Validation(w, "errors.l10n.missingBase")
		return
	}

	result, err := h.Resolver.Resolve(r.Context(), l10n.ResolveRequest{
		PublicID:        chi.URLParam(r, "publicId"),
		Locale:          payload.Locale,
		Country:         payload.Country,
		Context:         payload.Context,
		Base:            payload.Config,
		BaseFingerprint: payload.BaseFingerprint,
	})
	if err != nil {
		api.Internal(w, "errors.l10n.resolveFailed", err)
		return
	}

	w.Header().Set("x-ck-l10n-effective-locale", result.EffectiveLocale)
	w.Header().Set("x-ck-l10n-status", result.Status)
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"config":          result.Config,
		"status":          result.Status,
		"effectiveLocale": result.EffectiveLocale,
		"appliedOps":      result.AppliedOps,
	})
}

// ReadL10nArtifact handles GET /l10n/instances/* -- published documents
// served straight from the object store with their stored cache policy.
func (h *Handler) ReadL10nArtifact(w http.ResponseWriter, r *http.Request) {
	h.serveStored(w, r, "l10n/instances/")
}

// ReadRenderArtifact handles GET /renders/instances/*.
func (h *Handler) ReadRenderArtifact(w http.ResponseWriter, r *http.Request) {
	h.serveStored(w, r, "renders/instances/")
}

// serveStored serves an object by its URL path, constrained to a published
// prefix so this can never read arbitrary store keys.
func (h *Handler) serveStored(w http.ResponseWriter, r *http.Request, prefix string) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	if !strings.HasPrefix(key, prefix) || strings.Contains(key, "..") {
		api.NotFound(w, "errors.artifact.notFound")
		return
	}

	body, info, err := h.Store.Get(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		api.NotFound(w, "errors.artifact.notFound")
		return
	}
	if err != nil {
		api.Internal(w, "errors.artifact.readFailed", err)
		return
	}

	cacheControl := storage.CacheNone
	if info != nil && info.CacheControl != "" {
		cacheControl = info.CacheControl
	}
	h.writeBlob(w, body, info, cacheControl)
}
