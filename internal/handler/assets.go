package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CKsangiacomo/clickeen-sub004/internal/api"
	"github.com/CKsangiacomo/clickeen-sub004/internal/assets"
	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
)

// maxUploadBody caps request reading before tier caps apply.
const maxUploadBody = 128 << 20

// UploadAsset handles POST /assets/upload -- raw body plus header metadata.
func (h *Handler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBody+1))
	if err != nil {
		api.Validation(w, "errors.asset.bodyUnreadable", err.Error())
		return
	}
	if len(body) > maxUploadBody {
		api.TooLarge(w, "errors.asset.tooLarge", "upload exceeds the service hard cap")
		return
	}

	result, err := h.Assets.Upload(r.Context(), assets.UploadRequest{
		AccountID:   r.Header.Get("x-account-id"),
		WorkspaceID: r.Header.Get("x-workspace-id"),
		Source:      r.Header.Get("x-source"),
		Variant:     r.Header.Get("x-variant"),
		Filename:    r.Header.Get("x-filename"),
		PublicID:    r.Header.Get("x-public-id"),
		WidgetType:  r.Header.Get("x-widget-type"),
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
		Principal:   api.GetPrincipal(r.Context()),
	})
	if err != nil {
		api.Write(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
}

// ReadAsset handles GET /assets/v/* -- the percent-encoded canonical key
// travels as a single path segment.
func (h *Handler) ReadAsset(w http.ResponseWriter, r *http.Request) {
	encoded := strings.TrimPrefix(r.URL.EscapedPath(), "/assets/v/")
	key, err := url.PathUnescape(encoded)
	if err != nil {
		api.NotFound(w, "errors.asset.notFound")
		return
	}

	body, info, err := h.Assets.Read(r.Context(), key)
	if err != nil {
		api.Write(w, err)
		return
	}
	h.writeBlob(w, body, info, storage.CacheImmutable)
}

// ReadAssetPointer handles GET /assets/p/{accountId}/{assetId} -- an
// uncacheable read of the primary variant's current content.
func (h *Handler) ReadAssetPointer(w http.ResponseWriter, r *http.Request) {
	body, info, err := h.Assets.ReadPointer(r.Context(),
		chi.URLParam(r, "accountId"), chi.URLParam(r, "assetId"))
	if err != nil {
		api.Write(w, err)
		return
	}
	h.writeBlob(w, body, info, storage.CacheNone)
}

// ReplaceAsset handles PUT /assets/{accountId}/{assetId}.
func (h *Handler) ReplaceAsset(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBody+1))
	if err != nil {
		api.Validation(w, "errors.asset.bodyUnreadable", err.Error())
		return
	}
	if len(body) > maxUploadBody {
		api.TooLarge(w, "errors.asset.tooLarge", "replacement exceeds the service hard cap")
		return
	}

	result, err := h.Assets.Replace(r.Context(), assets.ReplaceRequest{
		AccountID:      chi.URLParam(r, "accountId"),
		AssetID:        chi.URLParam(r, "assetId"),
		Variant:        r.Header.Get("x-variant"),
		Filename:       r.Header.Get("x-filename"),
		ContentType:    r.Header.Get("Content-Type"),
		Body:           body,
		IdempotencyKey: r.Header.Get("idempotency-key"),
		Principal:      api.GetPrincipal(r.Context()),
	})
	if err != nil {
		api.Write(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
}

// DeleteAsset handles DELETE /assets/{accountId}/{assetId}.
func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	result, err := h.Assets.Delete(r.Context(), assets.DeleteRequest{
		AccountID:    chi.URLParam(r, "accountId"),
		AssetID:      chi.URLParam(r, "assetId"),
		ConfirmInUse: r.URL.Query().Get("confirmInUse") == "true",
		Principal:    api.GetPrincipal(r.Context()),
	})
	if err != nil {
		api.Write(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
}

// AssetIntegrity handles GET /assets/{accountId}/{assetId}/integrity.
func (h *Handler) AssetIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.Assets.CheckIdentity(r.Context(),
		chi.URLParam(r, "accountId"), chi.URLParam(r, "assetId"))
	if err != nil {
		api.Write(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, report)
}

// AccountIntegrity handles GET /accounts/{accountId}/integrity.
func (h *Handler) AccountIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.Assets.CheckAccount(r.Context(), chi.URLParam(r, "accountId"))
	if err != nil {
		api.Write(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, report)
}

// SyncAssetUsage handles PUT /accounts/{accountId}/usage/{publicId}.
func (h *Handler) SyncAssetUsage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Refs []model.AccountAssetUsage `json:"refs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Validation(w, "errors.usage.invalidBody", err.Error())
		return
	}
	err := h.Assets.SyncUsage(r.Context(),
		chi.URLParam(r, "accountId"), chi.URLParam(r, "publicId"), payload.Refs)
	if err != nil {
		api.Write(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"synced": len(payload.Refs)})
}

func (h *Handler) writeBlob(w http.ResponseWriter, body []byte, info *storage.ObjectInfo, cacheControl string) {
	contentType := "application/octet-stream"
	if info != nil && info.ContentType != "" {
		contentType = info.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.log().Warn("write blob response", "error", err)
	}
}
