// Package assets implements the account asset store: tier-gated uploads,
// variant generation, atomic replacement, immutable reads, and guarded
// deletes. The relational store holds intent, the object store holds
// content, and the integrity routines reconcile the two.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CKsangiacomo/clickeen-sub004/internal/api"
	"github.com/CKsangiacomo/clickeen-sub004/internal/assetkey"
	"github.com/CKsangiacomo/clickeen-sub004/internal/counter"
	"github.com/CKsangiacomo/clickeen-sub004/internal/database"
	"github.com/CKsangiacomo/clickeen-sub004/internal/entitlements"
	"github.com/CKsangiacomo/clickeen-sub004/internal/imageproc"
	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
)

// Monthly budget counter key roots.
const (
	budgetUploadCount = "budget.uploads.count"
	budgetUploadBytes = "budget.uploads.bytes"
)

// validSources is the closed set of upload origins.
var validSources = map[string]bool{
	"bob.publish": true,
	"bob.export":  true,
	"devstudio":   true,
	"promotion":   true,
	"api":         true,
}

// Service owns the asset operations behind the HTTP handlers.
type Service struct {
	DB       database.Database
	Store    storage.Store
	Counters counter.Store
	Log      *slog.Logger
}

// UploadRequest carries one raw upload plus its header metadata.
type UploadRequest struct {
	AccountID   string
	WorkspaceID string
	Source      string
	Variant     string
	Filename    string
	PublicID    string
	WidgetType  string
	ContentType string
	Body        []byte
	Principal   api.Principal
}

// UploadResult reports the stored asset and its public URL path.
type UploadResult struct {
	Asset   *model.AccountAsset        `json:"asset"`
	Variant *model.AccountAssetVariant `json:"variant"`
	URL     string                     `json:"url"`
}

// Upload stores a new asset under a fresh id. The blob is written before
// the metadata; a metadata failure deletes the blob again so the object
// store never accumulates rows-without-blobs in the upload path.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if !assetkey.IsUUID(req.AccountID) {
		return nil, api.ErrValidation("errors.asset.invalidAccount")
	}
	if len(req.Body) == 0 {
		return nil, api.ErrValidation("errors.asset.emptyBody")
	}
	if !validSources[req.Source] {
		return nil, api.ErrValidation("errors.asset.invalidSource", req.Source)
	}

	variant := strings.ToLower(strings.TrimSpace(req.Variant))
	if variant == "" {
		variant = assetkey.DefaultVariant
	}
	if !assetkey.ValidVariant(variant) {
		return nil, api.ErrValidation("errors.asset.invalidVariant", req.Variant)
	}

	account, err := s.DB.GetAccount(strings.ToLower(req.AccountID))
	if errors.Is(err, database.ErrNotFound) {
		return nil, api.ErrNotFound("errors.account.notFound")
	}
	if err != nil {
		return nil, api.ErrInternal("errors.account.lookupFailed", err)
	}
	if account.Status != "active" {
		return nil, api.ErrDeny("errors.account.disabled")
	}

	tier := account.Tier
	if req.WorkspaceID != "" {
		workspace, err := s.DB.GetWorkspace(req.WorkspaceID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, api.ErrValidation("errors.account.workspaceMismatch")
		}
		if err != nil {
			return nil, api.ErrInternal("errors.account.lookupFailed", err)
		}
		if workspace.AccountID != account.ID {
			return nil, api.ErrValidation("errors.account.workspaceMismatch")
		}
		tier = workspace.Tier
	}

	if err := s.authorize(account.ID, req.WorkspaceID, req.Principal, model.RoleEditor); err != nil {
		return nil, err
	}

	limits := entitlements.ForTier(tier)
	size := int64(len(req.Body))
	if size > limits.UploadMaxBytes {
		return nil, api.ErrTooLarge("errors.asset.tooLarge",
			fmt.Sprintf("upload is %d bytes, tier cap is %d", size, limits.UploadMaxBytes))
	}
	if err := s.checkBudgets(ctx, account.ID, size, limits); err != nil {
		return nil, err
	}

	ext := assetkey.PickExtension(req.Filename, req.ContentType)
	filename := assetkey.SanitizeFilename(req.Filename, ext, variant)
	contentType := req.ContentType
	if contentType == "" {
		contentType = assetkey.GuessContentType(ext)
	}

	assetID := uuid.NewString()
	key := assetkey.BuildKey(account.ID, assetID, variant, filename)
	digest := sha256Hex(req.Body)

	err = s.Store.Put(ctx, key, req.Body, storage.PutOptions{
		ContentType:  contentType,
		CacheControl: storage.CacheImmutable,
	})
	if err != nil {
		return nil, api.ErrInternal("errors.asset.storeFailed", err)
	}

	now := time.Now().UTC()
	asset := &model.AccountAsset{
		AccountID:          account.ID,
		AssetID:            assetID,
		WorkspaceID:        req.WorkspaceID,
		PublicID:           req.PublicID,
		WidgetType:         req.WidgetType,
		Source:             req.Source,
		OriginalFilename:   req.Filename,
		NormalizedFilename: filename,
		ContentType:        contentType,
		SizeBytes:          size,
		SHA256:             digest,
		CreatedAt:          now,
	}
	if err := s.DB.CreateAsset(asset); err != nil {
		s.compensate(ctx, key)
		return nil, api.ErrInternal("errors.asset.metadataFailed", err)
	}

	variantRow := &model.AccountAssetVariant{
		AccountID:   account.ID,
		AssetID:     assetID,
		Variant:     variant,
		StorageKey:  key,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   size,
		CreatedAt:   now,
	}
	if err := s.DB.CreateAssetVariant(variantRow); err != nil {
		s.compensate(ctx, key)
		if derr := s.DB.DeleteAsset(account.ID, assetID); derr != nil {
			s.log().Error("roll back asset row", "assetId", assetID, "error", derr)
		}
		return nil, api.ErrInternal("errors.asset.metadataFailed", err)
	}

	s.generateThumb(ctx, asset, req.Body)
	s.bumpBudgets(ctx, account.ID, size)

	return &UploadResult{Asset: asset, Variant: variantRow, URL: assetkey.PublicPath(key)}, nil
}

// ReplaceRequest swaps the content behind one variant pointer.
type ReplaceRequest struct {
	AccountID      string
	AssetID        string
	Variant        string
	Filename       string
	ContentType    string
	Body           []byte
	IdempotencyKey string
	Principal      api.Principal
}

// ReplaceResult reports the pointer swap.
type ReplaceResult struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	Replayed bool   `json:"replayed"`
}

// Replace writes the new content under a digest-prefixed key and swaps the
// variant pointer atomically. Replays through the idempotency ledger return
// the recorded outcome without touching the pointer again.
func (s *Service) Replace(ctx context.Context, req ReplaceRequest) (*ReplaceResult, error) {
	if !assetkey.IsUUID(req.AccountID) || !assetkey.IsUUID(req.AssetID) {
		return nil, api.ErrValidation("errors.asset.invalidIdentity")
	}
	if len(req.Body) == 0 {
		return nil, api.ErrValidation("errors.asset.emptyBody")
	}
	variant := strings.ToLower(strings.TrimSpace(req.Variant))
	if variant == "" {
		variant = assetkey.DefaultVariant
	}
	if !assetkey.ValidVariant(variant) {
		return nil, api.ErrValidation("errors.asset.invalidVariant", req.Variant)
	}

	asset, err := s.DB.GetAsset(req.AccountID, req.AssetID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, api.ErrNotFound("errors.asset.notFound")
	}
	if err != nil {
		return nil, api.ErrInternal("errors.asset.lookupFailed", err)
	}
	if err := s.authorize(asset.AccountID, asset.WorkspaceID, req.Principal, model.RoleEditor); err != nil {
		return nil, err
	}

	digest := sha256Hex(req.Body)
	ext := assetkey.PickExtension(req.Filename, req.ContentType)
	filename := assetkey.SanitizeFilename(req.Filename, ext, variant)
	contentType := req.ContentType
	if contentType == "" {
		contentType = assetkey.GuessContentType(ext)
	}
	newKey := assetkey.BuildReplaceKey(asset.AccountID, asset.AssetID, variant, filename, digest)

	// Content-addressed: a replay writes the same bytes to the same key.
	err = s.Store.Put(ctx, newKey, req.Body, storage.PutOptions{
		ContentType:  contentType,
		CacheControl: storage.CacheImmutable,
	})
	if err != nil {
		return nil, api.ErrInternal("errors.asset.storeFailed", err)
	}

	result, err := s.DB.ReplaceAssetVariant(database.ReplaceVariantArgs{
		AccountID:      asset.AccountID,
		AssetID:        asset.AssetID,
		Variant:        variant,
		NewKey:         newKey,
		NewFilename:    filename,
		ContentType:    contentType,
		SizeBytes:      int64(len(req.Body)),
		SHA256:         digest,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    replaceRequestHash(variant, filename, digest),
	})
	if errors.Is(err, database.ErrIdempotencyConflict) {
		return nil, api.ErrConflict(api.KindValidation, "errors.asset.idempotencyConflict", nil)
	}
	if errors.Is(err, database.ErrNotFound) {
		return nil, api.ErrNotFound("errors.asset.variantNotFound")
	}
	if err != nil {
		return nil, api.ErrInternal("errors.asset.replaceFailed", err)
	}

	if !result.Replayed && result.OldKey != "" && result.OldKey != result.NewKey {
		if err := s.Store.Delete(ctx, result.OldKey); err != nil {
			s.log().Warn("delete replaced blob", "key", result.OldKey, "error", err)
		}
	}

	return &ReplaceResult{
		Key:      result.NewKey,
		URL:      assetkey.PublicPath(result.NewKey),
		Replayed: result.Replayed,
	}, nil
}

// Read serves one immutable blob by its versioned key. Only the live
// pointer target is served; keys left behind by a replacement read as 404.
func (s *Service) Read(ctx context.Context, rawKey string) ([]byte, *storage.ObjectInfo, error) {
	key := assetkey.NormalizeReadKey(rawKey)
	if key == "" {
		return nil, nil, api.ErrNotFound("errors.asset.notFound")
	}
	id, variant, _, ok := assetkey.ParseKey(key)
	if !ok {
		return nil, nil, api.ErrNotFound("errors.asset.notFound")
	}

	row, err := s.DB.GetAssetVariant(id.AccountID, id.AssetID, variant)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, api.ErrNotFound("errors.asset.notFound")
	}
	if err != nil {
		return nil, nil, api.ErrInternal("errors.asset.lookupFailed", err)
	}
	if row.StorageKey != key {
		return nil, nil, api.ErrNotFound("errors.asset.notFound")
	}

	body, info, err := s.Store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, api.ErrNotFound("errors.asset.notFound")
	}
	if err != nil {
		return nil, nil, api.ErrInternal("errors.asset.readFailed", err)
	}
	return body, info, nil
}

// ReadPointer serves the primary variant's current content for a bare
// identity. Callers must send it uncached since the target can change.
func (s *Service) ReadPointer(ctx context.Context, accountID, assetID string) ([]byte, *storage.ObjectInfo, error) {
	if !assetkey.IsUUID(accountID) || !assetkey.IsUUID(assetID) {
		return nil, nil, api.ErrNotFound("errors.asset.notFound")
	}
	row, err := s.DB.GetAssetVariant(accountID, assetID, assetkey.DefaultVariant)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, api.ErrNotFound("errors.asset.notFound")
	}
	if err != nil {
		return nil, nil, api.ErrInternal("errors.asset.lookupFailed", err)
	}
	body, info, err := s.Store.Get(ctx, row.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, api.ErrNotFound("errors.asset.notFound")
	}
	if err != nil {
		return nil, nil, api.ErrInternal("errors.asset.readFailed", err)
	}
	return body, info, nil
}

// DeleteRequest removes an asset and all its variants.
type DeleteRequest struct {
	AccountID    string
	AssetID      string
	ConfirmInUse bool
	Principal    api.Principal
}

// DeleteResult reports a completed delete.
type DeleteResult struct {
	Deleted    bool `json:"deleted"`
	UsageCount int  `json:"usageCount"`
}

// Delete removes an asset after an integrity gate and a usage-impact
// confirmation. Deletion order is blobs, usage rows, variant rows, asset
// row, so a partial failure leaves states the integrity audit classifies.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) (*DeleteResult, error) {
	if !assetkey.IsUUID(req.AccountID) || !assetkey.IsUUID(req.AssetID) {
		return nil, api.ErrNotFound("errors.asset.notFound")
	}

	asset, err := s.DB.GetAsset(req.AccountID, req.AssetID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, api.ErrNotFound("errors.asset.notFound")
	}
	if err != nil {
		return nil, api.ErrInternal("errors.asset.lookupFailed", err)
	}
	if err := s.authorize(asset.AccountID, asset.WorkspaceID, req.Principal, model.RoleEditor); err != nil {
		return nil, err
	}

	report, err := s.CheckIdentity(ctx, asset.AccountID, asset.AssetID)
	if err != nil {
		return nil, err
	}
	if report.Drifted() {
		return nil, api.ErrIntegrity("errors.asset.integrityDrift", map[string]any{"integrity": report})
	}

	publicIDs, err := s.DB.ListUsagePublicIDs(asset.AccountID, asset.AssetID)
	if err != nil {
		return nil, api.ErrInternal("errors.asset.lookupFailed", err)
	}
	usageCount := len(publicIDs)
	if usageCount > 0 && !req.ConfirmInUse {
		return nil, api.ErrConflict(api.KindValidation, "errors.asset.requiresConfirm",
			map[string]any{"usageCount": usageCount, "publicIds": publicIDs})
	}

	prefix := assetkey.IdentityPrefix(asset.AccountID, asset.AssetID)
	cursor := ""
	for {
		page, err := s.Store.List(ctx, storage.ListOptions{Prefix: prefix, Cursor: cursor})
		if err != nil {
			return nil, api.ErrInternal("errors.asset.deleteFailed", err)
		}
		for _, obj := range page.Objects {
			if err := s.Store.Delete(ctx, obj.Key); err != nil {
				return nil, api.ErrInternal("errors.asset.deleteFailed", err)
			}
		}
		if !page.Truncated {
			break
		}
		cursor = page.Cursor
	}

	if err := s.DB.DeleteAssetUsage(asset.AccountID, asset.AssetID); err != nil {
		return nil, api.ErrInternal("errors.asset.deleteFailed", err)
	}
	if err := s.DB.DeleteAssetVariants(asset.AccountID, asset.AssetID); err != nil {
		return nil, api.ErrInternal("errors.asset.deleteFailed", err)
	}
	if err := s.DB.DeleteAsset(asset.AccountID, asset.AssetID); err != nil {
		return nil, api.ErrInternal("errors.asset.deleteFailed", err)
	}

	return &DeleteResult{Deleted: true, UsageCount: usageCount}, nil
}

// SyncUsage replaces the usage rows for one (account, publicId) pair.
func (s *Service) SyncUsage(ctx context.Context, accountID, publicID string, refs []model.AccountAssetUsage) error {
	if !assetkey.IsUUID(accountID) || strings.TrimSpace(publicID) == "" {
		return api.ErrValidation("errors.usage.invalidScope")
	}
	for i := range refs {
		refs[i].AccountID = accountID
		refs[i].PublicID = publicID
		if !assetkey.IsUUID(refs[i].AssetID) {
			return api.ErrValidation("errors.usage.invalidAssetId", refs[i].AssetID)
		}
	}
	if err := s.DB.SyncUsage(accountID, publicID, refs); err != nil {
		return api.ErrInternal("errors.usage.syncFailed", err)
	}
	return nil
}

// authorize enforces the role floor for mutations. Trusted service callers
// bypass role checks entirely.
func (s *Service) authorize(accountID, workspaceID string, p api.Principal, minRole string) error {
	if p.Trusted {
		return nil
	}
	if p.UserID == "" {
		return api.ErrDeny("errors.auth.forbidden")
	}
	var (
		role string
		err  error
	)
	if workspaceID != "" {
		role, err = s.DB.GetWorkspaceRole(workspaceID, p.UserID)
	} else {
		role, err = s.DB.GetAccountRole(accountID, p.UserID)
	}
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return api.ErrInternal("errors.auth.lookupFailed", err)
	}
	if !model.RoleAtLeast(role, minRole) {
		return api.ErrDeny("errors.auth.forbidden")
	}
	return nil
}

func (s *Service) checkBudgets(ctx context.Context, accountID string, size int64, limits entitlements.Limits) error {
	now := time.Now().UTC()
	count := s.readCounter(ctx, counter.MonthKey(budgetUploadCount, accountID, now))
	if count >= limits.MonthlyUploadCount {
		return api.ErrDenyUpsell("errors.asset.budgetExceeded.count",
			fmt.Sprintf("%d of %d uploads used this month", count, limits.MonthlyUploadCount))
	}
	bytesUsed := s.readCounter(ctx, counter.MonthKey(budgetUploadBytes, accountID, now))
	if bytesUsed+size > limits.MonthlyUploadBytes {
		return api.ErrDenyUpsell("errors.asset.budgetExceeded.bytes",
			fmt.Sprintf("%d of %d bytes used this month", bytesUsed, limits.MonthlyUploadBytes))
	}
	return nil
}

// bumpBudgets is read-then-write with no compare-and-set; the budgets are
// soft limits and concurrent uploads near the cap may both land.
func (s *Service) bumpBudgets(ctx context.Context, accountID string, size int64) {
	now := time.Now().UTC()
	s.writeCounter(ctx, counter.MonthKey(budgetUploadCount, accountID, now),
		s.readCounter(ctx, counter.MonthKey(budgetUploadCount, accountID, now))+1)
	s.writeCounter(ctx, counter.MonthKey(budgetUploadBytes, accountID, now),
		s.readCounter(ctx, counter.MonthKey(budgetUploadBytes, accountID, now))+size)
}

func (s *Service) readCounter(ctx context.Context, key string) int64 {
	if s.Counters == nil {
		return 0
	}
	value, ok, err := s.Counters.Get(ctx, key)
	if err != nil {
		s.log().Warn("read counter", "key", key, "error", err)
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (s *Service) writeCounter(ctx context.Context, key string, value int64) {
	if s.Counters == nil {
		return
	}
	if err := s.Counters.Put(ctx, key, strconv.FormatInt(value, 10), counter.DefaultTTL); err != nil {
		s.log().Warn("write counter", "key", key, "error", err)
	}
}

// generateThumb derives a bounded raster thumbnail as a secondary variant.
// Best effort: thumbnail failures never fail the upload.
func (s *Service) generateThumb(ctx context.Context, asset *model.AccountAsset, body []byte) {
	if !imageproc.CanThumbnail(body) {
		return
	}
	thumb, contentType, err := imageproc.Thumbnail(body)
	if err != nil {
		s.log().Warn("thumbnail", "assetId", asset.AssetID, "error", err)
		return
	}

	ext := assetkey.PickExtension("", contentType)
	filename := assetkey.SanitizeFilename(asset.NormalizedFilename, ext, "thumb")
	key := assetkey.BuildKey(asset.AccountID, asset.AssetID, "thumb", filename)

	err = s.Store.Put(ctx, key, thumb, storage.PutOptions{
		ContentType:  contentType,
		CacheControl: storage.CacheImmutable,
	})
	if err != nil {
		s.log().Warn("thumbnail store", "assetId", asset.AssetID, "error", err)
		return
	}

	err = s.DB.CreateAssetVariant(&model.AccountAssetVariant{
		AccountID:   asset.AccountID,
		AssetID:     asset.AssetID,
		Variant:     "thumb",
		StorageKey:  key,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(thumb)),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		s.log().Warn("thumbnail metadata", "assetId", asset.AssetID, "error", err)
		s.compensate(ctx, key)
	}
}

func (s *Service) compensate(ctx context.Context, key string) {
	if err := s.Store.Delete(ctx, key); err != nil {
		s.log().Error("compensating blob delete", "key", key, "error", err)
	}
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func replaceRequestHash(variant, filename, digest string) string {
	return sha256Hex([]byte(variant + "\x00" + filename + "\x00" + digest))
}
