package assets

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CKsangiacomo/clickeen-sub004/internal/api"
	"github.com/CKsangiacomo/clickeen-sub004/internal/assetkey"
	"github.com/CKsangiacomo/clickeen-sub004/internal/counter"
	"github.com/CKsangiacomo/clickeen-sub004/internal/database"
	"github.com/CKsangiacomo/clickeen-sub004/internal/entitlements"
	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
)

var trusted = api.Principal{Trusted: true}

type testEnv struct {
	svc       *Service
	db        database.Database
	store     storage.Store
	counters  counter.Store
	accountID string
}

func newTestEnv(t *testing.T, tier string) *testEnv {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := storage.NewMemory()
	counters := counter.NewMemory()
	accountID := uuid.NewString()
	require.NoError(t, db.UpsertAccount(&model.Account{ID: accountID, Status: "active", Tier: tier}))

	return &testEnv{
		svc:       &Service{DB: db, Store: store, Counters: counters},
		db:        db,
		store:     store,
		counters:  counters,
		accountID: accountID,
	}
}

func (e *testEnv) upload(t *testing.T, body []byte) *UploadResult {
	t.Helper()
	res, err := e.svc.Upload(context.Background(), UploadRequest{
		AccountID:   e.accountID,
		Source:      "bob.publish",
		Filename:    "Photo.PNG",
		ContentType: "image/png",
		Body:        body,
		Principal:   trusted,
	})
	require.NoError(t, err)
	return res
}

func apiStatus(t *testing.T, err error) *api.Error {
	t.Helper()
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr), "expected api error, got %v", err)
	return apiErr
}

func TestUploadStoresBlobAndMetadata(t *testing.T) {
	env := newTestEnv(t, "pro")
	body := []byte("not really a png")

	res := env.upload(t, body)
	assert.True(t, assetkey.IsUUID(res.Asset.AssetID))
	assert.Equal(t, "photo.png", res.Asset.NormalizedFilename)
	assert.Contains(t, res.URL, assetkey.PublicPathPrefix)

	stored, info, err := env.store.Get(context.Background(), res.Variant.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, body, stored)
	assert.Equal(t, storage.CacheImmutable, info.CacheControl)
	assert.Equal(t, "image/png", info.ContentType)

	row, err := env.db.GetAssetVariant(env.accountID, res.Asset.AssetID, "original")
	require.NoError(t, err)
	assert.Equal(t, res.Variant.StorageKey, row.StorageKey)

	countKey := counter.MonthKey("budget.uploads.count", env.accountID, time.Now().UTC())
	value, ok, err := env.counters.Get(context.Background(), countKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", value)
}

func TestUploadRejectsUnknownSource(t *testing.T) {
	env := newTestEnv(t, "pro")

	_, err := env.svc.Upload(context.Background(), UploadRequest{
		AccountID:   env.accountID,
		Source:      "definitely-not-a-source",
		Filename:    "photo.png",
		ContentType: "image/png",
		Body:        []byte("payload"),
		Principal:   trusted,
	})
	apiErr := apiStatus(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "errors.asset.invalidSource", apiErr.Body.ReasonKey)

	// Nothing was persisted before the rejection.
	page, err := env.store.List(context.Background(), storage.ListOptions{Prefix: ""})
	require.NoError(t, err)
	assert.Empty(t, page.Objects)
}

func TestUploadEnforcesTierSizeCap(t *testing.T) {
	env := newTestEnv(t, "free")
	sizeCap := entitlements.ForTier("free").UploadMaxBytes

	_, err := env.svc.Upload(context.Background(), UploadRequest{
		AccountID: env.accountID,
		Source:    "bob.publish",
		Filename:  "big.bin",
		Body:      bytes.Repeat([]byte("x"), int(sizeCap)+1),
		Principal: trusted,
	})
	apiErr := apiStatus(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.Status)
	assert.Equal(t, "UP", apiErr.Body.Upsell)
}

func TestUploadEnforcesMonthlyCountBudget(t *testing.T) {
	env := newTestEnv(t, "free")
	limit := entitlements.ForTier("free").MonthlyUploadCount
	key := counter.MonthKey("budget.uploads.count", env.accountID, time.Now().UTC())
	require.NoError(t, env.counters.Put(context.Background(), key, strconv.FormatInt(limit, 10), counter.DefaultTTL))

	_, err := env.svc.Upload(context.Background(), UploadRequest{
		AccountID: env.accountID,
		Source:    "bob.publish",
		Filename:  "a.txt",
		Body:      []byte("hello"),
		Principal: trusted,
	})
	apiErr := apiStatus(t, err)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "errors.asset.budgetExceeded.count", apiErr.Body.ReasonKey)
}

func TestUploadRejectsForeignWorkspace(t *testing.T) {
	env := newTestEnv(t, "pro")
	otherAccount := uuid.NewString()
	workspaceID := uuid.NewString()
	require.NoError(t, env.db.UpsertAccount(&model.Account{ID: otherAccount, Status: "active", Tier: "pro"}))
	require.NoError(t, env.db.UpsertWorkspace(&model.Workspace{ID: workspaceID, AccountID: otherAccount, Tier: "pro"}))

	_, err := env.svc.Upload(context.Background(), UploadRequest{
		AccountID:   env.accountID,
		WorkspaceID: workspaceID,
		Source:      "bob.publish",
		Filename:    "a.txt",
		Body:        []byte("hello"),
		Principal:   trusted,
	})
	apiErr := apiStatus(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "errors.account.workspaceMismatch", apiErr.Body.ReasonKey)
}

func TestUploadRequiresEditorRole(t *testing.T) {
	env := newTestEnv(t, "pro")
	workspaceID := uuid.NewString()
	viewer := uuid.NewString()
	editor := uuid.NewString()
	require.NoError(t, env.db.UpsertWorkspace(&model.Workspace{ID: workspaceID, AccountID: env.accountID, Tier: "pro"}))
	require.NoError(t, env.db.UpsertWorkspaceMember(&model.WorkspaceMember{WorkspaceID: workspaceID, UserID: viewer, Role: model.RoleViewer}))
	require.NoError(t, env.db.UpsertWorkspaceMember(&model.WorkspaceMember{WorkspaceID: workspaceID, UserID: editor, Role: model.RoleEditor}))

	req := UploadRequest{
		AccountID:   env.accountID,
		WorkspaceID: workspaceID,
		Source:      "bob.publish",
		Filename:    "a.txt",
		Body:        []byte("hello"),
		Principal:   api.Principal{UserID: viewer},
	}
	_, err := env.svc.Upload(context.Background(), req)
	apiErr := apiStatus(t, err)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)

	req.Principal = api.Principal{UserID: editor}
	_, err = env.svc.Upload(context.Background(), req)
	assert.NoError(t, err)
}

func TestReplaceSwapsPointerAtomically(t *testing.T) {
	env := newTestEnv(t, "pro")
	res := env.upload(t, []byte("version one"))
	oldKey := res.Variant.StorageKey

	replaced, err := env.svc.Replace(context.Background(), ReplaceRequest{
		AccountID:      env.accountID,
		AssetID:        res.Asset.AssetID,
		Filename:       "photo-v2.png",
		ContentType:    "image/png",
		Body:           []byte("version two"),
		IdempotencyKey: "replace-1",
		Principal:      trusted,
	})
	require.NoError(t, err)
	assert.False(t, replaced.Replayed)
	assert.NotEqual(t, oldKey, replaced.Key)

	body, _, err := env.svc.Read(context.Background(), replaced.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("version two"), body)

	// The superseded key no longer serves and its blob is gone.
	_, _, err = env.svc.Read(context.Background(), oldKey)
	assert.Equal(t, http.StatusNotFound, apiStatus(t, err).Status)
	_, _, err = env.store.Get(context.Background(), oldKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Same idempotency key, same payload: replayed without another swap.
	again, err := env.svc.Replace(context.Background(), ReplaceRequest{
		AccountID:      env.accountID,
		AssetID:        res.Asset.AssetID,
		Filename:       "photo-v2.png",
		ContentType:    "image/png",
		Body:           []byte("version two"),
		IdempotencyKey: "replace-1",
		Principal:      trusted,
	})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, replaced.Key, again.Key)

	// Same idempotency key, different payload: rejected.
	_, err = env.svc.Replace(context.Background(), ReplaceRequest{
		AccountID:      env.accountID,
		AssetID:        res.Asset.AssetID,
		Filename:       "photo-v3.png",
		ContentType:    "image/png",
		Body:           []byte("version three"),
		IdempotencyKey: "replace-1",
		Principal:      trusted,
	})
	assert.Equal(t, http.StatusConflict, apiStatus(t, err).Status)
}

func TestDeleteRequiresConfirmationWhenInUse(t *testing.T) {
	env := newTestEnv(t, "pro")
	res := env.upload(t, []byte("in use"))

	require.NoError(t, env.svc.SyncUsage(context.Background(), env.accountID, "wgt_1", []model.AccountAssetUsage{
		{AssetID: res.Asset.AssetID, ConfigPath: "hero.image"},
	}))

	_, err := env.svc.Delete(context.Background(), DeleteRequest{
		AccountID: env.accountID,
		AssetID:   res.Asset.AssetID,
		Principal: trusted,
	})
	apiErr := apiStatus(t, err)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "errors.asset.requiresConfirm", apiErr.Body.ReasonKey)
	assert.Equal(t, 1, apiErr.Extra["usageCount"])

	deleted, err := env.svc.Delete(context.Background(), DeleteRequest{
		AccountID:    env.accountID,
		AssetID:      res.Asset.AssetID,
		ConfirmInUse: true,
		Principal:    trusted,
	})
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, 1, deleted.UsageCount)

	_, err = env.db.GetAsset(env.accountID, res.Asset.AssetID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, _, err = env.store.Get(context.Background(), res.Variant.StorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// A second delete reads as gone.
	_, err = env.svc.Delete(context.Background(), DeleteRequest{
		AccountID: env.accountID,
		AssetID:   res.Asset.AssetID,
		Principal: trusted,
	})
	assert.Equal(t, http.StatusNotFound, apiStatus(t, err).Status)
}

func TestDeleteBlockedByIntegrityDrift(t *testing.T) {
	env := newTestEnv(t, "pro")
	res := env.upload(t, []byte("drifting"))

	// Remove the blob behind the metadata's back.
	require.NoError(t, env.store.Delete(context.Background(), res.Variant.StorageKey))

	_, err := env.svc.Delete(context.Background(), DeleteRequest{
		AccountID: env.accountID,
		AssetID:   res.Asset.AssetID,
		Principal: trusted,
	})
	apiErr := apiStatus(t, err)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, api.KindIntegrity, apiErr.Body.Kind)
}

func TestCheckAccountFindsOrphans(t *testing.T) {
	env := newTestEnv(t, "pro")
	res := env.upload(t, []byte("legit"))

	stray := assetkey.AccountPrefix(env.accountID) + uuid.NewString() + "/stray.bin"
	require.NoError(t, env.store.Put(context.Background(), stray, []byte("stray"), storage.PutOptions{}))

	report, err := env.svc.CheckAccount(context.Background(), env.accountID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Assets)
	assert.Contains(t, report.OrphanBlobs, stray)
	assert.NotContains(t, report.OrphanBlobs, res.Variant.StorageKey)
	assert.Empty(t, report.MissingBlobs)
}

func TestReadPointerServesPrimaryVariant(t *testing.T) {
	env := newTestEnv(t, "pro")
	res := env.upload(t, []byte("primary"))

	body, _, err := env.svc.ReadPointer(context.Background(), env.accountID, res.Asset.AssetID)
	require.NoError(t, err)
	assert.Equal(t, []byte("primary"), body)
}
