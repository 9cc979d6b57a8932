package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CKsangiacomo/clickeen-sub004/internal/assets"
	"github.com/CKsangiacomo/clickeen-sub004/internal/config"
	"github.com/CKsangiacomo/clickeen-sub004/internal/counter"
	"github.com/CKsangiacomo/clickeen-sub004/internal/database"
	"github.com/CKsangiacomo/clickeen-sub004/internal/handler"
	"github.com/CKsangiacomo/clickeen-sub004/internal/l10n"
	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/CKsangiacomo/clickeen-sub004/internal/render"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
)

const serviceToken = "svc-secret"

type testServer struct {
	srv       *httptest.Server
	db        database.Database
	store     storage.Store
	accountID string
	rendered  []string
}

// fakeRenderer echoes the requested locale unless an override remaps it.
type fakeRenderer struct {
	effectiveLocale map[string]string
}

func (f *fakeRenderer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locale := r.URL.Query().Get("locale")
		if locale == "" {
			locale = "en"
		}
		effective := locale
		if override, ok := f.effectiveLocale[locale]; ok {
			effective = override
		}
		w.Header().Set("x-ck-l10n-effective-locale", effective)
		w.Header().Set("x-ck-l10n-status", "fresh")
		_, _ = w.Write([]byte("rendered " + effective))
	}
}

func newTestServer(t *testing.T, renderer *fakeRenderer) *testServer {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := storage.NewMemory()
	accountID := uuid.NewString()
	require.NoError(t, db.UpsertAccount(&model.Account{ID: accountID, Status: "active", Tier: "pro"}))

	if renderer == nil {
		renderer = &fakeRenderer{}
	}
	upstream := httptest.NewServer(renderer.handler())
	t.Cleanup(upstream.Close)

	cfg := &config.Config{ServiceToken: serviceToken}
	ts := &testServer{db: db, store: store, accountID: accountID}

	pipeline := &render.Pipeline{
		DB:     db,
		Store:  store,
		Client: render.NewClient(upstream.URL, "bypass-secret", 5*time.Second),
	}
	publisher := &l10n.Publisher{
		DB:    db,
		Store: store,
		EnqueueRender: func(publicID, layer, layerKey string) {
			ts.rendered = append(ts.rendered, layer+"/"+layerKey)
		},
	}

	h := &handler.Handler{
		Assets:    &assets.Service{DB: db, Store: store, Counters: counter.NewMemory()},
		Publisher: publisher,
		Resolver:  &l10n.Resolver{Store: store},
		Pipeline:  pipeline,
		Store:     store,
		Config:    cfg,
	}

	srv := httptest.NewServer(New(h, cfg).Router)
	t.Cleanup(srv.Close)
	ts.srv = srv
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func serviceHeaders(extra map[string]string) map[string]string {
	headers := map[string]string{"Authorization": "Bearer " + serviceToken}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func errorReason(t *testing.T, resp *http.Response) string {
	t.Helper()
	var envelope struct {
		Error struct {
			ReasonKey string `json:"reasonKey"`
		} `json:"error"`
	}
	decodeBody(t, resp, &envelope)
	return envelope.Error.ReasonKey
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestUploadReadDeleteLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	payload := []byte("ten bytes!")

	resp := ts.do(t, http.MethodPost, "/assets/upload", payload, serviceHeaders(map[string]string{
		"x-account-id": ts.accountID,
		"x-source":     "bob.publish",
		"x-filename":   "logo.png",
		"Content-Type": "image/png",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var uploaded assets.UploadResult
	decodeBody(t, resp, &uploaded)
	require.NotEmpty(t, uploaded.URL)

	// The returned URL is public: no auth, exact bytes, immutable caching.
	read := ts.do(t, http.MethodGet, uploaded.URL, nil, nil)
	require.Equal(t, http.StatusOK, read.StatusCode)
	got, err := io.ReadAll(read.Body)
	read.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, storage.CacheImmutable, read.Header.Get("Cache-Control"))

	deletePath := fmt.Sprintf("/assets/%s/%s", ts.accountID, uploaded.Asset.AssetID)
	del := ts.do(t, http.MethodDelete, deletePath, nil, serviceHeaders(nil))
	require.Equal(t, http.StatusOK, del.StatusCode)
	var deleted assets.DeleteResult
	decodeBody(t, del, &deleted)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, 0, deleted.UsageCount)

	again := ts.do(t, http.MethodDelete, deletePath, nil, serviceHeaders(nil))
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
	assert.Equal(t, "errors.asset.notFound", errorReason(t, again))

	gone := ts.do(t, http.MethodGet, uploaded.URL, nil, nil)
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
	gone.Body.Close()
}

func TestMutationsRequireAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/assets/upload", []byte("x"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// User bearer tokens are not enough for publishing surfaces.
	resp = ts.do(t, http.MethodPut, "/l10n/instances/wgt_1/locale/es", []byte("{}"), map[string]string{
		"Authorization": "Bearer user-token",
		"X-User-Id":     "usr_1",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestOverlayPublishUpdatesIndex(t *testing.T) {
	ts := newTestServer(t, nil)
	base := map[string]any{"title": "Hello", "publicId": "wgt_ovl"}
	body, err := json.Marshal(map[string]any{
		"ops":  []model.SetOp{{Op: "set", Path: "title", Value: "Hola"}},
		"base": base,
	})
	require.NoError(t, err)

	resp := ts.do(t, http.MethodPut, "/l10n/instances/wgt_ovl/locale/es", body, serviceHeaders(map[string]string{
		"Content-Type": "application/json",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state model.PublishState
	decodeBody(t, resp, &state)
	assert.Equal(t, "clean", state.State)
	assert.Equal(t, l10n.Fingerprint(base), state.PublishedFingerprint)
	assert.Equal(t, []string{"locale/es"}, ts.rendered)

	// The index is a public short-cached read.
	idx := ts.do(t, http.MethodGet, "/l10n/instances/wgt_ovl/index.json", nil, nil)
	require.Equal(t, http.StatusOK, idx.StatusCode)
	assert.Equal(t, storage.CacheShort, idx.Header.Get("Cache-Control"))
	raw, err := io.ReadAll(idx.Body)
	idx.Body.Close()
	require.NoError(t, err)
	index, err := l10n.DecodeLayerIndex(raw, "wgt_ovl")
	require.NoError(t, err)
	require.Contains(t, index.Layers, model.LayerLocale)
	assert.Equal(t, []string{"es"}, index.Layers[model.LayerLocale].Keys)
	assert.Equal(t, l10n.Fingerprint(base),
		index.Layers[model.LayerLocale].LastPublishedFingerprint["es"])
}

func TestDeleteUnknownOverlayReturns404(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodDelete, "/l10n/instances/wgt_none/locale/es", nil, serviceHeaders(nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "errors.l10n.overlayNotFound", errorReason(t, resp))
}

func TestSnapshotFailsWhenLocaleFallsBack(t *testing.T) {
	// Renderer silently serves English for the Spanish request; the batch
	// must abort rather than publish a mislabeled artifact.
	ts := newTestServer(t, &fakeRenderer{effectiveLocale: map[string]string{"es": "en"}})

	body, err := json.Marshal(map[string]any{"locales": []string{"es"}})
	require.NoError(t, err)
	resp := ts.do(t, http.MethodPost, "/renders/instances/wgt_snap/snapshot", body,
		serviceHeaders(map[string]string{"Content-Type": "application/json"}))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()

	// No pointer was published.
	missing := ts.do(t, http.MethodGet, "/renders/instances/wgt_snap/published.json", nil, nil)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	missing.Body.Close()
}

func TestSnapshotPublishesPointer(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/renders/instances/wgt_ok/snapshot", nil,
		serviceHeaders(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pointer model.PublishedPointer
	decodeBody(t, resp, &pointer)
	assert.True(t, render.ValidRevision(pointer.Revision))

	published := ts.do(t, http.MethodGet, "/renders/instances/wgt_ok/published.json", nil, nil)
	require.Equal(t, http.StatusOK, published.StatusCode)
	assert.Equal(t, storage.CacheNone, published.Header.Get("Cache-Control"))
	var got model.PublishedPointer
	decodeBody(t, published, &got)
	assert.Equal(t, pointer.Revision, got.Revision)

	artifact := ts.do(t, http.MethodGet,
		"/renders/instances/wgt_ok/"+pointer.Revision+"/something.json", nil, nil)
	assert.Equal(t, http.StatusNotFound, artifact.StatusCode)
	artifact.Body.Close()
}
