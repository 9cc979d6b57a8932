package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/CKsangiacomo/clickeen-sub004/internal/database"
	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRenderer serves distinct bodies per path+locale and echoes the
// requested locale as effective unless an override is set.
type fakeRenderer struct {
	effectiveLocale map[string]string // requested locale -> served locale
	status          string
	sawBypass       bool
}

func (f *fakeRenderer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-ck-render-bypass") != "" {
			f.sawBypass = true
		}
		locale := r.URL.Query().Get("locale")
		if locale == "" {
			locale = "en"
		}
		effective := locale
		if f.effectiveLocale != nil {
			if override, ok := f.effectiveLocale[locale]; ok {
				effective = override
			}
		}
		status := f.status
		if status == "" {
			status = "fresh"
		}
		w.Header().Set("x-ck-l10n-effective-locale", effective)
		w.Header().Set("x-ck-l10n-status", status)
		_, _ = w.Write([]byte(r.URL.Path + "?" + r.URL.RawQuery + " in " + effective))
	}
}

func newTestPipeline(t *testing.T, renderer *fakeRenderer) (*Pipeline, database.Database, storage.Store) {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(renderer.handler())
	t.Cleanup(srv.Close)

	store := storage.NewMemory()
	return &Pipeline{
		DB:     db,
		Store:  store,
		Client: NewClient(srv.URL, "bypass-secret", 5*time.Second),
	}, db, store
}

func TestSnapshotPublishesAndSwapsPointer(t *testing.T) {
	renderer := &fakeRenderer{}
	p, _, store := newTestPipeline(t, renderer)

	pointer, err := p.Snapshot(context.Background(), "wgt_1", nil)
	require.NoError(t, err)
	assert.True(t, ValidRevision(pointer.Revision))
	assert.Empty(t, pointer.PreviousRevision)
	assert.True(t, renderer.sawBypass)

	gotPointer, index, err := p.ResolveCurrent(context.Background(), "wgt_1")
	require.NoError(t, err)
	assert.Equal(t, pointer.Revision, gotPointer.Revision)
	require.Contains(t, index.Current, "en")

	entry := index.Current["en"]
	body, info, err := store.Get(context.Background(), ArtifactPath("wgt_1", entry.E, EmbedFile))
	require.NoError(t, err)
	assert.Equal(t, storage.CacheImmutable, info.CacheControl)
	assert.Equal(t, entry.E, HashBytes(body))

	_, pointerInfo, err := store.Get(context.Background(), PointerPath("wgt_1"))
	require.NoError(t, err)
	assert.Equal(t, storage.CacheNone, pointerInfo.CacheControl)
}

func TestSnapshotMergesPreviousLocales(t *testing.T) {
	renderer := &fakeRenderer{}
	p, _, _ := newTestPipeline(t, renderer)

	first, err := p.Snapshot(context.Background(), "wgt_1", []string{"en"})
	require.NoError(t, err)

	second, err := p.Snapshot(context.Background(), "wgt_1", []string{"es"})
	require.NoError(t, err)
	assert.Equal(t, first.Revision, second.PreviousRevision)
	assert.NotEqual(t, first.Revision, second.Revision)

	_, index, err := p.ResolveCurrent(context.Background(), "wgt_1")
	require.NoError(t, err)
	assert.Contains(t, index.Current, "en")
	assert.Contains(t, index.Current, "es")
}

func TestSnapshotAbortsBatchOnLocaleFallback(t *testing.T) {
	renderer := &fakeRenderer{effectiveLocale: map[string]string{"es": "en"}}
	p, _, _ := newTestPipeline(t, renderer)

	_, err := p.Snapshot(context.Background(), "wgt_1", []string{"en"})
	require.NoError(t, err)
	before, _, err := p.ResolveCurrent(context.Background(), "wgt_1")
	require.NoError(t, err)

	_, err = p.Snapshot(context.Background(), "wgt_1", []string{"es", "fr"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "served locale")

	// The pointer still names the previous revision; no partial batch
	// was published.
	after, index, err := p.ResolveCurrent(context.Background(), "wgt_1")
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision)
	assert.NotContains(t, index.Current, "es")
	assert.NotContains(t, index.Current, "fr")
}

func TestSnapshotAbortsBatchOnStaleStatus(t *testing.T) {
	renderer := &fakeRenderer{status: "stale"}
	p, _, _ := newTestPipeline(t, renderer)

	// English is exempt from the freshness gate.
	_, err := p.Snapshot(context.Background(), "wgt_1", []string{"en"})
	require.NoError(t, err)

	_, err = p.Snapshot(context.Background(), "wgt_1", []string{"es"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status")
}

func TestEnforcementRestrictsToEnglish(t *testing.T) {
	renderer := &fakeRenderer{}
	p, db, _ := newTestPipeline(t, renderer)

	require.NoError(t, db.UpsertEnforcementState(&model.EnforcementState{
		PublicID:  "wgt_1",
		Mode:      "frozen",
		PeriodKey: "2026-08",
		FrozenAt:  time.Now().UTC(),
		ResetAt:   time.Now().UTC().Add(24 * time.Hour),
	}))

	_, err := p.Snapshot(context.Background(), "wgt_1", []string{"es", "fr"})
	require.NoError(t, err)

	_, index, err := p.ResolveCurrent(context.Background(), "wgt_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"en"}, localeKeys(index))
}

func localeKeys(index *model.RenderIndex) []string {
	keys := make([]string, 0, len(index.Current))
	for locale := range index.Current {
		keys = append(keys, locale)
	}
	return keys
}

func TestDecodePointerFailsClosed(t *testing.T) {
	_, err := DecodePointer([]byte(`{"v":1,"publicId":"wgt_1","revision":"BAD!"}`), "wgt_1")
	assert.Error(t, err)
	_, err = DecodePointer([]byte(`{"v":2,"revision":"rev-abcdefgh"}`), "wgt_1")
	assert.Error(t, err)

	ptr, err := DecodePointer([]byte(`{"v":1,"revision":"rev-abcdefgh"}`), "wgt_1")
	require.NoError(t, err)
	assert.Equal(t, "wgt_1", ptr.PublicID)
}
