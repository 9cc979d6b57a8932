package l10n

import (
	"context"
	"testing"

	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putJSON(t *testing.T, store storage.Store, key string, doc any) {
	t.Helper()
	body, err := PrettyStableJSON(doc)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), key, body, storage.PutOptions{ContentType: "application/json"}))
}

func publishTestOverlay(t *testing.T, store storage.Store, publicID, layer, key, fingerprint string, ops []model.SetOp) {
	t.Helper()
	putJSON(t, store, OverlayPath(publicID, layer, key, fingerprint), Overlay{V: 1, BaseFingerprint: fingerprint, Ops: ops})
}

func TestResolveSkipsEnglish(t *testing.T) {
	r := &Resolver{Store: storage.NewMemory()}
	base := map[string]any{"title": "hello"}

	for _, locale := range []string{"", "en", "EN"} {
		res, err := r.Resolve(context.Background(), ResolveRequest{PublicID: "wgt_1", Locale: locale, Base: base})
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, res.Status)
		assert.Equal(t, "en", res.EffectiveLocale)
		assert.Equal(t, base, res.Config)
	}
}

func TestResolveMissingWithoutIndex(t *testing.T) {
	r := &Resolver{Store: storage.NewMemory()}
	res, err := r.Resolve(context.Background(), ResolveRequest{PublicID: "wgt_1", Locale: "es", Base: map[string]any{"title": "hello"}})
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, res.Status)
	assert.Equal(t, "hello", res.Config["title"])

	strict := &Resolver{Store: storage.NewMemory(), DevStrict: true}
	_, err = strict.Resolve(context.Background(), ResolveRequest{PublicID: "wgt_1", Locale: "es", Base: map[string]any{}})
	assert.Error(t, err)
}

func TestResolveAppliesFreshOverlay(t *testing.T) {
	store := storage.NewMemory()
	base := map[string]any{"title": "hello", "footer": "bye"}
	fp := Fingerprint(base)

	putJSON(t, store, IndexPath("wgt_1"), LayerIndex{V: 1, PublicID: "wgt_1", Layers: map[string]*LayerIndexEntry{
		model.LayerLocale: {Keys: []string{"es"}, LastPublishedFingerprint: map[string]string{"es": fp}},
	}})
	publishTestOverlay(t, store, "wgt_1", model.LayerLocale, "es", fp, []model.SetOp{{Op: "set", Path: "title", Value: "hola"}})

	r := &Resolver{Store: store}
	res, err := r.Resolve(context.Background(), ResolveRequest{PublicID: "wgt_1", Locale: "es", Base: base})
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, res.Status)
	assert.Equal(t, "es", res.EffectiveLocale)
	assert.Equal(t, "hola", res.Config["title"])
	assert.Equal(t, "bye", res.Config["footer"])
	assert.Equal(t, 1, res.AppliedOps)
}

func TestResolveSalvagesAgainstBaseSnapshot(t *testing.T) {
	store := storage.NewMemory()
	oldBase := map[string]any{"a": "x", "b": "old"}
	oldFp := Fingerprint(oldBase)
	liveBase := map[string]any{"a": "x", "b": "new"}

	putJSON(t, store, IndexPath("wgt_1"), LayerIndex{V: 1, PublicID: "wgt_1", Layers: map[string]*LayerIndexEntry{
		model.LayerLocale: {Keys: []string{"es"}, LastPublishedFingerprint: map[string]string{"es": oldFp}},
	}})
	publishTestOverlay(t, store, "wgt_1", model.LayerLocale, "es", oldFp, []model.SetOp{
		{Op: "set", Path: "a", Value: "A"},
		{Op: "set", Path: "b", Value: "B"},
	})
	putJSON(t, store, BaseSnapshotPath("wgt_1", oldFp), BaseSnapshot{V: 1, PublicID: "wgt_1", BaseFingerprint: oldFp, Snapshot: map[string]string{"a": "x", "b": "old"}})

	r := &Resolver{Store: store}
	res, err := r.Resolve(context.Background(), ResolveRequest{PublicID: "wgt_1", Locale: "es", Base: liveBase})
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, res.Status)
	// "a" still matches the recorded base value and survives; "b" drifted
	// and is dropped.
	assert.Equal(t, "A", res.Config["a"])
	assert.Equal(t, "new", res.Config["b"])
	assert.Equal(t, 1, res.AppliedOps)
}

func TestResolveStaleWithoutSnapshot(t *testing.T) {
	store := storage.NewMemory()
	oldBase := map[string]any{"a": "x"}
	oldFp := Fingerprint(oldBase)
	liveBase := map[string]any{"a": "y"}

	putJSON(t, store, IndexPath("wgt_1"), LayerIndex{V: 1, PublicID: "wgt_1", Layers: map[string]*LayerIndexEntry{
		model.LayerLocale: {Keys: []string{"es"}, LastPublishedFingerprint: map[string]string{"es": oldFp}},
	}})
	publishTestOverlay(t, store, "wgt_1", model.LayerLocale, "es", oldFp, []model.SetOp{{Op: "set", Path: "a", Value: "A"}})

	r := &Resolver{Store: store}
	res, err := r.Resolve(context.Background(), ResolveRequest{PublicID: "wgt_1", Locale: "es", Base: liveBase})
	require.NoError(t, err)
	assert.Equal(t, StatusStale, res.Status)
	assert.Equal(t, "y", res.Config["a"])
}

func TestResolveUserLayerFallsBackToGlobal(t *testing.T) {
	store := storage.NewMemory()
	base := map[string]any{"title": "hello", "greeting": "hi"}
	fp := Fingerprint(base)

	putJSON(t, store, IndexPath("wgt_1"), LayerIndex{V: 1, PublicID: "wgt_1", Layers: map[string]*LayerIndexEntry{
		model.LayerLocale: {Keys: []string{"es"}, LastPublishedFingerprint: map[string]string{"es": fp}},
		model.LayerUser:   {Keys: []string{"global"}, LastPublishedFingerprint: map[string]string{"global": fp}},
	}})
	publishTestOverlay(t, store, "wgt_1", model.LayerLocale, "es", fp, []model.SetOp{{Op: "set", Path: "title", Value: "hola"}})
	publishTestOverlay(t, store, "wgt_1", model.LayerUser, "global", fp, []model.SetOp{{Op: "set", Path: "greeting", Value: "custom"}})

	r := &Resolver{Store: store}
	res, err := r.Resolve(context.Background(), ResolveRequest{PublicID: "wgt_1", Locale: "es", Base: base})
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, res.Status)
	assert.Equal(t, "hola", res.Config["title"])
	assert.Equal(t, "custom", res.Config["greeting"])
	assert.Equal(t, 2, res.AppliedOps)
}

func TestResolveGeoTargetedLocaleWins(t *testing.T) {
	store := storage.NewMemory()
	base := map[string]any{"title": "hello"}
	fp := Fingerprint(base)

	putJSON(t, store, IndexPath("wgt_1"), LayerIndex{V: 1, PublicID: "wgt_1", Layers: map[string]*LayerIndexEntry{
		model.LayerLocale: {
			Keys:                     []string{"es", "pt"},
			LastPublishedFingerprint: map[string]string{"es": fp, "pt": fp},
			GeoTargets:               map[string][]string{"pt": {"BR"}},
		},
	}})
	publishTestOverlay(t, store, "wgt_1", model.LayerLocale, "es", fp, []model.SetOp{{Op: "set", Path: "title", Value: "hola"}})
	publishTestOverlay(t, store, "wgt_1", model.LayerLocale, "pt", fp, []model.SetOp{{Op: "set", Path: "title", Value: "ola"}})

	r := &Resolver{Store: store}

	res, err := r.Resolve(context.Background(), ResolveRequest{PublicID: "wgt_1", Locale: "es", Country: "BR", Base: base})
	require.NoError(t, err)
	assert.Equal(t, "pt", res.EffectiveLocale)
	assert.Equal(t, "ola", res.Config["title"])

	res, err = r.Resolve(context.Background(), ResolveRequest{PublicID: "wgt_1", Locale: "es", Country: "US", Base: base})
	require.NoError(t, err)
	assert.Equal(t, "es", res.EffectiveLocale)
	assert.Equal(t, "hola", res.Config["title"])
}

func TestResolveAppliesGeoOverlay(t *testing.T) {
	store := storage.NewMemory()
	base := map[string]any{"title": "hello", "currency": "USD"}
	fp := Fingerprint(base)

	putJSON(t, store, IndexPath("wgt_1"), LayerIndex{V: 1, PublicID: "wgt_1", Layers: map[string]*LayerIndexEntry{
		model.LayerLocale: {Keys: []string{"es"}, LastPublishedFingerprint: map[string]string{"es": fp}},
		model.LayerGeo:    {Keys: []string{"MX"}, LastPublishedFingerprint: map[string]string{"MX": fp}},
	}})
	publishTestOverlay(t, store, "wgt_1", model.LayerLocale, "es", fp, []model.SetOp{{Op: "set", Path: "title", Value: "hola"}})
	publishTestOverlay(t, store, "wgt_1", model.LayerGeo, "MX", fp, []model.SetOp{{Op: "set", Path: "currency", Value: "MXN"}})

	r := &Resolver{Store: store}
	res, err := r.Resolve(context.Background(), ResolveRequest{PublicID: "wgt_1", Locale: "es", Country: "MX", Base: base})
	require.NoError(t, err)
	assert.Equal(t, "MXN", res.Config["currency"])
	assert.Equal(t, "hola", res.Config["title"])

	// No geo overlay for the country means the geo layer simply does not
	// participate.
	res, err = r.Resolve(context.Background(), ResolveRequest{PublicID: "wgt_1", Locale: "es", Country: "US", Base: base})
	require.NoError(t, err)
	assert.Equal(t, "USD", res.Config["currency"])
}
