package l10n

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CKsangiacomo/clickeen-sub004/internal/database"
	"github.com/CKsangiacomo/clickeen-sub004/internal/entitlements"
	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
)

const (
	publishBackoffStep = time.Minute
	publishBackoffMax  = 15 * time.Minute
	sweepBatchSize     = 25
)

// Publisher turns authored overlay rows into published object-store
// artifacts and keeps the per-instance layer index current. Publishing is
// idempotent per (key, baseFingerprint): artifacts are content-addressed
// and immutable once written.
type Publisher struct {
	DB    database.Database
	Store storage.Store
	Log   *slog.Logger

	// EnqueueRender is invoked after a publish that can change rendered
	// output (locale and user layers). Nil disables render triggering.
	EnqueueRender func(publicID string, layer, layerKey string)
}

// SaveRequest is one authoring write for an overlay key.
type SaveRequest struct {
	PublicID      string
	Layer         string
	LayerKey      string
	WorkspaceID   string
	Ops           []model.SetOp
	UserOps       []model.SetOp
	GeoTargets    []string
	Base          map[string]any
	BaseUpdatedAt *time.Time
}

// Save validates and stores an overlay row, records the base snapshot for
// later salvage, and attempts an immediate publish. A failed publish leaves
// the key dirty for the sweep; the save itself still succeeds.
func (p *Publisher) Save(ctx context.Context, req SaveRequest) (*model.PublishState, error) {
	layer := NormalizeLayer(req.Layer)
	if layer == "" {
		return nil, fmt.Errorf("unknown layer %q", req.Layer)
	}
	layerKey := NormalizeLayerKey(layer, req.LayerKey)
	if layerKey == "" {
		return nil, fmt.Errorf("invalid key %q for layer %s", req.LayerKey, layer)
	}
	for _, op := range append(append([]model.SetOp{}, req.Ops...), req.UserOps...) {
		if err := ValidateOp(op); err != nil {
			return nil, err
		}
	}
	if len(req.GeoTargets) > 0 && layer != model.LayerLocale {
		return nil, fmt.Errorf("geoTargets are only valid on the locale layer")
	}

	fingerprint := Fingerprint(req.Base)
	now := time.Now().UTC()

	row := &model.OverlayRow{
		PublicID:        req.PublicID,
		Layer:           layer,
		LayerKey:        layerKey,
		WorkspaceID:     req.WorkspaceID,
		Ops:             req.Ops,
		UserOps:         req.UserOps,
		BaseFingerprint: fingerprint,
		BaseUpdatedAt:   req.BaseUpdatedAt,
		GeoTargets:      NormalizeGeoCountries(req.GeoTargets),
		UpdatedAt:       now,
	}
	if err := p.DB.UpsertOverlay(row); err != nil {
		return nil, fmt.Errorf("save overlay: %w", err)
	}

	if snap := snapshotForOps(req.Base, row); len(snap) > 0 {
		err := p.DB.UpsertBaseSnapshot(&model.BaseSnapshotRow{
			PublicID:        req.PublicID,
			BaseFingerprint: fingerprint,
			Snapshot:        snap,
			CreatedAt:       now,
		})
		if err != nil {
			return nil, fmt.Errorf("save base snapshot: %w", err)
		}
	}

	state := &model.PublishState{
		PublicID:        req.PublicID,
		Layer:           layer,
		LayerKey:        layerKey,
		BaseFingerprint: fingerprint,
		State:           "dirty",
		NextRetryAt:     now,
		UpdatedAt:       now,
	}
	if err := p.DB.UpsertPublishState(state); err != nil {
		return nil, fmt.Errorf("mark dirty: %w", err)
	}

	if err := p.PublishKey(ctx, req.PublicID, layer, layerKey); err != nil {
		p.markFailed(state, err)
		return state, nil
	}
	return p.DB.GetPublishState(req.PublicID, layer, layerKey)
}

// PublishKey writes the overlay artifact for one key, maintains version
// history and the layer index, and marks the key clean.
func (p *Publisher) PublishKey(ctx context.Context, publicID, layer, layerKey string) error {
	row, err := p.DB.GetOverlay(publicID, layer, layerKey)
	if err != nil {
		return fmt.Errorf("load overlay: %w", err)
	}

	ops := row.Ops
	if row.Layer == model.LayerUser && len(row.UserOps) > 0 {
		ops = append(append([]model.SetOp{}, row.Ops...), row.UserOps...)
	}
	if ops == nil {
		ops = []model.SetOp{}
	}

	artifact := Overlay{V: 1, BaseFingerprint: row.BaseFingerprint, Ops: ops}
	if row.BaseUpdatedAt != nil {
		ts := row.BaseUpdatedAt.UTC().Format(time.RFC3339)
		artifact.BaseUpdatedAt = &ts
	}
	body, err := PrettyStableJSON(artifact)
	if err != nil {
		return fmt.Errorf("encode overlay: %w", err)
	}

	artifactKey := OverlayPath(publicID, row.Layer, row.LayerKey, row.BaseFingerprint)
	err = p.Store.Put(ctx, artifactKey, body, storage.PutOptions{
		ContentType:  "application/json",
		CacheControl: storage.CacheImmutable,
	})
	if err != nil {
		return fmt.Errorf("write overlay artifact: %w", err)
	}

	p.publishBaseSnapshot(ctx, publicID, row.BaseFingerprint)
	p.recordVersion(ctx, row, artifactKey)

	if err := p.rebuildIndex(ctx, publicID); err != nil {
		return err
	}

	now := time.Now().UTC()
	err = p.DB.UpsertPublishState(&model.PublishState{
		PublicID:             publicID,
		Layer:                row.Layer,
		LayerKey:             row.LayerKey,
		BaseFingerprint:      row.BaseFingerprint,
		PublishedFingerprint: row.BaseFingerprint,
		State:                "clean",
		UpdatedAt:            now,
	})
	if err != nil {
		return fmt.Errorf("mark clean: %w", err)
	}

	p.triggerRender(publicID, row.Layer, row.LayerKey)
	return nil
}

// Delete removes an overlay key: the row, its artifacts, its version
// history, and its index entry.
func (p *Publisher) Delete(ctx context.Context, publicID, layer, layerKey string) error {
	layer = NormalizeLayer(layer)
	layerKey = NormalizeLayerKey(layer, layerKey)
	if layer == "" || layerKey == "" {
		return fmt.Errorf("invalid overlay key")
	}

	if err := p.DB.DeleteOverlay(publicID, layer, layerKey); err != nil {
		return fmt.Errorf("delete overlay: %w", err)
	}

	p.deletePrefix(ctx, LayerPrefix(publicID, layer, layerKey))

	versions, err := p.DB.ListOverlayVersions(publicID, layer, layerKey)
	if err == nil {
		for _, v := range versions {
			if err := p.Store.Delete(ctx, v.ArtifactKey); err != nil {
				p.log().Warn("delete version artifact", "key", v.ArtifactKey, "error", err)
			}
		}
	}
	if err := p.DB.DeleteOverlayVersions(publicID, layer, layerKey); err != nil {
		return fmt.Errorf("delete version history: %w", err)
	}

	if err := p.dropIndexEntry(ctx, publicID, layer, layerKey); err != nil {
		return err
	}

	// The cleared state keeps the fingerprint the key was last published
	// against, so tooling can still see what the deletion removed.
	st := &model.PublishState{
		PublicID:  publicID,
		Layer:     layer,
		LayerKey:  layerKey,
		State:     "clean",
		UpdatedAt: time.Now().UTC(),
	}
	if prior, err := p.DB.GetPublishState(publicID, layer, layerKey); err == nil {
		st.BaseFingerprint = prior.BaseFingerprint
		st.PublishedFingerprint = prior.PublishedFingerprint
	}
	if err := p.DB.UpsertPublishState(st); err != nil {
		return fmt.Errorf("mark clean: %w", err)
	}

	p.triggerRender(publicID, layer, layerKey)
	return nil
}

// Sweep republishes every key whose publish state is due, oldest first.
// Failures push the key further out with linear backoff.
func (p *Publisher) Sweep(ctx context.Context, now time.Time) error {
	due, err := p.DB.ListDuePublishStates(now, sweepBatchSize)
	if err != nil {
		return fmt.Errorf("list due publish states: %w", err)
	}
	for _, st := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.PublishKey(ctx, st.PublicID, st.Layer, st.LayerKey); err != nil {
			p.log().Warn("publish sweep",
				"publicId", st.PublicID, "layer", st.Layer, "key", st.LayerKey, "error", err)
			p.markFailed(st, err)
		}
	}
	return nil
}

// Backoff returns the retry delay after the given number of failed
// attempts: a minute per attempt, capped at fifteen minutes.
func Backoff(attempts int) time.Duration {
	d := time.Duration(attempts) * publishBackoffStep
	if d > publishBackoffMax {
		return publishBackoffMax
	}
	if d < publishBackoffStep {
		return publishBackoffStep
	}
	return d
}

func (p *Publisher) markFailed(st *model.PublishState, cause error) {
	now := time.Now().UTC()
	st.Attempts++
	st.State = "failed"
	st.LastError = cause.Error()
	st.NextRetryAt = now.Add(Backoff(st.Attempts))
	st.UpdatedAt = now
	if err := p.DB.UpsertPublishState(st); err != nil {
		p.log().Error("record publish failure",
			"publicId", st.PublicID, "layer", st.Layer, "key", st.LayerKey, "error", err)
	}
}

// publishBaseSnapshot mirrors the stored base snapshot into the object
// store so resolution can salvage without touching the metadata store.
// Best effort: a missing snapshot only disables salvage for that base.
func (p *Publisher) publishBaseSnapshot(ctx context.Context, publicID, fingerprint string) {
	row, err := p.DB.GetBaseSnapshot(publicID, fingerprint)
	if err != nil {
		return
	}
	body, err := PrettyStableJSON(BaseSnapshot{
		V:               1,
		PublicID:        publicID,
		BaseFingerprint: fingerprint,
		Snapshot:        row.Snapshot,
	})
	if err != nil {
		return
	}
	err = p.Store.Put(ctx, BaseSnapshotPath(publicID, fingerprint), body, storage.PutOptions{
		ContentType:  "application/json",
		CacheControl: storage.CacheImmutable,
	})
	if err != nil {
		p.log().Warn("write base snapshot", "publicId", publicID, "fingerprint", fingerprint, "error", err)
	}
}

// recordVersion appends to the bounded publish history and deletes the
// artifacts of pruned entries. Retention follows the owning workspace tier.
func (p *Publisher) recordVersion(ctx context.Context, row *model.OverlayRow, artifactKey string) {
	versions, err := p.DB.ListOverlayVersions(row.PublicID, row.Layer, row.LayerKey)
	if err == nil && len(versions) > 0 && versions[0].ArtifactKey == artifactKey {
		return
	}

	err = p.DB.InsertOverlayVersion(&model.OverlayVersion{
		PublicID:        row.PublicID,
		Layer:           row.Layer,
		LayerKey:        row.LayerKey,
		BaseFingerprint: row.BaseFingerprint,
		ArtifactKey:     artifactKey,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		p.log().Warn("record overlay version", "key", artifactKey, "error", err)
		return
	}

	keep := entitlements.ForTier("").L10nVersionsMax
	if row.WorkspaceID != "" {
		if ws, err := p.DB.GetWorkspace(row.WorkspaceID); err == nil {
			keep = entitlements.ForTier(ws.Tier).L10nVersionsMax
		}
	}

	pruned, err := p.DB.PruneOverlayVersions(row.PublicID, row.Layer, row.LayerKey, keep)
	if err != nil {
		p.log().Warn("prune overlay versions", "error", err)
		return
	}
	for _, v := range pruned {
		if v.ArtifactKey == artifactKey {
			continue
		}
		if err := p.Store.Delete(ctx, v.ArtifactKey); err != nil {
			p.log().Warn("delete pruned artifact", "key", v.ArtifactKey, "error", err)
		}
	}
}

// rebuildIndex regenerates the layer index from the full overlay row set.
// An instance with no overlays has no index document at all.
func (p *Publisher) rebuildIndex(ctx context.Context, publicID string) error {
	rows, err := p.DB.ListOverlays(publicID)
	if err != nil {
		return fmt.Errorf("list overlays: %w", err)
	}
	index := BuildLayerIndex(publicID, rows)
	path := IndexPath(publicID)
	if index == nil {
		if err := p.Store.Delete(ctx, path); err != nil {
			return fmt.Errorf("remove layer index: %w", err)
		}
		return nil
	}
	body, err := PrettyStableJSON(index)
	if err != nil {
		return fmt.Errorf("encode layer index: %w", err)
	}
	err = p.Store.Put(ctx, path, body, storage.PutOptions{
		ContentType:  "application/json",
		CacheControl: storage.CacheShort,
	})
	if err != nil {
		return fmt.Errorf("write layer index: %w", err)
	}
	return nil
}

// RebuildIndex regenerates the published layer index from the overlay rows.
// Tooling calls this to repair an index that drifted from the rows.
func (p *Publisher) RebuildIndex(ctx context.Context, publicID string) error {
	return p.rebuildIndex(ctx, publicID)
}

// DropIndex removes the published layer index document. Overlay artifacts
// stay in place; resolution treats the instance as having no overlays until
// the next publish rebuilds the index.
func (p *Publisher) DropIndex(ctx context.Context, publicID string) error {
	err := p.Store.Delete(ctx, IndexPath(publicID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// PublishBaseSnapshot records base field values for a fingerprint and
// mirrors them into the object store, so salvage works for bases that were
// authored before their overlays reached this service.
func (p *Publisher) PublishBaseSnapshot(ctx context.Context, publicID, fingerprint string, snapshot map[string]string) error {
	err := p.DB.UpsertBaseSnapshot(&model.BaseSnapshotRow{
		PublicID:        publicID,
		BaseFingerprint: fingerprint,
		Snapshot:        snapshot,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save base snapshot: %w", err)
	}
	body, err := PrettyStableJSON(BaseSnapshot{
		V:               1,
		PublicID:        publicID,
		BaseFingerprint: fingerprint,
		Snapshot:        snapshot,
	})
	if err != nil {
		return fmt.Errorf("encode base snapshot: %w", err)
	}
	err = p.Store.Put(ctx, BaseSnapshotPath(publicID, fingerprint), body, storage.PutOptions{
		ContentType:  "application/json",
		CacheControl: storage.CacheImmutable,
	})
	if err != nil {
		return fmt.Errorf("write base snapshot: %w", err)
	}
	return nil
}

// dropIndexEntry removes a single key from the published index in place.
// A missing index means nothing to do; an unreadable one forces a full
// rebuild from the overlay rows.
func (p *Publisher) dropIndexEntry(ctx context.Context, publicID, layer, layerKey string) error {
	path := IndexPath(publicID)
	body, _, err := p.Store.Get(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return p.rebuildIndex(ctx, publicID)
	}
	index, err := DecodeLayerIndex(body, publicID)
	if err != nil {
		return p.rebuildIndex(ctx, publicID)
	}

	if !index.RemoveEntry(layer, layerKey) {
		if err := p.Store.Delete(ctx, path); err != nil {
			return fmt.Errorf("remove layer index: %w", err)
		}
		return nil
	}

	encoded, err := PrettyStableJSON(index)
	if err != nil {
		return fmt.Errorf("encode layer index: %w", err)
	}
	err = p.Store.Put(ctx, path, encoded, storage.PutOptions{
		ContentType:  "application/json",
		CacheControl: storage.CacheShort,
	})
	if err != nil {
		return fmt.Errorf("write layer index: %w", err)
	}
	return nil
}

func (p *Publisher) deletePrefix(ctx context.Context, prefix string) {
	cursor := ""
	for {
		page, err := p.Store.List(ctx, storage.ListOptions{Prefix: prefix, Cursor: cursor})
		if err != nil {
			p.log().Warn("list artifacts", "prefix", prefix, "error", err)
			return
		}
		for _, obj := range page.Objects {
			if err := p.Store.Delete(ctx, obj.Key); err != nil {
				p.log().Warn("delete artifact", "key", obj.Key, "error", err)
			}
		}
		if !page.Truncated {
			return
		}
		cursor = page.Cursor
	}
}

func (p *Publisher) triggerRender(publicID, layer, layerKey string) {
	if p.EnqueueRender == nil {
		return
	}
	if layer == model.LayerLocale || layer == model.LayerUser {
		p.EnqueueRender(publicID, layer, layerKey)
	}
}

func (p *Publisher) log() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

// snapshotForOps records the live base value at every path an overlay
// touches, the raw material for the later three-way salvage compare.
func snapshotForOps(base map[string]any, row *model.OverlayRow) map[string]string {
	snap := map[string]string{}
	for _, op := range row.Ops {
		if v, ok := ValueAtPath(base, op.Path); ok {
			snap[op.Path] = v
		}
	}
	for _, op := range row.UserOps {
		if v, ok := ValueAtPath(base, op.Path); ok {
			snap[op.Path] = v
		}
	}
	return snap
}
