package l10n

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
)

// Overlay application statuses reported to callers.
const (
	StatusApplied = "applied"
	StatusMissing = "missing"
	StatusStale   = "stale"
	StatusSkipped = "skipped"
)

// Resolver applies published overlays to base content. The hot path reads
// only the object store: index, overlay artifacts, and base snapshots all
// resolve from published documents, never the relational store.
type Resolver struct {
	Store storage.Store
	// DevStrict escalates missing/stale outcomes to errors instead of
	// silently serving base content. Non-production only.
	DevStrict bool
}

// LayerContext carries the optional targeting dimensions of a request.
type LayerContext struct {
	IndustryKey    string   `json:"industryKey,omitempty"`
	AccountKey     string   `json:"accountKey,omitempty"`
	ExperimentKeys []string `json:"experimentKeys,omitempty"`
	BehaviorKeys   []string `json:"behaviorKeys,omitempty"`
}

// ResolveRequest asks for base content localized for one request context.
type ResolveRequest struct {
	PublicID        string
	Locale          string
	Country         string
	Context         LayerContext
	Base            map[string]any
	BaseFingerprint string
}

// ResolveResult is the localized content plus how the overlay system fared.
type ResolveResult struct {
	Config          map[string]any
	Status          string
	EffectiveLocale string
	AppliedOps      int
}

type layerTarget struct {
	layer string
	key   string
}

// Resolve applies the published overlay stack for the request. The `en`
// (or unspecified) locale bypasses the overlay system entirely.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	locale := NormalizeLocale(req.Locale)
	if locale == "" || locale == "en" {
		return &ResolveResult{Config: req.Base, Status: StatusSkipped, EffectiveLocale: "en"}, nil
	}

	fingerprint := NormalizeSHA256Hex(req.BaseFingerprint)
	if fingerprint == "" {
		fingerprint = Fingerprint(req.Base)
	}

	index, err := r.loadIndex(ctx, req.PublicID)
	if err != nil {
		return nil, err
	}
	if index == nil {
		return r.fallback(req, locale, StatusMissing, "no published layer index")
	}

	effectiveLocale := r.resolveLocale(index, locale, req.Country)
	if effectiveLocale == "" || effectiveLocale == "en" {
		return r.fallback(req, locale, StatusMissing, "locale unresolved")
	}

	targets := r.resolveTargets(index, effectiveLocale, req.Country, req.Context)
	if len(targets) > MaxLayerApplications {
		targets = targets[:MaxLayerApplications]
	}

	working := req.Base
	applied := 0
	anyStale := false
	for _, target := range targets {
		ops, stale := r.loadTargetOps(ctx, req.PublicID, index, target, fingerprint, req.Base)
		if stale {
			anyStale = true
		}
		if len(ops) == 0 {
			continue
		}
		working = ApplyOps(working, ops)
		applied += len(ops)
	}

	switch {
	case applied > 0:
		return &ResolveResult{Config: working, Status: StatusApplied, EffectiveLocale: effectiveLocale, AppliedOps: applied}, nil
	case anyStale:
		if r.DevStrict {
			return nil, fmt.Errorf("stale overlays for %s locale %s", req.PublicID, effectiveLocale)
		}
		return &ResolveResult{Config: req.Base, Status: StatusStale, EffectiveLocale: effectiveLocale}, nil
	default:
		return r.fallback(req, effectiveLocale, StatusMissing, "no applicable overlay ops")
	}
}

func (r *Resolver) fallback(req ResolveRequest, locale, status, reason string) (*ResolveResult, error) {
	if r.DevStrict {
		return nil, fmt.Errorf("overlay %s for %s locale %s: %s", status, req.PublicID, locale, reason)
	}
	return &ResolveResult{Config: req.Base, Status: status, EffectiveLocale: locale}, nil
}

func (r *Resolver) loadIndex(ctx context.Context, publicID string) (*LayerIndex, error) {
	data, _, err := r.Store.Get(ctx, IndexPath(publicID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load layer index: %w", err)
	}
	index, err := DecodeLayerIndex(data, publicID)
	if err != nil {
		// A corrupt index document reads as absent; writes will replace it.
		return nil, nil
	}
	return index, nil
}

// resolveLocale picks the best published locale key for the request. Geo
// targeting narrows locale selection: a locale targeted to the requester's
// country wins over the plain candidate order.
func (r *Resolver) resolveLocale(index *LayerIndex, locale, country string) string {
	entry := index.Layers[model.LayerLocale]
	if entry == nil || len(entry.Keys) == 0 {
		return ""
	}

	if c := NormalizeCountry(country); c != "" {
		for _, key := range entry.Keys {
			for _, targeted := range entry.GeoTargets[key] {
				if targeted == c {
					return key
				}
			}
		}
	}

	supported := make(map[string]bool, len(entry.Keys))
	for _, key := range entry.Keys {
		supported[key] = true
	}
	if candidates := LocaleCandidates(locale, supported); len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

func (r *Resolver) resolveTargets(index *LayerIndex, locale, country string, lc LayerContext) []layerTarget {
	var targets []layerTarget
	layers := index.Layers

	targets = append(targets, layerTarget{model.LayerLocale, locale})

	if geoKey := NormalizeCountry(country); geoKey != "" {
		if entry := layers[model.LayerGeo]; entry != nil && containsString(entry.Keys, geoKey) {
			localeEntry := layers[model.LayerLocale]
			restricted := localeEntry != nil && len(localeEntry.GeoTargets[locale]) > 0
			if !restricted || containsString(localeEntry.GeoTargets[locale], geoKey) {
				targets = append(targets, layerTarget{model.LayerGeo, geoKey})
			}
		}
	}

	for _, single := range []struct {
		layer string
		raw   string
	}{
		{model.LayerIndustry, lc.IndustryKey},
		{model.LayerAccount, lc.AccountKey},
	} {
		key := NormalizeLayerKey(single.layer, single.raw)
		if key == "" {
			continue
		}
		if entry := layers[single.layer]; entry != nil && containsString(entry.Keys, key) {
			targets = append(targets, layerTarget{single.layer, key})
		}
	}

	if entry := layers[model.LayerExperiment]; entry != nil {
		seen := map[string]bool{}
		var keys []string
		for _, raw := range lc.ExperimentKeys {
			key := NormalizeLayerKey(model.LayerExperiment, raw)
			if key == "" || seen[key] || !containsString(entry.Keys, key) {
				continue
			}
			seen[key] = true
			keys = append(keys, key)
		}
		for _, key := range SortExperimentKeys(keys) {
			targets = append(targets, layerTarget{model.LayerExperiment, key})
		}
	}

	if entry := layers[model.LayerBehavior]; entry != nil {
		seen := map[string]bool{}
		var keys []string
		for _, raw := range lc.BehaviorKeys {
			key := NormalizeLayerKey(model.LayerBehavior, raw)
			if key == "" || seen[key] || !containsString(entry.Keys, key) {
				continue
			}
			seen[key] = true
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			targets = append(targets, layerTarget{model.LayerBehavior, key})
		}
	}

	if entry := layers[model.LayerUser]; entry != nil {
		for _, candidate := range []string{locale, "global"} {
			if containsString(entry.Keys, candidate) {
				targets = append(targets, layerTarget{model.LayerUser, candidate})
				break
			}
		}
	}

	return targets
}

// loadTargetOps fetches the overlay for one target and returns the ops that
// survive the staleness checks. An overlay published against an older base
// fingerprint salvages through the base snapshot three-way compare: an op
// survives only if the field it touches still holds the value recorded when
// the overlay was authored.
func (r *Resolver) loadTargetOps(ctx context.Context, publicID string, index *LayerIndex, target layerTarget, liveFingerprint string, base map[string]any) ([]model.SetOp, bool) {
	fetchFingerprint := liveFingerprint
	if entry := index.Layers[target.layer]; entry != nil {
		if expected := entry.LastPublishedFingerprint[target.key]; expected != "" && expected != liveFingerprint {
			fetchFingerprint = expected
		}
	}

	data, _, err := r.Store.Get(ctx, OverlayPath(publicID, target.layer, target.key, fetchFingerprint))
	if err != nil {
		return nil, true
	}
	overlay, err := DecodeOverlay(data)
	if err != nil || overlay.BaseFingerprint != fetchFingerprint {
		return nil, true
	}

	if fetchFingerprint == liveFingerprint {
		return overlay.Ops, false
	}

	snapData, _, err := r.Store.Get(ctx, BaseSnapshotPath(publicID, fetchFingerprint))
	if err != nil {
		return nil, true
	}
	snapshot, err := DecodeBaseSnapshot(snapData, publicID, fetchFingerprint)
	if err != nil {
		return nil, true
	}

	var survivors []model.SetOp
	for _, op := range overlay.Ops {
		recorded, ok := snapshot.Snapshot[op.Path]
		if !ok {
			continue
		}
		live, ok := ValueAtPath(base, op.Path)
		if !ok || live != recorded {
			continue
		}
		survivors = append(survivors, op)
	}
	if len(survivors) == 0 {
		return nil, true
	}
	return survivors, false
}
