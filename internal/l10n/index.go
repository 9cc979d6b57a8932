package l10n

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
)

// LayerIndexEntry lists the published keys for one layer, the base
// fingerprint each key was last published against, and (locale layer only)
// the geo countries each locale is targeted to.
type LayerIndexEntry struct {
	Keys                     []string            `json:"keys"`
	LastPublishedFingerprint map[string]string   `json:"lastPublishedFingerprint,omitempty"`
	GeoTargets               map[string][]string `json:"geoTargets,omitempty"`
}

// LayerIndex is the mutable, short-cached discovery document for one
// instance's published overlays.
type LayerIndex struct {
	V        int                         `json:"v"`
	PublicID string                      `json:"publicId"`
	Layers   map[string]*LayerIndexEntry `json:"layers"`
}

// DecodeLayerIndex parses and validates a layer index payload, dropping
// entries that fail per-layer key validation and failing closed on
// structural deviations.
func DecodeLayerIndex(data []byte, publicID string) (*LayerIndex, error) {
	var raw struct {
		V        int    `json:"v"`
		PublicID string `json:"publicId"`
		Layers   map[string]struct {
			Keys                     []string            `json:"keys"`
			LastPublishedFingerprint map[string]string   `json:"lastPublishedFingerprint"`
			GeoTargets               map[string][]string `json:"geoTargets"`
		} `json:"layers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("layer index: %w", err)
	}
	if raw.V != 1 {
		return nil, fmt.Errorf("layer index: v must be 1")
	}
	if raw.PublicID != "" && raw.PublicID != publicID {
		return nil, fmt.Errorf("layer index: publicId mismatch")
	}
	if raw.Layers == nil {
		return nil, fmt.Errorf("layer index: layers must be an object")
	}

	index := &LayerIndex{V: 1, PublicID: publicID, Layers: map[string]*LayerIndexEntry{}}
	for rawLayer, rawEntry := range raw.Layers {
		layer := NormalizeLayer(rawLayer)
		if layer == "" {
			continue
		}
		entry := &LayerIndexEntry{}
		seen := map[string]bool{}
		for _, candidate := range rawEntry.Keys {
			key := NormalizeLayerKey(layer, candidate)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			entry.Keys = append(entry.Keys, key)
		}
		if len(entry.Keys) == 0 {
			continue
		}
		sort.Strings(entry.Keys)

		for rawKey, rawFingerprint := range rawEntry.LastPublishedFingerprint {
			key := NormalizeLayerKey(layer, rawKey)
			fingerprint := NormalizeSHA256Hex(rawFingerprint)
			if key == "" || fingerprint == "" {
				continue
			}
			if entry.LastPublishedFingerprint == nil {
				entry.LastPublishedFingerprint = map[string]string{}
			}
			entry.LastPublishedFingerprint[key] = fingerprint
		}

		if layer == model.LayerLocale {
			for rawKey, rawCountries := range rawEntry.GeoTargets {
				key := NormalizeLayerKey(layer, rawKey)
				countries := NormalizeGeoCountries(rawCountries)
				if key == "" || len(countries) == 0 {
					continue
				}
				if entry.GeoTargets == nil {
					entry.GeoTargets = map[string][]string{}
				}
				entry.GeoTargets[key] = countries
			}
		}

		index.Layers[layer] = entry
	}
	return index, nil
}

// BuildLayerIndex assembles the index from the live overlay rows. Returns
// nil when no row produces a valid entry; the index file is deleted then.
func BuildLayerIndex(publicID string, rows []*model.OverlayRow) *LayerIndex {
	layers := map[string]*LayerIndexEntry{}

	for _, row := range rows {
		layer := NormalizeLayer(row.Layer)
		if layer == "" {
			continue
		}
		key := NormalizeLayerKey(layer, row.LayerKey)
		if key == "" {
			continue
		}
		entry := layers[layer]
		if entry == nil {
			entry = &LayerIndexEntry{}
			layers[layer] = entry
		}
		if !containsString(entry.Keys, key) {
			entry.Keys = append(entry.Keys, key)
		}
		if fingerprint := NormalizeSHA256Hex(row.BaseFingerprint); fingerprint != "" {
			if entry.LastPublishedFingerprint == nil {
				entry.LastPublishedFingerprint = map[string]string{}
			}
			entry.LastPublishedFingerprint[key] = fingerprint
		}
		if layer == model.LayerLocale {
			if countries := NormalizeGeoCountries(row.GeoTargets); len(countries) > 0 {
				if entry.GeoTargets == nil {
					entry.GeoTargets = map[string][]string{}
				}
				entry.GeoTargets[key] = countries
			}
		}
	}

	for _, entry := range layers {
		sort.Strings(entry.Keys)
	}
	if len(layers) == 0 {
		return nil
	}
	return &LayerIndex{V: 1, PublicID: publicID, Layers: layers}
}

// RemoveEntry drops one layer/key from the index, clearing the layer when
// its last key goes. Returns false when the index is empty afterwards.
func (idx *LayerIndex) RemoveEntry(layer, layerKey string) bool {
	entry := idx.Layers[layer]
	if entry != nil {
		var keys []string
		for _, key := range entry.Keys {
			if key != layerKey {
				keys = append(keys, key)
			}
		}
		if len(keys) == 0 {
			delete(idx.Layers, layer)
		} else {
			entry.Keys = keys
			delete(entry.LastPublishedFingerprint, layerKey)
			if len(entry.LastPublishedFingerprint) == 0 {
				entry.LastPublishedFingerprint = nil
			}
			delete(entry.GeoTargets, layerKey)
			if len(entry.GeoTargets) == 0 {
				entry.GeoTargets = nil
			}
		}
	}
	return len(idx.Layers) > 0
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
