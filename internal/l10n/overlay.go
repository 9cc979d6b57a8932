package l10n

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
)

// Overlay is the immutable published artifact for one layer/key at one base
// fingerprint.
type Overlay struct {
	V               int           `json:"v"`
	BaseUpdatedAt   *string       `json:"baseUpdatedAt,omitempty"`
	BaseFingerprint string        `json:"baseFingerprint"`
	Ops             []model.SetOp `json:"ops"`
}

// BaseSnapshot is the published recording of base field values at the
// moment an overlay was authored.
type BaseSnapshot struct {
	V               int               `json:"v"`
	PublicID        string            `json:"publicId"`
	BaseFingerprint string            `json:"baseFingerprint"`
	Snapshot        map[string]string `json:"snapshot"`
}

// Artifact paths under the object store.

func OverlayPath(publicID, layer, layerKey, baseFingerprint string) string {
	return fmt.Sprintf("l10n/instances/%s/%s/%s/%s.ops.json", publicID, layer, layerKey, baseFingerprint)
}

func LayerPrefix(publicID, layer, layerKey string) string {
	return fmt.Sprintf("l10n/instances/%s/%s/%s/", publicID, layer, layerKey)
}

func BaseSnapshotPath(publicID, baseFingerprint string) string {
	return fmt.Sprintf("l10n/instances/%s/bases/%s.snapshot.json", publicID, baseFingerprint)
}

func IndexPath(publicID string) string {
	return fmt.Sprintf("l10n/instances/%s/index.json", publicID)
}

// DecodeOverlay parses and validates an overlay payload, failing closed on
// any shape deviation.
func DecodeOverlay(data []byte) (*Overlay, error) {
	var raw struct {
		V               int               `json:"v"`
		BaseUpdatedAt   *string           `json:"baseUpdatedAt"`
		BaseFingerprint string            `json:"baseFingerprint"`
		Ops             []json.RawMessage `json:"ops"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}
	if raw.V != 1 {
		return nil, fmt.Errorf("overlay: v must be 1")
	}
	if NormalizeSHA256Hex(raw.BaseFingerprint) == "" {
		return nil, fmt.Errorf("overlay: baseFingerprint must be a sha256 hex string")
	}
	if raw.Ops == nil {
		return nil, fmt.Errorf("overlay: ops must be an array")
	}

	ops := make([]model.SetOp, 0, len(raw.Ops))
	for i, rawOp := range raw.Ops {
		var op model.SetOp
		if err := json.Unmarshal(rawOp, &op); err != nil {
			return nil, fmt.Errorf("overlay: ops[%d]: %w", i, err)
		}
		if err := ValidateOp(op); err != nil {
			return nil, fmt.Errorf("overlay: ops[%d]: %w", i, err)
		}
		op.Path = strings.TrimSpace(op.Path)
		ops = append(ops, op)
	}

	return &Overlay{
		V:               1,
		BaseUpdatedAt:   raw.BaseUpdatedAt,
		BaseFingerprint: NormalizeSHA256Hex(raw.BaseFingerprint),
		Ops:             ops,
	}, nil
}

// ValidateOp checks a single overlay operation.
func ValidateOp(op model.SetOp) error {
	if op.Op != "set" {
		return fmt.Errorf("op must be %q", "set")
	}
	if strings.TrimSpace(op.Path) == "" {
		return fmt.Errorf("path is required")
	}
	if HasProhibitedSegment(op.Path) {
		return fmt.Errorf("path contains prohibited segment")
	}
	return nil
}

// DecodeBaseSnapshot parses and validates a base snapshot artifact,
// requiring it to belong to the given publicId and fingerprint.
func DecodeBaseSnapshot(data []byte, publicID, baseFingerprint string) (*BaseSnapshot, error) {
	var raw struct {
		V               int            `json:"v"`
		PublicID        string         `json:"publicId"`
		BaseFingerprint string         `json:"baseFingerprint"`
		Snapshot        map[string]any `json:"snapshot"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("base snapshot: %w", err)
	}
	if raw.V != 1 {
		return nil, fmt.Errorf("base snapshot: v must be 1")
	}
	if raw.PublicID != "" && raw.PublicID != publicID {
		return nil, fmt.Errorf("base snapshot: publicId mismatch")
	}
	if NormalizeSHA256Hex(raw.BaseFingerprint) != baseFingerprint {
		return nil, fmt.Errorf("base snapshot: baseFingerprint mismatch")
	}
	if raw.Snapshot == nil {
		return nil, fmt.Errorf("base snapshot: snapshot must be an object")
	}

	snapshot := make(map[string]string, len(raw.Snapshot))
	for key, value := range raw.Snapshot {
		if s, ok := value.(string); ok {
			snapshot[key] = s
		}
	}
	return &BaseSnapshot{V: 1, PublicID: publicID, BaseFingerprint: baseFingerprint, Snapshot: snapshot}, nil
}

// ApplyOps applies set operations to a structural clone of base. Ops with
// invalid shapes or prohibited paths are skipped, never applied partially.
func ApplyOps(base map[string]any, ops []model.SetOp) map[string]any {
	working := cloneValue(base).(map[string]any)
	for _, op := range ops {
		if ValidateOp(op) != nil {
			continue
		}
		setAt(working, op.Path, op.Value)
	}
	return working
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// setAt walks dotted path segments, treating all-digit segments as array
// indexes, and sets the leaf value. Missing intermediate containers are
// created as objects; out-of-range indexes are dropped.
func setAt(root map[string]any, path string, value any) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return
	}

	var current any = root
	for i, part := range parts {
		last := i == len(parts)-1

		if idx, isIndex := parseIndex(part); isIndex {
			arr, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return
			}
			if last {
				arr[idx] = value
				return
			}
			arr[idx] = ensureContainer(arr[idx], parts[i+1])
			current = arr[idx]
			continue
		}

		obj, ok := current.(map[string]any)
		if !ok {
			return
		}
		if last {
			obj[part] = value
			return
		}
		obj[part] = ensureContainer(obj[part], parts[i+1])
		current = obj[part]
	}
}

func ensureContainer(v any, nextPart string) any {
	switch v.(type) {
	case map[string]any, []any:
		return v
	}
	if _, isIndex := parseIndex(nextPart); isIndex {
		return []any{}
	}
	return map[string]any{}
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, ".") {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func parseIndex(segment string) (int, bool) {
	if segment == "" {
		return 0, false
	}
	for _, c := range segment {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(segment)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ValueAtPath returns the string value at a dotted path in base, and
// whether a string was found. Used by the staleness salvage compare.
func ValueAtPath(base map[string]any, path string) (string, bool) {
	parts := splitPath(path)
	var current any = base
	for _, part := range parts {
		if idx, isIndex := parseIndex(part); isIndex {
			arr, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return "", false
			}
			current = arr[idx]
			continue
		}
		obj, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = obj[part]
		if !ok {
			return "", false
		}
	}
	s, ok := current.(string)
	return s, ok
}
