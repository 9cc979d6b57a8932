package model

import "time"

// Localization overlay layers in application order. Later layers override
// earlier ones at the same path.
const (
	LayerLocale     = "locale"
	LayerGeo        = "geo"
	LayerIndustry   = "industry"
	LayerExperiment = "experiment"
	LayerAccount    = "account"
	LayerBehavior   = "behavior"
	LayerUser       = "user"
)

// LayerOrder is the fixed precedence for overlay application, excluding the
// implicit base layer.
var LayerOrder = []string{
	LayerLocale, LayerGeo, LayerIndustry, LayerExperiment,
	LayerAccount, LayerBehavior, LayerUser,
}

// OverlayRow is the authored overlay as stored in the metadata store, keyed
// by (publicId, layer, layerKey). UserOps holds per-user edits that merge
// after Ops for the user layer only.
type OverlayRow struct {
	PublicID        string     `json:"publicId"`
	Layer           string     `json:"layer"`
	LayerKey        string     `json:"layerKey"`
	WorkspaceID     string     `json:"workspaceId,omitempty"`
	Ops             []SetOp    `json:"ops"`
	UserOps         []SetOp    `json:"userOps,omitempty"`
	BaseFingerprint string     `json:"baseFingerprint"`
	BaseUpdatedAt   *time.Time `json:"baseUpdatedAt,omitempty"`
	GeoTargets      []string   `json:"geoTargets,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// SetOp is the only overlay operation. Path is dotted (bracket indexes
// allowed) and must not contain prototype-poisoning segments.
type SetOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

// PublishState drives the async publish sweep for one overlay key.
type PublishState struct {
	PublicID             string    `json:"publicId"`
	Layer                string    `json:"layer"`
	LayerKey             string    `json:"layerKey"`
	BaseFingerprint      string    `json:"baseFingerprint"`
	PublishedFingerprint string    `json:"publishedFingerprint,omitempty"`
	State                string    `json:"state"` // clean | dirty | failed
	Attempts             int       `json:"attempts"`
	NextRetryAt          time.Time `json:"nextRetryAt"`
	LastError            string    `json:"lastError,omitempty"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// OverlayVersion is one entry in the bounded publish history for a key.
type OverlayVersion struct {
	ID              int64     `json:"id"`
	PublicID        string    `json:"publicId"`
	Layer           string    `json:"layer"`
	LayerKey        string    `json:"layerKey"`
	BaseFingerprint string    `json:"baseFingerprint"`
	ArtifactKey     string    `json:"artifactKey"`
	CreatedAt       time.Time `json:"createdAt"`
}

// BaseSnapshotRow stores the flattened base values recorded when an overlay
// was authored, keyed by (publicId, baseFingerprint).
type BaseSnapshotRow struct {
	PublicID        string            `json:"publicId"`
	BaseFingerprint string            `json:"baseFingerprint"`
	Snapshot        map[string]string `json:"snapshot"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// EnforcementState freezes render regeneration to English only while active.
type EnforcementState struct {
	PublicID  string    `json:"publicId"`
	Mode      string    `json:"mode"` // frozen
	PeriodKey string    `json:"periodKey"`
	FrozenAt  time.Time `json:"frozenAt"`
	ResetAt   time.Time `json:"resetAt"`
}

// Active reports whether the enforcement window is still in effect at now.
func (s *EnforcementState) Active(now time.Time) bool {
	if s == nil || s.Mode != "frozen" {
		return false
	}
	return s.ResetAt.IsZero() || now.Before(s.ResetAt)
}
