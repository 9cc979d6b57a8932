package database

import (
	"errors"
	"time"

	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
)

// ErrNotFound marks lookups that matched no row.
var ErrNotFound = errors.New("not found")

// ErrIdempotencyConflict marks a replace request that reused an idempotency
// key with a different request payload.
var ErrIdempotencyConflict = errors.New("idempotency key reused with different request")

// ReplaceVariantArgs describes the atomic variant pointer swap.
type ReplaceVariantArgs struct {
	AccountID   string
	AssetID     string
	Variant     string
	NewKey      string
	NewFilename string
	ContentType string
	SizeBytes   int64
	SHA256      string

	// IdempotencyKey plus RequestHash make replays detectable: the same
	// key with the same hash returns the recorded result, the same key
	// with a different hash fails with ErrIdempotencyConflict.
	IdempotencyKey string
	RequestHash    string
}

// ReplaceVariantResult reports the swap outcome. OldKey is the blob the
// caller should clean up; Replayed marks an idempotent re-delivery.
type ReplaceVariantResult struct {
	OldKey   string
	NewKey   string
	Replayed bool
}

// Database is the metadata gateway. Calls are row-level: no transactionality
// is promised across calls, and multi-row mutations are issued by callers in
// a fixed order so partial failures land in the states the integrity
// routines detect. ReplaceAssetVariant is the single transactional swap.
type Database interface {
	// Accounts & workspaces
	GetAccount(accountID string) (*model.Account, error)
	UpsertAccount(a *model.Account) error
	GetWorkspace(workspaceID string) (*model.Workspace, error)
	UpsertWorkspace(w *model.Workspace) error
	UpsertWorkspaceMember(m *model.WorkspaceMember) error
	GetWorkspaceRole(workspaceID, userID string) (string, error)
	// GetAccountRole returns the user's strongest role across the
	// account's workspaces, or "" when the user is in none of them.
	GetAccountRole(accountID, userID string) (string, error)

	// Assets
	CreateAsset(a *model.AccountAsset) error
	GetAsset(accountID, assetID string) (*model.AccountAsset, error)
	ListAccountAssets(accountID string) ([]*model.AccountAsset, error)
	DeleteAsset(accountID, assetID string) error

	// Variants
	CreateAssetVariant(v *model.AccountAssetVariant) error
	GetAssetVariant(accountID, assetID, variant string) (*model.AccountAssetVariant, error)
	ListAssetVariants(accountID, assetID string) ([]*model.AccountAssetVariant, error)
	ListAccountVariants(accountID string) ([]*model.AccountAssetVariant, error)
	DeleteAssetVariants(accountID, assetID string) error
	ReplaceAssetVariant(args ReplaceVariantArgs) (*ReplaceVariantResult, error)

	// Usage
	ListUsagePublicIDs(accountID, assetID string) ([]string, error)
	DeleteAssetUsage(accountID, assetID string) error
	// SyncUsage replaces every usage row for one (account, publicId) pair,
	// called when a widget config is rewritten.
	SyncUsage(accountID, publicID string, refs []model.AccountAssetUsage) error

	// Overlays
	GetOverlay(publicID, layer, layerKey string) (*model.OverlayRow, error)
	ListOverlays(publicID string) ([]*model.OverlayRow, error)
	UpsertOverlay(row *model.OverlayRow) error
	DeleteOverlay(publicID, layer, layerKey string) error

	// Publish state
	GetPublishState(publicID, layer, layerKey string) (*model.PublishState, error)
	UpsertPublishState(st *model.PublishState) error
	ListDuePublishStates(now time.Time, limit int) ([]*model.PublishState, error)

	// Overlay version history
	InsertOverlayVersion(v *model.OverlayVersion) error
	ListOverlayVersions(publicID, layer, layerKey string) ([]*model.OverlayVersion, error)
	// PruneOverlayVersions deletes history beyond keep entries (newest
	// kept) and returns the pruned rows so artifacts can be removed.
	PruneOverlayVersions(publicID, layer, layerKey string, keep int) ([]*model.OverlayVersion, error)
	DeleteOverlayVersions(publicID, layer, layerKey string) error

	// Base snapshots
	GetBaseSnapshot(publicID, baseFingerprint string) (*model.BaseSnapshotRow, error)
	UpsertBaseSnapshot(row *model.BaseSnapshotRow) error

	// Render enforcement
	GetEnforcementState(publicID string) (*model.EnforcementState, error)
	UpsertEnforcementState(st *model.EnforcementState) error

	Close() error
}
