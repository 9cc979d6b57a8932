package model

import "time"

// Account is the billing/ownership root for assets and workspaces.
type Account struct {
	ID     string `json:"id"`
	Status string `json:"status"` // active | disabled
	Tier   string `json:"tier"`
}

// Workspace scopes collaboration inside an account and carries the tier
// used for upload entitlements when a workspace context is supplied.
type Workspace struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Tier      string `json:"tier"`
}

// WorkspaceMember binds a user to a workspace with a role.
type WorkspaceMember struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
	Role        string `json:"role"` // viewer | editor | admin | owner
}

// AccountAsset is the identity row for an uploaded binary. The row exists
// iff at least one variant row exists; delete ordering enforces this, not a
// database constraint.
type AccountAsset struct {
	AccountID          string    `json:"accountId"`
	AssetID            string    `json:"assetId"`
	WorkspaceID        string    `json:"workspaceId,omitempty"`
	PublicID           string    `json:"publicId,omitempty"`
	WidgetType         string    `json:"widgetType,omitempty"`
	Source             string    `json:"source"`
	OriginalFilename   string    `json:"originalFilename"`
	NormalizedFilename string    `json:"normalizedFilename"`
	ContentType        string    `json:"contentType"`
	SizeBytes          int64     `json:"sizeBytes"`
	SHA256             string    `json:"sha256"`
	CreatedAt          time.Time `json:"createdAt"`
}

// AccountAssetVariant maps one named rendition of an asset to its object
// store key. The key for a given variant is never mutated in place;
// replacement swaps the pointer to a new key atomically.
type AccountAssetVariant struct {
	AccountID   string    `json:"accountId"`
	AssetID     string    `json:"assetId"`
	Variant     string    `json:"variant"`
	StorageKey  string    `json:"key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AccountAssetUsage is a back-reference from a widget config to an asset,
// used to gate destructive deletes and to resync on config rewrites.
type AccountAssetUsage struct {
	AccountID  string `json:"accountId"`
	AssetID    string `json:"assetId"`
	PublicID   string `json:"publicId"`
	ConfigPath string `json:"configPath"`
}
