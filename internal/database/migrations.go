package database

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'active',
    tier TEXT NOT NULL DEFAULT 'free'
);

CREATE TABLE IF NOT EXISTS workspaces (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    tier TEXT NOT NULL DEFAULT 'free'
);

CREATE TABLE IF NOT EXISTS workspace_members (
    workspace_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'viewer',
    PRIMARY KEY (workspace_id, user_id)
);

CREATE TABLE IF NOT EXISTS account_assets (
    account_id TEXT NOT NULL,
    asset_id TEXT NOT NULL,
    workspace_id TEXT NOT NULL DEFAULT '',
    public_id TEXT NOT NULL DEFAULT '',
    widget_type TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL,
    original_filename TEXT NOT NULL DEFAULT '',
    normalized_filename TEXT NOT NULL DEFAULT '',
    content_type TEXT NOT NULL DEFAULT '',
    size_bytes INTEGER NOT NULL DEFAULT 0,
    sha256 TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    PRIMARY KEY (account_id, asset_id)
);

CREATE TABLE IF NOT EXISTS account_asset_variants (
    account_id TEXT NOT NULL,
    asset_id TEXT NOT NULL,
    variant TEXT NOT NULL,
    storage_key TEXT NOT NULL,
    filename TEXT NOT NULL DEFAULT '',
    content_type TEXT NOT NULL DEFAULT '',
    size_bytes INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (account_id, asset_id, variant)
);

CREATE TABLE IF NOT EXISTS account_asset_usage (
    account_id TEXT NOT NULL,
    asset_id TEXT NOT NULL,
    public_id TEXT NOT NULL,
    config_path TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (account_id, asset_id, public_id, config_path)
);

CREATE TABLE IF NOT EXISTS asset_replace_requests (
    idempotency_key TEXT PRIMARY KEY,
    request_hash TEXT NOT NULL,
    account_id TEXT NOT NULL,
    asset_id TEXT NOT NULL,
    variant TEXT NOT NULL,
    old_key TEXT NOT NULL DEFAULT '',
    new_key TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS widget_instance_overlays (
    public_id TEXT NOT NULL,
    layer TEXT NOT NULL,
    layer_key TEXT NOT NULL,
    workspace_id TEXT NOT NULL DEFAULT '',
    ops TEXT NOT NULL DEFAULT '[]',
    user_ops TEXT NOT NULL DEFAULT '[]',
    base_fingerprint TEXT NOT NULL DEFAULT '',
    base_updated_at DATETIME,
    geo_targets TEXT NOT NULL DEFAULT '[]',
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (public_id, layer, layer_key)
);

CREATE TABLE IF NOT EXISTS l10n_publish_state (
    public_id TEXT NOT NULL,
    layer TEXT NOT NULL,
    layer_key TEXT NOT NULL,
    base_fingerprint TEXT NOT NULL DEFAULT '',
    published_fingerprint TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'dirty',
    attempts INTEGER NOT NULL DEFAULT 0,
    next_retry_at DATETIME NOT NULL,
    last_error TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (public_id, layer, layer_key)
);

CREATE TABLE IF NOT EXISTS l10n_overlay_versions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    public_id TEXT NOT NULL,
    layer TEXT NOT NULL,
    layer_key TEXT NOT NULL,
    base_fingerprint TEXT NOT NULL,
    artifact_key TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS l10n_base_snapshots (
    public_id TEXT NOT NULL,
    base_fingerprint TEXT NOT NULL,
    snapshot TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL,
    PRIMARY KEY (public_id, base_fingerprint)
);

CREATE TABLE IF NOT EXISTS instance_enforcement_state (
    public_id TEXT PRIMARY KEY,
    mode TEXT NOT NULL DEFAULT 'frozen',
    period_key TEXT NOT NULL DEFAULT '',
    frozen_at DATETIME NOT NULL,
    reset_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_counters (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT '',
    expires_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_members_user ON workspace_members (user_id);
CREATE INDEX IF NOT EXISTS idx_usage_identity ON account_asset_usage (account_id, asset_id);
CREATE INDEX IF NOT EXISTS idx_usage_public ON account_asset_usage (account_id, public_id);
CREATE INDEX IF NOT EXISTS idx_versions_key ON l10n_overlay_versions (public_id, layer, layer_key, created_at);
CREATE INDEX IF NOT EXISTS idx_publish_due ON l10n_publish_state (state, next_retry_at);
`
