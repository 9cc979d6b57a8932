package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	_ "modernc.org/sqlite"
)

// Compile-time check that SQLiteDB implements Database.
var _ Database = (*SQLiteDB)(nil)

// SQLiteDB implements Database backed by SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) an SQLite database at dsn and runs migrations.
// For in-memory use pass "file::memory:?cache=shared".
func NewSQLiteDB(dsn string) (*SQLiteDB, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	} else if !strings.Contains(dsn, "_journal_mode") {
		dsn += "&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Accounts & workspaces
// ---------------------------------------------------------------------------

func (s *SQLiteDB) GetAccount(accountID string) (*model.Account, error) {
	a := &model.Account{}
	err := s.db.QueryRow(`SELECT id, status, tier FROM accounts WHERE id = ?`, accountID).
		Scan(&a.ID, &a.Status, &a.Tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *SQLiteDB) UpsertAccount(a *model.Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, status, tier) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, tier = excluded.tier`,
		a.ID, a.Status, a.Tier,
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetWorkspace(workspaceID string) (*model.Workspace, error) {
	w := &model.Workspace{}
	err := s.db.QueryRow(`SELECT id, account_id, tier FROM workspaces WHERE id = ?`, workspaceID).
		Scan(&w.ID, &w.AccountID, &w.Tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workspace %s: %w", workspaceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return w, nil
}

func (s *SQLiteDB) UpsertWorkspace(w *model.Workspace) error {
	_, err := s.db.Exec(`
		INSERT INTO workspaces (id, account_id, tier) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET account_id = excluded.account_id, tier = excluded.tier`,
		w.ID, w.AccountID, w.Tier,
	)
	if err != nil {
		return fmt.Errorf("upsert workspace: %w", err)
	}
	return nil
}

func (s *SQLiteDB) UpsertWorkspaceMember(m *model.WorkspaceMember) error {
	_, err := s.db.Exec(`
		INSERT INTO workspace_members (workspace_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = excluded.role`,
		m.WorkspaceID, m.UserID, m.Role,
	)
	if err != nil {
		return fmt.Errorf("upsert workspace member: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetWorkspaceRole(workspaceID, userID string) (string, error) {
	var role string
	err := s.db.QueryRow(`
		SELECT role FROM workspace_members WHERE workspace_id = ? AND user_id = ?`,
		workspaceID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get workspace role: %w", err)
	}
	return role, nil
}

func (s *SQLiteDB) GetAccountRole(accountID, userID string) (string, error) {
	rows, err := s.db.Query(`
		SELECT m.role FROM workspace_members m
		JOIN workspaces w ON w.id = m.workspace_id
		WHERE w.account_id = ? AND m.user_id = ?`,
		accountID, userID,
	)
	if err != nil {
		return "", fmt.Errorf("get account role: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return "", fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return model.MaxRole(roles), rows.Err()
}

// ---------------------------------------------------------------------------
// Assets
// ---------------------------------------------------------------------------

func (s *SQLiteDB) CreateAsset(a *model.AccountAsset) error {
	_, err := s.db.Exec(`
		INSERT INTO account_assets (account_id, asset_id, workspace_id, public_id, widget_type,
			source, original_filename, normalized_filename, content_type, size_bytes, sha256, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AccountID, a.AssetID, a.WorkspaceID, a.PublicID, a.WidgetType,
		a.Source, a.OriginalFilename, a.NormalizedFilename, a.ContentType,
		a.SizeBytes, a.SHA256, a.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetAsset(accountID, assetID string) (*model.AccountAsset, error) {
	row := s.db.QueryRow(`
		SELECT account_id, asset_id, workspace_id, public_id, widget_type, source,
			original_filename, normalized_filename, content_type, size_bytes, sha256, created_at
		FROM account_assets WHERE account_id = ? AND asset_id = ?`,
		accountID, assetID,
	)
	return scanAsset(row)
}

func (s *SQLiteDB) ListAccountAssets(accountID string) ([]*model.AccountAsset, error) {
	rows, err := s.db.Query(`
		SELECT account_id, asset_id, workspace_id, public_id, widget_type, source,
			original_filename, normalized_filename, content_type, size_bytes, sha256, created_at
		FROM account_assets WHERE account_id = ? ORDER BY created_at ASC, asset_id ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []*model.AccountAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (s *SQLiteDB) DeleteAsset(accountID, assetID string) error {
	res, err := s.db.Exec(`DELETE FROM account_assets WHERE account_id = ? AND asset_id = ?`,
		accountID, assetID)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return checkRowsAffected(res, "asset")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*model.AccountAsset, error) {
	a := &model.AccountAsset{}
	var createdStr string
	err := row.Scan(&a.AccountID, &a.AssetID, &a.WorkspaceID, &a.PublicID, &a.WidgetType,
		&a.Source, &a.OriginalFilename, &a.NormalizedFilename, &a.ContentType,
		&a.SizeBytes, &a.SHA256, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return a, nil
}

// ---------------------------------------------------------------------------
// Variants
// ---------------------------------------------------------------------------

func (s *SQLiteDB) CreateAssetVariant(v *model.AccountAssetVariant) error {
	_, err := s.db.Exec(`
		INSERT INTO account_asset_variants (account_id, asset_id, variant, storage_key,
			filename, content_type, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.AccountID, v.AssetID, v.Variant, v.StorageKey,
		v.Filename, v.ContentType, v.SizeBytes, v.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert variant: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetAssetVariant(accountID, assetID, variant string) (*model.AccountAssetVariant, error) {
	row := s.db.QueryRow(`
		SELECT account_id, asset_id, variant, storage_key, filename, content_type, size_bytes, created_at
		FROM account_asset_variants WHERE account_id = ? AND asset_id = ? AND variant = ?`,
		accountID, assetID, variant,
	)
	return scanVariant(row)
}

func (s *SQLiteDB) ListAssetVariants(accountID, assetID string) ([]*model.AccountAssetVariant, error) {
	return s.queryVariants(`
		SELECT account_id, asset_id, variant, storage_key, filename, content_type, size_bytes, created_at
		FROM account_asset_variants WHERE account_id = ? AND asset_id = ? ORDER BY variant ASC`,
		accountID, assetID)
}

func (s *SQLiteDB) ListAccountVariants(accountID string) ([]*model.AccountAssetVariant, error) {
	return s.queryVariants(`
		SELECT account_id, asset_id, variant, storage_key, filename, content_type, size_bytes, created_at
		FROM account_asset_variants WHERE account_id = ? ORDER BY asset_id ASC, variant ASC`,
		accountID)
}

func (s *SQLiteDB) queryVariants(query string, args ...any) ([]*model.AccountAssetVariant, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var variants []*model.AccountAssetVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (s *SQLiteDB) DeleteAssetVariants(accountID, assetID string) error {
	_, err := s.db.Exec(`DELETE FROM account_asset_variants WHERE account_id = ? AND asset_id = ?`,
		accountID, assetID)
	if err != nil {
		return fmt.Errorf("delete variants: %w", err)
	}
	return nil
}

func scanVariant(row rowScanner) (*model.AccountAssetVariant, error) {
	v := &model.AccountAssetVariant{}
	var createdStr string
	err := row.Scan(&v.AccountID, &v.AssetID, &v.Variant, &v.StorageKey,
		&v.Filename, &v.ContentType, &v.SizeBytes, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variant: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan variant: %w", err)
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return v, nil
}

// ReplaceAssetVariant swaps a variant's storage pointer in one transaction.
// The idempotency ledger makes redelivery of the same request a no-op and
// rejects a reused key carrying different content.
func (s *SQLiteDB) ReplaceAssetVariant(args ReplaceVariantArgs) (*ReplaceVariantResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if args.IdempotencyKey != "" {
		var priorHash, priorOld, priorNew string
		err := tx.QueryRow(`
			SELECT request_hash, old_key, new_key FROM asset_replace_requests
			WHERE idempotency_key = ?`, args.IdempotencyKey,
		).Scan(&priorHash, &priorOld, &priorNew)
		if err == nil {
			if priorHash != args.RequestHash {
				return nil, ErrIdempotencyConflict
			}
			return &ReplaceVariantResult{OldKey: priorOld, NewKey: priorNew, Replayed: true}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("check replace ledger: %w", err)
		}
	}

	var oldKey string
	err = tx.QueryRow(`
		SELECT storage_key FROM account_asset_variants
		WHERE account_id = ? AND asset_id = ? AND variant = ?`,
		args.AccountID, args.AssetID, args.Variant,
	).Scan(&oldKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variant: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load variant for replace: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE account_asset_variants
		SET storage_key = ?, filename = ?, content_type = ?, size_bytes = ?
		WHERE account_id = ? AND asset_id = ? AND variant = ?`,
		args.NewKey, args.NewFilename, args.ContentType, args.SizeBytes,
		args.AccountID, args.AssetID, args.Variant,
	)
	if err != nil {
		return nil, fmt.Errorf("swap variant pointer: %w", err)
	}

	if args.Variant == "original" {
		_, err = tx.Exec(`
			UPDATE account_assets
			SET normalized_filename = ?, content_type = ?, size_bytes = ?, sha256 = ?
			WHERE account_id = ? AND asset_id = ?`,
			args.NewFilename, args.ContentType, args.SizeBytes, args.SHA256,
			args.AccountID, args.AssetID,
		)
		if err != nil {
			return nil, fmt.Errorf("refresh asset row: %w", err)
		}
	}

	if args.IdempotencyKey != "" {
		_, err = tx.Exec(`
			INSERT INTO asset_replace_requests (idempotency_key, request_hash, account_id,
				asset_id, variant, old_key, new_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			args.IdempotencyKey, args.RequestHash, args.AccountID,
			args.AssetID, args.Variant, oldKey, args.NewKey,
			time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return nil, fmt.Errorf("record replace request: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace: %w", err)
	}
	return &ReplaceVariantResult{OldKey: oldKey, NewKey: args.NewKey}, nil
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

func (s *SQLiteDB) ListUsagePublicIDs(accountID, assetID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT public_id FROM account_asset_usage
		WHERE account_id = ? AND asset_id = ? ORDER BY public_id ASC`,
		accountID, assetID,
	)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteDB) DeleteAssetUsage(accountID, assetID string) error {
	_, err := s.db.Exec(`DELETE FROM account_asset_usage WHERE account_id = ? AND asset_id = ?`,
		accountID, assetID)
	if err != nil {
		return fmt.Errorf("delete usage: %w", err)
	}
	return nil
}

func (s *SQLiteDB) SyncUsage(accountID, publicID string, refs []model.AccountAssetUsage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin usage sync: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM account_asset_usage WHERE account_id = ? AND public_id = ?`,
		accountID, publicID)
	if err != nil {
		return fmt.Errorf("clear usage: %w", err)
	}
	for _, ref := range refs {
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO account_asset_usage (account_id, asset_id, public_id, config_path)
			VALUES (?, ?, ?, ?)`,
			accountID, ref.AssetID, publicID, ref.ConfigPath,
		)
		if err != nil {
			return fmt.Errorf("insert usage: %w", err)
		}
	}
	return tx.Commit()
}

func checkRowsAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
