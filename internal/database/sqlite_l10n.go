package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
)

// ---------------------------------------------------------------------------
// Overlays
// ---------------------------------------------------------------------------

func (s *SQLiteDB) GetOverlay(publicID, layer, layerKey string) (*model.OverlayRow, error) {
	row := s.db.QueryRow(`
		SELECT public_id, layer, layer_key, workspace_id, ops, user_ops,
			base_fingerprint, base_updated_at, geo_targets, updated_at
		FROM widget_instance_overlays WHERE public_id = ? AND layer = ? AND layer_key = ?`,
		publicID, layer, layerKey,
	)
	return scanOverlay(row)
}

func (s *SQLiteDB) ListOverlays(publicID string) ([]*model.OverlayRow, error) {
	rows, err := s.db.Query(`
		SELECT public_id, layer, layer_key, workspace_id, ops, user_ops,
			base_fingerprint, base_updated_at, geo_targets, updated_at
		FROM widget_instance_overlays WHERE public_id = ? ORDER BY layer ASC, layer_key ASC`,
		publicID,
	)
	if err != nil {
		return nil, fmt.Errorf("list overlays: %w", err)
	}
	defer rows.Close()

	var overlays []*model.OverlayRow
	for rows.Next() {
		o, err := scanOverlay(rows)
		if err != nil {
			return nil, err
		}
		overlays = append(overlays, o)
	}
	return overlays, rows.Err()
}

func (s *SQLiteDB) UpsertOverlay(row *model.OverlayRow) error {
	opsJSON, err := json.Marshal(emptyIfNilOps(row.Ops))
	if err != nil {
		return fmt.Errorf("marshal ops: %w", err)
	}
	userOpsJSON, err := json.Marshal(emptyIfNilOps(row.UserOps))
	if err != nil {
		return fmt.Errorf("marshal user ops: %w", err)
	}
	geoJSON, err := json.Marshal(emptyIfNilStrings(row.GeoTargets))
	if err != nil {
		return fmt.Errorf("marshal geo targets: %w", err)
	}

	var baseUpdated any
	if row.BaseUpdatedAt != nil {
		baseUpdated = row.BaseUpdatedAt.UTC().Format(time.RFC3339)
	}

	_, err = s.db.Exec(`
		INSERT INTO widget_instance_overlays (public_id, layer, layer_key, workspace_id,
			ops, user_ops, base_fingerprint, base_updated_at, geo_targets, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (public_id, layer, layer_key) DO UPDATE SET
			workspace_id = excluded.workspace_id,
			ops = excluded.ops,
			user_ops = excluded.user_ops,
			base_fingerprint = excluded.base_fingerprint,
			base_updated_at = excluded.base_updated_at,
			geo_targets = excluded.geo_targets,
			updated_at = excluded.updated_at`,
		row.PublicID, row.Layer, row.LayerKey, row.WorkspaceID,
		string(opsJSON), string(userOpsJSON), row.BaseFingerprint, baseUpdated,
		string(geoJSON), row.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert overlay: %w", err)
	}
	return nil
}

func (s *SQLiteDB) DeleteOverlay(publicID, layer, layerKey string) error {
	res, err := s.db.Exec(`
		DELETE FROM widget_instance_overlays WHERE public_id = ? AND layer = ? AND layer_key = ?`,
		publicID, layer, layerKey)
	if err != nil {
		return fmt.Errorf("delete overlay: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOverlay(row rowScanner) (*model.OverlayRow, error) {
	o := &model.OverlayRow{}
	var opsStr, userOpsStr, geoStr, updatedStr string
	var baseUpdated sql.NullString
	err := row.Scan(&o.PublicID, &o.Layer, &o.LayerKey, &o.WorkspaceID,
		&opsStr, &userOpsStr, &o.BaseFingerprint, &baseUpdated, &geoStr, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("overlay: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan overlay: %w", err)
	}
	if err := json.Unmarshal([]byte(opsStr), &o.Ops); err != nil {
		return nil, fmt.Errorf("unmarshal ops: %w", err)
	}
	if err := json.Unmarshal([]byte(userOpsStr), &o.UserOps); err != nil {
		return nil, fmt.Errorf("unmarshal user ops: %w", err)
	}
	if err := json.Unmarshal([]byte(geoStr), &o.GeoTargets); err != nil {
		return nil, fmt.Errorf("unmarshal geo targets: %w", err)
	}
	if baseUpdated.Valid && baseUpdated.String != "" {
		if t, err := time.Parse(time.RFC3339, baseUpdated.String); err == nil {
			o.BaseUpdatedAt = &t
		}
	}
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return o, nil
}

func emptyIfNilOps(ops []model.SetOp) []model.SetOp {
	if ops == nil {
		return []model.SetOp{}
	}
	return ops
}

func emptyIfNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ---------------------------------------------------------------------------
// Publish state
// ---------------------------------------------------------------------------

func (s *SQLiteDB) GetPublishState(publicID, layer, layerKey string) (*model.PublishState, error) {
	row := s.db.QueryRow(`
		SELECT public_id, layer, layer_key, base_fingerprint, published_fingerprint,
			state, attempts, next_retry_at, last_error, updated_at
		FROM l10n_publish_state WHERE public_id = ? AND layer = ? AND layer_key = ?`,
		publicID, layer, layerKey,
	)
	return scanPublishState(row)
}

func (s *SQLiteDB) UpsertPublishState(st *model.PublishState) error {
	_, err := s.db.Exec(`
		INSERT INTO l10n_publish_state (public_id, layer, layer_key, base_fingerprint,
			published_fingerprint, state, attempts, next_retry_at, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (public_id, layer, layer_key) DO UPDATE SET
			base_fingerprint = excluded.base_fingerprint,
			published_fingerprint = excluded.published_fingerprint,
			state = excluded.state,
			attempts = excluded.attempts,
			next_retry_at = excluded.next_retry_at,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		st.PublicID, st.Layer, st.LayerKey, st.BaseFingerprint,
		st.PublishedFingerprint, st.State, st.Attempts,
		st.NextRetryAt.UTC().Format(time.RFC3339), st.LastError,
		st.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert publish state: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListDuePublishStates(now time.Time, limit int) ([]*model.PublishState, error) {
	rows, err := s.db.Query(`
		SELECT public_id, layer, layer_key, base_fingerprint, published_fingerprint,
			state, attempts, next_retry_at, last_error, updated_at
		FROM l10n_publish_state
		WHERE state IN ('dirty', 'failed') AND next_retry_at <= ?
		ORDER BY next_retry_at ASC
		LIMIT ?`,
		now.UTC().Format(time.RFC3339), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due publish states: %w", err)
	}
	defer rows.Close()

	var states []*model.PublishState
	for rows.Next() {
		st, err := scanPublishState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func scanPublishState(row rowScanner) (*model.PublishState, error) {
	st := &model.PublishState{}
	var retryStr, updatedStr string
	err := row.Scan(&st.PublicID, &st.Layer, &st.LayerKey, &st.BaseFingerprint,
		&st.PublishedFingerprint, &st.State, &st.Attempts, &retryStr, &st.LastError, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("publish state: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan publish state: %w", err)
	}
	st.NextRetryAt, _ = time.Parse(time.RFC3339, retryStr)
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return st, nil
}

// ---------------------------------------------------------------------------
// Overlay version history
// ---------------------------------------------------------------------------

func (s *SQLiteDB) InsertOverlayVersion(v *model.OverlayVersion) error {
	res, err := s.db.Exec(`
		INSERT INTO l10n_overlay_versions (public_id, layer, layer_key, base_fingerprint, artifact_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.PublicID, v.Layer, v.LayerKey, v.BaseFingerprint, v.ArtifactKey,
		v.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert overlay version: %w", err)
	}
	v.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteDB) ListOverlayVersions(publicID, layer, layerKey string) ([]*model.OverlayVersion, error) {
	rows, err := s.db.Query(`
		SELECT id, public_id, layer, layer_key, base_fingerprint, artifact_key, created_at
		FROM l10n_overlay_versions
		WHERE public_id = ? AND layer = ? AND layer_key = ?
		ORDER BY created_at DESC, id DESC`,
		publicID, layer, layerKey,
	)
	if err != nil {
		return nil, fmt.Errorf("list overlay versions: %w", err)
	}
	defer rows.Close()
	return collectVersions(rows)
}

func (s *SQLiteDB) PruneOverlayVersions(publicID, layer, layerKey string, keep int) ([]*model.OverlayVersion, error) {
	if keep < 0 {
		keep = 0
	}
	rows, err := s.db.Query(`
		SELECT id, public_id, layer, layer_key, base_fingerprint, artifact_key, created_at
		FROM l10n_overlay_versions
		WHERE public_id = ? AND layer = ? AND layer_key = ?
		ORDER BY created_at DESC, id DESC
		LIMIT -1 OFFSET ?`,
		publicID, layer, layerKey, keep,
	)
	if err != nil {
		return nil, fmt.Errorf("select prunable versions: %w", err)
	}
	pruned, err := collectVersions(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, v := range pruned {
		if _, err := s.db.Exec(`DELETE FROM l10n_overlay_versions WHERE id = ?`, v.ID); err != nil {
			return nil, fmt.Errorf("delete overlay version %d: %w", v.ID, err)
		}
	}
	return pruned, nil
}

func (s *SQLiteDB) DeleteOverlayVersions(publicID, layer, layerKey string) error {
	_, err := s.db.Exec(`
		DELETE FROM l10n_overlay_versions WHERE public_id = ? AND layer = ? AND layer_key = ?`,
		publicID, layer, layerKey)
	if err != nil {
		return fmt.Errorf("delete overlay versions: %w", err)
	}
	return nil
}

func collectVersions(rows *sql.Rows) ([]*model.OverlayVersion, error) {
	var versions []*model.OverlayVersion
	for rows.Next() {
		v := &model.OverlayVersion{}
		var createdStr string
		if err := rows.Scan(&v.ID, &v.PublicID, &v.Layer, &v.LayerKey,
			&v.BaseFingerprint, &v.ArtifactKey, &createdStr); err != nil {
			return nil, fmt.Errorf("scan overlay version: %w", err)
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// ---------------------------------------------------------------------------
// Base snapshots
// ---------------------------------------------------------------------------

func (s *SQLiteDB) GetBaseSnapshot(publicID, baseFingerprint string) (*model.BaseSnapshotRow, error) {
	row := s.db.QueryRow(`
		SELECT public_id, base_fingerprint, snapshot, created_at
		FROM l10n_base_snapshots WHERE public_id = ? AND base_fingerprint = ?`,
		publicID, baseFingerprint,
	)
	snap := &model.BaseSnapshotRow{}
	var snapStr, createdStr string
	err := row.Scan(&snap.PublicID, &snap.BaseFingerprint, &snapStr, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("base snapshot: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get base snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(snapStr), &snap.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal base snapshot: %w", err)
	}
	snap.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return snap, nil
}

func (s *SQLiteDB) UpsertBaseSnapshot(row *model.BaseSnapshotRow) error {
	snapJSON, err := json.Marshal(row.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal base snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO l10n_base_snapshots (public_id, base_fingerprint, snapshot, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (public_id, base_fingerprint) DO UPDATE SET snapshot = excluded.snapshot`,
		row.PublicID, row.BaseFingerprint, string(snapJSON),
		row.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert base snapshot: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Render enforcement
// ---------------------------------------------------------------------------

func (s *SQLiteDB) GetEnforcementState(publicID string) (*model.EnforcementState, error) {
	row := s.db.QueryRow(`
		SELECT public_id, mode, period_key, frozen_at, reset_at
		FROM instance_enforcement_state WHERE public_id = ?`,
		publicID,
	)
	st := &model.EnforcementState{}
	var frozenStr, resetStr string
	err := row.Scan(&st.PublicID, &st.Mode, &st.PeriodKey, &frozenStr, &resetStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get enforcement state: %w", err)
	}
	st.FrozenAt, _ = time.Parse(time.RFC3339, frozenStr)
	st.ResetAt, _ = time.Parse(time.RFC3339, resetStr)
	return st, nil
}

func (s *SQLiteDB) UpsertEnforcementState(st *model.EnforcementState) error {
	_, err := s.db.Exec(`
		INSERT INTO instance_enforcement_state (public_id, mode, period_key, frozen_at, reset_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (public_id) DO UPDATE SET
			mode = excluded.mode,
			period_key = excluded.period_key,
			frozen_at = excluded.frozen_at,
			reset_at = excluded.reset_at`,
		st.PublicID, st.Mode, st.PeriodKey,
		st.FrozenAt.UTC().Format(time.RFC3339), st.ResetAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert enforcement state: %w", err)
	}
	return nil
}
