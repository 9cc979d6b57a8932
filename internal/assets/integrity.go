package assets

import (
	"context"
	"errors"
	"sort"

	"github.com/CKsangiacomo/clickeen-sub004/internal/api"
	"github.com/CKsangiacomo/clickeen-sub004/internal/assetkey"
	"github.com/CKsangiacomo/clickeen-sub004/internal/database"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
)

// integritySampleCap bounds how many offending keys a report carries.
const integritySampleCap = 50

// IdentityReport is the DB-vs-blob diff for one asset.
type IdentityReport struct {
	AccountID string `json:"accountId"`
	AssetID   string `json:"assetId"`
	Variants  int    `json:"variants"`
	Blobs     int    `json:"blobs"`

	// MissingBlobs are variant pointers whose blob is gone; OrphanBlobs are
	// blobs no variant points at. Both are capped samples.
	MissingBlobs []string `json:"missingInStore,omitempty"`
	OrphanBlobs  []string `json:"orphanInStore,omitempty"`

	// VariantsMissing marks an asset row with zero variant rows.
	VariantsMissing bool `json:"variantsMissingForAsset,omitempty"`

	Truncated bool `json:"truncated,omitempty"`
}

// Drifted reports whether the two stores disagree for this identity.
func (r *IdentityReport) Drifted() bool {
	return len(r.MissingBlobs) > 0 || len(r.OrphanBlobs) > 0 || r.VariantsMissing
}

// AccountReport mirrors the identity diff across a whole account namespace.
type AccountReport struct {
	AccountID string `json:"accountId"`
	Assets    int    `json:"assets"`
	Variants  int    `json:"variants"`
	Blobs     int    `json:"blobs"`

	MissingBlobs            []string `json:"missingInStore,omitempty"`
	OrphanBlobs             []string `json:"orphanInStore,omitempty"`
	VariantsMissingForAsset []string `json:"variantsMissingForAsset,omitempty"`

	Truncated bool `json:"truncated,omitempty"`
}

// CheckIdentity diffs one asset's variant pointers against the blobs under
// its identity prefix.
func (s *Service) CheckIdentity(ctx context.Context, accountID, assetID string) (*IdentityReport, error) {
	if !assetkey.IsUUID(accountID) || !assetkey.IsUUID(assetID) {
		return nil, api.ErrNotFound("errors.asset.notFound")
	}
	if _, err := s.DB.GetAsset(accountID, assetID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, api.ErrNotFound("errors.asset.notFound")
		}
		return nil, api.ErrInternal("errors.asset.lookupFailed", err)
	}

	variants, err := s.DB.ListAssetVariants(accountID, assetID)
	if err != nil {
		return nil, api.ErrInternal("errors.asset.lookupFailed", err)
	}
	pointerKeys := map[string]bool{}
	for _, v := range variants {
		pointerKeys[v.StorageKey] = true
	}

	blobKeys, err := s.listKeys(ctx, assetkey.IdentityPrefix(accountID, assetID))
	if err != nil {
		return nil, api.ErrInternal("errors.asset.integrityFailed", err)
	}

	report := &IdentityReport{
		AccountID:       accountID,
		AssetID:         assetID,
		Variants:        len(variants),
		Blobs:           len(blobKeys),
		VariantsMissing: len(variants) == 0,
	}
	report.MissingBlobs, report.OrphanBlobs, report.Truncated = diffKeys(pointerKeys, blobKeys)
	return report, nil
}

// CheckAccount runs the same diff across every asset the account owns.
// Used by periodic audits rather than the serving path.
func (s *Service) CheckAccount(ctx context.Context, accountID string) (*AccountReport, error) {
	if !assetkey.IsUUID(accountID) {
		return nil, api.ErrNotFound("errors.account.notFound")
	}
	if _, err := s.DB.GetAccount(accountID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, api.ErrNotFound("errors.account.notFound")
		}
		return nil, api.ErrInternal("errors.account.lookupFailed", err)
	}

	assets, err := s.DB.ListAccountAssets(accountID)
	if err != nil {
		return nil, api.ErrInternal("errors.asset.lookupFailed", err)
	}
	variants, err := s.DB.ListAccountVariants(accountID)
	if err != nil {
		return nil, api.ErrInternal("errors.asset.lookupFailed", err)
	}

	pointerKeys := map[string]bool{}
	variantsPerAsset := map[string]int{}
	for _, v := range variants {
		pointerKeys[v.StorageKey] = true
		variantsPerAsset[v.AssetID]++
	}

	blobKeys, err := s.listKeys(ctx, assetkey.AccountPrefix(accountID))
	if err != nil {
		return nil, api.ErrInternal("errors.asset.integrityFailed", err)
	}

	report := &AccountReport{
		AccountID: accountID,
		Assets:    len(assets),
		Variants:  len(variants),
		Blobs:     len(blobKeys),
	}
	report.MissingBlobs, report.OrphanBlobs, report.Truncated = diffKeys(pointerKeys, blobKeys)
	for _, a := range assets {
		if variantsPerAsset[a.AssetID] == 0 {
			if len(report.VariantsMissingForAsset) >= integritySampleCap {
				report.Truncated = true
				break
			}
			report.VariantsMissingForAsset = append(report.VariantsMissingForAsset, a.AssetID)
		}
	}
	return report, nil
}

func (s *Service) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	cursor := ""
	for {
		page, err := s.Store.List(ctx, storage.ListOptions{Prefix: prefix, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			keys = append(keys, obj.Key)
		}
		if !page.Truncated {
			return keys, nil
		}
		cursor = page.Cursor
	}
}

func diffKeys(pointerKeys map[string]bool, blobKeys []string) (missing, orphan []string, truncated bool) {
	blobSet := map[string]bool{}
	for _, key := range blobKeys {
		blobSet[key] = true
		if !pointerKeys[key] {
			if len(orphan) >= integritySampleCap {
				truncated = true
				continue
			}
			orphan = append(orphan, key)
		}
	}
	for key := range pointerKeys {
		if !blobSet[key] {
			if len(missing) >= integritySampleCap {
				truncated = true
				continue
			}
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing, orphan, truncated
}
