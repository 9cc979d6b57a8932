package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CKsangiacomo/clickeen-sub004/internal/database"
	"github.com/CKsangiacomo/clickeen-sub004/internal/l10n"
	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
)

// Pipeline regenerates per-locale render snapshots and republishes the
// instance pointer. Artifacts and revision documents are content-addressed
// and immutable; the pointer is the single mutation point.
type Pipeline struct {
	DB     database.Database
	Store  storage.Store
	Client *Client
	Log    *slog.Logger
}

type localeArtifacts struct {
	embed  *Artifact
	render *Artifact
	meta   *Artifact
}

// Snapshot regenerates the given locales (default ["en"]) and swaps the
// published pointer. Non-en locales must come back fully localized or the
// entire batch fails; a partially-translated locale set is never published.
func (p *Pipeline) Snapshot(ctx context.Context, publicID string, locales []string) (*model.PublishedPointer, error) {
	now := time.Now().UTC()

	requested := normalizeLocales(locales)

	prevPointer, prevIndex := p.resolvePrevious(ctx, publicID)
	if prevIndex == nil && !containsLocale(requested, "en") {
		// First snapshot for the instance always carries English.
		requested = append([]string{"en"}, requested...)
	}

	if enforcement, err := p.DB.GetEnforcementState(publicID); err == nil && enforcement.Active(now) {
		p.log().Warn("render enforcement active, restricting to en", "publicId", publicID)
		requested = []string{"en"}
	}

	generated := make(map[string]localeArtifacts, len(requested))
	for _, locale := range requested {
		arts, err := p.fetchLocale(ctx, publicID, locale)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s locale %s: %w", publicID, locale, err)
		}
		generated[locale] = arts
	}

	current := map[string]model.RenderEntry{}
	if prevIndex != nil {
		for locale, entry := range prevIndex.Current {
			current[locale] = entry
		}
	}
	for locale, arts := range generated {
		entry, err := p.storeArtifacts(ctx, publicID, arts)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s locale %s: %w", publicID, locale, err)
		}
		current[locale] = entry
	}

	revision := NewRevisionID()
	index := &model.RenderIndex{V: 1, PublicID: publicID, Current: current}
	indexBody, err := l10n.PrettyStableJSON(index)
	if err != nil {
		return nil, fmt.Errorf("encode revision index: %w", err)
	}
	err = p.Store.Put(ctx, RevisionIndexPath(publicID, revision), indexBody, storage.PutOptions{
		ContentType:  "application/json",
		CacheControl: storage.CacheImmutable,
	})
	if err != nil {
		return nil, fmt.Errorf("write revision index: %w", err)
	}

	pointer := &model.PublishedPointer{
		V:         1,
		PublicID:  publicID,
		Revision:  revision,
		UpdatedAt: now.Format(time.RFC3339),
	}
	if prevPointer != nil {
		pointer.PreviousRevision = prevPointer.Revision
	}
	pointerBody, err := l10n.PrettyStableJSON(pointer)
	if err != nil {
		return nil, fmt.Errorf("encode pointer: %w", err)
	}
	// Plain overwrite, no expected-revision check: concurrent publishes for
	// the same instance race last-writer-wins. Either winner references a
	// fully-written revision, so readers never observe a mixed locale set.
	err = p.Store.Put(ctx, PointerPath(publicID), pointerBody, storage.PutOptions{
		ContentType:  "application/json",
		CacheControl: storage.CacheNone,
	})
	if err != nil {
		return nil, fmt.Errorf("write pointer: %w", err)
	}

	// Mutable copy for older tooling; serving reads go through the pointer.
	err = p.Store.Put(ctx, LegacyIndexPath(publicID), indexBody, storage.PutOptions{
		ContentType:  "application/json",
		CacheControl: storage.CacheShort,
	})
	if err != nil {
		p.log().Warn("refresh legacy index", "publicId", publicID, "error", err)
	}

	return pointer, nil
}

// ResolveCurrent follows pointer -> revision index for serving reads.
func (p *Pipeline) ResolveCurrent(ctx context.Context, publicID string) (*model.PublishedPointer, *model.RenderIndex, error) {
	data, _, err := p.Store.Get(ctx, PointerPath(publicID))
	if err != nil {
		return nil, nil, err
	}
	pointer, err := DecodePointer(data, publicID)
	if err != nil {
		return nil, nil, err
	}
	data, _, err = p.Store.Get(ctx, RevisionIndexPath(publicID, pointer.Revision))
	if err != nil {
		return nil, nil, err
	}
	index, err := DecodeRenderIndex(data, publicID)
	if err != nil {
		return nil, nil, err
	}
	return pointer, index, nil
}

// fetchLocale pulls the three renderer artifacts concurrently and applies
// the cross-artifact consistency gate for non-en locales.
func (p *Pipeline) fetchLocale(ctx context.Context, publicID, locale string) (localeArtifacts, error) {
	var arts localeArtifacts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		arts.embed, err = p.Client.FetchEmbed(gctx, publicID, locale)
		return err
	})
	g.Go(func() (err error) {
		arts.render, err = p.Client.FetchRender(gctx, publicID, locale, false)
		return err
	})
	g.Go(func() (err error) {
		arts.meta, err = p.Client.FetchRender(gctx, publicID, locale, true)
		return err
	})
	if err := g.Wait(); err != nil {
		return arts, err
	}

	if locale != "en" {
		for _, art := range []*Artifact{arts.embed, arts.render, arts.meta} {
			if art.EffectiveLocale != locale {
				return arts, fmt.Errorf("renderer served locale %q, wanted %q", art.EffectiveLocale, locale)
			}
			if art.L10nStatus != "fresh" {
				return arts, fmt.Errorf("renderer reported localization status %q", art.L10nStatus)
			}
		}
	}
	return arts, nil
}

func (p *Pipeline) storeArtifacts(ctx context.Context, publicID string, arts localeArtifacts) (model.RenderEntry, error) {
	var entry model.RenderEntry
	for _, item := range []struct {
		artifact *Artifact
		filename string
		hash     *string
	}{
		{arts.embed, EmbedFile, &entry.E},
		{arts.render, RenderFile, &entry.R},
		{arts.meta, MetaFile, &entry.Meta},
	} {
		hash := HashBytes(item.artifact.Body)
		contentType := item.artifact.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		err := p.Store.Put(ctx, ArtifactPath(publicID, hash, item.filename), item.artifact.Body, storage.PutOptions{
			ContentType:  contentType,
			CacheControl: storage.CacheImmutable,
		})
		if err != nil {
			return entry, fmt.Errorf("write %s: %w", item.filename, err)
		}
		*item.hash = hash
	}
	return entry, nil
}

func (p *Pipeline) resolvePrevious(ctx context.Context, publicID string) (*model.PublishedPointer, *model.RenderIndex) {
	pointer, index, err := p.ResolveCurrent(ctx, publicID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.log().Warn("resolve previous snapshot", "publicId", publicID, "error", err)
		}
		return nil, nil
	}
	return pointer, index
}

func (p *Pipeline) log() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

func normalizeLocales(locales []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, raw := range locales {
		locale := l10n.NormalizeLocale(raw)
		if locale == "" || seen[locale] {
			continue
		}
		seen[locale] = true
		out = append(out, locale)
	}
	if len(out) == 0 {
		return []string{"en"}
	}
	return out
}

func containsLocale(locales []string, locale string) bool {
	for _, item := range locales {
		if item == locale {
			return true
		}
	}
	return false
}
