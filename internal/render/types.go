package render

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
)

// Artifact filenames within a content-hash directory.
const (
	EmbedFile  = "e.html"
	RenderFile = "r.json"
	MetaFile   = "meta.json"
)

var (
	revisionRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{7,63}$`)
	sha256Re   = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

// Object-store layout for one instance's render snapshots. Artifact and
// revision paths are immutable once written; only the pointer and the
// legacy index mutate.

func ArtifactPath(publicID, contentHash, filename string) string {
	return fmt.Sprintf("renders/instances/%s/%s/%s", publicID, contentHash, filename)
}

func RevisionIndexPath(publicID, revision string) string {
	return fmt.Sprintf("renders/instances/%s/revisions/%s/index.json", publicID, revision)
}

func PointerPath(publicID string) string {
	return fmt.Sprintf("renders/instances/%s/published.json", publicID)
}

// LegacyIndexPath is the mutable index document kept for older tooling.
// Serving reads go through the pointer, never through this file.
func LegacyIndexPath(publicID string) string {
	return fmt.Sprintf("renders/instances/%s/index.json", publicID)
}

// NewRevisionID mints an opaque revision identifier.
func NewRevisionID() string {
	return "rev-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidRevision reports whether a revision id has the expected shape.
func ValidRevision(revision string) bool {
	return revisionRe.MatchString(revision)
}

// HashBytes returns the content-address for an artifact body.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DecodeRenderIndex parses a revision index, failing closed: entries with
// malformed hashes or empty locales are rejected wholesale since a revision
// document is written in one piece and should never be partially valid.
func DecodeRenderIndex(data []byte, publicID string) (*model.RenderIndex, error) {
	var idx model.RenderIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	if idx.V != 1 {
		return nil, fmt.Errorf("render index: v must be 1")
	}
	if idx.PublicID != "" && idx.PublicID != publicID {
		return nil, fmt.Errorf("render index: publicId mismatch")
	}
	if idx.Current == nil {
		return nil, fmt.Errorf("render index: current must be an object")
	}
	for locale, entry := range idx.Current {
		if strings.TrimSpace(locale) == "" {
			return nil, fmt.Errorf("render index: empty locale key")
		}
		for _, hash := range []string{entry.E, entry.R, entry.Meta} {
			if !sha256Re.MatchString(hash) {
				return nil, fmt.Errorf("render index: locale %s has a malformed content hash", locale)
			}
		}
	}
	idx.PublicID = publicID
	return &idx, nil
}

// DecodePointer parses the published pointer, failing closed.
func DecodePointer(data []byte, publicID string) (*model.PublishedPointer, error) {
	var ptr model.PublishedPointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return nil, fmt.Errorf("published pointer: %w", err)
	}
	if ptr.V != 1 {
		return nil, fmt.Errorf("published pointer: v must be 1")
	}
	if ptr.PublicID != "" && ptr.PublicID != publicID {
		return nil, fmt.Errorf("published pointer: publicId mismatch")
	}
	if !ValidRevision(ptr.Revision) {
		return nil, fmt.Errorf("published pointer: invalid revision %q", ptr.Revision)
	}
	ptr.PublicID = publicID
	return &ptr, nil
}
