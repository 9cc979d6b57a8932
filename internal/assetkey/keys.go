// Package assetkey owns the canonical object-store key and public path
// schemes for account assets. Builders and parsers round-trip exactly;
// legacy key shapes are accepted on reads only.
package assetkey

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// CanonicalPrefix roots every account asset key in the object store.
const CanonicalPrefix = "assets/versions/"

// PublicPathPrefix is the HTTP prefix that serves percent-encoded keys.
const PublicPathPrefix = "/assets/v/"

// DefaultVariant is the implicit rendition name omitted from keys.
const DefaultVariant = "original"

// legacyStorePrefix is an old bucket-mounted shape still seen in stored
// config references. Accepted on reads, never produced.
const legacyStorePrefix = "objects/"

var (
	uuidRe    = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	variantRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)
	extRe     = regexp.MustCompile(`^[a-z0-9]{1,8}$`)
	slugRe    = regexp.MustCompile(`[^a-z0-9]+`)
	hexRe     = regexp.MustCompile(`[^a-f0-9]`)
)

// IsUUID reports whether s is an RFC-shaped UUID. Case-insensitive so the
// dev environment's deterministic uppercase ids pass.
func IsUUID(s string) bool {
	return uuidRe.MatchString(strings.ToLower(s))
}

// ValidVariant reports whether s is an acceptable variant slug.
func ValidVariant(s string) bool {
	return variantRe.MatchString(s)
}

// Identity names one stored asset.
type Identity struct {
	AccountID string
	AssetID   string
}

// BuildKey returns the canonical object-store key for one variant of an
// asset. The "original" variant segment is omitted.
func BuildKey(accountID, assetID, variant, filename string) string {
	v := strings.ToLower(strings.TrimSpace(variant))
	if v == "" || v == DefaultVariant {
		return fmt.Sprintf("%s%s/%s/%s", CanonicalPrefix, accountID, assetID, filename)
	}
	return fmt.Sprintf("%s%s/%s/%s/%s", CanonicalPrefix, accountID, assetID, v, filename)
}

// BuildReplaceKey returns a fresh key for replacement content, prefixing the
// filename with the first 12 hex chars of the content digest so the new key
// never collides with the one being replaced.
func BuildReplaceKey(accountID, assetID, variant, filename, contentSHA256 string) string {
	digest := hexRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(contentSHA256)), "")
	if len(digest) > 12 {
		digest = digest[:12]
	}
	if digest == "" {
		digest = "replace"
	}
	return BuildKey(accountID, assetID, variant, digest+"-"+filename)
}

// PublicPath returns the CDN-facing URL path for a canonical key. Slashes
// inside the key are percent-encoded so the key travels as one segment.
func PublicPath(key string) string {
	return PublicPathPrefix + url.PathEscape(key)
}

// PointerPath returns the mutable pointer-read path for an identity, which
// serves the primary variant without a version token.
func PointerPath(accountID, assetID string) string {
	return fmt.Sprintf("/assets/p/%s/%s", accountID, assetID)
}

// NormalizeReadKey canonicalizes a requested key or path. It accepts the
// canonical shape and the legacy store-prefixed shape, and returns "" for
// anything else. Write paths must use BuildKey; this is read-only tolerance.
func NormalizeReadKey(raw string) string {
	key := strings.TrimLeft(strings.TrimSpace(raw), "/")
	if strings.HasPrefix(key, legacyStorePrefix+CanonicalPrefix) {
		key = key[len(legacyStorePrefix):]
	}
	if !strings.HasPrefix(key, CanonicalPrefix) {
		return ""
	}
	parts := splitClean(key[len(CanonicalPrefix):])
	switch len(parts) {
	case 3:
		return BuildKey(parts[0], parts[1], DefaultVariant, parts[2])
	case 4:
		return BuildKey(parts[0], parts[1], parts[2], parts[3])
	}
	return ""
}

// ParseIdentity extracts the account/asset pair from a key in any accepted
// read shape. It is the exact inverse of BuildKey for canonical keys.
func ParseIdentity(key string) (Identity, bool) {
	normalized := NormalizeReadKey(key)
	if normalized == "" {
		return Identity{}, false
	}
	parts := splitClean(normalized[len(CanonicalPrefix):])
	if len(parts) != 3 && len(parts) != 4 {
		return Identity{}, false
	}
	if !IsUUID(parts[0]) || !IsUUID(parts[1]) {
		return Identity{}, false
	}
	return Identity{AccountID: parts[0], AssetID: parts[1]}, true
}

// ParseKey splits a key in any accepted read shape into its identity,
// variant, and filename.
func ParseKey(key string) (Identity, string, string, bool) {
	normalized := NormalizeReadKey(key)
	if normalized == "" {
		return Identity{}, "", "", false
	}
	parts := splitClean(normalized[len(CanonicalPrefix):])
	if !IsUUID(parts[0]) || !IsUUID(parts[1]) {
		return Identity{}, "", "", false
	}
	id := Identity{AccountID: parts[0], AssetID: parts[1]}
	if len(parts) == 4 {
		return id, parts[2], parts[3], true
	}
	return id, DefaultVariant, parts[2], true
}

// IdentityPrefix returns the listing prefix covering every variant blob of
// one asset.
func IdentityPrefix(accountID, assetID string) string {
	return fmt.Sprintf("%s%s/%s/", CanonicalPrefix, accountID, assetID)
}

// AccountPrefix returns the listing prefix covering an account's namespace.
func AccountPrefix(accountID string) string {
	return CanonicalPrefix + accountID + "/"
}

func splitClean(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "/") {
		p = strings.TrimSpace(p)
		if p == "" || p == "." || p == ".." {
			continue
		}
		out = append(out, p)
	}
	return out
}

// PickExtension chooses a filename extension from the original name when it
// looks sane, else from the content type, else "bin".
func PickExtension(filename, contentType string) string {
	name := strings.TrimSpace(filename)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		ext := strings.ToLower(name[idx+1:])
		if extRe.MatchString(ext) {
			return ext
		}
	}
	if ext := extFromMime(contentType); ext != "" {
		return ext
	}
	return "bin"
}

// SanitizeFilename normalizes an upload filename into a lowercase slug stem
// plus a safe extension. A stem that collapses to nothing becomes "upload";
// a stem equal to the variant name becomes "file" so keys stay unambiguous.
func SanitizeFilename(filename, ext, variant string) string {
	raw := strings.TrimSpace(filename)
	if idx := strings.LastIndexAny(raw, `\/`); idx >= 0 {
		raw = raw[idx+1:]
	}
	if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
		raw = raw[:idx]
	}
	if idx := strings.LastIndex(raw, "."); idx >= 0 {
		raw = raw[:idx]
	}
	stem := trimDashes(slugRe.ReplaceAllString(strings.ToLower(raw), "-"))
	variantStem := trimDashes(slugRe.ReplaceAllString(strings.ToLower(variant), "-"))
	if stem == "" {
		stem = "upload"
	}
	if stem == variantStem {
		stem = "file"
	}
	if len(stem) > 64 {
		stem = stem[:64]
	}
	safeExt := strings.ToLower(strings.TrimSpace(ext))
	safeExt = keepAlnum(safeExt)
	if safeExt == "" {
		safeExt = "bin"
	}
	return stem + "." + safeExt
}

func trimDashes(s string) string {
	return strings.Trim(s, "-")
}

func keepAlnum(s string) string {
	var b strings.Builder
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func extFromMime(contentType string) string {
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	switch mt {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/svg+xml":
		return "svg"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "application/pdf":
		return "pdf"
	}
	return ""
}

// GuessContentType maps a filename extension to a serving content type.
func GuessContentType(ext string) string {
	switch strings.ToLower(ext) {
	case "css":
		return "text/css; charset=utf-8"
	case "js":
		return "text/javascript; charset=utf-8"
	case "html":
		return "text/html; charset=utf-8"
	case "json":
		return "application/json; charset=utf-8"
	case "svg":
		return "image/svg+xml; charset=utf-8"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "pdf":
		return "application/pdf"
	case "woff2":
		return "font/woff2"
	case "woff":
		return "font/woff"
	case "otf":
		return "font/otf"
	case "ttf":
		return "font/ttf"
	}
	return "application/octet-stream"
}
