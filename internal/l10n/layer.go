package l10n

import (
	"regexp"
	"sort"
	"strings"

	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
)

// MaxLayerApplications caps how many overlay targets apply per request.
const MaxLayerApplications = 8

var (
	localeRe     = regexp.MustCompile(`^[a-z]{2,3}(?:-[a-z0-9]+)*$`)
	countryRe    = regexp.MustCompile(`^[A-Z]{2}$`)
	slugKeyRe    = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	experimentRe = regexp.MustCompile(`^exp_[a-z0-9][a-z0-9_-]*:[a-z0-9][a-z0-9_-]*$`)
	behaviorRe   = regexp.MustCompile(`^behavior_[a-z0-9][a-z0-9_-]*$`)
)

var prohibitedSegments = map[string]bool{
	"__proto__":   true,
	"prototype":   true,
	"constructor": true,
}

// NormalizeLocale lowercases and validates a locale token ("es", "pt-br").
// Returns "" when the input is not a locale.
func NormalizeLocale(raw string) string {
	value := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
	if !localeRe.MatchString(value) {
		return ""
	}
	return value
}

// NormalizeCountry validates an ISO-3166 alpha-2 code, uppercased.
func NormalizeCountry(raw string) string {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if !countryRe.MatchString(value) {
		return ""
	}
	return value
}

// NormalizeGeoCountries validates a geo-target country list, deduplicated in
// input order. Returns nil when nothing survives.
func NormalizeGeoCountries(raw []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, code := range raw {
		c := NormalizeCountry(code)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// NormalizeLayer validates a layer name.
func NormalizeLayer(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, layer := range model.LayerOrder {
		if value == layer {
			return value
		}
	}
	return ""
}

// NormalizeLayerKey validates and canonicalizes a key for its layer.
// Returns "" when the key is not valid for the layer.
func NormalizeLayerKey(layer, raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	switch layer {
	case model.LayerLocale:
		return NormalizeLocale(value)
	case model.LayerGeo:
		return NormalizeCountry(value)
	case model.LayerIndustry, model.LayerAccount:
		lower := strings.ToLower(value)
		if slugKeyRe.MatchString(lower) {
			return lower
		}
	case model.LayerExperiment:
		lower := strings.ToLower(value)
		if experimentRe.MatchString(lower) {
			return lower
		}
	case model.LayerBehavior:
		lower := strings.ToLower(value)
		if behaviorRe.MatchString(lower) {
			return lower
		}
	case model.LayerUser:
		if value == "global" {
			return "global"
		}
		return NormalizeLocale(value)
	}
	return ""
}

// HasProhibitedSegment reports whether any dotted segment of path is a
// prototype-poisoning name.
func HasProhibitedSegment(path string) bool {
	for _, seg := range strings.Split(path, ".") {
		if prohibitedSegments[seg] {
			return true
		}
	}
	return false
}

// LocaleCandidates returns the preference order for a requested locale
// against a supported set: exact match first, then the bare language.
func LocaleCandidates(raw string, supported map[string]bool) []string {
	normalized := NormalizeLocale(raw)
	if normalized == "" {
		return nil
	}
	base := strings.SplitN(normalized, "-", 2)[0]
	candidates := []string{normalized}
	if base != normalized {
		candidates = append(candidates, base)
	}
	var out []string
	for _, c := range candidates {
		if supported[c] {
			out = append(out, c)
		}
	}
	return out
}

// SortExperimentKeys orders experiment keys by (expId asc, variant asc).
func SortExperimentKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Slice(out, func(i, j int) bool {
		aID, aVar := splitExperimentKey(out[i])
		bID, bVar := splitExperimentKey(out[j])
		if aID == bID {
			return aVar < bVar
		}
		return aID < bID
	})
	return out
}

func splitExperimentKey(key string) (string, string) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, ""
}
