// Package l10n implements the localization overlay engine: deterministic
// base fingerprinting, the layer model, drift-tolerant overlay resolution,
// and the publish state machine.
package l10n

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var sha256HexRe = regexp.MustCompile(`^[a-f0-9]{64}$`)

// StableStringify serializes a decoded JSON value with object keys sorted
// recursively, so semantically identical content always produces the same
// bytes regardless of field insertion order.
func StableStringify(v any) string {
	var b strings.Builder
	writeStable(&b, v)
	return b.String()
}

func writeStable(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteByte(':')
			writeStable(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeStable(b, item)
		}
		b.WriteByte(']')
	default:
		out, err := json.Marshal(val)
		if err != nil {
			b.WriteString("null")
			return
		}
		b.Write(out)
	}
}

// Fingerprint returns sha256(StableStringify(v)) as lowercase hex.
func Fingerprint(v any) string {
	sum := sha256.Sum256([]byte(StableStringify(v)))
	return hex.EncodeToString(sum[:])
}

// SHA256Hex returns the lowercase hex digest of raw bytes.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NormalizeSHA256Hex validates and lowercases a sha256 hex string,
// returning "" when the input is not one.
func NormalizeSHA256Hex(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if !sha256HexRe.MatchString(value) {
		return ""
	}
	return value
}

// PrettyStableJSON renders v as indented JSON with sorted keys and a
// trailing newline, the canonical artifact encoding.
func PrettyStableJSON(v any) ([]byte, error) {
	stable := StableStringify(v)
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(stable), "", "  "); err != nil {
		return nil, fmt.Errorf("indent stable json: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
