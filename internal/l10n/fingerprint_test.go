package l10n

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableStringifySortsKeysRecursively(t *testing.T) {
	v := map[string]any{
		"b": map[string]any{"z": "1", "a": "2"},
		"a": []any{map[string]any{"y": true, "x": false}},
	}
	assert.Equal(t, `{"a":[{"x":false,"y":true}],"b":{"a":"2","z":"1"}}`, StableStringify(v))
}

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	a := map[string]any{"title": "hi", "theme": map[string]any{"color": "red", "size": "lg"}}
	b := map[string]any{"theme": map[string]any{"size": "lg", "color": "red"}, "title": "hi"}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), 64)
}

func TestNormalizeSHA256Hex(t *testing.T) {
	digest := strings.Repeat("AB", 32)
	assert.Equal(t, strings.ToLower(digest), NormalizeSHA256Hex(" "+digest+" "))
	assert.Equal(t, "", NormalizeSHA256Hex("not-a-digest"))
	assert.Equal(t, "", NormalizeSHA256Hex(strings.Repeat("a", 63)))
}

func TestPrettyStableJSONEndsWithNewline(t *testing.T) {
	body, err := PrettyStableJSON(map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(body), "\n"))
	assert.Contains(t, string(body), "\"k\": \"v\"")
}
