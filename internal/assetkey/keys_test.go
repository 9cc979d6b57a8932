package assetkey

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKeyOmitsOriginalVariant(t *testing.T) {
	key := BuildKey("acct", "asset", "original", "logo.png")
	assert.Equal(t, "assets/versions/acct/asset/logo.png", key)

	key = BuildKey("acct", "asset", "thumb", "logo.png")
	assert.Equal(t, "assets/versions/acct/asset/thumb/logo.png", key)
}

func TestParseIdentityRoundTrip(t *testing.T) {
	accountID := uuid.NewString()
	assetID := uuid.NewString()

	for _, variant := range []string{"original", "thumb", "hero_2x"} {
		key := BuildKey(accountID, assetID, variant, "photo.jpg")
		id, ok := ParseIdentity(key)
		require.True(t, ok, "variant %q", variant)
		assert.Equal(t, accountID, id.AccountID)
		assert.Equal(t, assetID, id.AssetID)
	}
}

func TestParseIdentityRejectsNonUUIDs(t *testing.T) {
	_, ok := ParseIdentity("assets/versions/not-a-uuid/also-not/file.png")
	assert.False(t, ok)
}

func TestNormalizeReadKeyLegacyStorePrefix(t *testing.T) {
	accountID := uuid.NewString()
	assetID := uuid.NewString()
	canonical := BuildKey(accountID, assetID, "original", "a.png")

	assert.Equal(t, canonical, NormalizeReadKey("objects/"+canonical))
	assert.Equal(t, canonical, NormalizeReadKey("/"+canonical))
	assert.Equal(t, "", NormalizeReadKey("fonts/inter/regular.woff2"))
	assert.Equal(t, "", NormalizeReadKey("assets/versions/only-two/parts"))
}

func TestNormalizeReadKeyCollapsesExplicitOriginal(t *testing.T) {
	accountID := uuid.NewString()
	assetID := uuid.NewString()
	raw := "assets/versions/" + accountID + "/" + assetID + "/original/a.png"

	assert.Equal(t, BuildKey(accountID, assetID, "original", "a.png"), NormalizeReadKey(raw))
}

func TestBuildReplaceKeyPrefixesDigest(t *testing.T) {
	key := BuildReplaceKey("acct", "asset", "original", "a.png", "DEADBEEFCAFEBABE00112233")
	assert.Equal(t, "assets/versions/acct/asset/deadbeefcafe-a.png", key)

	key = BuildReplaceKey("acct", "asset", "original", "a.png", "!!!")
	assert.Equal(t, "assets/versions/acct/asset/replace-a.png", key)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "my-logo.png", SanitizeFilename("My Logo.PNG", "png", ""))
	assert.Equal(t, "upload.bin", SanitizeFilename("", "", ""))
	assert.Equal(t, "file.png", SanitizeFilename("thumb.png", "png", "thumb"))
	assert.Equal(t, "shot.png", SanitizeFilename(`C:\Users\me\shot.png?x=1`, "png", ""))
}

func TestPickExtension(t *testing.T) {
	assert.Equal(t, "png", PickExtension("a.PNG", ""))
	assert.Equal(t, "jpg", PickExtension("", "image/jpeg"))
	assert.Equal(t, "svg", PickExtension("drawing", "image/svg+xml; charset=utf-8"))
	assert.Equal(t, "bin", PickExtension("noext", "application/x-nonsense"))
}

func TestIsUUID(t *testing.T) {
	assert.True(t, IsUUID(uuid.NewString()))
	assert.True(t, IsUUID("00000000-0000-4000-8000-000000000001"))
	assert.True(t, IsUUID("AAAAAAAA-BBBB-4CCC-8DDD-EEEEEEEEEEEE"))
	assert.False(t, IsUUID("not-a-uuid"))
}

func TestValidVariant(t *testing.T) {
	assert.True(t, ValidVariant("original"))
	assert.True(t, ValidVariant("thumb"))
	assert.True(t, ValidVariant("hero_2x"))
	assert.False(t, ValidVariant("Thumb"))
	assert.False(t, ValidVariant("-lead"))
	assert.False(t, ValidVariant(""))
}

func TestPublicPathEncodesSlashes(t *testing.T) {
	path := PublicPath("assets/versions/a/b/c.png")
	assert.Equal(t, "/assets/v/assets%2Fversions%2Fa%2Fb%2Fc.png", path)
}
