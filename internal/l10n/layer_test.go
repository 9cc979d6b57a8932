package l10n

import (
	"testing"

	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeLayerKeyPerLayer(t *testing.T) {
	cases := []struct {
		layer string
		raw   string
		want  string
	}{
		{model.LayerLocale, "PT_BR", "pt-br"},
		{model.LayerLocale, "english", ""},
		{model.LayerGeo, "de", "DE"},
		{model.LayerGeo, "DEU", ""},
		{model.LayerIndustry, "Real-Estate", "real-estate"},
		{model.LayerIndustry, "-bad", ""},
		{model.LayerExperiment, "exp_hero:variant-b", "exp_hero:variant-b"},
		{model.LayerExperiment, "hero:b", ""},
		{model.LayerBehavior, "behavior_returning", "behavior_returning"},
		{model.LayerBehavior, "returning", ""},
		{model.LayerUser, "global", "global"},
		{model.LayerUser, "ES", "es"},
		{model.LayerUser, "anything-else", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeLayerKey(tc.layer, tc.raw), "%s/%s", tc.layer, tc.raw)
	}
}

func TestLocaleCandidatesFallsBackToLanguage(t *testing.T) {
	supported := map[string]bool{"pt": true, "es": true}
	assert.Equal(t, []string{"pt"}, LocaleCandidates("pt-BR", supported))

	supported["pt-br"] = true
	assert.Equal(t, "pt-br", LocaleCandidates("pt-BR", supported)[0])

	assert.Empty(t, LocaleCandidates("fr", supported))
}

func TestSortExperimentKeys(t *testing.T) {
	sorted := SortExperimentKeys([]string{"exp_zeta:a", "exp_alpha:b", "exp_alpha:a"})
	assert.Equal(t, []string{"exp_alpha:a", "exp_alpha:b", "exp_zeta:a"}, sorted)
}

func TestHasProhibitedSegment(t *testing.T) {
	assert.True(t, HasProhibitedSegment("a.__proto__.b"))
	assert.True(t, HasProhibitedSegment("constructor"))
	assert.False(t, HasProhibitedSegment("widget.prototypeLabel"))
}

func TestNormalizeGeoCountries(t *testing.T) {
	assert.Equal(t, []string{"DE", "BR"}, NormalizeGeoCountries([]string{"de", "br", "xx1", "DE"}))
	assert.Nil(t, NormalizeGeoCountries(nil))
}
