package openapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halcyon.studio/cinema/internal/provider"
)

func TestLoad(t *testing.T) {
	doc, err := Load()
	require.NoError(t, err)

	for _, path := range []string{
		"/health", "/csrf", "/profiles", "/produce-episode",
		"/productions/{id}", "/productions/{id}/events",
		"/generate/image", "/generate/music", "/generate/voiceover",
		"/predictions/{id}", "/credits", "/admin/credits",
	} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, doc, again)
}

func TestProductionSettingsEnumsMatchProviders(t *testing.T) {
	doc, err := Load()
	require.NoError(t, err)
	settings := doc.Components.Schemas["ProductionSettings"].Value

	for field, allowed := range map[string][]string{
		"musicGenre": provider.MusicGenres,
		"musicMood":  provider.MusicMoods,
		"voice":      provider.Voices,
	} {
		var got []string
		for _, v := range settings.Properties[field].Value.Enum {
			got = append(got, v.(string))
		}
		assert.ElementsMatch(t, allowed, got, field)
	}
}
