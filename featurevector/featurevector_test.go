package featurevector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"audiio/featurevector"
	"audiio/types"
)

func TestBuildProducesDocumentedDimension(t *testing.T) {
	track := &types.Track{Genres: []string{"house"}}
	vec := featurevector.Build(track, nil, types.ScoringContext{}, featurevector.UserStats{})
	assert.Len(t, vec, featurevector.Dimension)
	assert.Equal(t, 39, featurevector.Dimension)
}

func TestBuildValuesStayInUnitRange(t *testing.T) {
	energy := 0.9
	bpm := 180.0
	track := &types.Track{Genres: []string{"unknown-genre"}}
	audio := &types.AudioDescriptors{Energy: &energy, BPM: &bpm}
	stats := featurevector.UserStats{PlayCount: 500, SkipRatio: 1.2, ArtistAffinity: 2}
	vec := featurevector.Build(track, audio, types.ScoringContext{HourOfDay: 14, DayOfWeek: 3}, stats)
	for _, v := range vec {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}
