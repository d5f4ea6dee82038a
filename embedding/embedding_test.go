package embedding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiio/embedding"
	"audiio/types"
	"audiio/vectormath"
)

func f64(v float64) *float64 { return &v }

func TestBuildFromAudioIsNormalizedAndDeterministic(t *testing.T) {
	e := embedding.New(32, true, 0.7)
	in := embedding.BuildInput{
		TrackID: "t1",
		Audio: &types.AudioDescriptors{
			Energy:       f64(0.8),
			Valence:      f64(0.6),
			Danceability: f64(0.7),
			BPM:          f64(128),
		},
	}
	v1 := e.Build(in)
	v2 := e.Build(in)
	assert.Equal(t, v1.Vector, v2.Vector)
	assert.InDelta(t, 1.0, vectormath.Norm(v1.Vector), 1e-4)
}

func TestBuildWithFewerThanThreeAudioFieldsFallsBackToGenre(t *testing.T) {
	e := embedding.New(32, true, 0.7)
	in := embedding.BuildInput{
		TrackID: "t2",
		Audio:   &types.AudioDescriptors{Energy: f64(0.5)},
		Genres:  []string{"techno"},
	}
	v := e.Build(in)
	assert.Equal(t, "audio+genre+tag", v.Provenance)
}

func TestBuildWithNoComponentsProducesJitterFallback(t *testing.T) {
	e := embedding.New(16, true, 0.7)
	v := e.Build(embedding.BuildInput{TrackID: "empty"})
	assert.Equal(t, "jitter-fallback", v.Provenance)
	assert.Len(t, v.Vector, 16)
}

func TestGenreQueryVectorIsStableAndUnitLength(t *testing.T) {
	e := embedding.New(32, true, 0.7)
	q1 := e.GenreQueryVector("techno")
	q2 := e.GenreQueryVector("Techno")
	assert.Equal(t, q1.Vector, q2.Vector)
	assert.InDelta(t, 1.0, vectormath.Norm(q1.Vector), 1e-4)
}

func TestUpdateBlendsTowardNewObservation(t *testing.T) {
	e := embedding.New(4, true, 0.7)
	existing := types.Embedding{Vector: vectormath.Normalize([]float64{1, 0, 0, 0}), CreatedAt: 1000}
	updated := e.Update(existing, vectormath.Normalize([]float64{0, 1, 0, 0}))
	require.Equal(t, int64(1000), updated.CreatedAt)
	assert.Greater(t, updated.Vector[1], existing.Vector[1])
}
