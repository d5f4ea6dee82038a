package cooccurrence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiio/cooccurrence"
)

func TestRecordCooccurrenceIsSymmetric(t *testing.T) {
	m := cooccurrence.New(cooccurrence.Config{})
	m.RecordCooccurrence([]string{"a", "b"}, "session", 1)

	ra := m.GetRelated("a", 5)
	rb := m.GetRelated("b", 5)
	require.Len(t, ra, 1)
	require.Len(t, rb, 1)
	assert.Equal(t, "b", ra[0].TrackID)
	assert.Equal(t, "a", rb[0].TrackID)
	assert.InDelta(t, ra[0].Score, rb[0].Score, 1e-9)
}

func TestRecordSequentialPlayAddsFixedBonus(t *testing.T) {
	m := cooccurrence.New(cooccurrence.Config{SequentialWeight: 1.5})
	m.RecordSequentialPlay("x", "y")
	related := m.GetRelated("x", 5)
	require.Len(t, related, 1)
	assert.InDelta(t, 1.5, related[0].Score, 1e-9)
}

func TestGetRelatedMultipleExcludesSeeds(t *testing.T) {
	m := cooccurrence.New(cooccurrence.Config{})
	m.RecordCooccurrence([]string{"seed1", "seed2", "other"}, "", 1)

	related := m.GetRelatedMultiple([]string{"seed1", "seed2"}, 5)
	for _, r := range related {
		assert.NotEqual(t, "seed1", r.TrackID)
		assert.NotEqual(t, "seed2", r.TrackID)
	}
	assert.Equal(t, "other", related[0].TrackID)
}

func TestGenerateCollaborativeEmbeddingIsNormalized(t *testing.T) {
	m := cooccurrence.New(cooccurrence.Config{})
	m.RecordCooccurrence([]string{"seed", "r1", "r2"}, "", 1)

	vec := m.GenerateCollaborativeEmbedding("seed", 16)
	sum := 0.0
	for _, v := range vec {
		sum += v * v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}
