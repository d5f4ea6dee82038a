package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiio/config"
)

func TestDefaultProducesSaneValues(t *testing.T) {
	c := config.Default()
	assert.Equal(t, 128, c.Embedding.Dimension)
	assert.Equal(t, 0.98, c.CoOccurrence.DecayFactor)
	assert.Equal(t, 3, c.Playlist.CandidateMultiplier)
	assert.Equal(t, 50, c.Training.MinSamples)
}

func TestDefaultScoreWeightsSumToOne(t *testing.T) {
	w := config.Default().Scoring.Weights
	total := w.BasePreference + w.MLPrediction + w.AudioMatch + w.MoodMatch +
		w.HarmonicFlow + w.TemporalFit + w.SessionFlow + w.ActivityMatch +
		w.ExplorationBonus + w.SerendipityScore + w.DiversityScore +
		w.TrajectoryFit + w.TempoFlow + w.GenreTransition + w.EnergyTrend
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	c, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default().Embedding.Dimension, c.Embedding.Dimension)
}

func TestLoadWithMissingFileErrors(t *testing.T) {
	_, err := config.Load("/nonexistent/path/does-not-exist.json")
	assert.Error(t, err)
}
