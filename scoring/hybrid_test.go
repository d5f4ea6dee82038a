package scoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiio/config"
	"audiio/preference"
	"audiio/scoring"
	"audiio/sequential"
	"audiio/types"
)

func ptr(v float64) *float64 { return &v }

type stubPredictor struct {
	value      float64
	confidence float64
	err        error
}

func (s *stubPredictor) Fit(context.Context, []types.TrainingSample) error { return nil }
func (s *stubPredictor) Predict(context.Context, []float64) (float64, error) {
	return s.value, s.err
}
func (s *stubPredictor) Save(context.Context, string) error { return nil }
func (s *stubPredictor) Load(context.Context, string) error { return nil }
func (s *stubPredictor) Confidence() float64                { return s.confidence }

func defaultWeights() (config.ScoreWeights, config.PenaltyWeights) {
	return config.Default().Scoring.Weights, config.Default().Scoring.Penalties
}

func TestScoreBlendsBasePreferenceFromStore(t *testing.T) {
	weights, penalties := defaultWeights()
	prefs := preference.New(preference.Config{})
	prefs.UpdateFromEvent(types.UserEvent{Kind: types.EventLike, LikeStrength: 2}, "artist-1", []string{"house"})

	s := scoring.New(weights, penalties, 0, 0, 0, time.Minute, nil, prefs, nil)
	track := &types.Track{ID: "t1", Artists: []string{"artist-1"}, Genres: []string{"house"}}
	score := s.Score(context.Background(), scoring.Scorable{Track: track}, types.ScoringContext{})

	assert.Greater(t, score.Components["basePreference"], 0.5)
	assert.GreaterOrEqual(t, score.FinalScore, 0.0)
	assert.LessOrEqual(t, score.FinalScore, 100.0)
}

func TestScoreAppliesDislikePenalty(t *testing.T) {
	weights, penalties := defaultWeights()
	prefs := preference.New(preference.Config{})
	prefs.UpdateFromEvent(types.UserEvent{Kind: types.EventDislike, TrackID: "t1", DislikeReason: types.DislikeReasonNotMyTaste}, "artist-1", nil)

	s := scoring.New(weights, penalties, 0, 0, 0, time.Minute, nil, prefs, nil)
	disliked := &types.Track{ID: "t1", Artists: []string{"artist-1"}}
	clean := &types.Track{ID: "t2", Artists: []string{"artist-2"}}

	dislikedScore := s.Score(context.Background(), scoring.Scorable{Track: disliked}, types.ScoringContext{})
	cleanScore := s.Score(context.Background(), scoring.Scorable{Track: clean}, types.ScoringContext{})

	assert.Less(t, dislikedScore.FinalScore, cleanScore.FinalScore)
}

func TestScoreScalesMLWeightByPredictorConfidence(t *testing.T) {
	weights, penalties := defaultWeights()
	confident := &stubPredictor{value: 1.0, confidence: 1.0}
	unsure := &stubPredictor{value: 1.0, confidence: 0.0}

	track := &types.Track{ID: "t1", Genres: []string{"house"}}

	sConfident := scoring.New(weights, penalties, 0, 0, 0, time.Minute, confident, nil, nil)
	sUnsure := scoring.New(weights, penalties, 0, 0, 0, time.Minute, unsure, nil, nil)

	confidentScore := sConfident.Score(context.Background(), scoring.Scorable{Track: track}, types.ScoringContext{})
	unsureScore := sUnsure.Score(context.Background(), scoring.Scorable{Track: track}, types.ScoringContext{})

	assert.Greater(t, confidentScore.FinalScore, unsureScore.FinalScore)
}

func TestScoreRecordsSequentialComponents(t *testing.T) {
	weights, penalties := defaultWeights()
	seq := sequential.New(sequential.Config{})
	s := scoring.New(weights, penalties, 0, 0, 0, time.Minute, nil, nil, seq)

	track := &types.Track{ID: "t1", Audio: &types.AudioDescriptors{BPM: ptr(128)}}
	features := &types.AggregatedFeatures{Audio: track.Audio}
	recentTrack := &types.Track{ID: "t0", Audio: &types.AudioDescriptors{BPM: ptr(125)}}
	recentFeatures := &types.AggregatedFeatures{Audio: recentTrack.Audio}

	sctx := types.ScoringContext{
		SessionTracks:   []*types.Track{recentTrack},
		SessionFeatures: []*types.AggregatedFeatures{recentFeatures},
	}
	score := s.Score(context.Background(), scoring.Scorable{Track: track, Features: features}, sctx)

	_, ok := score.Components["tempoFlow"]
	assert.True(t, ok)
}

func TestExplainReturnsCachedScoreAfterScoring(t *testing.T) {
	weights, penalties := defaultWeights()
	s := scoring.New(weights, penalties, 0, 0, 0, time.Minute, nil, nil, nil)
	track := &types.Track{ID: "t1"}

	_, err := s.Explain("t1")
	require.Error(t, err)

	s.Score(context.Background(), scoring.Scorable{Track: track}, types.ScoringContext{})
	cached, err := s.Explain("t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", cached.TrackID)
}

func TestHandleEventInvalidatesPreferenceCache(t *testing.T) {
	weights, penalties := defaultWeights()
	prefs := preference.New(preference.Config{})
	s := scoring.New(weights, penalties, 0, 0, 0, time.Hour, nil, prefs, nil)
	track := &types.Track{ID: "t1", Artists: []string{"artist-1"}}

	s.Score(context.Background(), scoring.Scorable{Track: track}, types.ScoringContext{})
	prefs.UpdateFromEvent(types.UserEvent{Kind: types.EventLike, LikeStrength: 2}, "artist-1", nil)
	s.HandleEvent(types.UserEvent{Kind: types.EventLike, LikeStrength: 2})

	score := s.Score(context.Background(), scoring.Scorable{Track: track}, types.ScoringContext{})
	assert.Greater(t, score.Components["basePreference"], 0.5)
}

func TestRankDescendingOrdersByFinalScoreThenTrackID(t *testing.T) {
	scores := []types.TrackScore{
		{TrackID: "b", FinalScore: 50},
		{TrackID: "a", FinalScore: 50},
		{TrackID: "c", FinalScore: 90},
	}
	scoring.RankDescending(scores)
	require.Len(t, scores, 3)
	assert.Equal(t, "c", scores[0].TrackID)
	assert.Equal(t, "a", scores[1].TrackID)
	assert.Equal(t, "b", scores[2].TrackID)
}
