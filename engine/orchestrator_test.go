package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiio/config"
	"audiio/engine"
	"audiio/kvstore"
	"audiio/types"
)

type fakeLibrary struct {
	tracks map[string]*types.Track
}

func (f fakeLibrary) GetTrack(ctx context.Context, id string) (*types.Track, error) { return f.tracks[id], nil }
func (f fakeLibrary) GetAllTracks(ctx context.Context) ([]*types.Track, error) {
	out := make([]*types.Track, 0, len(f.tracks))
	for _, t := range f.tracks {
		out = append(out, t)
	}
	return out, nil
}
func (f fakeLibrary) GetTracksByArtist(ctx context.Context, artistID string) ([]*types.Track, error) {
	return nil, nil
}
func (f fakeLibrary) GetTracksByGenre(ctx context.Context, genre string) ([]*types.Track, error) {
	return nil, nil
}
func (f fakeLibrary) GetLikedTracks(ctx context.Context) ([]*types.Track, error) { return nil, nil }
func (f fakeLibrary) GetPlaylistTracks(ctx context.Context, playlistID string) ([]*types.Track, error) {
	return nil, nil
}
func (f fakeLibrary) Search(ctx context.Context, query string, limit int) ([]*types.Track, error) {
	return nil, nil
}

func newTestOrchestrator(t *testing.T) (*engine.Orchestrator, fakeLibrary) {
	t.Helper()
	lib := fakeLibrary{tracks: map[string]*types.Track{
		"t1": {ID: "t1", Title: "One", Artists: []string{"a1"}, Genres: []string{"house"}},
		"t2": {ID: "t2", Title: "Two", Artists: []string{"a2"}, Genres: []string{"techno"}},
		"t3": {ID: "t3", Title: "Three", Artists: []string{"a3"}, Genres: []string{"jazz"}},
	}}
	o := engine.New(config.Default(), kvstore.NewMemory(), lib, nil)
	require.NoError(t, o.Initialize(context.Background()))
	return o, lib
}

// S1: a fresh user with no history, no predictor and no session gets the
// documented no-data fallback: final_score in [45,55], confidence under
// 0.2, and an explanation that says so plainly.
func TestFreshUserScoresNeutrally(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	score, err := o.ScoreTrack(context.Background(), "t1", types.ScoringContext{})
	require.NoError(t, err)
	assert.Equal(t, "t1", score.TrackID)
	assert.GreaterOrEqual(t, score.FinalScore, 45.0)
	assert.LessOrEqual(t, score.FinalScore, 55.0)
	assert.Less(t, score.Confidence, 0.2)
	assert.Contains(t, score.Explanation, "no data")
}

func TestScoreTrackMissingTrackIsMissingData(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.ScoreTrack(context.Background(), "nope", types.ScoringContext{})
	assert.Error(t, err)
}

func TestRankCandidatesOrdersDescending(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	scores, err := o.RankCandidates(context.Background(), []string{"t1", "t2", "t3"}, types.ScoringContext{})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	for i := 1; i < len(scores); i++ {
		assert.GreaterOrEqual(t, scores[i-1].FinalScore, scores[i].FinalScore)
	}
}

// Liking a track must be reflected in the artist's affinity the very next
// time that artist is scored — RecordEvent has to actually reach
// PreferenceStore, not just the event log. Before any event, the fresh
// user hits the no-data fallback (S1) and carries no basePreference
// component at all; after the like, basePreference appears and sits above
// neutral.
func TestRecordEventLikeRaisesArtistAffinity(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	before, err := o.ScoreTrack(ctx, "t1", types.ScoringContext{})
	require.NoError(t, err)
	_, hadBasePreference := before.Components["basePreference"]
	assert.False(t, hadBasePreference)

	err = o.RecordEvent(ctx, types.UserEvent{
		Kind:         types.EventLike,
		TrackID:      "t1",
		Track:        &types.Track{ID: "t1", Artists: []string{"a1"}, Genres: []string{"house"}},
		TimestampMs:  1000,
		LikeStrength: 2,
	})
	require.NoError(t, err)

	after, err := o.ScoreTrack(ctx, "t1", types.ScoringContext{})
	require.NoError(t, err)
	require.Contains(t, after.Components, "basePreference")
	assert.Greater(t, after.Components["basePreference"], 0.5)
}

func TestGetNextTracksReturnsScoredTracks(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	results, err := o.GetNextTracks(context.Background(), 2, types.ScoringContext{})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
	for _, r := range results {
		assert.NotEmpty(t, r.Track.ID)
	}
}

func TestRegisterFeatureProviderIsReachableFromOrchestrator(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	require.NoError(t, o.RegisterFeatureProvider(&noopProvider{id: "p1"}))
	assert.Error(t, o.RegisterFeatureProvider(&noopProvider{id: "p1"}))
	o.UnregisterFeatureProvider("p1")
	assert.NoError(t, o.RegisterFeatureProvider(&noopProvider{id: "p1"}))
}

func TestTrainWithoutPredictorFails(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	result := o.Train(context.Background())
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestDisposeFlushesWithoutError(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	assert.NoError(t, o.Dispose(context.Background()))
}

type noopProvider struct {
	id string
}

func (p *noopProvider) Identity() types.ProviderIdentity {
	return types.ProviderIdentity{ID: p.id, Priority: 10, Capabilities: types.CapAudio}
}
func (p *noopProvider) Initialize(context.Context, map[string]string) error { return nil }
func (p *noopProvider) Dispose(context.Context) error                      { return nil }
func (p *noopProvider) GetAudioFeatures(context.Context, string) (*types.AudioDescriptors, error) {
	return nil, nil
}
func (p *noopProvider) GetEmotionFeatures(context.Context, string) (*types.EmotionDescriptors, error) {
	return nil, nil
}
func (p *noopProvider) GetLyricsFeatures(context.Context, string) (*types.LyricsDescriptors, error) {
	return nil, nil
}
func (p *noopProvider) GetGenreFeatures(context.Context, string) (*types.GenreDescriptors, error) {
	return nil, nil
}
func (p *noopProvider) GetEmbedding(context.Context, string) (*types.Embedding, error) {
	return nil, nil
}
