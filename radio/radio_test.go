package radio_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiio/config"
	"audiio/cooccurrence"
	"audiio/embedding"
	"audiio/feature"
	"audiio/playlist"
	"audiio/radio"
	"audiio/scoring"
	"audiio/sequential"
	"audiio/types"
	"audiio/vectorindex"
)

type fakeLibrary struct {
	tracks map[string]*types.Track
	byArtist map[string][]*types.Track
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
	return f.byArtist[artistID], nil
}
func (f fakeLibrary) GetTracksByGenre(ctx context.Context, genre string) ([]*types.Track, error) {
	return nil, nil
}
func (f fakeLibrary) GetLikedTracks(ctx context.Context) ([]*types.Track, error) { return nil, nil }
func (f fakeLibrary) GetPlaylistTracks(ctx context.Context, playlistID string) ([]*types.Track, error) {
	return f.tracks["seed"], nil
}
func (f fakeLibrary) Search(ctx context.Context, query string, limit int) ([]*types.Track, error) {
	return nil, nil
}

type fakeLibraryLookup struct{ lib fakeLibrary }

func (f fakeLibraryLookup) ArtistOf(trackID string) string {
	t := f.lib.tracks[trackID]
	if t == nil {
		return ""
	}
	return t.PrimaryArtist()
}

func buildSetup(t *testing.T) (*radio.Generator, fakeLibrary) {
	t.Helper()
	idx := vectorindex.New()
	idx.Add("seed", []float64{1, 0})
	idx.Add("t1", []float64{0.95, 0.05})
	idx.Add("t2", []float64{0.9, 0.1})
	idx.Add("t3", []float64{0.2, 0.8})

	lib := fakeLibrary{
		tracks: map[string]*types.Track{
			"seed": {ID: "seed", Artists: []string{"artist-seed"}},
			"t1":   {ID: "t1", Artists: []string{"artist-a"}},
			"t2":   {ID: "t2", Artists: []string{"artist-a"}},
			"t3":   {ID: "t3", Artists: []string{"artist-b"}},
		},
	}
	lib.byArtist = map[string][]*types.Track{"artist-a": {lib.tracks["t1"], lib.tracks["t2"]}}

	embed := embedding.New(2, true, 0.7)
	fa := feature.New(feature.Config{}, nil)
	coocc := cooccurrence.New(cooccurrence.Config{})
	pl := playlist.New(playlist.Config{Dim: 2}, idx, fa, coocc, embed, fakeLibraryLookup{lib})

	weights, penalties := config.Default().Scoring.Weights, config.Default().Scoring.Penalties
	seq := sequential.New(sequential.Config{})
	scorer := scoring.New(weights, penalties, 0, 0, 0, 0, nil, nil, seq)

	gen := radio.New(radio.Config{RandomSeed: 42}, pl, scorer, fa, lib)
	return gen, lib
}

func TestGenerateReturnsScoredCandidatesExcludingSeed(t *testing.T) {
	gen, _ := buildSetup(t)
	results, err := gen.Generate(context.Background(), radio.Seed{Type: radio.SeedTrack, ID: "seed"}, 2, types.ScoringContext{})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "seed", r.TrackID)
	}
}

func TestGenerateDoesNotReplayTracksAcrossCalls(t *testing.T) {
	gen, _ := buildSetup(t)
	seed := radio.Seed{Type: radio.SeedTrack, ID: "seed"}

	first, err := gen.Generate(context.Background(), seed, 1, types.ScoringContext{})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := gen.Generate(context.Background(), seed, 3, types.ScoringContext{})
	require.NoError(t, err)
	for _, r := range second {
		assert.NotEqual(t, first[0].TrackID, r.TrackID)
	}
}

func TestGenerateEnforcesArtistCap(t *testing.T) {
	gen, lib := buildSetup(t)
	results, err := gen.Generate(context.Background(), radio.Seed{Type: radio.SeedArtist, ID: "artist-a"}, 5, types.ScoringContext{})
	require.NoError(t, err)

	counts := map[string]int{}
	for _, r := range results {
		track := lib.tracks[r.TrackID]
		counts[track.PrimaryArtist()]++
	}
	for artist, c := range counts {
		if artist == "artist-a" {
			assert.LessOrEqual(t, c, 2)
		}
	}
}

func TestResetClearsSessionState(t *testing.T) {
	gen, _ := buildSetup(t)
	seed := radio.Seed{Type: radio.SeedTrack, ID: "seed"}

	first, err := gen.Generate(context.Background(), seed, 1, types.ScoringContext{})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	gen.Reset(seed)
	again, err := gen.Generate(context.Background(), seed, 1, types.ScoringContext{})
	require.NoError(t, err)
	require.NotEmpty(t, again)
	assert.Equal(t, first[0].TrackID, again[0].TrackID)
}
