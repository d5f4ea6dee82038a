package playlist_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiio/cooccurrence"
	"audiio/embedding"
	"audiio/feature"
	"audiio/playlist"
	"audiio/taste"
	"audiio/types"
	"audiio/vectorindex"
)

type fakeLibrary struct {
	artists map[string]string
}

func (f fakeLibrary) ArtistOf(trackID string) string { return f.artists[trackID] }

func buildIndex(vecs map[string][]float64) *vectorindex.Index {
	idx := vectorindex.New()
	for id, v := range vecs {
		idx.Add(id, v)
	}
	return idx
}

func TestGenerateGenreMethodRanksByCosine(t *testing.T) {
	idx := buildIndex(map[string][]float64{
		"close": {1, 0, 0},
		"far":   {0, 1, 0},
	})
	embed := embedding.New(3, true, 0.7)
	g := playlist.New(playlist.Config{Dim: 3}, idx, feature.New(feature.Config{}, nil), cooccurrence.New(cooccurrence.Config{}), embed, nil)

	query := embed.GenreQueryVector("house")
	idx.Add("anchor", query.Vector)

	results, err := g.Generate(context.Background(), types.MethodGenre, types.PlaylistOptions{Genre: "house", Limit: 10}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "anchor", results[0].TrackID)
}

func TestGenerateExcludesTrackAndArtist(t *testing.T) {
	idx := buildIndex(map[string][]float64{
		"t1": {1, 0},
		"t2": {0.9, 0.1},
	})
	lib := fakeLibrary{artists: map[string]string{"t1": "artist-a", "t2": "artist-b"}}
	embed := embedding.New(2, true, 0.7)
	g := playlist.New(playlist.Config{Dim: 2}, idx, feature.New(feature.Config{}, nil), nil, embed, lib)

	opts := types.PlaylistOptions{Limit: 10, ExcludeTrackIDs: []string{"t1"}, ExcludeArtistIDs: []string{"artist-b"}, SeedTrackIDs: nil}
	results, err := g.Generate(context.Background(), types.MethodPersonalized, opts, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "t1", r.TrackID)
		assert.NotEqual(t, "t2", r.TrackID)
	}
}

func TestGenerateEnforcesMaxPerArtist(t *testing.T) {
	idx := buildIndex(map[string][]float64{
		"a1": {1, 0}, "a2": {0.99, 0.01}, "a3": {0.98, 0.02}, "b1": {0.5, 0.5}, "c1": {0.4, 0.6},
	})
	lib := fakeLibrary{artists: map[string]string{"a1": "artist-a", "a2": "artist-a", "a3": "artist-a", "b1": "artist-b", "c1": "artist-c"}}
	embed := embedding.New(2, true, 0.7)
	g := playlist.New(playlist.Config{Dim: 2, MaxPerArtist: 1}, idx, feature.New(feature.Config{}, nil), nil, embed, lib)

	opts := types.PlaylistOptions{Limit: 3, MaxPerArtist: 1}
	results, err := g.Generate(context.Background(), types.MethodPersonalized, opts, nil)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, r := range results {
		counts[lib.ArtistOf(r.TrackID)]++
	}
	for artist, c := range counts {
		if artist == "artist-a" {
			assert.LessOrEqual(t, c, 1)
		}
	}
}

func TestGenerateBlendsCollaborativeScoresWithSeeds(t *testing.T) {
	idx := buildIndex(map[string][]float64{
		"seed": {1, 0}, "emb-near": {0.9, 0.1}, "collab-only": {0, 1},
	})
	coocc := cooccurrence.New(cooccurrence.Config{})
	coocc.RecordSequentialPlay("seed", "collab-only")

	embed := embedding.New(2, true, 0.7)
	fa := feature.New(feature.Config{}, nil)
	g := playlist.New(playlist.Config{Dim: 2}, idx, fa, coocc, embed, nil)

	opts := types.PlaylistOptions{Limit: 10, SeedTrackIDs: []string{"seed"}, IncludeCollaborative: true}
	results, err := g.Generate(context.Background(), types.MethodSeedTracks, opts, nil)
	require.NoError(t, err)

	var sawCollab bool
	for _, r := range results {
		if r.TrackID == "collab-only" {
			sawCollab = true
		}
	}
	assert.True(t, sawCollab)
}

func TestGenerateDiscoveryBlendsExplorationVector(t *testing.T) {
	idx := buildIndex(map[string][]float64{"t1": {1, 0}, "t2": {0, 1}})
	embed := embedding.New(2, true, 0.7)
	profile := taste.New(2, 1, 42)
	profile.UpdatePositive([]float64{1, 0}, 1.0, "")

	g := playlist.New(playlist.Config{Dim: 2}, idx, feature.New(feature.Config{}, nil), nil, embed, nil)
	opts := types.PlaylistOptions{Limit: 5, ExplorationFactor: 0.5}
	results, err := g.Generate(context.Background(), types.MethodDiscovery, opts, profile)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}
