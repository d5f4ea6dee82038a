package preference_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiio/preference"
	"audiio/types"
)

func TestUpdateFromEventListenCompletedRaisesAffinity(t *testing.T) {
	s := preference.New(preference.Config{})
	s.UpdateFromEvent(types.UserEvent{Kind: types.EventListen, Completed: true, TrackID: "t1"}, "artist-1", []string{"house"})
	assert.InDelta(t, 0.05, s.ArtistAffinity("artist-1"), 1e-9)
	assert.InDelta(t, 0.025, s.GenreAffinity("house"), 1e-9)
}

func TestUpdateFromEventDislikeScalesByReasonWeight(t *testing.T) {
	s := preference.New(preference.Config{})
	s.UpdateFromEvent(types.UserEvent{Kind: types.EventDislike, DislikeReason: types.DislikeReasonNotMyTaste, TrackID: "t1"}, "artist-1", nil)
	assert.InDelta(t, -0.10, s.ArtistAffinity("artist-1"), 1e-9)
	assert.True(t, s.IsDisliked("t1"))
}

func TestAffinityClampsToBounds(t *testing.T) {
	s := preference.New(preference.Config{})
	for i := 0; i < 50; i++ {
		s.UpdateFromEvent(types.UserEvent{Kind: types.EventLike, LikeStrength: 2}, "artist-1", nil)
	}
	assert.LessOrEqual(t, s.ArtistAffinity("artist-1"), 1.0)
}

func TestRecentPlaysTrimsOnOverflow(t *testing.T) {
	s := preference.New(preference.Config{RecentPlaysMax: 4, RecentPlaysTrimTo: 2})
	for i := 0; i < 6; i++ {
		s.UpdateFromEvent(types.UserEvent{Kind: types.EventListen, Completed: true, TrackID: string(rune('a' + i))}, "", nil)
	}
	snap := s.Snapshot()
	assert.LessOrEqual(t, len(snap.RecentPlays), 4)
}

func TestRebuildFromHistoryReconstructsState(t *testing.T) {
	s := preference.New(preference.Config{})
	events := []types.UserEvent{
		{Kind: types.EventLike, TrackID: "t1", LikeStrength: 2},
		{Kind: types.EventDislike, TrackID: "t2", DislikeReason: types.DislikeReasonOther},
	}
	resolver := func(trackID string) (string, []string) {
		if trackID == "t1" {
			return "artist-a", []string{"jazz"}
		}
		return "artist-b", []string{"pop"}
	}
	s.RebuildFromHistory(events, resolver)
	require.Greater(t, s.ArtistAffinity("artist-a"), 0.0)
	require.Less(t, s.ArtistAffinity("artist-b"), 0.0)
}
