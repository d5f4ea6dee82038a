// Package preference implements spec §2 component O: artist/genre
// affinity with daily exponential decay, temporal patterns, and the
// recent-play index.
package preference

import (
	"math"
	"sync"
	"time"

	"audiio/types"
)

// ReasonWeight maps a dislike reason to its severity multiplier used when
// scaling the affinity penalty (§4.12). Reasons not listed default to 0.5.
var ReasonWeight = map[types.DislikeReason]float64{
	types.DislikeReasonNotMyTaste:  1.0,
	types.DislikeReasonWrongMood:   0.6,
	types.DislikeReasonOverplayed:  0.4,
	types.DislikeReasonPoorQuality: 0.8,
	types.DislikeReasonOther:       0.5,
}

func reasonWeight(r types.DislikeReason) float64 {
	if w, ok := ReasonWeight[r]; ok {
		return w
	}
	return 0.5
}

// Config tunes decay and bound behaviour (§4.12).
type Config struct {
	DailyDecayFactor  float64
	RecentPlaysMax    int
	RecentPlaysTrimTo int
	SummaryListMax    int
}

// Store is one user's learned preferences, matching types.PreferenceState
// plus the decay/update logic that acts on it.
type Store struct {
	cfg Config

	mu    sync.Mutex
	state *types.PreferenceState
	now   func() time.Time
}

// New builds a Store over a fresh PreferenceState.
func New(cfg Config) *Store {
	if cfg.DailyDecayFactor <= 0 {
		cfg.DailyDecayFactor = 0.98
	}
	if cfg.RecentPlaysMax <= 0 {
		cfg.RecentPlaysMax = 1000
	}
	if cfg.RecentPlaysTrimTo <= 0 {
		cfg.RecentPlaysTrimTo = 500
	}
	if cfg.SummaryListMax <= 0 {
		cfg.SummaryListMax = 20
	}
	return &Store{cfg: cfg, state: types.NewPreferenceState(), now: time.Now}
}

// Load replaces the store's state with a previously persisted snapshot
// (e.g. deserialized from a KVStore by the host).
func (s *Store) Load(state *types.PreferenceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == nil {
		state = types.NewPreferenceState()
	}
	s.state = state
}

// Snapshot returns the current state for persistence. Callers must not
// mutate the returned maps concurrently with further Store use.
func (s *Store) Snapshot() *types.PreferenceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) artist(id string) *types.AffinityStats {
	a, ok := s.state.Artists[id]
	if !ok {
		a = &types.AffinityStats{}
		s.state.Artists[id] = a
	}
	return a
}

func (s *Store) genre(id string) *types.AffinityStats {
	g, ok := s.state.Genres[id]
	if !ok {
		g = &types.AffinityStats{}
		s.state.Genres[id] = g
	}
	return g
}

func clampAffinity(v float64) float64 {
	if v < -100 {
		return -100
	}
	if v > 100 {
		return 100
	}
	return v
}

// UpdateFromEvent applies the affinity deltas of §4.12 for one event. The
// artistID/genreID are resolved by the caller (normally the Orchestrator,
// which has the Track) since PreferenceState itself never looks up
// tracks.
func (s *Store) UpdateFromEvent(e types.UserEvent, artistID string, genreIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyDecayLocked()

	nowMs := e.TimestampMs
	if nowMs == 0 {
		nowMs = s.now().UnixMilli()
	}

	switch e.Kind {
	case types.EventListen:
		s.onListen(e, artistID, genreIDs, nowMs)
	case types.EventSkip:
		s.onSkip(e, artistID, genreIDs)
	case types.EventLike:
		s.onLike(e, artistID, genreIDs)
	case types.EventDislike:
		s.onDislike(e, artistID, genreIDs, nowMs)
	}
}

func (s *Store) onListen(e types.UserEvent, artistID string, genreIDs []string, nowMs int64) {
	delta := 3 * e.Completion
	if e.Completed {
		delta = 5
	}
	if artistID != "" {
		a := s.artist(artistID)
		a.PlayCount++
		a.TotalDuration += e.ListenDurationSec
		a.LastPlayedMs = nowMs
		a.Affinity = clampAffinity(a.Affinity + delta)
	}
	for _, g := range genreIDs {
		gs := s.genre(g)
		gs.PlayCount++
		gs.TotalDuration += e.ListenDurationSec
		gs.Affinity = clampAffinity(gs.Affinity + delta*0.5)
	}

	s.state.HourlyPlays[boundHour(e.Context.HourOfDay)]++
	s.state.DailyPlays[boundDay(e.Context.DayOfWeek)]++
	for _, g := range genreIDs {
		row := s.state.GenreByHour[g]
		row[boundHour(e.Context.HourOfDay)]++
		s.state.GenreByHour[g] = row
	}

	if e.TrackID != "" {
		s.state.RecentPlays[e.TrackID] = nowMs
		s.trimRecentPlaysLocked()
	}
	s.state.TotalListens++
}

func (s *Store) onSkip(e types.UserEvent, artistID string, genreIDs []string) {
	artistDelta := -1.0
	genreDelta := -0.5
	if e.Early {
		artistDelta = -3.0
		genreDelta = -2.0
	}
	if artistID != "" {
		a := s.artist(artistID)
		a.Affinity = clampAffinity(a.Affinity + artistDelta)
	}
	for _, g := range genreIDs {
		gs := s.genre(g)
		gs.Affinity = clampAffinity(gs.Affinity + genreDelta)
	}
}

func (s *Store) onLike(e types.UserEvent, artistID string, genreIDs []string) {
	artistDelta, genreDelta := 10.0, 5.0
	if e.LikeStrength >= 2 {
		artistDelta, genreDelta = 15.0, 8.0
	}
	if artistID != "" {
		a := s.artist(artistID)
		a.LikeCount++
		a.Affinity = clampAffinity(a.Affinity + artistDelta)
	}
	for _, g := range genreIDs {
		gs := s.genre(g)
		gs.LikeCount++
		gs.Affinity = clampAffinity(gs.Affinity + genreDelta)
	}
}

func (s *Store) onDislike(e types.UserEvent, artistID string, genreIDs []string, nowMs int64) {
	w := reasonWeight(e.DislikeReason)
	if artistID != "" {
		a := s.artist(artistID)
		a.DislikeCount++
		a.Affinity = clampAffinity(a.Affinity - 10*w)
	}
	for _, g := range genreIDs {
		gs := s.genre(g)
		gs.DislikeCount++
		gs.Affinity = clampAffinity(gs.Affinity - 5*w)
	}
	if e.TrackID != "" {
		s.state.DislikedTracks[e.TrackID] = types.DislikeRecord{Reason: e.DislikeReason, TimestampMs: nowMs}
	}
}

func boundHour(h int) int {
	if h < 0 || h > 23 {
		return 0
	}
	return h
}

func boundDay(d int) int {
	if d < 0 || d > 6 {
		return 0
	}
	return d
}

// trimRecentPlaysLocked enforces the §3/§4.12 1000-entry cap, trimming to
// the 500 most-recent on overflow. Caller must hold mu.
func (s *Store) trimRecentPlaysLocked() {
	if len(s.state.RecentPlays) <= s.cfg.RecentPlaysMax {
		return
	}
	type pair = struct {
		id string
		ts int64
	}
	all := make([]pair, 0, len(s.state.RecentPlays))
	for id, ts := range s.state.RecentPlays {
		all = append(all, pair{id, ts})
	}
	sortByTimeDesc(all)
	keep := s.cfg.RecentPlaysTrimTo
	if keep > len(all) {
		keep = len(all)
	}
	trimmed := make(map[string]int64, keep)
	for _, p := range all[:keep] {
		trimmed[p.id] = p.ts
	}
	s.state.RecentPlays = trimmed
}

func sortByTimeDesc(all []struct {
	id string
	ts int64
}) {
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].ts > all[j-1].ts; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
}

// applyDecayLocked multiplies every affinity by DailyDecayFactor^days if
// at least a day has elapsed since the last decay (§4.12). Caller must
// hold mu.
func (s *Store) applyDecayLocked() {
	now := s.now().UnixMilli()
	if s.state.LastDecayAppliedMs == 0 {
		s.state.LastDecayAppliedMs = now
		return
	}
	elapsed := now - s.state.LastDecayAppliedMs
	days := elapsed / (24 * 3600 * 1000)
	if days < 1 {
		return
	}
	factor := math.Pow(s.cfg.DailyDecayFactor, float64(days))
	for _, a := range s.state.Artists {
		a.Affinity = clampAffinity(a.Affinity * factor)
	}
	for _, g := range s.state.Genres {
		g.Affinity = clampAffinity(g.Affinity * factor)
	}
	s.state.LastDecayAppliedMs = now
}

// ArtistAffinity returns the normalised affinity in [-1, 1] for artistID,
// 0 if unknown (§4.12: "exposed affinities are normalised").
func (s *Store) ArtistAffinity(artistID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.Artists[artistID]
	if !ok {
		return 0
	}
	return a.Affinity / 100
}

// GenreAffinity returns the normalised affinity in [-1, 1] for genre, 0 if
// unknown.
func (s *Store) GenreAffinity(genre string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.state.Genres[genre]
	if !ok {
		return 0
	}
	return g.Affinity / 100
}

// HasAnyData reports whether any artist or genre affinity has ever been
// recorded. A fresh user's Store (§8-S1) has none, which scoring uses to
// tell a genuinely unknown preference apart from a learned neutral one.
func (s *Store) HasAnyData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Artists) > 0 || len(s.state.Genres) > 0
}

// WasRecentlyPlayed reports whether trackID was played within window.
func (s *Store) WasRecentlyPlayed(trackID string, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.state.RecentPlays[trackID]
	if !ok {
		return false
	}
	return s.now().UnixMilli()-ts <= window.Milliseconds()
}

// IsDisliked reports whether trackID has a recorded dislike.
func (s *Store) IsDisliked(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.DislikedTracks[trackID]
	return ok
}

// GenreAffinityAtHour returns the genre-by-hour affinity used by
// temporalFit (§4.7): the share of that genre's plays observed at hour,
// relative to its total plays.
func (s *Store) GenreAffinityAtHour(genre string, hour int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.state.GenreByHour[genre]
	if !ok {
		return 0
	}
	total := 0
	for _, c := range row {
		total += c
	}
	if total == 0 {
		return 0
	}
	return float64(row[boundHour(hour)]) / float64(total)
}

// RebuildFromHistory replays a batch of historical events to reconstruct
// a PreferenceState from scratch, e.g. after a cache loss (supplemented
// feature, grounded on the teacher's recommendation job rebuilding
// derived state from a user's full media history). resolver maps a
// track_id to (artist_id, genre_ids).
func (s *Store) RebuildFromHistory(events []types.UserEvent, resolver func(trackID string) (string, []string)) {
	s.mu.Lock()
	s.state = types.NewPreferenceState()
	s.mu.Unlock()
	for _, e := range events {
		artistID, genreIDs := resolver(e.TrackID)
		s.UpdateFromEvent(e, artistID, genreIDs)
	}
}

// RecordTrackSummary pushes a play onto the bounded recent-tracks list
// (supplemented feature, grounded on the teacher's MusicSummary handling
// in services/jobs/recommendation).
func (s *Store) RecordTrackSummary(summary types.TrackSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.RecentTracks = prependBounded(s.state.RecentTracks, summary, s.cfg.SummaryListMax)
	if summary.IsFavorite {
		s.state.TopRatedTracks = prependBounded(s.state.TopRatedTracks, summary, s.cfg.SummaryListMax)
	}
}

func prependBounded(list []types.TrackSummary, item types.TrackSummary, max int) []types.TrackSummary {
	out := append([]types.TrackSummary{item}, list...)
	if len(out) > max {
		out = out[:max]
	}
	return out
}
