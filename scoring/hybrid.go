// Package scoring implements spec §2 component L: HybridScorer, the 15+
// component fused score with an explanation trail and an in-line ML
// predictor call.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"audiio/cache"
	"audiio/config"
	"audiio/featurevector"
	"audiio/preference"
	"audiio/sequential"
	"audiio/types"
)

// componentOrder fixes the deterministic order explanations and
// confidence bookkeeping iterate components in (§4.7: "returned list is
// deterministic order").
var componentOrder = []string{
	"basePreference", "mlPrediction", "audioMatch", "moodMatch", "harmonicFlow",
	"temporalFit", "sessionFlow", "activityMatch", "explorationBonus",
	"serendipityScore", "diversityScore", "trajectoryFit", "tempoFlow",
	"genreTransition", "energyTrend",
}

const penaltyBasePoints = 20.0

// Scorable bundles a track with its resolved features, the unit the
// scorer operates on. Orchestrator resolves these in parallel before
// calling ScoreBatch (§4.7: "fetches features in parallel, then scores
// sequentially").
type Scorable struct {
	Track    *types.Track
	Features *types.AggregatedFeatures
}

// Scorer fuses preference, prediction, audio, harmonic, temporal,
// session, activity, exploration, serendipity, diversity and sequential
// signals into a calibrated TrackScore.
type Scorer struct {
	weights   config.ScoreWeights
	penalties config.PenaltyWeights
	highThreshold float64
	lowThreshold  float64

	predictor  types.Predictor
	prefStore  *preference.Store
	sequential *sequential.Scorer

	mu             sync.Mutex
	prefCache      map[string]prefCacheEntry
	prefCacheTTL   time.Duration
	explainCache   *cache.LRU[string, types.TrackScore]
}

type prefCacheEntry struct {
	artistAffinity float64
	genreAffinity  float64
	expiresAt      time.Time
}

// New builds a Scorer. predictor may be nil (mlPrediction component then
// contributes 0 with 0 confidence weight).
func New(weights config.ScoreWeights, penalties config.PenaltyWeights, highThreshold, lowThreshold float64, explainCacheSize int, prefCacheTTL time.Duration, predictor types.Predictor, prefStore *preference.Store, seq *sequential.Scorer) *Scorer {
	if explainCacheSize <= 0 {
		explainCacheSize = 100
	}
	if highThreshold == 0 {
		highThreshold = 0.7
	}
	if lowThreshold == 0 {
		lowThreshold = 0.3
	}
	return &Scorer{
		weights:       weights,
		penalties:     penalties,
		highThreshold: highThreshold,
		lowThreshold:  lowThreshold,
		predictor:     predictor,
		prefStore:     prefStore,
		sequential:    seq,
		prefCache:     make(map[string]prefCacheEntry),
		prefCacheTTL:  prefCacheTTL,
		explainCache:  cache.NewLRU[string, types.TrackScore]("scoring_explain", explainCacheSize),
	}
}

// HandleEvent invalidates the preference cache immediately on like/dislike
// events (§4.7).
func (s *Scorer) HandleEvent(e types.UserEvent) {
	if e.Kind != types.EventLike && e.Kind != types.EventDislike {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefCache = make(map[string]prefCacheEntry)
}

func (s *Scorer) cachedAffinity(artistID string, genreIDs []string) (float64, float64) {
	if s.prefStore == nil {
		return 0, 0
	}
	key := artistID
	if len(genreIDs) > 0 {
		key += "|" + genreIDs[0]
	}
	s.mu.Lock()
	if e, ok := s.prefCache[key]; ok && time.Now().Before(e.expiresAt) {
		s.mu.Unlock()
		return e.artistAffinity, e.genreAffinity
	}
	s.mu.Unlock()

	artistAff := s.prefStore.ArtistAffinity(artistID)
	genreAff := 0.0
	for _, g := range genreIDs {
		genreAff += s.prefStore.GenreAffinity(g)
	}
	if len(genreIDs) > 0 {
		genreAff /= float64(len(genreIDs))
	}

	s.mu.Lock()
	s.prefCache[key] = prefCacheEntry{artistAffinity: artistAff, genreAffinity: genreAff, expiresAt: time.Now().Add(s.prefCacheTTL)}
	s.mu.Unlock()
	return artistAff, genreAff
}

// noDataScore is the §7/§8-S1 fallback returned when nothing is actually
// known about the candidate: no preference history, no predictor, no
// audio/mood/harmonic/temporal/session/activity signal and no session
// trajectory to extrapolate from.
func noDataScore(trackID string) types.TrackScore {
	score := types.TrackScore{
		TrackID:     trackID,
		FinalScore:  50,
		Confidence:  0,
		Explanation: []string{"no data"},
	}
	return score
}

// Score produces a TrackScore for one candidate under ctx (§4.7).
func (s *Scorer) Score(ctx context.Context, candidate Scorable, sctx types.ScoringContext) types.TrackScore {
	components := make(map[string]float64, len(componentOrder))
	known := 0

	artistID := candidate.Track.PrimaryArtist()
	genreIDs := candidate.Track.Genres

	basePref, ok := s.basePreference(artistID, genreIDs)
	if ok {
		components["basePreference"] = basePref
		known++
	}

	mlScore, mlWeight, ok := s.mlPrediction(ctx, candidate)
	if ok {
		components["mlPrediction"] = mlScore
		known++
	}

	if v, ok := s.audioMatch(candidate, sctx); ok {
		components["audioMatch"] = v
		known++
	}
	if v, ok := s.moodMatch(candidate, sctx); ok {
		components["moodMatch"] = v
		known++
	}
	if v, ok := s.harmonicFlow(candidate, sctx); ok {
		components["harmonicFlow"] = v
		known++
	}
	if v, ok := s.temporalFit(genreIDs, sctx); ok {
		components["temporalFit"] = v
		known++
	}
	if v, ok := s.sessionFlow(candidate, sctx); ok {
		components["sessionFlow"] = v
		known++
	}
	if v, ok := s.activityMatch(candidate, sctx); ok {
		components["activityMatch"] = v
		known++
	}

	hasSessionHistory := len(sctx.SessionTracks) > 0 || len(sctx.SessionFeatures) > 0
	if known == 0 && !hasSessionHistory {
		score := noDataScore(candidate.Track.ID)
		s.explainCache.Add(candidate.Track.ID, score)
		return score
	}

	// explorationBonus/serendipityScore/diversityScore are policy defaults
	// rather than learned signal about this candidate, so they contribute
	// to the weighted total but never count toward "known".
	components["explorationBonus"] = s.explorationBonus(artistID, genreIDs, sctx)
	components["serendipityScore"] = s.serendipityScore(components)
	components["diversityScore"] = s.diversityScore(artistID, genreIDs, sctx)

	if s.sequential != nil {
		result := s.sequential.Score(candidate.Track, candidate.Features, sctx.SessionTracks, sctx.SessionFeatures)
		components["trajectoryFit"] = result.TrajectoryFit
		components["tempoFlow"] = result.TempoFlow
		components["genreTransition"] = result.GenreTransition
		components["energyTrend"] = result.EnergyTrend
		if hasSessionHistory {
			known += 4
		}
	}

	// Renormalize over the weight mass of components actually present:
	// summing raw weights would silently drag the total toward zero
	// whenever some components are absent instead of averaging only over
	// what's known (§4.7).
	weighted, weightSum := 0.0, 0.0
	for name, v := range components {
		w := s.weightFor(name, mlWeight)
		weighted += w * v
		weightSum += w
	}
	total := 50.0
	if weightSum > 0 {
		total = (weighted / weightSum) * 100
	}

	penalty := s.penaltyTotal(candidate, artistID, sctx)
	final := total - penalty
	final = clampRange(final, 0, 100)

	confidence := 0.3 + 0.1*float64(known)
	if confidence > 1 {
		confidence = 1
	}

	explanation := s.explain(components)

	score := types.TrackScore{
		TrackID:     candidate.Track.ID,
		FinalScore:  final,
		Confidence:  confidence,
		Components:  components,
		Explanation: explanation,
	}
	s.explainCache.Add(candidate.Track.ID, score)
	return score
}

func (s *Scorer) weightFor(name string, mlWeight float64) float64 {
	switch name {
	case "basePreference":
		return s.weights.BasePreference
	case "mlPrediction":
		return mlWeight
	case "audioMatch":
		return s.weights.AudioMatch
	case "moodMatch":
		return s.weights.MoodMatch
	case "harmonicFlow":
		return s.weights.HarmonicFlow
	case "temporalFit":
		return s.weights.TemporalFit
	case "sessionFlow":
		return s.weights.SessionFlow
	case "activityMatch":
		return s.weights.ActivityMatch
	case "explorationBonus":
		return s.weights.ExplorationBonus
	case "serendipityScore":
		return s.weights.SerendipityScore
	case "diversityScore":
		return s.weights.DiversityScore
	case "trajectoryFit":
		return s.weights.TrajectoryFit
	case "tempoFlow":
		return s.weights.TempoFlow
	case "genreTransition":
		return s.weights.GenreTransition
	case "energyTrend":
		return s.weights.EnergyTrend
	default:
		return 0
	}
}

func (s *Scorer) basePreference(artistID string, genreIDs []string) (float64, bool) {
	if s.prefStore == nil || !s.prefStore.HasAnyData() {
		return 0, false
	}
	artistAff, genreAff := s.cachedAffinity(artistID, genreIDs)
	blended := 0.6*artistAff + 0.4*genreAff
	return (clampRange(blended, -1, 1) + 1) / 2, true
}

// mlPrediction calls Predictor.Predict with the §4.10 feature vector and
// scales its contribution weight by the predictor's self-assessed
// confidence (§4.7's "ML weight scaling").
func (s *Scorer) mlPrediction(ctx context.Context, candidate Scorable) (float64, float64, bool) {
	if s.predictor == nil {
		return 0, 0, false
	}
	var audio *types.AudioDescriptors
	if candidate.Features != nil {
		audio = candidate.Features.Audio
	} else if candidate.Track != nil {
		audio = candidate.Track.Audio
	}
	vec := featurevector.Build(candidate.Track, audio, types.ScoringContext{}, featurevector.UserStats{})
	v, err := s.predictor.Predict(ctx, vec)
	if err != nil {
		return 0, 0, false
	}
	confidence := s.predictor.Confidence()
	effectiveWeight := s.weights.MLPrediction * (0.1 + 0.5*confidence)
	return clampRange(v, 0, 1), effectiveWeight, true
}

func (s *Scorer) audioMatch(candidate Scorable, sctx types.ScoringContext) (float64, bool) {
	if candidate.Features == nil || !candidate.Features.HasAudio() || sctx.CurrentFeatures == nil || !sctx.CurrentFeatures.HasAudio() {
		return 0, false
	}
	a := audioSubspace(candidate.Features.Audio)
	b := audioSubspace(sctx.CurrentFeatures.Audio)
	if a == nil || b == nil {
		return 0, false
	}
	const dMax = 2.449489742783178 // sqrt(6): max Euclidean distance over 6 dims each in [0,1]
	dist := euclidean(a, b)
	return clampRange(1-dist/dMax, 0, 1), true
}

func audioSubspace(a *types.AudioDescriptors) []float64 {
	fields := []*float64{a.Energy, a.Valence, a.Danceability, a.Acousticness, a.Instrumentalness, a.Speechiness}
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		if f == nil {
			return nil
		}
		out = append(out, *f)
	}
	return out
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

var moodAnchors = map[string][2]float64{ // valence, arousal
	"happy": {0.8, 0.6}, "sad": {0.2, 0.3}, "energetic": {0.7, 0.9}, "calm": {0.6, 0.2},
	"angry": {0.2, 0.8}, "romantic": {0.7, 0.4}, "melancholic": {0.3, 0.3}, "uplifting": {0.85, 0.65},
	"dark": {0.2, 0.5}, "dreamy": {0.6, 0.3}, "aggressive": {0.25, 0.9}, "peaceful": {0.65, 0.15},
	"nostalgic": {0.45, 0.35}, "triumphant": {0.8, 0.75}, "tense": {0.3, 0.7}, "playful": {0.75, 0.6},
}

func (s *Scorer) moodMatch(candidate Scorable, sctx types.ScoringContext) (float64, bool) {
	if sctx.UserMood == "" || candidate.Features == nil || candidate.Features.Emotion == nil {
		return 0, false
	}
	anchor, ok := moodAnchors[sctx.UserMood]
	if !ok {
		return 0, false
	}
	dv := candidate.Features.Emotion.Valence - anchor[0]
	da := candidate.Features.Emotion.Arousal - anchor[1]
	dist := math.Sqrt(dv*dv + da*da)
	const dMax = 1.4142135623730951
	return clampRange(1-dist/dMax, 0, 1), true
}

// pitchClasses / circleOfFifths maps a pitch class (0..11) to its position
// on the circle of fifths, used by harmonicFlow.
var circleOfFifths = [12]int{0, 7, 2, 9, 4, 11, 6, 1, 8, 3, 10, 5}

func fifthsPosition(pitchClass int) int {
	for pos, pc := range circleOfFifths {
		if pc == pitchClass%12 {
			return pos
		}
	}
	return 0
}

func (s *Scorer) harmonicFlow(candidate Scorable, sctx types.ScoringContext) (float64, bool) {
	if candidate.Features == nil || !candidate.Features.HasAudio() || sctx.CurrentFeatures == nil || !sctx.CurrentFeatures.HasAudio() {
		return 0, false
	}
	ca, cur := candidate.Features.Audio, sctx.CurrentFeatures.Audio
	if ca.Key == nil || cur.Key == nil {
		return 0, false
	}
	pc1, pc2 := fifthsPosition(*ca.Key), fifthsPosition(*cur.Key)
	dist := pc1 - pc2
	if dist < 0 {
		dist = -dist
	}
	if dist > 6 {
		dist = 12 - dist
	}
	score := 1 - float64(dist)/6
	if ca.Mode != nil && cur.Mode != nil {
		if *ca.Mode == *cur.Mode {
			score += 0.1
		} else if dist == 3 {
			score += 0.15 // relative major/minor bonus
		}
	}
	return clampRange(score, 0, 1), true
}

func (s *Scorer) temporalFit(genreIDs []string, sctx types.ScoringContext) (float64, bool) {
	if s.prefStore == nil || !s.prefStore.HasAnyData() || len(genreIDs) == 0 {
		return 0, false
	}
	total := 0.0
	for _, g := range genreIDs {
		total += s.prefStore.GenreAffinityAtHour(g, sctx.HourOfDay)
	}
	return clampRange(total/float64(len(genreIDs)), 0, 1), true
}

func (s *Scorer) sessionFlow(candidate Scorable, sctx types.ScoringContext) (float64, bool) {
	if candidate.Features == nil || !candidate.Features.HasAudio() || len(sctx.SessionFeatures) == 0 {
		return 0, false
	}
	last := sctx.SessionFeatures[len(sctx.SessionFeatures)-1]
	if last == nil || !last.HasAudio() {
		return 0, false
	}
	score := 0.0
	count := 0
	if candidate.Features.Audio.Energy != nil && last.Audio.Energy != nil {
		score += 1 - math.Abs(*candidate.Features.Audio.Energy-*last.Audio.Energy)
		count++
	}
	if candidate.Features.Audio.Danceability != nil && last.Audio.Danceability != nil {
		score += 1 - math.Abs(*candidate.Features.Audio.Danceability-*last.Audio.Danceability)
		count++
	}
	if count == 0 {
		return 0, false
	}
	return clampRange(score/float64(count), 0, 1), true
}

var activityProfiles = map[string][2]float64{ // desired energy, desired danceability
	"workout": {0.85, 0.7}, "study": {0.25, 0.2}, "sleep": {0.1, 0.1}, "party": {0.8, 0.9}, "commute": {0.5, 0.4},
}

func (s *Scorer) activityMatch(candidate Scorable, sctx types.ScoringContext) (float64, bool) {
	if sctx.Activity == "" || candidate.Features == nil || !candidate.Features.HasAudio() {
		return 0, false
	}
	profile, ok := activityProfiles[sctx.Activity]
	if !ok {
		return 0, false
	}
	a := candidate.Features.Audio
	if a.Energy == nil || a.Danceability == nil {
		return 0, false
	}
	dist := math.Sqrt(math.Pow(*a.Energy-profile[0], 2) + math.Pow(*a.Danceability-profile[1], 2))
	return clampRange(1-dist/math.Sqrt2, 0, 1), true
}

func (s *Scorer) explorationBonus(artistID string, genreIDs []string, sctx types.ScoringContext) float64 {
	eps := sctx.ExplorationSetting.Epsilon()
	if s.prefStore == nil {
		return eps
	}
	novelty := 0.0
	if s.prefStore.ArtistAffinity(artistID) == 0 {
		novelty += 0.5
	}
	for _, g := range genreIDs {
		if s.prefStore.GenreAffinity(g) == 0 {
			novelty += 0.5 / float64(max(1, len(genreIDs)))
		}
	}
	return clampRange(novelty, 0, 1) * eps
}

func (s *Scorer) serendipityScore(components map[string]float64) float64 {
	audio := components["audioMatch"]
	novelty := components["explorationBonus"]
	return clampRange(audio*0.5+novelty*2, 0, 1)
}

func (s *Scorer) diversityScore(artistID string, genreIDs []string, sctx types.ScoringContext) float64 {
	artistCount := sctx.QueueArtistCounts[artistID]
	genreCount := 0
	for _, g := range genreIDs {
		genreCount += sctx.QueueGenreCounts[g]
	}
	penalty := float64(artistCount)*0.3 + float64(genreCount)*0.15
	return clampRange(1-penalty, 0, 1)
}

func (s *Scorer) penaltyTotal(candidate Scorable, artistID string, sctx types.ScoringContext) float64 {
	total := 0.0
	if s.prefStore != nil {
		if s.prefStore.WasRecentlyPlayed(candidate.Track.ID, time.Hour) {
			total += penaltyBasePoints * s.penalties.RecentPlay
		}
		if s.prefStore.IsDisliked(candidate.Track.ID) {
			total += penaltyBasePoints * s.penalties.Dislike
		}
	}
	artistCount := sctx.QueueArtistCounts[artistID]
	if artistCount >= 2 {
		total += penaltyBasePoints * 0.5 * s.penalties.Repetition
	}
	fatigue := s.fatiguePenalty(candidate, sctx)
	total += fatigue * penaltyBasePoints * s.penalties.Fatigue
	return total
}

func (s *Scorer) fatiguePenalty(candidate Scorable, sctx types.ScoringContext) float64 {
	if candidate.Features == nil || !candidate.Features.HasEmbedding() || len(sctx.SessionFeatures) == 0 {
		return 0
	}
	sum := 0.0
	count := 0
	for _, f := range sctx.SessionFeatures {
		if f == nil || !f.HasEmbedding() {
			continue
		}
		sum += cosine(candidate.Features.Embedding.Vector, f.Embedding.Vector)
		count++
	}
	if count == 0 {
		return 0
	}
	avg := sum / float64(count)
	if avg < 0.9 {
		return 0
	}
	return clampRange((avg-0.9)*10, 0, 1)
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na < 1e-12 || nb < 1e-12 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// explain builds the deterministic-order explanation trail (§4.7).
func (s *Scorer) explain(components map[string]float64) []string {
	var out []string
	for _, name := range componentOrder {
		v, ok := components[name]
		if !ok {
			continue
		}
		if v > s.highThreshold {
			out = append(out, fmt.Sprintf("%s strongly favors this track", name))
		} else if v < s.lowThreshold {
			out = append(out, fmt.Sprintf("%s works against this track", name))
		}
	}
	return out
}

// Explain returns the cached explanation for trackID from the most recent
// Score/ScoreBatch call, or an error if it was never scored or has since
// been evicted (§4.7: FIFO cache of 100 recent scores).
func (s *Scorer) Explain(trackID string) (types.TrackScore, error) {
	// Peek, not Get: reading must not refresh an entry's position, so
	// eviction follows scoring order only.
	if v, ok := s.explainCache.Peek(trackID); ok {
		return v, nil
	}
	return types.TrackScore{}, fmt.Errorf("scoring: no cached score for track %q", trackID)
}

// ScoreBatch scores every candidate sequentially against the same
// ScoringContext (§4.7). Feature resolution happens upstream; see
// Scorable's doc comment.
func (s *Scorer) ScoreBatch(ctx context.Context, candidates []Scorable, sctx types.ScoringContext) []types.TrackScore {
	out := make([]types.TrackScore, len(candidates))
	for i, c := range candidates {
		out[i] = s.Score(ctx, c, sctx)
	}
	return out
}

// RankDescending sorts scores by FinalScore descending, ties broken by
// TrackID for stability.
func RankDescending(scores []types.TrackScore) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].FinalScore != scores[j].FinalScore {
			return scores[i].FinalScore > scores[j].FinalScore
		}
		return scores[i].TrackID < scores[j].TrackID
	})
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
