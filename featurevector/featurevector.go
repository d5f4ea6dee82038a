// Package featurevector implements spec §4.10: the fixed-length
// normalised vector handed to a Predictor for one (track, context,
// user-stats) triple.
package featurevector

import (
	"math"

	"audiio/types"
)

// CanonicalGenres are the 16 buckets of the multi-hot genre encoding. A
// track with no listed genre is marked in the last bucket ("ambient"),
// which doubles as "other"; there is no separate 17th slot.
var CanonicalGenres = []string{
	"pop", "rock", "hip-hop", "electronic", "house", "techno", "jazz", "classical",
	"rnb", "country", "metal", "folk", "reggae", "blues", "soul", "ambient",
}

// Dimension is the total feature-vector length: 16 genre + 12 audio + 6
// user-stats + 5 context = 39. "Other" genres are folded into the last
// genre slot rather than adding a 17th dimension.
const Dimension = 16 + 12 + 6 + 5

// UserStats is the per-user input to the user-stats block (§4.10).
type UserStats struct {
	PlayCount       int
	SkipRatio       float64 // 0..1
	CompletionRatio float64 // 0..1
	LastPlayedMs    int64
	NowMs           int64
	ArtistAffinity  float64 // -1..1 (normalised, from PreferenceStore)
	GenreAffinity   float64 // -1..1
}

// Build produces the §4.10 feature vector for a single track/context/user
// triple, in [0,1] throughout.
func Build(track *types.Track, audio *types.AudioDescriptors, ctx types.ScoringContext, stats UserStats) []float64 {
	v := make([]float64, 0, Dimension)
	v = append(v, genreOneHot(track)...)
	v = append(v, audioBlock(audio)...)
	v = append(v, userStatsBlock(stats)...)
	v = append(v, contextBlock(ctx)...)
	return v
}

func genreOneHot(track *types.Track) []float64 {
	out := make([]float64, 16)
	if track == nil || len(track.Genres) == 0 {
		return out
	}
	known := make(map[string]int, len(CanonicalGenres))
	for i, g := range CanonicalGenres {
		known[g] = i
	}
	matched := false
	for _, g := range track.Genres {
		if idx, ok := known[g]; ok {
			out[idx] = 1
			matched = true
		}
	}
	if !matched {
		out[len(out)-1] = 1 // fold "other" into the last canonical slot
	}
	return out
}

func audioBlock(a *types.AudioDescriptors) []float64 {
	out := make([]float64, 12)
	if a == nil {
		return out
	}
	fields := []*float64{
		a.Energy, a.Valence, a.Danceability, a.Acousticness, a.Instrumentalness,
		a.Speechiness, a.Liveness, a.AnalysisConfidence,
	}
	for i, f := range fields {
		if f != nil {
			out[i] = clamp01(*f)
		}
	}
	if a.BPM != nil {
		out[8] = clamp01((*a.BPM - 20) / (300 - 20))
	}
	if a.LoudnessDB != nil {
		out[9] = clamp01((*a.LoudnessDB + 60) / 60)
	}
	if a.Key != nil {
		out[10] = clamp01(float64(*a.Key) / 11)
	}
	if a.Mode != nil && *a.Mode == types.ModeMajor {
		out[11] = 1
	}
	return out
}

func userStatsBlock(s UserStats) []float64 {
	out := make([]float64, 6)
	out[0] = clamp01(math.Log1p(float64(s.PlayCount)) / math.Log1p(1000))
	out[1] = clamp01(s.SkipRatio)
	out[2] = clamp01(s.CompletionRatio)
	out[3] = recencyScore(s.LastPlayedMs, s.NowMs)
	out[4] = (clamp11(s.ArtistAffinity) + 1) / 2
	out[5] = (clamp11(s.GenreAffinity) + 1) / 2
	return out
}

// recencyScore is an exponential decay with a 7-day half-life (§4.10).
func recencyScore(lastPlayedMs, nowMs int64) float64 {
	if lastPlayedMs <= 0 || nowMs <= lastPlayedMs {
		return 0
	}
	ageDays := float64(nowMs-lastPlayedMs) / (1000 * 60 * 60 * 24)
	return math.Exp(-ageDays * math.Ln2 / 7)
}

func contextBlock(ctx types.ScoringContext) []float64 {
	hourFrac := float64(ctx.HourOfDay) / 24 * 2 * math.Pi
	dayFrac := float64(ctx.DayOfWeek) / 7 * 2 * math.Pi
	isWeekend := 0.0
	if ctx.DayOfWeek == 0 || ctx.DayOfWeek == 6 {
		isWeekend = 1
	}
	return []float64{
		(math.Sin(hourFrac) + 1) / 2,
		(math.Cos(hourFrac) + 1) / 2,
		(math.Sin(dayFrac) + 1) / 2,
		(math.Cos(dayFrac) + 1) / 2,
		isWeekend,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp11(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
