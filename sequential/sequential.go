// Package sequential implements spec §2 component K: session-trajectory,
// tempo-flow, genre-transition and energy-trend scoring over recent
// session tracks.
package sequential

import (
	"sync"

	"audiio/types"
	"audiio/vectormath"
)

// Config tunes the weighted combination (§4.8).
type Config struct {
	TrajectoryWeight float64
	TempoWeight      float64
	GenreWeight      float64
	EnergyWeight     float64
	RecentWindow     int
}

// Scorer computes session-continuity signals and learns a genre
// transition matrix from observed completions/skips.
type Scorer struct {
	cfg Config

	mu         sync.Mutex
	transitions map[string]map[string]float64
}

// New builds a Scorer.
func New(cfg Config) *Scorer {
	if cfg.TrajectoryWeight == 0 && cfg.TempoWeight == 0 && cfg.GenreWeight == 0 && cfg.EnergyWeight == 0 {
		cfg = Config{TrajectoryWeight: 0.30, TempoWeight: 0.25, GenreWeight: 0.25, EnergyWeight: 0.20}
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 5
	}
	return &Scorer{cfg: cfg, transitions: make(map[string]map[string]float64)}
}

var defaultGenreTransitions = map[string]map[string]float64{
	"house":    {"techno": 0.8, "disco": 0.7, "house": 0.9},
	"techno":   {"house": 0.8, "trance": 0.7, "techno": 0.9},
	"pop":      {"dance": 0.6, "pop": 0.9, "rnb": 0.5},
	"rock":     {"alternative": 0.7, "rock": 0.9, "metal": 0.5},
	"hip-hop":  {"rnb": 0.6, "hip-hop": 0.9, "trap": 0.7},
	"jazz":     {"blues": 0.6, "jazz": 0.9, "soul": 0.6},
	"classical": {"classical": 0.9, "ambient": 0.5},
	"ambient":  {"ambient": 0.9, "classical": 0.4, "downtempo": 0.6},
}

// Result bundles the four component scores with their weighted overall
// and a confidence derived from how many recent tracks informed it.
type Result = types.SequentialResult

// recentWindow trims recent to the configured window, most-recent-last.
func (s *Scorer) recentWindow(recent []*types.AggregatedFeatures) []*types.AggregatedFeatures {
	if len(recent) <= s.cfg.RecentWindow {
		return recent
	}
	return recent[len(recent)-s.cfg.RecentWindow:]
}

// Score computes the full SequentialResult for candidate against the
// recent session tracks (§4.8). Returns a neutral 0.5/0.3-confidence
// result when there is no session history yet.
func (s *Scorer) Score(candidateTrack *types.Track, candidate *types.AggregatedFeatures, recentTracks []*types.Track, recent []*types.AggregatedFeatures) Result {
	recent = s.recentWindow(recent)
	if len(recent) == 0 {
		return Result{
			TrajectoryFit:   0.5,
			TempoFlow:       0.5,
			GenreTransition: 0.5,
			EnergyTrend:     0.5,
			Overall:         0.5,
			Confidence:      0.3,
		}
	}

	traj := s.trajectoryFit(candidate, recent)
	tempo := s.tempoFlow(candidateTrack, recentTracks)
	genre := s.genreTransition(candidateTrack, recentTracks)
	energy := s.energyProgression(candidate, recent)

	overall := s.cfg.TrajectoryWeight*traj + s.cfg.TempoWeight*tempo + s.cfg.GenreWeight*genre + s.cfg.EnergyWeight*energy
	confidence := 0.3 + 0.1*float64(len(recent))
	if confidence > 0.9 {
		confidence = 0.9
	}
	return Result{
		TrajectoryFit:   traj,
		TempoFlow:       tempo,
		GenreTransition: genre,
		EnergyTrend:     energy,
		Overall:         overall,
		Confidence:      confidence,
	}
}

// trajectoryFit predicts the next-embedding position by extrapolating the
// recent session's average velocity, and scores the candidate's distance
// to that prediction (§4.8).
func (s *Scorer) trajectoryFit(candidate *types.AggregatedFeatures, recent []*types.AggregatedFeatures) float64 {
	if candidate == nil || !candidate.HasEmbedding() {
		return 0.5
	}
	vectors := embeddingsOf(recent)
	if len(vectors) < 2 {
		if len(vectors) == 1 {
			dist := vectormath.Euclidean(candidate.Embedding.Vector, vectors[0])
			return clampFloor(1 - dist)
		}
		return 0.5
	}
	velocity := vectormath.Zeros(len(vectors[0]))
	count := 0
	for i := 1; i < len(vectors); i++ {
		for k := range velocity {
			velocity[k] += vectors[i][k] - vectors[i-1][k]
		}
		count++
	}
	for k := range velocity {
		velocity[k] /= float64(count)
	}
	last := vectors[len(vectors)-1]
	predicted := make([]float64, len(last))
	for k := range predicted {
		predicted[k] = last[k] + 0.5*velocity[k]
	}
	dist := vectormath.Euclidean(candidate.Embedding.Vector, predicted)
	return clampFloor(1 - dist)
}

func embeddingsOf(recent []*types.AggregatedFeatures) [][]float64 {
	var out [][]float64
	for _, f := range recent {
		if f != nil && f.HasEmbedding() {
			out = append(out, f.Embedding.Vector)
		}
	}
	return out
}

func clampFloor(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// tempoFlow implements the piecewise |Δbpm| table of §4.8.
func (s *Scorer) tempoFlow(candidate *types.Track, recent []*types.Track) float64 {
	if candidate == nil || candidate.Audio == nil || candidate.Audio.BPM == nil || len(recent) == 0 {
		return 0.6
	}
	last := recent[len(recent)-1]
	if last == nil || last.Audio == nil || last.Audio.BPM == nil {
		return 0.6
	}
	delta := *candidate.Audio.BPM - *last.Audio.BPM
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta <= 5:
		return 1.0
	case delta <= 10:
		return 0.9
	case delta <= 20:
		return 0.7
	case delta <= 40:
		return 0.5
	default:
		return 0.3
	}
}

// genreTransition consults the learned matrix first, else the default
// table, else 0.4 (§4.8).
func (s *Scorer) genreTransition(candidate *types.Track, recent []*types.Track) float64 {
	if candidate == nil || len(candidate.Genres) == 0 || len(recent) == 0 {
		return 0.4
	}
	last := recent[len(recent)-1]
	if last == nil || len(last.Genres) == 0 {
		return 0.4
	}
	from, to := last.Genres[0], candidate.Genres[0]

	s.mu.Lock()
	if m, ok := s.transitions[from]; ok {
		if v, ok := m[to]; ok {
			s.mu.Unlock()
			return v
		}
	}
	s.mu.Unlock()

	if m, ok := defaultGenreTransitions[from]; ok {
		if v, ok := m[to]; ok {
			return v
		}
	}
	return 0.4
}

// RecordTransition adjusts the learned genre transition matrix on
// completion (+0.05) or skip (-0.05), clamped to [0,1] (§4.8).
func (s *Scorer) RecordTransition(from, to string, completed bool) {
	if from == "" || to == "" {
		return
	}
	delta := -0.05
	if completed {
		delta = 0.05
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitions[from] == nil {
		s.transitions[from] = make(map[string]float64)
	}
	current, ok := s.transitions[from][to]
	if !ok {
		if def, exists := defaultGenreTransitions[from]; exists {
			if v, exists2 := def[to]; exists2 {
				current = v
			} else {
				current = 0.4
			}
		} else {
			current = 0.4
		}
	}
	current += delta
	if current < 0 {
		current = 0
	}
	if current > 1 {
		current = 1
	}
	s.transitions[from][to] = current
}

// energyProgression projects the energy trend across recent tracks and
// scores the candidate's distance from the expected next value (§4.8).
func (s *Scorer) energyProgression(candidate *types.AggregatedFeatures, recent []*types.AggregatedFeatures) float64 {
	energies := energiesOf(recent)
	if len(energies) == 0 || candidate == nil || !candidate.HasAudio() || candidate.Audio.Energy == nil {
		return 0.6
	}
	lastEnergy := energies[len(energies)-1]
	trend := 0.0
	if len(energies) >= 2 {
		trend = (energies[len(energies)-1] - energies[0]) / float64(len(energies)-1)
	}
	expected := lastEnergy + trend
	if expected < 0 {
		expected = 0
	}
	if expected > 1 {
		expected = 1
	}
	diff := *candidate.Audio.Energy - expected
	if diff < 0 {
		diff = -diff
	}
	score := 1 - 2*diff
	return clampFloor(score)
}

func energiesOf(recent []*types.AggregatedFeatures) []float64 {
	var out []float64
	for _, f := range recent {
		if f != nil && f.HasAudio() && f.Audio.Energy != nil {
			out = append(out, *f.Audio.Energy)
		}
	}
	return out
}
