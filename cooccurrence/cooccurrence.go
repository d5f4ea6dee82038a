// Package cooccurrence implements spec §2 component H: pair-keyed
// co-occurrence counts with proximity weighting, per-context buckets,
// decay and pruning.
package cooccurrence

import (
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"audiio/types"
)

// Config tunes the matrix's maintenance behaviour (§4.5).
type Config struct {
	DecayFactor         float64
	MinCount            float64
	MaxPairs            int
	SequentialWeight    float64
	LikeAfterPlayWeight float64
}

// Matrix tracks pairwise track co-occurrence for single-user collaborative
// filtering.
type Matrix struct {
	cfg Config

	mu             sync.Mutex
	entries        map[types.PairKey]*types.CoOccurrenceEntry
	lastDecayAtDay int64
	now            func() time.Time
}

// New builds an empty Matrix.
func New(cfg Config) *Matrix {
	if cfg.DecayFactor <= 0 {
		cfg.DecayFactor = 0.98
	}
	if cfg.MinCount <= 0 {
		cfg.MinCount = 2
	}
	if cfg.MaxPairs <= 0 {
		cfg.MaxPairs = 200000
	}
	if cfg.SequentialWeight <= 0 {
		cfg.SequentialWeight = 1.5
	}
	if cfg.LikeAfterPlayWeight <= 0 {
		cfg.LikeAfterPlayWeight = 3.0
	}
	return &Matrix{
		cfg:     cfg,
		entries: make(map[types.PairKey]*types.CoOccurrenceEntry),
		now:     time.Now,
	}
}

// RecordCooccurrence adds proximity-weighted count for every unordered
// pair in trackIDs, per §4.5: weight * e^(-0.1*|distance|).
func (m *Matrix) RecordCooccurrence(trackIDs []string, context string, weight float64) {
	if weight <= 0 {
		weight = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UnixMilli()
	for i := 0; i < len(trackIDs); i++ {
		for j := i + 1; j < len(trackIDs); j++ {
			dist := j - i
			w := weight * math.Exp(-0.1*float64(dist))
			m.bump(trackIDs[i], trackIDs[j], context, w, now)
		}
	}
	m.maybePrune()
}

// RecordSequentialPlay adds the fixed sequential-pair bonus (§4.5).
func (m *Matrix) RecordSequentialPlay(prev, cur string) {
	if prev == "" || cur == "" || prev == cur {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bump(prev, cur, "sequential", m.cfg.SequentialWeight, m.now().UnixMilli())
	m.maybePrune()
}

// RecordLikeAfterPlay adds the fixed like-after-play bonus (§4.5).
func (m *Matrix) RecordLikeAfterPlay(prev, cur string) {
	if prev == "" || cur == "" || prev == cur {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bump(prev, cur, "like-after-play", m.cfg.LikeAfterPlayWeight, m.now().UnixMilli())
	m.maybePrune()
}

func (m *Matrix) bump(a, b, context string, weight float64, nowMs int64) {
	key := types.CanonPair(a, b)
	e, ok := m.entries[key]
	if !ok {
		e = &types.CoOccurrenceEntry{Key: key, ContextWeight: make(map[string]float64), FirstSeenMs: nowMs}
		m.entries[key] = e
	}
	e.Count += weight
	if context != "" {
		e.ContextWeight[context] += weight
	}
	e.LastSeenMs = nowMs
}

// ApplyDailyDecay multiplies every count by DecayFactor and drops entries
// below MinCount, at most once per UTC day (§4.5 maintenance (a)). Safe to
// call on every tick; it is a no-op within the same day.
func (m *Matrix) ApplyDailyDecay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := m.now().UTC().Truncate(24 * time.Hour).Unix()
	if today == m.lastDecayAtDay {
		return
	}
	m.lastDecayAtDay = today
	for key, e := range m.entries {
		e.Count *= m.cfg.DecayFactor
		for ctx := range e.ContextWeight {
			e.ContextWeight[ctx] *= m.cfg.DecayFactor
		}
		if e.Count < m.cfg.MinCount {
			delete(m.entries, key)
		}
	}
}

// maybePrune evicts the lowest count*e^(-age_days/7) entries when over
// MaxPairs (§4.5 maintenance (b)). Caller must hold mu.
func (m *Matrix) maybePrune() {
	if len(m.entries) <= m.cfg.MaxPairs {
		return
	}
	nowMs := m.now().UnixMilli()
	type scored struct {
		key   types.PairKey
		score float64
	}
	all := make([]scored, 0, len(m.entries))
	for key, e := range m.entries {
		ageDays := float64(nowMs-e.LastSeenMs) / (1000 * 60 * 60 * 24)
		score := e.Count * math.Exp(-ageDays/7)
		all = append(all, scored{key: key, score: score})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score < all[j].score })
	toEvict := len(m.entries) - m.cfg.MaxPairs
	for i := 0; i < toEvict && i < len(all); i++ {
		delete(m.entries, all[i].key)
	}
}

// Related is one ranked counterpart from GetRelated/GetRelatedMultiple.
type Related struct {
	TrackID string
	Score   float64
}

// GetRelated returns the top-limit counterparts of trackID sorted by
// count, breaking ties lexicographically by id (§4.5).
func (m *Matrix) GetRelated(trackID string, limit int) []Related {
	m.mu.Lock()
	defer m.mu.Unlock()
	scores := make(map[string]float64)
	for key, e := range m.entries {
		other := otherSide(key, trackID)
		if other == "" {
			continue
		}
		scores[other] += e.Count
	}
	return topRelated(scores, limit)
}

// GetRelatedMultiple sums scores across every seed in ids, excluding the
// seed set itself (§4.5).
func (m *Matrix) GetRelatedMultiple(ids []string, limit int) []Related {
	seeds := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seeds[id] = struct{}{}
	}
	m.mu.Lock()
	scores := make(map[string]float64)
	for _, id := range ids {
		for key, e := range m.entries {
			other := otherSide(key, id)
			if other == "" {
				continue
			}
			if _, isSeed := seeds[other]; isSeed {
				continue
			}
			scores[other] += e.Count
		}
	}
	m.mu.Unlock()
	return topRelated(scores, limit)
}

func otherSide(key types.PairKey, id string) string {
	switch id {
	case key.A:
		return key.B
	case key.B:
		return key.A
	default:
		return ""
	}
}

func topRelated(scores map[string]float64, limit int) []Related {
	out := make([]Related, 0, len(scores))
	for id, score := range scores {
		out = append(out, Related{TrackID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TrackID < out[j].TrackID
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// GenerateCollaborativeEmbedding derives a D-dimensional fallback
// embedding for trackID from its related tracks, by deterministic hashing
// of each related id into D positions weighted by log(1+score), followed
// by normalisation (§4.5). Intended for use when audio/genre data is
// absent.
func (m *Matrix) GenerateCollaborativeEmbedding(trackID string, d int) []float64 {
	related := m.GetRelated(trackID, 50)
	out := make([]float64, d)
	if len(related) == 0 {
		return out
	}
	for _, r := range related {
		weight := math.Log1p(r.Score)
		for pos := 0; pos < 3; pos++ {
			idx := hashToIndex(r.TrackID, pos, d)
			out[idx] += weight
		}
	}
	return normalize(out)
}

func hashToIndex(id string, salt, d int) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	h.Write([]byte{byte(salt)})
	return int(h.Sum32() % uint32(d))
}

func normalize(v []float64) []float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	if sum < 1e-12 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
	return v
}
