// Package radio implements spec §2 component M: RadioGenerator, drifted
// seed-weighted candidate generation on top of PlaylistGenerator and
// HybridScorer (§4.14).
package radio

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"audiio/feature"
	"audiio/playlist"
	"audiio/scoring"
	"audiio/types"
)

// SeedType names the kind of anchor a radio session is built from.
type SeedType string

const (
	SeedTrack    SeedType = "track"
	SeedArtist   SeedType = "artist"
	SeedGenre    SeedType = "genre"
	SeedMood     SeedType = "mood"
	SeedPlaylist SeedType = "playlist"
)

// Seed identifies a radio session's anchor.
type Seed struct {
	Type SeedType
	ID   string
}

func (s Seed) key() string { return string(s.Type) + ":" + s.ID }

// Config tunes the seed-weight decay and diversity behaviour (§4.14).
type Config struct {
	ArtistCap               int
	SeedWeightFloor         float64
	SeedWeightStart         float64
	SeedWeightDecayPerTrack float64
	CandidateMultiplier     int
	RandomSeed              int64
}

type session struct {
	played map[string]struct{}
	drift  int
}

// Generator produces infinite radio streams from a seed, mixing scored
// preference with decaying randomness as a session wears on.
type Generator struct {
	cfg Config

	playlist *playlist.Generator
	scorer   *scoring.Scorer
	features *feature.Aggregator
	library  types.LibrarySource

	mu       sync.Mutex
	sessions map[string]*session
	rng      *rand.Rand
}

// New builds a Generator. library may be nil only in tests that never hit
// the artist-catalogue or playlist-expansion routes.
func New(cfg Config, pl *playlist.Generator, scorer *scoring.Scorer, features *feature.Aggregator, library types.LibrarySource) *Generator {
	if cfg.ArtistCap <= 0 {
		cfg.ArtistCap = 2
	}
	if cfg.SeedWeightFloor <= 0 {
		cfg.SeedWeightFloor = 0.3
	}
	if cfg.SeedWeightStart <= 0 {
		cfg.SeedWeightStart = 0.7
	}
	if cfg.SeedWeightDecayPerTrack <= 0 {
		cfg.SeedWeightDecayPerTrack = 0.02
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 3
	}
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		cfg:      cfg,
		playlist: pl,
		scorer:   scorer,
		features: features,
		library:  library,
		sessions: make(map[string]*session),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

func (g *Generator) sessionFor(seed Seed) *session {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[seed.key()]
	if !ok {
		s = &session{played: make(map[string]struct{})}
		g.sessions[seed.key()] = s
	}
	return s
}

// Reset clears the session state for seed, restarting drift and the
// played set.
func (g *Generator) Reset(seed Seed) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, seed.key())
}

// Generate produces up to count scored tracks for seed (§4.14).
func (g *Generator) Generate(ctx context.Context, seed Seed, count int, sctx types.ScoringContext) ([]types.TrackScore, error) {
	if count <= 0 {
		count = 10
	}
	sess := g.sessionFor(seed)

	g.mu.Lock()
	drift := sess.drift
	g.mu.Unlock()
	seedWeight := g.cfg.SeedWeightStart - float64(drift)*g.cfg.SeedWeightDecayPerTrack
	if seedWeight < g.cfg.SeedWeightFloor {
		seedWeight = g.cfg.SeedWeightFloor
	}

	fanoutLimit := count * g.cfg.CandidateMultiplier
	candidateIDs, err := g.fetchCandidates(ctx, seed, fanoutLimit)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	filtered := make([]string, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if _, played := sess.played[id]; !played {
			filtered = append(filtered, id)
		}
	}
	g.mu.Unlock()

	radioCtx := sctx
	radioCtx.QueueMode = "radio"
	radioCtx.RadioDrift = drift

	scored := make([]types.TrackScore, 0, len(filtered))
	tracksByID := make(map[string]*types.Track, len(filtered))
	for _, id := range filtered {
		track, err := g.resolveTrack(ctx, id)
		if err != nil || track == nil {
			continue
		}
		var features *types.AggregatedFeatures
		if g.features != nil {
			features, _ = g.features.Get(ctx, id)
		}
		ts := g.scorer.Score(ctx, scoring.Scorable{Track: track, Features: features}, radioCtx)
		tracksByID[id] = track
		scored = append(scored, ts)
	}

	mixed := make([]mixedCandidate, 0, len(scored))
	for _, ts := range scored {
		adjusted := ts.FinalScore*seedWeight + ts.FinalScore*(1-seedWeight)*g.rng.Float64()
		mixed = append(mixed, mixedCandidate{score: ts, adjusted: adjusted, artist: tracksByID[ts.TrackID].PrimaryArtist()})
	}
	sort.Slice(mixed, func(i, j int) bool {
		if mixed[i].adjusted != mixed[j].adjusted {
			return mixed[i].adjusted > mixed[j].adjusted
		}
		return mixed[i].score.TrackID < mixed[j].score.TrackID
	})

	selected := g.selectDiverse(mixed, count)

	g.mu.Lock()
	for _, m := range selected {
		sess.played[m.score.TrackID] = struct{}{}
	}
	sess.drift += len(selected)
	g.mu.Unlock()

	out := make([]types.TrackScore, 0, len(selected))
	for _, m := range selected {
		out = append(out, m.score)
	}
	return out, nil
}

type mixedCandidate struct {
	score    types.TrackScore
	adjusted float64
	artist   string
}

// selectDiverse walks ranked enforcing the artist cap; once every
// remaining candidate would bust the cap, it falls back to weighted
// random (by adjusted score) among the saturated remainder rather than
// truncating the stream (§4.14 step 6).
func (g *Generator) selectDiverse(ranked []mixedCandidate, limit int) []mixedCandidate {
	selected := make([]mixedCandidate, 0, limit)
	counts := make(map[string]int)
	var overflow []mixedCandidate

	for _, m := range ranked {
		if len(selected) >= limit {
			return selected
		}
		if m.artist != "" && counts[m.artist] >= g.cfg.ArtistCap {
			overflow = append(overflow, m)
			continue
		}
		selected = append(selected, m)
		if m.artist != "" {
			counts[m.artist]++
		}
	}

	for len(selected) < limit && len(overflow) > 0 {
		pick := g.weightedPick(overflow)
		selected = append(selected, overflow[pick])
		overflow = append(overflow[:pick], overflow[pick+1:]...)
	}
	return selected
}

// weightedPick chooses an index from candidates with probability
// proportional to adjusted score, falling back to uniform when every
// weight is zero.
func (g *Generator) weightedPick(candidates []mixedCandidate) int {
	total := 0.0
	for _, c := range candidates {
		total += c.adjusted
	}
	if total <= 0 {
		return g.rng.Intn(len(candidates))
	}
	r := g.rng.Float64() * total
	for i, c := range candidates {
		r -= c.adjusted
		if r <= 0 {
			return i
		}
	}
	return len(candidates) - 1
}

// fetchCandidates routes to the seed-type-specific candidate sources of
// §4.14 step 2 and deduplicates the union.
func (g *Generator) fetchCandidates(ctx context.Context, seed Seed, limit int) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	add := func(newIDs []string) {
		for _, id := range newIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	switch seed.Type {
	case SeedTrack:
		cands, err := g.playlist.Generate(ctx, types.MethodSeedTracks, types.PlaylistOptions{
			SeedTrackIDs: []string{seed.ID}, IncludeCollaborative: true, Limit: limit,
		}, nil)
		if err != nil {
			return nil, err
		}
		add(candidateIDs(cands))

	case SeedArtist:
		if g.library != nil {
			catalogue, err := g.library.GetTracksByArtist(ctx, seed.ID)
			if err == nil {
				add(trackIDs(catalogue))
			}
		}
		cands, err := g.playlist.Generate(ctx, types.MethodArtistRadio, types.PlaylistOptions{
			SeedArtistID: seed.ID, Limit: limit,
		}, nil)
		if err != nil {
			return nil, err
		}
		add(candidateIDs(cands))

	case SeedGenre:
		cands, err := g.playlist.Generate(ctx, types.MethodGenre, types.PlaylistOptions{
			Genre: seed.ID, Limit: limit,
		}, nil)
		if err != nil {
			return nil, err
		}
		add(candidateIDs(cands))

	case SeedMood:
		cands, err := g.playlist.Generate(ctx, types.MethodMood, types.PlaylistOptions{
			Mood: seed.ID, Limit: limit,
		}, nil)
		if err != nil {
			return nil, err
		}
		add(candidateIDs(cands))

	case SeedPlaylist:
		if g.library == nil {
			return nil, nil
		}
		seedTracks, err := g.library.GetPlaylistTracks(ctx, seed.ID)
		if err != nil {
			return nil, err
		}
		cands, err := g.playlist.Generate(ctx, types.MethodSeedTracks, types.PlaylistOptions{
			SeedTrackIDs: trackIDs(seedTracks), Limit: limit,
		}, nil)
		if err != nil {
			return nil, err
		}
		add(candidateIDs(cands))
	}
	return ids, nil
}

func (g *Generator) resolveTrack(ctx context.Context, id string) (*types.Track, error) {
	if g.library == nil {
		return nil, nil
	}
	return g.library.GetTrack(ctx, id)
}

func candidateIDs(cands []playlist.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.TrackID
	}
	return out
}

func trackIDs(tracks []*types.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID
	}
	return out
}
