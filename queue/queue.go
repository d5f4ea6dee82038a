// Package queue implements spec §2 component R: SmartQueue, multi-source
// candidate fan-in with session deduplication backing
// Orchestrator.get_next_tracks (§6). The parallel fan-out is grounded on
// FeatureAggregator.queryProviders's errgroup pattern (§4.1).
package queue

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"audiio/feature"
	"audiio/scoring"
	"audiio/types"
)

// servedCap/servedTrim mirror PreferenceStore's recent-plays bound
// (§3): cap the dedup set at 1000 entries, trimming to the most-recent
// 500 on overflow rather than growing unbounded across a long session.
const (
	servedCap  = 1000
	servedTrim = 500
)

// Source retrieves up to limit candidate track ids from one upstream
// (a playlist method, a radio seed, a library scan, ...). Errors are
// isolated per source; a failing source just contributes nothing.
type Source func(ctx context.Context, limit int) ([]string, error)

// Config tunes the per-source fan-out width.
type Config struct {
	CandidateMultiplier int
}

// Queue fans out to registered sources, deduplicates against the
// current session and across sources, scores the union, and returns the
// top N (§4.14's "session" glossary entry: resets only on explicit
// ResetSession).
type Queue struct {
	cfg      Config
	sources  []namedSource
	features *feature.Aggregator
	scorer   *scoring.Scorer
	library  types.LibrarySource

	mu          sync.Mutex
	served      map[string]struct{}
	servedOrder []string
}

type namedSource struct {
	name string
	fn   Source
}

// New builds a Queue. library is used to resolve candidate ids into
// Tracks before scoring.
func New(cfg Config, scorer *scoring.Scorer, features *feature.Aggregator, library types.LibrarySource) *Queue {
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 3
	}
	return &Queue{
		cfg:      cfg,
		scorer:   scorer,
		features: features,
		library:  library,
		served:   make(map[string]struct{}),
	}
}

// AddSource registers a named candidate source. Sources are queried in
// parallel on every GetNextTracks call.
func (q *Queue) AddSource(name string, fn Source) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sources = append(q.sources, namedSource{name: name, fn: fn})
}

// ResetSession clears the served-track dedup set, starting a new
// listening session (§ GLOSSARY "session").
func (q *Queue) ResetSession() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.served = make(map[string]struct{})
	q.servedOrder = nil
}

// GetNextTracks fans out to every registered source, dedupes against
// the session and itself, scores the union with HybridScorer, and
// returns the top count tracks ranked descending.
func (q *Queue) GetNextTracks(ctx context.Context, count int, sctx types.ScoringContext) ([]types.ScoredTrack, error) {
	if count <= 0 {
		count = 20
	}

	q.mu.Lock()
	sources := append([]namedSource(nil), q.sources...)
	served := make(map[string]struct{}, len(q.served))
	for id := range q.served {
		served[id] = struct{}{}
	}
	q.mu.Unlock()

	fanoutLimit := count * q.cfg.CandidateMultiplier
	candidateSets := make([][]string, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			ids, err := src.fn(gctx, fanoutLimit)
			if err != nil {
				return nil // per-source failures are isolated, never fail the fan-in
			}
			candidateSets[i] = ids
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]struct{})
	var candidateIDs []string
	for _, ids := range candidateSets {
		for _, id := range ids {
			if _, dup := served[id]; dup {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			candidateIDs = append(candidateIDs, id)
		}
	}

	scored, err := q.scoreCandidates(ctx, candidateIDs, sctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score.FinalScore != scored[j].Score.FinalScore {
			return scored[i].Score.FinalScore > scored[j].Score.FinalScore
		}
		return scored[i].Track.ID < scored[j].Track.ID
	})
	if len(scored) > count {
		scored = scored[:count]
	}

	q.markServed(scored)
	return scored, nil
}

func (q *Queue) scoreCandidates(ctx context.Context, ids []string, sctx types.ScoringContext) ([]types.ScoredTrack, error) {
	out := make([]types.ScoredTrack, 0, len(ids))
	for _, id := range ids {
		track, err := q.library.GetTrack(ctx, id)
		if err != nil || track == nil {
			continue
		}
		var features *types.AggregatedFeatures
		if q.features != nil {
			features, _ = q.features.Get(ctx, id)
		}
		score := q.scorer.Score(ctx, scoring.Scorable{Track: track, Features: features}, sctx)
		out = append(out, types.ScoredTrack{Track: track, Score: score})
	}
	return out, nil
}

func (q *Queue) markServed(scored []types.ScoredTrack) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range scored {
		if _, ok := q.served[s.Track.ID]; ok {
			continue
		}
		q.served[s.Track.ID] = struct{}{}
		q.servedOrder = append(q.servedOrder, s.Track.ID)
	}
	if len(q.servedOrder) > servedCap {
		overflow := len(q.servedOrder) - servedTrim
		for _, id := range q.servedOrder[:overflow] {
			delete(q.served, id)
		}
		q.servedOrder = append([]string(nil), q.servedOrder[overflow:]...)
	}
}
