// Package playlist implements spec §2 component J: PlaylistGenerator, the
// per-method query-vector construction, embedding/co-occurrence blend and
// diversity selection of §4.9.
package playlist

import (
	"context"
	"sort"

	"audiio/cooccurrence"
	"audiio/embedding"
	"audiio/feature"
	"audiio/taste"
	"audiio/types"
	"audiio/vectorindex"
	"audiio/vectormath"
)

// Config tunes the blend weights and diversity constraints (§4.9).
type Config struct {
	Dim                   int
	MaxPerArtist          int
	CandidateMultiplier   int
	SeedBlendEmbedding    float64
	SeedBlendCollab       float64
	SimilarBlendEmbedding float64
	SimilarBlendCollab    float64
}

// LibraryLookup resolves a track's primary artist id, the small slice of
// context the generator needs without depending on a full LibrarySource.
type LibraryLookup interface {
	ArtistOf(trackID string) string
}

// Generator produces ranked playlists by blending embedding search,
// co-occurrence and taste (§4.9).
type Generator struct {
	cfg Config

	index    *vectorindex.Index
	features *feature.Aggregator
	coocc    *cooccurrence.Matrix
	embed    *embedding.Engine
	library  LibraryLookup
}

// New builds a Generator.
func New(cfg Config, index *vectorindex.Index, features *feature.Aggregator, coocc *cooccurrence.Matrix, embed *embedding.Engine, library LibraryLookup) *Generator {
	if cfg.Dim <= 0 {
		cfg.Dim = 128
	}
	if cfg.MaxPerArtist <= 0 {
		cfg.MaxPerArtist = 3
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 3
	}
	if cfg.SeedBlendEmbedding <= 0 && cfg.SeedBlendCollab <= 0 {
		cfg.SeedBlendEmbedding, cfg.SeedBlendCollab = 0.7, 0.3
	}
	if cfg.SimilarBlendEmbedding <= 0 && cfg.SimilarBlendCollab <= 0 {
		cfg.SimilarBlendEmbedding, cfg.SimilarBlendCollab = 0.6, 0.4
	}
	return &Generator{cfg: cfg, index: index, features: features, coocc: coocc, embed: embed, library: library}
}

// Candidate is one ranked entry in a generated playlist.
type Candidate struct {
	TrackID string
	Score   float64
}

// Generate builds a ranked, diversity-filtered candidate list for method
// and opts, against the given taste profile (§4.9). profile may be nil
// when no taste data exists yet (exploration/mood/genre methods still
// work; personalized/discovery degrade to the raw query vector).
func (g *Generator) Generate(ctx context.Context, method types.PlaylistMethod, opts types.PlaylistOptions, profile *taste.Profile) ([]Candidate, error) {
	query, err := g.buildQueryVector(ctx, method, opts)
	if err != nil {
		return nil, err
	}

	query = g.blendWithTaste(query, method, opts, profile)

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	exclude := excludeSet(opts.ExcludeTrackIDs, opts.SeedTrackIDs)

	embMatches := g.index.SearchByCosine(query, limit*g.cfg.CandidateMultiplier, exclude)

	var collabRelated []cooccurrence.Related
	seeds := opts.SeedTrackIDs
	if len(seeds) > 0 && opts.IncludeCollaborative && g.coocc != nil {
		collabRelated = g.coocc.GetRelatedMultiple(seeds, limit*g.cfg.CandidateMultiplier)
	}

	embWeight, collabWeight := g.cfg.SimilarBlendEmbedding, g.cfg.SimilarBlendCollab
	if len(seeds) > 0 {
		embWeight, collabWeight = g.cfg.SeedBlendEmbedding, g.cfg.SeedBlendCollab
	}

	merged := mergeScores(embMatches, collabRelated, embWeight, collabWeight)
	merged = filterExcluded(merged, exclude, opts.ExcludeArtistIDs, g.library)

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].TrackID < merged[j].TrackID
	})

	maxPerArtist := opts.MaxPerArtist
	if maxPerArtist <= 0 {
		maxPerArtist = g.cfg.MaxPerArtist
	}
	return g.selectWithDiversity(merged, limit, maxPerArtist), nil
}

// buildQueryVector constructs the method-specific anchor vector (§4.9 step 1).
func (g *Generator) buildQueryVector(ctx context.Context, method types.PlaylistMethod, opts types.PlaylistOptions) ([]float64, error) {
	switch method {
	case types.MethodMood:
		return g.embed.MoodQueryVector(opts.Mood).Vector, nil
	case types.MethodGenre:
		return g.embed.GenreQueryVector(opts.Genre).Vector, nil
	case types.MethodSeedTracks:
		return g.averagedEmbeddings(ctx, opts.SeedTrackIDs)
	case types.MethodArtistRadio:
		return g.artistAverageEmbedding(ctx, opts.SeedArtistID)
	default:
		// personalized / discovery: taste blending happens in
		// blendWithTaste; start from a zero vector that blending fills in.
		return make([]float64, g.cfg.Dim), nil
	}
}

func (g *Generator) averagedEmbeddings(ctx context.Context, trackIDs []string) ([]float64, error) {
	var vecs [][]float64
	for _, id := range trackIDs {
		f, err := g.features.Get(ctx, id)
		if err != nil || !f.HasEmbedding() {
			continue
		}
		vecs = append(vecs, f.Embedding.Vector)
	}
	if len(vecs) == 0 {
		return make([]float64, g.cfg.Dim), nil
	}
	return vectormath.Normalize(vectormath.Average(vecs...)), nil
}

func (g *Generator) artistAverageEmbedding(ctx context.Context, artistID string) ([]float64, error) {
	// FindSimilarByEmbedding-free path: the aggregator only knows about
	// embeddings it has already fetched, so artist radio relies on the
	// caller having prefetched that artist's catalog into the feature
	// cache and co-occurrence matrix beforehand (Orchestrator's job).
	if g.coocc == nil {
		return make([]float64, g.cfg.Dim), nil
	}
	related := g.coocc.GetRelated(artistID, g.cfg.CandidateMultiplier*10)
	ids := make([]string, 0, len(related))
	for _, r := range related {
		ids = append(ids, r.TrackID)
	}
	return g.averagedEmbeddings(ctx, ids)
}

// blendWithTaste implements §4.9 step 2: blend the query vector with the
// TasteProfile by (1 - exploration_factor), or with the exploration vector
// in discovery mode.
func (g *Generator) blendWithTaste(query []float64, method types.PlaylistMethod, opts types.PlaylistOptions, profile *taste.Profile) []float64 {
	if profile == nil || !profile.IsValid() {
		return query
	}
	tasteWeight := 1 - clamp01(opts.ExplorationFactor)
	var tasteVec []float64
	switch {
	case method == types.MethodDiscovery:
		tasteVec = profile.GetExplorationVector()
	case opts.ContextHour != 0 || opts.ContextDayOfWeek != 0:
		tasteVec = profile.GetContextualVector(opts.ContextHour, opts.ContextDayOfWeek)
	default:
		tasteVec = profile.Vector()
	}
	if len(tasteVec) == 0 {
		return query
	}
	blended := vectormath.Blend(tasteVec, query, tasteWeight)
	return vectormath.Normalize(blended)
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

func excludeSet(lists ...[]string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, l := range lists {
		for _, id := range l {
			out[id] = struct{}{}
		}
	}
	return out
}

// mergeScores combines embedding and collaborative rankings via
// independent max-normalisation (§4.9 step 4).
func mergeScores(emb []vectorindex.Match, collab []cooccurrence.Related, embWeight, collabWeight float64) []Candidate {
	maxEmb, maxCollab := 0.0, 0.0
	for _, m := range emb {
		if m.Score > maxEmb {
			maxEmb = m.Score
		}
	}
	for _, r := range collab {
		if r.Score > maxCollab {
			maxCollab = r.Score
		}
	}

	scores := make(map[string]float64)
	for _, m := range emb {
		s := 0.0
		if maxEmb > 1e-12 {
			s = m.Score / maxEmb
		}
		scores[m.ID] += embWeight * s
	}
	for _, r := range collab {
		s := 0.0
		if maxCollab > 1e-12 {
			s = r.Score / maxCollab
		}
		scores[r.TrackID] += collabWeight * s
	}

	out := make([]Candidate, 0, len(scores))
	for id, s := range scores {
		out = append(out, Candidate{TrackID: id, Score: s})
	}
	return out
}

func filterExcluded(candidates []Candidate, exclude map[string]struct{}, excludeArtists []string, lib LibraryLookup) []Candidate {
	artistExclude := make(map[string]struct{}, len(excludeArtists))
	for _, a := range excludeArtists {
		artistExclude[a] = struct{}{}
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, skip := exclude[c.TrackID]; skip {
			continue
		}
		if lib != nil && len(artistExclude) > 0 {
			if _, skip := artistExclude[lib.ArtistOf(c.TrackID)]; skip {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// selectWithDiversity walks the ranked list enforcing maxPerArtist,
// relaxing the cap only if the list would otherwise be under-filled
// (§4.9 step 6).
func (g *Generator) selectWithDiversity(ranked []Candidate, limit, maxPerArtist int) []Candidate {
	selected := make([]Candidate, 0, limit)
	artistCounts := make(map[string]int)

	for _, c := range ranked {
		if len(selected) >= limit {
			break
		}
		artist := ""
		if g.library != nil {
			artist = g.library.ArtistOf(c.TrackID)
		}
		if artist != "" && artistCounts[artist] >= maxPerArtist {
			continue
		}
		selected = append(selected, c)
		if artist != "" {
			artistCounts[artist]++
		}
	}

	if len(selected) < limit {
		selectedIDs := make(map[string]struct{}, len(selected))
		for _, c := range selected {
			selectedIDs[c.TrackID] = struct{}{}
		}
		for _, c := range ranked {
			if len(selected) >= limit {
				break
			}
			if _, already := selectedIDs[c.TrackID]; already {
				continue
			}
			selected = append(selected, c)
		}
	}
	return selected
}
