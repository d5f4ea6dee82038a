// Package feature implements spec §2 component E: the provider registry,
// priority/mode fusion protocol, and the memory/similarity/inflight
// caching stack that sits in front of featurestore.
package feature

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"audiio/cache"
	"audiio/coreerr"
	"audiio/featurestore"
	"audiio/logging"
	"audiio/types"
	"audiio/vectormath"
)

// Config is the slice of the project config the aggregator needs; callers
// build it from config.Config rather than depending on that package
// directly, keeping feature free of every other subsystem's knobs.
type Config struct {
	CoreThreshold     int
	DefaultTimeoutMs  int
	ParallelCore      bool
	PrefetchBatchSize int

	MemoryTTL            time.Duration
	MemoryMaxEntries     int
	SimilarityMaxEntries int
	InflightMaxPending   int
}

type registeredProvider struct {
	provider types.FeatureProvider
	identity types.ProviderIdentity
}

// Aggregator resolves AggregatedFeatures for a track_id by consulting
// registered providers under the §4.1 fusion protocol and caching the
// result in memory, in an optional FeatureStore, and in a similarity LRU.
type Aggregator struct {
	cfg   Config
	store *featurestore.Store

	providersMu sync.Mutex
	providers   []registeredProvider

	memory     *cache.TTLCache[string, *types.AggregatedFeatures]
	inflight   cache.Inflight[string, *types.AggregatedFeatures]
	similarity *cache.LRU[types.PairKey, float64]

	embeddingMu    sync.RWMutex
	embeddingCache map[string][]float64
}

// New builds an Aggregator. store may be nil (memory-only operation).
func New(cfg Config, store *featurestore.Store) *Aggregator {
	if cfg.CoreThreshold == 0 {
		cfg.CoreThreshold = 50
	}
	if cfg.DefaultTimeoutMs == 0 {
		cfg.DefaultTimeoutMs = 10000
	}
	if cfg.MemoryMaxEntries == 0 {
		cfg.MemoryMaxEntries = 5000
	}
	if cfg.SimilarityMaxEntries == 0 {
		cfg.SimilarityMaxEntries = 10000
	}
	a := &Aggregator{
		cfg:            cfg,
		store:          store,
		memory:         cache.NewTTLCache[string, *types.AggregatedFeatures]("feature_memory", cfg.MemoryMaxEntries, cfg.MemoryTTL),
		similarity:     cache.NewLRU[types.PairKey, float64]("feature_similarity", cfg.SimilarityMaxEntries),
		embeddingCache: make(map[string][]float64),
	}
	a.inflight.MaxPending = cfg.InflightMaxPending
	return a
}

// RegisterProvider adds a provider under its declared identity. Providers
// are partitioned core/plugin by priority against CoreThreshold at fetch
// time, not at registration, so changing CoreThreshold after the fact is
// consistent. Registering a duplicate id is an InvalidInput error (§7).
func (a *Aggregator) RegisterProvider(p types.FeatureProvider) error {
	id := p.Identity().ID
	a.providersMu.Lock()
	defer a.providersMu.Unlock()
	for _, rp := range a.providers {
		if rp.identity.ID == id {
			return coreerr.New(coreerr.KindInvalidInput, "provider already registered: "+id, nil)
		}
	}
	a.providers = append(a.providers, registeredProvider{provider: p, identity: p.Identity()})
	return nil
}

// UnregisterProvider removes a provider by id. A no-op if id is not
// registered.
func (a *Aggregator) UnregisterProvider(id string) {
	a.providersMu.Lock()
	defer a.providersMu.Unlock()
	out := a.providers[:0]
	for _, rp := range a.providers {
		if rp.identity.ID != id {
			out = append(out, rp)
		}
	}
	a.providers = out
}

// Get resolves AggregatedFeatures for id: memory cache, then FeatureStore
// (if the stored record is still valid), then a de-duplicated fetch from
// providers (§4.1 read path).
func (a *Aggregator) Get(ctx context.Context, id string) (*types.AggregatedFeatures, error) {
	if f, ok := a.memory.Get(id); ok {
		return f, nil
	}
	if a.store != nil && a.store.HasValidFeatures(ctx, id) {
		if f, ok := a.store.Get(ctx, id); ok {
			a.memory.Set(id, f)
			a.cacheEmbedding(f)
			return f, nil
		}
	}

	fetchID := id
	f, err, _ := a.inflight.Do(ctx, id, func(ctx context.Context) (*types.AggregatedFeatures, error) {
		return a.fetch(ctx, fetchID)
	})
	if err != nil {
		return nil, err
	}
	a.memory.Set(id, f)
	a.cacheEmbedding(f)
	if a.store != nil {
		if _, err := a.store.Set(ctx, id, f); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Str("track_id", id).Msg("feature: persist to store failed")
		}
	}
	return f, nil
}

func (a *Aggregator) cacheEmbedding(f *types.AggregatedFeatures) {
	if f == nil || f.Embedding == nil || len(f.Embedding.Vector) == 0 {
		return
	}
	a.embeddingMu.Lock()
	a.embeddingCache[f.TrackID] = f.Embedding.Vector
	a.embeddingMu.Unlock()
}

// fetch runs the §4.1 fusion protocol for a single track_id against the
// currently registered providers.
func (a *Aggregator) fetch(ctx context.Context, id string) (*types.AggregatedFeatures, error) {
	a.providersMu.Lock()
	snapshot := append([]registeredProvider(nil), a.providers...)
	a.providersMu.Unlock()

	var core, plugin []registeredProvider
	for _, rp := range snapshot {
		if rp.identity.Priority <= a.cfg.CoreThreshold {
			core = append(core, rp)
		} else {
			plugin = append(plugin, rp)
		}
	}
	sort.Slice(core, func(i, j int) bool { return core[i].identity.Priority > core[j].identity.Priority })
	sort.Slice(plugin, func(i, j int) bool {
		pi, pj := plugin[i].identity, plugin[j].identity
		if (pi.Mode == types.ModeOverride) != (pj.Mode == types.ModeOverride) {
			return pi.Mode == types.ModeOverride
		}
		return pi.Priority > pj.Priority
	})

	out := &types.AggregatedFeatures{TrackID: id}

	coreResults := a.queryProviders(ctx, id, core)
	for _, r := range coreResults {
		applySupplement(out, r)
	}

	pluginResults := a.queryProviders(ctx, id, plugin)
	for _, r := range pluginResults {
		if r.identity.Mode == types.ModeOverride {
			applyOverride(out, r)
		}
	}
	for _, r := range pluginResults {
		if r.identity.Mode != types.ModeOverride {
			applySupplement(out, r)
		}
	}

	out.LastUpdatedMs = time.Now().UnixMilli()
	return out, nil
}

type providerResult struct {
	identity types.ProviderIdentity
	audio    *types.AudioDescriptors
	emotion  *types.EmotionDescriptors
	lyrics   *types.LyricsDescriptors
	genre    *types.GenreDescriptors
	embedding *types.Embedding
	fields   []string
}

// queryProviders calls every provider in the slice, respecting the
// configured parallelism and each provider's timeout_ms, and isolating
// failures per §4.1 step 2 / "Failure semantics".
func (a *Aggregator) queryProviders(ctx context.Context, trackID string, providers []registeredProvider) []providerResult {
	if len(providers) == 0 {
		return nil
	}
	results := make([]providerResult, len(providers))
	present := make([]bool, len(providers))

	call := func(i int) {
		rp := providers[i]
		timeout := time.Duration(rp.identity.TimeoutMs)
		if timeout <= 0 {
			timeout = time.Duration(a.cfg.DefaultTimeoutMs)
		}
		pctx, cancel := context.WithTimeout(ctx, timeout*time.Millisecond)
		defer cancel()

		r, ok := a.callOne(pctx, trackID, rp)
		results[i] = r
		present[i] = ok
	}

	if a.cfg.ParallelCore {
		g, _ := errgroup.WithContext(ctx)
		for i := range providers {
			i := i
			g.Go(func() error { call(i); return nil })
		}
		_ = g.Wait()
	} else {
		for i := range providers {
			call(i)
		}
	}

	out := make([]providerResult, 0, len(providers))
	for i, ok := range present {
		if ok {
			out = append(out, results[i])
		}
	}
	return out
}

func (a *Aggregator) callOne(ctx context.Context, trackID string, rp registeredProvider) (providerResult, bool) {
	r := providerResult{identity: rp.identity}
	caps := rp.identity.Capabilities
	any := false

	if caps.Has(types.CapAudio) {
		if v, err := rp.provider.GetAudioFeatures(ctx, trackID); err == nil && v != nil {
			r.audio = v
			r.fields = append(r.fields, "audio")
			any = true
		} else if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			logging.FromContext(ctx).Debug().Err(err).Str("provider", rp.identity.ID).Msg("feature: audio fetch failed")
		}
	}
	if caps.Has(types.CapEmotion) {
		if v, err := rp.provider.GetEmotionFeatures(ctx, trackID); err == nil && v != nil {
			r.emotion = v
			r.fields = append(r.fields, "emotion")
			any = true
		}
	}
	if caps.Has(types.CapLyrics) {
		if v, err := rp.provider.GetLyricsFeatures(ctx, trackID); err == nil && v != nil {
			r.lyrics = v
			r.fields = append(r.fields, "lyrics")
			any = true
		}
	}
	if caps.Has(types.CapGenre) {
		if v, err := rp.provider.GetGenreFeatures(ctx, trackID); err == nil && v != nil {
			r.genre = v
			r.fields = append(r.fields, "genre")
			any = true
		}
	}
	if caps.Has(types.CapEmbedding) {
		if v, err := rp.provider.GetEmbedding(ctx, trackID); err == nil && v != nil {
			r.embedding = v
			r.fields = append(r.fields, "embedding")
			any = true
		}
	}
	return r, any
}

func applySupplement(out *types.AggregatedFeatures, r providerResult) {
	if r.audio != nil {
		out.Audio = out.Audio.Merge(r.audio.Clone())
	}
	if r.emotion != nil && out.Emotion == nil {
		out.Emotion = r.emotion
	}
	if r.lyrics != nil && out.Lyrics == nil {
		out.Lyrics = r.lyrics
	}
	if r.genre != nil && out.Genre == nil {
		out.Genre = r.genre
	}
	if r.embedding != nil && out.Embedding == nil {
		out.Embedding = r.embedding
	}
	recordProvenance(out, r)
}

func applyOverride(out *types.AggregatedFeatures, r providerResult) {
	if r.audio != nil {
		out.Audio = r.audio.Clone()
	}
	if r.emotion != nil {
		out.Emotion = r.emotion
	}
	if r.lyrics != nil {
		out.Lyrics = r.lyrics
	}
	if r.genre != nil {
		out.Genre = r.genre
	}
	if r.embedding != nil {
		out.Embedding = r.embedding
	}
	recordProvenance(out, r)
}

func recordProvenance(out *types.AggregatedFeatures, r providerResult) {
	if len(r.fields) == 0 {
		return
	}
	out.Provenance = append(out.Provenance, types.Provenance{
		ProviderID:     r.identity.ID,
		FieldsSupplied: r.fields,
		Confidence:     1.0,
	})
}

// SimilarityMatch is one ranked result of FindSimilarByEmbedding.
type SimilarityMatch struct {
	TrackID string
	Score   float64
}

// FindSimilarByEmbedding scans the cached embeddings for the top-k nearest
// to q by cosine similarity, excluding ids in exclude (§4.1). Results
// missing from cache are simply not considered: this is a best-effort
// search over whatever has already been fetched. Every cosine is computed
// afresh on each call; this scan does not read or fill the similarity LRU
// (SimilarityBetween is the memoised pairwise path).
func (a *Aggregator) FindSimilarByEmbedding(q []float64, k int, exclude map[string]struct{}) []SimilarityMatch {
	a.embeddingMu.RLock()
	snapshot := make(map[string][]float64, len(a.embeddingCache))
	for id, vec := range a.embeddingCache {
		snapshot[id] = vec
	}
	a.embeddingMu.RUnlock()

	var all []SimilarityMatch
	for id, vec := range snapshot {
		if _, skip := exclude[id]; skip {
			continue
		}
		all = append(all, SimilarityMatch{TrackID: id, Score: vectormath.Cosine(q, vec)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].TrackID < all[j].TrackID
	})
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

// SimilarityBetween returns the cosine similarity of two cached
// embeddings, memoised in the similarity LRU under their canonical pair
// key (§4.1 cache (c)).
func (a *Aggregator) SimilarityBetween(id1, id2 string) (float64, bool) {
	a.embeddingMu.RLock()
	v1, ok1 := a.embeddingCache[id1]
	v2, ok2 := a.embeddingCache[id2]
	a.embeddingMu.RUnlock()
	if !ok1 || !ok2 {
		return 0, false
	}
	pk := types.CanonPair(id1, id2)
	if s, ok := a.similarity.Get(pk); ok {
		return s, true
	}
	s := vectormath.Cosine(v1, v2)
	a.similarity.Add(pk, s)
	return s, true
}

// Prefetch fetches ids in batches of <=PrefetchBatchSize in parallel,
// tolerating individual failures (§4.1).
func (a *Aggregator) Prefetch(ctx context.Context, ids []string) {
	loader := cache.BatchLoader[string, *types.AggregatedFeatures]{BatchSize: a.cfg.PrefetchBatchSize}
	loader.LoadAll(ctx, ids, func(ctx context.Context, id string) (*types.AggregatedFeatures, error) {
		return a.Get(ctx, id)
	})
}

// ErrNoProviders is returned by fetch paths that require at least one
// registered provider capable of the requested feature kind; the core
// aggregator itself never returns it since an empty fusion result (all
// fields nil) is a valid, if uninformative, AggregatedFeatures.
var ErrNoProviders = coreerr.New(coreerr.KindMissingData, "no providers registered", nil)
