// Package engine implements spec §2 component Q: Orchestrator, the single
// façade a host embeds. It owns every subsystem instance, wires them
// together in dependency order, and is the only thing outside this module
// that should ever need to know how the pieces fit (§5, §6).
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"audiio/config"
	"audiio/cooccurrence"
	"audiio/coreerr"
	"audiio/embedding"
	"audiio/events"
	"audiio/feature"
	"audiio/featurestore"
	"audiio/featurevector"
	"audiio/logging"
	"audiio/metrics"
	"audiio/playlist"
	"audiio/preference"
	"audiio/queue"
	"audiio/radio"
	"audiio/scoring"
	"audiio/sequential"
	"audiio/taste"
	"audiio/training"
	"audiio/types"
	"audiio/vectorindex"
)

const preferenceStateKey = "preference-state"

// Orchestrator wires FeatureAggregator, HybridScorer, VectorIndex,
// CoOccurrenceMatrix, TasteProfile, PreferenceStore, PlaylistGenerator,
// RadioGenerator, SmartQueue, EventRecorder and TrainingScheduler into one
// façade (§5). It is safe for concurrent use; each subsystem owns its own
// locking.
type Orchestrator struct {
	cfg       *config.Config
	kv        types.KVStore
	library   types.LibrarySource
	predictor types.Predictor

	featureStore *featurestore.Store
	features     *feature.Aggregator
	embed        *embedding.Engine
	index        *vectorindex.Index
	coocc        *cooccurrence.Matrix
	taste        *taste.Profile
	sequential   *sequential.Scorer
	preference   *preference.Store
	scorer       *scoring.Scorer
	playlist     *playlist.Generator
	radio        *radio.Generator
	events       *events.Recorder
	training     *training.Scheduler
	queue        *queue.Queue

	mu        sync.Mutex
	lastTrack map[string]*types.Track // sessionID -> most recent track, for transition learning
}

// New builds an Orchestrator from cfg (nil uses config.Default()), a
// host-owned key/value store for persistence, a host-owned library
// catalog, and an optional external Predictor (nil disables ML scoring
// and training, per §1's out-of-scope-collaborator contract).
func New(cfg *config.Config, kv types.KVStore, library types.LibrarySource, predictor types.Predictor) *Orchestrator {
	if cfg == nil {
		cfg = config.Default()
	}

	fstore := featurestore.New(kv, cfg.Analysis.CurrentVersion, time.Duration(cfg.FeatureStore.DebounceSeconds)*time.Second)

	features := feature.New(feature.Config{
		CoreThreshold:        cfg.Provider.CoreThreshold,
		DefaultTimeoutMs:     cfg.Provider.DefaultTimeoutMs,
		ParallelCore:         cfg.Provider.ParallelCore,
		PrefetchBatchSize:    cfg.Provider.PrefetchBatchSize,
		MemoryTTL:            time.Duration(cfg.Cache.MemoryTTLSeconds) * time.Second,
		MemoryMaxEntries:     cfg.Cache.MemoryMaxEntries,
		SimilarityMaxEntries: cfg.Cache.SimilarityMaxEntries,
		InflightMaxPending:   cfg.Cache.InflightMaxPending,
	}, fstore)

	embed := embedding.New(cfg.Embedding.Dimension, cfg.Embedding.NormalizeOnWrite, cfg.Embedding.UpdateBlendNew)
	index := vectorindex.New()

	coocc := cooccurrence.New(cooccurrence.Config{
		DecayFactor:         cfg.CoOccurrence.DecayFactor,
		MinCount:            cfg.CoOccurrence.MinCount,
		MaxPairs:            cfg.CoOccurrence.MaxPairs,
		SequentialWeight:    cfg.CoOccurrence.SequentialWeight,
		LikeAfterPlayWeight: cfg.CoOccurrence.LikeAfterPlayWeight,
	})

	tasteProfile := taste.New(cfg.Embedding.Dimension, cfg.Taste.MinInteractionsForValid, 0)

	seq := sequential.New(sequential.Config{
		TrajectoryWeight: cfg.Sequential.TrajectoryWeight,
		TempoWeight:      cfg.Sequential.TempoWeight,
		GenreWeight:      cfg.Sequential.GenreWeight,
		EnergyWeight:     cfg.Sequential.EnergyWeight,
		RecentWindow:     cfg.Sequential.RecentWindow,
	})

	prefStore := preference.New(preference.Config{
		DailyDecayFactor:  cfg.Preference.DailyDecayFactor,
		RecentPlaysMax:    cfg.Preference.RecentPlaysMax,
		RecentPlaysTrimTo: cfg.Preference.RecentPlaysTrimTo,
		SummaryListMax:    cfg.Preference.SummaryListMax,
	})

	scorer := scoring.New(
		cfg.Scoring.Weights, cfg.Scoring.Penalties,
		cfg.Scoring.ExplanationHighThreshold, cfg.Scoring.ExplanationLowThreshold,
		cfg.Scoring.ExplainCacheSize, time.Duration(cfg.Scoring.PreferenceCacheTTLSeconds)*time.Second,
		predictor, prefStore, seq,
	)

	pl := playlist.New(playlist.Config{
		Dim:                   cfg.Embedding.Dimension,
		MaxPerArtist:          cfg.Playlist.MaxPerArtist,
		CandidateMultiplier:   cfg.Playlist.CandidateMultiplier,
		SeedBlendEmbedding:    cfg.Playlist.SeedBlendEmbedding,
		SeedBlendCollab:       cfg.Playlist.SeedBlendCollab,
		SimilarBlendEmbedding: cfg.Playlist.SimilarBlendEmbedding,
		SimilarBlendCollab:    cfg.Playlist.SimilarBlendCollab,
	}, index, features, coocc, embed, libraryLookup{library: library})

	radioGen := radio.New(radio.Config{
		ArtistCap:               cfg.Radio.ArtistCap,
		SeedWeightFloor:         cfg.Radio.SeedWeightFloor,
		SeedWeightStart:         cfg.Radio.SeedWeightStart,
		SeedWeightDecayPerTrack: cfg.Radio.SeedWeightDecayPerTrack,
		CandidateMultiplier:     cfg.Radio.CandidateMultiplier,
		RandomSeed:              cfg.Radio.RandomSeed,
	}, pl, scorer, features, library)

	rec := events.New(events.Config{
		MaxEvents:        cfg.Events.MaxEvents,
		AutoPersistEvery: cfg.Events.AutoPersistEvery,
	}, kv)

	trainSched := training.New(training.Config{
		MinNewEvents:  cfg.Training.MinNewEvents,
		MinInterval:   time.Duration(cfg.Training.MinIntervalSeconds) * time.Second,
		IdleThreshold: time.Duration(cfg.Training.IdleThresholdSeconds) * time.Second,
	})

	q := queue.New(queue.Config{CandidateMultiplier: cfg.Playlist.CandidateMultiplier}, scorer, features, library)

	o := &Orchestrator{
		cfg:          cfg,
		kv:           kv,
		library:      library,
		predictor:    predictor,
		featureStore: fstore,
		features:     features,
		embed:        embed,
		index:        index,
		coocc:        coocc,
		taste:        tasteProfile,
		sequential:   seq,
		preference:   prefStore,
		scorer:       scorer,
		playlist:     pl,
		radio:        radioGen,
		events:       rec,
		training:     trainSched,
		queue:        q,
		lastTrack:    make(map[string]*types.Track),
	}
	o.registerDefaultQueueSources()
	return o
}

// libraryLookup adapts a full LibrarySource down to playlist's narrow
// ArtistOf contract.
type libraryLookup struct {
	library types.LibrarySource
}

func (l libraryLookup) ArtistOf(trackID string) string {
	if l.library == nil {
		return ""
	}
	track, err := l.library.GetTrack(context.Background(), trackID)
	if err != nil || track == nil {
		return ""
	}
	return track.PrimaryArtist()
}

func (o *Orchestrator) registerDefaultQueueSources() {
	o.queue.AddSource("personalized", func(ctx context.Context, limit int) ([]string, error) {
		cands, err := o.playlist.Generate(ctx, types.MethodPersonalized, types.PlaylistOptions{
			Limit:                limit,
			IncludeCollaborative: true,
		}, o.taste)
		if err != nil {
			return nil, err
		}
		return candidateIDs(cands), nil
	})
	o.queue.AddSource("discovery", func(ctx context.Context, limit int) ([]string, error) {
		cands, err := o.playlist.Generate(ctx, types.MethodDiscovery, types.PlaylistOptions{
			Limit:             limit,
			ExplorationFactor: 0.5,
		}, o.taste)
		if err != nil {
			return nil, err
		}
		return candidateIDs(cands), nil
	})
}

func candidateIDs(cands []playlist.Candidate) []string {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.TrackID
	}
	return ids
}

// Initialize restores persisted state (event log, preference snapshot),
// primes the vector index from previously analysed tracks, and starts the
// training scheduler. Call once after New, before serving requests.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if err := o.events.Load(ctx); err != nil {
		return err
	}
	if err := o.loadPreferenceState(ctx); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("engine: preference state load failed")
	}
	if err := o.primeVectorIndex(ctx); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("engine: vector index priming failed")
	}
	o.training.Start(func(ctx context.Context) error {
		result := o.Train(ctx)
		if !result.Success {
			return errors.New(result.Error)
		}
		return nil
	})
	return nil
}

// Dispose stops background work and flushes everything persistable.
// Call once at host shutdown.
func (o *Orchestrator) Dispose(ctx context.Context) error {
	o.training.Stop()
	if err := o.events.Persist(ctx); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("engine: event persist failed")
	}
	if err := o.savePreferenceState(ctx); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("engine: preference state save failed")
	}
	return o.featureStore.Shutdown(ctx)
}

func (o *Orchestrator) primeVectorIndex(ctx context.Context) error {
	ids, err := o.featureStore.Index(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		f, err := o.features.Get(ctx, id)
		if err != nil || f == nil || !f.HasEmbedding() {
			continue
		}
		o.index.Add(id, f.Embedding.Vector)
	}
	return nil
}

func (o *Orchestrator) loadPreferenceState(ctx context.Context) error {
	if o.kv == nil {
		return nil
	}
	raw, ok, err := o.kv.Get(ctx, preferenceStateKey)
	if err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "preference state load", err)
	}
	if !ok || raw == "" {
		return nil
	}
	state := types.NewPreferenceState()
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "preference state decode", err)
	}
	o.preference.Load(state)
	return nil
}

func (o *Orchestrator) savePreferenceState(ctx context.Context) error {
	if o.kv == nil {
		return nil
	}
	b, err := json.Marshal(o.preference.Snapshot())
	if err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "preference state encode", err)
	}
	if err := o.kv.Set(ctx, preferenceStateKey, string(b)); err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "preference state persist", err)
	}
	return o.kv.Persist(ctx)
}

// ScoreTrack scores a single candidate (§4.7).
func (o *Orchestrator) ScoreTrack(ctx context.Context, trackID string, sctx types.ScoringContext) (types.TrackScore, error) {
	track, err := o.library.GetTrack(ctx, trackID)
	if err != nil {
		return types.TrackScore{}, err
	}
	if track == nil {
		return types.TrackScore{}, coreerr.MissingData("track " + trackID)
	}
	features, _ := o.features.Get(ctx, trackID)

	start := time.Now()
	score := o.scorer.Score(ctx, scoring.Scorable{Track: track, Features: features}, sctx)
	metrics.ScoreDuration.Observe(time.Since(start).Seconds())
	return score, nil
}

// ScoreBatch scores many candidates, fetching their features in parallel
// via FeatureAggregator.Prefetch before scoring sequentially (§4.7).
func (o *Orchestrator) ScoreBatch(ctx context.Context, trackIDs []string, sctx types.ScoringContext) ([]types.TrackScore, error) {
	o.features.Prefetch(ctx, trackIDs)

	scorables := make([]scoring.Scorable, 0, len(trackIDs))
	for _, id := range trackIDs {
		track, err := o.library.GetTrack(ctx, id)
		if err != nil || track == nil {
			continue
		}
		features, _ := o.features.Get(ctx, id)
		scorables = append(scorables, scoring.Scorable{Track: track, Features: features})
	}

	start := time.Now()
	scores := o.scorer.ScoreBatch(ctx, scorables, sctx)
	metrics.ScoreDuration.Observe(time.Since(start).Seconds())
	return scores, nil
}

// RankCandidates scores trackIDs and returns them ranked descending by
// FinalScore (§6).
func (o *Orchestrator) RankCandidates(ctx context.Context, trackIDs []string, sctx types.ScoringContext) ([]types.TrackScore, error) {
	scores, err := o.ScoreBatch(ctx, trackIDs, sctx)
	if err != nil {
		return nil, err
	}
	scoring.RankDescending(scores)
	return scores, nil
}

// GetNextTracks delegates to SmartQueue, which fans out across the
// registered sources and scores the deduplicated union (§4.14).
func (o *Orchestrator) GetNextTracks(ctx context.Context, count int, sctx types.ScoringContext) ([]types.ScoredTrack, error) {
	return o.queue.GetNextTracks(ctx, count, sctx)
}

// ResetQueueSession clears the SmartQueue's session dedup set (§ GLOSSARY
// "session").
func (o *Orchestrator) ResetQueueSession() {
	o.queue.ResetSession()
}

// GenerateRadio builds or continues a radio session from a seed (§4.9).
func (o *Orchestrator) GenerateRadio(ctx context.Context, seedType radio.SeedType, seedID string, count int, sctx types.ScoringContext) ([]types.TrackScore, error) {
	return o.radio.Generate(ctx, radio.Seed{Type: seedType, ID: seedID}, count, sctx)
}

// ResetRadio starts a fresh radio session from a new seed, discarding any
// in-progress drift state.
func (o *Orchestrator) ResetRadio(seedType radio.SeedType, seedID string) {
	o.radio.Reset(radio.Seed{Type: seedType, ID: seedID})
}

// GeneratePlaylist builds a playlist by method (§4.6).
func (o *Orchestrator) GeneratePlaylist(ctx context.Context, method types.PlaylistMethod, opts types.PlaylistOptions) ([]playlist.Candidate, error) {
	return o.playlist.Generate(ctx, method, opts, o.taste)
}

// FindSimilar returns the k nearest tracks to trackID by embedding cosine
// distance (§4.3).
func (o *Orchestrator) FindSimilar(ctx context.Context, trackID string, k int) ([]feature.SimilarityMatch, error) {
	f, err := o.features.Get(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if f == nil || !f.HasEmbedding() {
		return nil, coreerr.New(coreerr.KindMissingData, "no embedding for track "+trackID, nil)
	}
	exclude := map[string]struct{}{trackID: {}}
	return o.features.FindSimilarByEmbedding(f.Embedding.Vector, k, exclude), nil
}

// RegisterFeatureProvider adds an external feature source (§4.1, §6).
func (o *Orchestrator) RegisterFeatureProvider(p types.FeatureProvider) error {
	return o.features.RegisterProvider(p)
}

// UnregisterFeatureProvider removes a previously registered provider.
func (o *Orchestrator) UnregisterFeatureProvider(id string) {
	o.features.UnregisterProvider(id)
}

// RecordEvent fans a UserEvent out to every subsystem that learns from it:
// the append-only log, PreferenceStore affinities, the scorer's
// preference cache, CoOccurrenceMatrix, SequentialScorer's genre-
// transition table, TasteProfile, and the TrainingScheduler's event
// counter (§2 data-flow note, §4.11-§4.13).
func (o *Orchestrator) RecordEvent(ctx context.Context, e types.UserEvent) error {
	if err := o.events.Record(ctx, e); err != nil {
		return err
	}
	metrics.EventsRecorded.WithLabelValues(string(e.Kind)).Inc()

	artistID, genreIDs := o.resolveArtistGenres(ctx, e)
	o.preference.UpdateFromEvent(e, artistID, genreIDs)
	o.scorer.HandleEvent(e)
	o.coocc.ApplyDailyDecay()

	if e.TrackID != "" {
		o.recordTransition(e)
	}
	o.updateTaste(e)

	o.training.CheckAndSchedule(o.events.Len())
	o.training.ReportActivity()
	return nil
}

func (o *Orchestrator) resolveArtistGenres(ctx context.Context, e types.UserEvent) (string, []string) {
	track := e.Track
	if track == nil && e.TrackID != "" && o.library != nil {
		track, _ = o.library.GetTrack(ctx, e.TrackID)
	}
	if track == nil {
		return "", nil
	}
	return track.PrimaryArtist(), track.Genres
}

// recordTransition updates CoOccurrenceMatrix and the SequentialScorer's
// genre-transition table from the session's previous track to this one.
func (o *Orchestrator) recordTransition(e types.UserEvent) {
	o.mu.Lock()
	prev := o.lastTrack[e.Context.SessionID]
	o.lastTrack[e.Context.SessionID] = e.Track
	o.mu.Unlock()

	if prev == nil {
		return
	}
	o.coocc.RecordSequentialPlay(prev.ID, e.TrackID)
	if e.Kind == types.EventLike {
		o.coocc.RecordLikeAfterPlay(prev.ID, e.TrackID)
	}
	if e.Track == nil || len(prev.Genres) == 0 || len(e.Track.Genres) == 0 {
		return
	}
	switch e.Kind {
	case types.EventListen:
		o.sequential.RecordTransition(prev.Genres[0], e.Track.Genres[0], e.Completed)
	case types.EventSkip:
		o.sequential.RecordTransition(prev.Genres[0], e.Track.Genres[0], false)
	}
}

// updateTaste nudges TasteProfile from any event carrying an embedding
// and a clear positive/negative signal.
func (o *Orchestrator) updateTaste(e types.UserEvent) {
	if e.TrackID == "" {
		return
	}
	f, err := o.features.Get(context.Background(), e.TrackID)
	if err != nil || f == nil || !f.HasEmbedding() {
		return
	}
	isWeekend := e.Context.DayOfWeek == 0 || e.Context.DayOfWeek == 6
	tasteCtx := taste.ContextForHour(e.Context.HourOfDay, isWeekend)
	weight := types.GetEventWeight(e)
	switch {
	case types.IsPositiveSignal(e):
		o.taste.UpdatePositive(f.Embedding.Vector, weight, tasteCtx)
	case types.IsNegativeSignal(e):
		o.taste.UpdateNegative(f.Embedding.Vector, weight, tasteCtx)
	}
}

// Train runs one retraining pass over the recorded event history (§4.13).
// It requires at least Training.MinSamples examples; below that it
// returns a TRAINING_FAILURE-flavored result rather than calling Fit on a
// starved dataset.
func (o *Orchestrator) Train(ctx context.Context) types.TrainingResult {
	start := time.Now()
	if o.predictor == nil {
		return types.TrainingResult{Success: false, Error: coreerr.DefaultMessages[coreerr.KindTrainingFailure]}
	}

	dataset := o.events.GetFullDataset(events.DatasetOptions{Balance: true})
	samples := o.rebuildFeatures(ctx, dataset)
	if len(samples) < o.cfg.Training.MinSamples {
		metrics.TrainingFailures.Inc()
		return types.TrainingResult{
			Success:    false,
			Error:      "insufficient training samples",
			SampleCount: len(samples),
			Duration:   time.Since(start).Milliseconds(),
		}
	}

	if err := o.predictor.Fit(ctx, samples); err != nil {
		metrics.TrainingFailures.Inc()
		return types.TrainingResult{
			Success:    false,
			Error:      err.Error(),
			SampleCount: len(samples),
			Duration:   time.Since(start).Milliseconds(),
		}
	}

	metrics.TrainingDuration.Observe(time.Since(start).Seconds())
	return types.TrainingResult{Success: true, SampleCount: len(samples), Duration: time.Since(start).Milliseconds()}
}

// TrainNow forces an immediate retraining pass, bypassing the scheduler's
// interval/event-count gate (§4.13).
func (o *Orchestrator) TrainNow(ctx context.Context) types.TrainingResult {
	o.training.TrainNow(o.events.Len())
	return o.Train(ctx)
}

// rebuildFeatures re-derives each sample's feature vector using
// PreferenceStore-backed UserStats, which EventRecorder.GetFullDataset
// cannot populate on its own (it only sees the event, not accumulated
// affinity). Samples whose track can no longer be resolved are dropped.
func (o *Orchestrator) rebuildFeatures(ctx context.Context, dataset types.Dataset) []types.TrainingSample {
	all := make([]types.TrainingSample, 0, dataset.Count())
	all = append(all, dataset.Positive...)
	all = append(all, dataset.Negative...)
	all = append(all, dataset.Partial...)

	out := make([]types.TrainingSample, 0, len(all))
	for _, s := range all {
		track, err := o.library.GetTrack(ctx, s.TrackID)
		if err != nil || track == nil {
			continue
		}
		stats := featurevector.UserStats{
			NowMs:          s.TimestampMs,
			ArtistAffinity: o.preference.ArtistAffinity(track.PrimaryArtist()),
		}
		if len(track.Genres) > 0 {
			stats.GenreAffinity = o.preference.GenreAffinity(track.Genres[0])
		}
		sctx := types.ScoringContext{
			UserMood:  s.Context.Mood,
			Activity:  s.Context.Activity,
			HourOfDay: s.Context.HourOfDay,
			DayOfWeek: s.Context.DayOfWeek,
		}
		s.Features = featurevector.Build(track, track.Audio, sctx, stats)
		out = append(out, s)
	}
	return out
}
