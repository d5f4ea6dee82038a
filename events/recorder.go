// Package events implements spec §2 component N: EventRecorder, the
// ring-bounded append-only log and training-sample extraction of §4.11.
package events

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"

	"audiio/coreerr"
	"audiio/featurevector"
	"audiio/logging"
	"audiio/preference"
	"audiio/types"
)

const logKey = "events-log"

// Listener is notified after every successful Record. A panicking
// listener is isolated and never breaks the append (§4.11).
type Listener func(types.UserEvent)

// Config tunes the ring cap and persistence cadence.
type Config struct {
	MaxEvents       int
	AutoPersistEvery int
}

// Recorder is the append-only, capped event log.
type Recorder struct {
	cfg Config
	kv  types.KVStore

	mu        sync.Mutex
	events    []types.UserEvent
	listeners []Listener
	seen      *bloom.BloomFilter
	sinceSave int
}

// New builds a Recorder. kv may be nil to disable persistence (events
// still accumulate and can be queried in-memory).
func New(cfg Config, kv types.KVStore) *Recorder {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 10000
	}
	if cfg.AutoPersistEvery <= 0 {
		cfg.AutoPersistEvery = 10
	}
	return &Recorder{
		cfg:  cfg,
		kv:   kv,
		seen: bloom.NewWithEstimates(uint(cfg.MaxEvents*4), 0.01),
	}
}

// Subscribe registers a listener invoked after each Record.
func (r *Recorder) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func dedupKey(e types.UserEvent) string {
	b, _ := json.Marshal(struct {
		TrackID string
		Kind    types.EventKind
		Ts      int64
	}{e.TrackID, e.Kind, e.TimestampMs})
	return string(b)
}

// Record appends e to the log, evicting the oldest entry once MaxEvents
// is reached, notifies subscribers, and auto-persists every
// AutoPersistEvery events. The bloom filter is only a cheap fast-path
// hint: a miss still goes through the append, a hit only skips nothing
// functional — exact identity is never relied upon for correctness.
func (r *Recorder) Record(ctx context.Context, e types.UserEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	key := dedupKey(e)

	r.mu.Lock()
	r.seen.AddString(key)
	r.events = append(r.events, e)
	if len(r.events) > r.cfg.MaxEvents {
		overflow := len(r.events) - r.cfg.MaxEvents
		r.events = append([]types.UserEvent(nil), r.events[overflow:]...)
	}
	r.sinceSave++
	shouldPersist := r.kv != nil && r.sinceSave >= r.cfg.AutoPersistEvery
	if shouldPersist {
		r.sinceSave = 0
	}
	listeners := append([]Listener(nil), r.listeners...)
	snapshot := append([]types.UserEvent(nil), r.events...)
	r.mu.Unlock()

	for _, l := range listeners {
		notify(ctx, l, e)
	}

	if shouldPersist {
		if err := r.persist(ctx, snapshot); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Msg("events: auto-persist failed")
		}
	}
	return nil
}

func notify(ctx context.Context, l Listener, e types.UserEvent) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Warn().Interface("panic", r).Msg("events: listener panicked")
		}
	}()
	l(e)
}

func (r *Recorder) persist(ctx context.Context, snapshot []types.UserEvent) error {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "events encode", err)
	}
	if err := r.kv.Set(ctx, logKey, string(b)); err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "events persist", err)
	}
	return r.kv.Persist(ctx)
}

// Persist forces an immediate flush, bypassing the auto-persist cadence.
func (r *Recorder) Persist(ctx context.Context) error {
	if r.kv == nil {
		return nil
	}
	r.mu.Lock()
	snapshot := append([]types.UserEvent(nil), r.events...)
	r.sinceSave = 0
	r.mu.Unlock()
	return r.persist(ctx, snapshot)
}

// Load restores the event log from kv, replacing any in-memory events.
func (r *Recorder) Load(ctx context.Context) error {
	if r.kv == nil {
		return nil
	}
	raw, ok, err := r.kv.Get(ctx, logKey)
	if err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "events load", err)
	}
	if !ok || raw == "" {
		return nil
	}
	var restored []types.UserEvent
	if err := json.Unmarshal([]byte(raw), &restored); err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "events decode", err)
	}
	r.mu.Lock()
	r.events = restored
	r.mu.Unlock()
	return nil
}

// Len returns the current event count.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// DatasetOptions configures GetFullDataset (§4.11).
type DatasetOptions struct {
	FromMs, ToMs int64
	MinCompletion float64
	Balance       bool
	MaxSamples    int
}

// buildSampleFeatures assembles the §4.10 feature vector from whatever
// the event itself carries. It has no access to PreferenceStore affinity
// or recency stats, so the user-stats block is left at defaults; the
// Orchestrator rebuilds a fuller vector from the same track before
// handing samples to the Predictor.
func buildSampleFeatures(e types.UserEvent) []float64 {
	if e.Track == nil {
		return nil
	}
	sctx := types.ScoringContext{
		UserMood:  e.Context.Mood,
		Activity:  e.Context.Activity,
		HourOfDay: e.Context.HourOfDay,
		DayOfWeek: e.Context.DayOfWeek,
	}
	return featurevector.Build(e.Track, e.Track.Audio, sctx, featurevector.UserStats{})
}

// skipLabel maps a skip_percentage to the graduated negative label of
// §4.11.
func skipLabel(skipPct float64) float64 {
	switch {
	case skipPct < 0.10:
		return 0.0
	case skipPct < 0.25:
		return 0.05
	case skipPct < 0.50:
		return 0.15
	case skipPct < 0.80:
		return 0.25
	default:
		return 0.30
	}
}

func likeLabel(strength int) float64 {
	if strength >= 2 {
		return 1.0
	}
	return 0.9
}

func dislikeLabel(reason types.DislikeReason) float64 {
	w, ok := preference.ReasonWeight[reason]
	if !ok {
		w = 0.5
	}
	return 0.2 * (1 - w)
}

// GetFullDataset extracts a three-bag training set from the log per
// §4.11's classification table.
func (r *Recorder) GetFullDataset(opts DatasetOptions) types.Dataset {
	r.mu.Lock()
	snapshot := append([]types.UserEvent(nil), r.events...)
	r.mu.Unlock()

	var positive, negative, partial []types.TrainingSample
	var fromMs, toMs int64

	for _, e := range snapshot {
		if opts.FromMs != 0 && e.TimestampMs < opts.FromMs {
			continue
		}
		if opts.ToMs != 0 && e.TimestampMs > opts.ToMs {
			continue
		}
		if fromMs == 0 || e.TimestampMs < fromMs {
			fromMs = e.TimestampMs
		}
		if e.TimestampMs > toMs {
			toMs = e.TimestampMs
		}

		sample := types.TrainingSample{
			TrackID:     e.TrackID,
			Context:     e.Context,
			TimestampMs: e.TimestampMs,
			Weight:      types.GetEventWeight(e),
			Features:    buildSampleFeatures(e),
		}

		switch e.Kind {
		case types.EventListen:
			if e.Completed {
				sample.Label = 1.0
				positive = append(positive, sample)
			} else if e.Completion >= opts.MinCompletion {
				sample.Label = e.Completion
				partial = append(partial, sample)
			}
		case types.EventSkip:
			sample.Label = skipLabel(e.SkipPercentage)
			negative = append(negative, sample)
		case types.EventDislike:
			sample.Label = dislikeLabel(e.DislikeReason)
			negative = append(negative, sample)
		case types.EventLike:
			sample.Label = likeLabel(e.LikeStrength)
			positive = append(positive, sample)
		}
	}

	if opts.Balance {
		positive, negative = balance(positive, negative)
	}
	if opts.MaxSamples > 0 {
		positive, negative, partial = downsample(positive, negative, partial, opts.MaxSamples)
	}

	means, stddev := featureStats(append(append(append([]types.TrainingSample{}, positive...), negative...), partial...))

	return types.Dataset{
		Positive: positive, Negative: negative, Partial: partial,
		FeatureMeans: means, FeatureStdDev: stddev,
		FromMs: fromMs, ToMs: toMs,
	}
}

// balance truncates the larger bag to the smaller bag's count, keeping
// the most-recent samples of the truncated bag (§4.11).
func balance(positive, negative []types.TrainingSample) ([]types.TrainingSample, []types.TrainingSample) {
	n := min(len(positive), len(negative))
	return mostRecent(positive, n), mostRecent(negative, n)
}

func mostRecent(samples []types.TrainingSample, n int) []types.TrainingSample {
	if n >= len(samples) {
		return samples
	}
	sorted := append([]types.TrainingSample(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampMs > sorted[j].TimestampMs })
	return sorted[:n]
}

// downsample proportionally shrinks all three bags so their combined
// size does not exceed max (§4.11).
func downsample(positive, negative, partial []types.TrainingSample, max int) ([]types.TrainingSample, []types.TrainingSample, []types.TrainingSample) {
	total := len(positive) + len(negative) + len(partial)
	if total <= max {
		return positive, negative, partial
	}
	ratio := float64(max) / float64(total)
	return mostRecent(positive, int(math.Round(float64(len(positive))*ratio))),
		mostRecent(negative, int(math.Round(float64(len(negative))*ratio))),
		mostRecent(partial, int(math.Round(float64(len(partial))*ratio)))
}

func featureStats(samples []types.TrainingSample) ([]float64, []float64) {
	var dim int
	for _, s := range samples {
		if len(s.Features) > dim {
			dim = len(s.Features)
		}
	}
	if dim == 0 || len(samples) == 0 {
		return nil, nil
	}
	means := make([]float64, dim)
	for _, s := range samples {
		for i, v := range s.Features {
			means[i] += v
		}
	}
	for i := range means {
		means[i] /= float64(len(samples))
	}
	variances := make([]float64, dim)
	for _, s := range samples {
		for i, v := range s.Features {
			d := v - means[i]
			variances[i] += d * d
		}
	}
	stddev := make([]float64, dim)
	for i := range variances {
		stddev[i] = math.Sqrt(variances[i] / float64(len(samples)))
	}
	return means, stddev
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
