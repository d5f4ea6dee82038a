// Package featurestore is spec §2 component D / §4.2: a versioned,
// typed wrapper over a KVStore with a dirty-set + debounced flush.
package featurestore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"audiio/coreerr"
	"audiio/logging"
	"audiio/types"
)

const indexKey = "feature-index"

func recordKey(trackID string) string { return "feature:" + trackID }

// Store is the versioned durable feature cache described in §4.2.
type Store struct {
	kv              types.KVStore
	currentVersion  int
	debounce        time.Duration

	mu      sync.Mutex
	dirty   map[string]struct{}
	timer   *time.Timer
	closed  bool
	nowFunc func() time.Time
}

// New wraps kv with the given CURRENT_ANALYSIS_VERSION and debounce
// window (default 2s per §4.2).
func New(kv types.KVStore, currentVersion int, debounce time.Duration) *Store {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Store{
		kv:             kv,
		currentVersion: currentVersion,
		debounce:       debounce,
		dirty:          make(map[string]struct{}),
		nowFunc:        time.Now,
	}
}

// HasValidFeatures reports whether id has a record whose analysis_version
// is >= CURRENT_VERSION. Records written under an older version are
// treated as absent (§3, §8 invariant 7).
func (s *Store) HasValidFeatures(ctx context.Context, id string) bool {
	f, ok, err := s.readRaw(ctx, id)
	if err != nil || !ok {
		return false
	}
	return f.AnalysisVersion >= s.currentVersion
}

// Get returns the stored record for id, or (nil, false) if absent or
// stale.
func (s *Store) Get(ctx context.Context, id string) (*types.AggregatedFeatures, bool) {
	f, ok, err := s.readRaw(ctx, id)
	if err != nil || !ok {
		return nil, false
	}
	if f.AnalysisVersion < s.currentVersion {
		return nil, false
	}
	return f, true
}

func (s *Store) readRaw(ctx context.Context, id string) (*types.AggregatedFeatures, bool, error) {
	raw, ok, err := s.kv.Get(ctx, recordKey(id))
	if err != nil {
		return nil, false, coreerr.New(coreerr.KindStoreFailure, "featurestore get", err)
	}
	if !ok || raw == "" {
		return nil, false, nil
	}
	var f types.AggregatedFeatures
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, false, coreerr.New(coreerr.KindStoreFailure, "featurestore decode", err)
	}
	return &f, true, nil
}

// Set merges partial field-wise into any existing record for id,
// re-stamps last_updated and analysis_version, and marks id dirty for the
// next debounced flush (§4.2).
func (s *Store) Set(ctx context.Context, id string, partial *types.AggregatedFeatures) (*types.AggregatedFeatures, error) {
	existing, _, err := s.readRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := mergeFeatures(existing, partial)
	merged.TrackID = id
	merged.LastUpdatedMs = s.nowFunc().UnixMilli()
	merged.AnalysisVersion = s.currentVersion

	b, err := json.Marshal(merged)
	if err != nil {
		return nil, coreerr.New(coreerr.KindStoreFailure, "featurestore encode", err)
	}
	if err := s.kv.Set(ctx, recordKey(id), string(b)); err != nil {
		return nil, coreerr.New(coreerr.KindStoreFailure, "featurestore set", err)
	}
	s.markDirty(id)
	s.scheduleFlush(ctx)
	return merged, nil
}

func mergeFeatures(existing, partial *types.AggregatedFeatures) *types.AggregatedFeatures {
	if existing == nil {
		return partial.Clone()
	}
	out := existing.Clone()
	if partial == nil {
		return out
	}
	if partial.Audio != nil {
		out.Audio = out.Audio.Merge(partial.Audio.Clone())
	}
	if partial.Emotion != nil {
		out.Emotion = partial.Emotion
	}
	if partial.Lyrics != nil {
		out.Lyrics = partial.Lyrics
	}
	if partial.Genre != nil {
		out.Genre = partial.Genre
	}
	if partial.Embedding != nil {
		out.Embedding = partial.Embedding
	}
	if partial.Fingerprint != "" {
		out.Fingerprint = partial.Fingerprint
	}
	if len(partial.Provenance) > 0 {
		out.Provenance = append(out.Provenance, partial.Provenance...)
	}
	return out
}

func (s *Store) markDirty(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[id] = struct{}{}
}

func (s *Store) scheduleFlush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		_ = s.Persist(ctx)
	})
}

// Persist flushes the dirty set (the feature-index plus any modified
// records) to the KVStore immediately. Safe to call concurrently with
// in-flight Sets; it only needs the index to reflect current keys.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	s.dirty = make(map[string]struct{})
	s.timer = nil
	s.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	if err := s.updateIndex(ctx, ids); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("featurestore: index update failed")
		return err
	}
	if persister, ok := s.kv.(interface {
		Persist(context.Context) error
	}); ok {
		if err := persister.Persist(ctx); err != nil {
			return coreerr.New(coreerr.KindStoreFailure, "featurestore persist", err)
		}
	}
	return nil
}

func (s *Store) updateIndex(ctx context.Context, newIDs []string) error {
	raw, ok, err := s.kv.Get(ctx, indexKey)
	if err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "featurestore index get", err)
	}
	var ids []string
	if ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &ids)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	changed := false
	for _, id := range newIDs {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
			seen[id] = struct{}{}
			changed = true
		}
	}
	if !changed {
		return nil
	}
	sort.Strings(ids)
	b, err := json.Marshal(ids)
	if err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "featurestore index encode", err)
	}
	return s.kv.Set(ctx, indexKey, string(b))
}

// Shutdown flushes any pending dirty set. §7: "dispose() tries a final
// flush."
func (s *Store) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.Persist(ctx)
}

// Index returns the known track ids per feature-index.
func (s *Store) Index(ctx context.Context) ([]string, error) {
	raw, ok, err := s.kv.Get(ctx, indexKey)
	if err != nil {
		return nil, coreerr.New(coreerr.KindStoreFailure, "featurestore index get", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, coreerr.New(coreerr.KindStoreFailure, "featurestore index decode", err)
	}
	return ids, nil
}
