package types

import "context"

// Capability is a bitset flag for the feature kinds a FeatureProvider can
// furnish (§4.1).
type Capability uint8

const (
	CapAudio Capability = 1 << iota
	CapEmotion
	CapLyrics
	CapEmbedding
	CapGenre
	CapFingerprint
)

// Has reports whether the bitset includes cap.
func (c Capability) Has(cap Capability) bool { return c&cap != 0 }

// ProviderMode governs fusion semantics for non-core providers (§4.1).
type ProviderMode string

const (
	ModeOverride   ProviderMode = "override"
	ModeSupplement ProviderMode = "supplement"
)

// ProviderIdentity is the registration record a FeatureProvider presents.
type ProviderIdentity struct {
	ID           string
	Priority     int
	Mode         ProviderMode // meaningful only when Priority > core threshold
	Capabilities Capability
	TimeoutMs    int
}

// FeatureProvider is the capability-record interface extensions implement
// (§6, Design Notes §9: "capability records for providers"). Every method
// is optional; FeatureAggregator gates each call on both the capability
// bit and a nil check, so a provider only needs to implement what it can
// usefully answer.
type FeatureProvider interface {
	Identity() ProviderIdentity
	Initialize(ctx context.Context, endpoints map[string]string) error
	Dispose(ctx context.Context) error

	GetAudioFeatures(ctx context.Context, trackID string) (*AudioDescriptors, error)
	GetEmotionFeatures(ctx context.Context, trackID string) (*EmotionDescriptors, error)
	GetLyricsFeatures(ctx context.Context, trackID string) (*LyricsDescriptors, error)
	GetGenreFeatures(ctx context.Context, trackID string) (*GenreDescriptors, error)
	GetEmbedding(ctx context.Context, trackID string) (*Embedding, error)
}

// KVStore is the opaque string->string persistence contract implemented
// by the host (§6). Persist is a no-op for backends with no debounce
// buffer to flush.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Persist(ctx context.Context) error
}

// LibrarySource is the host-owned music catalog (§6).
type LibrarySource interface {
	GetTrack(ctx context.Context, id string) (*Track, error)
	GetAllTracks(ctx context.Context) ([]*Track, error)
	GetTracksByArtist(ctx context.Context, artistID string) ([]*Track, error)
	GetTracksByGenre(ctx context.Context, genre string) ([]*Track, error)
	GetLikedTracks(ctx context.Context) ([]*Track, error)
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]*Track, error)
	Search(ctx context.Context, query string, limit int) ([]*Track, error)
}

// Predictor is the external neural-network capability (§1 out-of-scope
// collaborator, §4.7/§4.10/§4.13).
type Predictor interface {
	Fit(ctx context.Context, samples []TrainingSample) error
	Predict(ctx context.Context, featureVector []float64) (float64, error)
	Save(ctx context.Context, path string) error
	Load(ctx context.Context, path string) error
	// Confidence reports the predictor's self-assessed confidence since
	// its most recent successful Fit; 0 before any training (§4.7 ML
	// weight scaling).
	Confidence() float64
}

// SignalProcessor is the external audio-DSP capability (§1 out-of-scope
// collaborator). audiio never calls it directly; it exists so
// FeatureProvider implementations built on top of audiio have a named
// contract to depend on, matching the interfaces enumerated in spec §1.
type SignalProcessor interface {
	AnalyzeAudio(ctx context.Context, pcm []float64, sampleRate int) (*AudioDescriptors, error)
}
