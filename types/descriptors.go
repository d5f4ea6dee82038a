package types

// EmotionDescriptors is a mood-model provider's output for a track.
type EmotionDescriptors struct {
	Valence         float64 // 0..1
	Arousal         float64 // 0..1
	PrimaryCategory string  // one of ~16 mood labels
	Confidence      float64 // 0..1
}

// LyricsDescriptors is a lyrics-analysis provider's output for a track.
type LyricsDescriptors struct {
	Sentiment          float64 // -1..1
	Confidence         float64 // 0..1
	ThemeTags          map[string]float64
	EmotionalIntensity float64 // 0..1
	Language           string
}

// GenreSource records whether a genre prediction came from catalog
// metadata or was inferred by a model.
type GenreSource string

const (
	GenreSourceMetadata GenreSource = "metadata"
	GenreSourceInferred GenreSource = "inferred"
)

// GenrePrediction is one ranked entry in a GenreDescriptors.Predictions list.
type GenrePrediction struct {
	Genre      string
	Confidence float64
}

// GenreDescriptors is a genre-classification provider's output for a track.
type GenreDescriptors struct {
	PrimaryGenre      string
	PrimaryConfidence float64
	Predictions       []GenrePrediction
	Source            GenreSource
}

// Provenance records which provider supplied which fields, and with what
// confidence, for a single fusion pass.
type Provenance struct {
	ProviderID    string
	FieldsSupplied []string
	Confidence    float64
}

// AggregatedFeatures is the fused, cacheable record for one track (§3).
// A nil sub-pointer means that feature kind is absent, not zeroed.
type AggregatedFeatures struct {
	TrackID         string
	Audio           *AudioDescriptors
	Emotion         *EmotionDescriptors
	Lyrics          *LyricsDescriptors
	Genre           *GenreDescriptors
	Embedding       *Embedding
	Fingerprint     string
	Provenance      []Provenance
	LastUpdatedMs   int64
	AnalysisVersion int
}

// Clone returns a value that shares no mutable state with the receiver.
func (f *AggregatedFeatures) Clone() *AggregatedFeatures {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Audio = f.Audio.Clone()
	if f.Emotion != nil {
		e := *f.Emotion
		cp.Emotion = &e
	}
	if f.Lyrics != nil {
		l := *f.Lyrics
		if l.ThemeTags != nil {
			l.ThemeTags = make(map[string]float64, len(f.Lyrics.ThemeTags))
			for k, v := range f.Lyrics.ThemeTags {
				l.ThemeTags[k] = v
			}
		}
		cp.Lyrics = &l
	}
	if f.Genre != nil {
		g := *f.Genre
		g.Predictions = append([]GenrePrediction(nil), f.Genre.Predictions...)
		cp.Genre = &g
	}
	if f.Embedding != nil {
		e := f.Embedding.Clone()
		cp.Embedding = &e
	}
	cp.Provenance = append([]Provenance(nil), f.Provenance...)
	return &cp
}

// HasAudio reports whether any audio field is present.
func (f *AggregatedFeatures) HasAudio() bool { return f != nil && f.Audio != nil }

// HasEmbedding reports whether an embedding has been fused in.
func (f *AggregatedFeatures) HasEmbedding() bool { return f != nil && f.Embedding != nil }
