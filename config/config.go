// Package config defines audiio's tunable parameters as a single struct,
// in the teacher's mapstructure-tagged style (see types.Configuration in
// the suasor teacher repo). The core never reads a config file itself —
// config loading is a host concern per spec §1 — but Default() and the
// struct shape are ambient and exercised by every other package.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every tunable the spec calls out by name.
type Config struct {
	// Embedding carries the project-wide embedding dimension decision
	// (§9 open question: source ranges 64/128/128, we fix one value).
	Embedding struct {
		Dimension      int  `mapstructure:"dimension" json:"dimension"`
		NormalizeOnWrite bool `mapstructure:"normalizeOnWrite" json:"normalizeOnWrite"`
		UpdateBlendNew   float64 `mapstructure:"updateBlendNew" json:"updateBlendNew"`
	} `mapstructure:"embedding" json:"embedding"`

	Analysis struct {
		CurrentVersion int `mapstructure:"currentVersion" json:"currentVersion"`
	} `mapstructure:"analysis" json:"analysis"`

	Cache struct {
		MemoryTTLSeconds   int `mapstructure:"memoryTtlSeconds" json:"memoryTtlSeconds"`
		MemoryMaxEntries   int `mapstructure:"memoryMaxEntries" json:"memoryMaxEntries"`
		SimilarityMaxEntries int `mapstructure:"similarityMaxEntries" json:"similarityMaxEntries"`
		InflightMaxPending int `mapstructure:"inflightMaxPending" json:"inflightMaxPending"`
	} `mapstructure:"cache" json:"cache"`

	FeatureStore struct {
		DebounceSeconds int `mapstructure:"debounceSeconds" json:"debounceSeconds"`
	} `mapstructure:"featureStore" json:"featureStore"`

	Provider struct {
		CoreThreshold    int `mapstructure:"coreThreshold" json:"coreThreshold"`
		DefaultTimeoutMs int `mapstructure:"defaultTimeoutMs" json:"defaultTimeoutMs"`
		PrefetchBatchSize int `mapstructure:"prefetchBatchSize" json:"prefetchBatchSize"`
		ParallelCore     bool `mapstructure:"parallelCore" json:"parallelCore"`
	} `mapstructure:"provider" json:"provider"`

	CoOccurrence struct {
		DecayFactor  float64 `mapstructure:"decayFactor" json:"decayFactor"`
		MinCount     float64 `mapstructure:"minCount" json:"minCount"`
		MaxPairs     int     `mapstructure:"maxPairs" json:"maxPairs"`
		SequentialWeight float64 `mapstructure:"sequentialWeight" json:"sequentialWeight"`
		LikeAfterPlayWeight float64 `mapstructure:"likeAfterPlayWeight" json:"likeAfterPlayWeight"`
	} `mapstructure:"cooccurrence" json:"cooccurrence"`

	Taste struct {
		MinInteractionsForValid int `mapstructure:"minInteractionsForValid" json:"minInteractionsForValid"`
	} `mapstructure:"taste" json:"taste"`

	Preference struct {
		DailyDecayFactor float64 `mapstructure:"dailyDecayFactor" json:"dailyDecayFactor"`
		RecentPlaysMax   int     `mapstructure:"recentPlaysMax" json:"recentPlaysMax"`
		RecentPlaysTrimTo int    `mapstructure:"recentPlaysTrimTo" json:"recentPlaysTrimTo"`
		SummaryListMax   int     `mapstructure:"summaryListMax" json:"summaryListMax"`
	} `mapstructure:"preference" json:"preference"`

	Scoring struct {
		Weights ScoreWeights `mapstructure:"weights" json:"weights"`
		Penalties PenaltyWeights `mapstructure:"penalties" json:"penalties"`
		ExplanationHighThreshold float64 `mapstructure:"explanationHighThreshold" json:"explanationHighThreshold"`
		ExplanationLowThreshold  float64 `mapstructure:"explanationLowThreshold" json:"explanationLowThreshold"`
		ExplainCacheSize         int     `mapstructure:"explainCacheSize" json:"explainCacheSize"`
		PreferenceCacheTTLSeconds int    `mapstructure:"preferenceCacheTtlSeconds" json:"preferenceCacheTtlSeconds"`
	} `mapstructure:"scoring" json:"scoring"`

	Sequential struct {
		TrajectoryWeight float64 `mapstructure:"trajectoryWeight" json:"trajectoryWeight"`
		TempoWeight      float64 `mapstructure:"tempoWeight" json:"tempoWeight"`
		GenreWeight      float64 `mapstructure:"genreWeight" json:"genreWeight"`
		EnergyWeight     float64 `mapstructure:"energyWeight" json:"energyWeight"`
		RecentWindow     int     `mapstructure:"recentWindow" json:"recentWindow"`
	} `mapstructure:"sequential" json:"sequential"`

	Playlist struct {
		MaxPerArtist      int     `mapstructure:"maxPerArtist" json:"maxPerArtist"`
		CandidateMultiplier int   `mapstructure:"candidateMultiplier" json:"candidateMultiplier"`
		SeedBlendEmbedding float64 `mapstructure:"seedBlendEmbedding" json:"seedBlendEmbedding"`
		SeedBlendCollab    float64 `mapstructure:"seedBlendCollab" json:"seedBlendCollab"`
		SimilarBlendEmbedding float64 `mapstructure:"similarBlendEmbedding" json:"similarBlendEmbedding"`
		SimilarBlendCollab    float64 `mapstructure:"similarBlendCollab" json:"similarBlendCollab"`
	} `mapstructure:"playlist" json:"playlist"`

	Radio struct {
		ArtistCap            int     `mapstructure:"artistCap" json:"artistCap"`
		SeedWeightFloor      float64 `mapstructure:"seedWeightFloor" json:"seedWeightFloor"`
		SeedWeightStart      float64 `mapstructure:"seedWeightStart" json:"seedWeightStart"`
		SeedWeightDecayPerTrack float64 `mapstructure:"seedWeightDecayPerTrack" json:"seedWeightDecayPerTrack"`
		CandidateMultiplier  int     `mapstructure:"candidateMultiplier" json:"candidateMultiplier"`
		RandomSeed           int64   `mapstructure:"randomSeed" json:"randomSeed"`
	} `mapstructure:"radio" json:"radio"`

	Training struct {
		MinSamples     int `mapstructure:"minSamples" json:"minSamples"`
		MinNewEvents   int `mapstructure:"minNewEvents" json:"minNewEvents"`
		MinIntervalSeconds int `mapstructure:"minIntervalSeconds" json:"minIntervalSeconds"`
		IdleThresholdSeconds int `mapstructure:"idleThresholdSeconds" json:"idleThresholdSeconds"`
	} `mapstructure:"training" json:"training"`

	Events struct {
		MaxEvents       int `mapstructure:"maxEvents" json:"maxEvents"`
		AutoPersistEvery int `mapstructure:"autoPersistEvery" json:"autoPersistEvery"`
	} `mapstructure:"events" json:"events"`
}

// ScoreWeights are the positive-component weights of §4.7, summing to 1.0.
type ScoreWeights struct {
	BasePreference    float64 `mapstructure:"basePreference" json:"basePreference"`
	MLPrediction      float64 `mapstructure:"mlPrediction" json:"mlPrediction"`
	AudioMatch        float64 `mapstructure:"audioMatch" json:"audioMatch"`
	MoodMatch         float64 `mapstructure:"moodMatch" json:"moodMatch"`
	HarmonicFlow      float64 `mapstructure:"harmonicFlow" json:"harmonicFlow"`
	TemporalFit       float64 `mapstructure:"temporalFit" json:"temporalFit"`
	SessionFlow       float64 `mapstructure:"sessionFlow" json:"sessionFlow"`
	ActivityMatch     float64 `mapstructure:"activityMatch" json:"activityMatch"`
	ExplorationBonus  float64 `mapstructure:"explorationBonus" json:"explorationBonus"`
	SerendipityScore  float64 `mapstructure:"serendipityScore" json:"serendipityScore"`
	DiversityScore    float64 `mapstructure:"diversityScore" json:"diversityScore"`
	TrajectoryFit     float64 `mapstructure:"trajectoryFit" json:"trajectoryFit"`
	TempoFlow         float64 `mapstructure:"tempoFlow" json:"tempoFlow"`
	GenreTransition   float64 `mapstructure:"genreTransition" json:"genreTransition"`
	EnergyTrend       float64 `mapstructure:"energyTrend" json:"energyTrend"`
}

// PenaltyWeights are the independent subtractive multipliers of §4.7.
type PenaltyWeights struct {
	RecentPlay   float64 `mapstructure:"recentPlay" json:"recentPlay"`
	Dislike      float64 `mapstructure:"dislike" json:"dislike"`
	Repetition   float64 `mapstructure:"repetition" json:"repetition"`
	Fatigue      float64 `mapstructure:"fatigue" json:"fatigue"`
}

// Default returns the documented defaults from spec.md.
func Default() *Config {
	c := &Config{}

	c.Embedding.Dimension = 128
	c.Embedding.NormalizeOnWrite = true
	c.Embedding.UpdateBlendNew = 0.7

	c.Analysis.CurrentVersion = 1

	c.Cache.MemoryTTLSeconds = 24 * 3600
	c.Cache.MemoryMaxEntries = 5000
	c.Cache.SimilarityMaxEntries = 10000
	c.Cache.InflightMaxPending = 256

	c.FeatureStore.DebounceSeconds = 2

	c.Provider.CoreThreshold = 50
	c.Provider.DefaultTimeoutMs = 10000
	c.Provider.PrefetchBatchSize = 10
	c.Provider.ParallelCore = true

	c.CoOccurrence.DecayFactor = 0.98
	c.CoOccurrence.MinCount = 2
	c.CoOccurrence.MaxPairs = 200000
	c.CoOccurrence.SequentialWeight = 1.5
	c.CoOccurrence.LikeAfterPlayWeight = 3.0

	c.Taste.MinInteractionsForValid = 10

	c.Preference.DailyDecayFactor = 0.98
	c.Preference.RecentPlaysMax = 1000
	c.Preference.RecentPlaysTrimTo = 500
	c.Preference.SummaryListMax = 20

	c.Scoring.Weights = ScoreWeights{
		BasePreference:   0.20,
		MLPrediction:     0.18,
		AudioMatch:       0.12,
		MoodMatch:        0.08,
		HarmonicFlow:     0.06,
		TemporalFit:      0.05,
		SessionFlow:      0.06,
		ActivityMatch:    0.03,
		ExplorationBonus: 0.03,
		SerendipityScore: 0.03,
		DiversityScore:   0.03,
		TrajectoryFit:    0.05,
		TempoFlow:        0.04,
		GenreTransition:  0.03,
		EnergyTrend:      0.01,
	}
	c.Scoring.Penalties = PenaltyWeights{
		RecentPlay: 1.0,
		Dislike:    1.5,
		Repetition: 1.0,
		Fatigue:    1.0,
	}
	c.Scoring.ExplanationHighThreshold = 0.7
	c.Scoring.ExplanationLowThreshold = 0.3
	c.Scoring.ExplainCacheSize = 100
	c.Scoring.PreferenceCacheTTLSeconds = 300

	c.Sequential.TrajectoryWeight = 0.30
	c.Sequential.TempoWeight = 0.25
	c.Sequential.GenreWeight = 0.25
	c.Sequential.EnergyWeight = 0.20
	c.Sequential.RecentWindow = 5

	c.Playlist.MaxPerArtist = 3
	c.Playlist.CandidateMultiplier = 3
	c.Playlist.SeedBlendEmbedding = 0.7
	c.Playlist.SeedBlendCollab = 0.3
	c.Playlist.SimilarBlendEmbedding = 0.6
	c.Playlist.SimilarBlendCollab = 0.4

	c.Radio.ArtistCap = 2
	c.Radio.SeedWeightFloor = 0.3
	c.Radio.SeedWeightStart = 0.7
	c.Radio.SeedWeightDecayPerTrack = 0.02
	c.Radio.CandidateMultiplier = 3
	c.Radio.RandomSeed = 0 // 0 => seed from time at construction; explicit seed for reproducible tests

	c.Training.MinSamples = 50
	c.Training.MinNewEvents = 20
	c.Training.MinIntervalSeconds = 3600
	c.Training.IdleThresholdSeconds = 300

	c.Events.MaxEvents = 10000
	c.Events.AutoPersistEvery = 10

	return c
}

// Load layers environment variables (prefixed AUDIIO_) and an optional
// JSON file on top of Default(), the way the teacher's Configuration is
// assembled from koanf providers. The host is responsible for calling
// this; the core itself never touches the filesystem or environment on
// its own.
func Load(jsonPath string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if jsonPath != "" {
		if err := k.Load(file.Provider(jsonPath), json.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %q: %w", jsonPath, err)
		}
	}
	// AUDIIO_RADIO_SEEDWEIGHTFLOOR -> radio.seedweightfloor; field matching
	// on unmarshal is case-insensitive.
	envKey := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "AUDIIO_")), "_", ".")
	}
	if err := k.Load(env.Provider("AUDIIO_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
