package types

// AffinityStats is the shared shape of artist and genre affinity tracking
// (§3 PreferenceState). Genre stats omit LastPlayedMs in the spec prose,
// but keeping the field on both and simply not using it for genres costs
// nothing and avoids a parallel type.
type AffinityStats struct {
	PlayCount     int
	TotalDuration float64
	LikeCount     int
	DislikeCount  int
	LastPlayedMs  int64
	Affinity      float64 // clamped to [-100, 100]
}

// DislikeRecord is one entry in PreferenceState's disliked-tracks map.
type DislikeRecord struct {
	Reason    DislikeReason
	TimestampMs int64
}

// TrackSummary is a bounded "recent" or "top rated" entry kept per user,
// grounded on the teacher's MusicSummary (suasor
// services/jobs/recommendation/types.go).
type TrackSummary struct {
	TrackID      string
	Title        string
	Artist       string
	Album        string
	Year         int
	Genres       []string
	Rating       float64
	PlayCount    int
	LastPlayedMs int64
	DurationSec  int
	IsFavorite   bool
}

// PreferenceState is the full persisted shape of one user's learned
// preferences (§3, §4.12).
type PreferenceState struct {
	Artists map[string]*AffinityStats
	Genres  map[string]*AffinityStats

	HourlyPlays   [24]int
	DailyPlays    [7]int
	GenreByHour   map[string][24]int
	DislikedTracks map[string]DislikeRecord
	RecentPlays   map[string]int64 // trackID -> last-played-ms, bounded to 1000/trimmed to 500

	RecentTracks   []TrackSummary
	TopRatedTracks []TrackSummary

	TotalListens      int
	LastDecayAppliedMs int64
}

// NewPreferenceState returns a zero-value state with all maps allocated.
func NewPreferenceState() *PreferenceState {
	return &PreferenceState{
		Artists:        make(map[string]*AffinityStats),
		Genres:         make(map[string]*AffinityStats),
		GenreByHour:    make(map[string][24]int),
		DislikedTracks: make(map[string]DislikeRecord),
		RecentPlays:    make(map[string]int64),
	}
}
