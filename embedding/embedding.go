// Package embedding implements spec §2 component F: deterministic
// embedding generation from audio descriptors, genres and tags, plus the
// mood/genre query vectors the playlist generator anchors on.
package embedding

import (
	"hash/fnv"
	"math"
	"strings"
	"time"

	"audiio/types"
	"audiio/vectormath"
)

const goldenRatio = 1.6180339887498949

// Engine builds and updates Embeddings for a fixed dimension D.
type Engine struct {
	dim       int
	normalize bool
	blendNew  float64

	genreBase map[string][]float64
	moodBase  map[string][]float64
}

// New builds an Engine for dimension dim. normalize controls whether
// produced vectors are L2-normalised (default on per §4.3 step 4).
func New(dim int, normalize bool, blendNew float64) *Engine {
	if dim <= 0 {
		dim = 128
	}
	if blendNew <= 0 {
		blendNew = 0.7
	}
	return &Engine{
		dim:       dim,
		normalize: normalize,
		blendNew:  blendNew,
		genreBase: make(map[string][]float64),
		moodBase:  make(map[string][]float64),
	}
}

// audioWeights declares the relative influence of each present descriptor
// in the golden-ratio spread of step 1 (§4.3).
var audioWeights = []struct {
	name   string
	get    func(*types.AudioDescriptors) (float64, bool)
}{
	{"energy", func(a *types.AudioDescriptors) (float64, bool) { return derefOK(a.Energy) }},
	{"valence", func(a *types.AudioDescriptors) (float64, bool) { return derefOK(a.Valence) }},
	{"danceability", func(a *types.AudioDescriptors) (float64, bool) { return derefOK(a.Danceability) }},
	{"bpm", func(a *types.AudioDescriptors) (float64, bool) {
		if a.BPM == nil {
			return 0, false
		}
		return normalizeBPM(*a.BPM), true
	}},
	{"acousticness", func(a *types.AudioDescriptors) (float64, bool) { return derefOK(a.Acousticness) }},
}

func derefOK(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func normalizeBPM(bpm float64) float64 {
	const lo, hi = 20.0, 300.0
	v := (bpm - lo) / (hi - lo)
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}

// BuildInput is the per-track raw material for Build (§4.3's TrackData).
type BuildInput struct {
	TrackID string
	Audio   *types.AudioDescriptors
	Genres  []string
	Tags    []string
	Year    int
}

// Build produces a deterministic Embedding for in, following §4.3's
// algorithm: an audio component (golden-ratio spread with second-order
// interaction bands), a genre component, a tag component, averaged and
// renormalised, or a low-confidence jittered vector when no component
// could be formed.
func (e *Engine) Build(in BuildInput) types.Embedding {
	var components [][]float64

	if av, ok := e.audioVector(in.Audio); ok {
		components = append(components, av)
	}
	if gv, ok := e.genreVector(in.Genres); ok {
		components = append(components, gv)
	}
	if tv, ok := e.tagVector(in.Tags); ok {
		components = append(components, tv)
	}

	now := time.Now().UnixMilli()
	var vec []float64
	provenance := "jitter-fallback"
	if len(components) == 0 {
		vec = e.jitterVector(in.TrackID)
	} else {
		vec = vectormath.Average(components...)
		provenance = "audio+genre+tag"
	}
	if e.normalize {
		vec = vectormath.Normalize(vec)
	}
	return types.Embedding{
		Vector:     vec,
		Dim:        e.dim,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		Provenance: provenance,
	}
}

// audioVector implements §4.3's audio component: defined only when at
// least 3 of {energy, valence, danceability, bpm, acousticness} are
// present.
func (e *Engine) audioVector(a *types.AudioDescriptors) ([]float64, bool) {
	if a == nil {
		return nil, false
	}
	type present struct {
		name  string
		value float64
	}
	var have []present
	for _, w := range audioWeights {
		if v, ok := w.get(a); ok {
			have = append(have, present{name: w.name, value: v})
		}
	}
	if len(have) < 3 {
		return nil, false
	}

	out := make([]float64, e.dim)
	spread := e.dim / len(have)
	if spread < 1 {
		spread = 1
	}
	for featIdx, p := range have {
		base := int(math.Floor(float64(featIdx) * goldenRatio * float64(e.dim))) % e.dim
		for j := 0; j < spread; j++ {
			idx := (base + j) % e.dim
			influence := math.Exp(-0.3 * float64(j))
			out[idx] += p.value * influence
		}
	}

	values := map[string]float64{}
	for _, p := range have {
		values[p.name] = p.value
	}
	if energy, ok1 := values["energy"]; ok1 {
		if valence, ok2 := values["valence"]; ok2 {
			tailIdx := (e.dim - 1) % e.dim
			out[tailIdx] += energy * valence
		}
	}
	if dance, ok1 := values["danceability"]; ok1 {
		if bpm, ok2 := values["bpm"]; ok2 {
			tailIdx := (e.dim - 2 + e.dim) % e.dim
			out[tailIdx] += dance * bpm
		}
	}
	return out, true
}

// genreVector implements §4.3's genre component: sum of cached per-genre
// base vectors, expanded to D by linear interpolation, divided by count.
func (e *Engine) genreVector(genres []string) ([]float64, bool) {
	if len(genres) == 0 {
		return nil, false
	}
	sum := vectormath.Zeros(e.dim)
	for _, g := range genres {
		base := e.genreBaseVector(g)
		for i := range sum {
			sum[i] += base[i]
		}
	}
	for i := range sum {
		sum[i] /= float64(len(genres))
	}
	return sum, true
}

// tagVector treats tags identically to genres (§4.3: "same treatment,
// recognising mood and genre tokens"), sharing the same base-vector
// derivation so a tag that happens to name a known genre or mood lines up
// with that concept's region of the space.
func (e *Engine) tagVector(tags []string) ([]float64, bool) {
	if len(tags) == 0 {
		return nil, false
	}
	sum := vectormath.Zeros(e.dim)
	for _, t := range tags {
		lower := strings.ToLower(strings.TrimSpace(t))
		var base []float64
		if _, ok := e.moodBase[lower]; ok || isKnownMood(lower) {
			base = e.moodBaseVector(lower)
		} else {
			base = e.genreBaseVector(lower)
		}
		for i := range sum {
			sum[i] += base[i]
		}
	}
	for i := range sum {
		sum[i] /= float64(len(tags))
	}
	return sum, true
}

// genreBaseVector derives (and caches) a deterministic short base vector
// for a genre string, then expands it to D via vectormath.ResizeLinear.
func (e *Engine) genreBaseVector(genre string) []float64 {
	key := strings.ToLower(strings.TrimSpace(genre))
	if v, ok := e.genreBase[key]; ok {
		return v
	}
	short := deterministicShortVector(key, 8)
	full := vectormath.ResizeLinear(short, e.dim)
	e.genreBase[key] = full
	return full
}

func (e *Engine) moodBaseVector(mood string) []float64 {
	key := strings.ToLower(strings.TrimSpace(mood))
	if v, ok := e.moodBase[key]; ok {
		return v
	}
	short := deterministicShortVector("mood:"+key, 8)
	full := vectormath.ResizeLinear(short, e.dim)
	e.moodBase[key] = full
	return full
}

var knownMoods = map[string]struct{}{
	"happy": {}, "sad": {}, "energetic": {}, "calm": {}, "angry": {},
	"romantic": {}, "melancholic": {}, "uplifting": {}, "dark": {}, "dreamy": {},
	"aggressive": {}, "peaceful": {}, "nostalgic": {}, "triumphant": {}, "tense": {}, "playful": {},
}

func isKnownMood(s string) bool {
	_, ok := knownMoods[s]
	return ok
}

// deterministicShortVector hashes name into n floats in [-1, 1]. Using a
// stable hash (not math/rand) keeps embeddings reproducible across runs
// for the same genre/mood vocabulary (§8 determinism requirement).
func deterministicShortVector(name string, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		h := fnv.New32a()
		h.Write([]byte(name))
		h.Write([]byte{byte(i)})
		sum := h.Sum32()
		out[i] = (float64(sum%20000)/10000.0 - 1.0)
	}
	return out
}

// jitterVector produces the §4.3 step 2 fallback: a near-constant vector
// with small deterministic jitter, used as a low-confidence marker when no
// audio/genre/tag component could be formed.
func (e *Engine) jitterVector(trackID string) []float64 {
	out := make([]float64, e.dim)
	jitter := deterministicShortVector("jitter:"+trackID, e.dim)
	for i := range out {
		out[i] = 0.01 + 0.001*jitter[i]
	}
	return out
}

// GenreQueryVector returns the L2-normalised query anchor for genre,
// falling back exact-match -> substring-match -> word-overlap -> neutral
// per §4.3.
func (e *Engine) GenreQueryVector(genre string) types.Embedding {
	vec := e.queryFallback(genre, e.genreBase, e.genreBaseVector)
	return e.wrapQuery(vec, "genre-query")
}

// MoodQueryVector returns the L2-normalised query anchor for mood, with
// the same fallback chain.
func (e *Engine) MoodQueryVector(mood string) types.Embedding {
	vec := e.queryFallback(mood, e.moodBase, e.moodBaseVector)
	return e.wrapQuery(vec, "mood-query")
}

func (e *Engine) wrapQuery(vec []float64, provenance string) types.Embedding {
	now := time.Now().UnixMilli()
	return types.Embedding{
		Vector:     vectormath.Normalize(vec),
		Dim:        e.dim,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		Provenance: provenance,
	}
}

func (e *Engine) queryFallback(query string, known map[string][]float64, derive func(string) []float64) []float64 {
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return vectormath.ResizeLinear([]float64{0}, e.dim)
	}
	if v, ok := known[key]; ok {
		return v
	}
	for k, v := range known {
		if strings.Contains(k, key) || strings.Contains(key, k) {
			return v
		}
	}
	queryWords := strings.Fields(key)
	bestScore, bestKey := 0, ""
	for k := range known {
		score := wordOverlap(queryWords, strings.Fields(k))
		if score > bestScore {
			bestScore, bestKey = score, k
		}
	}
	if bestScore > 0 {
		return known[bestKey]
	}
	return derive(key)
}

func wordOverlap(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, w := range b {
		set[w] = struct{}{}
	}
	count := 0
	for _, w := range a {
		if _, ok := set[w]; ok {
			count++
		}
	}
	return count
}

// Update blends a new observation into an existing embedding per §4.3:
// 0.7*new + 0.3*existing, re-normalised, preserving created_at.
func (e *Engine) Update(existing types.Embedding, observed []float64) types.Embedding {
	blended := vectormath.Blend(observed, existing.Vector, e.blendNew)
	if e.normalize {
		blended = vectormath.Normalize(blended)
	}
	out := existing
	out.Vector = blended
	out.UpdatedAt = time.Now().UnixMilli()
	return out
}
