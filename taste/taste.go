// Package taste implements spec §2 component I: the interaction-weighted
// running-average taste vector, its contextual variants, and the
// exploration-vector complement.
package taste

import (
	"math/rand"
	"sync"

	"audiio/vectormath"
)

// Context buckets the profile keeps separate running variants for
// (§4.6: "morning/afternoon/evening/weekend").
type Context string

const (
	ContextMorning   Context = "morning"
	ContextAfternoon Context = "afternoon"
	ContextEvening   Context = "evening"
	ContextWeekend   Context = "weekend"
)

// ContextForHour buckets an hour-of-day into a Context.
func ContextForHour(hour int, isWeekend bool) Context {
	if isWeekend {
		return ContextWeekend
	}
	switch {
	case hour >= 5 && hour < 12:
		return ContextMorning
	case hour >= 12 && hour < 18:
		return ContextAfternoon
	default:
		return ContextEvening
	}
}

// Profile is one user's running taste vector plus contextual variants.
type Profile struct {
	dim       int
	minForValid int

	mu            sync.Mutex
	vector        []float64
	interactions  int
	contextVectors map[Context][]float64
	contextCounts  map[Context]int
	rng            *rand.Rand
}

// New builds an empty Profile for the given embedding dimension.
func New(dim, minInteractionsForValid int, seed int64) *Profile {
	if minInteractionsForValid <= 0 {
		minInteractionsForValid = 10
	}
	src := rand.NewSource(seed)
	if seed == 0 {
		src = rand.NewSource(1)
	}
	return &Profile{
		dim:            dim,
		minForValid:    minInteractionsForValid,
		contextVectors: make(map[Context][]float64),
		contextCounts:  make(map[Context]int),
		rng:            rand.New(src),
	}
}

// alphaFor picks a blend weight for the running vector toward the new
// observation, tuned by a recency/strength multiplier (§4.6: "α tuned by
// recency/strength"). strength is typically 1.0 for a normal play and
// higher for a strong positive signal (e.g. a like).
func alphaFor(interactions int, strength float64) float64 {
	base := 1.0 / float64(minInt(interactions+1, 20))
	a := base * strength
	if a > 0.5 {
		a = 0.5
	}
	return 1 - a // weight retained on the running vector
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// UpdatePositive blends a track vector into the running profile on a
// positive signal (§4.6).
func (p *Profile) UpdatePositive(trackVec []float64, strength float64, ctx Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interactions++
	alpha := alphaFor(p.interactions, strength)
	p.vector = p.blendInto(p.vector, trackVec, alpha)
	p.updateContext(ctx, trackVec, alpha)
}

// UpdateNegative blends the counterpart track vector in with a negative
// sign (§4.6: "on a negative signal the counterpart track vector is
// blended with a negative sign and re-normalised").
func (p *Profile) UpdateNegative(trackVec []float64, strength float64, ctx Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interactions++
	alpha := alphaFor(p.interactions, strength)
	negated := make([]float64, len(trackVec))
	for i, v := range trackVec {
		negated[i] = -v
	}
	p.vector = p.blendInto(p.vector, negated, alpha)
}

func (p *Profile) blendInto(running, incoming []float64, alpha float64) []float64 {
	if len(running) == 0 {
		return vectormath.Normalize(incoming)
	}
	blended := vectormath.Blend(running, incoming, alpha)
	return vectormath.Normalize(blended)
}

func (p *Profile) updateContext(ctx Context, trackVec []float64, alpha float64) {
	if ctx == "" {
		return
	}
	p.contextCounts[ctx]++
	p.contextVectors[ctx] = p.blendInto(p.contextVectors[ctx], trackVec, alpha)
}

// IsValid reports whether enough interactions have accumulated for the
// running vector to be considered meaningful (§4.6).
func (p *Profile) IsValid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interactions >= p.minForValid
}

// Vector returns a copy of the current running taste vector.
func (p *Profile) Vector() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.vector...)
}

// BlendWithMood returns a unit-normalised convex combination of the
// running vector and moodVec, weighted moodWeight toward the mood (§4.6).
func (p *Profile) BlendWithMood(moodVec []float64, moodWeight float64) []float64 {
	p.mu.Lock()
	base := append([]float64(nil), p.vector...)
	p.mu.Unlock()
	if len(base) == 0 {
		return vectormath.Normalize(moodVec)
	}
	blended := vectormath.Blend(moodVec, base, moodWeight)
	return vectormath.Normalize(blended)
}

// GetContextualVector returns the unit-normalised variant for the
// context implied by hour/day, falling back to the global running
// vector when that context has no data yet (§4.6).
func (p *Profile) GetContextualVector(hour, dayOfWeek int) []float64 {
	isWeekend := dayOfWeek == 0 || dayOfWeek == 6
	ctx := ContextForHour(hour, isWeekend)
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.contextVectors[ctx]; ok && len(v) > 0 {
		return append([]float64(nil), v...)
	}
	return append([]float64(nil), p.vector...)
}

// GetExplorationVector returns a vector approximately orthogonal to the
// running taste vector: a randomised vector run through one step of
// Gram-Schmidt against v̄, then re-normalised (§4.6).
func (p *Profile) GetExplorationVector() []float64 {
	p.mu.Lock()
	base := append([]float64(nil), p.vector...)
	dim := p.dim
	rng := p.rng
	p.mu.Unlock()

	if dim == 0 {
		dim = len(base)
	}
	rnd := make([]float64, dim)
	for i := range rnd {
		rnd[i] = rng.Float64()*2 - 1
	}
	if len(base) == 0 {
		return vectormath.Normalize(rnd)
	}
	proj := vectormath.Dot(rnd, base)
	baseNormSq := vectormath.Dot(base, base)
	if baseNormSq < 1e-12 {
		return vectormath.Normalize(rnd)
	}
	scale := proj / baseNormSq
	ortho := make([]float64, dim)
	for i := range ortho {
		b := 0.0
		if i < len(base) {
			b = base[i]
		}
		ortho[i] = rnd[i] - scale*b
	}
	if vectormath.Norm(ortho) < 1e-9 {
		return vectormath.Normalize(rnd)
	}
	return vectormath.Normalize(ortho)
}

// InteractionCount returns the number of positive/negative updates
// applied so far.
func (p *Profile) InteractionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interactions
}
